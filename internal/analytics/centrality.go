package analytics

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
)

// CentralityRow is one character's standing in the relates_to graph.
type CentralityRow struct {
	CharacterID string
	Degree      int
	Betweenness float64
	Closeness   float64
}

// Centrality computes degree, Brandes betweenness, and closeness over
// the relates_to graph treated as undirected with unit edge weights.
// Ties are broken lexicographically on character id, both in the
// node-id assignment (so gonum's internal iteration order is stable)
// and in the returned ordering.
func (s *Service) Centrality() ([]CentralityRow, error) {
	characters, err := s.store.ListCharacters(false)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(characters))
	for i, c := range characters {
		ids[i] = c.ID
	}
	sort.Strings(ids)

	idToNode := make(map[string]int64, len(ids))
	nodeToID := make(map[int64]string, len(ids))
	g := simple.NewUndirectedGraph()
	for i, id := range ids {
		nodeID := int64(i)
		idToNode[id] = nodeID
		nodeToID[nodeID] = id
		g.AddNode(simple.Node(nodeID))
	}

	edges, err := s.store.ListRelatesTo(false)
	if err != nil {
		return nil, err
	}
	seen := make(map[[2]int64]bool)
	for _, e := range edges {
		fromNode, ok1 := idToNode[e.FromID]
		toNode, ok2 := idToNode[e.ToID]
		if !ok1 || !ok2 || fromNode == toNode {
			continue
		}
		key := edgeKey(fromNode, toNode)
		if seen[key] {
			continue
		}
		seen[key] = true
		g.SetEdge(simple.Edge{F: simple.Node(fromNode), T: simple.Node(toNode)})
	}

	betweenness := network.Betweenness(g)
	closeness := network.Closeness(g)

	rows := make([]CentralityRow, 0, len(ids))
	for _, id := range ids {
		nodeID := idToNode[id]
		rows = append(rows, CentralityRow{
			CharacterID: id,
			Degree:      degreeOf(g, nodeID),
			Betweenness: betweenness[nodeID],
			Closeness:   closeness[nodeID],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Betweenness != rows[j].Betweenness {
			return rows[i].Betweenness > rows[j].Betweenness
		}
		return rows[i].CharacterID < rows[j].CharacterID
	})
	return rows, nil
}

func edgeKey(a, b int64) [2]int64 {
	if a < b {
		return [2]int64{a, b}
	}
	return [2]int64{b, a}
}

func degreeOf(g graph.Undirected, nodeID int64) int {
	return g.From(nodeID).Len()
}
