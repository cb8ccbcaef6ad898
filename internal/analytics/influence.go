package analytics

import "sort"

// InfluenceNode is one character reached by a BFS fan-out from a
// root character over the relates_to graph.
type InfluenceNode struct {
	CharacterID  string
	Depth        int
	Path         []string // character ids, root to this node inclusive
	PathStrength string   // strong | moderate | adversarial
}

type InfluenceResult struct {
	RootID  string
	Reached []InfluenceNode
	Hints   []string
}

// InfluencePropagation runs a breadth-first search over relates_to
// edges (as a directed from_id -> to_id graph), stopping at maxDepth.
func (s *Service) InfluencePropagation(rootID string, maxDepth int) (*InfluenceResult, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	edges, err := s.store.ListRelatesTo(false)
	if err != nil {
		return nil, err
	}
	adjacency := make(map[string][]*relEdge)
	for _, e := range edges {
		adjacency[e.FromID] = append(adjacency[e.FromID], &relEdge{toID: e.ToID, relType: e.RelType})
	}
	for _, list := range adjacency {
		sort.Slice(list, func(i, j int) bool { return list[i].toID < list[j].toID })
	}

	result := &InfluenceResult{RootID: rootID}
	visited := map[string]bool{rootID: true}
	type frontierEntry struct {
		id    string
		path  []string
		types []string
	}
	frontier := []frontierEntry{{id: rootID, path: []string{rootID}}}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []frontierEntry
		for _, f := range frontier {
			for _, edge := range adjacency[f.id] {
				if visited[edge.toID] {
					continue
				}
				visited[edge.toID] = true
				path := append(append([]string{}, f.path...), edge.toID)
				types := append(append([]string{}, f.types...), edge.relType)
				result.Reached = append(result.Reached, InfluenceNode{
					CharacterID:  edge.toID,
					Depth:        depth,
					Path:         path,
					PathStrength: pathStrengthFor(types),
				})
				next = append(next, frontierEntry{id: edge.toID, path: path, types: types})
			}
		}
		frontier = next
	}

	sort.Slice(result.Reached, func(i, j int) bool {
		if result.Reached[i].Depth != result.Reached[j].Depth {
			return result.Reached[i].Depth < result.Reached[j].Depth
		}
		return result.Reached[i].CharacterID < result.Reached[j].CharacterID
	})
	if len(result.Reached) == 0 {
		result.Hints = append(result.Hints, "root has no outgoing relates_to edges within depth")
	}
	return result, nil
}

type relEdge struct {
	toID    string
	relType string
}

// pathStrengthFor labels a path by the strongest relationship type it
// passes through: any family tie anywhere reads as strong influence,
// any rival/enemy tie reads as adversarial, otherwise moderate.
func pathStrengthFor(types []string) string {
	adversarial := false
	for _, t := range types {
		switch t {
		case "family":
			return "strong"
		case "rival", "enemy":
			adversarial = true
		}
	}
	if adversarial {
		return "adversarial"
	}
	return "moderate"
}
