package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/florinutz/narra-core/internal/model"
	"github.com/florinutz/narra-core/internal/store"
	"github.com/florinutz/narra-core/internal/vecmath"
)

// PhaseInput is one embedded entity fed into phase detection: its
// composite embedding, the set of scenes it touches (for the
// jaccard-neighbour term), and its sequence position.
type PhaseInput struct {
	ID              string
	Embedding       model.Vector
	SceneNeighbours map[string]bool
	Sequence        int64
}

// PhaseWeights tunes the composite narrative distance: content
// (1-cosine), scene-neighbour (1-jaccard), and normalised sequence
// gap.
type PhaseWeights struct {
	Content   float64
	Neighbour float64
	Sequence  float64
}

func DefaultPhaseWeights() PhaseWeights {
	return PhaseWeights{Content: 0.6, Neighbour: 0.25, Sequence: 0.15}
}

type PhaseDetectionResult struct {
	Phases []store.PhaseRecord
	K      int
	Hints  []string
}

// DetectPhases clusters inputs by composite narrative distance. k<=0
// auto-selects a cluster count in [2,8] maximising a silhouette-style
// separation score. When persist is true, the result atomically
// replaces the store's phase table.
func (s *Service) DetectPhases(inputs []PhaseInput, k int, weights PhaseWeights, persist bool) (*PhaseDetectionResult, error) {
	if len(inputs) < 2 {
		return &PhaseDetectionResult{Hints: []string{"fewer than two entities; phase detection skipped"}}, nil
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].ID < inputs[j].ID })

	dist := buildDistanceMatrix(inputs, weights)

	maxK := len(inputs) - 1
	if maxK > 8 {
		maxK = 8
	}
	minK := 2
	if maxK < minK {
		maxK = minK
	}

	var bestAssignment []int
	bestK := minK
	bestScore := -2.0

	candidates := []int{k}
	if k <= 0 {
		candidates = candidates[:0]
		for cand := minK; cand <= maxK; cand++ {
			candidates = append(candidates, cand)
		}
	}

	for _, cand := range candidates {
		if cand < 1 || cand > len(inputs) {
			continue
		}
		assignment := kMedoidsCluster(dist, cand)
		score := silhouetteScore(dist, assignment, cand)
		if score > bestScore {
			bestScore = score
			bestAssignment = assignment
			bestK = cand
		}
	}
	if bestAssignment == nil {
		bestAssignment = make([]int, len(inputs))
	}

	clusters := make(map[int][]string)
	for i, input := range inputs {
		c := bestAssignment[i]
		clusters[c] = append(clusters[c], input.ID)
	}

	clusterIdx := make([]int, 0, len(clusters))
	for c := range clusters {
		clusterIdx = append(clusterIdx, c)
	}
	sort.Ints(clusterIdx)

	result := &PhaseDetectionResult{K: bestK}
	now := time.Now().UTC()
	for i, c := range clusterIdx {
		entityIDs := clusters[c]
		sort.Strings(entityIDs)
		result.Phases = append(result.Phases, store.PhaseRecord{
			ID:        fmt.Sprintf("phase:%d", i),
			Index:     i,
			Label:     fmt.Sprintf("phase-%d", i+1),
			EntityIDs: entityIDs,
			CreatedAt: now,
		})
	}

	if persist {
		if err := s.store.ReplacePhases(result.Phases); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func buildDistanceMatrix(inputs []PhaseInput, w PhaseWeights) [][]float64 {
	n := len(inputs)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}

	maxSeqGap := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			gap := float64(inputs[i].Sequence - inputs[j].Sequence)
			if gap < 0 {
				gap = -gap
			}
			if gap > maxSeqGap {
				maxSeqGap = gap
			}
		}
	}
	if maxSeqGap == 0 {
		maxSeqGap = 1
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			content := 1 - vecmath.Cosine(inputs[i].Embedding, inputs[j].Embedding)
			neighbour := 1 - jaccard(inputs[i].SceneNeighbours, inputs[j].SceneNeighbours)
			seqGap := float64(inputs[i].Sequence - inputs[j].Sequence)
			if seqGap < 0 {
				seqGap = -seqGap
			}
			d := w.Content*content + w.Neighbour*neighbour + w.Sequence*(seqGap/maxSeqGap)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	union := make(map[string]bool, len(a)+len(b))
	inter := 0
	for k := range a {
		union[k] = true
		if b[k] {
			inter++
		}
	}
	for k := range b {
		union[k] = true
	}
	if len(union) == 0 {
		return 1
	}
	return float64(inter) / float64(len(union))
}

// kMedoidsCluster is a small partitioning-around-medoids loop: seed
// medoids by farthest-point sampling, assign each point to its
// nearest medoid, then re-pick each cluster's medoid as the point
// minimising total in-cluster distance, repeating until stable or a
// fixed iteration cap.
func kMedoidsCluster(dist [][]float64, k int) []int {
	n := len(dist)
	if k >= n {
		assignment := make([]int, n)
		for i := range assignment {
			assignment[i] = i
		}
		return assignment
	}

	medoids := farthestPointSeed(dist, k)
	assignment := make([]int, n)

	for iter := 0; iter < 25; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			best, bestDist := 0, -1.0
			for ci, m := range medoids {
				d := dist[i][m]
				if bestDist < 0 || d < bestDist {
					bestDist, best = d, ci
				}
			}
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}

		newMedoids := make([]int, k)
		for ci := range medoids {
			members := clusterMembers(assignment, ci)
			newMedoids[ci] = bestMedoid(dist, members)
		}
		for ci := range medoids {
			if medoids[ci] != newMedoids[ci] {
				changed = true
			}
		}
		medoids = newMedoids
		if !changed {
			break
		}
	}
	return assignment
}

func farthestPointSeed(dist [][]float64, k int) []int {
	n := len(dist)
	medoids := []int{0}
	for len(medoids) < k {
		best, bestMinDist := -1, -1.0
		for i := 0; i < n; i++ {
			minDist := -1.0
			for _, m := range medoids {
				if minDist < 0 || dist[i][m] < minDist {
					minDist = dist[i][m]
				}
			}
			if minDist > bestMinDist {
				bestMinDist, best = minDist, i
			}
		}
		medoids = append(medoids, best)
	}
	return medoids
}

func clusterMembers(assignment []int, cluster int) []int {
	var out []int
	for i, c := range assignment {
		if c == cluster {
			out = append(out, i)
		}
	}
	return out
}

func bestMedoid(dist [][]float64, members []int) int {
	if len(members) == 0 {
		return 0
	}
	best, bestCost := members[0], -1.0
	for _, candidate := range members {
		cost := 0.0
		for _, other := range members {
			cost += dist[candidate][other]
		}
		if bestCost < 0 || cost < bestCost {
			bestCost, best = cost, candidate
		}
	}
	return best
}

// silhouetteScore averages (b-a)/max(a,b) over every point, where a
// is its mean in-cluster distance and b its mean distance to the
// nearest other cluster. Singleton clusters contribute a neutral 0.
func silhouetteScore(dist [][]float64, assignment []int, k int) float64 {
	n := len(dist)
	if k <= 1 || k >= n {
		return -1
	}
	var total float64
	for i := 0; i < n; i++ {
		own := assignment[i]
		var aSum float64
		aCount := 0
		clusterSums := make(map[int]float64)
		clusterCounts := make(map[int]int)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if assignment[j] == own {
				aSum += dist[i][j]
				aCount++
			} else {
				clusterSums[assignment[j]] += dist[i][j]
				clusterCounts[assignment[j]]++
			}
		}
		if aCount == 0 {
			continue
		}
		a := aSum / float64(aCount)
		b := -1.0
		for c, sum := range clusterSums {
			mean := sum / float64(clusterCounts[c])
			if b < 0 || mean < b {
				b = mean
			}
		}
		if b < 0 {
			continue
		}
		denom := a
		if b > denom {
			denom = b
		}
		if denom == 0 {
			continue
		}
		total += (b - a) / denom
	}
	return total / float64(n)
}
