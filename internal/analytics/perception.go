package analytics

import (
	"sort"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/vecmath"
)

// PerceptionGap is `1 - cosine(observer's perceives-embedding about
// target, target's character-embedding)`.
type PerceptionGap struct {
	ObserverID       string
	TargetID         string
	Similarity       float64
	Gap              float64
	Assessment       string // aligned | mild-dissonance | significant-gap | extreme-divergence
	Feelings         string
	Perception       string
	MissingEmbedding bool
	Hints            []string
}

func assessmentFor(gap float64) string {
	switch {
	case gap < 0.1:
		return "aligned"
	case gap < 0.25:
		return "mild-dissonance"
	case gap < 0.5:
		return "significant-gap"
	default:
		return "extreme-divergence"
	}
}

// PerceptionGap computes the gap for the perceives edge observerID ->
// targetID.
func (s *Service) PerceptionGap(observerID, targetID string) (*PerceptionGap, error) {
	p, err := s.store.PerceivesBetween(observerID, targetID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, corerr.NotFound(observerID, "no perceives edge from %s to %s", observerID, targetID)
	}
	target, err := s.store.GetCharacter(targetID)
	if err != nil {
		return nil, err
	}

	g := &PerceptionGap{
		ObserverID: observerID,
		TargetID:   targetID,
		Feelings:   p.Feelings,
		Perception: p.Perception,
	}
	if len(p.Embedding) == 0 || len(target.Embedding) == 0 {
		g.MissingEmbedding = true
		g.Hints = append(g.Hints, "gap is zero: an embedding is missing")
		return g, nil
	}
	g.Similarity = vecmath.Cosine(p.Embedding, target.Embedding)
	g.Gap = 1 - g.Similarity
	g.Assessment = assessmentFor(g.Gap)
	return g, nil
}

// ObserverGap is one observer's row in a PerceptionMatrix.
type ObserverGap struct {
	ObserverID          string
	Gap                 PerceptionGap
	ClosestObserverID   string
	FurthestObserverID  string
}

// PerceptionMatrix computes every observer's gap toward target, plus
// pairwise observer agreement (cosine of their perceives-embeddings)
// used to label each observer's closest and furthest counterpart.
type PerceptionMatrix struct {
	TargetID  string
	Observers []ObserverGap
	Hints     []string
}

func (s *Service) PerceptionMatrix(targetID string) (*PerceptionMatrix, error) {
	edges, err := s.store.PerceivesOfTarget(targetID)
	if err != nil {
		return nil, err
	}
	m := &PerceptionMatrix{TargetID: targetID}
	if len(edges) == 0 {
		m.Hints = append(m.Hints, "no observers perceive this target")
		return m, nil
	}

	gaps := make(map[string]PerceptionGap, len(edges))
	order := make([]string, 0, len(edges))
	for _, e := range edges {
		g, err := s.PerceptionGap(e.FromID, targetID)
		if err != nil {
			return nil, err
		}
		gaps[e.FromID] = *g
		order = append(order, e.FromID)
	}
	sort.Strings(order)

	for _, observerID := range order {
		row := ObserverGap{ObserverID: observerID, Gap: gaps[observerID]}
		var bestSim, worstSim float64
		bestSet, worstSet := false, false
		for _, other := range order {
			if other == observerID {
				continue
			}
			sim := pairwiseObserverAgreement(s, observerID, other, targetID)
			if !bestSet || sim > bestSim {
				bestSim, bestSet = sim, true
				row.ClosestObserverID = other
			}
			if !worstSet || sim < worstSim {
				worstSim, worstSet = sim, true
				row.FurthestObserverID = other
			}
		}
		m.Observers = append(m.Observers, row)
	}
	return m, nil
}

func pairwiseObserverAgreement(s *Service, a, b, targetID string) float64 {
	pa, err := s.store.PerceivesBetween(a, targetID)
	if err != nil || pa == nil {
		return 0
	}
	pb, err := s.store.PerceivesBetween(b, targetID)
	if err != nil || pb == nil {
		return 0
	}
	if len(pa.Embedding) == 0 || len(pb.Embedding) == 0 {
		return 0
	}
	return vecmath.Cosine(pa.Embedding, pb.Embedding)
}

// ShiftStep is one arc_snapshot entry on a perceives edge, re-keyed
// against the target character's embedding as of the same event.
type ShiftStep struct {
	Delta     *float64
	Gap       float64
	EventID   string
	Timestamp string
}

// PerceptionShift tracks how a perceives edge's gap against its
// target evolved over the edge's own arc history.
type PerceptionShift struct {
	PerceivesID string
	TargetID    string
	Steps       []ShiftStep
	Trajectory  string // converging | diverging | stable | oscillating
	Hints       []string
}

func (s *Service) PerceptionShift(perceivesID, targetID string) (*PerceptionShift, error) {
	history, err := s.store.ArcHistory(perceivesID, 0)
	if err != nil {
		return nil, err
	}
	result := &PerceptionShift{PerceivesID: perceivesID, TargetID: targetID}
	if len(history) == 0 {
		result.Hints = append(result.Hints, "no arc history for this perceives edge yet")
		result.Trajectory = "stable"
		return result, nil
	}

	gaps := make([]float64, 0, len(history))
	for _, snap := range history {
		targetSnap, err := s.store.ArcMoment(targetID, snap.EventID)
		if err != nil {
			return nil, err
		}
		var gap float64
		if targetSnap != nil && len(targetSnap.Embedding) > 0 && len(snap.Embedding) > 0 {
			gap = 1 - vecmath.Cosine(snap.Embedding, targetSnap.Embedding)
		}
		gaps = append(gaps, gap)
		result.Steps = append(result.Steps, ShiftStep{
			Delta:     snap.DeltaMagnitude,
			Gap:       gap,
			EventID:   snap.EventID,
			Timestamp: snap.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	result.Trajectory = trajectoryLabel(gaps)
	return result, nil
}

// trajectoryLabel classifies a sequence of per-snapshot gaps. A
// majority of alternating-sign steps reads as oscillating; otherwise
// the net first-to-last direction decides converging/diverging,
// falling back to stable when the net change is negligible.
func trajectoryLabel(gaps []float64) string {
	if len(gaps) < 2 {
		return "stable"
	}
	signChanges := 0
	var lastSign int
	for i := 1; i < len(gaps); i++ {
		d := gaps[i] - gaps[i-1]
		sign := 0
		switch {
		case d > 1e-9:
			sign = 1
		case d < -1e-9:
			sign = -1
		}
		if sign != 0 && lastSign != 0 && sign != lastSign {
			signChanges++
		}
		if sign != 0 {
			lastSign = sign
		}
	}
	if signChanges >= len(gaps)/2 {
		return "oscillating"
	}
	net := gaps[len(gaps)-1] - gaps[0]
	switch {
	case net < -0.02:
		return "converging"
	case net > 0.02:
		return "diverging"
	default:
		return "stable"
	}
}
