package orchestrate

import (
	"github.com/florinutz/narra-core/internal/analytics"
	"github.com/florinutz/narra-core/internal/model"
)

// dispatchPhases builds one analytics.PhaseInput per non-stale scene
// (embedding as the content vector, shared participants as the
// scene-neighbour set, the scene's event sequence as the ordering
// term) and runs phase detection over them, persisting the result.
func (c *Coordinator) dispatchPhases(req QueryRequest) (*analytics.PhaseDetectionResult, error) {
	scenes, err := c.store.ListScenes(false)
	if err != nil {
		return nil, err
	}

	var inputs []analytics.PhaseInput
	for _, sc := range scenes {
		if len(sc.Embedding) == 0 {
			continue
		}
		neighbours := make(map[string]bool, len(sc.Participants))
		for _, p := range sc.Participants {
			neighbours[p] = true
		}
		var sequence int64
		if sc.EventID != "" {
			if ev, err := c.store.GetEvent(sc.EventID); err == nil && ev != nil {
				sequence = ev.Sequence
			}
		}
		inputs = append(inputs, analytics.PhaseInput{
			ID:              sc.ID,
			Embedding:       model.Vector(sc.Embedding),
			SceneNeighbours: neighbours,
			Sequence:        sequence,
		})
	}

	return c.analytics.DetectPhases(inputs, req.PhaseK, analytics.DefaultPhaseWeights(), true)
}
