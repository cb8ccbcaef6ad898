package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florinutz/narra-core/internal/model"
)

func TestDetectPhasesSkipsWithFewerThanTwoInputs(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.DetectPhases([]PhaseInput{{ID: "scene:1"}}, 0, DefaultPhaseWeights(), false)
	require.NoError(t, err)
	assert.Empty(t, result.Phases)
	assert.NotEmpty(t, result.Hints)
}

func TestDetectPhasesSeparatesDistinctClusters(t *testing.T) {
	svc, _ := newTestService(t)

	inputs := []PhaseInput{
		{ID: "scene:1", Embedding: model.Vector{1, 0}, Sequence: 1},
		{ID: "scene:2", Embedding: model.Vector{1, 0}, Sequence: 2},
		{ID: "scene:3", Embedding: model.Vector{0, 1}, Sequence: 100},
		{ID: "scene:4", Embedding: model.Vector{0, 1}, Sequence: 101},
	}

	result, err := svc.DetectPhases(inputs, 2, DefaultPhaseWeights(), false)
	require.NoError(t, err)
	require.Len(t, result.Phases, 2)
	assert.Equal(t, 2, result.K)

	var sceneToPhase = make(map[string]int)
	for _, p := range result.Phases {
		for _, id := range p.EntityIDs {
			sceneToPhase[id] = p.Index
		}
	}
	assert.Equal(t, sceneToPhase["scene:1"], sceneToPhase["scene:2"])
	assert.Equal(t, sceneToPhase["scene:3"], sceneToPhase["scene:4"])
	assert.NotEqual(t, sceneToPhase["scene:1"], sceneToPhase["scene:3"])
}

func TestDetectPhasesPersistsToStoreWhenRequested(t *testing.T) {
	svc, s := newTestService(t)

	inputs := []PhaseInput{
		{ID: "scene:1", Embedding: model.Vector{1, 0}, Sequence: 1},
		{ID: "scene:2", Embedding: model.Vector{0, 1}, Sequence: 2},
	}

	_, err := svc.DetectPhases(inputs, 2, DefaultPhaseWeights(), true)
	require.NoError(t, err)

	persisted, err := s.ListPhases()
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

func TestDetectPhasesAutoSelectsKWhenUnset(t *testing.T) {
	svc, _ := newTestService(t)

	inputs := []PhaseInput{
		{ID: "scene:1", Embedding: model.Vector{1, 0, 0}, Sequence: 1},
		{ID: "scene:2", Embedding: model.Vector{1, 0, 0}, Sequence: 2},
		{ID: "scene:3", Embedding: model.Vector{0, 1, 0}, Sequence: 50},
		{ID: "scene:4", Embedding: model.Vector{0, 1, 0}, Sequence: 51},
		{ID: "scene:5", Embedding: model.Vector{0, 0, 1}, Sequence: 100},
		{ID: "scene:6", Embedding: model.Vector{0, 0, 1}, Sequence: 101},
	}

	result, err := svc.DetectPhases(inputs, 0, DefaultPhaseWeights(), false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.K, 2)
	assert.LessOrEqual(t, result.K, 8)
}
