package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florinutz/narra-core/internal/model"
)

func TestNarrativeTensionDetectsOpposingDesires(t *testing.T) {
	svc, s := newTestService(t)
	require.NoError(t, s.UpsertCharacter(&model.Character{
		ID: "character:alice", Name: "Alice",
		Profile: map[string][]string{"goals": {"seeks freedom above all"}},
	}))
	require.NoError(t, s.UpsertCharacter(&model.Character{
		ID: "character:bram", Name: "Bram",
		Profile: map[string][]string{"goals": {"craves control over others"}},
	}))

	result, err := svc.NarrativeTension("character:alice", "character:bram")
	require.NoError(t, err)
	require.NotEmpty(t, result.Signals)
	assert.Equal(t, "opposing_desires", result.Signals[0].Type)
	assert.Greater(t, result.Severity, 0.0)
}

func TestNarrativeTensionDetectsContradictoryKnowledge(t *testing.T) {
	svc, s := newTestService(t)
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:alice", Name: "Alice"}))
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:bram", Name: "Bram"}))
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:a", FromID: "character:alice", TargetID: "knowledge:secret", Certainty: model.CertaintyKnows,
	}))
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:b", FromID: "character:bram", TargetID: "knowledge:secret", Certainty: model.CertaintyBelievesWrongly,
		TruthValue: "false",
	}))

	result, err := svc.NarrativeTension("character:alice", "character:bram")
	require.NoError(t, err)
	assert.Equal(t, "contradictory_knowledge", result.DominantSignal)
}

func TestNarrativeTensionDetectsConflictingLoyalties(t *testing.T) {
	svc, s := newTestService(t)
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:alice", Name: "Alice"}))
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:bram", Name: "Bram"}))
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:dorian", Name: "Dorian"}))
	require.NoError(t, s.UpsertRelatesTo(&model.RelatesTo{ID: "r1", FromID: "character:alice", ToID: "character:dorian", RelType: "ally"}))
	require.NoError(t, s.UpsertRelatesTo(&model.RelatesTo{ID: "r2", FromID: "character:bram", ToID: "character:dorian", RelType: "rival"}))

	result, err := svc.NarrativeTension("character:alice", "character:bram")
	require.NoError(t, err)
	var found bool
	for _, sig := range result.Signals {
		if sig.Type == "conflicting_loyalties" {
			found = true
			assert.Equal(t, "character:dorian", sig.Detail)
		}
	}
	assert.True(t, found)
}

func TestNarrativeTensionDetectsEdgeTension(t *testing.T) {
	svc, s := newTestService(t)
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:alice", Name: "Alice"}))
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:bram", Name: "Bram"}))
	require.NoError(t, s.UpsertPerceives(&model.Perceives{
		ID: "perceives:1", FromID: "character:alice", ToID: "character:bram", TensionLevel: 8,
	}))

	result, err := svc.NarrativeTension("character:alice", "character:bram")
	require.NoError(t, err)
	var found bool
	for _, sig := range result.Signals {
		if sig.Type == "edge_tension" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestNarrativeTensionHintsWhenNoSignals(t *testing.T) {
	svc, s := newTestService(t)
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:alice", Name: "Alice"}))
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:bram", Name: "Bram"}))

	result, err := svc.NarrativeTension("character:alice", "character:bram")
	require.NoError(t, err)
	assert.Empty(t, result.Signals)
	assert.Equal(t, 0.0, result.Severity)
	assert.NotEmpty(t, result.Hints)
}
