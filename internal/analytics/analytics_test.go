package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florinutz/narra-core/internal/arc"
	"github.com/florinutz/narra-core/internal/model"
	"github.com/florinutz/narra-core/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	return NewService(s, arc.NewService(s)), s
}

func seedCharacter(t *testing.T, s *store.Store, id, name string, emb model.Vector) {
	t.Helper()
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: id, Name: name, Embedding: emb}))
}

func TestPerceptionGapComputesCosineDistance(t *testing.T) {
	svc, s := newTestService(t)
	seedCharacter(t, s, "character:bram", "Bram Stoneheart", model.Vector{1, 0})
	require.NoError(t, s.UpsertPerceives(&model.Perceives{
		ID: "perceives:1", FromID: "character:alice", ToID: "character:bram",
		Embedding: model.Vector{0, 1},
	}))

	gap, err := svc.PerceptionGap("character:alice", "character:bram")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, gap.Similarity, 1e-9)
	assert.InDelta(t, 1.0, gap.Gap, 1e-9)
	assert.Equal(t, "extreme-divergence", gap.Assessment)
}

func TestPerceptionGapFlagsMissingEmbedding(t *testing.T) {
	svc, s := newTestService(t)
	seedCharacter(t, s, "character:bram", "Bram Stoneheart", nil)
	require.NoError(t, s.UpsertPerceives(&model.Perceives{
		ID: "perceives:1", FromID: "character:alice", ToID: "character:bram",
	}))

	gap, err := svc.PerceptionGap("character:alice", "character:bram")
	require.NoError(t, err)
	assert.True(t, gap.MissingEmbedding)
	assert.NotEmpty(t, gap.Hints)
}

func TestPerceptionGapNotFoundWhenNoEdge(t *testing.T) {
	svc, s := newTestService(t)
	seedCharacter(t, s, "character:bram", "Bram Stoneheart", model.Vector{1})

	_, err := svc.PerceptionGap("character:alice", "character:bram")
	assert.Error(t, err)
}

func TestPerceptionMatrixRanksClosestAndFurthestObservers(t *testing.T) {
	svc, s := newTestService(t)
	seedCharacter(t, s, "character:target", "Target", model.Vector{1, 0})
	require.NoError(t, s.UpsertPerceives(&model.Perceives{
		ID: "perceives:a", FromID: "character:alice", ToID: "character:target", Embedding: model.Vector{1, 0},
	}))
	require.NoError(t, s.UpsertPerceives(&model.Perceives{
		ID: "perceives:b", FromID: "character:bram", ToID: "character:target", Embedding: model.Vector{1, 0},
	}))
	require.NoError(t, s.UpsertPerceives(&model.Perceives{
		ID: "perceives:c", FromID: "character:cleo", ToID: "character:target", Embedding: model.Vector{0, 1},
	}))

	m, err := svc.PerceptionMatrix("character:target")
	require.NoError(t, err)
	require.Len(t, m.Observers, 3)

	byID := make(map[string]ObserverGap, 3)
	for _, o := range m.Observers {
		byID[o.ObserverID] = o
	}
	assert.Equal(t, "character:bram", byID["character:alice"].ClosestObserverID)
}

func TestPerceptionMatrixEmptyWhenNoObservers(t *testing.T) {
	svc, s := newTestService(t)
	seedCharacter(t, s, "character:target", "Target", model.Vector{1})

	m, err := svc.PerceptionMatrix("character:target")
	require.NoError(t, err)
	assert.Empty(t, m.Observers)
	assert.NotEmpty(t, m.Hints)
}

func TestPerceptionShiftClassifiesConvergingTrajectory(t *testing.T) {
	svc, s := newTestService(t)
	seedCharacter(t, s, "character:target", "Target", nil)
	base := time.Now().UTC()

	require.NoError(t, s.AppendArcSnapshot(&model.ArcSnapshot{
		ID: "snap:1", EntityID: "perceives:1", EntityType: "perspective",
		Embedding: model.Vector{0, 1}, EventID: "event:1", CreatedAt: base,
	}))
	require.NoError(t, s.AppendArcSnapshot(&model.ArcSnapshot{
		ID: "snap:2", EntityID: "perceives:1", EntityType: "perspective",
		Embedding: model.Vector{1, 0}, EventID: "event:2", CreatedAt: base.Add(time.Hour),
	}))
	require.NoError(t, s.AppendArcSnapshot(&model.ArcSnapshot{
		ID: "snap:target:1", EntityID: "character:target", EntityType: "character",
		Embedding: model.Vector{1, 0}, EventID: "event:1", CreatedAt: base,
	}))
	require.NoError(t, s.AppendArcSnapshot(&model.ArcSnapshot{
		ID: "snap:target:2", EntityID: "character:target", EntityType: "character",
		Embedding: model.Vector{1, 0}, EventID: "event:2", CreatedAt: base.Add(time.Hour),
	}))

	shift, err := svc.PerceptionShift("perceives:1", "character:target")
	require.NoError(t, err)
	require.Len(t, shift.Steps, 2)
	assert.Equal(t, "converging", shift.Trajectory)
}

func TestInfluencePropagationBFSRespectsDepthAndLabelsPathStrength(t *testing.T) {
	svc, s := newTestService(t)
	require.NoError(t, s.UpsertRelatesTo(&model.RelatesTo{ID: "r1", FromID: "character:alice", ToID: "character:bram", RelType: "family"}))
	require.NoError(t, s.UpsertRelatesTo(&model.RelatesTo{ID: "r2", FromID: "character:bram", ToID: "character:cleo", RelType: "friend"}))
	require.NoError(t, s.UpsertRelatesTo(&model.RelatesTo{ID: "r3", FromID: "character:cleo", ToID: "character:dorian", RelType: "rival"}))

	result, err := svc.InfluencePropagation("character:alice", 2)
	require.NoError(t, err)
	require.Len(t, result.Reached, 2)

	byID := make(map[string]InfluenceNode, 2)
	for _, n := range result.Reached {
		byID[n.CharacterID] = n
	}
	assert.Equal(t, "strong", byID["character:bram"].PathStrength)
	assert.Equal(t, 1, byID["character:bram"].Depth)
	assert.Equal(t, 2, byID["character:cleo"].Depth)
	_, reachedDorian := byID["character:dorian"]
	assert.False(t, reachedDorian, "depth cutoff should stop BFS before reaching dorian")
}

func TestInfluencePropagationHintsWhenRootIsolated(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.InfluencePropagation("character:lonely", 3)
	require.NoError(t, err)
	assert.Empty(t, result.Reached)
	assert.NotEmpty(t, result.Hints)
}

func TestIronyAsymmetryFlagsOneSidedKnowledge(t *testing.T) {
	svc, s := newTestService(t)
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:a", FromID: "character:alice", TargetID: "knowledge:secret", Certainty: model.CertaintyKnows,
	}))
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:b", FromID: "character:bram", TargetID: "knowledge:secret", Certainty: model.CertaintyBelievesWrongly,
		TruthValue: "false",
	}))

	result, err := svc.IronyAsymmetry("character:alice", "character:bram")
	require.NoError(t, err)
	require.Len(t, result.Asymmetries, 1)
	assert.Equal(t, "knowledge:secret", result.Asymmetries[0].TargetID)
	assert.Equal(t, model.CertaintyKnows, result.Asymmetries[0].ACertainty)
	assert.Greater(t, result.Asymmetries[0].DramaticWeight, 0.0)
}

func TestIronyAsymmetryNoneWhenCharactersAgree(t *testing.T) {
	svc, s := newTestService(t)
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:a", FromID: "character:alice", TargetID: "knowledge:secret", Certainty: model.CertaintyKnows,
	}))
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:b", FromID: "character:bram", TargetID: "knowledge:secret", Certainty: model.CertaintyKnows,
	}))

	result, err := svc.IronyAsymmetry("character:alice", "character:bram")
	require.NoError(t, err)
	assert.Empty(t, result.Asymmetries)
	assert.NotEmpty(t, result.Hints)
}

func TestCentralityRanksHubAboveLeaves(t *testing.T) {
	svc, s := newTestService(t)
	seedCharacter(t, s, "character:hub", "Hub", nil)
	seedCharacter(t, s, "character:leaf1", "Leaf1", nil)
	seedCharacter(t, s, "character:leaf2", "Leaf2", nil)
	seedCharacter(t, s, "character:leaf3", "Leaf3", nil)

	require.NoError(t, s.UpsertRelatesTo(&model.RelatesTo{ID: "r1", FromID: "character:hub", ToID: "character:leaf1", RelType: "friend"}))
	require.NoError(t, s.UpsertRelatesTo(&model.RelatesTo{ID: "r2", FromID: "character:hub", ToID: "character:leaf2", RelType: "friend"}))
	require.NoError(t, s.UpsertRelatesTo(&model.RelatesTo{ID: "r3", FromID: "character:hub", ToID: "character:leaf3", RelType: "friend"}))

	rows, err := svc.Centrality()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	byID := make(map[string]CentralityRow, 4)
	for _, r := range rows {
		byID[r.CharacterID] = r
	}
	assert.Equal(t, 3, byID["character:hub"].Degree)
	assert.Equal(t, 1, byID["character:leaf1"].Degree)
	assert.Equal(t, "character:hub", rows[0].CharacterID, "hub should rank first by betweenness")
}

func TestArcWrappersDelegateToArcService(t *testing.T) {
	svc, s := newTestService(t)
	require.NoError(t, s.AppendArcSnapshot(&model.ArcSnapshot{
		ID: "snap:1", EntityID: "character:alice", EntityType: "character",
		Embedding: model.Vector{1}, CreatedAt: time.Now().UTC(),
	}))

	history, err := svc.ArcHistory("character:alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)

	moment, err := svc.ArcMoment("character:alice", "")
	require.NoError(t, err)
	require.NotNil(t, moment)
	assert.Equal(t, "snap:1", moment.ID)

	ranking, err := svc.ArcDriftRanking("character", 10)
	require.NoError(t, err)
	assert.NotNil(t, ranking)

	cmp, err := svc.ArcCompare("character:alice", "character:bram", 0)
	require.NoError(t, err)
	assert.True(t, cmp.InsufficientHistory)
}
