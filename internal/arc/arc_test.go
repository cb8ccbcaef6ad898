package arc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func appendSnapshot(t *testing.T, s *store.Store, id, entityID, entityType string, emb model.Vector, delta *float64, at time.Time) {
	t.Helper()
	require.NoError(t, s.AppendArcSnapshot(&model.ArcSnapshot{
		ID: id, EntityID: entityID, EntityType: entityType,
		Embedding: emb, DeltaMagnitude: delta, CreatedAt: at,
	}))
}

func floatPtr(f float64) *float64 { return &f }

func TestHistoryAccumulatesCumulativeDrift(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s)
	base := time.Now().UTC()

	appendSnapshot(t, s, "snap:1", "character:alice", "character", model.Vector{1, 0}, nil, base)
	appendSnapshot(t, s, "snap:2", "character:alice", "character", model.Vector{0, 1}, floatPtr(0.3), base.Add(time.Hour))
	appendSnapshot(t, s, "snap:3", "character:alice", "character", model.Vector{0, 1}, floatPtr(0.2), base.Add(2*time.Hour))

	steps, err := svc.History("character:alice", 0)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Nil(t, steps[0].Delta)
	assert.Equal(t, 0.0, steps[0].CumulativeSum)
	assert.InDelta(t, 0.3, steps[1].CumulativeSum, 1e-9)
	assert.InDelta(t, 0.5, steps[2].CumulativeSum, 1e-9)
}

func TestCompareReportsInsufficientHistoryWhenOneSideEmpty(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s)
	appendSnapshot(t, s, "snap:1", "character:alice", "character", model.Vector{1, 0}, nil, time.Now().UTC())

	cmp, err := svc.Compare("character:alice", "character:bram", 0)
	require.NoError(t, err)
	assert.True(t, cmp.InsufficientHistory)
}

func TestCompareComputesSimilaritiesAndConvergence(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s)
	base := time.Now().UTC()

	appendSnapshot(t, s, "a1", "character:alice", "character", model.Vector{1, 0}, nil, base)
	appendSnapshot(t, s, "a2", "character:alice", "character", model.Vector{0, 1}, floatPtr(1), base.Add(time.Hour))
	appendSnapshot(t, s, "b1", "character:bram", "character", model.Vector{0, 1}, nil, base)
	appendSnapshot(t, s, "b2", "character:bram", "character", model.Vector{0, 1}, floatPtr(0), base.Add(time.Hour))

	cmp, err := svc.Compare("character:alice", "character:bram", 0)
	require.NoError(t, err)
	assert.False(t, cmp.InsufficientHistory)
	assert.InDelta(t, 0.0, cmp.InitialSimilarity, 1e-9)
	assert.InDelta(t, 1.0, cmp.CurrentSimilarity, 1e-9)
	assert.InDelta(t, 1.0, cmp.ConvergenceDelta, 1e-9)
}

func TestDriftRankingSumsPerEntityDescending(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s)
	base := time.Now().UTC()

	appendSnapshot(t, s, "a1", "character:alice", "character", model.Vector{1}, floatPtr(0.5), base)
	appendSnapshot(t, s, "a2", "character:alice", "character", model.Vector{1}, floatPtr(0.5), base.Add(time.Hour))
	appendSnapshot(t, s, "b1", "character:bram", "character", model.Vector{1}, floatPtr(0.1), base)

	rows, err := svc.DriftRanking("character", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "character:alice", rows[0].EntityID)
	assert.InDelta(t, 1.0, rows[0].Drift, 1e-9)
	assert.Equal(t, "character:bram", rows[1].EntityID)
}

func TestMomentPrefersExactEventMatchThenFallsBackToLatest(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s)
	base := time.Now().UTC()

	require.NoError(t, s.AppendArcSnapshot(&model.ArcSnapshot{
		ID: "s1", EntityID: "character:alice", EntityType: "character",
		Embedding: model.Vector{1}, EventID: "event:intro", CreatedAt: base,
	}))
	require.NoError(t, s.AppendArcSnapshot(&model.ArcSnapshot{
		ID: "s2", EntityID: "character:alice", EntityType: "character",
		Embedding: model.Vector{2}, EventID: "event:climax", CreatedAt: base.Add(time.Hour),
	}))

	byEvent, err := svc.Moment("character:alice", "event:intro")
	require.NoError(t, err)
	assert.Equal(t, "s1", byEvent.ID)

	latest, err := svc.Moment("character:alice", "")
	require.NoError(t, err)
	assert.Equal(t, "s2", latest.ID)
}
