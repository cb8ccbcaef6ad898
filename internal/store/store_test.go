package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCharacterUpsertGetListRoundTrip(t *testing.T) {
	s := newTestStore(t)

	c := &model.Character{ID: "character:alice", Name: "Alice", Aliases: []string{"Al"}, EmbeddingStale: true}
	require.NoError(t, s.UpsertCharacter(c))

	got, err := s.GetCharacter("character:alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, []string{"Al"}, got.Aliases)
	assert.False(t, got.CreatedAt.IsZero())

	stale, err := s.ListCharacters(true)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	got.EmbeddingStale = false
	require.NoError(t, s.UpsertCharacter(got))
	createdAt := got.CreatedAt

	again, err := s.GetCharacter("character:alice")
	require.NoError(t, err)
	assert.Equal(t, createdAt.Unix(), again.CreatedAt.Unix(), "CreatedAt must survive an update")

	none, err := s.ListCharacters(true)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetCharacterNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCharacter("character:ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, corerr.NotFound("", "")))
}

func TestDeleteCharacterEnforcesReferentialIntegrity(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:alice", Name: "Alice"}))
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:1", FromID: "character:alice", TargetID: "knowledge:secret",
		Certainty: model.CertaintyKnows,
	}))

	err := s.DeleteCharacter("character:alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, corerr.ReferentialIntegrity("", "")), "delete blocked while a knows edge references the character")

	require.NoError(t, s.DeleteKnows("knows:1"))
	require.NoError(t, s.DeleteCharacter("character:alice"))

	_, err = s.GetCharacter("character:alice")
	assert.True(t, errors.Is(err, corerr.NotFound("", "")))
}

func TestDeleteCharacterReferencedAsKnowsTarget(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:bram", Name: "Bram"}))
	require.NoError(t, s.UpsertCharacter(&model.Character{ID: "character:alice", Name: "Alice"}))
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:1", FromID: "character:alice", TargetID: "character:bram",
		Certainty: model.CertaintyKnows,
	}))

	err := s.DeleteCharacter("character:bram")
	require.Error(t, err)
	assert.True(t, errors.Is(err, corerr.ReferentialIntegrity("", "")))
}

func TestLocationUpsertRejectsMissingParent(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertLocation(&model.Location{ID: "location:keep", Name: "Keep", ParentID: "location:nowhere"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, corerr.Validation("")))
}

func TestLocationUpsertAcceptsExistingParent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertLocation(&model.Location{ID: "location:city", Name: "City"}))
	require.NoError(t, s.UpsertLocation(&model.Location{ID: "location:keep", Name: "Keep", ParentID: "location:city"}))

	got, err := s.GetLocation("location:keep")
	require.NoError(t, err)
	assert.Equal(t, "location:city", got.ParentID)
}

func TestEventAndSceneRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertEvent(&model.Event{ID: "event:1", Title: "The Fall", Sequence: 3}))
	require.NoError(t, s.UpsertScene(&model.Scene{
		ID: "scene:1", Title: "Opening", EventID: "event:1", Participants: []string{"character:alice"},
	}))

	ev, err := s.GetEvent("event:1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), ev.Sequence)

	sc, err := s.GetScene("scene:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"character:alice"}, sc.Participants)
}

func TestKnowledgeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertKnowledge(&model.Knowledge{ID: "knowledge:secret", CharacterID: "character:alice", Fact: "the crown is fake"}))

	k, err := s.GetKnowledge("knowledge:secret")
	require.NoError(t, err)
	assert.Equal(t, "the crown is fake", k.Fact)
}

func TestCreateKnowsValidatesBelievesWronglyNeedsTruthValue(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateKnows(&model.Knows{
		ID: "knows:1", FromID: "character:alice", TargetID: "knowledge:secret",
		Certainty: model.CertaintyBelievesWrongly,
	})
	require.Error(t, err)
}

func TestKnowsAboutTargetOrdersMostRecentFirstAndRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:1", FromID: "character:alice", TargetID: "knowledge:secret",
		Certainty: model.CertaintyKnows, LearnedAt: base,
	}))
	require.NoError(t, s.CreateKnows(&model.Knows{
		ID: "knows:2", FromID: "character:bram", TargetID: "knowledge:secret",
		Certainty: model.CertaintyKnows, LearnedAt: base.Add(time.Hour),
	}))

	all, err := s.KnowsAboutTarget("knowledge:secret", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "knows:2", all[0].ID, "most recent first")

	limited, err := s.KnowsAboutTarget("knowledge:secret", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "knows:2", limited[0].ID)
}

func TestUpsertRelatesToEnforcesUniqueTriple(t *testing.T) {
	s := newTestStore(t)
	r := &model.RelatesTo{ID: "rel:1", FromID: "character:alice", ToID: "character:bram", RelType: "ally"}
	require.NoError(t, s.UpsertRelatesTo(r))

	dup := &model.RelatesTo{ID: "rel:2", FromID: "character:alice", ToID: "character:bram", RelType: "ally"}
	err := s.UpsertRelatesTo(dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, corerr.Conflict("")))
}

func TestUniverseFactDefaultsToInformationalEnforcement(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertUniverseFact(&model.UniverseFact{ID: "fact:1", Title: "Magic exists"}))

	got, err := s.GetUniverseFact("fact:1")
	require.NoError(t, err)
	assert.Equal(t, model.EnforcementInformational, got.EnforcementLevel)
}

func TestAnnotationUpsertGetMarkStaleAndDelete(t *testing.T) {
	s := newTestStore(t)
	a := &model.Annotation{EntityID: "character:alice", ModelType: "emotion", ModelVersion: "v1", Output: `{"joy":0.9}`}
	require.NoError(t, s.UpsertAnnotation(a))

	got, err := s.GetAnnotation("character:alice", "emotion")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Stale)

	require.NoError(t, s.MarkAnnotationsStale("character:alice"))
	got, err = s.GetAnnotation("character:alice", "emotion")
	require.NoError(t, err)
	assert.True(t, got.Stale)

	require.NoError(t, s.DeleteAnnotationsForEntity("character:alice"))
	got, err = s.GetAnnotation("character:alice", "emotion")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnnotationGetMissingReturnsNilNotError(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetAnnotation("character:ghost", "emotion")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReplacePhasesSwapsEntireTable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ReplacePhases([]PhaseRecord{
		{ID: "phase:0", Index: 0, Label: "rising action", EntityIDs: []string{"scene:1", "scene:2"}},
		{ID: "phase:1", Index: 1, Label: "climax", EntityIDs: []string{"scene:3"}},
	}))

	got, err := s.ListPhases()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rising action", got[0].Label)
	assert.Equal(t, []string{"scene:1", "scene:2"}, got[0].EntityIDs)

	require.NoError(t, s.ReplacePhases([]PhaseRecord{
		{ID: "phase:0", Index: 0, Label: "only phase", EntityIDs: []string{"scene:1"}},
	}))
	got, err = s.ListPhases()
	require.NoError(t, err)
	require.Len(t, got, 1, "replace must clear prior phase records, not append")
}
