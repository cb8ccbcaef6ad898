package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florinutz/narra-core/internal/embedprovider"
	"github.com/florinutz/narra-core/internal/model"
	"github.com/florinutz/narra-core/internal/store"
)

// fakeProvider gives each distinct input string a deterministic
// vector so semantic/faceted ordering is assertable without a real
// model loaded.
type fakeProvider struct{ available bool }

func (f *fakeProvider) EmbedOne(ctx context.Context, text string) (model.Vector, error) {
	return hashVector(text), nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([]model.Vector, error) {
	out := make([]model.Vector, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func (f *fakeProvider) Dimensions() int   { return 4 }
func (f *fakeProvider) IsAvailable() bool { return f.available }
func (f *fakeProvider) Name() string      { return "fake" }
func (f *fakeProvider) ModelName() string { return "fake-model" }

func hashVector(s string) model.Vector {
	v := make(model.Vector, 4)
	for i, r := range s {
		v[i%4] += float32(r)
	}
	return v
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedCharacters(t *testing.T, s *store.Store) {
	t.Helper()
	alice := &model.Character{
		ID: "character:alice", Name: "Alice Ironwood", Roles: []string{"warrior"},
		CompositeText: "Alice Ironwood is a warrior.",
		Embedding:     hashVector("Alice Ironwood is a warrior."),
	}
	bram := &model.Character{
		ID: "character:bram", Name: "Bram Coalheart", Roles: []string{"blacksmith"},
		CompositeText: "Bram Coalheart is a blacksmith.",
		Embedding:     hashVector("Bram Coalheart is a blacksmith."),
	}
	require.NoError(t, s.UpsertCharacter(alice))
	require.NoError(t, s.UpsertCharacter(bram))
}

func TestKeywordMatchesByName(t *testing.T) {
	s := newTestStore(t)
	seedCharacters(t, s)
	e := NewEngine(s, &fakeProvider{available: false}, nil)

	results, err := e.Keyword(Query{Text: "Ironwood", Kinds: []model.Kind{model.KindCharacter}})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "character:alice", results[0].ID)
}

func TestFuzzyToleratesTypos(t *testing.T) {
	s := newTestStore(t)
	seedCharacters(t, s)
	e := NewEngine(s, &fakeProvider{available: false}, nil)

	results, err := e.Fuzzy(Query{Text: "Alise Ironwod", Kinds: []model.Kind{model.KindCharacter}})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "character:alice", results[0].ID)
}

func TestSemanticUnavailableProviderReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	seedCharacters(t, s)
	e := NewEngine(s, &fakeProvider{available: false}, nil)

	results, err := e.Semantic(context.Background(), Query{Text: "anything", Kinds: []model.Kind{model.KindCharacter}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSemanticRanksExactEmbeddingMatchFirst(t *testing.T) {
	s := newTestStore(t)
	seedCharacters(t, s)
	e := NewEngine(s, &fakeProvider{available: true}, nil)

	results, err := e.Semantic(context.Background(), Query{Text: "Alice Ironwood is a warrior.", Kinds: []model.Kind{model.KindCharacter}})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "character:alice", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestHybridDegradesToKeywordWhenProviderUnavailable(t *testing.T) {
	s := newTestStore(t)
	seedCharacters(t, s)
	e := NewEngine(s, &fakeProvider{available: false}, nil)

	results, err := e.Hybrid(context.Background(), Query{Text: "Ironwood", Kinds: []model.Kind{model.KindCharacter}})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "character:alice", results[0].ID)
}

func TestRerankedFallsBackWhenNoCrossEncoder(t *testing.T) {
	s := newTestStore(t)
	seedCharacters(t, s)
	e := NewEngine(s, &fakeProvider{available: true}, nil)

	results, err := e.Reranked(context.Background(), Query{Text: "Ironwood", Kinds: []model.Kind{model.KindCharacter}})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestFacetedRejectsUnknownFacet(t *testing.T) {
	s := newTestStore(t)
	e := NewEngine(s, &fakeProvider{available: true}, nil)

	_, err := e.Faceted(context.Background(), Query{Text: "anything", FacetName: "bogus"})
	require.Error(t, err)
}

func TestFacetedRanksByFacetVector(t *testing.T) {
	s := newTestStore(t)
	alice := &model.Character{
		ID: "character:alice", Name: "Alice",
		IdentityEmbedding: hashVector("brave and bold"),
	}
	bram := &model.Character{
		ID: "character:bram", Name: "Bram",
		IdentityEmbedding: hashVector("quiet and careful"),
	}
	require.NoError(t, s.UpsertCharacter(alice))
	require.NoError(t, s.UpsertCharacter(bram))

	e := NewEngine(s, &fakeProvider{available: true}, nil)
	results, err := e.Faceted(context.Background(), Query{Text: "brave and bold", FacetName: string(model.FacetIdentity)})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "character:alice", results[0].ID)
}

func TestMultiFacetRequiresWeights(t *testing.T) {
	s := newTestStore(t)
	e := NewEngine(s, &fakeProvider{available: true}, nil)

	_, err := e.MultiFacet(context.Background(), Query{Text: "anything"})
	require.Error(t, err)
}

var _ embedprovider.Provider = (*fakeProvider)(nil)
