package bm25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRanksNameFieldAboveBodyField(t *testing.T) {
	s := NewScorer(DefaultConfig())
	s.IndexDocument("character:alice", map[string]string{
		"name": "Alice Ironwood",
		"body": "A warrior who fought in the northern campaign.",
	})
	s.IndexDocument("character:bram", map[string]string{
		"name": "Bram Stoneheart",
		"body": "Alice mentioned him once during the campaign.",
	})

	results := s.Search("alice", 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "character:alice", results[0].DocID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSearchEmptyQueryReturnsNil(t *testing.T) {
	s := NewScorer(DefaultConfig())
	s.IndexDocument("character:alice", map[string]string{"name": "Alice Ironwood"})

	assert.Nil(t, s.Search("   ", 10))
}

func TestSearchDropsStopwordsAndNonMatches(t *testing.T) {
	s := NewScorer(DefaultConfig())
	s.IndexDocument("location:keep", map[string]string{"name": "Keep of the Raven"})

	// "the" and "of" are stopwords; a query of only stopwords should
	// behave like an empty query once tokenized.
	assert.Empty(t, s.Search("the of", 10))
}

func TestSearchTopKCapsResultsAndBreaksTiesByDocID(t *testing.T) {
	s := NewScorer(DefaultConfig())
	s.IndexDocument("character:b", map[string]string{"name": "warrior"})
	s.IndexDocument("character:a", map[string]string{"name": "warrior"})
	s.IndexDocument("character:c", map[string]string{"name": "warrior"})

	results := s.Search("warrior", 2)
	require.Len(t, results, 2)
	assert.Equal(t, "character:a", results[0].DocID)
	assert.Equal(t, "character:b", results[1].DocID)
}

func TestReIndexingSameDocIDReplacesFields(t *testing.T) {
	s := NewScorer(DefaultConfig())
	s.IndexDocument("character:alice", map[string]string{"name": "Alice Ironwood"})
	s.IndexDocument("character:alice", map[string]string{"name": "Alice Stormwind"})

	assert.Empty(t, s.Search("ironwood", 10))
	assert.NotEmpty(t, s.Search("stormwind", 10))
}

func TestFieldWeightsFavorHigherWeightedField(t *testing.T) {
	cfg := Config{K1: 1.2, B: 0.75, FieldWeights: map[string]float64{"name": 5.0, "body": 0.1}}
	s := NewScorer(cfg)
	s.IndexDocument("a", map[string]string{"name": "dragon", "body": "plain text"})
	s.IndexDocument("b", map[string]string{"name": "plain text", "body": "dragon"})

	results := s.Search("dragon", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].DocID)
}
