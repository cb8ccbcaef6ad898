package nameindex

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florinutz/narra-core/internal/model"
)

func TestExactOrPrefixIDsMatchesCaseInsensitively(t *testing.T) {
	entries := []Entry{
		{ID: "character:alice", Kind: model.KindCharacter},
		{ID: "character:bram", Kind: model.KindCharacter},
		{ID: "location:alderwood", Kind: model.KindLocation},
	}
	names := []string{"Alice Ironwood", "Bram Stoneheart", "Alderwood Keep"}
	idx := New(entries, names)

	matches := idx.ExactOrPrefixIDs("alice")
	require.Len(t, matches, 1)
	assert.Equal(t, "character:alice", matches[0].ID)

	matches = idx.ExactOrPrefixIDs("ALICE IRONWOOD")
	require.Len(t, matches, 1)
	assert.Equal(t, "character:alice", matches[0].ID)
}

func TestExactOrPrefixIDsMatchesSharedPrefix(t *testing.T) {
	entries := []Entry{
		{ID: "location:alderwood-keep", Kind: model.KindLocation},
		{ID: "location:alderwood-bridge", Kind: model.KindLocation},
		{ID: "character:bram", Kind: model.KindCharacter},
	}
	names := []string{"Alderwood Keep", "Alderwood Bridge", "Bram Stoneheart"}
	idx := New(entries, names)

	matches := idx.ExactOrPrefixIDs("alder")
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"location:alderwood-bridge", "location:alderwood-keep"}, ids)
}

func TestExactOrPrefixIDsEmptyQueryReturnsNoMatches(t *testing.T) {
	idx := New([]Entry{{ID: "character:alice", Kind: model.KindCharacter}}, []string{"Alice"})
	assert.Empty(t, idx.ExactOrPrefixIDs(""))
	assert.Empty(t, idx.ExactOrPrefixIDs("   "))
}

func TestExactOrPrefixIDsDuplicateNameKeepsLastWriterWins(t *testing.T) {
	entries := []Entry{
		{ID: "character:old", Kind: model.KindCharacter},
		{ID: "character:new", Kind: model.KindCharacter},
	}
	names := []string{"Alice", "Alice"}
	idx := New(entries, names)

	matches := idx.ExactOrPrefixIDs("alice")
	require.Len(t, matches, 1)
	assert.Equal(t, "character:new", matches[0].ID)
}

func TestExactOrPrefixIDsSkipsEmptyNames(t *testing.T) {
	entries := []Entry{
		{ID: "character:alice", Kind: model.KindCharacter},
		{ID: "character:ghost", Kind: model.KindCharacter},
	}
	names := []string{"Alice", ""}
	idx := New(entries, names)

	assert.Empty(t, idx.ExactOrPrefixIDs(""))
	matches := idx.ExactOrPrefixIDs("alice")
	require.Len(t, matches, 1)
	assert.Equal(t, "character:alice", matches[0].ID)
}
