package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florinutz/narra-core/internal/model"
)

func sampleCharacter() *model.Character {
	return &model.Character{
		ID:    "character:alice",
		Name:  "Alice",
		Roles: []string{"warrior"},
		Profile: map[string][]string{
			"desire_conscious": {"freedom"},
			"fear":             {"betrayal", "cages"},
		},
	}
}

// TestP1ComposeDeterminism asserts compose(e, ctx) is byte-identical
// across repeated calls with identical inputs.
func TestP1ComposeDeterminism(t *testing.T) {
	c := sampleCharacter()
	ctx := CharacterContext{}

	first := Character(c, ctx)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, Character(c, ctx))
	}
}

func TestCharacterProfileSortedKeys(t *testing.T) {
	c := sampleCharacter()
	out := Character(c, CharacterContext{})
	// "desire conscious" must precede "fear" regardless of map iteration order.
	assert.Less(t, indexOf(out, "desire conscious"), indexOf(out, "fear"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestEmptyCollectionsContributeNoSentence(t *testing.T) {
	c := &model.Character{ID: "character:bob", Name: "Bob"}
	out := Character(c, CharacterContext{})
	assert.Equal(t, "Bob.", out)
}

func TestTruncationAddsEllipsis(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "word "
	}
	k := &model.Knowledge{ID: "knowledge:k1", Fact: long}
	out := Knowledge(k, "")
	assert.Contains(t, out, "…")
}

func TestCertaintyAdverbUnknownDegrades(t *testing.T) {
	assert.Equal(t, "knows that", certaintyAdverb(model.Certainty("made_up")))
	assert.Equal(t, "wrongly believes that", certaintyAdverb(model.CertaintyBelievesWrongly))
}
