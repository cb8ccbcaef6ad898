package annotate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florinutz/narra-core/internal/store"
)

type fakeEmotion struct {
	available bool
	version   string
	calls     int
}

func (f *fakeEmotion) Classify(ctx context.Context, text string) ([]EmotionScore, error) {
	f.calls++
	return []EmotionScore{{Label: "joy", Score: 0.9}}, nil
}
func (f *fakeEmotion) IsAvailable() bool    { return f.available }
func (f *fakeEmotion) ModelVersion() string { return f.version }

type fakeTheme struct {
	available bool
	version   string
	calls     int
}

func (f *fakeTheme) Classify(ctx context.Context, text string, labels []string) ([]ThemeScore, error) {
	f.calls++
	out := make([]ThemeScore, len(labels))
	for i, l := range labels {
		out[i] = ThemeScore{Label: l, Score: 0.5}
	}
	return out, nil
}
func (f *fakeTheme) IsAvailable() bool    { return f.available }
func (f *fakeTheme) ModelVersion() string { return f.version }

type fakeNER struct {
	available bool
	version   string
	calls     int
}

func (f *fakeNER) Classify(ctx context.Context, text string) ([]NERSpan, error) {
	f.calls++
	return []NERSpan{{Text: "Alice", Label: "PER", Start: 0, End: 5, Score: 0.95}}, nil
}
func (f *fakeNER) IsAvailable() bool    { return f.available }
func (f *fakeNER) ModelVersion() string { return f.version }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEmotionRecomputesOnMissThenServesCacheOnHit(t *testing.T) {
	s := newTestStore(t)
	emotion := &fakeEmotion{available: true, version: "v1"}
	c := NewCache(s, emotion, &fakeTheme{}, &fakeNER{})

	_, err := c.Emotion(context.Background(), "character:alice", "some text")
	require.NoError(t, err)
	assert.Equal(t, 1, emotion.calls)

	_, err = c.Emotion(context.Background(), "character:alice", "some text")
	require.NoError(t, err)
	assert.Equal(t, 1, emotion.calls, "second call should hit the cache, not recompute")
}

func TestEmotionRecomputesWhenModelVersionChanges(t *testing.T) {
	s := newTestStore(t)
	emotion := &fakeEmotion{available: true, version: "v1"}
	c := NewCache(s, emotion, &fakeTheme{}, &fakeNER{})

	_, err := c.Emotion(context.Background(), "character:alice", "text")
	require.NoError(t, err)

	emotion.version = "v2"
	_, err = c.Emotion(context.Background(), "character:alice", "text")
	require.NoError(t, err)
	assert.Equal(t, 2, emotion.calls)
}

func TestEmotionRecomputesWhenAnnotationMarkedStale(t *testing.T) {
	s := newTestStore(t)
	emotion := &fakeEmotion{available: true, version: "v1"}
	c := NewCache(s, emotion, &fakeTheme{}, &fakeNER{})

	_, err := c.Emotion(context.Background(), "character:alice", "text")
	require.NoError(t, err)
	require.NoError(t, s.MarkAnnotationsStale("character:alice"))

	_, err = c.Emotion(context.Background(), "character:alice", "text")
	require.NoError(t, err)
	assert.Equal(t, 2, emotion.calls)
}

func TestEmotionUnavailableReturnsServiceUnavailable(t *testing.T) {
	s := newTestStore(t)
	c := NewCache(s, &fakeEmotion{available: false}, &fakeTheme{}, &fakeNER{})

	_, err := c.Emotion(context.Background(), "character:alice", "text")
	assert.Error(t, err)
}

func TestThemeCustomLabelsBypassCache(t *testing.T) {
	s := newTestStore(t)
	theme := &fakeTheme{available: true, version: "v1"}
	c := NewCache(s, &fakeEmotion{}, theme, &fakeNER{})

	_, err := c.Theme(context.Background(), "character:alice", "text", []string{"custom-a"})
	require.NoError(t, err)
	_, err = c.Theme(context.Background(), "character:alice", "text", []string{"custom-a"})
	require.NoError(t, err)
	assert.Equal(t, 2, theme.calls, "custom labels must never be served from the cache")

	annotation, err := s.GetAnnotation("character:alice", "theme")
	require.NoError(t, err)
	assert.Nil(t, annotation, "custom-label calls must never write the cache either")
}

func TestThemeDefaultLabelsUseCache(t *testing.T) {
	s := newTestStore(t)
	theme := &fakeTheme{available: true, version: "v1"}
	c := NewCache(s, &fakeEmotion{}, theme, &fakeNER{})

	scores, err := c.Theme(context.Background(), "character:alice", "text", nil)
	require.NoError(t, err)
	assert.Len(t, scores, len(DefaultThemes))

	_, err = c.Theme(context.Background(), "character:alice", "text", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, theme.calls)
}

func TestNERRecomputesOnMissThenCaches(t *testing.T) {
	s := newTestStore(t)
	ner := &fakeNER{available: true, version: "v1"}
	c := NewCache(s, &fakeEmotion{}, &fakeTheme{}, ner)

	spans, err := c.NER(context.Background(), "character:alice", "Alice walked in.")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "PER", spans[0].Label)

	_, err = c.NER(context.Background(), "character:alice", "Alice walked in.")
	require.NoError(t, err)
	assert.Equal(t, 1, ner.calls)
}
