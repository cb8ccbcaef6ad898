package embedprovider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopAlwaysUnavailableAndErrors(t *testing.T) {
	n := NewNoop()
	assert.False(t, n.IsAvailable())
	assert.Equal(t, 0, n.Dimensions())
	assert.Equal(t, "noop", n.Name())

	_, err := n.EmbedOne(context.Background(), "text")
	assert.Error(t, err)

	_, err = n.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestNoopCrossEncoderAlwaysUnavailable(t *testing.T) {
	n := NewNoopCrossEncoder()
	assert.False(t, n.IsAvailable())

	_, err := n.Rerank(context.Background(), "query", []string{"a"})
	assert.Error(t, err)
}

func TestProviderAndCrossEncoderInterfaceSatisfaction(t *testing.T) {
	var _ Provider = NewNoop()
	var _ CrossEncoder = NewNoopCrossEncoder()
}

func TestRunBatchedPreservesInputOrder(t *testing.T) {
	inputs := []string{"a", "bb", "ccc", "dddd"}
	lengths, err := runBatched(context.Background(), inputs, func(_ context.Context, s string) (int, error) {
		return len(s), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, lengths)
}

func TestRunBatchedPropagatesFirstError(t *testing.T) {
	inputs := []string{"ok", "bad", "ok"}
	wantErr := errors.New("boom")
	_, err := runBatched(context.Background(), inputs, func(_ context.Context, s string) (int, error) {
		if s == "bad" {
			return 0, wantErr
		}
		return len(s), nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestRunBatchedEmptyInput(t *testing.T) {
	out, err := runBatched(context.Background(), nil, func(_ context.Context, s string) (int, error) {
		return len(s), nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}
