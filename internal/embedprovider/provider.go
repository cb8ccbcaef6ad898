// Package embedprovider turns composite text into fixed-dimensional
// vectors. A local ONNX-backed variant and a noop variant satisfy the
// same capability-set interface so test doubles plug in cleanly.
package embedprovider

import (
	"context"

	"github.com/florinutz/narra-core/internal/model"
)

// Provider is the embedding capability set from the embedding
// provider contract: embed_one, embed_batch, dimensions, is_available.
type Provider interface {
	EmbedOne(ctx context.Context, text string) (model.Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]model.Vector, error)
	Dimensions() int
	IsAvailable() bool
	Name() string
	ModelName() string
}

// RerankResult pairs a candidate's original index with its
// cross-encoder relevance score.
type RerankResult struct {
	Index int
	Score float32
}

// CrossEncoder is the optional re-ranker contract: rerank(query,
// texts) -> (index, score) pairs; is_available().
type CrossEncoder interface {
	Rerank(ctx context.Context, query string, texts []string) ([]RerankResult, error)
	IsAvailable() bool
}
