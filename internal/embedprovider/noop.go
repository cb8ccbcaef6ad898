package embedprovider

import (
	"context"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

// Noop always reports unavailable; it is the zero-config default and
// the test double every other component degrades against.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) EmbedOne(ctx context.Context, text string) (model.Vector, error) {
	return nil, corerr.ServiceUnavailable("embedding provider not loaded")
}

func (n *Noop) EmbedBatch(ctx context.Context, texts []string) ([]model.Vector, error) {
	return nil, corerr.ServiceUnavailable("embedding provider not loaded")
}

func (n *Noop) Dimensions() int    { return 0 }
func (n *Noop) IsAvailable() bool  { return false }
func (n *Noop) Name() string       { return "noop" }
func (n *Noop) ModelName() string  { return "" }

// NoopCrossEncoder always reports unavailable.
type NoopCrossEncoder struct{}

func NewNoopCrossEncoder() *NoopCrossEncoder { return &NoopCrossEncoder{} }

func (n *NoopCrossEncoder) Rerank(ctx context.Context, query string, texts []string) ([]RerankResult, error) {
	return nil, corerr.ServiceUnavailable("cross-encoder not loaded")
}

func (n *NoopCrossEncoder) IsAvailable() bool { return false }
