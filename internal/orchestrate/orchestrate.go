// Package orchestrate is the thin coordinator in front of search,
// analytics, annotate, and the staleness manager: it parses a tagged
// QueryRequest/MutationRequest into one of their calls, fans out
// independent sub-queries in parallel, merges results, caps limit and
// depth, and estimates response size. It holds no state of its own.
package orchestrate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/florinutz/narra-core/internal/analytics"
	"github.com/florinutz/narra-core/internal/annotate"
	"github.com/florinutz/narra-core/internal/config"
	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/search"
	"github.com/florinutz/narra-core/internal/stale"
	"github.com/florinutz/narra-core/internal/store"
)

// Coordinator wires the services behind one request surface.
type Coordinator struct {
	store     *store.Store
	engine    *search.Engine
	analytics *analytics.Service
	annotate  *annotate.Cache
	stale     *stale.Manager
}

func NewCoordinator(s *store.Store, e *search.Engine, a *analytics.Service, c *annotate.Cache, m *stale.Manager) *Coordinator {
	return &Coordinator{store: s, engine: e, analytics: a, annotate: c, stale: m}
}

// clampLimit and clampDepth enforce the request caps from
// internal/config: limit <= 500, graph depth <= 6.
func clampLimit(n int) int {
	if n <= 0 {
		return 20
	}
	if n > config.MaxSearchLimit {
		return config.MaxSearchLimit
	}
	return n
}

func clampDepth(n int) int {
	if n <= 0 {
		return 1
	}
	if n > config.MaxGraphDepth {
		return config.MaxGraphDepth
	}
	return n
}

// tokenEstimate is the bytes/4 + 50 heuristic applied to a response's
// JSON-serialized size.
func tokenEstimate(byteLen int) int {
	return byteLen/4 + 50
}

// QueryBatch dispatches every request concurrently (the "fan out
// parallel sub-queries where independent" rule) and returns responses
// in the same order as reqs. A sub-query's own error does not abort
// its siblings; it is reported on that response's Hints instead, so a
// partial batch failure never loses the rest of the batch.
func (c *Coordinator) QueryBatch(ctx context.Context, reqs []QueryRequest) []*QueryResponse {
	out := make([]*QueryResponse, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			resp, err := c.Query(gctx, req)
			if err != nil {
				resp = &QueryResponse{Hints: []string{fmt.Sprintf("request %d failed: %v", i, err)}}
			}
			out[i] = resp
			return nil
		})
	}
	_ = g.Wait() // per-request errors are carried in each response, never aborted
	return out
}

// Mutate dispatches a MutationRequest: validate, upsert or delete in
// the store, run the matching staleness cascade, and report the
// {entity, entities, impact, hints} shape spec.md's mutation contract
// names.
func (c *Coordinator) Mutate(ctx context.Context, req MutationRequest) (*MutationResponse, error) {
	if req.Delete {
		return c.mutateDelete(req)
	}
	return c.mutateUpsert(req)
}

func unsupportedKind(kind string) error {
	return corerr.Validation("unsupported mutation kind %q", kind)
}
