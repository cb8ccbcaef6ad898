package embedprovider

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// runBatched dispatches one fn call per input onto a bounded pool
// sized to GOMAXPROCS, so CPU-bound inference calls run off whatever
// goroutine requested the embedding without unbounded fan-out. The
// model session itself still serializes underneath via its own
// mutex; this just lets tokenization and pre/post-processing overlap
// across inputs.
func runBatched[T any](ctx context.Context, inputs []string, fn func(context.Context, string) (T, error)) ([]T, error) {
	out := make([]T, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, runtime.GOMAXPROCS(0)))

	for i, text := range inputs {
		i, text := i, text
		g.Go(func() error {
			v, err := fn(gctx, text)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var zero []T
		return zero, err
	}
	return out, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
