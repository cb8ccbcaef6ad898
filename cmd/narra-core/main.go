// Command narra-core runs the semantic intelligence core: it opens the
// store, wires the embedding provider and annotation classifiers per
// config, and serves QueryRequest/MutationRequest batches over stdio
// as newline-delimited JSON until stdin closes or a signal arrives.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/florinutz/narra-core/internal/analytics"
	"github.com/florinutz/narra-core/internal/annotate"
	"github.com/florinutz/narra-core/internal/arc"
	"github.com/florinutz/narra-core/internal/config"
	"github.com/florinutz/narra-core/internal/corelog"
	"github.com/florinutz/narra-core/internal/embedprovider"
	"github.com/florinutz/narra-core/internal/orchestrate"
	"github.com/florinutz/narra-core/internal/search"
	"github.com/florinutz/narra-core/internal/stale"
	"github.com/florinutz/narra-core/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	dataPath := flag.String("data", "", "data directory (defaults to NARRA_DATA_PATH, then ./.narra if present, then ~/.narra)")
	flag.Parse()

	log := corelog.L()

	cfg, err := config.Load(*dataPath)
	if err != nil {
		log.Error("config load failed", zap.Error(err))
		return 1
	}

	coord, cleanup, err := wire(cfg)
	if err != nil {
		log.Error("wiring failed", zap.Error(err))
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("narra-core ready",
		zap.String("data_path", cfg.DataPath),
		zap.String("provider", cfg.Provider.Variant),
	)

	if err := serve(ctx, coord, os.Stdin, os.Stdout); err != nil && err != context.Canceled {
		log.Error("serve error", zap.Error(err))
		return 1
	}
	log.Info("narra-core shutting down")
	return 0
}

// wire builds the full service graph in the same dependency order the
// teacher's entrypoint initializes its own globals: store, then the
// provider the store's consumers embed against, then the services
// built on top of both.
func wire(cfg *config.Config) (*orchestrate.Coordinator, func(), error) {
	dsn := cfg.DataPath
	if dsn != "" && dsn != ":memory:" {
		if err := os.MkdirAll(dsn, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data path: %w", err)
		}
		dsn = filepath.Join(dsn, "narra-core.db")
	}
	st, err := store.Open(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	cleanup := func() { _ = st.Close() }

	provider, crossEncoder := buildProvider(cfg.Provider)
	emotion, theme, ner := buildClassifiers(cfg.Provider)

	mgr := stale.NewManager(st, provider)
	arcSvc := arc.NewService(st)
	engine := search.NewEngine(st, provider, crossEncoder)
	analyticsSvc := analytics.NewService(st, arcSvc)
	cache := annotate.NewCache(st, emotion, theme, ner)

	coord := orchestrate.NewCoordinator(st, engine, analyticsSvc, cache, mgr)
	return coord, cleanup, nil
}

func buildProvider(pc config.ProviderConfig) (embedprovider.Provider, embedprovider.CrossEncoder) {
	if pc.Variant != "local" {
		return embedprovider.NewNoop(), embedprovider.NewNoopCrossEncoder()
	}
	local, err := embedprovider.NewLocal(pc.ModelDir, pc.ORTLib, pc.Threads)
	if err != nil {
		corelog.L().Warn("local embedding provider unavailable, falling back to noop", zap.Error(err))
		return embedprovider.NewNoop(), embedprovider.NewNoopCrossEncoder()
	}
	crossEncoder, err := embedprovider.NewLocalCrossEncoder(pc.ModelDir, pc.ORTLib, pc.Threads)
	if err != nil {
		corelog.L().Warn("local cross-encoder unavailable, falling back to noop", zap.Error(err))
		return local, embedprovider.NewNoopCrossEncoder()
	}
	return local, crossEncoder
}

func buildClassifiers(pc config.ProviderConfig) (annotate.EmotionClassifier, annotate.ThemeClassifier, annotate.NERClassifier) {
	if pc.Variant != "local" {
		return annotate.NoopEmotionClassifier{}, annotate.NoopThemeClassifier{}, annotate.NoopNERClassifier{}
	}

	var (
		emotion annotate.EmotionClassifier = annotate.NoopEmotionClassifier{}
		theme   annotate.ThemeClassifier   = annotate.NoopThemeClassifier{}
		ner     annotate.NERClassifier     = annotate.NoopNERClassifier{}
	)
	if e, err := annotate.NewLocalEmotionClassifier(pc.ModelDir, pc.ORTLib, pc.Threads); err == nil {
		emotion = e
	} else {
		corelog.L().Warn("emotion classifier unavailable, falling back to noop", zap.Error(err))
	}
	if t, err := annotate.NewLocalThemeClassifier(pc.ModelDir, pc.ORTLib, pc.Threads); err == nil {
		theme = t
	} else {
		corelog.L().Warn("theme classifier unavailable, falling back to noop", zap.Error(err))
	}
	if n, err := annotate.NewLocalNERClassifier(pc.ModelDir, pc.ORTLib, pc.Threads); err == nil {
		ner = n
	} else {
		corelog.L().Warn("NER classifier unavailable, falling back to noop", zap.Error(err))
	}
	return emotion, theme, ner
}

// envelope is the one request/response frame read from stdin and
// written to stdout: exactly one of Query/QueryBatch/Mutation is set
// per line.
type envelope struct {
	Query      *orchestrate.QueryRequest    `json:"query,omitempty"`
	QueryBatch []orchestrate.QueryRequest   `json:"query_batch,omitempty"`
	Mutation   *orchestrate.MutationRequest `json:"mutation,omitempty"`
}

type envelopeResult struct {
	Query      *orchestrate.QueryResponse    `json:"query,omitempty"`
	QueryBatch []*orchestrate.QueryResponse  `json:"query_batch,omitempty"`
	Mutation   *orchestrate.MutationResponse `json:"mutation,omitempty"`
	Error      string                        `json:"error,omitempty"`
}

// serve reads one JSON envelope per line and writes one JSON result
// per line, until r is exhausted or ctx is cancelled.
func serve(ctx context.Context, coord *orchestrate.Coordinator, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			_ = enc.Encode(envelopeResult{Error: err.Error()})
			continue
		}
		_ = enc.Encode(handle(ctx, coord, env))
	}
	return scanner.Err()
}

func handle(ctx context.Context, coord *orchestrate.Coordinator, env envelope) envelopeResult {
	switch {
	case env.Query != nil:
		resp, err := coord.Query(ctx, *env.Query)
		if err != nil {
			return envelopeResult{Error: err.Error()}
		}
		return envelopeResult{Query: resp}

	case env.QueryBatch != nil:
		return envelopeResult{QueryBatch: coord.QueryBatch(ctx, env.QueryBatch)}

	case env.Mutation != nil:
		resp, err := coord.Mutate(ctx, *env.Mutation)
		if err != nil {
			return envelopeResult{Error: err.Error()}
		}
		return envelopeResult{Mutation: resp}

	default:
		return envelopeResult{Error: "envelope carries none of query, query_batch, mutation"}
	}
}
