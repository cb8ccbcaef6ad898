// Package search implements the seven retrieval modes over the
// document-graph: keyword (BM25), fuzzy (Levenshtein), semantic
// (brute-force cosine), hybrid (RRF), re-ranked (cross-encoder),
// faceted, and weighted multi-facet.
package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/florinutz/narra-core/internal/corelog"
	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/embedprovider"
	"github.com/florinutz/narra-core/internal/model"
	"github.com/florinutz/narra-core/internal/search/bm25"
	"github.com/florinutz/narra-core/internal/store"
	"github.com/florinutz/narra-core/internal/vecmath"
)

const rrfK = 60

// Result is the uniform row every retrieval mode returns.
type Result struct {
	ID    string
	Kind  model.Kind
	Name  string
	Score float64
}

// Query carries the shared shape all seven modes take: free text, the
// entity kinds in scope (empty = every searchable kind), a result
// limit, a minimum-score cutoff, and the metadata-filter set.
type Query struct {
	Text     string
	Kinds    []model.Kind
	Limit    int
	MinScore float64
	Filters  store.Filters

	FuzzyThreshold float64            // default 0.7
	FacetName      string             // faceted mode
	FacetWeights   map[string]float64 // multi_facet mode, normalised internally
}

func (q Query) kinds() []model.Kind {
	if len(q.Kinds) > 0 {
		return q.Kinds
	}
	return store.AllKindsSearched
}

func (q Query) limit() int {
	if q.Limit > 0 {
		return q.Limit
	}
	return 20
}

func (q Query) fuzzyThreshold() float64 {
	if q.FuzzyThreshold > 0 {
		return q.FuzzyThreshold
	}
	return 0.7
}

// Engine composes the store, an embedding provider, and an optional
// cross-encoder into the seven retrieval modes.
type Engine struct {
	store    *store.Store
	provider embedprovider.Provider
	reranker embedprovider.CrossEncoder
	log      *zap.SugaredLogger
}

func NewEngine(s *store.Store, p embedprovider.Provider, r embedprovider.CrossEncoder) *Engine {
	return &Engine{store: s, provider: p, reranker: r, log: corelog.Sugar()}
}

func filterByMinScore(results []Result, min float64) []Result {
	if min <= 0 {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if r.Score >= min {
			out = append(out, r)
		}
	}
	return out
}

func truncateResults(results []Result, limit int) []Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// Keyword runs BM25F per kind in scope and merges, scores rectified
// to their absolute value.
func (e *Engine) Keyword(q Query) ([]Result, error) {
	var out []Result
	for _, kind := range q.kinds() {
		rows, err := e.store.ListSearchable(kind, q.Filters, 0)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		scorer := bm25.NewScorer(bm25.DefaultConfig())
		byID := make(map[string]store.SearchRow, len(rows))
		for _, row := range rows {
			scorer.IndexDocument(row.ID, map[string]string{"name": row.Name, "body": row.Body})
			byID[row.ID] = row
		}
		for _, hit := range scorer.Search(q.Text, 0) {
			row := byID[hit.DocID]
			out = append(out, Result{ID: row.ID, Kind: row.Kind, Name: row.Name, Score: math.Abs(hit.Score)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return truncateResults(filterByMinScore(out, q.MinScore), q.limit()), nil
}

// Fuzzy scores Levenshtein-normalised similarity over names (and
// bodies), fetching at most 500 rows per kind as a safety ceiling.
func (e *Engine) Fuzzy(q Query) ([]Result, error) {
	threshold := q.fuzzyThreshold()
	var out []Result
	for _, kind := range q.kinds() {
		rows, err := e.store.ListSearchable(kind, q.Filters, 500)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			sim := fuzzySimilarity(q.Text, row.Name)
			if row.Body != "" {
				if bodySim := fuzzySimilarity(q.Text, row.Body); bodySim > sim {
					sim = bodySim
				}
			}
			if sim >= threshold {
				out = append(out, Result{ID: row.ID, Kind: row.Kind, Name: row.Name, Score: sim})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return truncateResults(filterByMinScore(out, q.MinScore), q.limit()), nil
}

func fuzzySimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) (model.Vector, error)
}

// embedQuery prefers a provider's asymmetric query-side embedding
// (e.g. Local's BGE instruction-prefixed path) when available,
// falling back to the plain document-embedding call.
func embedQuery(ctx context.Context, p embedprovider.Provider, text string) (model.Vector, error) {
	if qe, ok := p.(queryEmbedder); ok {
		return qe.EmbedQuery(ctx, text)
	}
	return p.EmbedOne(ctx, text)
}

// Semantic runs brute-force cosine over `embedding`, fetching 2x
// limit rows per kind before merging. Returns empty when the
// embedding provider is unavailable (silent fallback).
func (e *Engine) Semantic(ctx context.Context, q Query) ([]Result, error) {
	if !e.provider.IsAvailable() {
		return nil, nil
	}
	qvec, err := embedQuery(ctx, e.provider, q.Text)
	if err != nil {
		return nil, corerr.Compute(err, "embed semantic query")
	}
	return e.semanticWithVector(qvec, q)
}

func (e *Engine) semanticWithVector(qvec model.Vector, q Query) ([]Result, error) {
	fetchCap := 2 * q.limit()
	var out []Result
	for _, kind := range q.kinds() {
		rows, err := e.store.ListSearchable(kind, q.Filters, fetchCap)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if len(row.Embedding) == 0 {
				continue
			}
			sim := vecmath.Cosine(qvec, row.Embedding)
			out = append(out, Result{ID: row.ID, Kind: row.Kind, Name: row.Name, Score: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return truncateResults(filterByMinScore(out, q.MinScore), q.limit()), nil
}

// Hybrid merges Keyword and Semantic via Reciprocal Rank Fusion
// (k=60). Degrades to Keyword alone when the provider is unavailable.
func (e *Engine) Hybrid(ctx context.Context, q Query) ([]Result, error) {
	keywordResults, err := e.Keyword(Query{Text: q.Text, Kinds: q.Kinds, Filters: q.Filters, Limit: 0})
	if err != nil {
		return nil, err
	}
	if !e.provider.IsAvailable() {
		return truncateResults(filterByMinScore(keywordResults, q.MinScore), q.limit()), nil
	}
	semanticResults, err := e.Semantic(ctx, Query{Text: q.Text, Kinds: q.Kinds, Filters: q.Filters, Limit: q.limit()})
	if err != nil {
		return nil, err
	}
	merged := rrfMerge(keywordResults, semanticResults)
	return truncateResults(filterByMinScore(merged, q.MinScore), q.limit()), nil
}

func rrfMerge(lists ...[]Result) []Result {
	type acc struct {
		result Result
		score  float64
	}
	byID := make(map[string]*acc)
	var order []string
	for _, list := range lists {
		for rank, r := range list {
			a, ok := byID[r.ID]
			if !ok {
				a = &acc{result: r}
				byID[r.ID] = a
				order = append(order, r.ID)
			}
			a.score += 1.0 / float64(rrfK+rank+1)
		}
	}
	out := make([]Result, 0, len(order))
	for _, id := range order {
		a := byID[id]
		a.result.Score = a.score
		out = append(out, a.result)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Reranked fetches 3x limit via Hybrid, then asks the cross-encoder
// to re-score (query, composite_text) pairs. Falls back silently to
// hybrid ordering if the reranker is unavailable or errors.
func (e *Engine) Reranked(ctx context.Context, q Query) ([]Result, error) {
	candidates, err := e.Hybrid(ctx, Query{Text: q.Text, Kinds: q.Kinds, Filters: q.Filters, Limit: 3 * q.limit()})
	if err != nil {
		return nil, err
	}
	if e.reranker == nil || !e.reranker.IsAvailable() || len(candidates) == 0 {
		return truncateResults(candidates, q.limit()), nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		row, err := e.compositeTextFor(c)
		if err != nil {
			e.log.Warnw("reranked: composite text lookup failed, falling back to hybrid order", "id", c.ID, "error", err)
			return truncateResults(candidates, q.limit()), nil
		}
		texts[i] = row
	}

	scored, err := e.reranker.Rerank(ctx, q.Text, texts)
	if err != nil {
		e.log.Warnw("reranked: cross-encoder call failed, falling back to hybrid order", "error", err)
		return truncateResults(candidates, q.limit()), nil
	}

	out := make([]Result, len(scored))
	for i, s := range scored {
		r := candidates[s.Index]
		r.Score = float64(s.Score)
		out[i] = r
	}
	return truncateResults(out, q.limit()), nil
}

func (e *Engine) compositeTextFor(r Result) (string, error) {
	rows, err := e.store.ListSearchable(r.Kind, store.Filters{}, 0)
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		if row.ID == r.ID {
			return row.CompositeText, nil
		}
	}
	return "", nil
}

// Faceted runs cosine over one of the four character facet vectors.
func (e *Engine) Faceted(ctx context.Context, q Query) ([]Result, error) {
	if !model.ValidFacet(q.FacetName) {
		return nil, corerr.Validation("unknown facet %q", q.FacetName)
	}
	if !e.provider.IsAvailable() {
		return nil, nil
	}
	qvec, err := embedQuery(ctx, e.provider, q.Text)
	if err != nil {
		return nil, corerr.Compute(err, "embed faceted query")
	}

	characters, err := e.store.ListCharacters(false)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, c := range characters {
		fv := c.FacetVector(model.Facet(q.FacetName))
		if len(fv) == 0 {
			continue
		}
		sim := vecmath.Cosine(qvec, fv)
		out = append(out, Result{ID: c.ID, Kind: model.KindCharacter, Name: c.Name, Score: sim})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return truncateResults(filterByMinScore(out, q.MinScore), q.limit()), nil
}

// MultiFacet scores each character by a weighted sum of per-facet
// cosine similarities, normalising weights to sum to 1.0 and skipping
// facets the caller didn't name or the character lacks a vector for.
func (e *Engine) MultiFacet(ctx context.Context, q Query) ([]Result, error) {
	if len(q.FacetWeights) == 0 {
		return nil, corerr.Validation("multi-facet search requires at least one facet weight")
	}
	for facet := range q.FacetWeights {
		if !model.ValidFacet(facet) {
			return nil, corerr.Validation("unknown facet %q", facet)
		}
	}
	if !e.provider.IsAvailable() {
		return nil, nil
	}
	qvec, err := embedQuery(ctx, e.provider, q.Text)
	if err != nil {
		return nil, corerr.Compute(err, "embed multi-facet query")
	}

	var weightSum float64
	for _, w := range q.FacetWeights {
		weightSum += w
	}
	if weightSum == 0 {
		return nil, corerr.Validation("facet weights must not sum to zero")
	}

	characters, err := e.store.ListCharacters(false)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, c := range characters {
		var score float64
		for facet, w := range q.FacetWeights {
			fv := c.FacetVector(model.Facet(facet))
			if len(fv) == 0 {
				continue
			}
			score += (w / weightSum) * vecmath.Cosine(qvec, fv)
		}
		out = append(out, Result{ID: c.ID, Kind: model.KindCharacter, Name: c.Name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return truncateResults(filterByMinScore(out, q.MinScore), q.limit()), nil
}
