// Package bm25 implements a small BM25F-style scorer over named text
// fields (e.g. "name", "body"), with per-field weights and stopword
// filtering during indexing. There is no ecosystem BM25F package in
// the retrieval pack shaped for this per-entity-kind field layout, so
// this is built from scratch, grounded on the field-weighted,
// length-normalised scoring shape used elsewhere in the pack's
// document-resolution code.
package bm25

import (
	"math"
	"sort"
	"strings"

	"github.com/orsinium-labs/stopwords"
)

// Config tunes BM25F: K1 controls term-frequency saturation, B
// controls length normalisation strength, and FieldWeights scales
// each field's contribution (missing fields default to weight 1.0).
type Config struct {
	K1           float64
	B            float64
	FieldWeights map[string]float64
}

func DefaultConfig() Config {
	return Config{
		K1:           1.2,
		B:            0.75,
		FieldWeights: map[string]float64{"name": 3.0, "body": 1.0},
	}
}

func (c Config) weightFor(field string) float64 {
	if w, ok := c.FieldWeights[field]; ok {
		return w
	}
	return 1.0
}

type fieldTerms struct {
	termFreq  map[string]int
	length    int
}

type document struct {
	fields map[string]fieldTerms
}

// Result is one scored document.
type Result struct {
	DocID string
	Score float64
}

// Scorer indexes documents across fields and scores them against a
// query with BM25F. Not safe for concurrent IndexDocument/Search
// calls; callers serialize index builds ahead of querying.
type Scorer struct {
	cfg Config

	docs      map[string]document
	docOrder  []string
	docFreq   map[string]int // token -> number of documents containing it, any field
	fieldLenSum map[string]int
	fieldDocCount map[string]int
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{
		cfg:           cfg,
		docs:          make(map[string]document),
		docFreq:       make(map[string]int),
		fieldLenSum:   make(map[string]int),
		fieldDocCount: make(map[string]int),
	}
}

// IndexDocument tokenizes and indexes fields (e.g. {"name": "...",
// "body": "..."}) under docID. Re-indexing the same docID replaces it.
func (s *Scorer) IndexDocument(docID string, fields map[string]string) {
	if old, exists := s.docs[docID]; exists {
		oldTokens := make(map[string]bool)
		for field, ft := range old.fields {
			s.fieldLenSum[field] -= ft.length
			s.fieldDocCount[field]--
			for tok := range ft.termFreq {
				oldTokens[tok] = true
			}
		}
		for tok := range oldTokens {
			s.docFreq[tok]--
		}
	} else {
		s.docOrder = append(s.docOrder, docID)
	}

	doc := document{fields: make(map[string]fieldTerms, len(fields))}
	seenTokens := make(map[string]bool)

	for field, text := range fields {
		tokens := tokenize(text)
		ft := fieldTerms{termFreq: make(map[string]int), length: len(tokens)}
		for _, tok := range tokens {
			ft.termFreq[tok]++
			seenTokens[tok] = true
		}
		doc.fields[field] = ft
		s.fieldLenSum[field] += ft.length
		s.fieldDocCount[field]++
	}
	s.docs[docID] = doc
	for tok := range seenTokens {
		s.docFreq[tok]++
	}
}

// tokenize lowercases, splits on non-letter/non-digit boundaries, and
// drops English stopwords.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || stopwords.English.Contains(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (s *Scorer) avgFieldLen(field string) float64 {
	n := s.fieldDocCount[field]
	if n == 0 {
		return 0
	}
	return float64(s.fieldLenSum[field]) / float64(n)
}

// idf is the BM25 inverse document frequency with a +1 inside the
// log, so it stays positive for every term present in at least one
// indexed document.
func (s *Scorer) idf(token string) float64 {
	n := float64(len(s.docOrder))
	df := float64(s.docFreq[token])
	if n == 0 || df == 0 {
		return 0
	}
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// Search tokenizes query and scores every indexed document with
// BM25F, returning the top K by descending score (ties broken by
// docID ascending for determinism).
func (s *Scorer) Search(query string, topK int) []Result {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	results := make([]Result, 0, len(s.docOrder))
	for _, docID := range s.docOrder {
		doc := s.docs[docID]
		score := s.scoreDocument(doc, queryTokens)
		if score == 0 {
			continue
		}
		results = append(results, Result{DocID: docID, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

func (s *Scorer) scoreDocument(doc document, queryTokens []string) float64 {
	var total float64
	for _, tok := range queryTokens {
		idf := s.idf(tok)
		if idf == 0 {
			continue
		}
		var pooledTF float64
		for field, ft := range doc.fields {
			tf := float64(ft.termFreq[tok])
			if tf == 0 {
				continue
			}
			avgLen := s.avgFieldLen(field)
			norm := 1.0
			if avgLen > 0 {
				norm = 1 - s.cfg.B + s.cfg.B*(float64(ft.length)/avgLen)
			}
			pooledTF += s.cfg.weightFor(field) * tf / norm
		}
		if pooledTF == 0 {
			continue
		}
		total += idf * (pooledTF * (s.cfg.K1 + 1)) / (pooledTF + s.cfg.K1)
	}
	return total
}
