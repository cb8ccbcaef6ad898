package orchestrate

import (
	"context"
	"encoding/json"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/search"
)

// Query dispatches a single QueryRequest to the search engine,
// analytics service, or annotation cache, clamping limit/depth and
// computing the token_estimate/truncated fields spec.md's response
// shape requires.
func (c *Coordinator) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	req.Limit = clampLimit(req.Limit)
	req.MaxDepth = clampDepth(req.MaxDepth)

	var (
		payload any
		err     error
	)

	switch req.Kind {
	case QueryKeyword:
		payload, err = c.engine.Keyword(c.searchQuery(req))
	case QueryFuzzy:
		payload, err = c.engine.Fuzzy(c.searchQuery(req))
	case QuerySemantic:
		payload, err = c.engine.Semantic(ctx, c.searchQuery(req))
	case QueryHybrid:
		payload, err = c.engine.Hybrid(ctx, c.searchQuery(req))
	case QueryReranked:
		payload, err = c.engine.Reranked(ctx, c.searchQuery(req))
	case QueryFaceted:
		payload, err = c.engine.Faceted(ctx, c.searchQuery(req))
	case QueryMultiFacet:
		payload, err = c.engine.MultiFacet(ctx, c.searchQuery(req))

	case QueryPerceptionGap:
		payload, err = c.analytics.PerceptionGap(req.ObserverID, req.TargetID)
	case QueryPerceptionMatrix:
		payload, err = c.analytics.PerceptionMatrix(req.TargetID)
	case QueryPerceptionShift:
		payload, err = c.analytics.PerceptionShift(req.PerceivesID, req.TargetID)
	case QueryInfluence:
		payload, err = c.analytics.InfluencePropagation(req.RootID, req.MaxDepth)
	case QueryIrony:
		payload, err = c.analytics.IronyAsymmetry(req.CharacterA, req.CharacterB)
	case QueryCentrality:
		payload, err = c.analytics.Centrality()
	case QueryPhases:
		payload, err = c.dispatchPhases(req)
	case QueryTension:
		payload, err = c.analytics.NarrativeTension(req.CharacterA, req.CharacterB)
	case QueryArcHistory:
		payload, err = c.analytics.ArcHistory(req.EntityID, req.Limit)
	case QueryArcCompare:
		payload, err = c.analytics.ArcCompare(req.CharacterA, req.CharacterB, req.Window)
	case QueryArcDriftRanking:
		payload, err = c.analytics.ArcDriftRanking(req.EventType, req.Limit)
	case QueryArcMoment:
		payload, err = c.analytics.ArcMoment(req.EntityID, req.EventID)

	case QueryAnnotateEmotion:
		payload, err = c.annotate.Emotion(ctx, req.EntityID, req.Text2)
	case QueryAnnotateTheme:
		payload, err = c.annotate.Theme(ctx, req.EntityID, req.Text2, req.Labels)
	case QueryAnnotateNER:
		payload, err = c.annotate.NER(ctx, req.EntityID, req.Text2)

	default:
		return nil, corerr.Validation("unknown query kind %q", req.Kind)
	}
	if err != nil {
		return nil, err
	}

	return buildResponse(payload, req.Limit), nil
}

func (c *Coordinator) searchQuery(req QueryRequest) search.Query {
	return search.Query{
		Text:           req.Text,
		Kinds:          req.Kinds,
		Limit:          req.Limit,
		MinScore:       req.MinScore,
		FuzzyThreshold: req.FuzzyThreshold,
		FacetName:      req.FacetName,
		FacetWeights:   req.FacetWeights,
	}
}

// resultTotal reports how many rows payload carries, for QueryResponse.Total.
func resultTotal(payload any) int {
	if results, ok := payload.([]search.Result); ok {
		return len(results)
	}
	return 1
}

// wasTruncated reports whether payload's row count hit limit exactly,
// the signal that more rows may have existed past the cap.
func wasTruncated(payload any, limit int) bool {
	results, ok := payload.([]search.Result)
	return ok && limit > 0 && len(results) >= limit
}

func buildResponse(payload any, limit int) *QueryResponse {
	raw, _ := json.Marshal(payload)
	return &QueryResponse{
		Results:       payload,
		Total:         resultTotal(payload),
		TokenEstimate: tokenEstimate(len(raw)),
		Truncated:     wasTruncated(payload, limit),
	}
}
