package orchestrate

import "github.com/florinutz/narra-core/internal/model"

// QueryKind tags which of the §4.5/§4.6 calls a QueryRequest
// dispatches to. Go has no native tagged union, so this follows the
// same kind-string-plus-optional-fields shape internal/corerr uses
// for its own one-struct error taxonomy.
type QueryKind string

const (
	QueryKeyword          QueryKind = "keyword"
	QueryFuzzy            QueryKind = "fuzzy"
	QuerySemantic         QueryKind = "semantic"
	QueryHybrid           QueryKind = "hybrid"
	QueryReranked         QueryKind = "reranked"
	QueryFaceted          QueryKind = "faceted"
	QueryMultiFacet       QueryKind = "multi_facet"
	QueryPerceptionGap    QueryKind = "perception_gap"
	QueryPerceptionMatrix QueryKind = "perception_matrix"
	QueryPerceptionShift  QueryKind = "perception_shift"
	QueryInfluence        QueryKind = "influence"
	QueryIrony            QueryKind = "irony"
	QueryCentrality       QueryKind = "centrality"
	QueryPhases           QueryKind = "phases"
	QueryTension          QueryKind = "tension"
	QueryArcHistory       QueryKind = "arc_history"
	QueryArcCompare       QueryKind = "arc_compare"
	QueryArcDriftRanking  QueryKind = "arc_drift_ranking"
	QueryArcMoment        QueryKind = "arc_moment"
	QueryAnnotateEmotion  QueryKind = "annotate_emotion"
	QueryAnnotateTheme    QueryKind = "annotate_theme"
	QueryAnnotateNER      QueryKind = "annotate_ner"
)

// QueryRequest carries every field any one QueryKind needs; only the
// fields that kind documents are read. Limit and MaxDepth are clamped
// to the request caps before dispatch.
type QueryRequest struct {
	Kind QueryKind

	// search.Engine fields (keyword/fuzzy/semantic/hybrid/reranked/
	// faceted/multi_facet)
	Text           string
	Kinds          []model.Kind
	Limit          int
	MinScore       float64
	FuzzyThreshold float64
	FacetName      string
	FacetWeights   map[string]float64

	// analytics fields
	EntityID    string
	TargetID    string
	ObserverID  string
	PerceivesID string
	CharacterA  string
	CharacterB  string
	RootID      string
	MaxDepth    int
	EventType   string // ArcDriftRanking's entity type
	Window      int    // ArcCompare comparison window
	EventID     string // ArcMoment
	PhaseK      int    // DetectPhases; <=0 auto-selects k in [2,8]

	// annotate fields
	Text2  string   // the text to classify, when it isn't EntityID's stored composite
	Labels []string // custom theme labels; non-empty bypasses the cache
}

// QueryResponse is spec.md's {results, total, next_cursor?, hints[],
// token_estimate, truncated?} response shape. Results carries
// whatever payload the dispatched kind produces (search.Result slices,
// an analytics struct, annotation scores) — callers type-assert by
// the QueryKind they sent.
type QueryResponse struct {
	Results       any
	Total         int
	NextCursor    *string
	Hints         []string
	TokenEstimate int
	Truncated     bool
}

// MutationKind tags which entity kind a MutationRequest upserts or
// deletes.
type MutationKind string

const (
	MutationCharacter MutationKind = "character"
	MutationLocation  MutationKind = "location"
	MutationEvent     MutationKind = "event"
	MutationScene     MutationKind = "scene"
	MutationKnowledge MutationKind = "knowledge"
	MutationRelatesTo MutationKind = "relates_to"
	MutationPerceives MutationKind = "perceives"
	MutationKnows     MutationKind = "knows"
	MutationUniverse  MutationKind = "universe_fact"
)

// MutationRequest dispatches a single upsert or delete. Entity holds
// the typed *model.X payload for an upsert (ignored for a delete);
// EntityID names the target for a delete (or identifies the row being
// upserted, for kinds whose model type doesn't carry its own ID
// separately — in practice every kind here does, so EntityID is only
// consulted on Delete).
type MutationRequest struct {
	Kind     MutationKind
	Entity   any
	EntityID string
	Delete   bool
	EventID  string // threaded into the regeneration cascade, e.g. for arc snapshots
}

// MutationResponse is spec.md's {entity, entities?, impact?, hints[]}
// mutation response shape.
type MutationResponse struct {
	Entity   any
	Entities []any
	Impact   string
	Hints    []string
}
