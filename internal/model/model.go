// Package model defines the entity and edge shapes of the narrative
// document-graph: character, location, event, scene, knowledge,
// relates_to, perceives, knows, arc_snapshot, annotation, and
// universe_fact, plus the invariants their callers must uphold.
package model

import (
	"strings"
	"time"

	"github.com/florinutz/narra-core/internal/corerr"
)

// Kind names an entity table. The "table" half of a table:key id.
type Kind string

const (
	KindCharacter    Kind = "character"
	KindLocation     Kind = "location"
	KindEvent        Kind = "event"
	KindScene        Kind = "scene"
	KindKnowledge    Kind = "knowledge"
	KindRelatesTo    Kind = "relates_to"
	KindPerceives    Kind = "perceives"
	KindKnows        Kind = "knows"
	KindArcSnapshot  Kind = "arc_snapshot"
	KindAnnotation   Kind = "annotation"
	KindUniverseFact Kind = "universe_fact"
)

// ArcTrackable reports whether entities of this kind accrue arc
// snapshots on regeneration (I3/P12).
func (k Kind) ArcTrackable() bool {
	switch k {
	case KindCharacter, KindKnowledge, KindPerceives, KindRelatesTo:
		return true
	default:
		return false
	}
}

// FriendlyName returns the name an arc_snapshot's entity_type uses
// (perceives -> perspective, relates_to -> relationship).
func (k Kind) FriendlyName() string {
	switch k {
	case KindPerceives:
		return "perspective"
	case KindRelatesTo:
		return "relationship"
	default:
		return string(k)
	}
}

// ParseEntityID splits a "table:key" composite id into its Kind and
// the remainder of the string (which itself may contain colons).
func ParseEntityID(id string) (Kind, string, error) {
	table, key, found := strings.Cut(id, ":")
	if !found || table == "" || key == "" {
		return "", "", corerr.Validation("malformed entity id %q, want table:key", id)
	}
	return Kind(table), key, nil
}

// Facet names one of the four disjoint character embedding slices.
type Facet string

const (
	FacetIdentity   Facet = "identity"
	FacetPsychology Facet = "psychology"
	FacetSocial     Facet = "social"
	FacetNarrative  Facet = "narrative"
)

var AllFacets = []Facet{FacetIdentity, FacetPsychology, FacetSocial, FacetNarrative}

func ValidFacet(f string) bool {
	for _, v := range AllFacets {
		if string(v) == f {
			return true
		}
	}
	return false
}

// Vector is a dense embedding. nil means "no vector present".
type Vector []float32

// Character is the richest entity kind: four facet embeddings plus a
// whole-entity composite.
type Character struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Aliases   []string            `json:"aliases,omitempty"`
	Roles     []string            `json:"roles,omitempty"`
	Profile   map[string][]string `json:"profile,omitempty"` // category -> entries, sorted-key iteration
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`

	Embedding      Vector `json:"embedding,omitempty"`
	CompositeText  string `json:"composite_text,omitempty"`
	EmbeddingStale bool   `json:"embedding_stale"`

	IdentityEmbedding   Vector `json:"identity_embedding,omitempty"`
	PsychologyEmbedding Vector `json:"psychology_embedding,omitempty"`
	SocialEmbedding     Vector `json:"social_embedding,omitempty"`
	NarrativeEmbedding  Vector `json:"narrative_embedding,omitempty"`
}

func (c *Character) FacetVector(f Facet) Vector {
	switch f {
	case FacetIdentity:
		return c.IdentityEmbedding
	case FacetPsychology:
		return c.PsychologyEmbedding
	case FacetSocial:
		return c.SocialEmbedding
	case FacetNarrative:
		return c.NarrativeEmbedding
	default:
		return nil
	}
}

// Location forms a tree via an optional parent edge.
type Location struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	LocType        string `json:"loc_type"`
	ParentID       string `json:"parent_id,omitempty"`
	Embedding      Vector `json:"embedding,omitempty"`
	CompositeText  string `json:"composite_text,omitempty"`
	EmbeddingStale bool   `json:"embedding_stale"`
}

// DatePrecision names the granularity of Event.Date.
type DatePrecision string

const (
	PrecisionExact    DatePrecision = "exact"
	PrecisionApprox   DatePrecision = "approximate"
	PrecisionUnknown  DatePrecision = "unknown"
)

// Event carries the authoritative Sequence ordering for the narrative.
type Event struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Sequence       int64         `json:"sequence"`
	Date           string        `json:"date,omitempty"`
	DatePrecision  DatePrecision `json:"date_precision,omitempty"`
	DurationEnd    string        `json:"duration_end,omitempty"`
	Embedding      Vector        `json:"embedding,omitempty"`
	CompositeText  string        `json:"composite_text,omitempty"`
	EmbeddingStale bool          `json:"embedding_stale"`
}

// Scene depends on an event and at least one location.
type Scene struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Summary            string   `json:"summary"`
	EventID            string   `json:"event_id,omitempty"`
	PrimaryLocationID  string   `json:"primary_location_id,omitempty"`
	SecondaryLocations []string `json:"secondary_locations,omitempty"`
	Participants       []string `json:"participants,omitempty"`
	Embedding          Vector   `json:"embedding,omitempty"`
	CompositeText      string   `json:"composite_text,omitempty"`
	EmbeddingStale     bool     `json:"embedding_stale"`
}

// Knowledge is an append-only atom owned by a character.
type Knowledge struct {
	ID             string `json:"id"`
	CharacterID    string `json:"character_id"`
	Fact           string `json:"fact"`
	Embedding      Vector `json:"embedding,omitempty"`
	CompositeText  string `json:"composite_text,omitempty"`
	EmbeddingStale bool   `json:"embedding_stale"`
}

// RelatesTo is a symmetric-ish character<->character edge; I6 caps it
// to one edge per (rel_type) per direction.
type RelatesTo struct {
	ID             string `json:"id"`
	FromID         string `json:"from_id"`
	ToID           string `json:"to_id"`
	RelType        string `json:"rel_type"`
	Subtype        string `json:"subtype,omitempty"`
	Label          string `json:"label,omitempty"`
	Embedding      Vector `json:"embedding,omitempty"`
	CompositeText  string `json:"composite_text,omitempty"`
	EmbeddingStale bool   `json:"embedding_stale"`
}

// Perceives is directional; unlike RelatesTo it may carry several
// rel_types in one record (I6).
type Perceives struct {
	ID             string   `json:"id"`
	FromID         string   `json:"from_id"` // observer
	ToID           string   `json:"to_id"`   // target
	RelTypes       []string `json:"rel_types,omitempty"`
	Subtype        string   `json:"subtype,omitempty"`
	Feelings       string   `json:"feelings,omitempty"`
	Perception     string   `json:"perception,omitempty"`
	TensionLevel   int      `json:"tension_level"` // 0-10
	HistoryNotes   string   `json:"history_notes,omitempty"`
	Embedding      Vector   `json:"embedding,omitempty"`
	CompositeText  string   `json:"composite_text,omitempty"`
	EmbeddingStale bool     `json:"embedding_stale"`
}

// Certainty enumerates how firmly a character holds a knows state.
type Certainty string

const (
	CertaintyKnows          Certainty = "knows"
	CertaintyBelievesWrongly Certainty = "believes_wrongly"
	CertaintySuspects       Certainty = "suspects"
	CertaintyDenies         Certainty = "denies"
	CertaintyUncertain      Certainty = "uncertain"
	CertaintyAssumes        Certainty = "assumes"
	CertaintyForgotten      Certainty = "forgotten"
)

// LearningMethod enumerates how a character came to know something.
type LearningMethod string

const (
	LearnedWitnessed LearningMethod = "witnessed"
	LearnedTold      LearningMethod = "told"
	LearnedInferred  LearningMethod = "inferred"
	LearnedDocument  LearningMethod = "document"
	LearnedUnknown   LearningMethod = ""
)

// Knows links a character to a knowledge atom or another character;
// append-only, ordered by LearnedAt (I5: BelievesWrongly requires
// TruthValue).
type Knows struct {
	ID              string         `json:"id"`
	FromID          string         `json:"from_id"`
	TargetID        string         `json:"target_id"` // knowledge:* or character:*
	Certainty       Certainty      `json:"certainty"`
	LearningMethod  LearningMethod `json:"learning_method,omitempty"`
	SourceCharacter string         `json:"source_character,omitempty"`
	EventID         string         `json:"event_id,omitempty"`
	Premises        []string       `json:"premises,omitempty"`
	TruthValue      string         `json:"truth_value,omitempty"`
	LearnedAt       time.Time      `json:"learned_at"`
}

// Validate enforces I5.
func (k Knows) Validate() error {
	if k.Certainty == CertaintyBelievesWrongly && k.TruthValue == "" {
		return corerr.Validation("knows state with certainty=believes_wrongly requires truth_value")
	}
	return nil
}

// ArcSnapshot is an immutable point-in-time record of an entity's
// embedding (I3/I4).
type ArcSnapshot struct {
	ID             string    `json:"id"`
	EntityID       string    `json:"entity_id"`
	EntityType     string    `json:"entity_type"` // friendly name, see Kind.FriendlyName
	Embedding      Vector    `json:"embedding"`
	DeltaMagnitude *float64  `json:"delta_magnitude,omitempty"`
	EventID        string    `json:"event_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Annotation caches one ML classifier's opaque output for an entity.
type Annotation struct {
	EntityID     string    `json:"entity_id"`
	ModelType    string    `json:"model_type"` // "emotion" | "theme" | "ner"
	ModelVersion string    `json:"model_version"`
	Output       []byte    `json:"output"` // opaque JSON
	ComputedAt   time.Time `json:"computed_at"`
	Stale        bool      `json:"stale"`
}

// EnforcementLevel names how strictly a universe fact is checked.
type EnforcementLevel string

const (
	EnforcementInformational EnforcementLevel = "informational"
	EnforcementWarning       EnforcementLevel = "warning"
	EnforcementStrict        EnforcementLevel = "strict"
)

// UniverseFact is referenced by out-of-core consistency checks; the
// core only stores and returns it.
type UniverseFact struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Categories       []string         `json:"categories,omitempty"`
	EnforcementLevel EnforcementLevel `json:"enforcement_level"`
	Scope            string           `json:"scope,omitempty"`
}
