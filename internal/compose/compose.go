// Package compose builds the deterministic natural-language composite
// text that is the sole input to embedding. Every function here is
// pure: no I/O, no randomness, no wall-clock reads — callers pass in
// whatever enrichment the entity's neighbourhood requires.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/florinutz/narra-core/internal/model"
)

const (
	maxTruncationTokens = 200
	maxKnowledgeRecent  = 5
	maxSharedScenes     = 5
)

// truncate clamps s to maxTruncationTokens whitespace-separated
// tokens, appending an ellipsis when it had to cut.
func truncate(s string) string {
	fields := strings.Fields(s)
	if len(fields) <= maxTruncationTokens {
		return s
	}
	return strings.Join(fields[:maxTruncationTokens], " ") + " …"
}

// certaintyAdverb renders the fixed provenance adverb for a knows
// certainty value; unknown values degrade to "knows that".
func certaintyAdverb(c model.Certainty) string {
	switch c {
	case model.CertaintyKnows:
		return "knows that"
	case model.CertaintyBelievesWrongly:
		return "wrongly believes that"
	case model.CertaintySuspects:
		return "suspects that"
	case model.CertaintyDenies:
		return "denies that"
	case model.CertaintyUncertain:
		return "is uncertain whether"
	case model.CertaintyAssumes:
		return "assumes that"
	case model.CertaintyForgotten:
		return "has forgotten that"
	default:
		return "knows that"
	}
}

// learningClause renders the fixed provenance sentence for a learning
// method; unknown/absent yields no clause.
func learningClause(m model.LearningMethod) string {
	switch m {
	case model.LearnedWitnessed:
		return "They witnessed this."
	case model.LearnedTold:
		return "They were told this."
	case model.LearnedInferred:
		return "They inferred this."
	case model.LearnedDocument:
		return "They read this in a document."
	default:
		return ""
	}
}

func sortedProfileCategories(profile map[string][]string) []string {
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// CharacterContext is the one-hop enrichment a character composite
// needs: relationships it holds, how others perceive it, scenes it
// appears in, and the knowledge it owns.
type CharacterContext struct {
	Outbound  []*model.RelatesTo
	Inbound   []*model.Perceives // others' perceptions of this character
	Scenes    []*model.Scene
	Knowledge []*model.Knowledge
}

// Character builds the whole-entity composite: identity + psychology
// + social + narrative, the input to the main embedding.
func Character(c *model.Character, ctx CharacterContext) string {
	parts := []string{
		identitySentence(c),
		psychologySentence(c),
		socialSentence(c, ctx),
		narrativeSentence(c, ctx),
	}
	return truncate(joinNonEmpty(parts...))
}

// CharacterFacet builds one of the four disjoint facet composites.
func CharacterFacet(c *model.Character, ctx CharacterContext, facet model.Facet) string {
	switch facet {
	case model.FacetIdentity:
		return truncate(identitySentence(c))
	case model.FacetPsychology:
		return truncate(psychologySentence(c))
	case model.FacetSocial:
		return truncate(socialSentence(c, ctx))
	case model.FacetNarrative:
		return truncate(narrativeSentence(c, ctx))
	default:
		return ""
	}
}

func identitySentence(c *model.Character) string {
	if c.Name == "" {
		return ""
	}
	s := fmt.Sprintf("%s.", c.Name)
	if len(c.Roles) > 0 {
		s += fmt.Sprintf(" %s is %s.", c.Name, strings.Join(c.Roles, ", "))
	}
	if len(c.Aliases) > 0 {
		s += fmt.Sprintf(" Also known as %s.", strings.Join(c.Aliases, ", "))
	}
	return s
}

func psychologySentence(c *model.Character) string {
	if len(c.Profile) == 0 {
		return ""
	}
	var sentences []string
	for _, category := range sortedProfileCategories(c.Profile) {
		entries := c.Profile[category]
		if len(entries) == 0 {
			continue
		}
		label := strings.ReplaceAll(category, "_", " ")
		sentences = append(sentences, fmt.Sprintf("%s: %s.", label, strings.Join(entries, ", ")))
	}
	return strings.Join(sentences, " ")
}

func socialSentence(c *model.Character, ctx CharacterContext) string {
	var sentences []string
	for _, r := range ctx.Outbound {
		if r.Label != "" {
			sentences = append(sentences, fmt.Sprintf("%s relationship: %s.", r.RelType, r.Label))
		} else {
			sentences = append(sentences, fmt.Sprintf("Has a %s relationship.", r.RelType))
		}
	}
	for _, p := range ctx.Inbound {
		if p.Perception != "" {
			sentences = append(sentences, fmt.Sprintf("Is perceived as: %s.", p.Perception))
		}
	}
	return strings.Join(sentences, " ")
}

func narrativeSentence(c *model.Character, ctx CharacterContext) string {
	var sentences []string
	if len(ctx.Scenes) > 0 {
		titles := make([]string, 0, len(ctx.Scenes))
		for _, sc := range ctx.Scenes {
			titles = append(titles, sc.Title)
		}
		sentences = append(sentences, fmt.Sprintf("Appears in: %s.", strings.Join(titles, "; ")))
	}
	for _, k := range ctx.Knowledge {
		sentences = append(sentences, fmt.Sprintf("Knows: %s.", k.Fact))
	}
	return strings.Join(sentences, " ")
}

// Location builds a location's composite, including its parent chain
// name when provided.
func Location(l *model.Location, parentName string) string {
	s := fmt.Sprintf("%s.", l.Name)
	if l.LocType != "" {
		s += fmt.Sprintf(" A %s.", l.LocType)
	}
	if l.Description != "" {
		s += " " + l.Description
	}
	if parentName != "" {
		s += fmt.Sprintf(" Located within %s.", parentName)
	}
	return truncate(s)
}

// Event builds an event's composite.
func Event(e *model.Event) string {
	s := fmt.Sprintf("%s.", e.Title)
	if e.Description != "" {
		s += " " + e.Description
	}
	if e.Date != "" {
		s += fmt.Sprintf(" Occurred %s.", e.Date)
	}
	return truncate(s)
}

// SceneContext carries the names of whatever the scene references,
// resolved by the caller before composition.
type SceneContext struct {
	EventTitle         string
	PrimaryLocation    string
	SecondaryLocations []string
	ParticipantNames   []string
}

func Scene(sc *model.Scene, ctx SceneContext) string {
	s := fmt.Sprintf("%s.", sc.Title)
	if sc.Summary != "" {
		s += " " + sc.Summary
	}
	if ctx.EventTitle != "" {
		s += fmt.Sprintf(" Part of: %s.", ctx.EventTitle)
	}
	if ctx.PrimaryLocation != "" {
		s += fmt.Sprintf(" Set in %s.", ctx.PrimaryLocation)
	}
	if len(ctx.SecondaryLocations) > 0 {
		s += fmt.Sprintf(" Also touches %s.", strings.Join(ctx.SecondaryLocations, ", "))
	}
	if len(ctx.ParticipantNames) > 0 {
		s += fmt.Sprintf(" Featuring %s.", strings.Join(ctx.ParticipantNames, ", "))
	}
	return truncate(s)
}

// Knowledge builds a knowledge atom's composite, attributed to its
// owning character.
func Knowledge(k *model.Knowledge, ownerName string) string {
	s := k.Fact
	if ownerName != "" {
		s = fmt.Sprintf("%s %s %s", ownerName, certaintyAdverb(model.CertaintyKnows), k.Fact)
	}
	return truncate(s)
}

// RelatesToContext resolves both endpoints' display names.
type RelatesToContext struct {
	FromName string
	ToName   string
}

func RelatesTo(r *model.RelatesTo, ctx RelatesToContext) string {
	s := fmt.Sprintf("%s has a %s relationship with %s.", ctx.FromName, r.RelType, ctx.ToName)
	if r.Subtype != "" {
		s += fmt.Sprintf(" Specifically, %s.", r.Subtype)
	}
	if r.Label != "" {
		s += " " + r.Label
	}
	return truncate(s)
}

// PerceivesContext is the one-hop enrichment a perspective composite
// needs: both endpoint names, the observer's knowledge about the
// target (capped to 5, most recent first), and shared scenes (capped
// to 5).
type PerceivesContext struct {
	ObserverName      string
	TargetName        string
	KnowledgeOfTarget []*model.Knows // already capped/ordered by caller
	SharedScenes      []*model.Scene // already capped by caller
}

func Perceives(p *model.Perceives, ctx PerceivesContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s's perception of %s.", ctx.ObserverName, ctx.TargetName)
	if len(p.RelTypes) > 0 {
		fmt.Fprintf(&b, " Relationship types: %s.", strings.Join(p.RelTypes, ", "))
	}
	if p.Subtype != "" {
		fmt.Fprintf(&b, " Subtype: %s.", p.Subtype)
	}
	if p.Feelings != "" {
		fmt.Fprintf(&b, " Feelings: %s.", p.Feelings)
	}
	if p.Perception != "" {
		fmt.Fprintf(&b, " Perceives %s as: %s.", ctx.TargetName, p.Perception)
	}
	fmt.Fprintf(&b, " Tension level: %d/10.", p.TensionLevel)
	if p.HistoryNotes != "" {
		fmt.Fprintf(&b, " History: %s.", p.HistoryNotes)
	}
	if len(ctx.KnowledgeOfTarget) > 0 {
		var facts []string
		for i, k := range ctx.KnowledgeOfTarget {
			if i >= maxKnowledgeRecent {
				break
			}
			facts = append(facts, fmt.Sprintf("%s %s", certaintyAdverb(k.Certainty), k.TruthValue))
		}
		if len(facts) > 0 {
			fmt.Fprintf(&b, " %s knows about %s: %s.", ctx.ObserverName, ctx.TargetName, strings.Join(facts, "; "))
		}
	}
	if len(ctx.SharedScenes) > 0 {
		var titles []string
		for i, sc := range ctx.SharedScenes {
			if i >= maxSharedScenes {
				break
			}
			titles = append(titles, sc.Title)
		}
		fmt.Fprintf(&b, " Shared scenes: %s.", strings.Join(titles, "; "))
	}
	return truncate(b.String())
}
