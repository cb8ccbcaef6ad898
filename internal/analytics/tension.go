package analytics

import (
	"strings"

	"github.com/florinutz/narra-core/internal/model"
)

// TensionSignal is one structural source of narrative tension between
// two characters.
type TensionSignal struct {
	Type   string // opposing_desires | contradictory_knowledge | conflicting_loyalties | edge_tension
	Detail string
	Weight float64
}

type NarrativeTension struct {
	CharacterAID string
	CharacterBID string
	Signals      []TensionSignal
	Severity     float64
	DominantSignal string
	Hints        []string
}

// oppositionPairs is the fixed keyword-opposition list used to detect
// opposing desires across two characters' profile entries.
var oppositionPairs = [][2]string{
	{"freedom", "control"},
	{"truth", "secrecy"},
	{"revenge", "forgiveness"},
	{"power", "humility"},
	{"loyalty", "betrayal"},
	{"order", "chaos"},
	{"isolation", "belonging"},
}

// signalWeight is the fixed combination weight per category; the
// dominant signal is the category contributing the most after
// weighting, not a raw count.
var signalWeight = map[string]float64{
	"opposing_desires":       0.25,
	"contradictory_knowledge": 0.3,
	"conflicting_loyalties":  0.25,
	"edge_tension":           0.2,
}

func (s *Service) NarrativeTension(aID, bID string) (*NarrativeTension, error) {
	a, err := s.store.GetCharacter(aID)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetCharacter(bID)
	if err != nil {
		return nil, err
	}

	result := &NarrativeTension{CharacterAID: aID, CharacterBID: bID}
	contributions := make(map[string]float64)

	if sig, detail, ok := opposingDesires(a, b); ok {
		result.Signals = append(result.Signals, TensionSignal{Type: "opposing_desires", Detail: detail, Weight: sig})
		contributions["opposing_desires"] = sig * signalWeight["opposing_desires"]
	}

	if sigs, err := s.contradictoryKnowledge(aID, bID); err != nil {
		return nil, err
	} else if len(sigs) > 0 {
		score := clampUnit(float64(len(sigs)) / 3)
		for _, d := range sigs {
			result.Signals = append(result.Signals, TensionSignal{Type: "contradictory_knowledge", Detail: d, Weight: score})
		}
		contributions["contradictory_knowledge"] = score * signalWeight["contradictory_knowledge"]
	}

	if loyaltyDetail, ok, err := s.conflictingLoyalties(aID, bID); err != nil {
		return nil, err
	} else if ok {
		result.Signals = append(result.Signals, TensionSignal{Type: "conflicting_loyalties", Detail: loyaltyDetail, Weight: 1})
		contributions["conflicting_loyalties"] = signalWeight["conflicting_loyalties"]
	}

	tension := pairTension(s, aID, bID)
	if tension > 0 {
		score := float64(tension) / 10
		result.Signals = append(result.Signals, TensionSignal{Type: "edge_tension", Detail: "perceives tension_level", Weight: score})
		contributions["edge_tension"] = score * signalWeight["edge_tension"]
	}

	var severity float64
	var dominant string
	var dominantScore float64
	for t, c := range contributions {
		severity += c
		if c > dominantScore {
			dominantScore, dominant = c, t
		}
	}
	result.Severity = clampUnit(severity)
	result.DominantSignal = dominant
	if len(result.Signals) == 0 {
		result.Hints = append(result.Hints, "no structural tension signals found between these characters")
	}
	return result, nil
}

func opposingDesires(a, b *model.Character) (float64, string, bool) {
	aEntries := allProfileEntries(a)
	bEntries := allProfileEntries(b)
	for _, pair := range oppositionPairs {
		aHasX := containsKeyword(aEntries, pair[0])
		bHasY := containsKeyword(bEntries, pair[1])
		aHasY := containsKeyword(aEntries, pair[1])
		bHasX := containsKeyword(bEntries, pair[0])
		if (aHasX && bHasY) || (aHasY && bHasX) {
			return 1, pair[0] + " vs " + pair[1], true
		}
	}
	return 0, "", false
}

func allProfileEntries(c *model.Character) []string {
	var out []string
	for _, entries := range c.Profile {
		out = append(out, entries...)
	}
	return out
}

func containsKeyword(entries []string, keyword string) bool {
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e), keyword) {
			return true
		}
	}
	return false
}

// contradictoryKnowledge flags targets where one character knows a
// fact and the other believes_wrongly about the same target.
func (s *Service) contradictoryKnowledge(aID, bID string) ([]string, error) {
	aKnows, err := s.store.KnowsFromCharacter(aID)
	if err != nil {
		return nil, err
	}
	bKnows, err := s.store.KnowsFromCharacter(bID)
	if err != nil {
		return nil, err
	}
	aByTarget := indexKnowsByTarget(aKnows)
	bByTarget := indexKnowsByTarget(bKnows)

	var out []string
	for target, a := range aByTarget {
		if b, ok := bByTarget[target]; ok {
			if a.Certainty == model.CertaintyKnows && b.Certainty == model.CertaintyBelievesWrongly {
				out = append(out, target+": "+aID+" knows, "+bID+" believes wrongly")
			}
			if b.Certainty == model.CertaintyKnows && a.Certainty == model.CertaintyBelievesWrongly {
				out = append(out, target+": "+bID+" knows, "+aID+" believes wrongly")
			}
		}
	}
	return out, nil
}

// conflictingLoyalties flags a shared third party X where a is an
// ally of X and b is a rival of X (or vice versa).
func (s *Service) conflictingLoyalties(aID, bID string) (string, bool, error) {
	aEdges, err := s.store.RelatesToForCharacter(aID)
	if err != nil {
		return "", false, err
	}
	bEdges, err := s.store.RelatesToForCharacter(bID)
	if err != nil {
		return "", false, err
	}

	aAllies := relTargetsByType(aEdges, aID, "ally")
	aRivals := relTargetsByType(aEdges, aID, "rival")
	bAllies := relTargetsByType(bEdges, bID, "ally")
	bRivals := relTargetsByType(bEdges, bID, "rival")

	for x := range aAllies {
		if bRivals[x] {
			return x, true, nil
		}
	}
	for x := range aRivals {
		if bAllies[x] {
			return x, true, nil
		}
	}
	return "", false, nil
}

func relTargetsByType(edges []*model.RelatesTo, selfID, relType string) map[string]bool {
	out := make(map[string]bool)
	for _, e := range edges {
		if e.RelType != relType {
			continue
		}
		other := e.ToID
		if e.FromID != selfID {
			other = e.FromID
		}
		out[other] = true
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
