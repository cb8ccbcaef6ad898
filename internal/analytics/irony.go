package analytics

import (
	"fmt"
	"sort"

	"github.com/florinutz/narra-core/internal/model"
)

// Asymmetry is one target on which two characters' knows-edges
// disagree: one asserts certainty the other denies, doubts, or lacks
// entirely.
type Asymmetry struct {
	TargetID       string
	ACertainty     model.Certainty // empty if A has no knows edge for this target
	BCertainty     model.Certainty
	SignalStrength string
	DramaticWeight float64
}

type IronyResult struct {
	CharacterAID string
	CharacterBID string
	Asymmetries  []Asymmetry
	Hints        []string
}

// certaintyRank orders certainties from most to least asserted, used
// to measure "depth" of disagreement between two stances.
var certaintyRank = map[model.Certainty]int{
	model.CertaintyKnows:           0,
	model.CertaintyAssumes:         1,
	model.CertaintySuspects:        2,
	model.CertaintyUncertain:       3,
	model.CertaintyForgotten:       4,
	model.CertaintyDenies:          5,
	model.CertaintyBelievesWrongly: 6,
}

// IronyAsymmetry pairs characters a and b's knows edges by target and
// flags targets where their certainties disagree asymmetrically.
func (s *Service) IronyAsymmetry(aID, bID string) (*IronyResult, error) {
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

	shared, err := s.store.SharedScenes(aID, bID)
	if err != nil {
		return nil, err
	}
	tension := pairTension(s, aID, bID)

	targets := make(map[string]bool)
	for t := range aByTarget {
		targets[t] = true
	}
	for t := range bByTarget {
		targets[t] = true
	}
	order := make([]string, 0, len(targets))
	for t := range targets {
		order = append(order, t)
	}
	sort.Strings(order)

	result := &IronyResult{CharacterAID: aID, CharacterBID: bID}
	for _, target := range order {
		a, aOK := aByTarget[target]
		b, bOK := bByTarget[target]
		if aOK && bOK && a.Certainty == b.Certainty {
			continue // agreement, not asymmetry
		}
		if !aOK && !bOK {
			continue
		}
		var aCert, bCert model.Certainty
		if aOK {
			aCert = a.Certainty
		}
		if bOK {
			bCert = b.Certainty
		}
		if !disagreementIsAsymmetric(aCert, bCert) {
			continue
		}

		depth := certaintyDepth(aCert, bCert)
		colocated := len(shared) > 0
		weight := 0.5*depth + 0.3*(float64(tension)/10) + boolWeight(colocated, 0.2)

		result.Asymmetries = append(result.Asymmetries, Asymmetry{
			TargetID:       target,
			ACertainty:     aCert,
			BCertainty:     bCert,
			SignalStrength: signalStrengthLabel(aCert, bCert),
			DramaticWeight: weight,
		})
	}
	if len(result.Asymmetries) == 0 {
		result.Hints = append(result.Hints, "no asymmetric knowledge found between these characters")
	}
	return result, nil
}

func indexKnowsByTarget(knows []*model.Knows) map[string]*model.Knows {
	out := make(map[string]*model.Knows, len(knows))
	for _, k := range knows {
		// last-writer-wins for repeat targets, consistent with
		// append-only history read in learned_at order.
		out[k.TargetID] = k
	}
	return out
}

// disagreementIsAsymmetric is true when one side asserts knowledge
// (knows) and the other denies, doubts, or lacks it — the "A knows, B
// believes_wrongly/uncertain/missing" shape.
func disagreementIsAsymmetric(a, b model.Certainty) bool {
	if a == b {
		return false
	}
	strongA := a == model.CertaintyKnows
	strongB := b == model.CertaintyKnows
	return strongA != strongB
}

func certaintyDepth(a, b model.Certainty) float64 {
	ra, aOK := certaintyRank[a]
	rb, bOK := certaintyRank[b]
	if !aOK {
		ra = len(certaintyRank)
	}
	if !bOK {
		rb = len(certaintyRank)
	}
	diff := ra - rb
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(len(certaintyRank))
}

func signalStrengthLabel(a, b model.Certainty) string {
	label := func(c model.Certainty) string {
		if c == "" {
			return "missing"
		}
		return string(c)
	}
	return fmt.Sprintf("%s_vs_%s", label(a), label(b))
}

func boolWeight(b bool, w float64) float64 {
	if b {
		return w
	}
	return 0
}

// pairTension averages the tension_level of perceives edges between
// a and b in either direction (0 when neither exists).
func pairTension(s *Service, aID, bID string) int {
	total, n := 0, 0
	if p, err := s.store.PerceivesBetween(aID, bID); err == nil && p != nil {
		total += p.TensionLevel
		n++
	}
	if p, err := s.store.PerceivesBetween(bID, aID); err == nil && p != nil {
		total += p.TensionLevel
		n++
	}
	if n == 0 {
		return 0
	}
	return total / n
}
