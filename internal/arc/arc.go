// Package arc provides the higher-level arc-snapshot service: history
// with cumulative drift, two-entity comparison, drift ranking, moment
// lookup, and one-shot baselining — all composed over the store's
// append-only arc_snapshot ledger.
package arc

import (
	"context"

	"github.com/florinutz/narra-core/internal/corelog"
	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
	"github.com/florinutz/narra-core/internal/stale"
	"github.com/florinutz/narra-core/internal/store"
	"github.com/florinutz/narra-core/internal/vecmath"
)

// Service wraps a store's arc_snapshot ledger. Baselining, which needs
// a regeneration manager, is the package-level Baseline function.
type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Step is one history entry: the raw snapshot plus its delta against
// the previous snapshot (duplicated from ArcSnapshot.DeltaMagnitude
// for callers that want it without re-deriving) and the running sum.
type Step struct {
	Snapshot      *model.ArcSnapshot
	Delta         *float64
	CumulativeSum float64
}

// History returns entityID's snapshots in chronological order, each
// annotated with its delta and the running cumulative drift.
func (s *Service) History(entityID string, limit int) ([]Step, error) {
	snaps, err := s.store.ArcHistory(entityID, limit)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, len(snaps))
	var cum float64
	for i, snap := range snaps {
		if snap.DeltaMagnitude != nil {
			cum += *snap.DeltaMagnitude
		}
		steps[i] = Step{Snapshot: snap, Delta: snap.DeltaMagnitude, CumulativeSum: cum}
	}
	return steps, nil
}

// Comparison is the initial/current/trajectory similarity result
// between two entities' arc histories.
type Comparison struct {
	InitialSimilarity     float64
	CurrentSimilarity     float64
	TrajectorySimilarity  float64
	ConvergenceDelta      float64
	InsufficientHistory   bool
}

// Compare computes initial similarity (first snapshots), current
// similarity (last snapshots), trajectory similarity (cosine between
// each entity's "drift vector" last-first), and the convergence delta
// (current - initial). A positive window limits each entity's history
// to its first window snapshots (oldest first); 0 reads the full
// recorded history.
func (s *Service) Compare(a, b string, window int) (*Comparison, error) {
	histA, err := s.store.ArcHistory(a, window)
	if err != nil {
		return nil, err
	}
	histB, err := s.store.ArcHistory(b, window)
	if err != nil {
		return nil, err
	}
	if len(histA) == 0 || len(histB) == 0 {
		return &Comparison{InsufficientHistory: true}, nil
	}

	firstA, lastA := histA[0], histA[len(histA)-1]
	firstB, lastB := histB[0], histB[len(histB)-1]

	initial := vecmath.Cosine(firstA.Embedding, firstB.Embedding)
	current := vecmath.Cosine(lastA.Embedding, lastB.Embedding)

	driftA := driftVector(firstA.Embedding, lastA.Embedding)
	driftB := driftVector(firstB.Embedding, lastB.Embedding)
	trajectory := vecmath.Cosine(driftA, driftB)

	return &Comparison{
		InitialSimilarity:    initial,
		CurrentSimilarity:    current,
		TrajectorySimilarity: trajectory,
		ConvergenceDelta:     current - initial,
	}, nil
}

func driftVector(first, last []float32) []float32 {
	if len(first) != len(last) {
		return nil
	}
	out := make([]float32, len(first))
	for i := range first {
		out[i] = last[i] - first[i]
	}
	return out
}

// DriftRanking returns cumulative drift per entity, descending,
// optionally filtered to one entity_type friendly name.
func (s *Service) DriftRanking(entityType string, limit int) ([]store.DriftRow, error) {
	return s.store.DriftRanking(entityType, limit)
}

// Moment returns the latest snapshot tagged with eventID, or the
// entity's latest snapshot when eventID is empty or no snapshot
// carries it. Snapshots are matched on event_id equality only; no
// created_at proximity search is done.
func (s *Service) Moment(entityID, eventID string) (*model.ArcSnapshot, error) {
	return s.store.ArcMoment(entityID, eventID)
}

// Baseline iterates every embedded entity of the arc-trackable kinds
// and, for any with no snapshot yet, forces a regeneration so a first
// snapshot is written. Idempotent: entities with >=1 snapshot are
// skipped, so re-running after a partial baseline only fills gaps.
func Baseline(ctx context.Context, s *store.Store, mgr *stale.Manager) (int, error) {
	log := corelog.Sugar()
	written := 0

	kindLister := map[model.Kind]func() ([]string, error){
		model.KindCharacter: func() ([]string, error) { return idsOf(s.ListCharacters(false)) },
		model.KindKnowledge: func() ([]string, error) { return idsOfKnowledge(s) },
		model.KindRelatesTo: func() ([]string, error) { return idsOfRelatesTo(s) },
		model.KindPerceives: func() ([]string, error) { return idsOfPerceives(s) },
	}

	for kind, lister := range kindLister {
		ids, err := lister()
		if err != nil {
			return written, corerr.Store(err, "list entities for baseline (%s)", kind)
		}
		for _, id := range ids {
			has, err := s.HasAnySnapshot(id)
			if err != nil {
				log.Warnw("baseline: snapshot check failed", "entity_id", id, "error", err)
				continue
			}
			if has {
				continue
			}
			if err := mgr.Regenerate(ctx, id, ""); err != nil {
				log.Warnw("baseline: regeneration failed", "entity_id", id, "error", err)
				continue
			}
			written++
		}
	}
	return written, nil
}

func idsOf(characters []*model.Character, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	out := make([]string, len(characters))
	for i, c := range characters {
		out[i] = c.ID
	}
	return out, nil
}

func idsOfKnowledge(s *store.Store) ([]string, error) {
	items, err := s.ListKnowledge(false)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, k := range items {
		out[i] = k.ID
	}
	return out, nil
}

func idsOfRelatesTo(s *store.Store) ([]string, error) {
	items, err := s.ListRelatesTo(false)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, r := range items {
		out[i] = r.ID
	}
	return out, nil
}

func idsOfPerceives(s *store.Store) ([]string, error) {
	items, err := s.ListPerceives(false)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = p.ID
	}
	return out, nil
}
