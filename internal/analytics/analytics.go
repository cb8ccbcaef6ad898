// Package analytics computes derived narrative signals — perception
// gaps, influence reach, knowledge asymmetry, graph centrality,
// narrative phases, and tension — over the document-graph maintained
// by internal/store, composing internal/arc and internal/vecmath.
package analytics

import (
	"github.com/florinutz/narra-core/internal/arc"
	"github.com/florinutz/narra-core/internal/corelog"
	"github.com/florinutz/narra-core/internal/model"
	"github.com/florinutz/narra-core/internal/store"
	"go.uber.org/zap"
)

// Service wires the store and arc service together; every analytic
// here is a read-only composition over their existing contracts.
type Service struct {
	store *store.Store
	arc   *arc.Service
	log   *zap.SugaredLogger
}

func NewService(s *store.Store, a *arc.Service) *Service {
	return &Service{store: s, arc: a, log: corelog.Sugar()}
}

// ArcHistory, ArcCompare, ArcDriftRanking, and ArcMoment are direct
// wrappers over the arc service, exposed alongside the rest of the
// analytics surface.
func (s *Service) ArcHistory(entityID string, limit int) ([]arc.Step, error) {
	return s.arc.History(entityID, limit)
}

func (s *Service) ArcCompare(a, b string, window int) (*arc.Comparison, error) {
	return s.arc.Compare(a, b, window)
}

func (s *Service) ArcDriftRanking(entityType string, limit int) ([]store.DriftRow, error) {
	return s.arc.DriftRanking(entityType, limit)
}

func (s *Service) ArcMoment(entityID, eventID string) (*model.ArcSnapshot, error) {
	return s.arc.Moment(entityID, eventID)
}
