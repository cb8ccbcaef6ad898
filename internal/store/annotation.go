package store

import (
	"database/sql"
	"time"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

const annotationColumns = `entity_id, model_type, model_version, output, computed_at, stale`

func (s *Store) UpsertAnnotation(a *model.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ComputedAt.IsZero() {
		a.ComputedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO annotation (`+annotationColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, model_type) DO UPDATE SET
			model_version = excluded.model_version, output = excluded.output,
			computed_at = excluded.computed_at, stale = excluded.stale
	`, a.EntityID, a.ModelType, a.ModelVersion, a.Output, a.ComputedAt.Unix(), boolToInt(a.Stale))
	if err != nil {
		return corerr.Store(err, "upsert annotation %s/%s", a.EntityID, a.ModelType)
	}
	return nil
}

func (s *Store) GetAnnotation(entityID, modelType string) (*model.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a model.Annotation
	var computedAt int64
	var stale int
	err := s.db.QueryRow(`SELECT `+annotationColumns+` FROM annotation WHERE entity_id = ? AND model_type = ?`,
		entityID, modelType).Scan(&a.EntityID, &a.ModelType, &a.ModelVersion, &a.Output, &computedAt, &stale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, corerr.Store(err, "get annotation %s/%s", entityID, modelType)
	}
	a.ComputedAt = unixToTime(computedAt)
	a.Stale = stale != 0
	return &a, nil
}

// MarkAnnotationsStale flips stale=true for every annotation owned by
// entityID — invoked whenever that entity is marked stale for
// embedding.
func (s *Store) MarkAnnotationsStale(entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE annotation SET stale = 1 WHERE entity_id = ?`, entityID)
	if err != nil {
		return corerr.Store(err, "mark annotations stale for %s", entityID)
	}
	return nil
}

// DeleteAnnotationsForEntity removes every annotation for entityID,
// called on entity delete per the staleness manager's cascade rules.
func (s *Store) DeleteAnnotationsForEntity(entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM annotation WHERE entity_id = ?`, entityID)
	if err != nil {
		return corerr.Store(err, "delete annotations for %s", entityID)
	}
	return nil
}
