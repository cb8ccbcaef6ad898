package store

import (
	"database/sql"
	"time"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

const arcSnapshotColumns = `id, entity_id, entity_type, embedding, delta_magnitude, event_id, created_at`

// AppendArcSnapshot writes a new row; arc_snapshot is append-only
// (I3), so there is no update path here.
func (s *Store) AppendArcSnapshot(a *model.ArcSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var delta sql.NullFloat64
	if a.DeltaMagnitude != nil {
		delta = sql.NullFloat64{Float64: *a.DeltaMagnitude, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO arc_snapshot (`+arcSnapshotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.EntityID, a.EntityType, encodeVector(a.Embedding), delta, nullStr(a.EventID), a.CreatedAt.Unix())
	if err != nil {
		return corerr.Store(err, "append arc_snapshot for %s", a.EntityID)
	}
	return nil
}

func scanArcSnapshot(row interface{ Scan(...any) error }) (*model.ArcSnapshot, error) {
	var a model.ArcSnapshot
	var delta sql.NullFloat64
	var eventID sql.NullString
	var createdAt int64
	var emb []byte
	err := row.Scan(&a.ID, &a.EntityID, &a.EntityType, &emb, &delta, &eventID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Embedding = decodeVector(emb)
	if delta.Valid {
		a.DeltaMagnitude = &delta.Float64
	}
	a.EventID = strOf(eventID)
	a.CreatedAt = unixToTime(createdAt)
	return &a, nil
}

// ArcHistory returns an entity's snapshots oldest-first, capped to
// limit (0 = unlimited).
func (s *Store) ArcHistory(entityID string, limit int) ([]*model.ArcSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT ` + arcSnapshotColumns + ` FROM arc_snapshot WHERE entity_id = ? ORDER BY created_at ASC`
	args := []any{entityID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, corerr.Store(err, "arc history for %s", entityID)
	}
	defer rows.Close()
	var out []*model.ArcSnapshot
	for rows.Next() {
		a, err := scanArcSnapshot(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan arc_snapshot")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ArcSnapshotCount(entityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM arc_snapshot WHERE entity_id = ?`, entityID).Scan(&n)
	if err != nil {
		return 0, corerr.Store(err, "count arc_snapshot for %s", entityID)
	}
	return n, nil
}

// DriftRow is one row of the drift_ranking query.
type DriftRow struct {
	EntityID   string
	EntityType string
	Drift      float64
}

// DriftRanking sums delta_magnitude per entity, optionally filtered
// to one entity_type, descending.
func (s *Store) DriftRanking(entityType string, limit int) ([]DriftRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT entity_id, entity_type, SUM(COALESCE(delta_magnitude, 0)) AS drift
		FROM arc_snapshot`
	var args []any
	if entityType != "" {
		q += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	q += ` GROUP BY entity_id, entity_type ORDER BY drift DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, corerr.Store(err, "drift ranking")
	}
	defer rows.Close()
	var out []DriftRow
	for rows.Next() {
		var d DriftRow
		if err := rows.Scan(&d.EntityID, &d.EntityType, &d.Drift); err != nil {
			return nil, corerr.Store(err, "scan drift row")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ArcMoment returns the latest snapshot whose event_id equals eventID,
// falling back to the entity's latest snapshot when eventID is empty
// or matches none. No created_at proximity search is done.
func (s *Store) ArcMoment(entityID, eventID string) (*model.ArcSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if eventID != "" {
		a, err := scanArcSnapshot(s.db.QueryRow(`
			SELECT `+arcSnapshotColumns+` FROM arc_snapshot
			WHERE entity_id = ? AND event_id = ? ORDER BY created_at DESC LIMIT 1
		`, entityID, eventID))
		if err != nil {
			return nil, corerr.Store(err, "arc moment for %s", entityID)
		}
		if a != nil {
			return a, nil
		}
	}
	a, err := scanArcSnapshot(s.db.QueryRow(`
		SELECT `+arcSnapshotColumns+` FROM arc_snapshot
		WHERE entity_id = ? ORDER BY created_at DESC LIMIT 1
	`, entityID))
	if err != nil {
		return nil, corerr.Store(err, "arc moment for %s", entityID)
	}
	if a == nil {
		return nil, corerr.NotFound(entityID, "no arc snapshot for entity")
	}
	return a, nil
}

// HasAnySnapshot reports whether entityID already has at least one
// snapshot, the idempotency check used by baselining (S5).
func (s *Store) HasAnySnapshot(entityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM arc_snapshot WHERE entity_id = ? LIMIT 1`, entityID).Scan(&n)
	if err != nil {
		return false, corerr.Store(err, "check snapshot existence for %s", entityID)
	}
	return n > 0, nil
}
