package store

import (
	"encoding/json"
	"time"

	"github.com/florinutz/narra-core/internal/corerr"
)

// PhaseRecord is one cluster produced by phase detection.
type PhaseRecord struct {
	ID        string
	Index     int
	Label     string
	EntityIDs []string
	CreatedAt time.Time
}

// ReplacePhases atomically swaps the entire phase table contents —
// phase detection's "when saved, all prior phase records are
// replaced" rule.
func (s *Store) ReplacePhases(records []PhaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return corerr.Store(err, "begin phase replace")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM phase`); err != nil {
		return corerr.Store(err, "clear phase table")
	}
	for _, r := range records {
		ids, _ := json.Marshal(r.EntityIDs)
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.Exec(`INSERT INTO phase (id, phase_index, label, entity_ids, created_at) VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.Index, nullStr(r.Label), string(ids), r.CreatedAt.Unix()); err != nil {
			return corerr.Store(err, "insert phase %s", r.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return corerr.Store(err, "commit phase replace")
	}
	return nil
}

func (s *Store) ListPhases() ([]PhaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, phase_index, label, entity_ids, created_at FROM phase ORDER BY phase_index ASC`)
	if err != nil {
		return nil, corerr.Store(err, "list phases")
	}
	defer rows.Close()

	var out []PhaseRecord
	for rows.Next() {
		var r PhaseRecord
		var label string
		var idsJSON string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Index, &label, &idsJSON, &createdAt); err != nil {
			return nil, corerr.Store(err, "scan phase")
		}
		r.Label = label
		_ = json.Unmarshal([]byte(idsJSON), &r.EntityIDs)
		r.CreatedAt = unixToTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
