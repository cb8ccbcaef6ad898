package store

import (
	"database/sql"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

const eventColumns = `id, title, description, sequence, date, date_precision, duration_end,
	embedding, composite_text, embedding_stale`

func (s *Store) UpsertEvent(e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, description = excluded.description, sequence = excluded.sequence,
			date = excluded.date, date_precision = excluded.date_precision, duration_end = excluded.duration_end,
			embedding = excluded.embedding, composite_text = excluded.composite_text,
			embedding_stale = excluded.embedding_stale
	`, e.ID, e.Title, nullStr(e.Description), e.Sequence, nullStr(e.Date), nullStr(string(e.DatePrecision)),
		nullStr(e.DurationEnd), encodeVector(e.Embedding), nullStr(e.CompositeText), boolToInt(e.EmbeddingStale))
	if err != nil {
		return corerr.Store(err, "upsert event %s", e.ID)
	}
	return nil
}

func scanEvent(row interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var description, date, precision, durationEnd, composite sql.NullString
	var stale int
	var emb []byte
	err := row.Scan(&e.ID, &e.Title, &description, &e.Sequence, &date, &precision, &durationEnd,
		&emb, &composite, &stale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Description = strOf(description)
	e.Date = strOf(date)
	e.DatePrecision = model.DatePrecision(strOf(precision))
	e.DurationEnd = strOf(durationEnd)
	e.Embedding = decodeVector(emb)
	e.CompositeText = strOf(composite)
	e.EmbeddingStale = stale != 0
	return &e, nil
}

func (s *Store) GetEvent(id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := scanEvent(s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		return nil, corerr.Store(err, "get event %s", id)
	}
	if e == nil {
		return nil, corerr.NotFound(id, "event not found")
	}
	return e, nil
}

func (s *Store) ListEvents(onlyStale bool) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT ` + eventColumns + ` FROM events ORDER BY sequence ASC`
	if onlyStale {
		q = `SELECT ` + eventColumns + ` FROM events WHERE embedding_stale = 1 ORDER BY sequence ASC`
	}
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, corerr.Store(err, "list events")
	}
	defer rows.Close()
	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan event")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM scenes WHERE event_id = ?`, id).Scan(&refCount); err != nil {
		return corerr.Store(err, "check references for %s", id)
	}
	if refCount > 0 {
		return corerr.ReferentialIntegrity(id, "referenced by scenes; remove them first")
	}

	res, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return corerr.Store(err, "delete event %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return corerr.NotFound(id, "event not found")
	}
	return nil
}
