package store

import (
	"database/sql"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

const locationColumns = `id, name, description, loc_type, parent_id, embedding, composite_text, embedding_stale`

func (s *Store) UpsertLocation(l *model.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ParentID != "" {
		var exists int
		if err := s.db.QueryRow(`SELECT 1 FROM locations WHERE id = ?`, l.ParentID).Scan(&exists); err == sql.ErrNoRows {
			return corerr.Validation("parent location %s does not exist", l.ParentID)
		} else if err != nil {
			return corerr.Store(err, "check parent location")
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO locations (`+locationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, loc_type = excluded.loc_type,
			parent_id = excluded.parent_id, embedding = excluded.embedding,
			composite_text = excluded.composite_text, embedding_stale = excluded.embedding_stale
	`, l.ID, l.Name, nullStr(l.Description), nullStr(l.LocType), nullStr(l.ParentID),
		encodeVector(l.Embedding), nullStr(l.CompositeText), boolToInt(l.EmbeddingStale))
	if err != nil {
		return corerr.Store(err, "upsert location %s", l.ID)
	}
	return nil
}

func scanLocation(row interface{ Scan(...any) error }) (*model.Location, error) {
	var l model.Location
	var description, locType, parentID, composite sql.NullString
	var stale int
	var emb []byte
	err := row.Scan(&l.ID, &l.Name, &description, &locType, &parentID, &emb, &composite, &stale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.Description = strOf(description)
	l.LocType = strOf(locType)
	l.ParentID = strOf(parentID)
	l.Embedding = decodeVector(emb)
	l.CompositeText = strOf(composite)
	l.EmbeddingStale = stale != 0
	return &l, nil
}

func (s *Store) GetLocation(id string) (*model.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := scanLocation(s.db.QueryRow(`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id))
	if err != nil {
		return nil, corerr.Store(err, "get location %s", id)
	}
	if l == nil {
		return nil, corerr.NotFound(id, "location not found")
	}
	return l, nil
}

func (s *Store) ChildLocations(parentID string) ([]*model.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT `+locationColumns+` FROM locations WHERE parent_id = ?`, parentID)
	if err != nil {
		return nil, corerr.Store(err, "list child locations of %s", parentID)
	}
	defer rows.Close()
	var out []*model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan location")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) ListLocations(onlyStale bool) ([]*model.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT ` + locationColumns + ` FROM locations`
	if onlyStale {
		q += ` WHERE embedding_stale = 1`
	}
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, corerr.Store(err, "list locations")
	}
	defer rows.Close()
	var out []*model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan location")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) DeleteLocation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refCount int
	err := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM locations WHERE parent_id = ?) +
		(SELECT COUNT(*) FROM scenes WHERE primary_location_id = ?)`, id, id).Scan(&refCount)
	if err != nil {
		return corerr.Store(err, "check references for %s", id)
	}
	if refCount > 0 {
		return corerr.ReferentialIntegrity(id, "referenced by child locations or scenes; remove them first")
	}

	res, err := s.db.Exec(`DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return corerr.Store(err, "delete location %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return corerr.NotFound(id, "location not found")
	}
	return nil
}
