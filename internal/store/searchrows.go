package store

import (
	"database/sql"
	"strings"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

// SearchRow is the uniform row shape every retrieval mode scans
// before it becomes a ranked result.
type SearchRow struct {
	ID            string
	Kind          model.Kind
	Name          string // name/title/fact — the field keyword search hits
	Body          string // secondary field (none for most kinds)
	CompositeText string
	Embedding     model.Vector
}

// Filters is the whitelisted per-kind metadata-filter set;
// any field the caller sets for a kind it doesn't apply to is
// silently ignored, never rejected.
type Filters struct {
	RolesContains string
	NameContains  string
	SequenceMin   *int64
	SequenceMax   *int64
	LocType       string
}

// ListSearchable returns every record of kind as a SearchRow, with
// whitelisted filters applied at the SQL layer — parameter-bound,
// never interpolated. Unsupported kinds return an empty slice.
func (s *Store) ListSearchable(kind model.Kind, f Filters, cap int) ([]SearchRow, error) {
	switch kind {
	case model.KindCharacter:
		return s.searchableCharacters(f, cap)
	case model.KindLocation:
		return s.searchableLocations(f, cap)
	case model.KindEvent:
		return s.searchableEvents(f, cap)
	case model.KindScene:
		return s.searchableScenes(cap)
	case model.KindKnowledge:
		return s.searchableKnowledge(cap)
	default:
		return nil, nil
	}
}

func withCap(q string, capN int) string {
	if capN > 0 {
		return q + " LIMIT ?"
	}
	return q
}

func capArgs(args []any, capN int) []any {
	if capN > 0 {
		return append(args, capN)
	}
	return args
}

func (s *Store) searchableCharacters(f Filters, capN int) ([]SearchRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, name, aliases, roles, composite_text, embedding FROM characters WHERE 1=1`
	var args []any
	if f.NameContains != "" {
		q += ` AND lower(name) LIKE ?`
		args = append(args, "%"+strings.ToLower(f.NameContains)+"%")
	}
	if f.RolesContains != "" {
		q += ` AND roles LIKE ?`
		args = append(args, "%\""+f.RolesContains+"\"%")
	}
	q = withCap(q, capN)
	args = capArgs(args, capN)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, corerr.Store(err, "list searchable characters")
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var id, name string
		var aliases, roles, composite sql.NullString
		var emb []byte
		if err := rows.Scan(&id, &name, &aliases, &roles, &composite, &emb); err != nil {
			return nil, corerr.Store(err, "scan searchable character")
		}
		row := SearchRow{ID: id, Kind: model.KindCharacter, Name: name, CompositeText: strOf(composite), Embedding: decodeVector(emb)}
		for _, a := range unmarshalStrings(aliases) {
			row.Body += " " + a
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) searchableLocations(f Filters, capN int) ([]SearchRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, name, loc_type, composite_text, embedding FROM locations WHERE 1=1`
	var args []any
	if f.LocType != "" {
		q += ` AND loc_type = ?`
		args = append(args, f.LocType)
	}
	q = withCap(q, capN)
	args = capArgs(args, capN)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, corerr.Store(err, "list searchable locations")
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var id, name string
		var locType, composite sql.NullString
		var emb []byte
		if err := rows.Scan(&id, &name, &locType, &composite, &emb); err != nil {
			return nil, corerr.Store(err, "scan searchable location")
		}
		out = append(out, SearchRow{ID: id, Kind: model.KindLocation, Name: name, CompositeText: strOf(composite), Embedding: decodeVector(emb)})
	}
	return out, rows.Err()
}

func (s *Store) searchableEvents(f Filters, capN int) ([]SearchRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, title, sequence, composite_text, embedding FROM events WHERE 1=1`
	var args []any
	if f.SequenceMin != nil {
		q += ` AND sequence >= ?`
		args = append(args, *f.SequenceMin)
	}
	if f.SequenceMax != nil {
		q += ` AND sequence <= ?`
		args = append(args, *f.SequenceMax)
	}
	q = withCap(q, capN)
	args = capArgs(args, capN)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, corerr.Store(err, "list searchable events")
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var id, title string
		var seq int64
		var composite sql.NullString
		var emb []byte
		if err := rows.Scan(&id, &title, &seq, &composite, &emb); err != nil {
			return nil, corerr.Store(err, "scan searchable event")
		}
		out = append(out, SearchRow{ID: id, Kind: model.KindEvent, Name: title, CompositeText: strOf(composite), Embedding: decodeVector(emb)})
	}
	return out, rows.Err()
}

func (s *Store) searchableScenes(capN int) ([]SearchRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := withCap(`SELECT id, title, summary, composite_text, embedding FROM scenes`, capN)
	var args []any
	args = capArgs(args, capN)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, corerr.Store(err, "list searchable scenes")
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var id, title string
		var summary, composite sql.NullString
		var emb []byte
		if err := rows.Scan(&id, &title, &summary, &composite, &emb); err != nil {
			return nil, corerr.Store(err, "scan searchable scene")
		}
		out = append(out, SearchRow{ID: id, Kind: model.KindScene, Name: title, Body: strOf(summary), CompositeText: strOf(composite), Embedding: decodeVector(emb)})
	}
	return out, rows.Err()
}

func (s *Store) searchableKnowledge(capN int) ([]SearchRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := withCap(`SELECT id, fact, composite_text, embedding FROM knowledge`, capN)
	var args []any
	args = capArgs(args, capN)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, corerr.Store(err, "list searchable knowledge")
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var id, fact string
		var composite sql.NullString
		var emb []byte
		if err := rows.Scan(&id, &fact, &composite, &emb); err != nil {
			return nil, corerr.Store(err, "scan searchable knowledge")
		}
		out = append(out, SearchRow{ID: id, Kind: model.KindKnowledge, Name: fact, CompositeText: strOf(composite), Embedding: decodeVector(emb)})
	}
	return out, rows.Err()
}

// AllKindsSearched is the fixed table fan-out order used by every
// multi-table retrieval mode.
var AllKindsSearched = []model.Kind{
	model.KindCharacter, model.KindLocation, model.KindEvent, model.KindScene, model.KindKnowledge,
}
