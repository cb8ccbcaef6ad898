package store

import (
	"database/sql"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

const universeFactColumns = `id, title, description, categories, enforcement_level, scope`

// UpsertUniverseFact is plain storage: consistency checks against
// these facts are an out-of-core collaborator's job.
func (s *Store) UpsertUniverseFact(f *model.UniverseFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	level := string(f.EnforcementLevel)
	if level == "" {
		level = string(model.EnforcementInformational)
	}
	_, err := s.db.Exec(`
		INSERT INTO universe_fact (`+universeFactColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, description = excluded.description,
			categories = excluded.categories, enforcement_level = excluded.enforcement_level,
			scope = excluded.scope
	`, f.ID, f.Title, nullStr(f.Description), marshalStrings(f.Categories), level, nullStr(f.Scope))
	if err != nil {
		return corerr.Store(err, "upsert universe_fact %s", f.ID)
	}
	return nil
}

func (s *Store) GetUniverseFact(id string) (*model.UniverseFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var f model.UniverseFact
	var description, categories, scope sql.NullString
	var level string
	err := s.db.QueryRow(`SELECT `+universeFactColumns+` FROM universe_fact WHERE id = ?`, id).
		Scan(&f.ID, &f.Title, &description, &categories, &level, &scope)
	if err == sql.ErrNoRows {
		return nil, corerr.NotFound(id, "universe_fact not found")
	}
	if err != nil {
		return nil, corerr.Store(err, "get universe_fact %s", id)
	}
	f.Description = strOf(description)
	f.Categories = unmarshalStrings(categories)
	f.EnforcementLevel = model.EnforcementLevel(level)
	f.Scope = strOf(scope)
	return &f, nil
}

func (s *Store) ListUniverseFacts() ([]*model.UniverseFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT ` + universeFactColumns + ` FROM universe_fact`)
	if err != nil {
		return nil, corerr.Store(err, "list universe_fact")
	}
	defer rows.Close()
	var out []*model.UniverseFact
	for rows.Next() {
		var f model.UniverseFact
		var description, categories, scope sql.NullString
		var level string
		if err := rows.Scan(&f.ID, &f.Title, &description, &categories, &level, &scope); err != nil {
			return nil, corerr.Store(err, "scan universe_fact")
		}
		f.Description = strOf(description)
		f.Categories = unmarshalStrings(categories)
		f.EnforcementLevel = model.EnforcementLevel(level)
		f.Scope = strOf(scope)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *Store) DeleteUniverseFact(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM universe_fact WHERE id = ?`, id)
	if err != nil {
		return corerr.Store(err, "delete universe_fact %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return corerr.NotFound(id, "universe_fact not found")
	}
	return nil
}
