package store

import (
	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

var staleTables = map[model.Kind]string{
	model.KindCharacter: "characters",
	model.KindLocation:  "locations",
	model.KindEvent:     "events",
	model.KindScene:     "scenes",
	model.KindKnowledge: "knowledge",
	model.KindRelatesTo: "relates_to",
	model.KindPerceives: "perceives",
}

// SetEmbeddingStale flips embedding_stale on a single row without
// touching any other column. Idempotent; a no-op if the id is absent.
func (s *Store) SetEmbeddingStale(kind model.Kind, id string, stale bool) error {
	table, ok := staleTables[kind]
	if !ok {
		return corerr.Validation("kind %q does not carry an embedding_stale column", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE `+table+` SET embedding_stale = ? WHERE id = ?`, boolToInt(stale), id)
	if err != nil {
		return corerr.Store(err, "set embedding_stale on %s", id)
	}
	return nil
}

// RelatesToIDsForCharacter returns the ids of every relates_to edge
// touching the given character, from either direction.
func (s *Store) RelatesToIDsForCharacter(characterID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id FROM relates_to WHERE from_id = ? OR to_id = ?`, characterID, characterID)
	if err != nil {
		return nil, corerr.Store(err, "relates_to ids for %s", characterID)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, corerr.Store(err, "scan relates_to id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NeighbourCharacterIDs returns the character ids one relates_to hop
// away from the given character (both directions, deduplicated).
func (s *Store) NeighbourCharacterIDs(characterID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT to_id FROM relates_to WHERE from_id = ?
		UNION
		SELECT from_id FROM relates_to WHERE to_id = ?
	`, characterID, characterID)
	if err != nil {
		return nil, corerr.Store(err, "neighbour ids for %s", characterID)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, corerr.Store(err, "scan neighbour id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PerceivesIDsBetweenPair returns every perceives edge id connecting a
// and b in either direction.
func (s *Store) PerceivesIDsBetweenPair(a, b string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id FROM perceives WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
	`, a, b, b, a)
	if err != nil {
		return nil, corerr.Store(err, "perceives ids between %s and %s", a, b)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, corerr.Store(err, "scan perceives id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
