package store

import (
	"database/sql"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

const knowledgeColumns = `id, character_id, fact, embedding, composite_text, embedding_stale`

func (s *Store) UpsertKnowledge(k *model.Knowledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO knowledge (`+knowledgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			character_id = excluded.character_id, fact = excluded.fact,
			embedding = excluded.embedding, composite_text = excluded.composite_text,
			embedding_stale = excluded.embedding_stale
	`, k.ID, k.CharacterID, k.Fact, encodeVector(k.Embedding), nullStr(k.CompositeText), boolToInt(k.EmbeddingStale))
	if err != nil {
		return corerr.Store(err, "upsert knowledge %s", k.ID)
	}
	return nil
}

func scanKnowledge(row interface{ Scan(...any) error }) (*model.Knowledge, error) {
	var k model.Knowledge
	var composite sql.NullString
	var stale int
	var emb []byte
	err := row.Scan(&k.ID, &k.CharacterID, &k.Fact, &emb, &composite, &stale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	k.Embedding = decodeVector(emb)
	k.CompositeText = strOf(composite)
	k.EmbeddingStale = stale != 0
	return &k, nil
}

func (s *Store) GetKnowledge(id string) (*model.Knowledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, err := scanKnowledge(s.db.QueryRow(`SELECT `+knowledgeColumns+` FROM knowledge WHERE id = ?`, id))
	if err != nil {
		return nil, corerr.Store(err, "get knowledge %s", id)
	}
	if k == nil {
		return nil, corerr.NotFound(id, "knowledge not found")
	}
	return k, nil
}

func (s *Store) ListKnowledge(onlyStale bool) ([]*model.Knowledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT ` + knowledgeColumns + ` FROM knowledge`
	if onlyStale {
		q += ` WHERE embedding_stale = 1`
	}
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, corerr.Store(err, "list knowledge")
	}
	defer rows.Close()
	var out []*model.Knowledge
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan knowledge")
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) KnowledgeForCharacter(characterID string) ([]*model.Knowledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT `+knowledgeColumns+` FROM knowledge WHERE character_id = ?`, characterID)
	if err != nil {
		return nil, corerr.Store(err, "list knowledge for %s", characterID)
	}
	defer rows.Close()
	var out []*model.Knowledge
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan knowledge")
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) DeleteKnowledge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM knows WHERE target_id = ?`, id).Scan(&refCount); err != nil {
		return corerr.Store(err, "check references for %s", id)
	}
	if refCount > 0 {
		return corerr.ReferentialIntegrity(id, "referenced by knows edges; remove them first")
	}

	res, err := s.db.Exec(`DELETE FROM knowledge WHERE id = ?`, id)
	if err != nil {
		return corerr.Store(err, "delete knowledge %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return corerr.NotFound(id, "knowledge not found")
	}
	return nil
}
