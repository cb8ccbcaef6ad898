package store

import (
	"database/sql"
	"time"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

// UpsertCharacter inserts or replaces a character row. CreatedAt is
// preserved across updates if already set on disk.
func (s *Store) UpsertCharacter(c *model.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO characters (id, name, aliases, roles, profile, created_at, updated_at,
			embedding, composite_text, embedding_stale,
			identity_embedding, psychology_embedding, social_embedding, narrative_embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, aliases = excluded.aliases, roles = excluded.roles,
			profile = excluded.profile, updated_at = excluded.updated_at,
			embedding = excluded.embedding, composite_text = excluded.composite_text,
			embedding_stale = excluded.embedding_stale,
			identity_embedding = excluded.identity_embedding,
			psychology_embedding = excluded.psychology_embedding,
			social_embedding = excluded.social_embedding,
			narrative_embedding = excluded.narrative_embedding
	`, c.ID, c.Name, marshalStrings(c.Aliases), marshalStrings(c.Roles), marshalProfile(c.Profile),
		c.CreatedAt.Unix(), c.UpdatedAt.Unix(),
		encodeVector(c.Embedding), nullStr(c.CompositeText), boolToInt(c.EmbeddingStale),
		encodeVector(c.IdentityEmbedding), encodeVector(c.PsychologyEmbedding),
		encodeVector(c.SocialEmbedding), encodeVector(c.NarrativeEmbedding))
	if err != nil {
		return corerr.Store(err, "upsert character %s", c.ID)
	}
	return nil
}

func scanCharacter(row interface {
	Scan(...any) error
}) (*model.Character, error) {
	var c model.Character
	var aliases, roles, profile, composite sql.NullString
	var createdAt, updatedAt int64
	var stale int
	var emb, idemb, psyemb, socemb, naremb []byte

	err := row.Scan(&c.ID, &c.Name, &aliases, &roles, &profile, &createdAt, &updatedAt,
		&emb, &composite, &stale, &idemb, &psyemb, &socemb, &naremb)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.Aliases = unmarshalStrings(aliases)
	c.Roles = unmarshalStrings(roles)
	c.Profile = unmarshalProfile(profile)
	c.CreatedAt = unixToTime(createdAt)
	c.UpdatedAt = unixToTime(updatedAt)
	c.Embedding = decodeVector(emb)
	c.CompositeText = strOf(composite)
	c.EmbeddingStale = stale != 0
	c.IdentityEmbedding = decodeVector(idemb)
	c.PsychologyEmbedding = decodeVector(psyemb)
	c.SocialEmbedding = decodeVector(socemb)
	c.NarrativeEmbedding = decodeVector(naremb)
	return &c, nil
}

const characterColumns = `id, name, aliases, roles, profile, created_at, updated_at,
	embedding, composite_text, embedding_stale,
	identity_embedding, psychology_embedding, social_embedding, narrative_embedding`

func (s *Store) GetCharacter(id string) (*model.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	c, err := scanCharacter(row)
	if err != nil {
		return nil, corerr.Store(err, "get character %s", id)
	}
	if c == nil {
		return nil, corerr.NotFound(id, "character not found")
	}
	return c, nil
}

// ListCharacters returns every character, optionally only those with
// embedding_stale = true.
func (s *Store) ListCharacters(onlyStale bool) ([]*model.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT ` + characterColumns + ` FROM characters`
	if onlyStale {
		q += ` WHERE embedding_stale = 1`
	}
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, corerr.Store(err, "list characters")
	}
	defer rows.Close()

	var out []*model.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan character")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCharacter enforces I7: rejected while any knows edge
// references it (as from_id or as target_id).
func (s *Store) DeleteCharacter(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refCount int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM knows WHERE from_id = ? OR target_id = ?`, id, id).Scan(&refCount)
	if err != nil {
		return corerr.Store(err, "check references for %s", id)
	}
	if refCount > 0 {
		return corerr.ReferentialIntegrity(id, "referenced by knows edges; remove them first")
	}

	res, err := s.db.Exec(`DELETE FROM characters WHERE id = ?`, id)
	if err != nil {
		return corerr.Store(err, "delete character %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return corerr.NotFound(id, "character not found")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
