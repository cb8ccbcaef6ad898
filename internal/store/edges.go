package store

import (
	"database/sql"
	"time"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

// --- relates_to -------------------------------------------------------------

const relatesToColumns = `id, from_id, to_id, rel_type, subtype, label, embedding, composite_text, embedding_stale`

// UpsertRelatesTo enforces I6: at most one relates_to edge per
// (from, to, rel_type) triple, via the schema's unique index.
func (s *Store) UpsertRelatesTo(r *model.RelatesTo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO relates_to (`+relatesToColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			from_id = excluded.from_id, to_id = excluded.to_id, rel_type = excluded.rel_type,
			subtype = excluded.subtype, label = excluded.label, embedding = excluded.embedding,
			composite_text = excluded.composite_text, embedding_stale = excluded.embedding_stale
	`, r.ID, r.FromID, r.ToID, r.RelType, nullStr(r.Subtype), nullStr(r.Label),
		encodeVector(r.Embedding), nullStr(r.CompositeText), boolToInt(r.EmbeddingStale))
	if err != nil {
		if isUniqueViolation(err) {
			return corerr.Conflict(r.ID)
		}
		return corerr.Store(err, "upsert relates_to %s", r.ID)
	}
	return nil
}

func scanRelatesTo(row interface{ Scan(...any) error }) (*model.RelatesTo, error) {
	var r model.RelatesTo
	var subtype, label, composite sql.NullString
	var stale int
	var emb []byte
	err := row.Scan(&r.ID, &r.FromID, &r.ToID, &r.RelType, &subtype, &label, &emb, &composite, &stale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Subtype = strOf(subtype)
	r.Label = strOf(label)
	r.Embedding = decodeVector(emb)
	r.CompositeText = strOf(composite)
	r.EmbeddingStale = stale != 0
	return &r, nil
}

func (s *Store) GetRelatesTo(id string) (*model.RelatesTo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, err := scanRelatesTo(s.db.QueryRow(`SELECT `+relatesToColumns+` FROM relates_to WHERE id = ?`, id))
	if err != nil {
		return nil, corerr.Store(err, "get relates_to %s", id)
	}
	if r == nil {
		return nil, corerr.NotFound(id, "relates_to not found")
	}
	return r, nil
}

// RelatesToForCharacter returns every relates_to edge touching id, in
// either direction.
func (s *Store) RelatesToForCharacter(id string) ([]*model.RelatesTo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT `+relatesToColumns+` FROM relates_to WHERE from_id = ? OR to_id = ?`, id, id)
	if err != nil {
		return nil, corerr.Store(err, "list relates_to for %s", id)
	}
	defer rows.Close()
	var out []*model.RelatesTo
	for rows.Next() {
		r, err := scanRelatesTo(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan relates_to")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListRelatesTo(onlyStale bool) ([]*model.RelatesTo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT ` + relatesToColumns + ` FROM relates_to`
	if onlyStale {
		q += ` WHERE embedding_stale = 1`
	}
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, corerr.Store(err, "list relates_to")
	}
	defer rows.Close()
	var out []*model.RelatesTo
	for rows.Next() {
		r, err := scanRelatesTo(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan relates_to")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRelatesTo(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM relates_to WHERE id = ?`, id)
	if err != nil {
		return corerr.Store(err, "delete relates_to %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return corerr.NotFound(id, "relates_to not found")
	}
	return nil
}

// --- perceives ---------------------------------------------------------------

const perceivesColumns = `id, from_id, to_id, rel_types, subtype, feelings, perception,
	tension_level, history_notes, embedding, composite_text, embedding_stale`

func (s *Store) UpsertPerceives(p *model.Perceives) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO perceives (`+perceivesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			from_id = excluded.from_id, to_id = excluded.to_id, rel_types = excluded.rel_types,
			subtype = excluded.subtype, feelings = excluded.feelings, perception = excluded.perception,
			tension_level = excluded.tension_level, history_notes = excluded.history_notes,
			embedding = excluded.embedding, composite_text = excluded.composite_text,
			embedding_stale = excluded.embedding_stale
	`, p.ID, p.FromID, p.ToID, marshalStrings(p.RelTypes), nullStr(p.Subtype), nullStr(p.Feelings),
		nullStr(p.Perception), p.TensionLevel, nullStr(p.HistoryNotes),
		encodeVector(p.Embedding), nullStr(p.CompositeText), boolToInt(p.EmbeddingStale))
	if err != nil {
		if isUniqueViolation(err) {
			return corerr.Conflict(p.ID)
		}
		return corerr.Store(err, "upsert perceives %s", p.ID)
	}
	return nil
}

func scanPerceives(row interface{ Scan(...any) error }) (*model.Perceives, error) {
	var p model.Perceives
	var relTypes, subtype, feelings, perception, historyNotes, composite sql.NullString
	var stale int
	var emb []byte
	err := row.Scan(&p.ID, &p.FromID, &p.ToID, &relTypes, &subtype, &feelings, &perception,
		&p.TensionLevel, &historyNotes, &emb, &composite, &stale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.RelTypes = unmarshalStrings(relTypes)
	p.Subtype = strOf(subtype)
	p.Feelings = strOf(feelings)
	p.Perception = strOf(perception)
	p.HistoryNotes = strOf(historyNotes)
	p.Embedding = decodeVector(emb)
	p.CompositeText = strOf(composite)
	p.EmbeddingStale = stale != 0
	return &p, nil
}

func (s *Store) GetPerceives(id string) (*model.Perceives, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := scanPerceives(s.db.QueryRow(`SELECT `+perceivesColumns+` FROM perceives WHERE id = ?`, id))
	if err != nil {
		return nil, corerr.Store(err, "get perceives %s", id)
	}
	if p == nil {
		return nil, corerr.NotFound(id, "perceives not found")
	}
	return p, nil
}

// PerceivesBetween returns the edge from -> to, if any.
func (s *Store) PerceivesBetween(fromID, toID string) (*model.Perceives, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := scanPerceives(s.db.QueryRow(`SELECT `+perceivesColumns+` FROM perceives WHERE from_id = ? AND to_id = ?`, fromID, toID))
	if err != nil {
		return nil, corerr.Store(err, "get perceives %s->%s", fromID, toID)
	}
	return p, nil
}

func (s *Store) PerceivesOfTarget(targetID string) ([]*model.Perceives, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT `+perceivesColumns+` FROM perceives WHERE to_id = ?`, targetID)
	if err != nil {
		return nil, corerr.Store(err, "list perceives of %s", targetID)
	}
	defer rows.Close()
	var out []*model.Perceives
	for rows.Next() {
		p, err := scanPerceives(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan perceives")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PerceivesForCharacter(id string) ([]*model.Perceives, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT `+perceivesColumns+` FROM perceives WHERE from_id = ? OR to_id = ?`, id, id)
	if err != nil {
		return nil, corerr.Store(err, "list perceives for %s", id)
	}
	defer rows.Close()
	var out []*model.Perceives
	for rows.Next() {
		p, err := scanPerceives(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan perceives")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListPerceives(onlyStale bool) ([]*model.Perceives, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT ` + perceivesColumns + ` FROM perceives`
	if onlyStale {
		q += ` WHERE embedding_stale = 1`
	}
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, corerr.Store(err, "list perceives")
	}
	defer rows.Close()
	var out []*model.Perceives
	for rows.Next() {
		p, err := scanPerceives(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan perceives")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePerceives(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM perceives WHERE id = ?`, id)
	if err != nil {
		return corerr.Store(err, "delete perceives %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return corerr.NotFound(id, "perceives not found")
	}
	return nil
}

// --- knows --------------------------------------------------------------------

const knowsColumns = `id, from_id, target_id, certainty, learning_method, source_character,
	event_id, premises, truth_value, learned_at`

// CreateKnows appends a knows record; I5 is enforced by the caller's
// Validate() before this is reached, but we re-check defensively.
func (s *Store) CreateKnows(k *model.Knows) error {
	if err := k.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if k.LearnedAt.IsZero() {
		k.LearnedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO knows (`+knowsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.FromID, k.TargetID, string(k.Certainty), nullStr(string(k.LearningMethod)),
		nullStr(k.SourceCharacter), nullStr(k.EventID), marshalStrings(k.Premises),
		nullStr(k.TruthValue), k.LearnedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return corerr.Conflict(k.ID)
		}
		return corerr.Store(err, "create knows %s", k.ID)
	}
	return nil
}

func scanKnows(row interface{ Scan(...any) error }) (*model.Knows, error) {
	var k model.Knows
	var certainty string
	var learningMethod, sourceChar, eventID, premises, truthValue sql.NullString
	var learnedAt int64
	err := row.Scan(&k.ID, &k.FromID, &k.TargetID, &certainty, &learningMethod, &sourceChar,
		&eventID, &premises, &truthValue, &learnedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	k.Certainty = model.Certainty(certainty)
	k.LearningMethod = model.LearningMethod(strOf(learningMethod))
	k.SourceCharacter = strOf(sourceChar)
	k.EventID = strOf(eventID)
	k.Premises = unmarshalStrings(premises)
	k.TruthValue = strOf(truthValue)
	k.LearnedAt = unixToTime(learnedAt)
	return &k, nil
}

func (s *Store) GetKnows(id string) (*model.Knows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, err := scanKnows(s.db.QueryRow(`SELECT `+knowsColumns+` FROM knows WHERE id = ?`, id))
	if err != nil {
		return nil, corerr.Store(err, "get knows %s", id)
	}
	if k == nil {
		return nil, corerr.NotFound(id, "knows not found")
	}
	return k, nil
}

// KnowsFromCharacter lists every knows edge a character holds,
// ordered by LearnedAt.
func (s *Store) KnowsFromCharacter(characterID string) ([]*model.Knows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT `+knowsColumns+` FROM knows WHERE from_id = ? ORDER BY learned_at ASC`, characterID)
	if err != nil {
		return nil, corerr.Store(err, "list knows from %s", characterID)
	}
	defer rows.Close()
	var out []*model.Knows
	for rows.Next() {
		k, err := scanKnows(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan knows")
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// KnowsAboutTarget lists knows edges targeting targetID, most recent
// first, capped to limit (0 = unlimited). Used by the composite
// builder's "latest knows edge" enrichment and the 5-most-recent cap
// for perspective composites.
func (s *Store) KnowsAboutTarget(targetID string, limit int) ([]*model.Knows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT ` + knowsColumns + ` FROM knows WHERE target_id = ? ORDER BY learned_at DESC`
	args := []any{targetID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, corerr.Store(err, "list knows about %s", targetID)
	}
	defer rows.Close()
	var out []*model.Knows
	for rows.Next() {
		k, err := scanKnows(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan knows")
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) DeleteKnows(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM knows WHERE id = ?`, id)
	if err != nil {
		return corerr.Store(err, "delete knows %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return corerr.NotFound(id, "knows not found")
	}
	return nil
}
