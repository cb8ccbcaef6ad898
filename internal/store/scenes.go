package store

import (
	"database/sql"

	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

const sceneColumns = `id, title, summary, event_id, primary_location_id, secondary_locations,
	participants, embedding, composite_text, embedding_stale`

func (s *Store) UpsertScene(sc *model.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO scenes (`+sceneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, summary = excluded.summary, event_id = excluded.event_id,
			primary_location_id = excluded.primary_location_id,
			secondary_locations = excluded.secondary_locations, participants = excluded.participants,
			embedding = excluded.embedding, composite_text = excluded.composite_text,
			embedding_stale = excluded.embedding_stale
	`, sc.ID, sc.Title, nullStr(sc.Summary), nullStr(sc.EventID), nullStr(sc.PrimaryLocationID),
		marshalStrings(sc.SecondaryLocations), marshalStrings(sc.Participants),
		encodeVector(sc.Embedding), nullStr(sc.CompositeText), boolToInt(sc.EmbeddingStale))
	if err != nil {
		return corerr.Store(err, "upsert scene %s", sc.ID)
	}
	return nil
}

func scanScene(row interface{ Scan(...any) error }) (*model.Scene, error) {
	var sc model.Scene
	var summary, eventID, primaryLoc, secondary, participants, composite sql.NullString
	var stale int
	var emb []byte
	err := row.Scan(&sc.ID, &sc.Title, &summary, &eventID, &primaryLoc, &secondary, &participants,
		&emb, &composite, &stale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sc.Summary = strOf(summary)
	sc.EventID = strOf(eventID)
	sc.PrimaryLocationID = strOf(primaryLoc)
	sc.SecondaryLocations = unmarshalStrings(secondary)
	sc.Participants = unmarshalStrings(participants)
	sc.Embedding = decodeVector(emb)
	sc.CompositeText = strOf(composite)
	sc.EmbeddingStale = stale != 0
	return &sc, nil
}

func (s *Store) GetScene(id string) (*model.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, err := scanScene(s.db.QueryRow(`SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id))
	if err != nil {
		return nil, corerr.Store(err, "get scene %s", id)
	}
	if sc == nil {
		return nil, corerr.NotFound(id, "scene not found")
	}
	return sc, nil
}

func (s *Store) ListScenes(onlyStale bool) ([]*model.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT ` + sceneColumns + ` FROM scenes`
	if onlyStale {
		q += ` WHERE embedding_stale = 1`
	}
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, corerr.Store(err, "list scenes")
	}
	defer rows.Close()
	var out []*model.Scene
	for rows.Next() {
		sc, err := scanScene(rows)
		if err != nil {
			return nil, corerr.Store(err, "scan scene")
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ScenesForCharacter returns scenes where characterID appears in
// participants, used by the composite builder's "narrative" facet
// and by shared-scene lookups.
func (s *Store) ScenesForCharacter(characterID string) ([]*model.Scene, error) {
	all, err := s.ListScenes(false)
	if err != nil {
		return nil, err
	}
	var out []*model.Scene
	for _, sc := range all {
		for _, p := range sc.Participants {
			if p == characterID {
				out = append(out, sc)
				break
			}
		}
	}
	return out, nil
}

// SharedScenes returns scenes where both characters appear in
// participants, in ListScenes order; no sort by event sequence is
// applied.
func (s *Store) SharedScenes(aID, bID string) ([]*model.Scene, error) {
	all, err := s.ListScenes(false)
	if err != nil {
		return nil, err
	}
	var out []*model.Scene
	for _, sc := range all {
		hasA, hasB := false, false
		for _, p := range sc.Participants {
			if p == aID {
				hasA = true
			}
			if p == bID {
				hasB = true
			}
		}
		if hasA && hasB {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *Store) DeleteScene(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM scenes WHERE id = ?`, id)
	if err != nil {
		return corerr.Store(err, "delete scene %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return corerr.NotFound(id, "scene not found")
	}
	return nil
}
