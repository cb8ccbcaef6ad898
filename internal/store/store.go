// Package store provides SQLite-backed persistence for the narrative
// document-graph: typed per-kind tables standing in for table:key
// records, graph edges as first-class rows, and BLOB vector columns
// in sqlite-vec's float32 layout, decoded and compared in Go.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/florinutz/narra-core/internal/corerr"
)

// Store is the SQLite-backed data store. Safe for concurrent use; it
// serializes writes behind mu the way the teacher's WASM store does,
// since the pure-Go sqlite3 driver does not itself arbitrate
// writer contention across goroutines.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open creates or attaches to a store at dsn ("" or ":memory:" for an
// ephemeral in-process store).
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer pure-Go driver; serialize at the handle

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nowUnix() int64 { return time.Now().UTC().Unix() }

func unixToTime(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0).UTC()
}

// --- small JSON helpers for list/map columns -------------------------------

func marshalStrings(ss []string) sql.NullString {
	if len(ss) == 0 {
		return sql.NullString{}
	}
	b, _ := json.Marshal(ss)
	return sql.NullString{String: string(b), Valid: true}
}

func unmarshalStrings(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(ns.String), &out)
	return out
}

func marshalProfile(p map[string][]string) sql.NullString {
	if len(p) == 0 {
		return sql.NullString{}
	}
	b, _ := json.Marshal(p)
	return sql.NullString{String: string(b), Valid: true}
}

func unmarshalProfile(ns sql.NullString) map[string][]string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out map[string][]string
	_ = json.Unmarshal([]byte(ns.String), &out)
	return out
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func strOf(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure, the store-level signal for a duplicate explicit id (Conflict).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique") || strings.Contains(low, "constraint")
}

// WorldMeta records which embedding provider/model/dimension produced
// the world's current embeddings.
type WorldMeta struct {
	Provider string
	Model    string
	Dims     int
}

func (s *Store) GetWorldMeta() (*WorldMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var provider, model_ sql.NullString
	var dims sql.NullInt64
	err := s.db.QueryRow(`SELECT embedding_provider, embedding_model, embedding_dims FROM world_meta WHERE id = 1`).
		Scan(&provider, &model_, &dims)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, corerr.Store(err, "read world metadata")
	}
	return &WorldMeta{Provider: strOf(provider), Model: strOf(model_), Dims: int(dims.Int64)}, nil
}

func (s *Store) SetWorldMeta(provider, modelName string, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO world_meta (id, embedding_provider, embedding_model, embedding_dims)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET embedding_provider = excluded.embedding_provider,
			embedding_model = excluded.embedding_model, embedding_dims = excluded.embedding_dims
	`, provider, modelName, dims)
	if err != nil {
		return corerr.Store(err, "write world metadata")
	}
	return nil
}

// MetaComparison is the Match | NoMetadata | Mismatch embedding-metadata result.
type MetaComparison struct {
	Status   string // "match" | "no_metadata" | "mismatch"
	Stored   *WorldMeta
	Current  WorldMeta
}

func (s *Store) CompareWorldMeta(current WorldMeta) (*MetaComparison, error) {
	stored, err := s.GetWorldMeta()
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return &MetaComparison{Status: "no_metadata", Current: current}, nil
	}
	if stored.Provider == current.Provider && stored.Model == current.Model && stored.Dims == current.Dims {
		return &MetaComparison{Status: "match", Stored: stored, Current: current}, nil
	}
	return &MetaComparison{Status: "mismatch", Stored: stored, Current: current}, nil
}
