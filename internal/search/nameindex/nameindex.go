// Package nameindex builds a case-insensitive prefix index over entity
// display names for exact/prefix name lookups.
package nameindex

import (
	"strings"

	"github.com/derekparker/trie/v3"

	"github.com/florinutz/narra-core/internal/model"
)

// Entry is one indexed name -> (kind, id) mapping.
type Entry struct {
	ID   string
	Kind model.Kind
}

// Index wraps a lowercased-name trie for prefix lookups.
type Index struct {
	t *trie.Trie[Entry]
}

// New builds an index over entries. Names are lowercased for
// case-insensitive matching; duplicate names keep the last entry
// added (last-writer-wins, consistent with the store's upsert
// semantics for the underlying entity).
func New(entries []Entry, names []string) *Index {
	t := trie.New[Entry]()
	for i, name := range names {
		if name == "" {
			continue
		}
		t.Add(strings.ToLower(name), entries[i])
	}
	return &Index{t: t}
}

// ExactOrPrefixIDs returns the ids of every indexed name equal to, or
// prefixed by, query (case-insensitive). Empty query yields no
// matches rather than the whole index.
func (idx *Index) ExactOrPrefixIDs(query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	names := idx.t.PrefixSearch(q)
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		if node, ok := idx.t.Find(name); ok {
			out = append(out, node.Meta())
		}
	}
	return out
}
