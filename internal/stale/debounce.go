package stale

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	debounceWindow = 2 * time.Second
	debounceSize   = 1000
)

// debounceTable bounds spawn_regeneration to one in-flight task per
// entity within debounceWindow. Backed by an expirable LRU so the
// ~1000-entry cap and "entries older than 5x the window are pruned"
// rule from the regeneration contract fall out of the library's own
// size+TTL eviction instead of a hand-rolled sweep.
type debounceTable struct {
	seen *expirable.LRU[string, time.Time]
}

func newDebounceTable() *debounceTable {
	return &debounceTable{
		seen: expirable.NewLRU[string, time.Time](debounceSize, nil, 5*debounceWindow),
	}
}

// shouldSpawn reports whether a regeneration task may be spawned for
// entityID now, recording the attempt either way.
func (d *debounceTable) shouldSpawn(entityID string) bool {
	if last, ok := d.seen.Get(entityID); ok && time.Since(last) < debounceWindow {
		return false
	}
	d.seen.Add(entityID, time.Now())
	return true
}
