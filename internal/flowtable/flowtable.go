// Package flowtable caches classification decisions per flow.
package flowtable

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"icc.tech/pktbridge/internal/core"
)

// entry pairs a cached decision with the rule set generation it was
// computed from. A generation mismatch invalidates the entry.
type entry struct {
	decision core.Decision
	gen      uint64
}

// Table is an LRU cache from parsed header to classification decision.
// It is a pure optimization: a disabled or cold table changes throughput,
// never which decision a frame gets. Safe for concurrent use.
type Table struct {
	cache  *lru.Cache[core.Header, entry]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a flow table holding at most capacity flows, evicting the
// least recently used entry when full. Capacity 0 disables caching;
// Lookup always misses and Insert is a no-op.
func New(capacity int) (*Table, error) {
	t := &Table{}
	if capacity <= 0 {
		return t, nil
	}
	cache, err := lru.New[core.Header, entry](capacity)
	if err != nil {
		return nil, err
	}
	t.cache = cache
	return t, nil
}

// Lookup returns the cached decision for h if one exists and was computed
// from the rule set generation gen. Entries from older generations are
// evicted on sight.
func (t *Table) Lookup(h core.Header, gen uint64) (core.Decision, bool) {
	if t.cache == nil {
		return core.Decision{}, false
	}
	e, ok := t.cache.Get(h)
	if !ok {
		t.misses.Add(1)
		return core.Decision{}, false
	}
	if e.gen != gen {
		t.cache.Remove(h)
		t.misses.Add(1)
		return core.Decision{}, false
	}
	t.hits.Add(1)
	return e.decision, true
}

// Insert caches the decision for h under the given rule set generation.
func (t *Table) Insert(h core.Header, d core.Decision, gen uint64) {
	if t.cache == nil {
		return
	}
	t.cache.Add(h, entry{decision: d, gen: gen})
}

// Clear drops every cached decision. Called on rule set reload so no
// stale decision can be served even transiently.
func (t *Table) Clear() {
	if t.cache != nil {
		t.cache.Purge()
	}
}

// Len returns the current number of cached flows.
func (t *Table) Len() int {
	if t.cache == nil {
		return 0
	}
	return t.cache.Len()
}

// Stats returns cumulative hit and miss counts.
func (t *Table) Stats() (hits, misses uint64) {
	return t.hits.Load(), t.misses.Load()
}
