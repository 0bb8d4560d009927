package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/erp/rostersync/internal/domain/roster"
	"github.com/erp/rostersync/internal/domain/shared"
)

// CacheEntry is the last known collection of one entity kind
type CacheEntry struct {
	Kind      shared.EntityKind
	Records   []json.RawMessage
	FetchedAt time.Time // start time of the request that produced Records
	ETag      string
	// Invalidated entries keep their records for degraded reads but are never
	// revalidated with If-None-Match.
	Invalidated bool
}

// Find returns the record whose id equals id
func (e CacheEntry) Find(id string) (json.RawMessage, bool) {
	for _, rec := range e.Records {
		if recordID(rec) == id {
			return rec, true
		}
	}
	return nil, false
}

type cacheTable struct {
	mu      sync.RWMutex
	entries map[shared.EntityKind]CacheEntry
}

func newCacheTable() *cacheTable {
	return &cacheTable{entries: make(map[shared.EntityKind]CacheEntry)}
}

func (c *cacheTable) get(kind shared.EntityKind) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[kind]
	return e, ok
}

// put stores entry unless the current entry came from a request that started
// later. It returns the entry that is current afterwards and whether entry won.
func (c *cacheTable) put(entry CacheEntry) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[entry.Kind]; ok && cur.FetchedAt.After(entry.FetchedAt) {
		return cur, false
	}
	c.entries[entry.Kind] = entry
	return entry, true
}

func (c *cacheTable) invalidate(kind shared.EntityKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[kind]; ok {
		e.ETag = ""
		e.Invalidated = true
		c.entries[kind] = e
	}
}

// recordID reads the "id" field of a record, accepting numeric and string ids
func recordID(raw json.RawMessage) string {
	var ref roster.Ref
	if err := json.Unmarshal(raw, &ref); err != nil {
		return ""
	}
	return ref.ID.String()
}
