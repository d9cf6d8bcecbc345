// Package memorypool implements the Shared Memory Pool: three independent
// bounded, TTL-expiring LRU caches (kv, embeddings, fileSnapshots) that are
// safe to share across concurrently running agent runs. Each cache is
// guarded by its own mutex; there are no cross-cache invariants.
//
// No LRU package appears anywhere in the retrieved example pack, so this
// builds directly on container/list (the same stdlib primitive the routing
// package's priority queue builds on container/heap for) rather than
// reaching for an out-of-pack dependency.
package memorypool

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/ranya/internal/observability"
)

// FileSnapshot is the value type stored in the fileSnapshots cache.
type FileSnapshot struct {
	Hash  string
	Bytes []byte
}

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// lru is a bounded, TTL-expiring least-recently-used cache. Not exported:
// callers use Pool's typed accessors.
type lru struct {
	mu       sync.Mutex
	cap      int
	ttl      time.Duration
	ll       *list.List
	elements map[string]*list.Element
	name     string
}

func newLRU(name string, capacity int, ttl time.Duration) *lru {
	return &lru{
		cap:      capacity,
		ttl:      ttl,
		ll:       list.New(),
		elements: make(map[string]*list.Element),
		name:     name,
	}
}

// get returns the value for key and whether it was present and unexpired.
// Expired entries are evicted as a side effect. A hit refreshes recency.
func (c *lru) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.elements[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.ll.Remove(el)
		delete(c.elements, key)
		observability.RecordPoolEviction(c.name)
		observability.SetPoolSize(c.name, c.ll.Len())
		log.Debug().Str("cache", c.name).Str("key", key).Msg("memorypool: entry expired")
		return nil, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

// set inserts or updates key, refreshing recency and TTL, then evicts the
// oldest entries until the cache is at or under capacity.
func (c *lru) set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if el, ok := c.elements[key]; ok {
		el.Value.(*entry).value = value
		el.Value.(*entry).expiresAt = expiresAt
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.elements[key] = el

	for c.cap > 0 && c.ll.Len() > c.cap {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.elements, oldest.Value.(*entry).key)
		observability.RecordPoolEviction(c.name)
	}
	observability.SetPoolSize(c.name, c.ll.Len())
}

// delete removes key unconditionally.
func (c *lru) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elements[key]; ok {
		c.ll.Remove(el)
		delete(c.elements, key)
	}
}

// len reports the current size, including not-yet-expired entries that
// haven't been touched since they expired.
func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Config sets capacity and TTL per cache. Zero Capacity falls back to the
// spec's defaults; zero TTL means entries never expire.
type Config struct {
	KVCapacity             int
	KVTTL                  time.Duration
	EmbeddingsCapacity     int
	EmbeddingsTTL          time.Duration
	FileSnapshotsCapacity  int
	FileSnapshotsTTL       time.Duration
}

// DefaultConfig returns the default capacities (1024/4096/1024), unbounded TTL.
func DefaultConfig() Config {
	return Config{
		KVCapacity:            1024,
		EmbeddingsCapacity:    4096,
		FileSnapshotsCapacity: 1024,
	}
}

// Pool is the Shared Memory Pool: three independent bounded-TTL caches safe
// for concurrent access across runs.
type Pool struct {
	kv             *lru
	embeddings     *lru
	fileSnapshots  *lru
}

// New creates a Pool from cfg, filling in zero capacities with the
// defaults.
func New(cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.KVCapacity == 0 {
		cfg.KVCapacity = def.KVCapacity
	}
	if cfg.EmbeddingsCapacity == 0 {
		cfg.EmbeddingsCapacity = def.EmbeddingsCapacity
	}
	if cfg.FileSnapshotsCapacity == 0 {
		cfg.FileSnapshotsCapacity = def.FileSnapshotsCapacity
	}
	return &Pool{
		kv:            newLRU("kv", cfg.KVCapacity, cfg.KVTTL),
		embeddings:    newLRU("embeddings", cfg.EmbeddingsCapacity, cfg.EmbeddingsTTL),
		fileSnapshots: newLRU("fileSnapshots", cfg.FileSnapshotsCapacity, cfg.FileSnapshotsTTL),
	}
}

// KVGet returns the value for key, or ok=false if absent or expired.
func (p *Pool) KVGet(key string) (interface{}, bool) { return p.kv.get(key) }

// KVSet stores value under key, evicting the least-recently-used entry as needed.
func (p *Pool) KVSet(key string, value interface{}) { p.kv.set(key, value) }

// KVDelete removes key unconditionally.
func (p *Pool) KVDelete(key string) { p.kv.delete(key) }

// KVLen returns the current entry count.
func (p *Pool) KVLen() int { return p.kv.len() }

// EmbeddingGet returns the vector stored for key, or ok=false if absent/expired.
func (p *Pool) EmbeddingGet(key string) ([]float64, bool) {
	v, ok := p.embeddings.get(key)
	if !ok {
		return nil, false
	}
	return v.([]float64), true
}

// EmbeddingSet stores a vector under key.
func (p *Pool) EmbeddingSet(key string, vector []float64) { p.embeddings.set(key, vector) }

// EmbeddingLen returns the current entry count.
func (p *Pool) EmbeddingLen() int { return p.embeddings.len() }

// FileSnapshotGet returns the snapshot stored for key, or ok=false if absent/expired.
func (p *Pool) FileSnapshotGet(key string) (FileSnapshot, bool) {
	v, ok := p.fileSnapshots.get(key)
	if !ok {
		return FileSnapshot{}, false
	}
	return v.(FileSnapshot), true
}

// FileSnapshotSet stores a snapshot under key.
func (p *Pool) FileSnapshotSet(key string, snap FileSnapshot) { p.fileSnapshots.set(key, snap) }

// FileSnapshotLen returns the current entry count.
func (p *Pool) FileSnapshotLen() int { return p.fileSnapshots.len() }

// Scope returns a view of p whose keys are transparently prefixed with
// namespace + ":", so callers (e.g. two concurrent runs, or a tool bound to
// one run) can't collide on bare keys without coordinating.
func (p *Pool) Scope(namespace string) *Scope {
	return &Scope{pool: p, prefix: namespace + ":"}
}

// Scope is a namespaced view over a Pool.
type Scope struct {
	pool   *Pool
	prefix string
}

func (s *Scope) key(k string) string { return s.prefix + k }

func (s *Scope) KVGet(key string) (interface{}, bool)   { return s.pool.KVGet(s.key(key)) }
func (s *Scope) KVSet(key string, value interface{})    { s.pool.KVSet(s.key(key), value) }
func (s *Scope) KVDelete(key string)                     { s.pool.KVDelete(s.key(key)) }

func (s *Scope) EmbeddingGet(key string) ([]float64, bool) { return s.pool.EmbeddingGet(s.key(key)) }
func (s *Scope) EmbeddingSet(key string, v []float64)      { s.pool.EmbeddingSet(s.key(key), v) }

func (s *Scope) FileSnapshotGet(key string) (FileSnapshot, bool) {
	return s.pool.FileSnapshotGet(s.key(key))
}
func (s *Scope) FileSnapshotSet(key string, snap FileSnapshot) {
	s.pool.FileSnapshotSet(s.key(key), snap)
}
