// Package dedupe caches evaluation results by submission digest so a
// re-upload of identical bytes under the same name is answered without
// rescoring it.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	model "github.com/okian/segrank/internal/domain/model"
)

// Cache stores evaluation results keyed by submission digest.
type Cache interface {
	// Recall returns the cached result for digest, if any.
	Recall(ctx context.Context, digest string) (model.Result, bool)

	// Remember stores the result for digest, evicting the oldest
	// entries once the size bound is exceeded.
	Remember(ctx context.Context, digest string, res model.Result)

	// Forget drops a digest so the next identical upload is evaluated
	// again. Used when a result could not be recorded durably.
	Forget(ctx context.Context, digest string)

	Size() int64
}

// Digest fingerprints a submission. The name participates so the same
// archive submitted under two names is two distinct submissions.
func Digest(name string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0}) // the name charset excludes NUL, so this cannot collide
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// entry is one cached result in the recency list.
type entry struct {
	digest string
	result model.Result
	prev   *entry
	next   *entry
}

// inMemoryCache implements Cache with a map plus a doubly linked
// recency list. The head holds the most recently remembered digest;
// eviction always removes the tail.
// For bounded mode (maxSize > 0): oldest entries are evicted.
// For unbounded mode (maxSize <= 0): the cache only grows.
type inMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	head    *entry
	tail    *entry
	maxSize int
	size    atomic.Int64
}

// NewInMemoryCache creates a new in-memory result cache with
// configuration options.
func NewInMemoryCache(opts ...Option) Cache {
	c := &inMemoryCache{
		maxSize: 4096, // default max size
	}

	for _, opt := range opts {
		opt(c)
	}

	c.entries = make(map[string]*entry)
	return c
}

// Recall returns the cached result for digest, if any.
func (c *inMemoryCache) Recall(_ context.Context, digest string) (model.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[digest]
	if !ok {
		return model.Result{}, false
	}
	return e.result, true
}

// Remember stores the result for digest.
func (c *inMemoryCache) Remember(_ context.Context, digest string, res model.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[digest]; ok {
		e.result = res
		return
	}

	e := &entry{digest: digest, result: res}
	c.pushFront(e)
	c.entries[digest] = e
	c.size.Add(1)

	if c.maxSize > 0 {
		for len(c.entries) > c.maxSize {
			c.evictOldest()
		}
	}
}

// Forget drops a digest from the cache.
func (c *inMemoryCache) Forget(_ context.Context, digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[digest]
	if !ok {
		return
	}
	c.unlink(e)
	delete(c.entries, digest)
	c.size.Add(-1)
}

// Size returns the current number of cached results.
func (c *inMemoryCache) Size() int64 {
	return c.size.Load()
}

// pushFront links e as the freshest entry. Must be called with c.mu held.
func (c *inMemoryCache) pushFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

// unlink removes e from the recency list. Must be called with c.mu held.
func (c *inMemoryCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

// evictOldest removes the tail entry. Must be called with c.mu held.
func (c *inMemoryCache) evictOldest() {
	victim := c.tail
	if victim == nil {
		return
	}
	c.unlink(victim)
	delete(c.entries, victim.digest)
	c.size.Add(-1)
}
