// Package askcache is an in-memory response cache keyed by a fingerprint of
// the normalized request. It bounds memory with LRU eviction, expires
// entries after a TTL, and collapses concurrent identical requests into a
// single upstream call. It is a performance optimization, not a correctness
// store: it rebuilds from empty on restart.
package askcache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/revulate/lunabot/telemetry"
)

// Fingerprint derives the deterministic cache key from a request's kind,
// prompt, and optional image reference. Normalization lowercases, collapses
// runs of whitespace, and trims; punctuation is preserved ("2+2?" and "22"
// must not collide). There is no semantic dedup, only exact-normalized-text
// dedup.
func Fingerprint(kind string, prompt, imageRef string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(normalize(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(imageRef)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type entry struct {
	value     string
	expiresAt time.Time
	elem      *list.Element // position in lru; Value is the fingerprint
}

// Cache stores successful results by fingerprint. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List // front = most recently used
	ttl      time.Duration
	capacity int
	now      func() time.Time

	group singleflight.Group
}

// New constructs a Cache with the given TTL and capacity bound.
func New(ttl time.Duration, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		entries:  make(map[string]*entry),
		lru:      list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// SetClock replaces the cache's clock. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Get returns the cached value for a fingerprint if present and unexpired.
// A hit refreshes the entry's recency.
func (c *Cache) Get(fp string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(e.elem)
		delete(c.entries, fp)
		return "", false
	}
	c.lru.MoveToFront(e.elem)
	return e.value, true
}

// Set stores a value under a fingerprint, evicting the least-recently-used
// entry when the capacity bound is exceeded.
func (c *Cache) Set(fp, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fp]; ok {
		e.value = value
		e.expiresAt = c.now().Add(c.ttl)
		c.lru.MoveToFront(e.elem)
		return
	}
	e := &entry{value: value, expiresAt: c.now().Add(c.ttl)}
	e.elem = c.lru.PushFront(fp)
	c.entries[fp] = e
	for len(c.entries) > c.capacity {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.lru.Remove(back)
		delete(c.entries, back.Value.(string))
	}
}

// Len returns the number of live entries (expired entries may linger until
// touched).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Do returns the cached value for fp, or runs fn exactly once among all
// concurrent callers presenting the same fingerprint and shares its outcome
// with every waiter. Successful results are stored; failures are shared but
// never cached, so a later identical request goes upstream again. The
// returned bool reports whether the value came from the cache rather than
// this (or a shared) upstream call.
func (c *Cache) Do(ctx context.Context, fp string, fn func(context.Context) (string, error)) (string, bool, error) {
	if v, ok := c.Get(fp); ok {
		return v, true, nil
	}
	v, err, shared := c.group.Do(fp, func() (any, error) {
		// Re-check under the flight: an earlier flight may have stored the
		// value between our Get and Do.
		if v, ok := c.Get(fp); ok {
			return v, nil
		}
		value, err := fn(ctx)
		if err != nil {
			return "", err
		}
		c.Set(fp, value)
		return value, nil
	})
	if shared && telemetry.DedupShares != nil {
		telemetry.DedupShares.Inc()
	}
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}
