package lookbook

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCacheClosed is returned by Insert after Close.
var ErrCacheClosed = errors.New("hash cache closed")

// CacheEntry is one processed image known to the cache.
type CacheEntry struct {
	NormalizedURL string
	Fingerprint   Fingerprint
	InsertedAt    time.Time
	PayloadRef    string
}

// Match is the result of a successful Lookup.
type Match struct {
	NormalizedURL string
	Distance      int
	PayloadRef    string
}

// HashCacheOptions configures NewHashCache. Zero values take the package
// defaults; Now defaults to time.Now.
type HashCacheOptions struct {
	TTL     time.Duration
	MaxSize int
	Now     func() time.Time
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Size        int    `json:"size"`
	MaxSize     int    `json:"max_size"`
	Hits        uint64 `json:"hits"`   // Lookup calls that matched
	Misses      uint64 `json:"misses"` // Lookup calls without a match
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// HashCache maps normalized URLs to perceptual fingerprints. It is bounded
// by MaxSize with oldest-inserted eviction, and entries expire after TTL.
// Lookups share a read lock; Insert is serialized by the write lock.
type HashCache struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu     sync.RWMutex
	order  *list.List // of *CacheEntry, oldest first
	index  map[string]*list.Element
	closed bool

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   uint64 // guarded by mu
	expirations uint64 // guarded by mu
}

// NewHashCache returns an empty cache.
func NewHashCache(opts HashCacheOptions) *HashCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultCacheMaxSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &HashCache{
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     opts.Now,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
}

func (c *HashCache) expired(e *CacheEntry, now time.Time) bool {
	return now.Sub(e.InsertedAt) >= c.ttl
}

// Lookup returns the closest live entry within threshold. Ties on distance
// go to the most recently inserted entry.
func (c *HashCache) Lookup(fp Fingerprint, threshold int) (Match, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	var (
		best  *CacheEntry
		bestD int
	)
	// Newest first, so a strict < keeps the most recent entry on ties.
	for el := c.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*CacheEntry)
		if c.expired(e, now) {
			continue
		}
		d := fp.Distance(e.Fingerprint)
		if d > threshold {
			continue
		}
		if best == nil || d < bestD {
			best, bestD = e, d
		}
	}
	if best == nil {
		c.misses.Add(1)
		return Match{}, false
	}
	c.hits.Add(1)
	return Match{NormalizedURL: best.NormalizedURL, Distance: bestD, PayloadRef: best.PayloadRef}, true
}

// Contains reports whether url is a live key in the cache. It does not touch
// the hit and miss counters, which track Lookup only.
func (c *HashCache) Contains(url string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	el, ok := c.index[url]
	if !ok {
		return CacheEntry{}, false
	}
	e := el.Value.(*CacheEntry)
	if c.expired(e, c.now()) {
		return CacheEntry{}, false
	}
	return *e, true
}

// Insert adds or overwrites the entry for url, then drops expired entries
// and evicts the oldest until the cache fits MaxSize. An overwrite counts as
// a fresh insertion. ErrCacheCorruption means the bookkeeping no longer adds up.
func (c *HashCache) Insert(url string, fp Fingerprint, payloadRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	now := c.now()
	if el, ok := c.index[url]; ok {
		c.order.Remove(el)
		delete(c.index, url)
	}
	c.index[url] = c.order.PushBack(&CacheEntry{
		NormalizedURL: url,
		Fingerprint:   fp,
		InsertedAt:    now,
		PayloadRef:    payloadRef,
	})

	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(*CacheEntry); c.expired(e, now) {
			c.removeLocked(el)
			c.expirations++
		}
		el = next
	}
	for c.order.Len() > c.maxSize {
		c.removeLocked(c.order.Front())
		c.evictions++
	}

	if n := c.order.Len(); n != len(c.index) || n > c.maxSize {
		return fmt.Errorf("%w: %d ordered entries, %d indexed, max %d",
			ErrCacheCorruption, n, len(c.index), c.maxSize)
	}
	return nil
}

func (c *HashCache) removeLocked(el *list.Element) {
	e := c.order.Remove(el).(*CacheEntry)
	delete(c.index, e.NormalizedURL)
}

// Len returns the number of stored entries, expired ones included until the
// next Insert sweeps them.
func (c *HashCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Stats returns cache counters.
func (c *HashCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Size:        c.order.Len(),
		MaxSize:     c.maxSize,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// Purge drops every entry.
func (c *HashCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element)
}

// Close drops every entry and rejects further inserts.
func (c *HashCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element)
	c.closed = true
	return nil
}
