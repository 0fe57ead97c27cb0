// Package cache provides a sharded key/value store with per-entry expiry.
//
// Entries are logically absent once now >= expiresAt, whether or not they have
// been physically removed. Reads evict stale entries lazily; Sweep and
// StartSweeping reclaim entries that are never read again. Each shard holds at
// most its share of the capacity; a full shard drops expired entries from its
// oldest end and refuses new keys while every entry is still live, so a live
// entry is never evicted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/simplelru"
)

const (
	DefaultCapacity = 1 << 16
	DefaultShards   = 16
)

// ErrFull is returned when a new key lands on a shard whose entries are all live
var ErrFull = errors.New("cache shard is full of live entries")

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type shard struct {
	mu       sync.Mutex
	lru      *simplelru.LRU
	capacity int
}

// Cache is safe for concurrent use. The check-and-set in SetIfAbsent is atomic
// per key because a key always maps to the same shard.
type Cache[V any] struct {
	ttl        time.Duration
	now        func() time.Time
	shards     []*shard
	rejections atomic.Uint64
}

type options struct {
	capacity int
	shards   int
	now      func() time.Time
}

// Option configures a Cache
type Option func(*options)

// WithCapacity bounds the total number of entries held across all shards
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithShards sets the number of independently locked shards
func WithShards(n int) Option {
	return func(o *options) { o.shards = n }
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache whose entries live for ttl after they are set
func New[V any](ttl time.Duration, opts ...Option) (*Cache[V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	o := options{
		capacity: DefaultCapacity,
		shards:   DefaultShards,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.shards <= 0 {
		return nil, fmt.Errorf("shard count must be positive, got %d", o.shards)
	}
	if o.capacity < o.shards {
		return nil, fmt.Errorf("capacity %d is smaller than shard count %d", o.capacity, o.shards)
	}

	perShard := (o.capacity + o.shards - 1) / o.shards
	c := &Cache[V]{
		ttl:    ttl,
		now:    o.now,
		shards: make([]*shard, o.shards),
	}
	for i := range c.shards {
		l, err := simplelru.NewLRU(perShard, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create shard: %w", err)
		}
		c.shards[i] = &shard{lru: l, capacity: perShard}
	}

	return c, nil
}

// TTL returns the lifetime applied to new entries
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Set stores value under key with expiresAt = now + ttl. Overwriting an
// existing key always succeeds; a new key fails with ErrFull when its shard
// holds only live entries.
func (c *Cache[V]) Set(key string, value V) error {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	return c.insert(s, key, value, c.now())
}

// Get returns the value if present and unexpired. A stale entry is removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := c.live(s, key, c.now())
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// SetIfAbsent stores value only if key has no live entry. It reports whether
// the value was stored, and returns ErrFull instead of evicting a live entry.
func (c *Cache[V]) SetIfAbsent(key string, value V) (bool, error) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := c.now()
	if _, ok := c.live(s, key, now); ok {
		return false, nil
	}
	if err := c.insert(s, key, value, now); err != nil {
		return false, err
	}
	return true, nil
}

// Update replaces the value of a live entry without moving its expiry. It
// reports false if the key is absent or already expired.
func (c *Cache[V]) Update(key string, value V) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := c.live(s, key, c.now())
	if !ok {
		return false
	}
	e.value = value
	return true
}

// Delete removes key regardless of its expiry
func (c *Cache[V]) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.lru.Remove(key)
	s.mu.Unlock()
}

// Clear removes all entries
func (c *Cache[V]) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.lru.Purge()
		s.mu.Unlock()
	}
}

// Len counts physically held entries, including expired ones not yet swept
func (c *Cache[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

// Rejections counts inserts refused with ErrFull
func (c *Cache[V]) Rejections() uint64 {
	return c.rejections.Load()
}

// Sweep removes every expired entry and returns how many were removed
func (c *Cache[V]) Sweep() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		removed += sweepShard[V](s, now)
		s.mu.Unlock()
	}
	return removed
}

// StartSweeping calls Sweep every interval until ctx is done
func (c *Cache[V]) StartSweeping(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache[V]) shardFor(key string) *shard {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

// live must be called with the shard lock held
func (c *Cache[V]) live(s *shard, key string, now time.Time) (*entry[V], bool) {
	v, ok := s.lru.Peek(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry[V])
	if !now.Before(e.expiresAt) {
		s.lru.Remove(key)
		return nil, false
	}
	return e, true
}

// insert must be called with the shard lock held. Entries share one ttl and
// reads never reorder the LRU, so its oldest entry is also the first to expire.
func (c *Cache[V]) insert(s *shard, key string, value V, now time.Time) error {
	if !s.lru.Contains(key) {
		for s.lru.Len() >= s.capacity {
			_, v, ok := s.lru.GetOldest()
			if !ok || now.Before(v.(*entry[V]).expiresAt) {
				c.rejections.Add(1)
				return ErrFull
			}
			s.lru.RemoveOldest()
		}
	}
	s.lru.Add(key, &entry[V]{value: value, expiresAt: now.Add(c.ttl)})
	return nil
}

func sweepShard[V any](s *shard, now time.Time) int {
	removed := 0
	for _, k := range s.lru.Keys() {
		v, ok := s.lru.Peek(k)
		if !ok {
			continue
		}
		if !now.Before(v.(*entry[V]).expiresAt) {
			s.lru.Remove(k)
			removed++
		}
	}
	return removed
}
