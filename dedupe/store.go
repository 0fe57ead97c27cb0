// Package dedupe records which opportunity fingerprints have already entered
// execution so the same fingerprint is submitted at most once per TTL window.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/michaelpento.lv/flashscan/cache"
	"github.com/michaelpento.lv/flashscan/types"
)

// Store is the shared state between concurrent opportunity evaluations.
//
// Reserve is an atomic check-and-set: it stores rec only when id has no live
// record and reports whether it did. Finalize attaches the terminal result to
// an existing record without extending its TTL.
type Store interface {
	Reserve(ctx context.Context, id string, rec *types.SubmissionRecord) (bool, error)
	Finalize(ctx context.Context, id string, rec *types.SubmissionRecord) error
	Lookup(ctx context.Context, id string) (*types.SubmissionRecord, bool, error)
}

// MemoryStore keeps records in a process-local expiring cache
type MemoryStore struct {
	cache *cache.Cache[*types.SubmissionRecord]
}

// NewMemoryStore creates a store backed by c
func NewMemoryStore(c *cache.Cache[*types.SubmissionRecord]) *MemoryStore {
	return &MemoryStore{cache: c}
}

// NewDefaultMemoryStore creates a memory store with its own cache
func NewDefaultMemoryStore(ttl time.Duration, opts ...cache.Option) (*MemoryStore, error) {
	c, err := cache.New[*types.SubmissionRecord](ttl, opts...)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(c), nil
}

// Cache exposes the underlying cache so callers can run its sweeper
func (m *MemoryStore) Cache() *cache.Cache[*types.SubmissionRecord] {
	return m.cache
}

// Reserve refuses with ErrStoreUnavailable rather than evict a live record
// when the cache is at capacity
func (m *MemoryStore) Reserve(_ context.Context, id string, rec *types.SubmissionRecord) (bool, error) {
	ok, err := m.cache.SetIfAbsent(id, rec)
	if err != nil {
		return false, fmt.Errorf("%w: reserve %s: %w", types.ErrStoreUnavailable, id, err)
	}
	return ok, nil
}

// Finalize is a no-op when the record already expired
func (m *MemoryStore) Finalize(_ context.Context, id string, rec *types.SubmissionRecord) error {
	m.cache.Update(id, rec)
	return nil
}

func (m *MemoryStore) Lookup(_ context.Context, id string) (*types.SubmissionRecord, bool, error) {
	rec, ok := m.cache.Get(id)
	return rec, ok, nil
}

var _ Store = (*MemoryStore)(nil)
