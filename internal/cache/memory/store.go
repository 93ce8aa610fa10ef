// Package memory is the in-process cache backend, suitable for one-shot runs
// and tests.
package memory

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	t "repopilot/internal/types"
)

// Store keeps entries in a bounded LRU.
type Store struct {
	mu sync.Mutex
	c  *lru.Cache[t.Fingerprint, t.CacheEntry]
}

// New returns a store holding up to maxEntries entries; <=0 means 4096.
func New(maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	c, err := lru.New[t.Fingerprint, t.CacheEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, fp t.Fingerprint) (t.CacheEntry, bool, error) {
	e, ok := s.c.Get(fp)
	return e, ok, nil
}

func (s *Store) PutIfAbsent(_ context.Context, entry t.CacheEntry) (t.CacheEntry, bool, error) {
	// The LRU is internally locked, but check-then-add must be one step.
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.c.Peek(entry.Fingerprint); ok {
		return prev, false, nil
	}
	s.c.Add(entry.Fingerprint, entry)
	return entry, true, nil
}

func (s *Store) Close() error { return nil }
