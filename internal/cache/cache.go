// Package cache defines the content-addressed explanation store shared across
// builds. Entries are keyed by fingerprint and immutable once written, so
// concurrent readers need no locking and writers only need insert-if-absent.
package cache

import (
	"context"

	t "repopilot/internal/types"
)

// Store is the key-value boundary for cached explanations. The persistence
// medium (memory, files, embedded KV, database) is an implementation choice.
type Store interface {
	// Get returns the entry for fp when present. A store error degrades the
	// caller to a cache miss; it never aborts a build.
	Get(ctx context.Context, fp t.Fingerprint) (t.CacheEntry, bool, error)
	// PutIfAbsent inserts entry unless its fingerprint is already present,
	// returning the winning entry and whether the insert happened. Racing
	// writers for the same fingerprint converge on one stored entry.
	PutIfAbsent(ctx context.Context, entry t.CacheEntry) (t.CacheEntry, bool, error)
	Close() error
}
