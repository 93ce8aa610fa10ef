// Package disk persists cache entries as one JSON file per fingerprint.
// Writes go through a temp file plus link, which doubles as the atomic
// insert-if-absent: linking to an existing name fails, and the loser adopts
// the winner's entry.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	t "repopilot/internal/types"
)

type Store struct {
	dataDir string
}

func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("disk: root is required")
	}
	dataDir := filepath.Join(root, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dataDir: dataDir}, nil
}

func (s *Store) Get(_ context.Context, fp t.Fingerprint) (t.CacheEntry, bool, error) {
	raw, err := os.ReadFile(s.entryPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return t.CacheEntry{}, false, nil
		}
		return t.CacheEntry{}, false, err
	}
	var e t.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		// A corrupt entry is a miss; regeneration overwrites nothing, the
		// stale file stays until an external eviction pass.
		return t.CacheEntry{}, false, nil
	}
	return e, true, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, entry t.CacheEntry) (t.CacheEntry, bool, error) {
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return t.CacheEntry{}, false, err
	}
	final := s.entryPath(entry.Fingerprint)
	tmp, err := os.CreateTemp(s.dataDir, "put-*.tmp")
	if err != nil {
		return t.CacheEntry{}, false, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return t.CacheEntry{}, false, err
	}
	if err := tmp.Close(); err != nil {
		return t.CacheEntry{}, false, err
	}

	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, os.ErrExist) {
			winner, ok, gerr := s.Get(ctx, entry.Fingerprint)
			if gerr == nil && ok {
				return winner, false, nil
			}
			return entry, false, nil
		}
		return t.CacheEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) entryPath(fp t.Fingerprint) string {
	return filepath.Join(s.dataDir, string(fp)+".json")
}
