// Package badger is the embedded persistent cache backend for long-lived
// runs that outlast the process without needing a database server.
package badger

import (
	"context"
	"encoding/json"
	"errors"

	badger "github.com/dgraph-io/badger/v4"

	t "repopilot/internal/types"
)

type Store struct {
	db *badger.DB
}

func New(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(_ context.Context, fp t.Fingerprint) (t.CacheEntry, bool, error) {
	var e t.CacheEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fp))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return t.CacheEntry{}, false, nil
	}
	if err != nil {
		return t.CacheEntry{}, false, err
	}
	return e, true, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, entry t.CacheEntry) (t.CacheEntry, bool, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return t.CacheEntry{}, false, err
	}
	key := []byte(entry.Fingerprint)
	for {
		var winner t.CacheEntry
		inserted := false
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err == nil {
				return item.Value(func(val []byte) error {
					return json.Unmarshal(val, &winner)
				})
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			inserted = true
			return txn.Set(key, raw)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue // racing writer; re-read, the existing entry wins
		}
		if err != nil {
			return t.CacheEntry{}, false, err
		}
		if inserted {
			return entry, true, nil
		}
		return winner, false, nil
	}
}

func (s *Store) Close() error { return s.db.Close() }
