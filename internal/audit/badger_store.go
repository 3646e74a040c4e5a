// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// incidentKeyPrefix namespaces incident records. Keys embed the
// nanosecond timestamp so prefix iteration walks incidents in time order.
const incidentKeyPrefix = "incident:"

// BadgerStore implements Store on BadgerDB for durable incident history.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
	ownsDB    bool
}

// OpenBadgerStore opens (or creates) a BadgerDB at path. An empty path
// opens an in-memory database, used by tests. Records carry a TTL of
// retention so Badger reclaims them even without an explicit Delete.
func OpenBadgerStore(path string, retention time.Duration) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return &BadgerStore{db: db, retention: retention, ownsDB: true}, nil
}

// NewBadgerStore wraps an existing BadgerDB handle. Close leaves the
// handle open for its owner.
func NewBadgerStore(db *badger.DB, retention time.Duration) *BadgerStore {
	return &BadgerStore{db: db, retention: retention}
}

func incidentKey(incident *Incident) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", incidentKeyPrefix, incident.Timestamp.UnixNano(), incident.ID))
}

// Save persists the incident.
func (s *BadgerStore) Save(ctx context.Context, incident *Incident) error {
	data, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(incidentKey(incident), data)
		if s.retention > 0 {
			entry = entry.WithTTL(s.retention)
		}
		return txn.SetEntry(entry)
	})
}

// Query returns matching incidents, newest first.
func (s *BadgerStore) Query(ctx context.Context, filter QueryFilter) ([]Incident, error) {
	var results []Incident

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(incidentKeyPrefix)
		// Reverse iteration starts past the last key in the prefix range.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var incident Incident
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &incident)
			})
			if err != nil {
				return fmt.Errorf("decode incident: %w", err)
			}
			if !matchesFilter(&incident, &filter) {
				continue
			}
			results = append(results, incident)
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of matching incidents.
func (s *BadgerStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	var count int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(incidentKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var incident Incident
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &incident)
			})
			if err != nil {
				return fmt.Errorf("decode incident: %w", err)
			}
			if matchesFilter(&incident, &filter) {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes incidents older than the given time.
func (s *BadgerStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(incidentKeyPrefix)
		cutoff := []byte(fmt.Sprintf("%s%020d:", incidentKeyPrefix, olderThan.UnixNano()))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(cutoff) {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return int64(len(keys)), fmt.Errorf("delete incident: %w", err)
		}
	}
	return int64(len(keys)), nil
}

// Close closes the underlying database if this store opened it.
func (s *BadgerStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
