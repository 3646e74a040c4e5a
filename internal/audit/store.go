// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in memory with a bounded buffer. Suitable
// for development and tests; data is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents []Incident
	maxLen    int
}

// NewMemoryStore creates an in-memory store holding at most maxLen
// incidents.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		incidents: make([]Incident, 0, maxLen),
		maxLen:    maxLen,
	}
}

// Save appends the incident, evicting the oldest tenth when full.
func (s *MemoryStore) Save(ctx context.Context, incident *Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.incidents) >= s.maxLen {
		drop := s.maxLen / 10
		if drop < 1 {
			drop = 1
		}
		s.incidents = s.incidents[drop:]
	}
	s.incidents = append(s.incidents, *incident)
	return nil
}

// Query returns matching incidents, newest first.
func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Incident
	for i := len(s.incidents) - 1; i >= 0; i-- {
		incident := s.incidents[i]
		if !matchesFilter(&incident, &filter) {
			continue
		}
		results = append(results, incident)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// Count returns the number of matching incidents.
func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.incidents {
		if matchesFilter(&s.incidents[i], &filter) {
			count++
		}
	}
	return count, nil
}

// Delete removes incidents older than the given time.
func (s *MemoryStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.incidents[:0]
	var deleted int64
	for i := range s.incidents {
		if s.incidents[i].Timestamp.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, s.incidents[i])
	}
	s.incidents = kept
	return deleted, nil
}

// Len returns the number of stored incidents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
