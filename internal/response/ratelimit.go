// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"sync"
	"time"

	"github.com/tomtom215/vigil/internal/metrics"
)

// DefaultRateLimitDuration is how long a rate-limit entry stays active.
const DefaultRateLimitDuration = 30 * time.Minute

// RateLimitEntry marks a source as throttled until ExpiresAt.
type RateLimitEntry struct {
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"`
}

// RateLimitTable tracks throttled sources. Like the block table, expiry is
// lazy on lookup with a maintenance sweep for bulk removal.
type RateLimitTable struct {
	mu      sync.RWMutex
	entries map[string]*RateLimitEntry
}

// NewRateLimitTable creates an empty rate-limit table.
func NewRateLimitTable() *RateLimitTable {
	return &RateLimitTable{entries: make(map[string]*RateLimitEntry)}
}

// Limit inserts or refreshes the entry for the IP.
func (t *RateLimitTable) Limit(ip, reason string, duration time.Duration, now time.Time) {
	if duration <= 0 {
		duration = DefaultRateLimitDuration
	}
	t.mu.Lock()
	t.entries[ip] = &RateLimitEntry{
		IP:        ip,
		Timestamp: now,
		ExpiresAt: now.Add(duration),
		Reason:    reason,
	}
	size := len(t.entries)
	t.mu.Unlock()

	metrics.ActiveRateLimits.Set(float64(size))
}

// IsLimitedAt reports whether the IP has an unexpired entry at the given
// time, deleting any past-due entry it encounters.
func (t *RateLimitTable) IsLimitedAt(ip string, now time.Time) bool {
	t.mu.RLock()
	entry, ok := t.entries[ip]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	if now.After(entry.ExpiresAt) {
		t.mu.Lock()
		if current, ok := t.entries[ip]; ok && now.After(current.ExpiresAt) {
			delete(t.entries, ip)
			metrics.ActiveRateLimits.Set(float64(len(t.entries)))
		}
		t.mu.Unlock()
		return false
	}
	return true
}

// RemoveExpired deletes all entries past due at the given time.
func (t *RateLimitTable) RemoveExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for ip, entry := range t.entries {
		if now.After(entry.ExpiresAt) {
			delete(t.entries, ip)
			removed++
		}
	}
	if removed > 0 {
		metrics.ActiveRateLimits.Set(float64(len(t.entries)))
		metrics.CleanupRemoved.WithLabelValues("rate_limit").Add(float64(removed))
	}
	return removed
}

// Size returns the number of entries, expired or not.
func (t *RateLimitTable) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
