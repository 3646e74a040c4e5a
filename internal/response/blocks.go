// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"sync"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/threat"
)

// BlockRecord is the lifecycle object for a blocked source IP.
//
// States: unblocked -> blocked -> expired (lazy, checked on lookup) or
// blocked -> unblocked (explicit). A source has at most one active record;
// re-blocking replaces rather than stacks.
type BlockRecord struct {
	IP          string        `json:"ip"`
	Timestamp   time.Time     `json:"timestamp"`
	Reason      string        `json:"reason"`
	ThreatScore int           `json:"threat_score"`
	ThreatLevel threat.Level  `json:"threat_level"`
	Duration    time.Duration `json:"duration"`
	ExpiresAt   time.Time     `json:"expires_at"`

	UnblockedAt   *time.Time `json:"unblocked_at,omitempty"`
	UnblockReason string     `json:"unblock_reason,omitempty"`
}

// BlockTable holds the active block records. Expiry is lazy: any lookup
// that finds a past-due record deletes it and reports unblocked. No timers.
type BlockTable struct {
	mu     sync.RWMutex
	blocks map[string]*BlockRecord

	totalBlocked   int64
	totalExpired   int64
	totalUnblocked int64
}

// NewBlockTable creates an empty block table.
func NewBlockTable() *BlockTable {
	return &BlockTable{blocks: make(map[string]*BlockRecord)}
}

// Block inserts or replaces the record for the IP.
func (t *BlockTable) Block(record *BlockRecord) {
	t.mu.Lock()
	replaced := t.blocks[record.IP] != nil
	t.blocks[record.IP] = record
	t.totalBlocked++
	size := len(t.blocks)
	t.mu.Unlock()

	metrics.ActiveBlocks.Set(float64(size))
	logging.Info().
		Str("ip", record.IP).
		Int("score", record.ThreatScore).
		Dur("duration", record.Duration).
		Bool("replaced", replaced).
		Msg("source blocked")
}

// IsBlockedAt reports whether the IP has an unexpired block at the given
// time, deleting the record when it finds one past due.
func (t *BlockTable) IsBlockedAt(ip string, now time.Time) bool {
	t.mu.RLock()
	record, ok := t.blocks[ip]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	if now.After(record.ExpiresAt) {
		t.mu.Lock()
		// Re-check under the write lock; a concurrent re-block may have
		// replaced the record with a fresh one.
		if current, ok := t.blocks[ip]; ok && now.After(current.ExpiresAt) {
			delete(t.blocks, ip)
			t.totalExpired++
			metrics.ActiveBlocks.Set(float64(len(t.blocks)))
		}
		t.mu.Unlock()
		return false
	}
	return true
}

// Get returns the IP's record if present and unexpired at the given time.
func (t *BlockTable) Get(ip string, now time.Time) (*BlockRecord, bool) {
	if !t.IsBlockedAt(ip, now) {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	record, ok := t.blocks[ip]
	if !ok {
		return nil, false
	}
	copied := *record
	return &copied, true
}

// Unblock removes the IP's record regardless of expiry, stamping the reason.
// Returns the stamped record, or false if the IP was not blocked.
func (t *BlockTable) Unblock(ip, reason string, now time.Time) (*BlockRecord, bool) {
	t.mu.Lock()
	record, ok := t.blocks[ip]
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	delete(t.blocks, ip)
	t.totalUnblocked++
	size := len(t.blocks)
	t.mu.Unlock()

	unblockedAt := now
	record.UnblockedAt = &unblockedAt
	record.UnblockReason = reason

	metrics.ActiveBlocks.Set(float64(size))
	logging.Info().Str("ip", ip).Str("reason", reason).Msg("source unblocked")

	copied := *record
	return &copied, true
}

// Active returns copies of all unexpired records at the given time.
func (t *BlockTable) Active(now time.Time) []BlockRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := make([]BlockRecord, 0, len(t.blocks))
	for _, record := range t.blocks {
		if now.After(record.ExpiresAt) {
			continue
		}
		records = append(records, *record)
	}
	return records
}

// RemoveExpired deletes all records past due at the given time, returning
// how many were removed. Used by the maintenance pass.
func (t *BlockTable) RemoveExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for ip, record := range t.blocks {
		if now.After(record.ExpiresAt) {
			delete(t.blocks, ip)
			t.totalExpired++
			removed++
		}
	}
	if removed > 0 {
		metrics.ActiveBlocks.Set(float64(len(t.blocks)))
		metrics.CleanupRemoved.WithLabelValues("block").Add(float64(removed))
	}
	return removed
}

// Counts returns (active, totalBlocked, totalExpired, totalUnblocked).
func (t *BlockTable) Counts() (active int, blocked, expired, unblocked int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.blocks), t.totalBlocked, t.totalExpired, t.totalUnblocked
}
