// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package threat

import (
	"math"
	"sync"
	"time"
)

// Default history bounds.
const (
	DefaultMaxHistorySize = 1000
	DefaultDecayWindow    = 24 * time.Hour

	// decayRate is the exponent coefficient in the per-entry decay weight
	// e^(-decayRate * rank), rank 0 being the most recent entry.
	decayRate = 0.1
)

// HistoryEntry is one (timestamp, score) pair in a source's threat history.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
}

// History tracks per-source threat scores over time. It feeds the
// exponentially-decayed historical threat level back into future
// aggregation, so a source's recent aggressive pattern raises its score on
// later evaluations even when the current burst is modest. This is the
// anti-gaming mechanism against slow/low attacks.
//
// Entries per source are time-ordered, capped at maxSize, and pruned to the
// decay window before being read.
type History struct {
	mu          sync.RWMutex
	entries     map[string][]HistoryEntry
	maxSize     int
	decayWindow time.Duration
}

// NewHistory creates a history tracker. Non-positive arguments select the
// defaults.
func NewHistory(maxSize int, decayWindow time.Duration) *History {
	if maxSize <= 0 {
		maxSize = DefaultMaxHistorySize
	}
	if decayWindow <= 0 {
		decayWindow = DefaultDecayWindow
	}
	return &History{
		entries:     make(map[string][]HistoryEntry),
		maxSize:     maxSize,
		decayWindow: decayWindow,
	}
}

// Record appends a score for the source, pruning to the decay window and
// size cap.
func (h *History) Record(source string, score int, now time.Time) {
	if source == "" {
		return
	}
	if now.IsZero() {
		now = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entries := pruneEntries(h.entries[source], now.Add(-h.decayWindow))
	entries = append(entries, HistoryEntry{Timestamp: now, Score: score})
	if len(entries) > h.maxSize {
		entries = entries[len(entries)-h.maxSize:]
	}
	h.entries[source] = entries
}

// Level computes the exponentially-decayed weighted average of the source's
// scores within the decay window, most recent entry weighted highest.
// Returns 0 for unknown sources or sources whose history has fully aged out.
func (h *History) Level(source string, now time.Time) float64 {
	if now.IsZero() {
		now = time.Now()
	}

	h.mu.RLock()
	entries := h.entries[source]
	h.mu.RUnlock()

	entries = pruneEntries(entries, now.Add(-h.decayWindow))
	if len(entries) == 0 {
		return 0
	}

	// Most recent entry gets rank 0; entries are stored oldest first.
	var weighted, totalWeight float64
	for rank := 0; rank < len(entries); rank++ {
		entry := entries[len(entries)-1-rank]
		w := math.Exp(-decayRate * float64(rank))
		weighted += w * float64(entry.Score)
		totalWeight += w
	}
	return weighted / totalWeight
}

// Entries returns a copy of the source's in-window history, oldest first.
func (h *History) Entries(source string, now time.Time) []HistoryEntry {
	if now.IsZero() {
		now = time.Now()
	}

	h.mu.RLock()
	entries := h.entries[source]
	h.mu.RUnlock()

	entries = pruneEntries(entries, now.Add(-h.decayWindow))
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// SourceCount returns the number of sources with any recorded history.
func (h *History) SourceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// AverageLatestScore returns the mean of each tracked source's most recent
// score, or 0 when nothing is tracked. Used for system stats, not
// decisioning.
func (h *History) AverageLatestScore() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var sum float64
	var n int
	for _, entries := range h.entries {
		if len(entries) == 0 {
			continue
		}
		sum += float64(entries[len(entries)-1].Score)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Prune removes entries older than the cutoff across all sources, dropping
// sources left empty. Returns the number of entries removed. Safe to call
// on any schedule; a second call with no new entries removes nothing.
func (h *History) Prune(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for source, entries := range h.entries {
		kept := pruneEntries(entries, cutoff)
		removed += len(entries) - len(kept)
		if len(kept) == 0 {
			delete(h.entries, source)
		} else {
			h.entries[source] = kept
		}
	}
	return removed
}

// pruneEntries drops entries strictly older than the cutoff. Entries are
// time-ordered, so this is a prefix cut.
func pruneEntries(entries []HistoryEntry, cutoff time.Time) []HistoryEntry {
	idx := 0
	for idx < len(entries) && entries[idx].Timestamp.Before(cutoff) {
		idx++
	}
	return entries[idx:]
}
