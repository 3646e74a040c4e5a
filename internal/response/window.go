// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"sync"
	"time"
)

// WindowCounter is a sliding-window event counter backed by a circular
// bucket ring. Time is divided into fixed buckets; stale buckets are
// zeroed lazily as the window advances on each call.
//
// Complexity: Increment O(1), Count O(k) for k buckets.
type WindowCounter struct {
	mu         sync.Mutex
	buckets    []int64
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
	now        func() time.Time
}

// NewWindowCounter creates a counter covering windowSize split into
// numBuckets buckets.
func NewWindowCounter(windowSize time.Duration, numBuckets int) *WindowCounter {
	if numBuckets <= 0 {
		numBuckets = 12
	}
	if windowSize <= 0 {
		windowSize = time.Hour
	}
	return &WindowCounter{
		buckets:    make([]int64, numBuckets),
		bucketSize: windowSize / time.Duration(numBuckets),
		numBuckets: numBuckets,
		now:        time.Now,
	}
}

// Increment adds one to the current bucket.
func (w *WindowCounter) Increment() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.advance()
	w.buckets[w.current]++
}

// Count returns the total across all live buckets.
func (w *WindowCounter) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.advance()

	var total int64
	for _, n := range w.buckets {
		total += n
	}
	return total
}

// advance zeroes buckets the window has moved past. Lock must be held.
func (w *WindowCounter) advance() {
	now := w.now()
	if w.lastUpdate.IsZero() {
		w.lastUpdate = now
		return
	}

	elapsed := int(now.Sub(w.lastUpdate) / w.bucketSize)
	if elapsed <= 0 {
		return
	}

	if elapsed >= w.numBuckets {
		for i := range w.buckets {
			w.buckets[i] = 0
		}
		w.current = 0
	} else {
		for i := 0; i < elapsed; i++ {
			w.current = (w.current + 1) % w.numBuckets
			w.buckets[w.current] = 0
		}
	}
	w.lastUpdate = now
}

// UniqueSourceCounter counts distinct source IPs seen within a sliding
// window, using a ring of per-bucket sets merged on read.
type UniqueSourceCounter struct {
	mu         sync.Mutex
	buckets    []map[string]struct{}
	bucketSize time.Duration
	numBuckets int
	current    int
	lastUpdate time.Time
	now        func() time.Time
}

// NewUniqueSourceCounter creates a counter covering windowSize split
// into numBuckets buckets.
func NewUniqueSourceCounter(windowSize time.Duration, numBuckets int) *UniqueSourceCounter {
	if numBuckets <= 0 {
		numBuckets = 12
	}
	if windowSize <= 0 {
		windowSize = time.Hour
	}
	buckets := make([]map[string]struct{}, numBuckets)
	for i := range buckets {
		buckets[i] = make(map[string]struct{})
	}
	return &UniqueSourceCounter{
		buckets:    buckets,
		bucketSize: windowSize / time.Duration(numBuckets),
		numBuckets: numBuckets,
		now:        time.Now,
	}
}

// Observe records the source in the current bucket.
func (u *UniqueSourceCounter) Observe(source string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.advance()
	u.buckets[u.current][source] = struct{}{}
}

// Count returns the number of distinct sources across all live buckets.
func (u *UniqueSourceCounter) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.advance()

	merged := make(map[string]struct{})
	for _, bucket := range u.buckets {
		for source := range bucket {
			merged[source] = struct{}{}
		}
	}
	return len(merged)
}

// advance replaces bucket sets the window has moved past. Lock must be held.
func (u *UniqueSourceCounter) advance() {
	now := u.now()
	if u.lastUpdate.IsZero() {
		u.lastUpdate = now
		return
	}

	elapsed := int(now.Sub(u.lastUpdate) / u.bucketSize)
	if elapsed <= 0 {
		return
	}

	if elapsed >= u.numBuckets {
		for i := range u.buckets {
			u.buckets[i] = make(map[string]struct{})
		}
		u.current = 0
	} else {
		for i := 0; i < elapsed; i++ {
			u.current = (u.current + 1) % u.numBuckets
			u.buckets[u.current] = make(map[string]struct{})
		}
	}
	u.lastUpdate = now
}
