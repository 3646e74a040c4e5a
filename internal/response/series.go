// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"time"

	"github.com/tomtom215/vigil/internal/threat"
)

// seriesBoundaries defines the trailing bucket edges, in minutes before
// now. Consecutive pairs form disjoint buckets: [60,30), [30,15),
// [15,5), [5,1), [1,0]. The last bucket is the newest measurement the
// anomaly check compares against the earlier baseline.
var seriesBoundaries = []time.Duration{
	60 * time.Minute,
	30 * time.Minute,
	15 * time.Minute,
	5 * time.Minute,
	1 * time.Minute,
	0,
}

// seriesEventTypes maps each tracked series to the event type it counts.
var seriesEventTypes = map[string]threat.EventType{
	threat.SeriesLoginFailures:      threat.EventLoginFailed,
	threat.SeriesEquipmentErrors:    threat.EventEquipmentError,
	threat.SeriesUnauthorizedAccess: threat.EventUnauthorizedAccess,
}

// buildSeries turns the recent event buffer into per-type bucketed count
// series, oldest bucket first. Series with no events at all are omitted
// so the statistical pass can tell "quiet" from "all zeros".
func buildSeries(events []threat.SecurityEvent, now time.Time) map[string][]float64 {
	series := make(map[string][]float64, len(seriesEventTypes))

	for name, eventType := range seriesEventTypes {
		counts := make([]float64, len(seriesBoundaries)-1)
		total := 0.0
		for _, event := range events {
			if event.Type != eventType {
				continue
			}
			idx, ok := bucketIndex(now.Sub(event.Timestamp))
			if !ok {
				continue
			}
			counts[idx]++
			total++
		}
		if total > 0 {
			series[name] = counts
		}
	}
	return series
}

// bucketIndex maps an event age to its bucket position, oldest first.
func bucketIndex(age time.Duration) (int, bool) {
	if age < 0 || age >= seriesBoundaries[0] {
		return 0, false
	}
	for i := 0; i < len(seriesBoundaries)-1; i++ {
		if age < seriesBoundaries[i] && age >= seriesBoundaries[i+1] {
			return i, true
		}
	}
	return 0, false
}
