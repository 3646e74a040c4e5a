// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package threat

import (
	"fmt"
	"time"
)

// Behavioral pattern thresholds.
const (
	diverseTypeCount    = 5    // distinct event types beyond which a mix is unusual
	diverseEventCount   = 10   // events needed before diversity is meaningful
	rapidEventsPerMin   = 2.0  // per-user cadence above which activity is rapid
	concentrationShare  = 0.70 // share of one type that counts as concentration
	stationCriticalMax  = 2    // critical events at a station before flagging
	stationHighShare    = 0.50 // share of high+ severity at a station before flagging
	genericDiversityMin = 3    // distinct types for the generic fallback finding
)

// AnalyzeBehavior examines events scoped to the context's user and station
// and returns findings for unusual activity patterns. When no specific
// pattern matches but the window shows genuine event-type diversity, a
// generic finding is returned so the signal is never silently empty.
func AnalyzeBehavior(ec *EvalContext) []Finding {
	if len(ec.RecentEvents) == 0 {
		return nil
	}

	now := ec.Now
	if now.IsZero() {
		now = time.Now()
	}

	var findings []Finding
	findings = append(findings, analyzeUserBehavior(ec, now)...)
	findings = append(findings, analyzeStationBehavior(ec)...)

	if len(findings) == 0 {
		if f, ok := genericDiversityFinding(ec.RecentEvents); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// analyzeUserBehavior checks the patterns scoped to ec.UserID.
func analyzeUserBehavior(ec *EvalContext, now time.Time) []Finding {
	if ec.UserID == "" {
		return nil
	}

	var userEvents []SecurityEvent
	for _, e := range ec.RecentEvents {
		if e.UserID == ec.UserID {
			userEvents = append(userEvents, e)
		}
	}
	if len(userEvents) == 0 {
		return nil
	}

	var findings []Finding

	types := distinctTypes(userEvents)
	if len(types) > diverseTypeCount && len(userEvents) > diverseEventCount {
		findings = append(findings, Finding{
			ID:         "behavior_diverse_mix",
			Severity:   SeverityMedium,
			Confidence: 0.7,
			Message:    fmt.Sprintf("Unusually diverse activity for user %s: %d event types across %d events", ec.UserID, len(types), len(userEvents)),
			Metadata:   map[string]interface{}{"user_id": ec.UserID, "type_count": len(types), "event_count": len(userEvents)},
		})
	}

	if rate := eventsPerMinute(userEvents, now); rate > rapidEventsPerMin {
		findings = append(findings, Finding{
			ID:         "behavior_rapid_cadence",
			Severity:   SeverityHigh,
			Confidence: 0.75,
			Message:    fmt.Sprintf("Rapid event cadence for user %s: %.1f events/minute", ec.UserID, rate),
			Metadata:   map[string]interface{}{"user_id": ec.UserID, "events_per_minute": rate},
		})
	}

	if dominant, share := dominantType(userEvents); share > concentrationShare {
		findings = append(findings, Finding{
			ID:         "behavior_type_concentration",
			Severity:   SeverityMedium,
			Confidence: 0.65,
			Message:    fmt.Sprintf("Activity concentration for user %s: %.0f%% of events are %s", ec.UserID, share*100, dominant),
			Metadata:   map[string]interface{}{"user_id": ec.UserID, "dominant_type": string(dominant), "share": share},
		})
	}

	return findings
}

// analyzeStationBehavior checks the patterns scoped to ec.StationID.
func analyzeStationBehavior(ec *EvalContext) []Finding {
	if ec.StationID == "" {
		return nil
	}

	var stationEvents []SecurityEvent
	for _, e := range ec.RecentEvents {
		if e.StationID == ec.StationID {
			stationEvents = append(stationEvents, e)
		}
	}
	if len(stationEvents) == 0 {
		return nil
	}

	var findings []Finding

	criticals := 0
	highOrWorse := 0
	for _, e := range stationEvents {
		if e.Severity == SeverityCritical {
			criticals++
		}
		if e.Severity.Rank() >= SeverityHigh.Rank() {
			highOrWorse++
		}
	}

	if criticals > stationCriticalMax {
		findings = append(findings, Finding{
			ID:         "behavior_station_critical",
			Severity:   SeverityHigh,
			Confidence: 0.75,
			Message:    fmt.Sprintf("Elevated critical events at station %s: %d critical events", ec.StationID, criticals),
			Metadata:   map[string]interface{}{"station_id": ec.StationID, "critical_count": criticals},
		})
	}

	if share := float64(highOrWorse) / float64(len(stationEvents)); share > stationHighShare {
		findings = append(findings, Finding{
			ID:         "behavior_station_severity",
			Severity:   SeverityMedium,
			Confidence: 0.65,
			Message:    fmt.Sprintf("High-severity concentration at station %s: %.0f%% of events", ec.StationID, share*100),
			Metadata:   map[string]interface{}{"station_id": ec.StationID, "high_share": share},
		})
	}

	return findings
}

// genericDiversityFinding is the fallback: enough distinct event types to be
// noteworthy even though no specific pattern matched.
func genericDiversityFinding(events []SecurityEvent) (Finding, bool) {
	types := distinctTypes(events)
	if len(types) < genericDiversityMin {
		return Finding{}, false
	}
	return Finding{
		ID:         "behavior_generic_diversity",
		Severity:   SeverityLow,
		Confidence: 0.5,
		Message:    fmt.Sprintf("Diverse activity pattern: %d distinct event types in window", len(types)),
		Metadata:   map[string]interface{}{"type_count": len(types)},
	}, true
}

// distinctTypes returns the set of event types present.
func distinctTypes(events []SecurityEvent) map[EventType]int {
	types := make(map[EventType]int)
	for _, e := range events {
		types[e.Type]++
	}
	return types
}

// dominantType returns the most common event type and its share of the
// total.
func dominantType(events []SecurityEvent) (EventType, float64) {
	var best EventType
	bestCount := 0
	for t, n := range distinctTypes(events) {
		if n > bestCount || (n == bestCount && t < best) {
			best = t
			bestCount = n
		}
	}
	if len(events) == 0 {
		return best, 0
	}
	return best, float64(bestCount) / float64(len(events))
}

// eventsPerMinute computes the event rate over the span from the oldest
// event to now, with a one-minute floor to avoid division blowups on tight
// clusters.
func eventsPerMinute(events []SecurityEvent, now time.Time) float64 {
	if len(events) == 0 {
		return 0
	}
	oldest := events[0].Timestamp
	for _, e := range events[1:] {
		if e.Timestamp.Before(oldest) {
			oldest = e.Timestamp
		}
	}
	span := now.Sub(oldest)
	if span < time.Minute {
		span = time.Minute
	}
	return float64(len(events)) / span.Minutes()
}
