// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package threat

import (
	"testing"
	"time"
)

var behaviorNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func userEvent(eventType EventType, severity Severity, userID, stationID string, age time.Duration) SecurityEvent {
	return SecurityEvent{
		Type:      eventType,
		Severity:  severity,
		SourceIP:  "10.0.0.1",
		UserID:    userID,
		StationID: stationID,
		Timestamp: behaviorNow.Add(-age),
	}
}

func TestAnalyzeBehaviorDiverseMix(t *testing.T) {
	types := []EventType{
		EventLoginFailed, EventLoginSuccess, EventUnauthorizedAccess,
		EventEquipmentError, EventEquipmentAnomaly, EventNetworkScan,
	}
	var events []SecurityEvent
	// 12 events across 6 distinct types, spread over an hour to keep the
	// cadence below the rapid threshold.
	for i := 0; i < 12; i++ {
		events = append(events, userEvent(types[i%len(types)], SeverityLow, "operator-7", "", time.Duration(i*5)*time.Minute))
	}

	findings := AnalyzeBehavior(&EvalContext{UserID: "operator-7", RecentEvents: events, Now: behaviorNow})
	if _, ok := findingByID(findings, "behavior_diverse_mix"); !ok {
		t.Errorf("diverse mix not flagged: %+v", findings)
	}
}

func TestAnalyzeBehaviorRapidCadence(t *testing.T) {
	var events []SecurityEvent
	// 10 events inside 3 minutes: > 2/min.
	for i := 0; i < 10; i++ {
		events = append(events, userEvent(EventLoginFailed, SeverityMedium, "operator-3", "", time.Duration(i*18)*time.Second))
	}

	findings := AnalyzeBehavior(&EvalContext{UserID: "operator-3", RecentEvents: events, Now: behaviorNow})
	if _, ok := findingByID(findings, "behavior_rapid_cadence"); !ok {
		t.Errorf("rapid cadence not flagged: %+v", findings)
	}
}

func TestAnalyzeBehaviorTypeConcentration(t *testing.T) {
	var events []SecurityEvent
	// 8 of 10 events are one type (80% > 70%), spread out to stay slow.
	for i := 0; i < 8; i++ {
		events = append(events, userEvent(EventLoginFailed, SeverityMedium, "operator-1", "", time.Duration(i*10)*time.Minute))
	}
	events = append(events,
		userEvent(EventNetworkScan, SeverityLow, "operator-1", "", 5*time.Minute),
		userEvent(EventLoginSuccess, SeverityLow, "operator-1", "", 15*time.Minute),
	)

	findings := AnalyzeBehavior(&EvalContext{UserID: "operator-1", RecentEvents: events, Now: behaviorNow})
	if _, ok := findingByID(findings, "behavior_type_concentration"); !ok {
		t.Errorf("type concentration not flagged: %+v", findings)
	}
}

func TestAnalyzeBehaviorStationCritical(t *testing.T) {
	var events []SecurityEvent
	for i := 0; i < 3; i++ {
		events = append(events, userEvent(EventEquipmentError, SeverityCritical, "", "station-9", time.Duration(i)*time.Minute))
	}

	findings := AnalyzeBehavior(&EvalContext{StationID: "station-9", RecentEvents: events, Now: behaviorNow})
	if _, ok := findingByID(findings, "behavior_station_critical"); !ok {
		t.Errorf("station critical count not flagged: %+v", findings)
	}
}

func TestAnalyzeBehaviorStationSeverityShare(t *testing.T) {
	events := []SecurityEvent{
		userEvent(EventEquipmentError, SeverityHigh, "", "station-2", time.Minute),
		userEvent(EventEquipmentAnomaly, SeverityHigh, "", "station-2", 2*time.Minute),
		userEvent(EventLoginSuccess, SeverityLow, "", "station-2", 3*time.Minute),
	}

	findings := AnalyzeBehavior(&EvalContext{StationID: "station-2", RecentEvents: events, Now: behaviorNow})
	if _, ok := findingByID(findings, "behavior_station_severity"); !ok {
		t.Errorf("station severity share not flagged: %+v", findings)
	}
}

func TestAnalyzeBehaviorGenericFallback(t *testing.T) {
	// Three distinct types, no user/station scope: no specific pattern can
	// match, but diversity exists, so the generic finding fires.
	events := []SecurityEvent{
		userEvent(EventLoginFailed, SeverityLow, "", "", time.Minute),
		userEvent(EventNetworkScan, SeverityLow, "", "", 2*time.Minute),
		userEvent(EventEquipmentError, SeverityLow, "", "", 3*time.Minute),
	}

	findings := AnalyzeBehavior(&EvalContext{RecentEvents: events, Now: behaviorNow})
	if _, ok := findingByID(findings, "behavior_generic_diversity"); !ok {
		t.Errorf("generic diversity fallback not produced: %+v", findings)
	}
}

func TestAnalyzeBehaviorQuietWindow(t *testing.T) {
	events := []SecurityEvent{
		userEvent(EventLoginSuccess, SeverityLow, "", "", time.Minute),
	}

	if findings := AnalyzeBehavior(&EvalContext{RecentEvents: events, Now: behaviorNow}); len(findings) != 0 {
		t.Errorf("quiet window produced findings: %+v", findings)
	}
}

func TestAnalyzeBehaviorNoEvents(t *testing.T) {
	if findings := AnalyzeBehavior(&EvalContext{Now: behaviorNow}); findings != nil {
		t.Errorf("empty window produced findings: %+v", findings)
	}
}
