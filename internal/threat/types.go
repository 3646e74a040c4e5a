// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package threat

import (
	"time"
)

// EventType identifies the kind of security-relevant occurrence an upstream
// collaborator observed. Types use dotted wire identifiers so they slot into
// the audit trail and NATS subjects unchanged.
type EventType string

const (
	EventLoginFailed           EventType = "auth.login.failed"
	EventLoginSuccess          EventType = "auth.login.success"
	EventUnauthorizedAccess    EventType = "data.access.unauthorized"
	EventEquipmentError        EventType = "equipment.error"
	EventEquipmentAnomaly      EventType = "equipment.anomaly"
	EventNetworkScan           EventType = "network.scan"
	EventInputValidationFailed EventType = "input.validation.failed"
)

// Severity grades an event or finding. Severities are ordered; use Rank for
// comparisons.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of the severity, lowest first.
// Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Weight returns the severity's contribution weight in score fusion.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 10
	case SeverityMedium:
		return 25
	case SeverityHigh:
		return 50
	case SeverityCritical:
		return 75
	default:
		return 0
	}
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Level is the coarse threat bucket derived from a numeric score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Rank returns the ordinal position of the level, lowest first.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return 0
	}
}

// Score thresholds for level derivation. LevelForScore is a monotonic step
// function over these boundaries.
const (
	ScoreThresholdMedium   = 25
	ScoreThresholdHigh     = 50
	ScoreThresholdCritical = 75
)

// LevelForScore maps a clamped threat score to its level.
func LevelForScore(score int) Level {
	switch {
	case score >= ScoreThresholdCritical:
		return LevelCritical
	case score >= ScoreThresholdHigh:
		return LevelHigh
	case score >= ScoreThresholdMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// SecurityEvent is one observed occurrence, produced by upstream
// collaborators (auth flow, access control, equipment monitors) and consumed
// by the engine. Events are immutable once created.
type SecurityEvent struct {
	ID        string            `json:"id,omitempty"`
	Type      EventType         `json:"event_type"`
	Severity  Severity          `json:"severity"`
	SourceIP  string            `json:"source_ip,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	StationID string            `json:"station_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Finding is one signal's output (statistical, rule, reputation, or
// behavioral) feeding into an aggregated assessment. Findings are ephemeral;
// they live for a single aggregation pass.
type Finding struct {
	ID         string                 `json:"id"`
	Severity   Severity               `json:"severity"`
	Message    string                 `json:"message"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Assessment is the engine's output for one evaluation.
type Assessment struct {
	// Score is the fused threat score, always in [0, 100].
	Score int `json:"score"`

	// Level is derived from Score via LevelForScore.
	Level Level `json:"level"`

	// Severity is the maximum severity among contributing findings.
	Severity Severity `json:"severity"`

	// Factors lists one human-readable line per contributing signal or
	// bonus. Never empty: a neutral note is recorded when nothing fired.
	Factors []string `json:"factors"`

	// Confidence is the mean confidence across firing findings, 0.5 when
	// no finding fired.
	Confidence float64 `json:"confidence"`

	// Recommendations are suggested next actions derived from Level plus
	// signal-specific hints.
	Recommendations []string `json:"recommendations"`

	Timestamp time.Time `json:"timestamp"`
}

// EvalContext carries everything one evaluation needs. RecentEvents and
// Series are snapshots owned by the caller; the aggregator never mutates
// them.
type EvalContext struct {
	SourceIP  string
	UserID    string
	StationID string

	// RecentEvents is the bounded, time-ordered event window for the
	// source under evaluation.
	RecentEvents []SecurityEvent

	// Series maps named time-series (see Series* constants) to bucketed
	// counts, oldest bucket first.
	Series map[string][]float64

	// TimeWindow is the span RecentEvents covers.
	TimeWindow time.Duration

	// Now anchors all time-window math. Zero means time.Now().
	Now time.Time
}

// Named time-series keys in EvalContext.Series.
const (
	SeriesLoginFailures      = "login_failures"
	SeriesEquipmentErrors    = "equipment_errors"
	SeriesUnauthorizedAccess = "unauthorized_access"
)

// EventMetrics summarizes an event window for rule conditions.
type EventMetrics struct {
	Total      int
	BySeverity map[Severity]int
	ByType     map[EventType]int
}

// ComputeEventMetrics tallies per-severity and per-type counts.
func ComputeEventMetrics(events []SecurityEvent) EventMetrics {
	m := EventMetrics{
		Total:      len(events),
		BySeverity: make(map[Severity]int),
		ByType:     make(map[EventType]int),
	}
	for _, e := range events {
		m.BySeverity[e.Severity]++
		m.ByType[e.Type]++
	}
	return m
}

// CountEventsOfType returns how many events of the given type fall within
// window of now.
func CountEventsOfType(events []SecurityEvent, eventType EventType, window time.Duration, now time.Time) int {
	cutoff := now.Add(-window)
	count := 0
	for _, e := range events {
		if e.Type == eventType && !e.Timestamp.Before(cutoff) && !e.Timestamp.After(now) {
			count++
		}
	}
	return count
}

// CountEventsOfSeverity returns how many events of the given severity fall
// within window of now.
func CountEventsOfSeverity(events []SecurityEvent, severity Severity, window time.Duration, now time.Time) int {
	cutoff := now.Add(-window)
	count := 0
	for _, e := range events {
		if e.Severity == severity && !e.Timestamp.Before(cutoff) && !e.Timestamp.After(now) {
			count++
		}
	}
	return count
}
