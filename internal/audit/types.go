// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Kind classifies an incident record.
type Kind string

const (
	// KindAssessment records one threat evaluation and its decision.
	KindAssessment Kind = "assessment"
	// KindBlock records a source being blocked.
	KindBlock Kind = "block"
	// KindUnblock records a block being lifted.
	KindUnblock Kind = "unblock"
	// KindRateLimit records a source being throttled.
	KindRateLimit Kind = "rate_limit"
	// KindCleanup records a maintenance pass.
	KindCleanup Kind = "cleanup"
	// KindNotification records an operator notification.
	KindNotification Kind = "notification"
)

// Severity orders incidents for filtering.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var severityOrder = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
}

// AtLeast reports whether s meets the given minimum severity.
func (s Severity) AtLeast(min Severity) bool {
	return severityOrder[s] >= severityOrder[min]
}

// Incident is one record in the audit trail.
type Incident struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Severity    Severity        `json:"severity"`
	SourceIP    string          `json:"source_ip,omitempty"`
	Action      string          `json:"action,omitempty"`
	ThreatScore int             `json:"threat_score,omitempty"`
	ThreatLevel string          `json:"threat_level,omitempty"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// QueryFilter selects incidents. Zero fields match everything.
type QueryFilter struct {
	Kinds       []Kind     `json:"kinds,omitempty"`
	MinSeverity Severity   `json:"min_severity,omitempty"`
	SourceIP    string     `json:"source_ip,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Limit       int        `json:"limit,omitempty"`
}

// Store persists incidents.
type Store interface {
	Save(ctx context.Context, incident *Incident) error
	Query(ctx context.Context, filter QueryFilter) ([]Incident, error)
	Count(ctx context.Context, filter QueryFilter) (int64, error)
	// Delete removes incidents older than the given time, returning how
	// many were removed.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}

// matchesFilter reports whether the incident passes every filter clause.
func matchesFilter(incident *Incident, filter *QueryFilter) bool {
	if len(filter.Kinds) > 0 {
		found := false
		for _, k := range filter.Kinds {
			if incident.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.MinSeverity != "" && !incident.Severity.AtLeast(filter.MinSeverity) {
		return false
	}
	if filter.SourceIP != "" && incident.SourceIP != filter.SourceIP {
		return false
	}
	if filter.StartTime != nil && incident.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && incident.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}
