// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package notify delivers operator alerts for high-severity decisions
// and implements the response system's follow-up hooks.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/threat"
)

// Alert is the payload delivered to notifiers.
type Alert struct {
	Title           string    `json:"title"`
	SourceIP        string    `json:"source_ip"`
	EventType       string    `json:"event_type"`
	ThreatScore     int       `json:"threat_score"`
	ThreatLevel     string    `json:"threat_level"`
	Factors         []string  `json:"factors,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Notifier delivers alerts to one destination.
type Notifier interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, alert *Alert) error
}

// Dispatcher fans alerts out to every enabled notifier and implements
// the response system's Hooks contract.
type Dispatcher struct {
	notifiers []Notifier
}

// NewDispatcher creates a dispatcher over the given notifiers.
func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers}
}

// Send delivers the alert through every enabled notifier, joining any
// delivery errors.
func (d *Dispatcher) Send(ctx context.Context, alert *Alert) error {
	var errs []error
	for _, n := range d.notifiers {
		if !n.Enabled() {
			continue
		}
		if err := n.Send(ctx, alert); err != nil {
			metrics.NotificationsSent.WithLabelValues(n.Name(), "failed").Inc()
			logging.Warn().Err(err).Str("notifier", n.Name()).Msg("alert delivery failed")
			errs = append(errs, err)
			continue
		}
		metrics.NotificationsSent.WithLabelValues(n.Name(), "sent").Inc()
	}
	return errors.Join(errs...)
}

func alertFrom(title string, assessment *threat.Assessment, event *threat.SecurityEvent) *Alert {
	alert := &Alert{
		Title:     title,
		Timestamp: time.Now(),
	}
	if assessment != nil {
		alert.ThreatScore = assessment.Score
		alert.ThreatLevel = string(assessment.Level)
		alert.Factors = assessment.Factors
		alert.Recommendations = assessment.Recommendations
	}
	if event != nil {
		alert.SourceIP = event.SourceIP
		alert.EventType = string(event.Type)
	}
	return alert
}

// NotifySecurityTeam delivers a security alert through all notifiers.
func (d *Dispatcher) NotifySecurityTeam(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error {
	return d.Send(ctx, alertFrom("Security threat detected", assessment, event))
}

// LogIncident writes a structured incident line.
func (d *Dispatcher) LogIncident(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error {
	entry := logging.Warn()
	if assessment != nil {
		entry = entry.Int("score", assessment.Score).Str("level", string(assessment.Level))
	}
	if event != nil {
		entry = entry.Str("ip", event.SourceIP).Str("event_type", string(event.Type))
	}
	entry.Msg("security incident")
	return nil
}

// EnhanceMonitoring marks the source for closer observation.
func (d *Dispatcher) EnhanceMonitoring(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error {
	if event != nil {
		logging.Info().Str("ip", event.SourceIP).Msg("enhanced monitoring enabled")
	}
	return nil
}

// FlagForReview queues the source for analyst review.
func (d *Dispatcher) FlagForReview(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error {
	if event != nil {
		logging.Info().Str("ip", event.SourceIP).Msg("flagged for review")
	}
	return nil
}

// ConsiderSystemLockdown escalates a possible lockdown to operators.
// Lockdown itself is a human call; this only raises the alarm.
func (d *Dispatcher) ConsiderSystemLockdown(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error {
	return d.Send(ctx, alertFrom("Critical threat: consider system lockdown", assessment, event))
}
