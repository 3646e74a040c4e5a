// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package metrics provides Prometheus instrumentation for Vigil.
//
// Collectors cover the full decision pipeline: event ingestion, threat
// evaluation, reputation lookups, response actions, and the block table.
// All collectors are registered via promauto at package load and served
// by promhttp on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_events_ingested_total",
			Help: "Total number of security events ingested",
		},
		[]string{"event_type", "severity"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_events_dropped_total",
			Help: "Total number of security events dropped before evaluation",
		},
		[]string{"reason"}, // "no_source_ip", "decode_error", "already_blocked"
	)

	// Threat evaluation metrics
	EvaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_threat_evaluations_total",
			Help: "Total number of threat evaluations performed",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_threat_evaluation_duration_seconds",
			Help:    "Duration of threat evaluations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2.5},
		},
	)

	EvaluationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_threat_evaluation_fallbacks_total",
			Help: "Total number of evaluations that returned the conservative fallback assessment",
		},
	)

	ThreatScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_threat_score",
			Help:    "Distribution of computed threat scores (0-100)",
			Buckets: []float64{5, 10, 25, 40, 50, 60, 70, 75, 80, 90, 100},
		},
	)

	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_findings_total",
			Help: "Total number of findings produced, by signal source",
		},
		[]string{"signal", "severity"}, // signal: "statistical", "rule", "reputation", "behavioral"
	)

	RuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_rule_errors_total",
			Help: "Total number of rule conditions that panicked and were skipped",
		},
		[]string{"rule_id"},
	)

	// Response metrics
	ResponseActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_response_actions_total",
			Help: "Total number of response actions taken, by action and outcome",
		},
		[]string{"action", "outcome"}, // outcome: "executed", "skipped", "failed"
	)

	ActiveBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_active_blocks",
			Help: "Current number of active IP blocks",
		},
	)

	ActiveRateLimits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_active_rate_limits",
			Help: "Current number of active IP rate limits",
		},
	)

	TrackedSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_tracked_sources",
			Help: "Current number of source IPs with buffered events",
		},
	)

	CleanupRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_cleanup_removed_total",
			Help: "Total number of records removed by maintenance passes",
		},
		[]string{"kind"}, // "block", "rate_limit", "history_entry"
	)

	// Reputation provider metrics
	ReputationLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_reputation_lookups_total",
			Help: "Total number of IP reputation lookups, by result",
		},
		[]string{"result"}, // "malicious", "clean", "unsupported", "cache_hit"
	)

	ReputationLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_reputation_lookup_duration_seconds",
			Help:    "Duration of reputation provider HTTP lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vigil_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"breaker", "from", "to"},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_notifications_sent_total",
			Help: "Total number of notifications dispatched, by notifier and outcome",
		},
		[]string{"notifier", "outcome"}, // outcome: "sent", "failed", "rate_limited"
	)

	// Audit trail metrics
	AuditEventsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_audit_events_written_total",
			Help: "Total number of incident records written to the audit store",
		},
		[]string{"kind"},
	)

	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_audit_events_dropped_total",
			Help: "Total number of incident records dropped due to a full buffer",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_websocket_connections",
			Help: "Current number of connected WebSocket clients",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigil_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordEvaluation observes one completed threat evaluation.
func RecordEvaluation(score int, duration time.Duration) {
	EvaluationsTotal.Inc()
	EvaluationDuration.Observe(duration.Seconds())
	ThreatScore.Observe(float64(score))
}

// RecordFinding counts one finding from the named signal source.
func RecordFinding(signal, severity string) {
	FindingsTotal.WithLabelValues(signal, severity).Inc()
}

// RecordAction counts one response action outcome.
func RecordAction(action, outcome string) {
	ResponseActions.WithLabelValues(action, outcome).Inc()
}
