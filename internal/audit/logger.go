// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package audit maintains the incident trail: every decision, block,
// unblock, rate limit, and cleanup pass the engine makes is written
// asynchronously to a pluggable store.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/response"
	"github.com/tomtom215/vigil/internal/threat"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether incidents are recorded at all.
	Enabled bool `json:"enabled"`

	// MinSeverity filters incidents below this severity.
	MinSeverity Severity `json:"min_severity"`

	// BufferSize is the size of the async write buffer. When the buffer
	// is full incidents are dropped, never blocked on.
	BufferSize int `json:"buffer_size"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		MinSeverity: SeverityInfo,
		BufferSize:  1000,
	}
}

// Logger records incidents asynchronously. It implements the response
// system's IncidentRecorder contract.
type Logger struct {
	config   *Config
	store    Store
	incoming chan *Incident
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLogger creates a logger writing to store and starts its writer
// goroutine. Close drains and stops it.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	l := &Logger{
		config:   config,
		store:    store,
		incoming: make(chan *Incident, config.BufferSize),
		stopChan: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.writer()
	return l
}

func (l *Logger) writer() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case incident := <-l.incoming:
					l.write(incident)
				default:
					return
				}
			}
		case incident := <-l.incoming:
			l.write(incident)
		}
	}
}

func (l *Logger) write(incident *Incident) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, incident); err != nil {
		logging.Error().Err(err).Str("kind", string(incident.Kind)).Msg("failed to save incident")
		return
	}
	metrics.AuditEventsWritten.WithLabelValues(string(incident.Kind)).Inc()
}

// Log enqueues an incident, dropping it if the buffer is full.
func (l *Logger) Log(incident *Incident) {
	if !l.config.Enabled {
		return
	}
	if l.config.MinSeverity != "" && !incident.Severity.AtLeast(l.config.MinSeverity) {
		return
	}

	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.Timestamp.IsZero() {
		incident.Timestamp = time.Now()
	}

	select {
	case l.incoming <- incident:
	default:
		metrics.AuditEventsDropped.Inc()
		logging.Warn().Str("incident_id", incident.ID).Msg("incident buffer full, dropping")
	}
}

// Query retrieves incidents matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Incident, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of incidents matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// Close drains the buffer and stops the writer. The store stays open.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// severityForLevel maps a threat level to the incident severity it is
// recorded at.
func severityForLevel(level threat.Level) Severity {
	switch level {
	case threat.LevelCritical:
		return SeverityCritical
	case threat.LevelHigh:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// RecordAssessment records one evaluation and its decision.
func (l *Logger) RecordAssessment(decision *response.Decision, assessment *threat.Assessment, event *threat.SecurityEvent) {
	l.Log(&Incident{
		ID:          decision.ID,
		Kind:        KindAssessment,
		Severity:    severityForLevel(assessment.Level),
		SourceIP:    event.SourceIP,
		Action:      string(decision.Action),
		ThreatScore: assessment.Score,
		ThreatLevel: string(assessment.Level),
		Description: "threat assessment for " + event.SourceIP,
		Metadata: mustJSON(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": string(event.Type),
			"factors":    assessment.Factors,
			"confidence": assessment.Confidence,
		}),
		Timestamp: decision.Timestamp,
	})
}

// RecordBlock records a source being blocked.
func (l *Logger) RecordBlock(record *response.BlockRecord) {
	l.Log(&Incident{
		Kind:        KindBlock,
		Severity:    severityForLevel(record.ThreatLevel),
		SourceIP:    record.IP,
		Action:      "block_ip",
		ThreatScore: record.ThreatScore,
		ThreatLevel: string(record.ThreatLevel),
		Description: "blocked " + record.IP + ": " + record.Reason,
		Metadata: mustJSON(map[string]interface{}{
			"duration":   record.Duration.String(),
			"expires_at": record.ExpiresAt,
		}),
		Timestamp: record.Timestamp,
	})
}

// RecordUnblock records a block being lifted.
func (l *Logger) RecordUnblock(record *response.BlockRecord) {
	l.Log(&Incident{
		Kind:        KindUnblock,
		Severity:    SeverityInfo,
		SourceIP:    record.IP,
		Action:      "unblock_ip",
		Description: "unblocked " + record.IP + ": " + record.UnblockReason,
	})
}

// RecordRateLimit records a source being throttled.
func (l *Logger) RecordRateLimit(entry *response.RateLimitEntry) {
	l.Log(&Incident{
		Kind:        KindRateLimit,
		Severity:    SeverityWarning,
		SourceIP:    entry.IP,
		Action:      "rate_limit_ip",
		Description: "rate limited " + entry.IP + ": " + entry.Reason,
		Metadata:    mustJSON(map[string]interface{}{"expires_at": entry.ExpiresAt}),
		Timestamp:   entry.Timestamp,
	})
}

// RecordCleanup records a maintenance pass.
func (l *Logger) RecordCleanup(result response.CleanupResult) {
	l.Log(&Incident{
		Kind:        KindCleanup,
		Severity:    SeverityInfo,
		Action:      "cleanup",
		Description: "maintenance pass",
		Metadata:    mustJSON(result),
		Timestamp:   result.Timestamp,
	})
}

// mustJSON converts a value to JSON, returning an empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
