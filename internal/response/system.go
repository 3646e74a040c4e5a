// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package response turns threat assessments into enforcement: it owns the
// per-source event buffers, calls the aggregator for each ingested event,
// and maintains the block and rate-limit tables the decisions feed.
package response

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/threat"
)

// Defaults for Config fields left zero.
const (
	DefaultEventBufferSize      = 100
	DefaultRecentWindow         = 60 * time.Minute
	DefaultMaxBlockDuration     = 7 * 24 * time.Hour
	DefaultThreatScoreThreshold = 70
	DefaultHistoryRetention     = 7 * 24 * time.Hour
)

// Config controls the response system's enforcement behavior.
type Config struct {
	// AutoBlockEnabled gates execution of block and rate-limit actions.
	// When false, decisions are still computed, audited, and broadcast,
	// but restriction tables are left untouched.
	AutoBlockEnabled bool

	// ThreatScoreThreshold is reported in stats and marks the score at
	// which operators consider a source actionable.
	ThreatScoreThreshold int

	// MaxBlockDuration caps the score-derived block duration.
	MaxBlockDuration time.Duration

	// RateLimitDuration is how long a rate-limit entry holds.
	RateLimitDuration time.Duration

	// EventBufferSize bounds the per-source event buffer.
	EventBufferSize int

	// RecentWindow is how far back assessments look at buffered events.
	RecentWindow time.Duration

	// HistoryRetention is how long per-source score history survives
	// cleanup.
	HistoryRetention time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AutoBlockEnabled:     true,
		ThreatScoreThreshold: DefaultThreatScoreThreshold,
		MaxBlockDuration:     DefaultMaxBlockDuration,
		RateLimitDuration:    DefaultRateLimitDuration,
		EventBufferSize:      DefaultEventBufferSize,
		RecentWindow:         DefaultRecentWindow,
		HistoryRetention:     DefaultHistoryRetention,
	}
}

func (c Config) withDefaults() Config {
	if c.ThreatScoreThreshold <= 0 {
		c.ThreatScoreThreshold = DefaultThreatScoreThreshold
	}
	if c.MaxBlockDuration <= 0 {
		c.MaxBlockDuration = DefaultMaxBlockDuration
	}
	if c.RateLimitDuration <= 0 {
		c.RateLimitDuration = DefaultRateLimitDuration
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = DefaultHistoryRetention
	}
	return c
}

// Broadcaster pushes decision payloads to live subscribers. The hub in
// internal/websocket implements it; a nil broadcaster disables pushes.
type Broadcaster interface {
	Broadcast(messageType string, payload interface{})
}

// IncidentRecorder persists decision outcomes to the audit trail. A nil
// recorder disables auditing.
type IncidentRecorder interface {
	RecordAssessment(decision *Decision, assessment *threat.Assessment, event *threat.SecurityEvent)
	RecordBlock(record *BlockRecord)
	RecordUnblock(record *BlockRecord)
	RecordRateLimit(entry *RateLimitEntry)
	RecordCleanup(result CleanupResult)
}

// Decision is the outcome of processing one security event.
type Decision struct {
	ID              string             `json:"id"`
	EventID         string             `json:"event_id"`
	SourceIP        string             `json:"source_ip"`
	Action          Action             `json:"action"`
	Reason          string             `json:"reason,omitempty"`
	ThreatScore     int                `json:"threat_score"`
	ThreatLevel     threat.Level       `json:"threat_level"`
	Factors         []string           `json:"factors,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	ExecutedActions []ActionResult     `json:"executed_actions,omitempty"`
	Assessment      *threat.Assessment `json:"assessment,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}

// CleanupResult reports what one maintenance pass removed.
type CleanupResult struct {
	BlocksRemoved     int       `json:"blocks_removed"`
	RateLimitsRemoved int       `json:"rate_limits_removed"`
	HistoryRemoved    int       `json:"history_removed"`
	SourcesPruned     int       `json:"sources_pruned"`
	Timestamp         time.Time `json:"timestamp"`
}

// SystemStats is the operator-facing snapshot returned by GetSystemStats.
type SystemStats struct {
	TrackedSources        int           `json:"tracked_sources"`
	ActiveBlocks          int           `json:"active_blocks"`
	TotalBlocked          int64         `json:"total_blocked"`
	TotalExpired          int64         `json:"total_expired"`
	TotalUnblocked        int64         `json:"total_unblocked"`
	ActiveRateLimits      int           `json:"active_rate_limits"`
	AverageThreatScore    float64       `json:"average_threat_score"`
	EventsLastHour        int64         `json:"events_last_hour"`
	UniqueSourcesLastHour int           `json:"unique_sources_last_hour"`
	AutoBlockEnabled      bool          `json:"auto_block_enabled"`
	ThreatScoreThreshold  int           `json:"threat_score_threshold"`
	MaxBlockDuration      time.Duration `json:"max_block_duration"`
	Timestamp             time.Time     `json:"timestamp"`
}

// sourceState holds everything tracked for one source IP. Each state has
// its own lock so concurrent events for different sources never contend.
type sourceState struct {
	mu             sync.Mutex
	events         []threat.SecurityEvent
	lastAssessment *threat.Assessment
	lastDecision   *Decision
}

// System is the threat response engine. It is safe for concurrent use.
type System struct {
	config     Config
	aggregator *threat.Aggregator
	hooks      Hooks
	broadcast  Broadcaster
	audit      IncidentRecorder

	mu      sync.RWMutex
	sources map[string]*sourceState

	blocks *BlockTable
	limits *RateLimitTable

	eventRate     *WindowCounter
	uniqueSources *UniqueSourceCounter

	now func() time.Time
}

// Option configures a System.
type Option func(*System)

// WithHooks installs the follow-up action sink.
func WithHooks(h Hooks) Option {
	return func(s *System) {
		if h != nil {
			s.hooks = h
		}
	}
}

// WithBroadcaster installs the live decision push target.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *System) { s.broadcast = b }
}

// WithIncidentRecorder installs the audit sink.
func WithIncidentRecorder(r IncidentRecorder) Option {
	return func(s *System) { s.audit = r }
}

// NewSystem creates a response system around the given aggregator. A nil
// aggregator gets default rules with no reputation provider.
func NewSystem(cfg Config, aggregator *threat.Aggregator, opts ...Option) *System {
	if aggregator == nil {
		aggregator = threat.NewAggregator(nil, nil, nil)
	}
	s := &System{
		config:        cfg.withDefaults(),
		aggregator:    aggregator,
		hooks:         NopHooks{},
		sources:       make(map[string]*sourceState),
		blocks:        NewBlockTable(),
		limits:        NewRateLimitTable(),
		eventRate:     NewWindowCounter(time.Hour, 12),
		uniqueSources: NewUniqueSourceCounter(time.Hour, 12),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessSecurityEvent runs the full pipeline for one event: buffer it,
// assess the source, pick and execute actions, and emit the decision.
// It never returns nil for a non-nil event.
func (s *System) ProcessSecurityEvent(ctx context.Context, event *threat.SecurityEvent) *Decision {
	if event == nil {
		return nil
	}

	now := s.now()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.SourceIP == "" {
		metrics.EventsDropped.WithLabelValues("no_source_ip").Inc()
		return &Decision{
			ID:        uuid.NewString(),
			EventID:   event.ID,
			Action:    ActionNone,
			Reason:    "event has no source IP",
			Timestamp: now,
		}
	}

	if s.blocks.IsBlockedAt(event.SourceIP, now) {
		metrics.EventsDropped.WithLabelValues("source_blocked").Inc()
		return &Decision{
			ID:        uuid.NewString(),
			EventID:   event.ID,
			SourceIP:  event.SourceIP,
			Action:    ActionBlocked,
			Reason:    "source IP is blocked",
			Timestamp: now,
		}
	}

	metrics.EventsIngested.WithLabelValues(string(event.Type), string(event.Severity)).Inc()
	s.eventRate.Increment()
	s.uniqueSources.Observe(event.SourceIP)

	state := s.source(event.SourceIP)
	recent := state.append(*event, s.config.EventBufferSize, now, s.config.RecentWindow)

	ec := &threat.EvalContext{
		SourceIP:     event.SourceIP,
		UserID:       event.UserID,
		StationID:    event.StationID,
		RecentEvents: recent,
		Series:       buildSeries(recent, now),
		TimeWindow:   s.config.RecentWindow,
		Now:          now,
	}
	assessment := s.aggregator.EvaluateThreat(ctx, ec)

	action := primaryAction(assessment.Score, assessment.Level)
	decision := &Decision{
		ID:              uuid.NewString(),
		EventID:         event.ID,
		SourceIP:        event.SourceIP,
		Action:          action,
		ThreatScore:     assessment.Score,
		ThreatLevel:     assessment.Level,
		Factors:         assessment.Factors,
		Recommendations: assessment.Recommendations,
		Assessment:      assessment,
		Timestamp:       now,
	}
	decision.ExecutedActions = s.executeActions(ctx, decision, assessment, event, now)

	state.mu.Lock()
	state.lastAssessment = assessment
	state.lastDecision = decision
	state.mu.Unlock()

	if s.audit != nil {
		s.audit.RecordAssessment(decision, assessment, event)
	}
	if s.broadcast != nil {
		s.broadcast.Broadcast("decision", decision)
	}

	logging.Debug().
		Str("decision_id", decision.ID).
		Str("ip", event.SourceIP).
		Int("score", assessment.Score).
		Str("level", string(assessment.Level)).
		Str("action", string(action)).
		Msg("event processed")

	return decision
}

// executeActions runs the primary action followed by the level's secondary
// actions, skipping the secondary entry that duplicates the primary.
func (s *System) executeActions(ctx context.Context, decision *Decision, assessment *threat.Assessment, event *threat.SecurityEvent, now time.Time) []ActionResult {
	results := []ActionResult{s.executePrimary(decision, assessment, event, now)}

	for _, name := range secondaryActions[assessment.Level] {
		if name == string(decision.Action) {
			continue
		}
		results = append(results, s.executeSecondary(ctx, name, decision, assessment, event, now))
	}
	return results
}

// executePrimary applies the restriction the primary action calls for.
func (s *System) executePrimary(decision *Decision, assessment *threat.Assessment, event *threat.SecurityEvent, now time.Time) ActionResult {
	switch decision.Action {
	case ActionBlockIP:
		return s.applyBlock(decision, assessment, event, now)
	case ActionRateLimitIP:
		return s.applyRateLimit(decision, event, now)
	case ActionEnhanceMonitoring, ActionContinueMonitoring:
		metrics.RecordAction(string(decision.Action), outcomeExecuted)
		return ActionResult{Name: string(decision.Action), Outcome: outcomeExecuted}
	default:
		return ActionResult{Name: string(decision.Action), Outcome: outcomeSkipped}
	}
}

func (s *System) executeSecondary(ctx context.Context, name string, decision *Decision, assessment *threat.Assessment, event *threat.SecurityEvent, now time.Time) ActionResult {
	switch name {
	case string(ActionBlockIP):
		return s.applyBlock(decision, assessment, event, now)
	case string(ActionRateLimitIP):
		return s.applyRateLimit(decision, event, now)
	case actionNotifySecurityTeam:
		return runHook(ctx, name, assessment, event, s.hooks.NotifySecurityTeam)
	case actionLogIncident:
		return runHook(ctx, name, assessment, event, s.hooks.LogIncident)
	case string(ActionEnhanceMonitoring):
		return runHook(ctx, name, assessment, event, s.hooks.EnhanceMonitoring)
	case actionFlagForReview:
		return runHook(ctx, name, assessment, event, s.hooks.FlagForReview)
	case actionConsiderLockdown:
		return runHook(ctx, name, assessment, event, s.hooks.ConsiderSystemLockdown)
	case string(ActionContinueMonitoring):
		metrics.RecordAction(name, outcomeExecuted)
		return ActionResult{Name: name, Outcome: outcomeExecuted}
	default:
		return ActionResult{Name: name, Outcome: outcomeSkipped}
	}
}

func (s *System) applyBlock(decision *Decision, assessment *threat.Assessment, event *threat.SecurityEvent, now time.Time) ActionResult {
	if !s.config.AutoBlockEnabled {
		metrics.RecordAction(string(ActionBlockIP), outcomeSkipped)
		return ActionResult{Name: string(ActionBlockIP), Outcome: outcomeSkipped, Error: "auto-block disabled"}
	}

	duration := blockDuration(assessment.Score, s.config.MaxBlockDuration)
	record := &BlockRecord{
		IP:          event.SourceIP,
		Timestamp:   now,
		Reason:      blockReason(assessment),
		ThreatScore: assessment.Score,
		ThreatLevel: assessment.Level,
		Duration:    duration,
		ExpiresAt:   now.Add(duration),
	}
	s.blocks.Block(record)
	if s.audit != nil {
		s.audit.RecordBlock(record)
	}

	metrics.RecordAction(string(ActionBlockIP), outcomeExecuted)
	return ActionResult{Name: string(ActionBlockIP), Outcome: outcomeExecuted}
}

func (s *System) applyRateLimit(decision *Decision, event *threat.SecurityEvent, now time.Time) ActionResult {
	if !s.config.AutoBlockEnabled {
		metrics.RecordAction(string(ActionRateLimitIP), outcomeSkipped)
		return ActionResult{Name: string(ActionRateLimitIP), Outcome: outcomeSkipped, Error: "auto-block disabled"}
	}

	s.limits.Limit(event.SourceIP, "elevated threat score", s.config.RateLimitDuration, now)
	if s.audit != nil {
		s.audit.RecordRateLimit(&RateLimitEntry{
			IP:        event.SourceIP,
			Timestamp: now,
			ExpiresAt: now.Add(s.config.RateLimitDuration),
			Reason:    "elevated threat score",
		})
	}

	metrics.RecordAction(string(ActionRateLimitIP), outcomeExecuted)
	return ActionResult{Name: string(ActionRateLimitIP), Outcome: outcomeExecuted}
}

func blockReason(assessment *threat.Assessment) string {
	if len(assessment.Factors) > 0 {
		return assessment.Factors[0]
	}
	return "threat score threshold exceeded"
}

// IsIPBlocked reports whether the IP currently has an active block.
func (s *System) IsIPBlocked(ip string) bool {
	return s.blocks.IsBlockedAt(ip, s.now())
}

// IsIPRateLimited reports whether the IP currently has an active
// rate-limit entry.
func (s *System) IsIPRateLimited(ip string) bool {
	return s.limits.IsLimitedAt(ip, s.now())
}

// BlockedIPs returns copies of all active block records.
func (s *System) BlockedIPs() []BlockRecord {
	return s.blocks.Active(s.now())
}

// BlockRecordFor returns the active block record for the IP, if any.
func (s *System) BlockRecordFor(ip string) (*BlockRecord, bool) {
	return s.blocks.Get(ip, s.now())
}

// UnblockIP lifts the IP's block, stamping the reason. Returns false if
// the IP was not blocked.
func (s *System) UnblockIP(ip, reason string) bool {
	record, ok := s.blocks.Unblock(ip, reason, s.now())
	if !ok {
		return false
	}
	if s.audit != nil {
		s.audit.RecordUnblock(record)
	}
	return true
}

// ThreatFor returns the most recent assessment computed for the IP.
func (s *System) ThreatFor(ip string) (*threat.Assessment, bool) {
	s.mu.RLock()
	state, ok := s.sources[ip]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.lastAssessment == nil {
		return nil, false
	}
	copied := *state.lastAssessment
	return &copied, true
}

// Cleanup removes expired blocks and rate limits, prunes score history
// past the retention window, and drops source buffers with no recent
// events. Safe to call repeatedly; a second immediate call removes
// nothing.
func (s *System) Cleanup() CleanupResult {
	now := s.now()
	result := CleanupResult{
		BlocksRemoved:     s.blocks.RemoveExpired(now),
		RateLimitsRemoved: s.limits.RemoveExpired(now),
		Timestamp:         now,
	}

	cutoff := now.Add(-s.config.HistoryRetention)
	result.HistoryRemoved = s.aggregator.History().Prune(cutoff)
	if result.HistoryRemoved > 0 {
		metrics.CleanupRemoved.WithLabelValues("history").Add(float64(result.HistoryRemoved))
	}

	result.SourcesPruned = s.pruneSources(cutoff)
	if result.SourcesPruned > 0 {
		metrics.CleanupRemoved.WithLabelValues("source").Add(float64(result.SourcesPruned))
	}

	if s.audit != nil {
		s.audit.RecordCleanup(result)
	}
	logging.Info().
		Int("blocks", result.BlocksRemoved).
		Int("rate_limits", result.RateLimitsRemoved).
		Int("history", result.HistoryRemoved).
		Int("sources", result.SourcesPruned).
		Msg("cleanup pass finished")
	return result
}

// pruneSources drops source states whose newest event predates the cutoff.
func (s *System) pruneSources(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for ip, state := range s.sources {
		state.mu.Lock()
		stale := len(state.events) == 0 || state.events[len(state.events)-1].Timestamp.Before(cutoff)
		state.mu.Unlock()
		if stale {
			delete(s.sources, ip)
			pruned++
		}
	}
	metrics.TrackedSources.Set(float64(len(s.sources)))
	return pruned
}

// GetSystemStats returns an operator snapshot of the engine state.
func (s *System) GetSystemStats() SystemStats {
	now := s.now()
	active, blocked, expired, unblocked := s.blocks.Counts()

	s.mu.RLock()
	tracked := len(s.sources)
	s.mu.RUnlock()

	return SystemStats{
		TrackedSources:        tracked,
		ActiveBlocks:          active,
		TotalBlocked:          blocked,
		TotalExpired:          expired,
		TotalUnblocked:        unblocked,
		ActiveRateLimits:      s.limits.Size(),
		AverageThreatScore:    s.aggregator.History().AverageLatestScore(),
		EventsLastHour:        s.eventRate.Count(),
		UniqueSourcesLastHour: s.uniqueSources.Count(),
		AutoBlockEnabled:      s.config.AutoBlockEnabled,
		ThreatScoreThreshold:  s.config.ThreatScoreThreshold,
		MaxBlockDuration:      s.config.MaxBlockDuration,
		Timestamp:             now,
	}
}

// source returns the state for the IP, creating it on first sight.
func (s *System) source(ip string) *sourceState {
	s.mu.RLock()
	state, ok := s.sources[ip]
	s.mu.RUnlock()
	if ok {
		return state
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok = s.sources[ip]; ok {
		return state
	}
	state = &sourceState{}
	s.sources[ip] = state
	metrics.TrackedSources.Set(float64(len(s.sources)))
	return state
}

// append adds the event to the buffer, evicting the oldest past maxSize,
// and returns a copy of the events still inside the recent window.
func (st *sourceState) append(event threat.SecurityEvent, maxSize int, now time.Time, window time.Duration) []threat.SecurityEvent {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.events = append(st.events, event)
	if len(st.events) > maxSize {
		st.events = st.events[len(st.events)-maxSize:]
	}

	cutoff := now.Add(-window)
	recent := make([]threat.SecurityEvent, 0, len(st.events))
	for _, e := range st.events {
		if e.Timestamp.After(cutoff) {
			recent = append(recent, e)
		}
	}
	return recent
}
