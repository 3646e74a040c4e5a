// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package threat

import (
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
)

// RuleContext is the shared context every rule condition evaluates against.
type RuleContext struct {
	RecentEvents []SecurityEvent
	Metrics      EventMetrics
	Now          time.Time
}

// Rule is one declarative detection heuristic. Rules are data, not a class
// hierarchy: adding a heuristic is a registration operation, not a new type.
type Rule struct {
	// ID uniquely names the rule and becomes the Finding ID on match.
	ID string

	// Severity is assigned to findings produced by this rule.
	Severity Severity

	// Confidence is assigned to findings produced by this rule.
	Confidence float64

	// Message builds the human-readable finding message for a match.
	Message func(rc *RuleContext) string

	// Condition reports whether the rule matches the context. A panicking
	// condition is isolated: the rule is skipped for that pass.
	Condition func(rc *RuleContext) bool

	// Metadata optionally attaches structured detail to a match. May be nil.
	Metadata func(rc *RuleContext) map[string]interface{}
}

// RuleEngine is a mutable, ordered rule registry. Evaluation runs every
// registered rule against a shared context and converts matches into
// findings in registration order.
type RuleEngine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRuleEngine creates an empty rule engine.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{}
}

// NewDefaultRuleEngine creates a rule engine pre-loaded with the
// manufacturing detection rules.
func NewDefaultRuleEngine() *RuleEngine {
	e := NewRuleEngine()
	for _, r := range defaultRules() {
		e.Register(r)
	}
	return e
}

// Register appends a rule to the registry. Rules with a zero confidence get
// a default of 0.8.
func (e *RuleEngine) Register(rule Rule) {
	if rule.Confidence <= 0 {
		rule.Confidence = 0.8
	}

	e.mu.Lock()
	e.rules = append(e.rules, rule)
	e.mu.Unlock()

	logging.Debug().Str("rule", rule.ID).Str("severity", string(rule.Severity)).Msg("registered rule")
}

// RuleCount returns the number of registered rules.
func (e *RuleEngine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs every rule's condition against the context and returns one
// finding per match, in registration order. A rule whose condition or
// metadata function panics is skipped; a misbehaving rule must never abort
// the batch.
func (e *RuleEngine) Evaluate(rc *RuleContext) []Finding {
	e.mu.RLock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	if rc.Now.IsZero() {
		rc.Now = time.Now()
	}

	var findings []Finding
	for i := range rules {
		if f, ok := evaluateRule(&rules[i], rc); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// evaluateRule runs a single rule with panic isolation.
func evaluateRule(rule *Rule, rc *RuleContext) (finding Finding, matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			metrics.RuleErrors.WithLabelValues(rule.ID).Inc()
			logging.Warn().
				Str("rule", rule.ID).
				Interface("panic", r).
				Msg("rule condition panicked; rule skipped")
		}
	}()

	if !rule.Condition(rc) {
		return Finding{}, false
	}

	finding = Finding{
		ID:         rule.ID,
		Severity:   rule.Severity,
		Message:    rule.Message(rc),
		Confidence: rule.Confidence,
	}
	if rule.Metadata != nil {
		finding.Metadata = rule.Metadata(rc)
	}
	return finding, true
}

// Time windows for the default manufacturing rules.
const (
	failedLoginWindow  = 5 * time.Minute
	equipmentWindow    = 10 * time.Minute
	unauthorizedWindow = 10 * time.Minute
	escalationWindow   = 30 * time.Minute
)

// Match thresholds for the default manufacturing rules.
const (
	failedLoginBurstCount   = 5
	equipmentErrorCount     = 3
	unauthorizedBurstCount  = 2
	escalationCriticalCount = 2
	escalationHighCount     = 3
)

// defaultRules returns the manufacturing detection heuristics, in
// registration order.
func defaultRules() []Rule {
	return []Rule{
		{
			ID:         "failed_login_burst",
			Severity:   SeverityHigh,
			Confidence: 0.9,
			Condition: func(rc *RuleContext) bool {
				return CountEventsOfType(rc.RecentEvents, EventLoginFailed, failedLoginWindow, rc.Now) >= failedLoginBurstCount
			},
			Message: func(rc *RuleContext) string {
				n := CountEventsOfType(rc.RecentEvents, EventLoginFailed, failedLoginWindow, rc.Now)
				return fmt.Sprintf("Failed login burst: %d failures within 5 minutes", n)
			},
			Metadata: func(rc *RuleContext) map[string]interface{} {
				return map[string]interface{}{
					"count":          CountEventsOfType(rc.RecentEvents, EventLoginFailed, failedLoginWindow, rc.Now),
					"window_minutes": 5,
				}
			},
		},
		{
			ID:         "equipment_error_rate",
			Severity:   SeverityCritical,
			Confidence: 0.85,
			Condition: func(rc *RuleContext) bool {
				return CountEventsOfType(rc.RecentEvents, EventEquipmentError, equipmentWindow, rc.Now) >= equipmentErrorCount
			},
			Message: func(rc *RuleContext) string {
				n := CountEventsOfType(rc.RecentEvents, EventEquipmentError, equipmentWindow, rc.Now)
				return fmt.Sprintf("Equipment error rate: %d errors within 10 minutes", n)
			},
			Metadata: func(rc *RuleContext) map[string]interface{} {
				return map[string]interface{}{
					"count":          CountEventsOfType(rc.RecentEvents, EventEquipmentError, equipmentWindow, rc.Now),
					"window_minutes": 10,
				}
			},
		},
		{
			ID:         "unauthorized_access_burst",
			Severity:   SeverityHigh,
			Confidence: 0.9,
			Condition: func(rc *RuleContext) bool {
				return CountEventsOfType(rc.RecentEvents, EventUnauthorizedAccess, unauthorizedWindow, rc.Now) >= unauthorizedBurstCount
			},
			Message: func(rc *RuleContext) string {
				n := CountEventsOfType(rc.RecentEvents, EventUnauthorizedAccess, unauthorizedWindow, rc.Now)
				return fmt.Sprintf("Unauthorized access burst: %d attempts within 10 minutes", n)
			},
			Metadata: func(rc *RuleContext) map[string]interface{} {
				return map[string]interface{}{
					"count":          CountEventsOfType(rc.RecentEvents, EventUnauthorizedAccess, unauthorizedWindow, rc.Now),
					"window_minutes": 10,
				}
			},
		},
		{
			ID:         "rapid_threat_escalation",
			Severity:   SeverityCritical,
			Confidence: 0.8,
			Condition: func(rc *RuleContext) bool {
				criticals := CountEventsOfSeverity(rc.RecentEvents, SeverityCritical, escalationWindow, rc.Now)
				highs := CountEventsOfSeverity(rc.RecentEvents, SeverityHigh, escalationWindow, rc.Now)
				return criticals >= escalationCriticalCount ||
					(criticals >= 1 && highs >= escalationHighCount)
			},
			Message: func(rc *RuleContext) string {
				criticals := CountEventsOfSeverity(rc.RecentEvents, SeverityCritical, escalationWindow, rc.Now)
				highs := CountEventsOfSeverity(rc.RecentEvents, SeverityHigh, escalationWindow, rc.Now)
				return fmt.Sprintf("Rapid threat escalation: %d critical and %d high severity events within 30 minutes", criticals, highs)
			},
			Metadata: func(rc *RuleContext) map[string]interface{} {
				return map[string]interface{}{
					"critical_count": CountEventsOfSeverity(rc.RecentEvents, SeverityCritical, escalationWindow, rc.Now),
					"high_count":     CountEventsOfSeverity(rc.RecentEvents, SeverityHigh, escalationWindow, rc.Now),
					"window_minutes": 30,
				}
			},
		},
	}
}
