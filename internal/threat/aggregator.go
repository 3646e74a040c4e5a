// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package threat implements Vigil's scoring core: a declarative rule engine,
// behavioral pattern analysis, per-source threat history with exponential
// decay, and the aggregator that fuses statistical, rule, reputation, and
// behavioral signals into a single weighted assessment.
package threat

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/reputation"
	"github.com/tomtom215/vigil/internal/stats"
)

// Statistical thresholds per named series.
const (
	loginAnomalyK        = 2.5
	unauthorizedAnomalyK = 2.0
	equipmentOutlierK    = 2.0
)

// Sparse-data fallback thresholds.
const (
	volumeSkewFactor   = 3.0 // max type count vs average
	volumeSkewMinCount = 5
	burstEventsPerMin  = 1.5
	burstMinEvents     = 3
	varianceRatio      = 0.5 // stddev vs mean
)

// Fusion bonus caps and rates.
const (
	volumeBonusCap       = 30.0
	failedLoginBonusCap  = 25.0
	failedLoginBonusPer  = 5.0
	failedLoginBonusMin  = 3
	unauthorizedBonusCap = 20.0
	unauthorizedBonusPer = 8.0
	unauthorizedBonusMin = 2

	historyWeight = 0.3
)

// defaultReputationTimeout bounds the provider call inside an evaluation.
const defaultReputationTimeout = 2 * time.Second

// fallbackConfidence is the assessment confidence when evaluation degrades.
const fallbackConfidence = 0.1

// Aggregator fuses the independent signal generators into one weighted
// ThreatAssessment per evaluation, and maintains the per-source historical
// decay that feeds back into future scores.
//
// EvaluateThreat never returns an error and never panics to its caller: any
// failure during scoring degrades to a conservative fallback assessment.
type Aggregator struct {
	rules      *RuleEngine
	history    *History
	reputation reputation.Provider

	reputationTimeout time.Duration
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithReputationTimeout overrides the per-evaluation reputation lookup bound.
func WithReputationTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.reputationTimeout = d
		}
	}
}

// NewAggregator creates an aggregator. The reputation provider may be nil;
// evaluation then runs with reputation treated as "no signal".
func NewAggregator(rules *RuleEngine, history *History, rep reputation.Provider, opts ...AggregatorOption) *Aggregator {
	if rules == nil {
		rules = NewDefaultRuleEngine()
	}
	if history == nil {
		history = NewHistory(0, 0)
	}
	a := &Aggregator{
		rules:             rules,
		history:           history,
		reputation:        rep,
		reputationTimeout: defaultReputationTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// History exposes the aggregator's threat history for the response layer
// and the ops API.
func (a *Aggregator) History() *History {
	return a.history
}

// HistoricalThreatLevel returns the source's decayed historical threat
// level at the given time.
func (a *Aggregator) HistoricalThreatLevel(source string, now time.Time) float64 {
	return a.history.Level(source, now)
}

// EvaluateThreat scores the context and returns a complete assessment. The
// evaluation appends its score to the source's history, so subsequent
// evaluations of the same source see the updated decayed level.
func (a *Aggregator) EvaluateThreat(ctx context.Context, ec *EvalContext) (assessment *Assessment) {
	start := time.Now()
	if ec == nil {
		ec = &EvalContext{}
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.EvaluationFallbacks.Inc()
			logging.Error().
				Interface("panic", r).
				Str("source_ip", ec.SourceIP).
				Msg("threat evaluation panicked; returning fallback assessment")
			assessment = fallbackAssessment(time.Now())
		}
		metrics.RecordEvaluation(assessment.Score, time.Since(start))
	}()

	now := ec.Now
	if now.IsZero() {
		now = time.Now()
	}

	// Read the decayed history before recording this evaluation: the 30%
	// term must reflect prior behavior, not the score being computed.
	historical := a.history.Level(ec.SourceIP, now)

	findings := a.collectFindings(ctx, ec, now)

	assessment = a.fuse(ec, findings, historical, now)

	if ec.SourceIP != "" {
		a.history.Record(ec.SourceIP, assessment.Score, now)
	}
	return assessment
}

// collectFindings runs the four signal generators.
func (a *Aggregator) collectFindings(ctx context.Context, ec *EvalContext, now time.Time) []Finding {
	var findings []Finding

	for _, f := range a.statisticalFindings(ec) {
		metrics.RecordFinding("statistical", string(f.Severity))
		findings = append(findings, f)
	}

	rc := &RuleContext{
		RecentEvents: ec.RecentEvents,
		Metrics:      ComputeEventMetrics(ec.RecentEvents),
		Now:          now,
	}
	for _, f := range a.rules.Evaluate(rc) {
		metrics.RecordFinding("rule", string(f.Severity))
		findings = append(findings, f)
	}

	if f, ok := a.reputationFinding(ctx, ec.SourceIP); ok {
		metrics.RecordFinding("reputation", string(f.Severity))
		findings = append(findings, f)
	}

	for _, f := range AnalyzeBehavior(ec) {
		metrics.RecordFinding("behavioral", string(f.Severity))
		findings = append(findings, f)
	}

	return findings
}

// statisticalFindings runs the named-series anomaly tests, falling back to
// coarse heuristics when the named series are silent but raw events exist.
// The detector must never go quiet when data is sparse but clearly unusual.
func (a *Aggregator) statisticalFindings(ec *EvalContext) []Finding {
	var findings []Finding

	if series, ok := ec.Series[SeriesLoginFailures]; ok {
		if stats.IsLastPointAnomalous(series, loginAnomalyK) {
			findings = append(findings, Finding{
				ID:         "stat_login_anomaly",
				Severity:   SeverityHigh,
				Confidence: 0.8,
				Message:    fmt.Sprintf("Failed-login spike: newest interval broke from baseline (%.0f in latest bucket)", lastValue(series)),
				Metadata:   map[string]interface{}{"series": SeriesLoginFailures, "threshold": loginAnomalyK},
			})
		}
	}

	if series, ok := ec.Series[SeriesUnauthorizedAccess]; ok {
		if stats.IsLastPointAnomalous(series, unauthorizedAnomalyK) {
			findings = append(findings, Finding{
				ID:         "stat_unauthorized_anomaly",
				Severity:   SeverityHigh,
				Confidence: 0.8,
				Message:    fmt.Sprintf("Unauthorized-access spike: newest interval broke from baseline (%.0f in latest bucket)", lastValue(series)),
				Metadata:   map[string]interface{}{"series": SeriesUnauthorizedAccess, "threshold": unauthorizedAnomalyK},
			})
		}
	}

	if series, ok := ec.Series[SeriesEquipmentErrors]; ok {
		if outliers := stats.DetectOutliers(series, equipmentOutlierK); len(outliers) > 0 {
			findings = append(findings, Finding{
				ID:         "stat_equipment_outliers",
				Severity:   SeverityMedium,
				Confidence: 0.7,
				Message:    fmt.Sprintf("Equipment error outliers: %d interval(s) outside normal range", len(outliers)),
				Metadata:   map[string]interface{}{"series": SeriesEquipmentErrors, "outlier_count": len(outliers)},
			})
		}
	}

	if len(findings) > 0 || len(ec.RecentEvents) == 0 {
		return findings
	}
	return a.sparseFallbackFindings(ec)
}

// sparseFallbackFindings are the coarse checks applied when the named-series
// tests stayed silent: event-type volume skew, event-rate burst, and a
// generic series-variance check.
func (a *Aggregator) sparseFallbackFindings(ec *EvalContext) []Finding {
	var findings []Finding

	metricsByType := ComputeEventMetrics(ec.RecentEvents).ByType
	maxType, maxCount := maxTypeCount(metricsByType)
	avg := float64(len(ec.RecentEvents)) / float64(len(metricsByType))
	if float64(maxCount) > volumeSkewFactor*avg && maxCount > volumeSkewMinCount {
		findings = append(findings, Finding{
			ID:         "stat_volume_skew",
			Severity:   SeverityMedium,
			Confidence: 0.6,
			Message:    fmt.Sprintf("Event volume skew: %d of %d events are %s", maxCount, len(ec.RecentEvents), maxType),
			Metadata:   map[string]interface{}{"dominant_type": string(maxType), "count": maxCount},
		})
	}

	now := ec.Now
	if now.IsZero() {
		now = time.Now()
	}
	if len(ec.RecentEvents) >= burstMinEvents {
		if rate := eventsPerMinute(ec.RecentEvents, now); rate > burstEventsPerMin {
			findings = append(findings, Finding{
				ID:         "stat_rate_burst",
				Severity:   SeverityMedium,
				Confidence: 0.6,
				Message:    fmt.Sprintf("Event rate burst: %.1f events/minute across window", rate),
				Metadata:   map[string]interface{}{"events_per_minute": rate},
			})
		}
	}

	for name, series := range ec.Series {
		mean := stats.Mean(series)
		if mean > 0 && stats.StdDev(series) > varianceRatio*mean {
			findings = append(findings, Finding{
				ID:         "stat_series_variance",
				Severity:   SeverityLow,
				Confidence: 0.5,
				Message:    fmt.Sprintf("Irregular variance in %s series", name),
				Metadata:   map[string]interface{}{"series": name},
			})
			break
		}
	}

	return findings
}

// reputationFinding queries the provider with a bounded timeout. Only a
// supported, malicious verdict contributes; every other outcome (disabled
// provider, unsupported result, slow lookup) is no signal.
func (a *Aggregator) reputationFinding(ctx context.Context, ip string) (Finding, bool) {
	if a.reputation == nil || !a.reputation.Enabled() || ip == "" {
		return Finding{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, a.reputationTimeout)
	defer cancel()

	res := a.reputation.CheckIP(ctx, ip)
	if res == nil || !res.Supported || !res.IsMalicious {
		return Finding{}, false
	}

	return Finding{
		ID:         "ip_reputation",
		Severity:   SeverityHigh,
		Confidence: float64(res.Reputation) / 100.0,
		Message:    fmt.Sprintf("Source IP flagged by %s: abuse confidence %d/100", res.Provider, res.Reputation),
		Metadata: map[string]interface{}{
			"provider":   res.Provider,
			"reputation": res.Reputation,
			"country":    res.CountryCode,
		},
	}, true
}

// fuse combines findings, volume bonuses, and the decayed historical level
// into the final assessment.
func (a *Aggregator) fuse(ec *EvalContext, findings []Finding, historical float64, now time.Time) *Assessment {
	score := 0.0
	factors := make([]string, 0, len(findings)+4)
	severity := SeverityLow
	confidenceSum := 0.0

	for _, f := range findings {
		score += f.Severity.Weight() * f.Confidence
		factors = append(factors, f.Message)
		severity = MaxSeverity(severity, f.Severity)
		confidenceSum += f.Confidence
	}

	if n := len(ec.RecentEvents); n > 0 {
		score += math.Min(volumeBonusCap, float64(n))
		factors = append(factors, fmt.Sprintf("Event volume: %d events in window", n))
	}

	if n := countType(ec.RecentEvents, EventLoginFailed); n >= failedLoginBonusMin {
		score += math.Min(failedLoginBonusCap, float64(n)*failedLoginBonusPer)
		factors = append(factors, fmt.Sprintf("Repeated failed logins: %d in window", n))
	}

	if n := countType(ec.RecentEvents, EventUnauthorizedAccess); n >= unauthorizedBonusMin {
		score += math.Min(unauthorizedBonusCap, float64(n)*unauthorizedBonusPer)
		factors = append(factors, fmt.Sprintf("Unauthorized access attempts: %d in window", n))
	}

	if historical > 0 {
		score += historyWeight * historical
		factors = append(factors, fmt.Sprintf("Historical threat level: %.1f (decayed)", historical))
	}

	final := int(math.Round(score))
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	confidence := 0.5
	if len(findings) > 0 {
		confidence = confidenceSum / float64(len(findings))
	}

	if len(factors) == 0 {
		factors = append(factors, "Routine event processing: no threat signals fired")
	}

	level := LevelForScore(final)
	return &Assessment{
		Score:           final,
		Level:           level,
		Severity:        severity,
		Factors:         factors,
		Confidence:      confidence,
		Recommendations: recommendations(level, findings),
		Timestamp:       now,
	}
}

// recommendations derives next actions from the level plus signal-specific
// hints.
func recommendations(level Level, findings []Finding) []string {
	var recs []string
	switch level {
	case LevelCritical:
		recs = append(recs, "Immediate investigation required", "Consider system lockdown", "Block source")
	case LevelHigh:
		recs = append(recs, "Block or rate-limit source", "Notify security team")
	case LevelMedium:
		recs = append(recs, "Enhance monitoring for this source", "Flag for review")
	default:
		recs = append(recs, "Continue monitoring")
	}

	for _, f := range findings {
		switch f.ID {
		case "ip_reputation":
			recs = append(recs, "Verify IP legitimacy with reputation provider")
		case "failed_login_burst", "stat_login_anomaly":
			recs = append(recs, "Review authentication logs")
		case "equipment_error_rate", "stat_equipment_outliers":
			recs = append(recs, "Inspect equipment health at affected stations")
		}
	}
	return dedupe(recs)
}

// fallbackAssessment is the conservative result returned when evaluation
// fails outright.
func fallbackAssessment(now time.Time) *Assessment {
	return &Assessment{
		Score:           0,
		Level:           LevelLow,
		Severity:        SeverityLow,
		Factors:         []string{"Evaluation degraded: internal error, conservative fallback"},
		Confidence:      fallbackConfidence,
		Recommendations: []string{"Continue monitoring"},
		Timestamp:       now,
	}
}

// countType counts events of a type in the window, irrespective of time.
func countType(events []SecurityEvent, t EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// maxTypeCount returns the most frequent type and its count.
func maxTypeCount(byType map[EventType]int) (EventType, int) {
	var best EventType
	bestCount := 0
	for t, n := range byType {
		if n > bestCount || (n == bestCount && t < best) {
			best = t
			bestCount = n
		}
	}
	return best, bestCount
}

// lastValue returns the final element of a series, 0 if empty.
func lastValue(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
