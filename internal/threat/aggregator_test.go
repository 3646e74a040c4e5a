// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package threat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/vigil/internal/reputation"
)

var aggNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

// mockReputation implements reputation.Provider for aggregator tests.
type mockReputation struct {
	enabled bool
	result  *reputation.Result
	panics  bool
}

func (m *mockReputation) Enabled() bool { return m.enabled }

func (m *mockReputation) CheckIP(_ context.Context, ip string) *reputation.Result {
	if m.panics {
		panic("provider blew up")
	}
	if m.result != nil {
		return m.result
	}
	return &reputation.Result{Provider: "mock", Supported: false, IP: ip, Reason: reputation.ReasonNoAPIKey}
}

func newTestAggregator(rep reputation.Provider) *Aggregator {
	return NewAggregator(NewDefaultRuleEngine(), NewHistory(0, 0), rep)
}

func TestLevelForScoreMonotonic(t *testing.T) {
	prev := LevelLow
	for score := 0; score <= 100; score++ {
		level := LevelForScore(score)
		if level.Rank() < prev.Rank() {
			t.Fatalf("level decreased at score %d: %s -> %s", score, prev, level)
		}
		prev = level
	}

	boundaries := map[int]Level{
		0: LevelLow, 24: LevelLow,
		25: LevelMedium, 49: LevelMedium,
		50: LevelHigh, 74: LevelHigh,
		75: LevelCritical, 100: LevelCritical,
	}
	for score, want := range boundaries {
		if got := LevelForScore(score); got != want {
			t.Errorf("LevelForScore(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestEvaluateThreatScoreBounds(t *testing.T) {
	agg := newTestAggregator(nil)

	contexts := []*EvalContext{
		{Now: aggNow},
		{SourceIP: "10.0.0.1", RecentEvents: eventsAt(5, EventLoginFailed, SeverityHigh), Now: aggNow},
		{SourceIP: "10.0.0.2", RecentEvents: append(
			eventsAt(50, EventLoginFailed, SeverityCritical),
			eventsAt(50, EventUnauthorizedAccess, SeverityCritical)...), Now: aggNow},
	}

	for i, ec := range contexts {
		a := agg.EvaluateThreat(context.Background(), ec)
		if a.Score < 0 || a.Score > 100 {
			t.Errorf("context %d: score %d out of [0,100]", i, a.Score)
		}
	}
}

func TestEvaluateThreatFactorsNeverEmpty(t *testing.T) {
	agg := newTestAggregator(nil)

	for _, ec := range []*EvalContext{
		{Now: aggNow},
		{SourceIP: "10.0.0.1", Now: aggNow},
		{SourceIP: "10.0.0.1", RecentEvents: eventsAt(1, EventLoginSuccess, SeverityLow), Now: aggNow},
	} {
		a := agg.EvaluateThreat(context.Background(), ec)
		if len(a.Factors) == 0 {
			t.Errorf("empty factors for context %+v", ec)
		}
	}
}

func TestEvaluateThreatQuietContextDefaults(t *testing.T) {
	agg := newTestAggregator(nil)
	a := agg.EvaluateThreat(context.Background(), &EvalContext{Now: aggNow})

	if a.Score != 0 {
		t.Errorf("quiet context score = %d, want 0", a.Score)
	}
	if a.Level != LevelLow {
		t.Errorf("quiet context level = %s, want low", a.Level)
	}
	if a.Confidence != 0.5 {
		t.Errorf("quiet context confidence = %v, want 0.5 default", a.Confidence)
	}
}

func TestEvaluateThreatLoginBurst(t *testing.T) {
	agg := newTestAggregator(nil)
	ec := &EvalContext{
		SourceIP:     "10.0.0.1",
		RecentEvents: eventsAt(5, EventLoginFailed, SeverityMedium),
		Now:          aggNow,
	}

	a := agg.EvaluateThreat(context.Background(), ec)
	if a.Score < ScoreThresholdHigh {
		t.Errorf("burst score = %d, want >= %d", a.Score, ScoreThresholdHigh)
	}

	var mentioned bool
	for _, f := range a.Factors {
		if strings.Contains(f, "Failed login burst") {
			mentioned = true
		}
	}
	if !mentioned {
		t.Errorf("factors missing failed-login burst: %v", a.Factors)
	}
	if a.Severity.Rank() < SeverityHigh.Rank() {
		t.Errorf("severity = %s, want at least high", a.Severity)
	}
}

func TestEvaluateThreatSeriesAnomaly(t *testing.T) {
	agg := newTestAggregator(nil)
	ec := &EvalContext{
		SourceIP: "10.0.0.1",
		Series: map[string][]float64{
			SeriesLoginFailures: {1, 2, 1, 2, 1, 30},
		},
		Now: aggNow,
	}

	a := agg.EvaluateThreat(context.Background(), ec)
	found := false
	for _, f := range a.Factors {
		if strings.Contains(f, "Failed-login spike") {
			found = true
		}
	}
	if !found {
		t.Errorf("series anomaly not reflected in factors: %v", a.Factors)
	}
}

func TestEvaluateThreatReputationDisabled(t *testing.T) {
	agg := newTestAggregator(&mockReputation{enabled: false})
	ec := &EvalContext{
		SourceIP:     "203.0.113.5",
		RecentEvents: eventsAt(2, EventLoginFailed, SeverityMedium),
		Now:          aggNow,
	}

	a := agg.EvaluateThreat(context.Background(), ec)
	for _, f := range a.Factors {
		if strings.Contains(f, "flagged by") {
			t.Errorf("disabled provider contributed a factor: %v", a.Factors)
		}
	}
	if len(a.Factors) == 0 {
		t.Error("assessment degenerate with disabled provider")
	}
}

func TestEvaluateThreatReputationMalicious(t *testing.T) {
	agg := newTestAggregator(&mockReputation{
		enabled: true,
		result: &reputation.Result{
			Provider:    "abuseipdb",
			Supported:   true,
			IP:          "203.0.113.5",
			Reputation:  90,
			IsMalicious: true,
		},
	})
	ec := &EvalContext{SourceIP: "203.0.113.5", Now: aggNow}

	a := agg.EvaluateThreat(context.Background(), ec)
	found := false
	for _, f := range a.Factors {
		if strings.Contains(f, "flagged by abuseipdb") {
			found = true
		}
	}
	if !found {
		t.Errorf("malicious reputation not reflected: %v", a.Factors)
	}
	// severity high (weight 50) at confidence 0.9 alone clears medium.
	if a.Score < ScoreThresholdMedium {
		t.Errorf("score = %d, want >= %d from reputation signal", a.Score, ScoreThresholdMedium)
	}
}

func TestEvaluateThreatHistoricalRepeatOffender(t *testing.T) {
	history := NewHistory(0, 0)
	for i := 0; i < 5; i++ {
		history.Record("10.0.0.9", 80, aggNow.Add(-time.Duration(5-i)*time.Minute))
	}
	agg := NewAggregator(NewDefaultRuleEngine(), history, nil)

	mild := &EvalContext{
		SourceIP:     "10.0.0.9",
		RecentEvents: eventsAt(1, EventLoginFailed, SeverityLow),
		Now:          aggNow,
	}
	offender := agg.EvaluateThreat(context.Background(), mild)

	fresh := newTestAggregator(nil)
	baseline := fresh.EvaluateThreat(context.Background(), &EvalContext{
		SourceIP:     "10.0.0.10",
		RecentEvents: eventsAt(1, EventLoginFailed, SeverityLow),
		Now:          aggNow,
	})

	if offender.Score <= baseline.Score {
		t.Errorf("repeat offender score %d not above baseline %d", offender.Score, baseline.Score)
	}
	// 30% of a decayed ~80 adds roughly 24 points.
	if offender.Score-baseline.Score < 20 {
		t.Errorf("historical term too weak: offender %d vs baseline %d", offender.Score, baseline.Score)
	}
}

func TestEvaluateThreatHistoryAppended(t *testing.T) {
	agg := newTestAggregator(nil)
	ec := &EvalContext{
		SourceIP:     "10.0.0.4",
		RecentEvents: eventsAt(5, EventLoginFailed, SeverityMedium),
		Now:          aggNow,
	}

	a := agg.EvaluateThreat(context.Background(), ec)
	entries := agg.History().Entries("10.0.0.4", aggNow)
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].Score != a.Score {
		t.Errorf("recorded score %d != assessment score %d", entries[0].Score, a.Score)
	}
}

func TestEvaluateThreatFallbackOnPanic(t *testing.T) {
	agg := newTestAggregator(&mockReputation{enabled: true, panics: true})
	ec := &EvalContext{SourceIP: "10.0.0.1", Now: aggNow}

	a := agg.EvaluateThreat(context.Background(), ec)
	if a == nil {
		t.Fatal("fallback assessment is nil")
	}
	if a.Score != 0 || a.Level != LevelLow {
		t.Errorf("fallback = score %d level %s, want 0/low", a.Score, a.Level)
	}
	if a.Confidence != fallbackConfidence {
		t.Errorf("fallback confidence = %v, want %v", a.Confidence, fallbackConfidence)
	}
	if len(a.Factors) != 1 {
		t.Errorf("fallback factors = %v, want single degradation note", a.Factors)
	}
}

func TestEvaluateThreatNilContext(t *testing.T) {
	agg := newTestAggregator(nil)
	a := agg.EvaluateThreat(context.Background(), nil)
	if a == nil || a.Score != 0 || len(a.Factors) == 0 {
		t.Errorf("nil context not handled conservatively: %+v", a)
	}
}

func TestFuseBonusCaps(t *testing.T) {
	agg := NewAggregator(NewRuleEngine(), NewHistory(0, 0), nil)

	// 200 stale events: no rules registered, events stale enough that no
	// window rule could fire anyway; only the capped volume bonus and
	// capped type bonuses apply.
	var events []SecurityEvent
	for i := 0; i < 100; i++ {
		events = append(events, SecurityEvent{
			Type: EventLoginFailed, Severity: SeverityLow,
			Timestamp: aggNow.Add(-50 * time.Minute),
		})
	}
	for i := 0; i < 100; i++ {
		events = append(events, SecurityEvent{
			Type: EventUnauthorizedAccess, Severity: SeverityLow,
			Timestamp: aggNow.Add(-50 * time.Minute),
		})
	}

	a := agg.EvaluateThreat(context.Background(), &EvalContext{
		SourceIP:     "10.0.0.1",
		RecentEvents: events,
		Now:          aggNow,
	})

	// Caps: volume 30 + failed logins 25 + unauthorized 20 = 75 plus any
	// behavioral contribution; the point is it cannot run away to 100 from
	// volume alone when signals are weak, and never exceeds 100.
	if a.Score > 100 {
		t.Errorf("score %d exceeds clamp", a.Score)
	}
	if a.Score < 75 {
		t.Errorf("score %d below summed caps 75", a.Score)
	}
}
