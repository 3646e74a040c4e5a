// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package response

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/threat"
)

// Action names the response taken for an event.
type Action string

const (
	// ActionNone is returned for events that cannot be attributed to a source.
	ActionNone Action = "none"
	// ActionBlocked short-circuits processing for already-blocked sources.
	ActionBlocked Action = "blocked"
	// ActionBlockIP blocks the source for a score-dependent duration.
	ActionBlockIP Action = "block_ip"
	// ActionRateLimitIP throttles the source without blocking it.
	ActionRateLimitIP Action = "rate_limit_ip"
	// ActionEnhanceMonitoring raises scrutiny without restricting traffic.
	ActionEnhanceMonitoring Action = "enhance_monitoring"
	// ActionContinueMonitoring is the routine outcome.
	ActionContinueMonitoring Action = "continue_monitoring"
)

// Secondary action names executed alongside the primary action.
const (
	actionNotifySecurityTeam = "notify_security_team"
	actionLogIncident        = "log_incident"
	actionFlagForReview      = "flag_for_review"
	actionConsiderLockdown   = "consider_lockdown"
)

// secondaryActions maps a threat level to the follow-up actions it
// triggers. The entry matching the primary action is skipped at
// execution time so nothing runs twice.
var secondaryActions = map[threat.Level][]string{
	threat.LevelCritical: {
		string(ActionBlockIP),
		actionNotifySecurityTeam,
		actionLogIncident,
		string(ActionEnhanceMonitoring),
		actionConsiderLockdown,
	},
	threat.LevelHigh: {
		string(ActionRateLimitIP),
		actionNotifySecurityTeam,
		actionLogIncident,
		string(ActionEnhanceMonitoring),
	},
	threat.LevelMedium: {
		actionLogIncident,
		string(ActionEnhanceMonitoring),
		actionFlagForReview,
	},
	threat.LevelLow: {
		string(ActionContinueMonitoring),
	},
}

// ActionResult records the outcome of one executed action.
type ActionResult struct {
	Name    string `json:"name"`
	Outcome string `json:"outcome"` // executed, skipped, failed
	Error   string `json:"error,omitempty"`
}

const (
	outcomeExecuted = "executed"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
)

// Hooks receives side-effecting follow-up actions. Implementations must
// tolerate concurrent calls; errors are recorded but never abort the
// decision pipeline.
type Hooks interface {
	NotifySecurityTeam(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error
	LogIncident(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error
	EnhanceMonitoring(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error
	FlagForReview(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error
	ConsiderSystemLockdown(ctx context.Context, assessment *threat.Assessment, event *threat.SecurityEvent) error
}

// NopHooks implements Hooks with no-ops. Embed it to implement a subset.
type NopHooks struct{}

func (NopHooks) NotifySecurityTeam(context.Context, *threat.Assessment, *threat.SecurityEvent) error {
	return nil
}

func (NopHooks) LogIncident(context.Context, *threat.Assessment, *threat.SecurityEvent) error {
	return nil
}

func (NopHooks) EnhanceMonitoring(context.Context, *threat.Assessment, *threat.SecurityEvent) error {
	return nil
}

func (NopHooks) FlagForReview(context.Context, *threat.Assessment, *threat.SecurityEvent) error {
	return nil
}

func (NopHooks) ConsiderSystemLockdown(context.Context, *threat.Assessment, *threat.SecurityEvent) error {
	return nil
}

// primaryAction selects the direct response from the fused score and
// level. Score drives the ladder; the level clauses catch assessments
// whose level outranks what their numeric score alone would select.
func primaryAction(score int, level threat.Level) Action {
	switch {
	case score >= 80:
		return ActionBlockIP
	case score >= 70 || level == threat.LevelCritical:
		return ActionBlockIP
	case score >= 60:
		return ActionRateLimitIP
	case score >= 50 || level == threat.LevelHigh:
		return ActionRateLimitIP
	case score >= threat.ScoreThresholdMedium || level == threat.LevelMedium:
		return ActionEnhanceMonitoring
	default:
		return ActionContinueMonitoring
	}
}

// blockDuration maps a threat score to how long the block should hold,
// capped by the configured maximum.
func blockDuration(score int, maxDuration time.Duration) time.Duration {
	var d time.Duration
	switch {
	case score >= 90:
		d = 7 * 24 * time.Hour
	case score >= 80:
		d = 3 * 24 * time.Hour
	case score >= 70:
		d = 24 * time.Hour
	case score >= 60:
		d = 6 * time.Hour
	default:
		d = 2 * time.Hour
	}
	if maxDuration > 0 && d > maxDuration {
		d = maxDuration
	}
	return d
}

// runHook invokes one hook with panic and error isolation. A failing
// or panicking hook yields a failed ActionResult; it never propagates.
func runHook(ctx context.Context, name string, assessment *threat.Assessment, event *threat.SecurityEvent, fn func(context.Context, *threat.Assessment, *threat.SecurityEvent) error) (result ActionResult) {
	result = ActionResult{Name: name, Outcome: outcomeExecuted}

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = outcomeFailed
			result.Error = fmt.Sprintf("panic: %v", r)
			metrics.ResponseActions.WithLabelValues(name, outcomeFailed).Inc()
			logging.Error().Str("action", name).Interface("panic", r).Msg("response action panicked")
		}
	}()

	if err := fn(ctx, assessment, event); err != nil {
		result.Outcome = outcomeFailed
		result.Error = err.Error()
		metrics.ResponseActions.WithLabelValues(name, outcomeFailed).Inc()
		logging.Warn().Err(err).Str("action", name).Msg("response action failed")
		return result
	}

	metrics.ResponseActions.WithLabelValues(name, outcomeExecuted).Inc()
	return result
}
