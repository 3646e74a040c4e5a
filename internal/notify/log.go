// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package notify

import (
	"context"

	"github.com/tomtom215/vigil/internal/logging"
)

// LogNotifier writes alerts to the application log. Always available,
// useful as a fallback when no webhook is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log notifier.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

// Name returns the notifier name.
func (n *LogNotifier) Name() string { return "log" }

// Enabled always reports true.
func (n *LogNotifier) Enabled() bool { return true }

// Send writes the alert as a structured log line.
func (n *LogNotifier) Send(ctx context.Context, alert *Alert) error {
	logging.Warn().
		Str("title", alert.Title).
		Str("ip", alert.SourceIP).
		Int("score", alert.ThreatScore).
		Str("level", alert.ThreatLevel).
		Strs("factors", alert.Factors).
		Msg("security alert")
	return nil
}
