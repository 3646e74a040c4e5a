// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package services

import (
	"context"
	"time"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/response"
)

// Cleaner matches *response.System's Cleanup method.
type Cleaner interface {
	Cleanup() response.CleanupResult
}

// AuditPruner matches the audit store's Delete method. The sweeper uses
// it to enforce incident retention alongside engine cleanup.
type AuditPruner interface {
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// SweeperService periodically removes expired blocks, stale rate limits,
// and aged threat history from the response system. Expiry is otherwise
// lazy, so without the sweeper a quiet source's records would linger
// until the next lookup touches them.
type SweeperService struct {
	cleaner        Cleaner
	pruner         AuditPruner
	auditRetention time.Duration
	interval       time.Duration
	name           string
}

// NewSweeperService creates a sweeper running at the given interval.
// Intervals at or below zero default to one hour.
func NewSweeperService(cleaner Cleaner, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweeperService{
		cleaner:  cleaner,
		interval: interval,
		name:     "cleanup-sweeper",
	}
}

// WithAuditPruner makes each sweep also delete audit incidents older
// than retention. A nil pruner or non-positive retention disables it.
func (s *SweeperService) WithAuditPruner(pruner AuditPruner, retention time.Duration) *SweeperService {
	s.pruner = pruner
	s.auditRetention = retention
	return s
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result := s.cleaner.Cleanup()
			logging.Debug().
				Int("blocks_removed", result.BlocksRemoved).
				Int("rate_limits_removed", result.RateLimitsRemoved).
				Int("history_removed", result.HistoryRemoved).
				Int("sources_pruned", result.SourcesPruned).
				Msg("Cleanup sweep completed")

			if s.pruner != nil && s.auditRetention > 0 {
				pruned, err := s.pruner.Delete(ctx, time.Now().Add(-s.auditRetention))
				if err != nil {
					logging.Error().Err(err).Msg("Audit retention sweep failed")
				} else if pruned > 0 {
					logging.Debug().
						Int64("incidents_removed", pruned).
						Msg("Audit retention sweep completed")
				}
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *SweeperService) String() string {
	return s.name
}
