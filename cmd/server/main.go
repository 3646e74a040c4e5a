// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package main is the entry point for the Vigil server.
//
// Vigil scores security events from a manufacturing backend in real time
// and executes automated responses: IP blocks, rate limits, monitoring
// escalation, and security team alerts.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML file, env vars)
//  2. Audit trail: BadgerDB (or in-memory) incident store with async writer
//  3. Reputation: optional AbuseIPDB client with cache, quota and breaker
//  4. Threat engine: statistical, rule, reputation and behavioral signals
//     fused into one score per event
//  5. Response system: block/rate-limit tables and action execution
//  6. NATS: embedded or external server, queue-subscribed event consumer
//  7. HTTP server: management API, websocket feed, Prometheus metrics
//
// All long-running services run under a suture supervision tree with
// per-layer failure isolation.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the consumer drains its subscription, the websocket
// hub closes its clients, and the audit buffer is flushed to disk.
//
// # Example Usage
//
// Single binary with embedded NATS and defaults:
//
//	export AUTH_TOKEN=$(openssl rand -hex 32)
//	./vigil
//
// Against an external NATS cluster with AbuseIPDB lookups:
//
//	export NATS_EMBEDDED=false
//	export NATS_URL=nats://nats.internal:4222
//	export ABUSEIPDB_ENABLED=true
//	export ABUSEIPDB_API_KEY=your-api-key
//	./vigil
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/vigil/internal/api"
	"github.com/tomtom215/vigil/internal/audit"
	"github.com/tomtom215/vigil/internal/config"
	"github.com/tomtom215/vigil/internal/ingest"
	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/notify"
	"github.com/tomtom215/vigil/internal/reputation"
	"github.com/tomtom215/vigil/internal/response"
	"github.com/tomtom215/vigil/internal/supervisor"
	"github.com/tomtom215/vigil/internal/supervisor/services"
	"github.com/tomtom215/vigil/internal/threat"
	ws "github.com/tomtom215/vigil/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Bool("auto_block", cfg.Engine.AutoBlockEnabled).
		Int("threat_threshold", cfg.Engine.ThreatScoreThreshold).
		Bool("nats", cfg.NATS.Enabled).
		Bool("reputation", cfg.Reputation.Enabled).
		Str("audit_store", cfg.Audit.Store).
		Msg("Starting Vigil")

	if cfg.Security.AuthToken == "" {
		logging.Warn().Msg("AUTH_TOKEN is empty: the management API accepts unauthenticated requests")
	}

	// Audit trail.
	var (
		auditor    *audit.Logger
		auditStore audit.Store
	)
	if cfg.Audit.Enabled {
		switch cfg.Audit.Store {
		case "memory":
			auditStore = audit.NewMemoryStore(cfg.Audit.MemoryMaxEntries)
		default:
			auditStore, err = audit.OpenBadgerStore(cfg.Audit.Path, cfg.Audit.Retention)
			if err != nil {
				logging.Fatal().Err(err).Str("path", cfg.Audit.Path).Msg("Failed to open audit store")
			}
		}
		auditor = audit.NewLogger(auditStore, &audit.Config{
			Enabled:     true,
			MinSeverity: audit.Severity(cfg.Audit.MinSeverity),
			BufferSize:  cfg.Audit.BufferSize,
		})
		logging.Info().Str("store", cfg.Audit.Store).Msg("Audit trail enabled")
	}

	// Reputation provider. Nil means scoring runs without the signal.
	var rep reputation.Provider
	if cfg.Reputation.Enabled {
		rep = reputation.NewAbuseIPDBClient(reputation.AbuseIPDBConfig{
			APIKey:             cfg.Reputation.APIKey,
			BaseURL:            cfg.Reputation.BaseURL,
			Timeout:            cfg.Reputation.Timeout,
			MaxAgeDays:         cfg.Reputation.MaxAgeDays,
			MaliciousThreshold: cfg.Reputation.MaliciousThreshold,
			RequestsPerMinute:  cfg.Reputation.RequestsPerMinute,
			CacheSize:          cfg.Reputation.CacheSize,
			CacheTTL:           cfg.Reputation.CacheTTL,
		})
		logging.Info().Msg("AbuseIPDB reputation lookups enabled")
	}

	// Threat engine.
	aggregator := threat.NewAggregator(
		threat.NewDefaultRuleEngine(),
		threat.NewHistory(cfg.Engine.MaxHistorySize, cfg.Engine.DecayWindow),
		rep,
	)

	// Alert delivery.
	var notifiers []notify.Notifier
	if cfg.Notify.LogAlerts {
		notifiers = append(notifiers, notify.NewLogNotifier())
	}
	if cfg.Notify.Webhook.Enabled {
		notifiers = append(notifiers, notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:         cfg.Notify.Webhook.URL,
			Headers:     cfg.Notify.Webhook.Headers,
			Secret:      cfg.Notify.Webhook.Secret,
			Enabled:     true,
			RateLimitMs: cfg.Notify.Webhook.RateLimitMs,
			TimeoutSec:  cfg.Notify.Webhook.TimeoutSec,
		}))
		logging.Info().Str("url", cfg.Notify.Webhook.URL).Msg("Webhook alerts enabled")
	}
	dispatcher := notify.NewDispatcher(notifiers...)

	// Realtime decision feed.
	hub := ws.NewHub()

	// Response system.
	opts := []response.Option{
		response.WithHooks(dispatcher),
		response.WithBroadcaster(hub),
	}
	if auditor != nil {
		opts = append(opts, response.WithIncidentRecorder(auditor))
	}
	system := response.NewSystem(response.Config{
		AutoBlockEnabled:     cfg.Engine.AutoBlockEnabled,
		ThreatScoreThreshold: cfg.Engine.ThreatScoreThreshold,
		MaxBlockDuration:     cfg.Engine.MaxBlockDuration,
		RateLimitDuration:    cfg.Engine.RateLimitDuration,
		EventBufferSize:      cfg.Engine.EventBufferSize,
		RecentWindow:         cfg.Engine.RecentWindow,
		HistoryRetention:     cfg.Engine.HistoryRetention,
	}, aggregator, opts...)

	// NATS ingestion.
	var (
		natsServer *ingest.EmbeddedServer
		consumer   *ingest.Consumer
	)
	if cfg.NATS.Enabled {
		natsURL := cfg.NATS.URL
		if cfg.NATS.EmbeddedServer {
			natsServer, err = ingest.NewEmbeddedServer(ingest.ServerConfig{
				Host: cfg.NATS.Host,
				Port: cfg.NATS.Port,
			})
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
			}
			natsURL = natsServer.ClientURL()
			logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
		}
		consumer = ingest.NewConsumer(ingest.Config{
			URL:             natsURL,
			Subject:         cfg.NATS.Subject,
			Queue:           cfg.NATS.Queue,
			DecisionSubject: cfg.NATS.DecisionSubject,
		}, system)
	}

	// HTTP server.
	handler := api.NewHandler(system, auditor, hub)
	mw := api.NewMiddleware(&api.MiddlewareConfig{
		AuthToken:          cfg.Security.AuthToken,
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
		RateLimitDisabled:  cfg.Security.RateLimitDisabled,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, mw).Setup(),
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Supervision tree.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	sweeper := services.NewSweeperService(system, cfg.Engine.CleanupInterval)
	if auditStore != nil {
		sweeper.WithAuditPruner(auditStore, cfg.Audit.Retention)
	}
	tree.AddEngineService(sweeper)
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	if consumer != nil {
		tree.AddMessagingService(services.NewConsumerService(consumer))
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", httpServer.Addr).Msg("Vigil started")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		logging.Error().Err(err).Msg("Supervisor tree stopped unexpectedly")
		stop()
	}

	// Wait for the tree to wind down, then flush and close the rest.
	select {
	case <-errCh:
	case <-time.After(15 * time.Second):
		if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil {
			for _, svc := range report {
				logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
			}
		}
	}

	if natsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := natsServer.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
		}
		cancel()
	}
	if auditor != nil {
		if err := auditor.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}
	if auditStore != nil {
		if err := auditStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit store")
		}
	}

	logging.Info().Msg("Vigil stopped")
}
