// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package ingest receives security events over NATS and feeds them to the
// response engine. Engine instances join a queue group so events are
// load-balanced, and every decision is published back for downstream
// consumers (gateways, SIEM forwarders).
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
	"github.com/tomtom215/vigil/internal/response"
	"github.com/tomtom215/vigil/internal/threat"
)

// Defaults for Config fields left empty.
const (
	DefaultSubject         = "security.events"
	DefaultQueue           = "vigil-engine"
	DefaultDecisionSubject = "security.decisions"
)

// Config configures the NATS consumer.
type Config struct {
	// URL of the NATS server, e.g. nats://127.0.0.1:4222.
	URL string `json:"url"`

	// Subject carrying inbound security events.
	Subject string `json:"subject"`

	// Queue is the queue group name; instances sharing it split the load.
	Queue string `json:"queue"`

	// DecisionSubject receives the engine's decisions. Empty disables
	// publishing.
	DecisionSubject string `json:"decision_subject"`
}

func (c Config) withDefaults() Config {
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	return c
}

// Processor evaluates one security event. *response.System satisfies it.
type Processor interface {
	ProcessSecurityEvent(ctx context.Context, event *threat.SecurityEvent) *response.Decision
}

// Consumer subscribes to the event subject and drives the processor.
type Consumer struct {
	config    Config
	processor Processor
}

// NewConsumer creates a consumer feeding the given processor.
func NewConsumer(cfg Config, processor Processor) *Consumer {
	return &Consumer{config: cfg.withDefaults(), processor: processor}
}

// Serve connects, subscribes, and blocks until the context is canceled.
// It drains the subscription on the way out so in-flight events finish.
// Designed to run under suture supervision; connection errors return so
// the supervisor restarts with backoff.
func (c *Consumer) Serve(ctx context.Context) error {
	conn, err := nats.Connect(c.config.URL,
		nats.Name("vigil-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer conn.Close()

	sub, err := conn.QueueSubscribe(c.config.Subject, c.config.Queue, func(msg *nats.Msg) {
		c.handle(ctx, conn, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.config.Subject, err)
	}

	logging.Info().
		Str("subject", c.config.Subject).
		Str("queue", c.config.Queue).
		Msg("event consumer started")

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		logging.Warn().Err(err).Msg("failed to drain subscription")
	}
	return ctx.Err()
}

// handle decodes one message, processes it, and publishes the decision.
func (c *Consumer) handle(ctx context.Context, conn *nats.Conn, msg *nats.Msg) {
	var event threat.SecurityEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		metrics.EventsDropped.WithLabelValues("decode_error").Inc()
		logging.Warn().Err(err).Str("subject", msg.Subject).Msg("failed to decode security event")
		return
	}
	if event.Type == "" {
		metrics.EventsDropped.WithLabelValues("missing_type").Inc()
		logging.Warn().Str("subject", msg.Subject).Msg("security event has no type")
		return
	}

	decision := c.processor.ProcessSecurityEvent(ctx, &event)
	if decision == nil || c.config.DecisionSubject == "" {
		return
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		logging.Error().Err(err).Str("decision_id", decision.ID).Msg("failed to marshal decision")
		return
	}
	if err := conn.Publish(c.config.DecisionSubject, payload); err != nil {
		logging.Warn().Err(err).Str("decision_id", decision.ID).Msg("failed to publish decision")
	}
}
