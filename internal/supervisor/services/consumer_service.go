// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package services

import (
	"context"
)

// EventConsumer matches *ingest.Consumer's Serve method.
type EventConsumer interface {
	Serve(ctx context.Context) error
}

// ConsumerService wraps the NATS event consumer as a supervised service.
// Connection failures surface as Serve errors, so suture restarts the
// consumer with backoff until the broker is reachable again.
type ConsumerService struct {
	consumer EventConsumer
	name     string
}

// NewConsumerService creates a consumer service wrapper.
func NewConsumerService(consumer EventConsumer) *ConsumerService {
	return &ConsumerService{
		consumer: consumer,
		name:     "nats-consumer",
	}
}

// Serve implements suture.Service.
func (c *ConsumerService) Serve(ctx context.Context) error {
	return c.consumer.Serve(ctx)
}

// String implements fmt.Stringer.
func (c *ConsumerService) String() string {
	return c.name
}
