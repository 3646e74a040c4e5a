// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package api provides the management HTTP surface: event submission,
// block lifecycle operations, threat and incident queries, and the
// realtime websocket feed.
//
// Request bodies are validated with go-playground/validator v10 tags
// before any engine state is touched.
package api

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/vigil/internal/threat"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// EventRequest is the request body for POST /api/v1/events.
//
// Fields:
//   - Type: Event type identifier, e.g. "auth.login.failed" (required)
//   - Severity: low, medium, high or critical (default: low)
//   - SourceIP: Originating address; events without one are not scored
//   - UserID / StationID: Optional actor and equipment identifiers
//   - Timestamp: Event time, defaults to receipt time
//   - Details: Free-form key/value context
type EventRequest struct {
	ID        string            `json:"id" validate:"omitempty,max=128"`
	Type      string            `json:"event_type" validate:"required,min=1,max=128"`
	Severity  string            `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	SourceIP  string            `json:"source_ip" validate:"omitempty,ip"`
	UserID    string            `json:"user_id" validate:"omitempty,max=128"`
	StationID string            `json:"station_id" validate:"omitempty,max=128"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details" validate:"omitempty,max=64"`
}

// toEvent converts a validated request into an engine event.
func (req *EventRequest) toEvent() *threat.SecurityEvent {
	severity := threat.Severity(req.Severity)
	if req.Severity == "" {
		severity = threat.SeverityLow
	}
	return &threat.SecurityEvent{
		ID:        req.ID,
		Type:      threat.EventType(req.Type),
		Severity:  severity,
		SourceIP:  req.SourceIP,
		UserID:    req.UserID,
		StationID: req.StationID,
		Timestamp: req.Timestamp,
		Details:   req.Details,
	}
}

// UnblockRequest is the optional request body for DELETE /api/v1/blocks/{ip}.
type UnblockRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=256"`
}

// validateRequest validates a struct using go-playground/validator and
// converts the first failure into an APIError.
func validateRequest(v interface{}) *APIError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return &APIError{Code: "VALIDATION_ERROR", Message: "invalid request"}
	}

	first := validationErrors[0]
	return &APIError{
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("field %s failed on %s", first.Field(), first.Tag()),
		Details: map[string]interface{}{
			"field": first.Field(),
			"tag":   first.Tag(),
		},
	}
}
