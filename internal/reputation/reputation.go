// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package reputation provides IP reputation lookups for the threat
// aggregator.
//
// The package exposes a single consumer-facing contract: a Provider either
// reports on an IP or returns an unsupported Result with a reason code.
// Lookups never return errors; every failure mode (bad input, missing
// credential, HTTP error, open circuit, exhausted quota) degrades to
// Supported=false so the decision pipeline treats it as "no signal" and
// keeps moving.
package reputation

import (
	"context"
	"time"
)

// Reason codes attached to unsupported results. The aggregator treats all
// of them identically; they exist for logs and operator diagnostics.
const (
	ReasonInvalidIP   = "invalid_ip"
	ReasonNoAPIKey    = "no_api_key"
	ReasonException   = "exception"
	ReasonCircuitOpen = "circuit_open"
	ReasonRateLimited = "rate_limited"
	// HTTP failures use "http_<status>", e.g. "http_429".
)

// Result is the outcome of one reputation lookup.
type Result struct {
	Provider     string     `json:"provider"`
	Supported    bool       `json:"supported"`
	IP           string     `json:"ip"`
	Reputation   int        `json:"reputation"` // 0-100, higher is worse
	IsMalicious  bool       `json:"is_malicious"`
	CountryCode  string     `json:"country_code,omitempty"`
	UsageType    string     `json:"usage_type,omitempty"`
	ISP          string     `json:"isp,omitempty"`
	LastReported *time.Time `json:"last_reported_at,omitempty"`

	// Reason explains why Supported is false. Empty on supported results.
	Reason string `json:"reason,omitempty"`
}

// Provider is the lookup contract consumed by the threat aggregator.
type Provider interface {
	// Enabled reports whether a provider credential is configured.
	Enabled() bool

	// CheckIP looks up the reputation of an IP address. It never returns
	// an error; failures produce a Result with Supported=false and a
	// reason code.
	CheckIP(ctx context.Context, ip string) *Result
}

// Disabled is the Provider used when no credential is configured.
// Every lookup reports unsupported with ReasonNoAPIKey.
type Disabled struct{}

// NewDisabled returns the no-credential provider.
func NewDisabled() *Disabled {
	return &Disabled{}
}

// Enabled always returns false.
func (*Disabled) Enabled() bool {
	return false
}

// CheckIP returns an unsupported result.
func (*Disabled) CheckIP(_ context.Context, ip string) *Result {
	return &Result{
		Provider:  "disabled",
		Supported: false,
		IP:        ip,
		Reason:    ReasonNoAPIKey,
	}
}
