// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package config

import (
	"fmt"
	"net/url"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateEngine(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if err := c.validateReputation(); err != nil {
		return err
	}

	if err := c.validateAudit(); err != nil {
		return err
	}

	if err := c.validateNotify(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got: %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.ThreatScoreThreshold < 0 || c.Engine.ThreatScoreThreshold > 100 {
		return fmt.Errorf("ENGINE_THREAT_THRESHOLD must be between 0 and 100, got: %d", c.Engine.ThreatScoreThreshold)
	}
	if c.Engine.MaxBlockDuration <= 0 {
		return fmt.Errorf("ENGINE_MAX_BLOCK_DURATION must be positive, got: %s", c.Engine.MaxBlockDuration)
	}
	if c.Engine.RateLimitDuration <= 0 {
		return fmt.Errorf("ENGINE_RATE_LIMIT_DURATION must be positive, got: %s", c.Engine.RateLimitDuration)
	}
	if c.Engine.EventBufferSize < 1 {
		return fmt.Errorf("ENGINE_EVENT_BUFFER_SIZE must be at least 1, got: %d", c.Engine.EventBufferSize)
	}
	if c.Engine.RecentWindow <= 0 {
		return fmt.Errorf("ENGINE_RECENT_WINDOW must be positive, got: %s", c.Engine.RecentWindow)
	}
	if c.Engine.CleanupInterval <= 0 {
		return fmt.Errorf("ENGINE_CLEANUP_INTERVAL must be positive, got: %s", c.Engine.CleanupInterval)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}

	if c.NATS.EmbeddedServer {
		if c.NATS.Port < -1 || c.NATS.Port == 0 || c.NATS.Port > 65535 {
			return fmt.Errorf("NATS_PORT must be -1 (random) or between 1 and 65535, got: %d", c.NATS.Port)
		}
	} else {
		if c.NATS.URL == "" {
			return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true and NATS_EMBEDDED=false")
		}
		if err := validateNATSURL(c.NATS.URL); err != nil {
			return fmt.Errorf("NATS_URL is invalid: %w", err)
		}
	}

	if c.NATS.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT must not be empty")
	}
	return nil
}

func (c *Config) validateReputation() error {
	if !c.Reputation.Enabled {
		return nil
	}

	if c.Reputation.APIKey == "" {
		return fmt.Errorf("ABUSEIPDB_API_KEY is required when ABUSEIPDB_ENABLED=true")
	}
	if c.Reputation.BaseURL != "" {
		if err := validateHTTPURL(c.Reputation.BaseURL, "ABUSEIPDB_BASE_URL"); err != nil {
			return err
		}
	}
	if c.Reputation.MaliciousThreshold < 0 || c.Reputation.MaliciousThreshold > 100 {
		return fmt.Errorf("ABUSEIPDB_MALICIOUS_THRESHOLD must be between 0 and 100, got: %d", c.Reputation.MaliciousThreshold)
	}
	return nil
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}

	switch c.Audit.Store {
	case "badger":
		if c.Audit.Path == "" {
			return fmt.Errorf("AUDIT_PATH is required when AUDIT_STORE=badger")
		}
	case "memory":
		if c.Audit.MemoryMaxEntries < 1 {
			return fmt.Errorf("AUDIT_MEMORY_MAX_ENTRIES must be at least 1, got: %d", c.Audit.MemoryMaxEntries)
		}
	default:
		return fmt.Errorf("AUDIT_STORE must be 'badger' or 'memory', got: %s", c.Audit.Store)
	}

	switch c.Audit.MinSeverity {
	case "info", "warning", "critical":
	default:
		return fmt.Errorf("AUDIT_MIN_SEVERITY must be 'info', 'warning' or 'critical', got: %s", c.Audit.MinSeverity)
	}
	return nil
}

func (c *Config) validateNotify() error {
	if !c.Notify.Webhook.Enabled {
		return nil
	}

	if c.Notify.Webhook.URL == "" {
		return fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_ENABLED=true")
	}
	return validateWebhookURL(c.Notify.Webhook.URL)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, got: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got: %s", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL validates that a URL is properly formatted for HTTP/HTTPS
// services. Validates scheme (http/https) and host.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}

	return nil
}

// validateWebhookURL validates the alert webhook destination. Unlike the
// reputation base URL, webhook destinations commonly carry paths and query
// parameters, so only scheme and host are checked.
func validateWebhookURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("WEBHOOK_URL failed to parse: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("WEBHOOK_URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("WEBHOOK_URL host is required")
	}
	return nil
}

// validateNATSURL validates that a NATS URL is properly formatted.
// Supports nats://, tls:// and ws:// schemes.
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("scheme must be nats, tls, ws or wss, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("host is required")
	}

	return nil
}
