// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package config loads and validates application configuration.
//
// Configuration is layered with Koanf v2:
//  1. Defaults: built-in sensible defaults for every setting
//  2. Config file: optional YAML file (config.yaml) for persistent settings
//  3. Environment variables: override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Engine     EngineConfig     `koanf:"engine"`
	NATS       NATSConfig       `koanf:"nats"`
	Reputation ReputationConfig `koanf:"reputation"`
	Audit      AuditConfig      `koanf:"audit"`
	Notify     NotifyConfig     `koanf:"notify"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_HOST: Listen address (default: 0.0.0.0)
//   - HTTP_PORT: Listen port (default: 8090)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// EngineConfig tunes the threat scoring and response engine.
//
// Environment Variables:
//   - ENGINE_AUTO_BLOCK: Execute block/rate-limit actions (default: true)
//   - ENGINE_THREAT_THRESHOLD: Actionable threat score (default: 70)
//   - ENGINE_MAX_BLOCK_DURATION: Cap on score-derived block durations (default: 168h)
//   - ENGINE_RATE_LIMIT_DURATION: How long a rate limit holds (default: 30m)
//   - ENGINE_EVENT_BUFFER_SIZE: Per-source event buffer bound (default: 100)
//   - ENGINE_RECENT_WINDOW: Lookback window for assessments (default: 1h)
//   - ENGINE_HISTORY_RETENTION: Per-source score history retention (default: 168h)
//   - ENGINE_MAX_HISTORY_SIZE: Per-source score history entries (default: 1000)
//   - ENGINE_DECAY_WINDOW: Age at which historical scores decay to zero (default: 24h)
//   - ENGINE_CLEANUP_INTERVAL: Background expiry sweep period (default: 1h)
type EngineConfig struct {
	AutoBlockEnabled     bool          `koanf:"auto_block_enabled"`
	ThreatScoreThreshold int           `koanf:"threat_score_threshold"`
	MaxBlockDuration     time.Duration `koanf:"max_block_duration"`
	RateLimitDuration    time.Duration `koanf:"rate_limit_duration"`
	EventBufferSize      int           `koanf:"event_buffer_size"`
	RecentWindow         time.Duration `koanf:"recent_window"`
	HistoryRetention     time.Duration `koanf:"history_retention"`
	MaxHistorySize       int           `koanf:"max_history_size"`
	DecayWindow          time.Duration `koanf:"decay_window"`
	CleanupInterval      time.Duration `koanf:"cleanup_interval"`
}

// NATSConfig holds event ingestion settings. When EmbeddedServer is true
// a NATS server is started in-process and URL is ignored.
//
// Environment Variables:
//   - NATS_ENABLED: Consume events from NATS (default: true)
//   - NATS_URL: External server URL (default: nats://127.0.0.1:4222)
//   - NATS_EMBEDDED: Run an in-process server (default: true)
//   - NATS_HOST / NATS_PORT: Embedded server listen address
//   - NATS_SUBJECT: Inbound event subject (default: security.events)
//   - NATS_QUEUE: Queue group for competing consumers (default: vigil-engine)
//   - NATS_DECISION_SUBJECT: Outbound decision subject (default: security.decisions)
type NATSConfig struct {
	Enabled         bool   `koanf:"enabled"`
	URL             string `koanf:"url"`
	EmbeddedServer  bool   `koanf:"embedded_server"`
	Host            string `koanf:"host"`
	Port            int    `koanf:"port"`
	Subject         string `koanf:"subject"`
	Queue           string `koanf:"queue"`
	DecisionSubject string `koanf:"decision_subject"`
}

// ReputationConfig holds AbuseIPDB lookup settings. Disabled by default;
// scoring runs without external reputation when no API key is configured.
//
// Environment Variables:
//   - ABUSEIPDB_ENABLED: Enable reputation lookups (default: false)
//   - ABUSEIPDB_API_KEY: API key (required when enabled)
//   - ABUSEIPDB_MAX_AGE_DAYS: Report age window (default: 90)
//   - ABUSEIPDB_MALICIOUS_THRESHOLD: Confidence score treated as malicious (default: 75)
//   - ABUSEIPDB_REQUESTS_PER_MINUTE: Outbound lookup quota (default: 30)
//   - ABUSEIPDB_CACHE_TTL: Lookup cache freshness (default: 1h)
type ReputationConfig struct {
	Enabled            bool          `koanf:"enabled"`
	APIKey             string        `koanf:"api_key"`
	BaseURL            string        `koanf:"base_url"`
	Timeout            time.Duration `koanf:"timeout"`
	MaxAgeDays         int           `koanf:"max_age_days"`
	MaliciousThreshold int           `koanf:"malicious_threshold"`
	RequestsPerMinute  int           `koanf:"requests_per_minute"`
	CacheSize          int           `koanf:"cache_size"`
	CacheTTL           time.Duration `koanf:"cache_ttl"`
}

// AuditConfig holds incident audit trail settings.
//
// Environment Variables:
//   - AUDIT_ENABLED: Record incidents (default: true)
//   - AUDIT_STORE: Backing store, "badger" or "memory" (default: badger)
//   - AUDIT_PATH: Badger database directory (default: /data/vigil/audit)
//   - AUDIT_RETENTION: Incident retention (default: 2160h / 90 days)
//   - AUDIT_MIN_SEVERITY: Floor below which incidents are skipped (default: info)
//   - AUDIT_BUFFER_SIZE: Async write buffer size (default: 1000)
//   - AUDIT_MEMORY_MAX_ENTRIES: Bound for the memory store (default: 10000)
type AuditConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Store            string        `koanf:"store"`
	Path             string        `koanf:"path"`
	Retention        time.Duration `koanf:"retention"`
	MinSeverity      string        `koanf:"min_severity"`
	BufferSize       int           `koanf:"buffer_size"`
	MemoryMaxEntries int           `koanf:"memory_max_entries"`
}

// NotifyConfig holds alert delivery settings.
type NotifyConfig struct {
	// LogAlerts mirrors every alert to the application log. Always useful;
	// on by default.
	LogAlerts bool          `koanf:"log_alerts"`
	Webhook   WebhookConfig `koanf:"webhook"`
}

// WebhookConfig holds outbound webhook settings for security alerts.
//
// Environment Variables:
//   - WEBHOOK_ENABLED: Deliver alerts to a webhook (default: false)
//   - WEBHOOK_URL: Destination URL (required when enabled)
//   - WEBHOOK_SECRET: HMAC-SHA256 signing secret (optional)
//   - WEBHOOK_RATE_LIMIT_MS: Minimum gap between deliveries (default: 500)
//   - WEBHOOK_TIMEOUT_SEC: Per-delivery timeout (default: 10)
//
// Headers can only be set via the config file.
type WebhookConfig struct {
	Enabled     bool              `koanf:"enabled"`
	URL         string            `koanf:"url"`
	Secret      string            `koanf:"secret"`
	Headers     map[string]string `koanf:"headers"`
	RateLimitMs int               `koanf:"rate_limit_ms"`
	TimeoutSec  int               `koanf:"timeout_sec"`
}

// SecurityConfig holds API protection settings.
//
// Environment Variables:
//   - AUTH_TOKEN: Static bearer token for the management API. Empty
//     disables authentication (suitable only behind a trusted proxy).
//   - RATE_LIMIT_REQUESTS / RATE_LIMIT_WINDOW: API rate limit (default: 100/1m)
//   - DISABLE_RATE_LIMIT: Turn off API rate limiting (default: false)
//   - CORS_ORIGINS: Comma-separated allowed origins (default: *)
//   - TRUSTED_PROXIES: Comma-separated proxy CIDRs for client IP resolution
type SecurityConfig struct {
	AuthToken         string        `koanf:"auth_token"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	TrustedProxies    []string      `koanf:"trusted_proxies"`
}

// LoggingConfig holds log output settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_CALLER: Include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
