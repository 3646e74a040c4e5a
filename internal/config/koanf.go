// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vigil/config.yaml",
	"/etc/vigil/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8090,
			Timeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			AutoBlockEnabled:     true,
			ThreatScoreThreshold: 70,
			MaxBlockDuration:     7 * 24 * time.Hour,
			RateLimitDuration:    30 * time.Minute,
			EventBufferSize:      100,
			RecentWindow:         time.Hour,
			HistoryRetention:     7 * 24 * time.Hour,
			MaxHistorySize:       1000,
			DecayWindow:          24 * time.Hour,
			CleanupInterval:      time.Hour,
		},
		NATS: NATSConfig{
			Enabled:         true,
			URL:             "nats://127.0.0.1:4222",
			EmbeddedServer:  true,
			Host:            "127.0.0.1",
			Port:            4222,
			Subject:         "security.events",
			Queue:           "vigil-engine",
			DecisionSubject: "security.decisions",
		},
		Reputation: ReputationConfig{
			Enabled:            false,
			BaseURL:            "https://api.abuseipdb.com/api/v2",
			Timeout:            3 * time.Second,
			MaxAgeDays:         90,
			MaliciousThreshold: 75,
			RequestsPerMinute:  30,
			CacheSize:          4096,
			CacheTTL:           time.Hour,
		},
		Audit: AuditConfig{
			Enabled:          true,
			Store:            "badger",
			Path:             "/data/vigil/audit",
			Retention:        90 * 24 * time.Hour,
			MinSeverity:      "info",
			BufferSize:       1000,
			MemoryMaxEntries: 10000,
		},
		Notify: NotifyConfig{
			LogAlerts: true,
			Webhook: WebhookConfig{
				Enabled:     false,
				RateLimitMs: 500,
				TimeoutSec:  10,
			},
		},
		Security: SecurityConfig{
			AuthToken:         "",
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
			TrustedProxies:    []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if it exists)
//  3. Environment variables: override any setting
//
// Precedence: ENV > File > Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Env vars arrive as strings; split known slice fields on commas.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, honoring CONFIG_PATH first.
// Returns empty string when no file exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults).
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so random environment noise never pollutes
// the config.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - NATS_URL -> nats.url
//   - ABUSEIPDB_API_KEY -> reputation.api_key
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Engine mappings
		"engine_auto_block":          "engine.auto_block_enabled",
		"engine_threat_threshold":    "engine.threat_score_threshold",
		"engine_max_block_duration":  "engine.max_block_duration",
		"engine_rate_limit_duration": "engine.rate_limit_duration",
		"engine_event_buffer_size":   "engine.event_buffer_size",
		"engine_recent_window":       "engine.recent_window",
		"engine_history_retention":   "engine.history_retention",
		"engine_max_history_size":    "engine.max_history_size",
		"engine_decay_window":        "engine.decay_window",
		"engine_cleanup_interval":    "engine.cleanup_interval",

		// NATS mappings
		"nats_enabled":          "nats.enabled",
		"nats_url":              "nats.url",
		"nats_embedded":         "nats.embedded_server",
		"nats_host":             "nats.host",
		"nats_port":             "nats.port",
		"nats_subject":          "nats.subject",
		"nats_queue":            "nats.queue",
		"nats_decision_subject": "nats.decision_subject",

		// Reputation mappings
		"abuseipdb_enabled":             "reputation.enabled",
		"abuseipdb_api_key":             "reputation.api_key",
		"abuseipdb_base_url":            "reputation.base_url",
		"abuseipdb_timeout":             "reputation.timeout",
		"abuseipdb_max_age_days":        "reputation.max_age_days",
		"abuseipdb_malicious_threshold": "reputation.malicious_threshold",
		"abuseipdb_requests_per_minute": "reputation.requests_per_minute",
		"abuseipdb_cache_size":          "reputation.cache_size",
		"abuseipdb_cache_ttl":           "reputation.cache_ttl",

		// Audit mappings
		"audit_enabled":            "audit.enabled",
		"audit_store":              "audit.store",
		"audit_path":               "audit.path",
		"audit_retention":          "audit.retention",
		"audit_min_severity":       "audit.min_severity",
		"audit_buffer_size":        "audit.buffer_size",
		"audit_memory_max_entries": "audit.memory_max_entries",

		// Notify mappings
		"notify_log_alerts":     "notify.log_alerts",
		"webhook_enabled":       "notify.webhook.enabled",
		"webhook_url":           "notify.webhook.url",
		"webhook_secret":        "notify.webhook.secret",
		"webhook_rate_limit_ms": "notify.webhook.rate_limit_ms",
		"webhook_timeout_sec":   "notify.webhook.timeout_sec",

		// Security mappings
		"auth_token":          "security.auth_token",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",
		"trusted_proxies":     "security.trusted_proxies",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
