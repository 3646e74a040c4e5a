// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// pointConfigPathAway keeps tests hermetic: a config.yaml in the working
// directory or a CONFIG_PATH from the environment must not leak in.
func pointConfigPathAway(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "does-not-exist.yaml"))
}

func TestLoadDefaults(t *testing.T) {
	pointConfigPathAway(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port = %d, want 8090", cfg.Server.Port)
	}
	if !cfg.Engine.AutoBlockEnabled {
		t.Error("Engine.AutoBlockEnabled = false, want true")
	}
	if cfg.Engine.ThreatScoreThreshold != 70 {
		t.Errorf("Engine.ThreatScoreThreshold = %d, want 70", cfg.Engine.ThreatScoreThreshold)
	}
	if cfg.Engine.MaxBlockDuration != 7*24*time.Hour {
		t.Errorf("Engine.MaxBlockDuration = %s, want 168h", cfg.Engine.MaxBlockDuration)
	}
	if cfg.NATS.Subject != "security.events" {
		t.Errorf("NATS.Subject = %q, want security.events", cfg.NATS.Subject)
	}
	if cfg.Reputation.Enabled {
		t.Error("Reputation.Enabled = true, want false by default")
	}
	if cfg.Audit.Store != "badger" {
		t.Errorf("Audit.Store = %q, want badger", cfg.Audit.Store)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "*" {
		t.Errorf("Security.CORSOrigins = %v, want [*]", cfg.Security.CORSOrigins)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	pointConfigPathAway(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ENGINE_AUTO_BLOCK", "false")
	t.Setenv("ENGINE_MAX_BLOCK_DURATION", "48h")
	t.Setenv("NATS_EMBEDDED", "false")
	t.Setenv("NATS_URL", "nats://nats.internal:4222")
	t.Setenv("CORS_ORIGINS", "https://ops.example.com, https://soc.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.AutoBlockEnabled {
		t.Error("Engine.AutoBlockEnabled = true, want false")
	}
	if cfg.Engine.MaxBlockDuration != 48*time.Hour {
		t.Errorf("Engine.MaxBlockDuration = %s, want 48h", cfg.Engine.MaxBlockDuration)
	}
	if cfg.NATS.EmbeddedServer {
		t.Error("NATS.EmbeddedServer = true, want false")
	}
	if cfg.NATS.URL != "nats://nats.internal:4222" {
		t.Errorf("NATS.URL = %q", cfg.NATS.URL)
	}
	want := []string{"https://ops.example.com", "https://soc.example.com"}
	if len(cfg.Security.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	for i, origin := range want {
		if cfg.Security.CORSOrigins[i] != origin {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Security.CORSOrigins[i], origin)
		}
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8443
engine:
  threat_score_threshold: 80
notify:
  webhook:
    enabled: true
    url: https://hooks.example.com/vigil
    headers:
      X-Team: security
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	// Env still beats the file.
	t.Setenv("ENGINE_THREAT_THRESHOLD", "90")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8443 {
		t.Errorf("Server.Port = %d, want 8443 from file", cfg.Server.Port)
	}
	if cfg.Engine.ThreatScoreThreshold != 90 {
		t.Errorf("Engine.ThreatScoreThreshold = %d, want env override 90", cfg.Engine.ThreatScoreThreshold)
	}
	if !cfg.Notify.Webhook.Enabled {
		t.Error("Notify.Webhook.Enabled = false, want true from file")
	}
	if cfg.Notify.Webhook.Headers["X-Team"] != "security" {
		t.Errorf("Webhook.Headers = %v, want X-Team: security", cfg.Notify.Webhook.Headers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "HTTP_PORT",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.Engine.ThreatScoreThreshold = -1 },
			wantErr: "ENGINE_THREAT_THRESHOLD",
		},
		{
			name:    "zero block duration",
			mutate:  func(c *Config) { c.Engine.MaxBlockDuration = 0 },
			wantErr: "ENGINE_MAX_BLOCK_DURATION",
		},
		{
			name: "external nats without url",
			mutate: func(c *Config) {
				c.NATS.EmbeddedServer = false
				c.NATS.URL = ""
			},
			wantErr: "NATS_URL",
		},
		{
			name: "bad nats scheme",
			mutate: func(c *Config) {
				c.NATS.EmbeddedServer = false
				c.NATS.URL = "http://127.0.0.1:4222"
			},
			wantErr: "NATS_URL",
		},
		{
			name: "reputation enabled without key",
			mutate: func(c *Config) {
				c.Reputation.Enabled = true
				c.Reputation.APIKey = ""
			},
			wantErr: "ABUSEIPDB_API_KEY",
		},
		{
			name:    "unknown audit store",
			mutate:  func(c *Config) { c.Audit.Store = "postgres" },
			wantErr: "AUDIT_STORE",
		},
		{
			name: "badger store without path",
			mutate: func(c *Config) {
				c.Audit.Store = "badger"
				c.Audit.Path = ""
			},
			wantErr: "AUDIT_PATH",
		},
		{
			name:    "bad audit severity",
			mutate:  func(c *Config) { c.Audit.MinSeverity = "panic" },
			wantErr: "AUDIT_MIN_SEVERITY",
		},
		{
			name: "webhook enabled without url",
			mutate: func(c *Config) {
				c.Notify.Webhook.Enabled = true
				c.Notify.Webhook.URL = ""
			},
			wantErr: "WEBHOOK_URL",
		},
		{
			name: "webhook bad scheme",
			mutate: func(c *Config) {
				c.Notify.Webhook.Enabled = true
				c.Notify.Webhook.URL = "ftp://hooks.example.com"
			},
			wantErr: "WEBHOOK_URL",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "LOG_LEVEL",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("Validate() on defaults = %v", err)
	}
}

func TestEnvTransformDropsUnmappedKeys(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("envTransformFunc(PATH) = %q, want empty", got)
	}
	if got := envTransformFunc("HTTP_PORT"); got != "server.port" {
		t.Errorf("envTransformFunc(HTTP_PORT) = %q, want server.port", got)
	}
	if got := envTransformFunc("ABUSEIPDB_API_KEY"); got != "reputation.api_key" {
		t.Errorf("envTransformFunc(ABUSEIPDB_API_KEY) = %q, want reputation.api_key", got)
	}
}
