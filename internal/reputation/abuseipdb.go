// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package reputation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/vigil/internal/logging"
	"github.com/tomtom215/vigil/internal/metrics"
)

// DefaultBaseURL is the AbuseIPDB API v2 endpoint.
const DefaultBaseURL = "https://api.abuseipdb.com/api/v2"

// AbuseIPDBConfig configures the AbuseIPDB client.
type AbuseIPDBConfig struct {
	// APIKey is the AbuseIPDB API key. Empty disables the client.
	APIKey string `json:"api_key"`

	// BaseURL overrides the API endpoint, primarily for tests.
	BaseURL string `json:"base_url"`

	// Timeout bounds each HTTP lookup. The decision pipeline must never
	// stall on a slow provider. Default: 3s.
	Timeout time.Duration `json:"timeout"`

	// MaxAgeDays is the report age window passed to the API. Default: 90.
	MaxAgeDays int `json:"max_age_days"`

	// MaliciousThreshold is the abuse confidence score (0-100) at or above
	// which an IP is reported malicious. Default: 75.
	MaliciousThreshold int `json:"malicious_threshold"`

	// RequestsPerMinute caps outbound lookups to honor the provider quota.
	// Default: 30.
	RequestsPerMinute int `json:"requests_per_minute"`

	// CacheSize is the number of lookup results kept in memory. Default: 4096.
	CacheSize int `json:"cache_size"`

	// CacheTTL is how long a cached result stays fresh. Default: 1h.
	CacheTTL time.Duration `json:"cache_ttl"`
}

// DefaultAbuseIPDBConfig returns sensible defaults (no API key).
func DefaultAbuseIPDBConfig() AbuseIPDBConfig {
	return AbuseIPDBConfig{
		BaseURL:            DefaultBaseURL,
		Timeout:            3 * time.Second,
		MaxAgeDays:         90,
		MaliciousThreshold: 75,
		RequestsPerMinute:  30,
		CacheSize:          4096,
		CacheTTL:           time.Hour,
	}
}

// AbuseIPDBClient implements Provider against the AbuseIPDB check endpoint.
//
// Three transport guards sit between the aggregator and the network, all of
// which degrade to an unsupported Result rather than blocking or erroring:
//   - an expiring LRU cache, so repeated scoring of a hot IP does not
//     re-query the provider
//   - a token-bucket rate limiter honoring the provider quota
//   - a circuit breaker that opens after sustained failures
type AbuseIPDBClient struct {
	config  AbuseIPDBConfig
	client  *http.Client
	cache   *expirable.LRU[string, *Result]
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Result]
}

// httpStatusError reports a non-2xx response so CheckIP can surface the
// status code in the fallback reason.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("abuseipdb: unexpected status %d", e.status)
}

// NewAbuseIPDBClient creates a new AbuseIPDB reputation client.
func NewAbuseIPDBClient(cfg AbuseIPDBConfig) *AbuseIPDBClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 90
	}
	if cfg.MaliciousThreshold <= 0 {
		cfg.MaliciousThreshold = 75
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	breakerName := "abuseipdb"
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("reputation circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &AbuseIPDBClient{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   expirable.NewLRU[string, *Result](cfg.CacheSize, nil, cfg.CacheTTL),
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute),
		breaker: breaker,
	}
}

// Enabled reports whether an API key is configured.
func (c *AbuseIPDBClient) Enabled() bool {
	return c.config.APIKey != ""
}

// CheckIP looks up the abuse reputation of an IP address.
func (c *AbuseIPDBClient) CheckIP(ctx context.Context, ip string) *Result {
	if !c.Enabled() {
		return c.unsupported(ip, ReasonNoAPIKey)
	}

	if _, err := netip.ParseAddr(ip); err != nil {
		return c.unsupported(ip, ReasonInvalidIP)
	}

	if cached, ok := c.cache.Get(ip); ok {
		metrics.ReputationLookups.WithLabelValues("cache_hit").Inc()
		return cached
	}

	if !c.limiter.Allow() {
		metrics.ReputationLookups.WithLabelValues("unsupported").Inc()
		return c.unsupported(ip, ReasonRateLimited)
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (*Result, error) {
		return c.fetch(ctx, ip)
	})
	metrics.ReputationLookupDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ReputationLookups.WithLabelValues("unsupported").Inc()
		return c.unsupported(ip, failureReason(err))
	}

	c.cache.Add(ip, result)
	if result.IsMalicious {
		metrics.ReputationLookups.WithLabelValues("malicious").Inc()
	} else {
		metrics.ReputationLookups.WithLabelValues("clean").Inc()
	}
	return result
}

// checkResponse mirrors the AbuseIPDB /check response envelope.
type checkResponse struct {
	Data struct {
		IPAddress            string `json:"ipAddress"`
		AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
		CountryCode          string `json:"countryCode"`
		UsageType            string `json:"usageType"`
		ISP                  string `json:"isp"`
		TotalReports         int    `json:"totalReports"`
		LastReportedAt       string `json:"lastReportedAt"`
	} `json:"data"`
}

// fetch performs one HTTP lookup against the check endpoint.
func (c *AbuseIPDBClient) fetch(ctx context.Context, ip string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/check", c.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", strconv.Itoa(c.config.MaxAgeDays))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reputation lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		return nil, &httpStatusError{status: resp.StatusCode}
	}

	var parsed checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &Result{
		Provider:    "abuseipdb",
		Supported:   true,
		IP:          ip,
		Reputation:  parsed.Data.AbuseConfidenceScore,
		IsMalicious: parsed.Data.AbuseConfidenceScore >= c.config.MaliciousThreshold,
		CountryCode: parsed.Data.CountryCode,
		UsageType:   parsed.Data.UsageType,
		ISP:         parsed.Data.ISP,
	}
	if parsed.Data.LastReportedAt != "" {
		if ts, err := time.Parse(time.RFC3339, parsed.Data.LastReportedAt); err == nil {
			result.LastReported = &ts
		}
	}
	return result, nil
}

// unsupported builds the fallback result for a failed lookup.
func (c *AbuseIPDBClient) unsupported(ip, reason string) *Result {
	logging.Debug().Str("ip", ip).Str("reason", reason).Msg("reputation lookup unsupported")
	return &Result{
		Provider:  "abuseipdb",
		Supported: false,
		IP:        ip,
		Reason:    reason,
	}
}

// failureReason maps a lookup error to a reason code.
func failureReason(err error) string {
	var statusErr *httpStatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http_%d", statusErr.status)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ReasonCircuitOpen
	default:
		return ReasonException
	}
}

// breakerStateValue maps gobreaker states to gauge values.
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
