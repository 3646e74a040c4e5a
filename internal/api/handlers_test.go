// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/audit"
	"github.com/tomtom215/vigil/internal/response"
	"github.com/tomtom215/vigil/internal/threat"
)

const testToken = "test-token"

type testEnv struct {
	router  http.Handler
	system  *response.System
	auditor *audit.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	auditor := audit.NewLogger(audit.NewMemoryStore(1000), audit.DefaultConfig())
	t.Cleanup(func() { auditor.Close() })

	aggregator := threat.NewAggregator(threat.NewDefaultRuleEngine(), threat.NewHistory(0, 0), nil)
	system := response.NewSystem(response.DefaultConfig(), aggregator,
		response.WithIncidentRecorder(auditor))

	handler := NewHandler(system, auditor, nil)
	mw := NewMiddleware(&MiddlewareConfig{
		AuthToken:          testToken,
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  10000,
		RateLimitWindow:    time.Minute,
	})

	return &testEnv{
		router:  NewRouter(handler, mw).Setup(),
		system:  system,
		auditor: auditor,
	}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func (env *testEnv) do(t *testing.T, method, path string, body string, authed bool) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var resp envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func eventBody(eventType, severity, sourceIP string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"event_type": eventType,
		"severity":   severity,
		"source_ip":  sourceIP,
	})
	return string(body)
}

func TestHealthEndpointsNeedNoAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"} {
		rec, resp := env.do(t, http.MethodGet, path, "", false)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if resp.Status != "success" {
			t.Errorf("GET %s status = %q, want success", path, resp.Status)
		}
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/health", "", false)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/stats", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated stats = %d, want 401", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "UNAUTHORIZED" {
		t.Errorf("error = %+v, want UNAUTHORIZED", resp.Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", rec2.Code)
	}

	rec3, _ := env.do(t, http.MethodGet, "/api/v1/stats", "", true)
	if rec3.Code != http.StatusOK {
		t.Errorf("authenticated stats = %d, want 200", rec3.Code)
	}

	// Websocket clients present the token as a query parameter.
	req4 := httptest.NewRequest(http.MethodGet, "/api/v1/stats?access_token="+testToken, nil)
	rec4 := httptest.NewRecorder()
	env.router.ServeHTTP(rec4, req4)
	if rec4.Code != http.StatusOK {
		t.Errorf("query token stats = %d, want 200", rec4.Code)
	}
}

func TestSubmitEventValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "not json", body: "{nope", wantCode: "INVALID_JSON"},
		{name: "missing type", body: `{"source_ip":"10.0.0.1"}`, wantCode: "VALIDATION_ERROR"},
		{name: "bad severity", body: eventBody("auth.login.failed", "apocalyptic", "10.0.0.1"), wantCode: "VALIDATION_ERROR"},
		{name: "bad ip", body: eventBody("auth.login.failed", "high", "not-an-ip"), wantCode: "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, "/api/v1/events", tt.body, true)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestBlockLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ip := "198.51.100.7"

	var decision response.Decision
	for i := 0; i < 2; i++ {
		rec, resp := env.do(t, http.MethodPost, "/api/v1/events",
			eventBody(string(threat.EventUnauthorizedAccess), "critical", ip), true)
		if rec.Code != http.StatusOK {
			t.Fatalf("submit event %d = %d, body %s", i, rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(resp.Data, &decision); err != nil {
			t.Fatalf("decoding decision: %v", err)
		}
	}
	if decision.Action != response.ActionBlockIP {
		t.Fatalf("second decision action = %q, want %q", decision.Action, response.ActionBlockIP)
	}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/blocks", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("list blocks = %d", rec.Code)
	}
	var list struct {
		Count  int                    `json:"count"`
		Blocks []response.BlockRecord `json:"blocks"`
	}
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		t.Fatalf("decoding block list: %v", err)
	}
	if list.Count != 1 || list.Blocks[0].IP != ip {
		t.Fatalf("block list = %+v, want one block for %s", list, ip)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/blocks/"+ip, "", true)
	if rec.Code != http.StatusOK {
		t.Errorf("get block = %d, want 200", rec.Code)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/blocks/"+ip, `{"reason":"false positive"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("unblock = %d, want 200", rec.Code)
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/blocks/"+ip, "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get block after unblock = %d, want 404", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "BLOCK_NOT_FOUND" {
		t.Errorf("error = %+v, want BLOCK_NOT_FOUND", resp.Error)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/blocks/"+ip, "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double unblock = %d, want 404", rec.Code)
	}
}

func TestGetThreat(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/threats/203.0.113.9", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown threat = %d, want 404", rec.Code)
	}

	env.do(t, http.MethodPost, "/api/v1/events",
		eventBody(string(threat.EventLoginFailed), "medium", "203.0.113.9"), true)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/threats/203.0.113.9", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("threat after event = %d, want 200", rec.Code)
	}
	var assessment threat.Assessment
	if err := json.Unmarshal(resp.Data, &assessment); err != nil {
		t.Fatalf("decoding assessment: %v", err)
	}
	if assessment.Level == "" || len(assessment.Factors) == 0 {
		t.Errorf("assessment = %+v, want populated level and factors", assessment)
	}
}

func TestListIncidents(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/v1/events",
		eventBody(string(threat.EventLoginFailed), "medium", "203.0.113.20"), true)

	// Audit writes are async; poll until the assessment lands.
	deadline := time.Now().Add(5 * time.Second)
	var incidents []audit.Incident
	for time.Now().Before(deadline) {
		rec, resp := env.do(t, http.MethodGet, "/api/v1/incidents?kind=assessment&source_ip=203.0.113.20", "", true)
		if rec.Code != http.StatusOK {
			t.Fatalf("list incidents = %d", rec.Code)
		}
		var data struct {
			Incidents []audit.Incident `json:"incidents"`
		}
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			t.Fatalf("decoding incidents: %v", err)
		}
		if len(data.Incidents) > 0 {
			incidents = data.Incidents
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(incidents) == 0 {
		t.Fatal("no assessment incident recorded within deadline")
	}
	if incidents[0].Kind != audit.KindAssessment {
		t.Errorf("incident kind = %q, want assessment", incidents[0].Kind)
	}

	// A time window around now matches; one entirely in the past does not.
	start := url.QueryEscape(time.Now().Add(-time.Hour).Format(time.RFC3339))
	end := url.QueryEscape(time.Now().Add(time.Hour).Format(time.RFC3339))
	rec, resp := env.do(t, http.MethodGet,
		"/api/v1/incidents?kind=assessment&start="+start+"&end="+end, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("list incidents with window = %d", rec.Code)
	}
	var windowed struct {
		Incidents []audit.Incident `json:"incidents"`
	}
	if err := json.Unmarshal(resp.Data, &windowed); err != nil {
		t.Fatalf("decoding incidents: %v", err)
	}
	if len(windowed.Incidents) == 0 {
		t.Error("window covering now should match the recorded incident")
	}

	staleEnd := url.QueryEscape(time.Now().Add(-30 * time.Minute).Format(time.RFC3339))
	rec, resp = env.do(t, http.MethodGet, "/api/v1/incidents?end="+staleEnd, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("list incidents with past window = %d", rec.Code)
	}
	var stale struct {
		Incidents []audit.Incident `json:"incidents"`
	}
	if err := json.Unmarshal(resp.Data, &stale); err != nil {
		t.Fatalf("decoding incidents: %v", err)
	}
	if len(stale.Incidents) != 0 {
		t.Errorf("past-only window matched %d incidents, want 0", len(stale.Incidents))
	}
}

func TestListIncidentsRejectsBadParams(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/v1/incidents?limit=nope",
		"/api/v1/incidents?limit=-1",
		"/api/v1/incidents?min_severity=shrug",
		"/api/v1/incidents?start=yesterday",
	} {
		rec, resp := env.do(t, http.MethodGet, path, "", true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, rec.Code)
		}
		if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
			t.Errorf("GET %s error = %+v, want VALIDATION_ERROR", path, resp.Error)
		}
	}
}

func TestCleanupEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/cleanup", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup = %d, want 200", rec.Code)
	}
	var result response.CleanupResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		t.Fatalf("decoding cleanup result: %v", err)
	}
	if result.Timestamp.IsZero() {
		t.Error("cleanup result has zero timestamp")
	}
}

func TestWebSocketUnavailableWithoutHub(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/ws", "", true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ws without hub = %d, want 503", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "WEBSOCKET_DISABLED" {
		t.Errorf("error = %+v, want WEBSOCKET_DISABLED", resp.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vigil_") {
		t.Error("metrics output does not contain vigil_ series")
	}
}
