// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vigil/internal/audit"
	"github.com/tomtom215/vigil/internal/response"
	"github.com/tomtom215/vigil/internal/websocket"
)

// maxEventBodyBytes bounds the POST /events request body.
const maxEventBodyBytes = 64 << 10

// Handler holds the dependencies for all management API endpoints.
// auditor and hub may be nil; the corresponding endpoints then report
// service unavailable.
type Handler struct {
	system  *response.System
	auditor *audit.Logger
	hub     *websocket.Hub
	started time.Time
}

// NewHandler creates the API handler set.
func NewHandler(system *response.System, auditor *audit.Logger, hub *websocket.Hub) *Handler {
	return &Handler{
		system:  system,
		auditor: auditor,
		hub:     hub,
		started: time.Now(),
	}
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// HealthLive handles GET /api/v1/health/live. Process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "response system not initialized", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// SubmitEvent handles POST /api/v1/events. The event is scored and the
// resulting decision, including any executed actions, is returned.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	body := http.MaxBytesReader(w, r.Body, maxEventBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", err)
		return
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		writeEnvelope(w, http.StatusBadRequest, &APIResponse{
			Status:   "error",
			Metadata: Metadata{Timestamp: time.Now()},
			Error:    apiErr,
		})
		return
	}

	decision := h.system.ProcessSecurityEvent(r.Context(), req.toEvent())
	respondJSON(w, http.StatusOK, decision)
}

// ListBlocks handles GET /api/v1/blocks.
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks := h.system.BlockedIPs()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"blocks": blocks,
		"count":  len(blocks),
	})
}

// GetBlock handles GET /api/v1/blocks/{ip}.
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	record, ok := h.system.BlockRecordFor(ip)
	if !ok {
		respondError(w, http.StatusNotFound, "BLOCK_NOT_FOUND", "no active block for this address", nil)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// Unblock handles DELETE /api/v1/blocks/{ip}. The optional JSON body may
// carry an unblock reason for the audit trail.
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")

	reason := "manual unblock via API"
	if r.Body != nil && r.ContentLength != 0 {
		var req UnblockRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", err)
			return
		}
		if apiErr := validateRequest(&req); apiErr != nil {
			writeEnvelope(w, http.StatusBadRequest, &APIResponse{
				Status:   "error",
				Metadata: Metadata{Timestamp: time.Now()},
				Error:    apiErr,
			})
			return
		}
		if req.Reason != "" {
			reason = req.Reason
		}
	}

	if !h.system.UnblockIP(ip, reason) {
		respondError(w, http.StatusNotFound, "BLOCK_NOT_FOUND", "no active block for this address", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"source_ip": ip,
		"result":    "unblocked",
	})
}

// GetThreat handles GET /api/v1/threats/{ip}. Returns the most recent
// assessment for a source.
func (h *Handler) GetThreat(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	assessment, ok := h.system.ThreatFor(ip)
	if !ok {
		respondError(w, http.StatusNotFound, "THREAT_NOT_FOUND", "no assessment recorded for this address", nil)
		return
	}
	respondJSON(w, http.StatusOK, assessment)
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.system.GetSystemStats())
}

// Cleanup handles POST /api/v1/cleanup, forcing an expiry sweep outside
// the background schedule.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.system.Cleanup())
}

// ListIncidents handles GET /api/v1/incidents with optional filtering.
//
// Query parameters:
//   - kind: incident kind, repeatable (assessment, block, unblock, rate_limit, cleanup)
//   - min_severity: info, warning or critical
//   - source_ip: exact source address match
//   - start, end: RFC3339 time bounds
//   - limit: maximum results (default 100, cap 1000)
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		respondError(w, http.StatusServiceUnavailable, "AUDIT_DISABLED", "audit trail is not enabled", nil)
		return
	}

	filter, apiErr := incidentFilterFromQuery(r)
	if apiErr != nil {
		writeEnvelope(w, http.StatusBadRequest, &APIResponse{
			Status:   "error",
			Metadata: Metadata{Timestamp: time.Now()},
			Error:    apiErr,
		})
		return
	}

	incidents, err := h.auditor.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to query incidents", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// WebSocket handles GET /api/v1/ws, upgrading to the realtime decision feed.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "WEBSOCKET_DISABLED", "realtime feed is not enabled", nil)
		return
	}
	websocket.ServeWS(h.hub, w, r)
}

func incidentFilterFromQuery(r *http.Request) (audit.QueryFilter, *APIError) {
	filter := audit.QueryFilter{Limit: 100}
	q := r.URL.Query()

	for _, kind := range q["kind"] {
		filter.Kinds = append(filter.Kinds, audit.Kind(kind))
	}

	if v := q.Get("min_severity"); v != "" {
		switch audit.Severity(v) {
		case audit.SeverityInfo, audit.SeverityWarning, audit.SeverityCritical:
			filter.MinSeverity = audit.Severity(v)
		default:
			return filter, &APIError{
				Code:    "VALIDATION_ERROR",
				Message: "min_severity must be info, warning or critical",
			}
		}
	}

	filter.SourceIP = q.Get("source_ip")

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, &APIError{Code: "VALIDATION_ERROR", Message: "start must be RFC3339"}
		}
		filter.StartTime = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, &APIError{Code: "VALIDATION_ERROR", Message: "end must be RFC3339"}
		}
		filter.EndTime = &t
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, &APIError{Code: "VALIDATION_ERROR", Message: "limit must be a positive integer"}
		}
		if limit > 1000 {
			limit = 1000
		}
		filter.Limit = limit
	}

	return filter, nil
}
