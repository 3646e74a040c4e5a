// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into the HTTP surface.
type Router struct {
	handler *Handler
	mw      *Middleware
}

// NewRouter creates a router from its parts.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{handler: handler, mw: mw}
}

// Setup configures all HTTP routes using the Chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order. CORS is global
	// so OPTIONS preflights are handled before auth.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger())
	r.Use(SecurityHeaders)
	r.Use(router.mw.CORS())

	// Health endpoints: permissive rate limiting, no auth, so external
	// monitors keep working when the API token rotates.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.mw.RateLimitHealth())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Management API: authenticated and rate limited.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.mw.RateLimit())
		r.Use(router.mw.Authenticate)

		r.Post("/events", router.handler.SubmitEvent)

		r.Get("/blocks", router.handler.ListBlocks)
		r.Get("/blocks/{ip}", router.handler.GetBlock)
		r.Delete("/blocks/{ip}", router.handler.Unblock)

		r.Get("/threats/{ip}", router.handler.GetThreat)
		r.Get("/stats", router.handler.Stats)
		r.Get("/incidents", router.handler.ListIncidents)
		r.Post("/cleanup", router.handler.Cleanup)

		r.Get("/ws", router.handler.WebSocket)
	})

	// Prometheus scrape endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
