// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the full HTTP surface.
func NewRouter(handler *Handler, cfg MiddlewareConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger())
	r.Use(CORS(cfg))

	// Scan endpoints carry the per-IP rate limit; the desk scanner is the
	// only legitimate client.
	r.Group(func(r chi.Router) {
		r.Use(ScanRateLimit(cfg))
		r.Post("/scan", handler.Scan)
		r.Get("/scan", handler.ScanQR)
	})

	r.Post("/reconcile", handler.Reconcile)
	r.Get("/health", handler.Health)
	r.Get("/test-connection", handler.TestConnection)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
