// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package api

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/texperia/gatekeeper/internal/logging"
)

// MiddlewareConfig holds the middleware tuning knobs.
type MiddlewareConfig struct {
	// CORSAllowedOrigins is empty by default, requiring explicit
	// configuration before any cross-origin scanner UI can call the API.
	CORSAllowedOrigins []string

	// ScanRateLimit caps scan attempts per client IP per window. The desk
	// scanners are the only legitimate clients; 120/min is generous for
	// them and hostile to token guessing.
	ScanRateLimit   int
	RateLimitWindow time.Duration
}

// DefaultMiddlewareConfig returns secure defaults.
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		CORSAllowedOrigins: []string{},
		ScanRateLimit:      120,
		RateLimitWindow:    time.Minute,
	}
}

// RequestIDWithLogging assigns each request an ID, echoes it in the
// X-Request-ID header, and stores it in the logging context.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORS returns the CORS middleware for the configured origins.
func CORS(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	})
}

// ScanRateLimit returns the per-IP rate limiter for the scan endpoints.
func ScanRateLimit(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	limit := cfg.ScanRateLimit
	if limit <= 0 {
		limit = 120
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).TooManyRequests("Scan rate limit exceeded")
		}),
	)
}

// RequestLogger logs each request at debug level with its outcome.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logging.Ctx(r.Context()).Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
		})
	}
}
