// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

// Package metrics exposes Prometheus instrumentation for the check-in
// pipeline. Metrics are served at /metrics in Prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileCycles counts reconciliation cycles by result
	// (completed, skipped).
	ReconcileCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_reconcile_cycles_total",
		Help: "Reconciliation cycles by result (completed, skipped)",
	}, []string{"result"})

	// ReconcileCycleDuration observes cycle wall time.
	ReconcileCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gatekeeper_reconcile_cycle_duration_seconds",
		Help:    "Duration of completed reconciliation cycles",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
	})

	// RowsCredentialed counts rows issued a credential, per organization.
	RowsCredentialed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_rows_credentialed_total",
		Help: "Rows issued a credential, per organization",
	}, []string{"organization"})

	// RowErrors counts per-row processing failures that degraded a row to
	// retry-next-cycle.
	RowErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_row_errors_total",
		Help: "Per-row reconciliation failures, per organization",
	}, []string{"organization"})

	// Redemptions counts redemption attempts by outcome
	// (success, invalid_format, not_found, already_redeemed, error).
	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_redemptions_total",
		Help: "Redemption attempts by outcome",
	}, []string{"outcome"})

	// Emails counts email deliveries by kind (confirmation, attendance)
	// and result (sent, failed).
	Emails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_emails_total",
		Help: "Email deliveries by kind and result",
	}, []string{"kind", "result"})

	// SheetRequests counts remote tabular-store calls by operation
	// (read, write) and result (success, failure, rejected).
	SheetRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_sheet_requests_total",
		Help: "Google Sheets API calls by operation and result",
	}, []string{"operation", "result"})

	// CircuitBreakerState is the sheets circuit breaker state
	// (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gatekeeper_sheets_circuit_breaker_state",
		Help: "Sheets API circuit breaker state (0=closed, 1=half-open, 2=open)",
	})

	// HeaderCacheLookups counts header cache lookups by result (hit, miss).
	HeaderCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_header_cache_lookups_total",
		Help: "Header cache lookups by result",
	}, []string{"result"})
)
