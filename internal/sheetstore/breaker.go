// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package sheetstore

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/texperia/gatekeeper/internal/logging"
	"github.com/texperia/gatekeeper/internal/metrics"
)

// newBreaker builds the circuit breaker guarding Sheets API calls. When the
// remote store is down or rate-limited, open-circuit rejections fail fast
// instead of burning quota; the reconciliation loop simply retries rows on a
// later cycle.
//
// Opens after a 60% failure rate with at least 10 requests in a one-minute
// window; waits two minutes before probing half-open with up to 3 requests.
func newBreaker() *gobreaker.CircuitBreaker[[][]interface{}] {
	return gobreaker.NewCircuitBreaker[[][]interface{}](gobreaker.Settings{
		Name:        "sheets-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Sheets circuit breaker state transition")
			metrics.CircuitBreakerState.Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
