// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package sync

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kestrelsec/vulnsync/internal/config"
	"github.com/kestrelsec/vulnsync/internal/logging"
	"github.com/kestrelsec/vulnsync/internal/metrics"
	"github.com/kestrelsec/vulnsync/internal/models/nvd"
)

// CircuitBreakerClient wraps NVDClient with a circuit breaker so a down or
// degraded NVD API stops consuming the retry budget and rate-limit quota of
// every window in a long sync.
//
// The breaker uses real time for its interval and timeout; tests exercise
// the wrapped client directly.
type CircuitBreakerClient struct {
	client NVDClientInterface
	cb     *gobreaker.CircuitBreaker[*nvd.CvesResponse]
	name   string
}

// NewCircuitBreakerClient creates an NVD client with circuit breaker
// protection. The circuit opens after a 60% failure rate over at least 10
// requests and probes again after 2 minutes.
func NewCircuitBreakerClient(cfg *config.NVDConfig) *CircuitBreakerClient {
	return wrapWithBreaker(NewNVDClient(cfg), "nvd-api")
}

// wrapWithBreaker builds the breaker around an arbitrary client. Split out
// for tests that substitute a mock.
func wrapWithBreaker(client NVDClientInterface, name string) *CircuitBreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*nvd.CvesResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: name}
}

// execute wraps one API call with circuit breaker accounting.
func (cbc *CircuitBreakerClient) execute(fn func() (*nvd.CvesResponse, error)) (*nvd.CvesResponse, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	return result, nil
}

// FetchPage implements NVDClientInterface.
func (cbc *CircuitBreakerClient) FetchPage(ctx context.Context, axis DateAxis, window Window, startIndex, resultsPerPage int) (*nvd.CvesResponse, error) {
	return cbc.execute(func() (*nvd.CvesResponse, error) {
		return cbc.client.FetchPage(ctx, axis, window, startIndex, resultsPerPage)
	})
}

// FetchCveByID implements NVDClientInterface.
func (cbc *CircuitBreakerClient) FetchCveByID(ctx context.Context, cveID string) (*nvd.CvesResponse, error) {
	return cbc.execute(func() (*nvd.CvesResponse, error) {
		return cbc.client.FetchCveByID(ctx, cveID)
	})
}

// stateToString converts a gobreaker state to its metric label.
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

// stateToFloat converts a gobreaker state to its gauge value.
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
