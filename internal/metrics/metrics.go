// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

// Package metrics exposes Prometheus instrumentation for vulnsync:
// sync operations, remote API requests, circuit breaker state, database
// query performance, and drill-down traversal counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync Metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vulnsync_sync_duration_seconds",
			Help:    "Duration of sync operations in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
		},
	)

	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnsync_sync_records_total",
			Help: "Total CVE records applied by sync operations",
		},
		[]string{"result"}, // "added", "updated"
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnsync_sync_errors_total",
			Help: "Total sync errors by stage",
		},
		[]string{"stage"}, // "fetch", "persist", "watermark"
	)

	SyncWindowsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vulnsync_sync_windows_failed_total",
			Help: "Total windows abandoned after exhausting the retry budget",
		},
	)

	SyncSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vulnsync_sync_skipped_total",
			Help: "Sync cycles skipped because another replica held the leader lock",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vulnsync_sync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful sync operation",
		},
	)

	// Remote API Metrics
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnsync_remote_requests_total",
			Help: "Remote API requests by API and outcome",
		},
		[]string{"api", "outcome"}, // api: "nvd", "github"; outcome: "success", "rate_limited", "error"
	)

	RemoteRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnsync_remote_retries_total",
			Help: "Remote request retries by API",
		},
		[]string{"api"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vulnsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnsync_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vulnsync_db_query_duration_seconds",
			Help:    "Duration of Postgres queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnsync_db_query_errors_total",
			Help: "Total Postgres query errors",
		},
		[]string{"operation"},
	)

	// Drill-down Metrics
	DrilldownRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnsync_drilldown_requests_total",
			Help: "GraphQL requests issued per drill-down axis",
		},
		[]string{"axis"}, // "team", "repo", "alert"
	)

	DrilldownDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vulnsync_drilldown_duration_seconds",
			Help:    "Duration of full hierarchy materializations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vulnsync_api_requests_total",
			Help: "HTTP API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vulnsync_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// ObserveDBQuery records the duration of a database operation and counts the
// error when there is one.
func ObserveDBQuery(operation string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordSyncOperation records the summary metrics of one sync operation.
func RecordSyncOperation(duration time.Duration, added, updated int) {
	SyncDuration.Observe(duration.Seconds())
	SyncRecords.WithLabelValues("added").Add(float64(added))
	SyncRecords.WithLabelValues("updated").Add(float64(updated))
	SyncLastSuccess.SetToCurrentTime()
}
