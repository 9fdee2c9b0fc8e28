// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

/*
Package sync orchestrates CVE synchronization from the NVD API to the database.

This package implements the core business logic for pulling vulnerability
records from the NVD CVE API 2.0, mapping them to the internal record shape,
and upserting them idempotently. It provides a one-time chunked historical
import, recurring incremental imports driven by the last-modified watermark,
manual sync triggers, and circuit breaker protection for fault tolerance.

Key Components:

  - Manager: Orchestrates initial and incremental sync, gated by the
    cross-replica leader lock and an in-process mutex
  - Fetcher: Drains one date window page by page with rate limiting and
    fixed-delay retry of transient failures
  - NVDClient: Retry-free HTTP client that classifies responses into
    rate-limited, transient, and malformed errors
  - Circuit Breaker: Automatic failure detection and recovery around the
    remote client
  - PlanWindows: Splits an arbitrary date range into gap-free windows no
    wider than the API's maximum span

Architecture:

A sync operation is a strict pipeline per window:

1. Plan: Split the date range into windows of at most the configured span
2. Fetch: Drain each window's pages sequentially via startIndex pagination
3. Map: Convert API vulnerability objects into flat CVE records
4. Store: Upsert records in batches, tallying inserts versus updates

Initial sync walks the published axis from the configured epoch; incremental
sync walks the last-modified axis from the watermark, which is derived from
the data itself (max last_modified in the store) rather than tracked
separately.

Fault Tolerance:

  - Per-window isolation: a failed window is logged and counted, and the
    initial sync continues with the next window
  - Fixed-delay retry: transient failures and HTTP 429 are retried up to the
    configured attempt budget, sleeping the configured delay between tries
  - Circuit Breaker: failure-rate tripping with a timed open state
  - Persistence failures abort the operation; the idempotent upsert makes
    re-running safe

Thread Safety:

The Manager is fully thread-safe. An in-process mutex rejects overlapping
operations without blocking, and the leader lock excludes other replicas.

See Also:

  - internal/database: Data persistence, watermark, and leader lock
  - internal/config: Configuration management
  - internal/models/nvd: NVD API response structures
  - internal/metrics: Prometheus metrics
*/
package sync
