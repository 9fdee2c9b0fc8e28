// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

/*
Package api provides HTTP routing and handlers using the chi router.

Endpoints:

  - GET  /healthz: liveness including a database ping
  - GET  /metrics: Prometheus metrics
  - GET  /api/v1/vulnerabilities: stored CVEs, filterable by severity,
    last-modified lower bound, and limit
  - GET  /api/v1/vulnerabilities/{cveID}: single CVE record
  - POST /api/v1/sync: trigger an incremental sync in the background
  - GET  /api/v1/sync/status: most recent completed sync report
  - POST /api/v1/sync/{cveID}: re-fetch one CVE from the remote API
  - GET  /api/v1/teams/alerts: materialize the team alert hierarchy

All responses use the APIResponse envelope. The middleware stack adds
request IDs wired into the logging context, CORS, IP-keyed rate limiting,
and per-route Prometheus metrics.
*/
package api
