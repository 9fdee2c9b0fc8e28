// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

/*
Package main is the entry point for the vulnsync server.

Vulnsync keeps a Postgres mirror of the NVD CVE database up to date across a
replica set. One replica at a time, elected through a Postgres advisory
lock, performs a chunked historical import and then recurring incremental
imports driven by the stored last-modified watermark. A small HTTP API
serves the stored records, manual sync triggers, and the materialized GitHub
team security-alert hierarchy.

Startup order:

 1. Configuration: Koanf v2 with defaults, optional config.yaml, and
    VULNSYNC_-prefixed environment variables
 2. Logging: zerolog, JSON by default
 3. Database: pgx connection pool, optional schema migration
 4. Sync: circuit-broken NVD client, rate-limited fetcher, leader lock,
    sync manager
 5. Supervision: suture tree running the sync manager and HTTP server

The server shuts down gracefully on SIGINT and SIGTERM: the supervisor
cancels its services, the HTTP server drains in-flight requests, and a
running sync stops at the next window boundary.
*/
package main
