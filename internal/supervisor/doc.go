// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

/*
Package supervisor provides process supervision for vulnsync using suture v4.

The tree organizes long-running services into two layers for failure
isolation:

	Root ("vulnsync")
	├── SyncSupervisor ("sync-layer")
	│   └── SyncService (scheduled CVE synchronization)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crash-looping sync layer restarts independently and does not affect the
API layer, which keeps serving reads from the store. Crashed services are
restarted with backoff under configurable failure thresholds, and context
cancellation triggers orderly shutdown with a per-service timeout.

Supervision events are logged through slog via the sutureslog adapter,
bridged into the zerolog-backed logging package.
*/
package supervisor
