// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

// Package services contains suture.Service adapters for vulnsync's
// long-running components: the HTTP server and the sync manager. Each
// wrapper translates a component's native lifecycle into suture's
// context-aware Serve pattern.
package services
