// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package services

import (
	"context"
)

// SyncRunner matches the sync manager's blocking Run loop.
type SyncRunner interface {
	Run(ctx context.Context) error
}

// SyncService wraps the sync manager as a supervised service. The manager's
// Run already blocks until cancellation, so the wrapper only contributes
// the service name.
type SyncService struct {
	manager SyncRunner
	name    string
}

// NewSyncService creates a sync service wrapper.
func NewSyncService(manager SyncRunner) *SyncService {
	return &SyncService{
		manager: manager,
		name:    "sync-manager",
	}
}

// Serve implements suture.Service.
func (s *SyncService) Serve(ctx context.Context) error {
	return s.manager.Run(ctx)
}

// String implements fmt.Stringer; suture uses it to name the service in
// event logs.
func (s *SyncService) String() string {
	return s.name
}
