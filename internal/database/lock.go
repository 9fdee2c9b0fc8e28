// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kestrelsec/vulnsync/internal/logging"
)

// LeaderLock is an exclusive, non-blocking distributed lock built on Postgres
// session-level advisory locks. All replicas contend on the same fixed key;
// acquisition never queues. The lock has no timeout: it is held until
// Release or until the holding session terminates, so a multi-hour sync
// cannot lose it mid-run.
//
// A dedicated connection is pinned from the pool for the lock's lifetime
// because advisory locks are scoped to the session that took them; releasing
// through any other pooled connection would be a no-op.
//
// The lock is not reentrant.
type LeaderLock struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn // non-nil while held
}

// NewLeaderLock creates a lock on the store's pool for the given key.
func (s *Store) NewLeaderLock(key int64) *LeaderLock {
	return &LeaderLock{pool: s.pool, key: key}
}

// TryAcquire attempts to take the lock without blocking. Returns false when
// another session (any replica, this one included) already holds the key.
func (l *LeaderLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return false, fmt.Errorf("leader lock %d already held by this process", l.key)
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("pg_try_advisory_lock(%d): %w", l.key, err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool. It is safe
// to call only after a successful TryAcquire, and exactly once.
func (l *LeaderLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("leader lock %d is not held", l.key)
	}

	var released bool
	err := l.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, l.key).Scan(&released)
	l.conn.Release()
	l.conn = nil

	if err != nil {
		// The session going away releases the advisory lock server-side, so
		// the lock is not leaked even on an unlock error.
		return fmt.Errorf("pg_advisory_unlock(%d): %w", l.key, err)
	}
	if !released {
		return fmt.Errorf("pg_advisory_unlock(%d) reported lock not held", l.key)
	}
	return nil
}

// WithLock runs op while holding the lock. When the lock is busy the call
// returns ran=false with a nil error: skipping a cycle is a normal outcome,
// not a failure. The lock is released in all paths once op finishes.
func (l *LeaderLock) WithLock(ctx context.Context, op func(ctx context.Context) error) (ran bool, err error) {
	acquired, err := l.TryAcquire(ctx)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}

	defer func() {
		// Release with a background-derived context: the op's context may be
		// canceled, but the unlock must still go out.
		if releaseErr := l.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			logging.Error().Err(releaseErr).Int64("key", l.key).Msg("Failed to release leader lock")
			if err == nil {
				err = releaseErr
			}
		}
	}()

	return true, op(ctx)
}
