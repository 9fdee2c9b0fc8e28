// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/kestrelsec/vulnsync/internal/config"
	"github.com/kestrelsec/vulnsync/internal/logging"
	"github.com/kestrelsec/vulnsync/internal/metrics"
	"github.com/kestrelsec/vulnsync/internal/models"
)

// CveStore is the slice of the database the orchestrator needs.
type CveStore interface {
	UpsertCves(ctx context.Context, records []models.CveRecord) (models.UpsertResult, error)
	MaxModifiedTimestamp(ctx context.Context) (time.Time, bool, error)
}

// LeaderLocker gates sync operations to one replica at a time.
type LeaderLocker interface {
	// WithLock runs op while holding the lock; ran is false when the lock
	// was busy and op never started.
	WithLock(ctx context.Context, op func(ctx context.Context) error) (ran bool, err error)
}

// RecordFetcher pulls CVE records from the remote API.
type RecordFetcher interface {
	FetchWindow(ctx context.Context, axis DateAxis, window Window) ([]models.CveRecord, error)
	FetchCve(ctx context.Context, cveID string) (*models.CveRecord, error)
}

// Manager orchestrates CVE synchronization: a one-time chunked historical
// import and recurring incremental imports, both gated by the leader lock so
// at most one replica syncs at a time.
type Manager struct {
	cfg     *config.Config
	store   CveStore
	lock    LeaderLocker
	fetcher RecordFetcher

	// now is injectable for deterministic window planning in tests.
	now func() time.Time

	// syncMu prevents overlapping operations within this process; the
	// leader lock only excludes other replicas.
	syncMu gosync.Mutex

	mu         gosync.Mutex
	runCtx     context.Context
	lastReport *models.SyncReport
}

// NewManager creates a sync Manager.
func NewManager(cfg *config.Config, store CveStore, lock LeaderLocker, fetcher RecordFetcher) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   store,
		lock:    lock,
		fetcher: fetcher,
		now:     time.Now,
	}
}

// LastReport returns the most recent completed sync report, or nil.
func (m *Manager) LastReport() *models.SyncReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReport
}

// InitialSync imports the full CVE history from the configured epoch to now.
// The range is split into windows processed strictly sequentially; a
// window's fatal fetch failure is logged and counted, and the sync moves on
// to the next window. Persistence failures abort the operation.
//
// The operation is meaningful only when the store is empty; re-running it is
// harmless because the upsert is idempotent.
//
// ran is false when another replica held the leader lock, or another sync is
// already running in this process.
func (m *Manager) InitialSync(ctx context.Context) (report *models.SyncReport, ran bool, err error) {
	return m.withExclusivity(ctx, func(ctx context.Context) (*models.SyncReport, error) {
		return m.runInitialSync(ctx)
	})
}

// IncrementalSync imports records modified since the watermark, in a single
// window ending at now. With no watermark yet (a missing-watermark edge
// case; initial sync normally runs first) the start bound falls back to the
// configured lookback before now.
func (m *Manager) IncrementalSync(ctx context.Context) (report *models.SyncReport, ran bool, err error) {
	return m.withExclusivity(ctx, func(ctx context.Context) (*models.SyncReport, error) {
		return m.runIncrementalSync(ctx)
	})
}

// withExclusivity layers the in-process mutex and the cross-replica leader
// lock around one sync operation.
func (m *Manager) withExclusivity(ctx context.Context, op func(ctx context.Context) (*models.SyncReport, error)) (*models.SyncReport, bool, error) {
	if !m.syncMu.TryLock() {
		logging.Info().Msg("Sync already running in this process, skipping")
		metrics.SyncSkipped.Inc()
		return nil, false, nil
	}
	defer m.syncMu.Unlock()
	return m.withLeadership(ctx, op)
}

// withLeadership runs op under the cross-replica leader lock. The caller
// must hold syncMu.
func (m *Manager) withLeadership(ctx context.Context, op func(ctx context.Context) (*models.SyncReport, error)) (*models.SyncReport, bool, error) {
	var report *models.SyncReport
	ran, err := m.lock.WithLock(ctx, func(ctx context.Context) error {
		var opErr error
		report, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		return nil, ran, err
	}
	if !ran {
		logging.Info().Msg("Leader lock held by another replica, skipping sync cycle")
		metrics.SyncSkipped.Inc()
		return nil, false, nil
	}

	m.mu.Lock()
	m.lastReport = report
	m.mu.Unlock()
	return report, true, nil
}

// TriggerSync starts an incremental sync in the background. Returns false
// without starting anything when a sync is already running in this process;
// a replica-level skip surfaces later through logs and metrics.
func (m *Manager) TriggerSync() bool {
	if !m.syncMu.TryLock() {
		logging.Info().Msg("Sync already running in this process, trigger skipped")
		metrics.SyncSkipped.Inc()
		return false
	}

	go func() {
		defer m.syncMu.Unlock()
		if _, _, err := m.withLeadership(m.triggerContext(), m.runIncrementalSync); err != nil {
			logging.Error().Err(err).Msg("Triggered sync failed")
		}
	}()
	return true
}

// triggerContext bounds background triggered syncs to the Run lifecycle so
// they stop at shutdown together with the scheduled ones. Before Run has
// started there is no lifecycle to follow yet.
func (m *Manager) triggerContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runCtx != nil {
		return m.runCtx
	}
	return context.Background()
}

// runInitialSync executes the chunked historical import. Called with both
// locks held.
func (m *Manager) runInitialSync(ctx context.Context) (*models.SyncReport, error) {
	start := m.now()
	maxSpan := time.Duration(m.cfg.Sync.MaxWindowDays) * 24 * time.Hour
	windows := PlanWindows(m.cfg.Sync.InitialEpoch, start, maxSpan)

	logging.Info().
		Int("windows", len(windows)).
		Time("epoch", m.cfg.Sync.InitialEpoch).
		Msg("Starting initial sync")

	report := &models.SyncReport{Operation: "initial", Windows: len(windows)}

	for i, window := range windows {
		// Cancellation is checked at window boundaries so a shutdown during
		// a multi-hour import stops at a resumable point.
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		// Initial backfill reads the published axis: records never modified
		// after publication are invisible on the modified axis.
		records, err := m.fetcher.FetchWindow(ctx, AxisPublished, window)
		if err != nil {
			logging.Error().
				Err(err).
				Int("window", i+1).
				Time("start", window.Start).
				Time("end", window.End).
				Msg("Window fetch failed, continuing with next window")
			metrics.SyncErrors.WithLabelValues("fetch").Inc()
			metrics.SyncWindowsFailed.Inc()
			report.FailedWindows++
			continue
		}

		if err := m.persist(ctx, records, report); err != nil {
			return report, err
		}

		logging.Info().
			Int("window", i+1).
			Int("windows", len(windows)).
			Int("records", len(records)).
			Msg("Window processed")
	}

	m.finalize(report, start)
	return report, nil
}

// runIncrementalSync executes a single-window sync from the watermark to
// now. Called with both locks held.
func (m *Manager) runIncrementalSync(ctx context.Context) (*models.SyncReport, error) {
	start := m.now()

	since, ok, err := m.store.MaxModifiedTimestamp(ctx)
	if err != nil {
		metrics.SyncErrors.WithLabelValues("watermark").Inc()
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	if !ok {
		since = start.Add(-m.cfg.Sync.FallbackLookback)
		logging.Warn().
			Time("since", since).
			Msg("No watermark found, falling back to lookback window")
	}

	window := Window{Start: since, End: start}
	report := &models.SyncReport{Operation: "incremental", Windows: 1}

	records, err := m.fetcher.FetchWindow(ctx, AxisLastModified, window)
	if err != nil {
		metrics.SyncErrors.WithLabelValues("fetch").Inc()
		return report, fmt.Errorf("incremental fetch: %w", err)
	}

	if err := m.persist(ctx, records, report); err != nil {
		return report, err
	}

	m.finalize(report, start)
	return report, nil
}

// ResyncCve re-fetches one CVE by identifier and upserts it. Returns nil
// when the remote API does not know the ID.
func (m *Manager) ResyncCve(ctx context.Context, cveID string) (*models.CveRecord, error) {
	record, err := m.fetcher.FetchCve(ctx, cveID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	if _, err := m.store.UpsertCves(ctx, []models.CveRecord{*record}); err != nil {
		metrics.SyncErrors.WithLabelValues("persist").Inc()
		return nil, fmt.Errorf("persist %s: %w", cveID, err)
	}

	logging.Ctx(ctx).Info().Str("cve", cveID).Msg("Record resynced")
	return record, nil
}

// persist upserts one window's records and folds the tally into the report.
// A persistence failure is fatal to the operation.
func (m *Manager) persist(ctx context.Context, records []models.CveRecord, report *models.SyncReport) error {
	if len(records) == 0 {
		return nil
	}

	result, err := m.store.UpsertCves(ctx, records)
	if err != nil {
		metrics.SyncErrors.WithLabelValues("persist").Inc()
		return fmt.Errorf("persist records: %w", err)
	}

	report.Fetched += len(records)
	report.Added += result.Added
	report.Updated += result.Updated
	return nil
}

// finalize stamps the report's duration and emits the summary.
func (m *Manager) finalize(report *models.SyncReport, start time.Time) {
	report.Duration = m.now().Sub(start)
	metrics.RecordSyncOperation(report.Duration, report.Added, report.Updated)

	logging.Info().
		Str("operation", report.Operation).
		Int("windows", report.Windows).
		Int("failed_windows", report.FailedWindows).
		Int("fetched", report.Fetched).
		Int("added", report.Added).
		Int("updated", report.Updated).
		Dur("duration", report.Duration).
		Msg("Sync completed")
}

// Run drives the sync schedule: an initial import when the store has no
// watermark yet, then incremental syncs every configured interval until the
// context is canceled. Intended to run under process supervision.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	if _, ok, err := m.store.MaxModifiedTimestamp(ctx); err != nil {
		return fmt.Errorf("startup watermark check: %w", err)
	} else if !ok {
		if _, _, err := m.InitialSync(ctx); err != nil {
			// The next ticks fall through to incremental sync, which picks
			// up from whatever the partial import persisted.
			logging.Error().Err(err).Msg("Initial sync failed")
		}
	}

	ticker := time.NewTicker(m.cfg.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, _, err := m.IncrementalSync(ctx); err != nil {
				logging.Error().Err(err).Msg("Incremental sync failed")
			}
		}
	}
}
