// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kestrelsec/vulnsync/internal/config"
	"github.com/kestrelsec/vulnsync/internal/logging"
	"github.com/kestrelsec/vulnsync/internal/metrics"
	"github.com/kestrelsec/vulnsync/internal/models"
	"github.com/kestrelsec/vulnsync/internal/models/nvd"
)

// Sleeper is a cancellable wait, injectable so tests can simulate retry
// delays without wall-clock time.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepWithContext is the production Sleeper.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetcher pulls all CVE records within one window through offset pagination,
// pacing requests to respect the shared NVD rate limit and retrying
// transient failures with a fixed delay.
type Fetcher struct {
	client        NVDClientInterface
	limiter       *rate.Limiter
	pageSize      int
	retryDelay    time.Duration
	retryAttempts int
	sleep         Sleeper
}

// NewFetcher creates a Fetcher from configuration. One Fetcher is shared by
// all windows of a sync operation so the request pacing spans window
// boundaries.
func NewFetcher(client NVDClientInterface, cfg *config.NVDConfig) *Fetcher {
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}
	return &Fetcher{
		client:        client,
		limiter:       rate.NewLimiter(limit, 1),
		pageSize:      cfg.ResultsPerPage,
		retryDelay:    cfg.RetryDelay,
		retryAttempts: cfg.RetryAttempts,
		sleep:         sleepWithContext,
	}
}

// FetchWindow returns every record in the window, in page order. The first
// page's totalResults bounds the offset loop; a reported total of zero stops
// after that single request. Exhausting the retry budget on any page fails
// the whole window.
func (f *Fetcher) FetchWindow(ctx context.Context, axis DateAxis, window Window) ([]models.CveRecord, error) {
	firstPage, err := f.fetchPageWithRetry(ctx, axis, window, 0)
	if err != nil {
		return nil, err
	}

	total := *firstPage.TotalResults
	if total == 0 {
		return nil, nil
	}

	records := make([]models.CveRecord, 0, total)
	records = appendMapped(records, firstPage)

	for offset := f.pageSize; offset < total; offset += f.pageSize {
		page, err := f.fetchPageWithRetry(ctx, axis, window, offset)
		if err != nil {
			return nil, err
		}
		records = appendMapped(records, page)
	}

	return records, nil
}

// FetchCve returns a single record by CVE identifier, or nil when the remote
// API does not know the ID.
func (f *Fetcher) FetchCve(ctx context.Context, cveID string) (*models.CveRecord, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := f.client.FetchCveByID(ctx, cveID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cveID, err)
	}
	if len(resp.Vulnerabilities) == 0 {
		return nil, nil
	}

	record := mapCve(&resp.Vulnerabilities[0].Cve)
	return &record, nil
}

// fetchPageWithRetry requests one page, waiting out the inter-request pacing
// first and retrying transient failures up to the configured budget.
func (f *Fetcher) fetchPageWithRetry(ctx context.Context, axis DateAxis, window Window, offset int) (*nvd.CvesResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= f.retryAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := f.client.FetchPage(ctx, axis, window, offset, f.pageSize)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !isTransient(err) {
			return nil, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == f.retryAttempts {
			break
		}

		metrics.RemoteRetries.WithLabelValues("nvd").Inc()
		event := logging.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", f.retryAttempts).
			Int("offset", offset).
			Dur("delay", f.retryDelay)
		if errors.Is(err, ErrRateLimited) {
			event = event.Bool("rate_limited", true)
		}
		event.Msg("Transient fetch failure, retrying")

		if err := f.sleep(ctx, f.retryDelay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("fetch page at offset %d: retry budget of %d exhausted: %w",
		offset, f.retryAttempts, lastErr)
}

// appendMapped maps and appends every record of a page.
func appendMapped(records []models.CveRecord, page *nvd.CvesResponse) []models.CveRecord {
	for i := range page.Vulnerabilities {
		records = append(records, mapCve(&page.Vulnerabilities[i].Cve))
	}
	return records
}
