// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kestrelsec/vulnsync/internal/metrics"
	"github.com/kestrelsec/vulnsync/internal/models"
)

// upsertBatchSize bounds the number of statements pipelined per batch so a
// large sync window cannot produce an unbounded transaction.
const upsertBatchSize = 500

// upsertCveSQL updates a pre-existing row in place. The xmax system column is
// zero only for freshly inserted rows, which distinguishes added from updated
// without a second round trip.
const upsertCveSQL = `
	INSERT INTO cves (
		cve_id, published, last_modified, description,
		cvss_v2_score, cvss_v2_severity,
		cvss_v3_score, cvss_v3_severity,
		cvss_v31_score, cvss_v31_severity,
		reference_urls, cwe_ids, has_exploit_ref, has_patch_ref, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
	ON CONFLICT (cve_id) DO UPDATE SET
		published         = EXCLUDED.published,
		last_modified     = EXCLUDED.last_modified,
		description       = EXCLUDED.description,
		cvss_v2_score     = EXCLUDED.cvss_v2_score,
		cvss_v2_severity  = EXCLUDED.cvss_v2_severity,
		cvss_v3_score     = EXCLUDED.cvss_v3_score,
		cvss_v3_severity  = EXCLUDED.cvss_v3_severity,
		cvss_v31_score    = EXCLUDED.cvss_v31_score,
		cvss_v31_severity = EXCLUDED.cvss_v31_severity,
		reference_urls    = EXCLUDED.reference_urls,
		cwe_ids           = EXCLUDED.cwe_ids,
		has_exploit_ref   = EXCLUDED.has_exploit_ref,
		has_patch_ref     = EXCLUDED.has_patch_ref,
		updated_at        = NOW()
	RETURNING (xmax = 0) AS inserted`

// UpsertCves persists records idempotently, keyed by CVE identifier.
// The tally covers the whole input even though writes are pipelined in
// batches of upsertBatchSize.
func (s *Store) UpsertCves(ctx context.Context, records []models.CveRecord) (models.UpsertResult, error) {
	start := time.Now()
	var result models.UpsertResult

	for offset := 0; offset < len(records); offset += upsertBatchSize {
		end := offset + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}

		added, updated, err := s.upsertBatch(ctx, records[offset:end])
		if err != nil {
			metrics.ObserveDBQuery("upsert_cves", start, err)
			return result, fmt.Errorf("upsert batch at offset %d: %w", offset, err)
		}
		result.Added += added
		result.Updated += updated
	}

	metrics.ObserveDBQuery("upsert_cves", start, nil)
	return result, nil
}

// upsertBatch pipelines one bounded group of upserts.
func (s *Store) upsertBatch(ctx context.Context, records []models.CveRecord) (added, updated int, err error) {
	batch := &pgx.Batch{}
	for i := range records {
		r := &records[i]
		batch.Queue(upsertCveSQL,
			r.ID, r.Published, r.LastModified, r.Description,
			r.CvssV2Score, r.CvssV2Severity,
			r.CvssV3Score, r.CvssV3Severity,
			r.CvssV31Score, r.CvssV31Severity,
			r.ReferenceURLs, r.CweIDs, r.HasExploitRef, r.HasPatchRef,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range records {
		var inserted bool
		if scanErr := results.QueryRow().Scan(&inserted); scanErr != nil {
			return 0, 0, fmt.Errorf("upsert %s: %w", records[i].ID, scanErr)
		}
		if inserted {
			added++
		} else {
			updated++
		}
	}

	return added, updated, results.Close()
}

// MaxModifiedTimestamp returns the watermark: the most recent last-modified
// timestamp over all stored CVEs. ok is false when no rows exist yet.
func (s *Store) MaxModifiedTimestamp(ctx context.Context) (watermark time.Time, ok bool, err error) {
	start := time.Now()
	var ts *time.Time

	err = s.pool.QueryRow(ctx, `SELECT max(last_modified) FROM cves`).Scan(&ts)
	metrics.ObserveDBQuery("max_modified", start, err)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query watermark: %w", err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

// CveFilter narrows ListCves.
type CveFilter struct {
	// Severity matches any of the three severity columns, case-insensitive.
	Severity string

	// Since keeps records modified at or after the given time.
	Since time.Time

	// Limit caps the result set. Zero means the default of 100.
	Limit int
}

const selectCveColumns = `
	cve_id, published, last_modified, description,
	cvss_v2_score, cvss_v2_severity,
	cvss_v3_score, cvss_v3_severity,
	cvss_v31_score, cvss_v31_severity,
	reference_urls, cwe_ids, has_exploit_ref, has_patch_ref,
	created_at, updated_at`

// GetCve returns one record by CVE identifier, or nil when no row exists.
func (s *Store) GetCve(ctx context.Context, cveID string) (*models.CveRecord, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectCveColumns+` FROM cves WHERE cve_id = $1`, cveID)

	record, err := scanCveRecord(row)
	metrics.ObserveDBQuery("get_cve", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListCves returns stored records matching the filter, most recently
// modified first.
func (s *Store) ListCves(ctx context.Context, filter CveFilter) ([]models.CveRecord, error) {
	start := time.Now()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + selectCveColumns + ` FROM cves WHERE TRUE`
	args := []any{}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		placeholder := fmt.Sprintf("$%d", len(args))
		query += fmt.Sprintf(
			" AND (upper(cvss_v31_severity) = upper(%[1]s)"+
				" OR upper(cvss_v3_severity) = upper(%[1]s)"+
				" OR upper(cvss_v2_severity) = upper(%[1]s))", placeholder)
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND last_modified >= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY last_modified DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		metrics.ObserveDBQuery("list_cves", start, err)
		return nil, fmt.Errorf("list cves: %w", err)
	}
	defer rows.Close()

	var records []models.CveRecord
	for rows.Next() {
		record, scanErr := scanCveRecord(rows)
		if scanErr != nil {
			metrics.ObserveDBQuery("list_cves", start, scanErr)
			return nil, scanErr
		}
		records = append(records, *record)
	}

	err = rows.Err()
	metrics.ObserveDBQuery("list_cves", start, err)
	if err != nil {
		return nil, fmt.Errorf("list cves: %w", err)
	}
	return records, nil
}

// CountCves returns the number of stored records.
func (s *Store) CountCves(ctx context.Context) (int64, error) {
	start := time.Now()
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM cves`).Scan(&count)
	metrics.ObserveDBQuery("count_cves", start, err)
	if err != nil {
		return 0, fmt.Errorf("count cves: %w", err)
	}
	return count, nil
}

// scanCveRecord scans one row of selectCveColumns.
func scanCveRecord(row pgx.Row) (*models.CveRecord, error) {
	var r models.CveRecord
	err := row.Scan(
		&r.ID, &r.Published, &r.LastModified, &r.Description,
		&r.CvssV2Score, &r.CvssV2Severity,
		&r.CvssV3Score, &r.CvssV3Severity,
		&r.CvssV31Score, &r.CvssV31Severity,
		&r.ReferenceURLs, &r.CweIDs, &r.HasExploitRef, &r.HasPatchRef,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan cve: %w", err)
	}
	return &r, nil
}
