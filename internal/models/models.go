// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

// Package models defines the domain types shared across vulnsync packages.
package models

import "time"

// CveRecord is one vulnerability as stored locally. Records are keyed by CVE
// identifier, never deleted, and mutated in place when a re-sync observes a
// newer modification timestamp.
type CveRecord struct {
	ID           string    `json:"id"`
	Published    time.Time `json:"published"`
	LastModified time.Time `json:"last_modified"`
	Description  string    `json:"description"`

	// Independent CVSS score+severity pairs. The API exposes up to three
	// competing scales per CVE; all present ones are kept.
	CvssV2Score     *float64 `json:"cvss_v2_score,omitempty"`
	CvssV2Severity  *string  `json:"cvss_v2_severity,omitempty"`
	CvssV3Score     *float64 `json:"cvss_v3_score,omitempty"`
	CvssV3Severity  *string  `json:"cvss_v3_severity,omitempty"`
	CvssV31Score    *float64 `json:"cvss_v31_score,omitempty"`
	CvssV31Severity *string  `json:"cvss_v31_severity,omitempty"`

	ReferenceURLs []string `json:"reference_urls,omitempty"`
	CweIDs        []string `json:"cwe_ids,omitempty"`

	// Derived at mapping time from reference tags.
	HasExploitRef bool `json:"has_exploit_ref"`
	HasPatchRef   bool `json:"has_patch_ref"`

	// Row-level bookkeeping, set by the store.
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// PrimaryScore returns the highest-fidelity CVSS score and severity available:
// v3.1 first, then v3.0, then v2. Returns nils when no metric is present.
func (r *CveRecord) PrimaryScore() (*float64, *string) {
	switch {
	case r.CvssV31Score != nil:
		return r.CvssV31Score, r.CvssV31Severity
	case r.CvssV3Score != nil:
		return r.CvssV3Score, r.CvssV3Severity
	case r.CvssV2Score != nil:
		return r.CvssV2Score, r.CvssV2Severity
	default:
		return nil, nil
	}
}

// UpsertResult reports how an upsert batch was applied.
type UpsertResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// SyncReport summarizes one sync operation for logs and the API.
type SyncReport struct {
	Operation     string        `json:"operation"` // "initial" or "incremental"
	Windows       int           `json:"windows"`
	FailedWindows int           `json:"failed_windows"`
	Fetched       int           `json:"fetched"`
	Added         int           `json:"added"`
	Updated       int           `json:"updated"`
	Duration      time.Duration `json:"duration"`
}
