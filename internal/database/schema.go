// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package database

const schemaDDL = `
CREATE TABLE IF NOT EXISTS cves (
    cve_id            TEXT PRIMARY KEY,
    published         TIMESTAMPTZ NOT NULL,
    last_modified     TIMESTAMPTZ NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    cvss_v2_score     DOUBLE PRECISION,
    cvss_v2_severity  TEXT,
    cvss_v3_score     DOUBLE PRECISION,
    cvss_v3_severity  TEXT,
    cvss_v31_score    DOUBLE PRECISION,
    cvss_v31_severity TEXT,
    reference_urls    TEXT[] NOT NULL DEFAULT '{}',
    cwe_ids           TEXT[] NOT NULL DEFAULT '{}',
    has_exploit_ref   BOOLEAN NOT NULL DEFAULT FALSE,
    has_patch_ref     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_cves_last_modified ON cves (last_modified);
CREATE INDEX IF NOT EXISTS idx_cves_published ON cves (published);
CREATE INDEX IF NOT EXISTS idx_cves_v31_severity ON cves (cvss_v31_severity);
`
