// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package api

import "github.com/go-playground/validator/v10"

// validate is a reusable validator instance, safe for concurrent use.
var validate = validator.New()

// ListVulnerabilitiesRequest represents the validated query parameters for
// the vulnerability list endpoint. Severity is matched after upper-casing so
// ?severity=high and ?severity=HIGH both pass.
type ListVulnerabilitiesRequest struct {
	Severity string `validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Since    string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit    int    `validate:"min=1,max=1000"`
}

// CveIDRequest represents the validated {cveID} path parameter of the
// per-vulnerability endpoints. The cve tag enforces the CVE numbering
// format, year range included.
type CveIDRequest struct {
	CveID string `validate:"required,cve"`
}
