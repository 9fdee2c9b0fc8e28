// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package sync

import (
	"strings"

	"github.com/kestrelsec/vulnsync/internal/models"
	"github.com/kestrelsec/vulnsync/internal/models/nvd"
)

// Reference tags the NVD uses to classify external links. They drive the two
// derived boolean flags on CveRecord.
const (
	tagExploit = "Exploit"
	tagPatch   = "Patch"
)

// mapCve converts one NVD wire record into the domain representation.
func mapCve(cve *nvd.Cve) models.CveRecord {
	record := models.CveRecord{
		ID:           cve.ID,
		Published:    cve.Published.Time,
		LastModified: cve.LastModified.Time,
		Description:  englishDescription(cve.Descriptions),
	}

	mapMetrics(cve, &record)
	mapReferences(cve, &record)
	mapWeaknesses(cve, &record)

	return record
}

// englishDescription picks the English description, falling back to the
// first one present. Some very old entries carry only a single untagged
// description.
func englishDescription(descriptions []nvd.Description) string {
	for _, d := range descriptions {
		if d.Lang == "en" {
			return d.Value
		}
	}
	if len(descriptions) > 0 {
		return descriptions[0].Value
	}
	return ""
}

// mapMetrics extracts score+severity per CVSS version, preferring the
// Primary-typed entry within each version list.
func mapMetrics(cve *nvd.Cve, record *models.CveRecord) {
	if m := pickV3(cve.Metrics.CvssMetricV31); m != nil {
		record.CvssV31Score = &m.CvssData.BaseScore
		severity := m.CvssData.BaseSeverity
		record.CvssV31Severity = &severity
	}
	if m := pickV3(cve.Metrics.CvssMetricV30); m != nil {
		record.CvssV3Score = &m.CvssData.BaseScore
		severity := m.CvssData.BaseSeverity
		record.CvssV3Severity = &severity
	}
	if m := pickV2(cve.Metrics.CvssMetricV2); m != nil {
		record.CvssV2Score = &m.CvssData.BaseScore
		severity := m.BaseSeverity
		record.CvssV2Severity = &severity
	}
}

func pickV3(entries []nvd.CvssMetricV3) *nvd.CvssMetricV3 {
	for i := range entries {
		if entries[i].Type == "Primary" {
			return &entries[i]
		}
	}
	if len(entries) > 0 {
		return &entries[0]
	}
	return nil
}

func pickV2(entries []nvd.CvssMetricV2) *nvd.CvssMetricV2 {
	for i := range entries {
		if entries[i].Type == "Primary" {
			return &entries[i]
		}
	}
	if len(entries) > 0 {
		return &entries[0]
	}
	return nil
}

// mapReferences collects reference URLs and derives the exploit/patch flags
// from their tags.
func mapReferences(cve *nvd.Cve, record *models.CveRecord) {
	for _, ref := range cve.References {
		if ref.URL != "" {
			record.ReferenceURLs = append(record.ReferenceURLs, ref.URL)
		}
		for _, tag := range ref.Tags {
			switch tag {
			case tagExploit:
				record.HasExploitRef = true
			case tagPatch:
				record.HasPatchRef = true
			}
		}
	}
}

// mapWeaknesses collects distinct CWE identifiers. The NVD encodes them as
// description values like "CWE-79"; placeholder entries such as
// "NVD-CWE-noinfo" are skipped.
func mapWeaknesses(cve *nvd.Cve, record *models.CveRecord) {
	seen := make(map[string]struct{})
	for _, weakness := range cve.Weaknesses {
		for _, d := range weakness.Description {
			if !strings.HasPrefix(d.Value, "CWE-") {
				continue
			}
			if _, dup := seen[d.Value]; dup {
				continue
			}
			seen[d.Value] = struct{}{}
			record.CweIDs = append(record.CweIDs, d.Value)
		}
	}
}
