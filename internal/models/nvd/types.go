// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

// Package nvd defines wire DTOs for the NVD CVE API 2.0.
//
// The envelope fields resultsPerPage, startIndex, and totalResults drive
// offset pagination; everything under vulnerabilities[].cve is the record
// payload. Timestamps come back as ISO-8601 without a zone designator
// ("2021-08-04T00:15:08.640"), which Timestamp handles.
package nvd

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp wraps time.Time to parse the zone-less ISO-8601 format the NVD
// API emits, with RFC3339 accepted as a fallback.
type Timestamp struct {
	time.Time
}

// nvdTimeLayouts are tried in order when parsing a timestamp.
var nvdTimeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// UnmarshalJSON parses an NVD timestamp. Zone-less values are taken as UTC.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range nvdTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized NVD timestamp %q", s)
}

// MarshalJSON renders the timestamp in the API's millisecond format.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format("2006-01-02T15:04:05.000") + `"`), nil
}

// CvesResponse is the top-level envelope of GET /rest/json/cves/2.0.
type CvesResponse struct {
	ResultsPerPage  *int            `json:"resultsPerPage"`
	StartIndex      *int            `json:"startIndex"`
	TotalResults    *int            `json:"totalResults"`
	Format          string          `json:"format"`
	Version         string          `json:"version"`
	Timestamp       string          `json:"timestamp"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Vulnerability wraps one CVE entry.
type Vulnerability struct {
	Cve Cve `json:"cve"`
}

// Cve is the record payload of one vulnerability.
type Cve struct {
	ID               string        `json:"id"`
	SourceIdentifier string        `json:"sourceIdentifier"`
	Published        Timestamp     `json:"published"`
	LastModified     Timestamp     `json:"lastModified"`
	VulnStatus       string        `json:"vulnStatus"`
	Descriptions     []Description `json:"descriptions"`
	Metrics          Metrics       `json:"metrics"`
	Weaknesses       []Weakness    `json:"weaknesses"`
	References       []Reference   `json:"references"`
}

// Description is a localized free-text description.
type Description struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// Metrics groups the CVSS metric lists by version.
type Metrics struct {
	CvssMetricV31 []CvssMetricV3 `json:"cvssMetricV31"`
	CvssMetricV30 []CvssMetricV3 `json:"cvssMetricV30"`
	CvssMetricV2  []CvssMetricV2 `json:"cvssMetricV2"`
}

// CvssMetricV3 is one CVSS v3.x metric entry.
type CvssMetricV3 struct {
	Source   string     `json:"source"`
	Type     string     `json:"type"` // "Primary" or "Secondary"
	CvssData CvssDataV3 `json:"cvssData"`
}

// CvssDataV3 carries the v3.x score and severity.
type CvssDataV3 struct {
	Version      string  `json:"version"`
	VectorString string  `json:"vectorString"`
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
}

// CvssMetricV2 is one CVSS v2 metric entry. Unlike v3, the severity lives
// next to the cvssData block rather than inside it.
type CvssMetricV2 struct {
	Source       string     `json:"source"`
	Type         string     `json:"type"`
	CvssData     CvssDataV2 `json:"cvssData"`
	BaseSeverity string     `json:"baseSeverity"`
}

// CvssDataV2 carries the v2 score.
type CvssDataV2 struct {
	Version      string  `json:"version"`
	VectorString string  `json:"vectorString"`
	BaseScore    float64 `json:"baseScore"`
}

// Weakness is a CWE assignment.
type Weakness struct {
	Source      string        `json:"source"`
	Type        string        `json:"type"`
	Description []Description `json:"description"`
}

// Reference is an external URL with classification tags.
type Reference struct {
	URL    string   `json:"url"`
	Source string   `json:"source"`
	Tags   []string `json:"tags"`
}
