// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/kestrelsec/vulnsync/internal/config"
	"github.com/kestrelsec/vulnsync/internal/metrics"
	"github.com/kestrelsec/vulnsync/internal/models/nvd"
)

// nvdTimeFormat is the ISO-8601 millisecond format the NVD API requires for
// date-range parameters.
const nvdTimeFormat = "2006-01-02T15:04:05.000Z"

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024

// DateAxis selects which timestamp the remote query filters on.
type DateAxis string

const (
	// AxisLastModified filters on the record's last-modified timestamp.
	// This is the default axis for sync operations.
	AxisLastModified DateAxis = "lastModified"

	// AxisPublished filters on the publication timestamp. Used for the
	// initial historical backfill, where the modified axis would miss
	// records that were never modified after publication.
	AxisPublished DateAxis = "published"
)

// rangeParams returns the start/end query parameter names for the axis.
func (a DateAxis) rangeParams() (startParam, endParam string) {
	if a == AxisPublished {
		return "pubStartDate", "pubEndDate"
	}
	return "lastModStartDate", "lastModEndDate"
}

// NVDClientInterface is the surface the fetcher and the circuit breaker
// wrap. Implemented by NVDClient for production and by mocks in tests.
type NVDClientInterface interface {
	// FetchPage requests one page of CVEs within the window on the given
	// axis. It performs exactly one HTTP request; retrying is the caller's
	// concern.
	FetchPage(ctx context.Context, axis DateAxis, window Window, startIndex, resultsPerPage int) (*nvd.CvesResponse, error)

	// FetchCveByID requests a single CVE by identifier.
	FetchCveByID(ctx context.Context, cveID string) (*nvd.CvesResponse, error)
}

// NVDClient talks to the NVD CVE API 2.0.
//
// The client is deliberately retry-free: it classifies each response
// (success, rate limited, transient, malformed) and leaves the retry policy
// to the fetcher so the policy lives in one place. Thread-safe; every call
// builds its own request.
type NVDClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewNVDClient creates an NVD API client from configuration.
func NewNVDClient(cfg *config.NVDConfig) *NVDClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &NVDClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchPage implements NVDClientInterface.
func (c *NVDClient) FetchPage(ctx context.Context, axis DateAxis, window Window, startIndex, resultsPerPage int) (*nvd.CvesResponse, error) {
	startParam, endParam := axis.rangeParams()

	params := url.Values{}
	params.Set(startParam, window.Start.UTC().Format(nvdTimeFormat))
	params.Set(endParam, window.End.UTC().Format(nvdTimeFormat))
	params.Set("startIndex", fmt.Sprintf("%d", startIndex))
	params.Set("resultsPerPage", fmt.Sprintf("%d", resultsPerPage))

	return c.get(ctx, params)
}

// FetchCveByID implements NVDClientInterface.
func (c *NVDClient) FetchCveByID(ctx context.Context, cveID string) (*nvd.CvesResponse, error) {
	params := url.Values{}
	params.Set("cveId", cveID)
	return c.get(ctx, params)
}

// get performs one request and decodes the envelope.
func (c *NVDClient) get(ctx context.Context, params url.Values) (*nvd.CvesResponse, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create NVD request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RemoteRequests.WithLabelValues("nvd", "error").Inc()
		return nil, fmt.Errorf("NVD request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.RemoteRequests.WithLabelValues("nvd", "rate_limited").Inc()
		return nil, fmt.Errorf("NVD request: %w", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RemoteRequests.WithLabelValues("nvd", "error").Inc()
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(readBodyForError(resp.Body))}
	}

	result, err := parseCvesResponse(resp.Body)
	if err != nil {
		metrics.RemoteRequests.WithLabelValues("nvd", "error").Inc()
		return nil, err
	}

	metrics.RemoteRequests.WithLabelValues("nvd", "success").Inc()
	return result, nil
}

// parseCvesResponse decodes and validates the envelope in one place. The
// pagination fields are non-nullable and non-negative in the API contract;
// an absent or negative value means the payload cannot be paged safely and
// fails loudly here rather than poisoning the offset loop downstream.
func parseCvesResponse(body io.Reader) (*nvd.CvesResponse, error) {
	var result nvd.CvesResponse
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode NVD response: %w", err)
	}

	switch {
	case result.TotalResults == nil:
		return nil, &MalformedResponseError{Field: "totalResults"}
	case result.StartIndex == nil:
		return nil, &MalformedResponseError{Field: "startIndex"}
	case result.ResultsPerPage == nil:
		return nil, &MalformedResponseError{Field: "resultsPerPage"}
	case *result.TotalResults < 0:
		return nil, &MalformedResponseError{Field: "totalResults", Reason: fmt.Sprintf("is negative (%d)", *result.TotalResults)}
	case *result.StartIndex < 0:
		return nil, &MalformedResponseError{Field: "startIndex", Reason: fmt.Sprintf("is negative (%d)", *result.StartIndex)}
	case *result.ResultsPerPage < 0:
		return nil, &MalformedResponseError{Field: "resultsPerPage", Reason: fmt.Sprintf("is negative (%d)", *result.ResultsPerPage)}
	}
	return &result, nil
}

// readBodyForError reads at most maxErrorBodySize of a response body for
// error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		body = append(body, []byte("... (truncated)")...)
	}
	return body
}
