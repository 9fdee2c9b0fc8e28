// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/kestrelsec/vulnsync/internal/config"
)

func testWindow() Window {
	return Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestClient(serverURL, apiKey string) *NVDClient {
	return NewNVDClient(&config.NVDConfig{
		BaseURL: serverURL,
		APIKey:  apiKey,
		Timeout: 5 * time.Second,
	})
}

func TestNVDClient_FetchPage(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		fmt.Fprint(w, `{
			"resultsPerPage": 2000, "startIndex": 0, "totalResults": 1,
			"vulnerabilities": [{"cve": {
				"id": "CVE-2024-0001",
				"published": "2024-01-10T08:15:00.000",
				"lastModified": "2024-01-20T10:00:00.000",
				"descriptions": [{"lang": "en", "value": "test"}]
			}}]
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	resp, err := client.FetchPage(context.Background(), AxisLastModified, testWindow(), 0, 2000)
	checkNoError(t, "FetchPage", err)

	checkIntEqual(t, "totalResults", *resp.TotalResults, 1)
	checkIntEqual(t, "vulnerabilities", len(resp.Vulnerabilities), 1)
	checkStringEqual(t, "cve id", resp.Vulnerabilities[0].Cve.ID, "CVE-2024-0001")

	checkStringEqual(t, "lastModStartDate", gotQuery["lastModStartDate"], "2024-01-01T00:00:00.000Z")
	checkStringEqual(t, "lastModEndDate", gotQuery["lastModEndDate"], "2024-02-01T00:00:00.000Z")
	checkStringEqual(t, "startIndex", gotQuery["startIndex"], "0")
	checkStringEqual(t, "resultsPerPage", gotQuery["resultsPerPage"], "2000")
}

// TestNVDClient_PublishedAxis verifies the published axis switches the
// date-range parameter names.
func TestNVDClient_PublishedAxis(t *testing.T) {
	var query url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		fmt.Fprint(w, `{"resultsPerPage": 2000, "startIndex": 0, "totalResults": 0, "vulnerabilities": []}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	_, err := client.FetchPage(context.Background(), AxisPublished, testWindow(), 0, 2000)
	checkNoError(t, "FetchPage", err)

	if query.Get("pubStartDate") == "" || query.Get("pubEndDate") == "" {
		t.Error("expected pubStartDate/pubEndDate parameters on the published axis")
	}
	if query.Get("lastModStartDate") != "" {
		t.Error("did not expect lastModStartDate on the published axis")
	}
}

func TestNVDClient_APIKeyHeader(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apiKey")
		fmt.Fprint(w, `{"resultsPerPage": 2000, "startIndex": 0, "totalResults": 0, "vulnerabilities": []}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "secret-key")
	_, err := client.FetchPage(context.Background(), AxisLastModified, testWindow(), 0, 2000)
	checkNoError(t, "FetchPage", err)
	checkStringEqual(t, "apiKey header", gotKey, "secret-key")
}

func TestNVDClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	_, err := client.FetchPage(context.Background(), AxisLastModified, testWindow(), 0, 2000)
	checkError(t, "FetchPage", err)

	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if !isTransient(err) {
		t.Error("rate-limited errors must be transient")
	}
}

func TestNVDClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "upstream down")
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	_, err := client.FetchPage(context.Background(), AxisLastModified, testWindow(), 0, 2000)
	checkError(t, "FetchPage", err)

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %T", err)
	}
	checkIntEqual(t, "status", remote.Status, http.StatusServiceUnavailable)
	checkBoolEqual(t, "transient", remote.Transient(), true)
}

func TestNVDClient_ClientErrorNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	_, err := client.FetchPage(context.Background(), AxisLastModified, testWindow(), 0, 2000)
	checkError(t, "FetchPage", err)

	if isTransient(err) {
		t.Error("4xx errors must not be retried")
	}
}

// TestNVDClient_MalformedEnvelope verifies a missing pagination field fails
// loudly naming the field instead of defaulting to zero.
func TestNVDClient_MalformedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultsPerPage": 2000, "startIndex": 0, "vulnerabilities": []}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	_, err := client.FetchPage(context.Background(), AxisLastModified, testWindow(), 0, 2000)
	checkError(t, "FetchPage", err)

	var malformed *MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %T: %v", err, err)
	}
	checkStringEqual(t, "missing field", malformed.Field, "totalResults")
	if isTransient(err) {
		t.Error("malformed responses must not be retried")
	}
}

// TestNVDClient_NegativePaginationValues verifies that negative pagination
// values are rejected at the decode boundary; a negative total would
// otherwise reach the fetcher's slice preallocation.
func TestNVDClient_NegativePaginationValues(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "negative totalResults",
			body:  `{"resultsPerPage": 2000, "startIndex": 0, "totalResults": -1, "vulnerabilities": []}`,
			field: "totalResults",
		},
		{
			name:  "negative startIndex",
			body:  `{"resultsPerPage": 2000, "startIndex": -5, "totalResults": 10, "vulnerabilities": []}`,
			field: "startIndex",
		},
		{
			name:  "negative resultsPerPage",
			body:  `{"resultsPerPage": -2000, "startIndex": 0, "totalResults": 10, "vulnerabilities": []}`,
			field: "resultsPerPage",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			client := newTestClient(server.URL, "")
			_, err := client.FetchPage(context.Background(), AxisLastModified, testWindow(), 0, 2000)
			checkError(t, "FetchPage", err)

			var malformed *MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedResponseError, got %T: %v", err, err)
			}
			checkStringEqual(t, "field", malformed.Field, tc.field)
			if malformed.Reason == "" {
				t.Error("expected the error to say why the value is invalid")
			}
			if isTransient(err) {
				t.Error("malformed responses must not be retried")
			}
		})
	}
}

func TestNVDClient_FetchCveByID(t *testing.T) {
	var gotCveID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCveID = r.URL.Query().Get("cveId")
		fmt.Fprint(w, `{
			"resultsPerPage": 1, "startIndex": 0, "totalResults": 1,
			"vulnerabilities": [{"cve": {"id": "CVE-2021-44228"}}]
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "")
	resp, err := client.FetchCveByID(context.Background(), "CVE-2021-44228")
	checkNoError(t, "FetchCveByID", err)

	checkStringEqual(t, "cveId param", gotCveID, "CVE-2021-44228")
	checkStringEqual(t, "cve id", resp.Vulnerabilities[0].Cve.ID, "CVE-2021-44228")
}
