// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/kestrelsec/vulnsync/internal/database"
	"github.com/kestrelsec/vulnsync/internal/inventory"
	"github.com/kestrelsec/vulnsync/internal/models"
)

type fakeVulnStore struct {
	pingErr    error
	records    map[string]*models.CveRecord
	listErr    error
	lastFilter database.CveFilter
	total      int64
}

func (s *fakeVulnStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeVulnStore) GetCve(_ context.Context, cveID string) (*models.CveRecord, error) {
	return s.records[cveID], nil
}

func (s *fakeVulnStore) ListCves(_ context.Context, filter database.CveFilter) ([]models.CveRecord, error) {
	s.lastFilter = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.CveRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out, nil
}

func (s *fakeVulnStore) CountCves(context.Context) (int64, error) { return s.total, nil }

type fakeSyncController struct {
	started   bool
	resynced  *models.CveRecord
	resyncErr error
	report    *models.SyncReport
}

func (c *fakeSyncController) TriggerSync() bool { return c.started }

func (c *fakeSyncController) ResyncCve(context.Context, string) (*models.CveRecord, error) {
	return c.resynced, c.resyncErr
}

func (c *fakeSyncController) LastReport() *models.SyncReport { return c.report }

type fakeInventory struct {
	result *inventory.MergedResult
	err    error
}

func (f *fakeInventory) FetchAll(context.Context) (*inventory.MergedResult, error) {
	return f.result, f.err
}

func testRecord(id string) *models.CveRecord {
	return &models.CveRecord{
		ID:           id,
		Published:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		LastModified: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Description:  "test vulnerability",
	}
}

func serve(t *testing.T, handler *Handler, method, target string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	router := NewRouter(handler, nil).Setup()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return rec, body
}

func checkErrorCode(t *testing.T, body APIResponse, code string) {
	t.Helper()
	if body.Success {
		t.Error("expected success=false")
	}
	if body.Error == nil {
		t.Fatal("expected an error payload")
	}
	if body.Error.Code != code {
		t.Errorf("expected error code %s, got %s", code, body.Error.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{}, &fakeInventory{})
		rec, body := serve(t, handler, http.MethodGet, "/healthz")

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if !body.Success {
			t.Error("expected success=true")
		}
	})

	t.Run("database down", func(t *testing.T) {
		store := &fakeVulnStore{pingErr: errors.New("connection refused")}
		handler := NewHandler(store, &fakeSyncController{}, &fakeInventory{})
		rec, body := serve(t, handler, http.MethodGet, "/healthz")

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
		checkErrorCode(t, body, ErrCodeServiceUnavailable)
	})
}

func TestListVulnerabilities(t *testing.T) {
	store := &fakeVulnStore{
		records: map[string]*models.CveRecord{"CVE-2024-0001": testRecord("CVE-2024-0001")},
		total:   41,
	}
	handler := NewHandler(store, &fakeSyncController{}, &fakeInventory{})

	rec, body := serve(t, handler, http.MethodGet, "/api/v1/vulnerabilities?severity=high&limit=5&since=2024-01-01T00:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body.Meta == nil || body.Meta.Count != 1 {
		t.Errorf("expected meta count 1, got %+v", body.Meta)
	}

	if store.lastFilter.Severity != "HIGH" {
		t.Errorf("severity should be normalized to upper case, got %q", store.lastFilter.Severity)
	}
	if store.lastFilter.Limit != 5 {
		t.Errorf("expected limit 5, got %d", store.lastFilter.Limit)
	}
	if store.lastFilter.Since.IsZero() {
		t.Error("since filter not applied")
	}

	data, ok := body.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data shape %T", body.Data)
	}
	if data["total_stored"] != float64(41) {
		t.Errorf("expected total_stored 41, got %v", data["total_stored"])
	}
}

func TestListVulnerabilities_InvalidFilters(t *testing.T) {
	handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{}, &fakeInventory{})

	for _, target := range []string{
		"/api/v1/vulnerabilities?severity=extreme",
		"/api/v1/vulnerabilities?since=yesterday",
		"/api/v1/vulnerabilities?limit=0",
		"/api/v1/vulnerabilities?limit=1001",
		"/api/v1/vulnerabilities?limit=ten",
	} {
		rec, body := serve(t, handler, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
		checkErrorCode(t, body, ErrCodeBadRequest)
	}
}

func TestListVulnerabilities_DefaultLimit(t *testing.T) {
	store := &fakeVulnStore{}
	handler := NewHandler(store, &fakeSyncController{}, &fakeInventory{})

	if rec, _ := serve(t, handler, http.MethodGet, "/api/v1/vulnerabilities"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.lastFilter.Limit != 100 {
		t.Errorf("expected default limit 100, got %d", store.lastFilter.Limit)
	}
}

func TestGetVulnerability(t *testing.T) {
	store := &fakeVulnStore{
		records: map[string]*models.CveRecord{"CVE-2024-0001": testRecord("CVE-2024-0001")},
	}
	handler := NewHandler(store, &fakeSyncController{}, &fakeInventory{})

	t.Run("found", func(t *testing.T) {
		rec, body := serve(t, handler, http.MethodGet, "/api/v1/vulnerabilities/CVE-2024-0001")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		data := body.Data.(map[string]any)
		if data["id"] != "CVE-2024-0001" {
			t.Errorf("unexpected record id %v", data["id"])
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec, body := serve(t, handler, http.MethodGet, "/api/v1/vulnerabilities/CVE-2024-9999")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
		checkErrorCode(t, body, ErrCodeNotFound)
	})

	t.Run("malformed identifier", func(t *testing.T) {
		for _, id := range []string{
			"not-a-cve",
			"CVE-1998-1234", // CVE numbering starts in 1999
			"CVE-2024-012",
		} {
			rec, body := serve(t, handler, http.MethodGet, "/api/v1/vulnerabilities/"+id)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", id, rec.Code)
			}
			checkErrorCode(t, body, ErrCodeBadRequest)
		}
	})
}

func TestTriggerSync(t *testing.T) {
	t.Run("started", func(t *testing.T) {
		handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{started: true}, &fakeInventory{})
		rec, body := serve(t, handler, http.MethodPost, "/api/v1/sync")

		if rec.Code != http.StatusAccepted {
			t.Errorf("expected 202, got %d", rec.Code)
		}
		data := body.Data.(map[string]any)
		if data["started"] != true || data["skipped"] != false {
			t.Errorf("unexpected trigger payload %v", data)
		}
	})

	t.Run("already running", func(t *testing.T) {
		handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{started: false}, &fakeInventory{})
		rec, body := serve(t, handler, http.MethodPost, "/api/v1/sync")

		if rec.Code != http.StatusAccepted {
			t.Errorf("expected 202, got %d", rec.Code)
		}
		data := body.Data.(map[string]any)
		if data["started"] != false || data["skipped"] != true {
			t.Errorf("unexpected trigger payload %v", data)
		}
	})
}

func TestSyncStatus(t *testing.T) {
	t.Run("no sync yet", func(t *testing.T) {
		handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{}, &fakeInventory{})
		rec, body := serve(t, handler, http.MethodGet, "/api/v1/sync/status")

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
		checkErrorCode(t, body, ErrCodeNotFound)
	})

	t.Run("reports last sync", func(t *testing.T) {
		ctrl := &fakeSyncController{report: &models.SyncReport{
			Operation: "incremental",
			Windows:   1,
			Fetched:   12,
			Added:     3,
			Updated:   9,
		}}
		handler := NewHandler(&fakeVulnStore{}, ctrl, &fakeInventory{})
		rec, body := serve(t, handler, http.MethodGet, "/api/v1/sync/status")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		data := body.Data.(map[string]any)
		if data["operation"] != "incremental" || data["fetched"] != float64(12) {
			t.Errorf("unexpected report payload %v", data)
		}
	})
}

func TestResyncCve(t *testing.T) {
	t.Run("resynced", func(t *testing.T) {
		ctrl := &fakeSyncController{resynced: testRecord("CVE-2024-0001")}
		handler := NewHandler(&fakeVulnStore{}, ctrl, &fakeInventory{})
		rec, _ := serve(t, handler, http.MethodPost, "/api/v1/sync/CVE-2024-0001")

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("unknown to remote", func(t *testing.T) {
		handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{}, &fakeInventory{})
		rec, body := serve(t, handler, http.MethodPost, "/api/v1/sync/CVE-2024-0001")

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
		checkErrorCode(t, body, ErrCodeNotFound)
	})

	t.Run("remote failure", func(t *testing.T) {
		ctrl := &fakeSyncController{resyncErr: errors.New("remote api returned status 503")}
		handler := NewHandler(&fakeVulnStore{}, ctrl, &fakeInventory{})
		rec, body := serve(t, handler, http.MethodPost, "/api/v1/sync/CVE-2024-0001")

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
		checkErrorCode(t, body, ErrCodeExternalServiceFail)
	})

	t.Run("malformed identifier", func(t *testing.T) {
		handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{}, &fakeInventory{})
		rec, _ := serve(t, handler, http.MethodPost, "/api/v1/sync/CVE-24-1")

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestTeamAlerts(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		inv := &fakeInventory{result: &inventory.MergedResult{
			Teams: []inventory.Team{{Slug: "platform"}, {Slug: "security"}},
		}}
		handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{}, inv)
		rec, body := serve(t, handler, http.MethodGet, "/api/v1/teams/alerts")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body.Meta == nil || body.Meta.Count != 2 {
			t.Errorf("expected meta count 2, got %+v", body.Meta)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{}, nil)
		rec, body := serve(t, handler, http.MethodGet, "/api/v1/teams/alerts")

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
		checkErrorCode(t, body, ErrCodeServiceUnavailable)
	})

	t.Run("drill-down failure", func(t *testing.T) {
		inv := &fakeInventory{err: errors.New("graphql query failed")}
		handler := NewHandler(&fakeVulnStore{}, &fakeSyncController{}, inv)
		rec, body := serve(t, handler, http.MethodGet, "/api/v1/teams/alerts")

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
		checkErrorCode(t, body, ErrCodeExternalServiceFail)
	})
}

func TestInternalErrorOnStoreFailure(t *testing.T) {
	store := &fakeVulnStore{listErr: errors.New("pool closed")}
	handler := NewHandler(store, &fakeSyncController{}, &fakeInventory{})
	rec, body := serve(t, handler, http.MethodGet, "/api/v1/vulnerabilities")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	checkErrorCode(t, body, ErrCodeInternalError)
}
