// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kestrelsec/vulnsync/internal/database"
	"github.com/kestrelsec/vulnsync/internal/inventory"
	"github.com/kestrelsec/vulnsync/internal/logging"
	"github.com/kestrelsec/vulnsync/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// VulnStore is the read surface the handlers need from the database.
type VulnStore interface {
	Ping(ctx context.Context) error
	GetCve(ctx context.Context, cveID string) (*models.CveRecord, error)
	ListCves(ctx context.Context, filter database.CveFilter) ([]models.CveRecord, error)
	CountCves(ctx context.Context) (int64, error)
}

// SyncController triggers sync operations on demand.
type SyncController interface {
	// TriggerSync starts an incremental sync in the background. False means
	// a sync was already running and nothing was started.
	TriggerSync() bool

	// ResyncCve re-fetches one CVE and upserts it. Nil record means the
	// remote API does not know the ID.
	ResyncCve(ctx context.Context, cveID string) (*models.CveRecord, error)

	// LastReport returns the most recent completed sync report, or nil.
	LastReport() *models.SyncReport
}

// AlertInventory materializes the team security-alert hierarchy.
type AlertInventory interface {
	FetchAll(ctx context.Context) (*inventory.MergedResult, error)
}

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	store     VulnStore
	sync      SyncController
	inventory AlertInventory
}

// NewHandler creates a Handler.
func NewHandler(store VulnStore, sync SyncController, inv AlertInventory) *Handler {
	return &Handler{store: store, sync: sync, inventory: inv}
}

// Health reports liveness including database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.store.Ping(r.Context()); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Health check database ping failed")
		rw.ServiceUnavailable("database unreachable")
		return
	}

	rw.Success(map[string]string{
		"status":   "ok",
		"database": "up",
	})
}

// ListVulnerabilities returns stored CVE records, optionally filtered by
// severity and a last-modified lower bound.
func (h *Handler) ListVulnerabilities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter, err := parseListFilter(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	records, err := h.store.ListCves(r.Context(), filter)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list vulnerabilities")
		rw.InternalError("failed to query vulnerabilities")
		return
	}

	total, err := h.store.CountCves(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to count vulnerabilities")
		rw.InternalError("failed to query vulnerabilities")
		return
	}

	rw.SuccessWithMeta(http.StatusOK, map[string]any{
		"vulnerabilities": records,
		"total_stored":    total,
	}, &APIMeta{Count: len(records)})
}

// GetVulnerability returns a single CVE record by identifier.
func (h *Handler) GetVulnerability(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	cveID, err := parseCveID(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	record, err := h.store.GetCve(r.Context(), cveID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("cve", cveID).Msg("Failed to load vulnerability")
		rw.InternalError("failed to query vulnerability")
		return
	}
	if record == nil {
		rw.NotFound(fmt.Sprintf("vulnerability %s not found", cveID))
		return
	}

	rw.Success(record)
}

// TriggerSync starts an incremental sync in the background.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	started := h.sync.TriggerSync()
	rw.Accepted(map[string]any{
		"started": started,
		"skipped": !started,
	})
}

// SyncStatus returns the most recent completed sync report.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	report := h.sync.LastReport()
	if report == nil {
		rw.NotFound("no sync has completed yet")
		return
	}

	rw.Success(report)
}

// ResyncCve re-fetches a single CVE from the remote API and upserts it.
func (h *Handler) ResyncCve(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	cveID, err := parseCveID(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	record, err := h.sync.ResyncCve(r.Context(), cveID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("cve", cveID).Msg("Resync failed")
		rw.BadGateway("failed to fetch vulnerability from remote API")
		return
	}
	if record == nil {
		rw.NotFound(fmt.Sprintf("vulnerability %s unknown to remote API", cveID))
		return
	}

	rw.Success(record)
}

// TeamAlerts runs the drill-down and returns the materialized hierarchy.
func (h *Handler) TeamAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.inventory == nil {
		rw.ServiceUnavailable("alert inventory is not configured")
		return
	}

	result, err := h.inventory.FetchAll(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Alert drill-down failed")
		rw.BadGateway("failed to fetch team alerts")
		return
	}

	rw.SuccessWithMeta(http.StatusOK, result, &APIMeta{Count: len(result.Teams)})
}

// parseListFilter validates the list endpoint's query parameters through the
// tagged request struct.
func parseListFilter(r *http.Request) (database.CveFilter, error) {
	query := r.URL.Query()
	req := ListVulnerabilitiesRequest{
		Severity: strings.ToUpper(query.Get("severity")),
		Since:    query.Get("since"),
		Limit:    defaultListLimit,
	}
	if limit := query.Get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil {
			return database.CveFilter{}, fmt.Errorf("limit must be an integer between 1 and %d", maxListLimit)
		}
		req.Limit = parsed
	}

	if err := validate.Struct(&req); err != nil {
		return database.CveFilter{}, listFilterError(err, &req)
	}

	filter := database.CveFilter{Severity: req.Severity, Limit: req.Limit}
	if req.Since != "" {
		// Cannot fail past the datetime tag.
		filter.Since, _ = time.Parse(time.RFC3339, req.Since)
	}
	return filter, nil
}

// listFilterError maps the first field failure to a client-facing message.
func listFilterError(err error, req *ListVulnerabilitiesRequest) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		switch fieldErrs[0].Field() {
		case "Severity":
			return fmt.Errorf("invalid severity %q", req.Severity)
		case "Since":
			return fmt.Errorf("invalid since timestamp %q, expected RFC 3339", req.Since)
		case "Limit":
			return fmt.Errorf("limit must be an integer between 1 and %d", maxListLimit)
		}
	}
	return err
}

// parseCveID validates the {cveID} path parameter.
func parseCveID(r *http.Request) (string, error) {
	req := CveIDRequest{CveID: chi.URLParam(r, "cveID")}
	if err := validate.Struct(&req); err != nil {
		return "", fmt.Errorf("invalid CVE identifier %q", req.CveID)
	}
	return req.CveID, nil
}

