/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/snapsweep/internal/app"
	"github.com/friendsincode/snapsweep/internal/cleanup"
	"github.com/friendsincode/snapsweep/internal/events"
	"github.com/friendsincode/snapsweep/internal/logbuffer"
	"github.com/friendsincode/snapsweep/internal/media"
	"github.com/friendsincode/snapsweep/internal/memguard"
	"github.com/friendsincode/snapsweep/internal/quota"
	"github.com/friendsincode/snapsweep/internal/scan"
	"github.com/friendsincode/snapsweep/internal/trash"
)

// API exposes HTTP handlers.
type API struct {
	scanner    *scan.Orchestrator
	history    *scan.History
	cleanup    *cleanup.Service
	trash      *trash.Store
	quota      *quota.Guard
	thumbnails *media.Thumbnailer
	bus        *events.Bus
	logBuffer  *logbuffer.Buffer
	logger     zerolog.Logger
}

// New creates the API router wrapper. logBuf may be nil.
func New(a *app.App, logBuf *logbuffer.Buffer) *API {
	return &API{
		scanner:    a.Scanner,
		history:    a.History,
		cleanup:    a.Cleanup,
		trash:      a.Trash,
		quota:      a.Quota,
		thumbnails: a.Thumbnails,
		bus:        a.Bus,
		logBuffer:  logBuf,
		logger:     a.Logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers API routes under /api.
func (a *API) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/scan", func(r chi.Router) {
			r.Get("/", a.handleScanState)
			r.Post("/", a.handleScanStart)
			r.Post("/cancel", a.handleScanCancel)
			r.Post("/reset", a.handleScanReset)
			r.Get("/report", a.handleScanReport)
			r.Get("/history", a.handleScanHistory)
			r.Get("/events", a.handleEvents)
		})

		r.Route("/cleanup", func(r chi.Router) {
			r.Post("/", a.handleCleanup)
			r.Post("/groups/{groupID}", a.handleCleanupGroup)
		})

		r.Route("/trash", func(r chi.Router) {
			r.Get("/", a.handleTrashList)
			r.Get("/stats", a.handleTrashStats)
			r.Post("/restore", a.handleTrashRestore)
			r.Post("/delete", a.handleTrashDelete)
			r.Post("/empty", a.handleTrashEmpty)
			r.Post("/sweep", a.handleTrashSweep)
			r.Get("/{entryID}", a.handleTrashGet)
			r.Get("/{entryID}/thumbnail", a.handleTrashThumbnail)
		})

		r.Route("/quota", func(r chi.Router) {
			r.Get("/", a.handleQuota)
			r.Get("/check", a.handleQuotaCheck)
		})

		r.Get("/logs", a.handleLogs)
		r.Get("/logs/stats", a.handleLogStats)
	})
}

// statusFor maps service errors onto HTTP status codes and stable codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, scan.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	case errors.Is(err, memguard.ErrMemoryExceeded):
		return http.StatusServiceUnavailable, "resource_pressure"
	case errors.Is(err, scan.ErrScanInProgress):
		return http.StatusConflict, "scan_in_progress"
	case errors.Is(err, scan.ErrNotIdle):
		return http.StatusConflict, "scanner_not_idle"
	case errors.Is(err, trash.ErrExpired):
		return http.StatusGone, "trash_entry_expired"
	case errors.Is(err, trash.ErrNothingRestorable):
		return http.StatusGone, "nothing_restorable"
	case errors.Is(err, trash.ErrNotFound):
		return http.StatusNotFound, "trash_entry_not_found"
	case errors.Is(err, cleanup.ErrUnknownItems):
		return http.StatusNotFound, "unknown_items"
	case errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusPaymentRequired, "quota_exceeded"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error, msg string) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Msg(msg)
	}
	body := map[string]any{"error": code}
	if n := trash.AffectedCount(err); n > 0 {
		body["affected"] = n
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryInt returns the named query parameter, def when absent, and false when
// the value is not a non-negative integer.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
