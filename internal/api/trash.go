/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/snapsweep/internal/media"
	"github.com/friendsincode/snapsweep/internal/models"
	"github.com/friendsincode/snapsweep/internal/trash"
)

type trashEntryResponse struct {
	models.TrashEntry
	Expired       bool `json:"expired"`
	DaysRemaining int  `json:"days_remaining"`
}

func newTrashEntryResponse(e models.TrashEntry, now time.Time) trashEntryResponse {
	return trashEntryResponse{
		TrashEntry:    e,
		Expired:       e.IsExpired(now),
		DaysRemaining: e.DaysRemaining(now),
	}
}

func (a *API) handleTrashList(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 100)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_offset")
		return
	}

	entries, err := a.trash.List(r.Context(), trash.Filter{
		Reason:      r.URL.Query().Get("reason"),
		ExpiredOnly: r.URL.Query().Get("expired") == "true",
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("trash list failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	now := time.Now()
	out := make([]trashEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newTrashEntryResponse(e, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":        out,
		"retention_days": int(a.trash.Retention() / (24 * time.Hour)),
	})
}

func (a *API) handleTrashStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.trash.Stats(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("trash stats failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleTrashGet(w http.ResponseWriter, r *http.Request) {
	entry, err := a.trash.Get(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		a.writeServiceError(w, err, "trash lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, newTrashEntryResponse(entry, time.Now()))
}

func (a *API) handleTrashThumbnail(w http.ResponseWriter, r *http.Request) {
	entry, err := a.trash.Get(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		a.writeServiceError(w, err, "trash lookup failed")
		return
	}
	body, err := a.thumbnails.Open(r.Context(), entry.ThumbnailKey)
	if errors.Is(err, media.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, "thumbnail_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("thumbnail open failed")
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		a.logger.Debug().Err(err).Msg("thumbnail write interrupted")
	}
}

type trashRestoreRequest struct {
	EntryIDs        []string `json:"entry_ids"`
	AutoSkipExpired bool     `json:"auto_skip_expired"`
}

func (a *API) handleTrashRestore(w http.ResponseWriter, r *http.Request) {
	var req trashRestoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.EntryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "entry_ids_required")
		return
	}

	res, err := a.trash.Restore(r.Context(), req.EntryIDs, trash.RestoreOptions{AutoSkipExpired: req.AutoSkipExpired})
	if err != nil {
		a.writeServiceError(w, err, "trash restore failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"restored": res.Restored,
		"skipped":  res.Skipped,
	})
}

type trashDeleteRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

func (a *API) handleTrashDelete(w http.ResponseWriter, r *http.Request) {
	var req trashDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.EntryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "entry_ids_required")
		return
	}

	n, err := a.trash.PermanentlyDelete(r.Context(), req.EntryIDs)
	a.writePurgeResult(w, n, err, "permanent delete failed")
}

func (a *API) handleTrashEmpty(w http.ResponseWriter, r *http.Request) {
	n, err := a.trash.EmptyTrash(r.Context())
	a.writePurgeResult(w, n, err, "empty trash failed")
}

func (a *API) handleTrashSweep(w http.ResponseWriter, r *http.Request) {
	n, err := a.trash.SweepExpired(r.Context())
	a.writePurgeResult(w, n, err, "trash sweep failed")
}

// writePurgeResult reports partial failures as 207 with both counts.
func (a *API) writePurgeResult(w http.ResponseWriter, deleted int, err error, msg string) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
		return
	}
	if errors.Is(err, trash.ErrDeleteFailed) {
		a.logger.Warn().Err(err).Int("deleted", deleted).Msg(msg)
		writeJSON(w, http.StatusMultiStatus, map[string]any{
			"deleted": deleted,
			"failed":  trash.AffectedCount(err),
			"error":   "delete_failed",
		})
		return
	}
	a.writeServiceError(w, err, msg)
}
