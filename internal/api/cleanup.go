/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type cleanupRequest struct {
	ItemIDs []string `json:"item_ids"`
	Reason  string   `json:"reason"`
}

func (a *API) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.ItemIDs) == 0 {
		writeError(w, http.StatusBadRequest, "item_ids_required")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	res, err := a.cleanup.DeleteIDs(r.Context(), req.ItemIDs, req.Reason)
	if err != nil {
		a.writeServiceError(w, err, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCleanupGroup trashes every non-keeper member of a group from the
// latest scan report.
func (a *API) handleCleanupGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	report, ok := a.scanner.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no_report")
		return
	}
	for _, g := range report.Groups {
		if g.ID != groupID {
			continue
		}
		res, err := a.cleanup.DeleteGroup(r.Context(), g)
		if err != nil {
			a.writeServiceError(w, err, "group cleanup failed")
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeError(w, http.StatusNotFound, "group_not_found")
}
