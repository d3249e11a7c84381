/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/friendsincode/snapsweep/internal/quota"
)

func (a *API) handleQuota(w http.ResponseWriter, r *http.Request) {
	used, err := a.quota.Used(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("quota lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	remaining, err := a.quota.Remaining(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("quota lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cap":       a.quota.Cap(),
		"used":      used,
		"remaining": remaining,
		"unlimited": remaining == quota.Unlimited,
	})
}

func (a *API) handleQuotaCheck(w http.ResponseWriter, r *http.Request) {
	count, ok := queryInt(r, "count", 1)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_count")
		return
	}
	allowed, err := a.quota.CanDelete(r.Context(), count)
	if err != nil {
		a.logger.Error().Err(err).Msg("quota check failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count, "can_delete": allowed})
}
