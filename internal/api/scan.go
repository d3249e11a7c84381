/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/friendsincode/snapsweep/internal/scan"
)

type scanStateResponse struct {
	State    scan.State `json:"state"`
	Phase    string     `json:"phase"`
	Progress float64    `json:"progress"`
	Error    string     `json:"error,omitempty"`
}

func (a *API) scanState() scanStateResponse {
	p := a.scanner.Progress()
	resp := scanStateResponse{
		State:    a.scanner.State(),
		Phase:    string(p.Phase),
		Progress: p.Value,
	}
	if p.Err != nil {
		resp.Error = p.Err.Error()
	}
	return resp
}

func (a *API) handleScanState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.scanState())
}

// handleScanStart starts a scan in the background. The scan outlives the
// request; progress is followed through /scan/events or polling.
func (a *API) handleScanStart(w http.ResponseWriter, r *http.Request) {
	out, err := a.scanner.Start(context.WithoutCancel(r.Context()))
	if err != nil {
		a.writeServiceError(w, err, "scan start failed")
		return
	}

	go func() {
		res := <-out
		switch {
		case res.Err == nil:
		case errors.Is(res.Err, scan.ErrCancelled):
			a.logger.Info().Msg("scan cancelled")
		default:
			a.logger.Warn().Err(res.Err).Msg("scan finished with error")
		}
	}()

	writeJSON(w, http.StatusAccepted, a.scanState())
}

func (a *API) handleScanCancel(w http.ResponseWriter, r *http.Request) {
	a.scanner.Cancel()
	writeJSON(w, http.StatusAccepted, a.scanState())
}

func (a *API) handleScanReset(w http.ResponseWriter, r *http.Request) {
	a.scanner.Reset()
	writeJSON(w, http.StatusOK, a.scanState())
}

func (a *API) handleScanReport(w http.ResponseWriter, r *http.Request) {
	report, ok := a.scanner.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no_report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleScanHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 20)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	runs, err := a.history.List(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("scan history lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
