/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/snapsweep/internal/logbuffer"
)

const defaultLogLimit = 500

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		MinLevel:   zerolog.TraceLevel,
		Component:  q.Get("component"),
		Search:     q.Get("search"),
		Descending: q.Get("order") != "asc",
	}
	if level := q.Get("level"); level != "" {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_level")
			return
		}
		params.MinLevel = lvl
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}
	limit, ok := queryInt(r, "limit", defaultLogLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	params.Limit = limit

	entries := a.logBuffer.Query(params)
	if entries == nil {
		entries = []logbuffer.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"count":      len(entries),
		"components": a.logBuffer.Components(),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}
