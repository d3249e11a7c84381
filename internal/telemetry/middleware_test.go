/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/api/trash/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/trash/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trash/abc", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/trash/{id}", "418"))
	if after != before+1 {
		t.Fatalf("request counter %v -> %v", before, after)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	ItemsAnalyzedTotal.Add(0)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "snapsweep_scan_items_analyzed_total") {
		t.Fatal("metrics output missing scan counter")
	}
}

func TestMetricsMiddlewareLabels(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/api/scan/events", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/api/quota", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	tests := []struct {
		name     string
		path     string
		upgrade  bool
		endpoint string
		status   string
	}{
		{"implicit ok", "/api/quota", false, "/api/quota", "200"},
		{"websocket without status", "/api/scan/events", true, "/api/scan/events", "101"},
		{"unmatched", "/nope", false, "unmatched", "404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := APIRequestsTotal.WithLabelValues("GET", tt.endpoint, tt.status)
			before := testutil.ToFloat64(counter)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			r.ServeHTTP(httptest.NewRecorder(), req)
			if got := testutil.ToFloat64(counter); got != before+1 {
				t.Fatalf("counter %v -> %v", before, got)
			}
		})
	}
}
