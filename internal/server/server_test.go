/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/snapsweep/internal/config"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	libDir := filepath.Join(t.TempDir(), "library")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dataDir := t.TempDir()

	t.Setenv("SNAPSWEEP_DB_DSN", filepath.Join(dataDir, "snapsweep.db"))
	t.Setenv("SNAPSWEEP_LIBRARY_ROOT", libDir)
	t.Setenv("SNAPSWEEP_THUMBNAIL_DIR", filepath.Join(dataDir, "thumbs"))
	t.Setenv("SNAPSWEEP_METRICS_ENABLED", "false")
	t.Setenv("SNAPSWEEP_TRASH_SWEEP_INTERVAL", "0")
	t.Setenv("SNAPSWEEP_CORS_ORIGINS", "http://app.example")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	srv, err := New(context.Background(), cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv, libDir
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthzReportsLibraryAccess(t *testing.T) {
	srv, libDir := newTestServer(t)

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", rr.Code)
	}

	if err := os.RemoveAll(libDir); err != nil {
		t.Fatalf("remove library: %v", err)
	}
	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz without library = %d, want 503", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://app.example", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/cleanup", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rr := serve(srv, req)

			got := rr.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed && got != tt.origin {
				t.Fatalf("Access-Control-Allow-Origin=%q, want %q", got, tt.origin)
			}
			if !tt.allowed && got != "" {
				t.Fatalf("unexpected Access-Control-Allow-Origin=%q", got)
			}
		})
	}
}

func TestRoutesMounted(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/scan", http.StatusOK},
		{http.MethodGet, "/api/quota", http.StatusOK},
		{http.MethodGet, "/api/trash/stats", http.StatusOK},
		{http.MethodGet, "/api/scan/report", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusNotFound},
	}
	for _, tt := range tests {
		rr := serve(srv, httptest.NewRequest(tt.method, tt.path, nil))
		if rr.Code != tt.status {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rr.Code, tt.status)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s %s missing security headers", tt.method, tt.path)
		}
	}
}
