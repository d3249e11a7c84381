package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("expected sqlite default backend, got %q", cfg.DBBackend)
	}
	if cfg.Settings != DefaultSettings() {
		t.Fatalf("unexpected settings: %+v", cfg.Settings)
	}
}

func TestLoadReadsSettingsEnvKeys(t *testing.T) {
	t.Setenv("SNAPSWEEP_CONCURRENCY_CAP", "4")
	t.Setenv("SNAPSWEEP_SIMILARITY_THRESHOLD", "0.9")
	t.Setenv("SNAPSWEEP_TRASH_RETENTION_DAYS", "7")
	t.Setenv("SNAPSWEEP_MEMORY_RETRY_DELAY", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Settings.ConcurrencyCap != 4 {
		t.Fatalf("concurrency cap = %d, want 4", cfg.Settings.ConcurrencyCap)
	}
	if cfg.Settings.SimilarityThreshold != 0.9 {
		t.Fatalf("similarity = %v, want 0.9", cfg.Settings.SimilarityThreshold)
	}
	if cfg.Settings.TrashRetention() != 7*24*time.Hour {
		t.Fatalf("retention = %v", cfg.Settings.TrashRetention())
	}
	if cfg.Settings.MemoryRetryDelay != 2*time.Second {
		t.Fatalf("retry delay = %v", cfg.Settings.MemoryRetryDelay)
	}
}

func TestLoadRejectsRetentionOutOfRange(t *testing.T) {
	for _, days := range []string{"0", "91"} {
		t.Setenv("SNAPSWEEP_TRASH_RETENTION_DAYS", days)
		if _, err := Load(); err == nil {
			t.Fatalf("expected retention %s days to be rejected", days)
		}
	}
}

func TestLoadServeKnobs(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.TrashSweepInterval != time.Hour || cfg.EventRelayEnabled {
		t.Fatalf("defaults: sweep=%v relay=%v", cfg.TrashSweepInterval, cfg.EventRelayEnabled)
	}

	t.Setenv("SNAPSWEEP_TRASH_SWEEP_INTERVAL", "-1m")
	if _, err := Load(); err == nil {
		t.Fatal("expected negative sweep interval to be rejected")
	}

	t.Setenv("SNAPSWEEP_TRASH_SWEEP_INTERVAL", "0")
	t.Setenv("SNAPSWEEP_EVENT_RELAY_ENABLED", "true")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.TrashSweepInterval != 0 || !cfg.EventRelayEnabled {
		t.Fatalf("overrides: sweep=%v relay=%v", cfg.TrashSweepInterval, cfg.EventRelayEnabled)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("SNAPSWEEP_DB_BACKEND", "oracle")
	if _, err := Load(); err == nil {
		t.Fatal("expected unknown backend to be rejected")
	}
}

func TestLoadOverlaysSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "concurrency_cap: 2\nblur_threshold: 0.5\nmemory_retry_delay: 250ms\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	t.Setenv("SNAPSWEEP_SETTINGS_FILE", path)
	// Env wins over the file.
	t.Setenv("SNAPSWEEP_BLUR_THRESHOLD", "0.6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Settings.ConcurrencyCap != 2 {
		t.Fatalf("concurrency cap = %d, want 2", cfg.Settings.ConcurrencyCap)
	}
	if cfg.Settings.BlurThreshold != 0.6 {
		t.Fatalf("blur threshold = %v, want 0.6", cfg.Settings.BlurThreshold)
	}
	if cfg.Settings.MemoryRetryDelay != 250*time.Millisecond {
		t.Fatalf("retry delay = %v", cfg.Settings.MemoryRetryDelay)
	}
	if cfg.Settings.TrashRetentionDays != DefaultTrashRetentionDays {
		t.Fatalf("unset keys should keep defaults, got %d", cfg.Settings.TrashRetentionDays)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		ok     bool
	}{
		{"defaults", func(*Settings) {}, true},
		{"zero concurrency", func(s *Settings) { s.ConcurrencyCap = 0 }, false},
		{"similarity above one", func(s *Settings) { s.SimilarityThreshold = 1.2 }, false},
		{"retention 90", func(s *Settings) { s.TrashRetentionDays = 90 }, true},
		{"retention 1", func(s *Settings) { s.TrashRetentionDays = 1 }, true},
		{"zero batch", func(s *Settings) { s.BatchSize = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
