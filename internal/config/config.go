/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Pipeline defaults.
const (
	DefaultConcurrencyCap      = 8
	DefaultMemoryThresholdMB   = 1024
	DefaultMemoryRetries       = 3
	DefaultMemoryRetryDelay    = 500 * time.Millisecond
	DefaultSimilarityThreshold = 0.85
	DefaultBlurThreshold       = 0.4
	DefaultTrashRetentionDays  = 30
	DefaultMinFreeSpaceBytes   = int64(500 * 1024 * 1024)
	DefaultBatchSize           = 50
	DefaultLargeVideoBytes     = int64(100 * 1024 * 1024)
	DefaultFreeTierCap         = 50

	MinTrashRetentionDays = 1
	MaxTrashRetentionDays = 90
)

// Settings holds the handful of values the scan pipeline, trash and quota read.
// They can be overridden by environment variables or a YAML settings file.
type Settings struct {
	ConcurrencyCap      int           `yaml:"concurrency_cap"`
	MemoryThresholdMB   int           `yaml:"memory_threshold_mb"`
	MemoryRetries       int           `yaml:"memory_retries"`
	MemoryRetryDelay    time.Duration `yaml:"memory_retry_delay"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	BlurThreshold       float64       `yaml:"blur_threshold"`
	TrashRetentionDays  int           `yaml:"trash_retention_days"`
	MinFreeSpaceBytes   int64         `yaml:"min_free_space_bytes"`
	BatchSize           int           `yaml:"batch_size"`
	LargeVideoBytes     int64         `yaml:"large_video_bytes"`
	FreeTierCap         int           `yaml:"free_tier_cap"`
}

// DefaultSettings returns the built-in pipeline settings.
func DefaultSettings() Settings {
	return Settings{
		ConcurrencyCap:      DefaultConcurrencyCap,
		MemoryThresholdMB:   DefaultMemoryThresholdMB,
		MemoryRetries:       DefaultMemoryRetries,
		MemoryRetryDelay:    DefaultMemoryRetryDelay,
		SimilarityThreshold: DefaultSimilarityThreshold,
		BlurThreshold:       DefaultBlurThreshold,
		TrashRetentionDays:  DefaultTrashRetentionDays,
		MinFreeSpaceBytes:   DefaultMinFreeSpaceBytes,
		BatchSize:           DefaultBatchSize,
		LargeVideoBytes:     DefaultLargeVideoBytes,
		FreeTierCap:         DefaultFreeTierCap,
	}
}

// TrashRetention returns the retention window as a duration.
func (s Settings) TrashRetention() time.Duration {
	return time.Duration(s.TrashRetentionDays) * 24 * time.Hour
}

// Validate reports the first invalid setting.
func (s Settings) Validate() error {
	if s.ConcurrencyCap < 1 {
		return fmt.Errorf("concurrency cap must be >= 1, got %d", s.ConcurrencyCap)
	}
	if s.MemoryThresholdMB < 1 {
		return fmt.Errorf("memory threshold must be >= 1 MB, got %d", s.MemoryThresholdMB)
	}
	if s.MemoryRetries < 1 {
		return fmt.Errorf("memory retries must be >= 1, got %d", s.MemoryRetries)
	}
	if s.MemoryRetryDelay < 0 {
		return fmt.Errorf("memory retry delay must not be negative")
	}
	if s.SimilarityThreshold <= 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in (0,1], got %v", s.SimilarityThreshold)
	}
	if s.BlurThreshold <= 0 || s.BlurThreshold > 1 {
		return fmt.Errorf("blur threshold must be in (0,1], got %v", s.BlurThreshold)
	}
	if s.TrashRetentionDays < MinTrashRetentionDays || s.TrashRetentionDays > MaxTrashRetentionDays {
		return fmt.Errorf("trash retention must be %d-%d days, got %d", MinTrashRetentionDays, MaxTrashRetentionDays, s.TrashRetentionDays)
	}
	if s.MinFreeSpaceBytes < 0 {
		return fmt.Errorf("min free space must not be negative")
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", s.BatchSize)
	}
	if s.LargeVideoBytes < 1 {
		return fmt.Errorf("large video threshold must be >= 1 byte")
	}
	if s.FreeTierCap < 0 {
		return fmt.Errorf("free tier cap must not be negative")
	}
	return nil
}

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	CORSOrigins []string
	DBBackend   DatabaseBackend
	DBDSN       string
	LibraryRoot string

	// Trash thumbnail snapshots go to ThumbnailDir unless an S3 bucket is set.
	ThumbnailDir      string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool

	// Analysis cache
	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EventRelayEnabled shares events with other processes over Redis pub/sub.
	EventRelayEnabled bool

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	MetricsEnabled bool

	// TrashSweepInterval is how often serve purges expired trash. Zero disables it.
	TrashSweepInterval time.Duration

	// Premium lifts the lifetime deletion cap. Billing is handled elsewhere.
	Premium bool

	SettingsFile string
	Settings     Settings
}

// Load reads environment variables, overlays the optional settings file,
// applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("SNAPSWEEP_ENV", "development"),
		HTTPBind:    getEnv("SNAPSWEEP_HTTP_BIND", "127.0.0.1"),
		HTTPPort:    getEnvInt("SNAPSWEEP_HTTP_PORT", 8080),
		CORSOrigins: splitList(getEnv("SNAPSWEEP_CORS_ORIGINS", "http://localhost:5173")),
		DBBackend:   DatabaseBackend(getEnv("SNAPSWEEP_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:       getEnv("SNAPSWEEP_DB_DSN", "snapsweep.db"),
		LibraryRoot: getEnv("SNAPSWEEP_LIBRARY_ROOT", "."),

		ThumbnailDir:      getEnv("SNAPSWEEP_THUMBNAIL_DIR", "./thumbnails"),
		S3AccessKeyID:     getEnvAny([]string{"SNAPSWEEP_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SNAPSWEEP_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SNAPSWEEP_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnv("SNAPSWEEP_S3_BUCKET", ""),
		S3Endpoint:        getEnv("SNAPSWEEP_S3_ENDPOINT", ""),
		S3UsePathStyle:    getEnvBool("SNAPSWEEP_S3_USE_PATH_STYLE", false),

		CacheEnabled:  getEnvBool("SNAPSWEEP_CACHE_ENABLED", false),
		RedisAddr:     getEnv("SNAPSWEEP_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("SNAPSWEEP_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("SNAPSWEEP_REDIS_DB", 0),

		EventRelayEnabled: getEnvBool("SNAPSWEEP_EVENT_RELAY_ENABLED", false),

		TracingEnabled:    getEnvBool("SNAPSWEEP_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SNAPSWEEP_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SNAPSWEEP_TRACING_SAMPLE_RATE", 1.0),

		MetricsEnabled:     getEnvBool("SNAPSWEEP_METRICS_ENABLED", true),
		TrashSweepInterval: getEnvDuration("SNAPSWEEP_TRASH_SWEEP_INTERVAL", time.Hour),
		Premium:            getEnvBool("SNAPSWEEP_PREMIUM", false),

		SettingsFile: getEnv("SNAPSWEEP_SETTINGS_FILE", ""),
	}

	settings := DefaultSettings()
	if cfg.SettingsFile != "" {
		if err := loadSettingsFile(cfg.SettingsFile, &settings); err != nil {
			return nil, err
		}
	}
	applySettingsEnv(&settings)
	cfg.Settings = settings

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SNAPSWEEP_DB_DSN must be provided")
	}
	if cfg.TrashSweepInterval < 0 {
		return nil, fmt.Errorf("trash sweep interval must not be negative")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return cfg, nil
}

// loadSettingsFile overlays values present in a YAML file onto settings.
func loadSettingsFile(path string, settings *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return nil
}

func applySettingsEnv(s *Settings) {
	s.ConcurrencyCap = getEnvInt("SNAPSWEEP_CONCURRENCY_CAP", s.ConcurrencyCap)
	s.MemoryThresholdMB = getEnvInt("SNAPSWEEP_MEMORY_THRESHOLD_MB", s.MemoryThresholdMB)
	s.MemoryRetries = getEnvInt("SNAPSWEEP_MEMORY_RETRIES", s.MemoryRetries)
	s.MemoryRetryDelay = getEnvDuration("SNAPSWEEP_MEMORY_RETRY_DELAY", s.MemoryRetryDelay)
	s.SimilarityThreshold = getEnvFloat("SNAPSWEEP_SIMILARITY_THRESHOLD", s.SimilarityThreshold)
	s.BlurThreshold = getEnvFloat("SNAPSWEEP_BLUR_THRESHOLD", s.BlurThreshold)
	s.TrashRetentionDays = getEnvInt("SNAPSWEEP_TRASH_RETENTION_DAYS", s.TrashRetentionDays)
	s.MinFreeSpaceBytes = getEnvInt64("SNAPSWEEP_MIN_FREE_SPACE_BYTES", s.MinFreeSpaceBytes)
	s.BatchSize = getEnvInt("SNAPSWEEP_BATCH_SIZE", s.BatchSize)
	s.LargeVideoBytes = getEnvInt64("SNAPSWEEP_LARGE_VIDEO_BYTES", s.LargeVideoBytes)
	s.FreeTierCap = getEnvInt("SNAPSWEEP_FREE_TIER_CAP", s.FreeTierCap)
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
