/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package app constructs every snapsweep service from configuration. Both the
// HTTP server and the CLI build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/snapsweep/internal/analysis"
	"github.com/friendsincode/snapsweep/internal/cache"
	"github.com/friendsincode/snapsweep/internal/cleanup"
	"github.com/friendsincode/snapsweep/internal/config"
	"github.com/friendsincode/snapsweep/internal/db"
	"github.com/friendsincode/snapsweep/internal/eventbus"
	"github.com/friendsincode/snapsweep/internal/events"
	"github.com/friendsincode/snapsweep/internal/grouping"
	"github.com/friendsincode/snapsweep/internal/library"
	"github.com/friendsincode/snapsweep/internal/limiter"
	"github.com/friendsincode/snapsweep/internal/media"
	"github.com/friendsincode/snapsweep/internal/memguard"
	"github.com/friendsincode/snapsweep/internal/quota"
	"github.com/friendsincode/snapsweep/internal/scan"
	"github.com/friendsincode/snapsweep/internal/telemetry"
	"github.com/friendsincode/snapsweep/internal/trash"
	"github.com/friendsincode/snapsweep/internal/version"
)

// App holds the wired services.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	DB         *gorm.DB
	Bus        *events.Bus
	Source     *library.FilesystemSource
	Thumbnails *media.Thumbnailer
	Cache      *cache.Cache
	Limiter    *limiter.Limiter
	Trash      *trash.Store
	Quota      *quota.Guard
	Cleanup    *cleanup.Service
	Scanner    *scan.Orchestrator
	History    *scan.History

	closers []func() error
}

// New connects the database and builds the services. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Bus: events.NewBus()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	settings := cfg.Settings

	shutdownTracing, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRate:  cfg.TracingSampleRate,
		Version:     version.Version,
		Environment: cfg.Environment,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.DeferClose(func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(shutdownCtx)
	})

	database, err := db.Connect(cfg, a.Logger)
	if err != nil {
		return err
	}
	a.DB = database
	a.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	if cfg.MetricsEnabled {
		if err := db.RegisterCallbacks(database); err != nil {
			return fmt.Errorf("register db metrics: %w", err)
		}
	}

	source, err := library.NewFilesystemSource(cfg.LibraryRoot, a.Logger)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	a.Source = source

	storage, err := media.NewStorage(ctx, cfg, a.Logger)
	if err != nil {
		return fmt.Errorf("init thumbnail storage: %w", err)
	}
	a.Thumbnails = media.NewThumbnailer(source, storage, a.Logger)

	if cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
		c, err := cache.New(cacheCfg, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			a.Cache = c
			a.DeferClose(c.Close)
		}
	}

	if cfg.EventRelayEnabled {
		relayCfg := eventbus.DefaultConfig()
		relayCfg.Addr = cfg.RedisAddr
		relayCfg.Password = cfg.RedisPassword
		relayCfg.DB = cfg.RedisDB
		relay, err := eventbus.New(relayCfg, a.Bus, uuid.NewString(), a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("event relay unavailable, events stay in process")
		} else {
			relay.Start()
			a.DeferClose(relay.Close)
		}
	}

	a.Trash = trash.New(database, source, trash.Options{
		Retention:   settings.TrashRetention(),
		Snapshotter: a.Thumbnails,
		Bus:         a.Bus,
	}, a.Logger)

	a.Quota = quota.New(database, quota.StaticEntitlements(cfg.Premium), quota.Options{
		FreeTierCap: settings.FreeTierCap,
		Bus:         a.Bus,
	}, a.Logger)

	a.History = scan.NewHistory(database)

	lim, err := limiter.New(settings.ConcurrencyCap)
	if err != nil {
		return err
	}
	a.Limiter = lim

	grouper := grouping.New(grouping.Config{
		SimilarityThreshold: settings.SimilarityThreshold,
		BlurThreshold:       settings.BlurThreshold,
		LargeVideoBytes:     settings.LargeVideoBytes,
	})

	opts := scan.Options{
		BatchSize:         settings.BatchSize,
		MemoryRetries:     settings.MemoryRetries,
		MemoryRetryDelay:  settings.MemoryRetryDelay,
		MinFreeSpaceBytes: settings.MinFreeSpaceBytes,
		FreeSpace: func(ctx context.Context) (uint64, error) {
			return library.FreeSpace(ctx, source.Root())
		},
		Exclusion: a.Trash,
		Recorder:  a.History,
		Bus:       a.Bus,
	}
	if a.Cache != nil && a.Cache.IsAvailable() {
		opts.Cache = a.Cache
	}

	a.Scanner = scan.New(
		source,
		analysis.NewImageAnalyzer(analysis.NoFaceDetector{}, a.Logger),
		lim,
		memguard.New(settings.MemoryThresholdMB, nil),
		grouper,
		opts,
		a.Logger,
	)
	a.Cleanup = cleanup.New(a.Quota, a.Trash, source, a.Scanner, a.Logger)

	a.Logger.Info().
		Str("library", source.Root()).
		Str("db_backend", string(cfg.DBBackend)).
		Int("concurrency", settings.ConcurrencyCap).
		Bool("premium", cfg.Premium).
		Msg("snapsweep services ready")
	return nil
}

// Close releases owned resources in reverse order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (a *App) DeferClose(fn func() error) {
	a.closers = append(a.closers, fn)
}
