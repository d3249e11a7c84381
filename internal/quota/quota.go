/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package quota enforces the lifetime free-tier deletion cap.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/snapsweep/internal/events"
	"github.com/friendsincode/snapsweep/internal/models"
	"github.com/friendsincode/snapsweep/internal/telemetry"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Unlimited is returned by Remaining for premium users.
const Unlimited = -1

// DefaultFreeTierCap is the lifetime number of deletions allowed without premium.
const DefaultFreeTierCap = 50

// ErrQuotaExceeded is returned when a deletion would exceed the free-tier cap.
var ErrQuotaExceeded = errors.New("free-tier deletion quota exceeded")

// Entitlements reports premium status. Billing lives outside this process.
type Entitlements interface {
	IsPremium(ctx context.Context) bool
}

// StaticEntitlements is a fixed premium flag, typically from configuration.
type StaticEntitlements bool

// IsPremium implements Entitlements.
func (s StaticEntitlements) IsPremium(context.Context) bool {
	return bool(s)
}

// Options configures a Guard.
type Options struct {
	FreeTierCap int
	Bus         *events.Bus
}

// Guard owns the lifetime deletion counter. The counter only grows; Reset
// exists for tests and debugging.
type Guard struct {
	db     *gorm.DB
	ent    Entitlements
	cap    int
	bus    *events.Bus
	logger zerolog.Logger

	mu sync.Mutex
}

// New creates a quota guard. A nil Entitlements means free tier.
func New(db *gorm.DB, ent Entitlements, opts Options, logger zerolog.Logger) *Guard {
	if ent == nil {
		ent = StaticEntitlements(false)
	}
	if opts.FreeTierCap <= 0 {
		opts.FreeTierCap = DefaultFreeTierCap
	}
	return &Guard{
		db:     db,
		ent:    ent,
		cap:    opts.FreeTierCap,
		bus:    opts.Bus,
		logger: logger.With().Str("component", "quota").Logger(),
	}
}

// Cap returns the free-tier cap.
func (g *Guard) Cap() int {
	return g.cap
}

// Used returns the lifetime deletion count.
func (g *Guard) Used(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used(ctx, g.db)
}

// CanDelete reports whether n more deletions fit in the quota.
func (g *Guard) CanDelete(ctx context.Context, n int) (bool, error) {
	if n <= 0 || g.ent.IsPremium(ctx) {
		return true, nil
	}
	used, err := g.Used(ctx)
	if err != nil {
		return false, err
	}
	return used+int64(n) <= int64(g.cap), nil
}

// Remaining returns how many deletions are left, or Unlimited for premium.
func (g *Guard) Remaining(ctx context.Context) (int, error) {
	if g.ent.IsPremium(ctx) {
		telemetry.QuotaRemaining.Set(Unlimited)
		return Unlimited, nil
	}
	used, err := g.Used(ctx)
	if err != nil {
		return 0, err
	}
	remaining := max(int64(g.cap)-used, 0)
	telemetry.QuotaRemaining.Set(float64(remaining))
	return int(remaining), nil
}

// RecordDeletion adds n confirmed deletions to the lifetime counter. Premium
// deletions are counted too so a lapsed subscription sees the true history.
func (g *Guard) RecordDeletion(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	g.mu.Lock()
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := models.QuotaRecord{Key: models.QuotaKeyLifetimeDeleted, Value: int64(n), UpdatedAt: time.Now().UTC()}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "quota_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("quota_records.value + ?", n),
				"updated_at": rec.UpdatedAt,
			}),
		}).Create(&rec).Error
	})
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("record deletion: %w", err)
	}

	g.logger.Debug().Int("count", n).Msg("deletions recorded")
	g.publish(ctx)
	return nil
}

// Reserve charges n deletions only if they fit under the cap, as one
// conditional update, so concurrent requests cannot overshoot it. Premium
// reservations always succeed. Unused reservations go back through Release.
func (g *Guard) Reserve(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	premium := g.ent.IsPremium(ctx)
	now := time.Now().UTC()

	g.mu.Lock()
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.QuotaRecord{Key: models.QuotaKeyLifetimeDeleted, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "quota_key"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		q := tx.Model(&models.QuotaRecord{}).Where("quota_key = ?", models.QuotaKeyLifetimeDeleted)
		if !premium {
			q = q.Where("value + ? <= ?", n, g.cap)
		}
		res := q.Updates(map[string]any{
			"value":      gorm.Expr("value + ?", n),
			"updated_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrQuotaExceeded
		}
		return nil
	})
	g.mu.Unlock()
	if errors.Is(err, ErrQuotaExceeded) {
		return ErrQuotaExceeded
	}
	if err != nil {
		return fmt.Errorf("reserve quota: %w", err)
	}

	g.logger.Debug().Int("count", n).Msg("deletions reserved")
	g.publish(ctx)
	return nil
}

// Release returns n reserved deletions that were not carried out. It never
// takes the counter below zero.
func (g *Guard) Release(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	g.mu.Lock()
	err := g.db.WithContext(ctx).Model(&models.QuotaRecord{}).
		Where("quota_key = ? AND value >= ?", models.QuotaKeyLifetimeDeleted, n).
		Updates(map[string]any{
			"value":      gorm.Expr("value - ?", n),
			"updated_at": time.Now().UTC(),
		}).Error
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}

	g.logger.Debug().Int("count", n).Msg("unused reservation released")
	g.publish(ctx)
	return nil
}

// Reset zeroes the counter.
func (g *Guard) Reset(ctx context.Context) error {
	g.mu.Lock()
	err := g.db.WithContext(ctx).
		Where("quota_key = ?", models.QuotaKeyLifetimeDeleted).
		Delete(&models.QuotaRecord{}).Error
	g.mu.Unlock()
	if err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	g.logger.Warn().Msg("deletion quota reset")
	g.publish(ctx)
	return nil
}

func (g *Guard) used(ctx context.Context, db *gorm.DB) (int64, error) {
	var rec models.QuotaRecord
	err := db.WithContext(ctx).Where("quota_key = ?", models.QuotaKeyLifetimeDeleted).Limit(1).Find(&rec).Error
	if err != nil {
		return 0, fmt.Errorf("load quota: %w", err)
	}
	return rec.Value, nil
}

func (g *Guard) publish(ctx context.Context) {
	remaining, err := g.Remaining(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("quota refresh failed")
		return
	}
	g.bus.Publish(events.EventQuotaChanged, events.Payload{"remaining": remaining, "cap": g.cap})
}
