/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package trash holds soft-deleted items until they are restored, expire, or
// are permanently deleted.
package trash

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/friendsincode/snapsweep/internal/events"
	"github.com/friendsincode/snapsweep/internal/library"
	"github.com/friendsincode/snapsweep/internal/models"
	"github.com/friendsincode/snapsweep/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	// DefaultRetention is how long an entry stays restorable.
	DefaultRetention = 30 * 24 * time.Hour
	// ExpiringSoonWindow is the horizon for Stats.ExpiringSoon.
	ExpiringSoonWindow = 3 * 24 * time.Hour
)

// Snapshotter captures a thumbnail before the original goes away.
type Snapshotter interface {
	Snapshot(ctx context.Context, item library.MediaItem) (string, error)
	Discard(ctx context.Context, key string) error
}

// Options configures a Store.
type Options struct {
	Retention   time.Duration
	Snapshotter Snapshotter
	Bus         *events.Bus
	Now         func() time.Time
}

// RestoreOptions controls restore policy.
type RestoreOptions struct {
	// AutoSkipExpired restores the non-expired subset instead of rejecting
	// the whole batch.
	AutoSkipExpired bool
}

// RestoreResult lists restored entries and how many expired ones were skipped.
type RestoreResult struct {
	Restored []models.TrashEntry
	Skipped  int
}

// Filter narrows List.
type Filter struct {
	Reason      string
	ExpiredOnly bool
	Limit       int
	Offset      int
}

// Stats summarizes the trash.
type Stats struct {
	Count        int64 `json:"count"`
	TotalBytes   int64 `json:"total_bytes"`
	ExpiringSoon int64 `json:"expiring_soon"`
	Expired      int64 `json:"expired"`
}

// Store is the only writer of trash entries. Every mutation holds mu and runs
// in a database transaction.
type Store struct {
	db        *gorm.DB
	source    library.Source
	snap      Snapshotter
	bus       *events.Bus
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	mu sync.Mutex
}

// New creates a trash store.
func New(db *gorm.DB, source library.Source, opts Options, logger zerolog.Logger) *Store {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		db:        db,
		source:    source,
		snap:      opts.Snapshotter,
		bus:       opts.Bus,
		retention: opts.Retention,
		now:       opts.Now,
		logger:    logger.With().Str("component", "trash").Logger(),
	}
}

// Retention returns the configured retention window.
func (s *Store) Retention() time.Duration {
	return s.retention
}

// SoftDelete moves items into the trash. Items already trashed are skipped and
// reported through a *BatchError alongside the entries that were created.
func (s *Store) SoftDelete(ctx context.Context, items []library.MediaItem, reason string) ([]models.TrashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	var existing []string
	if err := s.db.WithContext(ctx).Model(&models.TrashEntry{}).
		Where("item_id IN ?", ids).Pluck("item_id", &existing).Error; err != nil {
		return nil, fmt.Errorf("load existing entries: %w", err)
	}
	already := make(map[string]bool, len(existing))
	for _, id := range existing {
		already[id] = true
	}

	now := s.now().UTC()
	failures := make(map[string]error)
	var entries []models.TrashEntry
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if already[it.ID] || seen[it.ID] {
			failures[it.ID] = ErrAlreadyTrashed
			continue
		}
		seen[it.ID] = true

		entry := models.TrashEntry{
			ID:                uuid.NewString(),
			ItemID:            it.ID,
			AssetRef:          it.Path,
			DeletedAt:         now,
			ExpiresAt:         now.Add(s.retention),
			Size:              it.Size,
			OriginalCreatedAt: it.CreatedAt,
			Width:             it.Width,
			Height:            it.Height,
			Kind:              string(it.Kind),
			Favorite:          it.IsFavorite(),
			Reason:            reason,
		}
		if s.snap != nil {
			key, err := s.snap.Snapshot(ctx, it)
			if err != nil {
				s.logger.Warn().Err(err).Str("item_id", it.ID).Msg("thumbnail snapshot failed")
			}
			entry.ThumbnailKey = key
		}
		entries = append(entries, entry)
	}

	if len(entries) > 0 {
		if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(&entries).Error
		}); err != nil {
			for _, e := range entries {
				s.discard(ctx, e.ThumbnailKey)
			}
			return nil, fmt.Errorf("create trash entries: %w", err)
		}
		telemetry.TrashOperationsTotal.WithLabelValues("soft_delete").Add(float64(len(entries)))
		s.publish(ctx, events.EventTrashAdded, entries)
		s.logger.Info().Int("count", len(entries)).Str("reason", reason).Msg("items moved to trash")
	}

	if len(failures) > 0 {
		return entries, &BatchError{Err: ErrAlreadyTrashed, Count: len(failures), Failures: failures}
	}
	return entries, nil
}

// Restore removes entries from the trash so their items reappear in scans.
// By default any expired entry rejects the whole batch.
func (s *Store) Restore(ctx context.Context, entryIDs []string, opts RestoreOptions) (RestoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx, entryIDs)
	if err != nil {
		return RestoreResult{}, err
	}

	now := s.now()
	var restorable []models.TrashEntry
	expired := make(map[string]error)
	for _, e := range entries {
		if e.IsExpired(now) {
			expired[e.ID] = ErrExpired
			continue
		}
		restorable = append(restorable, e)
	}

	if len(expired) > 0 && !opts.AutoSkipExpired {
		return RestoreResult{}, &BatchError{Err: ErrExpired, Count: len(expired), Failures: expired}
	}
	if len(restorable) == 0 {
		return RestoreResult{}, &BatchError{Err: ErrNothingRestorable, Count: len(expired), Failures: expired}
	}

	if err := s.remove(ctx, restorable); err != nil {
		return RestoreResult{}, err
	}
	telemetry.TrashOperationsTotal.WithLabelValues("restore").Add(float64(len(restorable)))
	s.publish(ctx, events.EventTrashRestored, restorable)
	s.logger.Info().Int("restored", len(restorable)).Int("skipped", len(expired)).Msg("trash entries restored")

	return RestoreResult{Restored: restorable, Skipped: len(expired)}, nil
}

// PermanentlyDelete deletes the items behind entryIDs from the library and
// removes their entries. Entries whose deletion failed stay in the trash.
func (s *Store) PermanentlyDelete(ctx context.Context, entryIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx, entryIDs)
	if err != nil {
		return 0, err
	}
	n, err := s.purge(ctx, entries)
	if n > 0 {
		telemetry.TrashOperationsTotal.WithLabelValues("permanent_delete").Add(float64(n))
	}
	return n, err
}

// SweepExpired permanently deletes every expired entry and returns how many
// were removed. Running it twice removes nothing the second time.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []models.TrashEntry
	if err := s.db.WithContext(ctx).Where("expires_at < ?", s.now().UTC()).Find(&entries).Error; err != nil {
		return 0, fmt.Errorf("load expired entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	n, err := s.purgeAs(ctx, entries, events.EventTrashSwept)
	if n > 0 {
		telemetry.TrashOperationsTotal.WithLabelValues("sweep").Add(float64(n))
		s.logger.Info().Int("count", n).Msg("expired trash swept")
	}
	return n, err
}

// EmptyTrash permanently deletes every entry.
func (s *Store) EmptyTrash(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []models.TrashEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return 0, fmt.Errorf("load entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	n, err := s.purge(ctx, entries)
	if n > 0 {
		telemetry.TrashOperationsTotal.WithLabelValues("empty").Add(float64(n))
	}
	return n, err
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]models.TrashEntry, error) {
	q := s.db.WithContext(ctx).Order("deleted_at DESC").Order("id")
	if f.Reason != "" {
		q = q.Where("reason = ?", f.Reason)
	}
	if f.ExpiredOnly {
		q = q.Where("expires_at < ?", s.now().UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var entries []models.TrashEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	return entries, nil
}

// Get returns one entry.
func (s *Store) Get(ctx context.Context, entryID string) (models.TrashEntry, error) {
	var e models.TrashEntry
	err := s.db.WithContext(ctx).First(&e, "id = ?", entryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e, &BatchError{Err: ErrNotFound, Count: 1}
	}
	if err != nil {
		return e, fmt.Errorf("get trash entry: %w", err)
	}
	return e, nil
}

// Stats summarizes the trash contents.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	now := s.now().UTC()
	var st Stats
	row := struct {
		Count int64
		Total int64
	}{}
	if err := s.db.WithContext(ctx).Model(&models.TrashEntry{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size), 0) AS total").Scan(&row).Error; err != nil {
		return st, fmt.Errorf("trash totals: %w", err)
	}
	st.Count, st.TotalBytes = row.Count, row.Total

	if err := s.db.WithContext(ctx).Model(&models.TrashEntry{}).
		Where("expires_at >= ? AND expires_at < ?", now, now.Add(ExpiringSoonWindow)).
		Count(&st.ExpiringSoon).Error; err != nil {
		return st, fmt.Errorf("expiring entries: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.TrashEntry{}).
		Where("expires_at < ?", now).Count(&st.Expired).Error; err != nil {
		return st, fmt.Errorf("expired entries: %w", err)
	}
	telemetry.TrashEntries.Set(float64(st.Count))
	return st, nil
}

// TrashedItemIDs returns the item ids currently in the trash. The scan
// orchestrator uses it to skip trashed items.
func (s *Store) TrashedItemIDs(ctx context.Context) (map[string]bool, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.TrashEntry{}).Pluck("item_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load trashed ids: %w", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// load fetches entries by id. Any missing id rejects the batch.
func (s *Store) load(ctx context.Context, entryIDs []string) ([]models.TrashEntry, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	var entries []models.TrashEntry
	if err := s.db.WithContext(ctx).Where("id IN ?", entryIDs).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load trash entries: %w", err)
	}
	found := make(map[string]bool, len(entries))
	for _, e := range entries {
		found[e.ID] = true
	}
	missing := make(map[string]error)
	for _, id := range entryIDs {
		if !found[id] {
			missing[id] = ErrNotFound
		}
	}
	if len(missing) > 0 {
		return nil, &BatchError{Err: ErrNotFound, Count: len(missing), Failures: missing}
	}
	return entries, nil
}

func (s *Store) purge(ctx context.Context, entries []models.TrashEntry) (int, error) {
	return s.purgeAs(ctx, entries, events.EventTrashPurged)
}

// purgeAs deletes the items behind entries from the library, then removes the
// entries whose items are gone.
func (s *Store) purgeAs(ctx context.Context, entries []models.TrashEntry, event events.EventType) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	itemIDs := make([]string, len(entries))
	for i, e := range entries {
		itemIDs[i] = e.ItemID
	}

	result, err := s.source.DeletePermanently(ctx, itemIDs)
	if err != nil && len(result.Deleted) == 0 {
		return 0, fmt.Errorf("delete from library: %w", err)
	}

	// Failures are reported per entry id, like every other batch operation.
	failures := make(map[string]error)
	var done []models.TrashEntry
	for _, e := range entries {
		ferr, failed := result.Failed[e.ItemID]
		switch {
		case failed && !errors.Is(ferr, library.ErrUnknownItem):
			failures[e.ID] = ferr
		case failed:
			// Already gone from the library.
			done = append(done, e)
		case err != nil && !slices.Contains(result.Deleted, e.ItemID):
			failures[e.ID] = err
		default:
			done = append(done, e)
		}
	}

	if rmErr := s.remove(ctx, done); rmErr != nil {
		return 0, rmErr
	}
	if len(done) > 0 {
		s.publish(ctx, event, done)
	}
	if len(failures) > 0 {
		s.logger.Warn().Int("failed", len(failures)).Int("deleted", len(done)).Msg("permanent delete partially failed")
		return len(done), &BatchError{Err: ErrDeleteFailed, Count: len(failures), Failures: failures}
	}
	return len(done), nil
}

// remove deletes entry rows and their thumbnails.
func (s *Store) remove(ctx context.Context, entries []models.TrashEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("id IN ?", ids).Delete(&models.TrashEntry{}).Error
	}); err != nil {
		return fmt.Errorf("remove trash entries: %w", err)
	}
	for _, e := range entries {
		s.discard(ctx, e.ThumbnailKey)
	}
	return nil
}

func (s *Store) discard(ctx context.Context, key string) {
	if s.snap == nil || key == "" {
		return
	}
	if err := s.snap.Discard(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("thumbnail cleanup failed")
	}
}

func (s *Store) publish(ctx context.Context, event events.EventType, entries []models.TrashEntry) {
	if s.bus == nil {
		return
	}
	ids := make([]string, len(entries))
	var bytes int64
	for i, e := range entries {
		ids[i] = e.ID
		bytes += e.Size
	}
	s.bus.Publish(event, events.Payload{"count": len(entries), "entry_ids": ids, "bytes": bytes})
}
