/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cleanup moves user-selected items into the trash, charging the
// free-tier quota for every item actually trashed.
package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/snapsweep/internal/grouping"
	"github.com/friendsincode/snapsweep/internal/library"
	"github.com/friendsincode/snapsweep/internal/models"
	"github.com/friendsincode/snapsweep/internal/quota"
	"github.com/friendsincode/snapsweep/internal/trash"
	"github.com/rs/zerolog"
)

// ErrUnknownItems is returned when selected ids do not resolve in the library.
var ErrUnknownItems = errors.New("selected items not found in library")

// Quota is the subset of quota.Guard the deletion flow needs.
type Quota interface {
	Reserve(ctx context.Context, n int) error
	Release(ctx context.Context, n int) error
	Remaining(ctx context.Context) (int, error)
}

// Trash is the subset of trash.Store the deletion flow needs.
type Trash interface {
	SoftDelete(ctx context.Context, items []library.MediaItem, reason string) ([]models.TrashEntry, error)
	TrashedItemIDs(ctx context.Context) (map[string]bool, error)
}

// Pruner drops trashed items from whatever view the user picked them from.
type Pruner interface {
	ForgetItems(ids []string)
}

// Result describes one deletion request.
type Result struct {
	Trashed        []models.TrashEntry `json:"trashed"`
	AlreadyTrashed int                 `json:"already_trashed"`
	Remaining      int                 `json:"quota_remaining"`
}

// Service reserves quota, soft deletes and settles the reservation.
type Service struct {
	quota  Quota
	trash  Trash
	source library.Source
	pruner Pruner
	logger zerolog.Logger
}

// New creates the deletion flow. pruner may be nil.
func New(q Quota, t Trash, source library.Source, pruner Pruner, logger zerolog.Logger) *Service {
	return &Service{
		quota:  q,
		trash:  t,
		source: source,
		pruner: pruner,
		logger: logger.With().Str("component", "cleanup").Logger(),
	}
}

// Delete trashes items. Items already in the trash are skipped and cost
// nothing. The rest is refused as a whole when it does not fit in the
// remaining quota; only items actually trashed stay charged.
func (s *Service) Delete(ctx context.Context, items []library.MediaItem, reason string) (Result, error) {
	if len(items) == 0 {
		return Result{}, nil
	}

	inTrash, err := s.trash.TrashedItemIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load trash: %w", err)
	}
	var res Result
	fresh := make([]library.MediaItem, 0, len(items))
	for _, it := range items {
		if inTrash[it.ID] {
			res.AlreadyTrashed++
			continue
		}
		fresh = append(fresh, it)
	}

	if len(fresh) > 0 {
		if err := s.quota.Reserve(ctx, len(fresh)); err != nil {
			if errors.Is(err, quota.ErrQuotaExceeded) {
				return Result{}, err
			}
			return Result{}, fmt.Errorf("reserve quota: %w", err)
		}

		entries, err := s.trash.SoftDelete(ctx, fresh, reason)
		switch {
		case err == nil:
		case errors.Is(err, trash.ErrAlreadyTrashed):
			// Lost a race with another request for the same items.
			res.AlreadyTrashed += trash.AffectedCount(err)
		default:
			s.release(ctx, len(fresh))
			return Result{}, fmt.Errorf("soft delete: %w", err)
		}
		res.Trashed = entries
		s.release(ctx, len(fresh)-len(entries))
	}

	if s.pruner != nil {
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		s.pruner.ForgetItems(ids)
	}

	if res.Remaining, err = s.quota.Remaining(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("quota lookup failed")
	}
	s.logger.Info().
		Int("trashed", len(res.Trashed)).
		Int("already_trashed", res.AlreadyTrashed).
		Str("reason", reason).
		Msg("cleanup applied")
	return res, nil
}

// release hands back reserved deletions that did not happen. A failure here
// leaves the user over-charged, never under.
func (s *Service) release(ctx context.Context, n int) {
	if err := s.quota.Release(ctx, n); err != nil {
		s.logger.Error().Err(err).Int("count", n).Msg("failed to release quota reservation")
	}
}

// DeleteIDs resolves ids through the library and trashes them.
func (s *Service) DeleteIDs(ctx context.Context, ids []string, reason string) (Result, error) {
	items := make([]library.MediaItem, 0, len(ids))
	var missing []string
	for _, id := range ids {
		item, found, err := s.source.Lookup(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("lookup %s: %w", id, err)
		}
		if !found {
			missing = append(missing, id)
			continue
		}
		items = append(items, item)
	}
	if len(missing) > 0 {
		return Result{}, fmt.Errorf("%w: %v", ErrUnknownItems, missing)
	}
	return s.Delete(ctx, items, reason)
}

// DeleteGroup trashes every member of g except its keeper, using the group
// category as the reason.
func (s *Service) DeleteGroup(ctx context.Context, g grouping.Group) (Result, error) {
	return s.DeleteIDs(ctx, g.ReclaimableIDs(), string(g.Category))
}
