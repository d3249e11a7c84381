/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package trash

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/snapsweep/internal/db"
	"github.com/friendsincode/snapsweep/internal/events"
	"github.com/friendsincode/snapsweep/internal/library"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

type fakeSource struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]error
}

func (f *fakeSource) Enumerate(context.Context, library.EnumerateOptions) iter.Seq2[library.MediaItem, error] {
	return func(func(library.MediaItem, error) bool) {}
}

func (f *fakeSource) FetchBytes(context.Context, string) ([]byte, error) { return nil, nil }

func (f *fakeSource) DeletePermanently(_ context.Context, ids []string) (library.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := library.DeleteResult{Failed: map[string]error{}}
	for _, id := range ids {
		if err := f.fail[id]; err != nil {
			res.Failed[id] = err
			continue
		}
		f.deleted = append(f.deleted, id)
		res.Deleted = append(res.Deleted, id)
	}
	return res, nil
}

func (f *fakeSource) IsAccessGranted(context.Context) bool { return true }

func (f *fakeSource) Lookup(context.Context, string) (library.MediaItem, bool, error) {
	return library.MediaItem{}, false, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSnapshots struct {
	mu        sync.Mutex
	stored    map[string]bool
	discarded []string
}

func (f *fakeSnapshots) Snapshot(_ context.Context, item library.MediaItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "thumbnails/" + item.ID + ".jpg"
	f.stored[key] = true
	return key, nil
}

func (f *fakeSnapshots) Discard(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, key)
	delete(f.stored, key)
	return nil
}

type fixture struct {
	store *Store
	src   *fakeSource
	clock *clock
	snaps *fakeSnapshots
	bus   *events.Bus
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	c := &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	src := &fakeSource{fail: map[string]error{}}
	snaps := &fakeSnapshots{stored: map[string]bool{}}
	bus := events.NewBus()
	store := New(newTestDB(t), src, Options{Snapshotter: snaps, Bus: bus, Now: c.Now}, zerolog.Nop())
	return fixture{store: store, src: src, clock: c, snaps: snaps, bus: bus}
}

func items(n int) []library.MediaItem {
	out := make([]library.MediaItem, n)
	for i := range out {
		out[i] = library.MediaItem{
			ID:        fmt.Sprintf("item-%d", i),
			Size:      int64(100 * (i + 1)),
			Kind:      library.KindImage,
			Path:      fmt.Sprintf("photos/%d.jpg", i),
			CreatedAt: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func entryIDs(t *testing.T, f fixture) []string {
	t.Helper()
	list, err := f.store.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := make([]string, len(list))
	for i, e := range list {
		ids[i] = e.ID
	}
	return ids
}

func TestSoftDeleteThenRestoreLeavesNoEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.bus.Subscribe(events.EventTrashRestored)

	entries, err := f.store.SoftDelete(ctx, items(1), "blurry")
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	e := entries[0]
	if !e.ExpiresAt.Equal(e.DeletedAt.Add(DefaultRetention)) {
		t.Fatalf("expiry %v, deleted %v", e.ExpiresAt, e.DeletedAt)
	}
	if e.ThumbnailKey == "" || e.AssetRef != "photos/0.jpg" {
		t.Fatalf("entry missing captured data: %+v", e)
	}

	res, err := f.store.Restore(ctx, []string{e.ID}, RestoreOptions{})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(res.Restored) != 1 || res.Skipped != 0 {
		t.Fatalf("unexpected restore result: %+v", res)
	}
	if ids := entryIDs(t, f); len(ids) != 0 {
		t.Fatalf("residual entries: %v", ids)
	}
	if len(f.snaps.stored) != 0 {
		t.Fatal("thumbnail not discarded on restore")
	}
	if len(f.src.deleted) != 0 {
		t.Fatal("restore must not delete from the library")
	}
	select {
	case <-sub:
	default:
		t.Fatal("restore event not published")
	}
}

func TestSoftDeleteSkipsAlreadyTrashed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.SoftDelete(ctx, items(2), ""); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	entries, err := f.store.SoftDelete(ctx, items(3), "")
	if !errors.Is(err, ErrAlreadyTrashed) {
		t.Fatalf("expected ErrAlreadyTrashed, got %v", err)
	}
	if AffectedCount(err) != 2 || len(entries) != 1 {
		t.Fatalf("affected=%d created=%d", AffectedCount(err), len(entries))
	}
}

func TestRestoreExpiredRejectsWholeBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, _ := f.store.SoftDelete(ctx, items(1), "")
	f.clock.Advance(20 * 24 * time.Hour)
	fresh, _ := f.store.SoftDelete(ctx, items(2)[1:], "")
	f.clock.Advance(11 * 24 * time.Hour) // old is now expired, fresh is not

	ids := []string{old[0].ID, fresh[0].ID}
	_, err := f.store.Restore(ctx, ids, RestoreOptions{})
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if AffectedCount(err) != 1 {
		t.Fatalf("expired count = %d", AffectedCount(err))
	}
	if n := len(entryIDs(t, f)); n != 2 {
		t.Fatalf("entries touched on rejected restore: %d remain", n)
	}

	res, err := f.store.Restore(ctx, ids, RestoreOptions{AutoSkipExpired: true})
	if err != nil {
		t.Fatalf("auto-skip restore: %v", err)
	}
	if len(res.Restored) != 1 || res.Restored[0].ID != fresh[0].ID || res.Skipped != 1 {
		t.Fatalf("unexpected auto-skip result: %+v", res)
	}
}

func TestRestoreAutoSkipAllExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entries, _ := f.store.SoftDelete(ctx, items(2), "")
	f.clock.Advance(DefaultRetention + time.Minute)

	_, err := f.store.Restore(ctx, []string{entries[0].ID, entries[1].ID}, RestoreOptions{AutoSkipExpired: true})
	if !errors.Is(err, ErrNothingRestorable) {
		t.Fatalf("expected ErrNothingRestorable, got %v", err)
	}
	if AffectedCount(err) != 2 {
		t.Fatalf("skipped count = %d", AffectedCount(err))
	}
}

func TestRestoreMissingEntry(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Restore(context.Background(), []string{"nope", "also-nope"}, RestoreOptions{})
	if !errors.Is(err, ErrNotFound) || AffectedCount(err) != 2 {
		t.Fatalf("expected ErrNotFound for 2, got %v", err)
	}
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.SoftDelete(ctx, items(3), ""); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if n, err := f.store.SweepExpired(ctx); err != nil || n != 0 {
		t.Fatalf("sweep before expiry: n=%d err=%v", n, err)
	}

	f.clock.Advance(DefaultRetention + time.Hour)
	n, err := f.store.SweepExpired(ctx)
	if err != nil || n != 3 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	if len(f.src.deleted) != 3 {
		t.Fatalf("library deletions = %d", len(f.src.deleted))
	}
	if n, err := f.store.SweepExpired(ctx); err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestPermanentlyDeletePartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entries, _ := f.store.SoftDelete(ctx, items(2), "")
	f.src.fail["item-1"] = errors.New("locked")

	n, err := f.store.PermanentlyDelete(ctx, []string{entries[0].ID, entries[1].ID})
	if n != 1 {
		t.Fatalf("deleted = %d", n)
	}
	if !errors.Is(err, ErrDeleteFailed) || AffectedCount(err) != 1 {
		t.Fatalf("expected one delete failure, got %v", err)
	}
	remaining := entryIDs(t, f)
	if len(remaining) != 1 || remaining[0] != entries[1].ID {
		t.Fatalf("failed entry should stay in trash, remaining %v", remaining)
	}
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BatchError, got %T", err)
	}
	if _, ok := be.Failures[entries[1].ID]; !ok || len(be.Failures) != 1 {
		t.Fatalf("failures should be keyed by entry id %s, got %v", entries[1].ID, be.Failures)
	}
}

func TestPermanentlyDeleteTreatsUnknownItemAsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entries, _ := f.store.SoftDelete(ctx, items(1), "")
	f.src.fail["item-0"] = library.ErrUnknownItem

	n, err := f.store.PermanentlyDelete(ctx, []string{entries[0].ID})
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestEmptyTrashAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.SoftDelete(ctx, items(2), "screenshot"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	f.clock.Advance(28 * 24 * time.Hour)
	if _, err := f.store.SoftDelete(ctx, items(3)[2:], "blurry"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	st, err := f.store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Count != 3 || st.TotalBytes != 600 || st.ExpiringSoon != 2 || st.Expired != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}

	shots, err := f.store.List(ctx, Filter{Reason: "screenshot"})
	if err != nil || len(shots) != 2 {
		t.Fatalf("reason filter: %d entries, err=%v", len(shots), err)
	}

	n, err := f.store.EmptyTrash(ctx)
	if err != nil || n != 3 {
		t.Fatalf("empty: n=%d err=%v", n, err)
	}
	trashed, err := f.store.TrashedItemIDs(ctx)
	if err != nil || len(trashed) != 0 {
		t.Fatalf("trashed ids after empty: %v err=%v", trashed, err)
	}
}

func TestConcurrentSweepAndRestoreOnDisjointEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.SoftDelete(ctx, items(5), ""); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	f.clock.Advance(DefaultRetention + time.Hour)
	fresh, err := f.store.SoftDelete(ctx, items(10)[5:], "")
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	var wg sync.WaitGroup
	var sweepErr, restoreErr error
	var swept int
	wg.Add(2)
	go func() {
		defer wg.Done()
		swept, sweepErr = f.store.SweepExpired(ctx)
	}()
	go func() {
		defer wg.Done()
		ids := make([]string, len(fresh))
		for i, e := range fresh {
			ids[i] = e.ID
		}
		_, restoreErr = f.store.Restore(ctx, ids, RestoreOptions{})
	}()
	wg.Wait()

	if sweepErr != nil || restoreErr != nil {
		t.Fatalf("sweep=%v restore=%v", sweepErr, restoreErr)
	}
	if swept != 5 {
		t.Fatalf("swept %d", swept)
	}
	if ids := entryIDs(t, f); len(ids) != 0 {
		t.Fatalf("entries remain: %v", ids)
	}
}
