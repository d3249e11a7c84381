/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
	"github.com/friendsincode/snapsweep/internal/library"
	"github.com/rs/zerolog"
)

// ThumbnailSize bounds the longest side of a trash thumbnail.
const ThumbnailSize = 300

// Thumbnailer renders small JPEG snapshots of items before they are trashed,
// so the trash can still show them after the original is gone.
type Thumbnailer struct {
	source  library.Source
	storage Storage
	logger  zerolog.Logger
}

// NewThumbnailer creates a thumbnailer reading from source and writing to storage.
func NewThumbnailer(source library.Source, storage Storage, logger zerolog.Logger) *Thumbnailer {
	return &Thumbnailer{
		source:  source,
		storage: storage,
		logger:  logger.With().Str("component", "thumbnailer").Logger(),
	}
}

// ThumbnailKey is the storage key for an item's snapshot.
func ThumbnailKey(itemID string) string {
	return "thumbnails/" + itemID + ".jpg"
}

// Snapshot stores a thumbnail for item and returns its key. Videos have no
// snapshot and return an empty key.
func (t *Thumbnailer) Snapshot(ctx context.Context, item library.MediaItem) (string, error) {
	if item.Kind != library.KindImage {
		return "", nil
	}
	data, err := t.source.FetchBytes(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", item.ID, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", item.ID, err)
	}
	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	key := ThumbnailKey(item.ID)
	if err := t.storage.Store(ctx, key, "image/jpeg", &buf); err != nil {
		return "", err
	}
	t.logger.Debug().Str("item_id", item.ID).Str("key", key).Msg("thumbnail stored")
	return key, nil
}

// Discard removes a stored snapshot.
func (t *Thumbnailer) Discard(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return t.storage.Delete(ctx, key)
}

// Open streams a stored snapshot.
func (t *Thumbnailer) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, ErrObjectNotFound
	}
	return t.storage.Open(ctx, key)
}
