/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media stores derived media such as trash thumbnails.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/friendsincode/snapsweep/internal/config"
	"github.com/rs/zerolog"
)

// ErrObjectNotFound is returned by Open for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// Storage abstracts object storage for derived media.
type Storage interface {
	Store(ctx context.Context, key, contentType string, body io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	CheckAccess(ctx context.Context) error
}

// NewStorage selects S3 when a bucket is configured, the filesystem otherwise.
func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Storage, error) {
	if cfg.S3Bucket != "" {
		if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
			logger.Warn().Msg("S3 credentials not configured, falling back to the default AWS credential chain")
		}
		s, err := NewS3Storage(ctx, S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize S3 storage: %w", err)
		}
		return s, nil
	}
	return NewFilesystemStorage(cfg.ThumbnailDir, logger)
}
