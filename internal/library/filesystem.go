/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/facette/natsort"
	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
)

// ErrUnknownItem is returned for ids the source has never seen.
var ErrUnknownItem = errors.New("unknown media item")

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".heic": true,
	".heif": true, ".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".avi": true, ".mkv": true, ".3gp": true, ".webm": true,
}

var screenshotPrefixes = []string{"screenshot", "screen shot", "screen_shot", "scrnshot"}

// Aspect ratio at or above which an image counts as a panorama.
const panoramaAspect = 2.5

// FilesystemSource serves media from a directory tree.
type FilesystemSource struct {
	root   string
	logger zerolog.Logger

	mu    sync.RWMutex
	paths map[string]string // id -> relative path
}

// NewFilesystemSource creates a source rooted at root.
func NewFilesystemSource(root string, logger zerolog.Logger) (*FilesystemSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve library root: %w", err)
	}
	return &FilesystemSource{
		root:   abs,
		logger: logger.With().Str("component", "library").Logger(),
		paths:  make(map[string]string),
	}, nil
}

// Root returns the absolute library root.
func (s *FilesystemSource) Root() string {
	return s.root
}

// ItemID derives the stable id for a path relative to the root.
func ItemID(relPath string) string {
	return strconv.FormatUint(xxhash.Sum64String(filepath.ToSlash(relPath)), 16)
}

// IsAccessGranted reports whether the root is a readable directory.
func (s *FilesystemSource) IsAccessGranted(ctx context.Context) bool {
	f, err := os.Open(s.root)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.IsDir() {
		return false
	}
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return true
}

// Enumerate walks the tree in natural path order and yields supported media.
func (s *FilesystemSource) Enumerate(ctx context.Context, opts EnumerateOptions) iter.Seq2[MediaItem, error] {
	return func(yield func(MediaItem, error) bool) {
		rels, err := s.walk(ctx)
		if err != nil {
			yield(MediaItem{}, err)
			return
		}
		emitted := 0
		for _, rel := range rels {
			if err := ctx.Err(); err != nil {
				yield(MediaItem{}, err)
				return
			}
			item, err := s.describe(rel)
			if err != nil {
				s.logger.Debug().Err(err).Str("path", rel).Msg("skipping unreadable file")
				continue
			}
			if !opts.Accepts(item) {
				continue
			}
			if !yield(item, nil) {
				return
			}
			emitted++
			if opts.Limit > 0 && emitted >= opts.Limit {
				return
			}
		}
	}
}

// walk collects supported media paths and refreshes the id index.
func (s *FilesystemSource) walk(ctx context.Context) ([]string, error) {
	var rels []string
	index := make(map[string]string)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug().Err(err).Str("path", path).Msg("walk error")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if kindForExt(filepath.Ext(name)) == "" {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rels = append(rels, rel)
		index[ItemID(rel)] = rel
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk library: %w", err)
	}

	sort.SliceStable(rels, func(i, j int) bool {
		return natsort.Compare(filepath.ToSlash(rels[i]), filepath.ToSlash(rels[j]))
	})

	s.mu.Lock()
	s.paths = index
	s.mu.Unlock()
	return rels, nil
}

func (s *FilesystemSource) describe(rel string) (MediaItem, error) {
	abs := filepath.Join(s.root, rel)
	info, err := os.Stat(abs)
	if err != nil {
		return MediaItem{}, err
	}

	item := MediaItem{
		ID:        ItemID(rel),
		CreatedAt: info.ModTime().UTC(),
		Size:      info.Size(),
		Kind:      kindForExt(filepath.Ext(rel)),
		Path:      filepath.ToSlash(rel),
	}

	base := strings.ToLower(filepath.Base(rel))
	for _, p := range screenshotPrefixes {
		if strings.HasPrefix(base, p) {
			item.Subtypes |= SubtypeScreenshot
			break
		}
	}
	for _, part := range strings.Split(strings.ToLower(filepath.ToSlash(filepath.Dir(rel))), "/") {
		if part == "favorites" || part == "favourites" {
			item.Subtypes |= SubtypeFavorite
		}
	}

	if item.Kind == KindImage {
		if s.hasMotionCompanion(rel) {
			item.Subtypes |= SubtypeLivePhoto
		}
		s.readImageMetadata(abs, &item)
		if item.Height > 0 && float64(item.Width)/float64(item.Height) >= panoramaAspect {
			item.Subtypes |= SubtypePanorama
		}
	}
	return item, nil
}

// readImageMetadata fills dimensions and, when EXIF is present, the capture date.
func (s *FilesystemSource) readImageMetadata(abs string, item *MediaItem) {
	f, err := os.Open(abs)
	if err != nil {
		return
	}
	defer f.Close()

	if cfg, _, err := image.DecodeConfig(f); err == nil {
		item.Width, item.Height = cfg.Width, cfg.Height
	}

	if _, err := f.Seek(0, 0); err != nil {
		return
	}
	x, err := exif.Decode(f)
	if err != nil {
		return
	}
	if taken, err := x.DateTime(); err == nil && !taken.IsZero() {
		item.CreatedAt = taken.UTC()
	}
}

// Lookup resolves an id from the last walk, rewalking once if it is unknown.
func (s *FilesystemSource) Lookup(ctx context.Context, id string) (MediaItem, bool, error) {
	rel, ok := s.resolve(ctx, id)
	if !ok {
		return MediaItem{}, false, nil
	}
	item, err := s.describe(rel)
	if errors.Is(err, fs.ErrNotExist) {
		return MediaItem{}, false, nil
	}
	if err != nil {
		return MediaItem{}, false, err
	}
	return item, true, nil
}

// FetchBytes reads the full contents of an item.
func (s *FilesystemSource) FetchBytes(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, ok := s.resolve(ctx, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// DeletePermanently removes files from disk. Per-file failures are reported in
// the result; the error is reserved for cancellation.
func (s *FilesystemSource) DeletePermanently(ctx context.Context, ids []string) (DeleteResult, error) {
	result := DeleteResult{Failed: make(map[string]error)}
	for _, id := range ids {
		if _, ok := s.pathFor(id); !ok {
			// Index is stale or empty (fresh process); rebuild once.
			if _, err := s.walk(ctx); err != nil {
				return result, err
			}
			break
		}
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rel, ok := s.pathFor(id)
		if !ok {
			result.Failed[id] = ErrUnknownItem
			continue
		}
		if err := os.Remove(filepath.Join(s.root, rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.Failed[id] = err
			continue
		}
		s.mu.Lock()
		delete(s.paths, id)
		s.mu.Unlock()
		result.Deleted = append(result.Deleted, id)
		s.logger.Info().Str("item_id", id).Str("path", rel).Msg("deleted media file")
	}
	return result, nil
}

// resolve looks id up, rewalking the tree once on a miss.
func (s *FilesystemSource) resolve(ctx context.Context, id string) (string, bool) {
	if rel, ok := s.pathFor(id); ok {
		return rel, true
	}
	if _, err := s.walk(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("rewalk failed")
		return "", false
	}
	return s.pathFor(id)
}

func (s *FilesystemSource) pathFor(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.paths[id]
	return rel, ok
}

func kindForExt(ext string) Kind {
	ext = strings.ToLower(ext)
	switch {
	case imageExtensions[ext]:
		return KindImage
	case videoExtensions[ext]:
		return KindVideo
	default:
		return ""
	}
}

func stem(rel string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

// hasMotionCompanion reports whether a .mov with the same stem sits next to rel.
func (s *FilesystemSource) hasMotionCompanion(rel string) bool {
	for _, ext := range []string{".mov", ".MOV"} {
		if _, err := os.Stat(filepath.Join(s.root, stem(rel)+ext)); err == nil {
			return true
		}
	}
	return false
}
