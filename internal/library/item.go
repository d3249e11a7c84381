/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library exposes the media collection the scanner reads and deletes from.
package library

import (
	"context"
	"iter"
	"time"
)

// Kind distinguishes still images from videos.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Subtype flags carried on a MediaItem.
type Subtype uint8

const (
	SubtypeScreenshot Subtype = 1 << iota
	SubtypeFavorite
	SubtypeLivePhoto
	SubtypePanorama
)

// Has reports whether all bits of flag are set.
func (s Subtype) Has(flag Subtype) bool {
	return s&flag == flag
}

// MediaItem describes one asset. Values are immutable once produced by a Source.
type MediaItem struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Kind      Kind      `json:"kind"`
	Subtypes  Subtype   `json:"subtypes"`
	Path      string    `json:"path,omitempty"`
}

func (m MediaItem) IsScreenshot() bool { return m.Subtypes.Has(SubtypeScreenshot) }
func (m MediaItem) IsFavorite() bool   { return m.Subtypes.Has(SubtypeFavorite) }

// EnumerateOptions narrows enumeration.
type EnumerateOptions struct {
	Kinds []Kind    // empty means all kinds
	Since time.Time // zero means no lower bound
	Limit int       // zero means unlimited
}

// Accepts reports whether item passes the kind and date filters.
func (o EnumerateOptions) Accepts(item MediaItem) bool {
	if !o.Since.IsZero() && item.CreatedAt.Before(o.Since) {
		return false
	}
	if len(o.Kinds) == 0 {
		return true
	}
	for _, k := range o.Kinds {
		if k == item.Kind {
			return true
		}
	}
	return false
}

// DeleteResult reports per-id outcomes of a permanent delete.
type DeleteResult struct {
	Deleted []string
	Failed  map[string]error
}

// FailedIDs returns the ids that could not be deleted.
func (r DeleteResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	return ids
}

// Source is the media collection.
type Source interface {
	// Enumerate yields items lazily. An error value ends the sequence.
	Enumerate(ctx context.Context, opts EnumerateOptions) iter.Seq2[MediaItem, error]
	FetchBytes(ctx context.Context, id string) ([]byte, error)
	DeletePermanently(ctx context.Context, ids []string) (DeleteResult, error)
	IsAccessGranted(ctx context.Context) bool
	// Lookup returns ok=false when the id is unknown.
	Lookup(ctx context.Context, id string) (MediaItem, bool, error)
}
