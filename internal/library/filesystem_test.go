/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func collect(t *testing.T, src Source, opts EnumerateOptions) []MediaItem {
	t.Helper()
	var items []MediaItem
	for item, err := range src.Enumerate(context.Background(), opts) {
		if err != nil {
			t.Fatalf("enumerate: %v", err)
		}
		items = append(items, item)
	}
	return items
}

func TestEnumerateNaturalOrderAndFilters(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "img10.png"), 8, 8)
	writePNG(t, filepath.Join(root, "img2.png"), 8, 8)
	writePNG(t, filepath.Join(root, "img1.png"), 8, 8)
	writeFile(t, filepath.Join(root, "clip.mp4"), 64)
	writeFile(t, filepath.Join(root, "notes.txt"), 10)
	writePNG(t, filepath.Join(root, ".hidden", "secret.png"), 8, 8)

	src, err := NewFilesystemSource(root, zerolog.Nop())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	items := collect(t, src, EnumerateOptions{})
	var names []string
	for _, it := range items {
		names = append(names, it.Path)
	}
	want := []string{"clip.mp4", "img1.png", "img2.png", "img10.png"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order mismatch: got %v, want %v", names, want)
		}
	}

	images := collect(t, src, EnumerateOptions{Kinds: []Kind{KindImage}, Limit: 2})
	if len(images) != 2 {
		t.Fatalf("expected 2 images with limit, got %d", len(images))
	}
	for _, it := range images {
		if it.Kind != KindImage {
			t.Fatalf("unexpected kind %s", it.Kind)
		}
		if it.Width != 8 || it.Height != 8 {
			t.Fatalf("dimensions not read: %dx%d", it.Width, it.Height)
		}
	}
}

func TestDescribeSubtypes(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "Screenshot 2024-01-01.png"), 4, 8)
	writePNG(t, filepath.Join(root, "Favorites", "cat.png"), 4, 4)
	writePNG(t, filepath.Join(root, "pano.png"), 30, 10)
	writePNG(t, filepath.Join(root, "live.png"), 4, 4)
	writeFile(t, filepath.Join(root, "live.mov"), 16)

	src, _ := NewFilesystemSource(root, zerolog.Nop())
	byPath := map[string]MediaItem{}
	for _, it := range collect(t, src, EnumerateOptions{}) {
		byPath[it.Path] = it
	}

	tests := []struct {
		path string
		flag Subtype
	}{
		{"Screenshot 2024-01-01.png", SubtypeScreenshot},
		{"Favorites/cat.png", SubtypeFavorite},
		{"pano.png", SubtypePanorama},
		{"live.png", SubtypeLivePhoto},
	}
	for _, tt := range tests {
		it, ok := byPath[tt.path]
		if !ok {
			t.Fatalf("%s not enumerated", tt.path)
		}
		if !it.Subtypes.Has(tt.flag) {
			t.Errorf("%s: expected subtype %d, got %d", tt.path, tt.flag, it.Subtypes)
		}
	}
}

func TestFetchLookupAndDelete(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), 4, 4)

	src, _ := NewFilesystemSource(root, zerolog.Nop())
	ctx := context.Background()
	if !src.IsAccessGranted(ctx) {
		t.Fatal("expected access to temp dir")
	}

	id := ItemID("a.png")
	item, ok, err := src.Lookup(ctx, id)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if item.Path != "a.png" {
		t.Fatalf("unexpected path %q", item.Path)
	}

	data, err := src.FetchBytes(ctx, id)
	if err != nil || len(data) == 0 {
		t.Fatalf("fetch: %d bytes, err=%v", len(data), err)
	}

	if _, ok, err := src.Lookup(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing lookup: ok=%v err=%v", ok, err)
	}

	res, err := src.DeletePermanently(ctx, []string{id, "missing"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.Deleted) != 1 || len(res.Failed) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "a.png")); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
}

func TestAccessDeniedForMissingRoot(t *testing.T) {
	src, _ := NewFilesystemSource(filepath.Join(t.TempDir(), "nope"), zerolog.Nop())
	if src.IsAccessGranted(context.Background()) {
		t.Fatal("missing root should not be accessible")
	}
}

func TestFreeSpace(t *testing.T) {
	free, err := FreeSpace(context.Background(), t.TempDir())
	if err != nil {
		t.Skipf("disk usage unavailable: %v", err)
	}
	if free == 0 {
		t.Fatal("expected free space on temp volume")
	}
}
