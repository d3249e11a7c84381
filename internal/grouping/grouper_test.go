/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package grouping

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/friendsincode/snapsweep/internal/analysis"
	"github.com/friendsincode/snapsweep/internal/library"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fp(v uint64) *analysis.Fingerprint {
	f := analysis.Fingerprint(v)
	return &f
}

func image(id string, offset time.Duration, size int64) library.MediaItem {
	return library.MediaItem{ID: id, CreatedAt: base.Add(offset), Size: size, Kind: library.KindImage}
}

func good(id string, quality float64, f *analysis.Fingerprint) analysis.Result {
	return analysis.NewResult(id, base, analysis.Scores{
		Quality:     quality,
		Blur:        0.1,
		Brightness:  0.5,
		Contrast:    0.5,
		Fingerprint: f,
	})
}

func TestScenarioTwoClustersAmongHundred(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	seeds := []uint64{0x0F0F0F0F0F0F0F0F, 0xF0F0F0F0F0F0F0F0}

	var items []library.MediaItem
	var results []analysis.Result
	keepers := map[string]bool{}

	for c, seed := range seeds {
		for k := 0; k < 10; k++ {
			id := fmt.Sprintf("c%d-%02d", c, k)
			v := seed
			if k > 0 {
				v ^= 1 << uint(k-1)
			}
			quality := 0.5
			if k == 3+c {
				quality = 0.9
				keepers[id] = true
			}
			items = append(items, image(id, time.Duration(c*10+k)*time.Minute, 1000))
			results = append(results, good(id, quality, fp(v)))
		}
	}
	for i := 0; i < 80; i++ {
		id := fmt.Sprintf("n-%02d", i)
		items = append(items, image(id, time.Duration(100+i)*time.Minute, 500))
		results = append(results, good(id, 0.6, fp(rng.Uint64())))
	}

	groups := New(Config{SimilarityThreshold: 0.85}).Group(results, items)

	if len(groups) != 2 {
		for _, g := range groups {
			t.Logf("group %s %v", g.Category, g.ItemIDs)
		}
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	for _, g := range groups {
		if g.Category != CategorySimilar {
			t.Fatalf("expected similar group, got %s", g.Category)
		}
		if g.ReclaimableCount() != 9 {
			t.Fatalf("ReclaimableCount = %d, want 9", g.ReclaimableCount())
		}
		id, ok := g.Keeper()
		if !ok || !keepers[id] {
			t.Fatalf("unexpected keeper %q", id)
		}
	}
}

func TestIdenticalFingerprintsFormDuplicateGroup(t *testing.T) {
	items := []library.MediaItem{image("a", 0, 100), image("b", time.Minute, 200)}
	results := []analysis.Result{good("a", 0.5, fp(42)), good("b", 0.5, fp(42))}

	groups := New(DefaultConfig()).Group(results, items)
	if len(groups) != 1 || groups[0].Category != CategoryDuplicate {
		t.Fatalf("expected one duplicate group, got %+v", groups)
	}
}

func TestKeeperTieBreaks(t *testing.T) {
	tests := []struct {
		name   string
		items  []library.MediaItem
		scores []float64
		want   string
	}{
		{
			name:   "highest quality wins",
			items:  []library.MediaItem{image("a", 0, 1), image("b", time.Hour, 1)},
			scores: []float64{0.9, 0.5},
			want:   "a",
		},
		{
			name:   "most recent wins on equal quality",
			items:  []library.MediaItem{image("a", 0, 1), image("b", time.Hour, 1)},
			scores: []float64{0.5, 0.5},
			want:   "b",
		},
		{
			name:   "lowest id wins on full tie",
			items:  []library.MediaItem{image("b", 0, 1), image("a", 0, 1)},
			scores: []float64{0.5, 0.5},
			want:   "a",
		},
		{
			name:   "size is ignored",
			items:  []library.MediaItem{image("big", 0, 1<<30), image("small", 0, 1)},
			scores: []float64{0.5, 0.5},
			want:   "big",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []analysis.Result
			for i, it := range tt.items {
				results = append(results, good(it.ID, tt.scores[i], fp(uint64(i))))
			}
			groups := New(DefaultConfig()).Group(results, tt.items)
			if len(groups) != 1 {
				t.Fatalf("expected 1 group, got %d", len(groups))
			}
			if id, _ := groups[0].Keeper(); id != tt.want {
				t.Fatalf("keeper = %q, want %q", id, tt.want)
			}
		})
	}
}

func TestCategoryPassesAreIndependent(t *testing.T) {
	items := []library.MediaItem{
		image("shot", 0, 10),
		image("clear", time.Minute, 10),
		{ID: "movie", CreatedAt: base, Size: 200 * 1024 * 1024, Kind: library.KindVideo},
		{ID: "clip", CreatedAt: base, Size: 1024, Kind: library.KindVideo},
	}
	blurryShot := analysis.NewResult("shot", base, analysis.Scores{Quality: 0.3, Blur: 0.9, Brightness: 0.5, Screenshot: true})
	selfie := analysis.NewResult("clear", base, analysis.Scores{
		Quality: 0.3, Blur: 0.1, Brightness: 0.5, Selfie: true,
		Faces: []analysis.Face{{Quality: 0.4, Coverage: 0.4}},
	})
	results := []analysis.Result{blurryShot, selfie}

	groups := New(DefaultConfig()).Group(results, items)

	byCat := map[Category]Group{}
	for _, g := range groups {
		if _, dup := byCat[g.Category]; dup {
			t.Fatalf("category %s produced twice", g.Category)
		}
		byCat[g.Category] = g
	}
	if !byCat[CategoryScreenshot].Contains("shot") || !byCat[CategoryBlurry].Contains("shot") {
		t.Fatal("blurry screenshot should appear in both passes")
	}
	if !byCat[CategorySelfie].Contains("clear") {
		t.Fatal("low quality selfie should be grouped")
	}
	lv := byCat[CategoryLargeVideo]
	if lv.Count() != 1 || !lv.Contains("movie") {
		t.Fatalf("unexpected large video group: %+v", lv.ItemIDs)
	}
	for _, c := range []Category{CategoryScreenshot, CategoryBlurry, CategorySelfie, CategoryLargeVideo} {
		if _, ok := byCat[c].Keeper(); ok {
			t.Fatalf("%s group should carry no keeper", c)
		}
	}
}
