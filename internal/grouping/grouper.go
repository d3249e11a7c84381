/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package grouping

import (
	"fmt"
	"sort"

	"github.com/friendsincode/snapsweep/internal/analysis"
	"github.com/friendsincode/snapsweep/internal/library"
)

// Defaults for Config.
const (
	DefaultSimilarityThreshold = 0.85
	DefaultLargeVideoBytes     = int64(100 * 1024 * 1024)
)

// Config controls the grouping passes.
type Config struct {
	SimilarityThreshold float64
	BlurThreshold       float64
	LargeVideoBytes     int64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		BlurThreshold:       analysis.BlurryThreshold,
		LargeVideoBytes:     DefaultLargeVideoBytes,
	}
}

// Grouper runs each category pass independently. An item appears in at most
// one group per pass but may appear in several passes.
type Grouper struct {
	Config Config
}

// New creates a grouper, filling zero config fields with defaults.
func New(cfg Config) *Grouper {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.BlurThreshold <= 0 {
		cfg.BlurThreshold = def.BlurThreshold
	}
	if cfg.LargeVideoBytes <= 0 {
		cfg.LargeVideoBytes = def.LargeVideoBytes
	}
	return &Grouper{Config: cfg}
}

type entry struct {
	item   library.MediaItem
	result analysis.Result
	hasRes bool
}

// Group builds every group for the given results and items.
func (g *Grouper) Group(results []analysis.Result, items []library.MediaItem) []Group {
	byItem := make(map[string]analysis.Result, len(results))
	for _, r := range results {
		byItem[r.ItemID] = r
	}

	entries := make([]entry, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		r, ok := byItem[it.ID]
		entries = append(entries, entry{item: it, result: r, hasRes: ok})
	}
	sortEntries(entries)

	var groups []Group
	groups = appendCategory(groups, CategoryScreenshot, entries, func(e entry) bool {
		return e.hasRes && e.result.IsScreenshot
	})
	groups = appendCategory(groups, CategoryBlurry, entries, func(e entry) bool {
		return e.hasRes && e.item.Kind == library.KindImage && e.result.IsBlurryAt(g.Config.BlurThreshold)
	})
	groups = appendCategory(groups, CategorySelfie, entries, func(e entry) bool {
		return e.hasRes && e.result.IsDeletionCandidate() && (e.result.IsSelfie || e.result.FaceCount > 0)
	})
	groups = append(groups, g.cluster(entries)...)
	groups = appendCategory(groups, CategoryLargeVideo, entries, func(e entry) bool {
		return e.item.Kind == library.KindVideo && e.item.Size >= g.Config.LargeVideoBytes
	})
	return groups
}

// sortEntries orders by creation time, then id.
func sortEntries(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].item, entries[j].item
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func appendCategory(groups []Group, category Category, entries []entry, match func(entry) bool) []Group {
	var ids []string
	var sizes []int64
	for _, e := range entries {
		if match(e) {
			ids = append(ids, e.item.ID)
			sizes = append(sizes, e.item.Size)
		}
	}
	if len(ids) == 0 {
		return groups
	}
	grp, _ := NewGroup(category, ids, sizes, nil)
	return append(groups, grp)
}

// cluster links fingerprinted images whose similarity meets the threshold.
// Linking is transitive, so a cluster is a connected component.
func (g *Grouper) cluster(entries []entry) []Group {
	var fp []entry
	for _, e := range entries {
		if e.hasRes && e.result.Fingerprint != nil && e.item.Kind == library.KindImage {
			fp = append(fp, e)
		}
	}
	if len(fp) < 2 {
		return nil
	}

	parent := make([]int, len(fp))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// Lower index becomes the root so component order follows entry order.
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	for i := 0; i < len(fp); i++ {
		fi := *fp[i].result.Fingerprint
		for j := i + 1; j < len(fp); j++ {
			if fi.Similarity(*fp[j].result.Fingerprint) >= g.Config.SimilarityThreshold {
				union(i, j)
			}
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range fp {
		r := find(i)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], i)
	}

	var groups []Group
	for _, r := range roots {
		idx := members[r]
		if len(idx) < 2 {
			continue
		}
		cluster := make([]entry, len(idx))
		for i, n := range idx {
			cluster[i] = fp[n]
		}

		category := CategorySimilar
		if allIdentical(cluster) {
			category = CategoryDuplicate
		}
		ids := make([]string, len(cluster))
		sizes := make([]int64, len(cluster))
		for i, e := range cluster {
			ids[i] = e.item.ID
			sizes[i] = e.item.Size
		}
		keeper := selectKeeper(cluster)
		grp, _ := NewGroup(category, ids, sizes, &keeper)
		grp.DisplayName = fmt.Sprintf("%s (%d)", grp.DisplayName, len(ids))
		groups = append(groups, grp)
	}
	return groups
}

func allIdentical(cluster []entry) bool {
	first := *cluster[0].result.Fingerprint
	for _, e := range cluster[1:] {
		if *e.result.Fingerprint != first {
			return false
		}
	}
	return true
}

// selectKeeper picks the highest quality, then the most recent, then the lowest id.
// File size is never considered.
func selectKeeper(cluster []entry) int {
	best := 0
	for i := 1; i < len(cluster); i++ {
		if betterKeeper(cluster[i], cluster[best]) {
			best = i
		}
	}
	return best
}

func betterKeeper(a, b entry) bool {
	if a.result.QualityScore != b.result.QualityScore {
		return a.result.QualityScore > b.result.QualityScore
	}
	if !a.item.CreatedAt.Equal(b.item.CreatedAt) {
		return a.item.CreatedAt.After(b.item.CreatedAt)
	}
	return a.item.ID < b.item.ID
}
