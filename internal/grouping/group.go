/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package grouping turns analysis results into actionable groups of media items.
package grouping

import (
	"errors"

	"github.com/google/uuid"
)

// Category names the kind of group.
type Category string

const (
	CategorySimilar    Category = "similar"
	CategoryDuplicate  Category = "duplicate"
	CategoryScreenshot Category = "screenshot"
	CategoryBlurry     Category = "blurry"
	CategorySelfie     Category = "selfie"
	CategoryLargeVideo Category = "large_video"
)

// ErrSizeMismatch is returned when ids and sizes differ in length.
var ErrSizeMismatch = errors.New("item ids and sizes must have the same length")

// Group is a set of items with an optional keeper. Aggregates are computed
// from membership on every call.
type Group struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	ItemIDs     []string `json:"item_ids"`
	ItemSizes   []int64  `json:"item_sizes"`
	KeeperIndex *int     `json:"keeper_index,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
}

// NewGroup builds a group. An out-of-range keeper index is kept as given and
// simply resolves to no keeper.
func NewGroup(category Category, ids []string, sizes []int64, keeperIndex *int) (Group, error) {
	if len(ids) != len(sizes) {
		return Group{}, ErrSizeMismatch
	}
	g := Group{
		ID:          uuid.NewString(),
		Category:    category,
		ItemIDs:     append([]string(nil), ids...),
		ItemSizes:   append([]int64(nil), sizes...),
		DisplayName: defaultDisplayName(category),
	}
	if keeperIndex != nil {
		k := *keeperIndex
		g.KeeperIndex = &k
	}
	return g, nil
}

func defaultDisplayName(c Category) string {
	switch c {
	case CategorySimilar:
		return "Similar photos"
	case CategoryDuplicate:
		return "Duplicates"
	case CategoryScreenshot:
		return "Screenshots"
	case CategoryBlurry:
		return "Blurry photos"
	case CategorySelfie:
		return "Selfies"
	case CategoryLargeVideo:
		return "Large videos"
	default:
		return ""
	}
}

// Count is the number of members.
func (g Group) Count() int {
	return len(g.ItemIDs)
}

func (g Group) keeperIndex() (int, bool) {
	if g.KeeperIndex == nil {
		return 0, false
	}
	k := *g.KeeperIndex
	if k < 0 || k >= len(g.ItemIDs) || k >= len(g.ItemSizes) {
		return 0, false
	}
	return k, true
}

// Keeper returns the id of the item to keep, if one resolves.
func (g Group) Keeper() (string, bool) {
	k, ok := g.keeperIndex()
	if !ok {
		return "", false
	}
	return g.ItemIDs[k], true
}

// TotalSize sums member sizes.
func (g Group) TotalSize() int64 {
	var total int64
	for _, s := range g.ItemSizes {
		total += s
	}
	return total
}

// ReclaimableSize is the total minus the keeper, or the total without a keeper.
func (g Group) ReclaimableSize() int64 {
	total := g.TotalSize()
	if k, ok := g.keeperIndex(); ok {
		total -= g.ItemSizes[k]
	}
	return total
}

// ReclaimableCount is the number of members that are not the keeper.
func (g Group) ReclaimableCount() int {
	if _, ok := g.keeperIndex(); ok {
		return g.Count() - 1
	}
	return g.Count()
}

// ReclaimableIDs lists the members that are not the keeper.
func (g Group) ReclaimableIDs() []string {
	k, ok := g.keeperIndex()
	out := make([]string, 0, len(g.ItemIDs))
	for i, id := range g.ItemIDs {
		if ok && i == k {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Contains reports membership.
func (g Group) Contains(id string) bool {
	for _, m := range g.ItemIDs {
		if m == id {
			return true
		}
	}
	return false
}

// Actionable reports whether the group still offers a choice: similarity
// groups need two members, category groups one.
func (g Group) Actionable() bool {
	switch g.Category {
	case CategorySimilar, CategoryDuplicate:
		return g.Count() >= 2
	default:
		return g.Count() >= 1
	}
}

// Without returns a copy with the given members removed. The keeper follows
// its item; if the keeper is removed the copy has none.
func (g Group) Without(ids ...string) Group {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	keeperID, hasKeeper := g.Keeper()

	out := Group{ID: g.ID, Category: g.Category, DisplayName: g.DisplayName}
	for i, id := range g.ItemIDs {
		if drop[id] {
			continue
		}
		out.ItemIDs = append(out.ItemIDs, id)
		out.ItemSizes = append(out.ItemSizes, g.ItemSizes[i])
		if hasKeeper && id == keeperID {
			k := len(out.ItemIDs) - 1
			out.KeeperIndex = &k
		}
	}
	return out
}
