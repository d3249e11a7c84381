/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// TrashEntry is a soft-deleted media item awaiting restore or permanent deletion.
// Rows are written once and removed on restore, permanent delete or sweep.
type TrashEntry struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ItemID       string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"item_id"`
	AssetRef     string    `gorm:"type:text" json:"asset_ref"`
	ThumbnailKey string    `gorm:"type:varchar(255)" json:"thumbnail_key,omitempty"`
	DeletedAt    time.Time `gorm:"not null;index" json:"deleted_at"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`
	Size         int64     `gorm:"not null" json:"size"`

	// Captured from the item at deletion time
	OriginalCreatedAt time.Time `json:"original_created_at"`
	Width             int       `json:"width"`
	Height            int       `json:"height"`
	Kind              string    `gorm:"type:varchar(16)" json:"kind"`
	Favorite          bool      `json:"favorite"`

	Reason string `gorm:"type:varchar(64);index" json:"reason,omitempty"`
}

// TableName returns the table name for GORM.
func (TrashEntry) TableName() string {
	return "trash_entries"
}

// IsExpired reports whether now is past the expiry.
func (e TrashEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// IsRestorable is the inverse of IsExpired.
func (e TrashEntry) IsRestorable(now time.Time) bool {
	return !e.IsExpired(now)
}

// DaysRemaining rounds the time left up to whole days, zero once expired.
func (e TrashEntry) DaysRemaining(now time.Time) int {
	if e.IsExpired(now) {
		return 0
	}
	left := e.ExpiresAt.Sub(now)
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) > 0 {
		days++
	}
	return days
}
