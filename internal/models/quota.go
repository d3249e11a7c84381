/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// QuotaKeyLifetimeDeleted is the counter of items ever deleted on the free tier.
const QuotaKeyLifetimeDeleted = "lifetime_deleted"

// QuotaRecord is a persisted counter keyed by name.
type QuotaRecord struct {
	Key       string    `gorm:"column:quota_key;type:varchar(64);primaryKey" json:"key"`
	Value     int64     `gorm:"not null;default:0" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (QuotaRecord) TableName() string {
	return "quota_records"
}
