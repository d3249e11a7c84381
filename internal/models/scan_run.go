/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ScanRun summarizes one finished scan.
type ScanRun struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	State            string    `gorm:"type:varchar(32);not null;index" json:"state"`
	FailureReason    string    `gorm:"type:varchar(32)" json:"failure_reason,omitempty"`
	TotalItems       int       `json:"total_items"`
	AnalyzedItems    int       `json:"analyzed_items"`
	FailedItems      int       `json:"failed_items"`
	SkippedItems     int       `json:"skipped_items"`
	GroupCount       int       `json:"group_count"`
	ReclaimableBytes int64     `json:"reclaimable_bytes"`
	LowDiskSpace     bool      `json:"low_disk_space"`
	StartedAt        time.Time `gorm:"not null;index" json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (ScanRun) TableName() string {
	return "scan_runs"
}

// Duration is the wall time of the run.
func (r ScanRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
