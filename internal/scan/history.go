/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"context"
	"fmt"

	"github.com/friendsincode/snapsweep/internal/models"
	"gorm.io/gorm"
)

// History persists scan runs.
type History struct {
	db *gorm.DB
}

// NewHistory creates a RunRecorder backed by db.
func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

// RecordRun implements RunRecorder.
func (h *History) RecordRun(ctx context.Context, run models.ScanRun) error {
	if err := h.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("create scan run: %w", err)
	}
	return nil
}

// List returns the most recent runs first. A limit of zero means 20.
func (h *History) List(ctx context.Context, limit int) ([]models.ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.ScanRun
	if err := h.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	return runs, nil
}
