/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package trash

import (
	"errors"
	"fmt"
)

var (
	// ErrExpired is returned when a restore selects an entry past its expiry.
	ErrExpired = errors.New("trash entry expired")
	// ErrNotFound is returned when a requested entry does not exist.
	ErrNotFound = errors.New("trash entry not found")
	// ErrNothingRestorable is returned when auto-skip leaves nothing to restore.
	ErrNothingRestorable = errors.New("no restorable trash entries")
	// ErrAlreadyTrashed is returned for items that already have a trash entry.
	ErrAlreadyTrashed = errors.New("item already in trash")
	// ErrDeleteFailed is returned when the library could not delete some items.
	ErrDeleteFailed = errors.New("permanent delete failed")
)

// BatchError reports how many entries of a batch an error affected.
// Failures holds per-id causes when they are known: trash entry ids for
// operations on entries, item ids for SoftDelete.
type BatchError struct {
	Err      error
	Count    int
	Failures map[string]error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%v (%d affected)", e.Err, e.Count)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// AffectedCount extracts the count from a *BatchError, or 0.
func AffectedCount(err error) int {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Count
	}
	return 0
}
