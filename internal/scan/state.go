/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scan

import (
	"errors"
	"time"

	"github.com/friendsincode/snapsweep/internal/grouping"
	"github.com/friendsincode/snapsweep/internal/progress"
)

var (
	// ErrNotAuthorized is returned when the library denies access.
	ErrNotAuthorized = errors.New("library access not granted")
	// ErrScanInProgress is returned when Scan is called while a scan runs.
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrNotIdle is returned when Scan is called from a terminal state
	// without Reset.
	ErrNotIdle = errors.New("scanner is not idle; reset first")
	// ErrCancelled is returned by a scan that was cancelled.
	ErrCancelled = errors.New("scan cancelled")
)

// StateKind is the coarse scanner state.
type StateKind string

const (
	StateIdle      StateKind = "idle"
	StateRunning   StateKind = "running"
	StateCompleted StateKind = "completed"
	StateCancelled StateKind = "cancelled"
	StateFailed    StateKind = "failed"
)

// Terminal reports whether no further transitions happen without Reset.
func (k StateKind) Terminal() bool {
	return k == StateCompleted || k == StateCancelled || k == StateFailed
}

// FailureReason explains a failed or cancelled scan.
type FailureReason string

const (
	FailureNone             FailureReason = ""
	FailureNotAuthorized    FailureReason = "not_authorized"
	FailureResourcePressure FailureReason = "resource_pressure"
	FailureCancelled        FailureReason = "cancelled"
	FailureSource           FailureReason = "source_error"
)

// State is the scanner state. Progress is meaningful while running.
type State struct {
	Kind     StateKind     `json:"state"`
	Progress float64       `json:"progress"`
	Reason   FailureReason `json:"reason,omitempty"`
}

// Snapshot is what observers receive: the state plus the tracker's view.
type Snapshot struct {
	State    State             `json:"state"`
	Progress progress.Snapshot `json:"progress"`
}

// ItemFailure records an item whose fetch or analysis failed.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Err    error  `json:"-"`
	Error  string `json:"error"`
}

// Timings breaks a scan's wall time into phases.
type Timings struct {
	Enumerate time.Duration `json:"enumerate"`
	Analyze   time.Duration `json:"analyze"`
	Group     time.Duration `json:"group"`
	Total     time.Duration `json:"total"`
}

// Report is the outcome of one scan.
type Report struct {
	RunID         string           `json:"run_id"`
	State         StateKind        `json:"state"`
	FailureReason FailureReason    `json:"failure_reason,omitempty"`
	Groups        []grouping.Group `json:"groups"`

	Total     int `json:"total"`
	Analyzed  int `json:"analyzed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Excluded  int `json:"excluded"`
	CacheHits int `json:"cache_hits"`

	Failures         []ItemFailure `json:"failures,omitempty"`
	ReclaimableBytes int64         `json:"reclaimable_bytes"`

	FreeSpaceBytes uint64 `json:"free_space_bytes,omitempty"`
	LowDiskSpace   bool   `json:"low_disk_space"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Timings    Timings   `json:"timings"`
}

// reclaimable sums the sizes of every non-keeper member across groups.
// An item in several groups is counted once.
func reclaimable(groups []grouping.Group) int64 {
	seen := make(map[string]bool)
	var total int64
	for _, g := range groups {
		keeper, hasKeeper := g.Keeper()
		for i, id := range g.ItemIDs {
			if (hasKeeper && id == keeper) || seen[id] {
				continue
			}
			seen[id] = true
			total += g.ItemSizes[i]
		}
	}
	return total
}
