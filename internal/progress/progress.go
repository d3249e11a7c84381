/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package progress tracks a clamped [0,1] progress signal across scan phases.
package progress

import (
	"sync"
	"time"

	"github.com/friendsincode/snapsweep/internal/analysis"
)

// Phase labels a stage of a scan.
type Phase string

const (
	PhaseInitialization Phase = "initialization"
	PhaseScanning       Phase = "scanning"
	PhaseAnalyzing      Phase = "analyzing"
	PhaseGrouping       Phase = "grouping"
	PhaseCompleted      Phase = "completed"
)

// Phases lists every phase in order.
var Phases = []Phase{PhaseInitialization, PhaseScanning, PhaseAnalyzing, PhaseGrouping, PhaseCompleted}

var phaseWeights = map[Phase]float64{
	PhaseInitialization: 0.05,
	PhaseScanning:       0.10,
	PhaseAnalyzing:      0.75,
	PhaseGrouping:       0.10,
}

// Weighted maps a fraction within phase to overall progress.
func Weighted(phase Phase, fraction float64) float64 {
	if phase == PhaseCompleted {
		return 1
	}
	var base float64
	for _, p := range Phases {
		if p == phase {
			return analysis.Clamp(base + phaseWeights[p]*analysis.Clamp(fraction))
		}
		base += phaseWeights[p]
	}
	return analysis.Clamp(fraction)
}

// Snapshot is a point-in-time view of the tracker.
type Snapshot struct {
	Phase     Phase     `json:"phase"`
	Value     float64   `json:"value"`
	Err       error     `json:"-"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Observer receives every update. It is called with the tracker lock held and
// must not call back into the tracker.
type Observer func(Snapshot)

// Tracker stores the last reported progress. Phase order is not enforced.
type Tracker struct {
	mu       sync.Mutex
	phase    Phase
	value    float64
	err      error
	updated  time.Time
	observer Observer
}

// NewTracker creates a tracker that notifies observer, which may be nil.
func NewTracker(observer Observer) *Tracker {
	return &Tracker{phase: PhaseInitialization, observer: observer}
}

// SetObserver replaces the observer.
func (t *Tracker) SetObserver(observer Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = observer
}

// Update records value for phase after clamping it to [0,1].
func (t *Tracker) Update(phase Phase, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	t.value = analysis.Clamp(value)
	t.updated = time.Now()
	t.notify()
}

// ReportError records err. The last value is kept.
func (t *Tracker) ReportError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
	t.updated = time.Now()
	t.notify()
}

// Reset returns the tracker to zero.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseInitialization
	t.value = 0
	t.err = nil
	t.updated = time.Now()
	t.notify()
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Tracker) snapshot() Snapshot {
	s := Snapshot{Phase: t.phase, Value: t.value, Err: t.err, UpdatedAt: t.updated}
	if t.err != nil {
		s.Error = t.err.Error()
	}
	return s
}

func (t *Tracker) notify() {
	if t.observer != nil {
		t.observer(t.snapshot())
	}
}
