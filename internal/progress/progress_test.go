/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package progress

import (
	"errors"
	"testing"
)

func TestUpdateClamps(t *testing.T) {
	var seen []float64
	tr := NewTracker(func(s Snapshot) { seen = append(seen, s.Value) })

	tr.Update(PhaseAnalyzing, -0.5)
	tr.Update(PhaseAnalyzing, 1.5)

	if len(seen) != 2 || seen[0] != 0 || seen[1] != 1 {
		t.Fatalf("observed %v, want [0 1]", seen)
	}
}

func TestIncreasingInputsAreNonDecreasing(t *testing.T) {
	var seen []float64
	tr := NewTracker(func(s Snapshot) { seen = append(seen, s.Value) })

	for _, v := range []float64{0, 0.1, 0.25, 0.25, 0.6, 0.99, 1} {
		tr.Update(PhaseAnalyzing, v)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("sequence decreased at %d: %v", i, seen)
		}
	}
}

func TestReportErrorKeepsValue(t *testing.T) {
	tr := NewTracker(nil)
	tr.Update(PhaseAnalyzing, 0.4)
	tr.ReportError(errors.New("disk gone"))

	s := tr.Snapshot()
	if s.Value != 0.4 || s.Phase != PhaseAnalyzing {
		t.Fatalf("value changed after error: %+v", s)
	}
	if s.Err == nil || s.Error != "disk gone" {
		t.Fatalf("error not recorded: %+v", s)
	}
}

func TestResetZeroes(t *testing.T) {
	tr := NewTracker(nil)
	tr.Update(PhaseGrouping, 0.9)
	tr.ReportError(errors.New("x"))
	tr.Reset()

	s := tr.Snapshot()
	if s.Value != 0 || s.Err != nil || s.Phase != PhaseInitialization {
		t.Fatalf("reset left state behind: %+v", s)
	}
}

func TestWeighted(t *testing.T) {
	tests := []struct {
		phase    Phase
		fraction float64
		want     float64
	}{
		{PhaseInitialization, 0, 0},
		{PhaseInitialization, 1, 0.05},
		{PhaseScanning, 1, 0.15},
		{PhaseAnalyzing, 0.5, 0.525},
		{PhaseGrouping, 1, 1},
		{PhaseCompleted, 0, 1},
		{PhaseAnalyzing, 2, 0.9},
	}
	for _, tt := range tests {
		got := Weighted(tt.phase, tt.fraction)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Weighted(%s, %v) = %v, want %v", tt.phase, tt.fraction, got, tt.want)
		}
	}

	prev := -1.0
	for _, p := range Phases {
		for _, f := range []float64{0, 0.5, 1} {
			v := Weighted(p, f)
			if v < prev {
				t.Fatalf("weighted progress decreased at %s/%v", p, f)
			}
			prev = v
		}
	}
}
