/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package memguard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecuteRefusesWhenAlwaysAbove(t *testing.T) {
	var samples int32
	sampler := SamplerFunc(func(context.Context) (uint64, error) {
		atomic.AddInt32(&samples, 1)
		return 300 * bytesPerMB, nil
	})
	g := New(200, sampler)

	ran := false
	err := g.ExecuteIfMemoryAvailable(context.Background(), 3, time.Millisecond, func(context.Context) error {
		ran = true
		return nil
	})

	if !errors.Is(err, ErrMemoryExceeded) {
		t.Fatalf("expected ErrMemoryExceeded, got %v", err)
	}
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected *ExceededError, got %T", err)
	}
	if exceeded.CurrentMB != 300 || exceeded.ThresholdMB != 200 {
		t.Fatalf("unexpected values: %+v", exceeded)
	}
	if exceeded.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", exceeded.Attempts)
	}
	if samples != 3 {
		t.Fatalf("sampled %d times, want 3", samples)
	}
	if ran {
		t.Fatal("op must not run")
	}
}

func TestExecuteRunsOnceMemoryDrops(t *testing.T) {
	readings := []uint64{500, 500, 100}
	var i int32
	sampler := SamplerFunc(func(context.Context) (uint64, error) {
		n := atomic.AddInt32(&i, 1) - 1
		return readings[n] * bytesPerMB, nil
	})
	g := New(200, sampler)

	ran := false
	err := g.ExecuteIfMemoryAvailable(context.Background(), 3, time.Millisecond, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("op should have run on third attempt")
	}
}

func TestExecutePropagatesOpError(t *testing.T) {
	g := New(200, StaticSampler(10*bytesPerMB))
	boom := errors.New("boom")
	if err := g.ExecuteIfMemoryAvailable(context.Background(), 3, 0, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected op error, got %v", err)
	}
}

func TestExecuteStopsOnCancel(t *testing.T) {
	g := New(200, StaticSampler(300*bytesPerMB))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.ExecuteIfMemoryAvailable(ctx, 5, time.Hour, func(context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsAboveThreshold(t *testing.T) {
	tests := []struct {
		name  string
		mb    uint64
		above bool
	}{
		{"below", 100, false},
		{"equal", 200, false},
		{"above", 201, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(200, StaticSampler(tt.mb*bytesPerMB))
			if got := g.IsAboveThreshold(context.Background()); got != tt.above {
				t.Fatalf("IsAboveThreshold = %v, want %v", got, tt.above)
			}
		})
	}
}

func TestSamplerErrorAdmits(t *testing.T) {
	g := New(200, SamplerFunc(func(context.Context) (uint64, error) {
		return 0, errors.New("unavailable")
	}))
	if g.IsAboveThreshold(context.Background()) {
		t.Fatal("sampling failure should not block work")
	}
}

func TestProcessSamplerReadsRSS(t *testing.T) {
	rss, err := NewProcessSampler().ResidentBytes(context.Background())
	if err != nil {
		t.Skipf("process memory unavailable: %v", err)
	}
	if rss == 0 {
		t.Fatal("expected non-zero RSS")
	}
}
