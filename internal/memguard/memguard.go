/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package memguard delays or refuses work while process memory is above a threshold.
package memguard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrMemoryExceeded matches any ExceededError.
var ErrMemoryExceeded = errors.New("memory threshold exceeded")

// ExceededError reports the last observed usage after admission gave up.
type ExceededError struct {
	CurrentMB   float64
	ThresholdMB float64
	Attempts    int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("memory usage %.1f MB above threshold %.1f MB after %d attempts", e.CurrentMB, e.ThresholdMB, e.Attempts)
}

// Is lets errors.Is(err, ErrMemoryExceeded) succeed.
func (e *ExceededError) Is(target error) bool {
	return target == ErrMemoryExceeded
}

// Sampler reports current resident memory in bytes.
type Sampler interface {
	ResidentBytes(ctx context.Context) (uint64, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (uint64, error)

func (f SamplerFunc) ResidentBytes(ctx context.Context) (uint64, error) {
	return f(ctx)
}

// StaticSampler always reports the same value.
type StaticSampler uint64

func (s StaticSampler) ResidentBytes(context.Context) (uint64, error) {
	return uint64(s), nil
}

// ProcessSampler reads the RSS of the current process.
type ProcessSampler struct {
	once sync.Once
	proc *process.Process
	err  error
}

// NewProcessSampler returns a sampler for this process.
func NewProcessSampler() *ProcessSampler {
	return &ProcessSampler{}
}

func (s *ProcessSampler) ResidentBytes(ctx context.Context) (uint64, error) {
	s.once.Do(func() {
		s.proc, s.err = process.NewProcessWithContext(ctx, int32(os.Getpid()))
	})
	if s.err != nil {
		return 0, fmt.Errorf("open process: %w", s.err)
	}
	info, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("read memory info: %w", err)
	}
	return info.RSS, nil
}

const bytesPerMB = 1024 * 1024

// Guard compares sampled memory with a fixed threshold.
type Guard struct {
	thresholdMB float64
	sampler     Sampler
}

// New creates a guard. A nil sampler reads this process's RSS.
func New(thresholdMB int, sampler Sampler) *Guard {
	if sampler == nil {
		sampler = NewProcessSampler()
	}
	return &Guard{thresholdMB: float64(thresholdMB), sampler: sampler}
}

// ThresholdMB returns the configured threshold.
func (g *Guard) ThresholdMB() float64 {
	return g.thresholdMB
}

// CurrentMB samples resident memory.
func (g *Guard) CurrentMB(ctx context.Context) (float64, error) {
	b, err := g.sampler.ResidentBytes(ctx)
	if err != nil {
		return 0, err
	}
	return float64(b) / bytesPerMB, nil
}

// IsAboveThreshold reports whether current usage is above the threshold.
// A failed sample counts as below threshold.
func (g *Guard) IsAboveThreshold(ctx context.Context) bool {
	above, _ := g.check(ctx)
	return above
}

func (g *Guard) check(ctx context.Context) (bool, float64) {
	mb, err := g.CurrentMB(ctx)
	if err != nil {
		return false, 0
	}
	return mb > g.thresholdMB, mb
}

// ExecuteIfMemoryAvailable runs op once usage is at or below the threshold.
// It checks up to maxRetries times, waiting retryDelay between checks. If
// memory never drops, op is not called and an *ExceededError is returned.
func (g *Guard) ExecuteIfMemoryAvailable(ctx context.Context, maxRetries int, retryDelay time.Duration, op func(context.Context) error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var current float64
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var above bool
		above, current = g.check(ctx)
		if !above {
			return op(ctx)
		}
		if attempt == maxRetries {
			break
		}
		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &ExceededError{CurrentMB: current, ThresholdMB: g.thresholdMB, Attempts: maxRetries}
}
