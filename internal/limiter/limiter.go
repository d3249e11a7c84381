/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package limiter bounds how many analysis operations run at once.
package limiter

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the concurrency cap used when settings do not override it.
const DefaultLimit = 8

// ErrInvalidLimit is returned by New for a limit below one.
var ErrInvalidLimit = errors.New("limiter: limit must be at least 1")

// Limiter admits at most Limit operations at a time. Waiters are admitted in
// arrival order.
type Limiter struct {
	sem   *semaphore.Weighted
	limit int

	mu          sync.Mutex
	inFlight    int
	maxObserved int
}

// New creates a limiter with the given ceiling.
func New(limit int) (*Limiter, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	return &Limiter{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}, nil
}

// Limit returns the configured ceiling.
func (l *Limiter) Limit() int {
	return l.limit
}

// InFlight returns the number of operations currently holding a slot.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// MaxObserved returns the highest in-flight count seen since creation.
func (l *Limiter) MaxObserved() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxObserved
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.maxObserved {
		l.maxObserved = l.inFlight
	}
	l.mu.Unlock()
	return nil
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
	l.sem.Release(1)
}

// Execute runs op once a slot is available. If ctx ends while waiting, op is
// never called and the context error is returned. The slot is released however
// op returns, panics included.
func Execute[T any](ctx context.Context, l *Limiter, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := l.Acquire(ctx); err != nil {
		return zero, err
	}
	defer l.Release()
	return op(ctx)
}

// Do is Execute for operations without a result.
func (l *Limiter) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Execute(ctx, l, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
