// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool admits tasks up to a total weight.
type Pool struct {
	semaphore *semaphore.Weighted
	capacity  int64

	mu    sync.Mutex
	inUse int64
	peak  int64
	ran   atomic.Int64
}

// New returns a pool with the given capacity. A capacity below one
// selects runtime.NumCPU().
func New(capacity int64) *Pool {
	if capacity < 1 {
		capacity = int64(runtime.NumCPU())
	}
	return &Pool{semaphore: semaphore.NewWeighted(capacity), capacity: capacity}
}

// Capacity returns the total weight budget.
func (p *Pool) Capacity() int64 { return p.capacity }

// Peak returns the largest total weight that was ever running at once.
func (p *Pool) Peak() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// Completed returns the number of tasks that have run.
func (p *Pool) Completed() int64 { return p.ran.Load() }

func (p *Pool) clamp(weight int64) int64 {
	return min(max(weight, 1), p.capacity)
}

// run executes fn once weight is admitted.
func (p *Pool) run(ctx context.Context, weight int64, fn func(context.Context) error) error {
	weight = p.clamp(weight)
	if err := p.semaphore.Acquire(ctx, weight); err != nil {
		return err
	}
	p.mu.Lock()
	p.inUse += weight
	p.peak = max(p.peak, p.inUse)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inUse -= weight
		p.mu.Unlock()
		p.semaphore.Release(weight)
		p.ran.Add(1)
	}()
	return protect(ctx, fn)
}

func protect(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("task panicked: %v", recovered)
		}
	}()
	return fn(ctx)
}
