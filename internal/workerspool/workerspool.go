// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent tasks, such as matching a template on many images, with bounded
// parallelism.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. Create it with New.
type Pool struct {
	// maxParallelism is the limit of tasks running at the same time.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int
}

// New returns a new Pool running at most maxParallelism tasks at a time.
// If maxParallelism is 0, runtime.NumCPU() is used. If it is negative, parallelism is unlimited.
func New(maxParallelism int) *Pool {
	if maxParallelism == 0 {
		maxParallelism = runtime.NumCPU()
	}
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// MaxParallelism returns the limit of tasks running at the same time, negative if unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	return w.maxParallelism > 0 && w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available, and runs the task in a separate goroutine.
func (w *Pool) WaitToStart(task func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Broadcast()
			w.mu.Unlock()
		}()
		task()
	}()
}

// Wait blocks until all started tasks are finished.
func (w *Pool) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.numRunning > 0 {
		w.cond.Wait()
	}
}

// Run calls fn(ii) for ii in [0, n) using the pool, and waits for all of them to finish.
// It returns the first error returned, in index order.
func (w *Pool) Run(n int, fn func(ii int) error) error {
	errs := make([]error, n)
	for ii := range n {
		w.WaitToStart(func() { errs[ii] = fn(ii) })
	}
	w.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
