// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Run(t *testing.T) {
	const maxParallelism, numTasks = 3, 20
	pool := New(maxParallelism)
	assert.Equal(t, maxParallelism, pool.MaxParallelism())

	var running, maxRunning, count atomic.Int32
	err := pool.Run(numTasks, func(ii int) error {
		current := running.Add(1)
		for {
			seen := maxRunning.Load()
			if current <= seen || maxRunning.CompareAndSwap(seen, current) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		runtime.Gosched()
		count.Add(1)
		running.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(numTasks), count.Load())
	assert.LessOrEqual(t, int(maxRunning.Load()), maxParallelism)
}

func TestPool_RunErrors(t *testing.T) {
	pool := New(-1)
	err := pool.Run(5, func(ii int) error {
		if ii >= 2 {
			return errors.Errorf("task #%d failed", ii)
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, "task #2 failed", err.Error())
}

func TestPool_Default(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), New(0).MaxParallelism())
	pool := New(0)
	pool.Wait() // Nothing running: returns immediately.
}
