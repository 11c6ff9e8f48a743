// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsSubmittedTasks(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Shutdown()

	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&n, 1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(100), atomic.LoadInt64(&n))
}

func TestWorkerPoolSubmitAfterShutdownFails(t *testing.T) {
	p := NewWorkerPool(2)
	p.Shutdown()
	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestWorkerPoolBoundedQueueReturnsFull(t *testing.T) {
	block := make(chan struct{})
	p := NewWorkerPool(1, WithQueueCapacity(1))
	defer func() {
		close(block)
		p.Shutdown()
	}()

	require.NoError(t, p.Submit(func() { <-block })) // occupies the only worker
	time.Sleep(20 * time.Millisecond)                // let the worker pick it up

	require.NoError(t, p.Submit(func() {})) // fills the bounded queue
	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolFull)
}

func TestWorkerPoolRecoversPanickingTask(t *testing.T) {
	p := NewWorkerPool(1)
	defer p.Shutdown()

	var wg sync.WaitGroup
	wg.Add(2)
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		panic("boom")
	}))
	var ran int32
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		atomic.StoreInt32(&ran, 1)
	}))
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran), "pool must keep serving tasks after a panic")
}
