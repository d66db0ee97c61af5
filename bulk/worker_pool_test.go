package bulk

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	wp := NewWorkerPool(4)
	defer wp.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup

	const tasks = 100
	wg.Add(tasks)
	for i := 0; i < tasks; i++ {
		require.NoError(t, wp.Submit(func() {
			counter.Add(1)
			wg.Done()
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(tasks), counter.Load())
}

func TestWorkerPoolCloseDrains(t *testing.T) {
	wp := NewWorkerPool(2)

	var counter atomic.Int64
	for i := 0; i < 50; i++ {
		require.NoError(t, wp.Submit(func() {
			counter.Add(1)
		}))
	}

	wp.Close()
	assert.Equal(t, int64(50), counter.Load())
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	wp := NewWorkerPool(1)
	wp.Close()

	err := wp.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPoolCloseIdempotent(t *testing.T) {
	wp := NewWorkerPool(1)
	wp.Close()
	wp.Close()
}

func TestWorkerPoolDefaultSize(t *testing.T) {
	wp := NewWorkerPool(0)
	defer wp.Close()

	assert.Greater(t, wp.numWorkers, 0)
}
