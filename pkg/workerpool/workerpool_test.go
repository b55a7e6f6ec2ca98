package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	var current, peak int64
	var mu sync.Mutex

	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			n := atomic.AddInt64(&current, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return nil
		}
	}

	require.NoError(t, pool.RunAll(context.Background(), tasks))
	assert.LessOrEqual(t, peak, int64(2))
}

func TestPool_RunAllReturnsFirstError(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	boom := errors.New("boom")
	var ran int64
	tasks := []Task{
		func(context.Context) error { atomic.AddInt64(&ran, 1); return nil },
		func(context.Context) error { return boom },
		func(context.Context) error { atomic.AddInt64(&ran, 1); return nil },
	}

	err := pool.RunAll(context.Background(), tasks)
	assert.ErrorIs(t, err, boom)
	// Remaining tasks still ran to completion.
	assert.Equal(t, int64(2), atomic.LoadInt64(&ran))
}

func TestPool_ClosedRejectsWork(t *testing.T) {
	pool := New(1)
	pool.Close()

	err := pool.Execute(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_ExecuteHonorsContext(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	release := make(chan struct{})
	go pool.Execute(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(10 * time.Millisecond) // let the blocker take the slot

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pool.Execute(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestPool_DefaultSize(t *testing.T) {
	pool := New(0)
	defer pool.Close()
	assert.Greater(t, pool.Size(), 0)
}

func TestPool_RunAllEmpty(t *testing.T) {
	pool := New(2)
	defer pool.Close()
	assert.NoError(t, pool.RunAll(context.Background(), nil))
}
