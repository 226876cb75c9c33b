package jobs

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

func TestQueueProcessesRegisteredHandler(t *testing.T) {
	q := NewQueue("test", QueueConfig{Workers: 2, RetryDelay: time.Millisecond})
	var wg sync.WaitGroup
	wg.Add(3)
	var seen atomic.Int32
	q.Register("email.send", func(ctx context.Context, job Job) error {
		defer wg.Done()
		seen.Add(int32(job.Payload.(int)))
		return nil
	})

	q.Start(context.Background())
	defer q.Stop()

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Submit(context.Background(), "email.send", i))
	}
	wg.Wait()
	assert.Equal(t, int32(6), seen.Load())
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var results []error
	var mu sync.Mutex
	q := NewQueue("test", QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond, OnResult: func(_ string, _ int, err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	}})
	done := make(chan struct{})
	var attempts atomic.Int32
	q.Register("flaky", func(ctx context.Context, job Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("temporary")
		}
		close(done)
		return nil
	})

	q.Start(context.Background())
	defer q.Stop()
	require.NoError(t, q.Submit(context.Background(), "flaky", nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(3), attempts.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, results, 3)
}

func TestQueueRunsInlineWhenStopped(t *testing.T) {
	q := NewQueue("inline", QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	var calls int
	q.Register("flaky", func(ctx context.Context, job Job) error {
		calls++
		return errors.New("down")
	})

	err := q.Submit(context.Background(), "flaky", nil)
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestQueueUnknownJobType(t *testing.T) {
	q := NewQueue("inline", QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	err := q.Submit(context.Background(), "missing", nil)
	assert.ErrorContains(t, err, "no handler registered")
}

func TestEnqueueRequiresStart(t *testing.T) {
	q := NewQueue("idle", QueueConfig{})
	assert.Error(t, q.Enqueue(context.Background(), Job{Type: "x"}))
}

func TestSubmitGivesUpWhenBufferStaysFull(t *testing.T) {
	q := NewQueue("busy", QueueConfig{Workers: 1, BufferSize: 1, DrainTimeout: 10 * time.Millisecond})
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	q.Register("slow", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.Submit(context.Background(), "slow", 1))
	<-started
	require.NoError(t, q.Submit(context.Background(), "slow", 2))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Submit(ctx, "slow", 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
