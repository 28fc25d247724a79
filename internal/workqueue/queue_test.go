package workqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTaskFIFOOrder(t *testing.T) {
	ctx := context.Background()
	q := New(ctx)
	defer q.Close()

	var mu sync.Mutex
	var order []string

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := q.RunTask(ctx, id, func(ctx context.Context) (any, error) {
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				return id, nil
			})
			require.NoError(t, err)
		}(id)
		time.Sleep(5 * time.Millisecond) // ensure enqueue order matches goroutine start order
	}
	wg.Wait()

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestCancelOneRemovesQueuedTask(t *testing.T) {
	ctx := context.Background()
	q := New(ctx)
	defer q.Close()

	block := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_, _ = q.RunTask(ctx, "running", func(ctx context.Context) (any, error) {
			<-block
			return nil, nil
		})
		close(done)
	}()

	// Give the first task time to start running.
	time.Sleep(20 * time.Millisecond)

	resultCh := make(chan error, 1)
	go func() {
		_, err := q.RunTask(ctx, "queued", func(ctx context.Context) (any, error) {
			return nil, nil
		})
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.CancelOne("queued")

	select {
	case err := <-resultCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("expected cancelled result")
	}

	close(block)
	<-done
}

func TestCancelAllFailsOnlyQueuedTasks(t *testing.T) {
	ctx := context.Background()
	q := New(ctx)
	defer q.Close()

	block := make(chan struct{})
	runningDone := make(chan error, 1)
	go func() {
		_, err := q.RunTask(ctx, "running", func(ctx context.Context) (any, error) {
			<-block
			return "ok", nil
		})
		runningDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	queuedDone := make(chan error, 1)
	go func() {
		_, err := q.RunTask(ctx, "queued", func(ctx context.Context) (any, error) {
			return nil, nil
		})
		queuedDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	q.CancelAll()
	assert.ErrorIs(t, <-queuedDone, ErrCancelled)

	close(block)
	assert.NoError(t, <-runningDone)
}

func TestCloseRejectsFurtherEnqueues(t *testing.T) {
	ctx := context.Background()
	q := New(ctx)
	q.Close()

	_, err := q.RunTask(ctx, "late", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunImmediatelyBypassDoesNotBlockOnBudget(t *testing.T) {
	ctx := context.Background()
	q := New(ctx)
	defer q.Close()

	for i := 0; i < RunImmediately+2; i++ {
		_, err := q.RunTask(ctx, string(rune('a'+i)), func(ctx context.Context) (any, error) {
			return nil, nil
		})
		require.NoError(t, err)
	}
}
