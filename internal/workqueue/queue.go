// Package workqueue implements the per-Worker FIFO task queue of spec.md
// §4.4: strict insertion-order execution, with cooperative yielding so a
// long batch can never starve cancellation, bounded by either a time budget
// or a task-count budget.
package workqueue

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"
)

// Fixed contract constants (spec.md §4.4).
const (
	RunImmediately = 20
	TimeBudget     = 100 * time.Millisecond
	BatchSize      = 5
)

// ErrCancelled is returned to a task's awaiter when CancelOne/CancelAll
// removes it from the queue before it started running.
var ErrCancelled = errors.New("workqueue: task cancelled")

// ErrClosed is returned to anything enqueued after Close.
var ErrClosed = errors.New("workqueue: queue closed")

// Task is one unit of work: it runs to completion once started (the queue
// never interrupts a running task — only queued-but-not-started tasks can
// be cancelled).
type Task func(ctx context.Context) (any, error)

type entry struct {
	id     string
	task   Task
	result chan taskResult
}

type taskResult struct {
	value any
	err   error
}

// Queue is a single-consumer FIFO. Exactly one Worker owns a Queue, and at
// most one task from it executes at any time.
type Queue struct {
	mu      sync.Mutex
	pending []*entry
	byID    map[string]*entry
	running *entry

	enqueueSig chan struct{}
	closeOnce  sync.Once
	closed     chan struct{}

	totalRun uint64 // lifetime count, drives the RUN_IMMEDIATELY bypass
}

// New starts a Queue's drain loop and returns it. ctx governs the lifetime
// of the loop; cancelling ctx stops the queue (equivalent to Close).
func New(ctx context.Context) *Queue {
	q := &Queue{
		byID:       make(map[string]*entry),
		enqueueSig: make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
	go q.drain(ctx)
	return q
}

// Enqueue appends task under id to the back of the queue and returns
// immediately, before the task has run. It is the synchronous half of
// RunTask: a caller that must preserve submission order across concurrent
// producers calls Enqueue directly (so the append happens before the
// caller's own call returns) and awaits the result separately via Wait.
func (q *Queue) Enqueue(id string, task Task) (*entry, error) {
	e := &entry{id: id, task: task, result: make(chan taskResult, 1)}

	q.mu.Lock()
	select {
	case <-q.closed:
		q.mu.Unlock()
		return nil, ErrClosed
	default:
	}
	q.pending = append(q.pending, e)
	q.byID[id] = e
	q.mu.Unlock()

	select {
	case q.enqueueSig <- struct{}{}:
	default:
	}
	return e, nil
}

// Wait blocks until e completes, is cancelled, or ctx is done.
func (q *Queue) Wait(ctx context.Context, e *entry) (any, error) {
	select {
	case r := <-e.result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunTask enqueues task under id (insertion order) and blocks until it
// completes, is cancelled, or ctx is done.
func (q *Queue) RunTask(ctx context.Context, id string, task Task) (any, error) {
	e, err := q.Enqueue(id, task)
	if err != nil {
		return nil, err
	}
	return q.Wait(ctx, e)
}

// CancelOne removes id from the queue if it has not started running yet.
// A task already running is left to finish; its eventual result is still
// delivered to RunTask's waiter (discarding it is the Coordinator's job,
// per spec.md §4.4).
func (q *Queue) CancelOne(id string) {
	q.mu.Lock()
	e, ok := q.byID[id]
	if !ok || e == q.running {
		q.mu.Unlock()
		return
	}
	q.removeLocked(id)
	q.mu.Unlock()

	e.result <- taskResult{err: ErrCancelled}
}

// CancelAll removes every queued-but-not-running task, failing each with
// ErrCancelled. A task currently executing is allowed to finish.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	victims := q.pending
	q.pending = nil
	for _, e := range victims {
		delete(q.byID, e.id)
	}
	q.mu.Unlock()

	for _, e := range victims {
		e.result <- taskResult{err: ErrCancelled}
	}
}

// Close stops the drain loop. Queued tasks are cancelled; a running task is
// allowed to finish.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
		q.CancelAll()
	})
}

func (q *Queue) removeLocked(id string) {
	delete(q.byID, id)
	for i, e := range q.pending {
		if e.id == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

func (q *Queue) popLocked() *entry {
	if len(q.pending) == 0 {
		return nil
	}
	e := q.pending[0]
	q.pending = q.pending[1:]
	delete(q.byID, e.id)
	return e
}

// drain is the sole goroutine that executes tasks, guaranteeing FIFO order
// and at-most-one-running-at-a-time for this queue.
func (q *Queue) drain(ctx context.Context) {
	windowStart := time.Now()
	windowCount := 0

	for {
		select {
		case <-ctx.Done():
			q.Close()
			return
		case <-q.closed:
			return
		default:
		}

		q.mu.Lock()
		e := q.popLocked()
		if e == nil {
			q.mu.Unlock()
			select {
			case <-q.enqueueSig:
			case <-ctx.Done():
				q.Close()
				return
			case <-q.closed:
				return
			}
			continue
		}
		q.running = e
		q.mu.Unlock()

		value, err := e.task(ctx)
		e.result <- taskResult{value: value, err: err}

		q.mu.Lock()
		q.running = nil
		q.totalRun++
		bypass := q.totalRun <= RunImmediately
		q.mu.Unlock()

		if bypass {
			continue
		}

		windowCount++
		if windowCount >= BatchSize || time.Since(windowStart) >= TimeBudget {
			runtime.Gosched()
			windowStart = time.Now()
			windowCount = 0
		}
	}
}
