// Package enginepool implements the Engine Pool (C6): a fixed-size,
// round-robin set of Workers serving one language pair, constructed
// atomically — either every worker reaches Initialized or the whole pool
// construction fails and any siblings that did succeed are torn down.
package enginepool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nmtcore/transengine/internal/sandbox"
	"github.com/nmtcore/transengine/internal/worker"
)

// ErrInitTimeout distinguishes a Build that failed because a worker never
// reached Initialized within its timeout from one that failed because the
// worker itself reported an InitError.
var ErrInitTimeout = errors.New("enginepool: worker init timed out")

// WorkerSpec is everything needed to boot and initialize one Worker.
type WorkerSpec struct {
	Runtime     sandbox.Runtime
	HanVariants map[string]bool
	Init        worker.InitRequest
}

// Pool is a fixed-size array of Workers for a single language pair.
type Pool struct {
	pair    string
	workers []*worker.Worker
	rrIndex atomic.Uint64

	mu       sync.Mutex
	events   chan PoolEvent
	done     chan struct{}
	doneOnce sync.Once
	pumpsWG  sync.WaitGroup
}

// PoolEvent carries one Worker's event up to the owner (Cache Manager),
// tagged with the worker's index so a worker-level failure can be traced
// back to the pool that must now be torn down.
type PoolEvent struct {
	WorkerIndex int
	Event       worker.Event
}

// Build constructs a Pool of len(specs) Workers, all-or-nothing: every
// Worker must emit InitSuccess within initTimeout or the whole build fails
// and every Worker that was started — successful or not — is terminated.
func Build(ctx context.Context, pair string, specs []WorkerSpec, initTimeout time.Duration) (*Pool, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("enginepool: pair %s: at least one worker spec required", pair)
	}

	workers := make([]*worker.Worker, 0, len(specs))
	abort := func() {
		for _, w := range workers {
			w.Terminate()
		}
	}

	for i, spec := range specs {
		w, err := worker.New(ctx, spec.Runtime, spec.HanVariants)
		if err != nil {
			abort()
			return nil, fmt.Errorf("enginepool: pair %s: worker %d boot: %w", pair, i, err)
		}
		workers = append(workers, w)

		w.Init(spec.Init)
		if err := awaitInit(ctx, w, initTimeout); err != nil {
			abort()
			return nil, fmt.Errorf("enginepool: pair %s: worker %d init: %w", pair, i, err)
		}
	}

	p := &Pool{
		pair:    pair,
		workers: workers,
		events:  make(chan PoolEvent, 64*len(workers)),
		done:    make(chan struct{}),
	}
	for i, w := range workers {
		p.pumpsWG.Add(1)
		go p.pump(i, w)
	}
	return p, nil
}

func awaitInit(ctx context.Context, w *worker.Worker, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-w.Events:
			switch e := ev.(type) {
			case worker.InitSuccess:
				return nil
			case worker.InitError:
				return e.Err
			}
		case <-deadline:
			return fmt.Errorf("enginepool: worker init timed out after %s: %w", timeout, ErrInitTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pool) pump(index int, w *worker.Worker) {
	defer p.pumpsWG.Done()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			select {
			case p.events <- PoolEvent{WorkerIndex: index, Event: ev}:
			case <-p.done:
				return
			}
		case <-p.done:
			return
		}
	}
}

// Events returns the channel on which every Worker's emitted events are
// multiplexed, tagged with the originating worker's index.
func (p *Pool) Events() <-chan PoolEvent { return p.events }

// Size returns WORKERS_PER_PAIR for this pool.
func (p *Pool) Size() int { return len(p.workers) }

// Submit dispatches req to the next worker in round-robin order and
// advances the index, per spec.md §4.5.
func (p *Pool) Submit(req worker.TranslationRequest) {
	i := p.rrIndex.Add(1) - 1
	w := p.workers[int(i)%len(p.workers)]
	w.Submit(req)
}

// DiscardAll sends DiscardQueue to every worker in the pool.
func (p *Pool) DiscardAll() {
	for _, w := range p.workers {
		w.DiscardQueue()
	}
}

// CancelOne forwards a single-translation cancellation to every worker;
// only the worker that actually queued translationID will act on it.
func (p *Pool) CancelOne(translationID string) {
	for _, w := range p.workers {
		w.CancelOne(translationID)
	}
}

// Terminate tears down every Worker and stops event pumping. Safe to call
// more than once. After Terminate returns, Events() is closed; a range loop
// over it still reads any events left in its buffer before it ends.
func (p *Pool) Terminate() {
	p.doneOnce.Do(func() {
		close(p.done)
		for _, w := range p.workers {
			w.Terminate()
		}
		p.pumpsWG.Wait()
		close(p.events)
	})
}
