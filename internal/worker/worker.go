// Package worker implements the Inference Worker (C4): an isolated unit
// that hosts one sandboxed runtime instance and 1-2 loaded models, and talks
// to the Coordinator purely via the message protocol of §6.2 — never shared
// mutable state. Isolation here is a goroutine with its own panic boundary;
// spec.md §9 explicitly allows threads, processes, or an isolate, provided a
// runtime fault cannot corrupt the coordinator.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nmtcore/transengine/internal/sandbox"
	"github.com/nmtcore/transengine/internal/workqueue"
)

// Worker hosts one sandbox.Model behind a FIFO Queue and emits Events on a
// buffered channel the Coordinator drains.
type Worker struct {
	mu    sync.Mutex
	state State

	runtime sandbox.Runtime
	model   sandbox.Model
	queue   *workqueue.Queue

	hanVariants map[string]bool
	sourceLang  string
	targetLang  string

	Events chan Event

	logger *log.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

// New boots a Worker: it starts in Booting and immediately transitions to
// Ready once the runtime handle is accepted (no model loaded yet — that
// happens in Init). rt must be non-nil; a nil rt fails the boot.
func New(parentCtx context.Context, rt sandbox.Runtime, hanVariants map[string]bool) (*Worker, error) {
	if rt == nil {
		return nil, fmt.Errorf("worker: runtime must not be nil")
	}
	ctx, cancel := context.WithCancel(parentCtx)
	w := &Worker{
		state:       Booting,
		runtime:     rt,
		hanVariants: hanVariants,
		Events:      make(chan Event, 16),
		logger:      log.WithField("component", "worker"),
		ctx:         ctx,
		cancel:      cancel,
	}
	w.queue = workqueue.New(ctx)
	w.transition(Ready)
	w.emit(WorkerReady{})
	return w, nil
}

func (w *Worker) transition(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// State returns the Worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) emit(e Event) {
	select {
	case w.Events <- e:
	case <-w.ctx.Done():
	}
}

// Init handles an InitRequest (§4.3 "Initialization"): it converts the
// wire-level ModelPayloads into sandbox.InitSpec, asks the runtime to load
// them, and emits InitSuccess or InitError exactly once.
func (w *Worker) Init(req InitRequest) {
	if w.State() != Ready {
		w.emit(InitError{Err: fmt.Errorf("worker: Init called from state %s", w.State())})
		return
	}

	spec := sandbox.InitSpec{
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
	}
	for _, p := range req.ModelPayloads {
		buffers := make(map[sandbox.FileKind][]byte, len(p.Files))
		names := make(map[sandbox.FileKind]string, len(p.Files))
		for k, v := range p.Files {
			buffers[sandbox.FileKind(k)] = v.Data
			names[sandbox.FileKind(k)] = v.Name
		}
		spec.Models = append(spec.Models, sandbox.ModelSpec{From: p.From, To: p.To, Buffers: buffers, FileNames: names})
	}

	model, err := func() (m sandbox.Model, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("worker: runtime panicked during Load: %v", r)
			}
		}()
		return w.runtime.Load(w.ctx, spec)
	}()

	if err != nil {
		w.transition(Terminated)
		w.emit(InitError{Err: err})
		return
	}

	w.mu.Lock()
	w.model = model
	w.sourceLang = req.SourceLanguage
	w.targetLang = req.TargetLanguage
	w.mu.Unlock()

	w.transition(Initialized)
	w.emit(InitSuccess{})
	w.transition(Serving)
}

// Submit handles a TranslationRequest: CleanText runs synchronously and the
// task is enqueued on the Worker's Queue synchronously too, so two Submit
// calls made in submission order land in the queue in that same order, per
// the per-worker FIFO invariant of spec.md §4.4. Only awaiting the result
// happens on a background goroutine.
func (w *Worker) Submit(req TranslationRequest) {
	if w.State() != Serving {
		w.emit(TranslationError{
			MessageID: req.MessageID, TranslationID: req.TranslationID,
			Err: fmt.Errorf("worker: not serving (state=%s)", w.State()),
		})
		return
	}

	clean := CleanText(w.sourceLang, req.SourceText, w.hanVariants)

	task, err := w.queue.Enqueue(req.TranslationID, func(ctx context.Context) (any, error) {
		translated, millis, err := w.safeTranslate(ctx, clean.Cleaned)
		if err != nil {
			return nil, err
		}
		w.emit(TranslationResponse{
			MessageID: req.MessageID, TranslationID: req.TranslationID,
			TargetText: clean.Rewrap(translated), InferenceMillis: millis,
		})
		return nil, nil
	})
	if err != nil {
		w.emit(TranslationError{MessageID: req.MessageID, TranslationID: req.TranslationID, Err: err})
		return
	}

	go func() {
		if _, err := w.queue.Wait(w.ctx, task); err != nil {
			w.emit(TranslationError{MessageID: req.MessageID, TranslationID: req.TranslationID, Err: err})
		}
	}()
}

// safeTranslate recovers from a runtime panic so one bad sentence cannot
// crash the Worker's drain goroutine; a panic here still surfaces as an
// ordinary TranslationError, consistent with "per-message inference errors
// fail that request; the pool remains usable" (spec.md §7).
func (w *Worker) safeTranslate(ctx context.Context, cleaned string) (text string, millis int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: runtime panicked during Translate: %v", r)
		}
	}()
	start := time.Now()
	w.mu.Lock()
	model := w.model
	w.mu.Unlock()
	if model == nil {
		return "", 0, fmt.Errorf("worker: no model loaded")
	}
	text, millis, err = model.Translate(ctx, cleaned)
	if err == nil && millis == 0 {
		millis = time.Since(start).Milliseconds()
	}
	return text, millis, err
}

// DiscardQueue handles a DiscardQueue message: it cancels every queued
// (not yet running) task and acknowledges with TranslationsDiscarded. It
// does not change Worker state — the Worker keeps serving.
func (w *Worker) DiscardQueue() {
	w.queue.CancelAll()
	w.emit(TranslationsDiscarded{})
}

// CancelOne handles a CancelOne message: worker-local removal from the
// queue if still pending; a running task finishes normally.
func (w *Worker) CancelOne(translationID string) {
	w.queue.CancelOne(translationID)
}

// Terminate releases all resources: the runtime model, the queue, and the
// cancellation context. Safe to call more than once; further messages are
// ignored once Terminated.
func (w *Worker) Terminate() {
	w.mu.Lock()
	if w.state == Terminated {
		w.mu.Unlock()
		return
	}
	w.state = Terminated
	model := w.model
	w.model = nil
	w.mu.Unlock()

	w.cancel()
	w.queue.Close()
	if model != nil {
		_ = model.Close()
	}
}
