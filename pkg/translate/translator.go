// Package translate is the public surface of the translation engine: the
// Translator Coordinator (C8) that normalizes input, plans script
// conversion and direct-vs-pivot routing, dispatches to an Engine Pool, and
// reassembles results, plus the typed error/config/language-table surface
// every other package in this module builds on.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pemistahl/lingua-go"
	log "github.com/sirupsen/logrus"

	"github.com/nmtcore/transengine/internal/cachemgr"
	"github.com/nmtcore/transengine/internal/detect"
	"github.com/nmtcore/transengine/internal/enginepool"
	"github.com/nmtcore/transengine/internal/modelstore"
	"github.com/nmtcore/transengine/internal/sandbox"
	"github.com/nmtcore/transengine/internal/sandbox/refengine"
	"github.com/nmtcore/transengine/internal/scriptconv"
	"github.com/nmtcore/transengine/internal/worker"
	"github.com/nmtcore/transengine/internal/workqueue"
)

// RuntimeFactory builds the sandbox.Runtime a new worker in pair's pool
// should host. The default factory returns a shared reference engine.
type RuntimeFactory func(pair string) sandbox.Runtime

// Translator is the Translator Coordinator (C8). A Translator is safe for
// concurrent use by multiple callers.
type Translator struct {
	cfg Config

	store    *modelstore.Store
	cache    *cachemgr.Manager
	detector *detect.Detector
	script   ScriptConverter
	runtimes RuntimeFactory

	logger *log.Entry

	msgID atomic.Uint64

	mu            sync.Mutex
	pending       map[uint64]*pendingEntry
	pendingByPair map[string]map[uint64]*pendingEntry
	shutdownOnce  sync.Once
	shutdown      bool

	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
}

// Stats is a supplemented diagnostic surface: coarse counters useful for
// operators, not part of the translation contract itself.
type Stats struct {
	TranslationsOK     uint64
	TranslationsFailed uint64
	PoolsBuilt         uint64
	PoolsEvicted       uint64
}

type pendingEntry struct {
	pair    string
	resolve chan pendingResult
}

type pendingResult struct {
	text string
	err  error
}

// Option customizes Translator construction.
type Option func(*Translator)

// WithLogger overrides the default logrus entry.
func WithLogger(entry *log.Entry) Option {
	return func(t *Translator) { t.logger = entry }
}

// WithRuntime overrides how a worker's sandbox runtime is constructed; the
// default wires the reference engine (internal/sandbox/refengine) so the
// coordinator is exercisable without a real Marian/Bergamot build.
func WithRuntime(f RuntimeFactory) Option {
	return func(t *Translator) { t.runtimes = f }
}

// WithScriptConverter overrides the Han-script conversion collaborator; the
// default is the minimal rune-table reference implementation.
func WithScriptConverter(c ScriptConverter) Option {
	return func(t *Translator) { t.script = c }
}

// WithDetectionLanguages restricts the statistical language classifier to a
// fixed language set instead of lingua-go's full bundled model set,
// trading recall for a much smaller in-memory model footprint.
func WithDetectionLanguages(langs []lingua.Language) Option {
	return func(t *Translator) { t.detector = detect.New(langs) }
}

// New constructs a Translator. It initializes the Model Store (catalog +
// downloaded flags) synchronously before returning, per spec.md §4.1's
// Init contract.
func New(ctx context.Context, cfg Config, opts ...Option) (*Translator, error) {
	if cfg.WorkersPerPair < 1 {
		cfg.WorkersPerPair = 1
	}

	if cfg.LogLevel != "" {
		if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
			log.SetLevel(lvl)
		} else {
			log.WithField("component", "translate").Warnf("invalid log level %q, keeping current level", cfg.LogLevel)
		}
	}

	tctx, cancel := context.WithCancel(ctx)

	t := &Translator{
		cfg:           cfg,
		detector:      detect.New(nil),
		script:        scriptconv.New(),
		runtimes:      func(string) sandbox.Runtime { return refengine.New(nil) },
		logger:        log.WithField("component", "translate"),
		pending:       make(map[uint64]*pendingEntry),
		pendingByPair: make(map[string]map[uint64]*pendingEntry),
		ctx:           tctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.store = modelstore.New(modelstore.Options{
		DataDir:      cfg.DataDir,
		CatalogURL:   cfg.CatalogURL,
		ArtifactsURL: cfg.ArtifactsBaseURL,
		Offline:      cfg.Offline,
	})
	if err := t.store.Init(tctx); err != nil {
		cancel()
		return nil, err
	}

	t.cache = cachemgr.New(t.buildPool, cachemgr.Config{
		IdleTimeout:           cfg.idleTimeout(),
		MemoryCheckInterval:   cfg.memoryCheckInterval(),
		TimeoutResetThreshold: cfg.timeoutResetThreshold(),
	})

	return t, nil
}

// GetSupportedLanguages returns every code this build accepts, including
// aliases, per §6.1.
func (t *Translator) GetSupportedLanguages() []string {
	out := make([]string, 0, len(SupportedLanguages)+len(Aliases))
	for code := range SupportedLanguages {
		out = append(out, code)
	}
	for code := range Aliases {
		out = append(out, code)
	}
	return out
}

// Detect classifies text to a canonical language code, truncating to
// MaxDetectionLength characters first, per §4.2/§4.7 step 2.
func (t *Translator) Detect(text string) string {
	return t.detector.Detect(truncateRunes(text, t.cfg.MaxDetectionLength))
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Translate is the full planning pipeline of §4.7. input is either a string
// or a []string; the return value matches the input's shape.
func (t *Translator) Translate(ctx context.Context, input any, from, to string, isHTML bool) (any, error) {
	texts, isList, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	resolvedFrom := from
	if from == "auto" {
		first := ""
		if len(texts) > 0 {
			first = texts[0]
		}
		resolvedFrom = t.Detect(first)
	}

	from, to, err = t.resolveLanguages(resolvedFrom, to)
	if err != nil {
		return nil, err
	}

	if from == to {
		return reassemble(texts, isList), nil
	}

	p := computePlan(from, to)

	results, err := t.execute(ctx, p, texts, isHTML)
	if err != nil {
		return nil, err
	}
	return reassemble(results, isList), nil
}

// resolveLanguages validates and aliases from/to, per §4.7 steps 3-4.
func (t *Translator) resolveLanguages(from, to string) (string, string, error) {
	from = NormalizeCode(from)
	to = NormalizeCode(to)

	if !isKnown(from) {
		return "", "", NewError(KindInvalidLanguage, "", fmt.Errorf("unknown source language %q", from))
	}
	if !isKnown(to) {
		return "", "", NewError(KindInvalidLanguage, "", fmt.Errorf("unknown target language %q", to))
	}

	if canon, ok := Aliases[from]; ok {
		from = canon
	}
	if canon, ok := Aliases[to]; ok {
		to = canon
	}
	return from, to, nil
}

func isKnown(code string) bool {
	return SupportedLanguages[code] || Aliases[code] != ""
}

func normalizeInput(input any) ([]string, bool, error) {
	switch v := input.(type) {
	case string:
		return []string{v}, false, nil
	case []string:
		return v, true, nil
	default:
		return nil, false, NewError(KindInvalidLanguage, "", fmt.Errorf("translate: input must be string or []string, got %T", input))
	}
}

func reassemble(texts []string, isList bool) any {
	if isList {
		return texts
	}
	if len(texts) == 0 {
		return ""
	}
	return texts[0]
}

// execute is §4.7 step 7: it applies script conversion and/or dispatches to
// an Engine Pool according to the plan.
func (t *Translator) execute(ctx context.Context, p plan, texts []string, isHTML bool) ([]string, error) {
	out := make([]string, len(texts))

	var needsPool bool
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = ""
			continue
		}
		if p.pureScript {
			converted, err := t.convertChain(ctx, text, p)
			if err != nil {
				return nil, err
			}
			out[i] = converted
			continue
		}
		needsPool = true
	}

	if !needsPool {
		return out, nil
	}

	pair := PairKey(p.effectiveFrom, p.effectiveTo)
	entry, err := t.cache.GetOrCreate(ctx, pair)
	if err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(texts))
	pending := make([]*pendingEntry, 0, len(texts))
	translationIDs := make([]string, 0, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" || p.pureScript {
			continue
		}

		source := text
		if p.preConvert != "" {
			source, err = t.script.Convert(ctx, p.preConvert, source)
			if err != nil {
				return nil, err
			}
		}

		pe := &pendingEntry{pair: pair, resolve: make(chan pendingResult, 1)}
		msgID := t.msgID.Add(1)
		translationID := uuid.NewString()
		t.registerPending(msgID, pair, pe)

		entry.Pool.Submit(worker.TranslationRequest{
			MessageID: msgID, TranslationID: translationID,
			SourceText: source, IsHTML: isHTML,
		})

		indices = append(indices, i)
		pending = append(pending, pe)
		translationIDs = append(translationIDs, translationID)
	}

	for n, pe := range pending {
		select {
		case res := <-pe.resolve:
			if res.err != nil {
				return nil, res.err
			}
			text := res.text
			if p.postConvert != "" {
				text, err = t.script.Convert(ctx, p.postConvert, text)
				if err != nil {
					return nil, err
				}
			}
			out[indices[n]] = text
		case <-ctx.Done():
			// §4.4 CancelOne: the caller gave up on this message, so tell
			// every worker in the pool to drop it (and everything still
			// outstanding behind it) if it hasn't started running yet.
			for _, id := range translationIDs[n:] {
				entry.Pool.CancelOne(id)
			}
			return nil, NewError(KindCancelled, pair, ctx.Err())
		}
	}

	return out, nil
}

func (t *Translator) convertChain(ctx context.Context, text string, p plan) (string, error) {
	var err error
	if p.preConvert != "" {
		text, err = t.script.Convert(ctx, p.preConvert, text)
		if err != nil {
			return "", err
		}
	}
	if p.postConvert != "" {
		text, err = t.script.Convert(ctx, p.postConvert, text)
		if err != nil {
			return "", err
		}
	}
	return text, nil
}

// Shutdown rejects all pending messages, terminates every pool, and stops
// the sweeper. Idempotent per §6.1.
func (t *Translator) Shutdown() {
	t.shutdownOnce.Do(func() {
		t.mu.Lock()
		t.shutdown = true
		pending := t.pending
		t.pending = make(map[uint64]*pendingEntry)
		t.pendingByPair = make(map[string]map[uint64]*pendingEntry)
		t.mu.Unlock()

		for _, pe := range pending {
			pe.resolve <- pendingResult{err: NewError(KindShutdown, pe.pair, fmt.Errorf("translator shutdown"))}
		}

		t.cache.Shutdown()
		t.cancel()
	})
}

// Snapshot returns a copy of the running diagnostic counters.
func (t *Translator) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Translator) registerPending(msgID uint64, pair string, pe *pendingEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[msgID] = pe
	if t.pendingByPair[pair] == nil {
		t.pendingByPair[pair] = make(map[uint64]*pendingEntry)
	}
	t.pendingByPair[pair][msgID] = pe
}

func (t *Translator) resolvePending(msgID uint64, res pendingResult) {
	t.mu.Lock()
	pe, ok := t.pending[msgID]
	if ok {
		delete(t.pending, msgID)
		if byPair := t.pendingByPair[pe.pair]; byPair != nil {
			delete(byPair, msgID)
		}
		if res.err != nil {
			t.stats.TranslationsFailed++
		} else {
			t.stats.TranslationsOK++
		}
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	pe.resolve <- res
}

// failAllForPair rejects every outstanding pending message against pair
// with err, used when a worker-level error tears the pool down (§4.7
// Failure semantics) and by discardTranslations/Shutdown.
func (t *Translator) failAllForPair(pair string, err error) {
	t.mu.Lock()
	byPair := t.pendingByPair[pair]
	delete(t.pendingByPair, pair)
	var victims []*pendingEntry
	for msgID, pe := range byPair {
		delete(t.pending, msgID)
		victims = append(victims, pe)
	}
	t.mu.Unlock()

	for _, pe := range victims {
		pe.resolve <- pendingResult{err: err}
	}
}

// buildPool is the cachemgr.Builder: it fetches a bundle from the Model
// Store, constructs WORKERS_PER_PAIR worker specs, and builds an Engine Pool
// atomically, then starts a goroutine draining its multiplexed events into
// this Translator's pending map.
func (t *Translator) buildPool(ctx context.Context, pair string) (*enginepool.Pool, error) {
	from, to, ok := splitPairKey(pair)
	if !ok {
		return nil, NewError(KindInvalidLanguage, pair, fmt.Errorf("malformed pair key %q", pair))
	}

	payloads, err := t.loadPayloads(ctx, from, to)
	if err != nil {
		return nil, err
	}

	specs := make([]enginepool.WorkerSpec, t.cfg.WorkersPerPair)
	for i := range specs {
		specs[i] = enginepool.WorkerSpec{
			Runtime:     t.runtimes(pair),
			HanVariants: HanVariants,
			Init: worker.InitRequest{
				SourceLanguage: from,
				TargetLanguage: to,
				ModelPayloads:  payloads,
			},
		}
	}

	pool, err := enginepool.Build(ctx, pair, specs, t.cfg.workerInitTimeout())
	if err != nil {
		kind := KindWorkerInitError
		if errors.Is(err, enginepool.ErrInitTimeout) {
			kind = KindWorkerInitTimeout
		}
		return nil, NewError(kind, pair, err)
	}

	t.mu.Lock()
	t.stats.PoolsBuilt++
	t.mu.Unlock()

	go t.pumpPool(pair, pool)
	return pool, nil
}

// loadPayloads resolves the (possibly pivoting) model bundle(s) for from/to
// into worker.ModelPayload values, per §4.7 step 6's pivot rule.
func (t *Translator) loadPayloads(ctx context.Context, from, to string) ([]worker.ModelPayload, error) {
	if from != "en" && to != "en" {
		hop1, err := t.store.GetModel(ctx, PairKey(from, "en"))
		if err != nil {
			return nil, err
		}
		hop2, err := t.store.GetModel(ctx, PairKey("en", to))
		if err != nil {
			return nil, err
		}
		return []worker.ModelPayload{
			{From: from, To: "en", Files: toFileBuffers(hop1)},
			{From: "en", To: to, Files: toFileBuffers(hop2)},
		}, nil
	}

	bundle, err := t.store.GetModel(ctx, PairKey(from, to))
	if err != nil {
		return nil, err
	}
	return []worker.ModelPayload{{From: from, To: to, Files: toFileBuffers(bundle)}}, nil
}

// toFileBuffers converts a modelstore.Bundle into the worker package's own
// file-buffer type, since worker does not import modelstore.
func toFileBuffers(b modelstore.Bundle) map[string]worker.FileBuffer {
	out := make(map[string]worker.FileBuffer, len(b))
	for k, v := range b {
		out[k] = worker.FileBuffer{Name: v.Name, Data: v.Data}
	}
	return out
}

func splitPairKey(pair string) (from, to string, ok bool) {
	idx := strings.IndexByte(pair, '_')
	if idx < 0 {
		return "", "", false
	}
	return pair[:idx], pair[idx+1:], true
}

// pumpPool drains pool's multiplexed worker events and resolves/rejects
// pending messages accordingly. Per §7, a single translation's failure fails
// only that request; the pool stays up. Only InitError, a genuine worker
// construction fault, tears the pool down.
func (t *Translator) pumpPool(pair string, pool *enginepool.Pool) {
	for ev := range pool.Events() {
		switch e := ev.Event.(type) {
		case worker.TranslationResponse:
			t.resolvePending(e.MessageID, pendingResult{text: e.TargetText})
		case worker.TranslationError:
			// A DiscardQueue/CancelOne-triggered workqueue.ErrCancelled is
			// not a runtime fault: discardTranslations already failed the
			// whole pair with KindDiscarded, and an execute()-level
			// ctx.Done() cancel already returned KindCancelled to its
			// caller. resolvePending is a no-op if this message was
			// already resolved either way; it still needs calling so a
			// CancelOne-only cancellation (no discardTranslations) clears
			// the pending entry instead of leaking it.
			kind := KindTranslationFailure
			if errors.Is(e.Err, workqueue.ErrCancelled) {
				kind = KindCancelled
			}
			t.resolvePending(e.MessageID, pendingResult{err: NewError(kind, pair, e.Err)})
		case worker.TranslationsDiscarded:
			// handled synchronously by discardTranslations; nothing to do here.
		case worker.InitError:
			t.teardownPair(pair, NewError(KindWorkerInitError, pair, e.Err))
			return
		}
	}
}

func (t *Translator) teardownPair(pair string, err error) {
	t.failAllForPair(pair, err)
	t.cache.Remove(pair)
	t.mu.Lock()
	t.stats.PoolsEvicted++
	t.mu.Unlock()
}

// discardTranslations sends DiscardQueue to every worker in pair's pool and
// rejects all in-flight messages against it with Discarded, per §4.7.
func (t *Translator) discardTranslations(pair string) {
	entry := t.cache.Get(pair)
	if entry == nil {
		return
	}
	t.failAllForPair(pair, NewError(KindDiscarded, pair, fmt.Errorf("translations discarded")))
	entry.Pool.DiscardAll()
}
