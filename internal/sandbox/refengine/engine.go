// Package refengine is the reference Runtime implementation used by tests
// and default wiring. It performs every real mechanical step spec.md §4.3
// describes (alignment, buffer copy, vocabulary selection, precision
// selection, config rendering) and then hands the cleaned sentence to a
// pluggable TranslateFunc — by default an identity-ish placeholder that
// tags the output with the model's language pair, so planning tests (direct
// vs. pivot, which models got loaded) can assert on real data flow without
// linking an actual Marian runtime.
//
// Shaped after kawai-network-candle/pkg/candle/translation.go's
// TranslationPipeline: a constructor that validates config and returns an
// opaque handle, a Translate method, and an idempotent Close.
package refengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nmtcore/transengine/internal/sandbox"
)

// TranslateFunc performs the actual text transform for one loaded model hop.
// from/to are the hop's language codes (for a pivot load, Translate is
// called twice internally, once per hop).
type TranslateFunc func(from, to, text string) (string, error)

// DefaultTranslateFunc is a deterministic placeholder: it returns the input
// text wrapped with a "[from>to]" marker, which is enough for orchestration
// tests to confirm which hop(s) ran and in what order.
func DefaultTranslateFunc(from, to, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return fmt.Sprintf("[%s>%s]%s", from, to, text), nil
}

// Runtime is the reference sandbox.Runtime.
type Runtime struct {
	Translate TranslateFunc
}

// New builds a reference Runtime. A nil fn defaults to DefaultTranslateFunc.
func New(fn TranslateFunc) *Runtime {
	if fn == nil {
		fn = DefaultTranslateFunc
	}
	return &Runtime{Translate: fn}
}

var _ sandbox.Runtime = (*Runtime)(nil)

// Load implements sandbox.Runtime.
func (r *Runtime) Load(ctx context.Context, spec sandbox.InitSpec) (sandbox.Model, error) {
	if len(spec.Models) == 0 || len(spec.Models) > 2 {
		return nil, fmt.Errorf("refengine: load requires 1 or 2 models, got %d", len(spec.Models))
	}

	hops := make([]hop, 0, len(spec.Models))
	for _, m := range spec.Models {
		vocab, err := sandbox.BuildVocabulary(m.Buffers)
		if err != nil {
			return nil, fmt.Errorf("refengine: %s->%s: %w", m.From, m.To, err)
		}

		modelBuf, ok := m.Buffers[sandbox.FileModel]
		if !ok {
			return nil, fmt.Errorf("refengine: %s->%s: missing model file", m.From, m.To)
		}
		aligned := sandbox.NewAlignedBuffer(sandbox.FileModel, modelBuf)

		_, hasQuality := m.Buffers[sandbox.FileQualityModel]
		modelFileName := m.FileNames[sandbox.FileModel]
		if modelFileName == "" {
			modelFileName = "model.bin"
		}
		cfg := sandbox.InferenceConfig{
			Precision:       sandbox.SelectPrecision(modelFileName),
			HasQualityModel: hasQuality,
		}

		hops = append(hops, hop{
			from:           m.From,
			to:             m.To,
			model:          aligned,
			vocab:          vocab,
			renderedConfig: cfg.Render(),
		})
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return &model{runtime: r, hops: hops}, nil
}

type hop struct {
	from, to       string
	model          sandbox.AlignedBuffer
	vocab          []sandbox.AlignedBuffer
	renderedConfig string
}

type model struct {
	runtime *Runtime
	hops    []hop
	mu      sync.Mutex
	closed  bool
}

var _ sandbox.Model = (*model)(nil)

func (m *model) Translate(ctx context.Context, cleanedText string) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", 0, fmt.Errorf("refengine: model is closed")
	}

	start := time.Now()
	text := cleanedText
	for _, h := range m.hops {
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		default:
		}
		out, err := m.runtime.Translate(h.from, h.to, text)
		if err != nil {
			return "", 0, err
		}
		text = out
	}
	return text, time.Since(start).Milliseconds(), nil
}

func (m *model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.hops = nil
	return nil
}
