// Package sandbox defines the interface an Inference Worker (C4) needs from
// the neural translation runtime it hosts, plus the aligned-buffer mechanics
// spec.md §4.3 specifies in detail. The concrete runtime (Marian/Bergamot,
// compiled to sandboxed byte-code) is an external black-box collaborator —
// this package exists so a Worker can be built and tested against an
// interface today and wired to the real thing later without touching
// anything above it.
//
// The teacher (kawai-network-candle/pkg/candle) wraps exactly this kind of
// black-box native pipeline behind a small Go struct with an opaque handle
// and a runtime.SetFinalizer cleanup; refengine keeps the struct-plus-handle
// shape without the CGo/dlopen plumbing, since no compiled runtime ships with
// this module, and releases its handle through an explicit Close rather than
// a finalizer.
package sandbox

import "context"

// FileKind identifies one file in a model bundle, matching spec.md §3.
type FileKind string

const (
	FileModel        FileKind = "model"
	FileLex          FileKind = "lex"
	FileVocab        FileKind = "vocab"
	FileSrcVocab     FileKind = "srcvocab"
	FileTrgVocab     FileKind = "trgvocab"
	FileQualityModel FileKind = "qualityModel"
)

// Alignment is the byte alignment required for each file kind's buffer
// inside the sandbox, per spec.md §4.3 step 1.
var Alignment = map[FileKind]int{
	FileModel:        256,
	FileLex:          64,
	FileVocab:        64,
	FileQualityModel: 64,
	FileSrcVocab:     64,
	FileTrgVocab:     64,
}

// ModelSpec is one side of a (possibly pivoting) model load: the file
// payloads for one language-pair hop plus the vocabulary selection.
type ModelSpec struct {
	From      string
	To        string
	Buffers   map[FileKind][]byte
	FileNames map[FileKind]string
}

// InitSpec is the payload of an InitRequest (§6.2): one or two ModelSpecs —
// exactly two means a pivot-through-English load into a single Worker.
type InitSpec struct {
	SourceLanguage string
	TargetLanguage string
	Models         []ModelSpec
}

// Precision is the GEMM precision mode selected per spec.md §4.3 step 3.
type Precision string

const (
	PrecisionInt8ShiftAll      Precision = "int8shiftAll"
	PrecisionInt8ShiftAlphaAll Precision = "int8shiftAlphaAll"
)

// Runtime loads model bundles into an isolated inference engine. One Runtime
// instance backs exactly one Worker; construction failures must not corrupt
// any other Worker's state.
type Runtime interface {
	// Load allocates aligned buffers, copies payloads in, and constructs a
	// blocking translation service for spec's InitSpec. It performs all of
	// §4.3 steps 1-5 and returns a ready-to-serve Model.
	Load(ctx context.Context, spec InitSpec) (Model, error)
}

// Model is a loaded, ready engine hosting 1-2 translation models (direct or
// pivoting). It is immutable after construction (spec.md §3).
type Model interface {
	// Translate runs inference on a single cleaned sentence and returns the
	// translated sentence plus the wall-clock milliseconds spent in
	// inference, matching the TranslationResponse payload of §6.2.
	Translate(ctx context.Context, cleanedText string) (translated string, inferenceMillis int64, err error)

	// Close releases all model handles and the service instance. Safe to
	// call more than once.
	Close() error
}
