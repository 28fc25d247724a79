// Package xerr holds the typed error Kind/Error pair shared by every
// package in this module (Model Store, Cache Manager, Worker plumbing, and
// the public Translator). It lives below pkg/translate so internal packages
// can construct typed errors without importing the public package and
// creating an import cycle; pkg/translate re-exports these names under the
// same identifiers.
package xerr

import "github.com/pkg/errors"

// Kind identifies the category of a translation error.
type Kind string

const (
	KindInvalidLanguage    Kind = "invalid_language"
	KindOffline            Kind = "offline"
	KindCatalogUnavailable Kind = "catalog_unavailable"
	KindNoSuchPair         Kind = "no_such_pair"
	KindChecksumMismatch   Kind = "checksum_mismatch"
	KindWorkerInitTimeout  Kind = "worker_init_timeout"
	KindWorkerInitError    Kind = "worker_init_error"
	KindTranslationFailure Kind = "translation_failure"
	KindCancelled          Kind = "cancelled"
	KindDiscarded          Kind = "discarded"
	KindShutdown           Kind = "shutdown"
)

// Error is the typed error surfaced by every public entry point. Callers
// can switch on Kind rather than string-matching error text.
type Error struct {
	Kind Kind
	Pair string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return string(e.Kind)
	}
	if e.Pair != "" {
		return string(e.Kind) + " (" + e.Pair + "): " + e.err.Error()
	}
	return string(e.Kind) + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// New wraps cause (which may be nil) with a Kind and optional pair key,
// using pkg/errors so the wrapped chain keeps a stack trace at the point of
// first failure.
func New(kind Kind, pair string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Pair: pair, err: cause}
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var te *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			te = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return te != nil && te.Kind == k
}
