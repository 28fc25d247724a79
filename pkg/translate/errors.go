package translate

import "github.com/nmtcore/transengine/internal/xerr"

// Kind identifies the category of a translation error, matching the
// abstract error kinds of the component design (Model Store, Worker, and
// Coordinator failure modes). It is an alias for internal/xerr's type so
// internal packages can construct typed errors without importing this
// package and creating an import cycle.
type Kind = xerr.Kind

const (
	KindInvalidLanguage    = xerr.KindInvalidLanguage
	KindOffline            = xerr.KindOffline
	KindCatalogUnavailable = xerr.KindCatalogUnavailable
	KindNoSuchPair         = xerr.KindNoSuchPair
	KindChecksumMismatch   = xerr.KindChecksumMismatch
	KindWorkerInitTimeout  = xerr.KindWorkerInitTimeout
	KindWorkerInitError    = xerr.KindWorkerInitError
	KindTranslationFailure = xerr.KindTranslationFailure
	KindCancelled          = xerr.KindCancelled
	KindDiscarded          = xerr.KindDiscarded
	KindShutdown           = xerr.KindShutdown
)

// Error is the typed error surfaced by every public entry point. Callers
// can switch on Kind rather than string-matching error text.
type Error = xerr.Error

// NewError wraps cause with kind and an optional pair key.
func NewError(kind Kind, pair string, cause error) *Error {
	return xerr.New(kind, pair, cause)
}

// IsKind reports whether err (or anything it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	return xerr.IsKind(err, k)
}
