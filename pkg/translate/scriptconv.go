package translate

import "context"

// ScriptConverter is the interface the Coordinator needs from the Han-script
// conversion collaborator (C2 in the component table). It is a pure text
// transform: no model, no network, synchronous or not at the implementer's
// discretion (the Coordinator awaits it either way).
//
// The concrete converter is deliberately out of scope of this module
// (spec.md §1); internal/scriptconv provides a minimal reference
// implementation used by tests and by Translator when no converter is
// supplied via WithScriptConverter.
type ScriptConverter interface {
	// Convert applies the named conversion to text and returns the result.
	Convert(ctx context.Context, conversion HanConversion, text string) (string, error)
}
