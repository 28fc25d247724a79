package translate

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/nmtcore/transengine/internal/scriptconv"
)

// HanConversion names one direction of a deterministic Han-script transform,
// keyed the way the Script Converter collaborator expects to receive it. It
// is an alias for internal/scriptconv's type so the default converter
// satisfies ScriptConverter without an import cycle.
type HanConversion = scriptconv.HanConversion

// SupportedLanguages is the union of every language code reachable by at
// least one direct or pivot model chain, plus the Han-script variants that
// route through script conversion instead of a neural model. It is the
// default catalog a Translator is constructed with; callers wire up the
// model chains that actually back each pair via the Model Store.
var SupportedLanguages = map[string]bool{
	"en": true, "fr": true, "de": true, "es": true, "ru": true,
	"ja": true, "ko": true, "it": true, "pt": true, "nl": true,
	"pl": true, "uk": true, "hi": true, "ar": true, "tr": true,
	"zh-Hans": true, "zh-Hant": true, "zh-HK": true,
}

// Aliases maps an alternate code to its canonical form. Applied to both ends
// of a pair after validation, before routing.
var Aliases = map[string]string{
	"zh":    "zh-Hans",
	"zh-CN": "zh-Hans",
	"zh-TW": "zh-Hant",
	"yue":   "zh-Hant",
}

// HanVariants is the set of Chinese-script codes that are not directly
// modeled; each routes through ToHans/FromHans instead of a neural pair.
var HanVariants = map[string]bool{
	"zh-Hant": true,
	"zh-HK":   true,
}

// ToHans names the conversion that turns a Han variant into canonical
// Simplified Chinese text (used when the variant is the *source*).
var ToHans = map[string]HanConversion{
	"zh-Hant": "hant-to-hans",
	"zh-HK":   "hk-to-hans",
}

// FromHans names the conversion that turns canonical Simplified Chinese text
// into a Han variant (used when the variant is the *target*).
var FromHans = map[string]HanConversion{
	"zh-Hant": "hans-to-hant",
	"zh-HK":   "hans-to-hk",
}

// CanonicalSimplified is the effective language both TO_HANS and FROM_HANS
// chains resolve to/from.
const CanonicalSimplified = "zh-Hans"

// PairKey builds the "{from}_{to}" cache/pool key described in the data
// model. Both codes are assumed already canonicalized.
func PairKey(from, to string) string {
	return from + "_" + to
}

// NormalizeCode lightly canonicalizes a raw language tag using BCP-47
// parsing (golang.org/x/text/language) before it is checked against
// SupportedLanguages/Aliases. Unparseable input is returned unchanged so the
// caller's own validation still rejects it with InvalidLanguage.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || code == "auto" {
		return code
	}
	// Preserve the exact casing our tables use for Han-script tags
	// (zh-Hans, zh-Hant, zh-HK); language.Parse would otherwise
	// re-canonicalize the script/region subtags to its own case rules.
	if SupportedLanguages[code] || Aliases[code] != "" {
		return code
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, conf := tag.Base()
	if conf == language.No {
		return code
	}
	return base.String()
}
