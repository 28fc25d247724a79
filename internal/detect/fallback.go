package detect

// alpha3Rewrite maps an ISO 639-3 code to a related major language when the
// classifier has no ISO 639-1 code for it. This table is part of the
// contract (spec.md design note "Language detection fallback map") and must
// be reproduced verbatim to preserve routing behavior — it is not meant to
// be "complete," only stable.
var alpha3Rewrite = map[string]string{
	"YUE": "zh-Hant", // Cantonese -> Traditional Chinese
	"LAT": "it",      // Latin -> Italian (closest supported relative)
	"JBO": "en",      // Lojban -> no sensible relative, default to English
	"NOB": "en",      // Norwegian Bokmål -> not supported, default to English
	"NNO": "en",      // Norwegian Nynorsk -> not supported, default to English
	"GLE": "en",      // Irish -> English (shared script/romanization corpus)
}
