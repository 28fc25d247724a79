package translate

// plan is the translation plan computed by step 6 of §4.7: which script
// conversions (if any) wrap the neural hop, and which pair (if any) must
// actually be translated.
type plan struct {
	preConvert  HanConversion
	postConvert HanConversion

	// pureScript is true when no neural model is involved at all — the
	// whole request is satisfied by preConvert and/or postConvert.
	pureScript bool

	// effectiveFrom/effectiveTo are the codes actually submitted to the
	// Engine Pool when pureScript is false.
	effectiveFrom string
	effectiveTo   string

	// pivot is true when effectiveFrom/effectiveTo are not modeled as a
	// single hop and must route through English inside one worker.
	pivot bool
}

// directPairs is the set of (from,to) pairs this build treats as a single
// modeled hop; everything else not involving "en" on one side pivots. A
// Translator wired with its own Model Store may carry a richer catalog —
// this table only drives planning, not what the store can actually fetch.
var directPairs = map[string]bool{
	"en_fr": true, "fr_en": true,
	"en_de": true, "de_en": true,
	"en_es": true, "es_en": true,
	"en_ru": true, "ru_en": true,
	"en_ja": true, "ja_en": true,
	"en_ko": true, "ko_en": true,
	"en_it": true, "it_en": true,
	"en_pt": true, "pt_en": true,
	"en_nl": true, "nl_en": true,
	"en_pl": true, "pl_en": true,
	"en_uk": true, "uk_en": true,
	"en_hi": true, "hi_en": true,
	"en_ar": true, "ar_en": true,
	"en_tr": true, "tr_en": true,
	"en_zh-Hans": true, "zh-Hans_en": true,
}

// computePlan implements §4.7 step 6 exactly.
func computePlan(from, to string) plan {
	p := plan{effectiveFrom: from, effectiveTo: to}

	if HanVariants[from] {
		p.preConvert = ToHans[from]
		p.effectiveFrom = CanonicalSimplified
	}
	if HanVariants[to] {
		p.postConvert = FromHans[to]
		p.effectiveTo = CanonicalSimplified
	}

	fromIsHan := HanVariants[from] || from == CanonicalSimplified
	toIsHan := HanVariants[to] || to == CanonicalSimplified

	if fromIsHan && toIsHan {
		p.pureScript = true
		return p
	}

	if !directPairs[PairKey(p.effectiveFrom, p.effectiveTo)] && p.effectiveFrom != "en" && p.effectiveTo != "en" {
		p.pivot = true
	}
	return p
}
