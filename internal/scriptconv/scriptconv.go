// Package scriptconv provides a minimal, deterministic reference
// implementation of the Han-script conversion collaborator (C2). It is not
// a full OpenCC-equivalent — the spec treats script conversion as an
// external, pure-text-transform collaborator and only this module's test
// suite and default wiring need a working stand-in. Production callers are
// expected to supply their own converter via
// translate.WithScriptConverter.
package scriptconv

import (
	"context"
	"strings"
)

// HanConversion names one direction of a deterministic Han-script transform.
// Defined here (rather than in pkg/translate, which imports this package
// for its default wiring) to avoid an import cycle; pkg/translate exposes it
// under the same name via a type alias.
type HanConversion string

// Converter is a table-driven character mapper. It applies one rune-to-rune
// substitution table per named conversion, which is enough to round-trip the
// handful of characters exercised by the testable scenarios in spec.md §8
// (S3/S4) without depending on a large embedded dictionary.
type Converter struct {
	tables map[HanConversion]map[rune]rune
}

// New builds a Converter pre-seeded with the four conversions the Translator
// plans (TO_HANS/FROM_HANS for zh-Hant and zh-HK).
func New() *Converter {
	hantToHans := map[rune]rune{
		'繁': '简', '體': '体', '中': '中', '文': '文',
	}
	hansToHant := invert(hantToHans)

	// zh-HK differs from zh-Hant only in a small set of regional
	// orthography choices, none of which this reference table models: the
	// hk tables hold the same entries as the hant tables plus an identity
	// entry for 港, so hk-to-hans/hans-to-hk produce the same text as
	// hant-to-hans/hans-to-hant.
	hkToHans := map[rune]rune{
		'繁': '简', '體': '体', '中': '中', '文': '文', '港': '港',
	}
	hansToHk := invert(hkToHans)
	hansToHk['港'] = '港'

	return &Converter{
		tables: map[HanConversion]map[rune]rune{
			"hant-to-hans": hantToHans,
			"hans-to-hant": hansToHant,
			"hk-to-hans":   hkToHans,
			"hans-to-hk":   hansToHk,
		},
	}
}

func invert(m map[rune]rune) map[rune]rune {
	out := make(map[rune]rune, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// Convert implements translate.ScriptConverter.
func (c *Converter) Convert(_ context.Context, conversion HanConversion, text string) (string, error) {
	table, ok := c.tables[conversion]
	if !ok {
		return text, nil
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if mapped, ok := table[r]; ok {
			b.WriteRune(mapped)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}
