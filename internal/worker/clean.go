package worker

import (
	"regexp"
	"strings"
)

// CleanResult is the {before, after, cleaned} triple of spec.md §4.3 step 1.
type CleanResult struct {
	Before  string
	After   string
	Cleaned string
}

const softHyphen = "­"

var (
	leadingSpace  = regexp.MustCompile(`^\s+`)
	trailingSpace = regexp.MustCompile(`\s+$`)
	cjkPunctQuote = regexp.MustCompile(`([。！？])"`)
)

// hanSpacingSources is the set of source languages for which CleanText
// inserts a space between full-width terminal punctuation and an
// immediately following left double quote, per spec.md §4.3 step 1. The
// Coordinator passes in HAN_VARIANTS alongside the fixed codes so the rule
// generalizes to whatever variants are configured. "zh-Hans" is included
// because the Coordinator aliases the bare "zh" code to it before dispatch,
// so the worker never actually sees "zh" as a source language.
func needsHanSpacing(source string, hanVariants map[string]bool) bool {
	switch source {
	case "ja", "ko", "zh", "zh-Hans":
		return true
	}
	return hanVariants[source]
}

// CleanText implements spec.md §4.3 step 1 exactly: strip leading/trailing
// whitespace (preserving both runs for re-wrap), remove soft hyphens, and for
// CJK/Han sources insert a space before a left double quote that immediately
// follows 。！？.
func CleanText(source, text string, hanVariants map[string]bool) CleanResult {
	before := leadingSpace.FindString(text)
	after := trailingSpace.FindString(text[len(before):])
	body := text[len(before) : len(text)-len(after)]

	body = strings.ReplaceAll(body, softHyphen, "")

	if needsHanSpacing(source, hanVariants) {
		body = cjkPunctQuote.ReplaceAllString(body, "$1 “")
	}

	return CleanResult{Before: before, After: after, Cleaned: body}
}

// Rewrap reassembles before + translated + after per spec.md §4.3 step 3.
func (c CleanResult) Rewrap(translated string) string {
	return c.Before + translated + c.After
}
