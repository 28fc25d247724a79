package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanTextPreservesSurroundingWhitespace(t *testing.T) {
	res := CleanText("en", "  hello world  \n", nil)
	assert.Equal(t, "  ", res.Before)
	assert.Equal(t, "  \n", res.After)
	assert.Equal(t, "hello world", res.Cleaned)
	assert.Equal(t, "  hello world  \n", res.Rewrap("hello world"))
}

func TestCleanTextStripsSoftHyphen(t *testing.T) {
	res := CleanText("en", "soft­hyphen", nil)
	assert.Equal(t, "softhyphen", res.Cleaned)
}

func TestCleanTextInsertsHanSpacingForCJKSource(t *testing.T) {
	res := CleanText("ja", `それは。"引用"`, nil)
	assert.Contains(t, res.Cleaned, "。 “")
}

func TestCleanTextLeavesNonHanSourceUnspaced(t *testing.T) {
	text := `Il a dit. "Bonjour"`
	res := CleanText("fr", text, nil)
	assert.Equal(t, text, res.Cleaned)
}

func TestCleanTextHonorsConfiguredHanVariants(t *testing.T) {
	res := CleanText("zh-Hant", `你好。""`, map[string]bool{"zh-Hant": true})
	assert.Contains(t, res.Cleaned, "。 “")
}

func TestRewrapRoundTripsEmptyBody(t *testing.T) {
	res := CleanText("en", "   ", nil)
	assert.Equal(t, "", res.Cleaned)
	assert.Equal(t, "   ", res.Rewrap(""))
}
