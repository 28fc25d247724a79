package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKeyFormat(t *testing.T) {
	assert.Equal(t, "en_fr", PairKey("en", "fr"))
}

func TestNormalizeCodePreservesKnownHanTags(t *testing.T) {
	assert.Equal(t, "zh-Hant", NormalizeCode("zh-Hant"))
	assert.Equal(t, "zh-HK", NormalizeCode("zh-HK"))
}

func TestNormalizeCodePassesThroughAuto(t *testing.T) {
	assert.Equal(t, "auto", NormalizeCode("auto"))
	assert.Equal(t, "", NormalizeCode(""))
}

func TestNormalizeCodeCanonicalizesBCP47Variants(t *testing.T) {
	assert.Equal(t, "fr", NormalizeCode("fr-FR"))
}

func TestNormalizeCodeReturnsUnparseableInputUnchanged(t *testing.T) {
	assert.Equal(t, "not-a-real-tag-!!", NormalizeCode("not-a-real-tag-!!"))
}

func TestHanVariantTablesAreMutuallyConsistent(t *testing.T) {
	for v := range HanVariants {
		_, hasTo := ToHans[v]
		_, hasFrom := FromHans[v]
		assert.True(t, hasTo, "HanVariant %s missing ToHans entry", v)
		assert.True(t, hasFrom, "HanVariant %s missing FromHans entry", v)
	}
}
