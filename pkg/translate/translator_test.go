package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmtcore/transengine/internal/modelstore"
)

// fixtureFile is one (fileKind, content) pair written to disk with a
// matching catalog checksum, so the Model Store resolves it without any
// network access.
type fixtureFile struct {
	kind    string
	content string
}

func writeFixtureCatalog(t *testing.T, dataDir string, pairs map[string][]fixtureFile) {
	t.Helper()
	var cat modelstore.Catalog
	for pair, files := range pairs {
		dir := filepath.Join(dataDir, "models", pair)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for _, f := range files {
			sum := sha256.Sum256([]byte(f.content))
			name := f.kind + ".bin"
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(f.content), 0o644))
			from, to, _ := splitPairKey(pair)
			cat.Records = append(cat.Records, modelstore.ModelRecord{
				FromLang: from, ToLang: to, FileKind: f.kind, Name: name,
				Size:       int64(len(f.content)),
				Attachment: modelstore.Attachment{Hash: hex.EncodeToString(sum[:])},
			})
		}
	}
	data, err := json.Marshal(cat)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "models.json"), data, 0o644))
}

func defaultFixtureFiles() []fixtureFile {
	return []fixtureFile{{kind: "model", content: "model-bytes"}, {kind: "vocab", content: "vocab-bytes"}}
}

func newTestTranslator(t *testing.T, pairs ...string) *Translator {
	t.Helper()
	dir := t.TempDir()

	set := make(map[string][]fixtureFile, len(pairs))
	for _, p := range pairs {
		set[p] = defaultFixtureFiles()
	}
	writeFixtureCatalog(t, dir, set)

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Offline = true
	cfg.WorkerInitTimeoutMS = 5000

	tr, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(tr.Shutdown)
	return tr
}

func TestTranslateIdentityShortCircuit(t *testing.T) {
	tr := newTestTranslator(t)
	out, err := tr.Translate(context.Background(), "hello", "en", "en", false)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestTranslateIdentityShortCircuitViaAlias(t *testing.T) {
	tr := newTestTranslator(t)
	out, err := tr.Translate(context.Background(), "hello", "zh", "zh-Hans", false)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestTranslatePreservesScalarShape(t *testing.T) {
	tr := newTestTranslator(t, "en_fr")
	out, err := tr.Translate(context.Background(), "Hello", "en", "fr", false)
	require.NoError(t, err)
	_, isString := out.(string)
	assert.True(t, isString)
}

func TestTranslatePreservesListShape(t *testing.T) {
	tr := newTestTranslator(t, "en_fr")
	out, err := tr.Translate(context.Background(), []string{"Hello", "World"}, "en", "fr", false)
	require.NoError(t, err)
	list, isList := out.([]string)
	require.True(t, isList)
	assert.Len(t, list, 2)
}

func TestTranslateEmptyTextBypassesEngine(t *testing.T) {
	tr := newTestTranslator(t, "en_fr")
	out, err := tr.Translate(context.Background(), "   ", "en", "fr", false)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestTranslateDirectPairSimpleText(t *testing.T) {
	tr := newTestTranslator(t, "en_zh-Hans")
	out, err := tr.Translate(context.Background(), "Hello, world!", "en", "zh-Hans", false)
	require.NoError(t, err)
	text, ok := out.(string)
	require.True(t, ok)
	assert.NotEmpty(t, text)
}

func TestTranslatePivotPairLoadsBothHops(t *testing.T) {
	tr := newTestTranslator(t, "ja_en", "en_zh-Hans")
	out, err := tr.Translate(context.Background(), "こんにちは", "ja", "zh-Hans", false)
	require.NoError(t, err)
	text, ok := out.(string)
	require.True(t, ok)
	assert.Contains(t, text, "[en>zh-Hans]")
	assert.Contains(t, text, "[ja>en]")
}

func TestTranslatePureScriptConversionBuildsNoPool(t *testing.T) {
	tr := newTestTranslator(t) // no pairs fixtured: any pool build would fail loudly
	out, err := tr.Translate(context.Background(), "简体中文", "zh-Hans", "zh-Hant", false)
	require.NoError(t, err)
	assert.NotEqual(t, "简体中文", out)
}

func TestTranslateComplexScriptConversionChainsBothDirections(t *testing.T) {
	tr := newTestTranslator(t)
	out, err := tr.Translate(context.Background(), "繁體中文", "zh-Hant", "zh-HK", false)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestTranslateBatchOrderingPreservesPositions(t *testing.T) {
	tr := newTestTranslator(t, "en_zh-Hans")
	out, err := tr.Translate(context.Background(), []string{"A", "", "B"}, "en", "zh-Hans", false)
	require.NoError(t, err)
	list, ok := out.([]string)
	require.True(t, ok)
	require.Len(t, list, 3)
	assert.Equal(t, "", list[1])
	assert.NotEmpty(t, list[0])
	assert.NotEmpty(t, list[2])
}

func TestTranslateRejectsUnknownLanguage(t *testing.T) {
	tr := newTestTranslator(t)
	_, err := tr.Translate(context.Background(), "hi", "en", "not-a-code-xyz", false)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidLanguage))
}

func TestPreloadIsIdempotentPerPair(t *testing.T) {
	tr := newTestTranslator(t, "en_fr")
	ctx := context.Background()

	h1, err := tr.Preload(ctx, "en", "fr")
	require.NoError(t, err)
	h2, err := tr.Preload(ctx, "en", "fr")
	require.NoError(t, err)

	assert.Equal(t, h1.plan.effectiveFrom, h2.plan.effectiveFrom)
	assert.Equal(t, h1.plan.effectiveTo, h2.plan.effectiveTo)

	entry := tr.cache.Get(PairKey("en", "fr"))
	require.NotNil(t, entry)
}

func TestConcurrentGetOrCreateBuildsExactlyOnePool(t *testing.T) {
	tr := newTestTranslator(t, "en_fr")
	ctx := context.Background()

	const n = 8
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := tr.Translate(ctx, "Hello", "en", "fr", false)
			done <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-done)
	}

	snap := tr.Snapshot()
	assert.Equal(t, uint64(1), snap.PoolsBuilt)
}

func TestShutdownIsIdempotentAndEmptiesCache(t *testing.T) {
	tr := newTestTranslator(t, "en_fr")
	_, err := tr.Translate(context.Background(), "Hello", "en", "fr", false)
	require.NoError(t, err)

	tr.Shutdown()
	tr.Shutdown() // must not panic or block

	entry := tr.cache.Get(PairKey("en", "fr"))
	assert.Nil(t, entry)
}

func TestGetSupportedLanguagesIncludesAliases(t *testing.T) {
	tr := newTestTranslator(t)
	langs := tr.GetSupportedLanguages()
	assert.Contains(t, langs, "en")
	assert.Contains(t, langs, "zh")
}

func TestDetectTruncatesToMaxDetectionLength(t *testing.T) {
	tr := newTestTranslator(t)
	tr.cfg.MaxDetectionLength = 4
	got := tr.Detect("Bonjour tout le monde, ceci est un test assez long")
	assert.NotEmpty(t, got)
	assert.Equal(t, "Bonj", truncateRunes("Bonjour tout le monde, ceci est un test assez long", tr.cfg.MaxDetectionLength))
}
