package refengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmtcore/transengine/internal/sandbox"
)

func bundle() map[sandbox.FileKind][]byte {
	return map[sandbox.FileKind][]byte{
		sandbox.FileModel: []byte("model-bytes"),
		sandbox.FileVocab: []byte("vocab-bytes"),
	}
}

func TestLoadRejectsZeroModels(t *testing.T) {
	_, err := New(nil).Load(context.Background(), sandbox.InitSpec{})
	require.Error(t, err)
}

func TestLoadRejectsMoreThanTwoModels(t *testing.T) {
	spec := sandbox.InitSpec{Models: []sandbox.ModelSpec{
		{From: "a", To: "b", Buffers: bundle()},
		{From: "b", To: "c", Buffers: bundle()},
		{From: "c", To: "d", Buffers: bundle()},
	}}
	_, err := New(nil).Load(context.Background(), spec)
	require.Error(t, err)
}

func TestLoadRequiresModelFile(t *testing.T) {
	spec := sandbox.InitSpec{Models: []sandbox.ModelSpec{
		{From: "en", To: "fr", Buffers: map[sandbox.FileKind][]byte{sandbox.FileVocab: []byte("v")}},
	}}
	_, err := New(nil).Load(context.Background(), spec)
	require.Error(t, err)
}

func TestTranslateSingleHop(t *testing.T) {
	spec := sandbox.InitSpec{Models: []sandbox.ModelSpec{
		{From: "en", To: "fr", Buffers: bundle()},
	}}
	m, err := New(nil).Load(context.Background(), spec)
	require.NoError(t, err)
	defer m.Close()

	out, millis, err := m.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "[en>fr]hello", out)
	assert.GreaterOrEqual(t, millis, int64(0))
}

func TestTranslatePivotRunsBothHopsInOrder(t *testing.T) {
	spec := sandbox.InitSpec{Models: []sandbox.ModelSpec{
		{From: "fr", To: "en", Buffers: bundle()},
		{From: "en", To: "ja", Buffers: bundle()},
	}}
	m, err := New(nil).Load(context.Background(), spec)
	require.NoError(t, err)
	defer m.Close()

	out, _, err := m.Translate(context.Background(), "bonjour")
	require.NoError(t, err)
	assert.Equal(t, "[en>ja][fr>en]bonjour", out)
}

func TestLoadWithoutFileNamesDefaultsToNonIntgemm8Precision(t *testing.T) {
	spec := sandbox.InitSpec{Models: []sandbox.ModelSpec{
		{From: "en", To: "fr", Buffers: bundle()},
	}}
	m, err := New(nil).Load(context.Background(), spec)
	require.NoError(t, err)
	defer m.Close()

	rm := m.(*model)
	assert.Contains(t, rm.hops[0].renderedConfig, "precision=int8shiftAlphaAll\n")
}

func TestLoadWithIntgemm8FileNameSelectsInt8ShiftAll(t *testing.T) {
	spec := sandbox.InitSpec{Models: []sandbox.ModelSpec{
		{
			From: "en", To: "fr", Buffers: bundle(),
			FileNames: map[sandbox.FileKind]string{sandbox.FileModel: "model.intgemm8.bin"},
		},
	}}
	m, err := New(nil).Load(context.Background(), spec)
	require.NoError(t, err)
	defer m.Close()

	rm := m.(*model)
	assert.Contains(t, rm.hops[0].renderedConfig, "precision=int8shiftAll\n")
}

func TestTranslateAfterCloseFails(t *testing.T) {
	spec := sandbox.InitSpec{Models: []sandbox.ModelSpec{
		{From: "en", To: "fr", Buffers: bundle()},
	}}
	m, err := New(nil).Load(context.Background(), spec)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, _, err = m.Translate(context.Background(), "hello")
	require.Error(t, err)
}
