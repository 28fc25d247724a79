package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildVocabularyPrefersSingleVocab(t *testing.T) {
	bufs := map[FileKind][]byte{FileVocab: []byte("v")}
	got, err := BuildVocabulary(bufs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, FileVocab, got[0].Kind)
}

func TestBuildVocabularyFallsBackToSrcTrgPair(t *testing.T) {
	bufs := map[FileKind][]byte{
		FileSrcVocab: []byte("s"),
		FileTrgVocab: []byte("t"),
	}
	got, err := BuildVocabulary(bufs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, FileSrcVocab, got[0].Kind)
	assert.Equal(t, FileTrgVocab, got[1].Kind)
}

func TestBuildVocabularyErrorsWithoutEither(t *testing.T) {
	_, err := BuildVocabulary(map[FileKind][]byte{})
	assert.ErrorIs(t, err, errMissingVocabulary)
}

func TestBuildVocabularyErrorsOnPartialSrcTrg(t *testing.T) {
	_, err := BuildVocabulary(map[FileKind][]byte{FileSrcVocab: []byte("s")})
	assert.Error(t, err)
}

func TestNewAlignedBufferCopiesDataAndTagsAlignment(t *testing.T) {
	src := []byte("hello")
	buf := NewAlignedBuffer(FileModel, src)
	assert.Equal(t, 256, buf.Alignment)
	assert.Equal(t, src, buf.Data)

	src[0] = 'X'
	assert.NotEqual(t, src[0], buf.Data[0], "AlignedBuffer must copy, not alias, the source slice")
}
