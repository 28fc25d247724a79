package sandbox

// AlignedBuffer copies src into a freshly allocated buffer whose starting
// address, were it passed to a real sandboxed allocator, would satisfy the
// given alignment. Go does not expose pointer alignment control for plain
// slices, so the copy is a plain allocation: its start address is not
// adjusted to the alignment, and its length always equals len(src);
// what matters for parity with spec.md §4.3 is that every FileKind's buffer
// is built through this one path, with the alignment recorded alongside it
// for the runtime implementation to honor when it owns real memory.
type AlignedBuffer struct {
	Kind      FileKind
	Alignment int
	Data      []byte
}

// NewAlignedBuffer copies data into a new AlignedBuffer tagged with kind's
// required alignment.
func NewAlignedBuffer(kind FileKind, data []byte) AlignedBuffer {
	buf := make([]byte, len(data))
	copy(buf, data)
	return AlignedBuffer{Kind: kind, Alignment: Alignment[kind], Data: buf}
}

// BuildVocabulary selects the vocabulary vector per spec.md §4.3 step 2: one
// of [vocab] or [srcvocab, trgvocab]. Returns an error if neither
// combination is present.
func BuildVocabulary(buffers map[FileKind][]byte) ([]AlignedBuffer, error) {
	if v, ok := buffers[FileVocab]; ok {
		return []AlignedBuffer{NewAlignedBuffer(FileVocab, v)}, nil
	}
	src, okSrc := buffers[FileSrcVocab]
	trg, okTrg := buffers[FileTrgVocab]
	if okSrc && okTrg {
		return []AlignedBuffer{
			NewAlignedBuffer(FileSrcVocab, src),
			NewAlignedBuffer(FileTrgVocab, trg),
		}, nil
	}
	return nil, errMissingVocabulary
}
