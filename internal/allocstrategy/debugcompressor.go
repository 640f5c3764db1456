package allocstrategy

import "github.com/klauspost/compress/s2"

// DebugCompressor compresses/decompresses out-of-line debug buffers
// (line-number and variable-info tables). The codec itself is treated as
// an external, out-of-scope collaborator; this contract lets the
// supplied-buffer strategy exercise one without committing to a specific
// algorithm.
type DebugCompressor interface {
	Compress(dst, src []byte) []byte
	Decompress(dst, src []byte) ([]byte, error)
}

// S2Compressor is the default DebugCompressor, backed by
// klauspost/compress/s2 (a Snappy-compatible, streaming-friendly codec).
type S2Compressor struct{}

var _ DebugCompressor = S2Compressor{}

func (S2Compressor) Compress(dst, src []byte) []byte {
	return s2.Encode(dst, src)
}

func (S2Compressor) Decompress(dst, src []byte) ([]byte, error) {
	return s2.Decode(dst, src)
}
