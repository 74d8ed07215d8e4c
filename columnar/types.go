package columnar

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// Constants
const (
	BlockMagic      = 0xC7 // first byte of every compressed block
	BlockHeaderSize = 16

	// MaxRowsPerBlock is the largest row count a block header may declare
	MaxRowsPerBlock = 1 << 20
	// MaxRawBlockSize caps the uncompressed payload of any block
	MaxRawBlockSize = 1 << 26
)

// ByteOrder of every multi-byte field in a block
var ByteOrder = binary.LittleEndian

// Errors
var (
	ErrCorruptBlock          = errors.New("corrupt compressed block")
	ErrUnsupportedType       = errors.New("data type not supported by algorithm")
	ErrUnsupportedAlgorithm  = errors.New("unsupported compression algorithm")
	ErrUnsupportedCompressor = errors.New("unsupported page compression")
	ErrTypeMismatch          = errors.New("block data type does not match column type")
)

// Algorithm identifies the value encoding of a compressed block
type Algorithm uint8

const (
	AlgorithmPlain      Algorithm = 1
	AlgorithmDelta      Algorithm = 2
	AlgorithmDictionary Algorithm = 3
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmPlain:
		return "plain"
	case AlgorithmDelta:
		return "delta"
	case AlgorithmDictionary:
		return "dictionary"
	}
	return fmt.Sprintf("algorithm(%d)", uint8(a))
}

// ParseAlgorithm resolves an algorithm name as printed by String.
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, a := range []Algorithm{AlgorithmPlain, AlgorithmDelta, AlgorithmDictionary} {
		if a.String() == name {
			return a, nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedAlgorithm, "%q", name)
}

// DefaultAlgorithm returns the algorithm used for a column type unless the
// encoder is told otherwise.
func DefaultAlgorithm(dt vectorized.DataType) Algorithm {
	switch {
	case dt.IsInteger():
		return AlgorithmDelta
	case dt == vectorized.STRING:
		return AlgorithmDictionary
	default:
		return AlgorithmPlain
	}
}

// BulkSupported reports whether columns of the type can be decoded into a
// vector in one step with their default algorithm.
func BulkSupported(dt vectorized.DataType) bool {
	return GetDecompressAllFunction(DefaultAlgorithm(dt)) != nil
}

// Header is the fixed-size prefix of a compressed block.
//
//	0  magic
//	1  algorithm
//	2  data type
//	3  page compression
//	4  row count        u32
//	8  raw payload len  u32
//	12 stored payload   u32
type Header struct {
	Algorithm   Algorithm
	DataType    vectorized.DataType
	Compression CompressionType
	Rows        int
	RawLen      int
	StoredLen   int
}

func (h Header) marshal(buf []byte) {
	buf[0] = BlockMagic
	buf[1] = byte(h.Algorithm)
	buf[2] = byte(h.DataType)
	buf[3] = byte(h.Compression)
	ByteOrder.PutUint32(buf[4:], uint32(h.Rows))
	ByteOrder.PutUint32(buf[8:], uint32(h.RawLen))
	ByteOrder.PutUint32(buf[12:], uint32(h.StoredLen))
}

// ReadHeader parses and validates the header of a compressed block.
func ReadHeader(block []byte) (Header, error) {
	if len(block) < BlockHeaderSize {
		return Header{}, errors.Wrapf(ErrCorruptBlock, "block of %d bytes is shorter than its header", len(block))
	}
	if block[0] != BlockMagic {
		return Header{}, errors.Wrapf(ErrCorruptBlock, "bad magic 0x%02x", block[0])
	}
	h := Header{
		Algorithm:   Algorithm(block[1]),
		DataType:    vectorized.DataType(block[2]),
		Compression: CompressionType(block[3]),
		Rows:        int(ByteOrder.Uint32(block[4:])),
		RawLen:      int(ByteOrder.Uint32(block[8:])),
		StoredLen:   int(ByteOrder.Uint32(block[12:])),
	}
	if !h.DataType.Valid() {
		return Header{}, errors.Wrapf(ErrCorruptBlock, "unknown data type %d", block[2])
	}
	if h.Rows > MaxRowsPerBlock {
		return Header{}, errors.Wrapf(ErrCorruptBlock, "row count %d exceeds %d", h.Rows, MaxRowsPerBlock)
	}
	if limit := maxRawLen(h); h.RawLen > limit {
		return Header{}, errors.Wrapf(ErrCorruptBlock, "raw payload of %d bytes exceeds %d for %d %s rows", h.RawLen, limit, h.Rows, h.DataType)
	}
	if BlockHeaderSize+h.StoredLen != len(block) {
		return Header{}, errors.Wrapf(ErrCorruptBlock, "payload length %d does not match block size %d", h.StoredLen, len(block))
	}
	return h, nil
}

// maxRawLen is the largest payload an encoder writes for the header's row
// count, type and algorithm. Strings only have the block-wide cap.
func maxRawLen(h Header) int {
	width := h.DataType.Size()
	if width == 0 {
		return MaxRawBlockSize
	}
	n := 1 + 8*vectorized.WordsFor(h.Rows)
	switch h.Algorithm {
	case AlgorithmPlain:
		n += h.Rows * width
	case AlgorithmDelta:
		n += h.Rows * binary.MaxVarintLen64
	case AlgorithmDictionary:
		n += binary.MaxVarintLen64 + h.Rows*(width+binary.MaxVarintLen64)
	default:
		return MaxRawBlockSize
	}
	return min(n, MaxRawBlockSize)
}
