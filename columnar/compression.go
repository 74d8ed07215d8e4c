package columnar

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType is the general-purpose compression applied to a block
// payload after value encoding
type CompressionType uint8

const (
	CompressionNone   CompressionType = 0
	CompressionGzip   CompressionType = 1
	CompressionSnappy CompressionType = 2
	CompressionZstd   CompressionType = 3
	CompressionLZ4    CompressionType = 4
	CompressionBrotli CompressionType = 5
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionBrotli:
		return "brotli"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompressionType resolves a compression name as printed by String.
func ParseCompressionType(name string) (CompressionType, error) {
	for c := CompressionNone; c <= CompressionBrotli; c++ {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedCompressor, "%q", name)
}

// CompressionLevel represents compression level for algorithms that support it
type CompressionLevel int

const (
	CompressionLevelFastest CompressionLevel = 1
	CompressionLevelDefault CompressionLevel = 0
	CompressionLevelBetter  CompressionLevel = 3
	CompressionLevelBest    CompressionLevel = 9
)

// Compressor interface for different compression algorithms. Decompress
// receives the uncompressed length recorded in the block header.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, rawLen int) ([]byte, error)
	Type() CompressionType
}

// SnappyCompressor implements Snappy compression
type SnappyCompressor struct{}

func (s *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (s *SnappyCompressor) Decompress(data []byte, rawLen int) ([]byte, error) {
	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, err
	}
	if n != rawLen {
		return nil, errors.Wrapf(ErrCorruptBlock, "snappy payload decodes to %d bytes, want %d", n, rawLen)
	}
	return snappy.Decode(make([]byte, n), data)
}

func (s *SnappyCompressor) Type() CompressionType {
	return CompressionSnappy
}

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewZstdCompressor(level CompressionLevel) (*ZstdCompressor, error) {
	zstdLevel := zstd.SpeedDefault
	switch level {
	case CompressionLevelFastest:
		zstdLevel = zstd.SpeedFastest
	case CompressionLevelBetter:
		zstdLevel = zstd.SpeedBetterCompression
	case CompressionLevelBest:
		zstdLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &ZstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (z *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, nil), nil
}

func (z *ZstdCompressor) Decompress(data []byte, rawLen int) ([]byte, error) {
	return z.decoder.DecodeAll(data, make([]byte, 0, rawLen))
}

func (z *ZstdCompressor) Type() CompressionType {
	return CompressionZstd
}

// GzipCompressor implements Gzip compression
type GzipCompressor struct {
	level int
}

func NewGzipCompressor(level CompressionLevel) *GzipCompressor {
	gzipLevel := gzip.DefaultCompression
	switch level {
	case CompressionLevelFastest:
		gzipLevel = gzip.BestSpeed
	case CompressionLevelBest:
		gzipLevel = gzip.BestCompression
	}
	return &GzipCompressor{level: gzipLevel}
}

func (g *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *GzipCompressor) Decompress(data []byte, rawLen int) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return readExactly(reader, rawLen)
}

func (g *GzipCompressor) Type() CompressionType {
	return CompressionGzip
}

// LZ4Compressor implements LZ4 block compression. Incompressible input is
// stored verbatim behind a zero marker byte.
type LZ4Compressor struct{}

const (
	lz4Stored     = 0
	lz4Compressed = 1
)

func (l *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, 1+lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst[1:], nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(data) {
		dst = append(dst[:0], lz4Stored)
		return append(dst, data...), nil
	}
	dst[0] = lz4Compressed
	return dst[:1+n], nil
}

func (l *LZ4Compressor) Decompress(data []byte, rawLen int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrCorruptBlock, "empty lz4 payload")
	}
	if data[0] == lz4Stored {
		return data[1:], nil
	}
	dst := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(data[1:], dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func (l *LZ4Compressor) Type() CompressionType {
	return CompressionLZ4
}

// BrotliCompressor implements Brotli compression
type BrotliCompressor struct {
	level int
}

func NewBrotliCompressor(level CompressionLevel) *BrotliCompressor {
	brotliLevel := brotli.DefaultCompression
	switch level {
	case CompressionLevelFastest:
		brotliLevel = brotli.BestSpeed
	case CompressionLevelBest:
		brotliLevel = brotli.BestCompression
	}
	return &BrotliCompressor{level: brotliLevel}
}

func (b *BrotliCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := brotli.NewWriterLevel(&buf, b.level)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *BrotliCompressor) Decompress(data []byte, rawLen int) ([]byte, error) {
	return readExactly(brotli.NewReader(bytes.NewReader(data)), rawLen)
}

func (b *BrotliCompressor) Type() CompressionType {
	return CompressionBrotli
}

func readExactly(r io.Reader, rawLen int) ([]byte, error) {
	buf := make([]byte, rawLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrapf(ErrCorruptBlock, "reading %d decompressed bytes: %v", rawLen, err)
	}
	return buf, nil
}

// CreateCompressor creates compressor instances. CompressionNone yields a
// nil compressor.
func CreateCompressor(compressionType CompressionType, level CompressionLevel) (Compressor, error) {
	switch compressionType {
	case CompressionNone:
		return nil, nil
	case CompressionSnappy:
		return &SnappyCompressor{}, nil
	case CompressionZstd:
		return NewZstdCompressor(level)
	case CompressionGzip:
		return NewGzipCompressor(level), nil
	case CompressionLZ4:
		return &LZ4Compressor{}, nil
	case CompressionBrotli:
		return NewBrotliCompressor(level), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedCompressor, "type %d", compressionType)
	}
}

// decoders holds one shared instance per stateless compressor. zstd uses a
// dedicated decoder whose DecodeAll is safe for concurrent use.
var decoders = map[CompressionType]Compressor{
	CompressionSnappy: &SnappyCompressor{},
	CompressionGzip:   NewGzipCompressor(CompressionLevelDefault),
	CompressionLZ4:    &LZ4Compressor{},
	CompressionBrotli: NewBrotliCompressor(CompressionLevelDefault),
}

var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

func decompressPayload(h Header, stored []byte) ([]byte, error) {
	switch h.Compression {
	case CompressionNone:
		if len(stored) != h.RawLen {
			return nil, errors.Wrapf(ErrCorruptBlock, "stored payload %d bytes, raw %d", len(stored), h.RawLen)
		}
		return stored, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, h.RawLen))
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptBlock, "zstd: %v", err)
		}
		return out, nil
	}
	c, ok := decoders[h.Compression]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedCompressor, "type %d", h.Compression)
	}
	out, err := c.Decompress(stored, h.RawLen)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptBlock, "%s: %v", h.Compression, err)
	}
	if len(out) != h.RawLen {
		return nil, errors.Wrapf(ErrCorruptBlock, "%s payload decodes to %d bytes, want %d", h.Compression, len(out), h.RawLen)
	}
	return out, nil
}
