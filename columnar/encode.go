package columnar

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// EncodeOptions controls how a column block is written
type EncodeOptions struct {
	Algorithm   Algorithm // zero selects DefaultAlgorithm for the column type
	Compression CompressionType
	Level       CompressionLevel

	// MinSizeToCompress leaves smaller payloads uncompressed
	MinSizeToCompress int
}

// NewEncodeOptions creates default encode options
func NewEncodeOptions() *EncodeOptions {
	return &EncodeOptions{
		Compression:       CompressionNone,
		Level:             CompressionLevelDefault,
		MinSizeToCompress: 64,
	}
}

// WithAlgorithm forces a value encoding
func (opts *EncodeOptions) WithAlgorithm(a Algorithm) *EncodeOptions {
	opts.Algorithm = a
	return opts
}

// WithCompression sets the payload compression
func (opts *EncodeOptions) WithCompression(c CompressionType, level CompressionLevel) *EncodeOptions {
	opts.Compression = c
	opts.Level = level
	return opts
}

// WithMinSizeToCompress sets the payload size below which compression is skipped
func (opts *EncodeOptions) WithMinSizeToCompress(n int) *EncodeOptions {
	opts.MinSizeToCompress = n
	return opts
}

// EncodeColumn compresses values of type dt into a block. A nil entry is a
// NULL row. Values are coerced to the column type first.
func EncodeColumn(dt vectorized.DataType, values []interface{}, opts *EncodeOptions) ([]byte, error) {
	if opts == nil {
		opts = NewEncodeOptions()
	}
	if !dt.Valid() {
		return nil, errors.Wrapf(ErrUnsupportedType, "type %d", dt)
	}
	if len(values) > MaxRowsPerBlock {
		return nil, errors.Newf("cannot encode %d rows in one block", len(values))
	}
	algorithm := opts.Algorithm
	if algorithm == 0 {
		algorithm = DefaultAlgorithm(dt)
	}

	coerced := make([]interface{}, len(values))
	hasNulls := false
	for i, v := range values {
		c, err := vectorized.Coerce(v, dt)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		coerced[i] = c
		hasNulls = hasNulls || c == nil
	}

	payload := make([]byte, 0, 16+len(values)*max(dt.Size(), 1))
	if hasNulls {
		payload = append(payload, 1)
		words := make([]uint64, vectorized.WordsFor(len(values)))
		for i, v := range coerced {
			if v != nil {
				words[i>>6] |= 1 << uint(i&63)
			}
		}
		for _, w := range words {
			payload = ByteOrder.AppendUint64(payload, w)
		}
	} else {
		payload = append(payload, 0)
	}

	var err error
	switch algorithm {
	case AlgorithmPlain:
		for _, v := range coerced {
			payload = appendPlain(payload, dt, v)
		}
	case AlgorithmDelta:
		payload, err = appendDelta(payload, dt, coerced)
	case AlgorithmDictionary:
		payload = appendDictionary(payload, dt, coerced)
	default:
		err = errors.Wrapf(ErrUnsupportedAlgorithm, "%s", algorithm)
	}
	if err != nil {
		return nil, err
	}

	if len(payload) > MaxRawBlockSize {
		return nil, errors.Newf("payload of %d bytes exceeds the block limit of %d", len(payload), MaxRawBlockSize)
	}

	h := Header{
		Algorithm:   algorithm,
		DataType:    dt,
		Compression: CompressionNone,
		Rows:        len(values),
		RawLen:      len(payload),
	}
	stored := payload
	if opts.Compression != CompressionNone && len(payload) >= opts.MinSizeToCompress {
		compressor, err := CreateCompressor(opts.Compression, opts.Level)
		if err != nil {
			return nil, err
		}
		compressed, err := compressor.Compress(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "%s compression", opts.Compression)
		}
		if len(compressed) < len(payload) {
			stored = compressed
			h.Compression = opts.Compression
		}
	}
	h.StoredLen = len(stored)

	block := make([]byte, BlockHeaderSize, BlockHeaderSize+len(stored))
	h.marshal(block)
	return append(block, stored...), nil
}

// appendPlain writes one value in its plain form; nil writes the zero value.
func appendPlain(buf []byte, dt vectorized.DataType, v interface{}) []byte {
	switch dt {
	case vectorized.INT16:
		x, _ := v.(int16)
		return ByteOrder.AppendUint16(buf, uint16(x))
	case vectorized.INT32, vectorized.DATE:
		x, _ := v.(int32)
		return ByteOrder.AppendUint32(buf, uint32(x))
	case vectorized.INT64, vectorized.TIMESTAMP:
		x, _ := v.(int64)
		return ByteOrder.AppendUint64(buf, uint64(x))
	case vectorized.FLOAT32:
		x, _ := v.(float32)
		return ByteOrder.AppendUint32(buf, math.Float32bits(x))
	case vectorized.FLOAT64:
		x, _ := v.(float64)
		return ByteOrder.AppendUint64(buf, math.Float64bits(x))
	case vectorized.BOOLEAN:
		if x, _ := v.(bool); x {
			return append(buf, 1)
		}
		return append(buf, 0)
	case vectorized.STRING:
		x, _ := v.(string)
		buf = binary.AppendUvarint(buf, uint64(len(x)))
		return append(buf, x...)
	}
	return buf
}

func appendDelta(buf []byte, dt vectorized.DataType, values []interface{}) ([]byte, error) {
	if !dt.IsInteger() {
		return nil, errors.Wrapf(ErrUnsupportedType, "delta encoding of %s", dt)
	}
	var prev int64
	for i, v := range values {
		cur := prev
		if v != nil {
			cur, _ = vectorized.AsInt64(v)
		}
		if i == 0 {
			buf = binary.AppendVarint(buf, cur)
		} else {
			// wrapping subtraction; decoding adds back with the same wrap
			buf = binary.AppendVarint(buf, cur-prev)
		}
		prev = cur
	}
	return buf, nil
}

func appendDictionary(buf []byte, dt vectorized.DataType, values []interface{}) []byte {
	index := make(map[string]uint64)
	var dict [][]byte
	indices := make([]uint64, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		key := appendPlain(nil, dt, v)
		id, ok := index[string(key)]
		if !ok {
			id = uint64(len(dict))
			index[string(key)] = id
			dict = append(dict, key)
		}
		indices[i] = id
	}
	buf = binary.AppendUvarint(buf, uint64(len(dict)))
	for _, entry := range dict {
		buf = append(buf, entry...)
	}
	for _, id := range indices {
		buf = binary.AppendUvarint(buf, id)
	}
	return buf
}
