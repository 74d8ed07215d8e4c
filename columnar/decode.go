package columnar

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// DecompressAllFunc decodes a whole block body into a vector allocated from
// arena. validity is nil when the block has no nulls.
type DecompressAllFunc func(h Header, validity []uint64, body *payloadReader, arena *vectorized.Arena) (*vectorized.Vector, error)

// GetDecompressAllFunction returns the bulk decoder of an algorithm, or nil
// when the algorithm can only be decoded row by row.
func GetDecompressAllFunction(a Algorithm) DecompressAllFunc {
	switch a {
	case AlgorithmPlain:
		return decompressAllPlain
	case AlgorithmDelta:
		return decompressAllDelta
	}
	return nil
}

// DecompressAll decodes a block into a vector with the algorithm's bulk
// decoder. It fails with ErrUnsupportedAlgorithm when there is none.
func DecompressAll(block []byte, dt vectorized.DataType, arena *vectorized.Arena) (*vectorized.Vector, error) {
	h, body, err := openBlock(block, dt)
	if err != nil {
		return nil, err
	}
	fn := GetDecompressAllFunction(h.Algorithm)
	if fn == nil {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "no bulk decoder for %s", h.Algorithm)
	}
	validity, err := readValidity(h, body, arena)
	if err != nil {
		return nil, err
	}
	return fn(h, validity, body, arena)
}

// DecodeToVector decodes a block into a vector, using the bulk decoder when
// the block's algorithm has one and the row iterator otherwise.
func DecodeToVector(block []byte, dt vectorized.DataType, arena *vectorized.Arena) (*vectorized.Vector, error) {
	h, err := ReadHeader(block)
	if err != nil {
		return nil, err
	}
	if GetDecompressAllFunction(h.Algorithm) != nil {
		return DecompressAll(block, dt, arena)
	}
	it, err := NewRowIterator(block, dt)
	if err != nil {
		return nil, err
	}
	v, err := vectorized.NewNullVector(dt, it.Rows(), arena)
	if err != nil {
		return nil, err
	}
	for i := 0; ; i++ {
		value, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := v.Set(i, value); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// openBlock validates the header against the expected type and returns a
// reader positioned at the start of the decompressed payload.
func openBlock(block []byte, dt vectorized.DataType) (Header, *payloadReader, error) {
	h, err := ReadHeader(block)
	if err != nil {
		return Header{}, nil, err
	}
	if h.DataType != dt {
		return Header{}, nil, errors.Wrapf(ErrTypeMismatch, "block holds %s, column is %s", h.DataType, dt)
	}
	payload, err := decompressPayload(h, block[BlockHeaderSize:])
	if err != nil {
		return Header{}, nil, err
	}
	return h, &payloadReader{buf: payload}, nil
}

// readValidity consumes the null section. With a nil arena the words are
// heap allocated.
func readValidity(h Header, r *payloadReader, arena *vectorized.Arena) ([]uint64, error) {
	flag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, errors.Wrapf(ErrCorruptBlock, "bad null flag %d", flag)
	}
	n := vectorized.WordsFor(h.Rows)
	raw, err := r.bytes(n * 8)
	if err != nil {
		return nil, err
	}
	var words []uint64
	if arena != nil {
		words = arena.Words(n)
	} else {
		words = make([]uint64, n)
	}
	for i := range words {
		words[i] = ByteOrder.Uint64(raw[i*8:])
	}
	return words, nil
}

func newVector(h Header, validity []uint64, arena *vectorized.Arena) (*vectorized.Vector, error) {
	v, err := vectorized.NewVector(h.DataType, h.Rows, arena)
	if err != nil {
		return nil, err
	}
	if validity != nil {
		v.Validity = bitset.FromWithLength(uint(h.Rows), validity)
	}
	return v, nil
}

func decompressAllPlain(h Header, validity []uint64, r *payloadReader, arena *vectorized.Arena) (*vectorized.Vector, error) {
	v, err := newVector(h, validity, arena)
	if err != nil {
		return nil, err
	}
	n := h.Rows
	if size := h.DataType.Size(); size > 0 {
		raw, err := r.bytes(n * size)
		if err != nil {
			return nil, err
		}
		switch data := v.Data.(type) {
		case []int16:
			for i := range data {
				data[i] = int16(ByteOrder.Uint16(raw[i*2:]))
			}
		case []int32:
			for i := range data {
				data[i] = int32(ByteOrder.Uint32(raw[i*4:]))
			}
		case []int64:
			for i := range data {
				data[i] = int64(ByteOrder.Uint64(raw[i*8:]))
			}
		case []float32:
			for i := range data {
				data[i] = math.Float32frombits(ByteOrder.Uint32(raw[i*4:]))
			}
		case []float64:
			for i := range data {
				data[i] = math.Float64frombits(ByteOrder.Uint64(raw[i*8:]))
			}
		case []bool:
			for i := range data {
				data[i] = raw[i] != 0
			}
		}
		return v, r.done()
	}
	data := v.Data.([]string)
	for i := range data {
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		data[i] = s
	}
	return v, r.done()
}

func decompressAllDelta(h Header, validity []uint64, r *payloadReader, arena *vectorized.Arena) (*vectorized.Vector, error) {
	if !h.DataType.IsInteger() {
		return nil, errors.Wrapf(ErrUnsupportedType, "delta block of %s", h.DataType)
	}
	v, err := newVector(h, validity, arena)
	if err != nil {
		return nil, err
	}
	var cur int64
	for i := 0; i < h.Rows; i++ {
		d, err := r.varint()
		if err != nil {
			return nil, err
		}
		cur += d
		switch data := v.Data.(type) {
		case []int16:
			data[i] = int16(cur)
		case []int32:
			data[i] = int32(cur)
		case []int64:
			data[i] = cur
		}
	}
	return v, r.done()
}

// RowIterator decodes a block one row at a time. Next returns nil for a
// NULL row and io.EOF after the last row.
type RowIterator interface {
	Next() (interface{}, error)
	Rows() int
}

// NewRowIterator opens a block of any algorithm for row-at-a-time decoding.
func NewRowIterator(block []byte, dt vectorized.DataType) (RowIterator, error) {
	h, body, err := openBlock(block, dt)
	if err != nil {
		return nil, err
	}
	validity, err := readValidity(h, body, nil)
	if err != nil {
		return nil, err
	}
	base := rowIterator{h: h, validity: validity, r: body}
	switch h.Algorithm {
	case AlgorithmPlain:
		return &plainIterator{rowIterator: base}, nil
	case AlgorithmDelta:
		if !dt.IsInteger() {
			return nil, errors.Wrapf(ErrUnsupportedType, "delta block of %s", dt)
		}
		return &deltaIterator{rowIterator: base}, nil
	case AlgorithmDictionary:
		it := &dictionaryIterator{rowIterator: base}
		if err := it.readDictionary(); err != nil {
			return nil, err
		}
		return it, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "%s", h.Algorithm)
}

type rowIterator struct {
	h        Header
	validity []uint64
	r        *payloadReader
	pos      int
}

func (it *rowIterator) Rows() int { return it.h.Rows }

func (it *rowIterator) isNull(i int) bool {
	return it.validity != nil && !vectorized.RowPasses(it.validity, i)
}

type plainIterator struct {
	rowIterator
}

func (it *plainIterator) Next() (interface{}, error) {
	if it.pos >= it.h.Rows {
		return nil, io.EOF
	}
	i := it.pos
	it.pos++
	v, err := it.r.plain(it.h.DataType)
	if err != nil || it.isNull(i) {
		return nil, err
	}
	return v, nil
}

type deltaIterator struct {
	rowIterator
	cur int64
}

func (it *deltaIterator) Next() (interface{}, error) {
	if it.pos >= it.h.Rows {
		return nil, io.EOF
	}
	i := it.pos
	it.pos++
	d, err := it.r.varint()
	if err != nil {
		return nil, err
	}
	it.cur += d
	if it.isNull(i) {
		return nil, nil
	}
	switch it.h.DataType {
	case vectorized.INT16:
		return int16(it.cur), nil
	case vectorized.INT32, vectorized.DATE:
		return int32(it.cur), nil
	}
	return it.cur, nil
}

type dictionaryIterator struct {
	rowIterator
	dict []interface{}
}

func (it *dictionaryIterator) readDictionary() error {
	size, err := it.r.uvarint()
	if err != nil {
		return err
	}
	if size > uint64(it.h.Rows) {
		return errors.Wrapf(ErrCorruptBlock, "dictionary of %d entries for %d rows", size, it.h.Rows)
	}
	it.dict = make([]interface{}, size)
	for i := range it.dict {
		if it.dict[i], err = it.r.plain(it.h.DataType); err != nil {
			return err
		}
	}
	return nil
}

func (it *dictionaryIterator) Next() (interface{}, error) {
	if it.pos >= it.h.Rows {
		return nil, io.EOF
	}
	i := it.pos
	it.pos++
	id, err := it.r.uvarint()
	if err != nil {
		return nil, err
	}
	if it.isNull(i) {
		return nil, nil
	}
	if id >= uint64(len(it.dict)) {
		return nil, errors.Wrapf(ErrCorruptBlock, "dictionary index %d out of range %d", id, len(it.dict))
	}
	return it.dict[id], nil
}

// payloadReader walks a decompressed block payload
type payloadReader struct {
	buf []byte
	pos int
}

func (r *payloadReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errors.Wrapf(ErrCorruptBlock, "need %d bytes at offset %d of %d", n, r.pos, len(r.buf))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *payloadReader) readByte() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *payloadReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, errors.Wrapf(ErrCorruptBlock, "bad uvarint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *payloadReader) varint() (int64, error) {
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		return 0, errors.Wrapf(ErrCorruptBlock, "bad varint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *payloadReader) readString() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(len(r.buf)) {
		return "", errors.Wrapf(ErrCorruptBlock, "string length %d", n)
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// plain reads one value written by appendPlain.
func (r *payloadReader) plain(dt vectorized.DataType) (interface{}, error) {
	if dt == vectorized.STRING {
		return r.readString()
	}
	raw, err := r.bytes(dt.Size())
	if err != nil {
		return nil, err
	}
	switch dt {
	case vectorized.INT16:
		return int16(ByteOrder.Uint16(raw)), nil
	case vectorized.INT32, vectorized.DATE:
		return int32(ByteOrder.Uint32(raw)), nil
	case vectorized.INT64, vectorized.TIMESTAMP:
		return int64(ByteOrder.Uint64(raw)), nil
	case vectorized.FLOAT32:
		return math.Float32frombits(ByteOrder.Uint32(raw)), nil
	case vectorized.FLOAT64:
		return math.Float64frombits(ByteOrder.Uint64(raw)), nil
	case vectorized.BOOLEAN:
		return raw[0] != 0, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "%s", dt)
}

func (r *payloadReader) done() error {
	if r.pos != len(r.buf) {
		return errors.Wrapf(ErrCorruptBlock, "%d trailing bytes", len(r.buf)-r.pos)
	}
	return nil
}
