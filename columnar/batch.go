package columnar

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// Batch is one row of a compressed scan: per column either a segment value
// (a Go scalar, nil for NULL), a compressed block ([]byte, nil when every
// row of the column is NULL), or the int32 COUNT and SEQUENCE_NUMBER
// metadata values.
type Batch struct {
	Values []interface{}
}

// NewBatch creates a batch from per-column values.
func NewBatch(values ...interface{}) *Batch {
	return &Batch{Values: values}
}

// Block returns column i as a compressed block.
func (b *Batch) Block(i int) ([]byte, error) {
	if i < 0 || i >= len(b.Values) {
		return nil, errors.Newf("batch has %d columns, no column %d", len(b.Values), i)
	}
	switch v := b.Values[i].(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	}
	return nil, errors.Newf("column %d holds %T, not a compressed block", i, b.Values[i])
}

// Int32 returns column i as a metadata integer; ok is false for NULL.
func (b *Batch) Int32(i int) (int32, bool, error) {
	if i < 0 || i >= len(b.Values) {
		return 0, false, errors.Newf("batch has %d columns, no column %d", len(b.Values), i)
	}
	if b.Values[i] == nil {
		return 0, false, nil
	}
	v, ok := vectorized.AsInt64(b.Values[i])
	if !ok || v < math.MinInt32 || v > math.MaxInt32 {
		return 0, false, errors.Newf("column %d holds %v, not an int32", i, b.Values[i])
	}
	return int32(v), true, nil
}

// Scalar tags. Zero marks NULL; every other tag is a data type plus one.
const scalarNull = 0

// EncodeScalar serialises a segment or metadata value with its type.
func EncodeScalar(dt vectorized.DataType, v interface{}) ([]byte, error) {
	if v == nil {
		return []byte{scalarNull}, nil
	}
	c, err := vectorized.Coerce(v, dt)
	if err != nil {
		return nil, err
	}
	buf := []byte{byte(dt) + 1}
	switch x := c.(type) {
	case int16:
		return binary.AppendVarint(buf, int64(x)), nil
	case int32:
		return binary.AppendVarint(buf, int64(x)), nil
	case int64:
		return binary.AppendVarint(buf, x), nil
	}
	return appendPlain(buf, dt, c), nil
}

// DecodeScalar reverses EncodeScalar.
func DecodeScalar(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrCorruptBlock, "empty scalar")
	}
	if data[0] == scalarNull {
		return nil, nil
	}
	dt := vectorized.DataType(data[0] - 1)
	if !dt.Valid() {
		return nil, errors.Wrapf(ErrCorruptBlock, "bad scalar tag %d", data[0])
	}
	r := &payloadReader{buf: data[1:]}
	if dt.IsInteger() {
		v, err := r.varint()
		if err != nil {
			return nil, err
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return vectorized.Coerce(v, dt)
	}
	v, err := r.plain(dt)
	if err != nil {
		return nil, err
	}
	return v, r.done()
}
