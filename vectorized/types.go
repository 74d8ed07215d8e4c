package vectorized

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// DataType represents the logical type of a column value
type DataType int

const (
	INT16 DataType = iota
	INT32
	INT64
	FLOAT32
	FLOAT64
	STRING
	BOOLEAN
	DATE      // days since epoch, stored as int32
	TIMESTAMP // microseconds since epoch, stored as int64
)

// MaxIntegerBits is the width of the widest integer accumulator.
const MaxIntegerBits = 64

var (
	ErrNumericOutOfRange = errors.New("bigint out of range")
	ErrTypeMismatch      = errors.New("value does not match column type")
)

func (dt DataType) String() string {
	switch dt {
	case INT16:
		return "INT16"
	case INT32:
		return "INT32"
	case INT64:
		return "INT64"
	case FLOAT32:
		return "FLOAT32"
	case FLOAT64:
		return "FLOAT64"
	case STRING:
		return "STRING"
	case BOOLEAN:
		return "BOOLEAN"
	case DATE:
		return "DATE"
	case TIMESTAMP:
		return "TIMESTAMP"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(dt))
	}
}

// Size returns the fixed byte width of the type, or 0 for variable-length types.
func (dt DataType) Size() int {
	switch dt {
	case INT16:
		return 2
	case INT32, FLOAT32, DATE:
		return 4
	case INT64, FLOAT64, TIMESTAMP:
		return 8
	case BOOLEAN:
		return 1
	default:
		return 0
	}
}

func (dt DataType) IsNumeric() bool {
	return dt.IsInteger() || dt == FLOAT32 || dt == FLOAT64
}

// IsInteger reports whether values of the type are stored as signed integers.
func (dt DataType) IsInteger() bool {
	switch dt {
	case INT16, INT32, INT64, DATE, TIMESTAMP:
		return true
	}
	return false
}

func (dt DataType) IsFloat() bool {
	return dt == FLOAT32 || dt == FLOAT64
}

// Valid reports whether dt is one of the declared types.
func (dt DataType) Valid() bool {
	return dt >= INT16 && dt <= TIMESTAMP
}

// ParseDataType resolves a type name as printed by String.
func ParseDataType(name string) (DataType, error) {
	for dt := INT16; dt <= TIMESTAMP; dt++ {
		if dt.String() == name {
			return dt, nil
		}
	}
	return 0, errors.Newf("unknown data type %q", name)
}

// Coerce converts v to the canonical Go representation of dt: int16, int32,
// int64, float32, float64, string or bool. nil stays nil.
func Coerce(v interface{}, dt DataType) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch dt {
	case INT16, INT32, INT64, DATE, TIMESTAMP:
		i, ok := AsInt64(v)
		if !ok {
			return nil, errors.Wrapf(ErrTypeMismatch, "%T as %s", v, dt)
		}
		switch dt {
		case INT16:
			if i < -1<<15 || i > 1<<15-1 {
				return nil, errors.Wrapf(ErrNumericOutOfRange, "%d as %s", i, dt)
			}
			return int16(i), nil
		case INT32, DATE:
			if i < -1<<31 || i > 1<<31-1 {
				return nil, errors.Wrapf(ErrNumericOutOfRange, "%d as %s", i, dt)
			}
			return int32(i), nil
		}
		return i, nil
	case FLOAT32:
		f, ok := AsFloat64(v)
		if !ok {
			return nil, errors.Wrapf(ErrTypeMismatch, "%T as %s", v, dt)
		}
		return float32(f), nil
	case FLOAT64:
		f, ok := AsFloat64(v)
		if !ok {
			return nil, errors.Wrapf(ErrTypeMismatch, "%T as %s", v, dt)
		}
		return f, nil
	case STRING:
		s, ok := v.(string)
		if !ok {
			return nil, errors.Wrapf(ErrTypeMismatch, "%T as %s", v, dt)
		}
		return s, nil
	case BOOLEAN:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.Wrapf(ErrTypeMismatch, "%T as %s", v, dt)
		}
		return b, nil
	}
	return nil, errors.Newf("unsupported data type %s", dt)
}

// AsInt64 widens any Go integer to int64.
func AsInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

// AsFloat64 widens any Go integer or float to float64.
func AsFloat64(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if i, ok := AsInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// TypeOf returns the data type matching the canonical Go representation of v.
func TypeOf(v interface{}) (DataType, bool) {
	switch v.(type) {
	case int16:
		return INT16, true
	case int32:
		return INT32, true
	case int, int64:
		return INT64, true
	case float32:
		return FLOAT32, true
	case float64:
		return FLOAT64, true
	case string:
		return STRING, true
	case bool:
		return BOOLEAN, true
	}
	return 0, false
}
