package columnar

import (
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

func iterate(t *testing.T, block []byte, dt vectorized.DataType) []interface{} {
	t.Helper()
	it, err := NewRowIterator(block, dt)
	require.NoError(t, err)
	var out []interface{}
	for {
		v, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, v)
	}
	require.Len(t, out, it.Rows())
	return out
}

func vectorValues(v *vectorized.Vector) []interface{} {
	out := make([]interface{}, v.Length)
	for i := range out {
		out[i] = v.Value(i)
	}
	return out
}

func TestEncodeDecodeAlgorithms(t *testing.T) {
	tests := []struct {
		name      string
		dt        vectorized.DataType
		algorithm Algorithm
		values    []interface{}
		want      []interface{}
	}{
		{
			name:   "delta int32 with nulls",
			dt:     vectorized.INT32,
			values: []interface{}{int64(10), nil, int64(12), int64(-7), nil},
			want:   []interface{}{int32(10), nil, int32(12), int32(-7), nil},
		},
		{
			name:   "delta timestamp wraps",
			dt:     vectorized.TIMESTAMP,
			values: []interface{}{int64(math.MaxInt64), int64(math.MinInt64), int64(0)},
			want:   []interface{}{int64(math.MaxInt64), int64(math.MinInt64), int64(0)},
		},
		{
			name:   "plain float64",
			dt:     vectorized.FLOAT64,
			values: []interface{}{1.5, nil, math.Inf(-1)},
			want:   []interface{}{1.5, nil, math.Inf(-1)},
		},
		{
			name:      "plain strings",
			dt:        vectorized.STRING,
			algorithm: AlgorithmPlain,
			values:    []interface{}{"a", "", nil, "héllo"},
			want:      []interface{}{"a", "", nil, "héllo"},
		},
		{
			name:   "dictionary strings",
			dt:     vectorized.STRING,
			values: []interface{}{"x", "y", "x", nil, "x"},
			want:   []interface{}{"x", "y", "x", nil, "x"},
		},
		{
			name:      "dictionary int16",
			dt:        vectorized.INT16,
			algorithm: AlgorithmDictionary,
			values:    []interface{}{int16(3), int16(3), nil, int16(-1)},
			want:      []interface{}{int16(3), int16(3), nil, int16(-1)},
		},
		{
			name:   "plain bool",
			dt:     vectorized.BOOLEAN,
			values: []interface{}{true, false, nil},
			want:   []interface{}{true, false, nil},
		},
		{
			name:   "empty block",
			dt:     vectorized.INT64,
			values: []interface{}{},
			want:   []interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewEncodeOptions().WithAlgorithm(tt.algorithm)
			block, err := EncodeColumn(tt.dt, tt.values, opts)
			require.NoError(t, err)

			arena := vectorized.NewArena(4096)
			v, err := DecodeToVector(block, tt.dt, arena)
			require.NoError(t, err)
			require.Equal(t, len(tt.want), v.Length)
			require.Equal(t, tt.want, vectorValues(v))

			if len(tt.want) > 0 {
				require.Equal(t, tt.want, iterate(t, block, tt.dt))
			}
		})
	}
}

func TestPageCompressors(t *testing.T) {
	values := make([]interface{}, 1000)
	for i := range values {
		if i%17 == 0 {
			continue
		}
		values[i] = float64(i % 10)
	}

	for _, c := range []CompressionType{CompressionSnappy, CompressionZstd, CompressionGzip, CompressionLZ4, CompressionBrotli} {
		t.Run(c.String(), func(t *testing.T) {
			block, err := EncodeColumn(vectorized.FLOAT64, values,
				NewEncodeOptions().WithCompression(c, CompressionLevelDefault))
			require.NoError(t, err)

			h, err := ReadHeader(block)
			require.NoError(t, err)
			require.Equal(t, c, h.Compression)
			require.Less(t, h.StoredLen, h.RawLen)

			v, err := DecompressAll(block, vectorized.FLOAT64, vectorized.NewArena(16384))
			require.NoError(t, err)
			require.Equal(t, 59, v.NullCount())
			require.Equal(t, 4.0, v.Value(4))
		})
	}
}

func TestSmallPayloadStaysUncompressed(t *testing.T) {
	block, err := EncodeColumn(vectorized.INT32, []interface{}{int32(1)},
		NewEncodeOptions().WithCompression(CompressionZstd, CompressionLevelBest))
	require.NoError(t, err)
	h, err := ReadHeader(block)
	require.NoError(t, err)
	require.Equal(t, CompressionNone, h.Compression)
}

func TestBulkSupport(t *testing.T) {
	require.NotNil(t, GetDecompressAllFunction(AlgorithmPlain))
	require.NotNil(t, GetDecompressAllFunction(AlgorithmDelta))
	require.Nil(t, GetDecompressAllFunction(AlgorithmDictionary))

	require.True(t, BulkSupported(vectorized.INT32))
	require.True(t, BulkSupported(vectorized.FLOAT64))
	require.False(t, BulkSupported(vectorized.STRING))

	block, err := EncodeColumn(vectorized.STRING, []interface{}{"a"}, nil)
	require.NoError(t, err)
	_, err = DecompressAll(block, vectorized.STRING, vectorized.NewArena(1024))
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestCorruptBlocks(t *testing.T) {
	block, err := EncodeColumn(vectorized.INT64, []interface{}{int64(1), int64(2)}, nil)
	require.NoError(t, err)

	_, err = DecompressAll(block, vectorized.INT32, vectorized.NewArena(1024))
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = ReadHeader(block[:BlockHeaderSize-1])
	require.ErrorIs(t, err, ErrCorruptBlock)

	truncated := append([]byte(nil), block[:len(block)-1]...)
	_, err = ReadHeader(truncated)
	require.ErrorIs(t, err, ErrCorruptBlock)

	huge := append([]byte(nil), block...)
	ByteOrder.PutUint32(huge[8:], math.MaxUint32)
	_, err = ReadHeader(huge)
	require.ErrorIs(t, err, ErrCorruptBlock)
	_, err = DecompressAll(huge, vectorized.INT64, vectorized.NewArena(1024))
	require.ErrorIs(t, err, ErrCorruptBlock)

	// two delta rows never need more than a bitmap and two varints
	inflated := append([]byte(nil), block...)
	ByteOrder.PutUint32(inflated[8:], 1+8+2*10+1)
	_, err = ReadHeader(inflated)
	require.ErrorIs(t, err, ErrCorruptBlock)

	bad := append([]byte(nil), block...)
	bad[0] = 0
	_, err = NewRowIterator(bad, vectorized.INT64)
	require.ErrorIs(t, err, ErrCorruptBlock)

	_, err = EncodeColumn(vectorized.FLOAT32, []interface{}{1.0}, NewEncodeOptions().WithAlgorithm(AlgorithmDelta))
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestScalarEncoding(t *testing.T) {
	for _, tc := range []struct {
		dt vectorized.DataType
		v  interface{}
	}{
		{vectorized.INT32, int32(-42)},
		{vectorized.TIMESTAMP, int64(1700000000000000)},
		{vectorized.STRING, "device-7"},
		{vectorized.FLOAT32, float32(2.5)},
		{vectorized.BOOLEAN, true},
		{vectorized.INT16, nil},
	} {
		data, err := EncodeScalar(tc.dt, tc.v)
		require.NoError(t, err)
		got, err := DecodeScalar(data)
		require.NoError(t, err)
		require.Equal(t, tc.v, got)
	}
}

func TestBatchAccessors(t *testing.T) {
	b := NewBatch("seg", []byte{1}, int32(7), nil)

	n, ok, err := b.Int32(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(7), n)

	_, ok, err = b.Int32(3)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = b.Block(0)
	require.Error(t, err)
	blk, err := b.Block(3)
	require.NoError(t, err)
	require.Nil(t, blk)
	_, err = b.Block(9)
	require.Error(t, err)
}
