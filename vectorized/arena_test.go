package vectorized

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestArenaAlignment(t *testing.T) {
	a := NewArena(4096)

	i16 := a.Int16s(3)
	i64 := a.Int64s(10)
	f32 := a.Float32s(7)
	words := a.Words(2)

	require.True(t, IsAligned(unsafe.Pointer(&i16[0])))
	require.True(t, IsAligned(unsafe.Pointer(&i64[0])))
	require.True(t, IsAligned(unsafe.Pointer(&f32[0])))
	require.True(t, IsAligned(unsafe.Pointer(&words[0])))
	require.Len(t, i64, 10)
	require.Len(t, f32, 7)
}

func TestArenaResetReusesMemory(t *testing.T) {
	a := NewArena(1024)

	first := a.Int64s(16)
	for i := range first {
		first[i] = int64(i + 1)
	}
	capacity := a.Capacity()
	require.Greater(t, a.Used(), 0)

	a.Reset()
	require.Equal(t, 0, a.Used())
	require.Equal(t, 1, a.Resets())

	second := a.Int64s(16)
	require.Equal(t, unsafe.Pointer(&first[0]), unsafe.Pointer(&second[0]))
	for _, v := range second {
		require.Zero(t, v, "recycled memory must be zeroed")
	}
	require.Equal(t, capacity, a.Capacity())
}

func TestArenaGrowsBeyondInitialChunk(t *testing.T) {
	a := NewArena(256)

	big := a.Float64s(10000)
	require.Len(t, big, 10000)
	big[9999] = 1.5
	require.Greater(t, a.Capacity(), 256)

	grown := a.Capacity()
	a.Reset()
	again := a.Float64s(10000)
	require.Zero(t, again[9999])
	require.Equal(t, grown, a.Capacity(), "retained chunks are reused after reset")
}

func TestArenaRelease(t *testing.T) {
	a := NewArena(512)
	a.Int32s(10)
	a.Release()
	require.Equal(t, 0, a.Capacity())
}

func TestNullVector(t *testing.T) {
	a := NewArena(1024)
	v, err := NewNullVector(INT32, 70, a)
	require.NoError(t, err)
	require.Equal(t, 70, v.NullCount())
	for i := 0; i < 70; i++ {
		require.Nil(t, v.Value(i))
	}

	require.NoError(t, v.Set(5, int64(42)))
	require.Equal(t, int32(42), v.Value(5))
	require.Equal(t, 69, v.NullCount())
	require.NoError(t, v.Set(5, nil))
	require.True(t, v.IsNull(5))
}
