package decompress

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohan-flutterint/timescaledb-core/source"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

func TestErrorClasses(t *testing.T) {
	err := configErrorf("column %s is odd", "temp")
	require.True(t, errors.Is(err, ErrConfiguration))
	require.False(t, errors.Is(err, ErrDataIntegrity))
	require.Equal(t, "column temp is odd", err.Error())

	err = integrityErrorf("batch of %d rows", 7)
	require.True(t, errors.Is(err, ErrDataIntegrity))
	require.Equal(t, "batch of 7 rows", err.Error())

	err = markIntegrity(vectorized.ErrTypeMismatch, "segment column %s", "device_id")
	require.True(t, errors.Is(err, ErrDataIntegrity))
	require.True(t, errors.Is(err, vectorized.ErrTypeMismatch))
	require.Contains(t, err.Error(), "segment column device_id: ")
}

func TestOpenWithoutColumns(t *testing.T) {
	err := NewOperator(NewConfig(), source.NewMemorySource()).Open(context.Background())
	require.True(t, errors.Is(err, ErrConfiguration))
	require.EqualError(t, err, "no columns to decompress")
}
