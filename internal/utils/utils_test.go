package utils

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapError(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError("read superblock", cause)
	require.Error(t, err)
	assert.Equal(t, "read superblock: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.NoError(t, WrapError("anything", nil))

	err = Errorf("parse", "bad value %d", 7)
	assert.Contains(t, err.Error(), "parse: bad value 7")
}

func TestSafeMultiply(t *testing.T) {
	v, err := SafeMultiply(1000, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(8000), v)

	v, err = SafeMultiply(0, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	_, err = SafeMultiply(math.MaxUint64, 2)
	assert.Error(t, err)
}

func TestElementCount(t *testing.T) {
	n, err := ElementCount([]uint64{100, 100})
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), n)

	// no dimensions means a scalar
	n, err = ElementCount(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	_, err = ElementCount([]uint64{math.MaxUint64, 2})
	assert.Error(t, err)
}

func TestByteSize(t *testing.T) {
	n, err := ByteSize([]uint64{10, 10}, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), n)

	_, err = ByteSize([]uint64{10, 10}, 8, 500)
	assert.Error(t, err)
}

func TestValidateSliceBounds(t *testing.T) {
	dims := []uint64{100, 100}
	assert.NoError(t, ValidateSliceBounds([]uint64{10, 10}, []uint64{5, 5}, dims))
	assert.NoError(t, ValidateSliceBounds([]uint64{0, 0}, []uint64{100, 100}, dims))

	// rank mismatch
	assert.Error(t, ValidateSliceBounds([]uint64{0}, []uint64{1}, dims))
	// zero count
	assert.Error(t, ValidateSliceBounds([]uint64{0, 0}, []uint64{1, 0}, dims))
	// past the edge
	assert.Error(t, ValidateSliceBounds([]uint64{99, 0}, []uint64{2, 1}, dims))
	// wrapping start+count
	assert.Error(t, ValidateSliceBounds([]uint64{math.MaxUint64, 0}, []uint64{2, 1}, dims))
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer(100)
	assert.Len(t, buf, 100)
	ReleaseBuffer(buf)

	big := GetBuffer(1 << 16)
	assert.Len(t, big, 1<<16)
	ReleaseBuffer(big)
}
