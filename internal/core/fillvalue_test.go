package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillValueRoundtrip(t *testing.T) {
	value := []byte{0, 0, 0, 0, 0, 0, 0x23, 0x40} // 9.5 as float64
	fv, err := ParseFillValue(EncodeFillValue(value))
	require.NoError(t, err)
	assert.True(t, fv.Defined)
	assert.Equal(t, value, fv.Value)
}

func TestFillValueUndefined(t *testing.T) {
	fv, err := ParseFillValue(EncodeFillValue(nil))
	require.NoError(t, err)
	assert.False(t, fv.Defined)
	assert.Nil(t, fv.Value)
}

func TestFillValueV3(t *testing.T) {
	// flags bit 5: undefined
	fv, err := ParseFillValue([]byte{3, 0x20})
	require.NoError(t, err)
	assert.False(t, fv.Defined)

	// flags bit 4: defined, size 2
	fv, err = ParseFillValue([]byte{3, 0x10, 2, 0, 0, 0, 0xAA, 0xBB})
	require.NoError(t, err)
	assert.True(t, fv.Defined)
	assert.Equal(t, []byte{0xAA, 0xBB}, fv.Value)
}

func TestOldFillValue(t *testing.T) {
	fv, err := ParseOldFillValue([]byte{4, 0, 0, 0, 1, 2, 3, 4})
	require.NoError(t, err)
	assert.True(t, fv.Defined)
	assert.Equal(t, []byte{1, 2, 3, 4}, fv.Value)

	fv, err = ParseOldFillValue([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	assert.False(t, fv.Defined)

	_, err = ParseOldFillValue([]byte{9, 0, 0, 0, 1})
	assert.Error(t, err)
}
