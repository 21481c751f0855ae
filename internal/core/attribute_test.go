package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeRoundtrip(t *testing.T) {
	dtBytes, err := EncodeDatatype(FloatDatatype(8))
	require.NoError(t, err)
	dsBytes := EncodeDataspace([]uint64{2}, nil)
	value := make([]byte, 16)
	value[0] = 0xAB

	raw := EncodeAttribute("calibration", dtBytes, dsBytes, value)
	a, err := ParseAttribute(raw)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), a.Version)
	assert.Equal(t, "calibration", a.Name)
	assert.Equal(t, ClassFloat, a.Datatype.Class)
	assert.Equal(t, []uint64{2}, a.Dataspace.Dims)
	// trailing bytes past the declared sections belong to the value
	require.GreaterOrEqual(t, len(a.Data), 16)
	assert.Equal(t, value, a.Data[:16])
}

func TestAttributeScalar(t *testing.T) {
	dtBytes, err := EncodeDatatype(StringDatatype(7))
	require.NoError(t, err)
	raw := EncodeAttribute("units", dtBytes, EncodeDataspace(nil, nil), []byte("celsius"))
	a, err := ParseAttribute(raw)
	require.NoError(t, err)
	assert.Equal(t, "units", a.Name)
	assert.Equal(t, SpaceScalar, a.Dataspace.Type)
	assert.Equal(t, "celsius", string(a.Data[:7]))
}

func TestAttributeErrors(t *testing.T) {
	_, err := ParseAttribute([]byte{1, 0, 0})
	assert.Error(t, err)

	_, err = ParseAttribute([]byte{9, 0, 1, 0, 1, 0, 1, 0, 0, 0, 0})
	assert.Error(t, err)

	// version 2 with the shared-datatype flag set
	_, err = ParseAttribute([]byte{2, 0x01, 1, 0, 1, 0, 1, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestAttributeInfoDense(t *testing.T) {
	sb := testSB()
	e := NewEncoder(8, 8)
	e.Uint8(0)
	e.Uint8(0)
	e.Offset(1024) // fractal heap
	e.Offset(2048) // name index
	ai, err := ParseAttributeInfo(e.Bytes(), sb)
	require.NoError(t, err)
	assert.True(t, ai.Dense())
	assert.Equal(t, uint64(1024), ai.FractalHeapAddress)

	e = NewEncoder(8, 8)
	e.Uint8(0)
	e.Uint8(0)
	e.Offset(Undefined(8))
	e.Offset(Undefined(8))
	ai, err = ParseAttributeInfo(e.Bytes(), sb)
	require.NoError(t, err)
	assert.False(t, ai.Dense())
}
