package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataspaceSimpleRoundtrip(t *testing.T) {
	raw := EncodeDataspace([]uint64{2, 3, 4}, nil)
	ds, err := ParseDataspace(raw)
	require.NoError(t, err)
	assert.Equal(t, SpaceSimple, ds.Type)
	assert.Equal(t, []uint64{2, 3, 4}, ds.Dims)
	assert.Nil(t, ds.MaxDims)
	assert.False(t, ds.IsUnlimited())

	n, err := ds.NumElements()
	require.NoError(t, err)
	assert.Equal(t, uint64(24), n)
}

func TestDataspaceScalarRoundtrip(t *testing.T) {
	ds, err := ParseDataspace(EncodeDataspace(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, SpaceScalar, ds.Type)
	assert.Empty(t, ds.Dims)

	n, err := ds.NumElements()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestDataspaceMaxDims(t *testing.T) {
	unlimited := ^uint64(0)
	raw := EncodeDataspace([]uint64{10, 5}, []uint64{unlimited, 5})
	ds, err := ParseDataspace(raw)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 5}, ds.Dims)
	assert.Equal(t, []uint64{unlimited, 5}, ds.MaxDims)
	assert.True(t, ds.IsUnlimited())
}

func TestDataspaceV2(t *testing.T) {
	// version 2 null space: version(1) rank(1) flags(1) type(1)
	ds, err := ParseDataspace([]byte{2, 0, 0, SpaceNull})
	require.NoError(t, err)
	assert.Equal(t, SpaceNull, ds.Type)
	n, err := ds.NumElements()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	// version 2 simple space with one dimension
	ds, err = ParseDataspace([]byte{2, 1, 0, SpaceSimple, 7, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, ds.Dims)
}

func TestDataspaceErrors(t *testing.T) {
	_, err := ParseDataspace([]byte{1, 2})
	assert.Error(t, err)

	_, err = ParseDataspace([]byte{5, 0, 0, 0, 0, 0, 0, 0})
	assert.Error(t, err)

	// rank 2 declared but only one dimension present
	trunc := EncodeDataspace([]uint64{3, 3}, nil)[:16]
	_, err = ParseDataspace(trunc)
	assert.Error(t, err)
}
