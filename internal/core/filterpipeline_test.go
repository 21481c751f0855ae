package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterPipelineRoundtrip(t *testing.T) {
	// shuffle, deflate, a named registered filter, fletcher32
	filters := []FilterEntry{
		{ID: 2, CDValues: []uint32{8}},
		{ID: 1, CDValues: []uint32{6}},
		{ID: 32000, Name: "lzf", Flags: 0x01},
		{ID: 3},
	}
	got, err := ParseFilterPipeline(EncodeFilterPipeline(filters))
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, uint16(2), got[0].ID)
	assert.Equal(t, []uint32{8}, got[0].CDValues)
	assert.False(t, got[0].Optional())

	assert.Equal(t, uint16(1), got[1].ID)
	assert.Equal(t, []uint32{6}, got[1].CDValues)

	assert.Equal(t, uint16(32000), got[2].ID)
	assert.Equal(t, "lzf", got[2].Name)
	assert.True(t, got[2].Optional())
	assert.Empty(t, got[2].CDValues)

	assert.Equal(t, uint16(3), got[3].ID)
}

func TestFilterPipelineV2(t *testing.T) {
	// version 2 drops the reserved bytes and names for IDs below 256
	e := NewEncoder(8, 8)
	e.Uint8(2)
	e.Uint8(1)
	e.Uint16(1) // deflate
	e.Uint16(0)
	e.Uint16(1)
	e.Uint32(9)

	got, err := ParseFilterPipeline(e.Bytes())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint16(1), got[0].ID)
	assert.Equal(t, []uint32{9}, got[0].CDValues)
}

func TestFilterPipelineErrors(t *testing.T) {
	_, err := ParseFilterPipeline([]byte{1})
	assert.Error(t, err)

	_, err = ParseFilterPipeline([]byte{7, 0})
	assert.Error(t, err)

	trunc := EncodeFilterPipeline([]FilterEntry{{ID: 1, CDValues: []uint32{6}}})
	_, err = ParseFilterPipeline(trunc[:len(trunc)-8])
	assert.Error(t, err)
}
