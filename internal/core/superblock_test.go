package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperblockV0Roundtrip(t *testing.T) {
	sb := &Superblock{
		Version:        0,
		OffsetSize:     8,
		LengthSize:     8,
		GroupLeafK:     4,
		GroupInternalK: 16,
		RootEntry: &SymbolTableEntry{
			HeaderAddress: 96,
			CacheType:     1,
			BTreeAddress:  200,
			HeapAddress:   300,
		},
	}
	buf := EncodeSuperblockV0(sb, 4096)
	require.Len(t, buf, SuperblockV0Size)

	got, err := ParseSuperblock(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, uint8(0), got.Version)
	assert.Equal(t, uint8(8), got.OffsetSize)
	assert.Equal(t, uint8(8), got.LengthSize)
	assert.Equal(t, uint16(4), got.GroupLeafK)
	assert.Equal(t, uint16(16), got.GroupInternalK)
	assert.Equal(t, uint64(4096), got.EOFAddress)
	assert.Equal(t, uint64(96), got.RootAddress)
	require.NotNil(t, got.RootEntry)
	assert.Equal(t, uint32(1), got.RootEntry.CacheType)
	assert.Equal(t, uint64(200), got.RootEntry.BTreeAddress)
	assert.Equal(t, uint64(300), got.RootEntry.HeapAddress)
}

func TestSuperblockV2Roundtrip(t *testing.T) {
	sb := &Superblock{
		Version:     2,
		OffsetSize:  8,
		LengthSize:  8,
		RootAddress: 48,
	}
	buf := EncodeSuperblockV2(sb, 8192)
	require.Len(t, buf, 48)

	got, err := ParseSuperblock(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), got.Version)
	assert.Equal(t, uint64(48), got.RootAddress)
	assert.Equal(t, uint64(8192), got.EOFAddress)
	assert.True(t, UndefinedAddress(got.ExtensionAddress, 8))
}

func TestSuperblockV2ChecksumMismatch(t *testing.T) {
	sb := &Superblock{Version: 2, OffsetSize: 8, LengthSize: 8, RootAddress: 48}
	buf := EncodeSuperblockV2(sb, 8192)
	buf[20] ^= 0x01

	_, err := ParseSuperblock(bytes.NewReader(buf))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadChecksum)
}

func TestSuperblockBadSignature(t *testing.T) {
	_, err := ParseSuperblock(bytes.NewReader(make([]byte, 96)))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSuperblockRejectsBadSizes(t *testing.T) {
	sb := &Superblock{
		OffsetSize: 8, LengthSize: 8,
		GroupLeafK: 4, GroupInternalK: 16,
		RootEntry: &SymbolTableEntry{},
	}
	buf := EncodeSuperblockV0(sb, 96)
	buf[13] = 3 // offset size must be 2, 4, or 8

	_, err := ParseSuperblock(bytes.NewReader(buf))
	assert.Error(t, err)
}

func TestFindSignature(t *testing.T) {
	sb := &Superblock{
		OffsetSize: 8, LengthSize: 8,
		GroupLeafK: 4, GroupInternalK: 16,
		RootEntry: &SymbolTableEntry{},
	}
	image := EncodeSuperblockV0(sb, 96)

	off, err := FindSignature(bytes.NewReader(image))
	require.NoError(t, err)
	assert.Equal(t, int64(0), off)

	// MATLAB v7.3 layout: 512-byte user block before the superblock
	shifted := append(make([]byte, 512), image...)
	off, err = FindSignature(bytes.NewReader(shifted))
	require.NoError(t, err)
	assert.Equal(t, int64(512), off)

	_, err = FindSignature(bytes.NewReader(make([]byte, 4096)))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSymbolTableEntryRoundtrip(t *testing.T) {
	cases := []struct {
		name string
		ste  SymbolTableEntry
	}{
		{"uncached", SymbolTableEntry{LinkNameOffset: 8, HeaderAddress: 1000}},
		{"group", SymbolTableEntry{LinkNameOffset: 16, HeaderAddress: 2000, CacheType: 1, BTreeAddress: 3000, HeapAddress: 4000}},
		{"softlink", SymbolTableEntry{LinkNameOffset: 24, HeaderAddress: Undefined(8), CacheType: 2, LinkOffset: 40}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := NewEncoder(8, 8)
			EncodeSymbolTableEntry(enc, &tc.ste)
			require.Equal(t, 40, enc.Len())

			r := NewReader(bytes.NewReader(enc.Bytes()), 0, 8, 8)
			got, err := ReadSymbolTableEntry(r)
			require.NoError(t, err)
			assert.Equal(t, &tc.ste, got)
		})
	}
}
