package hdf5

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5core/internal/core"
)

// denseGroupImage hand-assembles a file whose root group stores its
// links densely: link message bodies live in a fractal heap direct
// block and a v2 B-tree indexes them by name. The members are two
// empty groups, "alpha" and "beta".
func denseGroupImage(t *testing.T) []byte {
	t.Helper()
	const (
		alphaAddr = uint64(96)
		betaAddr  = uint64(128)
		fhdbAddr  = uint64(160)
		frhpAddr  = uint64(672)
		btlfAddr  = uint64(832)
		bthdAddr  = uint64(896)
		groupAddr = uint64(960)
		imageSize = 1152
		blockSize = 512
	)
	image := make([]byte, imageSize)

	emptyGroup, err := core.EncodeObjectHeaderV1([]core.HeaderMessage{
		{Type: core.MsgGroupInfo, Data: []byte{0, 0}},
	})
	require.NoError(t, err)
	copy(image[alphaAddr:], emptyGroup)
	copy(image[betaAddr:], emptyGroup)

	linkBody := func(name string, addr uint64) []byte {
		e := core.NewEncoder(8, 8)
		e.Uint8(1) // link message version
		e.Uint8(0) // flags: 1-byte name length, hard link
		e.Uint8(uint8(len(name)))
		e.Raw([]byte(name))
		e.Offset(addr)
		return e.Bytes()
	}
	alphaLink := linkBody("alpha", alphaAddr)
	betaLink := linkBody("beta", betaAddr)

	// direct block: 17-byte header, then the two link bodies; heap
	// offsets count the block header
	block := make([]byte, blockSize)
	copy(block, "FHDB")
	core.EncodeUintN(block[5:], frhpAddr, 8)
	alphaOff := uint64(17)
	betaOff := alphaOff + uint64(len(alphaLink))
	copy(block[alphaOff:], alphaLink)
	copy(block[betaOff:], betaLink)
	copy(image[fhdbAddr:], block)

	// fractal heap header: 7-byte IDs (1 flag, 4 offset, 2 length)
	fh := core.NewEncoder(8, 8)
	fh.Raw([]byte("FRHP"))
	fh.Uint8(0)
	fh.Uint16(7)
	fh.Uint16(0) // no I/O filters
	fh.Uint8(0)  // unchecksummed blocks
	fh.Uint32(4096)
	fh.Length(0)
	fh.Offset(core.Undefined(8))
	fh.Length(0)
	fh.Offset(core.Undefined(8))
	fh.Length(blockSize)
	fh.Length(blockSize)
	fh.Length(betaOff + uint64(len(betaLink)))
	fh.Length(2)
	fh.Length(0)
	fh.Length(0)
	fh.Length(0)
	fh.Length(0)
	fh.Uint16(4) // table width
	fh.Length(blockSize)
	fh.Length(4096) // max direct block size
	fh.Uint16(32)   // log2 max heap size
	fh.Uint16(0)
	fh.Offset(fhdbAddr)
	fh.Uint16(0) // root is a direct block
	fh.Uint32(core.Lookup3(fh.Bytes()))
	copy(image[frhpAddr:], fh.Bytes())

	heapID := func(off, length uint64) []byte {
		id := make([]byte, 7)
		core.EncodeUintN(id[1:], off, 4)
		core.EncodeUintN(id[5:], length, 2)
		return id
	}

	// name index leaf: lookup3 name hash plus heap ID per record
	lf := core.NewEncoder(8, 8)
	lf.Raw([]byte("BTLF"))
	lf.Uint8(0)
	lf.Uint8(5) // link name records
	lf.Uint32(core.Lookup3([]byte("alpha")))
	lf.Raw(heapID(alphaOff, uint64(len(alphaLink))))
	lf.Uint32(core.Lookup3([]byte("beta")))
	lf.Raw(heapID(betaOff, uint64(len(betaLink))))
	lf.Uint32(core.Lookup3(lf.Bytes()))
	copy(image[btlfAddr:], lf.Bytes())

	bh := core.NewEncoder(8, 8)
	bh.Raw([]byte("BTHD"))
	bh.Uint8(0)
	bh.Uint8(5)
	bh.Uint32(blockSize) // node size
	bh.Uint16(11)        // record size
	bh.Uint16(0)         // depth
	bh.Uint8(100)
	bh.Uint8(40)
	bh.Offset(btlfAddr)
	bh.Uint16(2)
	bh.Length(2)
	bh.Uint32(core.Lookup3(bh.Bytes()))
	copy(image[bthdAddr:], bh.Bytes())

	li := core.NewEncoder(8, 8)
	li.Uint8(0) // link info version
	li.Uint8(0) // no creation order tracking
	li.Offset(frhpAddr)
	li.Offset(bthdAddr)
	group, err := core.EncodeObjectHeaderV1([]core.HeaderMessage{
		{Type: core.MsgLinkInfo, Data: li.Bytes()},
		{Type: core.MsgGroupInfo, Data: []byte{0, 0}},
	})
	require.NoError(t, err)
	copy(image[groupAddr:], group)

	sb := &core.Superblock{
		Version:        0,
		OffsetSize:     8,
		LengthSize:     8,
		GroupLeafK:     4,
		GroupInternalK: 16,
		RootAddress:    groupAddr,
		RootEntry:      &core.SymbolTableEntry{HeaderAddress: groupAddr},
	}
	copy(image, core.EncodeSuperblockV0(sb, imageSize))
	return image
}

func TestDenseGroupChildren(t *testing.T) {
	f := openImage(t, denseGroupImage(t))

	root, err := f.Root()
	require.NoError(t, err)
	names, err := root.Children()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	paths, err := f.ListRecursive()
	require.NoError(t, err)
	assert.Equal(t, []string{"/alpha", "/beta"}, paths)
}

func TestDenseGroupResolve(t *testing.T) {
	f := openImage(t, denseGroupImage(t))

	g, err := f.Group("/alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", g.Name())
	children, err := g.Children()
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = f.Group("/gamma")
	var pnf *PathNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "gamma", pnf.Missing)
}

func TestDenseGroupCorruptIndex(t *testing.T) {
	image := denseGroupImage(t)
	image[896+20] ^= 0x01 // inside the BTHD header
	f := openImage(t, image)

	root, err := f.Root()
	require.NoError(t, err)
	_, err = root.Children()
	require.ErrorIs(t, err, core.ErrBadChecksum)
}
