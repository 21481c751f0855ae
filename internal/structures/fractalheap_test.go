package structures

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5core/internal/core"
)

const (
	testBlockSize   = 512
	testMaxHeapBits = 32 // 4-byte heap offsets
	testMaxManaged  = 4096
)

// encodeTestHeap lays a root direct block at blockAddr and its FRHP
// header at headerAddr, packing the objects right after the block
// header. Returned heap IDs are managed (type 0x00).
func encodeTestHeap(image []byte, blockAddr, headerAddr uint64, checksummed bool, objects [][]byte) [][]byte {
	headerSize := 4 + 1 + 8 + 4 // sig, version, owner, block offset
	if checksummed {
		headerSize += 4
	}

	block := make([]byte, testBlockSize)
	copy(block, "FHDB")
	core.EncodeUintN(block[5:], headerAddr, 8)
	// block offset stays 0 for the root block

	ids := make([][]byte, len(objects))
	at := headerSize
	for i, obj := range objects {
		copy(block[at:], obj)
		id := make([]byte, 7)
		core.EncodeUintN(id[1:], uint64(at), 4)
		core.EncodeUintN(id[5:], uint64(len(obj)), 2)
		ids[i] = id
		at += len(obj)
	}
	if checksummed {
		core.EncodeUintN(block[headerSize-4:], uint64(core.Lookup3(block)), 4)
	}
	copy(image[blockAddr:], block)

	e := core.NewEncoder(8, 8)
	e.Raw([]byte("FRHP"))
	e.Uint8(0)
	e.Uint16(7) // heap ID length
	e.Uint16(0) // no I/O filters
	if checksummed {
		e.Uint8(0x02)
	} else {
		e.Uint8(0)
	}
	e.Uint32(testMaxManaged)
	e.Length(0)                 // next huge object ID
	e.Offset(core.Undefined(8)) // huge object B-tree
	e.Length(0)                 // free space amount
	e.Offset(core.Undefined(8)) // free space manager
	e.Length(testBlockSize)     // managed space
	e.Length(testBlockSize)     // allocated managed space
	e.Length(uint64(at))        // iterator offset
	e.Length(uint64(len(objects)))
	e.Length(0) // huge size
	e.Length(0) // huge count
	e.Length(0) // tiny size
	e.Length(0) // tiny count
	e.Uint16(4) // table width
	e.Length(testBlockSize)
	e.Length(testMaxManaged) // max direct block size
	e.Uint16(testMaxHeapBits)
	e.Uint16(0) // starting rows in root indirect block
	e.Offset(blockAddr)
	e.Uint16(0) // root is a direct block
	e.Uint32(core.Lookup3(e.Bytes()))
	copy(image[headerAddr:], e.Bytes())
	return ids
}

func TestFractalHeapManagedObjects(t *testing.T) {
	objects := [][]byte{
		[]byte("first object"),
		[]byte("second"),
		{0x00, 0xFF, 0x7E},
	}
	image := make([]byte, 2048)
	ids := encodeTestHeap(image, 64, 1024, false, objects)

	h, err := ReadFractalHeap(bytes.NewReader(image), 1024, testSB())
	require.NoError(t, err)
	assert.Equal(t, uint16(7), h.IDLen)
	assert.Equal(t, uint64(testBlockSize), h.StartingBlockSize)

	for i, id := range ids {
		got, err := h.ReadObject(id)
		require.NoError(t, err)
		assert.Equal(t, objects[i], got)
	}
}

func TestFractalHeapChecksummedBlock(t *testing.T) {
	image := make([]byte, 2048)
	ids := encodeTestHeap(image, 64, 1024, true, [][]byte{[]byte("payload")})

	h, err := ReadFractalHeap(bytes.NewReader(image), 1024, testSB())
	require.NoError(t, err)
	got, err := h.ReadObject(ids[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	// flip one data byte; the block checksum must catch it
	image[64+100] ^= 0x01
	_, err = ReadFractalHeap(bytes.NewReader(image), 1024, testSB())
	require.ErrorIs(t, err, core.ErrBadChecksum)
}

func TestFractalHeapHeaderChecksum(t *testing.T) {
	image := make([]byte, 2048)
	encodeTestHeap(image, 64, 1024, false, nil)
	image[1024+8] ^= 0x40
	_, err := ReadFractalHeap(bytes.NewReader(image), 1024, testSB())
	require.ErrorIs(t, err, core.ErrBadChecksum)
}

func TestFractalHeapTinyID(t *testing.T) {
	image := make([]byte, 2048)
	encodeTestHeap(image, 64, 1024, false, nil)
	h, err := ReadFractalHeap(bytes.NewReader(image), 1024, testSB())
	require.NoError(t, err)

	id := append([]byte{0x20 | 0x04}, []byte("tiny!")...)
	got, err := h.ReadObject(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny!"), got)

	_, err = h.ReadObject([]byte{0x10, 1, 2, 3, 4, 5, 6})
	assert.ErrorContains(t, err, "huge")
}

func TestFractalHeapObjectBounds(t *testing.T) {
	image := make([]byte, 2048)
	encodeTestHeap(image, 64, 1024, false, nil)
	h, err := ReadFractalHeap(bytes.NewReader(image), 1024, testSB())
	require.NoError(t, err)

	id := make([]byte, 7)
	core.EncodeUintN(id[1:], testBlockSize-4, 4)
	core.EncodeUintN(id[5:], 64, 2)
	_, err = h.ReadObject(id)
	assert.ErrorContains(t, err, "beyond block")
}
