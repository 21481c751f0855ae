package structures

import (
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/utils"
)

// ChunkEntry locates one stored chunk: its logical offset within the
// dataset (in elements, per dimension), the stored byte size after
// filtering, the filter mask, and the file address.
type ChunkEntry struct {
	Offset     []uint64
	Size       uint32
	FilterMask uint32
	Address    uint64
}

// CollectChunks walks the chunk B-tree rooted at addr and returns
// every chunk entry. ndims is the dataset rank; on disk each key
// carries ndims+1 coordinates, the last of which is always zero.
//
// Chunk keys differ from group keys: each is size(4) mask(4) plus the
// scaled offsets as 8-byte values. A node with N entries stores N+1
// keys; the final key has no child pointer and describes the upper
// bound.
func CollectChunks(src io.ReaderAt, addr uint64, ndims int, sb *core.Superblock) ([]ChunkEntry, error) {
	return collectChunks(src, addr, ndims, sb, 0)
}

func collectChunks(src io.ReaderAt, addr uint64, ndims int, sb *core.Superblock, depth int) ([]ChunkEntry, error) {
	if depth > maxBTreeDepth {
		return nil, fmt.Errorf("chunk B-tree deeper than %d levels", maxBTreeDepth)
	}
	r := sb.Reader(src, addr)
	sig, err := r.ReadBytes(4)
	if err != nil {
		return nil, utils.WrapError(fmt.Sprintf("chunk B-tree node at %d", addr), err)
	}
	if string(sig) != string(btreeSignature) {
		return nil, fmt.Errorf("chunk B-tree node at %d: bad signature %q", addr, sig)
	}
	nodeType, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if nodeType != btreeTypeChunk {
		return nil, fmt.Errorf("chunk B-tree node at %d: type %d", addr, nodeType)
	}
	level, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	entries, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	r.Skip(int64(2 * int(sb.OffsetSize)))

	var out []ChunkEntry
	for i := 0; i < int(entries); i++ {
		key, err := readChunkKey(r, ndims)
		if err != nil {
			return nil, fmt.Errorf("chunk B-tree node at %d: key %d: %w", addr, i, err)
		}
		child, err := r.ReadOffset()
		if err != nil {
			return nil, err
		}
		if level == 0 {
			key.Address = child
			out = append(out, key)
		} else {
			sub, err := collectChunks(src, child, ndims, sb, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	// the final key bounds the node and has no child
	return out, nil
}

func readChunkKey(r *core.Reader, ndims int) (ChunkEntry, error) {
	var e ChunkEntry
	var err error
	if e.Size, err = r.ReadUint32(); err != nil {
		return e, err
	}
	if e.FilterMask, err = r.ReadUint32(); err != nil {
		return e, err
	}
	e.Offset = make([]uint64, ndims)
	for i := 0; i < ndims; i++ {
		if e.Offset[i], err = r.ReadUint64(); err != nil {
			return e, err
		}
	}
	if _, err = r.ReadUint64(); err != nil { // element-size coordinate
		return e, err
	}
	return e, nil
}

// EncodeChunkBTreeLeaf serializes a level 0 chunk node holding every
// entry of a freshly written dataset. datasetDims supplies the upper
// bound coordinates for the final key.
func EncodeChunkBTreeLeaf(sb *core.Superblock, entries []ChunkEntry, datasetDims, chunkDims []uint64) []byte {
	e := sb.Encoder()
	e.Raw(btreeSignature)
	e.Uint8(btreeTypeChunk)
	e.Uint8(0)
	e.Uint16(uint16(len(entries)))
	e.Offset(core.Undefined(sb.OffsetSize))
	e.Offset(core.Undefined(sb.OffsetSize))
	for _, entry := range entries {
		e.Uint32(entry.Size)
		e.Uint32(entry.FilterMask)
		for _, off := range entry.Offset {
			e.Uint64(off)
		}
		e.Uint64(0)
		e.Offset(entry.Address)
	}
	// final key: one past the last chunk in every dimension
	e.Uint32(0)
	e.Uint32(0)
	for i := range datasetDims {
		n := (datasetDims[i] + chunkDims[i] - 1) / chunkDims[i]
		e.Uint64(n * chunkDims[i])
	}
	e.Uint64(0)
	return e.Bytes()
}
