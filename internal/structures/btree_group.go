package structures

import (
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/utils"
)

var btreeSignature = []byte("TREE")

const (
	btreeTypeGroup uint8 = 0
	btreeTypeChunk uint8 = 1

	// maxBTreeDepth bounds recursion on corrupt files.
	maxBTreeDepth = 32
)

// CollectSymbolNodes walks the group B-tree rooted at addr and returns
// the addresses of its SNOD leaves in key order.
//
// Node layout: TREE(4) type(1) level(1) entries(2) left(offset)
// right(offset), then alternating keys (heap offsets, length width)
// and child pointers: entries children, entries+1 keys.
func CollectSymbolNodes(src io.ReaderAt, addr uint64, sb *core.Superblock) ([]uint64, error) {
	return collectSymbolNodes(src, addr, sb, 0)
}

func collectSymbolNodes(src io.ReaderAt, addr uint64, sb *core.Superblock, depth int) ([]uint64, error) {
	if depth > maxBTreeDepth {
		return nil, fmt.Errorf("group B-tree deeper than %d levels", maxBTreeDepth)
	}
	level, children, err := readBTreeNode(src, addr, sb, btreeTypeGroup)
	if err != nil {
		return nil, err
	}
	if level == 0 {
		return children, nil
	}
	var leaves []uint64
	for _, child := range children {
		sub, err := collectSymbolNodes(src, child, sb, depth+1)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, sub...)
	}
	return leaves, nil
}

// readBTreeNode parses the node header and child pointers, skipping
// over the interleaved keys.
func readBTreeNode(src io.ReaderAt, addr uint64, sb *core.Superblock, wantType uint8) (uint8, []uint64, error) {
	r := sb.Reader(src, addr)
	sig, err := r.ReadBytes(4)
	if err != nil {
		return 0, nil, utils.WrapError(fmt.Sprintf("B-tree node at %d", addr), err)
	}
	if string(sig) != string(btreeSignature) {
		return 0, nil, fmt.Errorf("B-tree node at %d: bad signature %q", addr, sig)
	}
	nodeType, err := r.ReadUint8()
	if err != nil {
		return 0, nil, err
	}
	if nodeType != wantType {
		return 0, nil, fmt.Errorf("B-tree node at %d: type %d, expected %d", addr, nodeType, wantType)
	}
	level, err := r.ReadUint8()
	if err != nil {
		return 0, nil, err
	}
	entries, err := r.ReadUint16()
	if err != nil {
		return 0, nil, err
	}
	r.Skip(int64(2 * int(sb.OffsetSize))) // left and right siblings

	children := make([]uint64, 0, entries)
	for i := 0; i < int(entries); i++ {
		if _, err := r.ReadLength(); err != nil { // key i
			return 0, nil, err
		}
		child, err := r.ReadOffset()
		if err != nil {
			return 0, nil, err
		}
		children = append(children, child)
	}
	return level, children, nil
}

// EncodeGroupBTreeLeaf serializes a level 0 group node pointing at a
// single SNOD. lastNameOffset is the heap offset of the final entry's
// name, used as the node's upper key.
func EncodeGroupBTreeLeaf(sb *core.Superblock, snodAddr, lastNameOffset uint64) []byte {
	e := sb.Encoder()
	e.Raw(btreeSignature)
	e.Uint8(btreeTypeGroup)
	e.Uint8(0) // level
	e.Uint16(1)
	e.Offset(core.Undefined(sb.OffsetSize))
	e.Offset(core.Undefined(sb.OffsetSize))
	e.Length(0) // lower key: the empty name at heap offset 0
	e.Offset(snodAddr)
	e.Length(lastNameOffset)
	return e.Bytes()
}
