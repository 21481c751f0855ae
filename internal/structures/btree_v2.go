package structures

import (
	"bytes"
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/utils"
)

// Record types of version 2 B-trees used for link storage.
const (
	BTreeV2TypeLinkName = 5 // link name index of a dense group
)

// v2 node framing: signature(4) + version(1) + type(1) + checksum(4).
const btreeV2NodeOverhead = 10

// CollectBTreeV2Records walks the version 2 B-tree headed at addr and
// returns every record's raw bytes. wantType guards against pointing
// the walk at an index of the wrong kind. Trees deeper than one
// internal level are not supported.
func CollectBTreeV2Records(src io.ReaderAt, addr uint64, wantType uint8, sb *core.Superblock) ([][]byte, error) {
	headerSize := 18 + int(sb.OffsetSize) + int(sb.LengthSize)
	r := sb.Reader(src, addr)
	buf, err := r.ReadBytes(headerSize)
	if err != nil {
		return nil, utils.WrapError(fmt.Sprintf("v2 B-tree header at %d", addr), err)
	}
	if got, err := r.ReadUint32(); err != nil {
		return nil, err
	} else if got != core.Lookup3(buf) {
		return nil, core.ErrBadChecksum
	}

	hr := sb.Reader(bytes.NewReader(buf), 0)
	sig, _ := hr.ReadBytes(4)
	if string(sig) != "BTHD" {
		return nil, fmt.Errorf("v2 B-tree at %d: bad signature %q", addr, sig)
	}
	if ver, _ := hr.ReadUint8(); ver != 0 {
		return nil, fmt.Errorf("v2 B-tree at %d: unsupported version %d", addr, ver)
	}
	nodeType, _ := hr.ReadUint8()
	if nodeType != wantType {
		return nil, fmt.Errorf("v2 B-tree at %d: record type %d, want %d", addr, nodeType, wantType)
	}
	nodeSize, _ := hr.ReadUint32()
	recordSize, _ := hr.ReadUint16()
	depth, _ := hr.ReadUint16()
	hr.Skip(2) // split and merge percents
	rootAddr, _ := hr.ReadOffset()
	rootNrec, _ := hr.ReadUint16()
	total, herr := hr.ReadLength()
	if herr != nil {
		return nil, utils.WrapError(fmt.Sprintf("v2 B-tree header at %d", addr), herr)
	}
	if total == 0 || core.UndefinedAddress(rootAddr, sb.OffsetSize) {
		return nil, nil
	}
	if recordSize == 0 {
		return nil, fmt.Errorf("v2 B-tree at %d: zero record size", addr)
	}
	if depth > 1 {
		return nil, fmt.Errorf("v2 B-tree at %d: depth %d not supported", addr, depth)
	}

	w := &btreeV2Walker{
		src:        src,
		sb:         sb,
		nodeType:   nodeType,
		nodeSize:   nodeSize,
		recordSize: recordSize,
	}
	return w.walk(rootAddr, rootNrec, depth)
}

type btreeV2Walker struct {
	src        io.ReaderAt
	sb         *core.Superblock
	nodeType   uint8
	nodeSize   uint32
	recordSize uint16
}

func (w *btreeV2Walker) walk(addr uint64, nrec uint16, depth uint16) ([][]byte, error) {
	if depth == 0 {
		return w.leafRecords(addr, nrec)
	}

	// child record counts are stored at the narrowest width that can
	// hold a full leaf
	maxLeafRec := (uint64(w.nodeSize) - btreeV2NodeOverhead) / uint64(w.recordSize)
	nrecWidth := minWidth(maxLeafRec)

	used := 6 + int(nrec)*int(w.recordSize) +
		(int(nrec)+1)*(int(w.sb.OffsetSize)+int(nrecWidth))
	buf, err := w.readNode(addr, used, "BTIN")
	if err != nil {
		return nil, err
	}

	records := make([][]byte, 0, nrec)
	pos := 6
	for i := 0; i < int(nrec); i++ {
		records = append(records, append([]byte(nil), buf[pos:pos+int(w.recordSize)]...))
		pos += int(w.recordSize)
	}
	var out [][]byte
	for i := 0; i <= int(nrec); i++ {
		childAddr := core.DecodeUintN(buf[pos:], w.sb.OffsetSize)
		pos += int(w.sb.OffsetSize)
		childNrec := core.DecodeUintN(buf[pos:], nrecWidth)
		pos += int(nrecWidth)
		sub, err := w.walk(childAddr, uint16(childNrec), depth-1)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
		if i < int(nrec) {
			out = append(out, records[i])
		}
	}
	return out, nil
}

func (w *btreeV2Walker) leafRecords(addr uint64, nrec uint16) ([][]byte, error) {
	used := 6 + int(nrec)*int(w.recordSize)
	buf, err := w.readNode(addr, used, "BTLF")
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, nrec)
	for i := 0; i < int(nrec); i++ {
		at := 6 + i*int(w.recordSize)
		out = append(out, append([]byte(nil), buf[at:at+int(w.recordSize)]...))
	}
	return out, nil
}

// readNode reads the used prefix of a node, verifies the trailing
// checksum over it, and validates the signature and prologue.
func (w *btreeV2Walker) readNode(addr uint64, used int, wantSig string) ([]byte, error) {
	if used+4 > int(w.nodeSize) {
		return nil, fmt.Errorf("v2 B-tree node at %d: %d used bytes exceed node size %d", addr, used, w.nodeSize)
	}
	r := w.sb.Reader(w.src, addr)
	buf, err := r.ReadBytes(used)
	if err != nil {
		return nil, utils.WrapError(fmt.Sprintf("v2 B-tree node at %d", addr), err)
	}
	if got, err := r.ReadUint32(); err != nil {
		return nil, err
	} else if got != core.Lookup3(buf) {
		return nil, core.ErrBadChecksum
	}
	if string(buf[:4]) != wantSig {
		return nil, fmt.Errorf("v2 B-tree node at %d: bad signature %q", addr, buf[:4])
	}
	if buf[4] != 0 {
		return nil, fmt.Errorf("v2 B-tree node at %d: unsupported version %d", addr, buf[4])
	}
	if buf[5] != w.nodeType {
		return nil, fmt.Errorf("v2 B-tree node at %d: record type %d, want %d", addr, buf[5], w.nodeType)
	}
	return buf, nil
}
