package core

import (
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/utils"
)

// Signature is the 8-byte magic at the start of every superblock.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// signatureOffsets are the positions the format allows a superblock at:
// byte 0, or a power-of-two boundary from 512 up. MATLAB v7.3 files put
// a 512-byte user block first, so their superblock sits at 512.
var signatureOffsets = []int64{0, 512, 1024, 2048}

// ErrBadSignature reports that no superblock signature was found.
var ErrBadSignature = fmt.Errorf("HDF5 signature not found")

// ErrBadChecksum reports a metadata checksum mismatch.
var ErrBadChecksum = fmt.Errorf("metadata checksum mismatch")

// Superblock holds the file-wide parameters every other codec needs:
// address and length widths, the base address, and where the root group
// lives.
type Superblock struct {
	Version    uint8
	OffsetSize uint8
	LengthSize uint8

	// v0/v1 symbol table tuning parameters.
	GroupLeafK     uint16
	GroupInternalK uint16

	BaseAddress       uint64
	ExtensionAddress  uint64
	EOFAddress        uint64
	DriverInfoAddress uint64

	// RootAddress is the root group's object header address. For v0/v1
	// files RootEntry additionally carries the cached symbol table
	// B-tree and heap addresses from the entry's scratch pad.
	RootAddress uint64
	RootEntry   *SymbolTableEntry
}

// SymbolTableEntry is the fixed-size group entry used by the v0
// superblock and by SNOD symbol table nodes.
type SymbolTableEntry struct {
	LinkNameOffset uint64
	HeaderAddress  uint64
	CacheType      uint32

	// Cache type 1: group B-tree and local heap addresses.
	BTreeAddress uint64
	HeapAddress  uint64

	// Cache type 2: soft link target offset in the local heap.
	LinkOffset uint32
}

// FindSignature scans the allowed boundaries for the superblock
// signature and returns the matching offset, which becomes the file's
// base address for all subsequent reads.
func FindSignature(r io.ReaderAt) (int64, error) {
	buf := make([]byte, len(Signature))
	for _, off := range signatureOffsets {
		if _, err := r.ReadAt(buf, off); err != nil {
			continue
		}
		if string(buf) == string(Signature) {
			return off, nil
		}
	}
	return 0, ErrBadSignature
}

// ParseSuperblock reads the superblock at offset 0 of r. The caller is
// expected to have shifted r to the discovered base address already.
func ParseSuperblock(r io.ReaderAt) (*Superblock, error) {
	head := make([]byte, 9)
	if _, err := io.ReadFull(io.NewSectionReader(r, 0, 9), head); err != nil {
		return nil, utils.WrapError("read superblock", err)
	}
	if string(head[:8]) != string(Signature) {
		return nil, ErrBadSignature
	}
	version := head[8]
	switch version {
	case 0, 1:
		return parseSuperblockV0(r, version)
	case 2, 3:
		return parseSuperblockV2(r, version)
	default:
		return nil, fmt.Errorf("unsupported superblock version %d", version)
	}
}

// parseSuperblockV0 handles versions 0 and 1.
//
// Layout after the signature:
//
//	byte 8   superblock version
//	byte 9   free-space storage version
//	byte 10  root group symbol table entry version
//	byte 11  reserved
//	byte 12  shared header message version
//	byte 13  size of offsets
//	byte 14  size of lengths
//	byte 15  reserved
//	16..17   group leaf node K
//	18..19   group internal node K
//	20..23   file consistency flags
//	(v1 only: 24..25 indexed storage K, 26..27 reserved)
//	base address, free-space address, EOF address, driver info address
//	root group symbol table entry
func parseSuperblockV0(src io.ReaderAt, version uint8) (*Superblock, error) {
	fixed := make([]byte, 24)
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, 24), fixed); err != nil {
		return nil, utils.WrapError("read superblock v0", err)
	}

	sb := &Superblock{
		Version:    version,
		OffsetSize: fixed[13],
		LengthSize: fixed[14],
	}
	if err := sb.validateSizes(); err != nil {
		return nil, err
	}
	sb.GroupLeafK = uint16(fixed[16]) | uint16(fixed[17])<<8
	sb.GroupInternalK = uint16(fixed[18]) | uint16(fixed[19])<<8
	if sb.GroupLeafK == 0 || sb.GroupInternalK == 0 {
		return nil, fmt.Errorf("superblock v%d: group K values must be nonzero", version)
	}

	pos := uint64(24)
	if version == 1 {
		pos += 4
	}
	r := NewReader(src, pos, sb.OffsetSize, sb.LengthSize)

	var err error
	if sb.BaseAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if _, err = r.ReadOffset(); err != nil { // free-space address, unused
		return nil, err
	}
	if sb.EOFAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if sb.DriverInfoAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}

	entry, err := ReadSymbolTableEntry(r)
	if err != nil {
		return nil, utils.WrapError("root symbol table entry", err)
	}
	sb.RootEntry = entry
	sb.RootAddress = entry.HeaderAddress
	return sb, nil
}

// parseSuperblockV2 handles versions 2 and 3, which replace the symbol
// table fields with four fixed addresses and a lookup3 checksum.
func parseSuperblockV2(src io.ReaderAt, version uint8) (*Superblock, error) {
	head := make([]byte, 12)
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, 12), head); err != nil {
		return nil, utils.WrapError("read superblock v2", err)
	}
	sb := &Superblock{
		Version:    version,
		OffsetSize: head[9],
		LengthSize: head[10],
	}
	if err := sb.validateSizes(); err != nil {
		return nil, err
	}
	// head[11] holds the file consistency flags, ignored on read.

	r := NewReader(src, 12, sb.OffsetSize, sb.LengthSize)
	var err error
	if sb.BaseAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if sb.ExtensionAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if sb.EOFAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if sb.RootAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}

	sumLen := int(r.Pos())
	body := make([]byte, sumLen)
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, int64(sumLen)), body); err != nil {
		return nil, utils.WrapError("read superblock v2 body", err)
	}
	stored, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if Lookup3(body) != stored {
		return nil, utils.WrapError("superblock", ErrBadChecksum)
	}
	return sb, nil
}

func (sb *Superblock) validateSizes() error {
	switch sb.OffsetSize {
	case 2, 4, 8:
	default:
		return fmt.Errorf("unsupported offset size %d", sb.OffsetSize)
	}
	switch sb.LengthSize {
	case 2, 4, 8:
	default:
		return fmt.Errorf("unsupported length size %d", sb.LengthSize)
	}
	return nil
}

// Reader returns a cursor over src positioned at addr using this
// superblock's field widths.
func (sb *Superblock) Reader(src io.ReaderAt, addr uint64) *Reader {
	return NewReader(src, addr, sb.OffsetSize, sb.LengthSize)
}

// Encoder returns an encoder using this superblock's field widths.
func (sb *Superblock) Encoder() *Encoder {
	return NewEncoder(sb.OffsetSize, sb.LengthSize)
}

// ReadSymbolTableEntry reads one fixed-size symbol table entry at the
// cursor. The 16-byte scratch pad is interpreted per cache type.
func ReadSymbolTableEntry(r *Reader) (*SymbolTableEntry, error) {
	e := &SymbolTableEntry{}
	var err error
	if e.LinkNameOffset, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if e.HeaderAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	if e.CacheType, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	r.Skip(4) // reserved
	scratch, err := r.ReadBytes(16)
	if err != nil {
		return nil, err
	}
	switch e.CacheType {
	case 1:
		e.BTreeAddress = DecodeUintN(scratch[0:8], 8)
		e.HeapAddress = DecodeUintN(scratch[8:16], 8)
	case 2:
		e.LinkOffset = uint32(DecodeUintN(scratch[0:4], 4))
	}
	return e, nil
}

// EncodeSymbolTableEntry appends the entry in its fixed 40-byte form
// (with 8-byte offsets).
func EncodeSymbolTableEntry(e *Encoder, ste *SymbolTableEntry) {
	e.Offset(ste.LinkNameOffset)
	e.Offset(ste.HeaderAddress)
	e.Uint32(ste.CacheType)
	e.Zero(4)
	switch ste.CacheType {
	case 1:
		e.Uint64(ste.BTreeAddress)
		e.Uint64(ste.HeapAddress)
	case 2:
		e.Uint32(ste.LinkOffset)
		e.Zero(12)
	default:
		e.Zero(16)
	}
}

// SuperblockV0Size and SuperblockV2Size are the encoded sizes with
// 8-byte offsets and lengths.
const (
	SuperblockV0Size = 96
	SuperblockV2Size = 48
)

// EncodeSuperblockV0 builds a version 0 superblock for a freshly
// written file. The root entry caches the root group's B-tree and heap
// addresses the way the reference library does.
func EncodeSuperblockV0(sb *Superblock, eof uint64) []byte {
	e := sb.Encoder()
	e.Raw(Signature)
	e.Uint8(0) // superblock version
	e.Uint8(0) // free-space storage version
	e.Uint8(0) // root symbol table entry version
	e.Uint8(0) // reserved
	e.Uint8(0) // shared header message version
	e.Uint8(sb.OffsetSize)
	e.Uint8(sb.LengthSize)
	e.Uint8(0) // reserved
	e.Uint16(sb.GroupLeafK)
	e.Uint16(sb.GroupInternalK)
	e.Uint32(0) // file consistency flags
	e.Offset(sb.BaseAddress)
	e.Offset(Undefined(sb.OffsetSize)) // free-space address
	e.Offset(eof)
	e.Offset(Undefined(sb.OffsetSize)) // driver info address
	EncodeSymbolTableEntry(e, sb.RootEntry)
	return e.Bytes()
}

// EncodeSuperblockV2 builds a version 2 superblock (48 bytes with
// 8-byte offsets) including its lookup3 checksum.
func EncodeSuperblockV2(sb *Superblock, eof uint64) []byte {
	e := sb.Encoder()
	e.Raw(Signature)
	e.Uint8(2)
	e.Uint8(sb.OffsetSize)
	e.Uint8(sb.LengthSize)
	e.Uint8(0) // file consistency flags
	e.Offset(sb.BaseAddress)
	e.Offset(Undefined(sb.OffsetSize)) // no superblock extension
	e.Offset(eof)
	e.Offset(sb.RootAddress)
	e.Uint32(Lookup3(e.Bytes()))
	return e.Bytes()
}
