package structures

import (
	"bytes"
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/utils"
)

// Heap ID type bits (bits 4-5 of the leading byte).
const (
	heapIDManaged = 0x00
	heapIDHuge    = 0x10
	heapIDTiny    = 0x20
)

// FractalHeap is a read-only view of a fractal heap whose root is a
// single direct block, which is how dense groups and attributes are
// stored until they outgrow the starting block. Indirect blocks and
// huge objects are not supported.
type FractalHeap struct {
	IDLen             uint16
	MaxManagedObjSize uint32
	TableWidth        uint16
	StartingBlockSize uint64
	MaxHeapSize       uint16

	// heap ID field widths derived from the header
	heapOffSize uint8
	heapLenSize uint8

	// root direct block, header bytes included; heap offsets count
	// the block header, so objects index the raw block directly
	block       []byte
	blockOffset uint64
}

// ReadFractalHeap parses the FRHP header at addr and loads the root
// direct block. An empty heap (undefined root address) is valid and
// yields a heap whose every lookup fails.
func ReadFractalHeap(src io.ReaderAt, addr uint64, sb *core.Superblock) (*FractalHeap, error) {
	headerSize := 22 + 12*int(sb.LengthSize) + 3*int(sb.OffsetSize)
	r := sb.Reader(src, addr)
	buf, err := r.ReadBytes(headerSize)
	if err != nil {
		return nil, utils.WrapError(fmt.Sprintf("fractal heap header at %d", addr), err)
	}
	if got, err := r.ReadUint32(); err != nil {
		return nil, err
	} else if got != core.Lookup3(buf) {
		return nil, core.ErrBadChecksum
	}

	hr := sb.Reader(bytes.NewReader(buf), 0)
	sig, _ := hr.ReadBytes(4)
	if string(sig) != "FRHP" {
		return nil, fmt.Errorf("fractal heap at %d: bad signature %q", addr, sig)
	}
	if ver, _ := hr.ReadUint8(); ver != 0 {
		return nil, fmt.Errorf("fractal heap at %d: unsupported version %d", addr, ver)
	}

	h := &FractalHeap{}
	h.IDLen, _ = hr.ReadUint16()
	filterLen, _ := hr.ReadUint16()
	if filterLen != 0 {
		return nil, fmt.Errorf("fractal heap at %d: filtered blocks not supported", addr)
	}
	flags, _ := hr.ReadUint8()
	h.MaxManagedObjSize, _ = hr.ReadUint32()
	hr.Skip(int64(sb.LengthSize + sb.OffsetSize)) // huge object ID, B-tree address
	hr.Skip(int64(sb.LengthSize + sb.OffsetSize)) // free space amount, manager address
	hr.Skip(8 * int64(sb.LengthSize))             // managed/huge/tiny statistics
	h.TableWidth, _ = hr.ReadUint16()
	h.StartingBlockSize, _ = hr.ReadLength()
	maxDirectBlockSize, _ := hr.ReadLength()
	h.MaxHeapSize, _ = hr.ReadUint16()
	hr.Skip(2) // starting rows in root indirect block
	rootAddr, _ := hr.ReadOffset()
	rowCount, ferr := hr.ReadUint16()
	if ferr != nil {
		return nil, utils.WrapError(fmt.Sprintf("fractal heap header at %d", addr), ferr)
	}

	h.heapOffSize = uint8((h.MaxHeapSize + 7) / 8)
	h.heapLenSize = min(minWidth(maxDirectBlockSize), minWidth(uint64(h.MaxManagedObjSize)))

	if core.UndefinedAddress(rootAddr, sb.OffsetSize) {
		return h, nil
	}
	if rowCount != 0 {
		return nil, fmt.Errorf("fractal heap at %d: indirect root blocks not supported", addr)
	}
	if err := h.loadDirectBlock(src, rootAddr, addr, flags&0x02 != 0, sb); err != nil {
		return nil, err
	}
	return h, nil
}

// loadDirectBlock reads the root direct block of StartingBlockSize
// bytes and validates its framing against the owning header.
func (h *FractalHeap) loadDirectBlock(src io.ReaderAt, addr, headerAddr uint64, checksummed bool, sb *core.Superblock) error {
	r := sb.Reader(src, addr)
	block, err := r.ReadBytes(int(h.StartingBlockSize))
	if err != nil {
		return utils.WrapError(fmt.Sprintf("fractal heap direct block at %d", addr), err)
	}
	br := sb.Reader(bytes.NewReader(block), 0)
	sig, _ := br.ReadBytes(4)
	if string(sig) != "FHDB" {
		return fmt.Errorf("fractal heap direct block at %d: bad signature %q", addr, sig)
	}
	if ver, _ := br.ReadUint8(); ver != 0 {
		return fmt.Errorf("fractal heap direct block at %d: unsupported version %d", addr, ver)
	}
	owner, _ := br.ReadOffset()
	if owner != headerAddr {
		return fmt.Errorf("fractal heap direct block at %d: owner %d, want %d", addr, owner, headerAddr)
	}
	off, err := br.ReadUintN(h.heapOffSize)
	if err != nil {
		return err
	}
	if checksummed {
		// checksum is computed with its own field zeroed
		at := int(br.Pos())
		if len(block) < at+4 {
			return fmt.Errorf("fractal heap direct block at %d: truncated", addr)
		}
		stored := uint32(core.DecodeUintN(block[at:], 4))
		scratch := append([]byte(nil), block...)
		core.EncodeUintN(scratch[at:], 0, 4)
		if stored != core.Lookup3(scratch) {
			return core.ErrBadChecksum
		}
	}
	h.block = block
	h.blockOffset = off
	return nil
}

// ReadObject resolves a heap ID to the object bytes it names.
func (h *FractalHeap) ReadObject(id []byte) ([]byte, error) {
	if len(id) < 1 {
		return nil, fmt.Errorf("empty heap ID")
	}
	if ver := id[0] >> 6; ver != 0 {
		return nil, fmt.Errorf("unsupported heap ID version %d", ver)
	}
	switch id[0] & 0x30 {
	case heapIDManaged:
		return h.readManaged(id[1:])
	case heapIDTiny:
		// normal-length tiny IDs hold the data inline after the flag
		// byte, sized by the low nibble
		n := int(id[0]&0x0F) + 1
		if len(id) < 1+n {
			return nil, fmt.Errorf("tiny heap ID holds %d bytes, length says %d", len(id)-1, n)
		}
		return append([]byte(nil), id[1:1+n]...), nil
	case heapIDHuge:
		return nil, fmt.Errorf("huge heap objects not supported")
	default:
		return nil, fmt.Errorf("unknown heap ID type %#02x", id[0]&0x30)
	}
}

func (h *FractalHeap) readManaged(id []byte) ([]byte, error) {
	if len(id) < int(h.heapOffSize)+int(h.heapLenSize) {
		return nil, fmt.Errorf("managed heap ID too short: %d bytes", len(id)+1)
	}
	off := core.DecodeUintN(id, h.heapOffSize)
	length := core.DecodeUintN(id[h.heapOffSize:], h.heapLenSize)
	if off < h.blockOffset {
		return nil, fmt.Errorf("heap offset %d before block offset %d", off, h.blockOffset)
	}
	rel := off - h.blockOffset
	if rel+length > uint64(len(h.block)) {
		return nil, fmt.Errorf("heap object at %d+%d beyond block of %d bytes", rel, length, len(h.block))
	}
	return append([]byte(nil), h.block[rel:rel+length]...), nil
}

// minWidth returns the narrowest byte width able to hold v.
func minWidth(v uint64) uint8 {
	n := uint8(1)
	for v > 0xFF {
		v >>= 8
		n++
	}
	return n
}
