package core

import (
	"encoding/binary"
	"fmt"
)

// DataLayoutClass selects how dataset elements are stored.
type DataLayoutClass uint8

const (
	LayoutCompact    DataLayoutClass = 0
	LayoutContiguous DataLayoutClass = 1
	LayoutChunked    DataLayoutClass = 2
	LayoutVirtual    DataLayoutClass = 3
)

// String returns the layout name used in errors and stats.
func (c DataLayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	case LayoutVirtual:
		return "virtual"
	}
	return fmt.Sprintf("layout-%d", uint8(c))
}

// Chunk index types carried by version 4 chunked layouts.
type ChunkIndexType uint8

const (
	ChunkIndexSingle   ChunkIndexType = 1
	ChunkIndexImplicit ChunkIndexType = 2
	ChunkIndexFixedArr ChunkIndexType = 3
	ChunkIndexExtArr   ChunkIndexType = 4
	ChunkIndexBTreeV2  ChunkIndexType = 5
)

// DataLayout is the decoded form of a data layout message (type
// 0x0008). ChunkDims excludes the trailing element-size entry the wire
// format carries.
type DataLayout struct {
	Version uint8
	Class   DataLayoutClass

	CompactData []byte

	Address uint64 // contiguous data or chunk index address
	Size    uint64 // contiguous data size in bytes

	ChunkDims   []uint64
	ElementSize uint32
	IndexType   ChunkIndexType
}

// ParseDataLayout decodes versions 1 through 4 of the message.
func ParseDataLayout(data []byte, sb *Superblock) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("data layout message too short")
	}
	l := &DataLayout{Version: data[0]}
	switch l.Version {
	case 1, 2:
		return l.parseLegacy(data, sb)
	case 3:
		return l.parseV3(data, sb)
	case 4:
		return l.parseV4(data, sb)
	default:
		return nil, fmt.Errorf("unsupported data layout version %d", l.Version)
	}
}

// parseLegacy handles versions 1 and 2: version(1) dimensionality(1)
// class(1) reserved(5), address for non-compact classes, then the
// dimension list. Chunked layouts append a 4-byte element size and
// count it in the dimensionality.
func (l *DataLayout) parseLegacy(data []byte, sb *Superblock) (*DataLayout, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data layout v%d truncated", l.Version)
	}
	ndims := int(data[1])
	l.Class = DataLayoutClass(data[2])
	pos := 8

	if l.Class != LayoutCompact {
		if pos+int(sb.OffsetSize) > len(data) {
			return nil, fmt.Errorf("data layout v%d address truncated", l.Version)
		}
		l.Address = DecodeUintN(data[pos:], sb.OffsetSize)
		pos += int(sb.OffsetSize)
	}

	dimCount := ndims
	if l.Class == LayoutChunked && dimCount > 0 {
		dimCount-- // last entry is the element size
	}
	if pos+4*ndims > len(data) {
		return nil, fmt.Errorf("data layout v%d dimensions truncated", l.Version)
	}
	l.ChunkDims = make([]uint64, dimCount)
	for i := 0; i < dimCount; i++ {
		l.ChunkDims[i] = uint64(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
	}
	if l.Class == LayoutChunked && ndims > dimCount {
		l.ElementSize = binary.LittleEndian.Uint32(data[pos:])
		pos += 4
	}

	if l.Class == LayoutCompact {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("compact layout size truncated")
		}
		size := binary.LittleEndian.Uint32(data[pos:])
		pos += 4
		if pos+int(size) > len(data) {
			return nil, fmt.Errorf("compact data truncated")
		}
		l.CompactData = append([]byte(nil), data[pos:pos+int(size)]...)
		l.Size = uint64(size)
	}
	return l, nil
}

// parseV3 handles version 3: version(1) class(1), then a class specific
// body. Chunked bodies hold dimensionality(1), the chunk B-tree
// address, and dimensionality 4-byte entries whose last value is the
// dataset element size.
func (l *DataLayout) parseV3(data []byte, sb *Superblock) (*DataLayout, error) {
	l.Class = DataLayoutClass(data[1])
	pos := 2
	switch l.Class {
	case LayoutCompact:
		if pos+2 > len(data) {
			return nil, fmt.Errorf("compact layout truncated")
		}
		size := int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
		if pos+size > len(data) {
			return nil, fmt.Errorf("compact data truncated")
		}
		l.CompactData = append([]byte(nil), data[pos:pos+size]...)
		l.Size = uint64(size)

	case LayoutContiguous:
		if pos+int(sb.OffsetSize)+int(sb.LengthSize) > len(data) {
			return nil, fmt.Errorf("contiguous layout truncated")
		}
		l.Address = DecodeUintN(data[pos:], sb.OffsetSize)
		pos += int(sb.OffsetSize)
		l.Size = DecodeUintN(data[pos:], sb.LengthSize)

	case LayoutChunked:
		if pos+1 > len(data) {
			return nil, fmt.Errorf("chunked layout truncated")
		}
		ndims := int(data[pos])
		pos++
		if pos+int(sb.OffsetSize)+4*ndims > len(data) {
			return nil, fmt.Errorf("chunked layout truncated")
		}
		l.Address = DecodeUintN(data[pos:], sb.OffsetSize)
		pos += int(sb.OffsetSize)
		if ndims > 0 {
			l.ChunkDims = make([]uint64, ndims-1)
			for i := 0; i < ndims-1; i++ {
				l.ChunkDims[i] = uint64(binary.LittleEndian.Uint32(data[pos:]))
				pos += 4
			}
			l.ElementSize = binary.LittleEndian.Uint32(data[pos:])
		}

	default:
		return nil, fmt.Errorf("unsupported layout class %d in v3 message", data[1])
	}
	return l, nil
}

// parseV4 handles version 4 chunked layouts far enough to find the
// chunk dimensions and index address; only the index types the reader
// supports get past dataset open.
func (l *DataLayout) parseV4(data []byte, sb *Superblock) (*DataLayout, error) {
	l.Class = DataLayoutClass(data[1])
	if l.Class != LayoutChunked {
		// v4 compact and contiguous bodies match v3
		return l.parseV3(data, sb)
	}
	pos := 2
	if pos+3 > len(data) {
		return nil, fmt.Errorf("chunked layout v4 truncated")
	}
	// flags + dimensionality + encoded dimension width
	pos++
	ndims := int(data[pos])
	pos++
	dimWidth := int(data[pos])
	pos++
	if dimWidth == 0 || dimWidth > 8 || pos+ndims*dimWidth+1 > len(data) {
		return nil, fmt.Errorf("chunked layout v4 dimensions truncated")
	}
	l.ChunkDims = make([]uint64, ndims)
	for i := 0; i < ndims; i++ {
		l.ChunkDims[i] = DecodeUintN(data[pos:], uint8(dimWidth))
		pos += dimWidth
	}
	l.IndexType = ChunkIndexType(data[pos])
	pos++
	switch l.IndexType {
	case ChunkIndexSingle:
		// no index parameters unless filtered, handled by caller
	case ChunkIndexImplicit:
	case ChunkIndexFixedArr:
		pos++ // page bits
	case ChunkIndexExtArr:
		pos += 6
	case ChunkIndexBTreeV2:
		pos += 6
	default:
		return nil, fmt.Errorf("unknown chunk index type %d", l.IndexType)
	}
	if pos+int(sb.OffsetSize) > len(data) {
		return nil, fmt.Errorf("chunked layout v4 address truncated")
	}
	l.Address = DecodeUintN(data[pos:], sb.OffsetSize)
	return l, nil
}

// EncodeLayoutCompact serializes a version 3 compact layout message.
func EncodeLayoutCompact(data []byte) []byte {
	e := NewEncoder(8, 8)
	e.Uint8(3)
	e.Uint8(uint8(LayoutCompact))
	e.Uint16(uint16(len(data)))
	e.Raw(data)
	return e.Bytes()
}

// EncodeLayoutContiguous serializes a version 3 contiguous layout
// message using the superblock's field widths.
func EncodeLayoutContiguous(sb *Superblock, addr, size uint64) []byte {
	e := sb.Encoder()
	e.Uint8(3)
	e.Uint8(uint8(LayoutContiguous))
	e.Offset(addr)
	e.Length(size)
	return e.Bytes()
}

// EncodeLayoutChunked serializes a version 3 chunked layout message.
// The element size rides as the final dimension entry.
func EncodeLayoutChunked(sb *Superblock, btreeAddr uint64, chunkDims []uint64, elementSize uint32) []byte {
	e := sb.Encoder()
	e.Uint8(3)
	e.Uint8(uint8(LayoutChunked))
	e.Uint8(uint8(len(chunkDims) + 1))
	e.Offset(btreeAddr)
	for _, d := range chunkDims {
		e.Uint32(uint32(d))
	}
	e.Uint32(elementSize)
	return e.Bytes()
}
