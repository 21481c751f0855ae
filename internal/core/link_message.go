package core

import (
	"encoding/binary"
	"fmt"
)

// Link types carried by link messages (type 0x0006).
type LinkType uint8

const (
	LinkHard     LinkType = 0
	LinkSoft     LinkType = 1
	LinkExternal LinkType = 64
)

// Link is the decoded form of a link message, the modern alternative
// to symbol table entries.
type Link struct {
	Type          LinkType
	Name          string
	CreationOrder uint64

	// Hard links.
	HeaderAddress uint64

	// Soft links.
	Target string

	// External links.
	File         string
	ExternalPath string
}

// ParseLink decodes a version 1 link message. The flag byte drives
// which optional fields are present: bits 0-1 size the name length
// field as 1<<(flags&3) bytes, bit 2 adds a creation order field,
// bit 3 an explicit link type, bit 4 a charset byte.
func ParseLink(data []byte, sb *Superblock) (*Link, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("link message too short")
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("unsupported link message version %d", data[0])
	}
	flags := data[1]
	pos := 2

	l := &Link{Type: LinkHard}
	if flags&0x08 != 0 {
		l.Type = LinkType(data[pos])
		pos++
	}
	if flags&0x04 != 0 {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("link creation order truncated")
		}
		l.CreationOrder = binary.LittleEndian.Uint64(data[pos:])
		pos += 8
	}
	if flags&0x10 != 0 {
		pos++ // charset, names are byte strings either way
	}

	nameLenSize := 1 << (flags & 0x03)
	if pos+nameLenSize > len(data) {
		return nil, fmt.Errorf("link name length truncated")
	}
	nameLen := int(DecodeUintN(data[pos:], uint8(nameLenSize)))
	pos += nameLenSize
	if pos+nameLen > len(data) {
		return nil, fmt.Errorf("link name truncated")
	}
	l.Name = string(data[pos : pos+nameLen])
	pos += nameLen

	switch l.Type {
	case LinkHard:
		if pos+int(sb.OffsetSize) > len(data) {
			return nil, fmt.Errorf("hard link address truncated")
		}
		l.HeaderAddress = DecodeUintN(data[pos:], sb.OffsetSize)

	case LinkSoft:
		if pos+2 > len(data) {
			return nil, fmt.Errorf("soft link length truncated")
		}
		n := int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
		if pos+n > len(data) {
			return nil, fmt.Errorf("soft link target truncated")
		}
		l.Target = string(data[pos : pos+n])

	case LinkExternal:
		if pos+2 > len(data) {
			return nil, fmt.Errorf("external link length truncated")
		}
		n := int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
		if pos+n > len(data) || n < 1 {
			return nil, fmt.Errorf("external link data truncated")
		}
		blob := data[pos+1 : pos+n] // leading version/flags byte
		// two null terminated strings: file name, object path
		i := 0
		for i < len(blob) && blob[i] != 0 {
			i++
		}
		l.File = string(blob[:i])
		if i+1 < len(blob) {
			rest := blob[i+1:]
			j := 0
			for j < len(rest) && rest[j] != 0 {
				j++
			}
			l.ExternalPath = string(rest[:j])
		}

	default:
		return nil, fmt.Errorf("unknown link type %d", l.Type)
	}
	return l, nil
}

// LinkInfo is the decoded form of a link info message (type 0x0002).
// Defined fractal heap or B-tree addresses mean the group stores its
// links densely.
type LinkInfo struct {
	TrackCreationOrder bool
	IndexCreationOrder bool
	MaxCreationIndex   uint64
	FractalHeapAddress uint64
	NameIndexAddress   uint64
	OrderIndexAddress  uint64
}

// Dense reports whether the group's links live outside the header.
func (li *LinkInfo) Dense() bool {
	return !UndefinedAddress(li.FractalHeapAddress, 8)
}

// ParseLinkInfo decodes a version 0 link info message.
func ParseLinkInfo(data []byte, sb *Superblock) (*LinkInfo, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("link info message too short")
	}
	if data[0] != 0 {
		return nil, fmt.Errorf("unsupported link info version %d", data[0])
	}
	flags := data[1]
	li := &LinkInfo{
		TrackCreationOrder: flags&0x01 != 0,
		IndexCreationOrder: flags&0x02 != 0,
	}
	pos := 2
	if li.TrackCreationOrder {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("link info creation index truncated")
		}
		li.MaxCreationIndex = binary.LittleEndian.Uint64(data[pos:])
		pos += 8
	}
	need := 2 * int(sb.OffsetSize)
	if li.IndexCreationOrder {
		need += int(sb.OffsetSize)
	}
	if pos+need > len(data) {
		return nil, fmt.Errorf("link info addresses truncated")
	}
	li.FractalHeapAddress = DecodeUintN(data[pos:], sb.OffsetSize)
	pos += int(sb.OffsetSize)
	li.NameIndexAddress = DecodeUintN(data[pos:], sb.OffsetSize)
	pos += int(sb.OffsetSize)
	if li.IndexCreationOrder {
		li.OrderIndexAddress = DecodeUintN(data[pos:], sb.OffsetSize)
	}
	return li, nil
}

// SymbolTableMessage points a group at its name B-tree and local heap
// (message type 0x0011).
type SymbolTableMessage struct {
	BTreeAddress uint64
	HeapAddress  uint64
}

// ParseSymbolTableMessage decodes the two-address message body.
func ParseSymbolTableMessage(data []byte, sb *Superblock) (*SymbolTableMessage, error) {
	if len(data) < 2*int(sb.OffsetSize) {
		return nil, fmt.Errorf("symbol table message too short")
	}
	return &SymbolTableMessage{
		BTreeAddress: DecodeUintN(data, sb.OffsetSize),
		HeapAddress:  DecodeUintN(data[sb.OffsetSize:], sb.OffsetSize),
	}, nil
}

// EncodeSymbolTableMessage serializes the message body.
func EncodeSymbolTableMessage(sb *Superblock, btreeAddr, heapAddr uint64) []byte {
	e := sb.Encoder()
	e.Offset(btreeAddr)
	e.Offset(heapAddr)
	return e.Bytes()
}
