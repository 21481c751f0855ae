package core

import (
	"encoding/binary"
	"fmt"
)

// DatatypeClass identifies one of the format's eleven datatype classes.
type DatatypeClass uint8

const (
	ClassFixed     DatatypeClass = 0
	ClassFloat     DatatypeClass = 1
	ClassTime      DatatypeClass = 2
	ClassString    DatatypeClass = 3
	ClassBitfield  DatatypeClass = 4
	ClassOpaque    DatatypeClass = 5
	ClassCompound  DatatypeClass = 6
	ClassReference DatatypeClass = 7
	ClassEnum      DatatypeClass = 8
	ClassVlen      DatatypeClass = 9
	ClassArray     DatatypeClass = 10
)

// String returns the class name used in error messages.
func (c DatatypeClass) String() string {
	switch c {
	case ClassFixed:
		return "fixed-point"
	case ClassFloat:
		return "floating-point"
	case ClassTime:
		return "time"
	case ClassString:
		return "string"
	case ClassBitfield:
		return "bitfield"
	case ClassOpaque:
		return "opaque"
	case ClassCompound:
		return "compound"
	case ClassReference:
		return "reference"
	case ClassEnum:
		return "enum"
	case ClassVlen:
		return "variable-length"
	case ClassArray:
		return "array"
	}
	return fmt.Sprintf("class-%d", uint8(c))
}

// UnknownClassError reports a datatype message whose class ID is
// outside the format's defined range.
type UnknownClassError struct {
	Class uint8
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("unknown datatype class %d", e.Class)
}

// StringPad is the padding discipline for fixed-length strings.
type StringPad uint8

const (
	PadNullTerm StringPad = 0
	PadNullPad  StringPad = 1
	PadSpacePad StringPad = 2
)

// Datatype is the decoded form of a datatype message (type 0x0003).
// Class-specific fields are valid only for their class; Base carries
// the element type for enum, vlen, and array classes.
type Datatype struct {
	Class   DatatypeClass
	Version uint8
	Bits    uint32 // 24-bit class bit field
	Size    uint32 // element size in bytes

	LittleEndian bool
	Signed       bool
	BitOffset    uint16
	BitPrecision uint16

	// Floating point layout.
	ExpLoc  uint8
	ExpSize uint8
	ManLoc  uint8
	ManSize uint8
	ExpBias uint32

	// Strings.
	Pad  StringPad
	UTF8 bool

	// Opaque.
	Tag string

	// Compound.
	Members []CompoundMember

	// Enum, vlen, array share the base element type.
	Base       *Datatype
	EnumNames  []string
	EnumValues [][]byte
	VlenString bool
	ArrayDims  []uint64

	// References: 0 = object, 1 = dataset region.
	RefType uint8
}

// CompoundMember is one field of a compound datatype.
type CompoundMember struct {
	Name   string
	Offset uint32
	Type   *Datatype
}

// ParseDatatype decodes a datatype message and returns the number of
// bytes consumed, which matters when the type is nested inside a
// compound member or a vlen/array base.
func ParseDatatype(data []byte) (*Datatype, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("datatype message too short: %d bytes", len(data))
	}

	dt := &Datatype{
		Class:   DatatypeClass(data[0] & 0x0F),
		Version: data[0] >> 4,
		Bits:    uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16,
		Size:    binary.LittleEndian.Uint32(data[4:8]),
	}
	if dt.Version == 0 || dt.Version > 3 {
		return nil, 0, fmt.Errorf("unsupported datatype version %d", dt.Version)
	}
	props := data[8:]
	consumed := 8

	switch dt.Class {
	case ClassFixed, ClassBitfield:
		dt.LittleEndian = dt.Bits&0x01 == 0
		dt.Signed = dt.Bits&0x08 != 0
		if len(props) < 4 {
			return nil, 0, fmt.Errorf("%s properties truncated", dt.Class)
		}
		dt.BitOffset = binary.LittleEndian.Uint16(props[0:2])
		dt.BitPrecision = binary.LittleEndian.Uint16(props[2:4])
		consumed += 4

	case ClassFloat:
		dt.LittleEndian = dt.Bits&0x01 == 0
		if len(props) < 12 {
			return nil, 0, fmt.Errorf("floating-point properties truncated")
		}
		dt.BitOffset = binary.LittleEndian.Uint16(props[0:2])
		dt.BitPrecision = binary.LittleEndian.Uint16(props[2:4])
		dt.ExpLoc = props[4]
		dt.ExpSize = props[5]
		dt.ManLoc = props[6]
		dt.ManSize = props[7]
		dt.ExpBias = binary.LittleEndian.Uint32(props[8:12])
		consumed += 12

	case ClassTime:
		dt.LittleEndian = dt.Bits&0x01 == 0
		if len(props) < 2 {
			return nil, 0, fmt.Errorf("time properties truncated")
		}
		dt.BitPrecision = binary.LittleEndian.Uint16(props[0:2])
		consumed += 2

	case ClassString:
		dt.LittleEndian = true
		dt.Pad = StringPad(dt.Bits & 0x0F)
		dt.UTF8 = (dt.Bits>>4)&0x0F == 1

	case ClassOpaque:
		end := 0
		for end < len(props) && props[end] != 0 {
			end++
		}
		dt.Tag = string(props[:end])
		// The tag field is padded to a multiple of 8 bytes.
		tagLen := (end + 8) / 8 * 8
		if tagLen > len(props) {
			tagLen = len(props)
		}
		consumed += tagLen

	case ClassCompound:
		n, err := dt.parseCompound(props)
		if err != nil {
			return nil, 0, err
		}
		consumed += n

	case ClassReference:
		dt.RefType = uint8(dt.Bits & 0x0F)

	case ClassEnum:
		n, err := dt.parseEnum(props)
		if err != nil {
			return nil, 0, err
		}
		consumed += n

	case ClassVlen:
		dt.VlenString = dt.Bits&0x0F == 1
		dt.Pad = StringPad((dt.Bits >> 4) & 0x0F)
		dt.UTF8 = (dt.Bits>>8)&0x0F == 1
		base, n, err := ParseDatatype(props)
		if err != nil {
			return nil, 0, fmt.Errorf("vlen base type: %w", err)
		}
		dt.Base = base
		consumed += n

	case ClassArray:
		n, err := dt.parseArray(props)
		if err != nil {
			return nil, 0, err
		}
		consumed += n

	default:
		return nil, 0, &UnknownClassError{Class: data[0] & 0x0F}
	}

	return dt, consumed, nil
}

// parseCompound decodes the member list. Versions 1 and 2 pad member
// names to 8 bytes and carry a 28-byte legacy dimension block after the
// 4-byte offset; version 3 drops both and shrinks the offset field to
// the minimum width that holds the compound's size.
func (dt *Datatype) parseCompound(props []byte) (int, error) {
	count := int(dt.Bits & 0xFFFF)
	dt.Members = make([]CompoundMember, 0, count)
	pos := 0
	for i := 0; i < count; i++ {
		name, n, err := readName(props[pos:], dt.Version < 3)
		if err != nil {
			return 0, fmt.Errorf("compound member %d: %w", i, err)
		}
		pos += n

		offWidth := 4
		if dt.Version >= 3 {
			offWidth = minWidth(uint64(dt.Size))
		}
		if pos+offWidth > len(props) {
			return 0, fmt.Errorf("compound member %d truncated", i)
		}
		off := uint32(DecodeUintN(props[pos:pos+offWidth], uint8(offWidth)))
		pos += offWidth

		if dt.Version == 1 {
			// dimensionality(1) reserved(3) permutation(4) reserved(4) dims(16)
			if pos+28 > len(props) {
				return 0, fmt.Errorf("compound member %d truncated", i)
			}
			pos += 28
		}

		mt, n, err := ParseDatatype(props[pos:])
		if err != nil {
			return 0, fmt.Errorf("compound member %q: %w", name, err)
		}
		pos += n
		dt.Members = append(dt.Members, CompoundMember{Name: name, Offset: off, Type: mt})
	}
	return pos, nil
}

// parseEnum decodes the base type, the padded name list, and the value
// table. Name padding follows the compound rules for the same version.
func (dt *Datatype) parseEnum(props []byte) (int, error) {
	base, pos, err := ParseDatatype(props)
	if err != nil {
		return 0, fmt.Errorf("enum base type: %w", err)
	}
	dt.Base = base

	count := int(dt.Bits & 0xFFFF)
	dt.EnumNames = make([]string, 0, count)
	dt.EnumValues = make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		name, n, err := readName(props[pos:], dt.Version < 3)
		if err != nil {
			return 0, fmt.Errorf("enum member %d: %w", i, err)
		}
		pos += n
		dt.EnumNames = append(dt.EnumNames, name)
	}
	vs := int(base.Size)
	for i := 0; i < count; i++ {
		if pos+vs > len(props) {
			return 0, fmt.Errorf("enum value %d truncated", i)
		}
		dt.EnumValues = append(dt.EnumValues, props[pos:pos+vs])
		pos += vs
	}
	return pos, nil
}

// parseArray decodes the dimension list and base type. Version 2 keeps
// a permutation index per dimension, version 3 drops it.
func (dt *Datatype) parseArray(props []byte) (int, error) {
	if len(props) < 1 {
		return 0, fmt.Errorf("array properties truncated")
	}
	ndims := int(props[0])
	pos := 1
	if dt.Version < 3 {
		pos += 3 // reserved
	}
	if pos+4*ndims > len(props) {
		return 0, fmt.Errorf("array dimensions truncated")
	}
	dt.ArrayDims = make([]uint64, ndims)
	for i := 0; i < ndims; i++ {
		dt.ArrayDims[i] = uint64(binary.LittleEndian.Uint32(props[pos:]))
		pos += 4
	}
	if dt.Version == 2 {
		if pos+4*ndims > len(props) {
			return 0, fmt.Errorf("array permutation indices truncated")
		}
		pos += 4 * ndims
	}
	base, n, err := ParseDatatype(props[pos:])
	if err != nil {
		return 0, fmt.Errorf("array base type: %w", err)
	}
	dt.Base = base
	return pos + n, nil
}

// readName reads a null-terminated name, optionally consuming padding
// up to the next 8-byte boundary (the terminator counts toward it).
func readName(data []byte, padded bool) (string, int, error) {
	end := 0
	for end < len(data) && data[end] != 0 {
		end++
	}
	if end >= len(data) {
		return "", 0, fmt.Errorf("name not terminated")
	}
	n := end + 1
	if padded {
		n = (n + 7) / 8 * 8
		if n > len(data) {
			n = len(data)
		}
	}
	return string(data[:end]), n, nil
}

// minWidth returns the narrowest byte width that can hold v.
func minWidth(v uint64) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}
