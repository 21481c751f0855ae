package core

import "fmt"

// Datatype constructors used by the write path. All emit little-endian
// types matching what ParseDatatype reads back.

// FixedDatatype returns an integer type of the given byte size.
func FixedDatatype(size uint32, signed bool) *Datatype {
	bits := uint32(0)
	if signed {
		bits |= 0x08
	}
	return &Datatype{
		Class:        ClassFixed,
		Version:      1,
		Bits:         bits,
		Size:         size,
		LittleEndian: true,
		Signed:       signed,
		BitPrecision: uint16(size * 8),
	}
}

// FloatDatatype returns an IEEE 754 float type of size 4 or 8.
func FloatDatatype(size uint32) *Datatype {
	dt := &Datatype{
		Class:        ClassFloat,
		Version:      1,
		Size:         size,
		LittleEndian: true,
		BitPrecision: uint16(size * 8),
	}
	switch size {
	case 4:
		dt.ExpLoc, dt.ExpSize, dt.ManSize, dt.ExpBias = 23, 8, 23, 127
		dt.Bits = 0x20 | uint32(31)<<8
	case 8:
		dt.ExpLoc, dt.ExpSize, dt.ManSize, dt.ExpBias = 52, 11, 52, 1023
		dt.Bits = 0x20 | uint32(63)<<8
	}
	return dt
}

// StringDatatype returns a fixed-length, null-padded ASCII string type.
func StringDatatype(size uint32) *Datatype {
	return &Datatype{
		Class:        ClassString,
		Version:      1,
		Bits:         uint32(PadNullPad),
		Size:         size,
		LittleEndian: true,
		Pad:          PadNullPad,
	}
}

// VlenStringDatatype returns a variable-length string type whose data
// lives in the global heap. offsetSize is the file's address width.
func VlenStringDatatype(offsetSize uint8) *Datatype {
	return &Datatype{
		Class:        ClassVlen,
		Version:      1,
		Bits:         0x01, // vlen subtype: string
		Size:         4 + uint32(offsetSize) + 4,
		LittleEndian: true,
		VlenString:   true,
		Base:         FixedDatatype(1, false),
	}
}

// CompoundDatatype returns a compound type over the given members.
// Total size must already account for member offsets.
func CompoundDatatype(size uint32, members []CompoundMember) *Datatype {
	return &Datatype{
		Class:        ClassCompound,
		Version:      3,
		Bits:         uint32(len(members)) & 0xFFFF,
		Size:         size,
		LittleEndian: true,
		Members:      members,
	}
}

// EncodeDatatype serializes a datatype message. Supported classes on
// the write side are fixed, float, string, vlen string, and compound.
func EncodeDatatype(dt *Datatype) ([]byte, error) {
	e := NewEncoder(8, 8)
	if err := encodeDatatype(e, dt); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func encodeDatatype(e *Encoder, dt *Datatype) error {
	e.Uint8(uint8(dt.Class) | dt.Version<<4)
	e.Uint8(uint8(dt.Bits))
	e.Uint8(uint8(dt.Bits >> 8))
	e.Uint8(uint8(dt.Bits >> 16))
	e.Uint32(dt.Size)

	switch dt.Class {
	case ClassFixed:
		e.Uint16(dt.BitOffset)
		e.Uint16(dt.BitPrecision)
	case ClassFloat:
		e.Uint16(dt.BitOffset)
		e.Uint16(dt.BitPrecision)
		e.Uint8(dt.ExpLoc)
		e.Uint8(dt.ExpSize)
		e.Uint8(dt.ManLoc)
		e.Uint8(dt.ManSize)
		e.Uint32(dt.ExpBias)
	case ClassString:
		// no properties
	case ClassVlen:
		if !dt.VlenString {
			return fmt.Errorf("writing vlen sequences is not supported")
		}
		if err := encodeDatatype(e, dt.Base); err != nil {
			return err
		}
	case ClassCompound:
		if dt.Version != 3 {
			return fmt.Errorf("compound write requires version 3, got %d", dt.Version)
		}
		offWidth := uint8(minWidth(uint64(dt.Size)))
		for _, m := range dt.Members {
			e.Raw([]byte(m.Name))
			e.Uint8(0)
			e.UintN(uint64(m.Offset), offWidth)
			if err := encodeDatatype(e, m.Type); err != nil {
				return fmt.Errorf("member %q: %w", m.Name, err)
			}
		}
	default:
		return fmt.Errorf("writing %s datatypes is not supported", dt.Class)
	}
	return nil
}
