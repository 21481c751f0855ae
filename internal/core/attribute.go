package core

import (
	"encoding/binary"
	"fmt"
)

// AttributeMessage is the decoded form of a compact attribute message
// (type 0x000C): a name plus an embedded datatype, dataspace, and raw
// value.
type AttributeMessage struct {
	Version   uint8
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte
}

// ParseAttribute decodes versions 1 through 3.
//
// All versions start with name/datatype/dataspace sizes. Version 1
// pads each of the three sections to 8 bytes, version 2 drops the
// padding, version 3 inserts a name charset byte before the name.
func ParseAttribute(data []byte) (*AttributeMessage, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("attribute message too short")
	}
	a := &AttributeMessage{Version: data[0]}
	if a.Version < 1 || a.Version > 3 {
		return nil, fmt.Errorf("unsupported attribute message version %d", a.Version)
	}
	flags := data[1]
	if a.Version >= 2 && flags&0x03 != 0 {
		return nil, fmt.Errorf("shared attribute datatype/dataspace not supported")
	}
	nameSize := int(binary.LittleEndian.Uint16(data[2:4]))
	dtSize := int(binary.LittleEndian.Uint16(data[4:6]))
	dsSize := int(binary.LittleEndian.Uint16(data[6:8]))
	pos := 8
	if a.Version == 3 {
		pos++ // name character set
	}

	padded := a.Version == 1
	sect := func(size int) ([]byte, error) {
		if pos+size > len(data) {
			return nil, fmt.Errorf("attribute section truncated at %d+%d of %d", pos, size, len(data))
		}
		b := data[pos : pos+size]
		pos += size
		if padded {
			if rem := size % 8; rem != 0 {
				pos += 8 - rem
				if pos > len(data) {
					pos = len(data)
				}
			}
		}
		return b, nil
	}

	nameBytes, err := sect(nameSize)
	if err != nil {
		return nil, err
	}
	for len(nameBytes) > 0 && nameBytes[len(nameBytes)-1] == 0 {
		nameBytes = nameBytes[:len(nameBytes)-1]
	}
	a.Name = string(nameBytes)

	dtBytes, err := sect(dtSize)
	if err != nil {
		return nil, err
	}
	if a.Datatype, _, err = ParseDatatype(dtBytes); err != nil {
		return nil, fmt.Errorf("attribute %q datatype: %w", a.Name, err)
	}

	dsBytes, err := sect(dsSize)
	if err != nil {
		return nil, err
	}
	if a.Dataspace, err = ParseDataspace(dsBytes); err != nil {
		return nil, fmt.Errorf("attribute %q dataspace: %w", a.Name, err)
	}

	a.Data = data[pos:]
	return a, nil
}

// EncodeAttribute serializes a version 1 attribute message.
func EncodeAttribute(name string, dtBytes, dsBytes, value []byte) []byte {
	e := NewEncoder(8, 8)
	e.Uint8(1)
	e.Uint8(0)
	e.Uint16(uint16(len(name) + 1))
	e.Uint16(uint16(len(dtBytes)))
	e.Uint16(uint16(len(dsBytes)))
	e.Raw([]byte(name))
	e.Uint8(0)
	e.Pad8()
	e.Raw(dtBytes)
	e.Pad8()
	e.Raw(dsBytes)
	e.Pad8()
	e.Raw(value)
	return e.Bytes()
}

// AttributeInfo is the decoded form of an attribute info message
// (type 0x0015), present when attributes are stored densely.
type AttributeInfo struct {
	MaxCreationIndex   uint16
	FractalHeapAddress uint64
	NameIndexAddress   uint64
	OrderIndexAddress  uint64
}

// Dense reports whether attributes live outside the object header.
func (ai *AttributeInfo) Dense() bool {
	return !UndefinedAddress(ai.FractalHeapAddress, 8)
}

// ParseAttributeInfo decodes a version 0 attribute info message.
func ParseAttributeInfo(data []byte, sb *Superblock) (*AttributeInfo, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("attribute info message too short")
	}
	if data[0] != 0 {
		return nil, fmt.Errorf("unsupported attribute info version %d", data[0])
	}
	flags := data[1]
	ai := &AttributeInfo{}
	pos := 2
	if flags&0x01 != 0 {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("attribute info creation index truncated")
		}
		ai.MaxCreationIndex = binary.LittleEndian.Uint16(data[pos:])
		pos += 2
	}
	need := 2 * int(sb.OffsetSize)
	if flags&0x02 != 0 {
		need += int(sb.OffsetSize)
	}
	if pos+need > len(data) {
		return nil, fmt.Errorf("attribute info addresses truncated")
	}
	ai.FractalHeapAddress = DecodeUintN(data[pos:], sb.OffsetSize)
	pos += int(sb.OffsetSize)
	ai.NameIndexAddress = DecodeUintN(data[pos:], sb.OffsetSize)
	pos += int(sb.OffsetSize)
	if flags&0x02 != 0 {
		ai.OrderIndexAddress = DecodeUintN(data[pos:], sb.OffsetSize)
	}
	return ai, nil
}
