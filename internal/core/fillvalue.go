package core

import (
	"encoding/binary"
	"fmt"
)

// FillValue is the decoded form of the fill value message (type
// 0x0005). The old-style message (type 0x0004) carries only size and
// value and is folded into the same struct.
type FillValue struct {
	Version uint8
	Defined bool
	Value   []byte
}

// ParseFillValue decodes versions 1 through 3.
//
// Versions 1 and 2: version(1) space-alloc-time(1) write-time(1)
// defined(1), then size(4) and value when defined. Version 3 packs the
// allocation and write times into a flags byte; bit 5 marks an
// undefined fill, bit 4 a defined one.
func ParseFillValue(data []byte) (*FillValue, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("fill value message too short")
	}
	fv := &FillValue{Version: data[0]}
	switch fv.Version {
	case 1, 2:
		if len(data) < 4 {
			return nil, fmt.Errorf("fill value v%d truncated", fv.Version)
		}
		fv.Defined = data[3] != 0
		// v1 always carries the size field, v2 only when defined
		if fv.Version == 1 || fv.Defined {
			if len(data) < 8 {
				return nil, fmt.Errorf("fill value size truncated")
			}
			size := binary.LittleEndian.Uint32(data[4:8])
			if 8+int(size) > len(data) {
				return nil, fmt.Errorf("fill value data truncated")
			}
			if size > 0 {
				fv.Value = append([]byte(nil), data[8:8+size]...)
			}
		}
	case 3:
		flags := data[1]
		switch {
		case flags&0x20 != 0:
			// undefined fill value
		case flags&0x10 != 0:
			if len(data) < 6 {
				return nil, fmt.Errorf("fill value v3 truncated")
			}
			size := binary.LittleEndian.Uint32(data[2:6])
			if 6+int(size) > len(data) {
				return nil, fmt.Errorf("fill value v3 data truncated")
			}
			fv.Defined = true
			fv.Value = append([]byte(nil), data[6:6+size]...)
		}
	default:
		return nil, fmt.Errorf("unsupported fill value version %d", fv.Version)
	}
	return fv, nil
}

// ParseOldFillValue decodes the deprecated message type 0x0004:
// size(4) followed by the value bytes.
func ParseOldFillValue(data []byte) (*FillValue, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("old fill value message too short")
	}
	size := binary.LittleEndian.Uint32(data[0:4])
	if 4+int(size) > len(data) {
		return nil, fmt.Errorf("old fill value data truncated")
	}
	return &FillValue{
		Defined: size > 0,
		Value:   append([]byte(nil), data[4:4+size]...),
	}, nil
}

// EncodeFillValue serializes a version 2 message. A nil value encodes
// an undefined fill.
func EncodeFillValue(value []byte) []byte {
	e := NewEncoder(8, 8)
	e.Uint8(2)
	e.Uint8(2) // space allocation: late
	e.Uint8(0) // write time: at allocation
	if value == nil {
		e.Uint8(0)
		return e.Bytes()
	}
	e.Uint8(1)
	e.Uint32(uint32(len(value)))
	e.Raw(value)
	return e.Bytes()
}
