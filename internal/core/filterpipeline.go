package core

import (
	"encoding/binary"
	"fmt"
)

// FilterEntry describes one filter in a dataset's pipeline message
// (type 0x000B), in application order.
type FilterEntry struct {
	ID       uint16
	Name     string
	Flags    uint16 // bit 0: filter is optional
	CDValues []uint32
}

// Optional reports whether decode failures for this filter may be
// skipped instead of failing the read.
func (f FilterEntry) Optional() bool { return f.Flags&0x01 != 0 }

// ParseFilterPipeline decodes versions 1 and 2 of the message.
//
// Version 1 puts 6 reserved bytes after the filter count, requires a
// name field (8-byte padded) per filter even when empty, and pads an
// odd client-data count with 4 zero bytes. Version 2 drops all of
// that, and omits the name for the reserved filter IDs below 256.
func ParseFilterPipeline(data []byte) ([]FilterEntry, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("filter pipeline message too short")
	}
	version := data[0]
	count := int(data[1])
	var pos int
	switch version {
	case 1:
		pos = 8
	case 2:
		pos = 2
	default:
		return nil, fmt.Errorf("unsupported filter pipeline version %d", version)
	}

	filters := make([]FilterEntry, 0, count)
	for i := 0; i < count; i++ {
		if pos+6 > len(data) {
			return nil, fmt.Errorf("filter %d header truncated", i)
		}
		f := FilterEntry{ID: binary.LittleEndian.Uint16(data[pos:])}
		pos += 2

		nameLen := 0
		if version == 1 || f.ID >= 256 {
			if pos+2 > len(data) {
				return nil, fmt.Errorf("filter %d name length truncated", i)
			}
			nameLen = int(binary.LittleEndian.Uint16(data[pos:]))
			pos += 2
		}
		if pos+4 > len(data) {
			return nil, fmt.Errorf("filter %d truncated", i)
		}
		f.Flags = binary.LittleEndian.Uint16(data[pos:])
		pos += 2
		numCD := int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2

		if nameLen > 0 {
			if pos+nameLen > len(data) {
				return nil, fmt.Errorf("filter %d name truncated", i)
			}
			name := data[pos : pos+nameLen]
			// strip the terminator and padding
			for len(name) > 0 && name[len(name)-1] == 0 {
				name = name[:len(name)-1]
			}
			f.Name = string(name)
			pos += nameLen
			if version == 1 {
				if rem := nameLen % 8; rem != 0 {
					pos += 8 - rem
				}
			}
		}

		if pos+4*numCD > len(data) {
			return nil, fmt.Errorf("filter %d client data truncated", i)
		}
		f.CDValues = make([]uint32, numCD)
		for j := 0; j < numCD; j++ {
			f.CDValues[j] = binary.LittleEndian.Uint32(data[pos:])
			pos += 4
		}
		if version == 1 && numCD%2 == 1 {
			pos += 4
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// EncodeFilterPipeline serializes a version 1 message, which every
// reader in the wild understands.
func EncodeFilterPipeline(filters []FilterEntry) []byte {
	e := NewEncoder(8, 8)
	e.Uint8(1)
	e.Uint8(uint8(len(filters)))
	e.Zero(6)
	for _, f := range filters {
		e.Uint16(f.ID)
		name := f.Name
		nameLen := 0
		if name != "" {
			nameLen = (len(name) + 1 + 7) / 8 * 8
		}
		e.Uint16(uint16(nameLen))
		e.Uint16(f.Flags)
		e.Uint16(uint16(len(f.CDValues)))
		if nameLen > 0 {
			e.Raw([]byte(name))
			e.Zero(nameLen - len(name))
		}
		for _, cd := range f.CDValues {
			e.Uint32(cd)
		}
		if len(f.CDValues)%2 == 1 {
			e.Zero(4)
		}
	}
	return e.Bytes()
}
