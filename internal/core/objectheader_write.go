package core

import "fmt"

// EncodeObjectHeaderV1 serializes a version 1 object header. Every
// message body is padded to an 8-byte boundary and the declared size
// includes that padding, matching what the reference library emits.
func EncodeObjectHeaderV1(messages []HeaderMessage) ([]byte, error) {
	if len(messages) > 0xFFFF {
		return nil, fmt.Errorf("too many header messages: %d", len(messages))
	}

	body := NewEncoder(8, 8)
	for _, m := range messages {
		padded := (len(m.Data) + 7) / 8 * 8
		if padded > 0xFFFF {
			return nil, fmt.Errorf("header message of %d bytes exceeds v1 framing", len(m.Data))
		}
		body.Uint16(uint16(m.Type))
		body.Uint16(uint16(padded))
		body.Uint8(m.Flags)
		body.Zero(3)
		body.Raw(m.Data)
		body.Zero(padded - len(m.Data))
	}

	e := NewEncoder(8, 8)
	e.Uint8(1)
	e.Uint8(0)
	e.Uint16(uint16(len(messages)))
	e.Uint32(1) // object reference count
	e.Uint32(uint32(body.Len()))
	e.Zero(4) // pad prologue to 8 bytes
	e.Raw(body.Bytes())
	return e.Bytes(), nil
}
