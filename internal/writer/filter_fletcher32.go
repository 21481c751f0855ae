package writer

import (
	"encoding/binary"
	"fmt"

	"github.com/scigolib/h5core/internal/core"
)

// Fletcher32Filter is the checksum filter (id 3). Apply appends a
// 4-byte Fletcher-32 checksum, Remove verifies and strips it.
type Fletcher32Filter struct{}

// NewFletcher32Filter returns the checksum filter.
func NewFletcher32Filter() *Fletcher32Filter { return &Fletcher32Filter{} }

// ID returns the registered filter identifier.
func (f *Fletcher32Filter) ID() FilterID { return FilterFletcher32 }

// Name returns the registered filter name.
func (f *Fletcher32Filter) Name() string { return "fletcher32" }

// Apply appends the checksum of data.
func (f *Fletcher32Filter) Apply(data []byte) ([]byte, error) {
	out := make([]byte, len(data)+4)
	copy(out, data)
	binary.LittleEndian.PutUint32(out[len(data):], core.Fletcher32(data))
	return out, nil
}

// Remove verifies the trailing checksum and returns the payload.
func (f *Fletcher32Filter) Remove(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("fletcher32: chunk of %d bytes has no checksum", len(data))
	}
	payload := data[:len(data)-4]
	stored := binary.LittleEndian.Uint32(data[len(data)-4:])
	if core.Fletcher32(payload) != stored {
		return nil, fmt.Errorf("fletcher32: checksum mismatch")
	}
	return payload, nil
}

// Encode returns the pipeline message parameters.
func (f *Fletcher32Filter) Encode() (uint16, []uint32) { return 0, nil }
