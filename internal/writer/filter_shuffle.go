package writer

import "fmt"

// ShuffleFilter is the byte shuffle filter (id 2). It regroups chunk
// bytes by byte position within the element, which makes runs of
// similar high bytes and helps the compressor that follows.
type ShuffleFilter struct {
	elementSize uint32
}

// NewShuffleFilter returns a shuffle filter for the given element size.
func NewShuffleFilter(elementSize uint32) *ShuffleFilter {
	if elementSize == 0 {
		elementSize = 1
	}
	return &ShuffleFilter{elementSize: elementSize}
}

// ID returns the registered filter identifier.
func (f *ShuffleFilter) ID() FilterID { return FilterShuffle }

// Name returns the registered filter name.
func (f *ShuffleFilter) Name() string { return "shuffle" }

// Apply reorders data from element-major to byte-position-major.
func (f *ShuffleFilter) Apply(data []byte) ([]byte, error) {
	size := int(f.elementSize)
	if size <= 1 || len(data)%size != 0 {
		if size > 1 && len(data)%size != 0 {
			return nil, fmt.Errorf("shuffle: %d bytes not divisible by element size %d", len(data), size)
		}
		return data, nil
	}
	n := len(data) / size
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		for j := 0; j < size; j++ {
			out[j*n+i] = data[i*size+j]
		}
	}
	return out, nil
}

// Remove restores the original element-major order.
func (f *ShuffleFilter) Remove(data []byte) ([]byte, error) {
	size := int(f.elementSize)
	if size <= 1 || len(data)%size != 0 {
		if size > 1 && len(data)%size != 0 {
			return nil, fmt.Errorf("unshuffle: %d bytes not divisible by element size %d", len(data), size)
		}
		return data, nil
	}
	n := len(data) / size
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		for j := 0; j < size; j++ {
			out[i*size+j] = data[j*n+i]
		}
	}
	return out, nil
}

// Encode returns the element size as the single client data value.
func (f *ShuffleFilter) Encode() (uint16, []uint32) {
	return 0, []uint32{f.elementSize}
}
