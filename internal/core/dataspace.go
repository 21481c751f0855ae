package core

import (
	"fmt"

	"github.com/scigolib/h5core/internal/utils"
)

// Dataspace types (explicit in version 2 messages only).
const (
	SpaceScalar uint8 = 0
	SpaceSimple uint8 = 1
	SpaceNull   uint8 = 2
)

// Dataspace is the decoded form of a dataspace message (type 0x0001).
// A scalar space has no dimensions and one element; a null space has
// no elements at all. MaxDims entries of all-ones mean unlimited.
type Dataspace struct {
	Version uint8
	Type    uint8
	Dims    []uint64
	MaxDims []uint64
}

// ParseDataspace decodes a dataspace message.
//
// Version 1 layout: version(1) rank(1) flags(1) reserved(5), then
// rank 8-byte dimensions, then optional max dimensions when flags bit
// 0 is set. Version 2 replaces the reserved run with an explicit type
// byte: version(1) rank(1) flags(1) type(1).
func ParseDataspace(data []byte) (*Dataspace, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("dataspace message too short: %d bytes", len(data))
	}
	ds := &Dataspace{Version: data[0]}
	rank := int(data[1])
	flags := data[2]

	var pos int
	switch ds.Version {
	case 1:
		if len(data) < 8 {
			return nil, fmt.Errorf("dataspace v1 header truncated")
		}
		ds.Type = SpaceSimple
		if rank == 0 {
			ds.Type = SpaceScalar
		}
		pos = 8
	case 2:
		ds.Type = data[3]
		pos = 4
	default:
		return nil, fmt.Errorf("unsupported dataspace version %d", ds.Version)
	}

	if ds.Type == SpaceNull {
		return ds, nil
	}
	need := pos + 8*rank
	if flags&0x01 != 0 {
		need += 8 * rank
	}
	if len(data) < need {
		return nil, fmt.Errorf("dataspace dimensions truncated: have %d, need %d", len(data), need)
	}

	ds.Dims = make([]uint64, rank)
	for i := 0; i < rank; i++ {
		ds.Dims[i] = DecodeUintN(data[pos:pos+8], 8)
		pos += 8
	}
	if flags&0x01 != 0 {
		ds.MaxDims = make([]uint64, rank)
		for i := 0; i < rank; i++ {
			ds.MaxDims[i] = DecodeUintN(data[pos:pos+8], 8)
			pos += 8
		}
	}
	return ds, nil
}

// NumElements returns the element count. Null spaces hold zero
// elements, scalar spaces one.
func (ds *Dataspace) NumElements() (uint64, error) {
	if ds.Type == SpaceNull {
		return 0, nil
	}
	return utils.ElementCount(ds.Dims)
}

// IsUnlimited reports whether any dimension has an unlimited maximum.
func (ds *Dataspace) IsUnlimited() bool {
	for _, m := range ds.MaxDims {
		if m == ^uint64(0) {
			return true
		}
	}
	return false
}

// EncodeDataspace serializes a version 1 simple (or scalar, for empty
// dims) dataspace. maxDims may be nil when it equals dims.
func EncodeDataspace(dims, maxDims []uint64) []byte {
	e := NewEncoder(8, 8)
	e.Uint8(1)
	e.Uint8(uint8(len(dims)))
	flags := uint8(0)
	if len(maxDims) > 0 {
		flags = 0x01
	}
	e.Uint8(flags)
	e.Zero(5)
	for _, d := range dims {
		e.Uint64(d)
	}
	for _, m := range maxDims {
		e.Uint64(m)
	}
	return e.Bytes()
}
