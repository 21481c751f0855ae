package core

import (
	"fmt"
	"math"
	"strings"
)

// VlenResolver fetches one global heap object; the file handle
// implements it with a collection cache behind it.
type VlenResolver interface {
	HeapObject(ref GlobalHeapRef) ([]byte, error)
}

// DecodeElements converts count raw elements of type dt into a typed
// Go slice:
//
//	fixed        []int8..[]int64 / []uint8..[]uint64 by size and sign
//	float        []float32 / []float64
//	time         []int64
//	string       []string (padding stripped)
//	bitfield     []uint64
//	opaque       [][]byte
//	compound     []map[string]any
//	reference    []uint64 (object header addresses)
//	enum         []string (falling back to the numeric value)
//	vlen string  []string
//	vlen seq     []any (each a decoded slice of the base type)
//	array        []any (each a decoded slice of the base type)
func DecodeElements(raw []byte, dt *Datatype, count uint64, offsetSize uint8, res VlenResolver) (any, error) {
	size := uint64(dt.Size)
	if size == 0 {
		return nil, fmt.Errorf("%s datatype has zero size", dt.Class)
	}
	if uint64(len(raw)) < count*size {
		return nil, fmt.Errorf("raw data truncated: have %d bytes, need %d", len(raw), count*size)
	}

	switch dt.Class {
	case ClassFixed:
		return decodeFixed(raw, dt, count)
	case ClassFloat:
		return decodeFloat(raw, dt, count)
	case ClassTime:
		out := make([]int64, count)
		for i := uint64(0); i < count; i++ {
			out[i] = int64(decodeOrdered(raw[i*size:(i+1)*size], dt.LittleEndian))
		}
		return out, nil
	case ClassString:
		out := make([]string, count)
		for i := uint64(0); i < count; i++ {
			out[i] = trimString(raw[i*size:(i+1)*size], dt.Pad)
		}
		return out, nil
	case ClassBitfield:
		out := make([]uint64, count)
		for i := uint64(0); i < count; i++ {
			out[i] = decodeOrdered(raw[i*size:(i+1)*size], dt.LittleEndian)
		}
		return out, nil
	case ClassOpaque:
		out := make([][]byte, count)
		for i := uint64(0); i < count; i++ {
			out[i] = append([]byte(nil), raw[i*size:(i+1)*size]...)
		}
		return out, nil
	case ClassCompound:
		return decodeCompound(raw, dt, count, offsetSize, res)
	case ClassReference:
		out := make([]uint64, count)
		for i := uint64(0); i < count; i++ {
			out[i] = DecodeUintN(raw[i*size:], uint8(min(int(size), 8)))
		}
		return out, nil
	case ClassEnum:
		return decodeEnum(raw, dt, count)
	case ClassVlen:
		return decodeVlen(raw, dt, count, offsetSize, res)
	case ClassArray:
		return decodeArray(raw, dt, count, offsetSize, res)
	}
	return nil, fmt.Errorf("unsupported datatype class %s", dt.Class)
}

func decodeFixed(raw []byte, dt *Datatype, count uint64) (any, error) {
	size := uint64(dt.Size)
	le := dt.LittleEndian
	switch {
	case size == 1 && dt.Signed:
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(raw[i])
		}
		return out, nil
	case size == 1:
		out := make([]uint8, count)
		copy(out, raw[:count])
		return out, nil
	case size == 2 && dt.Signed:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(decodeOrdered(raw[uint64(i)*2:uint64(i)*2+2], le))
		}
		return out, nil
	case size == 2:
		out := make([]uint16, count)
		for i := range out {
			out[i] = uint16(decodeOrdered(raw[uint64(i)*2:uint64(i)*2+2], le))
		}
		return out, nil
	case size == 4 && dt.Signed:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(decodeOrdered(raw[uint64(i)*4:uint64(i)*4+4], le))
		}
		return out, nil
	case size == 4:
		out := make([]uint32, count)
		for i := range out {
			out[i] = uint32(decodeOrdered(raw[uint64(i)*4:uint64(i)*4+4], le))
		}
		return out, nil
	case size == 8 && dt.Signed:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(decodeOrdered(raw[uint64(i)*8:uint64(i)*8+8], le))
		}
		return out, nil
	case size == 8:
		out := make([]uint64, count)
		for i := range out {
			out[i] = decodeOrdered(raw[uint64(i)*8:uint64(i)*8+8], le)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported fixed-point size %d", dt.Size)
}

func decodeFloat(raw []byte, dt *Datatype, count uint64) (any, error) {
	switch dt.Size {
	case 4:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(uint32(decodeOrdered(raw[uint64(i)*4:uint64(i)*4+4], dt.LittleEndian)))
		}
		return out, nil
	case 8:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(decodeOrdered(raw[uint64(i)*8:uint64(i)*8+8], dt.LittleEndian))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported floating-point size %d", dt.Size)
}

func decodeCompound(raw []byte, dt *Datatype, count uint64, offsetSize uint8, res VlenResolver) (any, error) {
	size := uint64(dt.Size)
	out := make([]map[string]any, count)
	for i := uint64(0); i < count; i++ {
		row := raw[i*size : (i+1)*size]
		m := make(map[string]any, len(dt.Members))
		for _, member := range dt.Members {
			if uint64(member.Offset)+uint64(member.Type.Size) > size {
				return nil, fmt.Errorf("compound member %q overruns element", member.Name)
			}
			v, err := DecodeElements(row[member.Offset:], member.Type, 1, offsetSize, res)
			if err != nil {
				return nil, fmt.Errorf("compound member %q: %w", member.Name, err)
			}
			m[member.Name] = firstElement(v)
		}
		out[i] = m
	}
	return out, nil
}

func decodeEnum(raw []byte, dt *Datatype, count uint64) (any, error) {
	if dt.Base == nil {
		return nil, fmt.Errorf("enum without base type")
	}
	size := uint64(dt.Base.Size)
	out := make([]string, count)
	for i := uint64(0); i < count; i++ {
		v := raw[i*size : (i+1)*size]
		name := ""
		for j, ev := range dt.EnumValues {
			if string(ev) == string(v) {
				name = dt.EnumNames[j]
				break
			}
		}
		if name == "" {
			name = fmt.Sprintf("%d", decodeOrdered(v, dt.Base.LittleEndian))
		}
		out[i] = name
	}
	return out, nil
}

func decodeVlen(raw []byte, dt *Datatype, count uint64, offsetSize uint8, res VlenResolver) (any, error) {
	if res == nil {
		return nil, fmt.Errorf("variable-length data requires a heap resolver")
	}
	size := uint64(dt.Size)
	if dt.VlenString {
		out := make([]string, count)
		for i := uint64(0); i < count; i++ {
			length, ref, err := ParseVlenDatum(raw[i*size:(i+1)*size], offsetSize)
			if err != nil {
				return nil, err
			}
			if length == 0 || UndefinedAddress(ref.CollectionAddress, offsetSize) || ref.CollectionAddress == 0 {
				continue
			}
			payload, err := res.HeapObject(ref)
			if err != nil {
				return nil, err
			}
			if uint32(len(payload)) > length {
				payload = payload[:length]
			}
			out[i] = string(payload)
		}
		return out, nil
	}

	if dt.Base == nil {
		return nil, fmt.Errorf("vlen sequence without base type")
	}
	out := make([]any, count)
	for i := uint64(0); i < count; i++ {
		length, ref, err := ParseVlenDatum(raw[i*size:(i+1)*size], offsetSize)
		if err != nil {
			return nil, err
		}
		if length == 0 || UndefinedAddress(ref.CollectionAddress, offsetSize) || ref.CollectionAddress == 0 {
			continue
		}
		payload, err := res.HeapObject(ref)
		if err != nil {
			return nil, err
		}
		out[i], err = DecodeElements(payload, dt.Base, uint64(length), offsetSize, res)
		if err != nil {
			return nil, fmt.Errorf("vlen element %d: %w", i, err)
		}
	}
	return out, nil
}

func decodeArray(raw []byte, dt *Datatype, count uint64, offsetSize uint8, res VlenResolver) (any, error) {
	if dt.Base == nil {
		return nil, fmt.Errorf("array without base type")
	}
	n := uint64(1)
	for _, d := range dt.ArrayDims {
		n *= d
	}
	size := uint64(dt.Size)
	out := make([]any, count)
	for i := uint64(0); i < count; i++ {
		v, err := DecodeElements(raw[i*size:(i+1)*size], dt.Base, n, offsetSize, res)
		if err != nil {
			return nil, fmt.Errorf("array element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// decodeOrdered reads an unsigned value honoring the type's byte order.
func decodeOrdered(b []byte, littleEndian bool) uint64 {
	if littleEndian {
		return DecodeUintN(b, uint8(len(b)))
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// trimString strips the padding discipline from a fixed-size string.
func trimString(b []byte, pad StringPad) string {
	switch pad {
	case PadSpacePad:
		return strings.TrimRight(string(b), " \x00")
	default:
		if i := strings.IndexByte(string(b), 0); i >= 0 {
			return string(b[:i])
		}
		return string(b)
	}
}

// firstElement unwraps the single element of a decoded slice.
func firstElement(v any) any {
	switch s := v.(type) {
	case []int8:
		return s[0]
	case []int16:
		return s[0]
	case []int32:
		return s[0]
	case []int64:
		return s[0]
	case []uint8:
		return s[0]
	case []uint16:
		return s[0]
	case []uint32:
		return s[0]
	case []uint64:
		return s[0]
	case []float32:
		return s[0]
	case []float64:
		return s[0]
	case []string:
		return s[0]
	case [][]byte:
		return s[0]
	case []map[string]any:
		return s[0]
	case []any:
		return s[0]
	}
	return v
}
