package core

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/utils"
)

var gcolSignature = []byte("GCOL")

// GlobalHeapCollection is one GCOL block: variable-length payloads
// addressed by a 16-bit object index.
type GlobalHeapCollection struct {
	Address uint64
	Objects map[uint16][]byte
}

// ReadGlobalHeap parses the collection at addr.
//
// Each object carries index(2) refcount(2) reserved(4) size(length),
// data padded to 8 bytes. Index 0 marks the free space at the tail.
func ReadGlobalHeap(src io.ReaderAt, addr uint64, sb *Superblock) (*GlobalHeapCollection, error) {
	r := sb.Reader(src, addr)
	sig, err := r.ReadBytes(4)
	if err != nil {
		return nil, utils.WrapError(fmt.Sprintf("global heap at %d", addr), err)
	}
	if string(sig) != string(gcolSignature) {
		return nil, fmt.Errorf("global heap at %d: bad signature %q", addr, sig)
	}
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("global heap at %d: unsupported version %d", addr, version)
	}
	r.Skip(3)
	collectionSize, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	end := addr + collectionSize

	gc := &GlobalHeapCollection{Address: addr, Objects: make(map[uint16][]byte)}
	objHeader := uint64(8 + sb.LengthSize)
	for r.Pos()+objHeader <= end {
		index, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		if index == 0 {
			break
		}
		r.Skip(2) // reference count
		r.Skip(4) // reserved
		size, err := r.ReadLength()
		if err != nil {
			return nil, err
		}
		if size > utils.MaxStringSize || r.Pos()+size > end {
			return nil, fmt.Errorf("global heap at %d: object %d overruns collection", addr, index)
		}
		data, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		gc.Objects[index] = data
		r.Align8()
	}
	return gc, nil
}

// Get returns the payload for an object index.
func (gc *GlobalHeapCollection) Get(index uint16) ([]byte, error) {
	data, ok := gc.Objects[index]
	if !ok {
		return nil, fmt.Errorf("global heap at %d: no object with index %d", gc.Address, index)
	}
	return data, nil
}

// GlobalHeapRef is the on-disk pointer stored inside a vlen datum:
// the owning collection's address plus the object index.
type GlobalHeapRef struct {
	CollectionAddress uint64
	Index             uint32
}

// ParseVlenDatum splits a vlen element into its length and heap
// reference. The element is length(4) address(offset) index(4).
func ParseVlenDatum(data []byte, offsetSize uint8) (length uint32, ref GlobalHeapRef, err error) {
	need := 8 + int(offsetSize)
	if len(data) < need {
		return 0, ref, fmt.Errorf("vlen datum too short: %d bytes", len(data))
	}
	length = binary.LittleEndian.Uint32(data[0:4])
	ref.CollectionAddress = DecodeUintN(data[4:], offsetSize)
	ref.Index = binary.LittleEndian.Uint32(data[4+int(offsetSize):])
	return length, ref, nil
}

// GlobalHeapWriter packs payloads into a single collection for the
// write path. Indices start at 1; index assignment order is stable.
type GlobalHeapWriter struct {
	sb      *Superblock
	objects [][]byte
}

// NewGlobalHeapWriter returns an empty collection builder.
func NewGlobalHeapWriter(sb *Superblock) *GlobalHeapWriter {
	return &GlobalHeapWriter{sb: sb}
}

// Add appends a payload and returns its object index.
func (w *GlobalHeapWriter) Add(data []byte) uint16 {
	w.objects = append(w.objects, data)
	return uint16(len(w.objects))
}

// Count returns the number of stored objects.
func (w *GlobalHeapWriter) Count() int { return len(w.objects) }

// Encode serializes the collection. An index-0 free-space object
// terminates it; its size covers the marker's own header, the only
// free space in an exactly-sized collection.
func (w *GlobalHeapWriter) Encode() []byte {
	e := w.sb.Encoder()
	e.Raw(gcolSignature)
	e.Uint8(1)
	e.Zero(3)
	sizeAt := e.Len()
	e.Length(0) // patched below
	for i, data := range w.objects {
		e.Uint16(uint16(i + 1))
		e.Uint16(1) // reference count
		e.Zero(4)
		e.Length(uint64(len(data)))
		e.Raw(data)
		e.Pad8()
	}
	e.Uint16(0) // end marker
	e.Uint16(0)
	e.Zero(4)
	e.Length(uint64(8 + w.sb.LengthSize))
	buf := e.Bytes()
	total := uint64(len(buf))
	for i := uint8(0); i < w.sb.LengthSize; i++ {
		buf[sizeAt+int(i)] = byte(total >> (8 * i))
	}
	return buf
}
