// Package structures implements the shared on-disk structures that sit
// between the object headers and raw data: local heaps, symbol table
// nodes, and version 1 B-trees.
package structures

import (
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/utils"
)

var heapSignature = []byte("HEAP")

// LocalHeap stores the link names of a legacy group. Names are
// referenced by byte offset into the data segment.
type LocalHeap struct {
	Address     uint64
	DataAddress uint64
	Data        []byte
}

// ReadLocalHeap parses the heap header at addr and loads its data
// segment.
//
// Header: HEAP(4) version(1) reserved(3) data-size(length)
// free-list-head(length) data-address(offset).
func ReadLocalHeap(src io.ReaderAt, addr uint64, sb *core.Superblock) (*LocalHeap, error) {
	r := sb.Reader(src, addr)
	sig, err := r.ReadBytes(4)
	if err != nil {
		return nil, utils.WrapError(fmt.Sprintf("local heap at %d", addr), err)
	}
	if string(sig) != string(heapSignature) {
		return nil, fmt.Errorf("local heap at %d: bad signature %q", addr, sig)
	}
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("local heap at %d: unsupported version %d", addr, version)
	}
	r.Skip(3)
	dataSize, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadLength(); err != nil { // free list head
		return nil, err
	}
	dataAddr, err := r.ReadOffset()
	if err != nil {
		return nil, err
	}
	if dataSize > utils.MaxStringSize {
		return nil, fmt.Errorf("local heap at %d: data segment of %d bytes too large", addr, dataSize)
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(io.NewSectionReader(src, int64(dataAddr), int64(dataSize)), data); err != nil {
		return nil, utils.WrapError(fmt.Sprintf("local heap data at %d", dataAddr), err)
	}
	return &LocalHeap{Address: addr, DataAddress: dataAddr, Data: data}, nil
}

// Name returns the null-terminated string at the given heap offset.
func (h *LocalHeap) Name(offset uint64) (string, error) {
	if offset >= uint64(len(h.Data)) {
		return "", fmt.Errorf("heap offset %d beyond data segment of %d bytes", offset, len(h.Data))
	}
	end := offset
	for end < uint64(len(h.Data)) && h.Data[end] != 0 {
		end++
	}
	if end == uint64(len(h.Data)) {
		return "", fmt.Errorf("heap string at offset %d not terminated", offset)
	}
	return string(h.Data[offset:end]), nil
}

// LocalHeapWriter builds a heap data segment in memory. Offset 0 holds
// an empty string so B-tree zero keys resolve to "".
type LocalHeapWriter struct {
	sb   *core.Superblock
	data []byte
}

// NewLocalHeapWriter returns a heap seeded with the empty name slot.
func NewLocalHeapWriter(sb *core.Superblock) *LocalHeapWriter {
	return &LocalHeapWriter{sb: sb, data: make([]byte, 8)}
}

// AddName appends a null-terminated name and returns its offset.
// Entries stay 8-byte aligned the way the reference library packs them.
func (w *LocalHeapWriter) AddName(name string) uint64 {
	offset := uint64(len(w.data))
	w.data = append(w.data, name...)
	w.data = append(w.data, 0)
	if rem := len(w.data) % 8; rem != 0 {
		w.data = append(w.data, make([]byte, 8-rem)...)
	}
	return offset
}

// HeaderSize returns the encoded heap header size for this file's
// field widths.
func (w *LocalHeapWriter) HeaderSize() uint64 {
	return uint64(8 + 2*int(w.sb.LengthSize) + int(w.sb.OffsetSize))
}

// DataSize returns the current data segment size.
func (w *LocalHeapWriter) DataSize() uint64 { return uint64(len(w.data)) }

// EncodeHeader serializes the heap header pointing at dataAddr.
func (w *LocalHeapWriter) EncodeHeader(dataAddr uint64) []byte {
	e := w.sb.Encoder()
	e.Raw(heapSignature)
	e.Uint8(0)
	e.Zero(3)
	e.Length(uint64(len(w.data)))
	e.Length(core.Undefined(w.sb.LengthSize)) // no free list
	e.Offset(dataAddr)
	return e.Bytes()
}

// EncodeData returns the data segment bytes.
func (w *LocalHeapWriter) EncodeData() []byte { return w.data }
