// Package core implements the byte-level codecs of the HDF5 container
// format: superblocks, object headers, header messages, and heaps. All
// multi-byte values are little-endian; offsets and lengths use the
// variable widths declared by the superblock.
package core

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/utils"
)

// UndefinedAddress reports whether v is the all-ones sentinel for the
// given field width in bytes.
func UndefinedAddress(v uint64, width uint8) bool {
	if width >= 8 {
		return v == ^uint64(0)
	}
	return v == (uint64(1)<<(8*width))-1
}

// Undefined returns the all-ones sentinel for a field width in bytes.
func Undefined(width uint8) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * width)) - 1
}

// Reader is a positional cursor over an io.ReaderAt. Offset and length
// widths come from the superblock; At returns an independent clone so
// nested structures can be parsed without disturbing the caller.
type Reader struct {
	src        io.ReaderAt
	pos        int64
	offsetSize uint8
	lengthSize uint8
}

// NewReader positions a cursor at addr with the given field widths.
func NewReader(src io.ReaderAt, addr uint64, offsetSize, lengthSize uint8) *Reader {
	return &Reader{src: src, pos: int64(addr), offsetSize: offsetSize, lengthSize: lengthSize}
}

// At returns a new cursor at addr sharing the source and widths.
func (r *Reader) At(addr uint64) *Reader {
	return &Reader{src: r.src, pos: int64(addr), offsetSize: r.offsetSize, lengthSize: r.lengthSize}
}

// Pos returns the current absolute position.
func (r *Reader) Pos() uint64 { return uint64(r.pos) }

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int64) { r.pos += n }

// Align8 advances the cursor to the next 8-byte boundary.
func (r *Reader) Align8() {
	if rem := r.pos % 8; rem != 0 {
		r.pos += 8 - rem
	}
}

// ReadBytes reads exactly n bytes at the cursor and advances it.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read of %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(r.src, r.pos, int64(n)), buf); err != nil {
		return nil, utils.WrapError(fmt.Sprintf("read %d bytes at %d", n, r.pos), err)
	}
	r.pos += int64(n)
	return buf, nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadUintN reads a little-endian unsigned value of 1..8 bytes.
func (r *Reader) ReadUintN(width uint8) (uint64, error) {
	if width == 0 || width > 8 {
		return 0, fmt.Errorf("unsupported field width %d", width)
	}
	b, err := r.ReadBytes(int(width))
	if err != nil {
		return 0, err
	}
	return DecodeUintN(b, width), nil
}

// ReadOffset reads a file address at the superblock's offset width.
func (r *Reader) ReadOffset() (uint64, error) { return r.ReadUintN(r.offsetSize) }

// ReadLength reads a length at the superblock's length width.
func (r *Reader) ReadLength() (uint64, error) { return r.ReadUintN(r.lengthSize) }

// OffsetSize returns the configured address width in bytes.
func (r *Reader) OffsetSize() uint8 { return r.offsetSize }

// LengthSize returns the configured length width in bytes.
func (r *Reader) LengthSize() uint8 { return r.lengthSize }

// EncodeUintN writes v into b as a little-endian unsigned integer of
// the given byte width.
func EncodeUintN(b []byte, v uint64, width uint8) {
	for i := uint8(0); i < width; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// DecodeUintN decodes a little-endian unsigned value of width bytes.
func DecodeUintN(b []byte, width uint8) uint64 {
	var v uint64
	for i := uint8(0); i < width; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// Encoder builds a byte-exact structure in memory. The zero value is not
// usable; construct with NewEncoder so field widths are set.
type Encoder struct {
	buf        []byte
	offsetSize uint8
	lengthSize uint8
}

// NewEncoder returns an encoder using the given address/length widths.
func NewEncoder(offsetSize, lengthSize uint8) *Encoder {
	return &Encoder{offsetSize: offsetSize, lengthSize: lengthSize}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int { return len(e.buf) }

// Uint8 appends one byte.
func (e *Encoder) Uint8(v uint8) { e.buf = append(e.buf, v) }

// Uint16 appends a little-endian uint16.
func (e *Encoder) Uint16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }

// Uint32 appends a little-endian uint32.
func (e *Encoder) Uint32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

// Uint64 appends a little-endian uint64.
func (e *Encoder) Uint64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

// UintN appends a little-endian value of width bytes.
func (e *Encoder) UintN(v uint64, width uint8) {
	for i := uint8(0); i < width; i++ {
		e.buf = append(e.buf, byte(v>>(8*i)))
	}
}

// Offset appends a file address at the configured offset width.
func (e *Encoder) Offset(v uint64) { e.UintN(v, e.offsetSize) }

// Length appends a length at the configured length width.
func (e *Encoder) Length(v uint64) { e.UintN(v, e.lengthSize) }

// Raw appends bytes verbatim.
func (e *Encoder) Raw(b []byte) { e.buf = append(e.buf, b...) }

// Zero appends n zero bytes.
func (e *Encoder) Zero(n int) { e.buf = append(e.buf, make([]byte, n)...) }

// Pad8 appends zero bytes up to the next 8-byte boundary.
func (e *Encoder) Pad8() {
	if rem := len(e.buf) % 8; rem != 0 {
		e.Zero(8 - rem)
	}
}

// baseReaderAt shifts every read by the superblock's discovered offset
// so file addresses stay relative to the format's base address.
type baseReaderAt struct {
	src  io.ReaderAt
	base int64
}

// NewBaseReaderAt wraps src so offset 0 maps to base. With base 0 the
// source is returned unchanged.
func NewBaseReaderAt(src io.ReaderAt, base int64) io.ReaderAt {
	if base == 0 {
		return src
	}
	return &baseReaderAt{src: src, base: base}
}

func (b *baseReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return b.src.ReadAt(p, off+b.base)
}
