package writer

import (
	"fmt"
	"io"
)

// MemFile is a growable in-memory file image. The builder serializes
// everything into one and hands the final bytes to the caller.
type MemFile struct {
	buf []byte
}

// NewMemFile returns an empty image.
func NewMemFile() *MemFile { return &MemFile{} }

// WriteAt implements io.WriterAt, growing the image as needed.
func (m *MemFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative write offset %d", off)
	}
	end := int(off) + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:], p)
	return len(p), nil
}

// ReadAt implements io.ReaderAt over the current image.
func (m *MemFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) >= len(m.buf) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Len returns the current image size.
func (m *MemFile) Len() int { return len(m.buf) }

// Bytes returns the backing image without copying.
func (m *MemFile) Bytes() []byte { return m.buf }

var (
	_ io.WriterAt = (*MemFile)(nil)
	_ io.ReaderAt = (*MemFile)(nil)
)
