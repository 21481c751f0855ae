package writer

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/utils"
)

// DeflateFilter is the deflate compression filter (id 1). Chunk
// payloads are raw zlib streams; levels follow zlib's 1 (fastest) to
// 9 (smallest).
type DeflateFilter struct {
	level int
}

// NewDeflateFilter returns a deflate filter. Levels outside 1..9 fall
// back to 6.
func NewDeflateFilter(level int) *DeflateFilter {
	if level < 1 || level > 9 {
		level = 6
	}
	return &DeflateFilter{level: level}
}

// ID returns the registered filter identifier.
func (f *DeflateFilter) ID() FilterID { return FilterDeflate }

// Name returns the registered filter name.
func (f *DeflateFilter) Name() string { return "deflate" }

// Apply compresses data into a zlib stream.
func (f *DeflateFilter) Apply(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, f.level)
	if err != nil {
		return nil, fmt.Errorf("deflate writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate flush: %w", err)
	}
	return buf.Bytes(), nil
}

// Remove inflates a zlib stream, refusing to grow past the chunk
// size limit.
func (f *DeflateFilter) Remove(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, utils.MaxChunkSize+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(out) > utils.MaxChunkSize {
		return nil, fmt.Errorf("inflate: chunk exceeds %d bytes", uint64(utils.MaxChunkSize))
	}
	return out, nil
}

// Encode returns the pipeline message parameters: the level as the
// single client data value.
func (f *DeflateFilter) Encode() (uint16, []uint32) {
	return 0, []uint32{uint32(f.level)}
}
