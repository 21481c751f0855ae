package hdf5

import "io"

// Option configures a File handle at open time.
type Option func(*File)

// WithDebug directs per-handle trace output to w. Tracing is off by
// default.
func WithDebug(w io.Writer) Option {
	return func(f *File) { f.setDebug(w) }
}

// Layout selects how dataset elements are stored.
type Layout int

const (
	// LayoutAuto lets the builder pick: contiguous, or chunked when
	// chunk dimensions or filters are requested.
	LayoutAuto Layout = iota
	// LayoutCompact stores raw data inside the object header.
	LayoutCompact
	// LayoutContiguous stores raw data in one block.
	LayoutContiguous
	// LayoutChunked stores data as independently filtered tiles
	// indexed by a b-tree.
	LayoutChunked
)

type filterRequest struct {
	id    uint16
	level int
}

type datasetSpec struct {
	value    any
	shape    []uint64
	maxShape []uint64
	layout   Layout
	chunks   []uint64
	filters  []filterRequest
	fill     any

	// assigned during finalization for variable-length payloads
	heapIndices []uint16
}

// DatasetOption configures a dataset added to a build session.
type DatasetOption func(*datasetSpec)

// WithShape declares the dataset dimensions. Without it a slice value
// becomes one-dimensional.
func WithShape(dims ...uint64) DatasetOption {
	return func(s *datasetSpec) { s.shape = append([]uint64(nil), dims...) }
}

// WithMaxShape declares maximum dimensions; use Unlimited for a
// dimension with no bound.
func WithMaxShape(dims ...uint64) DatasetOption {
	return func(s *datasetSpec) { s.maxShape = append([]uint64(nil), dims...) }
}

// Unlimited marks a dimension of WithMaxShape as unbounded.
const Unlimited = ^uint64(0)

// WithLayout forces a storage layout.
func WithLayout(l Layout) DatasetOption {
	return func(s *datasetSpec) { s.layout = l }
}

// WithChunks sets chunk dimensions and implies a chunked layout.
func WithChunks(dims ...uint64) DatasetOption {
	return func(s *datasetSpec) { s.chunks = append([]uint64(nil), dims...) }
}

// WithDeflate adds the deflate filter at the given zlib level (1-9).
// Implies a chunked layout.
func WithDeflate(level int) DatasetOption {
	return func(s *datasetSpec) {
		s.filters = append(s.filters, filterRequest{id: filterDeflate, level: level})
	}
}

// WithLZF adds the LZF filter. Implies a chunked layout.
func WithLZF() DatasetOption {
	return func(s *datasetSpec) {
		s.filters = append(s.filters, filterRequest{id: filterLZF})
	}
}

// WithShuffle adds the byte shuffle filter, normally paired with a
// compressor. Implies a chunked layout.
func WithShuffle() DatasetOption {
	return func(s *datasetSpec) {
		s.filters = append(s.filters, filterRequest{id: filterShuffle})
	}
}

// WithFletcher32 adds a fletcher32 checksum per chunk. Implies a
// chunked layout.
func WithFletcher32() DatasetOption {
	return func(s *datasetSpec) {
		s.filters = append(s.filters, filterRequest{id: filterFletcher32})
	}
}

// WithFillValue records a fill value; its type must match the dataset
// element type.
func WithFillValue(v any) DatasetOption {
	return func(s *datasetSpec) { s.fill = v }
}
