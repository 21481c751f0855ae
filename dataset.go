package hdf5

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/structures"
	"github.com/scigolib/h5core/internal/utils"
	"github.com/scigolib/h5core/internal/writer"
)

// Dataset is a handle on a dataset object.
type Dataset struct {
	f      *File
	path   string
	header *core.ObjectHeader

	dtype    *core.Datatype
	space    *core.Dataspace
	layout   *core.DataLayout
	fill     *core.FillValue
	pipeline *writer.Pipeline
}

func (f *File) newDataset(path string, oh *core.ObjectHeader) (*Dataset, error) {
	d := &Dataset{f: f, path: path, header: oh}

	msg := oh.Find(core.MsgDatatype)
	if msg == nil {
		return nil, formatErr(oh.Address, "dataset without datatype message", nil)
	}
	dt, _, err := core.ParseDatatype(msg.Data)
	if err != nil {
		return nil, datatypeErr(oh.Address, "datatype message", err)
	}
	d.dtype = dt

	msg = oh.Find(core.MsgDataspace)
	if msg == nil {
		return nil, formatErr(oh.Address, "dataset without dataspace message", nil)
	}
	if d.space, err = core.ParseDataspace(msg.Data); err != nil {
		return nil, formatErr(oh.Address, "dataspace message", err)
	}

	msg = oh.Find(core.MsgDataLayout)
	if msg == nil {
		return nil, formatErr(oh.Address, "dataset without layout message", nil)
	}
	if d.layout, err = core.ParseDataLayout(msg.Data, f.sb); err != nil {
		return nil, formatErr(oh.Address, "data layout message", err)
	}

	if msg = oh.Find(core.MsgFillValue); msg != nil {
		if d.fill, err = core.ParseFillValue(msg.Data); err != nil {
			return nil, formatErr(oh.Address, "fill value message", err)
		}
	} else if msg = oh.Find(core.MsgFillValueOld); msg != nil {
		if d.fill, err = core.ParseOldFillValue(msg.Data); err != nil {
			return nil, formatErr(oh.Address, "fill value message", err)
		}
	}

	if msg = oh.Find(core.MsgFilterPipeline); msg != nil {
		entries, err := core.ParseFilterPipeline(msg.Data)
		if err != nil {
			return nil, formatErr(oh.Address, "filter pipeline message", err)
		}
		d.pipeline, err = writer.Resolve(entries)
		if err != nil {
			var unk *writer.UnknownFilterError
			if errors.As(err, &unk) {
				return nil, &UnsupportedFilterError{ID: uint16(unk.ID), Name: unk.Name}
			}
			return nil, err
		}
	}
	return d, nil
}

// Path returns the dataset's absolute path.
func (d *Dataset) Path() string { return d.path }

// Name returns the final path segment.
func (d *Dataset) Name() string {
	return d.path[strings.LastIndexByte(d.path, '/')+1:]
}

// Shape returns the dataset dimensions; a scalar dataset has none.
func (d *Dataset) Shape() []uint64 {
	return append([]uint64(nil), d.space.Dims...)
}

// MaxShape returns the maximum dimensions, Unlimited where unbounded.
// It returns nil when the maximum equals the current shape.
func (d *Dataset) MaxShape() []uint64 {
	return append([]uint64(nil), d.space.MaxDims...)
}

// DatatypeInfo is a shallow description of a dataset's element type.
type DatatypeInfo struct {
	Class          string
	Size           uint32
	Signed         bool
	LittleEndian   bool
	VariableLength bool
}

// Datatype describes the element type.
func (d *Dataset) Datatype() DatatypeInfo {
	return DatatypeInfo{
		Class:          d.dtype.Class.String(),
		Size:           d.dtype.Size,
		Signed:         d.dtype.Signed,
		LittleEndian:   d.dtype.LittleEndian,
		VariableLength: d.dtype.Class == core.ClassVlen,
	}
}

// Layout reports the storage layout.
func (d *Dataset) Layout() Layout {
	switch d.layout.Class {
	case core.LayoutCompact:
		return LayoutCompact
	case core.LayoutChunked:
		return LayoutChunked
	default:
		return LayoutContiguous
	}
}

// ChunkShape returns the chunk dimensions of a chunked dataset, nil
// otherwise.
func (d *Dataset) ChunkShape() []uint64 {
	return append([]uint64(nil), d.layout.ChunkDims...)
}

// FilterInfo describes one entry of the dataset's filter pipeline.
type FilterInfo struct {
	ID       uint16
	Name     string
	Optional bool
}

// Filters lists the filter pipeline in application order.
func (d *Dataset) Filters() []FilterInfo {
	if d.pipeline == nil {
		return nil
	}
	entries := d.pipeline.Entries()
	infos := make([]FilterInfo, len(entries))
	for i, e := range entries {
		infos[i] = FilterInfo{ID: e.ID, Name: e.Name, Optional: e.Optional()}
	}
	return infos
}

// Attributes returns the dataset's attributes with decoded values.
func (d *Dataset) Attributes() ([]Attribute, error) {
	return d.f.attributes(d.header)
}

// Attr returns the named attribute.
func (d *Dataset) Attr(name string) (Attribute, error) {
	return d.f.attribute(d.header, d.path, name)
}

// Read materializes the whole dataset as a flat row-major slice whose
// element type follows the datatype (see the decoding table in
// internal/core).
func (d *Dataset) Read() (any, error) {
	count, err := d.space.NumElements()
	if err != nil {
		return nil, err
	}
	raw, err := d.readAll(count)
	if err != nil {
		return nil, err
	}
	return core.DecodeElements(raw, d.dtype, count, d.f.sb.OffsetSize, d.f)
}

// ReadSlice reads a rectangular region, start and count per
// dimension, as a flat row-major slice. Chunked datasets touch only
// the chunks the region overlaps.
func (d *Dataset) ReadSlice(start, count []uint64) (any, error) {
	dims := d.space.Dims
	if len(start) != len(dims) || len(count) != len(dims) {
		return nil, fmt.Errorf("slice rank %d/%d does not match dataset rank %d",
			len(start), len(count), len(dims))
	}
	if err := utils.ValidateSliceBounds(start, count, dims); err != nil {
		return nil, err
	}
	outCount, err := utils.ElementCount(count)
	if err != nil {
		return nil, err
	}
	es := uint64(d.dtype.Size)
	out := make([]byte, outCount*es)

	switch d.layout.Class {
	case core.LayoutCompact:
		full, err := d.space.NumElements()
		if err != nil {
			return nil, err
		}
		raw, err := d.readAll(full)
		if err != nil {
			return nil, err
		}
		copyRegion(out, count, zeros(len(dims)), raw, dims, start, count, es)
	case core.LayoutContiguous:
		if core.UndefinedAddress(d.layout.Address, d.f.sb.OffsetSize) {
			d.prefill(out)
			break
		}
		if err := d.readContiguousRegion(out, start, count); err != nil {
			return nil, err
		}
	case core.LayoutChunked:
		d.prefill(out)
		if err := d.readChunkedRegion(out, start, count); err != nil {
			return nil, err
		}
	default:
		return nil, &UnsupportedFeatureError{Feature: "layout class " + d.layout.Class.String()}
	}
	return core.DecodeElements(out, d.dtype, outCount, d.f.sb.OffsetSize, d.f)
}

// ReadChunked decodes a chunked dataset one chunk at a time, calling
// fn with the chunk's element offset and its decoded data, clipped to
// the dataset bounds for edge chunks. Chunks arrive in index order.
func (d *Dataset) ReadChunked(fn func(offset []uint64, data any) error) error {
	if d.layout.Class != core.LayoutChunked {
		return &UnsupportedFeatureError{Feature: "chunk iteration over " + d.layout.Class.String() + " layout"}
	}
	dims := d.space.Dims
	chunkDims := d.layout.ChunkDims
	es := uint64(d.dtype.Size)
	entries, err := d.chunkEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		chunk, err := d.readChunk(e)
		if err != nil {
			return err
		}
		clip, ok := clipExtent(e.Offset, chunkDims, dims)
		if !ok {
			continue
		}
		n := uint64(1)
		for _, c := range clip {
			n *= c
		}
		region := make([]byte, n*es)
		copyRegion(region, clip, zeros(len(dims)), chunk, chunkDims, zeros(len(dims)), clip, es)
		data, err := core.DecodeElements(region, d.dtype, n, d.f.sb.OffsetSize, d.f)
		if err != nil {
			return err
		}
		if err := fn(append([]uint64(nil), e.Offset...), data); err != nil {
			return err
		}
	}
	return nil
}

// readAll assembles the full raw element buffer for any layout.
func (d *Dataset) readAll(count uint64) ([]byte, error) {
	size, err := utils.SafeMultiply(count, uint64(d.dtype.Size))
	if err != nil {
		return nil, err
	}
	switch d.layout.Class {
	case core.LayoutCompact:
		if uint64(len(d.layout.CompactData)) < size {
			return nil, formatErr(d.header.Address, "compact data shorter than dataspace", nil)
		}
		return d.layout.CompactData[:size], nil

	case core.LayoutContiguous:
		raw := make([]byte, size)
		if core.UndefinedAddress(d.layout.Address, d.f.sb.OffsetSize) {
			// Never allocated; every element reads as the fill value.
			d.prefill(raw)
			return raw, nil
		}
		r := d.f.sb.Reader(d.f.src, d.layout.Address)
		b, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, formatErr(d.layout.Address, "contiguous data", err)
		}
		copy(raw, b)
		return raw, nil

	case core.LayoutChunked:
		raw := make([]byte, size)
		d.prefill(raw)
		entries, err := d.chunkEntries()
		if err != nil {
			return nil, err
		}
		dims := d.space.Dims
		chunkDims := d.layout.ChunkDims
		es := uint64(d.dtype.Size)
		for _, e := range entries {
			chunk, err := d.readChunk(e)
			if err != nil {
				return nil, err
			}
			clip, ok := clipExtent(e.Offset, chunkDims, dims)
			if !ok {
				continue
			}
			copyRegion(raw, dims, e.Offset, chunk, chunkDims, zeros(len(dims)), clip, es)
		}
		return raw, nil

	default:
		return nil, &UnsupportedFeatureError{Feature: "layout class " + d.layout.Class.String()}
	}
}

func (d *Dataset) chunkEntries() ([]structures.ChunkEntry, error) {
	if d.layout.Version >= 4 {
		return nil, &UnsupportedFeatureError{Feature: "version 4 chunk indexes"}
	}
	if core.UndefinedAddress(d.layout.Address, d.f.sb.OffsetSize) {
		return nil, nil
	}
	entries, err := structures.CollectChunks(d.f.src, d.layout.Address, len(d.space.Dims), d.f.sb)
	if err != nil {
		return nil, formatErr(d.layout.Address, "chunk B-tree", err)
	}
	return entries, nil
}

// readChunk loads one stored chunk and reverses the filter pipeline.
func (d *Dataset) readChunk(e structures.ChunkEntry) ([]byte, error) {
	if uint64(e.Size) > utils.MaxChunkSize {
		return nil, formatErr(e.Address, "chunk larger than the size limit", nil)
	}
	r := d.f.sb.Reader(d.f.src, e.Address)
	stored, err := r.ReadBytes(int(e.Size))
	if err != nil {
		return nil, formatErr(e.Address, "chunk data", err)
	}
	if d.pipeline.Empty() {
		return stored, nil
	}
	data, err := d.pipeline.Remove(stored, e.FilterMask)
	if err != nil {
		return nil, formatErr(e.Address, "filter pipeline", err)
	}
	want := uint64(d.dtype.Size)
	for _, c := range d.layout.ChunkDims {
		want *= c
	}
	if uint64(len(data)) < want {
		return nil, formatErr(e.Address, "chunk shorter than its extent after filtering", nil)
	}
	return data, nil
}

func (d *Dataset) readContiguousRegion(out []byte, start, count []uint64) error {
	dims := d.space.Dims
	es := uint64(d.dtype.Size)
	strides := elementStrides(dims)

	if len(dims) == 0 {
		r := d.f.sb.Reader(d.f.src, d.layout.Address)
		b, err := r.ReadBytes(int(es))
		if err != nil {
			return formatErr(d.layout.Address, "contiguous data", err)
		}
		copy(out, b)
		return nil
	}

	last := len(dims) - 1
	run := int(count[last] * es)
	dst := out
	var walk func(dim int, srcOff uint64) error
	walk = func(dim int, srcOff uint64) error {
		if dim == last {
			addr := d.layout.Address + (srcOff+start[last])*es
			r := d.f.sb.Reader(d.f.src, addr)
			b, err := r.ReadBytes(run)
			if err != nil {
				return formatErr(addr, "contiguous data", err)
			}
			copy(dst, b)
			dst = dst[run:]
			return nil
		}
		for i := uint64(0); i < count[dim]; i++ {
			if err := walk(dim+1, srcOff+(start[dim]+i)*strides[dim]); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(0, 0)
}

func (d *Dataset) readChunkedRegion(out []byte, start, count []uint64) error {
	dims := d.space.Dims
	chunkDims := d.layout.ChunkDims
	es := uint64(d.dtype.Size)
	entries, err := d.chunkEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		lo, extent, ok := intersect(e.Offset, chunkDims, start, count, dims)
		if !ok {
			continue
		}
		chunk, err := d.readChunk(e)
		if err != nil {
			return err
		}
		srcPos := make([]uint64, len(dims))
		dstPos := make([]uint64, len(dims))
		for i := range dims {
			srcPos[i] = lo[i] - e.Offset[i]
			dstPos[i] = lo[i] - start[i]
		}
		copyRegion(out, count, dstPos, chunk, chunkDims, srcPos, extent, es)
	}
	return nil
}

// prefill writes the fill value over a raw element buffer; without a
// defined fill the buffer stays zeroed.
func (d *Dataset) prefill(raw []byte) {
	if d.fill == nil || !d.fill.Defined || len(d.fill.Value) == 0 {
		return
	}
	fv := d.fill.Value
	if allZero(fv) {
		return
	}
	for off := 0; off+len(fv) <= len(raw); off += len(fv) {
		copy(raw[off:], fv)
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func zeros(n int) []uint64 { return make([]uint64, n) }

// elementStrides returns the row-major stride of each dimension in
// elements.
func elementStrides(dims []uint64) []uint64 {
	strides := make([]uint64, len(dims))
	s := uint64(1)
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = s
		s *= dims[i]
	}
	return strides
}

// clipExtent bounds a chunk-sized block at offset to the dataset
// dimensions. A block entirely outside reports false.
func clipExtent(offset, blockDims, dims []uint64) ([]uint64, bool) {
	clip := make([]uint64, len(dims))
	for i := range dims {
		if offset[i] >= dims[i] {
			return nil, false
		}
		clip[i] = blockDims[i]
		if offset[i]+clip[i] > dims[i] {
			clip[i] = dims[i] - offset[i]
		}
	}
	return clip, true
}

// intersect computes the overlap of a chunk at chunkOff with the
// requested region, clipped to the dataset bounds. It returns the
// overlap origin in dataset coordinates and its extent.
func intersect(chunkOff, chunkDims, start, count, dims []uint64) (lo, extent []uint64, ok bool) {
	lo = make([]uint64, len(dims))
	extent = make([]uint64, len(dims))
	for i := range dims {
		cLo, cHi := chunkOff[i], chunkOff[i]+chunkDims[i]
		rLo, rHi := start[i], start[i]+count[i]
		if cHi > dims[i] {
			cHi = dims[i]
		}
		if cLo > rLo {
			rLo = cLo
		}
		if cHi < rHi {
			rHi = cHi
		}
		if rLo >= rHi {
			return nil, nil, false
		}
		lo[i] = rLo
		extent[i] = rHi - rLo
	}
	return lo, extent, true
}

// copyRegion copies a count-shaped block between two row-major
// buffers: from src at srcPos (src laid out as srcDims) into dst at
// dstPos (dst laid out as dstDims). elemSize is in bytes.
func copyRegion(dst []byte, dstDims, dstPos []uint64, src []byte, srcDims, srcPos, count []uint64, elemSize uint64) {
	if len(count) == 0 {
		copy(dst[:elemSize], src[:elemSize])
		return
	}
	dstStrides := elementStrides(dstDims)
	srcStrides := elementStrides(srcDims)
	last := len(count) - 1

	var rec func(dim int, dstBase, srcBase uint64)
	rec = func(dim int, dstBase, srcBase uint64) {
		if dim == last {
			do := (dstBase + dstPos[last]) * elemSize
			so := (srcBase + srcPos[last]) * elemSize
			copy(dst[do:do+count[last]*elemSize], src[so:so+count[last]*elemSize])
			return
		}
		for i := uint64(0); i < count[dim]; i++ {
			rec(dim+1, dstBase+(dstPos[dim]+i)*dstStrides[dim], srcBase+(srcPos[dim]+i)*srcStrides[dim])
		}
	}
	rec(0, 0, 0)
}
