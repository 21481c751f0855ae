package hdf5

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/structures"
	"github.com/scigolib/h5core/internal/utils"
	"github.com/scigolib/h5core/internal/writer"
)

const (
	filterDeflate    = uint16(writer.FilterDeflate)
	filterShuffle    = uint16(writer.FilterShuffle)
	filterFletcher32 = uint16(writer.FilterFletcher32)
	filterLZF        = uint16(writer.FilterLZF)
)

// maxCompactData bounds compact layouts; the raw data has to fit in a
// single 64 KiB header message alongside its framing.
const maxCompactData = 65536 - 512

// encodedData is a dataset or attribute value lowered to wire form.
type encodedData struct {
	dtype *core.Datatype
	dims  []uint64
	raw   []byte
}

// encodeValue lowers a Go value to raw little-endian elements. Slices
// become one-dimensional unless a shape was declared; scalars get a
// scalar dataspace. String slices become variable-length strings whose
// payloads were staged in the session's global heap collection, and
// complex slices become two-member compound elements following the
// h5py r/i field convention.
func (w *fileWriter) encodeValue(spec *datasetSpec) (*encodedData, error) {
	var (
		dt     *core.Datatype
		dims   []uint64
		raw    []byte
		scalar bool
	)

	switch v := spec.value.(type) {
	case []float64:
		dt = core.FloatDatatype(8)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(x))
		}
	case []float32:
		dt = core.FloatDatatype(4)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(x))
		}
	case []int8:
		dt = core.FixedDatatype(1, true)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, len(v))
		for i, x := range v {
			raw[i] = byte(x)
		}
	case []int16:
		dt = core.FixedDatatype(2, true)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 2*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint16(raw[i*2:], uint16(x))
		}
	case []int32:
		dt = core.FixedDatatype(4, true)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[i*4:], uint32(x))
		}
	case []int64:
		dt = core.FixedDatatype(8, true)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[i*8:], uint64(x))
		}
	case []uint8:
		dt = core.FixedDatatype(1, false)
		dims = []uint64{uint64(len(v))}
		raw = append([]byte(nil), v...)
	case []uint16:
		dt = core.FixedDatatype(2, false)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 2*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint16(raw[i*2:], x)
		}
	case []uint32:
		dt = core.FixedDatatype(4, false)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[i*4:], x)
		}
	case []uint64:
		dt = core.FixedDatatype(8, false)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[i*8:], x)
		}
	case []complex64:
		dt = complexDatatype(4)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[i*8:], math.Float32bits(real(x)))
			binary.LittleEndian.PutUint32(raw[i*8+4:], math.Float32bits(imag(x)))
		}
	case []complex128:
		dt = complexDatatype(8)
		dims = []uint64{uint64(len(v))}
		raw = make([]byte, 16*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[i*16:], math.Float64bits(real(x)))
			binary.LittleEndian.PutUint64(raw[i*16+8:], math.Float64bits(imag(x)))
		}
	case []string:
		dt = core.VlenStringDatatype(w.sb.OffsetSize)
		dims = []uint64{uint64(len(v))}
		if len(spec.heapIndices) != len(v) {
			return nil, fmt.Errorf("internal: %d heap indices for %d strings", len(spec.heapIndices), len(v))
		}
		es := int(dt.Size)
		raw = make([]byte, es*len(v))
		for i, s := range v {
			off := i * es
			binary.LittleEndian.PutUint32(raw[off:], uint32(len(s)))
			if s != "" {
				core.EncodeUintN(raw[off+4:], w.heapAddr, w.sb.OffsetSize)
				binary.LittleEndian.PutUint32(raw[off+4+int(w.sb.OffsetSize):], uint32(spec.heapIndices[i]))
			}
		}
	case float64:
		dt = core.FloatDatatype(8)
		raw = binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
		scalar = true
	case float32:
		dt = core.FloatDatatype(4)
		raw = binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
		scalar = true
	case int:
		dt = core.FixedDatatype(8, true)
		raw = binary.LittleEndian.AppendUint64(nil, uint64(int64(v)))
		scalar = true
	case int64:
		dt = core.FixedDatatype(8, true)
		raw = binary.LittleEndian.AppendUint64(nil, uint64(v))
		scalar = true
	case uint64:
		dt = core.FixedDatatype(8, false)
		raw = binary.LittleEndian.AppendUint64(nil, v)
		scalar = true
	case string:
		if v == "" {
			v = "\x00"
		}
		dt = core.StringDatatype(uint32(len(v)))
		raw = []byte(v)
		scalar = true
	default:
		return nil, &UnsupportedDatatypeError{
			Class:  fmt.Sprintf("%T", spec.value),
			Detail: "not a writable value type",
		}
	}

	if scalar {
		if spec.shape != nil {
			return nil, fmt.Errorf("shape declared for a scalar value")
		}
		return &encodedData{dtype: dt, raw: raw}, nil
	}
	if spec.shape != nil {
		n, err := utils.ElementCount(spec.shape)
		if err != nil {
			return nil, err
		}
		if n != dims[0] {
			return nil, fmt.Errorf("shape %v holds %d elements, value holds %d", spec.shape, n, dims[0])
		}
		dims = spec.shape
	}
	return &encodedData{dtype: dt, dims: dims, raw: raw}, nil
}

// complexDatatype builds the compound element type for a complex
// value whose parts are floats of partSize bytes.
func complexDatatype(partSize uint32) *core.Datatype {
	return core.CompoundDatatype(2*partSize, []core.CompoundMember{
		{Name: "r", Offset: 0, Type: core.FloatDatatype(partSize)},
		{Name: "i", Offset: partSize, Type: core.FloatDatatype(partSize)},
	})
}

// stageVlen assigns global heap indices to every variable-length
// payload of a dataset before any address is known.
func (w *fileWriter) stageVlen(spec *datasetSpec) {
	v, ok := spec.value.([]string)
	if !ok {
		return
	}
	spec.heapIndices = make([]uint16, len(v))
	for i, s := range v {
		if s == "" {
			continue
		}
		spec.heapIndices[i] = w.heap.Add([]byte(s))
	}
}

// stageAttrVlen does the same for string-slice attribute values.
func (w *fileWriter) stageAttrVlen(a *buildAttr) {
	v, ok := a.value.([]string)
	if !ok {
		return
	}
	a.heapIndices = make([]uint16, len(v))
	for i, s := range v {
		if s == "" {
			continue
		}
		a.heapIndices[i] = w.heap.Add([]byte(s))
	}
}

// writeDataset serializes one dataset: its raw data under the chosen
// layout, then a version 1 object header. It returns the header
// address.
func (w *fileWriter) writeDataset(path string, n *buildNode) (uint64, error) {
	spec := n.spec
	enc, err := w.encodeValue(spec)
	if err != nil {
		return 0, fmt.Errorf("dataset %s: %w", path, err)
	}

	layout := spec.layout
	if layout == LayoutAuto {
		if len(spec.chunks) > 0 || len(spec.filters) > 0 {
			layout = LayoutChunked
		} else {
			layout = LayoutContiguous
		}
	}
	if layout != LayoutChunked && len(spec.filters) > 0 {
		return 0, fmt.Errorf("dataset %s: filters require a chunked layout", path)
	}

	var msgs []core.HeaderMessage
	msgs = append(msgs, core.HeaderMessage{Type: core.MsgDataspace, Data: core.EncodeDataspace(enc.dims, spec.maxShape)})
	dtBytes, err := core.EncodeDatatype(enc.dtype)
	if err != nil {
		return 0, fmt.Errorf("dataset %s: %w", path, err)
	}
	msgs = append(msgs, core.HeaderMessage{Type: core.MsgDatatype, Data: dtBytes})

	fillBytes, err := w.encodeFill(spec.fill, enc.dtype)
	if err != nil {
		return 0, fmt.Errorf("dataset %s: %w", path, err)
	}
	msgs = append(msgs, core.HeaderMessage{Type: core.MsgFillValue, Data: core.EncodeFillValue(fillBytes)})

	switch layout {
	case LayoutCompact:
		if uint64(len(enc.raw)) > maxCompactData {
			return 0, &LayoutSizeError{Size: uint64(len(enc.raw)), Limit: maxCompactData}
		}
		msgs = append(msgs, core.HeaderMessage{Type: core.MsgDataLayout, Data: core.EncodeLayoutCompact(enc.raw)})

	case LayoutContiguous:
		addr := core.Undefined(w.sb.OffsetSize)
		if len(enc.raw) > 0 {
			if addr, err = w.place(enc.raw); err != nil {
				return 0, err
			}
		}
		msgs = append(msgs, core.HeaderMessage{
			Type: core.MsgDataLayout,
			Data: core.EncodeLayoutContiguous(w.sb, addr, uint64(len(enc.raw))),
		})

	case LayoutChunked:
		pipelineMsg, layoutMsg, err := w.writeChunked(path, spec, enc, fillBytes)
		if err != nil {
			return 0, err
		}
		if pipelineMsg != nil {
			msgs = append(msgs, *pipelineMsg)
		}
		msgs = append(msgs, *layoutMsg)

	default:
		return 0, fmt.Errorf("dataset %s: unknown layout %d", path, layout)
	}

	attrMsgs, err := w.encodeAttributes(path, n.attrs)
	if err != nil {
		return 0, err
	}
	msgs = append(msgs, attrMsgs...)

	hdr, err := core.EncodeObjectHeaderV1(msgs)
	if err != nil {
		return 0, fmt.Errorf("dataset %s: %w", path, err)
	}
	return w.place(hdr)
}

// writeChunked splits the raw data into chunks, pushes each through
// the filter pipeline, writes the chunk B-tree and returns the
// pipeline and layout messages.
func (w *fileWriter) writeChunked(path string, spec *datasetSpec, enc *encodedData, fillBytes []byte) (*core.HeaderMessage, *core.HeaderMessage, error) {
	dims := enc.dims
	if len(dims) == 0 {
		return nil, nil, fmt.Errorf("dataset %s: scalar datasets cannot be chunked", path)
	}
	es := uint64(enc.dtype.Size)
	chunks := spec.chunks
	if len(chunks) == 0 {
		chunks = defaultChunks(dims, es)
	}
	if len(chunks) != len(dims) {
		return nil, nil, fmt.Errorf("dataset %s: chunk rank %d does not match shape rank %d", path, len(chunks), len(dims))
	}
	chunkElems := uint64(1)
	for i, c := range chunks {
		if c == 0 {
			return nil, nil, fmt.Errorf("dataset %s: chunk dimension %d is zero", path, i)
		}
		chunkElems *= c
	}
	if chunkElems*es > utils.MaxChunkSize {
		return nil, nil, fmt.Errorf("dataset %s: chunk of %d bytes exceeds the chunk size limit", path, chunkElems*es)
	}

	pipeline, err := buildPipeline(spec.filters, uint32(es))
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", path, err)
	}

	var entries []structures.ChunkEntry
	for _, origin := range chunkOrigins(dims, chunks) {
		// The chunk buffer is transient: place copies it into the
		// image, so it can go back to the pool each iteration.
		chunkRaw := utils.GetBuffer(int(chunkElems * es))
		clear(chunkRaw)
		prefillBytes(chunkRaw, fillBytes)
		clip, _ := clipExtent(origin, chunks, dims)
		copyRegion(chunkRaw, chunks, zeros(len(dims)), enc.raw, dims, origin, clip, es)

		stored := chunkRaw
		if !pipeline.Empty() {
			if stored, err = pipeline.Apply(chunkRaw); err != nil {
				utils.ReleaseBuffer(chunkRaw)
				return nil, nil, fmt.Errorf("dataset %s: %w", path, err)
			}
		}
		addr, err := w.place(stored)
		utils.ReleaseBuffer(chunkRaw)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, structures.ChunkEntry{
			Offset:  origin,
			Size:    uint32(len(stored)),
			Address: addr,
		})
	}

	btree := structures.EncodeChunkBTreeLeaf(w.sb, entries, dims, chunks)
	btAddr, err := w.place(btree)
	if err != nil {
		return nil, nil, err
	}

	var pipelineMsg *core.HeaderMessage
	if !pipeline.Empty() {
		pipelineMsg = &core.HeaderMessage{
			Type: core.MsgFilterPipeline,
			Data: core.EncodeFilterPipeline(pipeline.Entries()),
		}
	}
	layoutMsg := &core.HeaderMessage{
		Type: core.MsgDataLayout,
		Data: core.EncodeLayoutChunked(w.sb, btAddr, chunks, uint32(es)),
	}
	return pipelineMsg, layoutMsg, nil
}

// buildPipeline orders the requested filters the way they must apply
// on write: shuffle before compression, the checksum last.
func buildPipeline(reqs []filterRequest, elemSize uint32) (*writer.Pipeline, error) {
	rank := func(id uint16) int {
		switch id {
		case filterShuffle:
			return 0
		case filterFletcher32:
			return 2
		default:
			return 1
		}
	}
	ordered := append([]filterRequest(nil), reqs...)
	sort.SliceStable(ordered, func(i, j int) bool { return rank(ordered[i].id) < rank(ordered[j].id) })

	var filters []writer.Filter
	for _, r := range ordered {
		switch r.id {
		case filterShuffle:
			filters = append(filters, writer.NewShuffleFilter(elemSize))
		case filterDeflate:
			if r.level < 1 || r.level > 9 {
				return nil, fmt.Errorf("deflate level %d out of range", r.level)
			}
			filters = append(filters, writer.NewDeflateFilter(r.level))
		case filterLZF:
			filters = append(filters, writer.NewLZFFilter())
		case filterFletcher32:
			filters = append(filters, writer.NewFletcher32Filter())
		default:
			return nil, &UnsupportedFilterError{ID: r.id}
		}
	}
	return writer.NewPipeline(filters...), nil
}

// encodeFill lowers a fill value to the dataset's element bytes.
func (w *fileWriter) encodeFill(fill any, dt *core.Datatype) ([]byte, error) {
	if fill == nil {
		return nil, nil
	}
	enc, err := w.encodeValue(&datasetSpec{value: fill})
	if err != nil {
		return nil, fmt.Errorf("fill value: %w", err)
	}
	if len(enc.dims) != 0 {
		return nil, fmt.Errorf("fill value must be a scalar, got %T", fill)
	}
	if enc.dtype.Class != dt.Class || enc.dtype.Size != dt.Size {
		return nil, fmt.Errorf("fill value type %s(%d) does not match dataset type %s(%d)",
			enc.dtype.Class, enc.dtype.Size, dt.Class, dt.Size)
	}
	return enc.raw, nil
}

func prefillBytes(raw, fill []byte) {
	if len(fill) == 0 || allZero(fill) {
		return
	}
	for off := 0; off+len(fill) <= len(raw); off += len(fill) {
		copy(raw[off:], fill)
	}
}

// defaultChunkTarget caps auto-selected chunks at roughly 1 MiB, a
// good balance between per-chunk overhead and partial-read waste.
const defaultChunkTarget = 1 << 20

// defaultChunks picks chunk dimensions when the caller gave none: the
// full extent, with the slowest-varying dimensions halved until a
// chunk fits the target.
func defaultChunks(dims []uint64, elemSize uint64) []uint64 {
	chunks := append([]uint64(nil), dims...)
	size := func() uint64 {
		n := elemSize
		for _, c := range chunks {
			n *= c
		}
		return n
	}
	for dim := 0; dim < len(chunks) && size() > defaultChunkTarget; {
		if chunks[dim] <= 1 {
			dim++
			continue
		}
		chunks[dim] = (chunks[dim] + 1) / 2
	}
	return chunks
}

// chunkOrigins enumerates chunk origins over a dataset extent in
// row-major order.
func chunkOrigins(dims, chunks []uint64) [][]uint64 {
	for _, d := range dims {
		if d == 0 {
			return nil
		}
	}
	var origins [][]uint64
	origin := make([]uint64, len(dims))
	for {
		origins = append(origins, append([]uint64(nil), origin...))
		dim := len(dims) - 1
		for dim >= 0 {
			origin[dim] += chunks[dim]
			if origin[dim] < dims[dim] {
				break
			}
			origin[dim] = 0
			dim--
		}
		if dim < 0 {
			return origins
		}
	}
}
