package hdf5

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildImage runs fn against a fresh session and finalizes it.
func buildImage(t *testing.T, fn func(b *BuildSession)) []byte {
	t.Helper()
	b := NewFileBuilder()
	fn(b)
	img, err := b.Finalize()
	require.NoError(t, err)
	return img
}

func openImage(t *testing.T, img []byte) *File {
	t.Helper()
	f, err := FromBytes(img)
	require.NoError(t, err)
	return f
}

func TestRoundtripContiguousFloat64(t *testing.T) {
	want := []float64{1.5, -2.25, 3, 4.125, 5}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/data", want))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/data")
	require.NoError(t, err)

	assert.Equal(t, []uint64{5}, d.Shape())
	assert.Equal(t, LayoutContiguous, d.Layout())
	assert.Empty(t, d.Filters())

	dt := d.Datatype()
	assert.Equal(t, "float", dt.Class)
	assert.Equal(t, uint32(8), dt.Size)
	assert.True(t, dt.LittleEndian)

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRoundtripIntegerTypes(t *testing.T) {
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/i8", []int8{-1, 0, 127}))
		require.NoError(t, b.AddDataset("/i16", []int16{-300, 300}))
		require.NoError(t, b.AddDataset("/i32", []int32{1, -2, 3}))
		require.NoError(t, b.AddDataset("/i64", []int64{1 << 40, -(1 << 40)}))
		require.NoError(t, b.AddDataset("/u8", []uint8{0, 255}))
		require.NoError(t, b.AddDataset("/u16", []uint16{65535}))
		require.NoError(t, b.AddDataset("/u32", []uint32{1, 2}))
		require.NoError(t, b.AddDataset("/u64", []uint64{1 << 60}))
		require.NoError(t, b.AddDataset("/f32", []float32{0.5, -0.5}))
	})

	f := openImage(t, img)
	read := func(path string) any {
		d, err := f.Dataset(path)
		require.NoError(t, err)
		v, err := d.Read()
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, []int8{-1, 0, 127}, read("/i8"))
	assert.Equal(t, []int16{-300, 300}, read("/i16"))
	assert.Equal(t, []int32{1, -2, 3}, read("/i32"))
	assert.Equal(t, []int64{1 << 40, -(1 << 40)}, read("/i64"))
	assert.Equal(t, []uint8{0, 255}, read("/u8"))
	assert.Equal(t, []uint16{65535}, read("/u16"))
	assert.Equal(t, []uint32{1, 2}, read("/u32"))
	assert.Equal(t, []uint64{1 << 60}, read("/u64"))
	assert.Equal(t, []float32{0.5, -0.5}, read("/f32"))
}

func TestRoundtripScalarDataset(t *testing.T) {
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/pi", 3.14159))
		require.NoError(t, b.AddDataset("/answer", 42))
		require.NoError(t, b.AddDataset("/label", "calibrated"))
	})

	f := openImage(t, img)

	pi, err := f.Dataset("/pi")
	require.NoError(t, err)
	assert.Empty(t, pi.Shape())
	v, err := pi.Read()
	require.NoError(t, err)
	assert.Equal(t, []float64{3.14159}, v)

	// scalar ints are widened to 8 bytes on write
	answer, err := f.Dataset("/answer")
	require.NoError(t, err)
	v, err = answer.Read()
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, v)

	label, err := f.Dataset("/label")
	require.NoError(t, err)
	v, err = label.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"calibrated"}, v)
}

func TestRoundtripShaped2D(t *testing.T) {
	want := make([]float64, 20)
	for i := range want {
		want[i] = float64(i) * 0.5
	}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/grid", want, WithShape(4, 5)))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/grid")
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5}, d.Shape())

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// row-major slice: rows 1..2, cols 2..4
	slice, err := d.ReadSlice([]uint64{1, 2}, []uint64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{
		want[1*5+2], want[1*5+3], want[1*5+4],
		want[2*5+2], want[2*5+3], want[2*5+4],
	}, slice)
}

func TestRoundtripChunkedDeflate(t *testing.T) {
	const rows, cols = 100, 100
	ramp := make([]float64, rows*cols)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/ramp", ramp,
			WithShape(rows, cols), WithChunks(25, 25), WithDeflate(6)))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/ramp")
	require.NoError(t, err)

	assert.Equal(t, LayoutChunked, d.Layout())
	assert.Equal(t, []uint64{25, 25}, d.ChunkShape())
	filters := d.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, "deflate", filters[0].Name)

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, ramp, got)

	// region crossing only the first chunk
	slice, err := d.ReadSlice([]uint64{10, 10}, []uint64{5, 5})
	require.NoError(t, err)
	want := make([]float64, 0, 25)
	for r := uint64(10); r < 15; r++ {
		for c := uint64(10); c < 15; c++ {
			want = append(want, ramp[r*cols+c])
		}
	}
	assert.Equal(t, want, slice)

	// region spanning all four chunk quadrants
	slice, err = d.ReadSlice([]uint64{20, 20}, []uint64{10, 10})
	require.NoError(t, err)
	want = want[:0]
	for r := uint64(20); r < 30; r++ {
		for c := uint64(20); c < 30; c++ {
			want = append(want, ramp[r*cols+c])
		}
	}
	assert.Equal(t, want, slice)
}

func TestDeflateShrinksConstantData(t *testing.T) {
	flat := make([]float64, 10000)
	for i := range flat {
		flat[i] = 1.5
	}
	plain := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/d", flat))
	})
	packed := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/d", flat, WithChunks(10000), WithDeflate(6)))
	})
	assert.Less(t, len(packed), len(plain))
}

func TestRoundtripShuffleDeflateFletcher(t *testing.T) {
	data := make([]int32, 500)
	for i := range data {
		data[i] = int32(i % 7)
	}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/d", data,
			WithChunks(128), WithShuffle(), WithDeflate(9), WithFletcher32()))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/d")
	require.NoError(t, err)

	// pipeline order on write: shuffle, compressor, checksum
	filters := d.Filters()
	require.Len(t, filters, 3)
	assert.Equal(t, "shuffle", filters[0].Name)
	assert.Equal(t, "deflate", filters[1].Name)
	assert.Equal(t, "fletcher32", filters[2].Name)

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRoundtripLZF(t *testing.T) {
	data := make([]uint16, 400)
	for i := range data {
		data[i] = uint16(i / 4)
	}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/d", data, WithChunks(100), WithLZF()))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/d")
	require.NoError(t, err)
	filters := d.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, uint16(32000), filters[0].ID)

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRoundtripCompactLayout(t *testing.T) {
	want := []int32{7, 8, 9}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/small", want, WithLayout(LayoutCompact)))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/small")
	require.NoError(t, err)
	assert.Equal(t, LayoutCompact, d.Layout())

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	slice, err := d.ReadSlice([]uint64{1}, []uint64{2})
	require.NoError(t, err)
	assert.Equal(t, []int32{8, 9}, slice)
}

func TestRoundtripVlenStrings(t *testing.T) {
	want := []string{"alpha", "", "a considerably longer string payload", "z"}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/names", want))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/names")
	require.NoError(t, err)
	assert.True(t, d.Datatype().VariableLength)

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRoundtripVlenStringsAcrossDatasets(t *testing.T) {
	// both datasets share the single global heap collection
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/a", []string{"one", "two"}))
		require.NoError(t, b.AddDataset("/b", []string{"three"}))
	})

	f := openImage(t, img)
	for path, want := range map[string][]string{
		"/a": {"one", "two"},
		"/b": {"three"},
	} {
		d, err := f.Dataset(path)
		require.NoError(t, err)
		got, err := d.Read()
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
}

func TestReadChunkedVisitsClippedEdges(t *testing.T) {
	data := make([]float64, 10)
	for i := range data {
		data[i] = float64(i)
	}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/d", data,
			WithChunks(4), WithFillValue(9.5)))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/d")
	require.NoError(t, err)

	var offsets [][]uint64
	var chunks [][]float64
	err = d.ReadChunked(func(offset []uint64, v any) error {
		offsets = append(offsets, append([]uint64(nil), offset...))
		chunks = append(chunks, v.([]float64))
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, [][]uint64{{0}, {4}, {8}}, offsets)
	assert.Equal(t, []float64{0, 1, 2, 3}, chunks[0])
	assert.Equal(t, []float64{4, 5, 6, 7}, chunks[1])
	// the edge chunk is clipped to the dataset extent, so the fill
	// padding never leaks out
	assert.Equal(t, []float64{8, 9}, chunks[2])
}

func TestReadChunkedRequiresChunkedLayout(t *testing.T) {
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/d", []float64{1, 2}))
	})
	f := openImage(t, img)
	d, err := f.Dataset("/d")
	require.NoError(t, err)

	err = d.ReadChunked(func([]uint64, any) error { return nil })
	var ufe *UnsupportedFeatureError
	require.ErrorAs(t, err, &ufe)
}

func TestRoundtripMaxShape(t *testing.T) {
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/d", []int64{1, 2, 3},
			WithChunks(2), WithMaxShape(Unlimited)))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/d")
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, d.Shape())
	require.Len(t, d.MaxShape(), 1)
	assert.Equal(t, Unlimited, d.MaxShape()[0])
}

func TestUserBlockIsTransparent(t *testing.T) {
	want := []float64{10, 20, 30}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/d", want))
	})

	// a user block prefixes the image; the signature scan finds the
	// superblock at 512 and rebases every address
	prefixed := append(make([]byte, 512), img...)
	f := openImage(t, prefixed)

	d, err := f.Dataset("/d")
	require.NoError(t, err)
	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRoundtripComplex(t *testing.T) {
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/z128", []complex128{1.5 - 2i, 0 + 3.25i}))
		require.NoError(t, b.AddDataset("/z64", []complex64{2 + 1i}))
	})
	f := openImage(t, img)

	d, err := f.Dataset("/z128")
	require.NoError(t, err)
	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"r": 1.5, "i": -2.0},
		{"r": 0.0, "i": 3.25},
	}, got)

	d, err = f.Dataset("/z64")
	require.NoError(t, err)
	got, err = d.Read()
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"r": float32(2), "i": float32(1)}}, got)
}

func TestRoundtripV2Superblock(t *testing.T) {
	want := []int32{7, 8, 9}
	b := NewFileBuilder(WithV2Superblock())
	require.NoError(t, b.AddDataset("/g/d", want))
	require.NoError(t, b.Attr("/g", "note", "compact header root"))
	img, err := b.Finalize()
	require.NoError(t, err)

	f := openImage(t, img)
	assert.Equal(t, uint8(2), f.sb.Version)

	d, err := f.Dataset("/g/d")
	require.NoError(t, err)
	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	g, err := f.Group("/g")
	require.NoError(t, err)
	a, err := g.Attr("note")
	require.NoError(t, err)
	assert.Equal(t, "compact header root", a.Value())
}

func TestChunkedDefaultChunkShape(t *testing.T) {
	// chunked layout without declared chunk dimensions splits the
	// slowest-varying dimension until a chunk fits in about a MiB
	want := make([]int16, 1<<20)
	for i := range want {
		want[i] = int16(i)
	}
	img := buildImage(t, func(b *BuildSession) {
		require.NoError(t, b.AddDataset("/d", want, WithLayout(LayoutChunked)))
	})

	f := openImage(t, img)
	d, err := f.Dataset("/d")
	require.NoError(t, err)
	assert.Equal(t, LayoutChunked, d.Layout())
	assert.Equal(t, []uint64{1 << 19}, d.ChunkShape())

	got, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
