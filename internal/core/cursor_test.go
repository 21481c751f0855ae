package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderReaderRoundtrip(t *testing.T) {
	enc := NewEncoder(8, 8)
	enc.Uint8(0x7F)
	enc.Uint16(0xBEEF)
	enc.Uint32(0xDEADBEEF)
	enc.Uint64(0x0102030405060708)
	enc.Offset(1024)
	enc.Length(4096)
	enc.Raw([]byte("HEAP"))
	enc.Pad8()
	require.Equal(t, 0, enc.Len()%8)

	r := NewReader(bytes.NewReader(enc.Bytes()), 0, 8, 8)

	v8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x7F), v8)

	v16, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v16)

	v32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v32)

	v64, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v64)

	off, err := r.ReadOffset()
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), off)

	length, err := r.ReadLength()
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), length)

	sig, err := r.ReadBytes(4)
	require.NoError(t, err)
	assert.Equal(t, []byte("HEAP"), sig)
}

func TestReaderNarrowWidths(t *testing.T) {
	enc := NewEncoder(4, 2)
	enc.Offset(0x11223344)
	enc.Length(0x5566)

	r := NewReader(bytes.NewReader(enc.Bytes()), 0, 4, 2)
	off, err := r.ReadOffset()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x11223344), off)

	length, err := r.ReadLength()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5566), length)
	assert.Equal(t, uint8(4), r.OffsetSize())
	assert.Equal(t, uint8(2), r.LengthSize())
}

func TestReaderPositioning(t *testing.T) {
	data := make([]byte, 32)
	data[20] = 0xAB

	r := NewReader(bytes.NewReader(data), 16, 8, 8)
	assert.Equal(t, uint64(16), r.Pos())

	r.Skip(3)
	r.Align8()
	assert.Equal(t, uint64(24), r.Pos())

	clone := r.At(20)
	b, err := clone.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), b)
	// the clone advanced, the original did not
	assert.Equal(t, uint64(24), r.Pos())
}

func TestReaderShortRead(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}), 0, 8, 8)
	_, err := r.ReadUint32()
	assert.Error(t, err)

	_, err = r.ReadUintN(0)
	assert.Error(t, err)
	_, err = r.ReadUintN(9)
	assert.Error(t, err)
}

func TestUintNCodec(t *testing.T) {
	for width := uint8(1); width <= 8; width++ {
		v := uint64(0x1122334455667788) & (Undefined(width))
		b := make([]byte, width)
		EncodeUintN(b, v, width)
		assert.Equal(t, v, DecodeUintN(b, width), "width %d", width)
	}
}

func TestUndefinedSentinels(t *testing.T) {
	assert.Equal(t, uint64(0xFF), Undefined(1))
	assert.Equal(t, uint64(0xFFFFFFFF), Undefined(4))
	assert.Equal(t, ^uint64(0), Undefined(8))

	assert.True(t, UndefinedAddress(0xFFFFFFFF, 4))
	assert.False(t, UndefinedAddress(0xFFFFFFFF, 8))
	assert.True(t, UndefinedAddress(^uint64(0), 8))
}

func TestBaseReaderAt(t *testing.T) {
	raw := make([]byte, 600)
	copy(raw[512:], []byte("data"))

	shifted := NewBaseReaderAt(bytes.NewReader(raw), 512)
	buf := make([]byte, 4)
	_, err := shifted.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), buf)

	// zero base returns the source untouched
	src := bytes.NewReader(raw)
	assert.Equal(t, src, NewBaseReaderAt(src, 0))
}
