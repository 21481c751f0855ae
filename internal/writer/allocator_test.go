package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorSequential(t *testing.T) {
	a := NewAllocator(96)
	assert.Equal(t, uint64(96), a.EOF())

	addr1, err := a.Allocate(40)
	require.NoError(t, err)
	assert.Equal(t, uint64(96), addr1)

	addr2, err := a.Allocate(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(136), addr2)
	assert.Equal(t, uint64(144), a.EOF())
}

func TestAllocatorZeroSize(t *testing.T) {
	_, err := NewAllocator(0).Allocate(0)
	assert.Error(t, err)
}

func TestAllocatorOverflow(t *testing.T) {
	a := NewAllocator(^uint64(0) - 10)
	_, err := a.Allocate(100)
	assert.Error(t, err)
}

func TestAllocatorAligned(t *testing.T) {
	a := NewAllocator(96)
	_, err := a.Allocate(3)
	require.NoError(t, err)

	addr, err := a.AllocateAligned(16, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(104), addr)
	assert.Equal(t, uint64(120), a.EOF())

	_, err = a.AllocateAligned(8, 3)
	assert.Error(t, err)
}

func TestMemFile(t *testing.T) {
	m := NewMemFile()
	assert.Equal(t, 0, m.Len())

	n, err := m.WriteAt([]byte("hello"), 10)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 15, m.Len())

	// the gap before the write reads back as zeros
	buf := make([]byte, 15)
	n, err = m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Equal(t, "hello", string(buf[10:]))
	assert.Equal(t, make([]byte, 10), buf[:10])

	// overwrite in place
	_, err = m.WriteAt([]byte("H"), 10)
	require.NoError(t, err)
	assert.Equal(t, byte('H'), m.Bytes()[10])

	_, err = m.ReadAt(make([]byte, 4), 100)
	assert.Error(t, err)

	_, err = m.WriteAt([]byte("x"), -1)
	assert.Error(t, err)
}
