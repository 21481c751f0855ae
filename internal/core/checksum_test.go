package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup3Empty(t *testing.T) {
	// with no tail bytes the initial value falls straight through
	assert.Equal(t, uint32(0xdeadbeef), Lookup3(nil))
	assert.Equal(t, uint32(0xdeadbeef), Lookup3([]byte{}))
}

func TestLookup3Deterministic(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog")
	first := Lookup3(data)
	require.Equal(t, first, Lookup3(data))

	// single-bit change must move the hash
	mutated := append([]byte(nil), data...)
	mutated[0] ^= 0x01
	assert.NotEqual(t, first, Lookup3(mutated))
}

func TestLookup3TailSizes(t *testing.T) {
	// every remainder class 0..12 plus a multi-block input
	seen := make(map[uint32]bool)
	for n := 1; n <= 32; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i + 1)
		}
		h := Lookup3(data)
		assert.False(t, seen[h], "collision at length %d", n)
		seen[h] = true
	}
}

func TestFletcher32(t *testing.T) {
	// words [1, 2]: sum1 = 3, sum2 = 4
	assert.Equal(t, uint32(0x00040003), Fletcher32([]byte{0x01, 0x00, 0x02, 0x00}))

	// odd trailing byte is zero padded
	assert.Equal(t, uint32(0x00FF00FF), Fletcher32([]byte{0xFF}))

	assert.Equal(t, uint32(0), Fletcher32(nil))
}

func TestFletcher32Detects(t *testing.T) {
	data := []byte("sensor frame 0042")
	sum := Fletcher32(data)
	mutated := append([]byte(nil), data...)
	mutated[3] ^= 0x40
	assert.NotEqual(t, sum, Fletcher32(mutated))
}
