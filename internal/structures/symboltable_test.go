package structures

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5core/internal/core"
)

func TestSymbolTableNodeRoundtrip(t *testing.T) {
	sb := testSB()
	entries := []core.SymbolTableEntry{
		{LinkNameOffset: 8, HeaderAddress: 1000},
		{LinkNameOffset: 16, HeaderAddress: 2000, CacheType: 1, BTreeAddress: 3000, HeapAddress: 4000},
	}

	const addr = 96
	raw := EncodeSymbolTableNode(sb, entries)
	image := make([]byte, addr+len(raw))
	copy(image[addr:], raw)

	node, err := ReadSymbolTableNode(bytes.NewReader(image), addr, sb)
	require.NoError(t, err)
	assert.Equal(t, uint64(addr), node.Address)
	assert.Equal(t, entries, node.Entries)
}

func TestSymbolTableNodeBadSignature(t *testing.T) {
	_, err := ReadSymbolTableNode(bytes.NewReader(make([]byte, 64)), 0, testSB())
	assert.Error(t, err)
}

func TestGroupBTreeLeaf(t *testing.T) {
	sb := testSB()
	const btreeAddr, snodAddr = 256, 512

	raw := EncodeGroupBTreeLeaf(sb, snodAddr, 24)
	image := make([]byte, 1024)
	copy(image[btreeAddr:], raw)

	leaves, err := CollectSymbolNodes(bytes.NewReader(image), btreeAddr, sb)
	require.NoError(t, err)
	assert.Equal(t, []uint64{snodAddr}, leaves)
}

func TestGroupBTreeRejectsChunkNode(t *testing.T) {
	sb := testSB()
	raw := EncodeChunkBTreeLeaf(sb, nil, []uint64{4}, []uint64{4})
	_, err := CollectSymbolNodes(bytes.NewReader(raw), 0, sb)
	assert.Error(t, err)
}
