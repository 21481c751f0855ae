package structures

import (
	"fmt"
	"io"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/utils"
)

var snodSignature = []byte("SNOD")

// SymbolTableNode is one SNOD leaf holding the sorted entries of a
// legacy group.
type SymbolTableNode struct {
	Address uint64
	Entries []core.SymbolTableEntry
}

// ReadSymbolTableNode parses the SNOD block at addr.
func ReadSymbolTableNode(src io.ReaderAt, addr uint64, sb *core.Superblock) (*SymbolTableNode, error) {
	r := sb.Reader(src, addr)
	sig, err := r.ReadBytes(4)
	if err != nil {
		return nil, utils.WrapError(fmt.Sprintf("symbol table node at %d", addr), err)
	}
	if string(sig) != string(snodSignature) {
		return nil, fmt.Errorf("symbol table node at %d: bad signature %q", addr, sig)
	}
	version, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("symbol table node at %d: unsupported version %d", addr, version)
	}
	r.Skip(1)
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}

	node := &SymbolTableNode{Address: addr, Entries: make([]core.SymbolTableEntry, 0, count)}
	for i := 0; i < int(count); i++ {
		entry, err := core.ReadSymbolTableEntry(r)
		if err != nil {
			return nil, fmt.Errorf("symbol table node at %d: entry %d: %w", addr, i, err)
		}
		node.Entries = append(node.Entries, *entry)
	}
	return node, nil
}

// EncodeSymbolTableNode serializes a SNOD block. Entries must already
// be sorted by link name.
func EncodeSymbolTableNode(sb *core.Superblock, entries []core.SymbolTableEntry) []byte {
	e := sb.Encoder()
	e.Raw(snodSignature)
	e.Uint8(1)
	e.Uint8(0)
	e.Uint16(uint16(len(entries)))
	for i := range entries {
		core.EncodeSymbolTableEntry(e, &entries[i])
	}
	return e.Bytes()
}
