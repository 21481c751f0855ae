package hdf5

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/structures"
	"github.com/scigolib/h5core/internal/writer"
)

// BuildSession assembles a complete file image in memory. Paths are
// absolute; AddDataset creates missing parent groups. A session is
// single-owner and consumed by Finalize.
type BuildSession struct {
	root      *buildNode
	finalized bool
	v2Super   bool
}

// BuildOption configures a build session.
type BuildOption func(*BuildSession)

// WithV2Superblock makes Finalize emit a version 2 superblock, whose
// root pointer addresses the root group header directly instead of a
// symbol table entry.
func WithV2Superblock() BuildOption {
	return func(b *BuildSession) { b.v2Super = true }
}

// NewFileBuilder starts an empty build session holding only the root
// group.
func NewFileBuilder(opts ...BuildOption) *BuildSession {
	b := &BuildSession{root: newBuildNode(true)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type buildNode struct {
	isGroup  bool
	children map[string]*buildNode
	attrs    []buildAttr
	spec     *datasetSpec
}

type buildAttr struct {
	name  string
	value any

	// assigned during finalization for variable-length values
	heapIndices []uint16
}

func newBuildNode(group bool) *buildNode {
	n := &buildNode{isGroup: group}
	if group {
		n.children = make(map[string]*buildNode)
	}
	return n
}

// AddGroup creates a group and any missing parents.
func (b *BuildSession) AddGroup(path string) error {
	if b.finalized {
		return ErrSessionFinalized
	}
	_, err := b.makeGroups(path)
	return err
}

// AddDataset creates a dataset at path from a Go value, creating
// missing parent groups. The value types and options accepted are
// documented on the DatasetOption constructors.
func (b *BuildSession) AddDataset(path string, value any, opts ...DatasetOption) error {
	if b.finalized {
		return ErrSessionFinalized
	}
	segs, err := splitBuildPath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return fmt.Errorf("cannot create a dataset at the root path")
	}
	parent, err := b.makeGroupsSegs(segs[:len(segs)-1])
	if err != nil {
		return err
	}
	name := segs[len(segs)-1]
	if parent.children[name] != nil {
		return fmt.Errorf("object %q already exists", path)
	}
	spec := &datasetSpec{value: value}
	for _, opt := range opts {
		opt(spec)
	}
	n := newBuildNode(false)
	n.spec = spec
	parent.children[name] = n
	return nil
}

// Attr attaches an attribute to an existing group or dataset; "/"
// addresses the root group.
func (b *BuildSession) Attr(path, name string, value any) error {
	if b.finalized {
		return ErrSessionFinalized
	}
	segs, err := splitBuildPath(path)
	if err != nil {
		return err
	}
	n := b.root
	for _, seg := range segs {
		if !n.isGroup || n.children[seg] == nil {
			return &PathNotFoundError{Path: path, Missing: seg}
		}
		n = n.children[seg]
	}
	for _, a := range n.attrs {
		if a.name == name {
			return fmt.Errorf("attribute %q already exists on %q", name, path)
		}
	}
	n.attrs = append(n.attrs, buildAttr{name: name, value: value})
	return nil
}

// Finalize serializes the session into an HDF5 image with old-style
// symbol table groups under a version 0 superblock, or a version 2
// superblock when requested. The session cannot be used afterwards.
func (b *BuildSession) Finalize() ([]byte, error) {
	if b.finalized {
		return nil, ErrSessionFinalized
	}
	b.finalized = true

	sb := &core.Superblock{
		Version:        0,
		OffsetSize:     8,
		LengthSize:     8,
		GroupLeafK:     4,
		GroupInternalK: 16,
	}
	superSize := uint64(core.SuperblockV0Size)
	if b.v2Super {
		sb.Version = 2
		superSize = core.SuperblockV2Size
	}
	w := &fileWriter{
		sb:    sb,
		mem:   writer.NewMemFile(),
		alloc: writer.NewAllocator(superSize),
		heap:  core.NewGlobalHeapWriter(sb),
	}

	// Variable-length payloads go into one global heap collection
	// whose address every vlen element embeds, so it is written before
	// any dataset.
	stageTree(w, b.root)
	if w.heap.Count() > 0 {
		addr, err := w.place(w.heap.Encode())
		if err != nil {
			return nil, err
		}
		w.heapAddr = addr
	}

	rootAddr, btreeAddr, heapAddr, err := w.writeGroup("/", b.root)
	if err != nil {
		return nil, err
	}
	sb.RootAddress = rootAddr
	var super []byte
	if b.v2Super {
		super = core.EncodeSuperblockV2(sb, w.alloc.EOF())
	} else {
		sb.RootEntry = &core.SymbolTableEntry{
			HeaderAddress: rootAddr,
			CacheType:     1,
			BTreeAddress:  btreeAddr,
			HeapAddress:   heapAddr,
		}
		super = core.EncodeSuperblockV0(sb, w.alloc.EOF())
	}
	if _, err := w.mem.WriteAt(super, 0); err != nil {
		return nil, err
	}
	return w.mem.Bytes(), nil
}

func (b *BuildSession) makeGroups(path string) (*buildNode, error) {
	segs, err := splitBuildPath(path)
	if err != nil {
		return nil, err
	}
	return b.makeGroupsSegs(segs)
}

func (b *BuildSession) makeGroupsSegs(segs []string) (*buildNode, error) {
	n := b.root
	for _, seg := range segs {
		child := n.children[seg]
		if child == nil {
			child = newBuildNode(true)
			n.children[seg] = child
		}
		if !child.isGroup {
			return nil, &NotAGroupError{Path: seg}
		}
		n = child
	}
	return n, nil
}

func splitBuildPath(path string) ([]string, error) {
	var segs []string
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		if seg == "." || seg == ".." {
			return nil, fmt.Errorf("path segment %q not allowed", seg)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// fileWriter carries the in-flight image of one Finalize call.
type fileWriter struct {
	sb    *core.Superblock
	mem   *writer.MemFile
	alloc *writer.Allocator
	heap  *core.GlobalHeapWriter

	// heapAddr is the global heap collection address, set once the
	// collection is placed.
	heapAddr uint64
}

// place allocates space for b at the end of the image and writes it.
func (w *fileWriter) place(b []byte) (uint64, error) {
	addr, err := w.alloc.Allocate(uint64(len(b)))
	if err != nil {
		return 0, err
	}
	if _, err := w.mem.WriteAt(b, int64(addr)); err != nil {
		return 0, err
	}
	return addr, nil
}

func stageTree(w *fileWriter, n *buildNode) {
	if n.spec != nil {
		w.stageVlen(n.spec)
	}
	for i := range n.attrs {
		w.stageAttrVlen(&n.attrs[i])
	}
	for _, name := range sortedChildren(n) {
		stageTree(w, n.children[name])
	}
}

func sortedChildren(n *buildNode) []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// writeGroup serializes a group bottom-up: children first, then the
// group's local heap, symbol table node, B-tree and object header.
// It returns the header, B-tree and heap header addresses, which the
// parent caches in its symbol table entry.
func (w *fileWriter) writeGroup(path string, n *buildNode) (headerAddr, btreeAddr, heapAddr uint64, err error) {
	names := sortedChildren(n)
	heap := structures.NewLocalHeapWriter(w.sb)
	entries := make([]core.SymbolTableEntry, 0, len(names))
	var lastNameOffset uint64

	for _, name := range names {
		child := n.children[name]
		entry := core.SymbolTableEntry{}
		if child.isGroup {
			addr, bt, hp, err := w.writeGroup(joinPath(path, name), child)
			if err != nil {
				return 0, 0, 0, err
			}
			entry.HeaderAddress = addr
			entry.CacheType = 1
			entry.BTreeAddress = bt
			entry.HeapAddress = hp
		} else {
			addr, err := w.writeDataset(joinPath(path, name), child)
			if err != nil {
				return 0, 0, 0, err
			}
			entry.HeaderAddress = addr
		}
		lastNameOffset = heap.AddName(name)
		entry.LinkNameOffset = lastNameOffset
		entries = append(entries, entry)
	}

	dataAddr, err := w.place(heap.EncodeData())
	if err != nil {
		return 0, 0, 0, err
	}
	heapAddr, err = w.place(heap.EncodeHeader(dataAddr))
	if err != nil {
		return 0, 0, 0, err
	}
	snodAddr, err := w.place(structures.EncodeSymbolTableNode(w.sb, entries))
	if err != nil {
		return 0, 0, 0, err
	}
	btreeAddr, err = w.place(structures.EncodeGroupBTreeLeaf(w.sb, snodAddr, lastNameOffset))
	if err != nil {
		return 0, 0, 0, err
	}

	msgs := []core.HeaderMessage{{
		Type: core.MsgSymbolTable,
		Data: core.EncodeSymbolTableMessage(w.sb, btreeAddr, heapAddr),
	}}
	attrMsgs, err := w.encodeAttributes(path, n.attrs)
	if err != nil {
		return 0, 0, 0, err
	}
	msgs = append(msgs, attrMsgs...)

	hdr, err := core.EncodeObjectHeaderV1(msgs)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("group %s: %w", path, err)
	}
	headerAddr, err = w.place(hdr)
	if err != nil {
		return 0, 0, 0, err
	}
	return headerAddr, btreeAddr, heapAddr, nil
}

// encodeAttributes lowers attribute values to version 1 attribute
// messages. Scalar strings become fixed-length; string slices become
// variable-length strings backed by the session's global heap.
func (w *fileWriter) encodeAttributes(path string, attrs []buildAttr) ([]core.HeaderMessage, error) {
	var msgs []core.HeaderMessage
	for _, a := range attrs {
		enc, err := w.encodeValue(&datasetSpec{value: a.value, heapIndices: a.heapIndices})
		if err != nil {
			return nil, fmt.Errorf("attribute %q on %s: %w", a.name, path, err)
		}
		dtBytes, err := core.EncodeDatatype(enc.dtype)
		if err != nil {
			return nil, fmt.Errorf("attribute %q on %s: %w", a.name, path, err)
		}
		dsBytes := core.EncodeDataspace(enc.dims, nil)
		msgs = append(msgs, core.HeaderMessage{
			Type: core.MsgAttribute,
			Data: core.EncodeAttribute(a.name, dtBytes, dsBytes, enc.raw),
		})
	}
	return msgs, nil
}
