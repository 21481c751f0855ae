// Package hdf5 reads and writes HDF5 files in pure Go, including the
// MATLAB v7.3 variant where the superblock sits behind a user block.
//
// Reading starts from Open or OpenReader and navigates the object
// hierarchy through File, Group and Dataset. Writing goes through
// NewFileBuilder, which assembles a complete file image in memory.
package hdf5

import (
	"bytes"
	"io"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/scigolib/h5core/internal/core"
)

// File is an open read handle. It is safe for concurrent use; parsed
// object headers and global heap collections are cached per handle.
type File struct {
	src    io.ReaderAt
	closer io.Closer
	path   string
	sb     *core.Superblock
	debug  *log.Logger

	mu      sync.Mutex
	headers map[uint64]*core.ObjectHeader
	heaps   map[uint64]*core.GlobalHeapCollection
}

// Open opens the named file for reading.
func Open(path string, opts ...Option) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	f, err := OpenReader(fh, opts...)
	if err != nil {
		fh.Close()
		return nil, err
	}
	f.path = path
	f.closer = fh
	return f, nil
}

// OpenReader opens an HDF5 image from any random-access source. The
// superblock signature is searched at offsets 0, 512, 1024 and 2048;
// a match away from zero marks a user block, and all file addresses
// are then interpreted relative to the signature.
func OpenReader(r io.ReaderAt, opts ...Option) (*File, error) {
	f := &File{
		headers: make(map[uint64]*core.ObjectHeader),
		heaps:   make(map[uint64]*core.GlobalHeapCollection),
	}
	for _, opt := range opts {
		opt(f)
	}
	base, err := core.FindSignature(r)
	if err != nil {
		return nil, formatErr(0, "superblock signature", err)
	}
	src := core.NewBaseReaderAt(r, base)
	sb, err := core.ParseSuperblock(src)
	if err != nil {
		return nil, formatErr(uint64(base), "superblock", err)
	}
	f.src = src
	f.sb = sb
	f.debugf("superblock v%d at offset %d, root header at %d", sb.Version, base, sb.RootAddress)
	return f, nil
}

// FromBytes opens an in-memory HDF5 image, such as the output of
// BuildSession.Finalize.
func FromBytes(data []byte, opts ...Option) (*File, error) {
	return OpenReader(bytes.NewReader(data), opts...)
}

// Close releases the underlying file. Handles opened with OpenReader
// or FromBytes have nothing to release.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	if err != nil {
		return &FileAccessError{Path: f.path, Err: err}
	}
	return nil
}

// Root returns the root group.
func (f *File) Root() (*Group, error) {
	oh, err := f.header(f.sb.RootAddress)
	if err != nil {
		return nil, err
	}
	return &Group{f: f, path: "/", header: oh}, nil
}

// Group resolves an absolute path to a group.
func (f *File) Group(path string) (*Group, error) {
	oh, canonical, err := f.resolveAt("/", path, 0)
	if err != nil {
		return nil, err
	}
	if oh.Kind() == core.KindDataset {
		return nil, &NotAGroupError{Path: path}
	}
	return &Group{f: f, path: canonical, header: oh}, nil
}

// Dataset resolves an absolute path to a dataset.
func (f *File) Dataset(path string) (*Dataset, error) {
	oh, canonical, err := f.resolveAt("/", path, 0)
	if err != nil {
		return nil, err
	}
	if oh.Kind() != core.KindDataset {
		return nil, &NotADatasetError{Path: path}
	}
	return f.newDataset(canonical, oh)
}

// ObjectKind classifies an entry reported by Walk.
type ObjectKind int

const (
	KindGroup ObjectKind = iota + 1
	KindDataset
)

func (k ObjectKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	default:
		return "unknown"
	}
}

// ObjectInfo describes one object visited by Walk.
type ObjectInfo struct {
	Path string
	Kind ObjectKind
}

// Walk visits every reachable object depth-first in name order,
// starting with the root group at "/". Hard-link cycles are visited
// once. Returning an error from fn stops the walk.
func (f *File) Walk(fn func(ObjectInfo) error) error {
	root, err := f.Root()
	if err != nil {
		return err
	}
	seen := map[uint64]bool{root.header.Address: true}
	if err := fn(ObjectInfo{Path: "/", Kind: KindGroup}); err != nil {
		return err
	}
	return f.walk(root, seen, fn)
}

func (f *File) walk(g *Group, seen map[uint64]bool, fn func(ObjectInfo) error) error {
	children, err := f.children(g.header)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.soft != "" {
			// Soft links are reported as-is, not followed; the
			// target is reachable through its hard path anyway.
			continue
		}
		path := joinPath(g.path, c.name)
		if seen[c.addr] {
			continue
		}
		seen[c.addr] = true
		oh, err := f.header(c.addr)
		if err != nil {
			return err
		}
		if oh.Kind() == core.KindDataset {
			if err := fn(ObjectInfo{Path: path, Kind: KindDataset}); err != nil {
				return err
			}
			continue
		}
		if err := fn(ObjectInfo{Path: path, Kind: KindGroup}); err != nil {
			return err
		}
		if err := f.walk(&Group{f: f, path: path, header: oh}, seen, fn); err != nil {
			return err
		}
	}
	return nil
}

// ListRecursive returns the absolute paths of all groups and datasets,
// sorted lexically. The root group itself is omitted.
func (f *File) ListRecursive() ([]string, error) {
	var paths []string
	err := f.Walk(func(info ObjectInfo) error {
		if info.Path != "/" {
			paths = append(paths, info.Path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Stats summarizes the object hierarchy.
type Stats struct {
	Groups     int
	Datasets   int
	Attributes int
	DataBytes  uint64
}

// SummaryStats walks the file and counts groups, datasets, attributes
// and the raw element bytes datasets would occupy unfiltered.
func (f *File) SummaryStats() (Stats, error) {
	var st Stats
	err := f.Walk(func(info ObjectInfo) error {
		switch info.Kind {
		case KindGroup:
			st.Groups++
			g, err := f.Group(info.Path)
			if err != nil {
				return err
			}
			attrs, err := g.Attributes()
			if err != nil {
				return err
			}
			st.Attributes += len(attrs)
		case KindDataset:
			st.Datasets++
			d, err := f.Dataset(info.Path)
			if err != nil {
				return err
			}
			attrs, err := d.Attributes()
			if err != nil {
				return err
			}
			st.Attributes += len(attrs)
			n, err := d.space.NumElements()
			if err != nil {
				return err
			}
			st.DataBytes += n * uint64(d.dtype.Size)
		}
		return nil
	})
	return st, err
}

// ClearCache drops cached object headers and global heap collections.
func (f *File) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = make(map[uint64]*core.ObjectHeader)
	f.heaps = make(map[uint64]*core.GlobalHeapCollection)
}

// header returns the parsed object header at addr, reading it on the
// first request.
func (f *File) header(addr uint64) (*core.ObjectHeader, error) {
	f.mu.Lock()
	oh := f.headers[addr]
	f.mu.Unlock()
	if oh != nil {
		return oh, nil
	}
	oh, err := core.ReadObjectHeader(f.src, addr, f.sb)
	if err != nil {
		return nil, formatErr(addr, "object header", err)
	}
	f.mu.Lock()
	f.headers[addr] = oh
	f.mu.Unlock()
	return oh, nil
}

// HeapObject fetches a variable-length payload through the global
// heap, caching collections per address. It makes File usable as the
// resolver for element decoding.
func (f *File) HeapObject(ref core.GlobalHeapRef) ([]byte, error) {
	f.mu.Lock()
	gc := f.heaps[ref.CollectionAddress]
	f.mu.Unlock()
	if gc == nil {
		var err error
		gc, err = core.ReadGlobalHeap(f.src, ref.CollectionAddress, f.sb)
		if err != nil {
			return nil, formatErr(ref.CollectionAddress, "global heap collection", err)
		}
		f.mu.Lock()
		f.heaps[ref.CollectionAddress] = gc
		f.mu.Unlock()
	}
	if ref.Index > 0xFFFF {
		return nil, formatErr(ref.CollectionAddress, "global heap index out of range", nil)
	}
	data, err := gc.Get(uint16(ref.Index))
	if err != nil {
		return nil, formatErr(ref.CollectionAddress, "global heap object", err)
	}
	return data, nil
}

func (f *File) setDebug(w io.Writer) {
	f.debug = log.New(w, "h5core: ", 0)
}

func (f *File) debugf(format string, args ...any) {
	if f.debug != nil {
		f.debug.Printf(format, args...)
	}
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
