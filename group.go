package hdf5

import (
	"sort"
	"strings"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/structures"
)

// Group is a handle on a group object.
type Group struct {
	f      *File
	path   string
	header *core.ObjectHeader
}

// Path returns the group's absolute path.
func (g *Group) Path() string { return g.path }

// Name returns the final path segment, or "/" for the root group.
func (g *Group) Name() string {
	if g.path == "/" {
		return "/"
	}
	return g.path[strings.LastIndexByte(g.path, '/')+1:]
}

// Children returns the names of the group's direct members, sorted.
func (g *Group) Children() ([]string, error) {
	links, err := g.f.children(g.header)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.name
	}
	return names, nil
}

// Group resolves a path relative to this group.
func (g *Group) Group(path string) (*Group, error) {
	oh, canonical, err := g.f.resolveAt(g.path, path, 0)
	if err != nil {
		return nil, err
	}
	if oh.Kind() == core.KindDataset {
		return nil, &NotAGroupError{Path: canonical}
	}
	return &Group{f: g.f, path: canonical, header: oh}, nil
}

// Dataset resolves a path relative to this group.
func (g *Group) Dataset(path string) (*Dataset, error) {
	oh, canonical, err := g.f.resolveAt(g.path, path, 0)
	if err != nil {
		return nil, err
	}
	if oh.Kind() != core.KindDataset {
		return nil, &NotADatasetError{Path: canonical}
	}
	return g.f.newDataset(canonical, oh)
}

// Attributes returns the group's attributes with decoded values.
func (g *Group) Attributes() ([]Attribute, error) {
	return g.f.attributes(g.header)
}

// Attr returns the named attribute.
func (g *Group) Attr(name string) (Attribute, error) {
	return g.f.attribute(g.header, g.path, name)
}

// childLink is one directory entry of a group. Exactly one of addr
// (hard link) and soft (link target path) is meaningful.
type childLink struct {
	name string
	addr uint64
	soft string
}

// children enumerates a group's members from any of the storage
// forms: the old-style symbol table (B-tree, SNOD nodes and a local
// heap holding the names), compact link messages in the header, or
// dense storage (link messages in a fractal heap indexed by a v2
// B-tree on name).
func (f *File) children(oh *core.ObjectHeader) ([]childLink, error) {
	var links []childLink
	if msg := oh.Find(core.MsgLinkInfo); msg != nil {
		li, err := core.ParseLinkInfo(msg.Data, f.sb)
		if err != nil {
			return nil, formatErr(oh.Address, "link info message", err)
		}
		if li.Dense() {
			dense, err := f.denseChildren(li)
			if err != nil {
				return nil, err
			}
			links = append(links, dense...)
		}
	}
	for _, msg := range oh.FindAll(core.MsgLink) {
		l, err := core.ParseLink(msg.Data, f.sb)
		if err != nil {
			return nil, formatErr(oh.Address, "link message", err)
		}
		switch l.Type {
		case core.LinkHard:
			links = append(links, childLink{name: l.Name, addr: l.HeaderAddress})
		case core.LinkSoft:
			links = append(links, childLink{name: l.Name, soft: l.Target})
		default:
			return nil, &UnsupportedFeatureError{Feature: "external link"}
		}
	}

	if msg := oh.Find(core.MsgSymbolTable); msg != nil {
		st, err := core.ParseSymbolTableMessage(msg.Data, f.sb)
		if err != nil {
			return nil, formatErr(oh.Address, "symbol table message", err)
		}
		stLinks, err := f.symbolTableChildren(st.BTreeAddress, st.HeapAddress)
		if err != nil {
			return nil, err
		}
		links = append(links, stLinks...)
	}

	sort.Slice(links, func(i, j int) bool { return links[i].name < links[j].name })
	return links, nil
}

// denseChildren reads every link of a densely stored group: the name
// index B-tree yields heap IDs, the fractal heap yields the link
// message bodies.
func (f *File) denseChildren(li *core.LinkInfo) ([]childLink, error) {
	heap, err := structures.ReadFractalHeap(f.src, li.FractalHeapAddress, f.sb)
	if err != nil {
		return nil, formatErr(li.FractalHeapAddress, "link fractal heap", err)
	}
	if core.UndefinedAddress(li.NameIndexAddress, f.sb.OffsetSize) {
		return nil, &UnsupportedFeatureError{Feature: "dense group without a name index"}
	}
	records, err := structures.CollectBTreeV2Records(f.src, li.NameIndexAddress, structures.BTreeV2TypeLinkName, f.sb)
	if err != nil {
		return nil, formatErr(li.NameIndexAddress, "link name index", err)
	}
	links := make([]childLink, 0, len(records))
	for _, rec := range records {
		// each record is a name hash followed by the heap ID
		if len(rec) < 5 {
			return nil, formatErr(li.NameIndexAddress, "link name record too short", nil)
		}
		body, err := heap.ReadObject(rec[4:])
		if err != nil {
			return nil, formatErr(li.FractalHeapAddress, "link heap object", err)
		}
		l, err := core.ParseLink(body, f.sb)
		if err != nil {
			return nil, formatErr(li.FractalHeapAddress, "dense link message", err)
		}
		switch l.Type {
		case core.LinkHard:
			links = append(links, childLink{name: l.Name, addr: l.HeaderAddress})
		case core.LinkSoft:
			links = append(links, childLink{name: l.Name, soft: l.Target})
		default:
			return nil, &UnsupportedFeatureError{Feature: "external link"}
		}
	}
	return links, nil
}

func (f *File) symbolTableChildren(btreeAddr, heapAddr uint64) ([]childLink, error) {
	heap, err := structures.ReadLocalHeap(f.src, heapAddr, f.sb)
	if err != nil {
		return nil, formatErr(heapAddr, "local heap", err)
	}
	nodes, err := structures.CollectSymbolNodes(f.src, btreeAddr, f.sb)
	if err != nil {
		return nil, formatErr(btreeAddr, "group B-tree", err)
	}
	var links []childLink
	for _, addr := range nodes {
		snod, err := structures.ReadSymbolTableNode(f.src, addr, f.sb)
		if err != nil {
			return nil, formatErr(addr, "symbol table node", err)
		}
		for _, e := range snod.Entries {
			name, err := heap.Name(e.LinkNameOffset)
			if err != nil {
				return nil, formatErr(heapAddr, "link name", err)
			}
			if e.CacheType == 2 {
				target, err := heap.Name(uint64(e.LinkOffset))
				if err != nil {
					return nil, formatErr(heapAddr, "soft link target", err)
				}
				links = append(links, childLink{name: name, soft: target})
				continue
			}
			links = append(links, childLink{name: name, addr: e.HeaderAddress})
		}
	}
	return links, nil
}

// resolveAt walks path starting from the group at absolute path base.
// It returns the target's header and canonical absolute path. Soft
// links are followed, bounded by maxLinkDepth.
func (f *File) resolveAt(base, path string, depth int) (*core.ObjectHeader, string, error) {
	if depth > maxLinkDepth {
		return nil, "", &PathNotFoundError{Path: path, Missing: "link chain too deep"}
	}
	cur := base
	if strings.HasPrefix(path, "/") {
		cur = "/"
	}
	oh, err := f.header(f.sb.RootAddress)
	if err != nil {
		return nil, "", err
	}
	if cur != "/" {
		// Re-resolve the base group; it is an already canonical hard
		// path, so this cannot recurse through links.
		oh, _, err = f.resolveAt("/", cur, depth)
		if err != nil {
			return nil, "", err
		}
	}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" || seg == "." {
			continue
		}
		if oh.Kind() == core.KindDataset {
			return nil, "", &NotAGroupError{Path: cur}
		}
		links, err := f.children(oh)
		if err != nil {
			return nil, "", err
		}
		child, ok := findLink(links, seg)
		if !ok {
			return nil, "", &PathNotFoundError{Path: path, Missing: seg}
		}
		if child.soft != "" {
			f.debugf("following soft link %s -> %s", joinPath(cur, seg), child.soft)
			oh, cur, err = f.resolveAt(cur, child.soft, depth+1)
			if err != nil {
				return nil, "", err
			}
			continue
		}
		oh, err = f.header(child.addr)
		if err != nil {
			return nil, "", err
		}
		cur = joinPath(cur, seg)
	}
	return oh, cur, nil
}

func findLink(links []childLink, name string) (childLink, bool) {
	for _, l := range links {
		if l.name == name {
			return l, true
		}
	}
	return childLink{}, false
}
