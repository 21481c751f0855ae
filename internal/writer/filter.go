// Package writer provides the write-path machinery shared by the file
// builder: chunk filters, the append-only allocator, and the in-memory
// file buffer.
package writer

import (
	"fmt"

	"github.com/scigolib/h5core/internal/core"
)

// FilterID identifies a registered filter.
type FilterID uint16

// Registered filter identifiers.
const (
	FilterDeflate    FilterID = 1
	FilterShuffle    FilterID = 2
	FilterFletcher32 FilterID = 3
	FilterSZip       FilterID = 4
	FilterNBit       FilterID = 5
	FilterScale      FilterID = 6
	FilterLZF        FilterID = 32000
)

// Filter transforms chunk bytes. Apply runs on the write path, Remove
// reverses it on the read path.
type Filter interface {
	ID() FilterID
	Name() string
	Apply(data []byte) ([]byte, error)
	Remove(data []byte) ([]byte, error)

	// Encode returns the flags and client data for the pipeline message.
	Encode() (flags uint16, cdValues []uint32)
}

// UnknownFilterError reports a pipeline entry with no implementation.
type UnknownFilterError struct {
	ID   uint16
	Name string
}

func (e *UnknownFilterError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown filter %q (id %d)", e.Name, e.ID)
	}
	return fmt.Sprintf("unknown filter id %d", e.ID)
}

// Pipeline is an ordered filter chain. Filters run in order on write
// and in reverse on read.
type Pipeline struct {
	filters []Filter
}

// NewPipeline builds a pipeline over the given filters.
func NewPipeline(filters ...Filter) *Pipeline {
	return &Pipeline{filters: filters}
}

// Empty reports whether the pipeline has no filters.
func (p *Pipeline) Empty() bool { return p == nil || len(p.filters) == 0 }

// Apply runs every filter in order over data.
func (p *Pipeline) Apply(data []byte) ([]byte, error) {
	if p == nil {
		return data, nil
	}
	out := data
	for _, f := range p.filters {
		var err error
		if out, err = f.Apply(out); err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Name(), err)
		}
	}
	return out, nil
}

// Remove reverses the pipeline. Bit i of mask set means filter i was
// skipped when the chunk was written and must be skipped now too.
func (p *Pipeline) Remove(data []byte, mask uint32) ([]byte, error) {
	if p == nil {
		return data, nil
	}
	out := data
	for i := len(p.filters) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			continue
		}
		var err error
		if out, err = p.filters[i].Remove(out); err != nil {
			return nil, fmt.Errorf("filter %s: %w", p.filters[i].Name(), err)
		}
	}
	return out, nil
}

// Entries returns the pipeline message entries in application order.
func (p *Pipeline) Entries() []core.FilterEntry {
	if p == nil {
		return nil
	}
	entries := make([]core.FilterEntry, 0, len(p.filters))
	for _, f := range p.filters {
		flags, cd := f.Encode()
		entries = append(entries, core.FilterEntry{
			ID:       uint16(f.ID()),
			Name:     f.Name(),
			Flags:    flags,
			CDValues: cd,
		})
	}
	return entries
}

// Resolve builds a pipeline from a parsed pipeline message. An
// optional filter without an implementation gets a placeholder that
// fails if a chunk ever needs it; a mandatory one fails here with
// UnknownFilterError.
func Resolve(entries []core.FilterEntry) (*Pipeline, error) {
	p := &Pipeline{}
	for _, e := range entries {
		f, err := newFilter(e)
		if err != nil {
			if e.Optional() {
				f = &nilFilter{id: FilterID(e.ID), name: e.Name}
			} else {
				return nil, err
			}
		}
		p.filters = append(p.filters, f)
	}
	return p, nil
}

func newFilter(e core.FilterEntry) (Filter, error) {
	switch FilterID(e.ID) {
	case FilterDeflate:
		level := 6
		if len(e.CDValues) > 0 && e.CDValues[0] >= 1 && e.CDValues[0] <= 9 {
			level = int(e.CDValues[0])
		}
		return NewDeflateFilter(level), nil
	case FilterShuffle:
		size := uint32(1)
		if len(e.CDValues) > 0 && e.CDValues[0] > 0 {
			size = e.CDValues[0]
		}
		return NewShuffleFilter(size), nil
	case FilterFletcher32:
		return NewFletcher32Filter(), nil
	case FilterLZF:
		return NewLZFFilter(), nil
	default:
		return nil, &UnknownFilterError{ID: e.ID, Name: e.Name}
	}
}

// nilFilter stands in for an absent optional filter. Both directions
// fail: a chunk that actually passed through the filter cannot be
// decoded, only chunks whose filter mask skips it can (the mask check
// happens before Remove is called).
type nilFilter struct {
	id   FilterID
	name string
}

func (f *nilFilter) ID() FilterID { return f.id }

func (f *nilFilter) Name() string { return f.name }

func (f *nilFilter) Apply(d []byte) ([]byte, error) {
	return nil, &UnknownFilterError{ID: uint16(f.id), Name: f.name}
}

func (f *nilFilter) Remove(d []byte) ([]byte, error) {
	return nil, &UnknownFilterError{ID: uint16(f.id), Name: f.name}
}

func (f *nilFilter) Encode() (uint16, []uint32) { return 0x01, nil }
