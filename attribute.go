package hdf5

import (
	"reflect"

	"github.com/scigolib/h5core/internal/core"
	"github.com/scigolib/h5core/internal/utils"
)

// Attribute is a decoded attribute of a group or dataset.
type Attribute struct {
	Name  string
	Shape []uint64

	value any
}

// Value returns the decoded attribute data: a flat row-major slice,
// or for a scalar attribute the single element itself.
func (a Attribute) Value() any {
	if len(a.Shape) == 0 {
		return scalarOf(a.value)
	}
	return a.value
}

// Slice returns the decoded data as a flat slice regardless of rank.
func (a Attribute) Slice() any { return a.value }

func scalarOf(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Len() > 0 {
		return rv.Index(0).Interface()
	}
	return v
}

// attributes decodes every attribute message of an object header.
func (f *File) attributes(oh *core.ObjectHeader) ([]Attribute, error) {
	if msg := oh.Find(core.MsgAttributeInfo); msg != nil {
		ai, err := core.ParseAttributeInfo(msg.Data, f.sb)
		if err != nil {
			return nil, formatErr(oh.Address, "attribute info message", err)
		}
		if ai.Dense() {
			return nil, &UnsupportedFeatureError{Feature: "dense attribute storage"}
		}
	}
	var attrs []Attribute
	for _, msg := range oh.FindAll(core.MsgAttribute) {
		a, err := f.decodeAttribute(oh.Address, msg.Data)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

func (f *File) decodeAttribute(addr uint64, data []byte) (Attribute, error) {
	am, err := core.ParseAttribute(data)
	if err != nil {
		return Attribute{}, datatypeErr(addr, "attribute message", err)
	}
	count, err := am.Dataspace.NumElements()
	if err != nil {
		return Attribute{}, formatErr(addr, "attribute dataspace", err)
	}
	size, err := utils.ByteSize(am.Dataspace.Dims, uint64(am.Datatype.Size), utils.MaxAttributeSize)
	if err != nil {
		return Attribute{}, formatErr(addr, "attribute size", err)
	}
	if uint64(len(am.Data)) < size {
		return Attribute{}, formatErr(addr, "attribute value shorter than its dataspace", nil)
	}
	value, err := core.DecodeElements(am.Data[:size], am.Datatype, count, f.sb.OffsetSize, f)
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{
		Name:  am.Name,
		Shape: append([]uint64(nil), am.Dataspace.Dims...),
		value: value,
	}, nil
}

func (f *File) attribute(oh *core.ObjectHeader, path, name string) (Attribute, error) {
	attrs, err := f.attributes(oh)
	if err != nil {
		return Attribute{}, err
	}
	for _, a := range attrs {
		if a.Name == name {
			return a, nil
		}
	}
	return Attribute{}, &PathNotFoundError{Path: path, Missing: name}
}
