package hdf5

import (
	"errors"
	"fmt"

	"github.com/scigolib/h5core/internal/core"
)

// The error taxonomy below is matched with errors.As. Unsupported
// datatype and filter errors also unwrap to *UnsupportedFeatureError
// so callers can treat every "valid file, missing capability" case
// uniformly.

// FormatError reports structurally invalid bytes: a bad signature,
// checksum, or truncated structure.
type FormatError struct {
	Offset uint64
	Detail string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid HDF5 data at offset %d: %s: %v", e.Offset, e.Detail, e.Err)
	}
	return fmt.Sprintf("invalid HDF5 data at offset %d: %s", e.Offset, e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Err }

// UnsupportedFeatureError reports a well-formed construct this
// library does not implement.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("unsupported HDF5 feature: %s", e.Feature)
}

// UnsupportedDatatypeError reports a datatype the element decoder
// cannot produce Go values for.
type UnsupportedDatatypeError struct {
	Class  string
	Detail string
}

func (e *UnsupportedDatatypeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unsupported datatype %s: %s", e.Class, e.Detail)
	}
	return fmt.Sprintf("unsupported datatype %s", e.Class)
}

func (e *UnsupportedDatatypeError) Unwrap() error {
	return &UnsupportedFeatureError{Feature: "datatype " + e.Class}
}

// UnsupportedFilterError reports a pipeline filter with no
// implementation; the name and id come from the pipeline message.
type UnsupportedFilterError struct {
	ID   uint16
	Name string
}

func (e *UnsupportedFilterError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unsupported filter %q (id %d)", e.Name, e.ID)
	}
	return fmt.Sprintf("unsupported filter id %d", e.ID)
}

func (e *UnsupportedFilterError) Unwrap() error {
	return &UnsupportedFeatureError{Feature: fmt.Sprintf("filter %d", e.ID)}
}

// PathNotFoundError reports a path whose resolution failed, naming
// the first missing segment.
type PathNotFoundError struct {
	Path    string
	Missing string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("path %q not found: no object named %q", e.Path, e.Missing)
}

// NotADatasetError reports a dataset operation on a group path.
type NotADatasetError struct {
	Path string
}

func (e *NotADatasetError) Error() string {
	return fmt.Sprintf("%q is not a dataset", e.Path)
}

// NotAGroupError reports a group operation on a dataset path.
type NotAGroupError struct {
	Path string
}

func (e *NotAGroupError) Error() string {
	return fmt.Sprintf("%q is not a group", e.Path)
}

// LayoutSizeError reports data too large for the requested layout,
// in practice a compact dataset over the 64 KiB message ceiling.
type LayoutSizeError struct {
	Size  uint64
	Limit uint64
}

func (e *LayoutSizeError) Error() string {
	return fmt.Sprintf("data of %d bytes exceeds the layout limit of %d bytes", e.Size, e.Limit)
}

// FileAccessError reports an I/O failure on the underlying file.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("cannot access %q: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// ErrSessionFinalized is returned when a build session is used after
// Finalize.
var ErrSessionFinalized = fmt.Errorf("build session already finalized")

// maxLinkDepth bounds soft link chains during path resolution.
const maxLinkDepth = 100

func formatErr(offset uint64, detail string, err error) error {
	return &FormatError{Offset: offset, Detail: detail, Err: err}
}

// datatypeErr distinguishes an out-of-range datatype class, which is a
// capability gap, from structurally broken datatype bytes.
func datatypeErr(offset uint64, detail string, err error) error {
	var unknown *core.UnknownClassError
	if errors.As(err, &unknown) {
		return &UnsupportedDatatypeError{Class: fmt.Sprintf("%d", unknown.Class)}
	}
	return formatErr(offset, detail, err)
}
