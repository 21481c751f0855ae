package hdf5

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5core/internal/core"
)

func TestUnknownDatatypeClassIsCapabilityGap(t *testing.T) {
	// an out-of-range class means the file uses a datatype this
	// library does not know, not that the bytes are broken
	err := datatypeErr(64, "datatype message",
		fmt.Errorf("object at 64: %w", &core.UnknownClassError{Class: 14}))
	var ude *UnsupportedDatatypeError
	require.ErrorAs(t, err, &ude)
	assert.Equal(t, "14", ude.Class)

	err = datatypeErr(64, "datatype message", fmt.Errorf("short buffer"))
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, uint64(64), fe.Offset)
}
