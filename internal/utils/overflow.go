package utils

import (
	"fmt"
	"math"
)

// Size limits for untrusted on-disk values. A corrupt file must not be
// able to drive an allocation past these.
const (
	// MaxChunkSize caps a single decoded chunk at 1 GiB.
	MaxChunkSize = 1 << 30

	// MaxAttributeSize caps attribute payloads at 64 MiB.
	MaxAttributeSize = 64 << 20

	// MaxStringSize caps a single heap string at 16 MiB.
	MaxStringSize = 16 << 20

	// MaxSliceElements caps a hyperslab selection at one billion elements.
	MaxSliceElements = 1_000_000_000
)

// SafeMultiply multiplies two uint64 values, failing instead of wrapping.
func SafeMultiply(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, fmt.Errorf("multiplication overflow: %d * %d exceeds uint64", a, b)
	}
	return a * b, nil
}

// ElementCount returns the product of the dimension sizes. An empty
// dimension list describes a scalar and counts as one element.
func ElementCount(dims []uint64) (uint64, error) {
	total := uint64(1)
	for i, d := range dims {
		var err error
		if total, err = SafeMultiply(total, d); err != nil {
			return 0, fmt.Errorf("element count overflow at dimension %d: %w", i, err)
		}
	}
	return total, nil
}

// ByteSize returns elementCount * elementSize with overflow and limit checks.
func ByteSize(dims []uint64, elementSize uint64, limit uint64) (uint64, error) {
	count, err := ElementCount(dims)
	if err != nil {
		return 0, err
	}
	size, err := SafeMultiply(count, elementSize)
	if err != nil {
		return 0, err
	}
	if limit > 0 && size > limit {
		return 0, fmt.Errorf("size %d exceeds limit %d", size, limit)
	}
	return size, nil
}

// ValidateSliceBounds checks that a start/count selection stays inside dims.
func ValidateSliceBounds(start, count, dims []uint64) error {
	if len(start) != len(dims) || len(count) != len(dims) {
		return fmt.Errorf("selection rank mismatch: start=%d count=%d dims=%d",
			len(start), len(count), len(dims))
	}
	total := uint64(1)
	for i := range start {
		if count[i] == 0 {
			return fmt.Errorf("selection count must be > 0 at dimension %d", i)
		}
		end := start[i] + count[i]
		if end < start[i] || end > dims[i] {
			return fmt.Errorf("selection exceeds bounds at dimension %d: start=%d count=%d size=%d",
				i, start[i], count[i], dims[i])
		}
		var err error
		if total, err = SafeMultiply(total, count[i]); err != nil {
			return err
		}
	}
	if total > MaxSliceElements {
		return fmt.Errorf("selection of %d elements exceeds limit %d", total, uint64(MaxSliceElements))
	}
	return nil
}
