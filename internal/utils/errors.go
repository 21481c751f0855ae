package utils

import "fmt"

// H5Error attaches the failing operation to an underlying cause so each
// layer wraps once without losing errors.Is/As matching.
type H5Error struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *H5Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

// Unwrap provides compatibility with errors.Unwrap().
func (e *H5Error) Unwrap() error {
	return e.Cause
}

// WrapError creates a contextual error. Returns nil when cause is nil so
// callers can wrap unconditionally.
func WrapError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &H5Error{Op: op, Cause: cause}
}

// Errorf wraps a formatted message as the cause under the given operation.
func Errorf(op, format string, args ...any) error {
	return &H5Error{Op: op, Cause: fmt.Errorf(format, args...)}
}
