package jobstate

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers use errors.Is against these.
var (
	// ErrInvalidArgument is returned when an operation is called with a
	// record that fails a precondition (empty type, non-positive deadline).
	// The caller must not commit the enclosing transaction.
	ErrInvalidArgument = errors.New("jobstate: invalid argument")

	// ErrCorruptKey means a key could not be decoded (truncated or
	// malformed). Fatal for the partition.
	ErrCorruptKey = errors.New("jobstate: corrupt key")

	// ErrCorruptValue means a value could not be decoded. Fatal for the
	// partition.
	ErrCorruptValue = errors.New("jobstate: corrupt value")

	// ErrStoreOpen wraps an unrecoverable failure opening the engine or
	// registering its column families.
	ErrStoreOpen = errors.New("jobstate: store open failed")

	// ErrEngine wraps any underlying engine failure (I/O, commit conflict).
	// Callers decide whether to retry.
	ErrEngine = errors.New("jobstate: engine error")

	// ErrNotFound is returned by point lookups that find nothing. NOT_FOUND
	// is a state value, not an error, but the engine/column-family layer
	// needs a sentinel to distinguish "absent" from "failed to read".
	ErrNotFound = errors.New("jobstate: not found")
)

func invalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func corruptKeyf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptKey, fmt.Sprintf(format, args...))
}

func corruptValuef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptValue, fmt.Sprintf(format, args...))
}

func engineErrorf(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %v", ErrEngine, fmt.Sprintf(format, args...), cause)
}
