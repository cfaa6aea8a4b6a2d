package collab

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrEmptyPath is returned by operations that must create something at a
	// path when the path has no segments.
	ErrEmptyPath = errors.New("empty path")

	// ErrNotAMap is returned when a path segment that must be a map holds
	// another kind of value.
	ErrNotAMap = errors.New("value is not a map")

	// ErrIndexOutOfRange is returned by array handles for invalid positions.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrNumberOverflow is returned for JSON integers outside the int64 and
	// uint64 ranges.
	ErrNumberOverflow = errors.New("number does not fit in 64 bits")
)

// SerializationError reports that the value at Path could not be converted
// to or from JSON.
type SerializationError struct {
	Path Path
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error at %q: %v", e.Path.String(), e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// PluginError aggregates the failures of one plugin hook across all
// registered plugins. Hook is "DidInit" or "DidReceiveUpdate".
type PluginError struct {
	CID  string
	Hook string
	Errs *multierror.Error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("document %s: %s: %v", e.CID, e.Hook, e.Errs)
}

func (e *PluginError) Unwrap() error {
	return e.Errs
}

// ReplayError reports the update that could not be applied while building a
// document from a stored log.
type ReplayError struct {
	Index int
	Err   error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay update %d: %v", e.Index, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}
