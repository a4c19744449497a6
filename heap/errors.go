package heap

import (
	"context"
	"errors"
	"fmt"

	"github.com/heapwalk/heapwalk/addr"
)

// ErrCancelled is returned by any enumeration that observed its
// cancellation token fire. It is context.Canceled so that callers can
// use errors.Is against the standard library sentinel instead of a
// package-specific one.
var ErrCancelled = context.Canceled

// InvalidInputError reports a construction- or call-site argument
// that is invalid on its face (nil required collaborator, negative
// task bound, ...). This class fails fast at the call site rather
// than being recovered.
type InvalidInputError struct {
	Msg string
}

func (e *InvalidInputError) Error() string { return "invalid input: " + e.Msg }

// InvariantViolationError reports a structural invariant the engine
// depends on that the metadata provider failed to uphold: segments out
// of order, or the type factory returning nil for a mandatory type
// (String, Object, Free, Exception). This is fatal during heap
// construction and bubbles to the caller; it is never recovered
// locally.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string { return "invariant violation: " + e.Msg }

// CorruptionError reports a fault detected while walking a segment:
// an unreadable method table, or an allocation-context skip going
// backward or past the segment end. This is recovered locally at the
// segment boundary; it is surfaced to callers only as a
// WalkStep in the diagnostic log, never as a returned error from
// EnumerateObjects.
type CorruptionError struct {
	Addr addr.Address
	Msg  string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("heap corruption at %s: %s", e.Addr, e.Msg)
}

var errMandatoryTypeMissing = errors.New("metadata provider returned a nil type for a mandatory runtime type")
