package types

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by treecalc matches exactly one of these with errors.Is.
var (
	// ErrNotFound is returned for unknown ids or a root name missing from a document.
	ErrNotFound = errors.New("treecalc: not found")

	// ErrInvalid is returned when an operation would violate a graph invariant
	// (merging a composite, renaming to an empty or unchanged name, deleting the root).
	ErrInvalid = errors.New("treecalc: invalid operation")

	// ErrMissingInput is returned when a calculation lacks data: a leaf absent from
	// the data table or a composite without a reduction.
	ErrMissingInput = errors.New("treecalc: missing input")

	// ErrCorrupt is returned when the graph structure is damaged (cycles, dangling
	// children, one id under two names).
	ErrCorrupt = errors.New("treecalc: structural corruption")

	// ErrCancelled is returned when the user declines a confirmation.
	ErrCancelled = errors.New("treecalc: cancelled")

	// ErrIO is returned for unreadable, unwritable or malformed files.
	ErrIO = errors.New("treecalc: i/o failure")

	// ErrStale is returned when the state an operation was validated against
	// changed before it could be applied.
	ErrStale = errors.New("treecalc: state changed concurrently")
)

// Error is the tagged error carried across the command surface
type Error struct {
	Op   string // Operation that failed, e.g. "rename"
	Kind error  // One of the sentinel errors above
	Msg  string // Human-readable message
	Err  error  // Underlying cause, may be nil
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	switch {
	case msg != "" && e.Err != nil:
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	case msg == "" && e.Err != nil && errors.Is(e.Err, e.Kind):
		// The cause already names the kind
		msg = e.Err.Error()
	case msg == "" && e.Err != nil:
		msg = fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case msg == "" && e.Kind != nil:
		msg = e.Kind.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Errorf builds a tagged error
func Errorf(op string, kind error, format string, args ...interface{}) error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError tags an underlying error. Returns nil when err is nil.
func WrapError(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) && tagged.Kind != nil {
		if tagged.Op == "" {
			tagged.Op = op
		}
		return tagged
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the sentinel an error was tagged with, or nil when it carries none
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrInvalid, ErrMissingInput, ErrCorrupt, ErrCancelled, ErrIO, ErrStale} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
