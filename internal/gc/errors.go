package gc

import (
	"errors"
	"fmt"
)

// Code classifies engine errors. Values are stable; the C surface maps them
// onto its status codes.
type Code int

const (
	CodeAlreadyTracked       Code = iota + 1 // identity is already registered
	CodeNotTracked                           // identity is unknown
	CodeCollectionInProgress                 // a collection is admitted
	CodeInvalidGeneration                    // generation outside 0..2
	CodeInternal                             // invariant violation or invalid argument
)

// String returns the code name.
func (c Code) String() string {
	switch c {
	case CodeAlreadyTracked:
		return "already-tracked"
	case CodeNotTracked:
		return "not-tracked"
	case CodeCollectionInProgress:
		return "collection-in-progress"
	case CodeInvalidGeneration:
		return "invalid-generation"
	case CodeInternal:
		return "internal"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is the error type returned by every Collector operation.
type Error struct {
	Code Code
	Op   string // operation that failed, e.g. "track"
	ID   ID     // identity involved, 0 if none
	Gen  int    // generation involved, -1 if none
	Msg  string

	kind string // distinguishes sentinels that share a Code
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	switch {
	case e.Op != "" && e.ID != 0:
		return fmt.Sprintf("gc: %s %s: %s", e.Op, e.ID, msg)
	case e.Op != "" && e.Gen >= 0 && e.Code == CodeInvalidGeneration:
		return fmt.Sprintf("gc: %s: %s %d", e.Op, msg, e.Gen)
	case e.Op != "":
		return fmt.Sprintf("gc: %s: %s", e.Op, msg)
	default:
		return "gc: " + msg
	}
}

// Is reports whether target is a sentinel of the same class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.kind == "" || t.kind == e.kind
}

// Sentinels for errors.Is. Returned errors carry the operation and identity.
var (
	ErrAlreadyTracked       = &Error{Code: CodeAlreadyTracked, Gen: -1, Msg: "object is already tracked"}
	ErrNotTracked           = &Error{Code: CodeNotTracked, Gen: -1, Msg: "object is not tracked"}
	ErrCollectionInProgress = &Error{Code: CodeCollectionInProgress, Gen: -1, Msg: "garbage collection already in progress"}
	ErrInvalidGeneration    = &Error{Code: CodeInvalidGeneration, Gen: -1, Msg: "invalid generation"}
	ErrInternal             = &Error{Code: CodeInternal, Gen: -1, Msg: "internal error"}

	ErrNullID           = &Error{Code: CodeInternal, Gen: -1, Msg: "null object identity", kind: "null-id"}
	ErrNegativeRefcount = &Error{Code: CodeInternal, Gen: -1, Msg: "reference count must not be negative", kind: "negative-refcount"}
	ErrInvalidThreshold = &Error{Code: CodeInternal, Gen: -1, Msg: "threshold must not be negative", kind: "negative-threshold"}
	ErrInvalidSize      = &Error{Code: CodeInternal, Gen: -1, Msg: "object size must not be negative", kind: "negative-size"}
)

func opError(sentinel *Error, op string, id ID) *Error {
	e := *sentinel
	e.Op = op
	e.ID = id
	return &e
}

func genError(op string, gen int) *Error {
	e := *ErrInvalidGeneration
	e.Op = op
	e.Gen = gen
	return &e
}

func internalError(op, format string, args ...any) *Error {
	e := *ErrInternal
	e.Op = op
	e.Msg = fmt.Sprintf(format, args...)
	return &e
}

// CodeOf extracts the Code of err. Errors that did not come from this
// package are reported as CodeInternal; nil yields 0.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
