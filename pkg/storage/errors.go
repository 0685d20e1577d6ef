package storage

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a storage-layer failure the way spec.md's error
// taxonomy requires: callers branch on ErrorKind, not on the underlying
// cause. (Named distinctly from RID's Kind — base/tail/deleted — in
// rid.go, which classifies records, not failures.)
type ErrorKind int

const (
	// KindNotFound: key or coordinate has no matching record.
	KindNotFound ErrorKind = iota
	// KindConflict: a lock was rejected under no-wait 2PL.
	KindConflict
	// KindCapacity: buffer pool exhausted or a page/range is full.
	KindCapacity
	// KindInvariant: structural corruption detected; fatal.
	KindInvariant
	// KindIO: disk read/write/checksum failure; fatal at the transaction level.
	KindIO
	// KindArgument: bad column index, mutated key, wrong arity.
	KindArgument
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCapacity:
		return "capacity"
	case KindInvariant:
		return "invariant"
	case KindIO:
		return "io"
	case KindArgument:
		return "argument"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the ErrorKind a caller needs to
// decide abort-vs-fatal (spec.md §7).
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error, optionally wrapping cause.
func NewError(op string, kind ErrorKind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// IsKind reports whether err (or anything it wraps) is a storage *Error of
// the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
