// Package errs implements the error taxonomy the core uses to classify
// failures: caller mistakes, expected-absent data, corruption, and
// transport/IO trouble that a caller (notably the migration worker) may
// choose to retry. It is a typed-error rendition, not an exception hierarchy.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for dispatch/retry decisions.
type Kind int

const (
	Unknown Kind = iota
	InvalidArg
	NotFound
	InvalidMeta
	ChecksumMismatch
	InsufficientShards
	QuorumFailed
	IO
	RPC
	OOM
	InvalidState
)

func (k Kind) String() string {
	switch k {
	case InvalidArg:
		return "InvalidArg"
	case NotFound:
		return "NotFound"
	case InvalidMeta:
		return "InvalidMeta"
	case ChecksumMismatch:
		return "ChecksumMismatch"
	case InsufficientShards:
		return "InsufficientShards"
	case QuorumFailed:
		return "QuorumFailed"
	case IO:
		return "Io"
	case RPC:
		return "Rpc"
	case OOM:
		return "Oom"
	case InvalidState:
		return "InvalidState"
	default:
		return "Unknown"
	}
}

// Error wraps an inner cause with a Kind.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "quorum.WriteMeta"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retryable reports whether the migration worker should retry an error.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == IO || e.Kind == RPC
	}
	return false
}
