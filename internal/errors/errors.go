// Package errors carries the small error taxonomy the control-client core
// surfaces to its callers (spec §7). Adapted from the teacher's
// internal/errors package: a Kind enum plus a wrapping *Error, with the same
// New/Errorf/Wrap/Wrapf/Is/As shape, but with Kinds specific to this
// domain rather than a generic web-service taxonomy.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes a control-client error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUninitialized: operation attempted on a context that has not
	// completed configuration.
	KindUninitialized
	// KindMemoryAllocation: an allocation failure, typically fatal for the
	// current operation only.
	KindMemoryAllocation
	// KindFork: fork() or a sibling daemonization step failed.
	KindFork
	// KindFilesystemOperation: open/lock/read/write/stat against the PID
	// file or a credential file failed.
	KindFilesystemOperation
	// KindProcExists: the PID-file lock is held by another live instance.
	KindProcExists
	// KindConnDown: a request was attempted while disconnected.
	KindConnDown
	// KindState: a request was attempted in a state that disallows it.
	KindState
	// KindKeepAlive: transport or codec failure during a keep-alive
	// exchange.
	KindKeepAlive
	// KindCredReq: transport or codec failure during a credential-update
	// exchange.
	KindCredReq
	// KindManyFailedReqs: max_request_attempts exceeded; the loop
	// transitions to TimeToQuit.
	KindManyFailedReqs
	// KindGotExitSig: loop exit was caused by INT/TERM.
	KindGotExitSig
)

func (k Kind) String() string {
	switch k {
	case KindUninitialized:
		return "uninitialized"
	case KindMemoryAllocation:
		return "memory_allocation"
	case KindFork:
		return "fork"
	case KindFilesystemOperation:
		return "filesystem_operation"
	case KindProcExists:
		return "proc_exists"
	case KindConnDown:
		return "conn_down"
	case KindState:
		return "state"
	case KindKeepAlive:
		return "keep_alive"
	case KindCredReq:
		return "cred_req"
	case KindManyFailedReqs:
		return "many_failed_reqs"
	case KindGotExitSig:
		return "got_exit_sig"
	default:
		return "unknown"
	}
}

// Error is a structured, kind-tagged error.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Underlying }

// New creates a new Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error as a new Error of the given kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf wraps an existing error as a new Error of the given kind with a
// formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// GetKind returns the Kind of err, or KindUnknown if it is not one of ours.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool { return errors.As(err, target) }

// Unwrap returns the result of calling Unwrap on err, if any.
func Unwrap(err error) error { return errors.Unwrap(err) }
