// Package fserrors classifies and counts the errors the traversal core can
// produce, implementing the taxonomy of spec §7: per-entry, per-subtree,
// transient (EMFILE/ENFILE, retried once), and fatal (queue setup failure).
package fserrors

import (
	"errors"
	"sync"
	"syscall"

	pkgerrors "github.com/pkg/errors"
)

// fsError wraps an underlying error with traversal context while keeping
// the original cause reachable via Unwrap/Cause, so callers can still
// classify on the raw errno.
type fsError struct {
	cause error
}

func (e *fsError) Error() string { return e.cause.Error() }
func (e *fsError) Unwrap() error { return e.cause }
func (e *fsError) Cause() error  { return e.cause }

// FsError wraps err so it can flow through an Entry.Err field and still be
// classified later. A nil err returns nil.
func FsError(err error) error {
	if err == nil {
		return nil
	}
	return &fsError{cause: pkgerrors.WithStack(err)}
}

// Cause unwraps an error produced by FsError (or any error implementing
// Cause()/Unwrap()) down to its root cause.
func Cause(err error) error {
	for err != nil {
		type causer interface{ Cause() error }
		if c, ok := err.(causer); ok {
			err = c.Cause()
			continue
		}
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
	return nil
}

var (
	countMu sync.Mutex
	count   int
)

// Count registers that an error occurred during traversal, so the caller
// (typically cmd/bfs) can decide the process exit code per spec §7
// ("the process exits non-zero if any error occurred") without the core
// depending on a CLI-level type.
func Count(err error) error {
	if err == nil {
		return nil
	}
	countMu.Lock()
	count++
	countMu.Unlock()
	return err
}

// Errored reports whether Count has ever been called with a non-nil error.
func Errored() bool {
	countMu.Lock()
	defer countMu.Unlock()
	return count > 0
}

// ResetCount clears the error counter. Exposed for tests and for
// long-lived hosts that run multiple traversals in one process.
func ResetCount() {
	countMu.Lock()
	count = 0
	countMu.Unlock()
}

// IsTransient reports whether err is one of the descriptor-exhaustion
// conditions the engine retries once after forcing an eviction
// (spec §4.1 "FD exhaustion").
func IsTransient(err error) bool {
	cause := Cause(FsError(err))
	if cause == nil {
		cause = err
	}
	return errors.Is(cause, syscall.EMFILE) || errors.Is(cause, syscall.ENFILE)
}

// Fatal marks an error as a setup failure that must reach the caller of
// bftw.Walk before any callback fires (spec §7 "fatal" class), rather than
// being embedded into an Entry.
type Fatal struct {
	cause error
}

func (e *Fatal) Error() string { return "fatal: " + e.cause.Error() }
func (e *Fatal) Unwrap() error { return e.cause }

// NewFatal wraps err as a Fatal error.
func NewFatal(err error) error {
	if err == nil {
		return nil
	}
	return &Fatal{cause: err}
}

// IsFatal reports whether err (or anything it wraps) is a Fatal error.
func IsFatal(err error) bool {
	var f *Fatal
	return errors.As(err, &f)
}
