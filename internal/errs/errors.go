// Package errs provides the unified error type used across querypool.
//
// The pool, the executor, the promise channel and every backend wrap their
// failures into *errs.Error before returning them. Callers use the Is*
// predicates to branch on the failure without importing backend packages.
//
// Usage:
//
//	// In a backend, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "query failed", pgErr)
//
//	// At the call site, check the error kind:
//	res, err := fut.Get()
//	if errs.IsReconnectFailed(err) {
//	    // the idle connection was stale and could not be restored
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing backend-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no bucket
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure

	ErrKindReconnectFailed       // validator could not restore a stale connection
	ErrKindSpawnFailed           // a new connection could not be constructed
	ErrKindEmptyRelease          // release of a nil or already released handle
	ErrKindExecutorStartupFailed // workers could not be started
	ErrKindDoubleResolution      // promise resolved twice
	ErrKindPoolClosed            // pool used after Close
	ErrKindExecutorClosed        // task posted to (or dropped by) a stopped executor
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindReconnectFailed:
		return "reconnect_failed"
	case ErrKindSpawnFailed:
		return "spawn_failed"
	case ErrKindEmptyRelease:
		return "empty_release"
	case ErrKindExecutorStartupFailed:
		return "executor_startup_failed"
	case ErrKindDoubleResolution:
		return "double_resolution"
	case ErrKindPoolClosed:
		return "pool_closed"
	case ErrKindExecutorClosed:
		return "executor_closed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all querypool subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original backend-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two *Error values of the same kind, so sentinel-style
// comparisons like errors.Is(err, errs.New(errs.ErrKindEmptyRelease, "")) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsReconnectFailed reports whether a stale pooled connection could not be restored.
func IsReconnectFailed(err error) bool {
	return KindOf(err) == ErrKindReconnectFailed
}

// IsSpawnFailed reports whether constructing a new connection failed.
func IsSpawnFailed(err error) bool {
	return KindOf(err) == ErrKindSpawnFailed
}

// IsEmptyRelease reports whether a nil or already released handle was released.
func IsEmptyRelease(err error) bool {
	return KindOf(err) == ErrKindEmptyRelease
}

// IsExecutorStartupFailed reports whether the executor could not start its workers.
func IsExecutorStartupFailed(err error) bool {
	return KindOf(err) == ErrKindExecutorStartupFailed
}

// IsDoubleResolution reports whether a promise was resolved more than once.
func IsDoubleResolution(err error) bool {
	return KindOf(err) == ErrKindDoubleResolution
}

// IsPoolClosed reports whether the pool had already been closed.
func IsPoolClosed(err error) bool {
	return KindOf(err) == ErrKindPoolClosed
}

// IsExecutorClosed reports whether the executor refused or dropped a task.
func IsExecutorClosed(err error) bool {
	return KindOf(err) == ErrKindExecutorClosed
}

// KindOf extracts the ErrKind from the first *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
