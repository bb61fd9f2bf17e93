package pool

import (
	"context"
	"sync/atomic"

	"github.com/koustreak/querypool/internal/errs"
)

// Handle is exclusive ownership of one pooled connection. Exactly one
// Release succeeds; it puts the connection back on the pool's idle stack,
// or discards it if the stack is full. After Release the handle is empty:
// Execute and a second Release fail with EmptyRelease.
//
// A Handle must not be shared between goroutines. Passing it to another
// goroutine (through a Future, for instance) transfers ownership.
type Handle[Q, R any] struct {
	pool *Pool[Q, R]
	id   ConnID
	e    atomic.Pointer[entry[Q, R]]
}

func newHandle[Q, R any](p *Pool[Q, R], e *entry[Q, R]) *Handle[Q, R] {
	h := &Handle[Q, R]{pool: p, id: e.id}
	h.e.Store(e)
	return h
}

// ID returns the id of the wrapped connection.
func (h *Handle[Q, R]) ID() ConnID {
	return h.id
}

// Execute runs q on the wrapped connection. Backend failures that are not
// already *errs.Error come back as QueryFailed.
func (h *Handle[Q, R]) Execute(ctx context.Context, q Q) (R, error) {
	var zero R
	if h == nil {
		return zero, errs.New(errs.ErrKindEmptyRelease, "execute on a nil handle")
	}
	e := h.e.Load()
	if e == nil {
		return zero, errs.New(errs.ErrKindEmptyRelease, "execute on a released handle")
	}

	v, err := e.conn.Execute(ctx, q)
	if err != nil {
		if errs.KindOf(err) == errs.ErrKindUnknown {
			err = errs.Wrap(errs.ErrKindQueryFailed, "query failed", err)
		}
		return zero, err
	}
	return v, nil
}

// Released reports whether the handle has already given up its connection.
func (h *Handle[Q, R]) Released() bool {
	return h == nil || h.e.Load() == nil
}

// Release gives the connection back to its pool.
func (h *Handle[Q, R]) Release() error {
	if h == nil {
		return errs.New(errs.ErrKindEmptyRelease, "trying to free an empty connection")
	}
	e := h.e.Swap(nil)
	if e == nil {
		return errs.New(errs.ErrKindEmptyRelease, "connection already released")
	}
	h.pool.release(e)
	return nil
}

// Discard closes the connection instead of returning it, for sessions left
// in an unknown state (a query that panicked mid-flight, for instance). It
// counts as the handle's one terminal action.
func (h *Handle[Q, R]) Discard() error {
	if h == nil {
		return errs.New(errs.ErrKindEmptyRelease, "trying to discard an empty connection")
	}
	e := h.e.Swap(nil)
	if e == nil {
		return errs.New(errs.ErrKindEmptyRelease, "connection already released")
	}
	_ = h.pool.discard(e)
	return nil
}

// Result pairs the value of one query with the connection that produced
// it. Releasing the result returns the connection to the pool.
type Result[Q, R any] struct {
	Conn  *Handle[Q, R]
	Value R
}

// Release returns the result's connection to the pool.
func (r *Result[Q, R]) Release() error {
	if r == nil {
		return errs.New(errs.ErrKindEmptyRelease, "release of a nil result")
	}
	return r.Conn.Release()
}
