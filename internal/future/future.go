// Package future provides a one-shot, goroutine-safe handoff of a single
// value or failure from the goroutine that produces it to any number of
// goroutines that wait for it.
//
// A Promise is resolved exactly once, with SetValue or SetFailure. A second
// resolution is a programming error and is reported as a DoubleResolution
// error; it never overwrites the first outcome. Future.Get blocks until the
// promise is resolved and is idempotent: every call after resolution
// observes the same value or failure.
package future

import (
	"context"
	"sync"

	"github.com/koustreak/querypool/internal/errs"
)

type state[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// Promise is the producer side.
type Promise[T any] struct {
	st *state[T]
}

// Future is the consumer side.
type Future[T any] struct {
	st *state[T]
}

// New returns a connected promise/future pair.
func New[T any]() (*Promise[T], *Future[T]) {
	st := &state[T]{done: make(chan struct{})}
	return &Promise[T]{st: st}, &Future[T]{st: st}
}

// Future returns the consumer side paired with p.
func (p *Promise[T]) Future() *Future[T] {
	return &Future[T]{st: p.st}
}

// SetValue resolves the promise with v.
func (p *Promise[T]) SetValue(v T) error {
	return p.resolve(v, nil)
}

// SetFailure resolves the promise with err. A nil err is rejected, since a
// consumer must never see a zero value with no failure attached.
func (p *Promise[T]) SetFailure(err error) error {
	if err == nil {
		return errs.New(errs.ErrKindInvalidInput, "promise failure must be non-nil")
	}
	var zero T
	return p.resolve(zero, err)
}

func (p *Promise[T]) resolve(v T, err error) error {
	resolved := false
	p.st.once.Do(func() {
		p.st.value = v
		p.st.err = err
		close(p.st.done)
		resolved = true
	})
	if !resolved {
		return errs.New(errs.ErrKindDoubleResolution, "promise already resolved")
	}
	return nil
}

// Get blocks until the promise is resolved and returns its outcome.
func (f *Future[T]) Get() (T, error) {
	<-f.st.done
	return f.st.value, f.st.err
}

// Wait is Get bounded by ctx. A ctx expiry does not consume or alter the
// outcome; a later Get still observes it.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.st.done:
		return f.st.value, f.st.err
	case <-ctx.Done():
		var zero T
		return zero, errs.Wrap(errs.ErrKindTimeout, "waiting for future", ctx.Err())
	}
}

// Done is closed once the promise is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.st.done
}

// Ready reports whether the promise has been resolved, without blocking.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.st.done:
		return true
	default:
		return false
	}
}
