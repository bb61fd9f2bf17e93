package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/executor"
	"github.com/koustreak/querypool/internal/future"
	"github.com/koustreak/querypool/internal/pool"
)

// Service is a pool paired with an executor it owns.
type Service[Q, R any] struct {
	pool *pool.Pool[Q, R]
	exec *executor.Executor
}

// NewService starts an executor for p. cfg and opts are passed to
// executor.New; the executor is named after the pool unless opts say
// otherwise.
func NewService[Q, R any](p *pool.Pool[Q, R], cfg *executor.Config, opts ...executor.Option) (*Service[Q, R], error) {
	if p == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "no pool provided")
	}
	opts = append([]executor.Option{executor.WithName(p.Name())}, opts...)
	exec, err := executor.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Service[Q, R]{pool: p, exec: exec}, nil
}

// Post queues q and, once it has run, queues callback as a separate task.
// The connection is back in the pool before callback is queued, and
// callback runs on one of the service's workers, never on the
// goroutine calling Post. If the service shuts down without draining
// before q was started, callback receives the ExecutorClosed error on the
// goroutine running Shutdown. If q has already run when the queued
// callback is discarded, callback still receives q's outcome, again on the
// goroutine running Shutdown. Either way callback runs exactly once.
func (s *Service[Q, R]) Post(q Q, callback func(R, error)) error {
	if callback == nil {
		return errs.New(errs.ErrKindInvalidInput, "no callback provided")
	}
	log := s.exec.Logger().With().Str("task_id", uuid.NewString()).Logger()

	return s.exec.PostTask(executor.Task{
		Run: func() {
			var v R
			res, err := run(context.Background(), s.pool, q, log)
			if res != nil {
				v = res.Value
				_ = res.Release()
			}

			notify := func() { callback(v, err) }
			perr := s.exec.PostTask(executor.Task{
				Run:     notify,
				Discard: func(error) { notify() },
			})
			if perr != nil {
				// Shutting down: this goroutine is still a worker, so the
				// callback keeps its guarantee when run here.
				notify()
			}
		},
		Discard: func(err error) {
			var zero R
			callback(zero, err)
		},
	})
}

// Dispatch is Query on the service's own executor.
func (s *Service[Q, R]) Dispatch(q Q) *future.Future[*pool.Result[Q, R]] {
	return Query(s.exec, s.pool, q)
}

// Pool returns the service's pool.
func (s *Service[Q, R]) Pool() *pool.Pool[Q, R] {
	return s.pool
}

// Executor returns the service's executor.
func (s *Service[Q, R]) Executor() *executor.Executor {
	return s.exec
}

// Shutdown stops the executor. The pool is left open; it belongs to the caller.
func (s *Service[Q, R]) Shutdown(ctx context.Context) error {
	return s.exec.Shutdown(ctx)
}

// Close is Shutdown without a deadline.
func (s *Service[Q, R]) Close() error {
	return s.exec.Close()
}
