// Package dispatch runs pooled queries asynchronously.
//
// Query hands a query to an Executor and returns a Future at once; a
// worker acquires a connection, runs the query and resolves the future
// with the result or the failure, exactly once. Service bundles a pool
// with an executor of its own and adds callback-style posting.
//
// Nothing here cancels a query once a worker has picked it up.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/executor"
	"github.com/koustreak/querypool/internal/future"
	"github.com/koustreak/querypool/internal/logger"
	"github.com/koustreak/querypool/internal/pool"
)

// Query posts q to exec and returns a future for its result. The future's
// value owns the connection the query ran on; release it when done. Acquire
// and execute failures, a panicking query, and an executor that refuses or
// drops the task all arrive as the future's failure.
func Query[Q, R any](exec *executor.Executor, p *pool.Pool[Q, R], q Q) *future.Future[*pool.Result[Q, R]] {
	promise, fut := future.New[*pool.Result[Q, R]]()
	log := exec.Logger().With().
		Str("pool", p.Name()).
		Str("task_id", uuid.NewString()).
		Logger()

	resolve := func(res *pool.Result[Q, R], err error) {
		var rerr error
		if err != nil {
			rerr = promise.SetFailure(err)
		} else {
			rerr = promise.SetValue(res)
		}
		if rerr != nil {
			// A broken task resolved twice; the first outcome stands.
			log.ErrorWith("query promise resolved twice", rerr, nil)
			if res != nil {
				_ = res.Release()
			}
		}
	}

	err := exec.PostTask(executor.Task{
		Run: func() {
			res, err := run(context.Background(), p, q, log)
			resolve(res, err)
		},
		Discard: func(err error) {
			resolve(nil, err)
		},
	})
	if err != nil {
		resolve(nil, err)
	}
	return fut
}

// run acquires a connection and executes q on it. A panic in the backend is
// turned into a QueryFailed error and the connection, whose state is then
// unknown, is discarded rather than pooled.
func run[Q, R any](ctx context.Context, p *pool.Pool[Q, R], q Q, log *logger.Logger) (res *pool.Result[Q, R], err error) {
	var h *pool.Handle[Q, R]
	defer func() {
		if r := recover(); r != nil {
			if h != nil && !h.Released() {
				_ = h.Discard()
			}
			res = nil
			err = errs.New(errs.ErrKindQueryFailed, fmt.Sprintf("query panicked: %v", r))
			log.ErrorWith("query panicked", err, nil)
		}
	}()

	h, err = p.Acquire(ctx)
	if err != nil {
		log.DebugWith("acquire failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	v, err := h.Execute(ctx, q)
	if err != nil {
		_ = h.Release()
		return nil, err
	}
	return &pool.Result[Q, R]{Conn: h, Value: v}, nil
}
