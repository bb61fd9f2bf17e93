// Package executor runs zero-argument tasks on a fixed set of worker
// goroutines that share one FIFO queue.
//
// Tasks are started in the order they were posted, but with more than one
// worker nothing is guaranteed about completion order: two tasks posted
// back to back may finish in either order or concurrently. A task that
// panics is recovered and logged; the worker carries on with the next task.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/logger"
)

// Task is a unit of work. Discard, when set, is called instead of Run if
// the executor shuts down without draining before the task was started.
type Task struct {
	Run     func()
	Discard func(err error)
}

// Option configures an Executor.
type Option func(e *Executor)

// WithLogger sets the logger used for lifecycle and panic reports.
func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithName names the executor in logs.
func WithName(name string) Option {
	return func(e *Executor) {
		e.name = name
	}
}

// WithWorkerInit registers a hook each worker runs once before taking its
// first task. If any worker's hook fails, New stops the workers already
// running and returns an ExecutorStartupFailed error.
func WithWorkerInit(fn func(worker int) error) Option {
	return func(e *Executor) {
		e.init = fn
	}
}

// Executor is a fixed-size worker pool. It is safe for concurrent use.
type Executor struct {
	name  string
	cfg   Config
	log   *logger.Logger
	init  func(worker int) error
	stats stats

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	closed  bool
	workers int

	wg sync.WaitGroup
}

// New starts cfg.Concurrency workers. A nil cfg means DefaultConfig().
func New(cfg *Config, opts ...Option) (*Executor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Concurrency < 1 {
		return nil, errs.New(errs.ErrKindExecutorStartupFailed,
			fmt.Sprintf("concurrency must be at least 1, got %d", cfg.Concurrency))
	}

	e := &Executor{
		name: "executor",
		cfg:  *cfg,
		log:  logger.Global(),
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("executor", e.name).Logger()

	for i := 0; i < cfg.Concurrency; i++ {
		if err := e.spawn(i); err != nil {
			// Roll back: the workers already running must not outlive New.
			e.stop(false)
			e.wg.Wait()
			e.log.ErrorWith("executor startup failed", err, map[string]interface{}{
				"started": i,
				"wanted":  cfg.Concurrency,
			})
			return nil, errs.Wrap(errs.ErrKindExecutorStartupFailed,
				fmt.Sprintf("failed to start worker %d of %d", i+1, cfg.Concurrency), err)
		}
	}

	e.log.InfoWith("executor started", map[string]interface{}{
		"workers": cfg.Concurrency,
		"drain":   cfg.DrainOnShutdown,
	})
	return e, nil
}

// spawn starts worker id and waits until its init hook has run.
func (e *Executor) spawn(id int) error {
	ready := make(chan error, 1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if e.init != nil {
			if err := e.init(id); err != nil {
				ready <- err
				return
			}
		}
		ready <- nil
		e.loop()
	}()

	if err := <-ready; err != nil {
		return err
	}
	e.mu.Lock()
	e.workers++
	e.mu.Unlock()
	return nil
}

func (e *Executor) loop() {
	for {
		t, ok := e.next()
		if !ok {
			return
		}
		e.run(t)
	}
}

// next blocks until a task is available. It reports false once the
// executor is closed and nothing is left to run.
func (e *Executor) next() (Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.queue) == 0 && !e.closed {
		e.cond.Wait()
	}
	if len(e.queue) == 0 {
		return Task{}, false
	}
	t := e.queue[0]
	e.queue[0] = Task{}
	e.queue = e.queue[1:]
	return t, true
}

func (e *Executor) run(t Task) {
	e.stats.running.Add(1)
	defer func() {
		if r := recover(); r != nil {
			e.stats.panics.Add(1)
			e.log.ErrorWith("task panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"stack": string(debug.Stack()),
			})
		}
		e.stats.running.Add(-1)
		e.stats.completed.Add(1)
	}()
	if t.Run != nil {
		t.Run()
	}
}

// Post queues fn for execution by the next free worker.
func (e *Executor) Post(fn func()) error {
	return e.PostTask(Task{Run: fn})
}

// PostTask queues t. It fails with ExecutorClosed once Shutdown has begun.
func (e *Executor) PostTask(t Task) error {
	if t.Run == nil {
		return errs.New(errs.ErrKindInvalidInput, "task has no Run func")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errs.New(errs.ErrKindExecutorClosed, "executor is shut down")
	}
	e.queue = append(e.queue, t)
	e.cond.Signal()
	return nil
}

// Shutdown stops accepting tasks and waits for every worker to exit.
// Queued tasks are drained or discarded according to DrainOnShutdown; a
// task that is already running is always allowed to finish. If ctx expires
// first, Shutdown returns a Timeout error while the workers keep winding
// down in the background. It is safe to call more than once.
//
// Shutdown waits for every worker, including the one running the caller
// when it is called from inside a task. A task must therefore pass a ctx
// with a deadline, and expect a Timeout error, or hand the call to another
// goroutine. Close from inside a task never returns.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.stop(e.cfg.DrainOnShutdown)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Debug("executor stopped")
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.ErrKindTimeout, "executor shutdown did not complete", ctx.Err())
	}
}

// Close is Shutdown without a deadline. It must not be called from a task.
func (e *Executor) Close() error {
	return e.Shutdown(context.Background())
}

func (e *Executor) stop(drain bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	var dropped []Task
	if !drain {
		dropped = e.queue
		e.queue = nil
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	if len(dropped) > 0 {
		e.log.WarnWith("discarding queued tasks", nil, map[string]interface{}{"count": len(dropped)})
	}
	closedErr := errs.New(errs.ErrKindExecutorClosed, "executor shut down before the task ran")
	for _, t := range dropped {
		e.stats.discarded.Add(1)
		if t.Discard != nil {
			t.Discard(closedErr)
		}
	}
}

// Stats returns a snapshot of executor activity.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	queued, workers := len(e.queue), e.workers
	e.mu.Unlock()

	return Stats{
		Workers:   workers,
		Queued:    queued,
		Running:   e.stats.running.Load(),
		Completed: e.stats.completed.Load(),
		Panics:    e.stats.panics.Load(),
		Discarded: e.stats.discarded.Load(),
	}
}

// Logger returns the executor's logger, already tagged with its name.
func (e *Executor) Logger() *logger.Logger {
	return e.log
}

// Name returns the name used in logs.
func (e *Executor) Name() string {
	return e.name
}
