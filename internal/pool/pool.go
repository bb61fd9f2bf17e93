// Package pool keeps a bounded stack of idle database connections and hands
// them out for exclusive use.
//
// Idle connections are reused most-recently-released first. A reused
// connection passes through the pool's Validator before it is handed out;
// when the stack is empty a new connection is built from the Connector.
// The pool lock only guards the idle stack: validation, connection
// construction and query execution all happen without it, so a slow
// backend never stalls other goroutines acquiring or releasing.
//
// Usage:
//
//	p, err := pool.New[Stmt, *ResultSet](connector, 8,
//	    pool.WithValidator(pool.NewPeriodicValidator(time.Hour)))
//	if err != nil { ... }
//	defer p.Close()
//
//	res, err := p.Submit(ctx, stmt)
//	if err != nil { ... }
//	defer res.Release()
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/logger"
)

const defaultNamePrefix = "pool"

var poolCounter atomic.Uint64

type options struct {
	name      string
	validator Validator
	log       *logger.Logger
}

// Option configures a Pool.
type Option func(o *options)

// WithName names the pool in logs and stats.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithValidator sets the validator applied on reuse. The default is
// AutomaticValidator.
func WithValidator(v Validator) Option {
	return func(o *options) {
		if v != nil {
			o.validator = v
		}
	}
}

// WithLogger sets the pool's logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

type entry[Q, R any] struct {
	id   ConnID
	conn Conn[Q, R]
}

// Pool is a bounded cache of idle connections. It is safe for concurrent use.
type Pool[Q, R any] struct {
	name      string
	connector Connector[Q, R]
	maxSize   int
	validator Validator
	log       *logger.Logger
	nextID    atomic.Uint64
	stats     stats

	mu     sync.Mutex
	idle   []*entry[Q, R]
	closed bool
}

// New returns a pool that keeps at most maxSize idle connections. A
// maxSize of zero is valid: every released connection is discarded.
// Connections are created lazily, on the first Acquire that finds the
// idle stack empty.
func New[Q, R any](connector Connector[Q, R], maxSize int, opts ...Option) (*Pool[Q, R], error) {
	if connector == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "no connector provided")
	}
	if maxSize < 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("max size must not be negative, got %d", maxSize))
	}

	o := options{
		validator: AutomaticValidator{},
		log:       logger.Global(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = fmt.Sprintf("%s-%d", defaultNamePrefix, poolCounter.Add(1))
	}

	return &Pool[Q, R]{
		name:      o.name,
		connector: connector,
		maxSize:   maxSize,
		validator: o.validator,
		log:       o.log.With().Str("pool", o.name).Logger(),
		idle:      make([]*entry[Q, R], 0, maxSize),
	}, nil
}

// Acquire hands out a connection for exclusive use. The most recently
// released idle connection is validated and returned; if validation fails
// the stale connection is discarded and a ReconnectFailed error returned
// (no retry with a fresh connection). With no idle connection a new one is
// built; a construction failure yields SpawnFailed.
func (p *Pool[Q, R]) Acquire(ctx context.Context) (*Handle[Q, R], error) {
	p.stats.acquires.Add(1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.stats.acquireFailures.Add(1)
		return nil, errs.New(errs.ErrKindPoolClosed, "pool is closed")
	}
	if n := len(p.idle); n > 0 {
		e := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return p.reuse(ctx, e)
	}
	p.mu.Unlock()

	return p.spawn(ctx)
}

func (p *Pool[Q, R]) reuse(ctx context.Context, e *entry[Q, R]) (*Handle[Q, R], error) {
	if err := p.validator.Validate(ctx, e.id, e.conn); err != nil {
		p.stats.acquireFailures.Add(1)
		p.log.WarnWith("idle connection failed validation", err, map[string]interface{}{
			"conn_id": uint64(e.id),
		})
		p.discard(e)
		return nil, errs.Wrap(errs.ErrKindReconnectFailed, "failed to retrieve a valid connection", err)
	}
	p.stats.reused.Add(1)
	return newHandle(p, e), nil
}

func (p *Pool[Q, R]) spawn(ctx context.Context) (*Handle[Q, R], error) {
	conn, err := p.connector.Connect(ctx)
	if err != nil {
		p.stats.acquireFailures.Add(1)
		p.log.WarnWith("connection spawn failed", err, nil)
		return nil, errs.Wrap(errs.ErrKindSpawnFailed, "failed to spawn a new connection", err)
	}
	if conn == nil {
		p.stats.acquireFailures.Add(1)
		return nil, errs.New(errs.ErrKindSpawnFailed, "connector returned a nil connection")
	}

	e := &entry[Q, R]{id: ConnID(p.nextID.Add(1)), conn: conn}
	p.stats.created.Add(1)
	p.log.DebugWith("connection created", map[string]interface{}{"conn_id": uint64(e.id)})
	return newHandle(p, e), nil
}

// Release returns h's connection to the pool. It is equivalent to
// h.Release(). Releasing a nil or already released handle is an
// EmptyRelease error; a handle from another pool is InvalidInput.
func (p *Pool[Q, R]) Release(h *Handle[Q, R]) error {
	if h != nil && h.pool != p {
		return errs.New(errs.ErrKindInvalidInput, "handle belongs to a different pool")
	}
	return h.Release()
}

// release pushes e back on the idle stack, or discards it when the stack is
// full or the pool is closed.
func (p *Pool[Q, R]) release(e *entry[Q, R]) {
	p.stats.releases.Add(1)

	p.mu.Lock()
	if !p.closed && len(p.idle) < p.maxSize {
		p.idle = append(p.idle, e)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.discard(e)
}

// discard deregisters e from the validator and closes it. e must not be
// reachable from the idle stack.
func (p *Pool[Q, R]) discard(e *entry[Q, R]) error {
	p.validator.Deregister(e.id)
	p.stats.discarded.Add(1)

	if err := e.conn.Close(); err != nil {
		p.log.WarnWith("closing discarded connection failed", err, map[string]interface{}{
			"conn_id": uint64(e.id),
		})
		return err
	}
	p.log.DebugWith("connection discarded", map[string]interface{}{"conn_id": uint64(e.id)})
	return nil
}

// Submit acquires a connection and runs q on it. On success the connection
// travels with the result and goes back to the pool when the result is
// released. On failure the connection is released before returning.
func (p *Pool[Q, R]) Submit(ctx context.Context, q Q) (*Result[Q, R], error) {
	h, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	v, err := h.Execute(ctx, q)
	if err != nil {
		_ = h.Release()
		return nil, err
	}
	return &Result[Q, R]{Conn: h, Value: v}, nil
}

// Do runs q synchronously and passes the outcome to fn after the
// connection is back in the pool.
func (p *Pool[Q, R]) Do(ctx context.Context, q Q, fn func(R, error)) {
	res, err := p.Submit(ctx, q)
	if err != nil {
		var zero R
		fn(zero, err)
		return
	}
	v := res.Value
	_ = res.Release()
	fn(v, nil)
}

// Close discards every idle connection. Connections still handed out are
// discarded as they are released. Acquire fails with PoolClosed afterwards.
func (p *Pool[Q, R]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var closeErrs []error
	for _, e := range idle {
		if err := p.discard(e); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	p.log.InfoWith("pool closed", map[string]interface{}{"drained": len(idle)})
	return errors.Join(closeErrs...)
}

// Name returns the pool name.
func (p *Pool[Q, R]) Name() string {
	return p.name
}

// MaxSize returns the idle capacity.
func (p *Pool[Q, R]) MaxSize() int {
	return p.maxSize
}

// Validator returns the validator the pool was built with.
func (p *Pool[Q, R]) Validator() Validator {
	return p.validator
}

// Stats returns a snapshot of pool activity.
func (p *Pool[Q, R]) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()

	created, discarded := p.stats.created.Load(), p.stats.discarded.Load()
	return Stats{
		Name:            p.name,
		MaxSize:         p.maxSize,
		Idle:            idle,
		Open:            created - discarded,
		Created:         created,
		Reused:          p.stats.reused.Load(),
		Discarded:       discarded,
		Acquires:        p.stats.acquires.Load(),
		AcquireFailures: p.stats.acquireFailures.Load(),
		Releases:        p.stats.releases.Load(),
	}
}
