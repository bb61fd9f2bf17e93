package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/executor"
	"github.com/koustreak/querypool/internal/logger"
	"github.com/koustreak/querypool/internal/pool"
)

// memConn answers every query with "<query>@<conn number>".
type memConn struct {
	n      int64
	exec   func(q string) (string, error)
	closed atomic.Bool
}

func (c *memConn) Execute(_ context.Context, q string) (string, error) {
	if c.exec != nil {
		return c.exec(q)
	}
	return q, nil
}

func (c *memConn) IsValid(context.Context) bool    { return true }
func (c *memConn) Reconnect(context.Context) error { return nil }
func (c *memConn) Close() error                    { c.closed.Store(true); return nil }

type memConnector struct {
	created atomic.Int64
	err     error
	exec    func(q string) (string, error)
}

func (m *memConnector) Connect(context.Context) (pool.Conn[string, string], error) {
	if m.err != nil {
		return nil, m.err
	}
	return &memConn{n: m.created.Add(1), exec: m.exec}, nil
}

func newPool(t *testing.T, c *memConnector, maxSize int) *pool.Pool[string, string] {
	t.Helper()
	p, err := pool.New[string, string](c, maxSize,
		pool.WithValidator(pool.NoneValidator{}),
		pool.WithLogger(logger.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newExecutor(t *testing.T, workers int, drain bool) *executor.Executor {
	t.Helper()
	e, err := executor.New(&executor.Config{Concurrency: workers, DrainOnShutdown: drain},
		executor.WithLogger(logger.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// hold occupies one worker of e until the returned func is called.
func hold(t *testing.T, e *executor.Executor) func() {
	t.Helper()
	started := make(chan struct{})
	gate := make(chan struct{})
	require.NoError(t, e.Post(func() {
		close(started)
		<-gate
	}))
	<-started
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func getWithin(t *testing.T, d time.Duration, get func() (*pool.Result[string, string], error)) (*pool.Result[string, string], error) {
	t.Helper()
	type outcome struct {
		res *pool.Result[string, string]
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := get()
		ch <- outcome{res, err}
	}()
	select {
	case o := <-ch:
		return o.res, o.err
	case <-time.After(d):
		t.Fatal("future was never resolved")
		return nil, nil
	}
}

// Scenario A: one-slot pool, a synchronous insert, then two async selects.
func TestQuery_ScenarioA(t *testing.T) {
	c := &memConnector{}
	p := newPool(t, c, 1)
	exec := newExecutor(t, 2, true)
	ctx := context.Background()

	h, err := p.Acquire(ctx)
	require.NoError(t, err)
	v, err := h.Execute(ctx, "insert into tab_bar")
	require.NoError(t, err)
	assert.Equal(t, "insert into tab_bar", v)
	require.NoError(t, h.Release())

	f1 := Query(exec, p, "select alpha from tab_bar")
	f2 := Query(exec, p, "select beta from tab_bar")

	r1, err := getWithin(t, 2*time.Second, f1.Get)
	require.NoError(t, err)
	r2, err := getWithin(t, 2*time.Second, f2.Get)
	require.NoError(t, err)

	assert.Equal(t, "select alpha from tab_bar", r1.Value)
	assert.Equal(t, "select beta from tab_bar", r2.Value)
	assert.NotEqual(t, r1.Conn.ID(), r2.Conn.ID(), "live results never share a connection")
	// Two results held at once may need a second connection; never more.
	assert.LessOrEqual(t, c.created.Load(), int64(2))

	require.NoError(t, r1.Release())
	require.NoError(t, r2.Release())
	s := p.Stats()
	assert.Equal(t, 1, s.Idle)
	assert.Equal(t, s.Created-1, s.Discarded)
}

func TestQuery_SequentialReusesOneConnection(t *testing.T) {
	c := &memConnector{}
	p := newPool(t, c, 1)
	exec := newExecutor(t, 2, true)

	for _, q := range []string{"insert into tab_bar", "select * from tab_bar", "select 1"} {
		res, err := getWithin(t, 2*time.Second, Query(exec, p, q).Get)
		require.NoError(t, err)
		assert.Equal(t, q, res.Value)
		require.NoError(t, res.Release())
	}
	assert.Equal(t, int64(1), c.created.Load())
}

func TestQuery_NoLostWakeUp(t *testing.T) {
	p := newPool(t, &memConnector{}, 1)
	exec := newExecutor(t, 1, true)
	release := hold(t, exec)
	defer release()

	f := Query(exec, p, "select 42")

	got := make(chan string, 1)
	go func() {
		res, err := f.Get() // waits before the task is even scheduled
		if err == nil {
			got <- res.Value
			_ = res.Release()
		}
	}()

	select {
	case <-got:
		t.Fatal("future resolved while its task was still queued")
	case <-time.After(20 * time.Millisecond):
	}
	assert.False(t, f.Ready())

	release()
	select {
	case v := <-got:
		assert.Equal(t, "select 42", v)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was never woken")
	}
}

func TestQuery_GetTwiceReturnsSameResult(t *testing.T) {
	p := newPool(t, &memConnector{}, 1)
	exec := newExecutor(t, 1, true)

	f := Query(exec, p, "select 1")
	r1, err := getWithin(t, 2*time.Second, f.Get)
	require.NoError(t, err)
	r2, err := f.Get()
	require.NoError(t, err)
	assert.Same(t, r1, r2)

	require.NoError(t, r1.Release())
	assert.True(t, errs.IsEmptyRelease(r2.Release()))
}

func TestQuery_Failures(t *testing.T) {
	syntaxErr := errors.New("syntax error")
	tests := []struct {
		name      string
		connector *memConnector
		check     func(error) bool
		wantIdle  int
	}{
		{
			name:      "spawn failure",
			connector: &memConnector{err: errors.New("connection refused")},
			check:     errs.IsSpawnFailed,
		},
		{
			name: "execute failure",
			connector: &memConnector{exec: func(string) (string, error) {
				return "", syntaxErr
			}},
			check:    errs.IsQueryFailed,
			wantIdle: 1,
		},
		{
			name: "execute panics",
			connector: &memConnector{exec: func(string) (string, error) {
				panic("driver bug")
			}},
			check:    errs.IsQueryFailed,
			wantIdle: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPool(t, tt.connector, 1)
			exec := newExecutor(t, 1, true)

			res, err := getWithin(t, 2*time.Second, Query(exec, p, "select 1").Get)
			assert.Nil(t, res)
			assert.True(t, tt.check(err), "got %v", err)
			assert.Equal(t, tt.wantIdle, p.Stats().Idle)

			// The worker survives and keeps serving.
			assert.Zero(t, exec.Stats().Panics, "panics are handled inside the task")
		})
	}
}

func TestQuery_ExecutorClosed(t *testing.T) {
	p := newPool(t, &memConnector{}, 1)
	exec := newExecutor(t, 1, true)
	require.NoError(t, exec.Close())

	f := Query(exec, p, "select 1")
	assert.True(t, f.Ready(), "a refused task resolves at once")
	_, err := f.Get()
	assert.True(t, errs.IsExecutorClosed(err))
}

func TestQuery_DiscardedAtShutdown(t *testing.T) {
	c := &memConnector{}
	p := newPool(t, c, 1)
	exec := newExecutor(t, 1, false)
	release := hold(t, exec)

	f := Query(exec, p, "select 1")

	done := make(chan error, 1)
	go func() { done <- exec.Shutdown(context.Background()) }()

	_, err := getWithin(t, 2*time.Second, f.Get)
	assert.True(t, errs.IsExecutorClosed(err))

	release()
	require.NoError(t, <-done)
	assert.Zero(t, c.created.Load(), "a discarded query never touches the pool")
}

func TestService_PostTwoHop(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	c := &memConnector{exec: func(q string) (string, error) {
		record("query")
		return q, nil
	}}
	p := newPool(t, c, 1)
	svc, err := NewService(p, &executor.Config{Concurrency: 1, DrainOnShutdown: true},
		executor.WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer svc.Close()

	release := hold(t, svc.Executor())

	type outcome struct {
		v    string
		err  error
		idle int
	}
	got := make(chan outcome, 1)
	require.NoError(t, svc.Post("select 1", func(v string, err error) {
		record("callback")
		got <- outcome{v, err, p.Stats().Idle}
	}))
	require.NoError(t, svc.Executor().Post(func() { record("other") }))

	release()
	var o outcome
	select {
	case o = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}

	require.NoError(t, o.err)
	assert.Equal(t, "select 1", o.v)
	assert.Equal(t, 1, o.idle, "connection is back in the pool before the callback")

	mu.Lock()
	defer mu.Unlock()
	// The callback was queued behind "other": it is a second task, not an inline call.
	assert.Equal(t, []string{"query", "other", "callback"}, order)
}

func TestService_PostDeliversOutcomeWhenCallbackDiscarded(t *testing.T) {
	queryGate := make(chan struct{})
	queryStarted := make(chan struct{})
	c := &memConnector{exec: func(q string) (string, error) {
		close(queryStarted)
		<-queryGate
		return q, nil
	}}
	p := newPool(t, c, 1)
	svc, err := NewService(p, &executor.Config{Concurrency: 2, DrainOnShutdown: false},
		executor.WithLogger(logger.Nop()))
	require.NoError(t, err)

	releaseA := hold(t, svc.Executor())

	type outcome struct {
		v   string
		err error
	}
	got := make(chan outcome, 2)
	require.NoError(t, svc.Post("insert into tab_bar", func(v string, err error) {
		got <- outcome{v, err}
	}))
	<-queryStarted

	// Both workers are busy, so this waits in the queue ahead of the callback.
	blockerGate := make(chan struct{})
	require.NoError(t, svc.Executor().Post(func() { <-blockerGate }))

	close(queryGate)
	require.Eventually(t, func() bool {
		s := svc.Executor().Stats()
		return s.Queued == 1 && s.Running == 2
	}, 2*time.Second, 5*time.Millisecond, "callback should be queued behind the blocker")

	done := make(chan error, 1)
	go func() { done <- svc.Shutdown(context.Background()) }()

	select {
	case o := <-got:
		require.NoError(t, o.err, "the query ran, so its outcome is delivered")
		assert.Equal(t, "insert into tab_bar", o.v)
	case <-time.After(2 * time.Second):
		t.Fatal("callback for a query that already ran was never invoked")
	}

	releaseA()
	close(blockerGate)
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), svc.Executor().Stats().Discarded)
	assert.Len(t, got, 0, "callback runs exactly once")
}

func TestService_PostCallbackNotOnCaller(t *testing.T) {
	p := newPool(t, &memConnector{}, 1)
	svc, err := NewService(p, &executor.Config{Concurrency: 2}, executor.WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer svc.Close()

	// The callback cannot finish until Post has returned; an inline call
	// would deadlock here.
	gate := make(chan struct{})
	called := make(chan struct{})
	posted := make(chan error, 1)
	go func() {
		posted <- svc.Post("select 1", func(string, error) {
			<-gate
			close(called)
		})
	}()

	select {
	case err := <-posted:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Post ran the callback on the caller")
	}
	close(gate)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestService_PostErrors(t *testing.T) {
	p := newPool(t, &memConnector{err: errors.New("refused")}, 1)
	svc, err := NewService(p, &executor.Config{Concurrency: 1, DrainOnShutdown: true},
		executor.WithLogger(logger.Nop()))
	require.NoError(t, err)

	assert.True(t, errs.IsInvalidInput(svc.Post("select 1", nil)))

	got := make(chan error, 1)
	require.NoError(t, svc.Post("select 1", func(_ string, err error) { got <- err }))
	select {
	case err := <-got:
		assert.True(t, errs.IsSpawnFailed(err))
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}

	require.NoError(t, svc.Close())
	assert.True(t, errs.IsExecutorClosed(svc.Post("select 1", func(string, error) {})))
}

func TestService_Dispatch(t *testing.T) {
	p := newPool(t, &memConnector{}, 1)
	svc, err := NewService(p, &executor.Config{Concurrency: 1}, executor.WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer svc.Close()

	assert.Same(t, p, svc.Pool())
	assert.Equal(t, p.Name(), svc.Executor().Name())

	res, err := getWithin(t, 2*time.Second, svc.Dispatch("select 7").Get)
	require.NoError(t, err)
	assert.Equal(t, "select 7", res.Value)
	require.NoError(t, res.Release())
}

func TestNewService_Errors(t *testing.T) {
	_, err := NewService[string, string](nil, nil)
	assert.True(t, errs.IsInvalidInput(err))

	p := newPool(t, &memConnector{}, 1)
	_, err = NewService(p, &executor.Config{Concurrency: 0}, executor.WithLogger(logger.Nop()))
	assert.True(t, errs.IsExecutorStartupFailed(err))
}
