package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// fakeConn is an in-memory Conn[string, string].
type fakeConn struct {
	n            int
	invalid      atomic.Bool
	reconnectErr error
	execErr      error

	checks     atomic.Int32
	reconnects atomic.Int32
	closed     atomic.Bool
}

func (c *fakeConn) Execute(_ context.Context, q string) (string, error) {
	if c.execErr != nil {
		return "", c.execErr
	}
	return fmt.Sprintf("conn-%d:%s", c.n, q), nil
}

func (c *fakeConn) IsValid(context.Context) bool {
	c.checks.Add(1)
	return !c.invalid.Load()
}

func (c *fakeConn) Reconnect(context.Context) error {
	c.reconnects.Add(1)
	if c.reconnectErr != nil {
		return c.reconnectErr
	}
	c.invalid.Store(false)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// fakeConnector records every connection it builds.
type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error

	// configure, when set, runs on each new connection before it is returned.
	configure func(c *fakeConn)
}

func (f *fakeConnector) Connect(context.Context) (Conn[string, string], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{n: len(f.conns) + 1}
	if f.configure != nil {
		f.configure(c)
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeConnector) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeConnector) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

// recordingValidator wraps another validator and counts deregistrations.
type recordingValidator struct {
	Validator
	deregistered atomic.Int32
}

func (v *recordingValidator) Deregister(id ConnID) {
	v.deregistered.Add(1)
	v.Validator.Deregister(id)
}

// gateValidator blocks in Validate until gate is closed.
type gateValidator struct {
	entered chan struct{}
	gate    chan struct{}
}

func (v *gateValidator) Validate(context.Context, ConnID, Checker) error {
	close(v.entered)
	<-v.gate
	return nil
}

func (v *gateValidator) Deregister(ConnID) {}

var errRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
