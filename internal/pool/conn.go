package pool

import "context"

// ConnID identifies one physical connection for its whole lifetime. The
// pool assigns it when the connection is constructed; validators key their
// bookkeeping by it.
type ConnID uint64

// Checker is the part of a connection a Validator needs.
type Checker interface {
	// IsValid reports whether the session is still usable.
	IsValid(ctx context.Context) bool

	// Reconnect re-establishes the session in place.
	Reconnect(ctx context.Context) error
}

// Conn is one live session with a backing data store. Q is the query type
// the backend accepts and R the result it produces. A Conn is only ever
// used by one goroutine at a time; the pool guarantees exclusive ownership.
type Conn[Q, R any] interface {
	Checker

	// Execute runs q on this session.
	Execute(ctx context.Context, q Q) (R, error)

	// Close releases the session's resources.
	Close() error
}

// Connector builds new connections. It carries the immutable config every
// connection of a pool is created from.
type Connector[Q, R any] interface {
	Connect(ctx context.Context) (Conn[Q, R], error)
}

// ConnectorFunc adapts a plain function to Connector.
type ConnectorFunc[Q, R any] func(ctx context.Context) (Conn[Q, R], error)

func (f ConnectorFunc[Q, R]) Connect(ctx context.Context) (Conn[Q, R], error) {
	return f(ctx)
}
