package pool

import "sync/atomic"

type stats struct {
	created         atomic.Int64
	reused          atomic.Int64
	discarded       atomic.Int64
	acquires        atomic.Int64
	acquireFailures atomic.Int64
	releases        atomic.Int64
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Name    string
	MaxSize int

	// Idle connections waiting on the stack.
	Idle int

	// Open connections, idle or handed out.
	Open int64

	Created         int64 // connections constructed
	Reused          int64 // acquisitions served from the idle stack
	Discarded       int64 // connections closed (over capacity, failed validation, pool close)
	Acquires        int64 // Acquire calls
	AcquireFailures int64 // Acquire calls that returned an error
	Releases        int64 // successful releases
}

// InUse returns the number of connections currently handed out.
func (s Stats) InUse() int64 {
	return s.Open - int64(s.Idle)
}
