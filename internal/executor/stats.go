package executor

import "sync/atomic"

type stats struct {
	running   atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
	discarded atomic.Int64
}

// Stats is a point-in-time snapshot of executor activity.
type Stats struct {
	Workers   int   // worker goroutines started
	Queued    int   // tasks waiting for a worker
	Running   int64 // tasks currently executing
	Completed int64 // tasks that returned (including ones that panicked)
	Panics    int64 // tasks that panicked and were recovered
	Discarded int64 // tasks dropped at shutdown without running
}
