package executor

import "runtime"

// Config holds the settings for an Executor.
type Config struct {
	// Concurrency is the number of worker goroutines. Must be at least 1.
	Concurrency int `yaml:"concurrency" env:"QUERYPOOL_EXECUTOR_CONCURRENCY"`

	// DrainOnShutdown runs every task still queued at Shutdown before the
	// workers exit. When false, queued tasks are discarded and each one's
	// Discard hook is told the executor closed.
	DrainOnShutdown bool `yaml:"drain_on_shutdown" env:"QUERYPOOL_EXECUTOR_DRAIN"`
}

// DefaultConfig returns one worker per CPU and drains on shutdown.
func DefaultConfig() *Config {
	return &Config{
		Concurrency:     runtime.NumCPU(),
		DrainOnShutdown: true,
	}
}
