package stepflow

import "time"

// Config holds configuration for the workflow engine.
type Config struct {
	// CoreWorkers is the number of resident workers executing step
	// dispatch.
	CoreWorkers int

	// MaxWorkers caps the total worker count. When the task queue is full
	// and fewer than MaxWorkers workers are live, overflow workers are
	// spawned and retired once the queue drains.
	MaxWorkers int

	// QueueCapacity bounds the dispatch task queue. A submission that
	// finds the queue full and MaxWorkers workers live is rejected with
	// ErrQueueFull.
	QueueCapacity int

	// DefaultStepTimeout bounds a single handler invocation when the step
	// does not set its own timeout. Zero means no timeout.
	DefaultStepTimeout time.Duration

	// DefaultMaxAttempts is the attempt budget per step entry for steps
	// without their own retry policy. 1 means no retries.
	DefaultMaxAttempts int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CoreWorkers:        4,
		MaxWorkers:         16,
		QueueCapacity:      256,
		DefaultStepTimeout: 0,
		DefaultMaxAttempts: 1,
		ShutdownTimeout:    30 * time.Second,
	}
}

// Normalize returns a copy of c with zero and out-of-range fields replaced
// by their defaults. MaxWorkers is raised to CoreWorkers when it is lower.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.CoreWorkers <= 0 {
		c.CoreWorkers = def.CoreWorkers
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.MaxWorkers < c.CoreWorkers {
		c.MaxWorkers = c.CoreWorkers
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}
