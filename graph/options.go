package graph

import (
	"fmt"
	"time"

	"github.com/statekit/stategraph/graph/emit"
)

// DefaultRecursionLimit is the per-call ceiling on node executions when no
// explicit limit is configured. It guards against accidental infinite loops
// while leaving room for deliberately cyclic graphs.
const DefaultRecursionLimit = 25

// DefaultMaxConcurrent is the Batch worker-pool size when not configured.
const DefaultMaxConcurrent = 8

// Options configures Engine execution behavior.
// Zero values fall back to sensible defaults at Compile.
type Options struct {
	// RecursionLimit is the maximum number of node executions permitted
	// within one Invoke/Stream/Replay call. The counter is per call and
	// resets to zero at the start of each call. Exceeding it returns
	// ErrRecursionLimit; the thread remains resumable at its last
	// checkpoint.
	RecursionLimit int

	// MaxConcurrent bounds the worker pool used by Batch.
	MaxConcurrent int

	// NodeTimeout is the engine-wide ceiling on a single node execution.
	// Zero means no timeout. A timed-out node fails the call like any node
	// error: no checkpoint is written for the failed step.
	NodeTimeout time.Duration

	// Emitter receives observability events. Nil disables emission.
	Emitter emit.Emitter

	// Metrics records Prometheus metrics. Nil disables recording.
	Metrics *PrometheusMetrics
}

// Option is a functional option applied at Compile.
type Option func(*Options) error

func defaultOptions() Options {
	return Options{
		RecursionLimit: DefaultRecursionLimit,
		MaxConcurrent:  DefaultMaxConcurrent,
	}
}

// WithRecursionLimit sets the default per-call ceiling on node executions.
// Individual calls may override it with WithLimit.
func WithRecursionLimit(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			return fmt.Errorf("recursion limit must be positive, got %d", n)
		}
		o.RecursionLimit = n
		return nil
	}
}

// WithMaxConcurrent bounds the Batch worker pool.
func WithMaxConcurrent(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			return fmt.Errorf("max concurrent must be positive, got %d", n)
		}
		o.MaxConcurrent = n
		return nil
	}
}

// WithNodeTimeout sets the engine-wide ceiling on a single node execution.
func WithNodeTimeout(d time.Duration) Option {
	return func(o *Options) error {
		if d < 0 {
			return fmt.Errorf("node timeout must not be negative, got %s", d)
		}
		o.NodeTimeout = d
		return nil
	}
}

// WithEmitter directs observability events to the given emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(o *Options) error {
		o.Emitter = e
		return nil
	}
}

// WithMetrics records execution metrics to the given collector.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(o *Options) error {
		o.Metrics = m
		return nil
	}
}

// CallOption adjusts a single Invoke, Stream, Replay, or Batch call.
type CallOption func(*callConfig)

type callConfig struct {
	limit int
}

// WithLimit overrides the engine's recursion limit for one call.
func WithLimit(n int) CallOption {
	return func(c *callConfig) {
		c.limit = n
	}
}
