package softcache

import "log/slog"

type options struct {
	logger       *Logger
	slotTracking bool
	boundsCheck  bool
	maxWorkers   int
}

// Option configures cache constructor behavior.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := softcache.NewJSONLogger(slog.LevelInfo)
//	c, _ := softcache.New[int32]("lines", r, c, l, f, softcache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithSlotTracking records every resident slot a scatter ever writes.
// Intended for verification; adds per-batch bookkeeping to the scatter
// path. Off by default.
func WithSlotTracking() Option {
	return func(o *options) {
		o.slotTracking = true
	}
}

// WithBoundsCheck validates every transfer index against the table shape
// before any element is written. Off by default: the release path performs
// no checks and an out-of-range index is a fatal runtime panic.
func WithBoundsCheck() Option {
	return func(o *options) {
		o.boundsCheck = true
	}
}

// WithMaxWorkers caps the scatter/gather worker count and forces the
// parallel strategy regardless of batch size. 0 leaves the choice to the
// planner.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		o.maxWorkers = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger: NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

type buildOptions struct {
	optimiseForMemory bool
}

// BuildOption configures a single Build call.
type BuildOption func(*buildOptions)

// OptimiseForMemory trades transfer speed for memory: the sequential
// scatter/gather strategy is chosen, which needs no worker pool and no
// per-slot scratch state.
func OptimiseForMemory(v bool) BuildOption {
	return func(o *buildOptions) {
		o.optimiseForMemory = v
	}
}

type runOptions struct {
	nextIndices func(iteration int, remoteIndices, residentIndices []uint32)
}

// RunOption configures a single fetch run.
type RunOption func(*runOptions)

// WithNextIndices installs a recompute hook invoked before each fetch
// after the first. The hook may rewrite the bound index slices in place;
// the rewritten values direct that iteration's fetch. It runs strictly
// before the transfer that consumes them, overlapped with the previous
// iteration's scatter.
func WithNextIndices(fn func(iteration int, remoteIndices, residentIndices []uint32)) RunOption {
	return func(o *runOptions) {
		o.nextIndices = fn
	}
}
