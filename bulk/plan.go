// Package bulk provides the indexed batch-transfer kernels of the cache:
// MultiUpdate scatters a contiguous batch of lines into a table at
// arbitrary destination slots, and MultiSlice gathers arbitrary slots
// into a contiguous output batch.
//
// Both consume a Plan, chosen once from the table shape and a declared
// memory/performance trade-off, before any transfer runs.
package bulk

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrShape is returned when a plan is requested for a degenerate table
// shape (any dimension <= 0).
var ErrShape = errors.New("bulk: invalid plan shape")

// Strategy selects how a scatter or gather call executes.
type Strategy uint8

const (
	// StrategySequential copies batch rows in order on the calling
	// goroutine. No scratch memory, no worker pool.
	StrategySequential Strategy = iota
	// StrategyParallel splits the batch across a fixed worker pool.
	// Faster for large batches at the cost of per-table scratch state.
	StrategyParallel
)

func (s Strategy) String() string {
	switch s {
	case StrategySequential:
		return "sequential"
	case StrategyParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// parallelThreshold is the batch payload size in bytes below which the
// planner does not bother with parallel dispatch.
const parallelThreshold = 1 << 16

// PlanOptions declares the trade-off knob handed to the planner.
type PlanOptions struct {
	// OptimiseForMemory forces the sequential strategy: no worker pool
	// and no per-slot scratch state.
	OptimiseForMemory bool

	// BoundsCheck enables index validation on every call. Off by
	// default: the hot path performs no checks and out-of-range
	// indices are unspecified (in practice a runtime panic).
	BoundsCheck bool

	// MaxWorkers caps the worker count for the parallel strategy and,
	// when set, overrides the payload-size threshold. 0 means
	// GOMAXPROCS with the threshold applied.
	MaxWorkers int
}

// Plan is the execution strategy for scatter/gather over one table
// shape. It is a pure function of its inputs: planning twice with
// identical arguments yields identical plans, and the chosen strategy
// never changes transfer semantics, only execution.
type Plan struct {
	Slots       int // table capacity in lines
	LineSize    int // elements per line
	Batch       int // lines per transfer call
	ElemBytes   int // byte width of one element
	Strategy    Strategy
	Workers     int // worker count for StrategyParallel, else 1
	Chunk       int // batch rows per parallel task
	BoundsCheck bool
}

// NewPlan chooses an execution strategy for tables of slots lines of
// lineSize elements, transferred batch lines at a time.
func NewPlan(slots, lineSize, batch, elemBytes int, opts PlanOptions) (Plan, error) {
	if slots <= 0 || lineSize <= 0 || batch <= 0 || elemBytes <= 0 {
		return Plan{}, fmt.Errorf("%w: slots=%d lineSize=%d batch=%d elemBytes=%d",
			ErrShape, slots, lineSize, batch, elemBytes)
	}

	p := Plan{
		Slots:       slots,
		LineSize:    lineSize,
		Batch:       batch,
		ElemBytes:   elemBytes,
		Strategy:    StrategySequential,
		Workers:     1,
		Chunk:       batch,
		BoundsCheck: opts.BoundsCheck,
	}

	if opts.OptimiseForMemory {
		return p, nil
	}

	workers := opts.MaxWorkers
	if workers == 0 {
		if batch*lineSize*elemBytes < parallelThreshold {
			return p, nil
		}
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > batch {
		workers = batch
	}
	if workers <= 1 {
		return p, nil
	}

	p.Strategy = StrategyParallel
	p.Workers = workers
	p.Chunk = (batch + workers - 1) / workers
	return p, nil
}
