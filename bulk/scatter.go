package bulk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/softcache/record"
)

// ErrLength is returned when a buffer handed to a transfer call does not
// match the planned shape.
var ErrLength = errors.New("bulk: buffer length does not match plan")

// IndexError reports an out-of-range index caught by a bounds-checked
// plan, before anything was written.
type IndexError struct {
	Position int    // position within the batch
	Index    uint32 // offending value
	Limit    int    // table capacity
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("bulk: index %d at batch position %d out of range (table holds %d lines)",
		e.Index, e.Position, e.Limit)
}

// MultiUpdate scatters a contiguous source batch of lines into a table:
// source line j is written to slot indices[j]. When indices contains
// duplicates, the last occurrence in batch order wins, under every
// strategy.
//
// A MultiUpdate owns per-table scratch state and is not safe for
// concurrent use. Cost is linear in batch*lineSize; very large batches
// should be split by the caller into several planned transfers rather
// than planned as one oversized call.
type MultiUpdate[E record.Element] struct {
	name string
	plan Plan
	pool *WorkerPool

	// Last-writer resolution scratch for the parallel strategy: for
	// every slot named in the current batch, the batch position allowed
	// to write it. Sized by the table, which is why the
	// memory-optimised plan avoids it.
	winner []int32
}

// NewMultiUpdate creates a scatter kernel executing plan. The element
// type must match the planned element width.
func NewMultiUpdate[E record.Element](name string, plan Plan) (*MultiUpdate[E], error) {
	if size := record.Size[E](); size != plan.ElemBytes {
		return nil, fmt.Errorf("bulk: element size %d does not match planned %d", size, plan.ElemBytes)
	}

	u := &MultiUpdate[E]{name: name, plan: plan}
	if plan.Strategy == StrategyParallel {
		u.pool = NewWorkerPool(plan.Workers)
		u.winner = make([]int32, plan.Slots)
	}
	return u, nil
}

// Plan returns the plan this kernel executes.
func (u *MultiUpdate[E]) Plan() Plan { return u.plan }

// Run writes src line j into dst slot indices[j] for every j.
// dst holds Slots lines, src holds Batch lines, len(indices) == Batch.
func (u *MultiUpdate[E]) Run(dst, src []E, indices []uint32) error {
	L := u.plan.LineSize
	if len(indices) != u.plan.Batch {
		return fmt.Errorf("%w: %d indices, planned batch %d", ErrLength, len(indices), u.plan.Batch)
	}
	if len(src) != u.plan.Batch*L {
		return fmt.Errorf("%w: source holds %d elements, want %d", ErrLength, len(src), u.plan.Batch*L)
	}
	if len(dst) != u.plan.Slots*L {
		return fmt.Errorf("%w: table holds %d elements, want %d", ErrLength, len(dst), u.plan.Slots*L)
	}
	if u.plan.BoundsCheck {
		if err := checkIndices(indices, u.plan.Slots); err != nil {
			return err
		}
	}

	if u.plan.Strategy == StrategySequential {
		for j, idx := range indices {
			copy(dst[int(idx)*L:(int(idx)+1)*L], src[j*L:(j+1)*L])
		}
		return nil
	}

	u.resolveWinners(indices)

	var wg sync.WaitGroup
	for start := 0; start < len(indices); start += u.plan.Chunk {
		end := start + u.plan.Chunk
		if end > len(indices) {
			end = len(indices)
		}
		wg.Add(1)
		if err := u.pool.Submit(func() {
			defer wg.Done()
			u.copyRange(dst, src, indices, start, end)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

// resolveWinners records, per slot named in the batch, the position of
// the last write. Parallel chunks then skip overwritten rows, so the
// result is bit-identical to the sequential in-order scatter.
func (u *MultiUpdate[E]) resolveWinners(indices []uint32) {
	for j, idx := range indices {
		u.winner[idx] = int32(j)
	}
}

func (u *MultiUpdate[E]) copyRange(dst, src []E, indices []uint32, start, end int) {
	L := u.plan.LineSize
	for j := start; j < end; j++ {
		idx := indices[j]
		if u.winner[idx] != int32(j) {
			continue
		}
		copy(dst[int(idx)*L:(int(idx)+1)*L], src[j*L:(j+1)*L])
	}
}

// Close releases the worker pool, if any.
func (u *MultiUpdate[E]) Close() {
	if u.pool != nil {
		u.pool.Close()
	}
}

func checkIndices(indices []uint32, limit int) error {
	for j, idx := range indices {
		if int(idx) >= limit {
			return &IndexError{Position: j, Index: idx, Limit: limit}
		}
	}
	return nil
}
