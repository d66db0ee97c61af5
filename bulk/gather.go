package bulk

import (
	"fmt"
	"sync"

	"github.com/hupe1980/softcache/record"
)

// MultiSlice gathers lines from arbitrary table slots into a contiguous
// output batch: output line j is a copy of slot indices[j]. Duplicate
// and repeated indices are permitted; reads never conflict, so the
// parallel strategy needs no winner resolution.
//
// The cache's own fetch pipeline does not gather; this kernel exists for
// consumers of the resident table and for read-back verification.
type MultiSlice[E record.Element] struct {
	name string
	plan Plan
	pool *WorkerPool
}

// NewMultiSlice creates a gather kernel executing plan. The element type
// must match the planned element width.
func NewMultiSlice[E record.Element](name string, plan Plan) (*MultiSlice[E], error) {
	if size := record.Size[E](); size != plan.ElemBytes {
		return nil, fmt.Errorf("bulk: element size %d does not match planned %d", size, plan.ElemBytes)
	}

	s := &MultiSlice[E]{name: name, plan: plan}
	if plan.Strategy == StrategyParallel {
		s.pool = NewWorkerPool(plan.Workers)
	}
	return s, nil
}

// Plan returns the plan this kernel executes.
func (s *MultiSlice[E]) Plan() Plan { return s.plan }

// Run copies table slot indices[j] into out line j for every j.
// table holds Slots lines, out holds Batch lines, len(indices) == Batch.
func (s *MultiSlice[E]) Run(out, table []E, indices []uint32) error {
	L := s.plan.LineSize
	if len(indices) != s.plan.Batch {
		return fmt.Errorf("%w: %d indices, planned batch %d", ErrLength, len(indices), s.plan.Batch)
	}
	if len(out) != s.plan.Batch*L {
		return fmt.Errorf("%w: output holds %d elements, want %d", ErrLength, len(out), s.plan.Batch*L)
	}
	if len(table) != s.plan.Slots*L {
		return fmt.Errorf("%w: table holds %d elements, want %d", ErrLength, len(table), s.plan.Slots*L)
	}
	if s.plan.BoundsCheck {
		if err := checkIndices(indices, s.plan.Slots); err != nil {
			return err
		}
	}

	if s.plan.Strategy == StrategySequential {
		s.copyRange(out, table, indices, 0, len(indices))
		return nil
	}

	var wg sync.WaitGroup
	for start := 0; start < len(indices); start += s.plan.Chunk {
		end := start + s.plan.Chunk
		if end > len(indices) {
			end = len(indices)
		}
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			s.copyRange(out, table, indices, start, end)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

func (s *MultiSlice[E]) copyRange(out, table []E, indices []uint32, start, end int) {
	L := s.plan.LineSize
	for j := start; j < end; j++ {
		idx := int(indices[j])
		copy(out[j*L:(j+1)*L], table[idx*L:(idx+1)*L])
	}
}

// Close releases the worker pool, if any.
func (s *MultiSlice[E]) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
