// Package softcache implements a software-managed staging cache: a bounded
// local table of fixed-size records (the resident set) backed by a much
// larger remote store, populated through batched indexed transfers.
//
// The cache has no coherence machinery. There is no key lookup, no miss
// signal and no eviction policy; the caller decides which remote lines to
// fetch and which resident slots they land in, and overwriting a slot is
// the only way its content changes. What the cache provides is the data
// movement: a bulk indexed read from the remote store, a scatter of the
// fetched batch into caller-chosen slots, and a double-buffered pipeline
// that overlaps the remote transfer of one batch with the scatter of the
// previous one.
//
// # Quick start
//
//	c, err := softcache.New[int32]("lines", remoteLines, residentSlots, lineSize, fetchCount)
//	if err != nil {
//	    panic(err)
//	}
//	defer c.Close()
//
//	store := remote.NewMemoryStore(uint32(remoteLines), lineSize*4)
//	if err := c.Build(ctx, store); err != nil {
//	    panic(err)
//	}
//
//	c.BindRemoteIndices(remoteIdx)     // which lines to fetch
//	c.BindResidentIndices(residentIdx) // which slots they land in
//	if err := c.LoadOffsets(ctx); err != nil {
//	    panic(err)
//	}
//	if err := c.RunFetches(ctx, iterations); err != nil {
//	    panic(err)
//	}
package softcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/softcache/bulk"
	"github.com/hupe1980/softcache/record"
	"github.com/hupe1980/softcache/remote"
)

// Cache is a software-managed staging cache over elements of type E.
//
// A Cache is built once against a store and then driven through bound
// host buffers: two index slices select each fetch's source lines and
// destination slots, and an optional read-back buffer receives the whole
// resident set. Methods are not safe for concurrent use; the pipeline
// parallelism lives inside RunFetches.
type Cache[E record.Element] struct {
	name string
	opts options

	remoteCapacity   int // R, lines in the remote store
	residentCapacity int // C, slots in the resident set
	lineSize         int // L, elements per line
	fetchCount       int // F, lines per fetch

	store remote.Store
	bulk  remote.BulkReader

	// I/O domain: written only by the transfer arm of a pipelined run.
	ioStage   []byte   // F lines, raw transfer destination
	ioIndices []uint32 // F, remote line indices for the next read

	// Compute domain. Staging and scatter-index buffers come in pairs so
	// the scatter of batch i-1 never shares a buffer with the transfer
	// of batch i.
	resident    []E         // C*L
	stage       [2][]E      // F*L each
	destIndices [2][]uint32 // F each

	// Host bindings.
	hostRemote   []uint32
	hostResident []uint32
	hostReadBack []E

	plan    bulk.Plan
	scatter *bulk.MultiUpdate[E]
	gather  *bulk.MultiSlice[E]

	tracker   *roaring.Bitmap
	trackerMu sync.Mutex

	built         bool
	closed        bool
	offsetsLoaded bool
}

// New validates the cache dimensions and returns an unbuilt cache.
//
// remoteCapacity (R), residentCapacity (C), lineSize (L) and fetchCount
// (F) must all be positive, and a fetch must fit both the resident set
// (F <= C) and the remote store (F <= R). Violations are rejected with
// *ErrCapacityViolation; nothing is ever clamped.
func New[E record.Element](name string, remoteCapacity, residentCapacity, lineSize, fetchCount int, optFns ...Option) (*Cache[E], error) {
	for _, p := range []struct {
		name  string
		value int
	}{
		{"remoteCapacity", remoteCapacity},
		{"residentCapacity", residentCapacity},
		{"lineSize", lineSize},
		{"fetchCount", fetchCount},
	} {
		if p.value <= 0 {
			return nil, &ErrCapacityViolation{Param: p.name, Value: p.value}
		}
	}
	if fetchCount > residentCapacity {
		return nil, &ErrCapacityViolation{Param: "fetchCount", Value: fetchCount, Limit: residentCapacity}
	}
	if fetchCount > remoteCapacity {
		return nil, &ErrCapacityViolation{Param: "fetchCount", Value: fetchCount, Limit: remoteCapacity}
	}

	opts := applyOptions(optFns)
	c := &Cache[E]{
		name:             name,
		opts:             opts,
		remoteCapacity:   remoteCapacity,
		residentCapacity: residentCapacity,
		lineSize:         lineSize,
		fetchCount:       fetchCount,
	}
	if opts.slotTracking {
		c.tracker = roaring.New()
	}
	return c, nil
}

// Build binds the cache to a store, allocates its buffers and compiles
// the transfer plan. The store must hold at least remoteCapacity lines of
// exactly lineSize elements, and must implement remote.BulkReader; a
// store without bulk reads fails with ErrBulkTransferUnsupported before
// any iteration runs.
func (c *Cache[E]) Build(ctx context.Context, store remote.Store, optFns ...BuildOption) error {
	if c.closed {
		return ErrClosed
	}

	var bo buildOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&bo)
		}
	}

	lineBytes := c.lineSize * record.Size[E]()
	if store.LineBytes() != lineBytes {
		err := fmt.Errorf("%w: store line is %d bytes, cache line is %d",
			ErrInvalidConfig, store.LineBytes(), lineBytes)
		c.opts.logger.WithName(c.name).LogBuild(ctx, c.residentCapacity, c.lineSize, c.fetchCount, "", err)
		return err
	}
	if int(store.Capacity()) < c.remoteCapacity {
		err := fmt.Errorf("%w: store holds %d lines, cache expects %d",
			ErrInvalidConfig, store.Capacity(), c.remoteCapacity)
		c.opts.logger.WithName(c.name).LogBuild(ctx, c.residentCapacity, c.lineSize, c.fetchCount, "", err)
		return err
	}
	br, ok := store.(remote.BulkReader)
	if !ok {
		c.opts.logger.WithName(c.name).LogBuild(ctx, c.residentCapacity, c.lineSize, c.fetchCount, "", ErrBulkTransferUnsupported)
		return ErrBulkTransferUnsupported
	}

	plan, err := bulk.NewPlan(c.residentCapacity, c.lineSize, c.fetchCount, record.Size[E](), bulk.PlanOptions{
		OptimiseForMemory: bo.optimiseForMemory,
		BoundsCheck:       c.opts.boundsCheck,
		MaxWorkers:        c.opts.maxWorkers,
	})
	if err != nil {
		return err
	}
	scatter, err := bulk.NewMultiUpdate[E](c.name, plan)
	if err != nil {
		return err
	}
	gather, err := bulk.NewMultiSlice[E](c.name, plan)
	if err != nil {
		scatter.Close()
		return err
	}

	c.store = store
	c.bulk = br
	c.plan = plan
	c.scatter = scatter
	c.gather = gather

	c.resident = make([]E, c.residentCapacity*c.lineSize)
	c.ioStage = make([]byte, c.fetchCount*lineBytes)
	c.ioIndices = make([]uint32, c.fetchCount)
	for i := range c.stage {
		c.stage[i] = make([]E, c.fetchCount*c.lineSize)
		c.destIndices[i] = make([]uint32, c.fetchCount)
	}

	c.built = true
	c.offsetsLoaded = false
	c.opts.logger.WithName(c.name).LogBuild(ctx, c.residentCapacity, c.lineSize, c.fetchCount, plan.Strategy.String(), nil)
	return nil
}

// BindRemoteIndices binds the host slice naming the remote line fetched
// at each batch position. Length must be fetchCount. The binding is by
// reference: the caller (or a WithNextIndices hook) may rewrite the
// values between LoadOffsets calls.
func (c *Cache[E]) BindRemoteIndices(indices []uint32) error {
	if len(indices) != c.fetchCount {
		return fmt.Errorf("%w: got %d remote indices, want %d", ErrInvalidConfig, len(indices), c.fetchCount)
	}
	c.hostRemote = indices
	c.offsetsLoaded = false
	return nil
}

// BindResidentIndices binds the host slice naming the resident slot each
// fetched line lands in. Length must be fetchCount.
func (c *Cache[E]) BindResidentIndices(indices []uint32) error {
	if len(indices) != c.fetchCount {
		return fmt.Errorf("%w: got %d resident indices, want %d", ErrInvalidConfig, len(indices), c.fetchCount)
	}
	c.hostResident = indices
	c.offsetsLoaded = false
	return nil
}

// BindReadBack binds the host destination for ReadBack. Length must be
// residentCapacity*lineSize elements.
func (c *Cache[E]) BindReadBack(dst []E) error {
	if len(dst) != c.residentCapacity*c.lineSize {
		return fmt.Errorf("%w: got %d read-back elements, want %d",
			ErrInvalidConfig, len(dst), c.residentCapacity*c.lineSize)
	}
	c.hostReadBack = dst
	return nil
}

// LoadOffsets snapshots the bound index slices into the cache's own
// transfer buffers. It must run after binding and before the first fetch;
// fetches consume the snapshot, not the live host slices, so host-side
// rewrites between runs take effect only through another LoadOffsets (or
// a WithNextIndices hook during a run).
func (c *Cache[E]) LoadOffsets(ctx context.Context) error {
	if err := c.runnable(); err != nil {
		return err
	}
	if c.hostRemote == nil || c.hostResident == nil {
		return fmt.Errorf("%w: index slices", ErrNotBound)
	}
	c.loadOffsets(0)
	c.offsetsLoaded = true
	return nil
}

func (c *Cache[E]) loadOffsets(buf int) {
	copy(c.ioIndices, c.hostRemote)
	copy(c.destIndices[buf], c.hostResident)
}

// fetch reads the batch named by ioIndices into the I/O stage and
// exchanges it into the given compute staging buffer.
func (c *Cache[E]) fetch(ctx context.Context, buf int) error {
	if err := c.bulk.BulkRead(ctx, c.ioIndices, c.ioStage); err != nil {
		return err
	}
	staged, err := record.Slice[E](c.ioStage)
	if err != nil {
		return err
	}
	copy(c.stage[buf], staged)
	return nil
}

// scatterStaged scatters the given staged batch into the resident set.
func (c *Cache[E]) scatterStaged(buf int) error {
	if err := c.scatter.Run(c.resident, c.stage[buf], c.destIndices[buf]); err != nil {
		return err
	}
	if c.tracker != nil {
		c.trackerMu.Lock()
		for _, slot := range c.destIndices[buf] {
			c.tracker.Add(slot)
		}
		c.trackerMu.Unlock()
	}
	return nil
}

// RunFetches executes n fetch iterations with transfer/scatter overlap.
//
// Iteration 0 only fetches. In steady state the scatter of batch i-1 runs
// concurrently with the transfer of batch i, each arm on its own staging
// and index buffers; a WithNextIndices hook runs on the transfer arm,
// strictly before the read that consumes the rewritten indices. The final
// batch is drained with a trailing scatter. Scatters never overlap each
// other, so slots contested across iterations settle in iteration order.
func (c *Cache[E]) RunFetches(ctx context.Context, n int, optFns ...RunOption) error {
	return c.runFetches(ctx, n, true, optFns)
}

// RunFetchesNaive executes n fetch iterations strictly serially, one
// read-exchange-scatter sequence at a time. Its final resident set is
// identical to RunFetches; it exists as the reference for that
// equivalence and as a debugging aid.
func (c *Cache[E]) RunFetchesNaive(ctx context.Context, n int, optFns ...RunOption) error {
	return c.runFetches(ctx, n, false, optFns)
}

func (c *Cache[E]) runFetches(ctx context.Context, n int, overlap bool, optFns []RunOption) error {
	if err := c.runnable(); err != nil {
		return err
	}
	if !c.offsetsLoaded {
		return fmt.Errorf("%w: offsets not loaded", ErrNotBound)
	}
	if n <= 0 {
		return nil
	}

	var ro runOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&ro)
		}
	}

	start := time.Now()
	var err error
	if overlap {
		err = c.runOverlapped(ctx, n, ro)
	} else {
		err = c.runSerial(ctx, n, ro)
	}

	lineBytes := c.lineSize * record.Size[E]()
	c.opts.logger.WithName(c.name).LogFetches(ctx, n, time.Since(start),
		int64(n)*int64(c.fetchCount)*int64(lineBytes), err)
	return err
}

func (c *Cache[E]) runOverlapped(ctx context.Context, n int, ro runOptions) error {
	// Fill: no scatter partner for the first batch.
	if err := c.fetch(ctx, 0); err != nil {
		return err
	}

	for i := 1; i < n; i++ {
		prev, cur := (i-1)%2, i%2
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return c.scatterStaged(prev)
		})
		g.Go(func() error {
			if ro.nextIndices != nil {
				ro.nextIndices(i, c.hostRemote, c.hostResident)
				c.loadOffsets(cur)
			} else {
				copy(c.destIndices[cur], c.destIndices[prev])
			}
			return c.fetch(gctx, cur)
		})
		if err := g.Wait(); err != nil {
			return err
		}
	}

	// Drain.
	return c.scatterStaged((n - 1) % 2)
}

func (c *Cache[E]) runSerial(ctx context.Context, n int, ro runOptions) error {
	for i := 0; i < n; i++ {
		buf := i % 2
		if i > 0 {
			if ro.nextIndices != nil {
				ro.nextIndices(i, c.hostRemote, c.hostResident)
				c.loadOffsets(buf)
			} else {
				copy(c.destIndices[buf], c.destIndices[1-buf])
			}
		}
		if err := c.fetch(ctx, buf); err != nil {
			return err
		}
		if err := c.scatterStaged(buf); err != nil {
			return err
		}
	}
	return nil
}

// ReadBack copies the whole resident set into the bound read-back buffer.
func (c *Cache[E]) ReadBack(ctx context.Context) error {
	if err := c.runnable(); err != nil {
		return err
	}
	if c.hostReadBack == nil {
		return fmt.Errorf("%w: read-back buffer", ErrNotBound)
	}
	copy(c.hostReadBack, c.resident)
	return nil
}

// Gather copies fetchCount resident lines, selected by indices, into out
// as one contiguous batch. Indices may repeat. len(indices) must equal
// fetchCount and len(out) must equal fetchCount*lineSize.
func (c *Cache[E]) Gather(out []E, indices []uint32) error {
	if err := c.runnable(); err != nil {
		return err
	}
	return c.gather.Run(out, c.resident, indices)
}

// ResidentData returns the live resident set, residentCapacity*lineSize
// elements. The slice aliases cache state; it must not be read while a
// fetch run is in progress.
func (c *Cache[E]) ResidentData() []E {
	return c.resident
}

// WrittenSlots returns the set of resident slots any scatter has written,
// or nil when WithSlotTracking was not configured.
func (c *Cache[E]) WrittenSlots() []uint32 {
	if c.tracker == nil {
		return nil
	}
	c.trackerMu.Lock()
	defer c.trackerMu.Unlock()
	return c.tracker.ToArray()
}

// Close releases the transfer worker pools. Idempotent.
func (c *Cache[E]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.scatter != nil {
		c.scatter.Close()
	}
	if c.gather != nil {
		c.gather.Close()
	}
	return nil
}

func (c *Cache[E]) runnable() error {
	if c.closed {
		return ErrClosed
	}
	if !c.built {
		return ErrNotBuilt
	}
	return nil
}
