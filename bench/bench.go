// Package bench drives a cache through the reference benchmark scenario:
// populate a store with recognizable lines, fetch fixed-seed permutation
// batches for a number of timed iterations, then read the resident set
// back and verify every slot holds the line its last fetch named.
package bench

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/softcache"
	"github.com/hupe1980/softcache/record"
	"github.com/hupe1980/softcache/remote"
)

// Backing selects the store implementation the benchmark runs against.
type Backing string

const (
	BackingMemory Backing = "memory"
	BackingFile   Backing = "file"
)

// Options configures a benchmark run. The zero value is not usable; use
// DefaultOptions and override.
type Options struct {
	RemoteStoreSize int
	ResidentSetSize int
	LineSize        int
	FetchCount      int
	Iterations      int
	Seed            int64

	// OptimiseCycles selects the parallel transfer strategy; off means
	// the memory-optimised sequential strategy.
	OptimiseCycles bool

	// Rotate recomputes the fetch indices every iteration instead of
	// replaying one batch.
	Rotate bool

	Backing Backing
	Dir     string // scratch dir for BackingFile, defaults to os.TempDir

	// ThrottleBytesPerSec wraps the store in a bandwidth limiter when
	// positive, to expose the transfer/scatter overlap.
	ThrottleBytesPerSec int64

	Logger *softcache.Logger
}

// DefaultOptions mirrors the reference tool's defaults. FetchCount has no
// default and must be set by the caller.
func DefaultOptions() Options {
	return Options{
		RemoteStoreSize: 100000,
		ResidentSetSize: 10000,
		LineSize:        1024,
		Iterations:      1000,
		Seed:            10142,
		Backing:         BackingMemory,
		Logger:          softcache.NoopLogger(),
	}
}

// Result reports a completed run.
type Result struct {
	Elapsed    time.Duration
	BytesMoved int64
	GBPerSec   float64
	Verified   int // resident slots checked during verification
}

// Run executes the benchmark and verifies the final resident set.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.FetchCount <= 0 {
		return nil, fmt.Errorf("fetch count must be set, got %d", opts.FetchCount)
	}
	lg := opts.Logger
	if lg == nil {
		lg = softcache.NoopLogger()
	}

	store, cleanup, err := openStore(opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := fillStore(ctx, store, opts); err != nil {
		return nil, fmt.Errorf("populate store: %w", err)
	}
	lg.InfoContext(ctx, "store populated",
		"lines", opts.RemoteStoreSize,
		"line_bytes", store.LineBytes(),
		"backing", string(opts.Backing),
	)

	if opts.ThrottleBytesPerSec > 0 {
		store = remote.NewThrottled(store, opts.ThrottleBytesPerSec)
	}

	cacheOpts := []softcache.Option{softcache.WithLogger(lg), softcache.WithSlotTracking()}
	c, err := softcache.New[int32]("bench",
		opts.RemoteStoreSize, opts.ResidentSetSize, opts.LineSize, opts.FetchCount, cacheOpts...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.Build(ctx, store, softcache.OptimiseForMemory(!opts.OptimiseCycles)); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	remoteIdx := make([]uint32, opts.FetchCount)
	residentIdx := make([]uint32, opts.FetchCount)
	reload := func(iteration int, remoteIndices, residentIndices []uint32) {
		permute(rng, remoteIndices, opts.RemoteStoreSize)
		permute(rng, residentIndices, opts.ResidentSetSize)
	}
	reload(0, remoteIdx, residentIdx)

	if err := c.BindRemoteIndices(remoteIdx); err != nil {
		return nil, err
	}
	if err := c.BindResidentIndices(residentIdx); err != nil {
		return nil, err
	}
	if err := c.LoadOffsets(ctx); err != nil {
		return nil, err
	}

	var runOpts []softcache.RunOption
	if opts.Rotate {
		runOpts = append(runOpts, softcache.WithNextIndices(reload))
	}

	start := time.Now()
	if err := c.RunFetches(ctx, opts.Iterations, runOpts...); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	res := &Result{
		Elapsed:    elapsed,
		BytesMoved: int64(opts.Iterations) * int64(opts.FetchCount) * int64(opts.LineSize) * int64(record.Size[int32]()),
	}
	res.GBPerSec = float64(res.BytesMoved) / elapsed.Seconds() / 1e9

	lg.InfoContext(ctx, "fetch loop completed",
		"iterations", opts.Iterations,
		"elapsed", elapsed,
		"gb_per_sec", res.GBPerSec,
	)

	verified, err := verify(ctx, c, opts, remoteIdx, residentIdx)
	if err != nil {
		return nil, err
	}
	res.Verified = verified

	if err := exerciseGather(c, opts, rng); err != nil {
		return nil, err
	}
	return res, nil
}

func openStore(opts Options) (remote.Store, func(), error) {
	lineBytes := opts.LineSize * record.Size[int32]()
	switch opts.Backing {
	case BackingMemory, "":
		return remote.NewMemoryStore(uint32(opts.RemoteStoreSize), lineBytes), func() {}, nil
	case BackingFile:
		dir := opts.Dir
		if dir == "" {
			dir = os.TempDir()
		}
		path := filepath.Join(dir, "softcache-bench.lines")
		st, err := remote.Create(path, uint32(opts.RemoteStoreSize), lineBytes)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			st.Close()
			os.Remove(path)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backing %q", opts.Backing)
	}
}

// fillStore writes line i = all elements i, so any fetched line names its
// own source index.
func fillStore(ctx context.Context, store remote.Store, opts Options) error {
	line := make([]int32, opts.LineSize)
	for i := 0; i < opts.RemoteStoreSize; i++ {
		record.Fill(line, int32(i))
		if err := store.WriteLine(ctx, uint32(i), record.Bytes(line)); err != nil {
			return err
		}
	}
	return nil
}

// permute fills dst with the head of a fresh permutation of [0, limit).
func permute(rng *rand.Rand, dst []uint32, limit int) {
	perm := rng.Perm(limit)
	for j := range dst {
		dst[j] = uint32(perm[j])
	}
}

// verify checks that every slot named by the final batch holds its source
// line, and that only tracked slots differ from zero.
func verify(ctx context.Context, c *softcache.Cache[int32], opts Options, remoteIdx, residentIdx []uint32) (int, error) {
	out := make([]int32, opts.ResidentSetSize*opts.LineSize)
	if err := c.BindReadBack(out); err != nil {
		return 0, err
	}
	if err := c.ReadBack(ctx); err != nil {
		return 0, err
	}

	// Under duplicate destinations only the last batch position for a
	// slot is authoritative.
	last := make(map[uint32]uint32, len(residentIdx))
	for j, slot := range residentIdx {
		last[slot] = remoteIdx[j]
	}

	checked := 0
	for slot, want := range last {
		for i := 0; i < opts.LineSize; i++ {
			got := out[int(slot)*opts.LineSize+i]
			if got != int32(want) {
				return checked, fmt.Errorf("slot %d element %d: got %d, want %d", slot, i, got, want)
			}
		}
		checked++
	}
	return checked, nil
}

// exerciseGather reads a random batch of resident lines back out through
// the gather path, mirroring a consumer of the cached data.
func exerciseGather(c *softcache.Cache[int32], opts Options, rng *rand.Rand) error {
	indices := make([]uint32, opts.FetchCount)
	for j := range indices {
		indices[j] = uint32(rng.Intn(opts.ResidentSetSize))
	}
	out := make([]int32, opts.FetchCount*opts.LineSize)
	return c.Gather(out, indices)
}
