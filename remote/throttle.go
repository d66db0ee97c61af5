package remote

import (
	"context"

	"golang.org/x/time/rate"
)

// NewThrottled wraps inner with a bytes-per-second rate limit. It is a
// knob for latency-overlap experiments: an artificially slow transport
// makes the benefit of pipelined fetches measurable even against an
// in-memory backend.
//
// The returned store preserves the BulkReader capability of inner: a
// bulk-capable inner store yields a bulk-capable throttled store, and a
// point-only store stays point-only.
func NewThrottled(inner Store, bytesPerSec int64) Store {
	t := &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec)),
	}
	if br, ok := inner.(BulkReader); ok {
		return &ThrottledBulk{Throttled: t, bulk: br}
	}
	return t
}

// Throttled is a rate-limited view of a point-access Store.
type Throttled struct {
	inner   Store
	limiter *rate.Limiter
}

// Capacity returns the inner store's capacity.
func (t *Throttled) Capacity() uint32 { return t.inner.Capacity() }

// LineBytes returns the inner store's line size.
func (t *Throttled) LineBytes() int { return t.inner.LineBytes() }

// ReadLine waits for line-size bandwidth, then delegates.
func (t *Throttled) ReadLine(ctx context.Context, index uint32, dst []byte) error {
	if err := t.waitBytes(ctx, t.inner.LineBytes()); err != nil {
		return err
	}
	return t.inner.ReadLine(ctx, index, dst)
}

// WriteLine waits for line-size bandwidth, then delegates.
func (t *Throttled) WriteLine(ctx context.Context, index uint32, line []byte) error {
	if err := t.waitBytes(ctx, t.inner.LineBytes()); err != nil {
		return err
	}
	return t.inner.WriteLine(ctx, index, line)
}

// waitBytes blocks until n bytes of bandwidth are available, chunked at
// the limiter burst so transfers larger than one burst still complete.
func (t *Throttled) waitBytes(ctx context.Context, n int) error {
	burst := t.limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := t.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// ThrottledBulk is a rate-limited view of a bulk-capable Store.
type ThrottledBulk struct {
	*Throttled
	bulk BulkReader
}

var _ BulkReader = (*ThrottledBulk)(nil)

// BulkRead waits for whole-batch bandwidth, then delegates.
func (t *ThrottledBulk) BulkRead(ctx context.Context, indices []uint32, dst []byte) error {
	if err := t.waitBytes(ctx, len(indices)*t.inner.LineBytes()); err != nil {
		return err
	}
	return t.bulk.BulkRead(ctx, indices, dst)
}
