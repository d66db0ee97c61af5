package softcache

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/softcache/record"
)

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, comp := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(comp.String(), func(t *testing.T) {
			c, _ := newBuiltCache(t, 64, 8, 4, 4)

			require.NoError(t, c.BindRemoteIndices([]uint32{10, 20, 30, 40}))
			require.NoError(t, c.BindResidentIndices([]uint32{0, 2, 4, 6}))
			require.NoError(t, c.LoadOffsets(ctx))
			require.NoError(t, c.RunFetches(ctx, 1))

			var buf bytes.Buffer
			require.NoError(t, c.SaveSnapshot(ctx, &buf, comp))

			want := make([]int32, len(c.ResidentData()))
			copy(want, c.ResidentData())

			// Clobber the resident set, then restore it.
			record.Fill(c.ResidentData(), -7)
			require.NoError(t, c.LoadSnapshot(ctx, &buf))

			assert.Equal(t, want, c.ResidentData())
		})
	}
}

func TestSnapshotShapeMismatch(t *testing.T) {
	ctx := context.Background()

	src, _ := newBuiltCache(t, 64, 8, 4, 4)
	var buf bytes.Buffer
	require.NoError(t, src.SaveSnapshot(ctx, &buf, CompressionNone))

	dst, _ := newBuiltCache(t, 64, 16, 4, 4)
	assert.ErrorIs(t, dst.LoadSnapshot(ctx, &buf), ErrInvalidConfig)
}

func TestSnapshotRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	c, _ := newBuiltCache(t, 64, 8, 4, 4)

	assert.ErrorIs(t, c.LoadSnapshot(ctx, bytes.NewReader(make([]byte, 64))), ErrInvalidConfig)
}
