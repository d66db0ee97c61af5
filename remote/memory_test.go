package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillLine(line []byte, v byte) {
	for i := range line {
		line[i] = v
	}
}

func TestMemoryStoreReadWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(8, 4)

	require.Equal(t, uint32(8), s.Capacity())
	require.Equal(t, 4, s.LineBytes())

	line := make([]byte, 4)
	fillLine(line, 0xAB)
	require.NoError(t, s.WriteLine(ctx, 3, line))

	got := make([]byte, 4)
	require.NoError(t, s.ReadLine(ctx, 3, got))
	assert.Equal(t, line, got)

	// Unwritten lines stay zeroed.
	require.NoError(t, s.ReadLine(ctx, 0, got))
	assert.Equal(t, []byte{0, 0, 0, 0}, got)
}

func TestMemoryStoreBulkRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(16, 2)

	for i := uint32(0); i < 16; i++ {
		require.NoError(t, s.WriteLine(ctx, i, []byte{byte(i), byte(i)}))
	}

	indices := []uint32{5, 0, 5, 15}
	dst := make([]byte, len(indices)*2)
	require.NoError(t, s.BulkRead(ctx, indices, dst))

	assert.Equal(t, []byte{5, 5, 0, 0, 5, 5, 15, 15}, dst)
}

func TestMemoryStoreValidation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(4, 4)

	line := make([]byte, 4)
	assert.ErrorIs(t, s.WriteLine(ctx, 4, line), ErrOutOfRange)
	assert.ErrorIs(t, s.ReadLine(ctx, 9, line), ErrOutOfRange)
	assert.ErrorIs(t, s.WriteLine(ctx, 0, make([]byte, 3)), ErrLineSize)
	assert.ErrorIs(t, s.ReadLine(ctx, 0, make([]byte, 5)), ErrLineSize)

	assert.ErrorIs(t, s.BulkRead(ctx, []uint32{0, 1}, make([]byte, 4)), ErrBatchSize)
	assert.ErrorIs(t, s.BulkRead(ctx, []uint32{0, 7}, make([]byte, 8)), ErrOutOfRange)
}
