package bench

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallOptions() Options {
	opts := DefaultOptions()
	opts.RemoteStoreSize = 500
	opts.ResidentSetSize = 100
	opts.LineSize = 16
	opts.FetchCount = 40
	opts.Iterations = 5
	return opts
}

func TestRunMemory(t *testing.T) {
	res, err := Run(context.Background(), smallOptions())
	require.NoError(t, err)

	assert.Positive(t, res.Verified)
	assert.Equal(t, int64(5*40*16*4), res.BytesMoved)
	assert.Positive(t, res.GBPerSec)
}

func TestRunFile(t *testing.T) {
	opts := smallOptions()
	opts.Backing = BackingFile
	opts.Dir = t.TempDir()

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Positive(t, res.Verified)
}

func TestRunRotate(t *testing.T) {
	opts := smallOptions()
	opts.Rotate = true

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Positive(t, res.Verified)
}

func TestRunOptimiseCycles(t *testing.T) {
	opts := smallOptions()
	opts.OptimiseCycles = true

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Positive(t, res.Verified)
}

func TestRunThrottled(t *testing.T) {
	opts := smallOptions()
	opts.Iterations = 2
	opts.ThrottleBytesPerSec = 64 << 20

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Positive(t, res.Verified)
}

func TestRunRequiresFetchCount(t *testing.T) {
	opts := DefaultOptions()
	_, err := Run(context.Background(), opts)
	require.Error(t, err)
}

func TestRunUnknownBacking(t *testing.T) {
	opts := smallOptions()
	opts.Backing = Backing("tape")
	_, err := Run(context.Background(), opts)
	require.Error(t, err)
}
