package bulk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlanRejectsDegenerateShapes(t *testing.T) {
	tests := []struct {
		name                              string
		slots, lineSize, batch, elemBytes int
	}{
		{"zero slots", 0, 8, 4, 4},
		{"zero line size", 10, 0, 4, 4},
		{"zero batch", 10, 8, 0, 4},
		{"zero elem bytes", 10, 8, 4, 0},
		{"negative batch", 10, 8, -1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlan(tt.slots, tt.lineSize, tt.batch, tt.elemBytes, PlanOptions{})
			assert.ErrorIs(t, err, ErrShape)
		})
	}
}

func TestNewPlanMemoryFlagForcesSequential(t *testing.T) {
	p, err := NewPlan(10000, 1024, 256, 4, PlanOptions{OptimiseForMemory: true})
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, p.Strategy)
	assert.Equal(t, 1, p.Workers)
	assert.Equal(t, p.Batch, p.Chunk)
}

func TestNewPlanLargeBatchGoesParallel(t *testing.T) {
	p, err := NewPlan(10000, 1024, 256, 4, PlanOptions{MaxWorkers: 4})
	require.NoError(t, err)
	assert.Equal(t, StrategyParallel, p.Strategy)
	assert.Equal(t, 4, p.Workers)
	assert.Equal(t, 64, p.Chunk)
}

func TestNewPlanTinyBatchStaysSequential(t *testing.T) {
	// 4 lines of 8 int32s is far below the parallel threshold.
	p, err := NewPlan(100, 8, 4, 4, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, p.Strategy)
}

func TestNewPlanWorkersNeverExceedBatch(t *testing.T) {
	p, err := NewPlan(100, 8, 3, 4, PlanOptions{MaxWorkers: 16})
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Workers, 3)
}

func TestNewPlanIdempotent(t *testing.T) {
	opts := PlanOptions{MaxWorkers: 8, BoundsCheck: true}

	a, err := NewPlan(10000, 1024, 256, 4, opts)
	require.NoError(t, err)
	b, err := NewPlan(10000, 1024, 256, 4, opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
