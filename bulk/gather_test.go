package bulk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/softcache/record"
)

func newSlice(t *testing.T, slots, lineSize, batch int, opts PlanOptions) *MultiSlice[int32] {
	t.Helper()
	plan, err := NewPlan(slots, lineSize, batch, record.Size[int32](), opts)
	require.NoError(t, err)
	s, err := NewMultiSlice[int32]("test", plan)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// tableOf builds a table where slot i is filled with value i.
func tableOf(slots, lineSize int) []int32 {
	table := make([]int32, slots*lineSize)
	for i := 0; i < slots; i++ {
		record.Fill(table[i*lineSize:(i+1)*lineSize], int32(i))
	}
	return table
}

func TestMultiSliceGathersWithDuplicates(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts PlanOptions
	}{
		{"sequential", PlanOptions{OptimiseForMemory: true}},
		{"parallel", PlanOptions{MaxWorkers: 4}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			const slots, lineSize, batch = 8, 4, 5
			s := newSlice(t, slots, lineSize, batch, tc.opts)

			table := tableOf(slots, lineSize)
			out := make([]int32, batch*lineSize)

			indices := []uint32{3, 3, 0, 7, 3}
			require.NoError(t, s.Run(out, table, indices))

			for j, idx := range indices {
				for i := 0; i < lineSize; i++ {
					assert.Equal(t, int32(idx), out[j*lineSize+i], "line %d", j)
				}
			}
		})
	}
}

func TestMultiSliceParallelMatchesSequential(t *testing.T) {
	const slots, lineSize, batch = 64, 16, 48
	rng := rand.New(rand.NewSource(10142))

	seq := newSlice(t, slots, lineSize, batch, PlanOptions{OptimiseForMemory: true})
	par := newSlice(t, slots, lineSize, batch, PlanOptions{MaxWorkers: 8})

	table := make([]int32, slots*lineSize)
	for i := range table {
		table[i] = rng.Int31()
	}

	for round := 0; round < 10; round++ {
		indices := make([]uint32, batch)
		for j := range indices {
			indices[j] = uint32(rng.Intn(slots))
		}

		outSeq := make([]int32, batch*lineSize)
		outPar := make([]int32, batch*lineSize)
		require.NoError(t, seq.Run(outSeq, table, indices))
		require.NoError(t, par.Run(outPar, table, indices))

		require.Equal(t, outSeq, outPar, "round %d", round)
	}
}

func TestMultiSliceBoundsCheck(t *testing.T) {
	const slots, lineSize, batch = 4, 2, 2
	s := newSlice(t, slots, lineSize, batch, PlanOptions{OptimiseForMemory: true, BoundsCheck: true})

	table := tableOf(slots, lineSize)
	out := make([]int32, batch*lineSize)

	err := s.Run(out, table, []uint32{0, 9})
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, uint32(9), ie.Index)
}

func TestMultiSliceLengthValidation(t *testing.T) {
	const slots, lineSize, batch = 4, 2, 2
	s := newSlice(t, slots, lineSize, batch, PlanOptions{OptimiseForMemory: true})

	table := tableOf(slots, lineSize)
	out := make([]int32, batch*lineSize)

	assert.ErrorIs(t, s.Run(out, table, []uint32{1}), ErrLength)
	assert.ErrorIs(t, s.Run(out[:1], table, []uint32{1, 2}), ErrLength)
	assert.ErrorIs(t, s.Run(out, table[:1], []uint32{1, 2}), ErrLength)
}
