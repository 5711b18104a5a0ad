package accum_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

func TestDistinct_ExactUnderCeiling(t *testing.T) {
	t.Parallel()

	d := accum.NewDistinct(0, accum.Params{DistinctCeiling: 5})
	feedOnePass(t, d, strs("a", "b", "c", "a", "b"))

	res, err := d.Finalize()
	require.NoError(t, err)

	assert.EqualValues(t, 3, res[accum.StatCountDistinct])
	assert.Equal(t, false, res[accum.StatDistinctApprox])
	assert.Empty(t, d.Warnings())
}

func TestDistinct_FallsBackOverCeiling(t *testing.T) {
	t.Parallel()

	d := accum.NewDistinct(0, accum.Params{DistinctCeiling: 5})

	cells := make([]value.Value, 0, 10)
	for i := 0; i < 10; i++ {
		cells = append(cells, value.Str(fmt.Sprintf("v%d", i)))
	}

	feedOnePass(t, d, cells)

	res, err := d.Finalize()
	require.NoError(t, err)

	assert.Equal(t, true, res[accum.StatDistinctApprox])
	assert.NotEmpty(t, d.Warnings())

	// 10 distinct values estimate exactly at HLL's default precision.
	assert.InDelta(t, 10, float64(res[accum.StatCountDistinct].(int64)), 1)
}

func TestDistinct_ExcludesAbsent(t *testing.T) {
	t.Parallel()

	d := accum.NewDistinct(0, accum.Params{DistinctCeiling: 5})
	feedOnePass(t, d, []value.Value{
		value.Str("a"),
		value.Missing(),
		value.Null(),
		value.Malformed("??"),
	})

	res, err := d.Finalize()
	require.NoError(t, err)

	assert.EqualValues(t, 1, res[accum.StatCountDistinct])
}

func TestTypeTally_CountsKinds(t *testing.T) {
	t.Parallel()

	tt := accum.NewTypeTally(0)
	feedOnePass(t, tt, []value.Value{
		value.Int(1),
		value.Int(2),
		value.Float(1.5),
		value.Str("x"),
		value.Missing(),
		value.Malformed("?"),
	})

	res, err := tt.Finalize()
	require.NoError(t, err)

	tally, ok := res[accum.StatTypeTally].(map[string]int64)
	require.True(t, ok)

	assert.EqualValues(t, 2, tally["integer"])
	assert.EqualValues(t, 1, tally["float"])
	assert.EqualValues(t, 1, tally["string"])
	assert.EqualValues(t, 1, tally["missing"])
	assert.EqualValues(t, 1, tally["malformed"])
}
