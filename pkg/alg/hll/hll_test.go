package hll_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tabsum/pkg/alg/hll"
)

func TestNew_PrecisionBounds(t *testing.T) {
	t.Parallel()

	_, err := hll.New(3)
	require.ErrorIs(t, err, hll.ErrPrecisionOutOfRange)

	_, err = hll.New(19)
	require.ErrorIs(t, err, hll.ErrPrecisionOutOfRange)

	sketch, err := hll.New(hll.DefaultPrecision)
	require.NoError(t, err)
	assert.Equal(t, 1<<hll.DefaultPrecision, sketch.SizeBytes())
}

func TestCount_Empty(t *testing.T) {
	t.Parallel()

	sketch, err := hll.New(hll.DefaultPrecision)
	require.NoError(t, err)

	assert.Zero(t, sketch.Count())
}

func TestCount_SmallExactish(t *testing.T) {
	t.Parallel()

	sketch, err := hll.New(hll.DefaultPrecision)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		sketch.AddString(fmt.Sprintf("item-%d", i))
	}

	// At precision 14 an estimate for 100 items should be essentially exact.
	assert.InDelta(t, 100, float64(sketch.Count()), 3)
}

func TestCount_DuplicatesIgnored(t *testing.T) {
	t.Parallel()

	sketch, err := hll.New(hll.DefaultPrecision)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		sketch.AddString("same")
	}

	assert.EqualValues(t, 1, sketch.Count())
}

func TestCount_LargeWithinErrorBound(t *testing.T) {
	t.Parallel()

	sketch, err := hll.New(hll.DefaultPrecision)
	require.NoError(t, err)

	const n = 100_000

	for i := 0; i < n; i++ {
		sketch.AddString(fmt.Sprintf("key-%d", i))
	}

	got := float64(sketch.Count())

	// Precision 14 gives ~0.8% standard error; allow 3 sigma.
	assert.InEpsilon(t, float64(n), got, 0.025)
}
