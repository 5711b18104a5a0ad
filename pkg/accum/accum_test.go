package accum_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// feedOnePass runs the full single-pass protocol over the given cells.
func feedOnePass(t *testing.T, a accum.Accumulator, cells []value.Value) {
	t.Helper()

	require.NoError(t, a.StartPass(1))

	for i, v := range cells {
		require.NoError(t, a.Accept(i, v))
	}

	a.EndPass()
	require.True(t, a.IsComplete())
}

func floats(xs ...float64) []value.Value {
	out := make([]value.Value, len(xs))
	for i, x := range xs {
		out[i] = value.Float(x)
	}

	return out
}

func TestAccumulator_FinalizeBeforeCompletion(t *testing.T) {
	t.Parallel()

	instances := []accum.Accumulator{
		accum.NewCounts(0),
		accum.NewMoments(0),
		accum.NewMinMax(0),
		accum.NewTopK(0, accum.Params{}),
		accum.NewTypeTally(0),
		accum.NewDistinct(0, accum.Params{}),
		accum.NewSample(0, accum.Params{}),
	}

	for _, a := range instances {
		_, err := a.Finalize()
		require.ErrorIs(t, err, accum.ErrNotComplete, a.Name())

		require.NoError(t, a.StartPass(1))

		_, err = a.Finalize()
		require.ErrorIs(t, err, accum.ErrNotComplete, "%s: mid-pass finalize", a.Name())
	}
}

func TestAccumulator_AcceptAfterCompletion(t *testing.T) {
	t.Parallel()

	c := accum.NewCounts(0)
	feedOnePass(t, c, floats(1, 2))

	err := c.Accept(2, value.Float(3))
	require.ErrorIs(t, err, accum.ErrOutOfSequence)

	err = c.StartPass(2)
	require.ErrorIs(t, err, accum.ErrOutOfSequence, "no pass beyond the required count")
}

func TestAccumulator_AcceptOutsidePass(t *testing.T) {
	t.Parallel()

	m := accum.NewMoments(0)

	err := m.Accept(0, value.Float(1))
	require.ErrorIs(t, err, accum.ErrOutOfSequence)
}

func TestCounts_MissingPolicy(t *testing.T) {
	t.Parallel()

	c := accum.NewCounts(0)
	feedOnePass(t, c, []value.Value{
		value.Int(1),
		value.Missing(),
		value.Null(),
		value.Malformed("x"),
		value.Str("ok"),
	})

	res, err := c.Finalize()
	require.NoError(t, err)

	assert.EqualValues(t, 5, res[accum.StatCount])
	assert.EqualValues(t, 3, res[accum.StatCountMissing])
	assert.EqualValues(t, 2, res[accum.StatCountNonMissing])
}

// naiveMoments is the two-pass corrected-sum-of-squares reference used to
// cross-check the incremental update.
func naiveMoments(xs []float64) (mean, variance, skewness, kurtosis float64) {
	n := float64(len(xs))

	var sum float64
	for _, x := range xs {
		sum += x
	}

	mean = sum / n

	var m2, m3, m4 float64

	for _, x := range xs {
		d := x - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}

	variance = m2 / n
	skewness = math.Sqrt(n) * m3 / math.Pow(m2, 1.5)
	kurtosis = n*m4/(m2*m2) - 3

	return mean, variance, skewness, kurtosis
}

func TestMoments_AgreesWithTwoPassReference(t *testing.T) {
	t.Parallel()

	xs := []float64{1.5, -2.25, 3.75, 10.125, 0.5, 7.25, -0.125, 4.5, 2.25, 6.0}

	m := accum.NewMoments(0)
	feedOnePass(t, m, floats(xs...))

	res, err := m.Finalize()
	require.NoError(t, err)

	mean, variance, skewness, kurtosis := naiveMoments(xs)

	const tol = 1e-9

	assert.InEpsilon(t, mean, res[accum.StatMean].(float64), tol)
	assert.InEpsilon(t, variance, res[accum.StatVariance].(float64), tol)
	assert.InEpsilon(t, math.Sqrt(variance), res[accum.StatStdDev].(float64), tol)
	assert.InEpsilon(t, skewness, res[accum.StatSkewness].(float64), tol)
	assert.InEpsilon(t, kurtosis, res[accum.StatKurtosis].(float64), tol)
}

func TestMoments_LargeOffsetStability(t *testing.T) {
	t.Parallel()

	// A large common offset defeats the naive E[x^2]-E[x]^2 form; the
	// incremental update must keep the small variance intact.
	const offset = 1e9

	m := accum.NewMoments(0)
	feedOnePass(t, m, floats(offset+1, offset+2, offset+3))

	res, err := m.Finalize()
	require.NoError(t, err)

	assert.InEpsilon(t, 2.0/3.0, res[accum.StatVariance].(float64), 1e-9)
}

func TestMoments_SkipsNonNumeric(t *testing.T) {
	t.Parallel()

	m := accum.NewMoments(0)
	feedOnePass(t, m, []value.Value{
		value.Float(2),
		value.Str("not a number"),
		value.Missing(),
		value.Float(4),
	})

	res, err := m.Finalize()
	require.NoError(t, err)

	assert.InEpsilon(t, 6.0, res[accum.StatSum].(float64), 1e-12)
	assert.InEpsilon(t, 3.0, res[accum.StatMean].(float64), 1e-12)
}

func TestMoments_EmptyColumn(t *testing.T) {
	t.Parallel()

	m := accum.NewMoments(0)
	feedOnePass(t, m, nil)

	res, err := m.Finalize()
	require.NoError(t, err)

	assert.InDelta(t, 0, res[accum.StatSum].(float64), 0)
	assert.True(t, math.IsNaN(res[accum.StatMean].(float64)))
}

func TestMinMax_ExemplarRowsFirstSeenOnTies(t *testing.T) {
	t.Parallel()

	m := accum.NewMinMax(0)
	feedOnePass(t, m, floats(5, 1, 9, 1, 9))

	res, err := m.Finalize()
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res[accum.StatMin].(float64), 0)
	assert.InDelta(t, 9.0, res[accum.StatMax].(float64), 0)
	assert.Equal(t, 1, res[accum.StatMinRow], "first occurrence of the minimum")
	assert.Equal(t, 2, res[accum.StatMaxRow], "first occurrence of the maximum")
}

func TestMinMax_NoNumericValues(t *testing.T) {
	t.Parallel()

	m := accum.NewMinMax(0)
	feedOnePass(t, m, []value.Value{value.Str("a"), value.Missing()})

	res, err := m.Finalize()
	require.NoError(t, err)

	assert.Nil(t, res[accum.StatMin])
	assert.Nil(t, res[accum.StatMax])
}

func TestRange_DerivesFromMinMax(t *testing.T) {
	t.Parallel()

	m := accum.NewMinMax(0)

	r, err := accum.NewRange(0, m)
	require.NoError(t, err)

	require.NoError(t, m.StartPass(1))
	require.NoError(t, r.StartPass(1))

	for i, v := range floats(3, 8, -1) {
		require.NoError(t, m.Accept(i, v))
		require.NoError(t, r.Accept(i, v))
	}

	m.EndPass()
	r.EndPass()

	require.True(t, r.IsComplete())

	res, err := r.Finalize()
	require.NoError(t, err)

	assert.InDelta(t, 9.0, res[accum.StatRange].(float64), 0)
}

func TestRange_MissingDependency(t *testing.T) {
	t.Parallel()

	_, err := accum.NewRange(0, nil)
	require.ErrorIs(t, err, accum.ErrMissingDependency)
}
