package accum

import (
	"math"

	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// Moments family name.
const NameMoments = "moments"

// sizeHintMoments is the approximate resident size of a Moments instance.
const sizeHintMoments = 96

// Moments computes sum, mean, variance, standard deviation, skewness, and
// kurtosis in a single pass using Terriberry's incremental central-moment
// update (the Welford recurrence extended to third and fourth moments).
// The incremental form avoids the catastrophic cancellation of the naive
// corrected-sum-of-squares method, which is why this family declares a
// single pass rather than two.
//
// Formula choice: population variance (divide by n), skewness g1 and
// excess kurtosis g2, without bias correction. The design notes never
// settled on a bias convention, so the uncorrected population formulas are
// used and documented here.
//
// Missing policy: missing, null, malformed, and non-numeric cells are
// excluded entirely; n reflects only the values that entered the moments.
type Moments struct {
	passTracker
	column int
	n      int64
	sum    float64
	mean   float64
	m2     float64
	m3     float64
	m4     float64
}

// NewMoments creates a Moments accumulator bound to the column.
func NewMoments(column int) *Moments {
	return &Moments{passTracker: newPassTracker(1), column: column}
}

// Name returns the registered producer name.
func (m *Moments) Name() string { return NameMoments }

// Column returns the bound column index.
func (m *Moments) Column() int { return m.column }

// RequiredPasses returns 1: incremental moments need no second pass.
func (m *Moments) RequiredPasses() int { return 1 }

// SizeHint returns the constant state estimate.
func (m *Moments) SizeHint() int64 { return sizeHintMoments }

// StartPass opens the given pass.
func (m *Moments) StartPass(pass int) error { return m.start(pass) }

// Accept folds a numeric cell into the running moments.
func (m *Moments) Accept(_ int, v value.Value) error {
	if err := m.accepting(); err != nil {
		return err
	}

	x, ok := v.AsFloat()
	if !ok {
		return nil
	}

	n1 := float64(m.n)
	m.n++
	n := float64(m.n)

	delta := x - m.mean
	deltaN := delta / n
	deltaN2 := deltaN * deltaN
	term1 := delta * deltaN * n1

	m.sum += x
	m.mean += deltaN
	m.m4 += term1*deltaN2*(n*n-3*n+3) + 6*deltaN2*m.m2 - 4*deltaN*m.m3
	m.m3 += term1*deltaN*(n-2) - 3*deltaN*m.m2
	m.m2 += term1

	return nil
}

// EndPass closes the current pass.
func (m *Moments) EndPass() { m.end() }

// IsComplete reports whether the single pass has ended.
func (m *Moments) IsComplete() bool { return m.isComplete() }

// Finalize returns the moment statistics. With no numeric values every
// statistic is NaN except sum, which is 0.
func (m *Moments) Finalize() (Result, error) {
	if err := m.finalizeReady(); err != nil {
		return nil, err
	}

	res := Result{
		StatSum:      m.sum,
		StatMean:     math.NaN(),
		StatVariance: math.NaN(),
		StatStdDev:   math.NaN(),
		StatSkewness: math.NaN(),
		StatKurtosis: math.NaN(),
	}

	if m.n == 0 {
		return res, nil
	}

	n := float64(m.n)
	variance := m.m2 / n

	res[StatMean] = m.mean
	res[StatVariance] = variance
	res[StatStdDev] = math.Sqrt(variance)

	if variance > 0 {
		res[StatSkewness] = math.Sqrt(n) * m.m3 / math.Pow(m.m2, 1.5)
		res[StatKurtosis] = n*m.m4/(m.m2*m.m2) - 3
	}

	return res, nil
}
