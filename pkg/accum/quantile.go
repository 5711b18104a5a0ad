package accum

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// Quantiles family name.
const NameQuantiles = "quantiles"

// bytesPerRetainedValue is the packing estimate per retained numeric cell.
const bytesPerRetainedValue = 8

// Quantiles reports exemplar quantiles: for probability p, the smallest
// retained value x such that p <= ECDF(x). Quantiles are always elements
// of the data, never interpolated, so the family also works once extended
// to ordered non-numeric data. Q(0) is the minimum, Q(1) the maximum, and
// Q(1/2) the exemplar median.
//
// All numeric cells are retained and sorted at finalize, which is why the
// family declares linear memory and participates in chunk packing with an
// O(n) estimate.
//
// Missing policy: absent and non-numeric cells are excluded.
type Quantiles struct {
	passTracker
	column       int
	probs        []float64
	rowCountHint int64
	values       []float64
}

// NewQuantiles creates a Quantiles accumulator for the requested
// probabilities. rowCountHint sizes the packing estimate.
func NewQuantiles(column int, params Params, rowCountHint int64) (*Quantiles, error) {
	params = params.Normalize()

	for _, p := range params.Quantiles {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("quantile probability not in [0,1]: %v", p) //nolint:err113 // carries the offending value.
		}
	}

	probs := make([]float64, len(params.Quantiles))
	copy(probs, params.Quantiles)
	sort.Float64s(probs)

	return &Quantiles{
		passTracker:  newPassTracker(1),
		column:       column,
		probs:        probs,
		rowCountHint: rowCountHint,
	}, nil
}

// Name returns the registered producer name.
func (q *Quantiles) Name() string { return NameQuantiles }

// Column returns the bound column index.
func (q *Quantiles) Column() int { return q.column }

// RequiredPasses returns 1.
func (q *Quantiles) RequiredPasses() int { return 1 }

// SizeHint returns the linear estimate from the row count hint.
func (q *Quantiles) SizeHint() int64 {
	return q.rowCountHint * bytesPerRetainedValue
}

// StartPass opens the given pass.
func (q *Quantiles) StartPass(pass int) error { return q.start(pass) }

// Accept retains a numeric cell.
func (q *Quantiles) Accept(_ int, v value.Value) error {
	if err := q.accepting(); err != nil {
		return err
	}

	if x, ok := v.AsFloat(); ok {
		q.values = append(q.values, x)
	}

	return nil
}

// EndPass closes the current pass.
func (q *Quantiles) EndPass() { q.end() }

// IsComplete reports whether the single pass has ended.
func (q *Quantiles) IsComplete() bool { return q.isComplete() }

// Finalize returns quantiles as a probability-keyed map plus the exemplar
// median. Probabilities become string keys ("0.25", "0.5") so the map
// survives every renderer. With no numeric values both stats are nil.
func (q *Quantiles) Finalize() (Result, error) {
	if err := q.finalizeReady(); err != nil {
		return nil, err
	}

	if len(q.values) == 0 {
		return Result{StatQuantiles: nil, StatMedian: nil}, nil
	}

	sort.Float64s(q.values)

	out := make(map[string]float64, len(q.probs))
	for _, p := range q.probs {
		out[strconv.FormatFloat(p, 'g', -1, 64)] = q.exemplar(p)
	}

	return Result{
		StatQuantiles: out,
		StatMedian:    q.exemplar(0.5), //nolint:mnd // the median's probability.
	}, nil
}

// exemplar returns the smallest value x with p <= ECDF(x). The index is
// ceil(n*p) - 1, clamped to 0 so that Q(0) is the minimum.
func (q *Quantiles) exemplar(p float64) float64 {
	idx := int(math.Ceil(float64(len(q.values))*p)) - 1
	if idx < 0 {
		idx = 0
	}

	return q.values[idx]
}
