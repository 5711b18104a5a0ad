package accum

import "github.com/Sumatoshi-tech/tabsum/pkg/value"

// MinMax family name.
const NameMinMax = "minmax"

// sizeHintMinMax is the approximate resident size of a MinMax instance.
const sizeHintMinMax = 128

// MinMax tracks the minimum and maximum numeric value in a single pass,
// together with the exemplar row index for each. Ties keep the first-seen
// row, so the reported exemplar is stable under replay.
//
// Missing policy: non-numeric and absent cells are skipped; min/max over a
// column with no numeric values finalize to nil.
type MinMax struct {
	passTracker
	column int
	seen   bool
	min    float64
	max    float64
	minRow int
	maxRow int
}

// NewMinMax creates a MinMax accumulator bound to the column.
func NewMinMax(column int) *MinMax {
	return &MinMax{passTracker: newPassTracker(1), column: column}
}

// Name returns the registered producer name.
func (m *MinMax) Name() string { return NameMinMax }

// Column returns the bound column index.
func (m *MinMax) Column() int { return m.column }

// RequiredPasses returns 1.
func (m *MinMax) RequiredPasses() int { return 1 }

// SizeHint returns the constant state estimate.
func (m *MinMax) SizeHint() int64 { return sizeHintMinMax }

// StartPass opens the given pass.
func (m *MinMax) StartPass(pass int) error { return m.start(pass) }

// Accept updates the extrema with a numeric cell.
func (m *MinMax) Accept(rowIndex int, v value.Value) error {
	if err := m.accepting(); err != nil {
		return err
	}

	x, ok := v.AsFloat()
	if !ok {
		return nil
	}

	if !m.seen {
		m.seen = true
		m.min, m.max = x, x
		m.minRow, m.maxRow = rowIndex, rowIndex

		return nil
	}

	// Strict comparisons keep the first-seen row on ties.
	if x < m.min {
		m.min = x
		m.minRow = rowIndex
	}

	if x > m.max {
		m.max = x
		m.maxRow = rowIndex
	}

	return nil
}

// EndPass closes the current pass.
func (m *MinMax) EndPass() { m.end() }

// IsComplete reports whether the single pass has ended.
func (m *MinMax) IsComplete() bool { return m.isComplete() }

// Finalize returns min, max, and their exemplar rows.
func (m *MinMax) Finalize() (Result, error) {
	if err := m.finalizeReady(); err != nil {
		return nil, err
	}

	if !m.seen {
		return Result{StatMin: nil, StatMax: nil, StatMinRow: nil, StatMaxRow: nil}, nil
	}

	return Result{
		StatMin:    m.min,
		StatMax:    m.max,
		StatMinRow: m.minRow,
		StatMaxRow: m.maxRow,
	}, nil
}

// RangeOf family name.
const NameRange = "range"

// RangeOf derives max - min lazily from a finished MinMax instance bound
// to the same column. It consumes no data itself; it exists to exercise
// the same-pass dependency rule where a derived statistic reads upstream
// finalized values instead of the stream.
type RangeOf struct {
	passTracker
	column   int
	upstream *MinMax
}

// NewRange creates a RangeOf reading from the given MinMax instance.
func NewRange(column int, upstream *MinMax) (*RangeOf, error) {
	if upstream == nil {
		return nil, ErrMissingDependency
	}

	return &RangeOf{passTracker: newPassTracker(1), column: column, upstream: upstream}, nil
}

// Name returns the registered producer name.
func (r *RangeOf) Name() string { return NameRange }

// Derived marks the range as lazily computed from upstream results, which
// lets the planner schedule it in the same pass as its dependencies.
func (r *RangeOf) Derived() bool { return true }

// Column returns the bound column index.
func (r *RangeOf) Column() int { return r.column }

// RequiredPasses returns 1; the pass is consumed alongside the upstream.
func (r *RangeOf) RequiredPasses() int { return 1 }

// SizeHint returns a token constant estimate.
func (r *RangeOf) SizeHint() int64 { return sizeHintCounts }

// StartPass opens the given pass.
func (r *RangeOf) StartPass(pass int) error { return r.start(pass) }

// Accept ignores the stream; the range derives from upstream results.
func (r *RangeOf) Accept(_ int, _ value.Value) error {
	return r.accepting()
}

// EndPass closes the current pass.
func (r *RangeOf) EndPass() { r.end() }

// IsComplete reports completion of both this and the upstream instance.
func (r *RangeOf) IsComplete() bool {
	return r.isComplete() && r.upstream.IsComplete()
}

// Finalize computes the range from the upstream extrema.
func (r *RangeOf) Finalize() (Result, error) {
	if err := r.finalizeReady(); err != nil {
		return nil, err
	}

	up, err := r.upstream.Finalize()
	if err != nil {
		return nil, err
	}

	minVal, okMin := up[StatMin].(float64)
	maxVal, okMax := up[StatMax].(float64)

	if !okMin || !okMax {
		return Result{StatRange: nil}, nil
	}

	return Result{StatRange: maxVal - minVal}, nil
}
