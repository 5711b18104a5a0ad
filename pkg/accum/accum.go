// Package accum implements the streaming accumulators that turn a column's
// value stream into named statistics. One accumulator instance may produce
// several related statistics (a single moments instance yields sum through
// kurtosis) so that shared work is never recomputed across passes.
//
// Missing-value policy is documented per accumulator: unless stated
// otherwise, missing, null, and malformed cells are excluded from a
// statistic and surface only through the counts and type-tally families.
package accum

import (
	"errors"

	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// Statistic names produced by the built-in accumulator families.
const (
	StatCount            = "count"
	StatCountMissing     = "count_missing"
	StatCountNonMissing  = "count_nonmissing"
	StatCountDistinct    = "count_distinct"
	StatDistinctApprox   = "count_distinct_approximate"
	StatSum              = "sum"
	StatMean             = "mean"
	StatVariance         = "variance"
	StatStdDev           = "stddev"
	StatSkewness         = "skewness"
	StatKurtosis         = "kurtosis"
	StatMin              = "min"
	StatMax              = "max"
	StatMinRow           = "min_row"
	StatMaxRow           = "max_row"
	StatRange            = "range"
	StatTopK             = "top_k"
	StatTypeTally        = "type_tally"
	StatContingency      = "contingency"
	StatQuantiles        = "quantiles"
	StatMedian           = "median"
	StatSample           = "sample"
)

// Accumulator state machine errors.
var (
	// ErrOutOfSequence is returned when an accumulator is fed after
	// completion or outside an open pass. It indicates a scheduler defect.
	ErrOutOfSequence = errors.New("accum: accept out of sequence")

	// ErrNotComplete is returned when Finalize is called before the
	// accumulator's required passes have been consumed.
	ErrNotComplete = errors.New("accum: finalize before completion")

	// ErrMissingDependency is returned by a factory when a declared
	// upstream accumulator instance was not supplied.
	ErrMissingDependency = errors.New("accum: missing dependency instance")
)

// Result maps statistic names to their final values. Values are scalars,
// ordered slices, or nested maps for structured statistics.
type Result = map[string]any

// Parameter defaults.
const (
	// DefaultK is the default bound for top-k and reservoir sampling.
	DefaultK = 10

	// DefaultDistinctCeiling is the exact-tracking ceiling before the
	// distinct counter falls back to a HyperLogLog sketch.
	DefaultDistinctCeiling = 10_000

	// NoStratifier marks the stratifier column as unset.
	NoStratifier = -1
)

// DefaultQuantiles are the probabilities reported when none are requested.
var DefaultQuantiles = []float64{0, 0.25, 0.5, 0.75, 1}

// Params holds algorithm-specific knobs for a statistic request.
// The zero value is usable; Normalize fills defaults.
type Params struct {
	// K bounds top-k and sample sizes.
	K int
	// Quantiles are the requested quantile probabilities in [0, 1].
	Quantiles []float64
	// Stratifier is the column index a contingency table stratifies by.
	Stratifier int
	// Domain and StratifierDomain, when both non-empty, let a contingency
	// table fill cells in a single pass instead of two.
	Domain           []string
	StratifierDomain []string
	// DistinctCeiling caps exact distinct tracking.
	DistinctCeiling int
	// Seed makes reservoir sampling reproducible. Zero means seed 1.
	Seed int64
}

// Normalize returns a copy with defaults applied.
func (p Params) Normalize() Params {
	if p.K <= 0 {
		p.K = DefaultK
	}

	if len(p.Quantiles) == 0 {
		p.Quantiles = DefaultQuantiles
	}

	if p.DistinctCeiling <= 0 {
		p.DistinctCeiling = DefaultDistinctCeiling
	}

	if p.Seed == 0 {
		p.Seed = 1
	}

	return p
}

// Accumulator is a stateful consumer of one column's value stream.
//
// The pass protocol is: StartPass(1), Accept..., EndPass, StartPass(2),
// and so on until RequiredPasses passes have ended, after which IsComplete
// reports true and Finalize may be called. Accept outside an open pass or
// after completion fails with ErrOutOfSequence.
type Accumulator interface {
	// Name is the producer (family) name registered for this accumulator.
	Name() string
	// Column is the column index the instance is bound to.
	Column() int
	// RequiredPasses is the number of data passes the instance needs.
	// It may depend on parameters (contingency with supplied domains).
	RequiredPasses() int
	// SizeHint estimates resident state in bytes for chunk packing.
	SizeHint() int64
	StartPass(pass int) error
	Accept(rowIndex int, v value.Value) error
	EndPass()
	IsComplete() bool
	Finalize() (Result, error)
}

// Warner is implemented by accumulators that attach warning-level signals
// (such as an approximation fallback) to their results.
type Warner interface {
	Warnings() []string
}

// Derived is implemented by accumulators that compute their statistics
// lazily from upstream finalized values rather than from the stream. A
// derived accumulator may share a pass with its dependencies; any other
// dependent must wait for its dependencies to finish their passes first.
type Derived interface {
	Derived() bool
}

// passTracker implements the shared pass/completion state machine.
type passTracker struct {
	required int
	pass     int
	inPass   bool
	complete bool
}

func newPassTracker(required int) passTracker {
	return passTracker{required: required}
}

func (p *passTracker) start(pass int) error {
	if p.complete || p.inPass || pass != p.pass+1 {
		return ErrOutOfSequence
	}

	p.pass = pass
	p.inPass = true

	return nil
}

func (p *passTracker) accepting() error {
	if !p.inPass {
		return ErrOutOfSequence
	}

	return nil
}

func (p *passTracker) end() {
	if !p.inPass {
		return
	}

	p.inPass = false

	if p.pass >= p.required {
		p.complete = true
	}
}

func (p *passTracker) isComplete() bool { return p.complete }

func (p *passTracker) finalizeReady() error {
	if !p.complete {
		return ErrNotComplete
	}

	return nil
}
