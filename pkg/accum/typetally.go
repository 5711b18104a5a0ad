package accum

import "github.com/Sumatoshi-tech/tabsum/pkg/value"

// TypeTally family name.
const NameTypeTally = "typetally"

// sizeHintTypeTally is the approximate resident size of a TypeTally
// instance; the kind space is small and fixed.
const sizeHintTypeTally = 256

// TypeTally counts cells of each recognized scalar type in one pass.
//
// Missing policy: missing and malformed are kinds of their own here, so
// every cell is counted under exactly one kind.
type TypeTally struct {
	passTracker
	column int
	counts map[string]int64
}

// NewTypeTally creates a TypeTally accumulator bound to the column.
func NewTypeTally(column int) *TypeTally {
	return &TypeTally{
		passTracker: newPassTracker(1),
		column:      column,
		counts:      make(map[string]int64),
	}
}

// Name returns the registered producer name.
func (t *TypeTally) Name() string { return NameTypeTally }

// Column returns the bound column index.
func (t *TypeTally) Column() int { return t.column }

// RequiredPasses returns 1.
func (t *TypeTally) RequiredPasses() int { return 1 }

// SizeHint returns the constant state estimate.
func (t *TypeTally) SizeHint() int64 { return sizeHintTypeTally }

// StartPass opens the given pass.
func (t *TypeTally) StartPass(pass int) error { return t.start(pass) }

// Accept tallies the cell's kind.
func (t *TypeTally) Accept(_ int, v value.Value) error {
	if err := t.accepting(); err != nil {
		return err
	}

	t.counts[v.Kind().String()]++

	return nil
}

// EndPass closes the current pass.
func (t *TypeTally) EndPass() { t.end() }

// IsComplete reports whether the single pass has ended.
func (t *TypeTally) IsComplete() bool { return t.isComplete() }

// Finalize returns type_tally as a map from kind name to count.
func (t *TypeTally) Finalize() (Result, error) {
	if err := t.finalizeReady(); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(t.counts))
	for kind, n := range t.counts {
		out[kind] = n
	}

	return Result{StatTypeTally: out}, nil
}
