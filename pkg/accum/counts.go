package accum

import "github.com/Sumatoshi-tech/tabsum/pkg/value"

// Counts family name.
const NameCounts = "counts"

// sizeHintCounts is the approximate resident size of a Counts instance.
const sizeHintCounts = 64

// Counts tallies total, missing, and non-missing cells in a single pass
// with constant memory.
//
// Missing policy: missing, null, and malformed cells all count toward
// count and count_missing; everything else counts toward count_nonmissing.
type Counts struct {
	passTracker
	column     int
	total      int64
	missing    int64
	nonMissing int64
}

// NewCounts creates a Counts accumulator bound to the column.
func NewCounts(column int) *Counts {
	return &Counts{passTracker: newPassTracker(1), column: column}
}

// Name returns the registered producer name.
func (c *Counts) Name() string { return NameCounts }

// Column returns the bound column index.
func (c *Counts) Column() int { return c.column }

// RequiredPasses returns 1.
func (c *Counts) RequiredPasses() int { return 1 }

// SizeHint returns the constant state estimate.
func (c *Counts) SizeHint() int64 { return sizeHintCounts }

// StartPass opens the given pass.
func (c *Counts) StartPass(pass int) error { return c.start(pass) }

// Accept counts the cell.
func (c *Counts) Accept(_ int, v value.Value) error {
	if err := c.accepting(); err != nil {
		return err
	}

	c.total++

	if v.IsAbsent() {
		c.missing++
	} else {
		c.nonMissing++
	}

	return nil
}

// EndPass closes the current pass.
func (c *Counts) EndPass() { c.end() }

// IsComplete reports whether the single pass has ended.
func (c *Counts) IsComplete() bool { return c.isComplete() }

// Finalize returns count, count_missing, and count_nonmissing.
func (c *Counts) Finalize() (Result, error) {
	if err := c.finalizeReady(); err != nil {
		return nil, err
	}

	return Result{
		StatCount:           c.total,
		StatCountMissing:    c.missing,
		StatCountNonMissing: c.nonMissing,
	}, nil
}
