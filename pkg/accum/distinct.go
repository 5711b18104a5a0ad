package accum

import (
	"fmt"

	"github.com/Sumatoshi-tech/tabsum/pkg/alg/hll"
	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// Distinct family name.
const NameDistinct = "distinct"

// bytesPerDistinctKey is the packing estimate per exactly-tracked key.
const bytesPerDistinctKey = 48

// Distinct counts distinct values in a single pass. Values are tracked
// exactly up to the configured cardinality ceiling; beyond it the set is
// folded into a HyperLogLog sketch, the exact map is released, and the
// final count is flagged approximate.
//
// Missing policy: absent cells (missing, null, malformed) are excluded;
// they never form distinct values.
type Distinct struct {
	passTracker
	column  int
	ceiling int
	exact   map[string]struct{}
	sketch  *hll.Sketch
}

// NewDistinct creates a Distinct accumulator with the given exact-tracking
// ceiling.
func NewDistinct(column int, params Params) *Distinct {
	params = params.Normalize()

	return &Distinct{
		passTracker: newPassTracker(1),
		column:      column,
		ceiling:     params.DistinctCeiling,
		exact:       make(map[string]struct{}),
	}
}

// Name returns the registered producer name.
func (d *Distinct) Name() string { return NameDistinct }

// Column returns the bound column index.
func (d *Distinct) Column() int { return d.column }

// RequiredPasses returns 1.
func (d *Distinct) RequiredPasses() int { return 1 }

// SizeHint estimates the exact map at its ceiling; the sketch that
// replaces it is strictly smaller.
func (d *Distinct) SizeHint() int64 {
	return int64(d.ceiling) * bytesPerDistinctKey
}

// StartPass opens the given pass.
func (d *Distinct) StartPass(pass int) error { return d.start(pass) }

// Accept tracks the cell's canonical key.
func (d *Distinct) Accept(_ int, v value.Value) error {
	if err := d.accepting(); err != nil {
		return err
	}

	if v.IsAbsent() {
		return nil
	}

	key := v.Key()

	if d.sketch != nil {
		d.sketch.AddString(key)

		return nil
	}

	d.exact[key] = struct{}{}
	if len(d.exact) > d.ceiling {
		if err := d.degrade(); err != nil {
			return err
		}
	}

	return nil
}

// degrade folds the exact set into a sketch and releases the map.
func (d *Distinct) degrade() error {
	sketch, err := hll.New(hll.DefaultPrecision)
	if err != nil {
		return fmt.Errorf("distinct fallback: %w", err)
	}

	for key := range d.exact {
		sketch.AddString(key)
	}

	d.sketch = sketch
	d.exact = nil

	return nil
}

// EndPass closes the current pass.
func (d *Distinct) EndPass() { d.end() }

// IsComplete reports whether the single pass has ended.
func (d *Distinct) IsComplete() bool { return d.isComplete() }

// Approximate reports whether the count degraded to the sketch estimate.
func (d *Distinct) Approximate() bool { return d.sketch != nil }

// Warnings surfaces the approximation fallback as a warning-level signal.
func (d *Distinct) Warnings() []string {
	if !d.Approximate() {
		return nil
	}

	return []string{fmt.Sprintf(
		"count_distinct exceeded exact ceiling %d; reporting HyperLogLog estimate", d.ceiling)}
}

// Finalize returns the distinct count and its approximation flag.
func (d *Distinct) Finalize() (Result, error) {
	if err := d.finalizeReady(); err != nil {
		return nil, err
	}

	if d.sketch != nil {
		return Result{
			StatCountDistinct:  int64(d.sketch.Count()),
			StatDistinctApprox: true,
		}, nil
	}

	return Result{
		StatCountDistinct:  int64(len(d.exact)),
		StatDistinctApprox: false,
	}, nil
}
