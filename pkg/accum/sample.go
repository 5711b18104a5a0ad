package accum

import (
	"math/rand"
	"sort"

	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// Sample family name.
const NameSample = "sample"

// bytesPerSampleEntry is the packing estimate per reservoir slot.
const bytesPerSampleEntry = 64

// Sample keeps a uniform random sample of k non-absent cells using
// Vitter's reservoir algorithm: the first k items fill the reservoir, then
// item number i replaces a random slot with probability k/i. One pass,
// O(k) memory, no knowledge of the stream length needed. The sample is
// reported in original row order.
//
// Missing policy: absent cells are excluded from the sample population.
type Sample struct {
	passTracker
	column int
	k      int
	rng    *rand.Rand
	seen   int64
	items  []sampleItem
}

type sampleItem struct {
	row     int
	display string
}

// NewSample creates a Sample accumulator with reservoir size k. The seed
// in params makes the sample reproducible across runs.
func NewSample(column int, params Params) *Sample {
	params = params.Normalize()

	return &Sample{
		passTracker: newPassTracker(1),
		column:      column,
		k:           params.K,
		rng:         rand.New(rand.NewSource(params.Seed)), //nolint:gosec // statistical sampling, not crypto.
		items:       make([]sampleItem, 0, params.K),
	}
}

// Name returns the registered producer name.
func (s *Sample) Name() string { return NameSample }

// Column returns the bound column index.
func (s *Sample) Column() int { return s.column }

// RequiredPasses returns 1.
func (s *Sample) RequiredPasses() int { return 1 }

// SizeHint returns the k-bounded reservoir estimate.
func (s *Sample) SizeHint() int64 { return int64(s.k) * bytesPerSampleEntry }

// StartPass opens the given pass.
func (s *Sample) StartPass(pass int) error { return s.start(pass) }

// Accept offers the cell to the reservoir.
func (s *Sample) Accept(rowIndex int, v value.Value) error {
	if err := s.accepting(); err != nil {
		return err
	}

	if v.IsAbsent() {
		return nil
	}

	s.seen++

	if len(s.items) < s.k {
		s.items = append(s.items, sampleItem{row: rowIndex, display: v.Display()})

		return nil
	}

	if slot := s.rng.Int63n(s.seen); slot < int64(s.k) {
		s.items[slot] = sampleItem{row: rowIndex, display: v.Display()}
	}

	return nil
}

// EndPass closes the current pass.
func (s *Sample) EndPass() { s.end() }

// IsComplete reports whether the single pass has ended.
func (s *Sample) IsComplete() bool { return s.isComplete() }

// Finalize returns the sampled values restored to original row order.
func (s *Sample) Finalize() (Result, error) {
	if err := s.finalizeReady(); err != nil {
		return nil, err
	}

	ordered := make([]sampleItem, len(s.items))
	copy(ordered, s.items)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].row < ordered[j].row })

	out := make([]string, len(ordered))
	for i, item := range ordered {
		out[i] = item.display
	}

	return Result{StatSample: out}, nil
}
