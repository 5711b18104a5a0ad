package accum

import (
	"sort"

	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// TopK family name.
const NameTopK = "topk"

// bytesPerTopKEntry is the packing estimate per tracked entry.
const bytesPerTopKEntry = 96

// TopKEntry is one entry of the final top-k result.
type TopKEntry struct {
	Value     string
	Count     int64
	FirstSeen int
}

// TopK tracks the k most frequent values in a single pass with a bounded
// structure of size k. When the structure is full, an unseen value enters
// the eviction contest as a count-1 entry: the lowest-frequency entry
// loses, with ties at the boundary broken toward the earliest first-seen
// row, a stable preference for earlier-observed values. A rejected value
// that reappears later restarts at count one, so counts are approximate
// once the bound has been hit.
//
// Missing policy: absent cells are excluded.
type TopK struct {
	passTracker
	column  int
	k       int
	entries map[string]*topEntry
}

type topEntry struct {
	count     int64
	firstSeen int
	display   string
}

// NewTopK creates a TopK accumulator with bound k.
func NewTopK(column int, params Params) *TopK {
	params = params.Normalize()

	return &TopK{
		passTracker: newPassTracker(1),
		column:      column,
		k:           params.K,
		entries:     make(map[string]*topEntry, params.K),
	}
}

// Name returns the registered producer name.
func (t *TopK) Name() string { return NameTopK }

// Column returns the bound column index.
func (t *TopK) Column() int { return t.column }

// RequiredPasses returns 1.
func (t *TopK) RequiredPasses() int { return 1 }

// SizeHint returns the k-bounded state estimate.
func (t *TopK) SizeHint() int64 { return int64(t.k) * bytesPerTopKEntry }

// StartPass opens the given pass.
func (t *TopK) StartPass(pass int) error { return t.start(pass) }

// Accept counts the cell. On overflow the unseen value competes with the
// lowest-frequency entry and is dropped when it loses the tie-break.
func (t *TopK) Accept(rowIndex int, v value.Value) error {
	if err := t.accepting(); err != nil {
		return err
	}

	if v.IsAbsent() {
		return nil
	}

	key := v.Key()

	if e, ok := t.entries[key]; ok {
		e.count++

		return nil
	}

	if len(t.entries) >= t.k {
		weakestKey := t.weakest()
		weakest := t.entries[weakestKey]

		// The newcomer enters the contest at count one; on equal counts
		// the earlier-seen entry survives.
		if weakest.count > 1 || weakest.firstSeen < rowIndex {
			return nil
		}

		delete(t.entries, weakestKey)
	}

	t.entries[key] = &topEntry{count: 1, firstSeen: rowIndex, display: v.Display()}

	return nil
}

// weakest returns the key of the lowest-frequency entry, breaking
// frequency ties toward the latest first-seen row.
func (t *TopK) weakest() string {
	var victim string

	for key, e := range t.entries {
		if victim == "" {
			victim = key

			continue
		}

		cur := t.entries[victim]
		if e.count < cur.count || (e.count == cur.count && e.firstSeen > cur.firstSeen) {
			victim = key
		}
	}

	return victim
}

// EndPass closes the current pass.
func (t *TopK) EndPass() { t.end() }

// IsComplete reports whether the single pass has ended.
func (t *TopK) IsComplete() bool { return t.isComplete() }

// Finalize returns top_k as entries ordered by descending count, ties
// toward earlier first-seen rows.
func (t *TopK) Finalize() (Result, error) {
	if err := t.finalizeReady(); err != nil {
		return nil, err
	}

	out := make([]TopKEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, TopKEntry{Value: e.display, Count: e.count, FirstSeen: e.firstSeen})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}

		return out[i].FirstSeen < out[j].FirstSeen
	})

	return Result{StatTopK: out}, nil
}
