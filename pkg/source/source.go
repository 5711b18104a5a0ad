// Package source defines the tabular data source contract the engine
// consumes, plus in-memory and CSV-backed implementations. Sources expose
// their native access pattern (row-wise or column-wise) so the feeder can
// stream values without transposing data larger than memory. Type
// inference is the source's responsibility; accumulators only ever see
// typed cells.
package source

import (
	"context"
	"errors"
	"sync"

	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// Orientation is a source's native access pattern.
type Orientation int

const (
	// RowWise sources iterate rows of cells.
	RowWise Orientation = iota
	// ColumnWise sources iterate one column's cells at a time.
	ColumnWise
)

// Source errors.
var (
	// ErrExhausted is returned when a non-replayable source is iterated a
	// second time.
	ErrExhausted = errors.New("source: non-replayable source already consumed")

	// ErrColumnOutOfRange is returned for a column index the source does
	// not have.
	ErrColumnOutOfRange = errors.New("source: column index out of range")
)

// Column describes one column of a tabular source.
type Column struct {
	Name  string
	Index int
	Kind  value.Kind
}

// RowIter iterates rows in scanner style: Next advances, accessors read
// the current row, Err reports the terminal error after Next returns false.
type RowIter interface {
	Next() bool
	RowIndex() int
	// Values returns cells aligned with the column set the iterator was
	// opened with. The slice is reused between calls to Next.
	Values() []value.Value
	Err() error
	Close() error
}

// ValueIter iterates a single column's cells in row order.
type ValueIter interface {
	Next() bool
	RowIndex() int
	Value() value.Value
	Err() error
	Close() error
}

// Tabular is an abstract tabular data source. For a non-replayable
// source the read cursor is a single shared resource and only one
// iterator may ever be opened; replayable sources allow independent
// iterators, including concurrently opened ones.
type Tabular interface {
	Columns() []Column
	// SupportsReplay reports whether iteration can be restarted. Plans
	// needing more than one pass, or chunk replay, require it.
	SupportsReplay() bool
	Orientation() Orientation
	// Rows opens a row iterator over the given column indexes.
	Rows(ctx context.Context, columns []int) (RowIter, error)
	// ColumnValues opens a column-wise iterator over one column.
	ColumnValues(ctx context.Context, column int) (ValueIter, error)
}

// SliceSource is an in-memory source, mainly for tests and small data.
// It serves both orientations and is replayable unless configured not to
// be (one-shot mode exists to exercise replay failure paths).
type SliceSource struct {
	columns     []Column
	rows        [][]value.Value
	orientation Orientation
	replayable  bool

	// mu guards consumed; replayable sources may be opened from
	// concurrent workers.
	mu       sync.Mutex
	consumed bool
}

// NewSliceSource builds a replayable row-wise in-memory source. Column
// kinds are left as Other; callers that care can set them on the returned
// source's Columns slice.
func NewSliceSource(names []string, rows [][]value.Value) *SliceSource {
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Index: i, Kind: value.KindOther}
	}

	return &SliceSource{
		columns:    cols,
		rows:       rows,
		replayable: true,
	}
}

// WithoutReplay marks the source one-shot: the second iterator open fails
// with ErrExhausted.
func (s *SliceSource) WithoutReplay() *SliceSource {
	s.replayable = false

	return s
}

// WithOrientation sets the native access pattern hint.
func (s *SliceSource) WithOrientation(o Orientation) *SliceSource {
	s.orientation = o

	return s
}

// Columns returns the column descriptors.
func (s *SliceSource) Columns() []Column { return s.columns }

// SupportsReplay reports whether iteration can restart.
func (s *SliceSource) SupportsReplay() bool { return s.replayable }

// Orientation returns the native access pattern.
func (s *SliceSource) Orientation() Orientation { return s.orientation }

func (s *SliceSource) claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.replayable && s.consumed {
		return ErrExhausted
	}

	s.consumed = true

	return nil
}

// Rows opens a row iterator over the given column indexes.
func (s *SliceSource) Rows(ctx context.Context, columns []int) (RowIter, error) {
	if err := s.claim(); err != nil {
		return nil, err
	}

	for _, c := range columns {
		if c < 0 || c >= len(s.columns) {
			return nil, ErrColumnOutOfRange
		}
	}

	return &sliceRowIter{ctx: ctx, src: s, columns: columns, row: -1}, nil
}

// ColumnValues opens a column-wise iterator over one column.
func (s *SliceSource) ColumnValues(ctx context.Context, column int) (ValueIter, error) {
	if err := s.claim(); err != nil {
		return nil, err
	}

	if column < 0 || column >= len(s.columns) {
		return nil, ErrColumnOutOfRange
	}

	return &sliceValueIter{ctx: ctx, src: s, column: column, row: -1}, nil
}

type sliceRowIter struct {
	ctx     context.Context
	src     *SliceSource
	columns []int
	buf     []value.Value
	row     int
	err     error
}

func (it *sliceRowIter) Next() bool {
	if it.err != nil {
		return false
	}

	if err := it.ctx.Err(); err != nil {
		it.err = err

		return false
	}

	it.row++
	if it.row >= len(it.src.rows) {
		return false
	}

	if it.buf == nil {
		it.buf = make([]value.Value, len(it.columns))
	}

	cells := it.src.rows[it.row]
	for i, c := range it.columns {
		if c < len(cells) {
			it.buf[i] = cells[c]
		} else {
			it.buf[i] = value.Missing()
		}
	}

	return true
}

func (it *sliceRowIter) RowIndex() int         { return it.row }
func (it *sliceRowIter) Values() []value.Value { return it.buf }
func (it *sliceRowIter) Err() error            { return it.err }
func (it *sliceRowIter) Close() error          { return nil }

type sliceValueIter struct {
	ctx    context.Context
	src    *SliceSource
	column int
	row    int
	val    value.Value
	err    error
}

func (it *sliceValueIter) Next() bool {
	if it.err != nil {
		return false
	}

	if err := it.ctx.Err(); err != nil {
		it.err = err

		return false
	}

	it.row++
	if it.row >= len(it.src.rows) {
		return false
	}

	cells := it.src.rows[it.row]
	if it.column < len(cells) {
		it.val = cells[it.column]
	} else {
		it.val = value.Missing()
	}

	return true
}

func (it *sliceValueIter) RowIndex() int      { return it.row }
func (it *sliceValueIter) Value() value.Value { return it.val }
func (it *sliceValueIter) Err() error         { return it.err }
func (it *sliceValueIter) Close() error       { return nil }
