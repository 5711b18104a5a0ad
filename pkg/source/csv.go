package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// commentChar marks comment lines discarded by the CSV reader.
const commentChar = '#'

// CSVSource streams a CSV file row-wise with per-cell type inference.
// A path-backed source replays by reopening the file; a reader-backed
// source is one-shot. Comment lines and blank lines are discarded without
// consuming row indexes.
type CSVSource struct {
	path    string
	reader  *csv.Reader
	columns []Column

	mu       sync.Mutex
	consumed bool
}

// OpenCSV opens a replayable CSV source from a file path. The first
// non-comment record is the header and supplies column names.
func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	header, err := readHeader(f)
	if err != nil {
		return nil, err
	}

	return &CSVSource{path: path, columns: header}, nil
}

// NewCSVReaderSource wraps a plain reader as a one-shot CSV source.
// The first non-comment record is the header. The csv.Reader that consumed
// the header is retained; it buffers ahead of the record boundary, so the
// row iterator must continue from it rather than rewrap the stream.
func NewCSVReaderSource(r io.Reader) (*CSVSource, error) {
	cr := newCSVReader(r)

	record, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	return &CSVSource{reader: cr, columns: headerColumns(record)}, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comment = commentChar
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	return cr
}

func readHeader(f io.Reader) ([]Column, error) {
	record, err := newCSVReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	return headerColumns(record), nil
}

func headerColumns(record []string) []Column {
	cols := make([]Column, len(record))
	for i, name := range record {
		cols[i] = Column{Name: name, Index: i, Kind: value.KindOther}
	}

	return cols
}

// Columns returns the header-derived column descriptors.
func (s *CSVSource) Columns() []Column { return s.columns }

// SupportsReplay reports true only for path-backed sources.
func (s *CSVSource) SupportsReplay() bool { return s.path != "" }

// Orientation is always row-wise for CSV.
func (s *CSVSource) Orientation() Orientation { return RowWise }

// open positions a fresh csv.Reader after the header.
func (s *CSVSource) open() (*csv.Reader, io.Closer, error) {
	if s.path != "" {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, nil, fmt.Errorf("open csv: %w", err)
		}

		cr := newCSVReader(f)
		if _, err := cr.Read(); err != nil {
			f.Close()

			return nil, nil, fmt.Errorf("skip csv header: %w", err)
		}

		return cr, f, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumed {
		return nil, nil, ErrExhausted
	}

	s.consumed = true

	// Header was already consumed at construction for reader-backed sources.
	return s.reader, nopCloser{}, nil
}

// nopCloser satisfies io.Closer for reader-backed sources, which do not
// own the underlying reader.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Rows opens a row iterator over the given column indexes.
func (s *CSVSource) Rows(ctx context.Context, columns []int) (RowIter, error) {
	for _, c := range columns {
		if c < 0 || c >= len(s.columns) {
			return nil, ErrColumnOutOfRange
		}
	}

	cr, closer, err := s.open()
	if err != nil {
		return nil, err
	}

	return &csvRowIter{
		ctx:     ctx,
		reader:  cr,
		closer:  closer,
		columns: columns,
		buf:     make([]value.Value, len(columns)),
		row:     -1,
	}, nil
}

// ColumnValues adapts row iteration to a single column. CSV is row-native,
// so this reads full records and projects one cell.
func (s *CSVSource) ColumnValues(ctx context.Context, column int) (ValueIter, error) {
	rows, err := s.Rows(ctx, []int{column})
	if err != nil {
		return nil, err
	}

	return &projectedValueIter{rows: rows}, nil
}

type csvRowIter struct {
	ctx     context.Context
	reader  *csv.Reader
	closer  io.Closer
	columns []int
	buf     []value.Value
	row     int
	err     error
}

func (it *csvRowIter) Next() bool {
	if it.err != nil {
		return false
	}

	if err := it.ctx.Err(); err != nil {
		it.err = err

		return false
	}

	record, err := it.reader.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			it.err = fmt.Errorf("read csv record: %w", err)
		}

		return false
	}

	it.row++

	for i, c := range it.columns {
		if c < len(record) {
			it.buf[i] = value.Infer(record[c])
		} else {
			it.buf[i] = value.Missing()
		}
	}

	return true
}

func (it *csvRowIter) RowIndex() int         { return it.row }
func (it *csvRowIter) Values() []value.Value { return it.buf }
func (it *csvRowIter) Err() error            { return it.err }
func (it *csvRowIter) Close() error          { return it.closer.Close() }

// projectedValueIter narrows a single-column row iterator to a ValueIter.
type projectedValueIter struct {
	rows RowIter
}

func (it *projectedValueIter) Next() bool        { return it.rows.Next() }
func (it *projectedValueIter) RowIndex() int     { return it.rows.RowIndex() }
func (it *projectedValueIter) Value() value.Value { return it.rows.Values()[0] }
func (it *projectedValueIter) Err() error        { return it.rows.Err() }
func (it *projectedValueIter) Close() error      { return it.rows.Close() }
