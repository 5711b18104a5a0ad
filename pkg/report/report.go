// Package report gathers finished statistic values per column and exposes
// them as a structured result ready for external rendering. The mapping
// shape is stable: column -> statistic name -> value, with statistic names
// exactly as declared by the registry.
package report

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/source"
)

// ErrColumnNotDone is returned when a column's report is requested before
// every accumulator bound to it has finalized.
var ErrColumnNotDone = errors.New("report: column not finished")

// Warning is a warning-level signal attached to a column's results, such
// as an approximation fallback.
type Warning struct {
	Column  int
	Source  string
	Message string
}

// ColumnReport holds one column's finished statistics.
type ColumnReport struct {
	Column int
	Name   string
	Stats  map[string]any
}

// Report is the final result of a summarization run.
type Report struct {
	Columns  []ColumnReport
	Warnings []Warning
}

// Collector accumulates finalize() outputs incrementally. A column's
// entry becomes readable as soon as all of its accumulators finish, so a
// caller can consume early columns while later chunks are still running.
type Collector struct {
	names    map[int]string
	stats    map[int]map[string]any
	done     map[int]bool
	warnings []Warning
}

// NewCollector creates a Collector for the given columns.
func NewCollector(columns []source.Column) *Collector {
	names := make(map[int]string, len(columns))
	for _, col := range columns {
		names[col.Index] = col.Name
	}

	return &Collector{
		names: names,
		stats: make(map[int]map[string]any),
		done:  make(map[int]bool),
	}
}

// Collect finalizes the accumulator and merges its statistics and
// warnings into the column's entry.
func (c *Collector) Collect(column int, acc accum.Accumulator) error {
	res, err := acc.Finalize()
	if err != nil {
		return fmt.Errorf("collect %s for column %d: %w", acc.Name(), column, err)
	}

	if c.stats[column] == nil {
		c.stats[column] = make(map[string]any)
	}

	for stat, val := range res {
		c.stats[column][stat] = val
	}

	if w, ok := acc.(accum.Warner); ok {
		for _, msg := range w.Warnings() {
			c.warnings = append(c.warnings, Warning{
				Column:  column,
				Source:  acc.Name(),
				Message: msg,
			})
		}
	}

	return nil
}

// MarkDone records that every accumulator bound to the column has been
// collected.
func (c *Collector) MarkDone(column int) {
	c.done[column] = true
}

// Column returns the column's finished report. It fails with
// ErrColumnNotDone until MarkDone has been called for the column.
func (c *Collector) Column(column int) (ColumnReport, error) {
	if !c.done[column] {
		return ColumnReport{}, fmt.Errorf("%w: column %d", ErrColumnNotDone, column)
	}

	return ColumnReport{
		Column: column,
		Name:   c.names[column],
		Stats:  c.stats[column],
	}, nil
}

// Report assembles the final report over all finished columns, ordered by
// column index.
func (c *Collector) Report() *Report {
	columns := make([]int, 0, len(c.done))

	for column, done := range c.done {
		if done {
			columns = append(columns, column)
		}
	}

	sort.Ints(columns)

	out := &Report{Warnings: c.warnings}

	for _, column := range columns {
		out.Columns = append(out.Columns, ColumnReport{
			Column: column,
			Name:   c.names[column],
			Stats:  c.stats[column],
		})
	}

	return out
}
