// Package engine drives a built plan over a tabular source: it runs the
// scheduled passes in order, feeds each chunk without transposing the
// stream, and finalizes columns into a report as soon as their last pass
// ends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/observability"
	"github.com/Sumatoshi-tech/tabsum/pkg/plan"
	"github.com/Sumatoshi-tech/tabsum/pkg/report"
	"github.com/Sumatoshi-tech/tabsum/pkg/source"
)

var (
	// ErrSchedulingDefect is returned when a pass ends with an
	// accumulator that should be complete but is not. This indicates a
	// planner bug, not bad data, and the run cannot continue.
	ErrSchedulingDefect = errors.New("engine: accumulator incomplete after its final scheduled pass")

	// ErrAlreadyRun is returned by Run on an engine that already ran.
	ErrAlreadyRun = errors.New("engine: run already started")
)

// State identifies where the run state machine currently is.
type State int

// Run states, in order of progression.
const (
	StateIdle State = iota
	StateScheduled
	StateInPass
	StatePassComplete
	StateFinalizing
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateInPass:
		return "in_pass"
	case StatePassComplete:
		return "pass_complete"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

const defaultWorkers = 1

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics attaches run metrics. A nil metrics value is a no-op.
func WithMetrics(m *observability.RunMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithWorkers bounds the per-column worker pool used when feeding
// column-native replayable sources. Values below 1 are treated as 1.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}

		e.workers = n
	}
}

// Engine executes one plan over one source. An Engine is single-use.
type Engine struct {
	src     source.Tabular
	plan    *plan.Plan
	log     *slog.Logger
	metrics *observability.RunMetrics
	workers int

	mu    sync.Mutex
	state State
}

// New creates an engine for the given source and plan.
func New(src source.Tabular, p *plan.Plan, opts ...Option) *Engine {
	e := &Engine{
		src:     src,
		plan:    p,
		log:     observability.NopLogger(),
		workers: defaultWorkers,
		state:   StateIdle,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// State returns the current run state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run executes every scheduled pass and returns the assembled report.
// Cancellation is honored between passes: the run stops cleanly and the
// context error is returned, with all partial state discarded.
func (e *Engine) Run(ctx context.Context) (*report.Report, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()

		return nil, ErrAlreadyRun
	}
	e.state = StateScheduled
	e.mu.Unlock()

	collector := report.NewCollector(e.src.Columns())
	finalized := make(map[int]bool)

	for _, pass := range e.plan.Passes {
		if err := ctx.Err(); err != nil {
			e.setState(StateDone)

			return nil, err
		}

		e.log.Info("pass starting",
			slog.Int("pass", pass.Number),
			slog.Int("chunks", len(pass.Chunks)))

		for chunkIdx, chunk := range pass.Chunks {
			e.setState(StateInPass)

			if err := e.feedChunk(ctx, pass.Number, chunk); err != nil {
				e.setState(StateDone)

				return nil, fmt.Errorf("pass %d chunk %d: %w", pass.Number, chunkIdx, err)
			}

			e.metrics.RecordChunk()

			// A chunk is the unit of completion for its instances, so
			// columns become readable as soon as their last chunk ends,
			// not when the whole pass does.
			if err := e.emitFinishedColumns(collector, finalized); err != nil {
				e.setState(StateDone)

				return nil, err
			}
		}

		if err := e.checkPassComplete(pass.Number); err != nil {
			e.setState(StateDone)

			return nil, err
		}

		e.setState(StatePassComplete)
		e.metrics.RecordPass()
		e.log.Info("pass complete", slog.Int("pass", pass.Number))
	}

	e.setState(StateFinalizing)

	for _, in := range e.plan.Instances {
		if !in.Acc.IsComplete() {
			e.setState(StateDone)

			return nil, fmt.Errorf("%w: %s on column %d", ErrSchedulingDefect, in.Acc.Name(), in.Column)
		}
	}

	rep := collector.Report()
	e.setState(StateDone)

	return rep, nil
}

// checkPassComplete verifies that every instance whose final scheduled
// pass just ended reports completion.
func (e *Engine) checkPassComplete(pass int) error {
	for _, in := range e.plan.Instances {
		if in.End == pass && !in.Acc.IsComplete() {
			return fmt.Errorf("%w: %s on column %d after pass %d",
				ErrSchedulingDefect, in.Acc.Name(), in.Column, pass)
		}
	}

	return nil
}

// emitFinishedColumns finalizes every column whose instances are all
// complete and has not been emitted yet. This is what makes incremental
// consumption possible: early columns become readable while later passes
// are still running.
func (e *Engine) emitFinishedColumns(collector *report.Collector, finalized map[int]bool) error {
	for _, col := range e.src.Columns() {
		if finalized[col.Index] {
			continue
		}

		instances := e.plan.ColumnInstances(col.Index)
		if len(instances) == 0 {
			continue
		}

		done := true

		for _, in := range instances {
			if !in.Acc.IsComplete() {
				done = false

				break
			}
		}

		if !done {
			continue
		}

		for _, in := range instances {
			if err := collector.Collect(col.Index, in.Acc); err != nil {
				return err
			}
		}

		collector.MarkDone(col.Index)
		finalized[col.Index] = true

		e.log.Debug("column finished", slog.Int("column", col.Index), slog.String("name", col.Name))
	}

	return nil
}

// feedChunk opens passes on the chunk's instances, streams the chunk's
// columns through them, and closes the passes.
func (e *Engine) feedChunk(ctx context.Context, pass int, chunk plan.Chunk) error {
	for _, in := range chunk.Instances {
		if err := in.Acc.StartPass(in.Ordinal(pass)); err != nil {
			return fmt.Errorf("start pass for %s on column %d: %w", in.Acc.Name(), in.Column, err)
		}
	}

	var err error
	if e.useRowFeed(chunk) {
		err = e.feedRowWise(ctx, chunk)
	} else {
		err = e.feedColumnWise(ctx, chunk)
	}

	if err != nil {
		return err
	}

	for _, in := range chunk.Instances {
		in.Acc.EndPass()
	}

	return nil
}

// useRowFeed decides the feeding strategy for a chunk. Row-native
// sources are always fed row-wise. A chunk carrying a stratified
// instance is fed row-wise regardless of orientation, because the
// instance must see both of its columns for the same row before the next
// row arrives.
func (e *Engine) useRowFeed(chunk plan.Chunk) bool {
	if e.src.Orientation() == source.RowWise {
		return true
	}

	for _, in := range chunk.Instances {
		if _, ok := in.Acc.(accum.Stratified); ok {
			return true
		}
	}

	return false
}

func (e *Engine) feedRowWise(ctx context.Context, chunk plan.Chunk) error {
	it, err := e.src.Rows(ctx, chunk.FeedColumns)
	if err != nil {
		return err
	}
	defer it.Close()

	// Route each feed-column position to the instances it serves.
	primary := make([][]*plan.Instance, len(chunk.FeedColumns))
	stratified := make([][]accum.Stratified, len(chunk.FeedColumns))

	for pos, column := range chunk.FeedColumns {
		for _, in := range chunk.Instances {
			if in.Column == column {
				primary[pos] = append(primary[pos], in)
			}

			if s, ok := in.Acc.(accum.Stratified); ok && s.StratifierColumn() == column {
				stratified[pos] = append(stratified[pos], s)
			}
		}
	}

	for it.Next() {
		row := it.RowIndex()
		cells := it.Values()
		malformed := 0

		for pos, cell := range cells {
			if cell.IsMalformed() {
				malformed++
			}

			for _, in := range primary[pos] {
				if err := in.Acc.Accept(row, cell); err != nil {
					return fmt.Errorf("feed %s on column %d: %w", in.Acc.Name(), in.Column, err)
				}
			}

			for _, s := range stratified[pos] {
				if err := s.AcceptStratifier(row, cell); err != nil {
					return fmt.Errorf("feed stratifier column %d: %w", chunk.FeedColumns[pos], err)
				}
			}
		}

		e.metrics.RecordRow()
		e.metrics.RecordCells(len(cells), malformed)
	}

	return it.Err()
}

// feedColumnWise streams each chunk column through its instances via an
// independent column iterator. Replayable sources allow these iterators
// to run concurrently, so the columns are spread over a bounded worker
// pool; a WaitGroup forms the pass barrier.
func (e *Engine) feedColumnWise(ctx context.Context, chunk plan.Chunk) error {
	workers := e.workers
	if !e.src.SupportsReplay() || workers > len(chunk.Columns) {
		workers = 1
	}

	if workers <= 1 {
		for _, column := range chunk.Columns {
			if err := e.feedOneColumn(ctx, chunk, column); err != nil {
				return err
			}
		}

		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	jobs := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for column := range jobs {
				if err := e.feedOneColumn(ctx, chunk, column); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}

	for _, column := range chunk.Columns {
		jobs <- column
	}

	close(jobs)
	wg.Wait()

	return firstErr
}

func (e *Engine) feedOneColumn(ctx context.Context, chunk plan.Chunk, column int) error {
	it, err := e.src.ColumnValues(ctx, column)
	if err != nil {
		return err
	}
	defer it.Close()

	var instances []*plan.Instance

	for _, in := range chunk.Instances {
		if in.Column == column {
			instances = append(instances, in)
		}
	}

	cells, malformed := 0, 0

	for it.Next() {
		row := it.RowIndex()
		cell := it.Value()
		cells++

		if cell.IsMalformed() {
			malformed++
		}

		for _, in := range instances {
			if err := in.Acc.Accept(row, cell); err != nil {
				return fmt.Errorf("feed %s on column %d: %w", in.Acc.Name(), column, err)
			}
		}
	}

	e.metrics.RecordCells(cells, malformed)

	return it.Err()
}
