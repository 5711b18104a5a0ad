// Package plan builds the execution plan for a summarization run: it
// resolves requested statistics through the registry, instantiates
// accumulators per column, partitions the work into the minimum number of
// sequential data passes, and — under a memory ceiling — splits each pass
// into column chunks packed first-fit in request order.
package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/registry"
	"github.com/Sumatoshi-tech/tabsum/pkg/source"
)

// ErrUnsupportedReplay is returned when a plan needs multiple passes or
// chunk replay but the data source cannot rewind. Callers can reduce
// memory pressure or restrict requests to single-pass statistics.
var ErrUnsupportedReplay = errors.New(
	"plan: source does not support replay; raise the memory ceiling or request single-pass statistics only")

// DefaultRowCountHint sizes O(n) memory estimates when the source cannot
// say how many rows it has.
const DefaultRowCountHint = 1_000_000

// Request asks for one statistic on one column. Requests are immutable
// once a plan is built from them.
type Request struct {
	Column int
	Stat   string
	Params accum.Params
}

// Config carries plan-level knobs.
type Config struct {
	// MemoryCeiling bounds the summed accumulator state per chunk, in
	// bytes. Zero means unconstrained (one chunk per pass).
	MemoryCeiling int64
	// RowCountHint sizes linear-memory estimates. Zero applies
	// DefaultRowCountHint.
	RowCountHint int64
}

// Instance is one accumulator bound to a column, scheduled over a
// contiguous range of plan passes.
type Instance struct {
	Acc    accum.Accumulator
	Spec   registry.Spec
	Column int
	// Start and End are the first and last plan pass (1-based) in which
	// the instance consumes data.
	Start int
	End   int
}

// ActiveIn reports whether the instance consumes data in the plan pass.
func (in *Instance) ActiveIn(pass int) bool {
	return pass >= in.Start && pass <= in.End
}

// Ordinal translates a plan pass into the instance-relative pass number
// expected by StartPass.
func (in *Instance) Ordinal(pass int) int { return pass - in.Start + 1 }

// Chunk is the subset of columns processed together within a pass to
// respect the memory ceiling.
type Chunk struct {
	// Columns are the columns whose accumulators run in this chunk.
	Columns []int
	// FeedColumns additionally includes stratifier columns whose cells
	// must be read for the chunk even though no accumulator is bound to
	// them directly.
	FeedColumns []int
	Instances   []*Instance
}

// Pass is one full traversal of the data needed by its chunks.
type Pass struct {
	Number int
	Chunks []Chunk
}

// Plan is the immutable execution plan for one summarization run.
type Plan struct {
	Passes    []Pass
	Instances []*Instance
	// NeedsReplay is true when the plan re-reads the source: more than
	// one pass, or more than one chunk in any pass.
	NeedsReplay bool
}

// ColumnInstances returns the instances bound to the column.
func (p *Plan) ColumnInstances(column int) []*Instance {
	var out []*Instance

	for _, in := range p.Instances {
		if in.Column == column {
			out = append(out, in)
		}
	}

	return out
}

// Builder resolves requests into a Plan.
type Builder struct {
	reg *registry.Registry
	cfg Config
}

// NewBuilder creates a Builder over the given registry.
func NewBuilder(reg *registry.Registry, cfg Config) *Builder {
	if cfg.RowCountHint <= 0 {
		cfg.RowCountHint = DefaultRowCountHint
	}

	return &Builder{reg: reg, cfg: cfg}
}

// Build resolves the requests and schedules passes and chunks for the
// source. It fails with ErrUnsupportedReplay when the schedule requires
// rewinding a source that cannot.
func (b *Builder) Build(src source.Tabular, requests []Request) (*Plan, error) {
	instances, columnOrder, err := b.instantiate(requests)
	if err != nil {
		return nil, err
	}

	totalPasses := schedulePasses(instances)
	passes := b.packChunks(instances, columnOrder, totalPasses)

	p := &Plan{
		Passes:    passes,
		Instances: instances,
	}

	p.NeedsReplay = totalPasses > 1

	for _, pass := range passes {
		if len(pass.Chunks) > 1 {
			p.NeedsReplay = true
		}
	}

	if p.NeedsReplay && !src.SupportsReplay() {
		return nil, ErrUnsupportedReplay
	}

	return p, nil
}

// instantiate resolves and constructs accumulators per column, wiring
// dependency instances. Returns the instances and the column order of
// first appearance in the requests (the chunk packing order).
func (b *Builder) instantiate(requests []Request) ([]*Instance, []int, error) {
	type columnWork struct {
		stats  []string
		params map[string]accum.Params // first request's params per producer
	}

	work := make(map[int]*columnWork)

	var columnOrder []int

	for _, req := range requests {
		cw, ok := work[req.Column]
		if !ok {
			cw = &columnWork{params: make(map[string]accum.Params)}
			work[req.Column] = cw
			columnOrder = append(columnOrder, req.Column)
		}

		cw.stats = append(cw.stats, req.Stat)

		spec, err := b.reg.ProducerOf(req.Stat)
		if err != nil {
			return nil, nil, err
		}

		if _, ok := cw.params[spec.Name]; !ok {
			cw.params[spec.Name] = req.Params
		}
	}

	var instances []*Instance

	for _, column := range columnOrder {
		cw := work[column]

		specs, err := b.reg.Resolve(cw.stats)
		if err != nil {
			return nil, nil, err
		}

		// Specs arrive dependencies-first, so upstream instances exist
		// by the time a dependent's factory runs.
		built := make(map[string]accum.Accumulator, len(specs))

		for _, spec := range specs {
			acc, err := spec.New(column, cw.params[spec.Name], built, b.cfg.RowCountHint)
			if err != nil {
				return nil, nil, fmt.Errorf("instantiate %q for column %d: %w", spec.Name, column, err)
			}

			built[spec.Name] = acc
			instances = append(instances, &Instance{Acc: acc, Spec: spec, Column: column})
		}
	}

	return instances, columnOrder, nil
}

// schedulePasses assigns each instance its contiguous pass range and
// returns the total pass count. Instances are visited in construction
// order, which is already dependencies-first per column: a derived
// instance shares its dependencies' passes, any other dependent starts
// after its dependencies finish.
func schedulePasses(instances []*Instance) int {
	byName := make(map[string]map[string]*Instance) // column-scoped producer lookup

	keyOf := func(column int) string { return fmt.Sprintf("c%d", column) }

	totalPasses := 0

	for _, in := range instances {
		colKey := keyOf(in.Column)
		if byName[colKey] == nil {
			byName[colKey] = make(map[string]*Instance)
		}

		start := 1

		_, derived := in.Acc.(accum.Derived)

		for _, dep := range in.Spec.DependsOn {
			depIn := producerInstance(byName[colKey], dep)
			if depIn == nil {
				continue
			}

			if derived {
				if depIn.Start > start {
					start = depIn.Start
				}
			} else if depIn.End+1 > start {
				start = depIn.End + 1
			}
		}

		in.Start = start
		in.End = start + in.Acc.RequiredPasses() - 1

		if in.End > totalPasses {
			totalPasses = in.End
		}

		byName[colKey][in.Spec.Name] = in

		for _, stat := range in.Spec.Produces {
			byName[colKey][stat] = in
		}
	}

	return totalPasses
}

func producerInstance(lookup map[string]*Instance, stat string) *Instance {
	return lookup[stat]
}

// packChunks splits each pass's active columns into chunks under the
// memory ceiling. Columns are packed in request order, first-fit; a
// column's instances are never split across chunks, so a single column
// over the ceiling still forms its own (oversized) chunk.
func (b *Builder) packChunks(instances []*Instance, columnOrder []int, totalPasses int) []Pass {
	passes := make([]Pass, 0, totalPasses)

	for passNum := 1; passNum <= totalPasses; passNum++ {
		var chunks []Chunk

		costs := make([]int64, 0, len(chunks))

		for _, column := range columnOrder {
			active := activeInstances(instances, column, passNum)
			if len(active) == 0 {
				continue
			}

			var cost int64
			for _, in := range active {
				cost += in.Acc.SizeHint()
			}

			placed := false

			if b.cfg.MemoryCeiling > 0 {
				for i := range chunks {
					if costs[i]+cost <= b.cfg.MemoryCeiling {
						appendColumn(&chunks[i], column, active)
						costs[i] += cost
						placed = true

						break
					}
				}
			} else if len(chunks) > 0 {
				appendColumn(&chunks[0], column, active)
				costs[0] += cost
				placed = true
			}

			if !placed {
				chunks = append(chunks, Chunk{})
				appendColumn(&chunks[len(chunks)-1], column, active)
				costs = append(costs, cost)
			}
		}

		passes = append(passes, Pass{Number: passNum, Chunks: chunks})
	}

	return passes
}

func activeInstances(instances []*Instance, column, pass int) []*Instance {
	var out []*Instance

	for _, in := range instances {
		if in.Column == column && in.ActiveIn(pass) {
			out = append(out, in)
		}
	}

	return out
}

// appendColumn adds a column and its instances to the chunk, folding in
// stratifier columns the feeder must also read.
func appendColumn(chunk *Chunk, column int, active []*Instance) {
	chunk.Columns = append(chunk.Columns, column)
	chunk.Instances = append(chunk.Instances, active...)

	feed := map[int]struct{}{}
	for _, c := range chunk.FeedColumns {
		feed[c] = struct{}{}
	}

	feed[column] = struct{}{}

	for _, in := range active {
		if s, ok := in.Acc.(accum.Stratified); ok {
			feed[s.StratifierColumn()] = struct{}{}
		}
	}

	chunk.FeedColumns = chunk.FeedColumns[:0]
	for c := range feed {
		chunk.FeedColumns = append(chunk.FeedColumns, c)
	}

	sort.Ints(chunk.FeedColumns)
}
