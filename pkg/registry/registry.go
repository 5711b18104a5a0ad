// Package registry declares the available accumulator families, the
// statistic names each produces, their declared dependencies, and their
// cost (required passes, memory class). A Registry is an explicit
// constructed instance passed into the plan builder, never a process-wide
// singleton, so runs with different statistic sets can coexist.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/toposort"
)

// Registry errors.
var (
	// ErrUnknownStatistic is returned when a requested statistic name has
	// no registered producer.
	ErrUnknownStatistic = errors.New("registry: unknown statistic")

	// ErrDuplicateName is returned when a statistic name is already
	// claimed by a different accumulator spec.
	ErrDuplicateName = errors.New("registry: duplicate statistic name")

	// ErrCyclicDependency is returned when the dependency graph between
	// accumulator specs contains a cycle. This is a registry
	// misconfiguration, not a caller error.
	ErrCyclicDependency = errors.New("registry: cyclic dependency")
)

// MemoryClass is a declared upper bound on an accumulator's resident
// state, used for chunk packing under a memory ceiling.
type MemoryClass int

const (
	// MemConstant is O(1) state.
	MemConstant MemoryClass = iota
	// MemLinearK is O(k) state bounded by a request parameter.
	MemLinearK
	// MemLogN is O(log n) state.
	MemLogN
	// MemLinearN is O(n) state; such instances are never split across
	// chunks of the same column within a pass.
	MemLinearN
)

// String returns the memory class label used in plans and logs.
func (m MemoryClass) String() string {
	switch m {
	case MemConstant:
		return "constant"
	case MemLinearK:
		return "O(k)"
	case MemLogN:
		return "O(log n)"
	case MemLinearN:
		return "O(n)"
	}

	return "unknown"
}

// Factory instantiates an accumulator bound to a column. Dependency
// instances are supplied keyed by their producer name; rowCountHint sizes
// linear-memory estimates.
type Factory func(column int, params accum.Params, deps map[string]accum.Accumulator, rowCountHint int64) (accum.Accumulator, error)

// Spec is the static descriptor of one accumulator family.
type Spec struct {
	// Name is the producer name, unique within a registry.
	Name string
	// Produces lists the statistic names this family yields.
	Produces []string
	// DependsOn lists statistic names whose producers must be
	// instantiated alongside (and finalized no later than) this family.
	DependsOn []string
	// Passes is the family's default required pass count; instances may
	// need fewer depending on parameters.
	Passes int
	// Memory is the declared memory class.
	Memory MemoryClass
	// New instantiates the accumulator.
	New Factory
}

// Registry maps statistic names to the specs that produce them.
type Registry struct {
	specs    map[string]Spec
	producer map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		specs:    make(map[string]Spec),
		producer: make(map[string]string),
	}
}

// Register adds a spec. It fails with ErrDuplicateName when the spec name
// or any produced statistic name is already claimed by a different spec.
func (r *Registry) Register(spec Spec) error {
	if _, ok := r.specs[spec.Name]; ok {
		return fmt.Errorf("%w: producer %q", ErrDuplicateName, spec.Name)
	}

	for _, stat := range spec.Produces {
		if owner, ok := r.producer[stat]; ok && owner != spec.Name {
			return fmt.Errorf("%w: %q already produced by %q", ErrDuplicateName, stat, owner)
		}
	}

	r.specs[spec.Name] = spec

	for _, stat := range spec.Produces {
		r.producer[stat] = spec.Name
	}

	return nil
}

// ProducerOf returns the spec producing the statistic name.
func (r *Registry) ProducerOf(stat string) (Spec, error) {
	name, ok := r.producer[stat]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownStatistic, stat)
	}

	return r.specs[name], nil
}

// Resolve returns the minimal set of specs covering the requested
// statistic names plus their dependency closure, in topological order
// (dependencies first). Each spec appears exactly once even when several
// requested statistics share it.
func (r *Registry) Resolve(stats []string) ([]Spec, error) {
	needed := make(map[string]Spec)
	graph := toposort.NewGraph()

	var include func(stat string) error

	include = func(stat string) error {
		spec, err := r.ProducerOf(stat)
		if err != nil {
			return err
		}

		if _, ok := needed[spec.Name]; ok {
			return nil
		}

		needed[spec.Name] = spec
		graph.AddNode(spec.Name)

		if err := r.addDepEdges(graph, spec); err != nil {
			return err
		}

		for _, dep := range spec.DependsOn {
			if err := include(dep); err != nil {
				return err
			}
		}

		return nil
	}

	// Deterministic traversal over the request.
	ordered := make([]string, len(stats))
	copy(ordered, stats)
	sort.Strings(ordered)

	for _, stat := range ordered {
		if err := include(stat); err != nil {
			return nil, err
		}
	}

	order, ok := graph.Toposort()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrCyclicDependency, graph.FindCycle())
	}

	out := make([]Spec, 0, len(needed))

	for _, name := range order {
		if spec, ok := needed[name]; ok {
			out = append(out, spec)
		}
	}

	return out, nil
}

// addDepEdges adds a dep-producer -> spec edge for each declared
// dependency, so the topological order puts producers before consumers.
func (r *Registry) addDepEdges(graph *toposort.Graph, spec Spec) error {
	for _, dep := range spec.DependsOn {
		depSpec, err := r.ProducerOf(dep)
		if err != nil {
			return fmt.Errorf("dependency of %q: %w", spec.Name, err)
		}

		graph.AddEdge(depSpec.Name, spec.Name)
	}

	return nil
}
