package registry

import (
	"fmt"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
)

// Builtin returns a registry preloaded with every built-in accumulator
// family. Construction cannot fail; the built-in specs are disjoint.
func Builtin() *Registry {
	r := New()

	specs := []Spec{
		{
			Name:     accum.NameCounts,
			Produces: []string{accum.StatCount, accum.StatCountMissing, accum.StatCountNonMissing},
			Passes:   1,
			Memory:   MemConstant,
			New: func(column int, _ accum.Params, _ map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
				return accum.NewCounts(column), nil
			},
		},
		{
			Name: accum.NameMoments,
			Produces: []string{
				accum.StatSum, accum.StatMean, accum.StatVariance,
				accum.StatStdDev, accum.StatSkewness, accum.StatKurtosis,
			},
			Passes: 1,
			Memory: MemConstant,
			New: func(column int, _ accum.Params, _ map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
				return accum.NewMoments(column), nil
			},
		},
		{
			Name:     accum.NameMinMax,
			Produces: []string{accum.StatMin, accum.StatMax, accum.StatMinRow, accum.StatMaxRow},
			Passes:   1,
			Memory:   MemConstant,
			New: func(column int, _ accum.Params, _ map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
				return accum.NewMinMax(column), nil
			},
		},
		{
			Name:      accum.NameRange,
			Produces:  []string{accum.StatRange},
			DependsOn: []string{accum.StatMin, accum.StatMax},
			Passes:    1,
			Memory:    MemConstant,
			New: func(column int, _ accum.Params, deps map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
				upstream, ok := deps[accum.NameMinMax].(*accum.MinMax)
				if !ok {
					return nil, fmt.Errorf("range: %w", accum.ErrMissingDependency)
				}

				return accum.NewRange(column, upstream)
			},
		},
		{
			Name:     accum.NameDistinct,
			Produces: []string{accum.StatCountDistinct, accum.StatDistinctApprox},
			Passes:   1,
			Memory:   MemLinearK,
			New: func(column int, params accum.Params, _ map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
				return accum.NewDistinct(column, params), nil
			},
		},
		{
			Name:     accum.NameTopK,
			Produces: []string{accum.StatTopK},
			Passes:   1,
			Memory:   MemLinearK,
			New: func(column int, params accum.Params, _ map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
				return accum.NewTopK(column, params), nil
			},
		},
		{
			Name:     accum.NameTypeTally,
			Produces: []string{accum.StatTypeTally},
			Passes:   1,
			Memory:   MemConstant,
			New: func(column int, _ accum.Params, _ map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
				return accum.NewTypeTally(column), nil
			},
		},
		{
			Name:     accum.NameContingency,
			Produces: []string{accum.StatContingency},
			Passes:   2,
			Memory:   MemLinearN,
			New: func(column int, params accum.Params, _ map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
				if params.Stratifier < 0 || params.Stratifier == column {
					return nil, fmt.Errorf( //nolint:err113 // parameter validation with context.
						"contingency on column %d: stratifier must name a different column", column)
				}

				return accum.NewContingency(column, params), nil
			},
		},
		{
			Name:     accum.NameQuantiles,
			Produces: []string{accum.StatQuantiles, accum.StatMedian},
			Passes:   1,
			Memory:   MemLinearN,
			New: func(column int, params accum.Params, _ map[string]accum.Accumulator, hint int64) (accum.Accumulator, error) {
				return accum.NewQuantiles(column, params, hint)
			},
		},
		{
			Name:     accum.NameSample,
			Produces: []string{accum.StatSample},
			Passes:   1,
			Memory:   MemLinearK,
			New: func(column int, params accum.Params, _ map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
				return accum.NewSample(column, params), nil
			},
		},
	}

	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			// Built-in specs are static and disjoint; a failure here is a
			// programming error caught by the registry tests.
			panic(err)
		}
	}

	return r
}
