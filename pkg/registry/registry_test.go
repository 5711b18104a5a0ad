package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/registry"
)

func noopFactory(column int, _ accum.Params, _ map[string]accum.Accumulator, _ int64) (accum.Accumulator, error) {
	return accum.NewCounts(column), nil
}

func TestRegister_DuplicateStatistic(t *testing.T) {
	t.Parallel()

	r := registry.New()

	require.NoError(t, r.Register(registry.Spec{
		Name: "one", Produces: []string{"x"}, Passes: 1, New: noopFactory,
	}))

	err := r.Register(registry.Spec{
		Name: "two", Produces: []string{"x"}, Passes: 1, New: noopFactory,
	})
	require.ErrorIs(t, err, registry.ErrDuplicateName)
}

func TestRegister_DuplicateProducerName(t *testing.T) {
	t.Parallel()

	r := registry.New()

	require.NoError(t, r.Register(registry.Spec{
		Name: "one", Produces: []string{"x"}, Passes: 1, New: noopFactory,
	}))

	err := r.Register(registry.Spec{
		Name: "one", Produces: []string{"y"}, Passes: 1, New: noopFactory,
	})
	require.ErrorIs(t, err, registry.ErrDuplicateName)
}

func TestResolve_UnknownStatistic(t *testing.T) {
	t.Parallel()

	_, err := registry.Builtin().Resolve([]string{"no_such_stat"})
	require.ErrorIs(t, err, registry.ErrUnknownStatistic)
}

func TestResolve_SharedProducerReturnedOnce(t *testing.T) {
	t.Parallel()

	// mean, variance, and stddev all come from the moments family.
	specs, err := registry.Builtin().Resolve([]string{
		accum.StatMean, accum.StatVariance, accum.StatStdDev,
	})

	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, accum.NameMoments, specs[0].Name)
}

func TestResolve_DependencyClosureInOrder(t *testing.T) {
	t.Parallel()

	specs, err := registry.Builtin().Resolve([]string{accum.StatRange})

	require.NoError(t, err)
	require.Len(t, specs, 2, "range pulls in its minmax producer")
	assert.Equal(t, accum.NameMinMax, specs[0].Name, "dependency comes first")
	assert.Equal(t, accum.NameRange, specs[1].Name)
}

func TestResolve_DependencyAlsoRequested(t *testing.T) {
	t.Parallel()

	specs, err := registry.Builtin().Resolve([]string{accum.StatRange, accum.StatMin})

	require.NoError(t, err)
	require.Len(t, specs, 2, "explicitly requested dependency is not duplicated")
}

func TestResolve_CyclicDependency(t *testing.T) {
	t.Parallel()

	r := registry.New()

	require.NoError(t, r.Register(registry.Spec{
		Name: "a", Produces: []string{"stat_a"}, DependsOn: []string{"stat_b"},
		Passes: 1, New: noopFactory,
	}))
	require.NoError(t, r.Register(registry.Spec{
		Name: "b", Produces: []string{"stat_b"}, DependsOn: []string{"stat_a"},
		Passes: 1, New: noopFactory,
	}))

	_, err := r.Resolve([]string{"stat_a"})
	require.ErrorIs(t, err, registry.ErrCyclicDependency)
}

func TestBuiltin_CoversAdvertisedStatistics(t *testing.T) {
	t.Parallel()

	r := registry.Builtin()

	for _, stat := range []string{
		accum.StatCount, accum.StatSum, accum.StatMean, accum.StatMin,
		accum.StatTopK, accum.StatTypeTally, accum.StatContingency,
		accum.StatCountDistinct, accum.StatQuantiles, accum.StatMedian,
		accum.StatSample, accum.StatRange,
	} {
		spec, err := r.ProducerOf(stat)
		require.NoError(t, err, stat)
		assert.NotEmpty(t, spec.Name)
	}
}

func TestMemoryClass_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "constant", registry.MemConstant.String())
	assert.Equal(t, "O(k)", registry.MemLinearK.String())
	assert.Equal(t, "O(n)", registry.MemLinearN.String())
}
