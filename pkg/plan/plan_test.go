package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/plan"
	"github.com/Sumatoshi-tech/tabsum/pkg/registry"
	"github.com/Sumatoshi-tech/tabsum/pkg/source"
	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

func newSource(t *testing.T, cols int) *source.SliceSource {
	t.Helper()

	names := make([]string, cols)
	for i := range names {
		names[i] = string(rune('a' + i))
	}

	return source.NewSliceSource(names, [][]value.Value{})
}

func build(t *testing.T, src source.Tabular, cfg plan.Config, reqs []plan.Request) *plan.Plan {
	t.Helper()

	p, err := plan.NewBuilder(registry.Builtin(), cfg).Build(src, reqs)
	require.NoError(t, err)

	return p
}

func TestBuild_SinglePassSingleChunk(t *testing.T) {
	t.Parallel()

	p := build(t, newSource(t, 2), plan.Config{}, []plan.Request{
		{Column: 0, Stat: accum.StatMean},
		{Column: 0, Stat: accum.StatCount},
		{Column: 1, Stat: accum.StatTopK, Params: accum.Params{K: 3}},
	})

	require.Len(t, p.Passes, 1)
	require.Len(t, p.Passes[0].Chunks, 1)
	assert.False(t, p.NeedsReplay)
	assert.Equal(t, []int{0, 1}, p.Passes[0].Chunks[0].Columns)
}

func TestBuild_SharedProducerSingleInstance(t *testing.T) {
	t.Parallel()

	p := build(t, newSource(t, 1), plan.Config{}, []plan.Request{
		{Column: 0, Stat: accum.StatMean},
		{Column: 0, Stat: accum.StatVariance},
		{Column: 0, Stat: accum.StatStdDev},
	})

	require.Len(t, p.Instances, 1, "one moments instance covers all three requests")
	assert.Equal(t, accum.NameMoments, p.Instances[0].Spec.Name)
}

func TestBuild_DerivedSharesPassWithDependency(t *testing.T) {
	t.Parallel()

	p := build(t, newSource(t, 1), plan.Config{}, []plan.Request{
		{Column: 0, Stat: accum.StatRange},
	})

	require.Len(t, p.Instances, 2)
	require.Len(t, p.Passes, 1, "range is derived, so minmax and range share pass 1")

	for _, in := range p.Instances {
		assert.Equal(t, 1, in.Start)
		assert.Equal(t, 1, in.End)
	}
}

func TestBuild_ContingencyTakesTwoPasses(t *testing.T) {
	t.Parallel()

	p := build(t, newSource(t, 2), plan.Config{}, []plan.Request{
		{Column: 0, Stat: accum.StatContingency, Params: accum.Params{Stratifier: 1}},
	})

	require.Len(t, p.Passes, 2)
	assert.True(t, p.NeedsReplay)

	chunk := p.Passes[0].Chunks[0]
	assert.Equal(t, []int{0}, chunk.Columns)
	assert.Equal(t, []int{0, 1}, chunk.FeedColumns, "stratifier column is fed even without its own accumulators")
}

func TestBuild_ContingencyWithDomainsSinglePass(t *testing.T) {
	t.Parallel()

	p := build(t, newSource(t, 2), plan.Config{}, []plan.Request{
		{Column: 0, Stat: accum.StatContingency, Params: accum.Params{
			Stratifier:       1,
			Domain:           []string{"0", "1"},
			StratifierDomain: []string{"0", "1"},
		}},
	})

	require.Len(t, p.Passes, 1)
	assert.False(t, p.NeedsReplay)
}

func TestBuild_MemoryCeilingSplitsChunks(t *testing.T) {
	t.Parallel()

	// Two top-k instances of ~960 bytes each; a 1000-byte ceiling forces
	// one column per chunk, first-fit in request order.
	p := build(t, newSource(t, 2), plan.Config{MemoryCeiling: 1000}, []plan.Request{
		{Column: 0, Stat: accum.StatTopK},
		{Column: 1, Stat: accum.StatTopK},
	})

	require.Len(t, p.Passes, 1)
	require.Len(t, p.Passes[0].Chunks, 2)
	assert.True(t, p.NeedsReplay, "chunk replay re-reads the source")
	assert.Equal(t, []int{0}, p.Passes[0].Chunks[0].Columns)
	assert.Equal(t, []int{1}, p.Passes[0].Chunks[1].Columns)
}

func TestBuild_CeilingFitsBothInOneChunk(t *testing.T) {
	t.Parallel()

	p := build(t, newSource(t, 2), plan.Config{MemoryCeiling: 1 << 20}, []plan.Request{
		{Column: 0, Stat: accum.StatTopK},
		{Column: 1, Stat: accum.StatTopK},
	})

	require.Len(t, p.Passes[0].Chunks, 1)
	assert.False(t, p.NeedsReplay)
}

func TestBuild_OversizedColumnGetsOwnChunk(t *testing.T) {
	t.Parallel()

	// A quantiles instance estimates rowCountHint*8 bytes, far over the
	// ceiling; it still schedules, alone in its chunk.
	p := build(t, newSource(t, 2), plan.Config{MemoryCeiling: 1000, RowCountHint: 10_000}, []plan.Request{
		{Column: 0, Stat: accum.StatQuantiles},
		{Column: 1, Stat: accum.StatCount},
	})

	require.Len(t, p.Passes[0].Chunks, 2)
	assert.Equal(t, []int{0}, p.Passes[0].Chunks[0].Columns)
}

func TestBuild_UnsupportedReplay(t *testing.T) {
	t.Parallel()

	src := source.NewSliceSource([]string{"a", "b"}, nil).WithoutReplay()

	_, err := plan.NewBuilder(registry.Builtin(), plan.Config{}).Build(src, []plan.Request{
		{Column: 0, Stat: accum.StatContingency, Params: accum.Params{Stratifier: 1}},
	})

	require.ErrorIs(t, err, plan.ErrUnsupportedReplay)
}

func TestBuild_SinglePassOnNonReplayableSourceIsFine(t *testing.T) {
	t.Parallel()

	src := source.NewSliceSource([]string{"a"}, nil).WithoutReplay()

	p, err := plan.NewBuilder(registry.Builtin(), plan.Config{}).Build(src, []plan.Request{
		{Column: 0, Stat: accum.StatCount},
	})

	require.NoError(t, err)
	assert.False(t, p.NeedsReplay)
}

func TestBuild_UnknownStatistic(t *testing.T) {
	t.Parallel()

	_, err := plan.NewBuilder(registry.Builtin(), plan.Config{}).Build(newSource(t, 1), []plan.Request{
		{Column: 0, Stat: "entropy"},
	})

	require.ErrorIs(t, err, registry.ErrUnknownStatistic)
}
