package accum_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/value"
)

// feedPairs drives the stratified pass protocol over (x, y) pairs.
func feedPairs(t *testing.T, c *accum.Contingency, pass int, pairs [][2]value.Value) {
	t.Helper()

	require.NoError(t, c.StartPass(pass))

	for i, pair := range pairs {
		require.NoError(t, c.Accept(i, pair[0]))
		require.NoError(t, c.AcceptStratifier(i, pair[1]))
	}

	c.EndPass()
}

func intPairs(pairs ...[2]int64) [][2]value.Value {
	out := make([][2]value.Value, len(pairs))
	for i, p := range pairs {
		out[i] = [2]value.Value{value.Int(p[0]), value.Int(p[1])}
	}

	return out
}

func TestContingency_TwoPassBinaryTable(t *testing.T) {
	t.Parallel()

	rows := intPairs([2]int64{0, 0}, [2]int64{0, 1}, [2]int64{1, 1}, [2]int64{1, 1})

	c := accum.NewContingency(0, accum.Params{Stratifier: 1})
	require.Equal(t, 2, c.RequiredPasses())

	feedPairs(t, c, 1, rows)
	require.False(t, c.IsComplete())

	feedPairs(t, c, 2, rows)
	require.True(t, c.IsComplete())

	res, err := c.Finalize()
	require.NoError(t, err)

	table, ok := res[accum.StatContingency].(accum.ContingencyTable)
	require.True(t, ok)

	assert.Equal(t, []string{"0", "1"}, table.Domain)
	assert.Equal(t, []string{"0", "1"}, table.StratifierDomain)
	assert.EqualValues(t, 1, table.Cells["0"]["0"])
	assert.EqualValues(t, 1, table.Cells["0"]["1"])
	assert.EqualValues(t, 0, table.Cells["1"]["0"], "zero cell is present, not absent")
	assert.EqualValues(t, 2, table.Cells["1"]["1"])
}

func TestContingency_SinglePassWithSuppliedDomains(t *testing.T) {
	t.Parallel()

	c := accum.NewContingency(0, accum.Params{
		Stratifier:       1,
		Domain:           []string{"0", "1"},
		StratifierDomain: []string{"0", "1"},
	})
	require.Equal(t, 1, c.RequiredPasses())

	feedPairs(t, c, 1, intPairs([2]int64{0, 1}, [2]int64{1, 1}))
	require.True(t, c.IsComplete())

	res, err := c.Finalize()
	require.NoError(t, err)

	table := res[accum.StatContingency].(accum.ContingencyTable)
	assert.EqualValues(t, 1, table.Cells["0"]["1"])
	assert.EqualValues(t, 1, table.Cells["1"]["1"])
	assert.EqualValues(t, 0, table.Cells["0"]["0"])
}

func TestContingency_RowsWithAbsentCellExcluded(t *testing.T) {
	t.Parallel()

	rows := [][2]value.Value{
		{value.Int(0), value.Int(0)},
		{value.Missing(), value.Int(1)},
		{value.Int(1), value.Null()},
	}

	c := accum.NewContingency(0, accum.Params{Stratifier: 1})
	feedPairs(t, c, 1, rows)
	feedPairs(t, c, 2, rows)

	res, err := c.Finalize()
	require.NoError(t, err)

	table := res[accum.StatContingency].(accum.ContingencyTable)
	assert.Equal(t, []string{"0"}, table.Domain, "rows with an absent cell contribute nothing")
	assert.EqualValues(t, 1, table.Cells["0"]["0"])
}

func TestContingency_StratifierArrivesFirst(t *testing.T) {
	t.Parallel()

	// Column order may put the stratifier before the primary column.
	c := accum.NewContingency(1, accum.Params{
		Stratifier:       0,
		Domain:           []string{"a"},
		StratifierDomain: []string{"s"},
	})

	require.NoError(t, c.StartPass(1))
	require.NoError(t, c.AcceptStratifier(0, value.Str("s")))
	require.NoError(t, c.Accept(0, value.Str("a")))
	c.EndPass()

	res, err := c.Finalize()
	require.NoError(t, err)

	table := res[accum.StatContingency].(accum.ContingencyTable)
	assert.EqualValues(t, 1, table.Cells["a"]["s"])
}
