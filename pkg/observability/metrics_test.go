package observability_test

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/tabsum/pkg/observability"
)

func TestRunMetrics_Record(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	m, err := observability.NewRunMetrics(reg)
	require.NoError(t, err)

	m.RecordRow()
	m.RecordRow()
	m.RecordCells(6, 1)
	m.RecordPass()
	m.RecordChunk()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.InDelta(t, 2, gatherCounter(t, reg, "tabsum_rows_fed_total"), 0)
	assert.InDelta(t, 6, gatherCounter(t, reg, "tabsum_cells_fed_total"), 0)
	assert.InDelta(t, 1, gatherCounter(t, reg, "tabsum_malformed_cells_total"), 0)
}

func TestRunMetrics_NilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var m *observability.RunMetrics

	m.RecordRow()
	m.RecordCells(3, 0)
	m.RecordPass()
	m.RecordChunk()
}

func TestRunMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	_, err := observability.NewRunMetrics(reg)
	require.NoError(t, err)

	_, err = observability.NewRunMetrics(reg)
	require.Error(t, err)
}

func TestHandler_ServesScrape(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	m, err := observability.NewRunMetrics(reg)
	require.NoError(t, err)

	m.RecordPass()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	observability.Handler(reg).ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "tabsum_passes_total 1")
}

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() == name {
			require.NotEmpty(t, fam.GetMetric())

			return fam.GetMetric()[0].GetCounter().GetValue()
		}
	}

	t.Fatalf("metric %s not gathered", name)

	return 0
}
