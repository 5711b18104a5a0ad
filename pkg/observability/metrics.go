package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricRowsTotal      = "tabsum_rows_fed_total"
	metricCellsTotal     = "tabsum_cells_fed_total"
	metricMalformedTotal = "tabsum_malformed_cells_total"
	metricPassesTotal    = "tabsum_passes_total"
	metricChunksTotal    = "tabsum_chunks_total"
)

// RunMetrics holds Prometheus instruments for a summarization run.
// All record methods are safe to call on a nil receiver (no-op).
type RunMetrics struct {
	rowsTotal      prometheus.Counter
	cellsTotal     prometheus.Counter
	malformedTotal prometheus.Counter
	passesTotal    prometheus.Counter
	chunksTotal    prometheus.Counter
}

// NewRunMetrics creates run instruments and registers them with reg.
func NewRunMetrics(reg prometheus.Registerer) (*RunMetrics, error) {
	m := &RunMetrics{
		rowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricRowsTotal,
			Help: "Total rows fed to accumulators.",
		}),
		cellsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricCellsTotal,
			Help: "Total cells fed to accumulators.",
		}),
		malformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricMalformedTotal,
			Help: "Total malformed cells seen.",
		}),
		passesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPassesTotal,
			Help: "Total data passes completed.",
		}),
		chunksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricChunksTotal,
			Help: "Total chunks processed.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.rowsTotal, m.cellsTotal, m.malformedTotal, m.passesTotal, m.chunksTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordRow counts one row fed to accumulators.
func (m *RunMetrics) RecordRow() {
	if m == nil {
		return
	}

	m.rowsTotal.Inc()
}

// RecordCells counts cells fed, of which malformed were unparseable.
func (m *RunMetrics) RecordCells(total, malformed int) {
	if m == nil {
		return
	}

	m.cellsTotal.Add(float64(total))
	m.malformedTotal.Add(float64(malformed))
}

// RecordPass counts one completed data pass.
func (m *RunMetrics) RecordPass() {
	if m == nil {
		return
	}

	m.passesTotal.Inc()
}

// RecordChunk counts one processed chunk.
func (m *RunMetrics) RecordChunk() {
	if m == nil {
		return
	}

	m.chunksTotal.Inc()
}

// Handler serves the /metrics scrape endpoint for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
