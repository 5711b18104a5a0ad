// Package commands implements CLI command handlers for tabsum.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/tabsum/pkg/accum"
	"github.com/Sumatoshi-tech/tabsum/pkg/config"
	"github.com/Sumatoshi-tech/tabsum/pkg/engine"
	"github.com/Sumatoshi-tech/tabsum/pkg/observability"
	"github.com/Sumatoshi-tech/tabsum/pkg/plan"
	"github.com/Sumatoshi-tech/tabsum/pkg/registry"
	"github.com/Sumatoshi-tech/tabsum/pkg/report"
	"github.com/Sumatoshi-tech/tabsum/pkg/source"
)

var (
	// ErrUnknownColumn is returned when a selected column matches no
	// header name or index of the input.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrStratifierRequired is returned when a contingency table is
	// requested without a stratifier column.
	ErrStratifierRequired = errors.New("contingency requires --stratify")
)

const metricsReadHeaderTimeout = 5 * time.Second

// SummarizeCommand holds configuration and dependencies for the
// summarize command.
type SummarizeCommand struct {
	configPath string

	stats    []string
	columns  []string
	stratify string

	format       string
	noColor      bool
	memoryBudget string
	rowCountHint int64
	workers      int

	topK            int
	quantiles       []float64
	distinctCeiling int
	sampleSize      int
	seed            int64

	metricsListen string
	logLevel      string
	logJSON       bool

	out io.Writer
}

// NewSummarizeCommand creates the summarize command.
func NewSummarizeCommand() *cobra.Command {
	return newSummarizeCommandWithOutput(os.Stdout)
}

func newSummarizeCommandWithOutput(out io.Writer) *cobra.Command {
	sc := &SummarizeCommand{out: out}

	cmd := &cobra.Command{
		Use:   "summarize <file.csv>",
		Short: "Summarize the columns of a CSV file",
		Long:  "Compute the selected statistics for each selected column of a CSV file.",
		Args:  cobra.ExactArgs(1),
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.configPath, "config", "", "Config file path (default: ./tabsum.yaml)")
	cmd.Flags().StringSliceVarP(&sc.stats, "stats", "s", nil,
		"Statistics to compute (example: count,mean,min,max,top_k,quantiles)")
	cmd.Flags().StringSliceVarP(&sc.columns, "columns", "c", nil,
		"Columns to summarize, by header name or zero-based index (default: all)")
	cmd.Flags().StringVar(&sc.stratify, "stratify", "",
		"Stratifier column for contingency tables, by header name or index")
	cmd.Flags().StringVar(&sc.format, "format", "", "Output format: table, json, yaml")
	cmd.Flags().BoolVar(&sc.noColor, "no-color", false, "Disable colored warning output")
	cmd.Flags().StringVar(&sc.memoryBudget, "memory-budget", "",
		"Accumulator memory ceiling (e.g., '256MiB'; empty = unbounded, single pass per statistic)")
	cmd.Flags().Int64Var(&sc.rowCountHint, "row-count-hint", 0, "Expected row count for sizing estimates (0 = default)")
	cmd.Flags().IntVar(&sc.workers, "workers", 0, "Per-column workers for column-native sources (0 = config value)")

	cmd.Flags().IntVar(&sc.topK, "top-k", 0, "Number of most frequent values to track (0 = config value)")
	cmd.Flags().Float64SliceVar(&sc.quantiles, "quantiles", nil, "Quantile probabilities in (0,1)")
	cmd.Flags().IntVar(&sc.distinctCeiling, "distinct-ceiling", 0,
		"Exact distinct tracking ceiling before HyperLogLog fallback (0 = config value)")
	cmd.Flags().IntVar(&sc.sampleSize, "sample-size", 0, "Reservoir sample size (0 = config value)")
	cmd.Flags().Int64Var(&sc.seed, "seed", 0, "Random seed for reservoir sampling (0 = config value)")

	cmd.Flags().StringVar(&sc.metricsListen, "metrics-listen", "",
		"Serve Prometheus metrics on this address during the run (e.g., ':9090')")
	cmd.Flags().StringVar(&sc.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&sc.logJSON, "json-logs", false, "Emit logs as JSON")

	return cmd
}

func (sc *SummarizeCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(sc.configPath)
	if err != nil {
		return err
	}

	sc.applyOverrides(cmd, cfg)

	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level: parseLevel(cfg.Logging.Level),
		JSON:  cfg.Logging.JSON,
	})

	src, err := source.OpenCSV(args[0])
	if err != nil {
		return err
	}

	columns, err := resolveColumns(src.Columns(), sc.columns)
	if err != nil {
		return err
	}

	requests, err := sc.buildRequests(src.Columns(), columns, cfg)
	if err != nil {
		return err
	}

	ceiling, err := cfg.MemoryCeilingBytes()
	if err != nil {
		return err
	}

	metrics, err := sc.serveMetrics(cfg, logger)
	if err != nil {
		return err
	}

	p, err := plan.NewBuilder(registry.Builtin(), plan.Config{
		MemoryCeiling: ceiling,
		RowCountHint:  cfg.Run.RowCountHint,
	}).Build(src, requests)
	if err != nil {
		return err
	}

	logger.Info("plan built",
		slog.Int("passes", len(p.Passes)),
		slog.Int("instances", len(p.Instances)),
		slog.Bool("replay", p.NeedsReplay))

	eng := engine.New(src, p,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithWorkers(cfg.Run.Workers))

	rep, err := eng.Run(cmd.Context())
	if err != nil {
		return err
	}

	if cfg.Output.NoColor {
		color.NoColor = true
	}

	return report.Render(sc.out, rep, cfg.Output.Format)
}

// applyOverrides copies explicitly set flags over the loaded config.
func (sc *SummarizeCommand) applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("format") {
		cfg.Output.Format = sc.format
	}

	if flags.Changed("no-color") {
		cfg.Output.NoColor = sc.noColor
	}

	if flags.Changed("memory-budget") {
		cfg.Run.MemoryCeiling = sc.memoryBudget
	}

	if flags.Changed("row-count-hint") {
		cfg.Run.RowCountHint = sc.rowCountHint
	}

	if flags.Changed("workers") {
		cfg.Run.Workers = sc.workers
	}

	if flags.Changed("stats") {
		cfg.Stats.Default = sc.stats
	}

	if flags.Changed("top-k") {
		cfg.Stats.TopK = sc.topK
	}

	if flags.Changed("quantiles") {
		cfg.Stats.Quantiles = sc.quantiles
	}

	if flags.Changed("distinct-ceiling") {
		cfg.Stats.DistinctCeiling = sc.distinctCeiling
	}

	if flags.Changed("sample-size") {
		cfg.Stats.SampleSize = sc.sampleSize
	}

	if flags.Changed("seed") {
		cfg.Stats.Seed = sc.seed
	}

	if flags.Changed("metrics-listen") {
		cfg.Metrics.Listen = sc.metricsListen
	}

	if flags.Changed("log-level") {
		cfg.Logging.Level = sc.logLevel
	}

	if flags.Changed("json-logs") {
		cfg.Logging.JSON = sc.logJSON
	}
}

// buildRequests expands the selected statistics over the selected
// columns into plan requests.
func (sc *SummarizeCommand) buildRequests(all []source.Column, columns []int, cfg *config.Config) ([]plan.Request, error) {
	stratifier := -1

	if sc.stratify != "" {
		resolved, err := resolveColumns(all, []string{sc.stratify})
		if err != nil {
			return nil, err
		}

		stratifier = resolved[0]
	}

	var requests []plan.Request

	for _, column := range columns {
		for _, stat := range cfg.Stats.Default {
			params := accum.Params{
				Quantiles:       cfg.Stats.Quantiles,
				DistinctCeiling: cfg.Stats.DistinctCeiling,
				Seed:            cfg.Stats.Seed,
			}

			switch stat {
			case accum.StatTopK:
				params.K = cfg.Stats.TopK
			case accum.StatSample:
				params.K = cfg.Stats.SampleSize
			case accum.StatContingency:
				if stratifier < 0 {
					return nil, ErrStratifierRequired
				}

				if stratifier == column {
					continue
				}

				params.Stratifier = stratifier
			}

			requests = append(requests, plan.Request{Column: column, Stat: stat, Params: params})
		}
	}

	return requests, nil
}

// serveMetrics starts the scrape endpoint when configured and returns
// the run instruments, or nil when metrics are disabled.
func (sc *SummarizeCommand) serveMetrics(cfg *config.Config, logger *slog.Logger) (*observability.RunMetrics, error) {
	if cfg.Metrics.Listen == "" {
		return nil, nil
	}

	reg := prometheus.NewRegistry()

	metrics, err := observability.NewRunMetrics(reg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))

	srv := &http.Server{
		Addr:              cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", slog.String("error", err.Error()))
		}
	}()

	return metrics, nil
}

// resolveColumns maps header names or zero-based indexes to column
// indexes. An empty selection means every column.
func resolveColumns(all []source.Column, selected []string) ([]int, error) {
	if len(selected) == 0 {
		out := make([]int, len(all))
		for i := range all {
			out[i] = all[i].Index
		}

		return out, nil
	}

	byName := make(map[string]int, len(all))
	for _, col := range all {
		byName[strings.ToLower(col.Name)] = col.Index
	}

	out := make([]int, 0, len(selected))

	for _, sel := range selected {
		if idx, ok := byName[strings.ToLower(sel)]; ok {
			out = append(out, idx)

			continue
		}

		idx, err := strconv.Atoi(sel)
		if err != nil || idx < 0 || idx >= len(all) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, sel)
		}

		out = append(out, idx)
	}

	return out, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
