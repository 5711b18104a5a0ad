// Package config provides YAML and environment based configuration for
// the tabsum CLI.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidFormat        = errors.New("invalid output format")
	ErrInvalidTopK          = errors.New("top-k size must be positive")
	ErrInvalidQuantile      = errors.New("quantile probabilities must lie in (0, 1)")
	ErrInvalidSampleSize    = errors.New("sample size must be positive")
	ErrInvalidDistinct      = errors.New("distinct ceiling must be positive")
	ErrInvalidMemoryCeiling = errors.New("memory ceiling is not a parseable byte size")
	ErrInvalidLogLevel      = errors.New("invalid log level")
)

// Default configuration values.
const (
	defaultFormat          = "table"
	defaultTopK            = 10
	defaultDistinctCeiling = 10000
	defaultSampleSize      = 20
	defaultLogLevel        = "info"
)

// defaultStats is the statistic set applied to every selected column
// when the caller names none.
var defaultStats = []string{"count", "mean", "min", "max"}

// Config holds all configuration for a tabsum run.
type Config struct {
	Stats   StatsConfig   `mapstructure:"stats"`
	Run     RunConfig     `mapstructure:"run"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StatsConfig selects statistics and their parameters.
type StatsConfig struct {
	Default         []string  `mapstructure:"default"`
	TopK            int       `mapstructure:"top_k"`
	Quantiles       []float64 `mapstructure:"quantiles"`
	DistinctCeiling int       `mapstructure:"distinct_ceiling"`
	SampleSize      int       `mapstructure:"sample_size"`
	Seed            int64     `mapstructure:"seed"`
}

// RunConfig tunes plan building and engine execution.
type RunConfig struct {
	MemoryCeiling string `mapstructure:"memory_ceiling"`
	RowCountHint  int64  `mapstructure:"row_count_hint"`
	Workers       int    `mapstructure:"workers"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// MetricsConfig controls the optional Prometheus scrape endpoint.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// MemoryCeilingBytes parses the configured ceiling. An empty string
// means no ceiling.
func (c *Config) MemoryCeilingBytes() (int64, error) {
	if c.Run.MemoryCeiling == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(c.Run.MemoryCeiling)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMemoryCeiling, c.Run.MemoryCeiling)
	}

	return int64(n), nil
}

// Load reads configuration from the given file (or the default search
// path when empty) and from TABSUM_* environment variables.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("tabsum")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("/etc/tabsum")
	}

	viperCfg.SetEnvPrefix("TABSUM")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("read config file: %w", readErr)
		}
	}

	var cfg Config

	if err := viperCfg.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("stats.default", defaultStats)
	viperCfg.SetDefault("stats.top_k", defaultTopK)
	viperCfg.SetDefault("stats.distinct_ceiling", defaultDistinctCeiling)
	viperCfg.SetDefault("stats.sample_size", defaultSampleSize)
	viperCfg.SetDefault("stats.seed", 0)

	viperCfg.SetDefault("run.memory_ceiling", "")
	viperCfg.SetDefault("run.row_count_hint", 0)
	viperCfg.SetDefault("run.workers", 1)

	viperCfg.SetDefault("output.format", defaultFormat)
	viperCfg.SetDefault("output.no_color", false)

	viperCfg.SetDefault("logging.level", defaultLogLevel)
	viperCfg.SetDefault("logging.json", false)

	viperCfg.SetDefault("metrics.listen", "")
}

// Validate checks a configuration for constraint violations.
func Validate(cfg *Config) error {
	switch cfg.Output.Format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, cfg.Output.Format)
	}

	if cfg.Stats.TopK <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTopK, cfg.Stats.TopK)
	}

	if cfg.Stats.DistinctCeiling <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDistinct, cfg.Stats.DistinctCeiling)
	}

	if cfg.Stats.SampleSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleSize, cfg.Stats.SampleSize)
	}

	for _, p := range cfg.Stats.Quantiles {
		if p <= 0 || p >= 1 {
			return fmt.Errorf("%w: %g", ErrInvalidQuantile, p)
		}
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Logging.Level)
	}

	if _, err := cfg.MemoryCeilingBytes(); err != nil {
		return err
	}

	return nil
}
