// Package config handles asmsim.toml run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/sarchlab/asmsim/loader"
	"github.com/sarchlab/asmsim/timing/cache"
	"github.com/sarchlab/asmsim/timing/core"
	"github.com/sarchlab/asmsim/timing/latency"
)

// Config represents an asmsim.toml configuration.
type Config struct {
	Run    Run    `toml:"run"`
	Log    Log    `toml:"log"`
	Timing Timing `toml:"timing"`

	// Dir is the directory containing the configuration file (set at load
	// time). Relative paths inside the file are resolved against it.
	Dir string `toml:"-"`
}

// Run configures program layout and execution limits.
type Run struct {
	SymbolBase      uint64 `toml:"symbol_base"`
	StackTop        uint64 `toml:"stack_top"`
	StackSize       uint64 `toml:"stack_size"`
	MaxInstructions uint64 `toml:"max_instructions"`
}

// Log configures diagnostics.
type Log struct {
	// Level is one of none, error, warning, info or debug.
	Level string `toml:"level"`
}

// Timing configures the optional timing model.
type Timing struct {
	Enabled bool `toml:"enabled"`

	// LatencyFile names a JSON latency table that replaces Latency.
	LatencyFile string               `toml:"latency_file"`
	Latency     latency.TimingConfig `toml:"latency"`

	DataCache bool                       `toml:"data_cache"`
	Cache     cache.Config               `toml:"cache"`
	Predictor core.BranchPredictorConfig `toml:"predictor"`
}

// verbosities follow commonlog.VerbosityToMaxLevel.
var verbosities = map[string]int{
	"none":    -4,
	"error":   -2,
	"warning": -1,
	"info":    1,
	"debug":   2,
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Run: Run{
			SymbolBase: loader.DefaultSymbolBase,
			StackTop:   loader.DefaultStackTop,
			StackSize:  loader.DefaultStackSize,
		},
		Log: Log{Level: "warning"},
		Timing: Timing{
			Latency:   *latency.DefaultTimingConfig(),
			DataCache: true,
			Cache:     cache.DefaultL1DConfig(),
			Predictor: core.DefaultBranchPredictorConfig(),
		},
	}
}

// Load parses a configuration file. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if c.Timing.LatencyFile != "" {
		lat, err := latency.LoadConfig(c.resolve(c.Timing.LatencyFile))
		if err != nil {
			return nil, err
		}
		c.Timing.Latency = *lat
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if _, err := c.Verbosity(); err != nil {
		return err
	}
	if c.Run.StackSize > c.Run.StackTop {
		return fmt.Errorf("run.stack_size 0x%X exceeds run.stack_top 0x%X",
			c.Run.StackSize, c.Run.StackTop)
	}
	if err := c.Timing.Latency.Validate(); err != nil {
		return fmt.Errorf("timing.latency: %w", err)
	}
	if c.Timing.DataCache {
		if err := c.Timing.Cache.Validate(); err != nil {
			return fmt.Errorf("timing.cache: %w", err)
		}
	}
	return nil
}

// Verbosity maps the log level to a commonlog verbosity.
func (c *Config) Verbosity() (int, error) {
	v, ok := verbosities[strings.ToLower(c.Log.Level)]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return v, nil
}

// LinkOptions returns the loader options for the run section.
func (c *Config) LinkOptions() []loader.Option {
	return []loader.Option{
		loader.WithSymbolBase(c.Run.SymbolBase),
		loader.WithStack(c.Run.StackTop, c.Run.StackSize),
	}
}

// CoreOptions builds the timing core options for the timing section.
func (c *Config) CoreOptions() []core.Option {
	lat := c.Timing.Latency
	opts := []core.Option{
		core.WithLatencyTable(latency.NewTableWithConfig(&lat)),
		core.WithBranchPredictor(core.NewBranchPredictor(c.Timing.Predictor)),
	}
	if c.Timing.DataCache {
		opts = append(opts, core.WithDataCache(cache.New(c.Timing.Cache)))
	}
	return opts
}
