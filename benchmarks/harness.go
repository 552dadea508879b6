// Package benchmarks runs assembly microbenchmarks through the timing core
// and reports cycle statistics.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sarchlab/asmsim/asm"
	"github.com/sarchlab/asmsim/config"
	"github.com/sarchlab/asmsim/emu"
	"github.com/sarchlab/asmsim/loader"
	"github.com/sarchlab/asmsim/timing/core"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	SimulatedCycles     uint64  `json:"simulated_cycles"`
	InstructionsRetired uint64  `json:"instructions_retired"`
	CPI                 float64 `json:"cpi"`

	// MemStalls is the extra cycles spent on data cache misses.
	MemStalls       uint64 `json:"mem_stalls"`
	PipelineFlushes uint64 `json:"pipeline_flushes"`
	Loads           uint64 `json:"loads"`
	Stores          uint64 `json:"stores"`

	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	BranchPredictions     uint64  `json:"branch_predictions,omitempty"`
	BranchMispredictions  uint64  `json:"branch_mispredictions,omitempty"`
	BranchAccuracyPercent float64 `json:"branch_accuracy_percent,omitempty"`

	ExitCode int64 `json:"exit_code"`

	// Error is set when the benchmark failed to link or run.
	Error string `json:"error,omitempty"`

	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	Name        string
	Description string

	// Source is the program in AT&T syntax. Execution starts at _start.
	Source string

	// ExpectedExit is the exit status of a correct run.
	ExpectedExit int64
}

// Check reports why r is not a correct run of b, or nil.
func (b Benchmark) Check(r BenchmarkResult) error {
	if r.Error != "" {
		return fmt.Errorf("%s: %s", b.Name, r.Error)
	}
	if r.ExitCode != b.ExpectedExit {
		return fmt.Errorf("%s: exit code %d, want %d", b.Name, r.ExitCode, b.ExpectedExit)
	}
	return nil
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Config supplies the link layout and the timing model. Timing.Enabled
	// is ignored; benchmarks always run on the timing core.
	Config *config.Config

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Config: config.Default(),
		Output: os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Config == nil {
		config.Config = DefaultConfig().Config
	}
	return &Harness{config: config}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// Benchmarks returns the registered benchmarks.
func (h *Harness) Benchmarks() []Benchmark {
	return h.benchmarks
}

// RunAll executes all benchmarks and returns results in registration order.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))
	for _, bench := range h.benchmarks {
		results = append(results, h.runBenchmark(bench))
	}
	return results
}

func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
		ExitCode:    -1,
	}

	parsed, err := asm.Parse(bench.Source)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	prog, err := loader.Link(parsed, h.config.Config.LinkOptions()...)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	e := emu.NewEmulator(
		emu.WithStdout(io.Discard),
		emu.WithStderr(io.Discard),
		emu.WithStdin(nil),
		emu.WithMaxInstructions(h.config.Config.Run.MaxInstructions),
	)
	defer e.Close()
	prog.Install(e)

	c := core.NewCore(e, h.config.Config.CoreOptions()...)

	start := time.Now()
	code, err := c.Run()
	result.WallTime = time.Since(start)

	if err != nil {
		result.Error = err.Error()
	} else {
		result.ExitCode = code
	}

	stats := c.Stats()
	result.SimulatedCycles = stats.Cycles
	result.InstructionsRetired = stats.Instructions
	result.CPI = stats.CPI()
	result.MemStalls = stats.Stalls
	result.PipelineFlushes = stats.Flushes
	result.Loads = stats.Loads
	result.Stores = stats.Stores

	if dc := c.DataCache(); dc != nil {
		dcStats := dc.Stats()
		result.DCacheHits = dcStats.Hits
		result.DCacheMisses = dcStats.Misses
	}

	bpStats := c.Predictor().Stats()
	result.BranchPredictions = bpStats.Predictions
	result.BranchMispredictions = bpStats.Mispredictions
	result.BranchAccuracyPercent = bpStats.Accuracy()

	return result
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	w := h.config.Output
	_, _ = fmt.Fprintln(w, "=== asmsim Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(w, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(w, "  Description: %s\n", r.Description)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "  Error: %s\n\n", r.Error)
			continue
		}
		_, _ = fmt.Fprintf(w, "  Exit Code: %d\n", r.ExitCode)
		_, _ = fmt.Fprintln(w, "  --- Timing ---")
		_, _ = fmt.Fprintf(w, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(w, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(w, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(w, "  Mem Stalls:           %d\n", r.MemStalls)
		_, _ = fmt.Fprintf(w, "  Pipeline Flushes:     %d\n", r.PipelineFlushes)
		_, _ = fmt.Fprintf(w, "  Loads/Stores:         %d/%d\n", r.Loads, r.Stores)

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(w, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(w, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(w, "  Misses: %d\n", r.DCacheMisses)
		}

		if r.BranchPredictions > 0 {
			_, _ = fmt.Fprintln(w, "  --- Branch Predictor ---")
			_, _ = fmt.Fprintf(w, "  Predictions:     %d\n", r.BranchPredictions)
			_, _ = fmt.Fprintf(w, "  Mispredictions:  %d\n", r.BranchMispredictions)
			_, _ = fmt.Fprintf(w, "  Accuracy:        %.1f%%\n", r.BranchAccuracyPercent)
		}

		_, _ = fmt.Fprintf(w, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(w, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	w := h.config.Output
	_, _ = fmt.Fprintln(w,
		"name,cycles,instructions,cpi,mem_stalls,flushes,loads,stores,dcache_hits,dcache_misses,exit_code")

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.MemStalls,
			r.PipelineFlushes,
			r.Loads,
			r.Stores,
			r.DCacheHits,
			r.DCacheMisses,
			r.ExitCode,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	Metadata ReportMetadata    `json:"metadata"`
	Results  []BenchmarkResult `json:"results"`
	Summary  ReportSummary     `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	Timestamp     string `json:"timestamp"`
	Version       string `json:"version"`
	DCacheEnabled bool   `json:"dcache_enabled"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	TotalBenchmarks   int           `json:"total_benchmarks"`
	TotalCycles       uint64        `json:"total_cycles"`
	TotalInstructions uint64        `json:"total_instructions"`
	AverageCPI        float64       `json:"average_cpi"`
	TotalWallTime     time.Duration `json:"total_wall_time_ns"`
}

// Summarize computes aggregate statistics over results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		s.TotalCycles += r.SimulatedCycles
		s.TotalInstructions += r.InstructionsRetired
		s.TotalWallTime += r.WallTime
	}
	if s.TotalInstructions > 0 {
		s.AverageCPI = float64(s.TotalCycles) / float64(s.TotalInstructions)
	}
	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult, version string) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			Version:       version,
			DCacheEnabled: h.config.Config.Timing.DataCache,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
