package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/asmsim/benchmarks"
)

func (a *app) newBenchCmd() *cobra.Command {
	var (
		format   string
		coreOnly bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the built-in microbenchmarks on the timing model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h := benchmarks.NewHarness(benchmarks.HarnessConfig{
				Config: a.cfg,
				Output: cmd.OutOrStdout(),
			})
			if coreOnly {
				h.AddBenchmarks(benchmarks.GetCoreBenchmarks())
			} else {
				h.AddBenchmarks(benchmarks.GetMicrobenchmarks())
			}

			results := h.RunAll()
			switch format {
			case "text":
				h.PrintResults(results)
			case "csv":
				h.PrintCSV(results)
			case "json":
				if err := h.PrintJSON(results, Version); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q", format)
			}

			failed := 0
			for i, b := range h.Benchmarks() {
				if err := b.Check(results[i]); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %v\n", err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d benchmarks failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, csv or json")
	cmd.Flags().BoolVar(&coreOnly, "core", false, "Run only the core benchmark set")

	return cmd
}
