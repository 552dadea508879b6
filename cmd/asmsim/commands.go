package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"github.com/tliron/commonlog/simple"

	"github.com/sarchlab/asmsim/config"
	"github.com/sarchlab/asmsim/emu"
	"github.com/sarchlab/asmsim/loader"
	"github.com/sarchlab/asmsim/timing/core"
)

// exitError carries a non-zero guest exit status out of cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "asmsim",
		Short: "x86-64 AT&T assembly interpreter",
		Long: `asmsim assembles, links and runs x86-64 programs written in AT&T syntax.
Programs talk to the host through the read, write, open, close and exit
system calls.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to asmsim.toml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: none, error, warning, info or debug")

	root.AddCommand(a.newRunCmd(), a.newSymbolsCmd(), a.newBenchCmd(), newVersionCmd())
	return root
}

// setup loads the configuration and configures logging.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		cfg, err = config.Load(a.configPath)
		if err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	verbosity, err := cfg.Verbosity()
	if err != nil {
		return err
	}
	configureLogging(verbosity, cmd.ErrOrStderr())

	a.cfg = cfg
	return nil
}

// configureLogging installs an unbuffered simple backend writing to w, so
// diagnostics are not lost when the process exits.
func configureLogging(verbosity int, w io.Writer) {
	b := simple.NewBackend()
	b.Buffered = false
	b.Configure(verbosity, nil)
	b.Writer = w
	commonlog.SetBackend(b)
}

func (a *app) newRunCmd() *cobra.Command {
	var (
		timing          bool
		maxInstructions uint64
		verbose         bool
	)

	cmd := &cobra.Command{
		Use:   "run <program.s>",
		Short: "Link and run a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("timing") {
				a.cfg.Timing.Enabled = timing
			}
			if cmd.Flags().Changed("max-instructions") {
				a.cfg.Run.MaxInstructions = maxInstructions
			}
			return a.run(cmd, args[0], verbose)
		},
	}

	cmd.Flags().BoolVar(&timing, "timing", false, "Enable the timing model")
	cmd.Flags().Uint64Var(&maxInstructions, "max-instructions", 0, "Stop after this many instructions (0 = no limit)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print a summary after the run")

	return cmd
}

func (a *app) run(cmd *cobra.Command, path string, verbose bool) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	prog, err := loader.Load(path, a.cfg.LinkOptions()...)
	if err != nil {
		return err
	}

	e := emu.NewEmulator(
		emu.WithStdin(cmd.InOrStdin()),
		emu.WithStdout(cmd.OutOrStdout()),
		emu.WithStderr(cmd.ErrOrStderr()),
		emu.WithMaxInstructions(a.cfg.Run.MaxInstructions),
	)
	defer e.Close()
	prog.Install(e)

	report := cmd.ErrOrStderr()
	if verbose {
		fmt.Fprintf(report, "Loaded: %s\n", path)
		fmt.Fprintf(report, "Entry point: 0x%X\n", prog.EntryPoint)
		fmt.Fprintf(report, "Segments: %d\n", len(prog.Segments))
	}

	var code int64
	if a.cfg.Timing.Enabled {
		c := core.NewCore(e, a.cfg.CoreOptions()...)
		code, err = c.Run()
		printTimingReport(report, path, code, c)
	} else {
		code, err = e.Run()
		if verbose {
			fmt.Fprintf(report, "\nProgram: %s\n", path)
			fmt.Fprintf(report, "Exit code: %d\n", code)
			fmt.Fprintf(report, "Instructions executed: %d\n", e.InstructionCount())
		}
	}
	if n := e.Memory().UninitializedReads(); n > 0 && verbose {
		fmt.Fprintf(report, "Uninitialized reads: %d\n", n)
	}

	if err != nil {
		return err
	}
	if code != 0 {
		return &exitError{code: int(code)}
	}
	return nil
}

func printTimingReport(w io.Writer, path string, code int64, c *core.Core) {
	stats := c.Stats()
	total := stats.Cycles
	if total == 0 {
		total = 1
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Program: %s\n", path)
	fmt.Fprintf(w, "Exit code: %d\n", code)
	fmt.Fprintf(w, "Total Instructions: %d\n", stats.Instructions)
	fmt.Fprintf(w, "Total Cycles: %d\n", stats.Cycles)
	fmt.Fprintf(w, "CPI: %.2f\n", stats.CPI())
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Breakdown:\n")
	fmt.Fprintf(w, "  Memory stalls: %4d cycles (%5.1f%%)\n",
		stats.Stalls, 100.0*float64(stats.Stalls)/float64(total))
	fmt.Fprintf(w, "  Loads:  %d\n", stats.Loads)
	fmt.Fprintf(w, "  Stores: %d\n", stats.Stores)
	fmt.Fprintf(w, "  Branch flushes: %d\n", stats.Flushes)
	if dc := c.DataCache(); dc != nil {
		fmt.Fprintf(w, "  L1D hit rate: %.1f%%\n", 100*dc.Stats().HitRate())
	}
}

func (a *app) newSymbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols <program.s>",
		Short: "Link a program and print its symbol table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := loader.Load(args[0], a.cfg.LinkOptions()...)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "entry 0x%X\n", prog.EntryPoint)
			for _, seg := range prog.Segments {
				fmt.Fprintf(w, "section %-8s 0x%X-0x%X %s\n", seg.Name, seg.VirtAddr, seg.End(), seg.Perm)
			}
			for _, sym := range prog.Symbols.Symbols() {
				fmt.Fprintf(w, "0x%X %6d %s\n", sym.Address, sym.Size, sym.Name)
			}
			for _, c := range prog.Symbols.Immediates() {
				fmt.Fprintf(w, "%s = %d\n", c.Name, c.Value)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "asmsim %s\n", Version)
		},
	}
}
