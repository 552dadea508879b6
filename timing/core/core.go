// Package core provides an in-order timing model on top of the functional
// emulator. Each Tick retires one instruction and charges its latency, data
// cache misses and branch mispredictions.
package core

import (
	"github.com/sarchlab/asmsim/emu"
	"github.com/sarchlab/asmsim/timing/cache"
	"github.com/sarchlab/asmsim/timing/latency"
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Stalls is the number of cycles lost to data cache misses.
	Stalls uint64
	// Flushes is the number of branch mispredictions.
	Flushes uint64
	// Loads is the number of data reads.
	Loads uint64
	// Stores is the number of data writes.
	Stores uint64
}

// CPI returns cycles per instruction, or 0 before any instruction retired.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

type access struct {
	addr    uint64
	size    int
	isWrite bool
}

// Core times the execution of an emulator.
type Core struct {
	emulator  *emu.Emulator
	latencies *latency.Table
	dcache    *cache.Cache
	predictor *BranchPredictor

	pending []access
	stats   Stats

	halted   bool
	exitCode int64
	err      error
}

// Option configures a Core.
type Option func(*Core)

// WithLatencyTable sets the instruction latency table.
func WithLatencyTable(t *latency.Table) Option {
	return func(c *Core) {
		c.latencies = t
	}
}

// WithDataCache attaches a data cache. Without one every access is charged
// as an L1 hit.
func WithDataCache(dc *cache.Cache) Option {
	return func(c *Core) {
		c.dcache = dc
	}
}

// WithBranchPredictor replaces the default branch predictor.
func WithBranchPredictor(bp *BranchPredictor) Option {
	return func(c *Core) {
		c.predictor = bp
	}
}

// NewCore creates a Core driving e. The core installs itself as e's access
// observer.
func NewCore(e *emu.Emulator, opts ...Option) *Core {
	c := &Core{
		emulator:  e,
		latencies: latency.NewTable(),
		predictor: NewBranchPredictor(DefaultBranchPredictorConfig()),
	}

	for _, opt := range opts {
		opt(c)
	}

	e.SetAccessObserver(c.observe)
	return c
}

func (c *Core) observe(addr uint64, size int, isWrite bool) {
	c.pending = append(c.pending, access{addr: addr, size: size, isWrite: isWrite})
}

// Emulator returns the functional emulator being timed.
func (c *Core) Emulator() *emu.Emulator {
	return c.emulator
}

// DataCache returns the data cache, or nil.
func (c *Core) DataCache() *cache.Cache {
	return c.dcache
}

// Predictor returns the branch predictor.
func (c *Core) Predictor() *BranchPredictor {
	return c.predictor
}

// Tick executes one instruction and accounts for its cycles.
func (c *Core) Tick() {
	if c.halted {
		return
	}

	pc := c.emulator.RegFile().RIP()
	c.pending = c.pending[:0]

	result := c.emulator.Step()
	if result.Inst != nil {
		cycles := c.latencies.GetLatency(result.Inst)
		cycles += c.chargeAccesses()

		if c.latencies.IsBranchOp(result.Inst) {
			cycles += c.chargeBranch(pc)
		}

		c.stats.Cycles += cycles
		c.stats.Instructions++
	}

	switch {
	case result.Err != nil:
		c.halted = true
		c.err = result.Err
		c.exitCode = -1
	case result.Exited:
		c.halted = true
		c.exitCode = result.ExitCode
	case result.Halted:
		c.halted = true
	}
}

// chargeAccesses runs the accesses of the last instruction through the
// data cache and returns the miss penalty.
func (c *Core) chargeAccesses() uint64 {
	var penalty uint64
	for _, a := range c.pending {
		if a.isWrite {
			c.stats.Stores++
		} else {
			c.stats.Loads++
		}

		if c.dcache == nil {
			continue
		}
		r := c.dcache.Access(a.addr, a.size, a.isWrite)
		if !r.Hit {
			penalty += r.Latency - c.dcache.Config().HitLatency
		}
	}
	c.stats.Stalls += penalty
	return penalty
}

// chargeBranch trains the predictor with the branch at pc and returns the
// flush penalty when either the direction or the target was wrong.
func (c *Core) chargeBranch(pc uint64) uint64 {
	next := c.emulator.RegFile().RIP()
	taken := next != pc+emu.InstructionWidth

	pred := c.predictor.Predict(pc)
	c.predictor.Update(pc, taken, next)

	wrong := pred.Taken != taken ||
		(taken && (!pred.TargetKnown || pred.Target != next))
	if !wrong {
		return 0
	}

	c.stats.Flushes++
	return c.latencies.Config().BranchMispredictPenalty
}

// Halted returns true once the program exited, halted or failed.
func (c *Core) Halted() bool {
	return c.halted
}

// ExitCode returns the exit code if the core has halted.
func (c *Core) ExitCode() int64 {
	return c.exitCode
}

// Err returns the error that stopped the core, if any.
func (c *Core) Err() error {
	return c.err
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	return c.stats
}

// Run executes the core until it halts and returns the exit code.
func (c *Core) Run() (int64, error) {
	for !c.halted {
		c.Tick()
	}
	return c.exitCode, c.err
}

// RunCycles executes instructions until at least the given number of
// cycles has elapsed. Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) bool {
	end := c.stats.Cycles + cycles
	for !c.halted && c.stats.Cycles < end {
		c.Tick()
	}
	return !c.halted
}

// Reset clears timing state. The emulator itself is left untouched.
func (c *Core) Reset() {
	c.stats = Stats{}
	c.pending = c.pending[:0]
	c.halted = false
	c.exitCode = 0
	c.err = nil
	c.predictor.Reset()
	if c.dcache != nil {
		c.dcache.Reset()
	}
}
