// Package latency provides instruction timing models for the timing core.
//
// The latency values are typical x86-64 estimates and can be configured
// via TimingConfig.
package latency

import (
	"github.com/sarchlab/asmsim/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the execution latency in cycles for the given
// instruction, assuming every memory access hits in L1. A read-modify-write
// instruction pays for its load, its operation and its store.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch inst.Op {
	case insts.OpJMP, insts.OpJCC, insts.OpCALL, insts.OpRET:
		return t.config.BranchLatency
	case insts.OpSYSCALL:
		return t.config.SyscallLatency
	case insts.OpNOP, insts.OpHLT, insts.OpUnknown:
		return 1
	}

	var lat uint64
	if t.IsLoadOp(inst) {
		lat += t.config.LoadLatency
	}
	if computes(inst.Op) {
		lat += t.config.ALULatency
	}
	if t.IsStoreOp(inst) {
		lat += t.config.StoreLatency
	}
	if lat == 0 {
		lat = t.config.ALULatency
	}
	return lat
}

func computes(op insts.Op) bool {
	switch op {
	case insts.OpADD, insts.OpSUB, insts.OpCMP, insts.OpXOR, insts.OpAND,
		insts.OpOR, insts.OpTEST, insts.OpINC, insts.OpDEC, insts.OpNEG,
		insts.OpNOT:
		return true
	default:
		return false
	}
}

func hasMemory(ops []insts.Operand) bool {
	for _, op := range ops {
		if _, ok := op.(*insts.Memory); ok {
			return true
		}
	}
	return false
}

func isMemory(op insts.Operand) bool {
	_, ok := op.(*insts.Memory)
	return ok
}

// IsMemoryOp returns true if the instruction accesses memory.
func (t *Table) IsMemoryOp(inst *insts.Instruction) bool {
	return t.IsLoadOp(inst) || t.IsStoreOp(inst)
}

// IsLoadOp returns true if the instruction reads memory, including the
// stack reads of pop, ret and leave.
func (t *Table) IsLoadOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch inst.Op {
	case insts.OpPOP, insts.OpRET, insts.OpLEAVE:
		return true
	case insts.OpMOV:
		return isMemory(inst.Src())
	case insts.OpPUSH:
		return isMemory(inst.Dst())
	case insts.OpJMP, insts.OpJCC, insts.OpCALL:
		return inst.Indirect && isMemory(inst.Dst())
	case insts.OpLEA:
		return false
	default:
		return computes(inst.Op) && hasMemory(inst.Operands)
	}
}

// IsStoreOp returns true if the instruction writes memory, including the
// stack writes of push and call.
func (t *Table) IsStoreOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch inst.Op {
	case insts.OpPUSH, insts.OpCALL:
		return true
	case insts.OpMOV, insts.OpPOP:
		return isMemory(inst.Dst())
	case insts.OpCMP, insts.OpTEST:
		return false
	default:
		return computes(inst.Op) && isMemory(inst.Dst())
	}
}

// IsBranchOp returns true if the instruction can redirect control flow.
func (t *Table) IsBranchOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch inst.Op {
	case insts.OpJMP, insts.OpJCC, insts.OpCALL, insts.OpRET:
		return true
	default:
		return false
	}
}

// IsConditionalBranch returns true for jcc.
func (t *Table) IsConditionalBranch(inst *insts.Instruction) bool {
	return inst != nil && inst.Op == insts.OpJCC
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
