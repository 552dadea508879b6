package emu

import (
	"github.com/sarchlab/asmsim/insts"
)

// BranchUnit evaluates condition codes and moves the instruction pointer.
type BranchUnit struct {
	regFile *RegFile
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// Jump sets the instruction pointer to target.
func (b *BranchUnit) Jump(target uint64) {
	b.regFile.SetRIP(target)
}

// JumpCond jumps to target if cond holds, otherwise advances past the
// current instruction. It reports whether the jump was taken.
func (b *BranchUnit) JumpCond(target uint64, cond insts.Cond) bool {
	if b.CheckCondition(cond) {
		b.regFile.SetRIP(target)
		return true
	}
	b.regFile.SetRIP(b.regFile.RIP() + InstructionWidth)
	return false
}

// CheckCondition evaluates an x86 condition code against the current flags.
func (b *BranchUnit) CheckCondition(cond insts.Cond) bool {
	f := &b.regFile.Flags

	switch cond {
	case insts.CondOverflow:
		return f.OF
	case insts.CondNotOverflow:
		return !f.OF
	case insts.CondSign:
		return f.SF
	case insts.CondNotSign:
		return !f.SF
	case insts.CondEqual, insts.CondZero:
		return f.ZF
	case insts.CondNotEqual, insts.CondNotZero:
		return !f.ZF
	case insts.CondBelow, insts.CondNotAboveOrEqual, insts.CondCarry:
		return f.CF
	case insts.CondAboveOrEqual, insts.CondNotBelow, insts.CondNotCarry:
		return !f.CF
	case insts.CondBelowOrEqual, insts.CondNotAbove:
		return f.CF || f.ZF
	case insts.CondAbove, insts.CondNotBelowOrEqual:
		return !f.CF && !f.ZF
	case insts.CondLess, insts.CondNotGreaterOrEqual:
		return f.SF != f.OF
	case insts.CondGreaterOrEqual, insts.CondNotLess:
		return f.SF == f.OF
	case insts.CondLessOrEqual, insts.CondNotGreater:
		return f.ZF || f.SF != f.OF
	case insts.CondGreater, insts.CondNotLessOrEqual:
		return !f.ZF && f.SF == f.OF
	case insts.CondParity, insts.CondParityEven:
		return f.PF
	case insts.CondNotParity, insts.CondParityOdd:
		return !f.PF
	default:
		panic("unhandled condition code " + cond.String())
	}
}
