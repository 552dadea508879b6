package emu

import (
	"math/bits"

	"github.com/sarchlab/asmsim/insts"
)

// ALU implements x86-64 arithmetic and logic operations and their effect
// on the flags. All operands are taken at the operation width and results
// are masked to it.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

func signBit(size insts.Size) uint64 {
	return uint64(1) << (size.Bits() - 1)
}

// parity is true when the low byte has an even number of set bits.
func parity(v uint64) bool {
	return bits.OnesCount8(uint8(v))%2 == 0
}

// Add returns a+b and sets CF, OF, SF, ZF, AF and PF.
func (a *ALU) Add(op1, op2 uint64, size insts.Size) uint64 {
	mask := size.Mask()
	op1, op2 = op1&mask, op2&mask

	sum, carry := bits.Add64(op1, op2, 0)
	result := sum & mask

	f := &a.regFile.Flags
	if size == insts.SizeQuad {
		f.CF = carry != 0
	} else {
		f.CF = sum > mask
	}
	f.OF = (^(op1 ^ op2))&(op1^result)&signBit(size) != 0
	f.AF = (op1&0xF)+(op2&0xF) > 0xF
	a.setResultFlags(result, size)
	return result
}

// Sub returns a-b and sets CF, OF, SF, ZF, AF and PF.
func (a *ALU) Sub(op1, op2 uint64, size insts.Size) uint64 {
	mask := size.Mask()
	op1, op2 = op1&mask, op2&mask
	result := (op1 - op2) & mask

	f := &a.regFile.Flags
	f.CF = op1 < op2
	f.OF = (op1^op2)&(op1^result)&signBit(size) != 0
	f.AF = (op1 & 0xF) < (op2 & 0xF)
	a.setResultFlags(result, size)
	return result
}

// Logic sets the flags for a bitwise result: CF and OF clear, SF, ZF and PF
// from the result. AF is left unchanged.
func (a *ALU) Logic(result uint64, size insts.Size) uint64 {
	result &= size.Mask()
	f := &a.regFile.Flags
	f.CF = false
	f.OF = false
	a.setResultFlags(result, size)
	return result
}

// And returns op1&op2 with logic flags.
func (a *ALU) And(op1, op2 uint64, size insts.Size) uint64 {
	return a.Logic(op1&op2, size)
}

// Or returns op1|op2 with logic flags.
func (a *ALU) Or(op1, op2 uint64, size insts.Size) uint64 {
	return a.Logic(op1|op2, size)
}

// Xor returns op1^op2 with logic flags.
func (a *ALU) Xor(op1, op2 uint64, size insts.Size) uint64 {
	return a.Logic(op1^op2, size)
}

// Inc returns op+1. CF is preserved.
func (a *ALU) Inc(op uint64, size insts.Size) uint64 {
	cf := a.regFile.Flags.CF
	result := a.Add(op, 1, size)
	a.regFile.Flags.CF = cf
	return result
}

// Dec returns op-1. CF is preserved.
func (a *ALU) Dec(op uint64, size insts.Size) uint64 {
	cf := a.regFile.Flags.CF
	result := a.Sub(op, 1, size)
	a.regFile.Flags.CF = cf
	return result
}

// Neg returns 0-op. CF is set unless op is zero.
func (a *ALU) Neg(op uint64, size insts.Size) uint64 {
	result := a.Sub(0, op, size)
	a.regFile.Flags.CF = op&size.Mask() != 0
	return result
}

// Not returns the bitwise complement. Flags are unaffected.
func (a *ALU) Not(op uint64, size insts.Size) uint64 {
	return ^op & size.Mask()
}

func (a *ALU) setResultFlags(result uint64, size insts.Size) {
	f := &a.regFile.Flags
	f.ZF = result == 0
	f.SF = result&signBit(size) != 0
	f.PF = parity(result)
}
