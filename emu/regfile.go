// Package emu provides functional x86-64 emulation of a linked assembly
// program.
package emu

import (
	"fmt"

	"github.com/sarchlab/asmsim/insts"
)

// Reg identifies one 64-bit register cell.
type Reg uint8

// Register cells. Every named view maps onto exactly one of these.
const (
	RAX Reg = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RSP
	RBP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP

	NumRegs
)

// Register is a named view of a register cell: Size bits starting at bit
// Offset.
type Register struct {
	Name   string
	Reg    Reg
	Offset uint8
	Size   insts.Size
}

// RegFile holds the x86-64 register cells and the flags.
type RegFile struct {
	cells [NumRegs]uint64

	// Flags holds the RFLAGS bits.
	Flags Flags
}

// Flags represents the RFLAGS register.
type Flags struct {
	CF   bool  // Carry
	PF   bool  // Parity (of the low result byte)
	AF   bool  // Auxiliary carry out of bit 3
	ZF   bool  // Zero
	SF   bool  // Sign
	TF   bool  // Trap
	IF   bool  // Interrupt enable
	DF   bool  // Direction
	OF   bool  // Overflow
	IOPL uint8 // I/O privilege level, 2 bits
	NT   bool  // Nested task
	RF   bool  // Resume
	VM   bool  // Virtual-8086 mode
	AC   bool  // Alignment check
	VIF  bool  // Virtual interrupt
	VIP  bool  // Virtual interrupt pending
	ID   bool  // CPUID available
}

// Value packs the flags into the RFLAGS bit layout. Bit 1 always reads 1.
func (f Flags) Value() uint64 {
	bits := []struct {
		set bool
		pos uint
	}{
		{f.CF, 0}, {f.PF, 2}, {f.AF, 4}, {f.ZF, 6}, {f.SF, 7}, {f.TF, 8},
		{f.IF, 9}, {f.DF, 10}, {f.OF, 11}, {f.NT, 14}, {f.RF, 16},
		{f.VM, 17}, {f.AC, 18}, {f.VIF, 19}, {f.VIP, 20}, {f.ID, 21},
	}

	v := uint64(1) << 1
	for _, b := range bits {
		if b.set {
			v |= 1 << b.pos
		}
	}
	v |= uint64(f.IOPL&0x3) << 12
	return v
}

var registers = map[string]Register{}

func init() {
	type cellNames struct {
		q, l, w, b, h string
	}
	names := [NumRegs]cellNames{
		RAX: {"rax", "eax", "ax", "al", "ah"},
		RBX: {"rbx", "ebx", "bx", "bl", "bh"},
		RCX: {"rcx", "ecx", "cx", "cl", "ch"},
		RDX: {"rdx", "edx", "dx", "dl", "dh"},
		RSI: {"rsi", "esi", "si", "sil", ""},
		RDI: {"rdi", "edi", "di", "dil", ""},
		RSP: {"rsp", "esp", "sp", "spl", ""},
		RBP: {"rbp", "ebp", "bp", "bpl", ""},
		RIP: {"rip", "eip", "ip", "", ""},
	}
	for i := R8; i <= R15; i++ {
		n := fmt.Sprintf("r%d", 8+int(i-R8))
		names[i] = cellNames{n, n + "d", n + "w", n + "b", ""}
	}

	add := func(name string, reg Reg, offset uint8, size insts.Size) {
		if name != "" {
			registers[name] = Register{Name: name, Reg: reg, Offset: offset, Size: size}
		}
	}
	for reg, n := range names {
		r := Reg(reg)
		add(n.q, r, 0, insts.SizeQuad)
		add(n.l, r, 0, insts.SizeLong)
		add(n.w, r, 0, insts.SizeWord)
		add(n.b, r, 0, insts.SizeByte)
		add(n.h, r, 8, insts.SizeByte)
	}
}

// LookupRegister resolves a register name (without '%') to its view.
func LookupRegister(name string) (Register, error) {
	r, ok := registers[name]
	if !ok {
		return Register{}, fmt.Errorf("%w %q", ErrUnknownRegister, name)
	}
	return r, nil
}

// RegisterNames returns every known register name.
func RegisterNames() []string {
	out := make([]string, 0, len(registers))
	for n := range registers {
		out = append(out, n)
	}
	return out
}

// ReadReg reads a full 64-bit cell.
func (r *RegFile) ReadReg(reg Reg) uint64 {
	return r.cells[reg]
}

// WriteReg writes a full 64-bit cell.
func (r *RegFile) WriteReg(reg Reg, value uint64) {
	r.cells[reg] = value
}

// ReadView reads the bits covered by a register view.
func (r *RegFile) ReadView(v Register) uint64 {
	return (r.cells[v.Reg] >> v.Offset) & v.Size.Mask()
}

// WriteView writes through a register view. 32-bit views zero-extend into
// the whole cell; 8- and 16-bit views leave the other bits untouched.
func (r *RegFile) WriteView(v Register, value uint64) {
	if v.Size == insts.SizeLong {
		r.cells[v.Reg] = value & insts.SizeLong.Mask()
		return
	}
	setBits(&r.cells[v.Reg], v.Offset, uint8(v.Size.Bits()), value)
}

// Read reads a register by name.
func (r *RegFile) Read(name string) (uint64, error) {
	v, err := LookupRegister(name)
	if err != nil {
		return 0, err
	}
	return r.ReadView(v), nil
}

// Write writes a register by name.
func (r *RegFile) Write(name string, value uint64) error {
	v, err := LookupRegister(name)
	if err != nil {
		return err
	}
	r.WriteView(v, value)
	return nil
}

// RIP returns the instruction pointer.
func (r *RegFile) RIP() uint64 {
	return r.cells[RIP]
}

// SetRIP sets the instruction pointer.
func (r *RegFile) SetRIP(v uint64) {
	r.cells[RIP] = v
}

// RSP returns the stack pointer.
func (r *RegFile) RSP() uint64 {
	return r.cells[RSP]
}

// SetRSP sets the stack pointer.
func (r *RegFile) SetRSP(v uint64) {
	r.cells[RSP] = v
}

// setBits replaces width bits of cell starting at offset with the low bits
// of value.
func setBits(cell *uint64, offset, width uint8, value uint64) {
	var mask uint64
	if width >= 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1) << width) - 1
	}
	*cell = (*cell &^ (mask << offset)) | ((value & mask) << offset)
}
