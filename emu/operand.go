package emu

import (
	"fmt"

	"github.com/sarchlab/asmsim/insts"
)

// InstructionWidth is the synthetic size of every instruction in memory.
// Each instruction occupies one slot holding its id.
const InstructionWidth = 8

// AccessObserver is notified of every guest data access, checked or not.
type AccessObserver func(addr uint64, size int, isWrite bool)

// OperandResolver computes effective addresses and operand widths and moves
// operand values in and out of registers and memory.
type OperandResolver struct {
	regFile  *RegFile
	memory   *Memory
	symbols  *SymbolTable
	observer AccessObserver
}

// NewOperandResolver creates a resolver over the given machine state.
func NewOperandResolver(regFile *RegFile, memory *Memory, symbols *SymbolTable) *OperandResolver {
	return &OperandResolver{
		regFile: regFile,
		memory:  memory,
		symbols: symbols,
	}
}

// SetObserver installs an access observer. nil removes it.
func (r *OperandResolver) SetObserver(o AccessObserver) {
	r.observer = o
}

func (r *OperandResolver) observe(addr uint64, size int, isWrite bool) {
	if r.observer != nil {
		r.observer(addr, size, isWrite)
	}
}

// ResolveAddress computes disp + base + index*scale. With a rip base, a
// symbolic displacement is the symbol's own address and a numeric one is
// relative to the next instruction.
func (r *OperandResolver) ResolveAddress(m *insts.Memory) (uint64, error) {
	var addr uint64

	if m.HasDispSymbol() {
		sym, err := r.symbols.FindSymbol(m.DispSymbol)
		if err != nil {
			return 0, err
		}
		addr = sym.Address
	}
	addr += uint64(m.Disp)

	if m.Base != "" {
		base, err := LookupRegister(m.Base)
		if err != nil {
			return 0, err
		}
		switch {
		case base.Reg == RIP && m.HasDispSymbol():
		case base.Reg == RIP:
			addr += r.regFile.ReadView(base) + InstructionWidth
		default:
			addr += r.regFile.ReadView(base)
		}
	}

	if m.Index != "" {
		index, err := LookupRegister(m.Index)
		if err != nil {
			return 0, err
		}
		addr += r.regFile.ReadView(index) * m.EffectiveScale()
	}

	return addr, nil
}

// RegisterSize returns the width of a register operand.
func RegisterSize(op *insts.Register) (insts.Size, error) {
	v, err := LookupRegister(op.Name)
	if err != nil {
		return insts.SizeNone, err
	}
	return v.Size, nil
}

// OperandSize infers the width of a two-operand instruction. A register
// destination decides; otherwise a register source decides; an immediate
// stored to memory needs the suffix.
func (r *OperandResolver) OperandSize(src, dst insts.Operand, suffix insts.Size) (insts.Size, error) {
	switch d := dst.(type) {
	case *insts.Immediate:
		return insts.SizeNone, ErrImmediateDestination

	case *insts.Register:
		dstSize, err := RegisterSize(d)
		if err != nil {
			return insts.SizeNone, err
		}
		if s, ok := src.(*insts.Register); ok {
			srcSize, err := RegisterSize(s)
			if err != nil {
				return insts.SizeNone, err
			}
			if srcSize != dstSize {
				return insts.SizeNone, fmt.Errorf("%w: %s is %s, %s is %s",
					ErrSizeMismatch, s, srcSize, d, dstSize)
			}
		}
		if suffix != insts.SizeNone && suffix != dstSize {
			return insts.SizeNone, fmt.Errorf("%w: suffix %s, %s is %s",
				ErrSuffixMismatch, suffix, d, dstSize)
		}
		return dstSize, nil

	case *insts.Memory:
		switch s := src.(type) {
		case *insts.Register:
			return RegisterSize(s)
		case *insts.Memory:
			return insts.SizeNone, ErrMemoryToMemory
		case *insts.Immediate:
			if suffix != insts.SizeNone {
				return suffix, nil
			}
			return insts.SizeNone, ErrSuffixRequired
		}
	}

	return insts.SizeNone, ErrUnknownSize
}

// UnarySize infers the width of a one-operand instruction: a register's
// own width, else the suffix, else fallback.
func (r *OperandResolver) UnarySize(op insts.Operand, suffix, fallback insts.Size) (insts.Size, error) {
	switch o := op.(type) {
	case *insts.Register:
		size, err := RegisterSize(o)
		if err != nil {
			return insts.SizeNone, err
		}
		if suffix != insts.SizeNone && suffix != size {
			return insts.SizeNone, fmt.Errorf("%w: suffix %s, %s is %s",
				ErrSuffixMismatch, suffix, o, size)
		}
		return size, nil
	case *insts.Immediate, *insts.Memory:
		if suffix != insts.SizeNone {
			return suffix, nil
		}
		if fallback != insts.SizeNone {
			return fallback, nil
		}
		return insts.SizeNone, ErrSuffixRequired
	}
	return insts.SizeNone, ErrUnknownSize
}

// ReadOperand reads an operand's value at the given width.
func (r *OperandResolver) ReadOperand(op insts.Operand, size insts.Size) (uint64, error) {
	switch o := op.(type) {
	case *insts.Register:
		v, err := LookupRegister(o.Name)
		if err != nil {
			return 0, err
		}
		return r.regFile.ReadView(v) & size.Mask(), nil

	case *insts.Immediate:
		if !o.IsSymbol() {
			return o.Value & size.Mask(), nil
		}
		v, err := r.symbols.Resolve(o.Symbol)
		if err != nil {
			return 0, err
		}
		return v & size.Mask(), nil

	case *insts.Memory:
		addr, err := r.ResolveAddress(o)
		if err != nil {
			return 0, err
		}
		r.observe(addr, size.Bytes(), false)
		return r.memory.Read(addr, size.Bytes())
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidOperand, op)
}

// WriteOperand writes value to a register or memory operand at the given
// width.
func (r *OperandResolver) WriteOperand(op insts.Operand, size insts.Size, value uint64) error {
	switch o := op.(type) {
	case *insts.Register:
		v, err := LookupRegister(o.Name)
		if err != nil {
			return err
		}
		r.regFile.WriteView(v, value&size.Mask())
		return nil

	case *insts.Memory:
		addr, err := r.ResolveAddress(o)
		if err != nil {
			return err
		}
		r.observe(addr, size.Bytes(), true)
		return r.memory.Write(addr, size.Bytes(), value)

	case *insts.Immediate:
		return ErrImmediateDestination
	}
	return fmt.Errorf("%w: %v", ErrInvalidOperand, op)
}
