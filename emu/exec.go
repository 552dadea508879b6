package emu

import (
	"fmt"

	"github.com/sarchlab/asmsim/insts"
)

// execute dispatches and executes a fetched instruction.
func (e *Emulator) execute(inst *insts.Instruction) StepResult {
	var err error

	switch inst.Op {
	case insts.OpMOV:
		err = e.executeMov(inst)
	case insts.OpLEA:
		err = e.executeLea(inst)
	case insts.OpADD, insts.OpSUB, insts.OpXOR, insts.OpAND, insts.OpOR:
		err = e.executeArith(inst, true)
	case insts.OpCMP, insts.OpTEST:
		err = e.executeArith(inst, false)
	case insts.OpINC, insts.OpDEC, insts.OpNEG, insts.OpNOT:
		err = e.executeUnary(inst)
	case insts.OpPUSH:
		err = e.executePush(inst)
	case insts.OpPOP:
		err = e.executePop(inst)
	case insts.OpLEAVE:
		e.regFile.SetRSP(e.regFile.ReadReg(RBP))
		e.regFile.WriteReg(RBP, e.pop())
	case insts.OpNOP:
	case insts.OpCALL:
		return e.result(e.executeCall(inst))
	case insts.OpRET:
		e.branchUnit.Jump(e.pop() + InstructionWidth)
		return StepResult{}
	case insts.OpJMP:
		return e.result(e.executeJump(inst))
	case insts.OpJCC:
		return e.result(e.executeJumpCond(inst))
	case insts.OpHLT:
		e.advance()
		return StepResult{Halted: true}
	case insts.OpSYSCALL:
		return e.executeSyscall()
	case insts.OpUnknown:
		return StepResult{Err: fmt.Errorf("unknown instruction %q", inst.Name)}
	default:
		return StepResult{Err: fmt.Errorf("unimplemented op %s", inst.Op)}
	}

	if err != nil {
		return StepResult{Err: err}
	}

	e.advance()
	return StepResult{}
}

func (e *Emulator) result(err error) StepResult {
	return StepResult{Err: err}
}

// advance moves rip past the current instruction.
func (e *Emulator) advance() {
	e.regFile.SetRIP(e.regFile.RIP() + InstructionWidth)
}

// push writes an 8-byte value below rsp, bypassing permissions.
func (e *Emulator) push(v uint64) {
	sp := e.regFile.RSP() - 8
	e.regFile.SetRSP(sp)
	e.observe(sp, 8, true)
	e.memory.WriteUnchecked(sp, 8, v)
}

// pop reads the 8-byte value at rsp, bypassing permissions.
func (e *Emulator) pop() uint64 {
	sp := e.regFile.RSP()
	e.observe(sp, 8, false)
	v := e.memory.ReadUnchecked(sp, 8)
	e.regFile.SetRSP(sp + 8)
	return v
}

func (e *Emulator) observe(addr uint64, size int, isWrite bool) {
	if e.observer != nil {
		e.observer(addr, size, isWrite)
	}
}

func (e *Emulator) executeMov(inst *insts.Instruction) error {
	size, err := e.resolver.OperandSize(inst.Src(), inst.Dst(), inst.Suffix)
	if err != nil {
		return err
	}
	v, err := e.resolver.ReadOperand(inst.Src(), size)
	if err != nil {
		return err
	}
	return e.resolver.WriteOperand(inst.Dst(), size, v)
}

func (e *Emulator) executeLea(inst *insts.Instruction) error {
	mem, ok := inst.Src().(*insts.Memory)
	if !ok {
		return fmt.Errorf("%w: lea source must be a memory operand", ErrInvalidOperand)
	}
	dst, ok := inst.Dst().(*insts.Register)
	if !ok {
		return fmt.Errorf("%w: lea destination must be a register", ErrInvalidOperand)
	}

	size, err := e.resolver.UnarySize(dst, inst.Suffix, insts.SizeNone)
	if err != nil {
		return err
	}
	addr, err := e.resolver.ResolveAddress(mem)
	if err != nil {
		return err
	}
	return e.resolver.WriteOperand(dst, size, addr)
}

// executeArith runs a flag-setting binary operation. cmp and test only set
// flags, everything else also stores the result into the destination.
func (e *Emulator) executeArith(inst *insts.Instruction, store bool) error {
	src, dst := inst.Src(), inst.Dst()

	size, err := e.resolver.OperandSize(src, dst, inst.Suffix)
	if err != nil {
		return err
	}
	a, err := e.resolver.ReadOperand(dst, size)
	if err != nil {
		return err
	}
	b, err := e.resolver.ReadOperand(src, size)
	if err != nil {
		return err
	}

	var result uint64
	switch inst.Op {
	case insts.OpADD:
		result = e.alu.Add(a, b, size)
	case insts.OpSUB, insts.OpCMP:
		result = e.alu.Sub(a, b, size)
	case insts.OpAND, insts.OpTEST:
		result = e.alu.And(a, b, size)
	case insts.OpOR:
		result = e.alu.Or(a, b, size)
	case insts.OpXOR:
		result = e.alu.Xor(a, b, size)
	}

	if !store {
		return nil
	}
	return e.resolver.WriteOperand(dst, size, result)
}

func (e *Emulator) executeUnary(inst *insts.Instruction) error {
	op := inst.Dst()

	size, err := e.resolver.UnarySize(op, inst.Suffix, insts.SizeNone)
	if err != nil {
		return err
	}
	v, err := e.resolver.ReadOperand(op, size)
	if err != nil {
		return err
	}

	switch inst.Op {
	case insts.OpINC:
		v = e.alu.Inc(v, size)
	case insts.OpDEC:
		v = e.alu.Dec(v, size)
	case insts.OpNEG:
		v = e.alu.Neg(v, size)
	case insts.OpNOT:
		v = e.alu.Not(v, size)
	}

	return e.resolver.WriteOperand(op, size, v)
}

func (e *Emulator) executePush(inst *insts.Instruction) error {
	op := inst.Dst()

	size, err := e.resolver.UnarySize(op, inst.Suffix, insts.SizeQuad)
	if err != nil {
		return err
	}
	v, err := e.resolver.ReadOperand(op, size)
	if err != nil {
		return err
	}
	e.push(v)
	return nil
}

func (e *Emulator) executePop(inst *insts.Instruction) error {
	op := inst.Dst()

	size, err := e.resolver.UnarySize(op, inst.Suffix, insts.SizeQuad)
	if err != nil {
		return err
	}
	sp := e.regFile.RSP()
	if err := e.resolver.WriteOperand(op, size, e.pop()); err != nil {
		e.regFile.SetRSP(sp)
		return err
	}
	return nil
}

// target computes the destination of jmp, jcc and call. A plain symbol or
// address is the target itself; a register or a '*' operand holds it.
func (e *Emulator) target(inst *insts.Instruction) (uint64, error) {
	switch op := inst.Dst().(type) {
	case *insts.Register:
		size, err := RegisterSize(op)
		if err != nil {
			return 0, err
		}
		return e.resolver.ReadOperand(op, size)
	case *insts.Memory:
		if inst.Indirect {
			return e.resolver.ReadOperand(op, insts.SizeQuad)
		}
		return e.resolver.ResolveAddress(op)
	default:
		return 0, fmt.Errorf("%w: branch target %v", ErrInvalidOperand, op)
	}
}

// executeCall pushes the address of the call itself; ret adds the
// instruction width when it returns.
func (e *Emulator) executeCall(inst *insts.Instruction) error {
	target, err := e.target(inst)
	if err != nil {
		return err
	}
	if sym, ok := e.symbols.SymbolAt(target); ok {
		log.Debugf("call %s at 0x%X", sym.Name, target)
	}
	e.push(e.regFile.RIP())
	e.branchUnit.Jump(target)
	return nil
}

func (e *Emulator) executeJump(inst *insts.Instruction) error {
	target, err := e.target(inst)
	if err != nil {
		return err
	}
	e.branchUnit.Jump(target)
	return nil
}

func (e *Emulator) executeJumpCond(inst *insts.Instruction) error {
	target, err := e.target(inst)
	if err != nil {
		return err
	}
	e.branchUnit.JumpCond(target, inst.Cond)
	return nil
}

// executeSyscall advances rip first, so the guest resumes after the
// syscall, then dispatches on rax.
func (e *Emulator) executeSyscall() StepResult {
	e.advance()

	r := e.syscallHandler.Handle()
	if r.Err != nil {
		return StepResult{Err: r.Err}
	}
	return StepResult{
		Exited:   r.Exited,
		ExitCode: r.ExitCode,
	}
}
