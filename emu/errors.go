package emu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/asmsim/insts"
)

// Sentinel errors of the emulator core.
var (
	ErrUnknownRegister      = errors.New("unknown register")
	ErrDuplicateSymbol      = errors.New("duplicate symbol")
	ErrUndefinedSymbol      = errors.New("undefined symbol")
	ErrImmediateDestination = errors.New("destination cannot be an immediate")
	ErrSizeMismatch         = errors.New("source and destination register sizes differ")
	ErrSuffixMismatch       = errors.New("size suffix does not match destination register")
	ErrMemoryToMemory       = errors.New("memory cannot be both source and destination")
	ErrSuffixRequired       = errors.New("size suffix required for immediate to memory")
	ErrUnknownSize          = errors.New("unable to determine operand size")
	ErrInvalidWidth         = errors.New("invalid access width")
	ErrInvalidOperand       = errors.New("invalid operand")
	ErrUnknownInstruction   = errors.New("no instruction at address")
	ErrMaxInstructions      = errors.New("max instructions reached")
)

// Access is the kind of a memory access.
type Access uint8

// Memory access kinds.
const (
	AccessRead Access = iota
	AccessWrite
	AccessExecute
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// AccessViolationError reports an access to a byte without the needed
// permission.
type AccessViolationError struct {
	Address uint64
	Access  Access
}

func (e *AccessViolationError) Error() string {
	return fmt.Sprintf("access violation: %s at 0x%X", e.Access, e.Address)
}

// UnknownSyscallError reports a syscall number with no handler.
type UnknownSyscallError struct {
	Number uint64
}

func (e *UnknownSyscallError) Error() string {
	return fmt.Sprintf("unknown syscall %d", e.Number)
}

// RuntimeError wraps a fatal error with the instruction that raised it.
type RuntimeError struct {
	RIP  uint64
	Inst *insts.Instruction // nil when the fetch itself failed
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Inst == nil {
		return fmt.Sprintf("rip=0x%X: %v", e.RIP, e.Err)
	}
	return fmt.Sprintf("line %d: %s (rip=0x%X): %v", e.Inst.Line, e.Inst, e.RIP, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
