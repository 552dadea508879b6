package emu

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/asmsim/insts"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("asmsim.emu")

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program terminated (via exit syscall).
	Exited bool

	// Halted is true if the program executed hlt.
	Halted bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Inst is the instruction that was executed, if one was fetched.
	Inst *insts.Instruction

	// Err is set if an error occurred during execution. It is always a
	// *RuntimeError.
	Err error
}

// Done reports whether execution cannot continue after this step.
func (r StepResult) Done() bool {
	return r.Exited || r.Halted || r.Err != nil
}

// Emulator executes a linked program instruction by instruction.
type Emulator struct {
	regFile        *RegFile
	memory         *Memory
	symbols        *SymbolTable
	syscallHandler SyscallHandler

	// Execution units
	alu        *ALU
	resolver   *OperandResolver
	branchUnit *BranchUnit

	// I/O
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// program maps instruction ids, as stored in memory, to instructions.
	program []*insts.Instruction

	observer AccessObserver

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithStderr sets a custom stderr writer.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithStdin sets the reader served to read(0, ...).
func WithStdin(r io.Reader) EmulatorOption {
	return func(e *Emulator) {
		e.stdin = r
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(handler SyscallHandler) EmulatorOption {
	return func(e *Emulator) {
		e.syscallHandler = handler
	}
}

// WithStackPointer sets the initial stack pointer value.
func WithStackPointer(sp uint64) EmulatorOption {
	return func(e *Emulator) {
		e.regFile.SetRSP(sp)
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithAccessObserver reports every guest data access, including stack
// pushes and pops, to o.
func WithAccessObserver(o AccessObserver) EmulatorOption {
	return func(e *Emulator) {
		e.observer = o
	}
}

// NewEmulator creates a new x86-64 emulator with empty memory and an empty
// symbol table.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		memory:  NewMemory(),
		symbols: NewSymbolTable(0),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.buildUnits()

	if e.syscallHandler == nil {
		e.syscallHandler = e.newDefaultSyscallHandler()
	}

	return e
}

func (e *Emulator) buildUnits() {
	e.alu = NewALU(e.regFile)
	e.branchUnit = NewBranchUnit(e.regFile)
	e.resolver = NewOperandResolver(e.regFile, e.memory, e.symbols)
	e.resolver.SetObserver(e.observer)
}

func (e *Emulator) newDefaultSyscallHandler() SyscallHandler {
	h := NewDefaultSyscallHandler(e.regFile, e.memory, e.stdout, e.stderr)
	h.SetStdin(e.stdin)
	return h
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// Symbols returns the emulator's symbol table.
func (e *Emulator) Symbols() *SymbolTable {
	return e.symbols
}

// Resolver returns the operand resolver.
func (e *Emulator) Resolver() *OperandResolver {
	return e.resolver
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// SetAccessObserver installs o as the data access observer, replacing any
// previous one.
func (e *Emulator) SetAccessObserver(o AccessObserver) {
	e.observer = o
	e.resolver.SetObserver(o)
}

// SetSymbolTable replaces the symbol table used to resolve operands.
func (e *Emulator) SetSymbolTable(t *SymbolTable) {
	e.symbols = t
	e.resolver = NewOperandResolver(e.regFile, e.memory, e.symbols)
	e.resolver.SetObserver(e.observer)
}

// LoadInstructions installs the instruction table. The instruction with id
// n is program[n].
func (e *Emulator) LoadInstructions(program []*insts.Instruction) {
	e.program = program
}

// Instruction returns the instruction with the given id.
func (e *Emulator) Instruction(id uint64) (*insts.Instruction, bool) {
	if id >= uint64(len(e.program)) {
		return nil, false
	}
	return e.program[id], true
}

// Reset clears registers, memory, symbols and the instruction table.
func (e *Emulator) Reset() {
	*e.regFile = RegFile{}
	e.memory = NewMemory()
	e.symbols = NewSymbolTable(0)
	e.program = nil
	e.instructionCount = 0

	e.buildUnits()
	if _, ok := e.syscallHandler.(*DefaultSyscallHandler); ok {
		e.syscallHandler = e.newDefaultSyscallHandler()
	}
}

// Close releases host files opened by the guest.
func (e *Emulator) Close() {
	if h, ok := e.syscallHandler.(*DefaultSyscallHandler); ok {
		h.FDTable().CloseAll()
	}
}

// Fetch returns the instruction at rip. rip must be executable.
func (e *Emulator) Fetch() (*insts.Instruction, error) {
	rip := e.regFile.RIP()
	if !e.memory.GetPermission(rip).Execute {
		return nil, &AccessViolationError{Address: rip, Access: AccessExecute}
	}

	id := e.memory.ReadUnchecked(rip, InstructionWidth)
	inst, ok := e.Instruction(id)
	if !ok {
		return nil, fmt.Errorf("%w 0x%X (id %d)", ErrUnknownInstruction, rip, id)
	}
	return inst, nil
}

// Step executes a single instruction.
// Returns a StepResult indicating whether execution should continue.
func (e *Emulator) Step() StepResult {
	rip := e.regFile.RIP()

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: &RuntimeError{RIP: rip, Err: ErrMaxInstructions}}
	}

	inst, err := e.Fetch()
	if err != nil {
		return StepResult{Err: &RuntimeError{RIP: rip, Err: err}}
	}

	result := e.execute(inst)
	result.Inst = inst
	if result.Err != nil {
		result.Err = &RuntimeError{RIP: rip, Inst: inst, Err: result.Err}
	}

	e.instructionCount++

	return result
}

// Run executes instructions until the program exits, halts or fails.
// A halted program reports exit code 0.
func (e *Emulator) Run() (int64, error) {
	for {
		result := e.Step()
		switch {
		case result.Err != nil:
			return -1, result.Err
		case result.Exited:
			return result.ExitCode, nil
		case result.Halted:
			return 0, nil
		}
	}
}

// IsAccessViolation reports whether err is, or wraps, an access violation.
func IsAccessViolation(err error) bool {
	var av *AccessViolationError
	return errors.As(err, &av)
}
