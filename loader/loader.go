// Package loader links parsed assembly into a memory image and installs it
// into an emulator.
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sarchlab/asmsim/asm"
	"github.com/sarchlab/asmsim/emu"
	"github.com/sarchlab/asmsim/insts"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("asmsim.loader")

// DefaultSymbolBase is where the first section is placed. Address 0 is
// never a valid symbol.
const DefaultSymbolBase = 0x400000

// DefaultStackTop is the default stack top address.
const DefaultStackTop = 0x7ffffffff000

// DefaultStackSize is the default stack size (8MB).
const DefaultStackSize = 8 * 1024 * 1024

// maxFill bounds a single .skip or .zero count.
const maxFill = 1 << 30

var (
	// ErrNoEntryPoint means the program has no instruction to start at.
	ErrNoEntryPoint = errors.New("no entry point")

	// ErrInvalidDirective means a data directive has a malformed argument.
	ErrInvalidDirective = errors.New("invalid directive")

	// ErrInvalidExpression means a symbol assignment could not be evaluated.
	ErrInvalidExpression = errors.New("invalid expression")
)

// Segment is the linked contents of one section.
type Segment struct {
	// Name is the section name.
	Name string
	// VirtAddr is the address of the first byte.
	VirtAddr uint64
	// Data holds the section bytes. Instruction slots hold instruction ids.
	Data []byte
	// Perm is the access granted to the whole segment.
	Perm emu.Permission
}

// End returns the address one past the last byte.
func (s *Segment) End() uint64 {
	return s.VirtAddr + uint64(len(s.Data))
}

// Program is a linked program ready to be installed.
type Program struct {
	// EntryPoint is the address where execution begins.
	EntryPoint uint64
	// Segments holds one segment per non-empty section, in layout order.
	Segments []Segment
	// Symbols holds every label, anonymous section symbol and constant.
	Symbols *emu.SymbolTable
	// Instructions maps instruction ids to instructions.
	Instructions []*insts.Instruction
	// Globals lists the names declared with .global.
	Globals []string
	// InitialSP is the initial stack pointer value.
	InitialSP uint64
	// StackSize is the size of the writable region below InitialSP.
	StackSize uint64
}

// Option configures Link.
type Option func(*options)

type options struct {
	symbolBase uint64
	stackTop   uint64
	stackSize  uint64
}

// WithSymbolBase sets the address of the first section.
func WithSymbolBase(base uint64) Option {
	return func(o *options) {
		o.symbolBase = base
	}
}

// WithStack sets the stack top and size.
func WithStack(top, size uint64) Option {
	return func(o *options) {
		o.stackTop = top
		o.stackSize = size
	}
}

// Load reads, parses and links an assembly source file.
func Load(path string, opts ...Option) (*Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}

	prog, err := asm.Parse(string(source))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return Link(prog, opts...)
}

// SectionPermission returns the access granted to a section by its name:
// rodata is readable, data and bss are writable, text is executable.
func SectionPermission(name string) (emu.Permission, bool) {
	name = strings.TrimPrefix(name, ".")
	switch {
	case strings.HasPrefix(name, "rodata"):
		return emu.PermRead, true
	case strings.HasPrefix(name, "data"), strings.HasPrefix(name, "bss"):
		return emu.PermReadWrite, true
	case strings.HasPrefix(name, "text"):
		return emu.PermExecute, true
	default:
		return emu.PermNone, false
	}
}

// Install writes the program image into the emulator's memory, applies the
// section permissions and points rip and rsp at the entry and stack.
func (p *Program) Install(e *emu.Emulator) {
	mem := e.Memory()
	for _, seg := range p.Segments {
		mem.WriteBytesUnchecked(seg.VirtAddr, seg.Data)
		mem.SetPermission(seg.VirtAddr, uint64(len(seg.Data)), seg.Perm)
	}
	if p.StackSize > 0 {
		mem.SetPermission(p.InitialSP-p.StackSize, p.StackSize, emu.PermReadWrite)
	}

	e.SetSymbolTable(p.Symbols)
	e.LoadInstructions(p.Instructions)
	e.RegFile().SetRIP(p.EntryPoint)
	e.RegFile().SetRSP(p.InitialSP)
}

// fixup is a data slot that refers to a symbol.
type fixup struct {
	segment int
	offset  int
	width   int
	name    string
	line    int
}

type linker struct {
	out     *Program
	symbols *emu.SymbolTable
	seg     *Segment
	segIdx  int
	current string
	fixups  []fixup

	firstInst uint64
}

// Link lays out every section of prog one after another, starting at the
// symbol base.
func Link(prog insts.Program, opts ...Option) (*Program, error) {
	o := options{
		symbolBase: DefaultSymbolBase,
		stackTop:   DefaultStackTop,
		stackSize:  DefaultStackSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	l := &linker{
		out: &Program{
			InitialSP: o.stackTop,
			StackSize: o.stackSize,
		},
		symbols: emu.NewSymbolTable(o.symbolBase),
	}
	l.out.Symbols = l.symbols

	for _, sec := range prog {
		if err := l.linkSection(sec); err != nil {
			return nil, err
		}
	}

	if err := l.applyFixups(); err != nil {
		return nil, err
	}

	entry, err := l.entryPoint()
	if err != nil {
		return nil, err
	}
	l.out.EntryPoint = entry

	return l.out, nil
}

func (l *linker) linkSection(sec *insts.Section) error {
	perm, ok := SectionPermission(sec.Name)
	if !ok {
		log.Warningf("section %q has no known permissions", sec.Name)
	}

	l.out.Segments = append(l.out.Segments, Segment{
		Name:     sec.Name,
		VirtAddr: l.symbols.Cursor(),
		Perm:     perm,
	})
	l.segIdx = len(l.out.Segments) - 1
	l.seg = &l.out.Segments[l.segIdx]
	l.current = ""

	for _, item := range sec.Items {
		if err := l.linkItem(sec.Name, item); err != nil {
			return fmt.Errorf("line %d: %w", item.SourceLine(), err)
		}
	}

	if len(l.seg.Data) == 0 {
		l.out.Segments = l.out.Segments[:l.segIdx]
	}
	return nil
}

func (l *linker) linkItem(section string, item insts.Item) error {
	switch it := item.(type) {
	case *insts.Label:
		if _, err := l.symbols.AddSymbol(it.Name, 0); err != nil {
			return err
		}
		l.current = it.Name
		return nil

	case *insts.Directive:
		return l.linkDirective(section, it)

	case *insts.Instruction:
		id := uint64(len(l.out.Instructions))
		if id == 0 {
			l.firstInst = l.symbols.Cursor()
		}
		l.out.Instructions = append(l.out.Instructions, it)
		slot := make([]byte, emu.InstructionWidth)
		binary.LittleEndian.PutUint64(slot, id)
		return l.place(section, slot)

	case *insts.SymbolAssignment:
		return l.assign(it)

	default:
		return fmt.Errorf("unexpected item %T", item)
	}
}

func (l *linker) linkDirective(section string, d *insts.Directive) error {
	switch d.Name {
	case insts.DirectiveGlobal:
		l.out.Globals = append(l.out.Globals, d.Args...)
		return nil

	case insts.DirectiveASCII, insts.DirectiveASCIZ:
		for _, arg := range d.Args {
			data, err := insts.DecodeEscapes(arg)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidDirective, err)
			}
			if d.Name == insts.DirectiveASCIZ {
				data = append(data, 0)
			}
			if err := l.place(section, data); err != nil {
				return err
			}
		}
		return nil

	case insts.DirectiveSkip:
		for _, arg := range d.Args {
			n, err := insts.ParseNumber(arg)
			if err != nil || n > maxFill {
				return fmt.Errorf("%w: .%s %s", ErrInvalidDirective, d.Name, arg)
			}
			if err := l.place(section, make([]byte, n)); err != nil {
				return err
			}
		}
		return nil

	default:
		return l.linkValues(section, d)
	}
}

// linkValues places .byte/.word/.long/.quad values. Symbol arguments are
// patched once every section has been laid out.
func (l *linker) linkValues(section string, d *insts.Directive) error {
	width := d.Name.ElementSize()
	if width == 0 {
		return fmt.Errorf("%w: .%s", ErrInvalidDirective, d.Name)
	}

	for _, arg := range d.Args {
		buf := make([]byte, 8)
		if v, err := insts.ParseNumber(arg); err == nil {
			binary.LittleEndian.PutUint64(buf, v)
		} else {
			l.fixups = append(l.fixups, fixup{
				segment: l.segIdx,
				offset:  len(l.seg.Data),
				width:   width,
				name:    arg,
				line:    d.Line,
			})
		}
		if err := l.place(section, buf[:width]); err != nil {
			return err
		}
	}
	return nil
}

// place appends data at the cursor, growing the current symbol. Bytes
// placed before any label belong to an anonymous per-section symbol.
func (l *linker) place(section string, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	name := l.current
	if name == "" {
		name = anonymousSymbol(section)
		l.current = name
		if !l.symbols.HasSymbol(name) {
			if _, err := l.symbols.AddSymbol(name, uint64(len(data))); err != nil {
				return err
			}
			l.seg.Data = append(l.seg.Data, data...)
			return nil
		}
	}

	if _, err := l.symbols.ExtendSymbol(name, uint64(len(data))); err != nil {
		return err
	}
	l.seg.Data = append(l.seg.Data, data...)
	return nil
}

func anonymousSymbol(section string) string {
	return "<" + strings.TrimPrefix(section, ".") + ">"
}

func (l *linker) applyFixups() error {
	for _, f := range l.fixups {
		v, err := l.symbols.Resolve(f.name)
		if err != nil {
			return fmt.Errorf("line %d: %w", f.line, err)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		copy(l.out.Segments[f.segment].Data[f.offset:], buf[:f.width])
	}
	return nil
}

// entryPoint picks _start, then main, then the first instruction.
func (l *linker) entryPoint() (uint64, error) {
	if len(l.out.Instructions) == 0 {
		return 0, ErrNoEntryPoint
	}

	for _, name := range []string{"_start", "main"} {
		if sym, err := l.symbols.FindSymbol(name); err == nil {
			return sym.Address, nil
		}
	}

	log.Debugf("no _start or main, entering at 0x%X", l.firstInst)
	return l.firstInst, nil
}
