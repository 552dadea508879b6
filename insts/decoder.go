// Package insts provides x86-64 instruction and program definitions.
package insts

import "strings"

// Op represents an x86-64 opcode.
type Op uint16

// x86-64 opcodes.
const (
	OpUnknown Op = iota
	OpMOV
	OpLEA
	OpADD
	OpSUB
	OpCMP
	OpXOR
	OpAND
	OpOR
	OpTEST
	OpINC
	OpDEC
	OpNEG
	OpNOT
	OpPUSH
	OpPOP
	OpCALL
	OpRET
	OpJMP
	OpJCC
	OpLEAVE
	OpHLT
	OpSYSCALL
	OpNOP
)

var opNames = [...]string{
	OpUnknown: "unknown",
	OpMOV:     "mov",
	OpLEA:     "lea",
	OpADD:     "add",
	OpSUB:     "sub",
	OpCMP:     "cmp",
	OpXOR:     "xor",
	OpAND:     "and",
	OpOR:      "or",
	OpTEST:    "test",
	OpINC:     "inc",
	OpDEC:     "dec",
	OpNEG:     "neg",
	OpNOT:     "not",
	OpPUSH:    "push",
	OpPOP:     "pop",
	OpCALL:    "call",
	OpRET:     "ret",
	OpJMP:     "jmp",
	OpJCC:     "jcc",
	OpLEAVE:   "leave",
	OpHLT:     "hlt",
	OpSYSCALL: "syscall",
	OpNOP:     "nop",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Format represents the operand shape of an instruction.
type Format uint8

// Instruction formats.
const (
	FormatUnknown    Format = iota
	FormatNone              // No operands (ret, leave, hlt, syscall, nop)
	FormatUnary             // One operand (push, pop, inc, dec, neg, not)
	FormatBinary            // Source and destination (mov, add, ...)
	FormatBranch            // Unconditional transfer to a target (jmp, call)
	FormatBranchCond        // Conditional jump (jcc)
)

// Operands returns the number of operands an instruction of this format takes.
func (f Format) Operands() int {
	switch f {
	case FormatUnary, FormatBranch, FormatBranchCond:
		return 1
	case FormatBinary:
		return 2
	default:
		return 0
	}
}

// Size is an operand width, spelled as an AT&T size suffix.
type Size uint8

// Operand sizes.
const (
	SizeNone Size = iota
	SizeByte      // b, 8 bits
	SizeWord      // w, 16 bits
	SizeLong      // l, 32 bits
	SizeQuad      // q, 64 bits
)

// Bytes returns the width in bytes, 0 for SizeNone.
func (s Size) Bytes() int {
	switch s {
	case SizeByte:
		return 1
	case SizeWord:
		return 2
	case SizeLong:
		return 4
	case SizeQuad:
		return 8
	default:
		return 0
	}
}

// Bits returns the width in bits.
func (s Size) Bits() int {
	return s.Bytes() * 8
}

// Mask returns a mask covering the low Bits() bits.
func (s Size) Mask() uint64 {
	if s == SizeQuad {
		return ^uint64(0)
	}
	return (uint64(1) << s.Bits()) - 1
}

func (s Size) String() string {
	switch s {
	case SizeByte:
		return "b"
	case SizeWord:
		return "w"
	case SizeLong:
		return "l"
	case SizeQuad:
		return "q"
	default:
		return ""
	}
}

// SizeFromBytes converts a byte width to a Size.
func SizeFromBytes(n int) Size {
	switch n {
	case 1:
		return SizeByte
	case 2:
		return SizeWord
	case 4:
		return SizeLong
	case 8:
		return SizeQuad
	default:
		return SizeNone
	}
}

func sizeFromSuffix(c byte) Size {
	switch c {
	case 'b':
		return SizeByte
	case 'w':
		return SizeWord
	case 'l':
		return SizeLong
	case 'q':
		return SizeQuad
	default:
		return SizeNone
	}
}

// Mnemonic is a decoded instruction name.
type Mnemonic struct {
	Name   string // Text as written in the source
	Op     Op     // Operation code
	Format Format // Operand shape
	Cond   Cond   // Condition code for OpJCC
	Suffix Size   // Explicit size suffix, SizeNone when absent
}

type opInfo struct {
	op           Op
	format       Format
	allowsSuffix bool
}

var mnemonicTable = map[string]opInfo{
	"mov":     {OpMOV, FormatBinary, true},
	"lea":     {OpLEA, FormatBinary, true},
	"add":     {OpADD, FormatBinary, true},
	"sub":     {OpSUB, FormatBinary, true},
	"cmp":     {OpCMP, FormatBinary, true},
	"xor":     {OpXOR, FormatBinary, true},
	"and":     {OpAND, FormatBinary, true},
	"or":      {OpOR, FormatBinary, true},
	"test":    {OpTEST, FormatBinary, true},
	"inc":     {OpINC, FormatUnary, true},
	"dec":     {OpDEC, FormatUnary, true},
	"neg":     {OpNEG, FormatUnary, true},
	"not":     {OpNOT, FormatUnary, true},
	"push":    {OpPUSH, FormatUnary, true},
	"pop":     {OpPOP, FormatUnary, true},
	"call":    {OpCALL, FormatBranch, true},
	"jmp":     {OpJMP, FormatBranch, true},
	"ret":     {OpRET, FormatNone, true},
	"leave":   {OpLEAVE, FormatNone, true},
	"hlt":     {OpHLT, FormatNone, false},
	"syscall": {OpSYSCALL, FormatNone, false},
	"nop":     {OpNOP, FormatNone, false},
}

// Decoder decodes textual mnemonics into structured form.
type Decoder struct{}

// NewDecoder creates a new mnemonic decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a mnemonic such as "movq", "jne" or "syscall".
// Unknown mnemonics decode to OpUnknown.
func (d *Decoder) Decode(word string) Mnemonic {
	name := strings.ToLower(word)
	m := Mnemonic{Name: word, Op: OpUnknown, Format: FormatUnknown}

	if info, ok := mnemonicTable[name]; ok {
		m.Op = info.op
		m.Format = info.format
		return m
	}

	// jcc before suffix stripping: "jb" and "jl" are conditions, not sizes
	if len(name) > 1 && name[0] == 'j' {
		if cond, ok := condSuffixes[name[1:]]; ok {
			m.Op = OpJCC
			m.Format = FormatBranchCond
			m.Cond = cond
			return m
		}
	}

	if len(name) > 1 {
		suffix := sizeFromSuffix(name[len(name)-1])
		info, ok := mnemonicTable[name[:len(name)-1]]
		if suffix != SizeNone && ok && info.allowsSuffix {
			m.Op = info.op
			m.Format = info.format
			m.Suffix = suffix
			return m
		}
	}

	return m
}

// IsMnemonic reports whether word decodes to a known instruction.
func (d *Decoder) IsMnemonic(word string) bool {
	return d.Decode(word).Op != OpUnknown
}
