package insts

import (
	"fmt"
	"strings"
)

// Item is an entry of a section: *Label, *Directive, *SymbolAssignment or
// *Instruction.
type Item interface {
	SourceLine() int
	isItem()
}

// Label marks the current location with a name.
type Label struct {
	Name string
	Line int
}

// DirectiveName identifies an assembler directive that produces data or
// metadata.
type DirectiveName uint8

// Directives understood by the linker.
const (
	DirectiveGlobal DirectiveName = iota
	DirectiveASCII
	DirectiveASCIZ
	DirectiveSkip
	DirectiveByte
	DirectiveWord
	DirectiveLong
	DirectiveQuad
)

var directiveNames = map[string]DirectiveName{
	"global": DirectiveGlobal,
	"globl":  DirectiveGlobal,
	"ascii":  DirectiveASCII,
	"asciz":  DirectiveASCIZ,
	"string": DirectiveASCIZ,
	"skip":   DirectiveSkip,
	"zero":   DirectiveSkip,
	"byte":   DirectiveByte,
	"word":   DirectiveWord,
	"short":  DirectiveWord,
	"long":   DirectiveLong,
	"int":    DirectiveLong,
	"quad":   DirectiveQuad,
}

// LookupDirective maps a directive name (without the dot) to its value.
func LookupDirective(name string) (DirectiveName, bool) {
	d, ok := directiveNames[name]
	return d, ok
}

// ElementSize returns the per-value width of the data directives
// byte/word/long/quad, and 0 for everything else.
func (d DirectiveName) ElementSize() int {
	switch d {
	case DirectiveByte:
		return 1
	case DirectiveWord:
		return 2
	case DirectiveLong:
		return 4
	case DirectiveQuad:
		return 8
	default:
		return 0
	}
}

func (d DirectiveName) String() string {
	switch d {
	case DirectiveGlobal:
		return "global"
	case DirectiveASCII:
		return "ascii"
	case DirectiveASCIZ:
		return "asciz"
	case DirectiveSkip:
		return "skip"
	case DirectiveByte:
		return "byte"
	case DirectiveWord:
		return "word"
	case DirectiveLong:
		return "long"
	case DirectiveQuad:
		return "quad"
	default:
		return "unknown"
	}
}

// Directive is a data or metadata directive with its raw arguments.
// String arguments are kept undecoded (escape sequences intact).
type Directive struct {
	Name DirectiveName
	Args []string
	Line int
}

// SymbolAssignment is "name = expression".
type SymbolAssignment struct {
	Name string
	Expr []Token
	Line int
}

// IsSizeOf reports whether the expression has the ".-symbol" form and
// returns the symbol.
func (s *SymbolAssignment) IsSizeOf() (string, bool) {
	if len(s.Expr) == 3 &&
		s.Expr[0].Kind == TokenDot &&
		s.Expr[1].Kind == TokenDash &&
		s.Expr[2].Kind == TokenIdentifier {
		return s.Expr[2].Text, true
	}
	return "", false
}

// ExprText joins the expression lexemes back into source text.
func (s *SymbolAssignment) ExprText() string {
	parts := make([]string, 0, len(s.Expr))
	for _, t := range s.Expr {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

// Instruction is a parsed instruction. Operands are in AT&T order: the
// destination, when present, is last.
type Instruction struct {
	Mnemonic
	Operands []Operand
	Indirect bool // '*' before a jmp/call target
	Line     int
}

// Src returns the first operand of a two-operand instruction.
func (i *Instruction) Src() Operand {
	if len(i.Operands) < 2 {
		return nil
	}
	return i.Operands[0]
}

// Dst returns the last operand, or nil when there is none.
func (i *Instruction) Dst() Operand {
	if len(i.Operands) == 0 {
		return nil
	}
	return i.Operands[len(i.Operands)-1]
}

func (i *Instruction) String() string {
	name := i.Name
	if name == "" {
		name = i.Op.String()
		if i.Op == OpJCC {
			name = "j" + i.Cond.String()
		}
		name += i.Suffix.String()
	}
	if len(i.Operands) == 0 {
		return name
	}
	ops := make([]string, len(i.Operands))
	for n, op := range i.Operands {
		ops[n] = op.String()
	}
	if i.Indirect {
		ops[0] = "*" + ops[0]
	}
	return fmt.Sprintf("%s %s", name, strings.Join(ops, ", "))
}

func (l *Label) SourceLine() int            { return l.Line }
func (d *Directive) SourceLine() int        { return d.Line }
func (s *SymbolAssignment) SourceLine() int { return s.Line }
func (i *Instruction) SourceLine() int      { return i.Line }

func (*Label) isItem()            {}
func (*Directive) isItem()        {}
func (*SymbolAssignment) isItem() {}
func (*Instruction) isItem()      {}

// Section is a named, ordered list of items.
type Section struct {
	Name  string
	Items []Item
}

// Program is the parsed form of a source file.
type Program []*Section
