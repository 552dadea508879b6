package insts

import (
	"fmt"
	"strings"
)

// Operand is one instruction operand: *Register, *Immediate or *Memory.
type Operand interface {
	fmt.Stringer
	isOperand()
}

// Register names a register, without the leading '%'.
type Register struct {
	Name string
}

// Immediate is a '$' operand. It carries either a literal value or a symbol
// reference; Symbol is empty for literals.
type Immediate struct {
	Value  uint64
	Symbol string
}

// IsSymbol reports whether the immediate refers to a symbol.
func (i *Immediate) IsSymbol() bool {
	return i.Symbol != ""
}

// Memory is a disp(base,index,scale) operand. Absent registers are empty
// strings; Scale 0 means no scale was written and behaves as 1.
type Memory struct {
	Disp       int64
	DispSymbol string
	Base       string
	Index      string
	Scale      uint8
}

// HasDispSymbol reports whether the displacement is a symbol reference.
func (m *Memory) HasDispSymbol() bool {
	return m.DispSymbol != ""
}

// EffectiveScale returns the scale, defaulting to 1.
func (m *Memory) EffectiveScale() uint64 {
	if m.Scale == 0 {
		return 1
	}
	return uint64(m.Scale)
}

func (*Register) isOperand()  {}
func (*Immediate) isOperand() {}
func (*Memory) isOperand()    {}

func (r *Register) String() string {
	return "%" + r.Name
}

func (i *Immediate) String() string {
	if i.IsSymbol() {
		return "$" + i.Symbol
	}
	return fmt.Sprintf("$%d", int64(i.Value))
}

func (m *Memory) String() string {
	var sb strings.Builder
	switch {
	case m.HasDispSymbol():
		sb.WriteString(m.DispSymbol)
		if m.Disp != 0 {
			fmt.Fprintf(&sb, "%+d", m.Disp)
		}
	case m.Disp != 0 || (m.Base == "" && m.Index == ""):
		fmt.Fprintf(&sb, "%d", m.Disp)
	}
	if m.Base == "" && m.Index == "" {
		return sb.String()
	}
	sb.WriteByte('(')
	if m.Base != "" {
		sb.WriteString("%" + m.Base)
	}
	if m.Index != "" {
		sb.WriteString(",%" + m.Index)
		if m.Scale != 0 {
			fmt.Fprintf(&sb, ",%d", m.Scale)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}
