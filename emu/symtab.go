package emu

import (
	"fmt"
	"sort"
)

// Symbol binds a name to an address range.
type Symbol struct {
	Name    string
	Address uint64
	Size    uint64
}

// SymbolImmediate is a link-time constant, such as the size of a symbol.
type SymbolImmediate struct {
	Name  string
	Value uint64
}

// SymbolTable allocates addresses for symbols from a monotonically
// increasing cursor and holds the link-time constants.
type SymbolTable struct {
	symbols    map[string]*Symbol
	immediates []SymbolImmediate
	cursor     uint64
}

// NewSymbolTable creates a table whose first symbol is placed at base.
func NewSymbolTable(base uint64) *SymbolTable {
	return &SymbolTable{
		symbols: make(map[string]*Symbol),
		cursor:  base,
	}
}

// Cursor returns the address the next symbol will be placed at.
func (t *SymbolTable) Cursor() uint64 {
	return t.cursor
}

// AddSymbol places a new symbol of the given size at the cursor and returns
// its address.
func (t *SymbolTable) AddSymbol(name string, size uint64) (uint64, error) {
	if _, ok := t.symbols[name]; ok {
		return 0, fmt.Errorf("%w %q", ErrDuplicateSymbol, name)
	}
	addr := t.cursor
	t.symbols[name] = &Symbol{Name: name, Address: addr, Size: size}
	t.cursor += size
	return addr, nil
}

// ExtendSymbol grows an existing symbol by size bytes and returns the
// address of the appended bytes.
func (t *SymbolTable) ExtendSymbol(name string, size uint64) (uint64, error) {
	sym, ok := t.symbols[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUndefinedSymbol, name)
	}
	addr := t.cursor
	sym.Size += size
	t.cursor += size
	return addr, nil
}

// Advance moves the cursor without creating a symbol.
func (t *SymbolTable) Advance(size uint64) {
	t.cursor += size
}

// HasSymbol reports whether name is bound.
func (t *SymbolTable) HasSymbol(name string) bool {
	_, ok := t.symbols[name]
	return ok
}

// FindSymbol returns the symbol bound to name.
func (t *SymbolTable) FindSymbol(name string) (Symbol, error) {
	sym, ok := t.symbols[name]
	if !ok {
		return Symbol{}, fmt.Errorf("%w %q", ErrUndefinedSymbol, name)
	}
	return *sym, nil
}

// SymbolAt returns the symbol whose range contains addr.
func (t *SymbolTable) SymbolAt(addr uint64) (Symbol, bool) {
	for _, sym := range t.symbols {
		if addr >= sym.Address && addr < sym.Address+sym.Size {
			return *sym, true
		}
	}
	return Symbol{}, false
}

// Symbols returns all symbols ordered by address.
func (t *SymbolTable) Symbols() []Symbol {
	out := make([]Symbol, 0, len(t.symbols))
	for _, sym := range t.symbols {
		out = append(out, *sym)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// AddImmediate records a link-time constant.
func (t *SymbolTable) AddImmediate(name string, value uint64) error {
	if _, ok := t.FindImmediate(name); ok {
		return fmt.Errorf("%w %q", ErrDuplicateSymbol, name)
	}
	t.immediates = append(t.immediates, SymbolImmediate{Name: name, Value: value})
	return nil
}

// FindImmediate looks up a link-time constant.
func (t *SymbolTable) FindImmediate(name string) (uint64, bool) {
	for _, imm := range t.immediates {
		if imm.Name == name {
			return imm.Value, true
		}
	}
	return 0, false
}

// Immediates returns the link-time constants in definition order.
func (t *SymbolTable) Immediates() []SymbolImmediate {
	return append([]SymbolImmediate(nil), t.immediates...)
}

// Resolve returns the value a '$name' immediate stands for: a constant if
// one is recorded, otherwise the symbol's address.
func (t *SymbolTable) Resolve(name string) (uint64, error) {
	if v, ok := t.FindImmediate(name); ok {
		return v, nil
	}
	sym, err := t.FindSymbol(name)
	if err != nil {
		return 0, err
	}
	return sym.Address, nil
}
