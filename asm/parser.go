package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/asmsim/insts"
)

// DefaultSection receives items that appear before any section directive.
const DefaultSection = "text"

// ignoredDirectives are accepted and skipped with a warning.
var ignoredDirectives = map[string]bool{
	"type":        true,
	"size":        true,
	"file":        true,
	"ident":       true,
	"align":       true,
	"p2align":     true,
	"balign":      true,
	"att_syntax":  true,
	"loc":         true,
	"local":       true,
	"weak":        true,
	"hidden":      true,
	"addrsig":     true,
	"addrsig_sym": true,
}

// Parser builds sections out of a token stream.
type Parser struct {
	tokens  []insts.Token
	pos     int
	decoder *insts.Decoder

	sections []*insts.Section
	current  *insts.Section
}

// NewParser creates a parser over tokens produced by Lex.
func NewParser(tokens []insts.Token) *Parser {
	return &Parser{
		tokens:  tokens,
		decoder: insts.NewDecoder(),
	}
}

// Parse lexes and parses source text.
func Parse(source string) (insts.Program, error) {
	tokens, err := Lex(source)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse()
}

// Parse consumes the whole token stream.
func (p *Parser) Parse() (insts.Program, error) {
	for !p.done() {
		if err := p.parseStatement(); err != nil {
			return nil, err
		}
	}
	return p.sections, nil
}

func (p *Parser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *Parser) cur() insts.Token {
	if p.done() {
		return insts.Token{Kind: insts.TokenEOL}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek(n int) insts.Token {
	if p.pos+n >= len(p.tokens) {
		return insts.Token{Kind: insts.TokenEOL}
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) curIs(k insts.TokenKind) bool {
	return p.cur().Kind == k
}

func (p *Parser) next() insts.Token {
	t := p.cur()
	p.pos++
	return t
}

func (p *Parser) expect(k insts.TokenKind) (insts.Token, error) {
	if !p.curIs(k) {
		return insts.Token{}, p.errorAt(p.cur(), fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedToken, k, p.cur().Kind))
	}
	return p.next(), nil
}

func (p *Parser) errorAt(t insts.Token, err error) error {
	return &SyntaxError{Line: t.Line, Column: t.Column, Text: strings.TrimSpace(t.Text), Err: err}
}

// atStatementEnd reports whether the current token ends a statement.
func (p *Parser) atStatementEnd() bool {
	return p.curIs(insts.TokenEOL) || p.curIs(insts.TokenSemicolon)
}

// endStatement consumes the statement terminator.
func (p *Parser) endStatement() error {
	if !p.atStatementEnd() {
		return p.errorAt(p.cur(), fmt.Errorf("%w: expected end of statement, got %s", ErrUnexpectedToken, p.cur().Kind))
	}
	p.next()
	return nil
}

func (p *Parser) skipStatement() {
	for !p.done() && !p.atStatementEnd() {
		p.next()
	}
	if !p.done() {
		p.next()
	}
}

func (p *Parser) openSection(name string) {
	for _, s := range p.sections {
		if s.Name == name {
			p.current = s
			return
		}
	}
	p.current = &insts.Section{Name: name}
	p.sections = append(p.sections, p.current)
}

func (p *Parser) addItem(item insts.Item) {
	if p.current == nil {
		p.openSection(DefaultSection)
	}
	p.current.Items = append(p.current.Items, item)
}

func (p *Parser) parseStatement() error {
	t := p.cur()
	switch {
	case p.atStatementEnd():
		p.next()
		return nil

	// .name: is a local label, anything else after a dot is a directive.
	case t.Kind == insts.TokenDot && p.peek(1).Kind == insts.TokenIdentifier &&
		p.peek(2).Kind == insts.TokenColon:
		p.addItem(&insts.Label{Name: "." + p.peek(1).Text, Line: t.Line})
		p.pos += 3
		return nil

	case t.Kind == insts.TokenDot:
		p.next()
		return p.parseDirective()

	case t.Kind == insts.TokenIdentifier && p.peek(1).Kind == insts.TokenColon:
		p.addItem(&insts.Label{Name: t.Text, Line: t.Line})
		p.pos += 2
		return nil

	case t.Kind == insts.TokenIdentifier && p.peek(1).Kind == insts.TokenEqual:
		return p.parseAssignment()

	case t.Kind == insts.TokenIdentifier:
		return p.parseInstruction()

	default:
		return p.errorAt(t, ErrUnexpectedToken)
	}
}

func (p *Parser) parseAssignment() error {
	name := p.next()
	p.next() // '='

	var expr []insts.Token
	for !p.done() && !p.atStatementEnd() {
		expr = append(expr, p.next())
	}
	if len(expr) == 0 {
		return p.errorAt(name, fmt.Errorf("%w: empty expression", ErrUnexpectedToken))
	}

	p.addItem(&insts.SymbolAssignment{Name: name.Text, Expr: expr, Line: name.Line})
	return p.endStatement()
}

func (p *Parser) parseDirective() error {
	nameTok, err := p.expect(insts.TokenIdentifier)
	if err != nil {
		return err
	}
	name := nameTok.Text

	switch name {
	case "text", "data", "bss", "rodata":
		p.openSection(name)
		return p.endStatement()
	case "section":
		return p.parseSection(nameTok)
	case "intel_syntax":
		return p.errorAt(nameTok, fmt.Errorf("%w: intel syntax", ErrUnsupportedSyntax))
	}

	if ignoredDirectives[name] || strings.HasPrefix(name, "cfi_") {
		log.Warningf("line %d: ignoring directive .%s", nameTok.Line, name)
		p.skipStatement()
		return nil
	}

	d, ok := insts.LookupDirective(name)
	if !ok {
		log.Warningf("line %d: unknown directive .%s", nameTok.Line, name)
		p.skipStatement()
		return nil
	}

	dir := &insts.Directive{Name: d, Line: nameTok.Line}
	switch d {
	case insts.DirectiveGlobal:
		sym, err := p.parseSymbolName()
		if err != nil {
			return err
		}
		dir.Args = append(dir.Args, sym)
	case insts.DirectiveASCII, insts.DirectiveASCIZ:
		if err := p.parseArgList(dir, p.parseStringArg); err != nil {
			return err
		}
	case insts.DirectiveSkip:
		if err := p.parseArgList(dir, p.parseNumberArg); err != nil {
			return err
		}
	case insts.DirectiveByte, insts.DirectiveWord, insts.DirectiveLong, insts.DirectiveQuad:
		if err := p.parseArgList(dir, p.parseValueArg); err != nil {
			return err
		}
	}

	p.addItem(dir)
	return p.endStatement()
}

// parseSection handles ".section .name[, flags...]".
func (p *Parser) parseSection(at insts.Token) error {
	if p.curIs(insts.TokenDot) {
		p.next()
	}
	nameTok, err := p.expect(insts.TokenIdentifier)
	if err != nil {
		return err
	}
	p.openSection(nameTok.Text)

	if p.curIs(insts.TokenComma) {
		log.Debugf("line %d: ignoring flags of section %s", at.Line, nameTok.Text)
		for !p.done() && !p.atStatementEnd() {
			p.next()
		}
	}
	return p.endStatement()
}

func (p *Parser) parseArgList(dir *insts.Directive, parseArg func() (string, error)) error {
	if p.atStatementEnd() {
		return p.errorAt(p.cur(), fmt.Errorf("%w: .%s", ErrMissingDirectiveArg, dir.Name))
	}
	for {
		arg, err := parseArg()
		if err != nil {
			return err
		}
		dir.Args = append(dir.Args, arg)
		if !p.curIs(insts.TokenComma) {
			return nil
		}
		p.next()
	}
}

func (p *Parser) parseStringArg() (string, error) {
	t, err := p.expect(insts.TokenString)
	if err != nil {
		return "", err
	}
	return t.Text, nil
}

func (p *Parser) parseNumberArg() (string, error) {
	t, err := p.expect(insts.TokenNumber)
	if err != nil {
		return "", err
	}
	if _, err := insts.ParseNumber(t.Text); err != nil {
		return "", p.errorAt(t, ErrInvalidNumber)
	}
	return t.Text, nil
}

// parseValueArg accepts a number, a character literal (converted to its
// code) or a symbol name.
func (p *Parser) parseValueArg() (string, error) {
	switch t := p.cur(); t.Kind {
	case insts.TokenNumber:
		return p.parseNumberArg()
	case insts.TokenChar:
		p.next()
		v, err := charValue(t.Text)
		if err != nil {
			return "", p.errorAt(t, err)
		}
		return strconv.FormatUint(v, 10), nil
	default:
		return p.parseSymbolName()
	}
}

// parseSymbolName reads "name" or ".name".
func (p *Parser) parseSymbolName() (string, error) {
	prefix := ""
	if p.curIs(insts.TokenDot) && p.peek(1).Kind == insts.TokenIdentifier {
		p.next()
		prefix = "."
	}
	t, err := p.expect(insts.TokenIdentifier)
	if err != nil {
		return "", err
	}
	return prefix + t.Text, nil
}

func (p *Parser) parseInstruction() error {
	t := p.next()
	m := p.decoder.Decode(t.Text)
	if m.Op == insts.OpUnknown {
		return p.errorAt(t, ErrUnknownMnemonic)
	}

	inst := &insts.Instruction{Mnemonic: m, Line: t.Line}
	if !p.atStatementEnd() {
		for {
			if p.curIs(insts.TokenStar) {
				p.next()
				inst.Indirect = true
			}
			op, err := p.parseOperand()
			if err != nil {
				return err
			}
			inst.Operands = append(inst.Operands, op)
			if !p.curIs(insts.TokenComma) {
				break
			}
			p.next()
		}
	}

	if len(inst.Operands) != m.Format.Operands() {
		return p.errorAt(t, fmt.Errorf("%w: %s takes %d, got %d",
			ErrOperandCount, t.Text, m.Format.Operands(), len(inst.Operands)))
	}

	p.addItem(inst)
	return p.endStatement()
}

func (p *Parser) parseOperand() (insts.Operand, error) {
	switch t := p.cur(); t.Kind {
	case insts.TokenRegister:
		p.next()
		return &insts.Register{Name: strings.ToLower(t.Text)}, nil
	case insts.TokenImmediate:
		p.next()
		return p.parseImmediate()
	case insts.TokenNumber, insts.TokenIdentifier, insts.TokenDot, insts.TokenBracketOpen:
		return p.parseMemory()
	default:
		return nil, p.errorAt(t, ErrInvalidOperand)
	}
}

func (p *Parser) parseImmediate() (insts.Operand, error) {
	switch t := p.cur(); t.Kind {
	case insts.TokenNumber:
		p.next()
		v, err := insts.ParseNumber(t.Text)
		if err != nil {
			return nil, p.errorAt(t, ErrInvalidNumber)
		}
		return &insts.Immediate{Value: v}, nil
	case insts.TokenChar:
		p.next()
		v, err := charValue(t.Text)
		if err != nil {
			return nil, p.errorAt(t, err)
		}
		return &insts.Immediate{Value: v}, nil
	case insts.TokenIdentifier, insts.TokenDot:
		name, err := p.parseSymbolName()
		if err != nil {
			return nil, err
		}
		return &insts.Immediate{Symbol: name}, nil
	default:
		return nil, p.errorAt(t, ErrInvalidOperand)
	}
}

// parseMemory parses disp(base,index,scale). A bare symbol or number
// without parentheses is a memory operand with only a displacement.
func (p *Parser) parseMemory() (insts.Operand, error) {
	mem := &insts.Memory{}

	switch t := p.cur(); t.Kind {
	case insts.TokenNumber:
		p.next()
		v, err := insts.ParseNumber(t.Text)
		if err != nil {
			return nil, p.errorAt(t, ErrInvalidNumber)
		}
		mem.Disp = int64(v)
	case insts.TokenIdentifier, insts.TokenDot:
		name, err := p.parseSymbolName()
		if err != nil {
			return nil, err
		}
		mem.DispSymbol = name
		if err := p.parseSymbolOffset(mem); err != nil {
			return nil, err
		}
	}

	if !p.curIs(insts.TokenBracketOpen) {
		return mem, nil
	}
	open := p.next()

	if p.curIs(insts.TokenRegister) {
		mem.Base = strings.ToLower(p.next().Text)
	}
	if p.curIs(insts.TokenComma) {
		p.next()
		idx, err := p.expect(insts.TokenRegister)
		if err != nil {
			return nil, err
		}
		mem.Index = strings.ToLower(idx.Text)
		if p.curIs(insts.TokenComma) {
			p.next()
			st, err := p.expect(insts.TokenNumber)
			if err != nil {
				return nil, err
			}
			scale, err := strconv.ParseUint(st.Text, 10, 8)
			if err != nil || (scale != 1 && scale != 2 && scale != 4 && scale != 8) {
				return nil, p.errorAt(st, fmt.Errorf("%w: scale must be 1, 2, 4 or 8", ErrInvalidOperand))
			}
			mem.Scale = uint8(scale)
		}
	}
	if _, err := p.expect(insts.TokenBracketClose); err != nil {
		return nil, err
	}
	if mem.Base == "" && mem.Index == "" {
		return nil, p.errorAt(open, fmt.Errorf("%w: empty address", ErrInvalidOperand))
	}
	return mem, nil
}

// parseSymbolOffset handles "sym+8" and "sym-8".
func (p *Parser) parseSymbolOffset(mem *insts.Memory) error {
	switch {
	case p.curIs(insts.TokenPlus):
		p.next()
		t, err := p.expect(insts.TokenNumber)
		if err != nil {
			return err
		}
		v, err := insts.ParseNumber(t.Text)
		if err != nil {
			return p.errorAt(t, ErrInvalidNumber)
		}
		mem.Disp = int64(v)
	case p.curIs(insts.TokenNumber) && strings.HasPrefix(p.cur().Text, "-"):
		t := p.next()
		v, err := insts.ParseNumber(t.Text)
		if err != nil {
			return p.errorAt(t, ErrInvalidNumber)
		}
		mem.Disp = int64(v)
	}
	return nil
}

// charValue decodes the body of a character literal.
func charValue(body string) (uint64, error) {
	b, err := insts.DecodeEscapes(body)
	if err != nil || len(b) != 1 {
		return 0, fmt.Errorf("%w: bad character literal %q", ErrInvalidOperand, body)
	}
	return uint64(b[0]), nil
}
