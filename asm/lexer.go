// Package asm turns AT&T-syntax x86-64 assembly text into the section/item
// form defined in package insts.
package asm

import (
	"github.com/sarchlab/asmsim/insts"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("asmsim.asm")

// Lexer tokenizes assembly source. Newlines are significant and produce
// TokenEOL; everything after '#' on a line is a comment.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current character
	line    int  // current line (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		l.col++
		return
	}
	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) errorf(line, col int, text string, err error) error {
	return &SyntaxError{Line: line, Column: col, Text: text, Err: err}
}

// NextToken returns the next token. ok is false once the input is exhausted.
func (l *Lexer) NextToken() (tok insts.Token, ok bool, err error) {
	l.skipBlanks()

	if l.atEOF() {
		return insts.Token{}, false, nil
	}

	line, col := l.line, l.col
	single := func(kind insts.TokenKind) (insts.Token, bool, error) {
		t := insts.Token{Kind: kind, Text: string(l.ch), Line: line, Column: col}
		l.readChar()
		return t, true, nil
	}

	switch c := l.ch; {
	case c == '\n':
		t := insts.Token{Kind: insts.TokenEOL, Text: "\n", Line: line, Column: col}
		l.readChar()
		return t, true, nil
	case c == '.':
		return single(insts.TokenDot)
	case c == ',':
		return single(insts.TokenComma)
	case c == ';':
		return single(insts.TokenSemicolon)
	case c == ':':
		return single(insts.TokenColon)
	case c == '(':
		return single(insts.TokenBracketOpen)
	case c == ')':
		return single(insts.TokenBracketClose)
	case c == '=':
		return single(insts.TokenEqual)
	case c == '+':
		return single(insts.TokenPlus)
	case c == '*':
		return single(insts.TokenStar)
	case c == '$':
		return single(insts.TokenImmediate)
	case c == '-':
		if isDigit(l.peekChar()) {
			l.readChar()
			return l.readNumber(line, col, "-"), true, nil
		}
		return single(insts.TokenDash)
	case c == '%':
		l.readChar()
		name := l.readWord()
		if name == "" {
			return insts.Token{}, false, l.errorf(line, col, "%", ErrUnexpectedChar)
		}
		return insts.Token{Kind: insts.TokenRegister, Text: name, Line: line, Column: col}, true, nil
	case c == '@':
		l.readChar()
		name := l.readWord()
		return insts.Token{Kind: insts.TokenSymbolType, Text: name, Line: line, Column: col}, true, nil
	case c == '"':
		return l.readQuoted('"', insts.TokenString, line, col)
	case c == '\'':
		return l.readQuoted('\'', insts.TokenChar, line, col)
	case isDigit(c):
		return l.readNumber(line, col, ""), true, nil
	case isIdentStart(c):
		word := l.readWord()
		return insts.Token{Kind: insts.TokenIdentifier, Text: word, Line: line, Column: col}, true, nil
	default:
		return insts.Token{}, false, l.errorf(line, col, string(c), ErrUnexpectedChar)
	}
}

// skipBlanks skips spaces, tabs, carriage returns and comments, stopping at
// a newline.
func (l *Lexer) skipBlanks() {
	for !l.atEOF() {
		switch l.ch {
		case ' ', '\t', '\r', '\f', '\v':
			l.readChar()
		case '#':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

// readWord reads identifier characters. Dots are allowed after the first
// character so names like "rodata.str1.1" and "L.loop" stay one token.
func (l *Lexer) readWord() string {
	start := l.pos
	for !l.atEOF() && (isIdentChar(l.ch) || (l.ch == '.' && l.pos > start)) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readNumber(line, col int, prefix string) insts.Token {
	start := l.pos
	for !l.atEOF() && isIdentChar(l.ch) {
		l.readChar()
	}
	return insts.Token{Kind: insts.TokenNumber, Text: prefix + l.input[start:l.pos], Line: line, Column: col}
}

// readQuoted reads a string or character literal. The text is returned
// raw, with escape sequences left in place.
func (l *Lexer) readQuoted(quote byte, kind insts.TokenKind, line, col int) (insts.Token, bool, error) {
	l.readChar()
	start := l.pos
	for {
		if l.atEOF() || l.ch == '\n' {
			return insts.Token{}, false, l.errorf(line, col, l.input[start:l.pos], ErrUnterminatedString)
		}
		if l.ch == '\\' {
			l.readChar()
			if l.atEOF() {
				continue
			}
			l.readChar()
			continue
		}
		if l.ch == quote {
			break
		}
		l.readChar()
	}
	text := l.input[start:l.pos]
	l.readChar()
	return insts.Token{Kind: kind, Text: text, Line: line, Column: col}, true, nil
}

// Lex tokenizes the whole input. The result always ends with TokenEOL.
func Lex(input string) ([]insts.Token, error) {
	l := NewLexer(input)
	var tokens []insts.Token
	for {
		tok, ok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		tokens = append(tokens, tok)
	}

	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != insts.TokenEOL {
		tokens = append(tokens, insts.Token{Kind: insts.TokenEOL, Text: "\n", Line: l.line, Column: l.col})
	}

	log.Debugf("lexed %d tokens", len(tokens))
	return tokens, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '@'
}
