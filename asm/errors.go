package asm

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by the lexer and parser. They are wrapped in a
// *SyntaxError carrying the source position.
var (
	ErrUnexpectedChar      = errors.New("unexpected character")
	ErrUnterminatedString  = errors.New("unterminated string literal")
	ErrUnexpectedToken     = errors.New("unexpected token")
	ErrUnknownMnemonic     = errors.New("unknown mnemonic")
	ErrOperandCount        = errors.New("wrong number of operands")
	ErrInvalidNumber       = errors.New("invalid number")
	ErrInvalidOperand      = errors.New("invalid operand")
	ErrUnsupportedSyntax   = errors.New("unsupported syntax")
	ErrMissingDirectiveArg = errors.New("missing directive argument")
)

// SyntaxError reports a lexing or parsing failure at a source position.
type SyntaxError struct {
	Line   int
	Column int
	Text   string // offending lexeme, if any
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("%d:%d: %v: %q", e.Line, e.Column, e.Err, e.Text)
	}
	return fmt.Sprintf("%d:%d: %v", e.Line, e.Column, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
