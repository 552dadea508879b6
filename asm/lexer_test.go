package asm_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/asmsim/asm"
	"github.com/sarchlab/asmsim/insts"
)

func kinds(tokens []insts.Token) []insts.TokenKind {
	out := make([]insts.TokenKind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

var _ = Describe("Lexer", func() {
	It("should tokenize an instruction with a memory operand", func() {
		tokens, err := asm.Lex("movq -8(%rbp,%rcx,4), %rax")
		Expect(err).NotTo(HaveOccurred())
		Expect(kinds(tokens)).To(Equal([]insts.TokenKind{
			insts.TokenIdentifier,
			insts.TokenNumber,
			insts.TokenBracketOpen,
			insts.TokenRegister,
			insts.TokenComma,
			insts.TokenRegister,
			insts.TokenComma,
			insts.TokenNumber,
			insts.TokenBracketClose,
			insts.TokenComma,
			insts.TokenRegister,
			insts.TokenEOL,
		}))
		Expect(tokens[1].Text).To(Equal("-8"))
		Expect(tokens[3].Text).To(Equal("rbp"))
	})

	It("should split the size-of expression into dot, dash and identifier", func() {
		tokens, err := asm.Lex("len = .-msg")
		Expect(err).NotTo(HaveOccurred())
		Expect(kinds(tokens)).To(Equal([]insts.TokenKind{
			insts.TokenIdentifier,
			insts.TokenEqual,
			insts.TokenDot,
			insts.TokenDash,
			insts.TokenIdentifier,
			insts.TokenEOL,
		}))
	})

	It("should keep string escapes raw", func() {
		tokens, err := asm.Lex(`.ascii "a\"b\n"`)
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens[2].Kind).To(Equal(insts.TokenString))
		Expect(tokens[2].Text).To(Equal(`a\"b\n`))
	})

	It("should drop comments and track lines and columns", func() {
		tokens, err := asm.Lex("# header\n  ret # done\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(kinds(tokens)).To(Equal([]insts.TokenKind{
			insts.TokenEOL, insts.TokenIdentifier, insts.TokenEOL,
		}))
		Expect(tokens[1].Line).To(Equal(2))
		Expect(tokens[1].Column).To(Equal(3))
	})

	It("should lex immediates, symbol types and character literals", func() {
		tokens, err := asm.Lex(".type main, @function\nmovb $'A', %al")
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens[4].Kind).To(Equal(insts.TokenSymbolType))
		Expect(tokens[4].Text).To(Equal("function"))
		Expect(tokens[7].Kind).To(Equal(insts.TokenImmediate))
		Expect(tokens[8].Kind).To(Equal(insts.TokenChar))
		Expect(tokens[8].Text).To(Equal("A"))
	})

	It("should reject unterminated strings", func() {
		_, err := asm.Lex(`.ascii "oops`)
		Expect(errors.Is(err, asm.ErrUnterminatedString)).To(BeTrue())

		var syntaxErr *asm.SyntaxError
		Expect(errors.As(err, &syntaxErr)).To(BeTrue())
		Expect(syntaxErr.Line).To(Equal(1))
		Expect(syntaxErr.Column).To(Equal(8))
	})

	It("should reject unexpected characters", func() {
		_, err := asm.Lex("mov ?, %rax")
		Expect(errors.Is(err, asm.ErrUnexpectedChar)).To(BeTrue())
	})
})
