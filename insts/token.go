package insts

// TokenKind classifies a lexical token.
type TokenKind uint8

// Token kinds.
const (
	TokenIdentifier TokenKind = iota
	TokenDot
	TokenComma
	TokenSemicolon
	TokenColon
	TokenDash
	TokenPlus
	TokenStar
	TokenNumber
	TokenString
	TokenChar
	TokenEOL
	TokenRegister     // %name, Text holds the name without '%'
	TokenImmediate    // '$' marker, the value follows as its own token
	TokenBracketOpen  // (
	TokenBracketClose // )
	TokenSymbolType   // @function, @object
	TokenEqual
)

var tokenKindNames = [...]string{
	TokenIdentifier:   "identifier",
	TokenDot:          "dot",
	TokenComma:        "comma",
	TokenSemicolon:    "semicolon",
	TokenColon:        "colon",
	TokenDash:         "dash",
	TokenPlus:         "plus",
	TokenStar:         "star",
	TokenNumber:       "number",
	TokenString:       "string",
	TokenChar:         "char",
	TokenEOL:          "eol",
	TokenRegister:     "register",
	TokenImmediate:    "immediate",
	TokenBracketOpen:  "(",
	TokenBracketClose: ")",
	TokenSymbolType:   "symbol type",
	TokenEqual:        "equal",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "unknown"
}

// Token is one lexeme with its source position (1-based line and column).
type Token struct {
	Kind   TokenKind
	Text   string
	Line   int
	Column int
}
