// Package filter implements the bulk reprocessing filter language.
//
// A filter is a whitespace-separated list of clauses, all of which must hold:
//   - Version bounds: wagl<1.2.3, fmask<=1.2.3, gqa>=0.4
//   - Equality: maturity=final, platform="landsat-8"
//
// Version-valued keys compare semantically; string keys compare literally.
package filter

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenEOF       TokenType = iota
	TokenIdent               // keys and bare values
	TokenString              // quoted values
	TokenEquals              // =
	TokenLess                // <
	TokenLessEq              // <=
	TokenGreater             // >
	TokenGreaterEq           // >=
)

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenIdent:
		return "IDENT"
	case TokenString:
		return "STRING"
	case TokenEquals:
		return "="
	case TokenLess:
		return "<"
	case TokenLessEq:
		return "<="
	case TokenGreater:
		return ">"
	case TokenGreaterEq:
		return ">="
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// Token is a single lexeme with its byte offset in the input.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Lexer tokenizes a filter expression.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a Lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()
	start := l.pos
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: start}, nil
	}
	c := l.input[l.pos]
	l.pos++
	switch c {
	case '=':
		return Token{Type: TokenEquals, Value: "=", Pos: start}, nil
	case '<':
		if l.peek() == '=' {
			l.pos++
			return Token{Type: TokenLessEq, Value: "<=", Pos: start}, nil
		}
		return Token{Type: TokenLess, Value: "<", Pos: start}, nil
	case '>':
		if l.peek() == '=' {
			l.pos++
			return Token{Type: TokenGreaterEq, Value: ">=", Pos: start}, nil
		}
		return Token{Type: TokenGreater, Value: ">", Pos: start}, nil
	case '"':
		return l.readString(start)
	}
	l.pos--
	if !isIdentChar(c) {
		return Token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", c)}
	}
	return l.readIdent(start), nil
}

func (l *Lexer) readString(start int) (Token, error) {
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		l.pos++
		switch c {
		case '"':
			return Token{Type: TokenString, Value: sb.String(), Pos: start}, nil
		case '\\':
			if l.pos < len(l.input) {
				sb.WriteByte(l.input[l.pos])
				l.pos++
				continue
			}
		}
		sb.WriteByte(c)
	}
	return Token{}, &SyntaxError{Pos: start, Msg: "unterminated string"}
}

func (l *Lexer) readIdent(start int) Token {
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	return Token{Type: TokenIdent, Value: l.input[start:l.pos], Pos: start}
}

func isIdentChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("_-.+:/", c) >= 0
}
