package filter

import (
	"fmt"
	"sort"
	"strings"
)

// Op is a clause comparison operator.
type Op int

const (
	OpEquals Op = iota
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
)

// String returns the operator's source form.
func (op Op) String() string {
	switch op {
	case OpEquals:
		return "="
	case OpLess:
		return "<"
	case OpLessEq:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEq:
		return ">="
	default:
		return "?"
	}
}

var tokenOps = map[TokenType]Op{
	TokenEquals:    OpEquals,
	TokenLess:      OpLess,
	TokenLessEq:    OpLessEq,
	TokenGreater:   OpGreater,
	TokenGreaterEq: OpGreaterEq,
}

type keyKind int

const (
	kindVersion keyKind = iota
	kindString
)

var supportedKeys = map[string]keyKind{
	"wagl":         kindVersion,
	"fmask":        kindVersion,
	"gqa":          kindVersion,
	"modtran":      kindVersion,
	"eodatasets3":  kindVersion,
	"s2cloudless":  kindVersion,
	"ard_pipeline": kindVersion,
	"maturity":     kindString,
	"platform":     kindString,
	"region_code":  kindString,
}

// SupportedKeys lists the keys a filter may name.
func SupportedKeys() []string {
	keys := make([]string, 0, len(supportedKeys))
	for k := range supportedKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnsupportedKeyError reports a clause naming a key outside the allow-list.
type UnsupportedKeyError struct {
	Key string
	Pos int
}

func (e *UnsupportedKeyError) Error() string {
	return fmt.Sprintf("key not supported: %q at position %d (supported: %s)", e.Key, e.Pos, strings.Join(SupportedKeys(), ", "))
}

// SyntaxError reports malformed input.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("filter syntax error at position %d: %s", e.Pos, e.Msg)
}

// Clause is one key/operator/value comparison.
type Clause struct {
	Key   string
	Op    Op
	Value string

	kind    keyKind
	version string
}

func (c Clause) String() string {
	return c.Key + c.Op.String() + c.Value
}

// Expression is a conjunction of clauses.
type Expression struct {
	Clauses []Clause
}

func (e Expression) String() string {
	parts := make([]string, len(e.Clauses))
	for i, c := range e.Clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Parse parses a filter expression. An empty expression is rejected so a
// bulk run never selects every derived dataset by accident.
func Parse(input string) (Expression, error) {
	lx := NewLexer(input)
	var expr Expression
	for {
		keyTok, err := lx.NextToken()
		if err != nil {
			return Expression{}, err
		}
		if keyTok.Type == TokenEOF {
			break
		}
		if keyTok.Type != TokenIdent {
			return Expression{}, &SyntaxError{Pos: keyTok.Pos, Msg: fmt.Sprintf("expected key, got %s", keyTok.Type)}
		}
		kind, ok := supportedKeys[strings.ToLower(keyTok.Value)]
		if !ok {
			return Expression{}, &UnsupportedKeyError{Key: keyTok.Value, Pos: keyTok.Pos}
		}
		opTok, err := lx.NextToken()
		if err != nil {
			return Expression{}, err
		}
		op, ok := tokenOps[opTok.Type]
		if !ok {
			return Expression{}, &SyntaxError{Pos: opTok.Pos, Msg: fmt.Sprintf("expected operator after %q, got %s", keyTok.Value, opTok.Type)}
		}
		valTok, err := lx.NextToken()
		if err != nil {
			return Expression{}, err
		}
		if valTok.Type != TokenIdent && valTok.Type != TokenString {
			return Expression{}, &SyntaxError{Pos: valTok.Pos, Msg: fmt.Sprintf("expected value after %s%s, got %s", keyTok.Value, opTok.Value, valTok.Type)}
		}
		clause := Clause{Key: strings.ToLower(keyTok.Value), Op: op, Value: valTok.Value, kind: kind}
		if kind == kindVersion {
			v, ok := canonicalVersion(valTok.Value)
			if !ok {
				return Expression{}, &SyntaxError{Pos: valTok.Pos, Msg: fmt.Sprintf("invalid version %q", valTok.Value)}
			}
			clause.version = v
		}
		expr.Clauses = append(expr.Clauses, clause)
	}
	if len(expr.Clauses) == 0 {
		return Expression{}, &SyntaxError{Pos: 0, Msg: "empty filter"}
	}
	return expr, nil
}
