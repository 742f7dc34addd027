// Package engine implements the sheetsql query engine: a lexer and
// recursive-descent parser producing a small AST, and an executor that
// interprets the AST against a Session to produce result Tables.
//
// The lexer is a single-pass rune scanner. It recognizes identifiers,
// keywords, quoted identifiers, numeric and string literals, and symbols,
// discards whitespace and -- comments, and reports every token's byte
// offset so parse errors stay actionable.
package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tEOF tokenType = iota
	tIdent
	tQuoted // quoted identifier, case and spaces preserved
	tNumber
	tString
	tSymbol
	tKeyword
)

type token struct {
	Typ tokenType
	Val string
	Pos int
}

type lexer struct {
	s   string
	pos int
}

func newLexer(s string) *lexer { return &lexer{s: s} }

func (lx *lexer) peek() rune {
	if lx.pos >= len(lx.s) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.s[lx.pos:])
	return r
}

func (lx *lexer) peekN(n int) rune {
	p := lx.pos + n
	if p >= len(lx.s) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.s[p:])
	return r
}

func (lx *lexer) next() rune {
	if lx.pos >= len(lx.s) {
		return 0
	}
	r, w := utf8.DecodeRuneInString(lx.s[lx.pos:])
	lx.pos += w
	return r
}

func (lx *lexer) skipWS() {
	for lx.pos < len(lx.s) {
		r := lx.peek()
		if unicode.IsSpace(r) {
			lx.next()
			continue
		}
		if r == '-' && lx.peekN(1) == '-' {
			lx.pos += 2
			for lx.pos < len(lx.s) && lx.s[lx.pos] != '\n' {
				lx.pos++
			}
			continue
		}
		return
	}
}

func (lx *lexer) nextToken() (token, error) {
	lx.skipWS()
	start := lx.pos
	if start >= len(lx.s) {
		return token{Typ: tEOF, Pos: start}, nil
	}
	r := lx.peek()

	switch {
	case r == '\'' || r == '"':
		return lx.tokenizeQuoted(start, r)
	case unicode.IsDigit(r):
		return lx.tokenizeNumber(start), nil
	case unicode.IsLetter(r) || r == '_':
		return lx.tokenizeIdentOrKeyword(start), nil
	default:
		return lx.tokenizeSymbol(start)
	}
}

// tokenizeQuoted scans a quoted run delimited by either single or double
// quotes. A doubled delimiter inside the run unescapes to one literal quote
// character. Both delimiters preserve case and embedded spaces; the parser
// decides from position whether the token is an identifier or a string
// value (single-quoted tokens double as string literals).
func (lx *lexer) tokenizeQuoted(start int, delim rune) (token, error) {
	lx.next() // opening quote
	var val strings.Builder
	for lx.pos < len(lx.s) {
		ch := lx.next()
		if ch == delim {
			if lx.peek() == delim {
				lx.next()
				val.WriteRune(ch)
				continue
			}
			typ := tQuoted
			if delim == '\'' {
				typ = tString
			}
			return token{Typ: typ, Val: val.String(), Pos: start}, nil
		}
		val.WriteRune(ch)
	}
	return token{}, &LexError{Offset: start, Msg: "unterminated quoted token"}
}

func (lx *lexer) tokenizeNumber(start int) token {
	var val strings.Builder
	dot := false
	for lx.pos < len(lx.s) {
		ch := lx.peek()
		if unicode.IsDigit(ch) || (!dot && ch == '.') {
			if ch == '.' {
				dot = true
			}
			val.WriteRune(ch)
			lx.next()
		} else {
			break
		}
	}
	return token{Typ: tNumber, Val: val.String(), Pos: start}
}

func (lx *lexer) tokenizeIdentOrKeyword(start int) token {
	var val strings.Builder
	for lx.pos < len(lx.s) {
		ch := lx.peek()
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.' {
			val.WriteRune(ch)
			lx.next()
		} else {
			break
		}
	}
	up := strings.ToUpper(val.String())
	if isKeyword(up) {
		return token{Typ: tKeyword, Val: up, Pos: start}
	}
	return token{Typ: tIdent, Val: val.String(), Pos: start}
}

func (lx *lexer) tokenizeSymbol(start int) (token, error) {
	r := lx.peek()
	switch r {
	case '(', ')', ',', '*', '+', '-', '/', '.', ';':
		lx.next()
		return token{Typ: tSymbol, Val: string(r), Pos: start}, nil
	case '=', '<', '>', '!':
		a := lx.next()
		b := lx.peek()
		if (a == '<' && (b == '=' || b == '>')) || (a == '>' && b == '=') || (a == '!' && b == '=') {
			lx.next()
			return token{Typ: tSymbol, Val: string(a) + string(b), Pos: start}, nil
		}
		return token{Typ: tSymbol, Val: string(a), Pos: start}, nil
	default:
		return token{}, &LexError{Offset: start, Msg: "unrecognized character " + string(r)}
	}
}

// rest returns the raw, trimmed input following the given offset. The
// parser uses it to capture an output-redirection path verbatim, since a
// file path is not made of SQL tokens.
func (lx *lexer) rest(from int) string {
	if from >= len(lx.s) {
		return ""
	}
	return strings.TrimSpace(lx.s[from:])
}

func isKeyword(up string) bool {
	switch up {
	case "SELECT", "DISTINCT", "FROM", "WHERE", "GROUP", "BY", "HAVING",
		"ORDER", "ASC", "DESC",
		"JOIN", "INNER", "LEFT", "RIGHT", "FULL", "OUTER", "CROSS", "ON", "AS",
		"CREATE", "TABLE",
		"AND", "OR", "NOT", "IS", "NULL", "TRUE", "FALSE",
		"IN", "LIKE", "BETWEEN",
		"COUNT", "SUM", "AVG", "MIN", "MAX", "STDDEV", "VARIANCE",
		"ROW_NUMBER", "RANK", "DENSE_RANK", "LAG", "LEAD",
		"OVER", "PARTITION", "ROWNUM":
		return true
	default:
		return false
	}
}
