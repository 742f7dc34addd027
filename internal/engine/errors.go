package engine

import "fmt"

// The engine fails loudly and early: every stage raises a typed error the
// moment it detects a problem, and no partial result is ever returned.
// Callers (REPL, server) are responsible for rendering.

// LexError reports a malformed token, such as an unterminated quote or an
// unrecognized character, with the byte offset of the offense.
type LexError struct {
	Offset int
	Msg    string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at offset %d: %s", e.Offset, e.Msg)
}

// SyntaxError reports a grammar violation with the offending token and what
// the parser expected instead.
type SyntaxError struct {
	Offset   int
	Got      string
	Expected string
}

func (e *SyntaxError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("syntax error at offset %d: expected %s", e.Offset, e.Expected)
	}
	return fmt.Sprintf("syntax error at offset %d near %q: expected %s", e.Offset, e.Got, e.Expected)
}

// ColumnNotFoundError reports a column reference that no table in scope
// provides.
type ColumnNotFoundError struct {
	Name string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column not found: %q", e.Name)
}

// AmbiguousColumnError reports an unqualified column name that matches more
// than one joined table.
type AmbiguousColumnError struct {
	Name string
}

func (e *AmbiguousColumnError) Error() string {
	return fmt.Sprintf("ambiguous column %q: qualify it with a table name or alias", e.Name)
}

// TypeMismatchError reports an aggregate or operator applied to a value of
// an incompatible kind.
type TypeMismatchError struct {
	Op     string
	Detail string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch in %s: %s", e.Op, e.Detail)
}

// ExecutionError is raised for semantic invariant violations detected while
// running a statement, such as mixing aggregate and raw columns without
// GROUP BY.
type ExecutionError struct {
	Stage string
	Msg   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error in %s: %s", e.Stage, e.Msg)
}
