// Package storage holds the tabular value types shared by the query engine
// and its collaborators.
//
// What: An immutable-by-convention Table (ordered columns with declared
// kinds, rows as fixed-width tuples), the Session that maps names to tables
// for one interactive session, and the Provider capability through which
// base tables are resolved.
// How: Tables store rows as [][]any for compactness; a lower-cased column
// index accelerates name lookups while the column list preserves the
// original casing. Every relational operator produces a fresh Table.
// Why: A simple, explicit model keeps the engine data-structure driven and
// testable without a page manager or on-disk format.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// ColType enumerates the column kinds a Table can declare.
type ColType int

const (
	TextType ColType = iota
	IntType
	FloatType
	BoolType
	TimestampType
)

var colTypeToString = map[ColType]string{
	TextType:      "TEXT",
	IntType:       "INT",
	FloatType:     "FLOAT",
	BoolType:      "BOOL",
	TimestampType: "TIMESTAMP",
}

func (t ColType) String() string {
	if s, ok := colTypeToString[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Column is a named, typed table column. Every column is null-capable.
type Column struct {
	Name string
	Type ColType
}

// Table is the universal value flowing through the engine: ordered columns
// and an ordered sequence of rows, each row aligned to the column list.
// A Table must not be mutated after it has been handed to a consumer.
type Table struct {
	Name   string
	Cols   []Column
	Rows   [][]any
	IsTemp bool

	colPos map[string]int
}

// NewTable allocates an empty table with the given schema.
func NewTable(name string, cols []Column, isTemp bool) *Table {
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[strings.ToLower(c.Name)] = i
	}
	return &Table{Name: name, Cols: cols, colPos: pos, IsTemp: isTemp}
}

// ColIndex returns the zero-based index of the named column. Lookup is
// case-insensitive; the stored column name keeps its original casing.
func (t *Table) ColIndex(name string) (int, error) {
	if i, ok := t.colPos[strings.ToLower(name)]; ok {
		return i, nil
	}
	return -1, fmt.Errorf("unknown column %q in table %q", name, t.Name)
}

// ColNames returns the column names in declaration order.
func (t *Table) ColNames() []string {
	out := make([]string, len(t.Cols))
	for i, c := range t.Cols {
		out[i] = c.Name
	}
	return out
}

// NumRows reports the row count.
func (t *Table) NumRows() int { return len(t.Rows) }

// InferColType maps a Go value to the column kind it belongs to.
// Unknown kinds degrade to TEXT.
func InferColType(v any) ColType {
	switch v.(type) {
	case int, int64:
		return IntType
	case float64:
		return FloatType
	case bool:
		return BoolType
	case time.Time:
		return TimestampType
	default:
		return TextType
	}
}
