// Package sheetsql provides an Oracle-flavored SQL engine over named
// tabular datasets, typically directories of CSV sheets.
//
// A Session binds a table Provider (such as the CSV directory provider)
// to a private namespace of temporary tables. Statements are plain SQL:
// SELECT with joins, grouping, aggregates, window functions and ROWNUM
// row capping, plus CREATE TABLE AS for session-scoped materialization.
//
// # Basic Usage
//
//	sess, err := sheetsql.Open("/data/sheets")
//	if err != nil { ... }
//
//	res, err := sheetsql.Query(ctx, sess,
//	    "SELECT dept, COUNT(*) AS n FROM staff GROUP BY dept")
//	for _, row := range res.Rows {
//	    fmt.Println(row)
//	}
//
// Temporary tables persist for the session and shadow base tables of the
// same name:
//
//	sheetsql.Query(ctx, sess, "CREATE TABLE top AS SELECT * FROM staff WHERE salary > 100000")
//	sheetsql.Query(ctx, sess, "SELECT COUNT(*) FROM top")
package sheetsql

import (
	"context"

	"github.com/sheetsql/sheetsql/internal/engine"
	"github.com/sheetsql/sheetsql/internal/provider"
	"github.com/sheetsql/sheetsql/internal/storage"
)

// Table is a materialized result or base table: ordered, typed columns
// and rows as aligned tuples.
type Table = storage.Table

// Column is a named, typed table column.
type Column = storage.Column

// ColType enumerates column kinds (TEXT, INT, FLOAT, BOOL, TIMESTAMP).
type ColType = storage.ColType

// Session is a per-user namespace of base and temporary tables.
type Session = storage.Session

// Provider resolves qualified table names to tables.
type Provider = storage.Provider

// Statement is a parsed SQL statement ready for execution.
type Statement = engine.Statement

// NewSession creates a session over an arbitrary provider.
func NewSession(p Provider) *Session { return storage.NewSession(p) }

// Open creates a session over a directory of CSV files, the common case.
func Open(dir string) (*Session, error) {
	p, err := provider.NewDirProvider(dir)
	if err != nil {
		return nil, err
	}
	return storage.NewSession(p), nil
}

// Parse parses a single SQL statement.
func Parse(sql string) (Statement, error) { return engine.Parse(sql) }

// Execute runs a parsed statement against the session.
func Execute(ctx context.Context, sess *Session, stmt Statement) (*Table, error) {
	return engine.Execute(ctx, sess, stmt)
}

// Query parses and executes sql in one call.
func Query(ctx context.Context, sess *Session, sql string) (*Table, error) {
	stmt, err := engine.Parse(sql)
	if err != nil {
		return nil, err
	}
	return engine.Execute(ctx, sess, stmt)
}
