// Package cache adds a persistent read-through layer between the engine
// and a table source, backed by SQLite. Parsed tables are stored with the
// source file's fingerprint; a hit with a matching fingerprint skips the
// parse entirely, which is what makes repeated sessions over large sheets
// fast.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sheetsql/sheetsql/internal/storage"
)

// Source is a table provider whose tables carry a revision fingerprint.
type Source interface {
	storage.Provider
	Fingerprint(name string) (string, error)
}

// Store is a storage.Provider that serves from SQLite when the cached
// fingerprint still matches the source, and refills from the source when
// it does not.
type Store struct {
	db  *sql.DB
	src Source
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cached_tables (
	name        TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	cols        TEXT NOT NULL,
	rows        TEXT NOT NULL,
	cached_at   TEXT NOT NULL
)`

// Open creates or opens the cache database at path and wraps src.
func Open(path string, src Source) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &Store{db: db, src: src}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Resolve implements storage.Provider.
func (s *Store) Resolve(ctx context.Context, name string) (*storage.Table, error) {
	fp, err := s.src.Fingerprint(name)
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(name)

	var gotFP, colsJSON, rowsJSON string
	err = s.db.QueryRowContext(ctx,
		`SELECT fingerprint, cols, rows FROM cached_tables WHERE name = ?`, key).
		Scan(&gotFP, &colsJSON, &rowsJSON)
	if err == nil && gotFP == fp {
		t, derr := decodeTable(name, colsJSON, rowsJSON)
		if derr == nil {
			return t, nil
		}
		// A corrupt entry is repaired by refilling below.
	} else if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("cache lookup %q: %w", name, err)
	}

	t, err := s.src.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, key, fp, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) put(ctx context.Context, key, fp string, t *storage.Table) error {
	colsJSON, rowsJSON, err := encodeTable(t)
	if err != nil {
		return fmt.Errorf("cache encode %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cached_tables (name, fingerprint, cols, rows, cached_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   fingerprint = excluded.fingerprint,
		   cols = excluded.cols,
		   rows = excluded.rows,
		   cached_at = excluded.cached_at`,
		key, fp, colsJSON, rowsJSON, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache store %q: %w", key, err)
	}
	return nil
}

// Purge drops every cached table.
func (s *Store) Purge(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cached_tables`)
	return err
}

type colMeta struct {
	Name string          `json:"name"`
	Type storage.ColType `json:"type"`
}

func encodeTable(t *storage.Table) (string, string, error) {
	cols := make([]colMeta, len(t.Cols))
	for i, c := range t.Cols {
		cols[i] = colMeta{Name: c.Name, Type: c.Type}
	}
	colsJSON, err := json.Marshal(cols)
	if err != nil {
		return "", "", err
	}
	// Timestamps become RFC3339Nano strings so decode can restore them.
	rows := make([][]any, len(t.Rows))
	for ri, r := range t.Rows {
		row := make([]any, len(r))
		for i, v := range r {
			if ts, ok := v.(time.Time); ok {
				row[i] = ts.Format(time.RFC3339Nano)
			} else {
				row[i] = v
			}
		}
		rows[ri] = row
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return "", "", err
	}
	return string(colsJSON), string(rowsJSON), nil
}

// decodeTable rebuilds a Table from its JSON form, restoring the Go value
// kinds JSON flattened: ints come back from float64, timestamps from
// strings.
func decodeTable(name, colsJSON, rowsJSON string) (*storage.Table, error) {
	var cols []colMeta
	if err := json.Unmarshal([]byte(colsJSON), &cols); err != nil {
		return nil, err
	}
	var rawRows [][]any
	if err := json.Unmarshal([]byte(rowsJSON), &rawRows); err != nil {
		return nil, err
	}
	sc := make([]storage.Column, len(cols))
	for i, c := range cols {
		sc[i] = storage.Column{Name: c.Name, Type: c.Type}
	}
	t := storage.NewTable(name, sc, false)
	t.Rows = make([][]any, 0, len(rawRows))
	for _, raw := range rawRows {
		row := make([]any, len(sc))
		for i := range sc {
			if i >= len(raw) || raw[i] == nil {
				row[i] = nil
				continue
			}
			v, err := restoreValue(raw[i], sc[i].Type)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func restoreValue(v any, typ storage.ColType) (any, error) {
	switch typ {
	case storage.IntType:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("cache: expected number, got %T", v)
		}
		return int(f), nil
	case storage.FloatType:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("cache: expected number, got %T", v)
		}
		return f, nil
	case storage.BoolType:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("cache: expected bool, got %T", v)
		}
		return b, nil
	case storage.TimestampType:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("cache: expected timestamp string, got %T", v)
		}
		return time.Parse(time.RFC3339Nano, s)
	default:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("%v", v), nil
		}
		return s, nil
	}
}
