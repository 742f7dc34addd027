// Package provider resolves table references to materialized tables backed
// by a directory of CSV files.
//
// What: A DirProvider maps "staff" to <root>/staff.csv and "hr.staff" to
// <root>/hr/staff.csv, parses the file with header detection, type
// inference and NULL literal handling, and serves the result through the
// storage.Provider interface.
// How: Files are decoded through a BOM-aware reader (UTF-8 with or without
// BOM, UTF-16LE/BE), parsed with encoding/csv, and cached keyed by path;
// the cache entry is invalidated when the file's mtime or size changes, so
// an edited sheet is picked up on the next query without restarting.
// Why: Keeping all I/O behind the Provider capability means the engine
// never learns about files, and swapping in a different backing store is a
// one-type change.
package provider

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sheetsql/sheetsql/internal/storage"
)

// nullLiterals are cell values treated as NULL, compared case-insensitively
// after trimming.
var nullLiterals = map[string]bool{
	"":     true,
	"null": true,
	"na":   true,
	"n/a":  true,
	"none": true,
}

var dateTimeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DirProvider serves tables from CSV files under a root directory.
type DirProvider struct {
	root string

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	modTime time.Time
	size    int64
	table   *storage.Table
}

// NewDirProvider creates a provider rooted at dir. The directory must
// exist; files are only opened on demand.
func NewDirProvider(dir string) (*DirProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %q is not a directory", dir)
	}
	return &DirProvider{root: dir, cache: make(map[string]*cacheEntry)}, nil
}

// Path maps a qualified table reference to its file: each dot-separated
// segment becomes a path element and the last gets a .csv suffix.
func (p *DirProvider) Path(name string) string {
	parts := strings.Split(name, ".")
	return filepath.Join(append([]string{p.root}, parts...)...) + ".csv"
}

// Resolve loads (or re-serves) the table behind a qualified reference.
// A cached copy is reused while the file's mtime and size are unchanged.
func (p *DirProvider) Resolve(ctx context.Context, name string) (*storage.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := p.Path(name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, &storage.TableNotFoundError{Name: name}
	}

	p.mu.Lock()
	entry, ok := p.cache[path]
	p.mu.Unlock()
	if ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.table, nil
	}

	t, err := p.loadCSV(name, path)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.cache[path] = &cacheEntry{modTime: info.ModTime(), size: info.Size(), table: t}
	p.mu.Unlock()
	return t, nil
}

// Fingerprint identifies the current on-disk revision of a table's file.
// Persistent caches compare it to decide whether their copy is still
// valid.
func (p *DirProvider) Fingerprint(name string) (string, error) {
	info, err := os.Stat(p.Path(name))
	if err != nil {
		return "", &storage.TableNotFoundError{Name: name}
	}
	return strconv.FormatInt(info.Size(), 10) + "_" + strconv.FormatInt(info.ModTime().UnixNano(), 10), nil
}

// Invalidate drops every cached table, forcing fresh reads on the next
// Resolve. The refresher calls this on its schedule.
func (p *DirProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]*cacheEntry)
}

// List returns the qualified names of every .csv file under the root, for
// REPL table listings.
func (p *DirProvider) List() ([]string, error) {
	var names []string
	err := filepath.Walk(p.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}
		rel = strings.TrimSuffix(rel, filepath.Ext(rel))
		names = append(names, strings.ReplaceAll(rel, string(filepath.Separator), "."))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (p *DirProvider) loadCSV(name, path string) (*storage.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return parseCSV(name, f)
}

// parseCSV reads a header row plus data rows and infers per-column types
// from the data.
func parseCSV(name string, src io.Reader) (*storage.Table, error) {
	// BOMOverride switches the decoder on a UTF-16 byte order mark and
	// strips a UTF-8 one, so exported spreadsheets load as-is.
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := csv.NewReader(transform.NewReader(src, dec))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("table %q: empty file", name)
	}
	if err != nil {
		return nil, fmt.Errorf("table %q: read header: %w", name, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			header[i] = "col_" + strconv.Itoa(i+1)
		}
	}

	var raw [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table %q: read row: %w", name, err)
		}
		raw = append(raw, rec)
	}

	cols := make([]storage.Column, len(header))
	for i, h := range header {
		cols[i] = storage.Column{Name: h, Type: inferColumnType(raw, i)}
	}
	t := storage.NewTable(name, cols, false)
	t.Rows = make([][]any, 0, len(raw))
	for _, rec := range raw {
		row := make([]any, len(cols))
		for i := range cols {
			if i >= len(rec) {
				row[i] = nil
				continue
			}
			row[i] = convertCell(rec[i], cols[i].Type)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func isNullLiteral(s string) bool {
	return nullLiterals[strings.ToLower(strings.TrimSpace(s))]
}

// inferColumnType scans a column's non-NULL cells and picks the narrowest
// type every cell satisfies: INT, then FLOAT, BOOL, TIMESTAMP, TEXT.
func inferColumnType(rows [][]string, col int) storage.ColType {
	allInt, allFloat, allBool, allTime := true, true, true, true
	seen := false
	for _, rec := range rows {
		if col >= len(rec) || isNullLiteral(rec[col]) {
			continue
		}
		s := strings.TrimSpace(rec[col])
		seen = true
		if _, err := strconv.Atoi(s); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			allFloat = false
		}
		if !isBoolLiteral(s) {
			allBool = false
		}
		if !isTimeLiteral(s) {
			allTime = false
		}
		if !allInt && !allFloat && !allBool && !allTime {
			return storage.TextType
		}
	}
	switch {
	case !seen:
		return storage.TextType
	case allInt:
		return storage.IntType
	case allFloat:
		return storage.FloatType
	case allBool:
		return storage.BoolType
	case allTime:
		return storage.TimestampType
	}
	return storage.TextType
}

func isBoolLiteral(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

func isTimeLiteral(s string) bool {
	for _, layout := range dateTimeFormats {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func convertCell(s string, typ storage.ColType) any {
	if isNullLiteral(s) {
		return nil
	}
	s = strings.TrimSpace(s)
	switch typ {
	case storage.IntType:
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	case storage.FloatType:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case storage.BoolType:
		return strings.EqualFold(s, "true")
	case storage.TimestampType:
		for _, layout := range dateTimeFormats {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts
			}
		}
	}
	return s
}
