// Package exporter serializes result tables for the REPL's output
// redirection and the server's response bodies.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sheetsql/sheetsql/internal/storage"
)

// Options controls exporter behavior.
type Options struct {
	PrettyJSON   bool
	CSVNoHeader  bool
	CSVDelimiter rune
}

func valueToString(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// ExportCSV writes the table as CSV to w. Column order is preserved;
// NULL exports as an empty cell.
func ExportCSV(w io.Writer, t *storage.Table, opts Options) error {
	csvw := csv.NewWriter(w)
	if opts.CSVDelimiter != 0 {
		csvw.Comma = opts.CSVDelimiter
	}
	if !opts.CSVNoHeader {
		if err := csvw.Write(t.ColNames()); err != nil {
			return err
		}
	}
	row := make([]string, len(t.Cols))
	for _, r := range t.Rows {
		for i := range t.Cols {
			row[i] = valueToString(r[i])
		}
		if err := csvw.Write(row); err != nil {
			return err
		}
	}
	csvw.Flush()
	return csvw.Error()
}

// ExportJSON writes the table as a JSON array of objects keyed by column
// name.
func ExportJSON(w io.Writer, t *storage.Table, opts Options) error {
	enc := json.NewEncoder(w)
	if opts.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	out := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		m := make(map[string]any, len(t.Cols))
		for j, c := range t.Cols {
			m[c.Name] = r[j]
		}
		out[i] = m
	}
	return enc.Encode(out)
}

// WriteFile exports the table to path, choosing the format from the file
// extension: .json for JSON, anything else CSV. Parent directories are
// created as needed.
func WriteFile(path string, t *storage.Table, opts Options) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export %s: %w", path, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	if filepath.Ext(path) == ".json" {
		err = ExportJSON(f, t, opts)
	} else {
		err = ExportCSV(f, t, opts)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}
