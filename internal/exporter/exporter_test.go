package exporter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sheetsql/sheetsql/internal/storage"
)

func resultTable() *storage.Table {
	t := storage.NewTable("", []storage.Column{
		{Name: "name", Type: storage.TextType},
		{Name: "salary", Type: storage.IntType},
		{Name: "rate", Type: storage.FloatType},
		{Name: "hired", Type: storage.TimestampType},
	}, false)
	t.Rows = [][]any{
		{"Alice", 100, 1.5, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"Bob", nil, nil, nil},
	}
	return t
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, resultTable(), Options{}); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "name,salary,rate,hired" {
		t.Fatalf("header: %q", lines[0])
	}
	if lines[1] != "Alice,100,1.5,2024-03-01T09:30:00Z" {
		t.Fatalf("row 1: %q", lines[1])
	}
	if lines[2] != "Bob,,," {
		t.Fatalf("NULL row: %q", lines[2])
	}
}

func TestExportCSVNoHeaderAndDelimiter(t *testing.T) {
	var buf bytes.Buffer
	err := ExportCSV(&buf, resultTable(), Options{CSVNoHeader: true, CSVDelimiter: ';'})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.HasPrefix(buf.String(), "name") {
		t.Fatalf("header should be suppressed: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "Alice;100") {
		t.Fatalf("delimiter not applied: %q", buf.String())
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, resultTable(), Options{}); err != nil {
		t.Fatalf("export: %v", err)
	}
	s := buf.String()
	if !strings.Contains(s, `"name":"Alice"`) || !strings.Contains(s, `"salary":100`) {
		t.Fatalf("json: %q", s)
	}
	if !strings.Contains(s, `"salary":null`) {
		t.Fatalf("NULL should encode as null: %q", s)
	}
}

func TestWriteFilePicksFormat(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "out", "result.csv")
	if err := WriteFile(csvPath, resultTable(), Options{}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.HasPrefix(string(data), "name,salary") {
		t.Fatalf("csv content: %q", data)
	}

	jsonPath := filepath.Join(dir, "result.json")
	if err := WriteFile(jsonPath, resultTable(), Options{}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	data, _ = os.ReadFile(jsonPath)
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		t.Fatalf("json content: %q", data)
	}
}
