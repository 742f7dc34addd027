package cache

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sheetsql/sheetsql/internal/storage"
)

// countingSource is an in-memory Source that counts real loads.
type countingSource struct {
	tables map[string]*storage.Table
	fps    map[string]string
	loads  int
}

func (s *countingSource) Resolve(_ context.Context, name string) (*storage.Table, error) {
	s.loads++
	if t, ok := s.tables[strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, &storage.TableNotFoundError{Name: name}
}

func (s *countingSource) Fingerprint(name string) (string, error) {
	if fp, ok := s.fps[strings.ToLower(name)]; ok {
		return fp, nil
	}
	return "", &storage.TableNotFoundError{Name: name}
}

func fixtureTable() *storage.Table {
	t := storage.NewTable("staff", []storage.Column{
		{Name: "id", Type: storage.IntType},
		{Name: "name", Type: storage.TextType},
		{Name: "rate", Type: storage.FloatType},
		{Name: "active", Type: storage.BoolType},
		{Name: "hired", Type: storage.TimestampType},
	}, false)
	hired := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	t.Rows = [][]any{
		{1, "Alice", 1.5, true, hired},
		{2, nil, nil, false, nil},
	}
	return t
}

func openTestStore(t *testing.T) (*Store, *countingSource) {
	t.Helper()
	src := &countingSource{
		tables: map[string]*storage.Table{"staff": fixtureTable()},
		fps:    map[string]string{"staff": "v1"},
	}
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), src)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, src
}

func TestReadThroughCachesSecondResolve(t *testing.T) {
	store, src := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Resolve(ctx, "staff"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if src.loads != 1 {
		t.Fatalf("loads after miss: %d", src.loads)
	}

	tbl, err := store.Resolve(ctx, "staff")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if src.loads != 1 {
		t.Fatalf("cache hit should not reload source: %d loads", src.loads)
	}
	if tbl.NumRows() != 2 {
		t.Fatalf("rows: %d", tbl.NumRows())
	}
}

func TestValueKindsSurviveRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	if _, err := store.Resolve(ctx, "staff"); err != nil {
		t.Fatalf("prime: %v", err)
	}
	tbl, err := store.Resolve(ctx, "staff")
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	row := tbl.Rows[0]
	if row[0] != 1 {
		t.Fatalf("int: got %v (%T)", row[0], row[0])
	}
	if row[2] != 1.5 {
		t.Fatalf("float: got %v (%T)", row[2], row[2])
	}
	if row[3] != true {
		t.Fatalf("bool: got %v", row[3])
	}
	ts, ok := row[4].(time.Time)
	if !ok || !ts.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("timestamp: got %v (%T)", row[4], row[4])
	}
	if tbl.Rows[1][1] != nil || tbl.Rows[1][4] != nil {
		t.Fatalf("NULLs lost: %v", tbl.Rows[1])
	}
}

func TestFingerprintChangeRefills(t *testing.T) {
	store, src := openTestStore(t)
	ctx := context.Background()
	if _, err := store.Resolve(ctx, "staff"); err != nil {
		t.Fatalf("prime: %v", err)
	}

	changed := fixtureTable()
	changed.Rows = changed.Rows[:1]
	src.tables["staff"] = changed
	src.fps["staff"] = "v2"

	tbl, err := store.Resolve(ctx, "staff")
	if err != nil {
		t.Fatalf("resolve after change: %v", err)
	}
	if src.loads != 2 {
		t.Fatalf("stale fingerprint should reload: %d loads", src.loads)
	}
	if tbl.NumRows() != 1 {
		t.Fatalf("rows: %d", tbl.NumRows())
	}
}

func TestMissingTablePassesThrough(t *testing.T) {
	store, _ := openTestStore(t)
	if _, err := store.Resolve(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestPurge(t *testing.T) {
	store, src := openTestStore(t)
	ctx := context.Background()
	if _, err := store.Resolve(ctx, "staff"); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if err := store.Purge(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := store.Resolve(ctx, "staff"); err != nil {
		t.Fatalf("resolve after purge: %v", err)
	}
	if src.loads != 2 {
		t.Fatalf("purge should force reload: %d loads", src.loads)
	}
}
