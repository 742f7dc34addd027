package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sheetsql/sheetsql/internal/storage"
)

// mapProvider serves fixture tables by lower-cased name, standing in for
// the CSV directory provider.
type mapProvider struct {
	tables map[string]*storage.Table
}

func (p *mapProvider) Resolve(_ context.Context, name string) (*storage.Table, error) {
	if t, ok := p.tables[strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, &storage.TableNotFoundError{Name: name}
}

func staffTable() *storage.Table {
	t := storage.NewTable("staff", []storage.Column{
		{Name: "id", Type: storage.IntType},
		{Name: "name", Type: storage.TextType},
		{Name: "dept", Type: storage.TextType},
		{Name: "salary", Type: storage.IntType},
	}, false)
	t.Rows = [][]any{
		{1, "Alice", "Engineering", 100},
		{2, "Bob", "Engineering", 90},
		{3, "Carol", "Sales", 70},
		{4, "Dan", "Sales", 65},
		{5, "Erin", "Marketing", 60},
		{6, "Frank", "Engineering", 95},
		{7, "Grace", "Marketing", 62},
		{8, "Heidi", "Sales", 68},
		{9, "Ivan", "Engineering", 85},
		{10, "Judy", "Marketing", 61},
	}
	return t
}

func deptTable() *storage.Table {
	t := storage.NewTable("depts", []storage.Column{
		{Name: "dept", Type: storage.TextType},
		{Name: "building", Type: storage.TextType},
	}, false)
	t.Rows = [][]any{
		{"Engineering", "B1"},
		{"Sales", "B2"},
		{"HR", "B9"},
	}
	return t
}

func scoresTable() *storage.Table {
	t := storage.NewTable("scores", []storage.Column{
		{Name: "id", Type: storage.IntType},
		{Name: "score", Type: storage.IntType},
	}, false)
	t.Rows = [][]any{
		{1, 10},
		{2, nil},
		{3, 5},
	}
	return t
}

func testSession() *storage.Session {
	return storage.NewSession(&mapProvider{tables: map[string]*storage.Table{
		"staff":  staffTable(),
		"depts":  deptTable(),
		"scores": scoresTable(),
	}})
}

func mustRun(t *testing.T, sess *storage.Session, sql string) *storage.Table {
	t.Helper()
	stmt, err := Parse(sql)
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	res, err := Execute(context.Background(), sess, stmt)
	if err != nil {
		t.Fatalf("execute %q: %v", sql, err)
	}
	return res
}

func runErr(t *testing.T, sess *storage.Session, sql string) error {
	t.Helper()
	stmt, err := Parse(sql)
	if err != nil {
		return err
	}
	_, err = Execute(context.Background(), sess, stmt)
	if err == nil {
		t.Fatalf("%q: expected error", sql)
	}
	return err
}

func TestSelectStar(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT * FROM staff")
	if got := res.NumRows(); got != 10 {
		t.Fatalf("rows: got %d, want 10", got)
	}
	want := []string{"id", "name", "dept", "salary"}
	names := res.ColNames()
	if len(names) != len(want) {
		t.Fatalf("cols: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("col %d: got %q, want %q", i, names[i], want[i])
		}
	}
}

func TestWhereFilter(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT name FROM staff WHERE salary >= 90 ORDER BY salary DESC")
	if res.NumRows() != 3 {
		t.Fatalf("rows: got %d, want 3", res.NumRows())
	}
	if res.Rows[0][0] != "Alice" || res.Rows[1][0] != "Frank" || res.Rows[2][0] != "Bob" {
		t.Fatalf("order: %v", res.Rows)
	}
}

func TestNullComparisonExcludesRow(t *testing.T) {
	// The NULL score row fails both salary bands: unknown is not true.
	sess := testSession()
	lo := mustRun(t, sess, "SELECT id FROM scores WHERE score < 7")
	hi := mustRun(t, sess, "SELECT id FROM scores WHERE score >= 7")
	if lo.NumRows()+hi.NumRows() != 2 {
		t.Fatalf("rows: %d + %d, want 2 total", lo.NumRows(), hi.NumRows())
	}
}

func TestMixedKindComparisonIsUnknown(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT id FROM staff WHERE name > 5")
	if res.NumRows() != 0 {
		t.Fatalf("rows: got %d, want 0", res.NumRows())
	}
}

func TestNumericLiteralAgainstTextColumn(t *testing.T) {
	codes := storage.NewTable("codes", []storage.Column{
		{Name: "id", Type: storage.IntType},
		{Name: "code", Type: storage.TextType},
	}, false)
	codes.Rows = [][]any{
		{1, "5"},
		{2, "7"},
		{3, "abc"},
	}
	sess := storage.NewSession(&mapProvider{tables: map[string]*storage.Table{"codes": codes}})

	res := mustRun(t, sess, "SELECT id FROM codes WHERE code = 5")
	if res.NumRows() != 1 || res.Rows[0][0] != 1 {
		t.Fatalf("equality: %v", res.Rows)
	}
	// Ordering comparisons coerce too; the unparseable row stays excluded.
	res = mustRun(t, sess, "SELECT id FROM codes WHERE code > 5")
	if res.NumRows() != 1 || res.Rows[0][0] != 2 {
		t.Fatalf("greater-than: %v", res.Rows)
	}
}

func TestJoinCoercesNumericText(t *testing.T) {
	nums := storage.NewTable("nums", []storage.Column{
		{Name: "k", Type: storage.IntType},
	}, false)
	nums.Rows = [][]any{{1}, {2}}
	texts := storage.NewTable("texts", []storage.Column{
		{Name: "k", Type: storage.TextType},
		{Name: "label", Type: storage.TextType},
	}, false)
	texts.Rows = [][]any{
		{"1", "one"},
		{"x", "ex"},
	}
	sess := storage.NewSession(&mapProvider{tables: map[string]*storage.Table{
		"nums":  nums,
		"texts": texts,
	}})

	res := mustRun(t, sess, "SELECT a.k, b.label FROM nums a JOIN texts b ON a.k = b.k")
	if res.NumRows() != 1 {
		t.Fatalf("rows: got %d, want 1", res.NumRows())
	}
	if res.Rows[0][0] != 1 || res.Rows[0][1] != "one" {
		t.Fatalf("joined row: %v", res.Rows[0])
	}
}

func TestWhereMatchesNonASCIIText(t *testing.T) {
	cities := storage.NewTable("cities", []storage.Column{
		{Name: "name", Type: storage.TextType},
	}, false)
	cities.Rows = [][]any{{"Zürich"}, {"Bern"}}
	sess := storage.NewSession(&mapProvider{tables: map[string]*storage.Table{"cities": cities}})

	res := mustRun(t, sess, "SELECT name FROM cities WHERE name = 'Zürich'")
	if res.NumRows() != 1 || res.Rows[0][0] != "Zürich" {
		t.Fatalf("non-ascii literal: %v", res.Rows)
	}
}

func TestGroupByFirstSeenOrder(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT dept, COUNT(*) AS n FROM staff GROUP BY dept")
	if res.NumRows() != 3 {
		t.Fatalf("groups: got %d, want 3", res.NumRows())
	}
	wantDept := []string{"Engineering", "Sales", "Marketing"}
	wantN := []int{4, 3, 3}
	for i := range wantDept {
		if res.Rows[i][0] != wantDept[i] || res.Rows[i][1] != wantN[i] {
			t.Fatalf("group %d: got %v, want (%s,%d)", i, res.Rows[i], wantDept[i], wantN[i])
		}
	}
}

func TestWholeTableAggregate(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT COUNT(*) FROM staff")
	if res.NumRows() != 1 {
		t.Fatalf("rows: got %d, want 1", res.NumRows())
	}
	if res.Rows[0][0] != 10 {
		t.Fatalf("count: got %v, want 10", res.Rows[0][0])
	}
}

func TestWholeTableAggregateEmptyInput(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT COUNT(*), SUM(salary) FROM staff WHERE salary > 10000")
	if res.NumRows() != 1 {
		t.Fatalf("rows: got %d, want 1", res.NumRows())
	}
	if res.Rows[0][0] != 0 {
		t.Fatalf("count: got %v, want 0", res.Rows[0][0])
	}
	if res.Rows[0][1] != nil {
		t.Fatalf("sum over empty input: got %v, want NULL", res.Rows[0][1])
	}
}

func TestHaving(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT dept FROM staff GROUP BY dept HAVING COUNT(*) > 3")
	if res.NumRows() != 1 || res.Rows[0][0] != "Engineering" {
		t.Fatalf("having: %v", res.Rows)
	}
}

func TestHavingReferencesProjectionAlias(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT dept, COUNT(*) AS n FROM staff GROUP BY dept HAVING n > 3")
	if res.NumRows() != 1 || res.Rows[0][0] != "Engineering" {
		t.Fatalf("having by alias: %v", res.Rows)
	}
	if res.Rows[0][1] != 4 {
		t.Fatalf("count: got %v, want 4", res.Rows[0][1])
	}
}

func TestAggregateMixErrors(t *testing.T) {
	sess := testSession()
	var execErr *ExecutionError
	if err := runErr(t, sess, "SELECT name, COUNT(*) FROM staff"); !errors.As(err, &execErr) {
		t.Fatalf("raw+aggregate mix: want ExecutionError, got %v", err)
	}
	if err := runErr(t, sess, "SELECT name FROM staff GROUP BY dept"); !errors.As(err, &execErr) {
		t.Fatalf("non-grouped projection: want ExecutionError, got %v", err)
	}
	if err := runErr(t, sess, "SELECT * FROM staff GROUP BY dept"); !errors.As(err, &execErr) {
		t.Fatalf("star with GROUP BY: want ExecutionError, got %v", err)
	}
}

func TestInnerJoin(t *testing.T) {
	res := mustRun(t, testSession(), `SELECT s.name, d.building FROM staff s JOIN depts d ON s.dept = d.dept WHERE s.salary >= 95 ORDER BY s.name`)
	if res.NumRows() != 2 {
		t.Fatalf("rows: %d", res.NumRows())
	}
	if res.Rows[0][0] != "Alice" || res.Rows[0][1] != "B1" {
		t.Fatalf("row 0: %v", res.Rows[0])
	}
}

func TestLeftJoinNullPadding(t *testing.T) {
	res := mustRun(t, testSession(), `SELECT s.name, d.building FROM staff s LEFT JOIN depts d ON s.dept = d.dept WHERE s.dept = 'Marketing'`)
	if res.NumRows() != 3 {
		t.Fatalf("rows: %d", res.NumRows())
	}
	for _, r := range res.Rows {
		if r[1] != nil {
			t.Fatalf("building should be NULL for Marketing, got %v", r[1])
		}
	}
}

func TestRightJoinKeepsUnmatchedRight(t *testing.T) {
	res := mustRun(t, testSession(), `SELECT s.name, d.dept FROM staff s RIGHT JOIN depts d ON s.dept = d.dept`)
	// 4 Engineering + 3 Sales matches, plus the unmatched HR row.
	if res.NumRows() != 8 {
		t.Fatalf("rows: %d, want 8", res.NumRows())
	}
	foundHR := false
	for _, r := range res.Rows {
		if r[1] == "HR" {
			foundHR = true
			if r[0] != nil {
				t.Fatalf("HR row should have NULL name, got %v", r[0])
			}
		}
	}
	if !foundHR {
		t.Fatal("missing unmatched HR row")
	}
}

func TestFullJoin(t *testing.T) {
	res := mustRun(t, testSession(), `SELECT s.name, d.dept FROM staff s FULL JOIN depts d ON s.dept = d.dept`)
	// 7 matches + 3 unmatched Marketing staff + unmatched HR.
	if res.NumRows() != 11 {
		t.Fatalf("rows: %d, want 11", res.NumRows())
	}
}

func TestCrossProductFromList(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT s.name FROM staff s, depts d")
	if res.NumRows() != 30 {
		t.Fatalf("rows: %d, want 30", res.NumRows())
	}
}

func TestAmbiguousColumn(t *testing.T) {
	err := runErr(t, testSession(), "SELECT dept FROM staff s JOIN depts d ON s.dept = d.dept")
	var ambErr *AmbiguousColumnError
	if !errors.As(err, &ambErr) {
		t.Fatalf("want AmbiguousColumnError, got %v", err)
	}
	if ambErr.Name != "dept" {
		t.Fatalf("name: got %q", ambErr.Name)
	}
}

func TestColumnNotFound(t *testing.T) {
	err := runErr(t, testSession(), "SELECT nope FROM staff")
	var colErr *ColumnNotFoundError
	if !errors.As(err, &colErr) {
		t.Fatalf("want ColumnNotFoundError, got %v", err)
	}
}

func TestTableNotFound(t *testing.T) {
	err := runErr(t, testSession(), "SELECT * FROM missing")
	var tblErr *storage.TableNotFoundError
	if !errors.As(err, &tblErr) {
		t.Fatalf("want TableNotFoundError, got %v", err)
	}
}

func TestOrderByNullsFirstAscending(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT id, score FROM scores ORDER BY score")
	if res.Rows[0][1] != nil {
		t.Fatalf("NULL should sort first ascending: %v", res.Rows)
	}
	res = mustRun(t, testSession(), "SELECT id, score FROM scores ORDER BY score DESC")
	if res.Rows[2][1] != nil {
		t.Fatalf("NULL should sort last descending: %v", res.Rows)
	}
}

func TestOrderByUnknownColumn(t *testing.T) {
	err := runErr(t, testSession(), "SELECT name FROM staff ORDER BY wages")
	var colErr *ColumnNotFoundError
	if !errors.As(err, &colErr) {
		t.Fatalf("want ColumnNotFoundError, got %v", err)
	}
}

func TestRownumCapAfterOrder(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT name, salary FROM staff WHERE ROWNUM <= 2 ORDER BY salary DESC")
	if res.NumRows() != 2 {
		t.Fatalf("rows: %d", res.NumRows())
	}
	// The cap runs after ordering, so these are the two top salaries.
	if res.Rows[0][0] != "Alice" || res.Rows[1][0] != "Frank" {
		t.Fatalf("capped rows: %v", res.Rows)
	}
}

func TestRownumCapLargerThanResult(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT name FROM staff WHERE ROWNUM <= 99")
	if res.NumRows() != 10 {
		t.Fatalf("rows: %d", res.NumRows())
	}
}

func TestDistinct(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT DISTINCT dept FROM staff")
	if res.NumRows() != 3 {
		t.Fatalf("rows: %d, want 3", res.NumRows())
	}
}

func TestPredicates(t *testing.T) {
	sess := testSession()
	res := mustRun(t, sess, "SELECT name FROM staff WHERE salary BETWEEN 60 AND 65")
	if res.NumRows() != 3 {
		t.Fatalf("between: %d rows", res.NumRows())
	}
	res = mustRun(t, sess, "SELECT name FROM staff WHERE dept IN ('Sales', 'Marketing')")
	if res.NumRows() != 6 {
		t.Fatalf("in: %d rows", res.NumRows())
	}
	res = mustRun(t, sess, "SELECT name FROM staff WHERE name LIKE 'A%'")
	if res.NumRows() != 1 || res.Rows[0][0] != "Alice" {
		t.Fatalf("like: %v", res.Rows)
	}
	res = mustRun(t, sess, "SELECT name FROM staff WHERE name LIKE '_ob'")
	if res.NumRows() != 1 || res.Rows[0][0] != "Bob" {
		t.Fatalf("like underscore: %v", res.Rows)
	}
	res = mustRun(t, sess, "SELECT id FROM scores WHERE score IS NULL")
	if res.NumRows() != 1 {
		t.Fatalf("is null: %d rows", res.NumRows())
	}
	res = mustRun(t, sess, "SELECT id FROM scores WHERE score IS NOT NULL")
	if res.NumRows() != 2 {
		t.Fatalf("is not null: %d rows", res.NumRows())
	}
}

func TestArithmeticProjection(t *testing.T) {
	res := mustRun(t, testSession(), "SELECT salary * 2 AS double_pay FROM staff WHERE id = 1")
	if res.Rows[0][0] != 200 {
		t.Fatalf("got %v (%T), want 200", res.Rows[0][0], res.Rows[0][0])
	}
	if res.Cols[0].Name != "double_pay" {
		t.Fatalf("col name: %q", res.Cols[0].Name)
	}
}

func TestDivisionByZero(t *testing.T) {
	err := runErr(t, testSession(), "SELECT salary / 0 FROM staff")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("want ExecutionError, got %v", err)
	}
}

func TestCreateTableAsShadowsBase(t *testing.T) {
	sess := testSession()
	created := mustRun(t, sess, "CREATE TABLE staff AS SELECT name FROM staff WHERE dept = 'Sales'")
	if !created.IsTemp {
		t.Fatal("created table should be temporary")
	}
	res := mustRun(t, sess, "SELECT * FROM staff")
	if res.NumRows() != 3 {
		t.Fatalf("temp should shadow base: got %d rows", res.NumRows())
	}
	if err := sess.DropTemp("staff"); err != nil {
		t.Fatalf("drop temp: %v", err)
	}
	res = mustRun(t, sess, "SELECT * FROM staff")
	if res.NumRows() != 10 {
		t.Fatalf("base should reappear after drop: got %d rows", res.NumRows())
	}
}

func TestCreateTableAsThenQuery(t *testing.T) {
	sess := testSession()
	mustRun(t, sess, "CREATE TABLE eng AS SELECT name, salary FROM staff WHERE dept = 'Engineering'")
	res := mustRun(t, sess, "SELECT COUNT(*) FROM eng")
	if res.Rows[0][0] != 4 {
		t.Fatalf("count from temp: %v", res.Rows[0][0])
	}
}

func TestCreateTableAsEqualsTempContents(t *testing.T) {
	// The table CREATE returns and a SELECT * over the temp must agree
	// column for column and row for row.
	sess := testSession()
	created := mustRun(t, sess, "CREATE TABLE eng AS SELECT name, salary FROM staff WHERE dept = 'Engineering' ORDER BY salary DESC")
	res := mustRun(t, sess, "SELECT * FROM eng")

	cn, rn := created.ColNames(), res.ColNames()
	if len(cn) != len(rn) {
		t.Fatalf("column counts: %v vs %v", cn, rn)
	}
	for i := range cn {
		if cn[i] != rn[i] || created.Cols[i].Type != res.Cols[i].Type {
			t.Fatalf("column %d: (%s,%v) vs (%s,%v)", i, cn[i], created.Cols[i].Type, rn[i], res.Cols[i].Type)
		}
	}
	if created.NumRows() != res.NumRows() {
		t.Fatalf("row counts: %d vs %d", created.NumRows(), res.NumRows())
	}
	for i := range created.Rows {
		for j := range created.Rows[i] {
			if created.Rows[i][j] != res.Rows[i][j] {
				t.Fatalf("cell (%d,%d): %v vs %v", i, j, created.Rows[i][j], res.Rows[i][j])
			}
		}
	}
}

func TestGroupCountsSumToTableCount(t *testing.T) {
	sess := testSession()
	groups := mustRun(t, sess, "SELECT dept, COUNT(*) AS n FROM staff GROUP BY dept")
	total := mustRun(t, sess, "SELECT COUNT(*) FROM staff")
	sum := 0
	for _, r := range groups.Rows {
		sum += r[1].(int)
	}
	if sum != total.Rows[0][0] {
		t.Fatalf("group counts sum to %d, whole-table count is %v", sum, total.Rows[0][0])
	}
}

func TestContextCancellation(t *testing.T) {
	sess := testSession()
	stmt, err := Parse("SELECT * FROM staff")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Execute(ctx, sess, stmt); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestQualifiedTableName(t *testing.T) {
	sess := storage.NewSession(&mapProvider{tables: map[string]*storage.Table{
		"hr.staff": staffTable(),
	}})
	res := mustRun(t, sess, "SELECT name FROM hr.staff WHERE id = 1")
	if res.NumRows() != 1 || res.Rows[0][0] != "Alice" {
		t.Fatalf("qualified table: %v", res.Rows)
	}
}
