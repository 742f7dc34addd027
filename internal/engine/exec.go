// Statement execution.
//
// What: This module evaluates parsed statements against a storage.Session
// and produces result tables. It covers SELECT with joins, filtering,
// window functions, grouping with aggregates, HAVING, DISTINCT, ordering,
// ROWNUM capping, and CREATE TABLE AS.
//
// How: The executor converts tables to row maps with both qualified and
// unqualified column keys, then runs a fixed stage order: resolve, join,
// filter, window, aggregate, project, distinct, order, cap, materialize.
// Expression evaluation is recursive over a small algebra with tri-state
// boolean logic (true/false/unknown); aggregate evaluation runs per group
// with helpers shared with the scalar evaluator.
//
// Why: Keeping execution data-structure driven (row maps and plain slices)
// makes each stage independently testable and the engine easy to extend
// without a planner.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sheetsql/sheetsql/internal/storage"
)

// Row is a single in-flight row mapped by lower-cased column name. Keys
// include both qualified (alias.column) and unqualified (column) names so
// expressions can use either form.
type Row map[string]any

// ResultSet is the intermediate query result: display column order plus
// rows in case-insensitive maps.
type ResultSet struct {
	Cols []string
	Rows []Row
}

// srcCol records one source column of the current row shape, in
// declaration order, for star expansion.
type srcCol struct {
	alias string
	name  string
}

// ExecEnv carries per-statement execution state. resolved caches table
// lookups so each physical table is fetched at most once per statement;
// nameCount tracks how many sources provide each unqualified column name
// so ambiguous references fail instead of silently binding.
type ExecEnv struct {
	ctx       context.Context
	sess      *storage.Session
	resolved  map[string]*storage.Table
	nameCount map[string]int
	srcCols   []srcCol
}

// Execute runs a parsed statement against the session and returns the
// result table. SELECT returns an anonymous result; CREATE TABLE AS
// registers the materialized table as a session temporary and returns it.
// The context is checked at safe points to support cancellation.
func Execute(ctx context.Context, sess *storage.Session, stmt Statement) (*storage.Table, error) {
	env := &ExecEnv{
		ctx:       ctx,
		sess:      sess,
		resolved:  make(map[string]*storage.Table),
		nameCount: make(map[string]int),
	}
	switch s := stmt.(type) {
	case *Select:
		rs, err := executeSelect(env, s)
		if err != nil {
			return nil, err
		}
		return resultToTable("", rs, false), nil
	case *CreateTableAs:
		return executeCreateTableAs(env, s)
	}
	return nil, &ExecutionError{Stage: "dispatch", Msg: "unknown statement"}
}

func executeCreateTableAs(env *ExecEnv, s *CreateTableAs) (*storage.Table, error) {
	rs, err := executeSelect(env, s.Select)
	if err != nil {
		return nil, err
	}
	t := resultToTable(s.Name, rs, true)
	env.sess.PutTemp(s.Name, t)
	return t, nil
}

func executeSelect(env *ExecEnv, s *Select) (*ResultSet, error) {
	if len(s.From) == 0 {
		return nil, &ExecutionError{Stage: "from", Msg: "no source table"}
	}

	// FROM: resolve each item; a comma list is a cross product, realized
	// as inner joins with no predicate.
	cur, err := env.sourceRows(s.From[0])
	if err != nil {
		return nil, err
	}
	for _, f := range s.From[1:] {
		rightRows, _, err := env.sourceRowsWithTable(f)
		if err != nil {
			return nil, err
		}
		cur, err = processInnerJoin(env, cur, rightRows, nil)
		if err != nil {
			return nil, err
		}
	}

	cur, err = processJoins(env, s.Joins, cur)
	if err != nil {
		return nil, err
	}

	filtered, err := applyWhereClause(env, s.Where, cur)
	if err != nil {
		return nil, err
	}

	winKeys, err := applyWindows(env, s, filtered)
	if err != nil {
		return nil, err
	}

	outRows, srcRows, outCols, err := processGroupByHaving(env, s, filtered, winKeys)
	if err != nil {
		return nil, err
	}

	if s.Distinct {
		outRows = distinctRows(outRows, outCols)
		// Deduplication breaks the output/source alignment, so ordering
		// can only use projected columns from here on.
		srcRows = nil
	}

	if len(s.OrderBy) > 0 {
		outRows, err = orderRows(s.OrderBy, outRows, srcRows)
		if err != nil {
			return nil, err
		}
	}

	outRows = applyRowLimit(s, outRows)

	return &ResultSet{Cols: outCols, Rows: outRows}, nil
}

// resolveTable fetches a table through the per-statement cache, so a name
// referenced twice in one statement observes a single snapshot.
func (env *ExecEnv) resolveTable(name string) (*storage.Table, error) {
	key := strings.ToLower(name)
	if t, ok := env.resolved[key]; ok {
		return t, nil
	}
	t, err := env.sess.Resolve(env.ctx, name)
	if err != nil {
		return nil, err
	}
	env.resolved[key] = t
	return t, nil
}

func (env *ExecEnv) sourceRows(f FromItem) ([]Row, error) {
	rows, _, err := env.sourceRowsWithTable(f)
	return rows, err
}

func (env *ExecEnv) sourceRowsWithTable(f FromItem) ([]Row, *storage.Table, error) {
	t, err := env.resolveTable(f.Table)
	if err != nil {
		return nil, nil, err
	}
	alias := aliasOr(f)
	env.registerSource(alias, t)
	return rowsFromTable(t, alias), t, nil
}

// registerSource extends the current row shape with a table's columns and
// bumps the ambiguity counters for their unqualified names.
func (env *ExecEnv) registerSource(alias string, t *storage.Table) {
	for _, c := range t.Cols {
		env.srcCols = append(env.srcCols, srcCol{alias: alias, name: c.Name})
		env.nameCount[strings.ToLower(c.Name)]++
	}
}

func (env *ExecEnv) isAmbiguous(name string) bool {
	return !strings.Contains(name, ".") && env.nameCount[strings.ToLower(name)] > 1
}

// -------------------- joins --------------------

func processJoins(env *ExecEnv, joins []JoinClause, cur []Row) ([]Row, error) {
	for _, j := range joins {
		rightRows, rt, err := env.sourceRowsWithTable(j.Right)
		if err != nil {
			return nil, err
		}
		switch j.Type {
		case JoinInner:
			cur, err = processInnerJoin(env, cur, rightRows, j.On)
		case JoinLeft:
			cur, err = processLeftJoin(env, cur, rightRows, j.On, aliasOr(j.Right), rt)
		case JoinRight:
			cur, err = processRightJoin(env, cur, rightRows, j.On)
		case JoinFull:
			cur, err = processFullJoin(env, cur, rightRows, j.On, aliasOr(j.Right), rt)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func processInnerJoin(env *ExecEnv, leftRows, rightRows []Row, on Expr) ([]Row, error) {
	joined := make([]Row, 0, len(leftRows))
	for _, l := range leftRows {
		if err := checkCtx(env.ctx); err != nil {
			return nil, err
		}
		for _, r := range rightRows {
			m := mergeRows(l, r)
			ok := true
			if on != nil {
				val, err := evalExpr(env, on, m)
				if err != nil {
					return nil, err
				}
				ok = toTri(val) == tvTrue
			}
			if ok {
				joined = append(joined, m)
			}
		}
	}
	return joined, nil
}

func processLeftJoin(env *ExecEnv, leftRows, rightRows []Row, on Expr, rightAlias string, rightTable *storage.Table) ([]Row, error) {
	joined := make([]Row, 0, len(leftRows))
	for _, l := range leftRows {
		if err := checkCtx(env.ctx); err != nil {
			return nil, err
		}
		matched := false
		for _, r := range rightRows {
			m := mergeRows(l, r)
			ok := true
			if on != nil {
				val, err := evalExpr(env, on, m)
				if err != nil {
					return nil, err
				}
				ok = toTri(val) == tvTrue
			}
			if ok {
				joined = append(joined, m)
				matched = true
			}
		}
		if !matched {
			m := cloneRow(l)
			addRightNulls(m, rightAlias, rightTable)
			joined = append(joined, m)
		}
	}
	return joined, nil
}

func processRightJoin(env *ExecEnv, leftRows, rightRows []Row, on Expr) ([]Row, error) {
	joined := make([]Row, 0, len(rightRows))
	var leftKeys []string
	if len(leftRows) > 0 {
		leftKeys = keysOfRow(leftRows[0])
	}
	for _, r := range rightRows {
		if err := checkCtx(env.ctx); err != nil {
			return nil, err
		}
		matched := false
		for _, l := range leftRows {
			m := mergeRows(l, r)
			ok := true
			if on != nil {
				val, err := evalExpr(env, on, m)
				if err != nil {
					return nil, err
				}
				ok = toTri(val) == tvTrue
			}
			if ok {
				joined = append(joined, m)
				matched = true
			}
		}
		if !matched {
			m := cloneRow(r)
			for _, k := range leftKeys {
				m[k] = nil
			}
			joined = append(joined, m)
		}
	}
	return joined, nil
}

// processFullJoin keeps every left row (null-padded right when unmatched)
// and appends right rows no left row matched, null-padded on the left.
func processFullJoin(env *ExecEnv, leftRows, rightRows []Row, on Expr, rightAlias string, rightTable *storage.Table) ([]Row, error) {
	joined := make([]Row, 0, len(leftRows)+len(rightRows))
	rightMatched := make([]bool, len(rightRows))
	var leftKeys []string
	if len(leftRows) > 0 {
		leftKeys = keysOfRow(leftRows[0])
	}
	for _, l := range leftRows {
		if err := checkCtx(env.ctx); err != nil {
			return nil, err
		}
		matched := false
		for ri, r := range rightRows {
			m := mergeRows(l, r)
			ok := true
			if on != nil {
				val, err := evalExpr(env, on, m)
				if err != nil {
					return nil, err
				}
				ok = toTri(val) == tvTrue
			}
			if ok {
				joined = append(joined, m)
				matched = true
				rightMatched[ri] = true
			}
		}
		if !matched {
			m := cloneRow(l)
			addRightNulls(m, rightAlias, rightTable)
			joined = append(joined, m)
		}
	}
	for ri, r := range rightRows {
		if rightMatched[ri] {
			continue
		}
		m := cloneRow(r)
		for _, k := range leftKeys {
			m[k] = nil
		}
		joined = append(joined, m)
	}
	return joined, nil
}

// -------------------- filter --------------------

// applyWhereClause keeps rows whose predicate is definitely true; false
// and unknown both exclude.
func applyWhereClause(env *ExecEnv, where Expr, rows []Row) ([]Row, error) {
	if where == nil {
		return rows, nil
	}
	filtered := make([]Row, 0, len(rows))
	for _, r := range rows {
		if err := checkCtx(env.ctx); err != nil {
			return nil, err
		}
		v, err := evalExpr(env, where, r)
		if err != nil {
			return nil, err
		}
		if toTri(v) == tvTrue {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// -------------------- grouping and projection --------------------

// processGroupByHaving routes to aggregate or plain projection. For the
// plain path it also returns the source rows aligned one-to-one with the
// output, so ORDER BY can reach columns the projection dropped.
func processGroupByHaving(env *ExecEnv, s *Select, filtered []Row, winKeys map[int]string) ([]Row, []Row, []string, error) {
	needAgg := len(s.GroupBy) > 0 || anyAggInSelect(s.Projs) || isAggregate(s.Having)
	if needAgg {
		if len(winKeys) > 0 {
			return nil, nil, nil, &ExecutionError{Stage: "window", Msg: "window functions cannot be combined with GROUP BY or aggregates"}
		}
		if err := checkAggProjections(s); err != nil {
			return nil, nil, nil, err
		}
		outRows, outCols, err := processAggregateQuery(env, s, filtered)
		return outRows, nil, outCols, err
	}
	outRows, outCols, err := processNonAggregateQuery(env, s, filtered, winKeys)
	return outRows, filtered, outCols, err
}

// checkAggProjections enforces the grouping rules before any evaluation:
// with GROUP BY every raw projection must name a grouped column, and
// without GROUP BY no raw projection may ride along with an aggregate.
func checkAggProjections(s *Select) error {
	for _, it := range s.Projs {
		if it.Star {
			return &ExecutionError{Stage: "group", Msg: "SELECT * cannot be combined with aggregates or GROUP BY"}
		}
		if isAggregate(it.Expr) {
			continue
		}
		ref, ok := it.Expr.(*VarRef)
		if !ok {
			return &ExecutionError{Stage: "group", Msg: "non-aggregate projection must be a grouped column"}
		}
		if len(s.GroupBy) == 0 {
			return &ExecutionError{Stage: "group", Msg: fmt.Sprintf("column %q mixed with aggregates requires GROUP BY", ref.Name)}
		}
		if !isGrouped(ref.Name, s.GroupBy) {
			return &ExecutionError{Stage: "group", Msg: fmt.Sprintf("column %q must appear in GROUP BY", ref.Name)}
		}
	}
	return nil
}

func isGrouped(name string, groupBy []VarRef) bool {
	for _, g := range groupBy {
		if strings.EqualFold(name, g.Name) {
			return true
		}
		// An unqualified GROUP BY column also covers its qualified form.
		if i := strings.LastIndexByte(name, '.'); i >= 0 && strings.EqualFold(name[i+1:], g.Name) {
			return true
		}
	}
	return false
}

func processAggregateQuery(env *ExecEnv, s *Select, filtered []Row) ([]Row, []string, error) {
	groups := make(map[string][]Row)
	orderKeys := make([]string, 0, len(filtered))
	outCols := make([]string, 0, len(s.Projs))

	if len(s.GroupBy) == 0 {
		// Whole-table aggregation always yields exactly one group, even
		// over zero input rows.
		groups[""] = filtered
		orderKeys = append(orderKeys, "")
	} else {
		for _, r := range filtered {
			if err := checkCtx(env.ctx); err != nil {
				return nil, nil, err
			}
			parts := make([]string, 0, len(s.GroupBy))
			for _, g := range s.GroupBy {
				v, err := evalExpr(env, &g, r)
				if err != nil {
					return nil, nil, err
				}
				parts = append(parts, fmtKeyPart(v))
			}
			ks := strings.Join(parts, "\x1f")
			if _, ok := groups[ks]; !ok {
				orderKeys = append(orderKeys, ks)
			}
			groups[ks] = append(groups[ks], r)
		}
	}

	outRows := make([]Row, 0, len(orderKeys))
	for _, k := range orderKeys {
		rows := groups[k]
		out := Row{}
		for i, it := range s.Projs {
			name := projName(it, i)
			val, err := evalAggregate(env, it.Expr, rows)
			if err != nil {
				return nil, nil, err
			}
			putVal(out, name, val)
			outCols = appendUnique(outCols, name)
		}
		if s.Having != nil {
			hv, err := evalAggregate(env, substituteProjected(s.Having, out), rows)
			if err != nil {
				return nil, nil, err
			}
			if toTri(hv) != tvTrue {
				continue
			}
		}
		outRows = append(outRows, out)
	}
	return outRows, outCols, nil
}

// substituteProjected replaces top-level column references that name a
// projected output with the group's computed value, so HAVING can address
// projections by alias. References inside aggregate calls stay untouched;
// those bind to source columns.
func substituteProjected(e Expr, out Row) Expr {
	switch ex := e.(type) {
	case *VarRef:
		if v, ok := getVal(out, ex.Name); ok {
			return &Literal{Val: v}
		}
	case *Unary:
		return &Unary{Op: ex.Op, Expr: substituteProjected(ex.Expr, out)}
	case *Binary:
		return &Binary{Op: ex.Op, Left: substituteProjected(ex.Left, out), Right: substituteProjected(ex.Right, out)}
	case *IsNull:
		return &IsNull{Expr: substituteProjected(ex.Expr, out), Negate: ex.Negate}
	case *Between:
		return &Between{
			Expr:   substituteProjected(ex.Expr, out),
			Lo:     substituteProjected(ex.Lo, out),
			Hi:     substituteProjected(ex.Hi, out),
			Negate: ex.Negate,
		}
	case *InList:
		items := make([]Expr, len(ex.Items))
		for i, it := range ex.Items {
			items[i] = substituteProjected(it, out)
		}
		return &InList{Expr: substituteProjected(ex.Expr, out), Items: items, Negate: ex.Negate}
	}
	return e
}

func processNonAggregateQuery(env *ExecEnv, s *Select, filtered []Row, winKeys map[int]string) ([]Row, []string, error) {
	outRows := make([]Row, 0, len(filtered))
	outCols := make([]string, 0, len(s.Projs))

	for _, r := range filtered {
		if err := checkCtx(env.ctx); err != nil {
			return nil, nil, err
		}
		out := Row{}
		for i, it := range s.Projs {
			if it.Star {
				for _, sc := range env.srcCols {
					disp := sc.name
					if env.nameCount[strings.ToLower(sc.name)] > 1 {
						disp = sc.alias + "." + sc.name
					}
					v, _ := getVal(r, sc.alias+"."+sc.name)
					putVal(out, disp, v)
					outCols = appendUnique(outCols, disp)
				}
				continue
			}
			name := projName(it, i)
			var val any
			if key, ok := winKeys[i]; ok {
				val, _ = getVal(r, key)
			} else {
				var err error
				val, err = evalExpr(env, it.Expr, r)
				if err != nil {
					return nil, nil, err
				}
			}
			putVal(out, name, val)
			outCols = appendUnique(outCols, name)
		}
		outRows = append(outRows, out)
	}
	return outRows, outCols, nil
}

// -------------------- order, cap, distinct --------------------

// orderRows sorts the output. An ordering key may name a projected column
// or, when srcRows is aligned with the output, any source column; a key
// neither provides is an error rather than a silent all-nil sort.
func orderRows(order []OrderItem, outRows, srcRows []Row) ([]Row, error) {
	if len(outRows) == 0 {
		return outRows, nil
	}
	val := func(i int, col string) (any, bool) {
		if v, ok := getVal(outRows[i], col); ok {
			return v, true
		}
		if srcRows != nil {
			return getVal(srcRows[i], col)
		}
		return nil, false
	}
	for _, oi := range order {
		if _, ok := val(0, oi.Col); !ok {
			return nil, &ColumnNotFoundError{Name: oi.Col}
		}
	}
	perm := make([]int, len(outRows))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		for _, oi := range order {
			av, _ := val(perm[i], oi.Col)
			bv, _ := val(perm[j], oi.Col)
			cmp := compareForOrder(av, bv)
			if cmp == 0 {
				continue
			}
			if oi.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	sorted := make([]Row, len(outRows))
	for i, p := range perm {
		sorted[i] = outRows[p]
	}
	return sorted, nil
}

func applyRowLimit(s *Select, rows []Row) []Row {
	if s.RowLimit == nil {
		return rows
	}
	n := *s.RowLimit
	if n < 0 {
		n = 0
	}
	if n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

func distinctRows(rows []Row, cols []string) []Row {
	seen := map[string]bool{}
	var out []Row
	for _, r := range rows {
		parts := make([]string, 0, len(cols))
		for _, c := range cols {
			parts = append(parts, fmtKeyPart(r[strings.ToLower(c)]))
		}
		key := strings.Join(parts, "\x1f")
		if !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

// -------------------- materialization --------------------

// resultToTable freezes a result set into a storage.Table, inferring each
// column's type from its first non-null value.
func resultToTable(name string, rs *ResultSet, isTemp bool) *storage.Table {
	cols := make([]storage.Column, len(rs.Cols))
	for i, c := range rs.Cols {
		typ := storage.TextType
		for _, r := range rs.Rows {
			if v, _ := getVal(r, c); v != nil {
				typ = storage.InferColType(v)
				break
			}
		}
		cols[i] = storage.Column{Name: c, Type: typ}
	}
	t := storage.NewTable(name, cols, isTemp)
	t.Rows = make([][]any, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i], _ = getVal(r, c.Name)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// -------------------- row helpers --------------------

func getVal(row Row, name string) (any, bool) { v, ok := row[strings.ToLower(name)]; return v, ok }
func putVal(row Row, key string, val any)     { row[strings.ToLower(key)] = val }

func rowsFromTable(t *storage.Table, alias string) []Row {
	out := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := Row{}
		for i, c := range t.Cols {
			putVal(row, alias+"."+c.Name, r[i])
		}
		for i, c := range t.Cols {
			if _, exists := row[strings.ToLower(c.Name)]; !exists {
				putVal(row, c.Name, r[i])
			}
		}
		out = append(out, row)
	}
	return out
}

func keysOfRow(r Row) []string {
	ks := make([]string, 0, len(r))
	for k := range r {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func aliasOr(f FromItem) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Table
}

func mergeRows(l, r Row) Row {
	m := make(Row, len(l)+len(r))
	for k, v := range l {
		m[k] = v
	}
	for k, v := range r {
		m[k] = v
	}
	return m
}

func cloneRow(r Row) Row {
	m := make(Row, len(r))
	for k, v := range r {
		m[k] = v
	}
	return m
}

func addRightNulls(m Row, alias string, t *storage.Table) {
	for _, c := range t.Cols {
		putVal(m, alias+"."+c.Name, nil)
		if _, ex := m[strings.ToLower(c.Name)]; !ex {
			putVal(m, c.Name, nil)
		}
	}
}

func projName(it SelectItem, idx int) string {
	if it.Alias != "" {
		return it.Alias
	}
	switch ex := it.Expr.(type) {
	case *VarRef:
		return ex.Name
	case *FuncCall:
		arg := "*"
		if !ex.Star {
			if ref, ok := ex.Arg.(*VarRef); ok {
				arg = ref.Name
			}
		}
		return ex.Name + "(" + arg + ")"
	case *WindowCall:
		return ex.Name
	}
	return fmt.Sprintf("col_%d", idx)
}

func appendUnique(cols []string, c string) []string {
	for _, existing := range cols {
		if existing == c {
			return cols
		}
	}
	return append(cols, c)
}

// fmtKeyPart renders a value as a collision-free grouping key part: the
// kind prefix keeps 1, "1" and true distinct.
func fmtKeyPart(v any) string {
	switch x := v.(type) {
	case nil:
		return "N:"
	case int:
		return "I:" + strconv.Itoa(x)
	case int64:
		return "I:" + strconv.FormatInt(x, 10)
	case float64:
		return "F:" + strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "B:1"
		}
		return "B:0"
	case string:
		return "S:" + x
	case time.Time:
		return "T:" + x.Format(time.RFC3339Nano)
	default:
		return "V:" + fmt.Sprintf("%v", x)
	}
}

func checkCtx(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
