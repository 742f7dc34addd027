package engine

import (
	"sort"
	"strconv"
	"strings"
)

// Window function evaluation. Windows run after filtering and before
// projection: each windowed projection is computed over the filtered rows
// and written back into every row under a synthetic key, which the
// projection stage then reads. Each row keeps its pre-window position, so
// windows never reorder the result.

// applyWindows computes every windowed projection in place and returns
// the synthetic row key per projection index. Window calls are only legal
// as whole projection items; one nested anywhere else is rejected.
func applyWindows(env *ExecEnv, s *Select, rows []Row) (map[int]string, error) {
	var keys map[int]string
	for i, it := range s.Projs {
		wc, ok := it.Expr.(*WindowCall)
		if !ok {
			if it.Expr != nil && containsWindow(it.Expr) {
				return nil, &ExecutionError{Stage: "window", Msg: "window functions must be top-level projections"}
			}
			continue
		}
		key := "#win" + strconv.Itoa(i)
		vals, err := computeWindow(env, wc, rows)
		if err != nil {
			return nil, err
		}
		for ri, v := range vals {
			rows[ri][key] = v
		}
		if keys == nil {
			keys = make(map[int]string)
		}
		keys[i] = key
	}
	return keys, nil
}

func containsWindow(e Expr) bool {
	switch ex := e.(type) {
	case *WindowCall:
		return true
	case *Unary:
		return containsWindow(ex.Expr)
	case *Binary:
		return containsWindow(ex.Left) || containsWindow(ex.Right)
	case *IsNull:
		return containsWindow(ex.Expr)
	case *Between:
		return containsWindow(ex.Expr) || containsWindow(ex.Lo) || containsWindow(ex.Hi)
	case *InList:
		if containsWindow(ex.Expr) {
			return true
		}
		for _, it := range ex.Items {
			if containsWindow(it) {
				return true
			}
		}
	case *FuncCall:
		if ex.Arg != nil {
			return containsWindow(ex.Arg)
		}
	}
	return false
}

// winRow pairs a row with its original position so results map back after
// per-partition sorting.
type winRow struct {
	row Row
	idx int
}

func computeWindow(env *ExecEnv, wc *WindowCall, rows []Row) ([]any, error) {
	results := make([]any, len(rows))
	parts, err := partitionRows(env, wc.PartitionBy, rows)
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		if err := checkCtx(env.ctx); err != nil {
			return nil, err
		}
		sortPartition(part, wc.OrderBy)
		vals, err := computeWindowForPartition(env, wc, part)
		if err != nil {
			return nil, err
		}
		for i, wr := range part {
			results[wr.idx] = vals[i]
		}
	}
	return results, nil
}

// partitionRows splits rows by the PARTITION BY key, preserving first-seen
// partition order and input order within each partition.
func partitionRows(env *ExecEnv, partitionBy []VarRef, rows []Row) ([][]winRow, error) {
	if len(partitionBy) == 0 {
		part := make([]winRow, len(rows))
		for i, r := range rows {
			part[i] = winRow{row: r, idx: i}
		}
		return [][]winRow{part}, nil
	}
	byKey := make(map[string][]winRow)
	var order []string
	for i, r := range rows {
		parts := make([]string, 0, len(partitionBy))
		for _, p := range partitionBy {
			v, err := evalExpr(env, &p, r)
			if err != nil {
				return nil, err
			}
			parts = append(parts, fmtKeyPart(v))
		}
		key := strings.Join(parts, "\x1f")
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], winRow{row: r, idx: i})
	}
	out := make([][]winRow, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, nil
}

func sortPartition(part []winRow, orderBy []OrderItem) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(part, func(i, j int) bool {
		for _, oi := range orderBy {
			av, _ := getVal(part[i].row, oi.Col)
			bv, _ := getVal(part[j].row, oi.Col)
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
}

func computeWindowForPartition(env *ExecEnv, wc *WindowCall, part []winRow) ([]any, error) {
	switch wc.Name {
	case "ROW_NUMBER":
		vals := make([]any, len(part))
		for i := range part {
			vals[i] = i + 1
		}
		return vals, nil
	case "RANK":
		return computeRank(part, wc.OrderBy, false), nil
	case "DENSE_RANK":
		return computeRank(part, wc.OrderBy, true), nil
	case "LAG":
		return computeShift(env, wc, part, -1)
	case "LEAD":
		return computeShift(env, wc, part, 1)
	}
	return nil, &ExecutionError{Stage: "window", Msg: "unsupported window function " + wc.Name}
}

// computeRank assigns 1-based ranks over the sorted partition. Ties on the
// ordering key share a rank; dense ranking closes the gaps. Without an
// ORDER BY every row ties at rank 1.
func computeRank(part []winRow, orderBy []OrderItem, dense bool) []any {
	vals := make([]any, len(part))
	if len(orderBy) == 0 {
		for i := range vals {
			vals[i] = 1
		}
		return vals
	}
	rank := 1
	for i := range part {
		if i > 0 && !equalOnOrder(part[i-1].row, part[i].row, orderBy) {
			if dense {
				rank++
			} else {
				rank = i + 1
			}
		}
		vals[i] = rank
	}
	return vals
}

// computeShift reads the source column one position behind (dir -1, LAG)
// or ahead (dir +1, LEAD); rows at the partition edge get NULL.
func computeShift(env *ExecEnv, wc *WindowCall, part []winRow, dir int) ([]any, error) {
	vals := make([]any, len(part))
	for i := range part {
		src := i + dir
		if src < 0 || src >= len(part) {
			vals[i] = nil
			continue
		}
		v, err := evalExpr(env, wc.Arg, part[src].row)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func equalOnOrder(a, b Row, orderBy []OrderItem) bool {
	for _, oi := range orderBy {
		av, _ := getVal(a, oi.Col)
		bv, _ := getVal(b, oi.Col)
		if compareForOrder(av, bv) != 0 {
			return false
		}
	}
	return true
}
