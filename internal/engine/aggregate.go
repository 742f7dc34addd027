package engine

import (
	"fmt"
	"math"
)

// Aggregate evaluation. An aggregate expression is evaluated once per
// group against the group's row slice; scalar sub-expressions inside it
// fall back to the shared evaluator. NULL inputs never contribute, and an
// aggregate with no contributing input yields NULL (COUNT yields 0).

func isAggregate(e Expr) bool {
	switch ex := e.(type) {
	case *FuncCall:
		switch ex.Name {
		case "COUNT", "SUM", "AVG", "MIN", "MAX", "STDDEV", "VARIANCE":
			return true
		}
	case *Unary:
		return isAggregate(ex.Expr)
	case *Binary:
		return isAggregate(ex.Left) || isAggregate(ex.Right)
	case *IsNull:
		return isAggregate(ex.Expr)
	}
	return false
}

func anyAggInSelect(items []SelectItem) bool {
	for _, it := range items {
		if it.Expr != nil && isAggregate(it.Expr) {
			return true
		}
	}
	return false
}

func evalAggregate(env *ExecEnv, e Expr, rows []Row) (any, error) {
	switch ex := e.(type) {
	case *FuncCall:
		return evalAggregateFuncCall(env, ex, rows)
	case *Unary:
		return evalAggregateUnary(env, ex, rows)
	case *Binary:
		return evalAggregateBinary(env, ex, rows)
	case *IsNull:
		return evalAggregateIsNull(env, ex, rows)
	default:
		if len(rows) == 0 {
			return nil, nil
		}
		return evalExpr(env, e, rows[0])
	}
}

func evalAggregateFuncCall(env *ExecEnv, ex *FuncCall, rows []Row) (any, error) {
	switch ex.Name {
	case "COUNT":
		return evalAggregateCount(env, ex, rows)
	case "SUM", "AVG":
		return evalAggregateSumAvg(env, ex, rows)
	case "MIN", "MAX":
		return evalAggregateMinMax(env, ex, rows)
	case "STDDEV", "VARIANCE":
		return evalAggregateSpread(env, ex, rows)
	}
	return nil, &ExecutionError{Stage: "aggregate", Msg: "unsupported aggregate function " + ex.Name}
}

func evalAggregateCount(env *ExecEnv, ex *FuncCall, rows []Row) (any, error) {
	if ex.Star {
		return len(rows), nil
	}
	vals, err := aggregateInputs(env, ex, rows)
	if err != nil {
		return nil, err
	}
	return len(vals), nil
}

// evalAggregateSumAvg sums the numeric inputs. SUM over all-integer input
// stays an int; over no input both SUM and AVG yield NULL.
func evalAggregateSumAvg(env *ExecEnv, ex *FuncCall, rows []Row) (any, error) {
	vals, err := aggregateInputs(env, ex, rows)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	sum := 0.0
	allInt := true
	for _, v := range vals {
		f, ok := numeric(v)
		if !ok {
			return nil, &TypeMismatchError{Op: ex.Name, Detail: fmt.Sprintf("non-numeric value %T", v)}
		}
		if _, isInt := asInt(v); !isInt {
			allInt = false
		}
		sum += f
	}
	if ex.Name == "AVG" {
		return sum / float64(len(vals)), nil
	}
	if allInt {
		return int(sum), nil
	}
	return sum, nil
}

func evalAggregateMinMax(env *ExecEnv, ex *FuncCall, rows []Row) (any, error) {
	vals, err := aggregateInputs(env, ex, rows)
	if err != nil {
		return nil, err
	}
	var best any
	for _, v := range vals {
		if best == nil {
			best = v
			continue
		}
		cmp, ok := compare(v, best)
		if !ok {
			return nil, &TypeMismatchError{Op: ex.Name, Detail: fmt.Sprintf("incomparable %T and %T", v, best)}
		}
		if ex.Name == "MIN" && cmp < 0 {
			best = v
		}
		if ex.Name == "MAX" && cmp > 0 {
			best = v
		}
	}
	return best, nil
}

// evalAggregateSpread computes the sample variance (and its square root
// for STDDEV). Fewer than two inputs leave the statistic undefined, so
// the result is NULL.
func evalAggregateSpread(env *ExecEnv, ex *FuncCall, rows []Row) (any, error) {
	vals, err := aggregateInputs(env, ex, rows)
	if err != nil {
		return nil, err
	}
	if len(vals) < 2 {
		return nil, nil
	}
	fs := make([]float64, len(vals))
	sum := 0.0
	for i, v := range vals {
		f, ok := numeric(v)
		if !ok {
			return nil, &TypeMismatchError{Op: ex.Name, Detail: fmt.Sprintf("non-numeric value %T", v)}
		}
		fs[i] = f
		sum += f
	}
	mean := sum / float64(len(fs))
	ss := 0.0
	for _, f := range fs {
		d := f - mean
		ss += d * d
	}
	variance := ss / float64(len(fs)-1)
	if ex.Name == "VARIANCE" {
		return variance, nil
	}
	return math.Sqrt(variance), nil
}

// aggregateInputs evaluates the argument over every row, drops NULLs, and
// applies DISTINCT when requested, preserving first-seen order.
func aggregateInputs(env *ExecEnv, ex *FuncCall, rows []Row) ([]any, error) {
	if ex.Arg == nil {
		return nil, &ExecutionError{Stage: "aggregate", Msg: ex.Name + " expects a column argument"}
	}
	var vals []any
	var seen map[string]bool
	if ex.Distinct {
		seen = make(map[string]bool)
	}
	for _, r := range rows {
		if err := checkCtx(env.ctx); err != nil {
			return nil, err
		}
		v, err := evalExpr(env, ex.Arg, r)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if seen != nil {
			k := fmtKeyPart(v)
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func evalAggregateUnary(env *ExecEnv, ex *Unary, rows []Row) (any, error) {
	v, err := evalAggregate(env, ex.Expr, rows)
	if err != nil {
		return nil, err
	}
	switch ex.Op {
	case "+":
		if v == nil {
			return nil, nil
		}
		if f, ok := numeric(v); ok {
			return f, nil
		}
		return nil, &TypeMismatchError{Op: "unary +", Detail: fmt.Sprintf("non-numeric %T", v)}
	case "-":
		if v == nil {
			return nil, nil
		}
		if n, ok := asInt(v); ok {
			return -n, nil
		}
		if f, ok := numeric(v); ok {
			return -f, nil
		}
		return nil, &TypeMismatchError{Op: "unary -", Detail: fmt.Sprintf("non-numeric %T", v)}
	case "NOT":
		return triToValue(triNot(toTri(v))), nil
	}
	return nil, &ExecutionError{Stage: "aggregate", Msg: "unknown unary operator " + ex.Op}
}

// evalAggregateBinary folds both sides per group, then reuses the scalar
// operator on the folded values.
func evalAggregateBinary(env *ExecEnv, ex *Binary, rows []Row) (any, error) {
	lv, err := evalAggregate(env, ex.Left, rows)
	if err != nil {
		return nil, err
	}
	rv, err := evalAggregate(env, ex.Right, rows)
	if err != nil {
		return nil, err
	}
	return evalExpr(env, &Binary{Op: ex.Op, Left: &Literal{Val: lv}, Right: &Literal{Val: rv}}, Row{})
}

func evalAggregateIsNull(env *ExecEnv, ex *IsNull, rows []Row) (any, error) {
	v, err := evalAggregate(env, ex.Expr, rows)
	if err != nil {
		return nil, err
	}
	is := v == nil
	if ex.Negate {
		return !is, nil
	}
	return is, nil
}
