package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Scalar expression evaluation. NULL propagates as Go nil; predicates use
// tri-state logic where comparisons against NULL (and comparisons between
// incompatible kinds) are unknown rather than errors, so such rows simply
// fail the filter.

func evalExpr(env *ExecEnv, e Expr, row Row) (any, error) {
	if err := checkCtx(env.ctx); err != nil {
		return nil, err
	}
	switch ex := e.(type) {
	case *Literal:
		return ex.Val, nil
	case *VarRef:
		return evalVarRef(env, ex, row)
	case *IsNull:
		return evalIsNull(env, ex, row)
	case *Between:
		return evalBetween(env, ex, row)
	case *InList:
		return evalInList(env, ex, row)
	case *Unary:
		return evalUnary(env, ex, row)
	case *Binary:
		return evalBinary(env, ex, row)
	case *FuncCall:
		return nil, &ExecutionError{Stage: "eval", Msg: fmt.Sprintf("aggregate %s is not allowed here", ex.Name)}
	case *WindowCall:
		return nil, &ExecutionError{Stage: "eval", Msg: fmt.Sprintf("window function %s is only allowed as a projection", ex.Name)}
	}
	return nil, &ExecutionError{Stage: "eval", Msg: "unknown expression"}
}

func evalVarRef(env *ExecEnv, ex *VarRef, row Row) (any, error) {
	if env.isAmbiguous(ex.Name) {
		return nil, &AmbiguousColumnError{Name: ex.Name}
	}
	if v, ok := getVal(row, ex.Name); ok {
		return v, nil
	}
	return nil, &ColumnNotFoundError{Name: ex.Name}
}

func evalIsNull(env *ExecEnv, ex *IsNull, row Row) (any, error) {
	v, err := evalExpr(env, ex.Expr, row)
	if err != nil {
		return nil, err
	}
	is := v == nil
	if ex.Negate {
		return !is, nil
	}
	return is, nil
}

// evalBetween is expr >= lo AND expr <= hi with the usual tri-state
// behavior when any operand is NULL or incomparable.
func evalBetween(env *ExecEnv, ex *Between, row Row) (any, error) {
	v, err := evalExpr(env, ex.Expr, row)
	if err != nil {
		return nil, err
	}
	lo, err := evalExpr(env, ex.Lo, row)
	if err != nil {
		return nil, err
	}
	hi, err := evalExpr(env, ex.Hi, row)
	if err != nil {
		return nil, err
	}
	ge, err := evalComparisonBinary(">=", v, lo)
	if err != nil {
		return nil, err
	}
	le, err := evalComparisonBinary("<=", v, hi)
	if err != nil {
		return nil, err
	}
	t := triAnd(toTri(ge), toTri(le))
	if ex.Negate {
		t = triNot(t)
	}
	return triToValue(t), nil
}

// evalInList is a chain of equality checks: true on any match, unknown if
// no match but some comparison was unknown, false otherwise.
func evalInList(env *ExecEnv, ex *InList, row Row) (any, error) {
	v, err := evalExpr(env, ex.Expr, row)
	if err != nil {
		return nil, err
	}
	t := tvFalse
	for _, item := range ex.Items {
		iv, err := evalExpr(env, item, row)
		if err != nil {
			return nil, err
		}
		eq, err := evalComparisonBinary("=", v, iv)
		if err != nil {
			return nil, err
		}
		t = triOr(t, toTri(eq))
		if t == tvTrue {
			break
		}
	}
	if ex.Negate {
		t = triNot(t)
	}
	return triToValue(t), nil
}

func evalUnary(env *ExecEnv, ex *Unary, row Row) (any, error) {
	v, err := evalExpr(env, ex.Expr, row)
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
		if n, ok := v.(int); ok {
			return -n, nil
		}
		if f, ok := numeric(v); ok {
			return -f, nil
		}
		return nil, &TypeMismatchError{Op: "unary -", Detail: fmt.Sprintf("non-numeric %T", v)}
	case "NOT":
		return triToValue(triNot(toTri(v))), nil
	}
	return nil, &ExecutionError{Stage: "eval", Msg: "unknown unary operator " + ex.Op}
}

func evalBinary(env *ExecEnv, ex *Binary, row Row) (any, error) {
	if ex.Op == "AND" || ex.Op == "OR" {
		return evalLogicalBinary(env, ex, row)
	}
	lv, err := evalExpr(env, ex.Left, row)
	if err != nil {
		return nil, err
	}
	rv, err := evalExpr(env, ex.Right, row)
	if err != nil {
		return nil, err
	}
	switch ex.Op {
	case "+", "-", "*", "/":
		return evalArithmeticBinary(ex.Op, lv, rv)
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		return evalComparisonBinary(ex.Op, lv, rv)
	case "LIKE":
		return evalLike(lv, rv)
	}
	return nil, &ExecutionError{Stage: "eval", Msg: "unknown binary operator " + ex.Op}
}

func evalLogicalBinary(env *ExecEnv, ex *Binary, row Row) (any, error) {
	lv, err := evalExpr(env, ex.Left, row)
	if err != nil {
		return nil, err
	}
	// Short-circuit on the dominant value.
	if ex.Op == "AND" && toTri(lv) == tvFalse {
		return false, nil
	}
	if ex.Op == "OR" && toTri(lv) == tvTrue {
		return true, nil
	}
	rv, err := evalExpr(env, ex.Right, row)
	if err != nil {
		return nil, err
	}
	if ex.Op == "AND" {
		return triToValue(triAnd(toTri(lv), toTri(rv))), nil
	}
	return triToValue(triOr(toTri(lv), toTri(rv))), nil
}

// evalArithmeticBinary keeps integer arithmetic in int; any float operand
// promotes the result to float64.
func evalArithmeticBinary(op string, lv, rv any) (any, error) {
	if lv == nil || rv == nil {
		return nil, nil
	}
	li, lInt := asInt(lv)
	ri, rInt := asInt(rv)
	if lInt && rInt && op != "/" {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		}
	}
	lf, lok := numeric(lv)
	rf, rok := numeric(rv)
	if !lok || !rok {
		return nil, &TypeMismatchError{Op: op, Detail: fmt.Sprintf("operands %T and %T", lv, rv)}
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, &ExecutionError{Stage: "eval", Msg: "division by zero"}
		}
		return lf / rf, nil
	}
	return nil, &ExecutionError{Stage: "eval", Msg: "unknown arithmetic operator " + op}
}

func evalComparisonBinary(op string, lv, rv any) (any, error) {
	if lv == nil || rv == nil {
		return nil, nil
	}
	cmp, ok := compare(lv, rv)
	if !ok {
		// Incompatible kinds compare to unknown, not to an error, so a
		// filter over mixed-type data excludes rather than aborts.
		return nil, nil
	}
	switch op {
	case "=":
		return cmp == 0, nil
	case "!=", "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return nil, &ExecutionError{Stage: "eval", Msg: "unknown comparison operator " + op}
}

// evalLike matches SQL LIKE patterns: % for any run, _ for one character.
// Non-string operands make the predicate unknown.
func evalLike(lv, rv any) (any, error) {
	if lv == nil || rv == nil {
		return nil, nil
	}
	s, sok := lv.(string)
	pat, pok := rv.(string)
	if !sok || !pok {
		return nil, nil
	}
	re, err := likeRegexp(pat)
	if err != nil {
		return nil, &ExecutionError{Stage: "eval", Msg: "bad LIKE pattern " + pat}
	}
	return re.MatchString(s), nil
}

func likeRegexp(pat string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pat {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// -------------------- value helpers --------------------

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return false
	}
}

// tri-state
const (
	tvFalse   = 0
	tvTrue    = 1
	tvUnknown = 2
)

func toTri(v any) int {
	if v == nil {
		return tvUnknown
	}
	if truthy(v) {
		return tvTrue
	}
	return tvFalse
}

func triNot(t int) int {
	if t == tvTrue {
		return tvFalse
	}
	if t == tvFalse {
		return tvTrue
	}
	return tvUnknown
}

func triAnd(a, b int) int {
	if a == tvFalse || b == tvFalse {
		return tvFalse
	}
	if a == tvTrue && b == tvTrue {
		return tvTrue
	}
	return tvUnknown
}

func triOr(a, b int) int {
	if a == tvTrue || b == tvTrue {
		return tvTrue
	}
	if a == tvFalse && b == tvFalse {
		return tvFalse
	}
	return tvUnknown
}

func triToValue(t int) any {
	switch t {
	case tvTrue:
		return true
	case tvFalse:
		return false
	}
	return nil
}

// compare orders two non-nil values of compatible kinds. Numbers compare
// numerically across int/float, strings lexically, bools false<true. When a
// number meets text, the text side is parsed as a number and compared
// numerically; text that does not parse leaves the pair incomparable. The
// second return reports whether the values are comparable at all.
func compare(a, b any) (int, bool) {
	if af, ok := numeric(a); ok {
		if bf, ok := numeric(b); ok {
			return cmpFloat(af, bf), true
		}
		if bs, ok := b.(string); ok {
			if bf, ok := parseNumericText(bs); ok {
				return cmpFloat(af, bf), true
			}
		}
		return 0, false
	}
	switch ax := a.(type) {
	case string:
		if bf, ok := numeric(b); ok {
			if af, ok := parseNumericText(ax); ok {
				return cmpFloat(af, bf), true
			}
			return 0, false
		}
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(ax, bs), true
	case bool:
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if !ax && bb {
			return -1, true
		}
		if ax && !bb {
			return 1, true
		}
		return 0, true
	case time.Time:
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case ax.Before(bt):
			return -1, true
		case ax.After(bt):
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// parseNumericText backs the text-vs-number coercion: the text operand is
// parsed as a float so "5" matches 5 in filters and join conditions.
func parseNumericText(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

// compareForOrder is compare extended with a NULL policy for sorting:
// NULL orders as the smallest value, so NULLs lead ascending runs and
// trail descending ones.
func compareForOrder(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	c, ok := compare(a, b)
	if !ok {
		return 0
	}
	return c
}
