package engine

// AST node kinds. Statements and expressions are tagged variants: the
// executor dispatches with exhaustive type switches, so adding a clause
// means touching an enumerable set of places.

// Statement is the root of every parsed SQL statement.
type Statement interface{ stmt() }

// Expr is any expression appearing in projections or condition trees.
type Expr interface{ expr() }

type (
	// VarRef refers to a column, optionally qualified ("alias.col").
	VarRef struct{ Name string }
	// Literal holds a constant (number, string, bool, NULL).
	Literal struct{ Val any }
	// Unary represents +, -, NOT.
	Unary struct {
		Op   string
		Expr Expr
	}
	// Binary represents arithmetic, comparisons, LIKE, AND/OR.
	Binary struct {
		Op          string
		Left, Right Expr
	}
	// IsNull represents IS [NOT] NULL.
	IsNull struct {
		Expr   Expr
		Negate bool
	}
	// Between represents expr [NOT] BETWEEN lo AND hi.
	Between struct {
		Expr   Expr
		Lo, Hi Expr
		Negate bool
	}
	// InList represents expr [NOT] IN (v1, v2, ...).
	InList struct {
		Expr   Expr
		Items  []Expr
		Negate bool
	}
	// FuncCall is an aggregate call: COUNT/SUM/AVG/MIN/MAX/STDDEV/VARIANCE,
	// optionally COUNT(*) or DISTINCT.
	FuncCall struct {
		Name     string
		Arg      Expr
		Star     bool
		Distinct bool
	}
	// WindowCall is fn(...) OVER (PARTITION BY ... ORDER BY ...).
	WindowCall struct {
		Name        string
		Arg         *VarRef // source column for LAG/LEAD, nil otherwise
		PartitionBy []VarRef
		OrderBy     []OrderItem
	}
)

func (*VarRef) expr()     {}
func (*Literal) expr()    {}
func (*Unary) expr()      {}
func (*Binary) expr()     {}
func (*IsNull) expr()     {}
func (*Between) expr()    {}
func (*InList) expr()     {}
func (*FuncCall) expr()   {}
func (*WindowCall) expr() {}

// FromItem binds a qualified table reference and its addressing alias.
type FromItem struct{ Table, Alias string }

type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
)

func (jt JoinType) String() string {
	switch jt {
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	default:
		return "INNER"
	}
}

// JoinClause holds the join kind, the right-side table, and the ON
// predicate.
type JoinClause struct {
	Type  JoinType
	Right FromItem
	On    Expr
}

// SelectItem is one projection: an expression with optional alias, or *.
type SelectItem struct {
	Expr  Expr
	Alias string
	Star  bool
}

// OrderItem names an ordering column and direction.
type OrderItem struct {
	Col  string
	Desc bool
}

// Select is a parsed SELECT statement. RowLimit carries the cap extracted
// from a ROWNUM conjunct in WHERE; OutputPath records a trailing `> path`
// redirection for an external exporter to act on.
type Select struct {
	Distinct   bool
	Projs      []SelectItem
	From       []FromItem
	Joins      []JoinClause
	Where      Expr
	GroupBy    []VarRef
	Having     Expr
	OrderBy    []OrderItem
	RowLimit   *int
	OutputPath string
}

// CreateTableAs materializes a SELECT result as a session temporary table.
type CreateTableAs struct {
	Name   string
	Select *Select
}

func (*Select) stmt()        {}
func (*CreateTableAs) stmt() {}
