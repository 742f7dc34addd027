// Recursive-descent parser for the Oracle-like dialect: SELECT with joins,
// grouping, windows, ROWNUM limiting and output redirection, plus CREATE
// TABLE AS. The parser validates structure only; name resolution and type
// checks happen in the executor. One statement, one parse, fail-fast.
package engine

import (
	"strconv"
	"strings"
)

// Parser holds the lexer and the current/peek tokens. Lexer errors are
// deferred until the parser actually reaches the bad token, so an output
// redirection path whose characters are not SQL tokens still parses.
type Parser struct {
	lx     *lexer
	cur    token
	peek   token
	lexErr error
}

// Parse tokenizes and parses a single SQL statement.
func Parse(sql string) (Statement, error) {
	p := &Parser{lx: newLexer(sql)}
	p.cur = p.fetch()
	p.peek = p.fetch()
	return p.parseStatement()
}

// fetch lexes one token, stashing a lexer error behind an EOF placeholder.
func (p *Parser) fetch() token {
	if p.lexErr != nil {
		return token{Typ: tEOF, Pos: p.lx.pos}
	}
	t, err := p.lx.nextToken()
	if err != nil {
		p.lexErr = err
		return token{Typ: tEOF, Pos: p.lx.pos}
	}
	return t
}

func (p *Parser) next() error {
	if p.cur.Typ == tEOF && p.lexErr != nil {
		return p.lexErr
	}
	p.cur, p.peek = p.peek, p.fetch()
	return nil
}

func (p *Parser) errf(expected string) error {
	if p.lexErr != nil && p.cur.Typ == tEOF {
		return p.lexErr
	}
	return &SyntaxError{Offset: p.cur.Pos, Got: p.cur.Val, Expected: expected}
}

func (p *Parser) isKeyword(kw string) bool {
	return p.cur.Typ == tKeyword && p.cur.Val == kw
}

func (p *Parser) isSymbol(sym string) bool {
	return p.cur.Typ == tSymbol && p.cur.Val == sym
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errf("keyword " + kw)
	}
	return p.next()
}

func (p *Parser) expectSymbol(sym string) error {
	if !p.isSymbol(sym) {
		return p.errf("symbol " + strconv.Quote(sym))
	}
	return p.next()
}

func (p *Parser) parseStatement() (Statement, error) {
	var st Statement
	var err error
	switch {
	case p.isKeyword("CREATE"):
		st, err = p.parseCreateTableAs()
	case p.isKeyword("SELECT"):
		st, err = p.parseSelect()
	default:
		return nil, p.errf("SELECT or CREATE TABLE")
	}
	if err != nil {
		return nil, err
	}
	if p.isSymbol(";") {
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if p.cur.Typ != tEOF {
		return nil, p.errf("end of statement")
	}
	if p.lexErr != nil {
		return nil, p.lexErr
	}
	return st, nil
}

func (p *Parser) parseCreateTableAs() (Statement, error) {
	if err := p.next(); err != nil { // CREATE
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, ok := p.takeIdentLike()
	if !ok {
		return nil, p.errf("table name")
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	sel, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if sel.OutputPath != "" {
		return nil, &SyntaxError{Offset: p.cur.Pos, Expected: "no output redirection in CREATE TABLE AS"}
	}
	return &CreateTableAs{Name: name, Select: sel}, nil
}

func (p *Parser) parseSelect() (*Select, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	sel := &Select{}
	if p.isKeyword("DISTINCT") {
		sel.Distinct = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.parseProjections(sel); err != nil {
		return nil, err
	}
	if err := p.parseFromList(sel); err != nil {
		return nil, err
	}
	if err := p.parseJoins(sel); err != nil {
		return nil, err
	}
	if p.isKeyword("WHERE") {
		if err := p.next(); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		where, limit, err := extractRowLimit(cond, false)
		if err != nil {
			return nil, err
		}
		sel.Where = where
		sel.RowLimit = limit
	}
	if err := p.parseGroupBy(sel); err != nil {
		return nil, err
	}
	if p.isKeyword("HAVING") {
		if err := p.next(); err != nil {
			return nil, err
		}
		having, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Having = having
	}
	if err := p.parseOrderBy(&sel.OrderBy); err != nil {
		return nil, err
	}
	for _, it := range sel.Projs {
		if it.Expr != nil && containsRownum(it.Expr) {
			return nil, &SyntaxError{Expected: "ROWNUM only in a top-level AND condition of WHERE"}
		}
	}
	if sel.Having != nil && containsRownum(sel.Having) {
		return nil, &SyntaxError{Expected: "ROWNUM only in a top-level AND condition of WHERE"}
	}
	// Output redirection: a `>` where only the statement end may appear is
	// a redirect, never a comparison. The path is taken verbatim from the
	// raw input because file paths are not SQL tokens.
	if p.isSymbol(">") {
		path := p.lx.rest(p.cur.Pos + 1)
		path = strings.TrimSuffix(path, ";")
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, p.errf("output path after '>'")
		}
		sel.OutputPath = path
		p.cur = token{Typ: tEOF, Pos: len(p.lx.s)}
		p.peek = p.cur
		p.lexErr = nil // the unlexable remainder was the path
	}
	return sel, nil
}

func (p *Parser) parseProjections(sel *Select) error {
	for {
		if p.isSymbol("*") {
			sel.Projs = append(sel.Projs, SelectItem{Star: true})
			if err := p.next(); err != nil {
				return err
			}
		} else {
			e, err := p.parseProjExpr()
			if err != nil {
				return err
			}
			alias := ""
			if p.isKeyword("AS") {
				if err := p.next(); err != nil {
					return err
				}
				a, ok := p.takeIdentLike()
				if !ok {
					return p.errf("alias")
				}
				alias = a
			} else if p.cur.Typ == tIdent || p.cur.Typ == tQuoted {
				alias = p.cur.Val
				if err := p.next(); err != nil {
					return err
				}
			}
			sel.Projs = append(sel.Projs, SelectItem{Expr: e, Alias: alias})
		}
		if p.isSymbol(",") {
			if err := p.next(); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

// parseProjExpr parses a projection expression. Unlike condition context,
// a single-quoted token here names a column ('Full Name'), matching the
// dialect's quoted-identifier rules.
func (p *Parser) parseProjExpr() (Expr, error) {
	if p.cur.Typ == tString {
		name := p.cur.Val
		if err := p.next(); err != nil {
			return nil, err
		}
		return &VarRef{Name: name}, nil
	}
	return p.parseExpr()
}

func (p *Parser) parseFromList(sel *Select) error {
	if err := p.expectKeyword("FROM"); err != nil {
		return err
	}
	for {
		item, err := p.parseTableRef()
		if err != nil {
			return err
		}
		sel.From = append(sel.From, item)
		if p.isSymbol(",") {
			if err := p.next(); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

func (p *Parser) parseTableRef() (FromItem, error) {
	name, ok := p.takeIdentLike()
	if !ok {
		return FromItem{}, p.errf("table reference")
	}
	alias := name
	if p.isKeyword("AS") {
		if err := p.next(); err != nil {
			return FromItem{}, err
		}
		a, ok := p.takeIdentLike()
		if !ok {
			return FromItem{}, p.errf("alias")
		}
		alias = a
	} else if p.cur.Typ == tIdent || p.cur.Typ == tQuoted {
		alias = p.cur.Val
		if err := p.next(); err != nil {
			return FromItem{}, err
		}
	}
	return FromItem{Table: name, Alias: alias}, nil
}

func (p *Parser) parseJoins(sel *Select) error {
	for {
		jt := JoinInner
		explicit := false
		switch {
		case p.isKeyword("JOIN"):
			explicit = true
		case p.isKeyword("INNER"), p.isKeyword("CROSS"):
			cross := p.isKeyword("CROSS")
			if err := p.next(); err != nil {
				return err
			}
			if err := p.expectKeyword("JOIN"); err != nil {
				return err
			}
			right, err := p.parseTableRef()
			if err != nil {
				return err
			}
			var on Expr
			if !cross {
				if err := p.expectKeyword("ON"); err != nil {
					return err
				}
				if on, err = p.parseExpr(); err != nil {
					return err
				}
			}
			sel.Joins = append(sel.Joins, JoinClause{Type: JoinInner, Right: right, On: on})
			continue
		case p.isKeyword("LEFT"), p.isKeyword("RIGHT"), p.isKeyword("FULL"):
			switch p.cur.Val {
			case "LEFT":
				jt = JoinLeft
			case "RIGHT":
				jt = JoinRight
			case "FULL":
				jt = JoinFull
			}
			if err := p.next(); err != nil {
				return err
			}
			if p.isKeyword("OUTER") {
				if err := p.next(); err != nil {
					return err
				}
			}
			if err := p.expectKeyword("JOIN"); err != nil {
				return err
			}
			explicit = true
			right, err := p.parseTableRef()
			if err != nil {
				return err
			}
			if err := p.expectKeyword("ON"); err != nil {
				return err
			}
			on, err := p.parseExpr()
			if err != nil {
				return err
			}
			sel.Joins = append(sel.Joins, JoinClause{Type: jt, Right: right, On: on})
			continue
		default:
			return nil
		}
		if explicit && p.isKeyword("JOIN") {
			if err := p.next(); err != nil {
				return err
			}
			right, err := p.parseTableRef()
			if err != nil {
				return err
			}
			if err := p.expectKeyword("ON"); err != nil {
				return err
			}
			on, err := p.parseExpr()
			if err != nil {
				return err
			}
			sel.Joins = append(sel.Joins, JoinClause{Type: JoinInner, Right: right, On: on})
		}
	}
}

func (p *Parser) parseGroupBy(sel *Select) error {
	if !p.isKeyword("GROUP") {
		return nil
	}
	if err := p.next(); err != nil {
		return err
	}
	if err := p.expectKeyword("BY"); err != nil {
		return err
	}
	for {
		col, ok := p.takeColumnName()
		if !ok {
			return p.errf("GROUP BY column")
		}
		sel.GroupBy = append(sel.GroupBy, VarRef{Name: col})
		if p.isSymbol(",") {
			if err := p.next(); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

func (p *Parser) parseOrderBy(out *[]OrderItem) error {
	if !p.isKeyword("ORDER") {
		return nil
	}
	if err := p.next(); err != nil {
		return err
	}
	if err := p.expectKeyword("BY"); err != nil {
		return err
	}
	for {
		col, ok := p.takeColumnName()
		if !ok {
			return p.errf("ORDER BY column")
		}
		item := OrderItem{Col: col}
		if p.isKeyword("ASC") || p.isKeyword("DESC") {
			item.Desc = p.cur.Val == "DESC"
			if err := p.next(); err != nil {
				return err
			}
		}
		*out = append(*out, item)
		if p.isSymbol(",") {
			if err := p.next(); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

// takeIdentLike consumes a bare or quoted identifier. Table references and
// aliases accept single-quoted forms too, so names with spaces work.
func (p *Parser) takeIdentLike() (string, bool) {
	if p.cur.Typ == tIdent || p.cur.Typ == tQuoted || p.cur.Typ == tString {
		s := p.cur.Val
		if p.next() != nil {
			return "", false
		}
		return s, true
	}
	return "", false
}

// takeColumnName consumes a column name in a column-list position.
func (p *Parser) takeColumnName() (string, bool) {
	return p.takeIdentLike()
}

// ------------------------------ expressions ------------------------------

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		if err := p.next(); err != nil {
			return nil, err
		}
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "OR", Left: l, Right: r}
	}
	return l, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		if err := p.next(); err != nil {
			return nil, err
		}
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "AND", Left: l, Right: r}
	}
	return l, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.isKeyword("NOT") {
		if err := p.next(); err != nil {
			return nil, err
		}
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "NOT", Expr: e}, nil
	}
	return p.parsePredicate()
}

// parsePredicate parses a comparison, LIKE, IN, BETWEEN, or IS NULL
// predicate around additive expressions.
func (p *Parser) parsePredicate() (Expr, error) {
	l, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	negate := false
	if p.isKeyword("NOT") && (p.peek.Typ == tKeyword &&
		(p.peek.Val == "LIKE" || p.peek.Val == "IN" || p.peek.Val == "BETWEEN")) {
		negate = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	switch {
	case p.cur.Typ == tSymbol && isCmpOp(p.cur.Val):
		op := p.cur.Val
		if err := p.next(); err != nil {
			return nil, err
		}
		r, err := p.parseAddSub()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Left: l, Right: r}, nil
	case p.isKeyword("LIKE"):
		if err := p.next(); err != nil {
			return nil, err
		}
		r, err := p.parseAddSub()
		if err != nil {
			return nil, err
		}
		like := Expr(&Binary{Op: "LIKE", Left: l, Right: r})
		if negate {
			like = &Unary{Op: "NOT", Expr: like}
		}
		return like, nil
	case p.isKeyword("IN"):
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		var items []Expr
		for {
			it, err := p.parseAddSub()
			if err != nil {
				return nil, err
			}
			items = append(items, it)
			if p.isSymbol(",") {
				if err := p.next(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &InList{Expr: l, Items: items, Negate: negate}, nil
	case p.isKeyword("BETWEEN"):
		if err := p.next(); err != nil {
			return nil, err
		}
		lo, err := p.parseAddSub()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		hi, err := p.parseAddSub()
		if err != nil {
			return nil, err
		}
		return &Between{Expr: l, Lo: lo, Hi: hi, Negate: negate}, nil
	case p.isKeyword("IS"):
		if err := p.next(); err != nil {
			return nil, err
		}
		neg := false
		if p.isKeyword("NOT") {
			neg = true
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return &IsNull{Expr: l, Negate: neg}, nil
	}
	if negate {
		return nil, p.errf("LIKE, IN or BETWEEN after NOT")
	}
	return l, nil
}

func isCmpOp(s string) bool {
	switch s {
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func (p *Parser) parseAddSub() (Expr, error) {
	l, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == tSymbol && (p.cur.Val == "+" || p.cur.Val == "-") {
		op := p.cur.Val
		if err := p.next(); err != nil {
			return nil, err
		}
		r, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, Left: l, Right: r}
	}
	return l, nil
}

func (p *Parser) parseMulDiv() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == tSymbol && (p.cur.Val == "*" || p.cur.Val == "/") {
		op := p.cur.Val
		if err := p.next(); err != nil {
			return nil, err
		}
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, Left: l, Right: r}
	}
	return l, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.cur.Typ == tSymbol && (p.cur.Val == "+" || p.cur.Val == "-") {
		op := p.cur.Val
		if err := p.next(); err != nil {
			return nil, err
		}
		e, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Expr: e}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch p.cur.Typ {
	case tNumber:
		val := p.cur.Val
		if err := p.next(); err != nil {
			return nil, err
		}
		if n, err := strconv.Atoi(val); err == nil {
			return &Literal{Val: n}, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, &SyntaxError{Offset: p.cur.Pos, Got: val, Expected: "numeric literal"}
		}
		return &Literal{Val: f}, nil
	case tString:
		s := p.cur.Val
		if err := p.next(); err != nil {
			return nil, err
		}
		return &Literal{Val: s}, nil
	case tQuoted, tIdent:
		name := p.cur.Val
		if err := p.next(); err != nil {
			return nil, err
		}
		return &VarRef{Name: name}, nil
	case tKeyword:
		switch p.cur.Val {
		case "COUNT", "SUM", "AVG", "MIN", "MAX", "STDDEV", "VARIANCE":
			return p.parseAggregateCall()
		case "ROW_NUMBER", "RANK", "DENSE_RANK", "LAG", "LEAD":
			return p.parseWindowCall()
		case "TRUE":
			if err := p.next(); err != nil {
				return nil, err
			}
			return &Literal{Val: true}, nil
		case "FALSE":
			if err := p.next(); err != nil {
				return nil, err
			}
			return &Literal{Val: false}, nil
		case "NULL":
			if err := p.next(); err != nil {
				return nil, err
			}
			return &Literal{Val: nil}, nil
		case "ROWNUM":
			if err := p.next(); err != nil {
				return nil, err
			}
			return &VarRef{Name: "ROWNUM"}, nil
		}
		return nil, p.errf("expression")
	case tSymbol:
		if p.cur.Val == "(" {
			if err := p.next(); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	return nil, p.errf("expression")
}

func (p *Parser) parseAggregateCall() (Expr, error) {
	name := p.cur.Val
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	fc := &FuncCall{Name: name}
	if p.isSymbol("*") {
		if name != "COUNT" {
			return nil, p.errf("column argument for " + name)
		}
		fc.Star = true
		if err := p.next(); err != nil {
			return nil, err
		}
	} else {
		if p.isKeyword("DISTINCT") {
			fc.Distinct = true
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseProjExpr()
		if err != nil {
			return nil, err
		}
		fc.Arg = arg
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return fc, nil
}

func (p *Parser) parseWindowCall() (Expr, error) {
	name := p.cur.Val
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	wc := &WindowCall{Name: name}
	if !p.isSymbol(")") {
		col, ok := p.takeColumnName()
		if !ok {
			return nil, p.errf("column reference")
		}
		wc.Arg = &VarRef{Name: col}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if (name == "LAG" || name == "LEAD") && wc.Arg == nil {
		return nil, &SyntaxError{Offset: p.cur.Pos, Expected: name + " source column"}
	}
	if err := p.expectKeyword("OVER"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	if p.isKeyword("PARTITION") {
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			col, ok := p.takeColumnName()
			if !ok {
				return nil, p.errf("PARTITION BY column")
			}
			wc.PartitionBy = append(wc.PartitionBy, VarRef{Name: col})
			if p.isSymbol(",") {
				if err := p.next(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}
	if err := p.parseOrderBy(&wc.OrderBy); err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return wc, nil
}

// ------------------------------ ROWNUM ------------------------------

// extractRowLimit pulls `ROWNUM <= N` / `ROWNUM < N` conjuncts out of a
// WHERE tree and returns the remaining predicate plus the row cap. ROWNUM
// is a limiting directive, never a per-row column: any other use of it is
// a syntax error, including uses buried under OR or NOT where removal
// would change the predicate's meaning.
func extractRowLimit(e Expr, underOrNot bool) (Expr, *int, error) {
	switch ex := e.(type) {
	case *Binary:
		if ex.Op == "AND" && !underOrNot {
			left, llim, err := extractRowLimit(ex.Left, false)
			if err != nil {
				return nil, nil, err
			}
			right, rlim, err := extractRowLimit(ex.Right, false)
			if err != nil {
				return nil, nil, err
			}
			if llim != nil && rlim != nil {
				return nil, nil, &SyntaxError{Expected: "a single ROWNUM condition"}
			}
			lim := llim
			if lim == nil {
				lim = rlim
			}
			switch {
			case left == nil && right == nil:
				return nil, lim, nil
			case left == nil:
				return right, lim, nil
			case right == nil:
				return left, lim, nil
			default:
				return &Binary{Op: "AND", Left: left, Right: right}, lim, nil
			}
		}
		if isRownumRef(ex.Left) {
			if underOrNot {
				return nil, nil, &SyntaxError{Expected: "ROWNUM only in a top-level AND condition"}
			}
			n, ok := intLiteral(ex.Right)
			if !ok {
				return nil, nil, &SyntaxError{Expected: "integer literal after ROWNUM comparison"}
			}
			switch ex.Op {
			case "<=":
				return nil, &n, nil
			case "<":
				m := n - 1
				return nil, &m, nil
			default:
				return nil, nil, &SyntaxError{Expected: "ROWNUM < or ROWNUM <="}
			}
		}
		if containsRownum(ex.Left) || containsRownum(ex.Right) {
			nested := underOrNot || ex.Op == "OR"
			if _, _, err := extractRowLimit(ex.Left, nested); err != nil {
				return nil, nil, err
			}
			if _, _, err := extractRowLimit(ex.Right, nested); err != nil {
				return nil, nil, err
			}
			return nil, nil, &SyntaxError{Expected: "ROWNUM only in a top-level AND condition"}
		}
		return e, nil, nil
	case *Unary:
		if containsRownum(ex.Expr) {
			return nil, nil, &SyntaxError{Expected: "ROWNUM only in a top-level AND condition"}
		}
		return e, nil, nil
	default:
		if containsRownum(e) {
			return nil, nil, &SyntaxError{Expected: "ROWNUM < or ROWNUM <="}
		}
		return e, nil, nil
	}
}

func isRownumRef(e Expr) bool {
	v, ok := e.(*VarRef)
	return ok && strings.EqualFold(v.Name, "ROWNUM")
}

func containsRownum(e Expr) bool {
	switch ex := e.(type) {
	case *VarRef:
		return strings.EqualFold(ex.Name, "ROWNUM")
	case *Unary:
		return containsRownum(ex.Expr)
	case *Binary:
		return containsRownum(ex.Left) || containsRownum(ex.Right)
	case *IsNull:
		return containsRownum(ex.Expr)
	case *Between:
		return containsRownum(ex.Expr) || containsRownum(ex.Lo) || containsRownum(ex.Hi)
	case *InList:
		if containsRownum(ex.Expr) {
			return true
		}
		for _, it := range ex.Items {
			if containsRownum(it) {
				return true
			}
		}
	}
	return false
}

func intLiteral(e Expr) (int, bool) {
	lit, ok := e.(*Literal)
	if !ok {
		return 0, false
	}
	n, ok := lit.Val.(int)
	return n, ok
}
