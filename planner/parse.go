package planner

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/rohan-flutterint/timescaledb-core/expr"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// ErrUnsupported is returned for SQL the planner does not translate.
var ErrUnsupported = errors.New("unsupported SQL")

// Query is a single-table SELECT over a compressed table.
type Query struct {
	// Columns are the projected columns; empty for SELECT *.
	Columns []string
	// Quals is the WHERE clause split at its top-level ANDs.
	Quals   []expr.Expr
	OrderBy []OrderColumn
	// Sum names the column of a SELECT sum(column) query.
	Sum string
}

// ParseQuery parses a SELECT statement of the form
//
//	SELECT cols | * | sum(col) FROM t [WHERE ...] [ORDER BY ...]
//
// resolving column references against the table of s.
func ParseQuery(sql string, s *CompressionSettings) (*Query, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse SQL")
	}
	if len(result.Stmts) != 1 {
		return nil, errors.Newf("expected one statement, found %d", len(result.Stmts))
	}
	stmt := result.Stmts[0].Stmt.GetSelectStmt()
	if stmt == nil {
		return nil, errors.Wrap(ErrUnsupported, "only SELECT statements are supported")
	}
	if len(stmt.FromClause) > 1 || len(stmt.GroupClause) > 0 || stmt.LimitCount != nil {
		return nil, errors.Wrap(ErrUnsupported, "joins, GROUP BY and LIMIT are not supported")
	}

	c := &converter{settings: s}
	q := &Query{}
	if err := c.targets(stmt.TargetList, q); err != nil {
		return nil, err
	}
	if stmt.WhereClause != nil {
		where, err := c.node(stmt.WhereClause)
		if err != nil {
			return nil, err
		}
		q.Quals = expr.SplitConjunction(where)
	}
	for _, n := range stmt.SortClause {
		sortBy := n.GetSortBy()
		if sortBy == nil {
			continue
		}
		name, err := c.columnName(sortBy.Node)
		if err != nil {
			return nil, errors.Wrap(err, "ORDER BY")
		}
		o := OrderColumn{Column: name, Descending: sortBy.SortbyDir == pg_query.SortByDir_SORTBY_DESC}
		switch sortBy.SortbyNulls {
		case pg_query.SortByNulls_SORTBY_NULLS_FIRST:
			o.NullsFirst = true
		case pg_query.SortByNulls_SORTBY_NULLS_LAST:
			o.NullsFirst = false
		default:
			// NULLs sort as larger than every value
			o.NullsFirst = o.Descending
		}
		q.OrderBy = append(q.OrderBy, o)
	}
	if q.Sum != "" && (len(q.Quals) > 0 || len(q.OrderBy) > 0) {
		return nil, errors.Wrap(ErrUnsupported, "sum() with WHERE or ORDER BY")
	}
	return q, nil
}

// ParseQuals parses a WHERE clause on its own.
func ParseQuals(where string, s *CompressionSettings) ([]expr.Expr, error) {
	q, err := ParseQuery("SELECT * FROM t WHERE "+where, s)
	if err != nil {
		return nil, err
	}
	return q.Quals, nil
}

type converter struct {
	settings *CompressionSettings
}

func (c *converter) targets(list []*pg_query.Node, q *Query) error {
	for _, n := range list {
		target := n.GetResTarget()
		if target == nil || target.Val == nil {
			return errors.Wrap(ErrUnsupported, "select list")
		}
		if ref := target.Val.GetColumnRef(); ref != nil && isStar(ref) {
			if len(list) > 1 {
				return errors.Wrap(ErrUnsupported, "* mixed with other columns")
			}
			return nil
		}
		if fn := target.Val.GetFuncCall(); fn != nil && funcName(fn) == "sum" {
			if len(list) > 1 || len(fn.Args) != 1 {
				return errors.Wrap(ErrUnsupported, "sum() must be the only output")
			}
			name, err := c.columnName(fn.Args[0])
			if err != nil {
				return errors.Wrap(err, "sum()")
			}
			q.Sum = name
			return nil
		}
		name, err := c.columnName(target.Val)
		if err != nil {
			return errors.Wrap(err, "select list")
		}
		q.Columns = append(q.Columns, name)
	}
	return nil
}

func isStar(ref *pg_query.ColumnRef) bool {
	return len(ref.Fields) > 0 && ref.Fields[len(ref.Fields)-1].GetAStar() != nil
}

func funcName(fn *pg_query.FuncCall) string {
	if len(fn.Funcname) == 0 {
		return ""
	}
	if str := fn.Funcname[len(fn.Funcname)-1].GetString_(); str != nil {
		return strings.ToLower(str.Sval)
	}
	return ""
}

// columnName resolves an unqualified or table-qualified column reference.
func (c *converter) columnName(n *pg_query.Node) (string, error) {
	ref := n.GetColumnRef()
	if ref == nil || len(ref.Fields) == 0 || isStar(ref) {
		return "", errors.Wrap(ErrUnsupported, "expected a column reference")
	}
	str := ref.Fields[len(ref.Fields)-1].GetString_()
	if str == nil {
		return "", errors.Wrap(ErrUnsupported, "expected a column reference")
	}
	if _, ok := c.settings.Attno(str.Sval); !ok {
		return "", errors.Wrapf(ErrUnknownColumn, "%s", str.Sval)
	}
	return str.Sval, nil
}

func (c *converter) node(n *pg_query.Node) (expr.Expr, error) {
	switch {
	case n.GetColumnRef() != nil:
		name, err := c.columnName(n)
		if err != nil {
			return nil, err
		}
		attno, _ := c.settings.Attno(name)
		return &expr.Var{Attno: attno, Name: name, Type: c.settings.column(attno).Type}, nil
	case n.GetAConst() != nil:
		return constant(n.GetAConst())
	case n.GetParamRef() != nil:
		return &expr.Param{ID: int(n.GetParamRef().Number), Type: vectorized.INT64}, nil
	case n.GetTypeCast() != nil:
		return c.typeCast(n.GetTypeCast())
	case n.GetAExpr() != nil:
		return c.aExpr(n.GetAExpr())
	case n.GetBoolExpr() != nil:
		return c.boolExpr(n.GetBoolExpr())
	case n.GetNullTest() != nil:
		arg, err := c.node(n.GetNullTest().Arg)
		if err != nil {
			return nil, err
		}
		return &expr.NullTest{Arg: arg, IsNull: n.GetNullTest().Nulltesttype == pg_query.NullTestType_IS_NULL}, nil
	case n.GetFuncCall() != nil:
		fn := n.GetFuncCall()
		args := make([]expr.Expr, len(fn.Args))
		for i, a := range fn.Args {
			arg, err := c.node(a)
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		call, err := expr.NewFuncCall(funcName(fn), args...)
		if err != nil {
			return nil, err
		}
		return call, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "expression node %T", n.Node)
}

func constant(a *pg_query.A_Const) (expr.Expr, error) {
	switch {
	case a.Isnull:
		return &expr.Const{Type: vectorized.INT64}, nil
	case a.GetIval() != nil:
		return &expr.Const{Value: int64(a.GetIval().Ival), Type: vectorized.INT64}, nil
	case a.GetFval() != nil:
		// integers beyond int32 arrive as float literals
		text := a.GetFval().Fval
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return &expr.Const{Value: i, Type: vectorized.INT64}, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "numeric literal %s", text)
		}
		return &expr.Const{Value: f, Type: vectorized.FLOAT64}, nil
	case a.GetSval() != nil:
		return &expr.Const{Value: a.GetSval().Sval, Type: vectorized.STRING}, nil
	case a.GetBoolval() != nil:
		return &expr.Const{Value: a.GetBoolval().Boolval, Type: vectorized.BOOLEAN}, nil
	}
	return nil, errors.Wrap(ErrUnsupported, "constant kind")
}

func (c *converter) aExpr(a *pg_query.A_Expr) (expr.Expr, error) {
	if len(a.Name) == 0 || a.Name[0].GetString_() == nil {
		return nil, errors.Wrap(ErrUnsupported, "operator without a name")
	}
	symbol := a.Name[len(a.Name)-1].GetString_().Sval
	left, err := c.node(a.Lexpr)
	if err != nil {
		return nil, err
	}

	switch a.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		op, ok := expr.LookupOp(symbol)
		if !ok {
			return nil, errors.Wrapf(ErrUnsupported, "operator %s", symbol)
		}
		right, err := c.node(a.Rexpr)
		if err != nil {
			return nil, err
		}
		return &expr.OpExpr{Op: op, Left: left, Right: right}, nil

	case pg_query.A_Expr_Kind_AEXPR_IN:
		items, err := c.list(a.Rexpr)
		if err != nil {
			return nil, err
		}
		// x IN (a, b) is x = a OR x = b, x NOT IN (a, b) is x <> a AND x <> b
		op, conn := expr.OpEq, expr.Or
		if symbol == "<>" {
			op, conn = expr.OpNe, expr.And
		}
		args := make([]expr.Expr, len(items))
		for i, item := range items {
			args[i] = &expr.OpExpr{Op: op, Left: left, Right: item}
		}
		if len(args) == 1 {
			return args[0], nil
		}
		return &expr.BoolExpr{Op: conn, Args: args}, nil

	case pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
		bounds, err := c.list(a.Rexpr)
		if err != nil {
			return nil, err
		}
		if len(bounds) != 2 {
			return nil, errors.Newf("BETWEEN needs two bounds, got %d", len(bounds))
		}
		between := &expr.BoolExpr{Op: expr.And, Args: []expr.Expr{
			&expr.OpExpr{Op: expr.OpGe, Left: left, Right: bounds[0]},
			&expr.OpExpr{Op: expr.OpLe, Left: left, Right: bounds[1]},
		}}
		if a.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN {
			return &expr.BoolExpr{Op: expr.Not, Args: []expr.Expr{between}}, nil
		}
		return between, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "expression kind %s", a.Kind)
}

func (c *converter) list(n *pg_query.Node) ([]expr.Expr, error) {
	l := n.GetList()
	if l == nil {
		return nil, errors.Wrap(ErrUnsupported, "expected a list")
	}
	out := make([]expr.Expr, len(l.Items))
	for i, item := range l.Items {
		e, err := c.node(item)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (c *converter) boolExpr(b *pg_query.BoolExpr) (expr.Expr, error) {
	args := make([]expr.Expr, len(b.Args))
	for i, a := range b.Args {
		e, err := c.node(a)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	switch b.Boolop {
	case pg_query.BoolExprType_AND_EXPR:
		return &expr.BoolExpr{Op: expr.And, Args: args}, nil
	case pg_query.BoolExprType_OR_EXPR:
		return &expr.BoolExpr{Op: expr.Or, Args: args}, nil
	case pg_query.BoolExprType_NOT_EXPR:
		return &expr.BoolExpr{Op: expr.Not, Args: args}, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "boolean operator %s", b.Boolop)
}

// typeCast applies a cast to a constant or gives a parameter its type.
// Casts of columns are not supported.
func (c *converter) typeCast(tc *pg_query.TypeCast) (expr.Expr, error) {
	dt, err := castType(tc.TypeName)
	if err != nil {
		return nil, err
	}
	arg, err := c.node(tc.Arg)
	if err != nil {
		return nil, err
	}
	switch a := arg.(type) {
	case *expr.Param:
		a.Type = dt
		return a, nil
	case *expr.Const:
		v, err := castValue(a.Value, dt)
		if err != nil {
			return nil, err
		}
		return &expr.Const{Value: v, Type: dt}, nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "cast of %s", arg)
}

var typeNames = map[string]vectorized.DataType{
	"int2":        vectorized.INT16,
	"smallint":    vectorized.INT16,
	"int4":        vectorized.INT32,
	"int":         vectorized.INT32,
	"integer":     vectorized.INT32,
	"int8":        vectorized.INT64,
	"bigint":      vectorized.INT64,
	"float4":      vectorized.FLOAT32,
	"real":        vectorized.FLOAT32,
	"float8":      vectorized.FLOAT64,
	"numeric":     vectorized.FLOAT64,
	"text":        vectorized.STRING,
	"varchar":     vectorized.STRING,
	"bool":        vectorized.BOOLEAN,
	"date":        vectorized.DATE,
	"timestamp":   vectorized.TIMESTAMP,
	"timestamptz": vectorized.TIMESTAMP,
}

func castType(tn *pg_query.TypeName) (vectorized.DataType, error) {
	if tn == nil || len(tn.Names) == 0 {
		return 0, errors.Wrap(ErrUnsupported, "cast without a type")
	}
	str := tn.Names[len(tn.Names)-1].GetString_()
	if str == nil {
		return 0, errors.Wrap(ErrUnsupported, "cast type name")
	}
	dt, ok := typeNames[strings.ToLower(str.Sval)]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupported, "cast to %s", str.Sval)
	}
	return dt, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// castValue converts a literal. Timestamps are microseconds and dates days
// since the Unix epoch, in UTC.
func castValue(v interface{}, dt vectorized.DataType) (interface{}, error) {
	s, isString := v.(string)
	if v == nil || !isString {
		return vectorized.Coerce(v, dt)
	}
	switch dt {
	case vectorized.STRING:
		return s, nil
	case vectorized.BOOLEAN:
		return strconv.ParseBool(s)
	case vectorized.TIMESTAMP, vectorized.DATE:
		for _, layout := range timestampLayouts {
			t, err := time.ParseInLocation(layout, s, time.UTC)
			if err != nil {
				continue
			}
			if dt == vectorized.DATE {
				return int32(t.Unix() / 86400), nil
			}
			return t.UnixMicro(), nil
		}
		return nil, errors.Newf("invalid input syntax for type %s: %q", dt, s)
	case vectorized.FLOAT32, vectorized.FLOAT64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "cast %q to %s", s, dt)
		}
		return vectorized.Coerce(f, dt)
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "cast %q to %s", s, dt)
	}
	return vectorized.Coerce(i, dt)
}
