// Package expr holds the expression trees used for scan qualifiers, with
// constant folding and row-at-a-time evaluation.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// Expr is a node of an expression tree
type Expr interface {
	String() string
}

// Var references the output column at position Attno (1-based).
type Var struct {
	Attno int
	Name  string
	Type  vectorized.DataType
}

// Const is a literal; a nil Value is SQL NULL.
type Const struct {
	Value interface{}
	Type  vectorized.DataType
}

// Param is an externally supplied parameter ($n).
type Param struct {
	ID   int
	Type vectorized.DataType
}

// Op is a binary operator
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
)

var opNames = map[Op]string{
	OpEq: "=", OpNe: "<>", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// LookupOp resolves an operator symbol.
func LookupOp(symbol string) (Op, bool) {
	if symbol == "!=" {
		return OpNe, true
	}
	for op, name := range opNames {
		if name == symbol {
			return op, true
		}
	}
	return 0, false
}

func (op Op) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// Commutator returns the operator to use when the operands are swapped.
func (op Op) Commutator() (Op, bool) {
	switch op {
	case OpEq, OpNe, OpAdd, OpMul:
		return op, true
	case OpLt:
		return OpGt, true
	case OpGt:
		return OpLt, true
	case OpLe:
		return OpGe, true
	case OpGe:
		return OpLe, true
	}
	return 0, false
}

// FilterOperator maps a comparison to its vectorized kernel operator.
func (op Op) FilterOperator() (vectorized.FilterOperator, bool) {
	switch op {
	case OpEq:
		return vectorized.EQ, true
	case OpNe:
		return vectorized.NE, true
	case OpLt:
		return vectorized.LT, true
	case OpLe:
		return vectorized.LE, true
	case OpGt:
		return vectorized.GT, true
	case OpGe:
		return vectorized.GE, true
	}
	return 0, false
}

// OpExpr applies a binary operator. Operators are strict: a NULL operand
// yields NULL.
type OpExpr struct {
	Op          Op
	Left, Right Expr
}

// Volatility classifies how often a function result may change
type Volatility int

const (
	Immutable Volatility = iota // same result for the same arguments forever
	Stable                      // same result within one scan
	Volatile                    // may change on every call
)

func (v Volatility) String() string {
	switch v {
	case Immutable:
		return "immutable"
	case Stable:
		return "stable"
	}
	return "volatile"
}

// FuncExpr calls a function. Strict functions return NULL when any
// argument is NULL without calling Fn.
type FuncExpr struct {
	Name       string
	Volatility Volatility
	Strict     bool
	Args       []Expr
	Fn         func(args []interface{}) (interface{}, error)
}

// BoolOp is a logical connective
type BoolOp int

const (
	And BoolOp = iota
	Or
	Not
)

// BoolExpr combines boolean expressions with three-valued logic.
type BoolExpr struct {
	Op   BoolOp
	Args []Expr
}

// NullTest is "Arg IS NULL" or, with IsNull false, "Arg IS NOT NULL".
type NullTest struct {
	Arg    Expr
	IsNull bool
}

func (v *Var) String() string {
	if v.Name != "" {
		return v.Name
	}
	return "#" + strconv.Itoa(v.Attno)
}

func (c *Const) String() string {
	switch x := c.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	}
	return fmt.Sprint(c.Value)
}

func (p *Param) String() string {
	return "$" + strconv.Itoa(p.ID)
}

func (o *OpExpr) String() string {
	return "(" + o.Left.String() + " " + o.Op.String() + " " + o.Right.String() + ")"
}

func (f *FuncExpr) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

func (b *BoolExpr) String() string {
	if b.Op == Not && len(b.Args) == 1 {
		return "(NOT " + b.Args[0].String() + ")"
	}
	sep := " AND "
	if b.Op == Or {
		sep = " OR "
	}
	parts := make([]string, len(b.Args))
	for i, a := range b.Args {
		parts[i] = a.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (n *NullTest) String() string {
	if n.IsNull {
		return "(" + n.Arg.String() + " IS NULL)"
	}
	return "(" + n.Arg.String() + " IS NOT NULL)"
}

// Walk visits e and its descendants depth-first until fn returns false.
// It reports whether the walk ran to completion.
func Walk(e Expr, fn func(Expr) bool) bool {
	if !fn(e) {
		return false
	}
	switch n := e.(type) {
	case *OpExpr:
		return Walk(n.Left, fn) && Walk(n.Right, fn)
	case *FuncExpr:
		for _, a := range n.Args {
			if !Walk(a, fn) {
				return false
			}
		}
	case *BoolExpr:
		for _, a := range n.Args {
			if !Walk(a, fn) {
				return false
			}
		}
	case *NullTest:
		return Walk(n.Arg, fn)
	}
	return true
}

func contains(e Expr, match func(Expr) bool) bool {
	found := false
	Walk(e, func(n Expr) bool {
		found = match(n)
		return !found
	})
	return found
}

// ContainsVar reports whether e references any column.
func ContainsVar(e Expr) bool {
	return contains(e, func(n Expr) bool { _, ok := n.(*Var); return ok })
}

// ContainsParam reports whether e references a parameter.
func ContainsParam(e Expr) bool {
	return contains(e, func(n Expr) bool { _, ok := n.(*Param); return ok })
}

// ContainsVolatile reports whether e calls a volatile function.
func ContainsVolatile(e Expr) bool {
	return contains(e, func(n Expr) bool {
		f, ok := n.(*FuncExpr)
		return ok && f.Volatility == Volatile
	})
}

// IsRuntimeConstant reports whether e can be evaluated once before a scan
// starts: no column references, no parameters, no volatile calls.
func IsRuntimeConstant(e Expr) bool {
	return !ContainsVar(e) && !ContainsParam(e) && !ContainsVolatile(e)
}

// Vars returns the distinct attribute numbers referenced by e.
func Vars(e Expr) []int {
	seen := make(map[int]bool)
	var out []int
	Walk(e, func(n Expr) bool {
		if v, ok := n.(*Var); ok && !seen[v.Attno] {
			seen[v.Attno] = true
			out = append(out, v.Attno)
		}
		return true
	})
	return out
}
