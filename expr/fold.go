package expr

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// Fold replaces every runtime-constant subtree of e with its value and
// simplifies boolean connectives around constants. Strict operators with a
// constant NULL operand fold to NULL even if the other side is not constant.
func Fold(e Expr, params Params) (Expr, error) {
	if _, ok := e.(*Const); ok {
		return e, nil
	}
	if IsRuntimeConstant(e) {
		v, err := Eval(e, nil, params)
		if err != nil {
			return nil, err
		}
		return &Const{Value: v, Type: typeOfValue(v)}, nil
	}
	switch n := e.(type) {
	case *OpExpr:
		l, err := Fold(n.Left, params)
		if err != nil {
			return nil, err
		}
		r, err := Fold(n.Right, params)
		if err != nil {
			return nil, err
		}
		if isNullConst(l) || isNullConst(r) {
			return &Const{Type: vectorized.BOOLEAN}, nil
		}
		return &OpExpr{Op: n.Op, Left: l, Right: r}, nil
	case *FuncExpr:
		args := make([]Expr, len(n.Args))
		for i, a := range n.Args {
			f, err := Fold(a, params)
			if err != nil {
				return nil, err
			}
			if n.Strict && n.Volatility != Volatile && isNullConst(f) {
				return &Const{}, nil
			}
			args[i] = f
		}
		out := *n
		out.Args = args
		return &out, nil
	case *NullTest:
		arg, err := Fold(n.Arg, params)
		if err != nil {
			return nil, err
		}
		return &NullTest{Arg: arg, IsNull: n.IsNull}, nil
	case *BoolExpr:
		return foldBool(n, params)
	}
	return e, nil
}

func foldBool(n *BoolExpr, params Params) (Expr, error) {
	args := make([]Expr, 0, len(n.Args))
	for _, a := range n.Args {
		f, err := Fold(a, params)
		if err != nil {
			return nil, err
		}
		args = append(args, f)
	}
	if n.Op == Not {
		if c, ok := args[0].(*Const); ok {
			if b, isBool := c.Value.(bool); isBool {
				return BoolConst(!b), nil
			}
			return &Const{Type: vectorized.BOOLEAN}, nil
		}
		return &BoolExpr{Op: Not, Args: args}, nil
	}
	dominant := n.Op == Or
	kept := args[:0]
	for _, a := range args {
		if c, ok := a.(*Const); ok {
			if b, isBool := c.Value.(bool); isBool {
				if b == dominant {
					return BoolConst(dominant), nil
				}
				// the neutral constant drops out
				continue
			}
		}
		kept = append(kept, a)
	}
	switch len(kept) {
	case 0:
		return BoolConst(!dominant), nil
	case 1:
		return kept[0], nil
	}
	return &BoolExpr{Op: n.Op, Args: kept}, nil
}

// BoolConst returns a boolean literal.
func BoolConst(b bool) *Const {
	return &Const{Value: b, Type: vectorized.BOOLEAN}
}

func isNullConst(e Expr) bool {
	c, ok := e.(*Const)
	return ok && c.Value == nil
}

func typeOfValue(v interface{}) vectorized.DataType {
	if dt, ok := vectorized.TypeOf(v); ok {
		return dt
	}
	return vectorized.BOOLEAN
}

// SplitConjunction flattens nested ANDs into a list of qualifiers.
func SplitConjunction(e Expr) []Expr {
	b, ok := e.(*BoolExpr)
	if !ok || b.Op != And {
		return []Expr{e}
	}
	var out []Expr
	for _, a := range b.Args {
		out = append(out, SplitConjunction(a)...)
	}
	return out
}

// FunctionDef describes a built-in function.
type FunctionDef struct {
	Volatility Volatility
	Strict     bool
	MinArgs    int
	MaxArgs    int
	Fn         func(args []interface{}) (interface{}, error)
}

var builtins = map[string]FunctionDef{
	"now": {
		Volatility: Stable,
		Fn: func([]interface{}) (interface{}, error) {
			return time.Now().UnixMicro(), nil
		},
	},
	"random": {
		Volatility: Volatile,
		Fn: func([]interface{}) (interface{}, error) {
			return rand.Float64(), nil
		},
	},
	"abs": {
		Volatility: Immutable,
		Strict:     true,
		MinArgs:    1,
		MaxArgs:    1,
		Fn: func(args []interface{}) (interface{}, error) {
			if i, ok := vectorized.AsInt64(args[0]); ok {
				if i == math.MinInt64 {
					return nil, vectorized.ErrNumericOutOfRange
				}
				if i < 0 {
					return -i, nil
				}
				return i, nil
			}
			if f, ok := vectorized.AsFloat64(args[0]); ok {
				return math.Abs(f), nil
			}
			return nil, errors.Newf("abs of %T", args[0])
		},
	},
	"lower": {
		Volatility: Immutable,
		Strict:     true,
		MinArgs:    1,
		MaxArgs:    1,
		Fn: func(args []interface{}) (interface{}, error) {
			s, ok := args[0].(string)
			if !ok {
				return nil, errors.Newf("lower of %T", args[0])
			}
			return strings.ToLower(s), nil
		},
	},
}

// NewFuncCall resolves a built-in function by name.
func NewFuncCall(name string, args ...Expr) (*FuncExpr, error) {
	def, ok := builtins[strings.ToLower(name)]
	if !ok {
		return nil, errors.Newf("function %s does not exist", name)
	}
	if len(args) < def.MinArgs || len(args) > def.MaxArgs {
		return nil, errors.Newf("function %s takes %d to %d arguments, got %d", name, def.MinArgs, def.MaxArgs, len(args))
	}
	return &FuncExpr{
		Name:       strings.ToLower(name),
		Volatility: def.Volatility,
		Strict:     def.Strict,
		Args:       args,
		Fn:         def.Fn,
	}, nil
}
