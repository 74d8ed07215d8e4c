package expr

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrIncomparable   = errors.New("values are not comparable")
	ErrUnboundParam   = errors.New("parameter has no value")
)

// Params maps parameter ids to values.
type Params map[int]interface{}

// Eval evaluates e against row, where row[i] is the value of attribute i+1.
// NULL is returned as nil.
func Eval(e Expr, row []interface{}, params Params) (interface{}, error) {
	switch n := e.(type) {
	case *Const:
		return n.Value, nil
	case *Var:
		if n.Attno < 1 || n.Attno > len(row) {
			return nil, errors.AssertionFailedf("attribute %d outside row of %d columns", n.Attno, len(row))
		}
		return row[n.Attno-1], nil
	case *Param:
		v, ok := params[n.ID]
		if !ok {
			return nil, errors.Wrapf(ErrUnboundParam, "$%d", n.ID)
		}
		return v, nil
	case *OpExpr:
		l, err := Eval(n.Left, row, params)
		if err != nil {
			return nil, err
		}
		r, err := Eval(n.Right, row, params)
		if err != nil {
			return nil, err
		}
		return ApplyOp(n.Op, l, r)
	case *FuncExpr:
		args := make([]interface{}, len(n.Args))
		for i, a := range n.Args {
			v, err := Eval(a, row, params)
			if err != nil {
				return nil, err
			}
			if v == nil && n.Strict {
				return nil, nil
			}
			args[i] = v
		}
		return n.Fn(args)
	case *BoolExpr:
		return evalBool(n, row, params)
	case *NullTest:
		v, err := Eval(n.Arg, row, params)
		if err != nil {
			return nil, err
		}
		return (v == nil) == n.IsNull, nil
	}
	return nil, errors.AssertionFailedf("cannot evaluate %T", e)
}

func evalBool(n *BoolExpr, row []interface{}, params Params) (interface{}, error) {
	if n.Op == Not {
		if len(n.Args) != 1 {
			return nil, errors.AssertionFailedf("NOT with %d arguments", len(n.Args))
		}
		v, err := Eval(n.Args[0], row, params)
		if err != nil || v == nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, errors.Newf("argument of NOT must be boolean, not %T", v)
		}
		return !b, nil
	}
	// AND: false dominates, then NULL; OR: true dominates, then NULL
	dominant := n.Op == Or
	sawNull := false
	for _, a := range n.Args {
		v, err := Eval(a, row, params)
		if err != nil {
			return nil, err
		}
		if v == nil {
			sawNull = true
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return nil, errors.Newf("argument of boolean expression must be boolean, not %T", v)
		}
		if b == dominant {
			return dominant, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return !dominant, nil
}

// IsTrue evaluates a qualifier; NULL counts as false.
func IsTrue(e Expr, row []interface{}, params Params) (bool, error) {
	v, err := Eval(e, row, params)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// ApplyOp applies a binary operator to two evaluated operands.
func ApplyOp(op Op, l, r interface{}) (interface{}, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	if op.IsComparison() {
		cmp, err := Compare(l, r)
		if err != nil {
			return nil, err
		}
		fop, _ := op.FilterOperator()
		return fop.Holds(cmp), nil
	}
	li, lInt := vectorized.AsInt64(l)
	ri, rInt := vectorized.AsInt64(r)
	if lInt && rInt {
		switch op {
		case OpAdd:
			return vectorized.CheckedAddInt64(li, ri)
		case OpSub:
			return vectorized.CheckedSubInt64(li, ri)
		case OpMul:
			return vectorized.CheckedMulInt64(li, ri)
		case OpDiv:
			if ri == 0 {
				return nil, ErrDivisionByZero
			}
			if li == math.MinInt64 && ri == -1 {
				return nil, vectorized.ErrNumericOutOfRange
			}
			return li / ri, nil
		}
	}
	lf, lNum := vectorized.AsFloat64(l)
	rf, rNum := vectorized.AsFloat64(r)
	if !lNum || !rNum {
		return nil, errors.Newf("operator %s does not apply to %T and %T", op, l, r)
	}
	switch op {
	case OpAdd:
		return lf + rf, nil
	case OpSub:
		return lf - rf, nil
	case OpMul:
		return lf * rf, nil
	case OpDiv:
		if rf == 0 {
			return nil, ErrDivisionByZero
		}
		return lf / rf, nil
	}
	return nil, errors.AssertionFailedf("unknown operator %d", op)
}

// Compare orders two non-null values. Integers compare exactly, mixed
// integer and float operands compare as float64 with NaN sorting last,
// strings compare bytewise and false sorts before true.
func Compare(a, b interface{}) (int, error) {
	if ai, ok := vectorized.AsInt64(a); ok {
		if bi, ok := vectorized.AsInt64(b); ok {
			switch {
			case ai < bi:
				return -1, nil
			case ai > bi:
				return 1, nil
			}
			return 0, nil
		}
	}
	if af, ok := vectorized.AsFloat64(a); ok {
		if bf, ok := vectorized.AsFloat64(b); ok {
			return vectorized.CompareFloat64(af, bf), nil
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, errors.Wrapf(ErrIncomparable, "%T and %T", a, b)
}
