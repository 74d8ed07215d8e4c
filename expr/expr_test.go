package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

func col(attno int, name string, dt vectorized.DataType) *Var {
	return &Var{Attno: attno, Name: name, Type: dt}
}

func lit(v interface{}) *Const {
	return &Const{Value: v, Type: typeOfValue(v)}
}

func TestCommutator(t *testing.T) {
	for op, want := range map[Op]Op{OpEq: OpEq, OpNe: OpNe, OpLt: OpGt, OpGe: OpLe, OpMul: OpMul} {
		got, ok := op.Commutator()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := OpSub.Commutator()
	require.False(t, ok)
	_, ok = OpDiv.Commutator()
	require.False(t, ok)
}

func TestRuntimeConstant(t *testing.T) {
	now, err := NewFuncCall("now")
	require.NoError(t, err)
	random, err := NewFuncCall("random")
	require.NoError(t, err)

	require.True(t, IsRuntimeConstant(&OpExpr{Op: OpSub, Left: now, Right: lit(int64(10))}))
	require.False(t, IsRuntimeConstant(random))
	require.False(t, IsRuntimeConstant(&Param{ID: 1}))
	require.False(t, IsRuntimeConstant(&OpExpr{Op: OpAdd, Left: col(1, "a", vectorized.INT32), Right: lit(int64(1))}))
}

func TestEvalThreeValuedLogic(t *testing.T) {
	row := []interface{}{int32(5), nil, "x"}
	a := col(1, "a", vectorized.INT32)
	b := col(2, "b", vectorized.INT32)

	tests := []struct {
		name string
		e    Expr
		want interface{}
	}{
		{"compare", &OpExpr{Op: OpGt, Left: a, Right: lit(int64(3))}, true},
		{"null operand", &OpExpr{Op: OpEq, Left: b, Right: lit(int64(3))}, nil},
		{"and with false", &BoolExpr{Op: And, Args: []Expr{&OpExpr{Op: OpEq, Left: b, Right: a}, BoolConst(false)}}, false},
		{"and with null", &BoolExpr{Op: And, Args: []Expr{&OpExpr{Op: OpEq, Left: b, Right: a}, BoolConst(true)}}, nil},
		{"or with true", &BoolExpr{Op: Or, Args: []Expr{&OpExpr{Op: OpEq, Left: b, Right: a}, BoolConst(true)}}, true},
		{"not null", &BoolExpr{Op: Not, Args: []Expr{&OpExpr{Op: OpEq, Left: b, Right: a}}}, nil},
		{"is null", &NullTest{Arg: b, IsNull: true}, true},
		{"string", &OpExpr{Op: OpLe, Left: col(3, "c", vectorized.STRING), Right: lit("y")}, true},
		{"arith", &OpExpr{Op: OpMul, Left: a, Right: lit(int64(-2))}, int64(-10)},
		{"mixed arith", &OpExpr{Op: OpAdd, Left: a, Right: lit(0.5)}, 5.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.e, row, nil)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEvalErrors(t *testing.T) {
	_, err := Eval(&OpExpr{Op: OpMul, Left: lit(int64(math.MaxInt64)), Right: lit(int64(2))}, nil, nil)
	require.ErrorIs(t, err, vectorized.ErrNumericOutOfRange)

	_, err = Eval(&OpExpr{Op: OpDiv, Left: lit(int64(1)), Right: lit(int64(0))}, nil, nil)
	require.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Eval(&Param{ID: 3}, nil, Params{1: int64(1)})
	require.ErrorIs(t, err, ErrUnboundParam)

	_, err = Compare("a", int64(1))
	require.ErrorIs(t, err, ErrIncomparable)
}

func TestCompareNumeric(t *testing.T) {
	cmp, err := Compare(int16(3), int64(3))
	require.NoError(t, err)
	require.Equal(t, 0, cmp)

	cmp, err = Compare(int64(math.MaxInt64), int64(math.MaxInt64-1))
	require.NoError(t, err)
	require.Equal(t, 1, cmp)

	cmp, err = Compare(math.NaN(), math.Inf(1))
	require.NoError(t, err)
	require.Equal(t, 1, cmp)

	cmp, err = Compare(int32(2), 2.5)
	require.NoError(t, err)
	require.Equal(t, -1, cmp)

	cmp, err = Compare(false, true)
	require.NoError(t, err)
	require.Equal(t, -1, cmp)
}

func TestFold(t *testing.T) {
	a := col(1, "a", vectorized.INT64)
	abs, err := NewFuncCall("ABS", lit(int64(-7)))
	require.NoError(t, err)

	folded, err := Fold(&OpExpr{Op: OpGt, Left: a, Right: &OpExpr{Op: OpAdd, Left: abs, Right: lit(int64(1))}}, nil)
	require.NoError(t, err)
	require.Equal(t, "(a > 8)", folded.String())

	folded, err = Fold(&OpExpr{Op: OpGt, Left: a, Right: &Const{}}, nil)
	require.NoError(t, err)
	require.True(t, isNullConst(folded))

	folded, err = Fold(&BoolExpr{Op: And, Args: []Expr{
		&OpExpr{Op: OpLt, Left: lit(int64(1)), Right: lit(int64(2))},
		&OpExpr{Op: OpEq, Left: a, Right: lit(int64(4))},
	}}, nil)
	require.NoError(t, err)
	require.Equal(t, "(a = 4)", folded.String())

	folded, err = Fold(&BoolExpr{Op: And, Args: []Expr{
		&OpExpr{Op: OpEq, Left: a, Right: lit(int64(4))},
		&OpExpr{Op: OpGt, Left: lit(int64(1)), Right: lit(int64(2))},
	}}, nil)
	require.NoError(t, err)
	require.Equal(t, BoolConst(false), folded)

	random, err := NewFuncCall("random")
	require.NoError(t, err)
	folded, err = Fold(&OpExpr{Op: OpLt, Left: random, Right: lit(0.5)}, nil)
	require.NoError(t, err)
	_, isConst := folded.(*Const)
	require.False(t, isConst, "volatile calls are never folded")
}

func TestSplitConjunctionAndVars(t *testing.T) {
	a := col(1, "a", vectorized.INT32)
	b := col(2, "b", vectorized.INT32)
	e := &BoolExpr{Op: And, Args: []Expr{
		&OpExpr{Op: OpEq, Left: a, Right: lit(int64(1))},
		&BoolExpr{Op: And, Args: []Expr{
			&OpExpr{Op: OpLt, Left: b, Right: a},
			&NullTest{Arg: b},
		}},
	}}
	parts := SplitConjunction(e)
	require.Len(t, parts, 3)
	require.Equal(t, []int{2, 1}, Vars(parts[1]))
	require.Equal(t, "(b IS NOT NULL)", parts[2].String())
}

func TestNewFuncCallValidation(t *testing.T) {
	_, err := NewFuncCall("nope")
	require.Error(t, err)
	_, err = NewFuncCall("abs")
	require.Error(t, err)

	lower, err := NewFuncCall("lower", &Const{})
	require.NoError(t, err)
	v, err := Eval(lower, nil, nil)
	require.NoError(t, err)
	require.Nil(t, v)
}
