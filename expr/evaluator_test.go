package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/decimal"
	"github.com/mstgnz/sqlexec/record"
)

func lit(v sqlexec.Value) Node { return Immediate{Value: v} }

func evalNode(t *testing.T, n Node) sqlexec.Value {
	t.Helper()
	ctx := newTestContext(LossError)
	return NewEvaluator(n, nil).Eval(ctx, nil)
}

func boolOf(b bool) Node  { return lit(sqlexec.BooleanValue(b)) }
func nullLit() Node       { return lit(sqlexec.Null()) }
func int4Of(v int32) Node { return lit(sqlexec.Int4Value(v)) }

func TestThreeValuedAnd(t *testing.T) {
	cases := []struct {
		left, right Node
		wantNull    bool
		want        bool
	}{
		{boolOf(true), boolOf(true), false, true},
		{boolOf(true), boolOf(false), false, false},
		{boolOf(true), nullLit(), true, false},
		{boolOf(false), nullLit(), false, false},
		{nullLit(), boolOf(false), false, false},
		{nullLit(), nullLit(), true, false},
	}
	for i, tc := range cases {
		v := evalNode(t, Binary{Op: BinaryConditionalAnd, Left: tc.left, Right: tc.right})
		if tc.wantNull {
			assert.True(t, v.Empty(), "case %d", i)
		} else {
			assert.Equal(t, tc.want, v.Bool(), "case %d", i)
		}
	}
}

func TestThreeValuedOr(t *testing.T) {
	cases := []struct {
		left, right Node
		wantNull    bool
		want        bool
	}{
		{boolOf(false), boolOf(false), false, false},
		{boolOf(false), boolOf(true), false, true},
		{boolOf(false), nullLit(), true, false},
		{boolOf(true), nullLit(), false, true},
		{nullLit(), boolOf(true), false, true},
		{nullLit(), nullLit(), true, false},
	}
	for i, tc := range cases {
		v := evalNode(t, Binary{Op: BinaryConditionalOr, Left: tc.left, Right: tc.right})
		if tc.wantNull {
			assert.True(t, v.Empty(), "case %d", i)
		} else {
			assert.Equal(t, tc.want, v.Bool(), "case %d", i)
		}
	}
}

func TestNotAndPredicates(t *testing.T) {
	// NOT(NOT(b)) == b for non-NULL booleans
	for _, b := range []bool{true, false} {
		v := evalNode(t, Unary{Op: UnaryConditionalNot, Operand: Unary{Op: UnaryConditionalNot, Operand: boolOf(b)}})
		assert.Equal(t, b, v.Bool())
	}
	// NOT(NULL) == NULL
	v := evalNode(t, Unary{Op: UnaryConditionalNot, Operand: nullLit()})
	assert.True(t, v.Empty())

	// IS NULL never returns NULL
	v = evalNode(t, Unary{Op: UnaryIsNull, Operand: nullLit()})
	assert.True(t, v.Bool())
	v = evalNode(t, Unary{Op: UnaryIsNull, Operand: int4Of(1)})
	assert.False(t, v.Bool())

	v = evalNode(t, Unary{Op: UnaryIsTrue, Operand: nullLit()})
	assert.False(t, v.Bool())
	v = evalNode(t, Unary{Op: UnaryIsFalse, Operand: boolOf(false)})
	assert.True(t, v.Bool())
	v = evalNode(t, Unary{Op: UnaryIsUnknown, Operand: nullLit()})
	assert.True(t, v.Bool())
}

func TestArithmetic(t *testing.T) {
	v := evalNode(t, Binary{Op: BinaryAdd, Left: int4Of(2), Right: int4Of(3)})
	assert.Equal(t, int32(5), v.Int4())

	// int4 overflow wraps around
	v = evalNode(t, Binary{Op: BinaryAdd, Left: int4Of(math.MaxInt32), Right: int4Of(1)})
	assert.Equal(t, int32(math.MinInt32), v.Int4())

	// mixing integer and float promotes to float8
	v = evalNode(t, Binary{Op: BinaryMultiply, Left: int4Of(2), Right: lit(sqlexec.Float4Value(1.5))})
	assert.Equal(t, sqlexec.TypeFloat8, v.Kind())
	assert.Equal(t, 3.0, v.Float8())

	// NULL propagates through arithmetic
	v = evalNode(t, Binary{Op: BinaryAdd, Left: int4Of(2), Right: nullLit()})
	assert.True(t, v.Empty())

	v = evalNode(t, Unary{Op: UnarySignInversion, Operand: int4Of(7)})
	assert.Equal(t, int32(-7), v.Int4())

	v = evalNode(t, Unary{Op: UnaryPlus, Operand: int4Of(7)})
	assert.Equal(t, int32(7), v.Int4())
}

func TestDivisionByZero(t *testing.T) {
	v := evalNode(t, Binary{Op: BinaryDivide, Left: int4Of(1), Right: int4Of(0)})
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorArithmetic, v.ErrorKind())

	v = evalNode(t, Binary{Op: BinaryRemainder, Left: int4Of(1), Right: int4Of(0)})
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorArithmetic, v.ErrorKind())

	// float division by zero follows IEEE
	v = evalNode(t, Binary{Op: BinaryDivide, Left: lit(sqlexec.Float8Value(1)), Right: lit(sqlexec.Float8Value(0))})
	assert.True(t, math.IsInf(v.Float8(), 1))
}

func TestRemainderFloatsUnsupported(t *testing.T) {
	v := evalNode(t, Binary{Op: BinaryRemainder, Left: lit(sqlexec.Float8Value(7)), Right: lit(sqlexec.Float8Value(3))})
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorUnsupported, v.ErrorKind())
}

func TestDecimalAddSaturation(t *testing.T) {
	decimal.EnsureContext()
	v := evalNode(t, Binary{Op: BinaryAdd, Left: lit(sqlexec.DecimalValue(decimal.MaxDecimal38)), Right: int4Of(1)})
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorArithmetic, v.ErrorKind())
}

func TestConcat(t *testing.T) {
	v := evalNode(t, Binary{Op: BinaryConcat, Left: lit(sqlexec.CharacterValue("foo")), Right: lit(sqlexec.CharacterValue("bar"))})
	assert.Equal(t, "foobar", v.Character())

	v = evalNode(t, Binary{Op: BinaryConcat, Left: lit(sqlexec.OctetValue([]byte{1})), Right: lit(sqlexec.OctetValue([]byte{2}))})
	assert.Equal(t, []byte{1, 2}, v.Octet())
}

func TestLength(t *testing.T) {
	v := evalNode(t, Unary{Op: UnaryLength, Operand: lit(sqlexec.CharacterValue("日本語"))})
	assert.Equal(t, int64(3), v.Int8())
	v = evalNode(t, Unary{Op: UnaryLength, Operand: lit(sqlexec.OctetValue([]byte{1, 2, 3, 4}))})
	assert.Equal(t, int64(4), v.Int8())
}

func TestCompareSemantics(t *testing.T) {
	v := evalNode(t, Compare{Op: CompareGreaterEqual, Left: lit(sqlexec.Float8Value(20)), Right: lit(sqlexec.Float8Value(20))})
	assert.True(t, v.Bool())

	v = evalNode(t, Compare{Op: CompareLess, Left: int4Of(1), Right: lit(sqlexec.Int8Value(2))})
	assert.True(t, v.Bool())

	// strings compare as raw bytes
	v = evalNode(t, Compare{Op: CompareLess, Left: lit(sqlexec.CharacterValue("abc")), Right: lit(sqlexec.CharacterValue("abd"))})
	assert.True(t, v.Bool())

	// NULL comparison is NULL
	v = evalNode(t, Compare{Op: CompareEqual, Left: int4Of(1), Right: nullLit()})
	assert.True(t, v.Empty())

	// NaN compares false
	v = evalNode(t, Compare{Op: CompareEqual, Left: lit(sqlexec.Float8Value(math.NaN())), Right: lit(sqlexec.Float8Value(math.NaN()))})
	assert.False(t, v.Bool())

	// mixed non-numeric kinds are unsupported
	v = evalNode(t, Compare{Op: CompareEqual, Left: lit(sqlexec.CharacterValue("a")), Right: int4Of(1)})
	assert.True(t, v.Error())
}

func TestCoalesce(t *testing.T) {
	v := evalNode(t, Coalesce{Alternatives: []Node{nullLit(), int4Of(5), int4Of(7)}})
	assert.Equal(t, int32(5), v.Int4())

	v = evalNode(t, Coalesce{Alternatives: []Node{nullLit(), nullLit()}})
	assert.True(t, v.Empty())

	// coalesce(e, e) == e for a side-effect-free e
	e := int4Of(9)
	v = evalNode(t, Coalesce{Alternatives: []Node{e, e}})
	assert.Equal(t, evalNode(t, e), v)

	// the result converts to the declared type
	v = evalNode(t, Coalesce{Alternatives: []Node{int4Of(5)}, Result: sqlexec.SimpleType(sqlexec.TypeInt8)})
	assert.Equal(t, sqlexec.TypeInt8, v.Kind())
}

func TestConditional(t *testing.T) {
	caseNode := Conditional{
		Alternatives: []Alternative{
			{Condition: boolOf(false), Body: int4Of(1)},
			{Condition: boolOf(true), Body: int4Of(2)},
			{Condition: boolOf(true), Body: int4Of(3)},
		},
		Default: int4Of(9),
	}
	assert.Equal(t, int32(2), evalNode(t, caseNode).Int4())

	// no true branch falls to the default
	caseNode.Alternatives = caseNode.Alternatives[:1]
	assert.Equal(t, int32(9), evalNode(t, caseNode).Int4())

	// a NULL condition is not taken
	caseNode.Alternatives = []Alternative{{Condition: nullLit(), Body: int4Of(1)}}
	caseNode.Default = nil
	assert.True(t, evalNode(t, caseNode).Empty())
}

func TestLetBindings(t *testing.T) {
	n := Let{
		Declarations: []LetDeclaration{
			{Name: "x", Value: int4Of(10)},
			{Name: "y", Value: Binary{Op: BinaryAdd, Left: VariableReference{Name: "x"}, Right: int4Of(5)}},
		},
		Body: VariableReference{Name: "y"},
	}
	assert.Equal(t, int32(15), evalNode(t, n).Int4())
}

func TestVariableResolution(t *testing.T) {
	meta := record.NewMeta(sqlexec.SimpleType(sqlexec.TypeInt4))
	vars := record.NewVariableTable(meta, []record.Variable{"C0"})
	vars.Set("C0", sqlexec.Int4Value(42))

	ctx := newTestContext(LossError)
	v := NewEvaluator(VariableReference{Name: "C0"}, nil).Eval(ctx, vars)
	assert.Equal(t, int32(42), v.Int4())

	v = NewEvaluator(VariableReference{Name: "missing"}, nil).Eval(ctx, vars)
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorUndefined, v.ErrorKind())
	assert.NotEmpty(t, ctx.Diagnostics())
}

func TestFunctionCall(t *testing.T) {
	v := evalNode(t, FunctionCall{DefinitionID: FunctionUpper, Arguments: []Node{lit(sqlexec.CharacterValue("abc"))}})
	assert.Equal(t, "ABC", v.Character())

	v = evalNode(t, FunctionCall{DefinitionID: FunctionAbs, Arguments: []Node{int4Of(-5)}})
	assert.Equal(t, int32(5), v.Int4())

	v = evalNode(t, FunctionCall{DefinitionID: 99999, Arguments: nil})
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorUnsupported, v.ErrorKind())
}

func TestSimilarUnsupported(t *testing.T) {
	v := evalNode(t, Match{
		Op:      MatchSimilar,
		Input:   lit(sqlexec.CharacterValue("abc")),
		Pattern: lit(sqlexec.CharacterValue("abc")),
		Escape:  lit(sqlexec.CharacterValue("\\")),
	})
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorUnsupported, v.ErrorKind())
}

func TestMatchThroughEvaluator(t *testing.T) {
	v := evalNode(t, Match{
		Op:      MatchLike,
		Input:   lit(sqlexec.CharacterValue("abcde")),
		Pattern: lit(sqlexec.CharacterValue("a%de")),
		Escape:  lit(sqlexec.CharacterValue("\\")),
	})
	assert.True(t, v.Bool())

	// NULL operand makes the match NULL
	v = evalNode(t, Match{Op: MatchLike, Input: nullLit(), Pattern: lit(sqlexec.CharacterValue("%")), Escape: lit(sqlexec.CharacterValue(""))})
	assert.True(t, v.Empty())
}

func TestEvalBoolCollapsesNull(t *testing.T) {
	ctx := newTestContext(LossError)
	ev := NewEvaluator(nullLit(), nil)
	v := ev.EvalBool(ctx, nil)
	assert.True(t, v.Valid())
	assert.False(t, v.Bool())
}

func TestCastThroughEvaluator(t *testing.T) {
	v := evalNode(t, Cast{Target: sqlexec.SimpleType(sqlexec.TypeInt8), Operand: int4Of(3)})
	assert.Equal(t, int64(3), v.Int8())

	// NULL passes through casts
	v = evalNode(t, Cast{Target: sqlexec.SimpleType(sqlexec.TypeInt8), Operand: nullLit()})
	assert.True(t, v.Empty())
}
