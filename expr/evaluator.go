package expr

import (
	"bytes"
	"math"
	"unicode/utf8"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/decimal"
	"github.com/mstgnz/sqlexec/record"
)

// Evaluator interprets one expression tree against a variable table. It is
// immutable after construction and safe to share across tasks; all mutable
// state lives in the Context passed per call.
type Evaluator struct {
	root Node
	host *record.VariableTable
}

// NewEvaluator builds an evaluator. host carries statement-level variables
// (parameters) and may be nil.
func NewEvaluator(root Node, host *record.VariableTable) *Evaluator {
	return &Evaluator{root: root, host: host}
}

// Eval walks the tree and returns the result value. Errors are returned as
// error-tagged values, never panics; unexpected faults surface as undefined.
func (e *Evaluator) Eval(ctx *Context, vars *record.VariableTable) (result sqlexec.Value) {
	decimal.EnsureContext()
	defer func() {
		if r := recover(); r != nil {
			d := Diagnostic{Kind: sqlexec.ErrorUndefined, Message: "unexpected error occurred during expression evaluation"}
			d.NewArgument(r)
			ctx.AddError(d)
			result = sqlexec.ErrorValue(sqlexec.ErrorUndefined)
		}
	}()
	eng := engine{ctx: ctx, vars: vars, host: e.host}
	return eng.eval(e.root)
}

// EvalBool evaluates a predicate under a scratch checkpoint, rewinding after
// the result is taken. NULL collapses to false the way a WHERE clause does.
func (e *Evaluator) EvalBool(ctx *Context, vars *record.VariableTable) sqlexec.Value {
	cp := ctx.Resource.Save()
	defer ctx.Resource.Rewind(cp)
	a := e.Eval(ctx, vars)
	if a.Error() {
		return a
	}
	return sqlexec.BooleanValue(a.Valid() && a.Bool())
}

// engine is the per-call visitor state.
type engine struct {
	ctx  *Context
	vars *record.VariableTable
	host *record.VariableTable
	lets []letBinding
}

type letBinding struct {
	name  record.Variable
	value sqlexec.Value
}

func (e *engine) eval(n Node) sqlexec.Value {
	switch node := n.(type) {
	case Immediate:
		return node.Value
	case *Immediate:
		return node.Value
	case VariableReference:
		return e.lookup(node.Name)
	case *VariableReference:
		return e.lookup(node.Name)
	case Unary:
		return e.evalUnary(node)
	case *Unary:
		return e.evalUnary(*node)
	case Binary:
		return e.evalBinary(node)
	case *Binary:
		return e.evalBinary(*node)
	case Compare:
		return e.evalCompare(node)
	case *Compare:
		return e.evalCompare(*node)
	case Cast:
		return e.evalCast(node)
	case *Cast:
		return e.evalCast(*node)
	case Match:
		return e.evalMatch(node)
	case *Match:
		return e.evalMatch(*node)
	case Conditional:
		return e.evalConditional(node)
	case *Conditional:
		return e.evalConditional(*node)
	case Coalesce:
		return e.evalCoalesce(node)
	case *Coalesce:
		return e.evalCoalesce(*node)
	case Let:
		return e.evalLet(node)
	case *Let:
		return e.evalLet(*node)
	case FunctionCall:
		return e.evalFunctionCall(node)
	case *FunctionCall:
		return e.evalFunctionCall(*node)
	}
	return sqlexec.ErrorValue(sqlexec.ErrorUndefined)
}

func (e *engine) lookup(name record.Variable) sqlexec.Value {
	for i := len(e.lets) - 1; i >= 0; i-- {
		if e.lets[i].name == name {
			return e.lets[i].value
		}
	}
	if e.vars != nil {
		if _, ok := e.vars.Index(name); ok {
			return e.vars.Get(name)
		}
	}
	if e.host != nil {
		if _, ok := e.host.Index(name); ok {
			return e.host.Get(name)
		}
	}
	e.ctx.AddError(Diagnostic{Kind: sqlexec.ErrorUndefined, Message: "variable is not bound", Arguments: []string{string(name)}})
	return sqlexec.ErrorValue(sqlexec.ErrorUndefined)
}

func (e *engine) evalLet(n Let) sqlexec.Value {
	mark := len(e.lets)
	for _, d := range n.Declarations {
		v := e.eval(d.Value)
		if v.Error() {
			e.lets = e.lets[:mark]
			return v
		}
		e.lets = append(e.lets, letBinding{name: d.Name, value: v})
	}
	out := e.eval(n.Body)
	e.lets = e.lets[:mark]
	return out
}

func (e *engine) evalFunctionCall(n FunctionCall) sqlexec.Value {
	fn, ok := LookupScalar(n.DefinitionID)
	if !ok {
		e.ctx.AddError(Diagnostic{Kind: sqlexec.ErrorUnsupported, Message: "scalar function is not registered"})
		return sqlexec.Unsupported()
	}
	args := make([]sqlexec.Value, len(n.Arguments))
	for i, a := range n.Arguments {
		v := e.eval(a)
		if v.Error() {
			return v
		}
		args[i] = v
	}
	return fn.Body(e.ctx, args)
}

func (e *engine) evalCast(n Cast) sqlexec.Value {
	v := e.eval(n.Operand)
	if v.Error() || v.Empty() {
		return v
	}
	return CastTo(e.ctx, v, n.Target)
}

func (e *engine) evalMatch(n Match) sqlexec.Value {
	if n.Op == MatchSimilar {
		e.ctx.AddError(Diagnostic{Kind: sqlexec.ErrorUnsupported, Message: "SIMILAR TO is not supported"})
		return sqlexec.Unsupported()
	}
	input := e.eval(n.Input)
	if input.Error() {
		return input
	}
	pattern := e.eval(n.Pattern)
	if pattern.Error() {
		return pattern
	}
	escape := e.eval(n.Escape)
	if escape.Error() {
		return escape
	}
	if input.Empty() || pattern.Empty() || escape.Empty() {
		return sqlexec.Null()
	}
	if input.Kind() != sqlexec.TypeCharacter || pattern.Kind() != sqlexec.TypeCharacter || escape.Kind() != sqlexec.TypeCharacter {
		return sqlexec.Unsupported()
	}
	return EvaluateLike(e.ctx, input.Character(), pattern.Character(), escape.Character())
}

func (e *engine) evalConditional(n Conditional) sqlexec.Value {
	for _, alt := range n.Alternatives {
		c := e.eval(alt.Condition)
		if c.Error() {
			return c
		}
		if c.Valid() && c.Bool() {
			return e.unify(e.eval(alt.Body), n.Result)
		}
	}
	if n.Default != nil {
		return e.unify(e.eval(n.Default), n.Result)
	}
	return sqlexec.Null()
}

func (e *engine) evalCoalesce(n Coalesce) sqlexec.Value {
	for _, alt := range n.Alternatives {
		v := e.eval(alt)
		if v.Error() {
			return v
		}
		if !v.Empty() {
			return e.unify(v, n.Result)
		}
	}
	return sqlexec.Null()
}

// unify applies the unifying conversion to the declared result type of a
// conditional/coalesce. An unspecified result type passes through.
func (e *engine) unify(v sqlexec.Value, target sqlexec.Type) sqlexec.Value {
	if v.Error() || v.Empty() || target.Kind == sqlexec.TypeUnknown {
		return v
	}
	return CastTo(e.ctx, v, target)
}

func (e *engine) evalUnary(n Unary) sqlexec.Value {
	v := e.eval(n.Operand)
	if v.Error() {
		return v
	}
	switch n.Op {
	case UnaryIsNull, UnaryIsUnknown:
		return sqlexec.BooleanValue(v.Empty())
	case UnaryIsTrue:
		return sqlexec.BooleanValue(v.Valid() && v.Bool())
	case UnaryIsFalse:
		return sqlexec.BooleanValue(v.Valid() && !v.Bool())
	}
	if v.Empty() {
		return v
	}
	switch n.Op {
	case UnaryPlus:
		if !v.Kind().Numeric() {
			return sqlexec.Unsupported()
		}
		return v
	case UnarySignInversion:
		return signInversion(v)
	case UnaryConditionalNot:
		if v.Kind() != sqlexec.TypeBoolean {
			return sqlexec.Unsupported()
		}
		return sqlexec.BooleanValue(!v.Bool())
	case UnaryLength:
		switch v.Kind() {
		case sqlexec.TypeCharacter:
			return sqlexec.Int8Value(int64(utf8.RuneCountInString(v.Character())))
		case sqlexec.TypeOctet:
			return sqlexec.Int8Value(int64(len(v.Octet())))
		}
		return sqlexec.Unsupported()
	}
	return sqlexec.Unsupported()
}

func signInversion(v sqlexec.Value) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		return sqlexec.Int4Value(-v.Int4())
	case sqlexec.TypeInt8:
		return sqlexec.Int8Value(-v.Int8())
	case sqlexec.TypeFloat4:
		return sqlexec.Float4Value(-v.Float4())
	case sqlexec.TypeFloat8:
		return sqlexec.Float8Value(-v.Float8())
	case sqlexec.TypeDecimal:
		return sqlexec.DecimalValue(v.Decimal().Neg())
	}
	return sqlexec.Unsupported()
}

func (e *engine) evalBinary(n Binary) sqlexec.Value {
	switch n.Op {
	case BinaryConditionalAnd:
		return e.evalAnd(n)
	case BinaryConditionalOr:
		return e.evalOr(n)
	}
	l := e.eval(n.Left)
	if l.Error() {
		return l
	}
	r := e.eval(n.Right)
	if r.Error() {
		return r
	}
	if l.Empty() || r.Empty() {
		return sqlexec.Null()
	}
	switch n.Op {
	case BinaryAdd:
		return e.addAny(l, r)
	case BinarySubtract:
		return e.subtractAny(l, r)
	case BinaryMultiply:
		return e.multiplyAny(l, r)
	case BinaryDivide:
		return e.divideAny(l, r)
	case BinaryRemainder:
		return e.remainderAny(l, r)
	case BinaryConcat:
		return e.concatAny(l, r)
	}
	return sqlexec.Unsupported()
}

// evalAnd implements three-valued AND with short circuit: a FALSE operand
// decides the result even when the other side is NULL.
func (e *engine) evalAnd(n Binary) sqlexec.Value {
	l := e.eval(n.Left)
	if l.Error() {
		return l
	}
	if l.Valid() && !l.Bool() {
		return sqlexec.BooleanValue(false)
	}
	r := e.eval(n.Right)
	if r.Error() {
		return r
	}
	if r.Valid() && !r.Bool() {
		return sqlexec.BooleanValue(false)
	}
	if l.Empty() || r.Empty() {
		return sqlexec.Null()
	}
	return sqlexec.BooleanValue(true)
}

// evalOr is the dual of evalAnd: TRUE decides even against NULL.
func (e *engine) evalOr(n Binary) sqlexec.Value {
	l := e.eval(n.Left)
	if l.Error() {
		return l
	}
	if l.Valid() && l.Bool() {
		return sqlexec.BooleanValue(true)
	}
	r := e.eval(n.Right)
	if r.Error() {
		return r
	}
	if r.Valid() && r.Bool() {
		return sqlexec.BooleanValue(true)
	}
	if l.Empty() || r.Empty() {
		return sqlexec.Null()
	}
	return sqlexec.BooleanValue(false)
}

func (e *engine) addAny(left, right sqlexec.Value) sqlexec.Value {
	l, r := PromoteBinaryNumeric(left, right)
	switch l.Kind() {
	case sqlexec.TypeInt4:
		return sqlexec.Int4Value(l.Int4() + r.Int4())
	case sqlexec.TypeInt8:
		return sqlexec.Int8Value(l.Int8() + r.Int8())
	case sqlexec.TypeFloat4:
		return sqlexec.Float4Value(l.Float4() + r.Float4())
	case sqlexec.TypeFloat8:
		return sqlexec.Float8Value(l.Float8() + r.Float8())
	case sqlexec.TypeDecimal:
		return e.decimalResult(decimal.Add(l.Decimal(), r.Decimal()))
	}
	return sqlexec.Unsupported()
}

func (e *engine) subtractAny(left, right sqlexec.Value) sqlexec.Value {
	l, r := PromoteBinaryNumeric(left, right)
	switch l.Kind() {
	case sqlexec.TypeInt4:
		return sqlexec.Int4Value(l.Int4() - r.Int4())
	case sqlexec.TypeInt8:
		return sqlexec.Int8Value(l.Int8() - r.Int8())
	case sqlexec.TypeFloat4:
		return sqlexec.Float4Value(l.Float4() - r.Float4())
	case sqlexec.TypeFloat8:
		return sqlexec.Float8Value(l.Float8() - r.Float8())
	case sqlexec.TypeDecimal:
		return e.decimalResult(decimal.Sub(l.Decimal(), r.Decimal()))
	}
	return sqlexec.Unsupported()
}

func (e *engine) multiplyAny(left, right sqlexec.Value) sqlexec.Value {
	l, r := PromoteBinaryNumeric(left, right)
	switch l.Kind() {
	case sqlexec.TypeInt4:
		return sqlexec.Int4Value(l.Int4() * r.Int4())
	case sqlexec.TypeInt8:
		return sqlexec.Int8Value(l.Int8() * r.Int8())
	case sqlexec.TypeFloat4:
		return sqlexec.Float4Value(l.Float4() * r.Float4())
	case sqlexec.TypeFloat8:
		return sqlexec.Float8Value(l.Float8() * r.Float8())
	case sqlexec.TypeDecimal:
		return e.decimalResult(decimal.Mul(l.Decimal(), r.Decimal()))
	}
	return sqlexec.Unsupported()
}

func (e *engine) divideAny(left, right sqlexec.Value) sqlexec.Value {
	l, r := PromoteBinaryNumeric(left, right)
	switch l.Kind() {
	case sqlexec.TypeInt4:
		if r.Int4() == 0 {
			return e.arithmeticError("division by zero")
		}
		if l.Int4() == math.MinInt32 && r.Int4() == -1 {
			return sqlexec.Int4Value(l.Int4())
		}
		return sqlexec.Int4Value(l.Int4() / r.Int4())
	case sqlexec.TypeInt8:
		if r.Int8() == 0 {
			return e.arithmeticError("division by zero")
		}
		if l.Int8() == math.MinInt64 && r.Int8() == -1 {
			return sqlexec.Int8Value(l.Int8())
		}
		return sqlexec.Int8Value(l.Int8() / r.Int8())
	case sqlexec.TypeFloat4:
		return sqlexec.Float4Value(l.Float4() / r.Float4())
	case sqlexec.TypeFloat8:
		return sqlexec.Float8Value(l.Float8() / r.Float8())
	case sqlexec.TypeDecimal:
		return e.decimalResult(decimal.Div(l.Decimal(), r.Decimal()))
	}
	return sqlexec.Unsupported()
}

// remainderAny is defined for int4, int8 and decimal only; the float forms
// stay unsupported.
func (e *engine) remainderAny(left, right sqlexec.Value) sqlexec.Value {
	l, r := PromoteBinaryNumeric(left, right)
	switch l.Kind() {
	case sqlexec.TypeInt4:
		if r.Int4() == 0 {
			return e.arithmeticError("remainder by zero")
		}
		if l.Int4() == math.MinInt32 && r.Int4() == -1 {
			return sqlexec.Int4Value(0)
		}
		return sqlexec.Int4Value(l.Int4() % r.Int4())
	case sqlexec.TypeInt8:
		if r.Int8() == 0 {
			return e.arithmeticError("remainder by zero")
		}
		if l.Int8() == math.MinInt64 && r.Int8() == -1 {
			return sqlexec.Int8Value(0)
		}
		return sqlexec.Int8Value(l.Int8() % r.Int8())
	case sqlexec.TypeDecimal:
		return e.decimalResult(decimal.Rem(l.Decimal(), r.Decimal()))
	}
	return sqlexec.Unsupported()
}

// concatAny concatenates character or octet strings, allocating the result
// in the scratch resource.
func (e *engine) concatAny(l, r sqlexec.Value) sqlexec.Value {
	if l.Kind() == sqlexec.TypeCharacter && r.Kind() == sqlexec.TypeCharacter {
		ls, rs := l.Character(), r.Character()
		buf := e.ctx.Resource.Allocate(len(ls) + len(rs))
		copy(buf, ls)
		copy(buf[len(ls):], rs)
		return sqlexec.CharacterValue(string(buf))
	}
	if l.Kind() == sqlexec.TypeOctet && r.Kind() == sqlexec.TypeOctet {
		buf := e.ctx.Resource.Allocate(len(l.Octet()) + len(r.Octet()))
		copy(buf, l.Octet())
		copy(buf[len(l.Octet()):], r.Octet())
		return sqlexec.OctetValue(buf)
	}
	return sqlexec.Unsupported()
}

func (e *engine) decimalResult(t decimal.Triple, st decimal.Status) sqlexec.Value {
	if st.Invalid() {
		return e.arithmeticError("decimal operation raised invalid operation")
	}
	return sqlexec.DecimalValue(t)
}

func (e *engine) arithmeticError(msg string) sqlexec.Value {
	e.ctx.AddError(Diagnostic{Kind: sqlexec.ErrorArithmetic, Message: msg})
	return sqlexec.ErrorValue(sqlexec.ErrorArithmetic)
}

func (e *engine) evalCompare(n Compare) sqlexec.Value {
	l := e.eval(n.Left)
	if l.Error() {
		return l
	}
	r := e.eval(n.Right)
	if r.Error() {
		return r
	}
	if l.Empty() || r.Empty() {
		return sqlexec.Null()
	}
	return CompareValues(n.Op, l, r)
}

// CompareValues applies a comparison after numeric promotion. Strings are
// compared as raw bytes; a float NaN operand makes every comparison false
// except not-equal, which is true.
func CompareValues(op CompareOp, left, right sqlexec.Value) sqlexec.Value {
	l, r := PromoteBinaryNumeric(left, right)
	if l.Error() || r.Error() {
		return sqlexec.Unsupported()
	}
	switch l.Kind() {
	case sqlexec.TypeFloat4:
		return floatCompare(op, float64(l.Float4()), float64(r.Float4()))
	case sqlexec.TypeFloat8:
		return floatCompare(op, l.Float8(), r.Float8())
	}
	c, ok := orderValues(l, r)
	if !ok {
		return sqlexec.Unsupported()
	}
	return compareResult(op, c)
}

func floatCompare(op CompareOp, l, r float64) sqlexec.Value {
	if math.IsNaN(l) || math.IsNaN(r) {
		// IEEE semantics: every comparison with NaN is false except not-equal
		return sqlexec.BooleanValue(op == CompareNotEqual)
	}
	switch {
	case l < r:
		return compareResult(op, -1)
	case l > r:
		return compareResult(op, 1)
	}
	return compareResult(op, 0)
}

func orderValues(l, r sqlexec.Value) (int, bool) {
	switch l.Kind() {
	case sqlexec.TypeBoolean:
		return boolOrder(l.Bool()) - boolOrder(r.Bool()), true
	case sqlexec.TypeInt4:
		return intOrder(int64(l.Int4()), int64(r.Int4())), true
	case sqlexec.TypeInt8:
		return intOrder(l.Int8(), r.Int8()), true
	case sqlexec.TypeDecimal:
		return decimal.Compare(l.Decimal(), r.Decimal()), true
	case sqlexec.TypeCharacter:
		return bytes.Compare([]byte(l.Character()), []byte(r.Character())), true
	case sqlexec.TypeOctet:
		return bytes.Compare(l.Octet(), r.Octet()), true
	case sqlexec.TypeDate:
		return intOrder(int64(l.Date()), int64(r.Date())), true
	case sqlexec.TypeTimeOfDay:
		return intOrder(int64(l.TimeOfDay()), int64(r.TimeOfDay())), true
	case sqlexec.TypeTimePoint:
		lt, rt := l.TimePoint(), r.TimePoint()
		if c := intOrder(lt.Seconds, rt.Seconds); c != 0 {
			return c, true
		}
		return intOrder(int64(lt.Nanos), int64(rt.Nanos)), true
	}
	return 0, false
}

func boolOrder(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intOrder(l, r int64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

func compareResult(op CompareOp, c int) sqlexec.Value {
	var out bool
	switch op {
	case CompareEqual:
		out = c == 0
	case CompareNotEqual:
		out = c != 0
	case CompareGreater:
		out = c > 0
	case CompareGreaterEqual:
		out = c >= 0
	case CompareLess:
		out = c < 0
	case CompareLessEqual:
		out = c <= 0
	}
	return sqlexec.BooleanValue(out)
}

// AddValues exposes the promoting addition to the aggregate bodies.
func AddValues(ctx *Context, l, r sqlexec.Value) sqlexec.Value {
	if l.Error() {
		return l
	}
	if r.Error() {
		return r
	}
	if l.Empty() || r.Empty() {
		return sqlexec.Null()
	}
	e := engine{ctx: ctx}
	return e.addAny(l, r)
}

// DivideValues exposes the promoting division to the aggregate bodies.
func DivideValues(ctx *Context, l, r sqlexec.Value) sqlexec.Value {
	if l.Error() {
		return l
	}
	if r.Error() {
		return r
	}
	if l.Empty() || r.Empty() {
		return sqlexec.Null()
	}
	e := engine{ctx: ctx}
	return e.divideAny(l, r)
}
