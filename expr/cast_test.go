package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/decimal"
)

func mustParseDecimal(t *testing.T, s string) sqlexec.Value {
	t.Helper()
	d, st := decimal.Parse(s)
	assert.False(t, st.Syntax())
	return sqlexec.DecimalValue(d)
}

func TestDecimalCastLoss(t *testing.T) {
	decimal.EnsureContext()
	target := sqlexec.DecimalType(3, 2)

	// policy error: 1.2345 would truncate to 1.23
	ctx := newTestContext(LossError)
	v := CastTo(ctx, mustParseDecimal(t, "1.2345"), target)
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorLostPrecision, v.ErrorKind())

	// policy ignore returns the truncated value
	ctx = newTestContext(LossIgnore)
	v = CastTo(ctx, mustParseDecimal(t, "1.2345"), target)
	assert.True(t, v.Valid())
	assert.Equal(t, 0, decimal.Compare(v.Decimal(), mustParseDecimal(t, "1.23").Decimal()))

	// policy unknown yields NULL
	ctx = newTestContext(LossUnknown)
	v = CastTo(ctx, mustParseDecimal(t, "1.2345"), target)
	assert.True(t, v.Empty())

	// policy warn returns the value and records a diagnostic
	ctx = newTestContext(LossWarn)
	v = CastTo(ctx, mustParseDecimal(t, "1.2345"), target)
	assert.True(t, v.Valid())
	assert.Len(t, ctx.Diagnostics(), 1)

	// an exact value passes under every policy
	ctx = newTestContext(LossError)
	v = CastTo(ctx, mustParseDecimal(t, "1.23"), target)
	assert.True(t, v.Valid())
}

func TestDecimalCastClamp(t *testing.T) {
	decimal.EnsureContext()
	// integer digits beyond p-s clamp to the largest representable value
	ctx := newTestContext(LossIgnore)
	v := CastTo(ctx, mustParseDecimal(t, "1234"), sqlexec.DecimalType(3, 2))
	assert.True(t, v.Valid())
	assert.Equal(t, 0, decimal.Compare(v.Decimal(), mustParseDecimal(t, "9.99").Decimal()))

	v = CastTo(ctx, mustParseDecimal(t, "-1234"), sqlexec.DecimalType(3, 2))
	assert.Equal(t, 0, decimal.Compare(v.Decimal(), mustParseDecimal(t, "-9.99").Decimal()))
}

func TestFloatToIntNaN(t *testing.T) {
	ctx := newTestContext(LossIgnore)
	v := CastTo(ctx, sqlexec.Float8Value(math.NaN()), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorArithmetic, v.ErrorKind())
}

func TestFloatToIntInfinityClamp(t *testing.T) {
	// ignore clamps to the integer extremes
	ctx := newTestContext(LossIgnore)
	v := CastTo(ctx, sqlexec.Float4Value(float32(math.Inf(1))), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.Equal(t, int32(math.MaxInt32), v.Int4())
	v = CastTo(ctx, sqlexec.Float4Value(float32(math.Inf(-1))), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.Equal(t, int32(math.MinInt32), v.Int4())

	// error surfaces the loss
	ctx = newTestContext(LossError)
	v = CastTo(ctx, sqlexec.Float4Value(float32(math.Inf(1))), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorLostPrecision, v.ErrorKind())
}

func TestFloatToIntTruncatesTowardZero(t *testing.T) {
	ctx := newTestContext(LossError)
	v := CastTo(ctx, sqlexec.Float8Value(2.9), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.Equal(t, int32(2), v.Int4())
	v = CastTo(ctx, sqlexec.Float8Value(-2.9), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.Equal(t, int32(-2), v.Int4())
}

func TestFloat4ToInt4Bound(t *testing.T) {
	// the largest valid float4 is int32 max minus 127, not int32 max
	ctx := newTestContext(LossError)
	ok := float32(math.MaxInt32 - 127)
	v := CastTo(ctx, sqlexec.Float4Value(ok), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.True(t, v.Valid())

	over := math.Nextafter32(ok, float32(math.Inf(1)))
	v = CastTo(ctx, sqlexec.Float4Value(over), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.True(t, v.Error())
}

func TestImplicitPolicyForbidsFloatConversions(t *testing.T) {
	ctx := newTestContext(LossImplicit)
	v := CastTo(ctx, sqlexec.Float8Value(1.0), sqlexec.SimpleType(sqlexec.TypeInt8))
	assert.True(t, v.Error())
	v = CastTo(ctx, sqlexec.Float8Value(1.0), sqlexec.DecimalType(10, 2))
	assert.True(t, v.Error())
}

func TestFloatToDecimalInfinitySaturates(t *testing.T) {
	decimal.EnsureContext()
	ctx := newTestContext(LossIgnore)
	v := CastTo(ctx, sqlexec.Float8Value(math.Inf(1)), sqlexec.SimpleType(sqlexec.TypeDecimal))
	assert.Equal(t, decimal.TripleMax, v.Decimal())
	v = CastTo(ctx, sqlexec.Float8Value(math.Inf(-1)), sqlexec.SimpleType(sqlexec.TypeDecimal))
	assert.Equal(t, decimal.TripleMin, v.Decimal())

	// NaN stays an arithmetic error
	v = CastTo(ctx, sqlexec.Float8Value(math.NaN()), sqlexec.SimpleType(sqlexec.TypeDecimal))
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorArithmetic, v.ErrorKind())
}

func TestStringToNumeric(t *testing.T) {
	decimal.EnsureContext()
	ctx := newTestContext(LossError)

	v := CastTo(ctx, sqlexec.CharacterValue("  42  "), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.Equal(t, int32(42), v.Int4())

	v = CastTo(ctx, sqlexec.CharacterValue("-1.5e2"), sqlexec.SimpleType(sqlexec.TypeFloat8))
	assert.Equal(t, -150.0, v.Float8())

	v = CastTo(ctx, sqlexec.CharacterValue("1.25"), sqlexec.DecimalType(4, 2))
	assert.Equal(t, 0, decimal.Compare(v.Decimal(), mustParseDecimal(t, "1.25").Decimal()))

	v = CastTo(ctx, sqlexec.CharacterValue("abc"), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorFormat, v.ErrorKind())
}

func TestStringNaNOnlyForFloats(t *testing.T) {
	ctx := newTestContext(LossError)

	v := CastTo(ctx, sqlexec.CharacterValue("NaN"), sqlexec.SimpleType(sqlexec.TypeFloat8))
	assert.True(t, v.Valid())
	assert.True(t, math.IsNaN(v.Float8()))

	v = CastTo(ctx, sqlexec.CharacterValue("-NaN"), sqlexec.SimpleType(sqlexec.TypeFloat4))
	assert.True(t, v.Valid())

	v = CastTo(ctx, sqlexec.CharacterValue("NaN"), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorFormat, v.ErrorKind())

	v = CastTo(ctx, sqlexec.CharacterValue("Infinity"), sqlexec.SimpleType(sqlexec.TypeFloat8))
	assert.True(t, math.IsInf(v.Float8(), 1))
}

func TestCharacterTruncationAndPadding(t *testing.T) {
	ctx := newTestContext(LossError)

	// fits: fixed length pads with spaces
	v := CastTo(ctx, sqlexec.CharacterValue("ab"), sqlexec.CharacterType(4, false))
	assert.Equal(t, "ab  ", v.Character())

	// varying does not pad
	v = CastTo(ctx, sqlexec.CharacterValue("ab"), sqlexec.CharacterType(4, true))
	assert.Equal(t, "ab", v.Character())

	// cutting real characters is a loss
	v = CastTo(ctx, sqlexec.CharacterValue("abcdef"), sqlexec.CharacterType(4, true))
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorLostPrecisionValueTooLong, v.ErrorKind())

	// cutting only trailing pad spaces of a character source is not a loss
	v = CastTo(ctx, sqlexec.CharacterValue("abcd   "), sqlexec.CharacterType(4, true))
	assert.Equal(t, "abcd", v.Character())

	// truncation happens at a UTF-8 character boundary
	ctx = newTestContext(LossIgnore)
	v = CastTo(ctx, sqlexec.CharacterValue("日本語です"), sqlexec.CharacterType(2, true))
	assert.Equal(t, "日本", v.Character())
}

func TestVarcharIdempotence(t *testing.T) {
	ctx := newTestContext(LossError)
	target := sqlexec.CharacterType(10, true)
	once := CastTo(ctx, sqlexec.CharacterValue("hello"), target)
	twice := CastTo(ctx, once, target)
	assert.Equal(t, once, twice)
}

func TestOctetHexCodecs(t *testing.T) {
	ctx := newTestContext(LossError)

	// octet to char hex-encodes without separators
	v := CastTo(ctx, sqlexec.OctetValue([]byte{0xDE, 0xAD, 0x01}), sqlexec.CharacterType(0, true))
	assert.Equal(t, "dead01", v.Character())

	// string to octet parses hex pairs
	v = CastTo(ctx, sqlexec.CharacterValue("dead01"), sqlexec.OctetType(0, true))
	assert.Equal(t, []byte{0xDE, 0xAD, 0x01}, v.Octet())

	// odd length or non-hex is a format error
	v = CastTo(ctx, sqlexec.CharacterValue("abc"), sqlexec.OctetType(0, true))
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorFormat, v.ErrorKind())
}

func TestOctetPadding(t *testing.T) {
	ctx := newTestContext(LossError)
	v := CastTo(ctx, sqlexec.OctetValue([]byte{0x01}), sqlexec.OctetType(3, false))
	assert.Equal(t, []byte{0x01, 0x00, 0x00}, v.Octet())
}

func TestSmallintGate(t *testing.T) {
	ctx := newTestContext(LossError)
	v := CastTo(ctx, sqlexec.Int4Value(1), sqlexec.SimpleType(sqlexec.TypeInt1))
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorUnsupported, v.ErrorKind())

	ctx.SupportSmallint = true
	v = CastTo(ctx, sqlexec.Int4Value(1), sqlexec.SimpleType(sqlexec.TypeInt1))
	assert.True(t, v.Valid())

	// narrowing clamps under the loss policy
	ctx.Policy = LossIgnore
	v = CastTo(ctx, sqlexec.Int4Value(300), sqlexec.SimpleType(sqlexec.TypeInt1))
	assert.Equal(t, int32(127), v.Int4())
}

func TestBooleanGate(t *testing.T) {
	ctx := newTestContext(LossError)
	v := CastTo(ctx, sqlexec.CharacterValue("true"), sqlexec.SimpleType(sqlexec.TypeBoolean))
	assert.True(t, v.Error())

	ctx.SupportBoolean = true
	v = CastTo(ctx, sqlexec.CharacterValue(" true "), sqlexec.SimpleType(sqlexec.TypeBoolean))
	assert.True(t, v.Bool())
	v = CastTo(ctx, sqlexec.BooleanValue(false), sqlexec.CharacterType(0, true))
	assert.Equal(t, "false", v.Character())
}

func TestTemporalCasts(t *testing.T) {
	ctx := newTestContext(LossError)

	d := CastTo(ctx, sqlexec.CharacterValue("2024-03-01"), sqlexec.SimpleType(sqlexec.TypeDate))
	assert.True(t, d.Valid())
	back := CastTo(ctx, d, sqlexec.CharacterType(0, true))
	assert.Equal(t, "2024-03-01", back.Character())

	tod := CastTo(ctx, sqlexec.CharacterValue("12:34:56.5"), sqlexec.SimpleType(sqlexec.TypeTimeOfDay))
	assert.True(t, tod.Valid())
	back = CastTo(ctx, tod, sqlexec.CharacterType(0, true))
	assert.Equal(t, "12:34:56.5", back.Character())

	tp := CastTo(ctx, sqlexec.CharacterValue("2024-03-01 12:00:00"), sqlexec.SimpleType(sqlexec.TypeTimePoint))
	assert.True(t, tp.Valid())
	back = CastTo(ctx, tp, sqlexec.CharacterType(0, true))
	assert.Equal(t, "2024-03-01 12:00:00", back.Character())

	bad := CastTo(ctx, sqlexec.CharacterValue("not a date"), sqlexec.SimpleType(sqlexec.TypeDate))
	assert.True(t, bad.Error())
}

func TestUnsupportedCombination(t *testing.T) {
	ctx := newTestContext(LossError)
	v := CastTo(ctx, sqlexec.DateValue(1), sqlexec.SimpleType(sqlexec.TypeInt4))
	assert.True(t, v.Error())
	assert.Equal(t, sqlexec.ErrorUnsupported, v.ErrorKind())
}
