package expr

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/decimal"
)

// Largest integral floats still convertible to the integer targets. The
// bound is the largest integral value of the float type below the integer
// maximum, not the integer maximum itself.
const (
	maxFloat4ToInt1 = float32(math.MaxInt8)
	maxFloat4ToInt2 = float32(math.MaxInt16)
	maxFloat4ToInt4 = float32(math.MaxInt32 - 127)
	maxFloat4ToInt8 = float32(math.MaxInt64 - (512*1024*1024*1024 - 1))
	maxFloat8ToInt1 = float64(math.MaxInt8)
	maxFloat8ToInt2 = float64(math.MaxInt16)
	maxFloat8ToInt4 = float64(math.MaxInt32)
	maxFloat8ToInt8 = float64(math.MaxInt64 - 1023)
)

// Float special forms recognized and produced by the character casts.
const (
	stringNaN              = "NaN"
	stringPositiveNaN      = "+NaN"
	stringNegativeNaN      = "-NaN"
	stringPositiveInfinity = "Infinity"
	stringNegativeInfinity = "-Infinity"
	stringPositiveInf      = "Inf"
	stringNegativeInf      = "-Inf"
)

// CastTo converts a valid value to the target type under the context's loss
// policy. NULL and error inputs are handled by the caller; the matrix sees
// only carried values. Combinations outside the matrix return unsupported.
func CastTo(ctx *Context, v sqlexec.Value, target sqlexec.Type) sqlexec.Value {
	switch target.Kind {
	case sqlexec.TypeBoolean:
		return castToBoolean(ctx, v)
	case sqlexec.TypeInt1:
		if !ctx.SupportSmallint {
			return sqlexec.Unsupported()
		}
		return castToInt(ctx, v, math.MinInt8, math.MaxInt8, sqlexec.TypeInt1)
	case sqlexec.TypeInt2:
		if !ctx.SupportSmallint {
			return sqlexec.Unsupported()
		}
		return castToInt(ctx, v, math.MinInt16, math.MaxInt16, sqlexec.TypeInt2)
	case sqlexec.TypeInt4:
		return castToInt(ctx, v, math.MinInt32, math.MaxInt32, sqlexec.TypeInt4)
	case sqlexec.TypeInt8:
		return castToInt(ctx, v, math.MinInt64, math.MaxInt64, sqlexec.TypeInt8)
	case sqlexec.TypeFloat4:
		return castToFloat4(ctx, v)
	case sqlexec.TypeFloat8:
		return castToFloat8(ctx, v)
	case sqlexec.TypeDecimal:
		return castToDecimal(ctx, v, target)
	case sqlexec.TypeCharacter:
		return castToCharacter(ctx, v, target)
	case sqlexec.TypeOctet:
		return castToOctet(ctx, v, target)
	case sqlexec.TypeDate:
		return castToDate(ctx, v)
	case sqlexec.TypeTimeOfDay:
		return castToTimeOfDay(ctx, v)
	case sqlexec.TypeTimePoint:
		return castToTimePoint(ctx, v)
	}
	return sqlexec.Unsupported()
}

// applyLoss resolves a precision-losing conversion per the context policy.
// modified is the value after the loss (clamped, truncated or shortened).
func applyLoss(ctx *Context, modified sqlexec.Value, kind sqlexec.ErrorKind, msg string) sqlexec.Value {
	switch ctx.Policy {
	case LossIgnore:
		return modified
	case LossUnknown:
		return sqlexec.Null()
	case LossWarn:
		ctx.AddError(Diagnostic{Kind: kind, Message: msg})
		return modified
	case LossImplicit, LossError:
		ctx.AddError(Diagnostic{Kind: kind, Message: msg})
		return sqlexec.ErrorValue(kind)
	}
	// floor and ceil are accepted by the configuration but not by the matrix
	return sqlexec.Unsupported()
}

func castArithmeticError(ctx *Context, msg string) sqlexec.Value {
	ctx.AddError(Diagnostic{Kind: sqlexec.ErrorArithmetic, Message: msg})
	return sqlexec.ErrorValue(sqlexec.ErrorArithmetic)
}

func castFormatError(ctx *Context, msg string, arg string) sqlexec.Value {
	d := Diagnostic{Kind: sqlexec.ErrorFormat, Message: msg}
	d.NewArgument(arg)
	ctx.AddError(d)
	return sqlexec.ErrorValue(sqlexec.ErrorFormat)
}

func makeInt(kind sqlexec.TypeKind, v int64) sqlexec.Value {
	switch kind {
	case sqlexec.TypeInt1:
		return sqlexec.Int1Value(int32(v))
	case sqlexec.TypeInt2:
		return sqlexec.Int2Value(int32(v))
	case sqlexec.TypeInt4:
		return sqlexec.Int4Value(int32(v))
	}
	return sqlexec.Int8Value(v)
}

// --- integer targets ---

func castToInt(ctx *Context, v sqlexec.Value, min, max int64, kind sqlexec.TypeKind) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		return intToInt(ctx, int64(v.Int4()), min, max, kind)
	case sqlexec.TypeInt8:
		return intToInt(ctx, v.Int8(), min, max, kind)
	case sqlexec.TypeFloat4:
		return floatToInt(ctx, float64(v.Float4()), float64(maxFloat4For(kind)), min, max, kind)
	case sqlexec.TypeFloat8:
		return floatToInt(ctx, v.Float8(), maxFloat8For(kind), min, max, kind)
	case sqlexec.TypeDecimal:
		return decimalToInt(ctx, v.Decimal(), min, max, kind)
	case sqlexec.TypeCharacter:
		return characterToNumeric(ctx, v.Character(), sqlexec.Type{Kind: kind})
	}
	return sqlexec.Unsupported()
}

func maxFloat4For(kind sqlexec.TypeKind) float32 {
	switch kind {
	case sqlexec.TypeInt1:
		return maxFloat4ToInt1
	case sqlexec.TypeInt2:
		return maxFloat4ToInt2
	case sqlexec.TypeInt4:
		return maxFloat4ToInt4
	}
	return maxFloat4ToInt8
}

func maxFloat8For(kind sqlexec.TypeKind) float64 {
	switch kind {
	case sqlexec.TypeInt1:
		return maxFloat8ToInt1
	case sqlexec.TypeInt2:
		return maxFloat8ToInt2
	case sqlexec.TypeInt4:
		return maxFloat8ToInt4
	}
	return maxFloat8ToInt8
}

func intToInt(ctx *Context, v, min, max int64, kind sqlexec.TypeKind) sqlexec.Value {
	if v > max {
		return applyLoss(ctx, makeInt(kind, max), sqlexec.ErrorLostPrecision, "integer value out of range")
	}
	if v < min {
		return applyLoss(ctx, makeInt(kind, min), sqlexec.ErrorLostPrecision, "integer value out of range")
	}
	return makeInt(kind, v)
}

// floatToInt rejects NaN, clamps infinities and out-of-range values under
// the loss policy, and truncates toward zero otherwise. The implicit policy
// forbids float to integer conversion outright.
func floatToInt(ctx *Context, f, fmax float64, min, max int64, kind sqlexec.TypeKind) sqlexec.Value {
	if ctx.Policy == LossImplicit {
		return applyLoss(ctx, sqlexec.Null(), sqlexec.ErrorLostPrecision, "implicit conversion from float to integer is not allowed")
	}
	if math.IsNaN(f) {
		return castArithmeticError(ctx, "NaN can not be converted to integer")
	}
	if f > fmax {
		return applyLoss(ctx, makeInt(kind, max), sqlexec.ErrorLostPrecision, "float value out of integer range")
	}
	if f < float64(min) {
		return applyLoss(ctx, makeInt(kind, min), sqlexec.ErrorLostPrecision, "float value out of integer range")
	}
	return makeInt(kind, int64(math.Trunc(f)))
}

// decimalToInt rounds toward zero; an inexact rescale or an out-of-range
// result triggers the loss policy.
func decimalToInt(ctx *Context, t decimal.Triple, min, max int64, kind sqlexec.TypeKind) sqlexec.Value {
	r, st := decimal.RoundToIntegral(t)
	v, ok := r.Int64()
	if !ok {
		clamp := max
		if r.Sign() < 0 {
			clamp = min
		}
		return applyLoss(ctx, makeInt(kind, clamp), sqlexec.ErrorLostPrecision, "decimal value out of integer range")
	}
	if v > max || v < min {
		clamp := max
		if v < min {
			clamp = min
		}
		return applyLoss(ctx, makeInt(kind, clamp), sqlexec.ErrorLostPrecision, "decimal value out of integer range")
	}
	if st.Inexact() {
		return applyLoss(ctx, makeInt(kind, v), sqlexec.ErrorLostPrecision, "decimal fraction discarded in integer conversion")
	}
	return makeInt(kind, v)
}

// --- float targets ---

func castToFloat4(ctx *Context, v sqlexec.Value) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		return sqlexec.Float4Value(float32(v.Int4()))
	case sqlexec.TypeInt8:
		return sqlexec.Float4Value(float32(v.Int8()))
	case sqlexec.TypeFloat4:
		return v
	case sqlexec.TypeFloat8:
		return sqlexec.Float4Value(float32(v.Float8()))
	case sqlexec.TypeDecimal:
		return sqlexec.Float4Value(float32(v.Decimal().Float64()))
	case sqlexec.TypeCharacter:
		return characterToNumeric(ctx, v.Character(), sqlexec.SimpleType(sqlexec.TypeFloat4))
	}
	return sqlexec.Unsupported()
}

func castToFloat8(ctx *Context, v sqlexec.Value) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		return sqlexec.Float8Value(float64(v.Int4()))
	case sqlexec.TypeInt8:
		return sqlexec.Float8Value(float64(v.Int8()))
	case sqlexec.TypeFloat4:
		return sqlexec.Float8Value(float64(v.Float4()))
	case sqlexec.TypeFloat8:
		return v
	case sqlexec.TypeDecimal:
		return sqlexec.Float8Value(v.Decimal().Float64())
	case sqlexec.TypeCharacter:
		return characterToNumeric(ctx, v.Character(), sqlexec.SimpleType(sqlexec.TypeFloat8))
	}
	return sqlexec.Unsupported()
}

// --- decimal target ---

func castToDecimal(ctx *Context, v sqlexec.Value, target sqlexec.Type) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		return decimalWithParams(ctx, decimal.FromInt64(int64(v.Int4())), target)
	case sqlexec.TypeInt8:
		return decimalWithParams(ctx, decimal.FromInt64(v.Int8()), target)
	case sqlexec.TypeFloat4:
		return floatToDecimal(ctx, float64(v.Float4()), target)
	case sqlexec.TypeFloat8:
		return floatToDecimal(ctx, v.Float8(), target)
	case sqlexec.TypeDecimal:
		return decimalWithParams(ctx, v.Decimal(), target)
	case sqlexec.TypeCharacter:
		return characterToNumeric(ctx, v.Character(), target)
	}
	return sqlexec.Unsupported()
}

// floatToDecimal rejects NaN with arithmetic_error but saturates infinities
// to the largest finite triples under the loss policy; the source keeps this
// asymmetry and so does the rewrite. The implicit policy forbids the
// conversion outright.
func floatToDecimal(ctx *Context, f float64, target sqlexec.Type) sqlexec.Value {
	if ctx.Policy == LossImplicit {
		return applyLoss(ctx, sqlexec.Null(), sqlexec.ErrorLostPrecision, "implicit conversion from float to decimal is not allowed")
	}
	if math.IsNaN(f) {
		return castArithmeticError(ctx, "NaN can not be converted to decimal")
	}
	if math.IsInf(f, 1) {
		return applyLoss(ctx, sqlexec.DecimalValue(decimal.TripleMax), sqlexec.ErrorLostPrecision, "infinity saturated to the maximum decimal")
	}
	if math.IsInf(f, -1) {
		return applyLoss(ctx, sqlexec.DecimalValue(decimal.TripleMin), sqlexec.ErrorLostPrecision, "infinity saturated to the minimum decimal")
	}
	t, st := decimal.Parse(strconv.FormatFloat(f, 'g', -1, 64))
	if st.Syntax() || st.Invalid() {
		return castArithmeticError(ctx, "float value can not be represented as decimal")
	}
	return decimalWithParams(ctx, t, target)
}

// decimalWithParams applies the (precision, scale) constraint. The value is
// reduced first; values whose integer digits exceed precision-scale clamp to
// the largest representable magnitude and signal loss; otherwise the value
// rescales to exponent -scale with round-down and an inexact rescale signals
// loss.
func decimalWithParams(ctx *Context, t decimal.Triple, target sqlexec.Type) sqlexec.Value {
	d := decimal.Reduce(t)
	if target.Precision <= 0 {
		return sqlexec.DecimalValue(d)
	}
	p, s := target.Precision, target.Scale
	if !d.Zero() && decimal.IntegerDigits(d) > p-s {
		clamped := decimal.MaxAt(p, s)
		if d.Sign() < 0 {
			clamped = clamped.Neg()
		}
		return applyLoss(ctx, sqlexec.DecimalValue(clamped), sqlexec.ErrorLostPrecision, "decimal value exceeds the target precision")
	}
	out, st := decimal.Rescale(d, int32(-s))
	if st.Inexact() {
		return applyLoss(ctx, sqlexec.DecimalValue(decimal.Reduce(out)), sqlexec.ErrorLostPrecision, "decimal fraction discarded by the target scale")
	}
	return sqlexec.DecimalValue(decimal.Reduce(out))
}

// --- character source to numerics ---

// characterToNumeric trims ASCII spaces, parses the text as a decimal and
// applies the numeric conversion of the target. NaN and infinity forms are
// accepted only for float targets.
func characterToNumeric(ctx *Context, s string, target sqlexec.Type) sqlexec.Value {
	trimmed := strings.Trim(s, " ")
	if target.Kind == sqlexec.TypeFloat4 || target.Kind == sqlexec.TypeFloat8 {
		if f, ok := floatSpecialForm(trimmed); ok {
			if target.Kind == sqlexec.TypeFloat4 {
				return sqlexec.Float4Value(float32(f))
			}
			return sqlexec.Float8Value(f)
		}
	}
	t, st := decimal.Parse(trimmed)
	if st.Syntax() {
		return castFormatError(ctx, "text is not a valid number", s)
	}
	if st.Inexact() {
		// over-long coefficients are rescaled down with round-down
		v := applyLoss(ctx, sqlexec.DecimalValue(t), sqlexec.ErrorLostPrecision, "numeric text needs more than the maximum precision")
		if !v.Valid() {
			return v
		}
		t = v.Decimal()
	}
	switch target.Kind {
	case sqlexec.TypeInt1:
		return decimalToInt(ctx, t, math.MinInt8, math.MaxInt8, target.Kind)
	case sqlexec.TypeInt2:
		return decimalToInt(ctx, t, math.MinInt16, math.MaxInt16, target.Kind)
	case sqlexec.TypeInt4:
		return decimalToInt(ctx, t, math.MinInt32, math.MaxInt32, target.Kind)
	case sqlexec.TypeInt8:
		return decimalToInt(ctx, t, math.MinInt64, math.MaxInt64, target.Kind)
	case sqlexec.TypeFloat4:
		return sqlexec.Float4Value(float32(t.Float64()))
	case sqlexec.TypeFloat8:
		return sqlexec.Float8Value(t.Float64())
	case sqlexec.TypeDecimal:
		return decimalWithParams(ctx, t, target)
	}
	return sqlexec.Unsupported()
}

func floatSpecialForm(s string) (float64, bool) {
	switch s {
	case stringNaN, stringPositiveNaN, stringNegativeNaN:
		return math.NaN(), true
	case stringPositiveInfinity, stringPositiveInf:
		return math.Inf(1), true
	case stringNegativeInfinity, stringNegativeInf:
		return math.Inf(-1), true
	}
	return 0, false
}

// --- boolean target ---

func castToBoolean(ctx *Context, v sqlexec.Value) sqlexec.Value {
	if v.Kind() == sqlexec.TypeBoolean {
		return v
	}
	if !ctx.SupportBoolean {
		return sqlexec.Unsupported()
	}
	if v.Kind() == sqlexec.TypeCharacter {
		switch strings.ToLower(strings.Trim(v.Character(), " ")) {
		case "true":
			return sqlexec.BooleanValue(true)
		case "false":
			return sqlexec.BooleanValue(false)
		}
		return castFormatError(ctx, "text is not a valid boolean", v.Character())
	}
	return sqlexec.Unsupported()
}

// --- character target ---

func castToCharacter(ctx *Context, v sqlexec.Value, target sqlexec.Type) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeBoolean:
		if !ctx.SupportBoolean {
			return sqlexec.Unsupported()
		}
		return characterWithLength(ctx, strconv.FormatBool(v.Bool()), target, false)
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		return characterWithLength(ctx, strconv.FormatInt(int64(v.Int4()), 10), target, false)
	case sqlexec.TypeInt8:
		return characterWithLength(ctx, strconv.FormatInt(v.Int8(), 10), target, false)
	case sqlexec.TypeFloat4:
		return characterWithLength(ctx, formatFloat(float64(v.Float4()), 32), target, false)
	case sqlexec.TypeFloat8:
		return characterWithLength(ctx, formatFloat(v.Float8(), 64), target, false)
	case sqlexec.TypeDecimal:
		return characterWithLength(ctx, decimal.Format(v.Decimal()), target, false)
	case sqlexec.TypeCharacter:
		return characterWithLength(ctx, v.Character(), target, true)
	case sqlexec.TypeOctet:
		// hex-encode without separators
		return characterWithLength(ctx, hex.EncodeToString(v.Octet()), target, false)
	case sqlexec.TypeDate:
		return characterWithLength(ctx, formatDate(v.Date()), target, false)
	case sqlexec.TypeTimeOfDay:
		return characterWithLength(ctx, formatTimeOfDay(v.TimeOfDay()), target, false)
	case sqlexec.TypeTimePoint:
		return characterWithLength(ctx, formatTimePoint(v.TimePoint()), target, false)
	case sqlexec.TypeClob:
		if !ctx.EnableBlobCast {
			return sqlexec.Unsupported()
		}
		content, ev := readLOB(ctx, v.LOB())
		if ev.Error() {
			return ev
		}
		return characterWithLength(ctx, string(content), target, false)
	}
	return sqlexec.Unsupported()
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return stringNaN
	case math.IsInf(f, 1):
		return stringPositiveInfinity
	case math.IsInf(f, -1):
		return stringNegativeInfinity
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// characterWithLength truncates at the correct UTF-8 character boundary and
// pads fixed-length targets with spaces. When the source is character typed,
// cutting only trailing pad spaces is not a loss.
func characterWithLength(ctx *Context, s string, target sqlexec.Type, sourcePadded bool) sqlexec.Value {
	n := target.Length
	if n <= 0 {
		return sqlexec.CharacterValue(s)
	}
	runes := utf8.RuneCountInString(s)
	if runes > n {
		cut := byteIndexOfRune(s, n)
		truncated := s[:cut]
		rest := s[cut:]
		if !target.Varying {
			truncated = padSpaces(truncated, n-utf8.RuneCountInString(truncated))
		}
		if sourcePadded && strings.Trim(rest, " ") == "" {
			return sqlexec.CharacterValue(truncated)
		}
		return applyLoss(ctx, sqlexec.CharacterValue(truncated), sqlexec.ErrorLostPrecisionValueTooLong, "character value is too long for the target length")
	}
	if !target.Varying && runes < n {
		s = padSpaces(s, n-runes)
	}
	return sqlexec.CharacterValue(s)
}

func byteIndexOfRune(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}

func padSpaces(s string, n int) string {
	if n <= 0 {
		return s
	}
	return s + strings.Repeat(" ", n)
}

// --- octet target ---

func castToOctet(ctx *Context, v sqlexec.Value, target sqlexec.Type) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeOctet:
		return octetWithLength(ctx, v.Octet(), target, true)
	case sqlexec.TypeCharacter:
		// parse as hex pairs
		s := strings.Trim(v.Character(), " ")
		raw, err := hex.DecodeString(s)
		if err != nil {
			return castFormatError(ctx, "text is not a valid hexadecimal octet string", v.Character())
		}
		return octetWithLength(ctx, raw, target, false)
	case sqlexec.TypeBlob:
		if !ctx.EnableBlobCast {
			return sqlexec.Unsupported()
		}
		content, ev := readLOB(ctx, v.LOB())
		if ev.Error() {
			return ev
		}
		return octetWithLength(ctx, content, target, false)
	}
	return sqlexec.Unsupported()
}

// octetWithLength truncates in byte units and pads fixed-length targets
// with zero bytes.
func octetWithLength(ctx *Context, b []byte, target sqlexec.Type, sourcePadded bool) sqlexec.Value {
	n := target.Length
	if n <= 0 {
		return sqlexec.OctetValue(b)
	}
	if len(b) > n {
		truncated := make([]byte, n, n)
		copy(truncated, b[:n])
		rest := b[n:]
		if sourcePadded && allZero(rest) {
			return sqlexec.OctetValue(truncated)
		}
		return applyLoss(ctx, sqlexec.OctetValue(truncated), sqlexec.ErrorLostPrecisionValueTooLong, "octet value is too long for the target length")
	}
	if !target.Varying && len(b) < n {
		padded := make([]byte, n)
		copy(padded, b)
		return sqlexec.OctetValue(padded)
	}
	return sqlexec.OctetValue(b)
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// --- temporal targets ---

const (
	dateLayout      = "2006-01-02"
	timePointLayout = "2006-01-02 15:04:05"
)

func castToDate(ctx *Context, v sqlexec.Value) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeDate:
		return v
	case sqlexec.TypeCharacter:
		t, err := time.ParseInLocation(dateLayout, strings.Trim(v.Character(), " "), time.UTC)
		if err != nil {
			return castFormatError(ctx, "text is not a valid date", v.Character())
		}
		return sqlexec.DateValue(sqlexec.Date(t.Unix() / 86400))
	}
	return sqlexec.Unsupported()
}

func castToTimeOfDay(ctx *Context, v sqlexec.Value) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeTimeOfDay:
		return v
	case sqlexec.TypeCharacter:
		tod, ok := parseTimeOfDay(strings.Trim(v.Character(), " "))
		if !ok {
			return castFormatError(ctx, "text is not a valid time of day", v.Character())
		}
		return sqlexec.TimeOfDayValue(tod)
	}
	return sqlexec.Unsupported()
}

func castToTimePoint(ctx *Context, v sqlexec.Value) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeTimePoint:
		return v
	case sqlexec.TypeCharacter:
		s := strings.Trim(v.Character(), " ")
		layouts := []string{timePointLayout + ".999999999", timePointLayout}
		for _, layout := range layouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return sqlexec.TimePointValue(sqlexec.TimePoint{Seconds: t.Unix(), Nanos: uint32(t.Nanosecond())})
			}
		}
		return castFormatError(ctx, "text is not a valid time point", v.Character())
	}
	return sqlexec.Unsupported()
}

func formatDate(d sqlexec.Date) string {
	return time.Unix(int64(d)*86400, 0).UTC().Format(dateLayout)
}

func formatTimeOfDay(t sqlexec.TimeOfDay) string {
	ns := int64(t)
	sec := ns / 1_000_000_000
	frac := ns % 1_000_000_000
	out := fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec/60)%60, sec%60)
	if frac != 0 {
		out += strings.TrimRight(fmt.Sprintf(".%09d", frac), "0")
	}
	return out
}

func formatTimePoint(tp sqlexec.TimePoint) string {
	t := time.Unix(tp.Seconds, int64(tp.Nanos)).UTC()
	out := t.Format(timePointLayout)
	if tp.Nanos != 0 {
		out += strings.TrimRight(fmt.Sprintf(".%09d", tp.Nanos), "0")
	}
	return out
}

func parseTimeOfDay(s string) (sqlexec.TimeOfDay, bool) {
	base := s
	var frac int64
	if i := strings.IndexByte(s, '.'); i >= 0 {
		base = s[:i]
		fs := s[i+1:]
		if fs == "" || len(fs) > 9 {
			return 0, false
		}
		v, err := strconv.ParseInt(fs+strings.Repeat("0", 9-len(fs)), 10, 64)
		if err != nil {
			return 0, false
		}
		frac = v
	}
	t, err := time.Parse("15:04:05", base)
	if err != nil {
		return 0, false
	}
	sec := int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
	return sqlexec.TimeOfDay(sec*1_000_000_000 + frac), true
}

// --- LOB resolution ---

// readLOB materializes a provided reference into the datastore on first
// touch, resolves the file path and reads the contents.
func readLOB(ctx *Context, ref sqlexec.LOBReference) ([]byte, sqlexec.Value) {
	if ctx.Store == nil {
		return nil, sqlexec.ErrorValue(sqlexec.ErrorLobReferenceInvalid)
	}
	id := ref.ID
	if ref.Kind == sqlexec.LOBProvided {
		registered, err := ctx.Store.Register(ref.Path)
		if err != nil {
			d := Diagnostic{Kind: sqlexec.ErrorLobReferenceInvalid, Message: "provided LOB could not be registered"}
			d.NewArgument(ref.Path)
			ctx.AddError(d)
			return nil, sqlexec.ErrorValue(sqlexec.ErrorLobReferenceInvalid)
		}
		id = registered
	}
	path, err := ctx.Store.PathByID(id)
	if err != nil {
		ctx.AddError(Diagnostic{Kind: sqlexec.ErrorLobReferenceInvalid, Message: "LOB reference does not resolve"})
		return nil, sqlexec.ErrorValue(sqlexec.ErrorLobReferenceInvalid)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		d := Diagnostic{Kind: sqlexec.ErrorLobFileIO, Message: "LOB file could not be read"}
		d.NewArgument(path)
		ctx.AddError(d)
		return nil, sqlexec.ErrorValue(sqlexec.ErrorLobFileIO)
	}
	return content, sqlexec.Value{}
}
