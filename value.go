package sqlexec

import (
	"fmt"

	"github.com/mstgnz/sqlexec/decimal"
)

// ErrorKind classifies an evaluation failure carried inside a Value.
type ErrorKind int

const (
	ErrorUndefined ErrorKind = iota
	ErrorArithmetic
	ErrorOverflow
	ErrorLostPrecision
	ErrorLostPrecisionValueTooLong
	ErrorFormat
	ErrorUnsupported
	ErrorInvalidInputValue
	ErrorInfoProvided
	ErrorLobFileIO
	ErrorLobReferenceInvalid
)

// String returns the diagnostic name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorUndefined:
		return "undefined"
	case ErrorArithmetic:
		return "arithmetic_error"
	case ErrorOverflow:
		return "overflow"
	case ErrorLostPrecision:
		return "lost_precision"
	case ErrorLostPrecisionValueTooLong:
		return "lost_precision_value_too_long"
	case ErrorFormat:
		return "format_error"
	case ErrorUnsupported:
		return "unsupported"
	case ErrorInvalidInputValue:
		return "invalid_input_value"
	case ErrorInfoProvided:
		return "error_info_provided"
	case ErrorLobFileIO:
		return "lob_file_io_error"
	case ErrorLobReferenceInvalid:
		return "lob_reference_invalid"
	}
	return "unknown"
}

type valueTag int8

const (
	tagEmpty valueTag = iota
	tagError
	tagValue
)

// Value is the tagged variant flowing through the evaluator and the operators.
// It carries exactly one runtime value of the logical types, or it is empty
// (SQL NULL), or it carries an error sentinel. Empty and error are distinct
// at the tag level; an empty value never means failure.
type Value struct {
	tag  valueTag
	kind TypeKind
	errK ErrorKind
	v    any
}

// Null returns the empty (NULL) value.
func Null() Value {
	return Value{tag: tagEmpty}
}

// ErrorValue returns an error sentinel of the given kind.
func ErrorValue(kind ErrorKind) Value {
	return Value{tag: tagError, errK: kind}
}

// Unsupported returns the error sentinel used for operations outside the
// engine's type matrix.
func Unsupported() Value {
	return ErrorValue(ErrorUnsupported)
}

// BooleanValue wraps a boolean.
func BooleanValue(v bool) Value {
	return Value{tag: tagValue, kind: TypeBoolean, v: v}
}

// Int1Value wraps an int1. The payload is widened to int32 like the other
// small integers; the kind keeps the logical width.
func Int1Value(v int32) Value {
	return Value{tag: tagValue, kind: TypeInt1, v: v}
}

// Int2Value wraps an int2.
func Int2Value(v int32) Value {
	return Value{tag: tagValue, kind: TypeInt2, v: v}
}

// Int4Value wraps an int4.
func Int4Value(v int32) Value {
	return Value{tag: tagValue, kind: TypeInt4, v: v}
}

// Int8Value wraps an int8.
func Int8Value(v int64) Value {
	return Value{tag: tagValue, kind: TypeInt8, v: v}
}

// Float4Value wraps a float4.
func Float4Value(v float32) Value {
	return Value{tag: tagValue, kind: TypeFloat4, v: v}
}

// Float8Value wraps a float8.
func Float8Value(v float64) Value {
	return Value{tag: tagValue, kind: TypeFloat8, v: v}
}

// DecimalValue wraps a decimal triple.
func DecimalValue(v decimal.Triple) Value {
	return Value{tag: tagValue, kind: TypeDecimal, v: v}
}

// CharacterValue wraps a character string.
func CharacterValue(v string) Value {
	return Value{tag: tagValue, kind: TypeCharacter, v: v}
}

// OctetValue wraps an octet string.
func OctetValue(v []byte) Value {
	return Value{tag: tagValue, kind: TypeOctet, v: v}
}

// DateValue wraps a date.
func DateValue(v Date) Value {
	return Value{tag: tagValue, kind: TypeDate, v: v}
}

// TimeOfDayValue wraps a time of day.
func TimeOfDayValue(v TimeOfDay) Value {
	return Value{tag: tagValue, kind: TypeTimeOfDay, v: v}
}

// TimePointValue wraps a time point.
func TimePointValue(v TimePoint) Value {
	return Value{tag: tagValue, kind: TypeTimePoint, v: v}
}

// BlobValue wraps a blob reference.
func BlobValue(v LOBReference) Value {
	return Value{tag: tagValue, kind: TypeBlob, v: v}
}

// ClobValue wraps a clob reference.
func ClobValue(v LOBReference) Value {
	return Value{tag: tagValue, kind: TypeClob, v: v}
}

// Empty reports whether the value is SQL NULL. An error value is not empty.
func (a Value) Empty() bool {
	return a.tag == tagEmpty
}

// Error reports whether the value carries an error sentinel.
func (a Value) Error() bool {
	return a.tag == tagError
}

// Valid reports whether the value carries a runtime value.
func (a Value) Valid() bool {
	return a.tag == tagValue
}

// Kind returns the logical type of the carried value, or TypeUnknown for
// empty and error values.
func (a Value) Kind() TypeKind {
	if a.tag != tagValue {
		return TypeUnknown
	}
	return a.kind
}

// ErrorKind returns the error classification. Only meaningful when Error().
func (a Value) ErrorKind() ErrorKind {
	return a.errK
}

// Bool returns the boolean payload. The cast is unchecked.
func (a Value) Bool() bool { return a.v.(bool) }

// Int4 returns the int1/int2/int4 payload. The cast is unchecked.
func (a Value) Int4() int32 { return a.v.(int32) }

// Int8 returns the int8 payload. The cast is unchecked.
func (a Value) Int8() int64 { return a.v.(int64) }

// Float4 returns the float4 payload. The cast is unchecked.
func (a Value) Float4() float32 { return a.v.(float32) }

// Float8 returns the float8 payload. The cast is unchecked.
func (a Value) Float8() float64 { return a.v.(float64) }

// Decimal returns the decimal payload. The cast is unchecked.
func (a Value) Decimal() decimal.Triple { return a.v.(decimal.Triple) }

// Character returns the character payload. The cast is unchecked.
func (a Value) Character() string { return a.v.(string) }

// Octet returns the octet payload. The cast is unchecked.
func (a Value) Octet() []byte { return a.v.([]byte) }

// Date returns the date payload. The cast is unchecked.
func (a Value) Date() Date { return a.v.(Date) }

// TimeOfDay returns the time-of-day payload. The cast is unchecked.
func (a Value) TimeOfDay() TimeOfDay { return a.v.(TimeOfDay) }

// TimePoint returns the time-point payload. The cast is unchecked.
func (a Value) TimePoint() TimePoint { return a.v.(TimePoint) }

// LOB returns the blob/clob payload. The cast is unchecked.
func (a Value) LOB() LOBReference { return a.v.(LOBReference) }

// String renders the value for diagnostics.
func (a Value) String() string {
	switch a.tag {
	case tagEmpty:
		return "<null>"
	case tagError:
		return fmt.Sprintf("<error:%s>", a.errK)
	}
	switch a.kind {
	case TypeDecimal:
		return a.Decimal().String()
	case TypeOctet:
		return fmt.Sprintf("%x", a.Octet())
	}
	return fmt.Sprintf("%v", a.v)
}
