package expr

import (
	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/decimal"
)

// PromoteBinaryNumeric applies the binary numeric promotion lattice to both
// operands: int4 < int8 < decimal on the integer rung; mixing integer with
// float promotes to float8; mixing float with decimal promotes to float8;
// mixing any other numeric with decimal promotes to decimal. Non-numeric
// operands never promote: both results are unsupported errors unless the two
// sides already share a kind.
func PromoteBinaryNumeric(l, r sqlexec.Value) (sqlexec.Value, sqlexec.Value) {
	lk := normalizeSmall(l)
	rk := normalizeSmall(r)
	a := promoteLeft(lk, rk)
	b := promoteLeft(rk, lk)
	return a, b
}

// normalizeSmall widens int1/int2 payloads onto the int4 rung before
// promotion; the lattice does not distinguish the small widths.
func normalizeSmall(v sqlexec.Value) sqlexec.Value {
	switch v.Kind() {
	case sqlexec.TypeInt1, sqlexec.TypeInt2:
		return sqlexec.Int4Value(v.Int4())
	}
	return v
}

// promoteLeft converts l to the unified kind of the (l, r) pair.
func promoteLeft(l, r sqlexec.Value) sqlexec.Value {
	switch l.Kind() {
	case sqlexec.TypeInt4:
		switch r.Kind() {
		case sqlexec.TypeInt4:
			return l
		case sqlexec.TypeInt8:
			return sqlexec.Int8Value(int64(l.Int4()))
		case sqlexec.TypeFloat4, sqlexec.TypeFloat8:
			return sqlexec.Float8Value(float64(l.Int4()))
		case sqlexec.TypeDecimal:
			return sqlexec.DecimalValue(decimal.FromInt64(int64(l.Int4())))
		}
	case sqlexec.TypeInt8:
		switch r.Kind() {
		case sqlexec.TypeInt4, sqlexec.TypeInt8:
			return l
		case sqlexec.TypeFloat4, sqlexec.TypeFloat8:
			return sqlexec.Float8Value(float64(l.Int8()))
		case sqlexec.TypeDecimal:
			return sqlexec.DecimalValue(decimal.FromInt64(l.Int8()))
		}
	case sqlexec.TypeFloat4:
		switch r.Kind() {
		case sqlexec.TypeFloat4:
			return l
		case sqlexec.TypeInt4, sqlexec.TypeInt8, sqlexec.TypeFloat8:
			return sqlexec.Float8Value(float64(l.Float4()))
		case sqlexec.TypeDecimal:
			// float and decimal meet on the float8 rung
			return sqlexec.Float8Value(float64(l.Float4()))
		}
	case sqlexec.TypeFloat8:
		switch r.Kind() {
		case sqlexec.TypeInt4, sqlexec.TypeInt8, sqlexec.TypeFloat4, sqlexec.TypeFloat8:
			return l
		case sqlexec.TypeDecimal:
			return l
		}
	case sqlexec.TypeDecimal:
		switch r.Kind() {
		case sqlexec.TypeInt4, sqlexec.TypeInt8, sqlexec.TypeDecimal:
			return l
		case sqlexec.TypeFloat4, sqlexec.TypeFloat8:
			return sqlexec.Float8Value(l.Decimal().Float64())
		}
	default:
		// strings, dates and times never promote
		if l.Kind() == r.Kind() {
			return l
		}
	}
	return sqlexec.Unsupported()
}
