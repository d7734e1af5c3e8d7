package sqlexec

import (
	"bytes"

	"github.com/mstgnz/sqlexec/decimal"
)

// Order gives a total order over two values of the same kind, with NULL
// ordering before every value. It backs sorting and merging, not the SQL
// comparison operators; those live in the evaluator with three-valued
// semantics.
func Order(a, b Value) int {
	switch {
	case a.Empty() && b.Empty():
		return 0
	case a.Empty():
		return -1
	case b.Empty():
		return 1
	}
	switch a.Kind() {
	case TypeBoolean:
		return boolRank(a.Bool()) - boolRank(b.Bool())
	case TypeInt1, TypeInt2, TypeInt4:
		return i64Order(int64(a.Int4()), int64(b.Int4()))
	case TypeInt8:
		return i64Order(a.Int8(), b.Int8())
	case TypeFloat4:
		return f64Order(float64(a.Float4()), float64(b.Float4()))
	case TypeFloat8:
		return f64Order(a.Float8(), b.Float8())
	case TypeDecimal:
		return decimal.Compare(a.Decimal(), b.Decimal())
	case TypeCharacter:
		return bytes.Compare([]byte(a.Character()), []byte(b.Character()))
	case TypeOctet:
		return bytes.Compare(a.Octet(), b.Octet())
	case TypeDate:
		return i64Order(int64(a.Date()), int64(b.Date()))
	case TypeTimeOfDay:
		return i64Order(int64(a.TimeOfDay()), int64(b.TimeOfDay()))
	case TypeTimePoint:
		if c := i64Order(a.TimePoint().Seconds, b.TimePoint().Seconds); c != 0 {
			return c
		}
		return i64Order(int64(a.TimePoint().Nanos), int64(b.TimePoint().Nanos))
	}
	return 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func i64Order(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// f64Order totals NaN below every other value so sorting stays stable.
func f64Order(a, b float64) int {
	switch {
	case a != a && b != b:
		return 0
	case a != a:
		return -1
	case b != b:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
