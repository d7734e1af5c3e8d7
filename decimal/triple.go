// Package decimal implements the arbitrary precision decimal values used by
// the expression evaluator and the storage codecs. A value is a Triple: a
// 128-bit unsigned coefficient, a separate sign and a base-10 exponent. The
// working context is IEEE-decimal128 shaped but widened to 38 digits of
// precision with exponent range [-24575, 24576].
package decimal

import (
	"math/big"

	sd "github.com/shopspring/decimal"
)

const (
	// MaxPrecision is the number of significant digits the context carries.
	MaxPrecision = 38

	// ContextEMax is the largest adjusted exponent the context admits.
	ContextEMax = 24576

	// ContextEMin is the smallest adjusted exponent the context admits.
	ContextEMin = -24575

	// ContextETiny is the exponent below which values are subnormal.
	ContextETiny = -24612

	// MaxTripleExponent bounds the exponent a full-precision coefficient may carry.
	MaxTripleExponent = ContextEMax - (MaxPrecision - 1)
)

// Triple represents a decimal number as sign * coefficient * 10^exponent.
// The coefficient occupies at most 128 bits held as two 64-bit halves.
// Sign is -1, 0 or +1; a zero coefficient always carries sign 0.
type Triple struct {
	sign int8
	hi   uint64
	lo   uint64
	exp  int32
}

// maxCoefficient is 10^38-1, the largest coefficient expressible in 38 digits.
var maxCoefficient = func() *big.Int {
	v, _ := new(big.Int).SetString("99999999999999999999999999999999999999", 10)
	return v
}()

var (
	// MaxDecimal38 is the largest decimal(38,0) value.
	MaxDecimal38 = Triple{sign: 1, hi: 5421010862427522170, lo: 687399551400673279, exp: 0}

	// MinDecimal38 is the smallest decimal(38,0) value.
	MinDecimal38 = Triple{sign: -1, hi: 5421010862427522170, lo: 687399551400673279, exp: 0}

	// TripleMax is the largest finite value the context represents.
	TripleMax = Triple{sign: 1, hi: 5421010862427522170, lo: 687399551400673279, exp: MaxTripleExponent}

	// TripleMin is the smallest finite value the context represents.
	TripleMin = Triple{sign: -1, hi: 5421010862427522170, lo: 687399551400673279, exp: MaxTripleExponent}
)

// New builds a triple from its parts. A zero coefficient forces sign 0.
func New(sign int, hi, lo uint64, exp int32) Triple {
	if hi == 0 && lo == 0 {
		return Triple{exp: exp}
	}
	s := int8(1)
	if sign < 0 {
		s = -1
	}
	return Triple{sign: s, hi: hi, lo: lo, exp: exp}
}

// FromInt64 converts an integer to an exponent-zero triple.
func FromInt64(v int64) Triple {
	if v == 0 {
		return Triple{}
	}
	sign := 1
	u := uint64(v)
	if v < 0 {
		sign = -1
		u = -u
	}
	return New(sign, 0, u, 0)
}

// Zero reports whether the value is zero.
func (t Triple) Zero() bool {
	return t.hi == 0 && t.lo == 0
}

// Sign returns -1, 0 or +1.
func (t Triple) Sign() int { return int(t.sign) }

// CoefficientHigh returns the upper 64 bits of the coefficient.
func (t Triple) CoefficientHigh() uint64 { return t.hi }

// CoefficientLow returns the lower 64 bits of the coefficient.
func (t Triple) CoefficientLow() uint64 { return t.lo }

// Exponent returns the base-10 exponent.
func (t Triple) Exponent() int32 { return t.exp }

// coefficient returns the unsigned coefficient as a big integer.
func (t Triple) coefficient() *big.Int {
	v := new(big.Int).SetUint64(t.hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(t.lo))
}

// signedCoefficient returns the coefficient with the sign applied.
func (t Triple) signedCoefficient() *big.Int {
	v := t.coefficient()
	if t.sign < 0 {
		v.Neg(v)
	}
	return v
}

// BigDecimal converts to the backing library representation.
func (t Triple) BigDecimal() sd.Decimal {
	return sd.NewFromBigInt(t.signedCoefficient(), t.exp)
}

// fromParts assembles a triple from a signed coefficient and an exponent.
// The caller must have verified the coefficient fits in 128 bits.
func fromParts(coeff *big.Int, exp int32) Triple {
	sign := coeff.Sign()
	abs := new(big.Int).Abs(coeff)
	lo := new(big.Int).And(abs, maskLow64).Uint64()
	hi := new(big.Int).Rsh(abs, 64).Uint64()
	return New(sign, hi, lo, exp)
}

var maskLow64 = new(big.Int).SetUint64(^uint64(0))

// FromBigDecimal converts a library decimal into a triple. StatusInvalidOperation
// is raised when the coefficient needs more than 38 digits or the exponent is
// out of the context range.
func FromBigDecimal(d sd.Decimal) (Triple, Status) {
	coeff := d.Coefficient()
	abs := new(big.Int).Abs(coeff)
	if abs.Cmp(maxCoefficient) > 0 {
		return Triple{}, StatusInvalidOperation
	}
	exp := d.Exponent()
	if exp > ContextEMax || exp < ContextEMin {
		return Triple{}, StatusInvalidOperation
	}
	return fromParts(coeff, exp), StatusOK
}

// digits returns the number of significant decimal digits of v (>= 1).
func digits(v *big.Int) int {
	if v.Sign() == 0 {
		return 1
	}
	return len(new(big.Int).Abs(v).Text(10))
}

// Reduce strips trailing zero digits from the coefficient, producing the
// canonical representative of the value. Zero reduces to exponent 0.
func Reduce(t Triple) Triple {
	if t.Zero() {
		return Triple{}
	}
	c := t.coefficient()
	exp := t.exp
	q, r := new(big.Int), new(big.Int)
	for exp < MaxTripleExponent {
		q.QuoRem(c, bigTen, r)
		if r.Sign() != 0 {
			break
		}
		c.Set(q)
		exp++
	}
	if t.sign < 0 {
		c.Neg(c)
	}
	return fromParts(c, exp)
}

var bigTen = big.NewInt(10)

// Compare orders two triples numerically.
func Compare(a, b Triple) int {
	return a.BigDecimal().Cmp(b.BigDecimal())
}

// Neg flips the sign.
func (t Triple) Neg() Triple {
	if t.Zero() {
		return t
	}
	r := t
	r.sign = -r.sign
	return r
}

// Int64 converts to int64 when the value is integral and in range.
func (t Triple) Int64() (int64, bool) {
	d := Reduce(t)
	if d.exp < 0 {
		return 0, false
	}
	v := d.signedCoefficient()
	if d.exp > 0 {
		scale := new(big.Int).Exp(bigTen, big.NewInt(int64(d.exp)), nil)
		v.Mul(v, scale)
	}
	if !v.IsInt64() {
		return 0, false
	}
	return v.Int64(), true
}

// Float64 converts to the nearest float8.
func (t Triple) Float64() float64 {
	f, _ := t.BigDecimal().Float64()
	return f
}

// String renders the value. Plain notation is used for moderate exponents,
// coefficient-E-exponent notation otherwise.
func (t Triple) String() string {
	if t.exp >= -40 && t.exp <= 40 {
		return t.BigDecimal().String()
	}
	c := t.signedCoefficient().Text(10)
	if t.exp == 0 {
		return c
	}
	sign := ""
	if t.exp > 0 {
		sign = "+"
	}
	return c + "E" + sign + big.NewInt(int64(t.exp)).Text(10)
}

// WithExponent reattaches an exponent to the coefficient, changing the
// numeric value. Codecs that carry coefficient digits and exponent
// separately reassemble triples with it.
func WithExponent(t Triple, exp int32) Triple {
	t.exp = exp
	return t
}
