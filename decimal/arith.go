package decimal

import "math/big"

// alignedPair returns both coefficients scaled to the smaller exponent.
func alignedPair(a, b Triple) (ca, cb *big.Int, exp int32) {
	ca = a.signedCoefficient()
	cb = b.signedCoefficient()
	exp = a.exp
	switch {
	case a.exp > b.exp:
		exp = b.exp
		ca.Mul(ca, pow10(int64(a.exp)-int64(b.exp)))
	case b.exp > a.exp:
		cb.Mul(cb, pow10(int64(b.exp)-int64(a.exp)))
	}
	return ca, cb, exp
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(n), nil)
}

// Add sums two triples. Operands are aligned at the smaller exponent; a sum
// whose aligned coefficient exceeds 38 digits raises StatusInvalidOperation,
// which is how the context reports decimal(38,0) saturation.
func Add(a, b Triple) (Triple, Status) {
	ca, cb, exp := alignedPair(a, b)
	sum := new(big.Int).Add(ca, cb)
	if new(big.Int).Abs(sum).Cmp(maxCoefficient) > 0 {
		return Triple{}, StatusInvalidOperation
	}
	return Reduce(fromParts(sum, exp)), StatusOK
}

// Sub subtracts b from a under the same rules as Add.
func Sub(a, b Triple) (Triple, Status) {
	return Add(a, b.Neg())
}

// Mul multiplies two triples. When the exact product needs more than 38
// digits it is shortened to 38 significant digits with the excess truncated,
// raising StatusRounded (and StatusInexact when a dropped digit was nonzero);
// the result is then reduced.
func Mul(a, b Triple) (Triple, Status) {
	prod := new(big.Int).Mul(a.signedCoefficient(), b.signedCoefficient())
	exp := int64(a.exp) + int64(b.exp)
	t, st := shorten(prod, exp)
	if st.Invalid() {
		return Triple{}, st
	}
	return Reduce(t), st
}

// shorten fits a signed coefficient into 38 digits, truncating toward zero
// and bumping the exponent. Exponents out of the context range are invalid.
func shorten(coeff *big.Int, exp int64) (Triple, Status) {
	var status Status
	abs := new(big.Int).Abs(coeff)
	r := new(big.Int)
	for abs.Cmp(maxCoefficient) > 0 {
		abs.QuoRem(abs, bigTen, r)
		if r.Sign() != 0 {
			status |= StatusInexact
		}
		status |= StatusRounded
		exp++
	}
	if exp > ContextEMax || exp < ContextEMin {
		return Triple{}, status | StatusInvalidOperation
	}
	if coeff.Sign() < 0 {
		abs.Neg(abs)
	}
	return fromParts(abs, int32(exp)), status
}

// Div divides a by b producing up to 38 significant digits. The quotient is
// truncated toward zero; a discarded remainder raises StatusInexact.
func Div(a, b Triple) (Triple, Status) {
	if b.Zero() {
		return Triple{}, StatusDivisionByZero
	}
	if a.Zero() {
		return Triple{}, StatusOK
	}
	ca := a.signedCoefficient()
	cb := b.signedCoefficient()
	// scale the dividend so the integer quotient carries full precision
	shift := int64(MaxPrecision) - int64(digits(ca)) + int64(digits(cb))
	if shift < 0 {
		shift = 0
	}
	scaled := new(big.Int).Mul(ca, pow10(shift))
	q, r := new(big.Int).QuoRem(scaled, cb, new(big.Int))
	exp := int64(a.exp) - int64(b.exp) - shift
	t, st := shorten(q, exp)
	if r.Sign() != 0 {
		st |= StatusInexact
	}
	if st.Invalid() {
		return Triple{}, st
	}
	return Reduce(t), st
}

// Rem computes a - trunc(a/b)*b, the remainder with the sign of the dividend.
func Rem(a, b Triple) (Triple, Status) {
	if b.Zero() {
		return Triple{}, StatusDivisionByZero
	}
	ca, cb, exp := alignedPair(a, b)
	r := new(big.Int)
	new(big.Int).QuoRem(ca, cb, r)
	return Reduce(fromParts(r, exp)), StatusOK
}

// Rescale adjusts the value to the target exponent, truncating toward zero.
// Discarded nonzero digits raise StatusInexact. Scaling up a coefficient past
// 38 digits raises StatusInvalidOperation.
func Rescale(t Triple, exp int32) (Triple, Status) {
	if t.exp == exp {
		return t, StatusOK
	}
	c := t.signedCoefficient()
	if t.exp > exp {
		c.Mul(c, pow10(int64(t.exp)-int64(exp)))
		if new(big.Int).Abs(c).Cmp(maxCoefficient) > 0 {
			return Triple{}, StatusInvalidOperation
		}
		return fromParts(c, exp), StatusOK
	}
	var status Status
	q, r := new(big.Int).QuoRem(c, pow10(int64(exp)-int64(t.exp)), new(big.Int))
	if r.Sign() != 0 {
		status |= StatusInexact | StatusRounded
	}
	return fromParts(q, exp), status
}

// RoundToIntegral truncates the fractional digits, reporting StatusInexact
// when any were nonzero.
func RoundToIntegral(t Triple) (Triple, Status) {
	if t.exp >= 0 {
		return t, StatusOK
	}
	return Rescale(t, 0)
}

// IntegerDigits counts the digits left of the decimal point of the reduced
// value. Zero has no integer digits.
func IntegerDigits(t Triple) int {
	r := Reduce(t)
	if r.Zero() {
		return 0
	}
	n := digits(r.coefficient()) + int(r.exp)
	if n < 0 {
		return 0
	}
	return n
}

// MaxAt returns the largest decimal(p,s) value: p-s nines before the point
// and s nines after.
func MaxAt(precision, scale int) Triple {
	c := new(big.Int).Sub(pow10(int64(precision)), big.NewInt(1))
	return fromParts(c, int32(-scale))
}
