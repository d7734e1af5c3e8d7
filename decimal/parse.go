package decimal

import (
	sd "github.com/shopspring/decimal"
)

// Parse converts decimal text to a triple. The accepted grammar is the SQL
// literal form with an optional E exponent. Coefficients longer than 38
// digits are rescaled down with round-down, raising StatusInexact so the
// caller can apply its loss policy. Exponents outside [-24575, 24576] and
// non-numeric text raise StatusConversionSyntax. NaN and infinity forms are
// not decimals and fail to parse; float targets handle them before calling.
func Parse(s string) (Triple, Status) {
	d, err := sd.NewFromString(s)
	if err != nil {
		return Triple{}, StatusConversionSyntax
	}
	if d.Exponent() > ContextEMax || d.Exponent() < ContextEMin {
		return Triple{}, StatusConversionSyntax
	}
	t, st := shorten(d.Coefficient(), int64(d.Exponent()))
	if st.Invalid() {
		return Triple{}, StatusConversionSyntax
	}
	return Reduce(t), st
}

// Format renders the triple so that Parse(Format(t)) == Reduce(t).
func Format(t Triple) string {
	return t.String()
}
