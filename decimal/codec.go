package decimal

import "github.com/pkg/errors"

// MaxCoefficientBytes is the longest serialized coefficient: the 16-byte
// two's complement payload plus one sign byte when the most significant bit
// of the payload carries the wrong sign.
const MaxCoefficientBytes = 17

// EncodeCoefficient serializes the signed coefficient as minimal-length
// big-endian two's complement, between 1 and 17 bytes. The leading byte is
// 0x00 or 0xFF only when required to keep the sign unambiguous.
func EncodeCoefficient(t Triple) []byte {
	var buf [MaxCoefficientBytes]byte
	hi, lo := t.hi, t.lo
	if t.sign < 0 {
		// two's complement of the 128-bit magnitude
		lo = ^lo + 1
		hi = ^hi
		if lo == 0 {
			hi++
		}
	}
	for i := 0; i < 8; i++ {
		buf[1+i] = byte(hi >> ((7 - i) * 8))
		buf[9+i] = byte(lo >> ((7 - i) * 8))
	}
	zero := byte(0x00)
	if t.sign < 0 {
		zero = 0xFF
		buf[0] = 0xFF
	}
	// find the first byte that carries information
	start := 1
	for start < MaxCoefficientBytes-1 && buf[start] == zero {
		start++
	}
	// keep a sign byte when the msb of the remainder disagrees with the sign
	if (buf[start]&0x80 != 0) != (t.sign < 0) {
		start--
	}
	out := make([]byte, MaxCoefficientBytes-start)
	copy(out, buf[start:])
	return out
}

// DecodeCoefficient reconstructs a triple coefficient from its serialized
// form, attaching the given exponent. Inputs longer than 17 bytes, or a
// 17-byte form whose sign byte carries payload bits, are rejected.
func DecodeCoefficient(buf []byte, exp int32) (Triple, error) {
	if len(buf) == 0 || len(buf) > MaxCoefficientBytes {
		return Triple{}, errors.Errorf("invalid coefficient length %d", len(buf))
	}
	if len(buf) == MaxCoefficientBytes {
		switch buf[0] {
		case 0x00:
			// positive with sign byte, always valid
		case 0xFF:
			// reject the unrepresentable -2^128 (0xFF then all zero)
			allZero := true
			for _, b := range buf[1:] {
				if b != 0 {
					allZero = false
					break
				}
			}
			if allZero {
				return Triple{}, errors.New("coefficient out of 128-bit range")
			}
		default:
			return Triple{}, errors.Errorf("invalid coefficient sign byte 0x%02x", buf[0])
		}
	}
	negative := buf[0]&0x80 != 0
	var full [16]byte
	fill := byte(0x00)
	if negative {
		fill = 0xFF
	}
	for i := range full {
		full[i] = fill
	}
	src := buf
	if len(src) > 16 {
		src = src[1:]
	}
	copy(full[16-len(src):], src)
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(full[i])
		lo = lo<<8 | uint64(full[8+i])
	}
	sign := 1
	if negative {
		sign = -1
		lo = ^lo + 1
		hi = ^hi
		if lo == 0 {
			hi++
		}
	}
	return New(sign, hi, lo, exp), nil
}
