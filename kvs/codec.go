package kvs

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/decimal"
	"github.com/mstgnz/sqlexec/record"
)

// Key encoding is order preserving: encoded keys compare byte-wise the way
// the carried values compare. Each field starts with a presence byte so NULL
// orders before every value.
const (
	markerNull  = 0x00
	markerValue = 0x01
)

// EncodeKey serializes the given record fields in order-preserving form.
func EncodeKey(rec *record.Record, fields []int) ([]byte, error) {
	var out []byte
	for _, i := range fields {
		v := rec.Get(i)
		if v.Empty() {
			out = append(out, markerNull)
			continue
		}
		out = append(out, markerValue)
		var err error
		out, err = appendKeyValue(out, v)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendKeyValue(out []byte, v sqlexec.Value) ([]byte, error) {
	switch v.Kind() {
	case sqlexec.TypeBoolean:
		if v.Bool() {
			return append(out, 1), nil
		}
		return append(out, 0), nil
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		return appendOrderedInt(out, int64(v.Int4())), nil
	case sqlexec.TypeInt8:
		return appendOrderedInt(out, v.Int8()), nil
	case sqlexec.TypeFloat4:
		return appendOrderedFloat(out, float64(v.Float4())), nil
	case sqlexec.TypeFloat8:
		return appendOrderedFloat(out, v.Float8()), nil
	case sqlexec.TypeDecimal:
		return appendOrderedDecimal(out, v.Decimal()), nil
	case sqlexec.TypeCharacter:
		return appendTerminated(out, []byte(v.Character())), nil
	case sqlexec.TypeOctet:
		return appendTerminated(out, v.Octet()), nil
	case sqlexec.TypeDate:
		return appendOrderedInt(out, int64(v.Date())), nil
	case sqlexec.TypeTimeOfDay:
		return appendOrderedInt(out, int64(v.TimeOfDay())), nil
	case sqlexec.TypeTimePoint:
		out = appendOrderedInt(out, v.TimePoint().Seconds)
		return binary.BigEndian.AppendUint32(out, v.TimePoint().Nanos), nil
	}
	return nil, errors.Errorf("type %s is not usable as an index key", v.Kind())
}

// appendOrderedInt stores a sign-flipped big-endian form so two's complement
// values compare byte-wise.
func appendOrderedInt(out []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(out, uint64(v)^(1<<63))
}

// appendOrderedFloat flips the sign bit on non-negative values and every bit
// on negative ones, giving IEEE-754 total order for finite values.
func appendOrderedFloat(out []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(out, bits)
}

// appendOrderedDecimal encodes sign class, adjusted exponent and coefficient
// digits. Negative values invert the tail so larger magnitudes order lower.
func appendOrderedDecimal(out []byte, t decimal.Triple) []byte {
	d := decimal.Reduce(t)
	switch d.Sign() {
	case 0:
		return append(out, 0x02)
	case 1:
		out = append(out, 0x03)
	default:
		out = append(out, 0x01)
	}
	digits := []byte(d.BigDecimal().Abs().Coefficient().Text(10))
	adjusted := int64(d.Exponent()) + int64(len(digits)) - 1
	var tail []byte
	tail = binary.BigEndian.AppendUint64(tail, uint64(adjusted)^(1<<63))
	tail = append(tail, digits...)
	tail = append(tail, 0x00)
	if d.Sign() < 0 {
		for i := range tail {
			tail[i] = ^tail[i]
		}
	}
	return append(out, tail...)
}

// appendTerminated escapes zero bytes (0x00 -> 0x00 0xFF) and terminates
// with 0x00 0x00 so shorter strings order first while embedded zeros stay
// comparable.
func appendTerminated(out, b []byte) []byte {
	for _, c := range b {
		if c == 0x00 {
			out = append(out, 0x00, 0xFF)
			continue
		}
		out = append(out, c)
	}
	return append(out, 0x00, 0x00)
}

// EncodeValue serializes non-key fields in a compact, non-ordered form.
func EncodeValue(rec *record.Record, fields []int) ([]byte, error) {
	var out []byte
	for _, i := range fields {
		v := rec.Get(i)
		if v.Empty() {
			out = append(out, markerNull)
			continue
		}
		out = append(out, markerValue)
		var err error
		out, err = appendPlainValue(out, v)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendPlainValue(out []byte, v sqlexec.Value) ([]byte, error) {
	switch v.Kind() {
	case sqlexec.TypeBoolean:
		if v.Bool() {
			return append(out, 1), nil
		}
		return append(out, 0), nil
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		return binary.BigEndian.AppendUint32(out, uint32(v.Int4())), nil
	case sqlexec.TypeInt8:
		return binary.BigEndian.AppendUint64(out, uint64(v.Int8())), nil
	case sqlexec.TypeFloat4:
		return binary.BigEndian.AppendUint32(out, math.Float32bits(v.Float4())), nil
	case sqlexec.TypeFloat8:
		return binary.BigEndian.AppendUint64(out, math.Float64bits(v.Float8())), nil
	case sqlexec.TypeDecimal:
		coeff := decimal.EncodeCoefficient(decimal.Reduce(v.Decimal()))
		out = append(out, byte(len(coeff)))
		out = append(out, coeff...)
		return binary.BigEndian.AppendUint32(out, uint32(decimal.Reduce(v.Decimal()).Exponent())), nil
	case sqlexec.TypeCharacter:
		out = binary.BigEndian.AppendUint32(out, uint32(len(v.Character())))
		return append(out, v.Character()...), nil
	case sqlexec.TypeOctet:
		out = binary.BigEndian.AppendUint32(out, uint32(len(v.Octet())))
		return append(out, v.Octet()...), nil
	case sqlexec.TypeDate:
		return binary.BigEndian.AppendUint64(out, uint64(v.Date())), nil
	case sqlexec.TypeTimeOfDay:
		return binary.BigEndian.AppendUint64(out, uint64(v.TimeOfDay())), nil
	case sqlexec.TypeTimePoint:
		out = binary.BigEndian.AppendUint64(out, uint64(v.TimePoint().Seconds))
		return binary.BigEndian.AppendUint32(out, v.TimePoint().Nanos), nil
	}
	return nil, errors.Errorf("type %s is not storable", v.Kind())
}

// DecodeValue deserializes fields encoded by EncodeValue into rec.
func DecodeValue(buf []byte, rec *record.Record, fields []int) error {
	pos := 0
	for _, i := range fields {
		if pos >= len(buf) {
			return errors.New("value buffer exhausted")
		}
		marker := buf[pos]
		pos++
		if marker == markerNull {
			rec.Set(i, sqlexec.Null())
			continue
		}
		v, next, err := decodePlainValue(buf, pos, rec.Meta().Type(i))
		if err != nil {
			return err
		}
		rec.Set(i, v)
		pos = next
	}
	return nil
}

func decodePlainValue(buf []byte, pos int, t sqlexec.Type) (sqlexec.Value, int, error) {
	need := func(n int) error {
		if pos+n > len(buf) {
			return errors.New("value buffer truncated")
		}
		return nil
	}
	switch t.Kind {
	case sqlexec.TypeBoolean:
		if err := need(1); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.BooleanValue(buf[pos] != 0), pos + 1, nil
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		if err := need(4); err != nil {
			return sqlexec.Value{}, 0, err
		}
		v := int32(binary.BigEndian.Uint32(buf[pos:]))
		switch t.Kind {
		case sqlexec.TypeInt1:
			return sqlexec.Int1Value(v), pos + 4, nil
		case sqlexec.TypeInt2:
			return sqlexec.Int2Value(v), pos + 4, nil
		}
		return sqlexec.Int4Value(v), pos + 4, nil
	case sqlexec.TypeInt8:
		if err := need(8); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.Int8Value(int64(binary.BigEndian.Uint64(buf[pos:]))), pos + 8, nil
	case sqlexec.TypeFloat4:
		if err := need(4); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.Float4Value(math.Float32frombits(binary.BigEndian.Uint32(buf[pos:]))), pos + 4, nil
	case sqlexec.TypeFloat8:
		if err := need(8); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.Float8Value(math.Float64frombits(binary.BigEndian.Uint64(buf[pos:]))), pos + 8, nil
	case sqlexec.TypeDecimal:
		if err := need(1); err != nil {
			return sqlexec.Value{}, 0, err
		}
		n := int(buf[pos])
		pos++
		if err := need(n + 4); err != nil {
			return sqlexec.Value{}, 0, err
		}
		exp := int32(binary.BigEndian.Uint32(buf[pos+n:]))
		tr, err := decimal.DecodeCoefficient(buf[pos:pos+n], exp)
		if err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.DecimalValue(tr), pos + n + 4, nil
	case sqlexec.TypeCharacter:
		if err := need(4); err != nil {
			return sqlexec.Value{}, 0, err
		}
		n := int(binary.BigEndian.Uint32(buf[pos:]))
		pos += 4
		if err := need(n); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.CharacterValue(string(buf[pos : pos+n])), pos + n, nil
	case sqlexec.TypeOctet:
		if err := need(4); err != nil {
			return sqlexec.Value{}, 0, err
		}
		n := int(binary.BigEndian.Uint32(buf[pos:]))
		pos += 4
		if err := need(n); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.OctetValue(append([]byte(nil), buf[pos:pos+n]...)), pos + n, nil
	case sqlexec.TypeDate:
		if err := need(8); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.DateValue(sqlexec.Date(binary.BigEndian.Uint64(buf[pos:]))), pos + 8, nil
	case sqlexec.TypeTimeOfDay:
		if err := need(8); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.TimeOfDayValue(sqlexec.TimeOfDay(binary.BigEndian.Uint64(buf[pos:]))), pos + 8, nil
	case sqlexec.TypeTimePoint:
		if err := need(12); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.TimePointValue(sqlexec.TimePoint{
			Seconds: int64(binary.BigEndian.Uint64(buf[pos:])),
			Nanos:   binary.BigEndian.Uint32(buf[pos+8:]),
		}), pos + 12, nil
	}
	return sqlexec.Value{}, 0, errors.Errorf("type %s is not decodable", t.Kind)
}

// DecodeKey deserializes fields encoded by EncodeKey into rec.
func DecodeKey(buf []byte, rec *record.Record, fields []int) error {
	pos := 0
	for _, i := range fields {
		if pos >= len(buf) {
			return errors.New("key buffer exhausted")
		}
		marker := buf[pos]
		pos++
		if marker == markerNull {
			rec.Set(i, sqlexec.Null())
			continue
		}
		v, next, err := decodeKeyValue(buf, pos, rec.Meta().Type(i))
		if err != nil {
			return err
		}
		rec.Set(i, v)
		pos = next
	}
	return nil
}

func decodeKeyValue(buf []byte, pos int, t sqlexec.Type) (sqlexec.Value, int, error) {
	need := func(n int) error {
		if pos+n > len(buf) {
			return errors.New("key buffer truncated")
		}
		return nil
	}
	readInt := func() (int64, error) {
		if err := need(8); err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint64(buf[pos:]) ^ (1 << 63)), nil
	}
	switch t.Kind {
	case sqlexec.TypeBoolean:
		if err := need(1); err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.BooleanValue(buf[pos] != 0), pos + 1, nil
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		v, err := readInt()
		if err != nil {
			return sqlexec.Value{}, 0, err
		}
		switch t.Kind {
		case sqlexec.TypeInt1:
			return sqlexec.Int1Value(int32(v)), pos + 8, nil
		case sqlexec.TypeInt2:
			return sqlexec.Int2Value(int32(v)), pos + 8, nil
		}
		return sqlexec.Int4Value(int32(v)), pos + 8, nil
	case sqlexec.TypeInt8:
		v, err := readInt()
		if err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.Int8Value(v), pos + 8, nil
	case sqlexec.TypeFloat4, sqlexec.TypeFloat8:
		if err := need(8); err != nil {
			return sqlexec.Value{}, 0, err
		}
		bits := binary.BigEndian.Uint64(buf[pos:])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		f := math.Float64frombits(bits)
		if t.Kind == sqlexec.TypeFloat4 {
			return sqlexec.Float4Value(float32(f)), pos + 8, nil
		}
		return sqlexec.Float8Value(f), pos + 8, nil
	case sqlexec.TypeDecimal:
		return decodeKeyDecimal(buf, pos)
	case sqlexec.TypeCharacter:
		raw, next, err := readTerminated(buf, pos)
		if err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.CharacterValue(string(raw)), next, nil
	case sqlexec.TypeOctet:
		raw, next, err := readTerminated(buf, pos)
		if err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.OctetValue(raw), next, nil
	case sqlexec.TypeDate:
		v, err := readInt()
		if err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.DateValue(sqlexec.Date(v)), pos + 8, nil
	case sqlexec.TypeTimeOfDay:
		v, err := readInt()
		if err != nil {
			return sqlexec.Value{}, 0, err
		}
		return sqlexec.TimeOfDayValue(sqlexec.TimeOfDay(v)), pos + 8, nil
	case sqlexec.TypeTimePoint:
		v, err := readInt()
		if err != nil {
			return sqlexec.Value{}, 0, err
		}
		if err := need(12); err != nil {
			return sqlexec.Value{}, 0, err
		}
		nanos := binary.BigEndian.Uint32(buf[pos+8:])
		return sqlexec.TimePointValue(sqlexec.TimePoint{Seconds: v, Nanos: nanos}), pos + 12, nil
	}
	return sqlexec.Value{}, 0, errors.Errorf("type %s is not decodable from a key", t.Kind)
}

func decodeKeyDecimal(buf []byte, pos int) (sqlexec.Value, int, error) {
	if pos >= len(buf) {
		return sqlexec.Value{}, 0, errors.New("key buffer truncated")
	}
	class := buf[pos]
	pos++
	if class == 0x02 {
		return sqlexec.DecimalValue(decimal.Triple{}), pos, nil
	}
	negative := class == 0x01
	invert := func(c byte) byte {
		if negative {
			return ^c
		}
		return c
	}
	if pos+8 > len(buf) {
		return sqlexec.Value{}, 0, errors.New("key buffer truncated")
	}
	var expBytes [8]byte
	for i := 0; i < 8; i++ {
		expBytes[i] = invert(buf[pos+i])
	}
	adjusted := int64(binary.BigEndian.Uint64(expBytes[:]) ^ (1 << 63))
	pos += 8
	var digits []byte
	for {
		if pos >= len(buf) {
			return sqlexec.Value{}, 0, errors.New("unterminated decimal key")
		}
		c := invert(buf[pos])
		pos++
		if c == 0x00 {
			break
		}
		digits = append(digits, c)
	}
	t, st := decimal.Parse(string(digits))
	if st.Syntax() {
		return sqlexec.Value{}, 0, errors.New("corrupt decimal key digits")
	}
	// a reduced coefficient has no trailing zeros, so the parsed exponent is
	// zero and the encoded exponent reattaches directly
	exp := adjusted - int64(len(digits)) + 1
	if exp > decimal.ContextEMax || exp < decimal.ContextEMin {
		return sqlexec.Value{}, 0, errors.New("corrupt decimal key exponent")
	}
	out := decimal.WithExponent(t, int32(exp))
	if negative {
		out = out.Neg()
	}
	return sqlexec.DecimalValue(decimal.Reduce(out)), pos, nil
}

func readTerminated(buf []byte, pos int) ([]byte, int, error) {
	var out []byte
	for {
		if pos >= len(buf) {
			return nil, 0, errors.New("unterminated key string")
		}
		c := buf[pos]
		pos++
		if c != 0x00 {
			out = append(out, c)
			continue
		}
		if pos >= len(buf) {
			return nil, 0, errors.New("unterminated key string escape")
		}
		next := buf[pos]
		pos++
		if next == 0x00 {
			return out, pos, nil
		}
		out = append(out, 0x00)
	}
}
