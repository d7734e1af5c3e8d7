package sqlexec

import "fmt"

// TypeKind identifies one of the logical types carried by the engine.
type TypeKind int

const (
	TypeUnknown   TypeKind = iota
	TypeBoolean            // boolean
	TypeInt1               // 8-bit signed integer
	TypeInt2               // 16-bit signed integer
	TypeInt4               // 32-bit signed integer
	TypeInt8               // 64-bit signed integer
	TypeFloat4             // IEEE-754 single precision
	TypeFloat8             // IEEE-754 double precision
	TypeDecimal            // arbitrary precision decimal
	TypeCharacter          // character string
	TypeOctet              // octet string
	TypeDate               // calendar date
	TypeTimeOfDay          // time of day
	TypeTimePoint          // point in time
	TypeBlob               // binary large object
	TypeClob               // character large object
)

// String returns the SQL-facing name of the type kind.
func (k TypeKind) String() string {
	switch k {
	case TypeBoolean:
		return "boolean"
	case TypeInt1:
		return "int1"
	case TypeInt2:
		return "int2"
	case TypeInt4:
		return "int4"
	case TypeInt8:
		return "int8"
	case TypeFloat4:
		return "float4"
	case TypeFloat8:
		return "float8"
	case TypeDecimal:
		return "decimal"
	case TypeCharacter:
		return "character"
	case TypeOctet:
		return "octet"
	case TypeDate:
		return "date"
	case TypeTimeOfDay:
		return "time_of_day"
	case TypeTimePoint:
		return "time_point"
	case TypeBlob:
		return "blob"
	case TypeClob:
		return "clob"
	}
	return "unknown"
}

// Numeric reports whether the kind participates in binary numeric promotion.
func (k TypeKind) Numeric() bool {
	switch k {
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8, TypeFloat4, TypeFloat8, TypeDecimal:
		return true
	}
	return false
}

// Integral reports whether the kind is a fixed-size integer.
func (k TypeKind) Integral() bool {
	switch k {
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8:
		return true
	}
	return false
}

// Type describes a logical column or expression type.
type Type struct {
	Kind      TypeKind // logical type kind
	Precision int      // decimal precision (0 means unspecified, max 38)
	Scale     int      // decimal scale
	Length    int      // character/octet length (0 means unspecified)
	Varying   bool     // varying flag for character/octet
}

// DecimalType builds a decimal type with the given precision and scale.
// Precision 0 means unspecified and defers to the 38-digit internal maximum.
func DecimalType(precision, scale int) Type {
	return Type{Kind: TypeDecimal, Precision: precision, Scale: scale}
}

// CharacterType builds a character type of the given length.
func CharacterType(length int, varying bool) Type {
	return Type{Kind: TypeCharacter, Length: length, Varying: varying}
}

// OctetType builds an octet type of the given length.
func OctetType(length int, varying bool) Type {
	return Type{Kind: TypeOctet, Length: length, Varying: varying}
}

// SimpleType builds a type carrying no parameters.
func SimpleType(kind TypeKind) Type {
	return Type{Kind: kind}
}

// String renders the type the way DDL would spell it.
func (t Type) String() string {
	switch t.Kind {
	case TypeDecimal:
		if t.Precision > 0 {
			return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
		}
		return "decimal"
	case TypeCharacter, TypeOctet:
		name := t.Kind.String()
		if t.Varying {
			name += " varying"
		}
		if t.Length > 0 {
			return fmt.Sprintf("%s(%d)", name, t.Length)
		}
		return name
	}
	return t.Kind.String()
}

// Date counts days since the unix epoch. Negative values reach before 1970.
type Date int64

// TimeOfDay counts nanoseconds since midnight.
type TimeOfDay int64

// TimePoint is a point in time with nanosecond resolution.
type TimePoint struct {
	Seconds int64  // seconds since the unix epoch
	Nanos   uint32 // nanosecond adjustment within the second
}

// LOBKind distinguishes how a large object value is referenced.
type LOBKind int

const (
	// LOBProvided references a caller-side file not yet registered.
	LOBProvided LOBKind = iota
	// LOBDatastore references an object registered with the transaction's LOB session.
	LOBDatastore
)

// LOBReference locates a blob/clob value. Evaluation materializes a provided
// reference into a datastore reference the first time an expression touches it.
type LOBReference struct {
	Kind LOBKind // provided or datastore
	Path string  // file path when provided
	ID   uint64  // object id when registered with the datastore
}
