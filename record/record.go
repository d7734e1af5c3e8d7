// Package record defines the record layouts and variable tables the
// relational operators exchange. A record is a fixed layout of value slots
// and nullity bits; a variable table binds plan-level variable identifiers
// to fields of one record buffer.
package record

import (
	sqlexec "github.com/mstgnz/sqlexec"
)

// Field describes one slot of a record layout.
type Field struct {
	Name          string      // column or variable name, informational
	Type          sqlexec.Type // logical type of the slot
	ValueOffset   int         // index of the value slot
	NullityOffset int         // bit index of the nullity flag
}

// Meta is a record layout. Offsets are assigned densely at construction and
// never change afterwards; operators compiled against a Meta rely on that.
type Meta struct {
	fields []Field
}

// NewMeta builds a layout with one field per given type.
func NewMeta(types ...sqlexec.Type) *Meta {
	m := &Meta{fields: make([]Field, len(types))}
	for i, t := range types {
		m.fields[i] = Field{Type: t, ValueOffset: i, NullityOffset: i}
	}
	return m
}

// NewNamedMeta builds a layout with named fields.
func NewNamedMeta(names []string, types []sqlexec.Type) *Meta {
	m := NewMeta(types...)
	for i := range m.fields {
		if i < len(names) {
			m.fields[i].Name = names[i]
		}
	}
	return m
}

// FieldCount returns the number of fields.
func (m *Meta) FieldCount() int { return len(m.fields) }

// Field returns the descriptor of field i.
func (m *Meta) Field(i int) Field { return m.fields[i] }

// Type returns the logical type of field i.
func (m *Meta) Type(i int) sqlexec.Type { return m.fields[i].Type }

// Record is one materialized row laid out per a Meta. Value slots and
// nullity bits are held separately; a set nullity bit wins over whatever the
// value slot carries.
type Record struct {
	meta   *Meta
	values []sqlexec.Value
	nulls  []uint64
}

// NewRecord allocates an all-null record for the layout.
func NewRecord(meta *Meta) *Record {
	n := meta.FieldCount()
	r := &Record{
		meta:   meta,
		values: make([]sqlexec.Value, n),
		nulls:  make([]uint64, (n+63)/64),
	}
	for i := 0; i < n; i++ {
		r.setNull(i, true)
	}
	return r
}

// Meta returns the layout of the record.
func (r *Record) Meta() *Meta { return r.meta }

func (r *Record) setNull(bit int, null bool) {
	if null {
		r.nulls[bit/64] |= 1 << (bit % 64)
	} else {
		r.nulls[bit/64] &^= 1 << (bit % 64)
	}
}

// Null reports the nullity bit of field i.
func (r *Record) Null(i int) bool {
	bit := r.meta.fields[i].NullityOffset
	return r.nulls[bit/64]&(1<<(bit%64)) != 0
}

// Set stores a value into field i. Storing an empty value sets the nullity
// bit; storing an error value is a caller bug and treated as null.
func (r *Record) Set(i int, v sqlexec.Value) {
	f := r.meta.fields[i]
	if !v.Valid() {
		r.setNull(f.NullityOffset, true)
		return
	}
	r.setNull(f.NullityOffset, false)
	r.values[f.ValueOffset] = v
}

// Get reads field i, returning Null() when the nullity bit is set.
func (r *Record) Get(i int) sqlexec.Value {
	f := r.meta.fields[i]
	if r.Null(i) {
		return sqlexec.Null()
	}
	return r.values[f.ValueOffset]
}

// CopyFrom overwrites this record with the fields of src. Layouts must have
// the same field count.
func (r *Record) CopyFrom(src *Record) {
	for i := 0; i < r.meta.FieldCount(); i++ {
		r.Set(i, src.Get(i))
	}
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	c := NewRecord(r.meta)
	c.CopyFrom(r)
	return c
}

// Compare orders two records of the same layout field by field, NULL first.
func Compare(a, b *Record) int {
	for i := 0; i < a.meta.FieldCount(); i++ {
		if c := sqlexec.Order(a.Get(i), b.Get(i)); c != 0 {
			return c
		}
	}
	return 0
}
