package kvs

import (
	"github.com/pkg/errors"

	"github.com/mstgnz/sqlexec/record"
)

// SecondaryIndex declares one secondary index over a table: the indexed
// fields form the entry key and the entry value points at the primary key.
type SecondaryIndex struct {
	Name      string
	KeyFields []int
}

// TableSpec fixes the storage layout of one table: the record layout, which
// fields form the primary key and the secondary indexes. The planner
// produces these at compile time; the operators only consume them.
type TableSpec struct {
	Name       string
	Meta       *record.Meta
	PrimaryKey []int
	Secondary  []SecondaryIndex
}

// ValueFields lists the non-key fields in layout order.
func (s TableSpec) ValueFields() []int {
	isKey := make(map[int]bool, len(s.PrimaryKey))
	for _, k := range s.PrimaryKey {
		isKey[k] = true
	}
	var out []int
	for i := 0; i < s.Meta.FieldCount(); i++ {
		if !isKey[i] {
			out = append(out, i)
		}
	}
	return out
}

// PrimaryPrefix returns the key prefix of the table's primary index.
func PrimaryPrefix(table string) []byte {
	out := []byte{'t'}
	out = append(out, table...)
	return append(out, 0x00)
}

// SecondaryPrefix returns the key prefix of a secondary index.
func SecondaryPrefix(table, index string) []byte {
	out := []byte{'i'}
	out = append(out, table...)
	out = append(out, 0x00)
	out = append(out, index...)
	return append(out, 0x00)
}

// PrimaryKeyOf encodes the primary-index key of the record.
func PrimaryKeyOf(spec TableSpec, rec *record.Record) ([]byte, error) {
	key, err := EncodeKey(rec, spec.PrimaryKey)
	if err != nil {
		return nil, err
	}
	return append(PrimaryPrefix(spec.Name), key...), nil
}

// SecondaryKeyOf encodes one secondary-index entry key. The primary key is
// appended so duplicate index values stay distinct entries.
func SecondaryKeyOf(spec TableSpec, idx SecondaryIndex, rec *record.Record) ([]byte, error) {
	key, err := EncodeKey(rec, idx.KeyFields)
	if err != nil {
		return nil, err
	}
	pk, err := EncodeKey(rec, spec.PrimaryKey)
	if err != nil {
		return nil, err
	}
	out := append(SecondaryPrefix(spec.Name, idx.Name), key...)
	return append(out, pk...), nil
}

// writeTarget is the subset of storage operations the record writers need;
// both Storage and Transaction satisfy it.
type writeTarget interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// PutRecord stores the record through the primary index and refreshes every
// secondary entry.
func PutRecord(w writeTarget, spec TableSpec, rec *record.Record) error {
	key, err := PrimaryKeyOf(spec, rec)
	if err != nil {
		return err
	}
	value, err := EncodeValue(rec, spec.ValueFields())
	if err != nil {
		return err
	}
	if err := w.Put(key, value); err != nil {
		return errors.Wrapf(err, "storing record of %s", spec.Name)
	}
	for _, idx := range spec.Secondary {
		skey, err := SecondaryKeyOf(spec, idx, rec)
		if err != nil {
			return err
		}
		if err := w.Put(skey, key); err != nil {
			return errors.Wrapf(err, "storing %s entry of %s", idx.Name, spec.Name)
		}
	}
	return nil
}

// DeleteRecord removes the record and its secondary entries. Secondary
// entries go first so a reader never follows a pointer to a missing row.
func DeleteRecord(w writeTarget, spec TableSpec, rec *record.Record) error {
	key, err := PrimaryKeyOf(spec, rec)
	if err != nil {
		return err
	}
	for _, idx := range spec.Secondary {
		skey, err := SecondaryKeyOf(spec, idx, rec)
		if err != nil {
			return err
		}
		if err := w.Delete(skey); err != nil {
			return errors.Wrapf(err, "removing %s entry of %s", idx.Name, spec.Name)
		}
	}
	return errors.Wrapf(w.Delete(key), "removing record of %s", spec.Name)
}

// DecodeRecord reconstructs a stored row from its key and value images.
func DecodeRecord(spec TableSpec, key, value []byte, rec *record.Record) error {
	prefix := PrimaryPrefix(spec.Name)
	if len(key) < len(prefix) {
		return errors.New("key is shorter than the table prefix")
	}
	if err := DecodeKey(key[len(prefix):], rec, spec.PrimaryKey); err != nil {
		return err
	}
	return DecodeValue(value, rec, spec.ValueFields())
}

// PrefixRange returns the bounds covering every key starting with prefix.
// The upper bound is exclusive.
func PrefixRange(prefix []byte) (lower, upper []byte) {
	lower = append([]byte(nil), prefix...)
	upper = append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return lower, upper[:i+1]
		}
	}
	return lower, nil
}
