// Package exchange implements the shuffle layer between process steps:
// input partitions that accumulate, sort and group records by key, and the
// priority-queue merging reader that consumes them in global key order.
// Exchange metadata (key columns, ordering directions, record layouts) is
// fixed at plan compile time.
package exchange

import (
	"hash/fnv"
	"sort"

	"github.com/pkg/errors"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/record"
)

// Direction orders one key column.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// KeyColumn names one key field of the exchanged records and its ordering.
type KeyColumn struct {
	Field     int
	Direction Direction
}

// Meta is the compile-time shape of an exchange: the record layout flowing
// through it and the key columns grouping and ordering apply to.
type Meta struct {
	Layout *record.Meta
	Key    []KeyColumn
}

// KeyMeta derives the layout of the group key records.
func (m Meta) KeyMeta() *record.Meta {
	types := make([]sqlexec.Type, len(m.Key))
	for i, k := range m.Key {
		types[i] = m.Layout.Type(k.Field)
	}
	return record.NewMeta(types...)
}

// ValueFields lists the non-key fields in layout order.
func (m Meta) ValueFields() []int {
	isKey := make(map[int]bool, len(m.Key))
	for _, k := range m.Key {
		isKey[k.Field] = true
	}
	var out []int
	for i := 0; i < m.Layout.FieldCount(); i++ {
		if !isKey[i] {
			out = append(out, i)
		}
	}
	return out
}

// ValueMeta derives the layout of the member value records.
func (m Meta) ValueMeta() *record.Meta {
	fields := m.ValueFields()
	types := make([]sqlexec.Type, len(fields))
	for i, f := range fields {
		types[i] = m.Layout.Type(f)
	}
	return record.NewMeta(types...)
}

// compareKeys orders two full-layout records by the key columns, honoring
// the per-column direction.
func (m Meta) compareKeys(a, b *record.Record) int {
	for _, k := range m.Key {
		c := sqlexec.Order(a.Get(k.Field), b.Get(k.Field))
		if k.Direction == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// hashKey buckets a record by its key columns.
func (m Meta) hashKey(rec *record.Record, buckets int) int {
	h := fnv.New64a()
	for _, k := range m.Key {
		v := rec.Get(k.Field)
		_, _ = h.Write([]byte(v.String()))
		_, _ = h.Write([]byte{0})
	}
	return int(h.Sum64() % uint64(buckets))
}

// InputPartition accumulates the records one writer sends toward one output
// partition. Writes are append-only; Flush sorts by key (stable within equal
// keys, reflecting the per-column ordering direction) and freezes the store.
// Iterating before Flush is forbidden.
type InputPartition struct {
	meta    Meta
	records []*record.Record
	flushed bool
}

// NewInputPartition builds an empty store for the exchange meta.
func NewInputPartition(meta Meta) *InputPartition {
	return &InputPartition{meta: meta}
}

// Write appends a copy of the record. Writing after Flush is an error.
func (p *InputPartition) Write(rec *record.Record) error {
	if p.flushed {
		return errors.New("input partition is already flushed")
	}
	p.records = append(p.records, rec.Clone())
	return nil
}

// Flush finalizes the store: records sort by key, stable for equal keys.
// After Flush the partition is read-only.
func (p *InputPartition) Flush() {
	if p.flushed {
		return
	}
	sort.SliceStable(p.records, func(i, j int) bool {
		return p.meta.compareKeys(p.records[i], p.records[j]) < 0
	})
	p.flushed = true
}

// Flushed reports whether the store is frozen.
func (p *InputPartition) Flushed() bool { return p.flushed }

// Size returns the accumulated record count.
func (p *InputPartition) Size() int { return len(p.records) }

// groups iterates the flushed store as (key, values) groups in key order.
// Must not be called before Flush.
func (p *InputPartition) groups() []record.Group {
	if !p.flushed {
		panic("iteration before flush")
	}
	keyMeta := p.meta.KeyMeta()
	valueMeta := p.meta.ValueMeta()
	valueFields := p.meta.ValueFields()
	var out []record.Group
	i := 0
	for i < len(p.records) {
		j := i
		for j < len(p.records) && p.meta.compareKeys(p.records[i], p.records[j]) == 0 {
			j++
		}
		key := record.NewRecord(keyMeta)
		for ki, k := range p.meta.Key {
			key.Set(ki, p.records[i].Get(k.Field))
		}
		members := make([]*record.Record, 0, j-i)
		for _, full := range p.records[i:j] {
			value := record.NewRecord(valueMeta)
			for vi, f := range valueFields {
				value.Set(vi, full.Get(f))
			}
			members = append(members, value)
		}
		out = append(out, record.NewGroup(key, members))
		i = j
	}
	return out
}
