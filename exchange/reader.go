package exchange

import (
	"container/heap"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/record"
)

// compareKeyRecords orders two group-key records under the exchange's
// per-column directions.
func (m Meta) compareKeyRecords(a, b *record.Record) int {
	for i, k := range m.Key {
		c := sqlexec.Order(a.Get(i), b.Get(i))
		if k.Direction == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// mergeSource walks one flushed input partition's groups.
type mergeSource struct {
	ordinal int
	groups  []record.Group
	pos     int
}

func (s *mergeSource) current() record.Group { return s.groups[s.pos] }
func (s *mergeSource) exhausted() bool       { return s.pos >= len(s.groups) }

type sourceHeap struct {
	meta    Meta
	sources []*mergeSource
}

func (h sourceHeap) Len() int { return len(h.sources) }
func (h sourceHeap) Less(i, j int) bool {
	c := h.meta.compareKeyRecords(h.sources[i].current().Key(), h.sources[j].current().Key())
	if c != 0 {
		return c < 0
	}
	return h.sources[i].ordinal < h.sources[j].ordinal
}
func (h sourceHeap) Swap(i, j int) { h.sources[i], h.sources[j] = h.sources[j], h.sources[i] }
func (h *sourceHeap) Push(x any)   { h.sources = append(h.sources, x.(*mergeSource)) }
func (h *sourceHeap) Pop() any {
	old := h.sources
	n := len(old)
	out := old[n-1]
	h.sources = old[:n-1]
	return out
}

// GroupReader merges the flushed input partitions of one output partition
// by priority queue, delivering groups in global key order. Equal keys
// across stores merge into one group; members keep writer order and, within
// one writer, insertion order.
type GroupReader struct {
	meta     Meta
	heap     sourceHeap
	released bool
}

// NewGroupReader builds a merging reader over flushed stores. Every store
// must already be flushed.
func NewGroupReader(meta Meta, stores []*InputPartition) *GroupReader {
	r := &GroupReader{meta: meta, heap: sourceHeap{meta: meta}}
	for i, store := range stores {
		src := &mergeSource{ordinal: i, groups: store.groups()}
		if !src.exhausted() {
			r.heap.sources = append(r.heap.sources, src)
		}
	}
	heap.Init(&r.heap)
	return r
}

// NextGroup returns the next merged group in key order, ok=false at end.
func (r *GroupReader) NextGroup() (record.Group, bool, error) {
	if r.released || r.heap.Len() == 0 {
		return record.Group{}, false, nil
	}
	first := heap.Pop(&r.heap).(*mergeSource)
	key := first.current().Key()
	members := append([]*record.Record(nil), first.current().Members()...)
	r.advance(first)
	for r.heap.Len() > 0 && r.meta.compareKeyRecords(r.heap.sources[0].current().Key(), key) == 0 {
		same := heap.Pop(&r.heap).(*mergeSource)
		members = append(members, same.current().Members()...)
		r.advance(same)
	}
	return record.NewGroup(key, members), true, nil
}

func (r *GroupReader) advance(src *mergeSource) {
	src.pos++
	if !src.exhausted() {
		heap.Push(&r.heap, src)
	}
}

// Release implements the reader protocol.
func (r *GroupReader) Release() {
	r.released = true
	r.heap.sources = nil
}

// FlatReader adapts a group reader to a flat record stream by replaying the
// full-layout records group by group.
type FlatReader struct {
	meta     Meta
	inner    *GroupReader
	pending  []*record.Record
	released bool
}

// NewFlatReader builds a record reader over the merged groups.
func NewFlatReader(meta Meta, inner *GroupReader) *FlatReader {
	return &FlatReader{meta: meta, inner: inner}
}

// NextRecord returns the next record in key order, reassembled into the
// exchange's full layout.
func (r *FlatReader) NextRecord() (*record.Record, bool, error) {
	if r.released {
		return nil, false, nil
	}
	for len(r.pending) == 0 {
		g, ok, err := r.inner.NextGroup()
		if err != nil || !ok {
			return nil, false, err
		}
		valueFields := r.meta.ValueFields()
		for _, member := range g.Members() {
			full := record.NewRecord(r.meta.Layout)
			for ki, k := range r.meta.Key {
				full.Set(k.Field, g.Key().Get(ki))
			}
			for vi, f := range valueFields {
				full.Set(f, member.Get(vi))
			}
			r.pending = append(r.pending, full)
		}
	}
	out := r.pending[0]
	r.pending = r.pending[1:]
	return out, true, nil
}

// Release implements the reader protocol.
func (r *FlatReader) Release() {
	r.released = true
	r.inner.Release()
}
