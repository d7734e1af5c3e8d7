package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/record"
)

func exchangeMeta() Meta {
	return Meta{
		Layout: record.NewMeta(
			sqlexec.SimpleType(sqlexec.TypeInt4),
			sqlexec.CharacterType(0, true),
		),
		Key: []KeyColumn{{Field: 0, Direction: Ascending}},
	}
}

func row(meta Meta, k int32, v string) *record.Record {
	rec := record.NewRecord(meta.Layout)
	rec.Set(0, sqlexec.Int4Value(k))
	rec.Set(1, sqlexec.CharacterValue(v))
	return rec
}

func TestInputPartitionFlushInvariants(t *testing.T) {
	meta := exchangeMeta()
	p := NewInputPartition(meta)

	require.NoError(t, p.Write(row(meta, 2, "b")))
	require.NoError(t, p.Write(row(meta, 1, "a1")))
	require.NoError(t, p.Write(row(meta, 1, "a2")))
	assert.False(t, p.Flushed())

	// iteration before flush is forbidden
	assert.Panics(t, func() { p.groups() })

	p.Flush()
	assert.True(t, p.Flushed())

	// writes after flush are rejected
	assert.Error(t, p.Write(row(meta, 3, "c")))

	gs := p.groups()
	require.Len(t, gs, 2)

	// groups come in key order
	assert.Equal(t, int32(1), gs[0].Key().Get(0).Int4())
	assert.Equal(t, int32(2), gs[1].Key().Get(0).Int4())

	// equal-key members keep insertion order
	require.Equal(t, 2, gs[0].Size())
	assert.Equal(t, "a1", gs[0].Members()[0].Get(0).Character())
	assert.Equal(t, "a2", gs[0].Members()[1].Get(0).Character())

	// flushing twice is a no-op
	p.Flush()
}

func TestInputPartitionDescending(t *testing.T) {
	meta := exchangeMeta()
	meta.Key[0].Direction = Descending
	p := NewInputPartition(meta)
	require.NoError(t, p.Write(row(meta, 1, "a")))
	require.NoError(t, p.Write(row(meta, 3, "c")))
	p.Flush()
	gs := p.groups()
	require.Len(t, gs, 2)
	assert.Equal(t, int32(3), gs[0].Key().Get(0).Int4())
	assert.Equal(t, int32(1), gs[1].Key().Get(0).Int4())
}

func TestGroupReaderMergesGlobally(t *testing.T) {
	meta := exchangeMeta()
	a := NewInputPartition(meta)
	b := NewInputPartition(meta)
	require.NoError(t, a.Write(row(meta, 1, "a")))
	require.NoError(t, a.Write(row(meta, 3, "c")))
	require.NoError(t, b.Write(row(meta, 1, "b")))
	require.NoError(t, b.Write(row(meta, 2, "d")))
	a.Flush()
	b.Flush()

	r := NewGroupReader(meta, []*InputPartition{a, b})
	defer r.Release()

	var keys []int32
	var sizes []int
	for {
		g, ok, err := r.NextGroup()
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, g.Key().Get(0).Int4())
		sizes = append(sizes, g.Size())
	}
	assert.Equal(t, []int32{1, 2, 3}, keys)
	assert.Equal(t, []int{2, 1, 1}, sizes)
}

func TestShuffleEndToEnd(t *testing.T) {
	meta := exchangeMeta()
	ex := NewShuffle(meta, 2)

	w1 := ex.NewWriter()
	w2 := ex.NewWriter()
	require.NoError(t, w1.Write(row(meta, 1, "x")))
	require.NoError(t, w1.Write(row(meta, 2, "y")))
	require.NoError(t, w2.Write(row(meta, 1, "z")))
	require.NoError(t, w1.Flush())
	require.NoError(t, w2.Flush())

	seen := map[int32]int{}
	for p := 0; p < ex.Partitions(); p++ {
		r, err := ex.Reader(p)
		require.NoError(t, err)
		var prev int32 = -1 << 31
		for {
			g, ok, err := r.NextGroup()
			require.NoError(t, err)
			if !ok {
				break
			}
			k := g.Key().Get(0).Int4()
			// each partition delivers keys in order
			assert.Greater(t, k, prev)
			prev = k
			seen[k] += g.Size()
		}
		r.Release()
	}
	// every record landed in exactly one partition
	assert.Equal(t, map[int32]int{1: 2, 2: 1}, seen)
}

func TestForwardKeepsCallOrder(t *testing.T) {
	meta := exchangeMeta()
	f := NewForward(meta, 1)
	w := f.NewWriter(0)
	require.NoError(t, w.Write(row(meta, 5, "first")))
	require.NoError(t, w.Write(row(meta, 3, "second")))

	r := f.Reader(0)
	defer r.Release()
	rec, ok, err := r.NextRecord()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", rec.Get(1).Character())
	rec, _, _ = r.NextRecord()
	assert.Equal(t, "second", rec.Get(1).Character())
	_, ok, _ = r.NextRecord()
	assert.False(t, ok)
}

func TestBroadcastDeliversToEveryReader(t *testing.T) {
	meta := exchangeMeta()
	b := NewBroadcast(meta)
	w := b.NewWriter()
	require.NoError(t, w.Write(row(meta, 1, "a")))
	require.NoError(t, w.Write(row(meta, 2, "b")))

	for i := 0; i < 2; i++ {
		r := b.Reader()
		count := 0
		for {
			_, ok, err := r.NextRecord()
			require.NoError(t, err)
			if !ok {
				break
			}
			count++
		}
		assert.Equal(t, 2, count)
		r.Release()
	}
}

func TestFlatReaderReassemblesLayout(t *testing.T) {
	meta := exchangeMeta()
	p := NewInputPartition(meta)
	require.NoError(t, p.Write(row(meta, 7, "v")))
	p.Flush()

	r := NewFlatReader(meta, NewGroupReader(meta, []*InputPartition{p}))
	defer r.Release()
	rec, ok, err := r.NextRecord()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(7), rec.Get(0).Int4())
	assert.Equal(t, "v", rec.Get(1).Character())
}
