package ops

import (
	stdctx "context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/exchange"
	"github.com/mstgnz/sqlexec/expr"
	"github.com/mstgnz/sqlexec/kvs"
	"github.com/mstgnz/sqlexec/memory"
	"github.com/mstgnz/sqlexec/record"
)

func testSpec() kvs.TableSpec {
	return kvs.TableSpec{
		Name: "t",
		Meta: record.NewNamedMeta(
			[]string{"C0", "C1"},
			[]sqlexec.Type{sqlexec.SimpleType(sqlexec.TypeInt4), sqlexec.SimpleType(sqlexec.TypeFloat8)},
		),
		PrimaryKey: []int{0},
	}
}

func insertRow(t *testing.T, db *kvs.DB, spec kvs.TableSpec, k int32, v float64) {
	t.Helper()
	rec := record.NewRecord(spec.Meta)
	rec.Set(0, sqlexec.Int4Value(k))
	rec.Set(1, sqlexec.Float8Value(v))
	require.NoError(t, kvs.PutRecord(db, spec, rec))
}

func newTask(operators int) *TaskContext {
	return NewTaskContext(stdctx.Background(), operators, memory.NewPagePool(), expr.LossError)
}

type collectSink struct {
	mu      []*record.Record
	flushed bool
}

func (c *collectSink) Write(rec *record.Record) error {
	c.mu = append(c.mu, rec.Clone())
	return nil
}
func (c *collectSink) Flush() error   { c.flushed = true; return nil }
func (c *collectSink) Release() error { return nil }

// runToCompletion drives a source operator across cooperative yields.
func runToCompletion(t *testing.T, run func() error) {
	t.Helper()
	for {
		err := run()
		if err == nil {
			return
		}
		require.ErrorIs(t, err, ErrYield)
	}
}

func TestScanFilterEmit(t *testing.T) {
	db, err := kvs.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	spec := testSpec()
	insertRow(t, db, spec, 1, 10.0)
	insertRow(t, db, spec, 2, 20.0)
	insertRow(t, db, spec, 3, 30.0)

	sink := &collectSink{}
	output := record.NewVariableTable(spec.Meta, []record.Variable{"C0", "C1"})
	emit := NewEmit(2, []int{0, 1}, spec.Meta, output, sink)
	predicate := expr.NewEvaluator(expr.Compare{
		Op:    expr.CompareGreaterEqual,
		Left:  expr.VariableReference{Name: "C1"},
		Right: expr.Immediate{Value: sqlexec.Float8Value(20.0)},
	}, nil)
	filter := NewFilter(1, predicate, output, emit)
	scan := NewScan(0, spec, db, ScanBounds{}, output, filter, 100, time.Second)

	tc := newTask(3)
	defer tc.Release()
	runToCompletion(t, func() error { return scan.Run(tc) })

	require.Len(t, sink.mu, 2)
	assert.True(t, sink.flushed)
	assert.Equal(t, int32(2), sink.mu[0].Get(0).Int4())
	assert.Equal(t, 20.0, sink.mu[0].Get(1).Float8())
	assert.Equal(t, int32(3), sink.mu[1].Get(0).Int4())
}

func TestScanYieldsEveryBlock(t *testing.T) {
	db, err := kvs.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	spec := testSpec()
	for i := int32(0); i < 5; i++ {
		insertRow(t, db, spec, i, float64(i))
	}

	sink := &collectSink{}
	output := record.NewVariableTable(spec.Meta, []record.Variable{"C0", "C1"})
	emit := NewEmit(1, []int{0, 1}, spec.Meta, output, sink)
	scan := NewScan(0, spec, db, ScanBounds{}, output, emit, 2, time.Hour)

	tc := newTask(2)
	defer tc.Release()

	yields := 0
	for {
		err := scan.Run(tc)
		if err == nil {
			break
		}
		require.ErrorIs(t, err, ErrYield)
		yields++
	}
	assert.Equal(t, 2, yields)
	assert.Len(t, sink.mu, 5)
}

func TestScanBoundsRestrict(t *testing.T) {
	db, err := kvs.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	spec := testSpec()
	for i := int32(1); i <= 4; i++ {
		insertRow(t, db, spec, i, float64(i))
	}

	// [2, 4) over the primary key
	lowRec := record.NewRecord(spec.Meta)
	lowRec.Set(0, sqlexec.Int4Value(2))
	low, err := kvs.PrimaryKeyOf(spec, lowRec)
	require.NoError(t, err)
	highRec := record.NewRecord(spec.Meta)
	highRec.Set(0, sqlexec.Int4Value(4))
	high, err := kvs.PrimaryKeyOf(spec, highRec)
	require.NoError(t, err)

	sink := &collectSink{}
	output := record.NewVariableTable(spec.Meta, []record.Variable{"C0", "C1"})
	emit := NewEmit(1, []int{0, 1}, spec.Meta, output, sink)
	scan := NewScan(0, spec, db, ScanBounds{Lower: low, LowerInclusive: true, Upper: high, UpperInclusive: false}, output, emit, 100, time.Second)

	tc := newTask(2)
	defer tc.Release()
	runToCompletion(t, func() error { return scan.Run(tc) })

	require.Len(t, sink.mu, 2)
	assert.Equal(t, int32(2), sink.mu[0].Get(0).Int4())
	assert.Equal(t, int32(3), sink.mu[1].Get(0).Int4())
}

func TestScanCancelAborts(t *testing.T) {
	db, err := kvs.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	spec := testSpec()
	insertRow(t, db, spec, 1, 1.0)

	cancelled, cancel := stdctx.WithCancel(stdctx.Background())
	cancel()
	tc := NewTaskContext(cancelled, 2, memory.NewPagePool(), expr.LossError)
	defer tc.Release()

	sink := &collectSink{}
	output := record.NewVariableTable(spec.Meta, []record.Variable{"C0", "C1"})
	emit := NewEmit(1, []int{0, 1}, spec.Meta, output, sink)
	scan := NewScan(0, spec, db, ScanBounds{}, output, emit, 100, time.Second)

	err = scan.Run(tc)
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, StateAbort, tc.Contexts.At(0).State())
	assert.Empty(t, sink.mu)

	// an aborted context refuses further slices
	require.ErrorIs(t, scan.Run(tc), ErrAborted)
}

func TestFindPointLookup(t *testing.T) {
	db, err := kvs.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	spec := testSpec()
	insertRow(t, db, spec, 1, 10.0)
	insertRow(t, db, spec, 2, 20.0)

	keyRec := record.NewRecord(spec.Meta)
	keyRec.Set(0, sqlexec.Int4Value(2))
	key, err := kvs.PrimaryKeyOf(spec, keyRec)
	require.NoError(t, err)

	sink := &collectSink{}
	output := record.NewVariableTable(spec.Meta, []record.Variable{"C0", "C1"})
	emit := NewEmit(1, []int{0, 1}, spec.Meta, output, sink)
	find := NewFind(0, spec, db, key, "", output, emit)

	tc := newTask(2)
	defer tc.Release()
	require.NoError(t, find.Run(tc))
	require.Len(t, sink.mu, 1)
	assert.Equal(t, 20.0, sink.mu[0].Get(1).Float8())

	// zero rows finish silently
	missRec := record.NewRecord(spec.Meta)
	missRec.Set(0, sqlexec.Int4Value(99))
	missKey, err := kvs.PrimaryKeyOf(spec, missRec)
	require.NoError(t, err)
	sink2 := &collectSink{}
	emit2 := NewEmit(1, []int{0, 1}, spec.Meta, output, sink2)
	find2 := NewFind(0, spec, db, missKey, "", output, emit2)
	tc2 := newTask(2)
	defer tc2.Release()
	require.NoError(t, find2.Run(tc2))
	assert.Empty(t, sink2.mu)
}

func TestFindThroughSecondary(t *testing.T) {
	db, err := kvs.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	spec := testSpec()
	spec.Secondary = []kvs.SecondaryIndex{{Name: "by_c1", KeyFields: []int{1}}}
	insertRow(t, db, spec, 1, 10.0)
	insertRow(t, db, spec, 2, 20.0)

	probe := record.NewRecord(spec.Meta)
	probe.Set(1, sqlexec.Float8Value(20.0))
	skey, err := kvs.EncodeKey(probe, []int{1})
	require.NoError(t, err)
	lookup := append(kvs.SecondaryPrefix(spec.Name, "by_c1"), skey...)

	sink := &collectSink{}
	output := record.NewVariableTable(spec.Meta, []record.Variable{"C0", "C1"})
	emit := NewEmit(1, []int{0, 1}, spec.Meta, output, sink)
	find := NewFind(0, spec, db, lookup, "by_c1", output, emit)

	tc := newTask(2)
	defer tc.Release()
	require.NoError(t, find.Run(tc))
	require.Len(t, sink.mu, 1)
	assert.Equal(t, int32(2), sink.mu[0].Get(0).Int4())
}

type cogroupSink struct {
	keys     []int32
	members  [][][]string
	finished bool
}

func (c *cogroupSink) Kind() Kind { return OpEmit }
func (c *cogroupSink) Index() int { return 99 }
func (c *cogroupSink) ProcessCogroup(tc *TaskContext, cg record.Cogroup) error {
	c.keys = append(c.keys, cg.Key().Get(0).Int4())
	var per [][]string
	for _, g := range cg.Groups() {
		var vals []string
		for _, m := range g.Members() {
			vals = append(vals, m.Get(0).Character())
		}
		per = append(per, vals)
	}
	c.members = append(c.members, per)
	return nil
}
func (c *cogroupSink) Finish(tc *TaskContext) error {
	c.finished = true
	return nil
}

func groupReaderFrom(t *testing.T, rows [][2]any) GroupReader {
	t.Helper()
	meta := exchange.Meta{
		Layout: record.NewMeta(
			sqlexec.SimpleType(sqlexec.TypeInt4),
			sqlexec.CharacterType(0, true),
		),
		Key: []exchange.KeyColumn{{Field: 0, Direction: exchange.Ascending}},
	}
	p := exchange.NewInputPartition(meta)
	for _, r := range rows {
		rec := record.NewRecord(meta.Layout)
		rec.Set(0, sqlexec.Int4Value(int32(r[0].(int))))
		rec.Set(1, sqlexec.CharacterValue(r[1].(string)))
		require.NoError(t, p.Write(rec))
	}
	p.Flush()
	return exchange.NewGroupReader(meta, []*exchange.InputPartition{p})
}

func TestTakeCogroupMerge(t *testing.T) {
	left := groupReaderFrom(t, [][2]any{{1, "a"}, {3, "c"}})
	right := groupReaderFrom(t, [][2]any{{1, "b"}, {2, "d"}})

	sink := &cogroupSink{}
	cg := NewTakeCogroup(0, []GroupReader{left, right}, sink)

	tc := newTask(1)
	defer tc.Release()
	require.NoError(t, cg.Run(tc))

	assert.True(t, sink.finished)
	assert.Equal(t, []int32{1, 2, 3}, sink.keys)
	require.Len(t, sink.members, 3)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, sink.members[0])
	assert.Equal(t, [][]string{nil, {"d"}}, sink.members[1])
	assert.Equal(t, [][]string{{"c"}, nil}, sink.members[2])
}

func TestTakeCogroupCancel(t *testing.T) {
	left := groupReaderFrom(t, [][2]any{{1, "a"}})
	right := groupReaderFrom(t, [][2]any{{2, "b"}})

	cancelled, cancel := stdctx.WithCancel(stdctx.Background())
	cancel()
	tc := NewTaskContext(cancelled, 1, memory.NewPagePool(), expr.LossError)
	defer tc.Release()

	sink := &cogroupSink{}
	cg := NewTakeCogroup(0, []GroupReader{left, right}, sink)
	require.ErrorIs(t, cg.Run(tc), ErrAborted)
	assert.True(t, sink.finished)
	assert.Empty(t, sink.keys)
}

type recordSink struct {
	rows     []*record.Record
	source   *record.VariableTable
	finished bool
}

func (r *recordSink) Kind() Kind { return OpEmit }
func (r *recordSink) Index() int { return 98 }
func (r *recordSink) ProcessRecord(tc *TaskContext) error {
	r.rows = append(r.rows, r.source.Record().Clone())
	return nil
}
func (r *recordSink) Finish(tc *TaskContext) error {
	r.finished = true
	return nil
}

func TestTakeGroupAndAggregate(t *testing.T) {
	reader := groupReaderFrom(t, [][2]any{{1, "x"}, {1, "yy"}, {2, "zzz"}})

	// group input table: key at field 0, member value at field 1
	inMeta := record.NewMeta(
		sqlexec.SimpleType(sqlexec.TypeInt4),
		sqlexec.CharacterType(0, true),
	)
	input := record.NewVariableTable(inMeta, []record.Variable{"k", "v"})

	// aggregate output table: key copy and count
	outMeta := record.NewMeta(
		sqlexec.SimpleType(sqlexec.TypeInt4),
		sqlexec.SimpleType(sqlexec.TypeInt8),
	)
	output := record.NewVariableTable(outMeta, []record.Variable{"k", "n"})

	sink := &recordSink{source: output}
	agg := NewAggregateGroup(1, []AggregateSpec{
		{DefinitionID: 102, SourceFields: []int{1}, TargetField: 1},
	}, input, output, false, &keyCopySink{inner: sink, input: input, output: output})
	take := NewTakeGroup(0, reader, []int{0}, []int{1}, input, agg)

	tc := newTask(2)
	defer tc.Release()
	require.NoError(t, take.Run(tc))

	require.Len(t, sink.rows, 2)
	assert.Equal(t, int32(1), sink.rows[0].Get(0).Int4())
	assert.Equal(t, int64(2), sink.rows[0].Get(1).Int8())
	assert.Equal(t, int32(2), sink.rows[1].Get(0).Int4())
	assert.Equal(t, int64(1), sink.rows[1].Get(1).Int8())
	assert.True(t, sink.finished)
}

// keyCopySink copies the group key into the output row before forwarding.
type keyCopySink struct {
	inner  RecordOperator
	input  *record.VariableTable
	output *record.VariableTable
}

func (k *keyCopySink) Kind() Kind { return OpEmit }
func (k *keyCopySink) Index() int { return 97 }
func (k *keyCopySink) ProcessRecord(tc *TaskContext) error {
	k.output.Record().Set(0, k.input.Record().Get(0))
	return k.inner.ProcessRecord(tc)
}
func (k *keyCopySink) Finish(tc *TaskContext) error { return k.inner.Finish(tc) }

func TestAggregateEmptyInputGeneratesEmptyValues(t *testing.T) {
	inMeta := record.NewMeta(sqlexec.SimpleType(sqlexec.TypeInt4))
	outMeta := record.NewMeta(sqlexec.SimpleType(sqlexec.TypeInt8))
	input := record.NewVariableTable(inMeta, []record.Variable{"v"})
	output := record.NewVariableTable(outMeta, []record.Variable{"n"})

	sink := &recordSink{source: output}
	agg := NewAggregateGroup(0, []AggregateSpec{
		{DefinitionID: 102, SourceFields: []int{0}, TargetField: 0},
	}, input, output, true, sink)

	tc := newTask(1)
	defer tc.Release()
	require.NoError(t, agg.Finish(tc))

	require.Len(t, sink.rows, 1)
	assert.Equal(t, int64(0), sink.rows[0].Get(0).Int8())
	assert.True(t, sink.finished)
}

func TestTakeFlat(t *testing.T) {
	meta := exchange.Meta{
		Layout: record.NewMeta(
			sqlexec.SimpleType(sqlexec.TypeInt4),
			sqlexec.CharacterType(0, true),
		),
		Key: []exchange.KeyColumn{{Field: 0, Direction: exchange.Ascending}},
	}
	f := exchange.NewForward(meta, 1)
	w := f.NewWriter(0)
	for i := int32(0); i < 3; i++ {
		rec := record.NewRecord(meta.Layout)
		rec.Set(0, sqlexec.Int4Value(i))
		rec.Set(1, sqlexec.CharacterValue("v"))
		require.NoError(t, w.Write(rec))
	}

	output := record.NewVariableTable(meta.Layout, []record.Variable{"k", "v"})
	sink := &recordSink{source: output}
	take := NewTakeFlat(0, f.Reader(0), output, sink)

	tc := newTask(1)
	defer tc.Release()
	require.NoError(t, take.Run(tc))
	assert.Len(t, sink.rows, 3)
	assert.True(t, sink.finished)
}

func TestOfferIntoShuffle(t *testing.T) {
	meta := exchange.Meta{
		Layout: record.NewMeta(
			sqlexec.SimpleType(sqlexec.TypeInt4),
			sqlexec.CharacterType(0, true),
		),
		Key: []exchange.KeyColumn{{Field: 0, Direction: exchange.Ascending}},
	}
	ex := exchange.NewShuffle(meta, 1)
	w := ex.NewWriter()

	input := record.NewVariableTable(meta.Layout, []record.Variable{"k", "v"})
	offer := NewOffer(0, []int{0, 1}, meta.Layout, input, w)

	tc := newTask(1)
	defer tc.Release()
	input.Set("k", sqlexec.Int4Value(1))
	input.Set("v", sqlexec.CharacterValue("a"))
	require.NoError(t, offer.ProcessRecord(tc))
	require.NoError(t, offer.Finish(tc))

	r, err := ex.Reader(0)
	require.NoError(t, err)
	g, ok, err := r.NextGroup()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(1), g.Key().Get(0).Int4())
	assert.Equal(t, 1, g.Size())
}

func TestWriteExistingUpdateAndDelete(t *testing.T) {
	db, err := kvs.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	spec := testSpec()
	spec.Secondary = []kvs.SecondaryIndex{{Name: "by_c1", KeyFields: []int{1}}}
	insertRow(t, db, spec, 1, 10.0)

	input := record.NewVariableTable(spec.Meta, []record.Variable{"C0", "C1"})
	tc := newTask(1)
	defer tc.Release()

	// update replaces the row and moves the secondary entry
	input.Set("C0", sqlexec.Int4Value(1))
	input.Set("C1", sqlexec.Float8Value(99.0))
	upd := NewWriteExisting(0, WriteUpdate, spec, db, input)
	require.NoError(t, upd.ProcessRecord(tc))
	require.NoError(t, upd.Finish(tc))

	oldProbe := record.NewRecord(spec.Meta)
	oldProbe.Set(0, sqlexec.Int4Value(1))
	oldProbe.Set(1, sqlexec.Float8Value(10.0))
	oldKey, err := kvs.SecondaryKeyOf(spec, spec.Secondary[0], oldProbe)
	require.NoError(t, err)
	_, ok, _ := db.Get(oldKey)
	assert.False(t, ok, "stale secondary entry must be gone")

	newKey, err := kvs.SecondaryKeyOf(spec, spec.Secondary[0], input.Record())
	require.NoError(t, err)
	_, ok, _ = db.Get(newKey)
	assert.True(t, ok)

	// delete removes the row and its entries
	tc2 := newTask(1)
	defer tc2.Release()
	del := NewWriteExisting(0, WriteDelete, spec, db, input)
	require.NoError(t, del.ProcessRecord(tc2))
	pk, err := kvs.PrimaryKeyOf(spec, input.Record())
	require.NoError(t, err)
	_, ok, _ = db.Get(pk)
	assert.False(t, ok)
}

func TestWritePartialOverlaysFields(t *testing.T) {
	db, err := kvs.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	spec := testSpec()
	insertRow(t, db, spec, 1, 10.0)

	input := record.NewVariableTable(spec.Meta, []record.Variable{"C0", "C1"})
	input.Set("C0", sqlexec.Int4Value(1))
	input.Set("C1", sqlexec.Float8Value(42.0))

	tc := newTask(1)
	defer tc.Release()
	wp := NewWritePartial(0, spec, db, []int{1}, input)
	require.NoError(t, wp.ProcessRecord(tc))

	key, err := kvs.PrimaryKeyOf(spec, input.Record())
	require.NoError(t, err)
	value, ok, err := db.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	back := record.NewRecord(spec.Meta)
	require.NoError(t, kvs.DecodeRecord(spec, key, value, back))
	assert.Equal(t, 42.0, back.Get(1).Float8())

	// updating a missing row aborts
	miss := record.NewVariableTable(spec.Meta, []record.Variable{"C0", "C1"})
	miss.Set("C0", sqlexec.Int4Value(77))
	tc2 := newTask(1)
	defer tc2.Release()
	wp2 := NewWritePartial(0, spec, db, []int{1}, miss)
	assert.Error(t, wp2.ProcessRecord(tc2))
}

func TestFilterErrorAborts(t *testing.T) {
	meta := record.NewMeta(sqlexec.SimpleType(sqlexec.TypeInt4))
	input := record.NewVariableTable(meta, []record.Variable{"C0"})

	// dividing by zero inside the predicate fails evaluation
	predicate := expr.NewEvaluator(expr.Compare{
		Op:   expr.CompareEqual,
		Left: expr.Binary{Op: expr.BinaryDivide, Left: expr.Immediate{Value: sqlexec.Int4Value(1)}, Right: expr.Immediate{Value: sqlexec.Int4Value(0)}},
		Right: expr.Immediate{Value: sqlexec.Int4Value(1)},
	}, nil)
	sink := &recordSink{source: input}
	filter := NewFilter(0, predicate, input, sink)

	tc := newTask(1)
	defer tc.Release()
	assert.Error(t, filter.ProcessRecord(tc))
	assert.Equal(t, StateAbort, tc.Contexts.At(0).State())
	assert.Empty(t, sink.rows)
}
