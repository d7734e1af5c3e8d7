package ops

import (
	"github.com/pkg/errors"

	"github.com/mstgnz/sqlexec/kvs"
	"github.com/mstgnz/sqlexec/record"
)

// Find performs a point lookup on the primary index with a fully bound key.
// When a secondary index name is set, the lookup goes through the secondary
// entry and follows its pointer to the primary row. Zero rows finish
// silently; one row invokes downstream once.
type Find struct {
	index      int
	spec       kvs.TableSpec
	source     ScanSource
	key        []byte // fully bound primary or secondary key, prefixed
	secondary  string // secondary index name; empty means primary lookup
	output     *record.VariableTable
	downstream RecordOperator
}

// NewFind builds a find operator over an encoded lookup key.
func NewFind(index int, spec kvs.TableSpec, source ScanSource, key []byte, secondary string, output *record.VariableTable, downstream RecordOperator) *Find {
	return &Find{
		index:      index,
		spec:       spec,
		source:     source,
		key:        key,
		secondary:  secondary,
		output:     output,
		downstream: downstream,
	}
}

// Kind implements RecordOperator.
func (f *Find) Kind() Kind { return OpFind }

// Index implements RecordOperator.
func (f *Find) Index() int { return f.index }

type findContext struct {
	contextBase
}

func (c *findContext) Kind() Kind { return OpFind }
func (c *findContext) Release()   {}

// Run resolves the key and drives downstream, then finishes.
func (f *Find) Run(tc *TaskContext) error {
	ctx := contextFor(tc, f.index, func() *findContext { return &findContext{} })
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	if tc.Canceled() {
		ctx.Abort()
		_ = f.downstream.Finish(tc)
		return ErrAborted
	}
	primaryKey := f.key
	if f.secondary != "" {
		// a secondary entry's value is the primary key it points at
		resolved, ok, err := f.lookupSecondary()
		if err != nil {
			return f.fail(tc, ctx, err)
		}
		if !ok {
			return f.Finish(tc)
		}
		primaryKey = resolved
	}
	value, ok, err := f.source.Get(primaryKey)
	if err != nil {
		return f.fail(tc, ctx, errors.Wrap(err, "find lookup"))
	}
	if !ok {
		return f.Finish(tc)
	}
	if err := kvs.DecodeRecord(f.spec, primaryKey, value, f.output.Record()); err != nil {
		return f.fail(tc, ctx, err)
	}
	if err := f.downstream.ProcessRecord(tc); err != nil {
		return f.fail(tc, ctx, err)
	}
	return f.Finish(tc)
}

// lookupSecondary scans the secondary entries sharing the bound key part and
// returns the first primary pointer.
func (f *Find) lookupSecondary() ([]byte, bool, error) {
	lower, upper := kvs.PrefixRange(f.key)
	it, err := f.source.Scan(lower, true, upper, false)
	if err != nil {
		return nil, false, errors.Wrap(err, "secondary lookup")
	}
	defer it.Release()
	if !it.Next() {
		return nil, false, errors.Wrap(it.Error(), "secondary lookup")
	}
	return append([]byte(nil), it.Value()...), true, nil
}

func (f *Find) fail(tc *TaskContext, ctx *findContext, err error) error {
	ctx.Abort()
	_ = f.downstream.Finish(tc)
	return err
}

// Finish cascades downstream.
func (f *Find) Finish(tc *TaskContext) error {
	return f.downstream.Finish(tc)
}
