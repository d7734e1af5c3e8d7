package ops

import (
	"github.com/pkg/errors"

	"github.com/mstgnz/sqlexec/kvs"
	"github.com/mstgnz/sqlexec/record"
)

// WriteKind selects what a write operator does with the matched row.
type WriteKind int

const (
	WriteUpdate WriteKind = iota
	WriteDelete
)

// WriteTarget is the mutation surface of the store; both Storage and
// Transaction satisfy it.
type WriteTarget interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// WriteExisting updates or deletes a fully materialized row through the
// primary index. Consistency across secondary indexes is kept by removing
// the old entries before inserting the new ones.
type WriteExisting struct {
	index  int
	kind   WriteKind
	spec   kvs.TableSpec
	target WriteTarget
	input  *record.VariableTable
}

// NewWriteExisting builds a write_existing operator.
func NewWriteExisting(index int, kind WriteKind, spec kvs.TableSpec, target WriteTarget, input *record.VariableTable) *WriteExisting {
	return &WriteExisting{index: index, kind: kind, spec: spec, target: target, input: input}
}

// Kind implements RecordOperator.
func (w *WriteExisting) Kind() Kind { return OpWriteExisting }

// Index implements RecordOperator.
func (w *WriteExisting) Index() int { return w.index }

type writeContext struct {
	contextBase
	kind Kind
	old  *record.Record
}

func (c *writeContext) Kind() Kind { return c.kind }
func (c *writeContext) Release()   {}

// ProcessRecord implements RecordOperator. The input variable table carries
// the full new row image (update) or the row to remove (delete).
func (w *WriteExisting) ProcessRecord(tc *TaskContext) error {
	ctx := contextFor(tc, w.index, func() *writeContext {
		return &writeContext{kind: OpWriteExisting, old: record.NewRecord(w.spec.Meta)}
	})
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	rec := w.input.Record()
	if w.kind == WriteDelete {
		if err := kvs.DeleteRecord(w.target, w.spec, rec); err != nil {
			ctx.Abort()
			return err
		}
		return nil
	}
	if err := removeStaleSecondaries(w.target, w.spec, rec, ctx.old); err != nil {
		ctx.Abort()
		return err
	}
	if err := kvs.PutRecord(w.target, w.spec, rec); err != nil {
		ctx.Abort()
		return err
	}
	return nil
}

// Finish implements RecordOperator; writes are terminal operators.
func (w *WriteExisting) Finish(tc *TaskContext) error {
	return nil
}

// WritePartial updates a subset of columns: the stored row is read back,
// the updated fields are overlaid and the row is rewritten with its
// secondary entries refreshed.
type WritePartial struct {
	index         int
	spec          kvs.TableSpec
	target        WriteTarget
	updatedFields []int
	input         *record.VariableTable
}

// NewWritePartial builds a write_partial operator. updatedFields lists the
// layout fields the input variable table overrides.
func NewWritePartial(index int, spec kvs.TableSpec, target WriteTarget, updatedFields []int, input *record.VariableTable) *WritePartial {
	return &WritePartial{index: index, spec: spec, target: target, updatedFields: updatedFields, input: input}
}

// Kind implements RecordOperator.
func (w *WritePartial) Kind() Kind { return OpWritePartial }

// Index implements RecordOperator.
func (w *WritePartial) Index() int { return w.index }

// ProcessRecord implements RecordOperator.
func (w *WritePartial) ProcessRecord(tc *TaskContext) error {
	ctx := contextFor(tc, w.index, func() *writeContext {
		return &writeContext{kind: OpWritePartial, old: record.NewRecord(w.spec.Meta)}
	})
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	rec := w.input.Record()
	key, err := kvs.PrimaryKeyOf(w.spec, rec)
	if err != nil {
		ctx.Abort()
		return err
	}
	value, ok, err := w.target.Get(key)
	if err != nil {
		ctx.Abort()
		return err
	}
	if !ok {
		ctx.Abort()
		return errors.Errorf("row to update does not exist in %s", w.spec.Name)
	}
	if err := kvs.DecodeRecord(w.spec, key, value, ctx.old); err != nil {
		ctx.Abort()
		return err
	}
	// old secondary entries must go before the new image lands
	for _, idx := range w.spec.Secondary {
		skey, err := kvs.SecondaryKeyOf(w.spec, idx, ctx.old)
		if err != nil {
			ctx.Abort()
			return err
		}
		if err := w.target.Delete(skey); err != nil {
			ctx.Abort()
			return err
		}
	}
	for _, f := range w.updatedFields {
		ctx.old.Set(f, rec.Get(f))
	}
	if err := kvs.PutRecord(w.target, w.spec, ctx.old); err != nil {
		ctx.Abort()
		return err
	}
	return nil
}

// Finish implements RecordOperator.
func (w *WritePartial) Finish(tc *TaskContext) error {
	return nil
}

// removeStaleSecondaries drops every secondary entry of the stored image
// when a row with the incoming primary key exists, whether or not it differs
// from the incoming one; the caller then writes the new entries.
func removeStaleSecondaries(target WriteTarget, spec kvs.TableSpec, rec, old *record.Record) error {
	if len(spec.Secondary) == 0 {
		return nil
	}
	key, err := kvs.PrimaryKeyOf(spec, rec)
	if err != nil {
		return err
	}
	value, ok, err := target.Get(key)
	if err != nil || !ok {
		return err
	}
	if err := kvs.DecodeRecord(spec, key, value, old); err != nil {
		return err
	}
	for _, idx := range spec.Secondary {
		skey, err := kvs.SecondaryKeyOf(spec, idx, old)
		if err != nil {
			return err
		}
		if err := target.Delete(skey); err != nil {
			return err
		}
	}
	return nil
}
