package ops

import (
	"github.com/mstgnz/sqlexec/record"
)

// Emit copies a projected subset of the current variable table into a small
// record buffer and hands it to the result writer. Finish flushes and
// releases the writer.
type Emit struct {
	index      int
	fields     []int // projection: input field index per output field
	outputMeta *record.Meta
	input      *record.VariableTable
	writer     RecordWriter
}

// NewEmit builds an emit operator.
func NewEmit(index int, fields []int, outputMeta *record.Meta, input *record.VariableTable, writer RecordWriter) *Emit {
	return &Emit{index: index, fields: fields, outputMeta: outputMeta, input: input, writer: writer}
}

// Kind implements RecordOperator.
func (e *Emit) Kind() Kind { return OpEmit }

// Index implements RecordOperator.
func (e *Emit) Index() int { return e.index }

type emitContext struct {
	contextBase
	buffer   *record.Record
	writer   RecordWriter
	released bool
}

func (c *emitContext) Kind() Kind { return OpEmit }

func (c *emitContext) Release() {
	if c.writer != nil && !c.released {
		c.released = true
		_ = c.writer.Release()
	}
}

// ProcessRecord implements RecordOperator.
func (e *Emit) ProcessRecord(tc *TaskContext) error {
	ctx := contextFor(tc, e.index, func() *emitContext {
		return &emitContext{buffer: record.NewRecord(e.outputMeta), writer: e.writer}
	})
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	in := e.input.Record()
	for out, src := range e.fields {
		ctx.buffer.Set(out, in.Get(src))
	}
	if err := ctx.writer.Write(ctx.buffer); err != nil {
		ctx.Abort()
		return err
	}
	return nil
}

// Finish flushes and releases the writer.
func (e *Emit) Finish(tc *TaskContext) error {
	ctx := contextFor(tc, e.index, func() *emitContext {
		return &emitContext{buffer: record.NewRecord(e.outputMeta), writer: e.writer}
	})
	if ctx.State() != StateAbort {
		if err := ctx.writer.Flush(); err != nil {
			ctx.Abort()
			return err
		}
	}
	ctx.Release()
	return nil
}
