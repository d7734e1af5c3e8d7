package ops

import (
	"github.com/mstgnz/sqlexec/record"
)

// Offer pushes a projected record into an exchange writer. It is the write
// side of a shuffle: the records reappear grouped by key on the reading
// process step.
type Offer struct {
	index      int
	fields     []int
	outputMeta *record.Meta
	input      *record.VariableTable
	writer     RecordWriter
}

// NewOffer builds an offer operator.
func NewOffer(index int, fields []int, outputMeta *record.Meta, input *record.VariableTable, writer RecordWriter) *Offer {
	return &Offer{index: index, fields: fields, outputMeta: outputMeta, input: input, writer: writer}
}

// Kind implements RecordOperator.
func (o *Offer) Kind() Kind { return OpOffer }

// Index implements RecordOperator.
func (o *Offer) Index() int { return o.index }

type offerContext struct {
	contextBase
	buffer *record.Record
}

func (c *offerContext) Kind() Kind { return OpOffer }
func (c *offerContext) Release()   {}

// ProcessRecord implements RecordOperator.
func (o *Offer) ProcessRecord(tc *TaskContext) error {
	ctx := contextFor(tc, o.index, func() *offerContext {
		return &offerContext{buffer: record.NewRecord(o.outputMeta)}
	})
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	in := o.input.Record()
	for out, src := range o.fields {
		ctx.buffer.Set(out, in.Get(src))
	}
	if err := o.writer.Write(ctx.buffer); err != nil {
		ctx.Abort()
		return err
	}
	return nil
}

// Finish flushes the exchange writer so the partitions become readable.
func (o *Offer) Finish(tc *TaskContext) error {
	ctx := contextFor(tc, o.index, func() *offerContext {
		return &offerContext{buffer: record.NewRecord(o.outputMeta)}
	})
	if ctx.State() == StateAbort {
		return nil
	}
	return o.writer.Flush()
}
