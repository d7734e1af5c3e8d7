package ops

import (
	"github.com/mstgnz/sqlexec/record"
)

// TakeFlat pulls records from an upstream exchange reader into the output
// variable table, invoking downstream once per record.
type TakeFlat struct {
	index      int
	reader     RecordReader
	output     *record.VariableTable
	downstream RecordOperator
}

// NewTakeFlat builds a take_flat operator.
func NewTakeFlat(index int, reader RecordReader, output *record.VariableTable, downstream RecordOperator) *TakeFlat {
	return &TakeFlat{index: index, reader: reader, output: output, downstream: downstream}
}

// Kind implements RecordOperator.
func (t *TakeFlat) Kind() Kind { return OpTakeFlat }

// Index implements RecordOperator.
func (t *TakeFlat) Index() int { return t.index }

type takeFlatContext struct {
	contextBase
	reader RecordReader
}

func (c *takeFlatContext) Kind() Kind { return OpTakeFlat }

func (c *takeFlatContext) Release() {
	if c.reader != nil {
		c.reader.Release()
		c.reader = nil
	}
}

// Run drains the reader.
func (t *TakeFlat) Run(tc *TaskContext) error {
	ctx := contextFor(tc, t.index, func() *takeFlatContext { return &takeFlatContext{reader: t.reader} })
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	for {
		if tc.Canceled() {
			ctx.Abort()
			_ = t.downstream.Finish(tc)
			return ErrAborted
		}
		rec, ok, err := ctx.reader.NextRecord()
		if err != nil {
			ctx.Abort()
			ctx.Release()
			_ = t.downstream.Finish(tc)
			return err
		}
		if !ok {
			break
		}
		t.output.Record().CopyFrom(rec)
		if err := t.downstream.ProcessRecord(tc); err != nil {
			ctx.Abort()
			ctx.Release()
			_ = t.downstream.Finish(tc)
			return err
		}
	}
	ctx.Release()
	return t.downstream.Finish(tc)
}

// TakeGroup reads group boundaries from a group reader. For each member it
// populates the output variable table and invokes downstream with the
// last-member flag on the terminal member.
type TakeGroup struct {
	index       int
	reader      GroupReader
	keyFields   []int // output field index per group key field
	valueFields []int // output field index per member value field
	output      *record.VariableTable
	downstream  GroupOperator
}

// NewTakeGroup builds a take_group operator.
func NewTakeGroup(index int, reader GroupReader, keyFields, valueFields []int, output *record.VariableTable, downstream GroupOperator) *TakeGroup {
	return &TakeGroup{
		index:       index,
		reader:      reader,
		keyFields:   keyFields,
		valueFields: valueFields,
		output:      output,
		downstream:  downstream,
	}
}

// Kind implements the operator protocol.
func (t *TakeGroup) Kind() Kind { return OpTakeGroup }

// Index implements the operator protocol.
func (t *TakeGroup) Index() int { return t.index }

type takeGroupContext struct {
	contextBase
	reader GroupReader
}

func (c *takeGroupContext) Kind() Kind { return OpTakeGroup }

func (c *takeGroupContext) Release() {
	if c.reader != nil {
		c.reader.Release()
		c.reader = nil
	}
}

// Run drains the reader group by group.
func (t *TakeGroup) Run(tc *TaskContext) error {
	ctx := contextFor(tc, t.index, func() *takeGroupContext { return &takeGroupContext{reader: t.reader} })
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	for {
		if tc.Canceled() {
			ctx.Abort()
			_ = t.downstream.Finish(tc)
			return ErrAborted
		}
		g, ok, err := ctx.reader.NextGroup()
		if err != nil {
			ctx.Abort()
			ctx.Release()
			_ = t.downstream.Finish(tc)
			return err
		}
		if !ok {
			break
		}
		out := t.output.Record()
		for i, dst := range t.keyFields {
			out.Set(dst, g.Key().Get(i))
		}
		for m, member := range g.Members() {
			for i, dst := range t.valueFields {
				out.Set(dst, member.Get(i))
			}
			last := m == g.Size()-1
			if err := t.downstream.ProcessGroup(tc, last); err != nil {
				ctx.Abort()
				ctx.Release()
				_ = t.downstream.Finish(tc)
				return err
			}
		}
	}
	ctx.Release()
	return t.downstream.Finish(tc)
}
