package ops

import (
	"github.com/pkg/errors"

	"github.com/mstgnz/sqlexec/expr"
	"github.com/mstgnz/sqlexec/record"
)

// Filter evaluates a boolean predicate per record and forwards matching
// records downstream. An evaluator error aborts the task.
type Filter struct {
	index      int
	predicate  *expr.Evaluator
	input      *record.VariableTable
	downstream RecordOperator
}

// NewFilter builds a filter operator.
func NewFilter(index int, predicate *expr.Evaluator, input *record.VariableTable, downstream RecordOperator) *Filter {
	return &Filter{index: index, predicate: predicate, input: input, downstream: downstream}
}

// Kind implements RecordOperator.
func (f *Filter) Kind() Kind { return OpFilter }

// Index implements RecordOperator.
func (f *Filter) Index() int { return f.index }

type filterContext struct {
	contextBase
}

func (c *filterContext) Kind() Kind { return OpFilter }
func (c *filterContext) Release()   {}

// ProcessRecord implements RecordOperator.
func (f *Filter) ProcessRecord(tc *TaskContext) error {
	ctx := contextFor(tc, f.index, func() *filterContext { return &filterContext{} })
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	v := f.predicate.EvalBool(tc.EvalCtx, f.input)
	if v.Error() {
		ctx.Abort()
		return errors.Errorf("predicate evaluation failed: %s", v.ErrorKind())
	}
	if !v.Bool() {
		return nil
	}
	return f.downstream.ProcessRecord(tc)
}

// Finish implements RecordOperator.
func (f *Filter) Finish(tc *TaskContext) error {
	return f.downstream.Finish(tc)
}
