package ops

import (
	"github.com/pkg/errors"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/aggregate"
	"github.com/mstgnz/sqlexec/record"
)

// AggregateSpec wires one aggregate call: the registry definition id, the
// input fields feeding the argument stores and the output field receiving
// the result.
type AggregateSpec struct {
	DefinitionID int64
	SourceFields []int
	TargetField  int
}

// AggregateGroup accumulates each member's argument values into per-function
// value stores; on the terminal member it runs every aggregator into the
// output variable table and calls downstream once. When the whole input was
// empty and the operator aggregates globally, Finish emits the empty values
// instead.
type AggregateGroup struct {
	index      int
	specs      []AggregateSpec
	input      *record.VariableTable
	output     *record.VariableTable
	global     bool // emit empty values when no group was seen at all
	downstream RecordOperator
}

// NewAggregateGroup builds an aggregate_group operator. global selects the
// empty-input behavior of aggregation without group keys.
func NewAggregateGroup(index int, specs []AggregateSpec, input, output *record.VariableTable, global bool, downstream RecordOperator) *AggregateGroup {
	return &AggregateGroup{
		index:      index,
		specs:      specs,
		input:      input,
		output:     output,
		global:     global,
		downstream: downstream,
	}
}

// Kind implements the operator protocol.
func (a *AggregateGroup) Kind() Kind { return OpAggregateGroup }

// Index implements the operator protocol.
func (a *AggregateGroup) Index() int { return a.index }

type aggregateGroupContext struct {
	contextBase
	stores   [][][]sqlexec.Value // per spec, per argument, per member
	anyGroup bool
}

func (c *aggregateGroupContext) Kind() Kind { return OpAggregateGroup }
func (c *aggregateGroupContext) Release()   {}

func (a *AggregateGroup) contextOf(tc *TaskContext) *aggregateGroupContext {
	return contextFor(tc, a.index, func() *aggregateGroupContext {
		ctx := &aggregateGroupContext{stores: make([][][]sqlexec.Value, len(a.specs))}
		for i, spec := range a.specs {
			ctx.stores[i] = make([][]sqlexec.Value, len(spec.SourceFields))
		}
		return ctx
	})
}

// ProcessGroup implements GroupOperator.
func (a *AggregateGroup) ProcessGroup(tc *TaskContext, last bool) error {
	ctx := a.contextOf(tc)
	if ctx.State() == StateAbort {
		return ErrAborted
	}
	ctx.anyGroup = true
	in := a.input.Record()
	for i, spec := range a.specs {
		for j, src := range spec.SourceFields {
			ctx.stores[i][j] = append(ctx.stores[i][j], in.Get(src))
		}
	}
	if !last {
		return nil
	}
	out := a.output.Record()
	for i, spec := range a.specs {
		fn, ok := aggregate.Lookup(spec.DefinitionID)
		if !ok {
			ctx.Abort()
			return errors.Errorf("aggregate function %d is not registered", spec.DefinitionID)
		}
		v := fn.Aggregate(tc.EvalCtx, ctx.stores[i])
		if v.Error() {
			ctx.Abort()
			return errors.Errorf("aggregate %s failed: %s", fn.Name, v.ErrorKind())
		}
		out.Set(spec.TargetField, v)
	}
	for i := range ctx.stores {
		for j := range ctx.stores[i] {
			ctx.stores[i][j] = ctx.stores[i][j][:0]
		}
	}
	return a.downstream.ProcessRecord(tc)
}

// Finish emits the empty-value row for global aggregation over an empty
// input, then cascades downstream.
func (a *AggregateGroup) Finish(tc *TaskContext) error {
	ctx := a.contextOf(tc)
	if ctx.State() != StateAbort && a.global && !ctx.anyGroup {
		out := a.output.Record()
		for _, spec := range a.specs {
			fn, ok := aggregate.Lookup(spec.DefinitionID)
			if !ok {
				ctx.Abort()
				return errors.Errorf("aggregate function %d is not registered", spec.DefinitionID)
			}
			out.Set(spec.TargetField, fn.EmptyValue())
		}
		if err := a.downstream.ProcessRecord(tc); err != nil {
			ctx.Abort()
			return err
		}
	}
	return a.downstream.Finish(tc)
}
