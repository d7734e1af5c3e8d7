// Package ops implements the relational operators forming the chain inside
// one process step: scan, find, filter, emit, offer, take_flat, take_group,
// take_cogroup, aggregate_group and the write operators. Operators share a
// task context from which each lazily obtains its own per-task operator
// context, located by operator index.
package ops

import (
	stdctx "context"

	"github.com/pkg/errors"

	"github.com/mstgnz/sqlexec/expr"
	"github.com/mstgnz/sqlexec/memory"
	"github.com/mstgnz/sqlexec/record"
)

// Kind tags each operator; context objects mirror the tag so the container
// can verify it hands back the right context.
type Kind int

const (
	OpScan Kind = iota
	OpFind
	OpFilter
	OpEmit
	OpOffer
	OpTakeFlat
	OpTakeGroup
	OpTakeCogroup
	OpAggregateGroup
	OpWriteExisting
	OpWritePartial
)

// String names the kind for logs.
func (k Kind) String() string {
	switch k {
	case OpScan:
		return "scan"
	case OpFind:
		return "find"
	case OpFilter:
		return "filter"
	case OpEmit:
		return "emit"
	case OpOffer:
		return "offer"
	case OpTakeFlat:
		return "take_flat"
	case OpTakeGroup:
		return "take_group"
	case OpTakeCogroup:
		return "take_cogroup"
	case OpAggregateGroup:
		return "aggregate_group"
	case OpWriteExisting:
		return "write_existing"
	case OpWritePartial:
		return "write_partial"
	}
	return "unknown"
}

// State is the lifecycle state of an operator context.
type State int

const (
	StateActive State = iota
	StateAbort
)

// ErrYield is returned by a source operator when its cooperative yield
// threshold is reached; the scheduler reschedules the task.
var ErrYield = errors.New("task yielded")

// ErrAborted is returned when the task observed cancellation or a failed
// downstream and aborted its contexts.
var ErrAborted = errors.New("task aborted")

// Context is the per-task mutable state of one operator.
type Context interface {
	// Kind mirrors the owning operator's kind.
	Kind() Kind
	// State reports active or abort.
	State() State
	// Abort transitions the context to the abort state.
	Abort()
	// Release frees held resources (iterators, writers). Idempotent.
	Release()
}

// contextBase carries the state shared by every operator context.
type contextBase struct {
	state State
}

func (c *contextBase) State() State { return c.state }
func (c *contextBase) Abort()       { c.state = StateAbort }

// ContextContainer locates operator contexts by operator index.
type ContextContainer struct {
	slots []Context
}

// NewContextContainer sizes the container for the operator chain.
func NewContextContainer(operators int) *ContextContainer {
	return &ContextContainer{slots: make([]Context, operators)}
}

// At returns the context at the operator index, nil before first use.
func (c *ContextContainer) At(index int) Context {
	if index < 0 || index >= len(c.slots) {
		return nil
	}
	return c.slots[index]
}

// Put stores a context at the operator index.
func (c *ContextContainer) Put(index int, ctx Context) {
	c.slots[index] = ctx
}

// ReleaseAll releases every created context.
func (c *ContextContainer) ReleaseAll() {
	for _, ctx := range c.slots {
		if ctx != nil {
			ctx.Release()
		}
	}
}

// TaskContext is handed to every operator invocation of one task. It owns
// the context container, the two allocator strands and the evaluator
// context, and carries the request's cancel source.
type TaskContext struct {
	Contexts *ContextContainer
	Scratch  *memory.LifoResource
	Varlen   *memory.LifoResource
	EvalCtx  *expr.Context
	Cancel   stdctx.Context
}

// NewTaskContext builds a task context over the given allocator pool.
func NewTaskContext(cancel stdctx.Context, operators int, pool *memory.PagePool, policy expr.LossPolicy) *TaskContext {
	scratch := memory.NewLifoResource(pool)
	return &TaskContext{
		Contexts: NewContextContainer(operators),
		Scratch:  scratch,
		Varlen:   memory.NewLifoResource(pool),
		EvalCtx:  expr.NewContext(policy, scratch),
		Cancel:   cancel,
	}
}

// Canceled polls the request's cancel source.
func (tc *TaskContext) Canceled() bool {
	if tc.Cancel == nil {
		return false
	}
	select {
	case <-tc.Cancel.Done():
		return true
	default:
		return false
	}
}

// Release frees the allocators and every operator context.
func (tc *TaskContext) Release() {
	tc.Contexts.ReleaseAll()
	tc.Scratch.End()
	tc.Varlen.End()
}

// contextFor returns the operator's context, creating it on first use.
func contextFor[T Context](tc *TaskContext, index int, create func() T) T {
	if existing := tc.Contexts.At(index); existing != nil {
		return existing.(T)
	}
	ctx := create()
	tc.Contexts.Put(index, ctx)
	return ctx
}

// RecordOperator advances by one input record.
type RecordOperator interface {
	// Kind tags the operator.
	Kind() Kind
	// Index is the position inside the process step's operator chain.
	Index() int
	// ProcessRecord consumes the current variable table state.
	ProcessRecord(tc *TaskContext) error
	// Finish drains terminal state and cascades downstream.
	Finish(tc *TaskContext) error
}

// GroupOperator advances by one member of the current group; last marks the
// terminal member.
type GroupOperator interface {
	Kind() Kind
	Index() int
	ProcessGroup(tc *TaskContext, last bool) error
	Finish(tc *TaskContext) error
}

// CogroupOperator consumes one cogroup at a time.
type CogroupOperator interface {
	Kind() Kind
	Index() int
	ProcessCogroup(tc *TaskContext, cg record.Cogroup) error
	Finish(tc *TaskContext) error
}

// RecordReader feeds take_flat from an upstream exchange.
type RecordReader interface {
	// NextRecord returns the next record, or ok=false at end of input.
	NextRecord() (*record.Record, bool, error)
	// Release frees reader resources.
	Release()
}

// GroupReader feeds take_group and take_cogroup with key-ordered groups.
type GroupReader interface {
	// NextGroup returns the next group in key order, or ok=false at end.
	NextGroup() (record.Group, bool, error)
	// Release frees reader resources.
	Release()
}

// RecordWriter receives emitted result records.
type RecordWriter interface {
	Write(rec *record.Record) error
	Flush() error
	Release() error
}
