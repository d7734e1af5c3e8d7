package plan

import (
	stdctx "context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/mstgnz/sqlexec/config"
	"github.com/mstgnz/sqlexec/dag"
	"github.com/mstgnz/sqlexec/expr"
	"github.com/mstgnz/sqlexec/kvs"
	"github.com/mstgnz/sqlexec/memory"
	"github.com/mstgnz/sqlexec/ops"
	"github.com/mstgnz/sqlexec/record"
	"github.com/mstgnz/sqlexec/scheduler"
)

// Executor runs compiled plans against a storage handle. It owns nothing
// but references: the pool, the page pool and the configuration belong to
// the engine.
type Executor struct {
	cfg  *config.Config
	pool *scheduler.Pool
	mem  *memory.PagePool
}

// NewExecutor builds an executor.
func NewExecutor(cfg *config.Config, pool *scheduler.Pool, mem *memory.PagePool) *Executor {
	return &Executor{cfg: cfg, pool: pool, mem: mem}
}

// collectWriter gathers emitted records; it is the deliver step's writer.
type collectWriter struct {
	mu      sync.Mutex
	records []*record.Record
}

func (w *collectWriter) Write(rec *record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec.Clone())
	return nil
}

func (w *collectWriter) Flush() error   { return nil }
func (w *collectWriter) Release() error { return nil }

// processBody is the dag body of a process step: it creates one task per
// prepared run function.
type processBody struct {
	kind  dag.StepKind
	tasks []func() error
}

func (b *processBody) Kind() dag.StepKind { return b.kind }
func (b *processBody) Activate() error    { return nil }
func (b *processBody) Deactivate() error  { return nil }
func (b *processBody) CreateTasks() ([]func() error, error) {
	return b.tasks, nil
}

// seedEvalContext seeds the evaluator context with the engine toggles.
func (e *Executor) seedEvalContext(tc *ops.TaskContext) {
	tc.EvalCtx.SupportSmallint = e.cfg.SupportSmallint
	tc.EvalCtx.SupportBoolean = e.cfg.SupportBoolean
	tc.EvalCtx.EnableBlobCast = e.cfg.EnableBlobCast
}

// ExecuteQuery runs a query plan and returns the emitted records. Results
// within one scan task arrive in key order; across parallel tasks the order
// is unspecified.
func (e *Executor) ExecuteQuery(cancel stdctx.Context, source ops.ScanSource, q Query, params *record.VariableTable) ([]*record.Record, error) {
	writer := &collectWriter{}
	outMeta := q.OutputMeta()
	variables := tableVariables(q.Table)
	output := record.NewVariableTable(q.Table.Meta, variables)

	var chain ops.RecordOperator = ops.NewEmit(2, q.projection(), outMeta, output, writer)
	if q.Filter != nil {
		chain = ops.NewFilter(1, expr.NewEvaluator(q.Filter, params), output, chain)
	}
	scan := ops.NewScan(0, q.Table, source, q.Bounds, output, chain, e.cfg.ScanBlockSize, e.cfg.ScanYield())

	tc := ops.NewTaskContext(cancel, 3, e.mem, expr.LossError)
	e.seedEvalContext(tc)
	defer tc.Release()

	task := func() error { return scan.Run(tc) }

	if err := e.runGraph(cancel, task); err != nil {
		return nil, err
	}
	return writer.records, nil
}

// ExecuteInsert evaluates each row expression list and stores the records.
func (e *Executor) ExecuteInsert(cancel stdctx.Context, target ops.WriteTarget, ins Insert, params *record.VariableTable) (int, error) {
	tc := ops.NewTaskContext(cancel, 0, e.mem, expr.LossError)
	e.seedEvalContext(tc)
	defer tc.Release()
	written := 0
	for _, row := range ins.Rows {
		if len(row) != ins.Table.Meta.FieldCount() {
			return written, errors.Errorf("insert row has %d expressions, table has %d fields", len(row), ins.Table.Meta.FieldCount())
		}
		rec := record.NewRecord(ins.Table.Meta)
		for i, node := range row {
			ev := expr.NewEvaluator(node, params)
			cp := tc.Scratch.Save()
			v := ev.Eval(tc.EvalCtx, nil)
			if v.Error() {
				tc.Scratch.Rewind(cp)
				return written, errors.Errorf("insert expression failed: %s", v.ErrorKind())
			}
			if v.Valid() {
				v = expr.CastTo(tc.EvalCtx, v, ins.Table.Meta.Type(i))
				if v.Error() {
					tc.Scratch.Rewind(cp)
					return written, errors.Errorf("insert value conversion failed: %s", v.ErrorKind())
				}
			}
			rec.Set(i, v)
			tc.Scratch.Rewind(cp)
		}
		if err := kvs.PutRecord(target, ins.Table, rec); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// writeSource is the read+write surface updates and deletes need.
type writeSource interface {
	ops.ScanSource
	ops.WriteTarget
}

// ExecuteUpdate rewrites the matched rows through write_existing semantics.
func (e *Executor) ExecuteUpdate(cancel stdctx.Context, target writeSource, upd Update, params *record.VariableTable) (int, error) {
	matched, err := e.ExecuteQuery(cancel, target, Query{Table: upd.Query.Table, Bounds: upd.Query.Bounds, Filter: upd.Query.Filter}, params)
	if err != nil {
		return 0, err
	}
	tc := ops.NewTaskContext(cancel, 1, e.mem, expr.LossError)
	e.seedEvalContext(tc)
	defer tc.Release()
	variables := tableVariables(upd.Query.Table)
	input := record.NewVariableTable(upd.Query.Table.Meta, variables)
	writer := ops.NewWriteExisting(0, ops.WriteUpdate, upd.Query.Table, target, input)
	for _, old := range matched {
		row := input.Record()
		row.CopyFrom(old)
		for field, node := range upd.Set {
			ev := expr.NewEvaluator(node, params)
			cp := tc.Scratch.Save()
			v := ev.Eval(tc.EvalCtx, input)
			if v.Error() {
				tc.Scratch.Rewind(cp)
				return 0, errors.Errorf("update expression failed: %s", v.ErrorKind())
			}
			if v.Valid() {
				v = expr.CastTo(tc.EvalCtx, v, upd.Query.Table.Meta.Type(field))
				if v.Error() {
					tc.Scratch.Rewind(cp)
					return 0, errors.Errorf("update value conversion failed: %s", v.ErrorKind())
				}
			}
			row.Set(field, v)
			tc.Scratch.Rewind(cp)
		}
		if err := writer.ProcessRecord(tc); err != nil {
			return 0, err
		}
	}
	if err := writer.Finish(tc); err != nil {
		return 0, err
	}
	return len(matched), nil
}

// ExecuteDelete removes the matched rows.
func (e *Executor) ExecuteDelete(cancel stdctx.Context, target writeSource, del Delete, params *record.VariableTable) (int, error) {
	matched, err := e.ExecuteQuery(cancel, target, Query{Table: del.Query.Table, Bounds: del.Query.Bounds, Filter: del.Query.Filter}, params)
	if err != nil {
		return 0, err
	}
	tc := ops.NewTaskContext(cancel, 1, e.mem, expr.LossError)
	e.seedEvalContext(tc)
	defer tc.Release()
	variables := tableVariables(del.Query.Table)
	input := record.NewVariableTable(del.Query.Table.Meta, variables)
	writer := ops.NewWriteExisting(0, ops.WriteDelete, del.Query.Table, target, input)
	for _, old := range matched {
		input.Record().CopyFrom(old)
		if err := writer.ProcessRecord(tc); err != nil {
			return 0, err
		}
	}
	if err := writer.Finish(tc); err != nil {
		return 0, err
	}
	return len(matched), nil
}

// runGraph wraps the prepared task functions in a two-step graph (process
// into deliver), drives the step lifecycle and blocks until completion.
func (e *Executor) runGraph(cancel stdctx.Context, tasks ...func() error) error {
	g := dag.NewGraph()
	process := g.Insert(&processBody{kind: dag.StepProcess, tasks: tasks})
	deliver := g.Insert(&processBody{kind: dag.StepDeliver})
	if err := g.Connect(process.ID(), deliver.ID()); err != nil {
		return err
	}
	order, err := g.RunOrder()
	if err != nil {
		return err
	}
	var ids []uint64
	for _, id := range order {
		if err := g.Activate(id); err != nil {
			return err
		}
		runnable, err := g.CreateTasks(id)
		if err != nil {
			return err
		}
		for _, run := range runnable {
			run := run
			ids = append(ids, e.pool.Submit(scheduler.Task{
				Name: "plan-task",
				Run: func() scheduler.Result {
					switch err := run(); {
					case err == nil:
						return scheduler.Result{Status: scheduler.StatusCompleted}
					case errors.Is(err, ops.ErrYield):
						return scheduler.Result{Status: scheduler.StatusYielded}
					case errors.Is(err, ops.ErrAborted):
						return scheduler.Result{Status: scheduler.StatusAborted, Err: err}
					default:
						return scheduler.Result{Status: scheduler.StatusFailed, Err: err}
					}
				},
			}))
		}
	}
	var failure error
	for _, id := range ids {
		switch r := e.pool.WaitFor(id); r.Status {
		case scheduler.StatusFailed:
			failure = r.Err
		case scheduler.StatusAborted:
			if failure == nil {
				failure = r.Err
			}
		}
	}
	for _, id := range order {
		if err := g.Deactivate(id); err != nil && failure == nil {
			failure = err
		}
	}
	if failure == nil && cancel != nil && cancel.Err() != nil {
		failure = ops.ErrAborted
	}
	return failure
}

// tableVariables names each table column as a plan variable C0..Cn.
func tableVariables(spec kvs.TableSpec) []record.Variable {
	out := make([]record.Variable, spec.Meta.FieldCount())
	for i := range out {
		name := spec.Meta.Field(i).Name
		if name == "" {
			name = "C" + strconv.Itoa(i)
		}
		out[i] = record.Variable(name)
	}
	return out
}

var _ dag.Body = (*processBody)(nil)
