package service

import (
	"bytes"
	stdctx "context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/config"
	"github.com/mstgnz/sqlexec/di"
	"github.com/mstgnz/sqlexec/dump"
	apperr "github.com/mstgnz/sqlexec/err"
	"github.com/mstgnz/sqlexec/kvs"
	"github.com/mstgnz/sqlexec/logger"
	"github.com/mstgnz/sqlexec/memory"
	"github.com/mstgnz/sqlexec/monitoring"
	"github.com/mstgnz/sqlexec/ops"
	"github.com/mstgnz/sqlexec/plan"
	"github.com/mstgnz/sqlexec/record"
	"github.com/mstgnz/sqlexec/scheduler"
)

// Statement is one compiled statement the external planner hands over. At
// most one of the plan fields is set.
type Statement struct {
	Query  *plan.Query
	Insert *plan.Insert
	Update *plan.Update
	Delete *plan.Delete

	// ParameterNames declares the host variables the plan references.
	ParameterNames []string
}

// Engine wires the execution core together: configuration, logging,
// metrics, storage, the worker pool and the executor. One engine serves
// many sessions.
type Engine struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *monitoring.MetricsCollector
	store    *kvs.DB
	pool     *scheduler.Pool
	exec     *plan.Executor
	sessions *SessionManager
	prepared *gocache.Cache
}

// NewEngine boots the engine over an open store. The configuration, logger,
// metrics collector and page pool are registered in a DI container built
// inside the call, and the metrics collector and page pool are resolved from
// it; the container is not exposed, so callers cannot replace single services.
func NewEngine(cfg *config.Config, store *kvs.DB, log *logger.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewLogger(logger.Config{})
	}

	container := di.NewContainer()
	if err := container.Register(cfg); err != nil {
		return nil, err
	}
	if err := container.Register(log); err != nil {
		return nil, err
	}
	if err := container.Register(monitoring.NewMetricsCollector()); err != nil {
		return nil, err
	}
	if err := container.Register(memory.NewPagePool()); err != nil {
		return nil, err
	}

	var metrics *monitoring.MetricsCollector
	if err := container.Resolve(&metrics); err != nil {
		return nil, err
	}
	var pages *memory.PagePool
	if err := container.Resolve(&pages); err != nil {
		return nil, err
	}

	pool := scheduler.NewPool(scheduler.Options{
		Workers:             cfg.ThreadPoolSize,
		StealingEnabled:     cfg.StealingEnabled,
		StealingWait:        cfg.StealingWait,
		TaskPollingWait:     cfg.PollingWait(),
		EnableHybrid:        cfg.EnableHybrid,
		LightweightJobLevel: cfg.LightweightJobLevel,
		BusyWorker:          cfg.BusyWorker,
		WorkerTryCount:      cfg.WorkerTryCount,
		WorkerSuspendTime:   cfg.SuspendTimeout(),
	})
	pool.Start()

	if GetRelay() == nil {
		if err := InitRelay(); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		store:    store,
		pool:     pool,
		exec:     plan.NewExecutor(cfg, pool, pages),
		sessions: NewSessionManager(),
		prepared: gocache.New(30*time.Minute, 10*time.Minute),
	}
	log.Info("engine started", map[string]interface{}{"workers": cfg.ThreadPoolSize})
	return e, nil
}

// Shutdown stops the pool and tears the relay down. The store stays open;
// the owner closes it.
func (e *Engine) Shutdown() {
	e.pool.Stop()
	TeardownRelay()
	e.log.Info("engine stopped", nil)
}

// Sessions exposes the session manager.
func (e *Engine) Sessions() *SessionManager { return e.sessions }

// Metrics exposes the metrics collector.
func (e *Engine) Metrics() *monitoring.MetricsCollector { return e.metrics }

// Store exposes the storage handle.
func (e *Engine) Store() *kvs.DB { return e.store }

// Route dispatches one request. Unknown sessions and commands reply with an
// error code; internal failures map onto the status space.
func (e *Engine) Route(req Request) Response {
	session, err := e.sessions.Get(req.SessionID)
	if err != nil {
		return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte(err.Error())}
	}
	e.metrics.IncrementStatementsStarted()
	defer e.metrics.IncrementStatementsDone()
	switch req.Command {
	case CommandBegin:
		return e.begin(session, req)
	case CommandCommit:
		return e.commit(session)
	case CommandRollback:
		return e.rollback(session)
	case CommandPrepare:
		return e.prepare(req)
	case CommandExecuteStatement, CommandExecuteQuery:
		if req.Statement == nil {
			return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("missing statement")}
		}
		return e.execute(session, req.Statement, req.Parameters)
	case CommandExecutePreparedStatement, CommandExecutePreparedQuery:
		stmt, ok := e.prepared.Get(req.StatementID)
		if !ok {
			return Response{Code: apperr.StatusErrNotFound, Body: []byte("prepared statement expired or unknown")}
		}
		return e.execute(session, stmt.(*Statement), req.Parameters)
	case CommandExplain:
		return e.explain(req)
	case CommandDump:
		return e.dumpCommand(session, req)
	case CommandLoad:
		return e.loadCommand(session, req)
	}
	return Response{Code: apperr.StatusErrUnsupported, Body: []byte("unknown command")}
}

func (e *Engine) begin(session *Session, req Request) Response {
	if session.Transaction() != nil {
		return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("transaction already running")}
	}
	tx, err := e.store.NewTransaction()
	if err != nil {
		return failure(err)
	}
	handle := &Transaction{
		ID:     uuid.NewString(),
		Option: req.Option,
		tx:     tx,
		strand: kvs.NewStrand(tx),
	}
	session.setTransaction(handle)
	return Response{Code: apperr.StatusOK, Body: []byte(handle.ID)}
}

func (e *Engine) commit(session *Session) Response {
	tx := session.Transaction()
	if tx == nil {
		return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("no transaction")}
	}
	session.setTransaction(nil)
	if err := tx.tx.Commit(); err != nil {
		return failure(err)
	}
	return Response{Code: apperr.StatusOK}
}

func (e *Engine) rollback(session *Session) Response {
	tx := session.Transaction()
	if tx == nil {
		return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("no transaction")}
	}
	session.setTransaction(nil)
	if err := tx.tx.Rollback(); err != nil {
		return failure(err)
	}
	return Response{Code: apperr.StatusOK}
}

func (e *Engine) prepare(req Request) Response {
	if req.Statement == nil {
		return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("missing statement")}
	}
	id := uuid.NewString()
	e.prepared.Set(id, req.Statement, gocache.DefaultExpiration)
	return Response{Code: apperr.StatusOK, Body: []byte(id)}
}

// execute runs one statement inside the session's transaction, or
// autocommits a single-statement transaction when none is open.
func (e *Engine) execute(session *Session, stmt *Statement, params []Parameter) Response {
	cancel := session.Context()
	host := bindParameters(stmt, params)

	tx := session.Transaction()
	autocommit := tx == nil
	var target *kvs.Transaction
	if autocommit {
		t, err := e.store.NewTransaction()
		if err != nil {
			return failure(err)
		}
		target = t
	} else {
		if tx.Option.Readonly && stmt.Query == nil {
			return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("write in a readonly transaction")}
		}
		target = tx.tx
	}

	resp := e.dispatchStatement(cancel, target, stmt, host)

	if autocommit {
		if resp.Code == apperr.StatusOK {
			if err := target.Commit(); err != nil {
				return failure(err)
			}
		} else {
			_ = target.Rollback()
		}
	}
	return resp
}

func (e *Engine) dispatchStatement(cancel stdctx.Context, target *kvs.Transaction, stmt *Statement, host *record.VariableTable) Response {
	switch {
	case stmt.Query != nil:
		records, err := e.exec.ExecuteQuery(cancel, target, *stmt.Query, host)
		if err != nil {
			return failure(err)
		}
		return Response{Code: apperr.StatusOK, Body: renderRecords(records)}
	case stmt.Insert != nil:
		n, err := e.exec.ExecuteInsert(cancel, target, *stmt.Insert, host)
		if err != nil {
			return failure(err)
		}
		return Response{Code: apperr.StatusOK, Body: []byte(fmt.Sprintf("inserted %d", n))}
	case stmt.Update != nil:
		n, err := e.exec.ExecuteUpdate(cancel, target, *stmt.Update, host)
		if err != nil {
			return failure(err)
		}
		return Response{Code: apperr.StatusOK, Body: []byte(fmt.Sprintf("updated %d", n))}
	case stmt.Delete != nil:
		n, err := e.exec.ExecuteDelete(cancel, target, *stmt.Delete, host)
		if err != nil {
			return failure(err)
		}
		return Response{Code: apperr.StatusOK, Body: []byte(fmt.Sprintf("deleted %d", n))}
	}
	return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("empty statement")}
}

func (e *Engine) explain(req Request) Response {
	if req.Statement == nil {
		return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("missing statement")}
	}
	var buf bytes.Buffer
	switch {
	case req.Statement.Query != nil:
		q := req.Statement.Query
		fmt.Fprintf(&buf, "process: scan(%s)", q.Table.Name)
		if q.Filter != nil {
			buf.WriteString(" -> filter")
		}
		buf.WriteString(" -> emit\ndeliver\n")
	case req.Statement.Insert != nil:
		fmt.Fprintf(&buf, "process: write(%s)\n", req.Statement.Insert.Table.Name)
	case req.Statement.Update != nil:
		fmt.Fprintf(&buf, "process: scan(%s) -> write_existing(update)\n", req.Statement.Update.Query.Table.Name)
	case req.Statement.Delete != nil:
		fmt.Fprintf(&buf, "process: scan(%s) -> write_existing(delete)\n", req.Statement.Delete.Query.Table.Name)
	default:
		return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("empty statement")}
	}
	return Response{Code: apperr.StatusOK, Body: buf.Bytes()}
}

// dumpCommand executes the query and dumps the result, replying with the
// produced file names, one per line, as the file_name column.
func (e *Engine) dumpCommand(session *Session, req Request) Response {
	if req.Statement == nil || req.Statement.Query == nil {
		return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("dump needs a query statement")}
	}
	resp := e.executeForRecords(session, req.Statement, req.Parameters)
	if resp.err != nil {
		return failure(resp.err)
	}
	files, err := dump.Dump(resp.records, req.Statement.Query.OutputMeta(), dump.Config{
		Directory: req.DumpDirectory,
		Format:    dump.FormatCSV,
	})
	if err != nil {
		return failure(err)
	}
	var buf bytes.Buffer
	for _, f := range files {
		buf.WriteString(f)
		buf.WriteByte('\n')
	}
	return Response{Code: apperr.StatusOK, Body: buf.Bytes()}
}

// loadCommand reads dump files and executes the prepared insert once per
// record, binding parameters named after the statement's declaration order.
func (e *Engine) loadCommand(session *Session, req Request) Response {
	stmtRaw, ok := e.prepared.Get(req.StatementID)
	if !ok {
		return Response{Code: apperr.StatusErrNotFound, Body: []byte("prepared statement expired or unknown")}
	}
	stmt := stmtRaw.(*Statement)
	if stmt.Insert == nil {
		return Response{Code: apperr.StatusErrInvalidArgument, Body: []byte("load needs an insert statement")}
	}
	meta := stmt.Insert.Table.Meta
	if len(req.LoadColumns) > 0 {
		meta = loadMeta(req.LoadColumns)
	}
	loaded := 0
	for _, file := range req.LoadFiles {
		records, err := dump.Load(file, meta)
		if err != nil {
			return failure(err)
		}
		for _, rec := range records {
			params, err := parametersFromRecord(req.Parameters, rec)
			if err != nil {
				return failure(err)
			}
			resp := e.execute(session, stmt, params)
			if resp.Code != apperr.StatusOK {
				return resp
			}
			loaded++
		}
	}
	return Response{Code: apperr.StatusOK, Body: []byte(fmt.Sprintf("loaded %d", loaded))}
}

type recordsResult struct {
	records []*record.Record
	err     error
}

func (e *Engine) executeForRecords(session *Session, stmt *Statement, params []Parameter) recordsResult {
	cancel := session.Context()
	host := bindParameters(stmt, params)
	tx := session.Transaction()
	autocommit := tx == nil
	var target *kvs.Transaction
	if autocommit {
		t, err := e.store.NewTransaction()
		if err != nil {
			return recordsResult{err: err}
		}
		target = t
		defer func() { _ = target.Rollback() }()
	} else {
		target = tx.tx
	}
	records, err := e.exec.ExecuteQuery(cancel, target, *stmt.Query, host)
	return recordsResult{records: records, err: err}
}

// bindParameters builds the host variable table of a statement execution.
func bindParameters(stmt *Statement, params []Parameter) *record.VariableTable {
	if len(params) == 0 {
		return nil
	}
	names := make([]record.Variable, len(params))
	values := make([]sqlexec.Value, len(params))
	for i, p := range params {
		name := p.Name
		if name == "" && i < len(stmt.ParameterNames) {
			name = stmt.ParameterNames[i]
		}
		names[i] = record.Variable(name)
		values[i] = p.Value()
	}
	return plan.Parameters(names, values)
}

// loadMeta derives the dump file layout from the declared column kinds.
func loadMeta(columns []ParameterKind) *record.Meta {
	types := make([]sqlexec.Type, len(columns))
	for i, k := range columns {
		types[i] = sqlexec.SimpleType(Parameter{Kind: k}.Value().Kind())
	}
	return record.NewMeta(types...)
}

// parametersFromRecord rebinds the load parameters from one dump record.
// Literal parameters keep their value; column references take the record's
// field.
func parametersFromRecord(declared []Parameter, rec *record.Record) ([]Parameter, error) {
	out := make([]Parameter, len(declared))
	copy(out, declared)
	for i := range out {
		if out[i].Reference < 0 {
			continue
		}
		if out[i].Reference >= rec.Meta().FieldCount() {
			return nil, errors.Errorf("load parameter %s references column %d outside the dump layout", out[i].Name, out[i].Reference)
		}
		out[i] = parameterFromValue(out[i].Name, rec.Get(out[i].Reference))
	}
	return out, nil
}

func parameterFromValue(name string, v sqlexec.Value) Parameter {
	p := Parameter{Name: name, Kind: ParameterNull, Reference: -1}
	if v.Empty() {
		return p
	}
	switch v.Kind() {
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		p.Kind = ParameterInt4
		p.Int = int64(v.Int4())
	case sqlexec.TypeInt8:
		p.Kind = ParameterInt8
		p.Int = v.Int8()
	case sqlexec.TypeFloat4:
		p.Kind = ParameterFloat4
		p.Float = float64(v.Float4())
	case sqlexec.TypeFloat8:
		p.Kind = ParameterFloat8
		p.Float = v.Float8()
	case sqlexec.TypeCharacter:
		p.Kind = ParameterCharacter
		p.Text = v.Character()
	case sqlexec.TypeDecimal:
		p.Kind = ParameterDecimal
		p.Decimal = v.Decimal()
	case sqlexec.TypeDate:
		p.Kind = ParameterDate
		p.Int = int64(v.Date())
	case sqlexec.TypeTimeOfDay:
		p.Kind = ParameterTimeOfDay
		p.Int = int64(v.TimeOfDay())
	case sqlexec.TypeTimePoint:
		p.Kind = ParameterTimePoint
		p.TimePoint = v.TimePoint()
	}
	return p
}

// renderRecords serializes result rows as tab separated text, one row per
// line. The real wire encoding belongs to the external transport.
func renderRecords(records []*record.Record) []byte {
	var buf bytes.Buffer
	for _, rec := range records {
		for i := 0; i < rec.Meta().FieldCount(); i++ {
			if i > 0 {
				buf.WriteByte('\t')
			}
			buf.WriteString(rec.Get(i).String())
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// failure maps an error onto the status space.
func failure(e error) Response {
	code := apperr.StatusErrIOError
	switch {
	case errors.Is(e, stdctx.Canceled), errors.Is(e, ops.ErrAborted):
		code = apperr.StatusErrAborted
	}
	var engineErr *apperr.EngineError
	if errors.As(e, &engineErr) {
		code = engineErr.Status
	}
	return Response{Code: code, Body: []byte(e.Error())}
}
