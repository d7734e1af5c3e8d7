package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/config"
	apperr "github.com/mstgnz/sqlexec/err"
	"github.com/mstgnz/sqlexec/expr"
	"github.com/mstgnz/sqlexec/kvs"
	"github.com/mstgnz/sqlexec/logger"
	"github.com/mstgnz/sqlexec/plan"
	"github.com/mstgnz/sqlexec/record"
)

func testEngine(t *testing.T) (*Engine, *Session) {
	t.Helper()
	store, err := kvs.OpenMemory()
	require.NoError(t, err)
	engine, err := NewEngine(config.Default(), store, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		engine.Shutdown()
		_ = store.Close()
	})
	return engine, engine.Sessions().Create()
}

func tableT() kvs.TableSpec {
	return kvs.TableSpec{
		Name: "T",
		Meta: record.NewNamedMeta(
			[]string{"C0", "C1"},
			[]sqlexec.Type{sqlexec.SimpleType(sqlexec.TypeInt4), sqlexec.SimpleType(sqlexec.TypeFloat8)},
		),
		PrimaryKey: []int{0},
	}
}

func litNode(v sqlexec.Value) expr.Node { return expr.Immediate{Value: v} }

func insertRows(t *testing.T, engine *Engine, session *Session, spec kvs.TableSpec, rows [][2]float64) {
	t.Helper()
	ins := &plan.Insert{Table: spec}
	for _, r := range rows {
		ins.Rows = append(ins.Rows, []expr.Node{
			litNode(sqlexec.Int4Value(int32(r[0]))),
			litNode(sqlexec.Float8Value(r[1])),
		})
	}
	resp := engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteStatement,
		Statement: &Statement{Insert: ins},
	})
	require.Equal(t, apperr.StatusOK, resp.Code, string(resp.Body))
}

func TestScanFilterEmitScenario(t *testing.T) {
	engine, session := testEngine(t)
	spec := tableT()
	insertRows(t, engine, session, spec, [][2]float64{{1, 10}, {2, 20}, {3, 30}})

	// SELECT * FROM T WHERE C1 >= 20.0
	query := &plan.Query{
		Table: spec,
		Filter: expr.Compare{
			Op:    expr.CompareGreaterEqual,
			Left:  expr.VariableReference{Name: "C1"},
			Right: litNode(sqlexec.Float8Value(20.0)),
		},
	}
	resp := engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteQuery,
		Statement: &Statement{Query: query},
	})
	require.Equal(t, apperr.StatusOK, resp.Code, string(resp.Body))

	lines := strings.Split(strings.TrimSpace(string(resp.Body)), "\n")
	assert.ElementsMatch(t, []string{"2\t20", "3\t30"}, lines)
}

func TestTransactionLifecycle(t *testing.T) {
	engine, session := testEngine(t)
	spec := tableT()

	resp := engine.Route(Request{SessionID: session.ID, Command: CommandBegin})
	require.Equal(t, apperr.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Body)

	// a second begin on the same session is rejected
	resp = engine.Route(Request{SessionID: session.ID, Command: CommandBegin})
	assert.Equal(t, apperr.StatusErrInvalidArgument, resp.Code)

	insertRows(t, engine, session, spec, [][2]float64{{1, 1}})

	resp = engine.Route(Request{SessionID: session.ID, Command: CommandCommit})
	require.Equal(t, apperr.StatusOK, resp.Code)

	// the row is visible after commit
	resp = engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteQuery,
		Statement: &Statement{Query: &plan.Query{Table: spec}},
	})
	require.Equal(t, apperr.StatusOK, resp.Code)
	assert.Equal(t, "1\t1", strings.TrimSpace(string(resp.Body)))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	engine, session := testEngine(t)
	spec := tableT()

	resp := engine.Route(Request{SessionID: session.ID, Command: CommandBegin})
	require.Equal(t, apperr.StatusOK, resp.Code)
	insertRows(t, engine, session, spec, [][2]float64{{1, 1}})
	resp = engine.Route(Request{SessionID: session.ID, Command: CommandRollback})
	require.Equal(t, apperr.StatusOK, resp.Code)

	resp = engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteQuery,
		Statement: &Statement{Query: &plan.Query{Table: spec}},
	})
	require.Equal(t, apperr.StatusOK, resp.Code)
	assert.Empty(t, strings.TrimSpace(string(resp.Body)))
}

func TestReadonlyTransactionRejectsWrites(t *testing.T) {
	engine, session := testEngine(t)
	spec := tableT()

	resp := engine.Route(Request{SessionID: session.ID, Command: CommandBegin, Option: TransactionOption{Readonly: true}})
	require.Equal(t, apperr.StatusOK, resp.Code)

	resp = engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteStatement,
		Statement: &Statement{Insert: &plan.Insert{Table: spec, Rows: [][]expr.Node{{
			litNode(sqlexec.Int4Value(1)), litNode(sqlexec.Float8Value(1)),
		}}}},
	})
	assert.Equal(t, apperr.StatusErrInvalidArgument, resp.Code)
}

func TestPreparedStatements(t *testing.T) {
	engine, session := testEngine(t)
	spec := tableT()

	ins := &plan.Insert{Table: spec, Rows: [][]expr.Node{{
		expr.VariableReference{Name: "p0"},
		expr.VariableReference{Name: "p1"},
	}}}
	resp := engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandPrepare,
		Statement: &Statement{Insert: ins, ParameterNames: []string{"p0", "p1"}},
	})
	require.Equal(t, apperr.StatusOK, resp.Code)
	stmtID := string(resp.Body)

	resp = engine.Route(Request{
		SessionID:   session.ID,
		Command:     CommandExecutePreparedStatement,
		StatementID: stmtID,
		Parameters: []Parameter{
			{Name: "p0", Kind: ParameterInt4, Int: 7, Reference: -1},
			{Name: "p1", Kind: ParameterFloat8, Float: 7.5, Reference: -1},
		},
	})
	require.Equal(t, apperr.StatusOK, resp.Code, string(resp.Body))

	resp = engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteQuery,
		Statement: &Statement{Query: &plan.Query{Table: spec}},
	})
	assert.Equal(t, "7\t7.5", strings.TrimSpace(string(resp.Body)))

	// unknown prepared statement ids are reported
	resp = engine.Route(Request{SessionID: session.ID, Command: CommandExecutePreparedStatement, StatementID: "nope"})
	assert.Equal(t, apperr.StatusErrNotFound, resp.Code)
}

func TestDumpLoadRoundTripScenario(t *testing.T) {
	engine, session := testEngine(t)
	spec := tableT()
	insertRows(t, engine, session, spec, [][2]float64{{1, 10}, {2, 20}, {3, 30}})

	// dump T as files
	dir := t.TempDir()
	resp := engine.Route(Request{
		SessionID:     session.ID,
		Command:       CommandDump,
		Statement:     &Statement{Query: &plan.Query{Table: spec}},
		DumpDirectory: dir,
	})
	require.Equal(t, apperr.StatusOK, resp.Code, string(resp.Body))
	files := strings.Fields(strings.TrimSpace(string(resp.Body)))
	require.NotEmpty(t, files)

	// prepare INSERT INTO T(C0, C1) VALUES(:p0, :p1)
	ins := &plan.Insert{Table: spec, Rows: [][]expr.Node{{
		expr.VariableReference{Name: "p0"},
		expr.VariableReference{Name: "p1"},
	}}}
	resp = engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandPrepare,
		Statement: &Statement{Insert: ins, ParameterNames: []string{"p0", "p1"}},
	})
	require.Equal(t, apperr.StatusOK, resp.Code)
	stmtID := string(resp.Body)

	// load binding p0 from column C0 and p1 to the constant 1.0
	resp = engine.Route(Request{
		SessionID:   session.ID,
		Command:     CommandLoad,
		StatementID: stmtID,
		LoadFiles:   files,
		LoadColumns: []ParameterKind{ParameterInt4, ParameterFloat8},
		Parameters: []Parameter{
			ColumnReference("p0", 0),
			{Name: "p1", Kind: ParameterFloat8, Float: 1.0, Reference: -1},
		},
	})
	require.Equal(t, apperr.StatusOK, resp.Code, string(resp.Body))

	resp = engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteQuery,
		Statement: &Statement{Query: &plan.Query{Table: spec}},
	})
	lines := strings.Split(strings.TrimSpace(string(resp.Body)), "\n")
	assert.ElementsMatch(t, []string{"1\t1", "2\t1", "3\t1"}, lines)
}

func TestUpdateAndDeleteStatements(t *testing.T) {
	engine, session := testEngine(t)
	spec := tableT()
	insertRows(t, engine, session, spec, [][2]float64{{1, 10}, {2, 20}})

	resp := engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteStatement,
		Statement: &Statement{Update: &plan.Update{
			Query: plan.Query{Table: spec, Filter: expr.Compare{
				Op:    expr.CompareEqual,
				Left:  expr.VariableReference{Name: "C0"},
				Right: litNode(sqlexec.Int4Value(1)),
			}},
			Set: map[int]expr.Node{1: litNode(sqlexec.Float8Value(99))},
		}},
	})
	require.Equal(t, apperr.StatusOK, resp.Code, string(resp.Body))

	resp = engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteStatement,
		Statement: &Statement{Delete: &plan.Delete{
			Query: plan.Query{Table: spec, Filter: expr.Compare{
				Op:    expr.CompareEqual,
				Left:  expr.VariableReference{Name: "C0"},
				Right: litNode(sqlexec.Int4Value(2)),
			}},
		}},
	})
	require.Equal(t, apperr.StatusOK, resp.Code, string(resp.Body))

	resp = engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExecuteQuery,
		Statement: &Statement{Query: &plan.Query{Table: spec}},
	})
	assert.Equal(t, "1\t99", strings.TrimSpace(string(resp.Body)))
}

func TestExplain(t *testing.T) {
	engine, session := testEngine(t)
	spec := tableT()
	resp := engine.Route(Request{
		SessionID: session.ID,
		Command:   CommandExplain,
		Statement: &Statement{Query: &plan.Query{Table: spec, Filter: litNode(sqlexec.BooleanValue(true))}},
	})
	require.Equal(t, apperr.StatusOK, resp.Code)
	assert.Contains(t, string(resp.Body), "scan(T)")
	assert.Contains(t, string(resp.Body), "filter")
}

func TestUnknownSessionAndCommand(t *testing.T) {
	engine, session := testEngine(t)

	resp := engine.Route(Request{SessionID: "missing", Command: CommandBegin})
	assert.Equal(t, apperr.StatusErrInvalidArgument, resp.Code)

	resp = engine.Route(Request{SessionID: session.ID, Command: Command("bogus")})
	assert.Equal(t, apperr.StatusErrUnsupported, resp.Code)
}

func TestRelaySingleton(t *testing.T) {
	// the engine fixture has initialized the relay already
	_, _ = testEngine(t)
	r := GetRelay()
	require.NotNil(t, r)

	id, err := r.Register("/tmp/lob-file")
	require.NoError(t, err)
	path, err := r.PathByID(id)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/lob-file", path)

	_, err = r.PathByID(9999)
	assert.Error(t, err)
	_, err = r.Register("")
	assert.Error(t, err)

	// a second initialization is refused while installed
	assert.Error(t, InitRelay())
}
