// Package service is the request/response boundary of the engine: a
// per-session router dispatching the transaction and statement commands to
// the executor. The RPC transport and its framing live outside; this
// package sees decoded requests and produces replies.
package service

import (
	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/decimal"
	"github.com/mstgnz/sqlexec/err"
)

// Command names the operations a session can request.
type Command string

const (
	CommandBegin                    Command = "begin"
	CommandCommit                   Command = "commit"
	CommandRollback                 Command = "rollback"
	CommandPrepare                  Command = "prepare"
	CommandExecuteStatement         Command = "execute_statement"
	CommandExecutePreparedStatement Command = "execute_prepared_statement"
	CommandExecuteQuery             Command = "execute_query"
	CommandExecutePreparedQuery     Command = "execute_prepared_query"
	CommandExplain                  Command = "explain"
	CommandDump                     Command = "dump"
	CommandLoad                     Command = "load"
)

// TransactionOption carries the begin command's options.
type TransactionOption struct {
	Readonly       bool
	Long           bool
	WritePreserves []string
}

// ParameterKind enumerates the value kinds a parameter can carry.
type ParameterKind int

const (
	ParameterInt4 ParameterKind = iota
	ParameterInt8
	ParameterFloat4
	ParameterFloat8
	ParameterCharacter
	ParameterDate
	ParameterTimeOfDay
	ParameterTimePoint
	ParameterDecimal
	ParameterNull
)

// Parameter binds one placeholder of a prepared statement. A load command
// may bind a parameter from a dump file column instead of a literal; the
// Reference field then carries the 0-based column, -1 otherwise.
type Parameter struct {
	Name      string
	Kind      ParameterKind
	Int       int64
	Float     float64
	Text      string
	Decimal   decimal.Triple
	TimePoint sqlexec.TimePoint
	Reference int
}

// Literal builds a plainly bound parameter.
func Literal(name string, kind ParameterKind) Parameter {
	return Parameter{Name: name, Kind: kind, Reference: -1}
}

// ColumnReference builds a load parameter bound from a dump file column.
func ColumnReference(name string, column int) Parameter {
	return Parameter{Name: name, Kind: ParameterNull, Reference: column}
}

// Value converts the wire parameter to an engine value.
func (p Parameter) Value() sqlexec.Value {
	switch p.Kind {
	case ParameterInt4:
		return sqlexec.Int4Value(int32(p.Int))
	case ParameterInt8:
		return sqlexec.Int8Value(p.Int)
	case ParameterFloat4:
		return sqlexec.Float4Value(float32(p.Float))
	case ParameterFloat8:
		return sqlexec.Float8Value(p.Float)
	case ParameterCharacter:
		return sqlexec.CharacterValue(p.Text)
	case ParameterDate:
		return sqlexec.DateValue(sqlexec.Date(p.Int))
	case ParameterTimeOfDay:
		return sqlexec.TimeOfDayValue(sqlexec.TimeOfDay(p.Int))
	case ParameterTimePoint:
		return sqlexec.TimePointValue(p.TimePoint)
	case ParameterDecimal:
		return sqlexec.DecimalValue(p.Decimal)
	}
	return sqlexec.Null()
}

// Request is one decoded command. SessionID and ServiceID route it; the
// remaining fields carry the per-command payload.
type Request struct {
	SessionID string
	ServiceID string
	Command   Command

	// begin
	Option TransactionOption

	// prepare / execute
	StatementID string
	Statement   *Statement
	Parameters  []Parameter

	// dump / load
	DumpDirectory string
	LoadFiles     []string
	LoadColumns   []ParameterKind // dump file column kinds, in file order
}

// Response carries the reply code and body.
type Response struct {
	Code err.StatusCode
	Body []byte
}
