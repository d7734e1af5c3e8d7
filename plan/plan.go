// Package plan is the boundary the external planner hands compiled plans
// across. A plan is a small description of an operator pipeline bound to
// storage; the executor turns it into a step graph, schedules the tasks and
// materializes the results.
package plan

import (
	stdctx "context"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/expr"
	"github.com/mstgnz/sqlexec/kvs"
	"github.com/mstgnz/sqlexec/ops"
	"github.com/mstgnz/sqlexec/record"
)

// Query describes a scan-filter-project pipeline over one table. The SQL
// front-end compiles SELECT statements down to this shape before handing
// them to the engine.
type Query struct {
	Table      kvs.TableSpec
	Bounds     ops.ScanBounds
	Filter     expr.Node // optional predicate over the table columns
	Projection []int     // table fields emitted, in output order
}

// OutputMeta derives the result record layout.
func (q Query) OutputMeta() *record.Meta {
	fields := q.Projection
	if len(fields) == 0 {
		fields = make([]int, q.Table.Meta.FieldCount())
		for i := range fields {
			fields[i] = i
		}
	}
	types := make([]sqlexec.Type, len(fields))
	for i, f := range fields {
		types[i] = q.Table.Meta.Type(f)
	}
	return record.NewMeta(types...)
}

// projection returns the explicit field list.
func (q Query) projection() []int {
	if len(q.Projection) > 0 {
		return q.Projection
	}
	fields := make([]int, q.Table.Meta.FieldCount())
	for i := range fields {
		fields[i] = i
	}
	return fields
}

// Insert describes one INSERT ... VALUES statement. Each row lists one
// expression per table field; parameter references resolve against the host
// variable table at execution time.
type Insert struct {
	Table kvs.TableSpec
	Rows  [][]expr.Node
}

// Update describes an UPDATE of the rows matched by a query: the matched
// row is overlaid with the set expressions and rewritten.
type Update struct {
	Query Query           // matching side; projection is ignored
	Set   map[int]expr.Node // table field index to new-value expression
}

// Delete describes a DELETE of the rows matched by a query.
type Delete struct {
	Query Query
}

// Parameters binds statement parameters into a host variable table.
func Parameters(names []record.Variable, values []sqlexec.Value) *record.VariableTable {
	types := make([]sqlexec.Type, len(values))
	for i, v := range values {
		types[i] = sqlexec.SimpleType(v.Kind())
	}
	vt := record.NewVariableTable(record.NewMeta(types...), names)
	for i, v := range values {
		vt.Set(names[i], v)
	}
	return vt
}

// Cancel is a convenience alias for the request cancel source.
type Cancel = stdctx.Context
