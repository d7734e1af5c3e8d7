package record

import (
	sqlexec "github.com/mstgnz/sqlexec"
)

// Variable is a plan-level variable identifier. The planner assigns them;
// the executor never interprets the text.
type Variable string

// VariableTable is a record buffer plus the mapping from plan variables to
// its fields. Each operator block reads its input through one table and
// writes its output through another; the two may alias the same buffer.
type VariableTable struct {
	rec  *Record
	vars map[Variable]int
}

// NewVariableTable builds a table over a fresh record of the layout, binding
// variables to fields positionally.
func NewVariableTable(meta *Meta, variables []Variable) *VariableTable {
	vars := make(map[Variable]int, len(variables))
	for i, v := range variables {
		vars[v] = i
	}
	return &VariableTable{rec: NewRecord(meta), vars: vars}
}

// Record exposes the backing record buffer.
func (t *VariableTable) Record() *Record { return t.rec }

// Meta returns the layout of the backing record.
func (t *VariableTable) Meta() *Meta { return t.rec.Meta() }

// Index resolves a variable to its field index.
func (t *VariableTable) Index(v Variable) (int, bool) {
	i, ok := t.vars[v]
	return i, ok
}

// Get reads the value bound to the variable. Unknown variables read as an
// undefined error, which the evaluator surfaces.
func (t *VariableTable) Get(v Variable) sqlexec.Value {
	i, ok := t.vars[v]
	if !ok {
		return sqlexec.ErrorValue(sqlexec.ErrorUndefined)
	}
	return t.rec.Get(i)
}

// Set writes the value bound to the variable. Unknown variables are ignored.
func (t *VariableTable) Set(v Variable, value sqlexec.Value) {
	if i, ok := t.vars[v]; ok {
		t.rec.Set(i, value)
	}
}

// Variables lists the bound variables in field order.
func (t *VariableTable) Variables() []Variable {
	out := make([]Variable, t.rec.Meta().FieldCount())
	for v, i := range t.vars {
		out[i] = v
	}
	return out
}
