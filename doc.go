/*
Package sqlexec is the execution core of a relational SQL engine built atop
an ordered key-value store. It runs compiled logical plans as a DAG of
process, exchange and deliver steps, schedules the step tasks on a worker
pool, evaluates scalar and aggregate expressions over the records flowing
between steps, and materializes results to a result writer or to columnar
dump files.

The root package carries the value model: the fourteen logical types and the
tagged Value variant that is either one runtime value, SQL NULL, or an error
sentinel.

Basic Usage:

	import (
		"github.com/mstgnz/sqlexec/config"
		"github.com/mstgnz/sqlexec/kvs"
		"github.com/mstgnz/sqlexec/service"
	)

	store, err := kvs.OpenMemory()
	if err != nil {
		// handle error
	}
	engine, err := service.NewEngine(config.Default(), store, nil)
	if err != nil {
		// handle error
	}
	session := engine.Sessions().Create()
	resp := engine.Route(service.Request{
		SessionID: session.ID,
		Command:   service.CommandExecuteQuery,
		Statement: &service.Statement{Query: &myQuery},
	})

Subsystem packages:

  - decimal: arbitrary precision triples with the widened decimal128 context
  - expr: the expression evaluator, type promotion, cast matrix and LIKE
  - record: record layouts, variable tables, groups and cogroups
  - memory: the page pool and LIFO allocators behind evaluation
  - kvs: the ordered store binding, key codecs and table layouts
  - ops: the relational operators of a process step
  - exchange: shuffle partitions and the merging group reader
  - dag: the step graph and its lifecycle
  - scheduler: the worker pool with cooperative yield and stealing
  - aggregate: the table-driven aggregate function registry
  - service: sessions, transactions and the command router
  - dump: columnar dump output and load

The SQL parser, the logical planner and the RPC transport are external
collaborators; their contracts appear as the plan and service types.
*/
package sqlexec
