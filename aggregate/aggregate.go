// Package aggregate holds the table-driven aggregate function registry. An
// entry maps a definition id to the argument kinds, the aggregator body
// producing a scalar from the accumulated value stores, and the generator
// used when the input group is empty.
package aggregate

import (
	"sync"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/expr"
)

// Aggregator folds the accumulated argument stores into one scalar. The
// outer slice has one store per declared argument; each store holds the
// value of that argument for every member of the group.
type Aggregator func(ctx *expr.Context, stores [][]sqlexec.Value) sqlexec.Value

// EmptyValueGenerator produces the result for a group with no members,
// which only happens for global aggregation over an empty input.
type EmptyValueGenerator func() sqlexec.Value

// Function is one registry entry.
type Function struct {
	Name          string
	ArgumentKinds []sqlexec.TypeKind
	Aggregate     Aggregator
	EmptyValue    EmptyValueGenerator
}

var registry = struct {
	sync.RWMutex
	byID map[int64]Function
}{byID: make(map[int64]Function)}

// Register installs a function under a definition id.
func Register(definitionID int64, fn Function) {
	registry.Lock()
	defer registry.Unlock()
	registry.byID[definitionID] = fn
}

// Lookup resolves a definition id.
func Lookup(definitionID int64) (Function, bool) {
	registry.RLock()
	defer registry.RUnlock()
	fn, ok := registry.byID[definitionID]
	return fn, ok
}

// Built-in aggregate definition ids.
const (
	FunctionCountRows int64 = 101
	FunctionCount     int64 = 102
	FunctionSum       int64 = 103
	FunctionMin       int64 = 104
	FunctionMax       int64 = 105
	FunctionAvg       int64 = 106
)

func init() {
	Register(FunctionCountRows, Function{
		Name: "count(*)",
		Aggregate: func(ctx *expr.Context, stores [][]sqlexec.Value) sqlexec.Value {
			if len(stores) == 0 {
				return sqlexec.Int8Value(0)
			}
			return sqlexec.Int8Value(int64(len(stores[0])))
		},
		EmptyValue: func() sqlexec.Value { return sqlexec.Int8Value(0) },
	})
	Register(FunctionCount, Function{
		Name:          "count",
		ArgumentKinds: []sqlexec.TypeKind{sqlexec.TypeUnknown},
		Aggregate: func(ctx *expr.Context, stores [][]sqlexec.Value) sqlexec.Value {
			var n int64
			for _, v := range stores[0] {
				if !v.Empty() {
					n++
				}
			}
			return sqlexec.Int8Value(n)
		},
		EmptyValue: func() sqlexec.Value { return sqlexec.Int8Value(0) },
	})
	Register(FunctionSum, Function{
		Name:          "sum",
		ArgumentKinds: []sqlexec.TypeKind{sqlexec.TypeUnknown},
		Aggregate:     sumAggregator,
		EmptyValue:    func() sqlexec.Value { return sqlexec.Null() },
	})
	Register(FunctionMin, Function{
		Name:          "min",
		ArgumentKinds: []sqlexec.TypeKind{sqlexec.TypeUnknown},
		Aggregate:     minMaxAggregator(expr.CompareLess),
		EmptyValue:    func() sqlexec.Value { return sqlexec.Null() },
	})
	Register(FunctionMax, Function{
		Name:          "max",
		ArgumentKinds: []sqlexec.TypeKind{sqlexec.TypeUnknown},
		Aggregate:     minMaxAggregator(expr.CompareGreater),
		EmptyValue:    func() sqlexec.Value { return sqlexec.Null() },
	})
	Register(FunctionAvg, Function{
		Name:          "avg",
		ArgumentKinds: []sqlexec.TypeKind{sqlexec.TypeUnknown},
		Aggregate: func(ctx *expr.Context, stores [][]sqlexec.Value) sqlexec.Value {
			sum := sumAggregator(ctx, stores)
			if sum.Error() || sum.Empty() {
				return sum
			}
			var n int64
			for _, v := range stores[0] {
				if !v.Empty() {
					n++
				}
			}
			return expr.DivideValues(ctx, sum, sqlexec.Int8Value(n))
		},
		EmptyValue: func() sqlexec.Value { return sqlexec.Null() },
	})
}

// sumAggregator adds the non-null members under numeric promotion; a group
// of only nulls sums to NULL the way SQL requires.
func sumAggregator(ctx *expr.Context, stores [][]sqlexec.Value) sqlexec.Value {
	acc := sqlexec.Null()
	for _, v := range stores[0] {
		if v.Empty() {
			continue
		}
		if v.Error() {
			return v
		}
		if acc.Empty() {
			acc = v
			continue
		}
		acc = expr.AddValues(ctx, acc, v)
		if acc.Error() {
			return acc
		}
	}
	return acc
}

func minMaxAggregator(op expr.CompareOp) Aggregator {
	return func(ctx *expr.Context, stores [][]sqlexec.Value) sqlexec.Value {
		best := sqlexec.Null()
		for _, v := range stores[0] {
			if v.Empty() {
				continue
			}
			if v.Error() {
				return v
			}
			if best.Empty() {
				best = v
				continue
			}
			c := expr.CompareValues(op, v, best)
			if c.Error() {
				return c
			}
			if c.Valid() && c.Bool() {
				best = v
			}
		}
		return best
	}
}
