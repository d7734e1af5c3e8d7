package expr

import (
	"strings"
	"sync"

	sqlexec "github.com/mstgnz/sqlexec"
)

// ScalarFunction is one entry of the global scalar function registry. The
// body receives the evaluator context and the already evaluated arguments.
type ScalarFunction struct {
	Name          string
	ArgumentKinds []sqlexec.TypeKind
	Body          func(ctx *Context, args []sqlexec.Value) sqlexec.Value
}

var scalarRegistry = struct {
	sync.RWMutex
	byID map[int64]ScalarFunction
}{byID: make(map[int64]ScalarFunction)}

// RegisterScalar installs a scalar function under a definition id. Later
// registrations replace earlier ones, which the planner relies on for
// overrides.
func RegisterScalar(definitionID int64, fn ScalarFunction) {
	scalarRegistry.Lock()
	defer scalarRegistry.Unlock()
	scalarRegistry.byID[definitionID] = fn
}

// LookupScalar resolves a definition id.
func LookupScalar(definitionID int64) (ScalarFunction, bool) {
	scalarRegistry.RLock()
	defer scalarRegistry.RUnlock()
	fn, ok := scalarRegistry.byID[definitionID]
	return fn, ok
}

// Built-in scalar function definition ids.
const (
	FunctionUpper       int64 = 1
	FunctionLower       int64 = 2
	FunctionAbs         int64 = 3
	FunctionOctetLength int64 = 4
)

func init() {
	RegisterScalar(FunctionUpper, ScalarFunction{
		Name:          "upper",
		ArgumentKinds: []sqlexec.TypeKind{sqlexec.TypeCharacter},
		Body: func(ctx *Context, args []sqlexec.Value) sqlexec.Value {
			if args[0].Empty() {
				return sqlexec.Null()
			}
			if args[0].Kind() != sqlexec.TypeCharacter {
				return sqlexec.Unsupported()
			}
			return sqlexec.CharacterValue(strings.ToUpper(args[0].Character()))
		},
	})
	RegisterScalar(FunctionLower, ScalarFunction{
		Name:          "lower",
		ArgumentKinds: []sqlexec.TypeKind{sqlexec.TypeCharacter},
		Body: func(ctx *Context, args []sqlexec.Value) sqlexec.Value {
			if args[0].Empty() {
				return sqlexec.Null()
			}
			if args[0].Kind() != sqlexec.TypeCharacter {
				return sqlexec.Unsupported()
			}
			return sqlexec.CharacterValue(strings.ToLower(args[0].Character()))
		},
	})
	RegisterScalar(FunctionAbs, ScalarFunction{
		Name:          "abs",
		ArgumentKinds: []sqlexec.TypeKind{sqlexec.TypeUnknown},
		Body: func(ctx *Context, args []sqlexec.Value) sqlexec.Value {
			v := args[0]
			if v.Empty() {
				return sqlexec.Null()
			}
			switch v.Kind() {
			case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
				if v.Int4() < 0 {
					return sqlexec.Int4Value(-v.Int4())
				}
				return v
			case sqlexec.TypeInt8:
				if v.Int8() < 0 {
					return sqlexec.Int8Value(-v.Int8())
				}
				return v
			case sqlexec.TypeFloat4:
				if v.Float4() < 0 {
					return sqlexec.Float4Value(-v.Float4())
				}
				return v
			case sqlexec.TypeFloat8:
				if v.Float8() < 0 {
					return sqlexec.Float8Value(-v.Float8())
				}
				return v
			case sqlexec.TypeDecimal:
				if v.Decimal().Sign() < 0 {
					return sqlexec.DecimalValue(v.Decimal().Neg())
				}
				return v
			}
			return sqlexec.Unsupported()
		},
	})
	RegisterScalar(FunctionOctetLength, ScalarFunction{
		Name:          "octet_length",
		ArgumentKinds: []sqlexec.TypeKind{sqlexec.TypeOctet},
		Body: func(ctx *Context, args []sqlexec.Value) sqlexec.Value {
			v := args[0]
			if v.Empty() {
				return sqlexec.Null()
			}
			switch v.Kind() {
			case sqlexec.TypeOctet:
				return sqlexec.Int8Value(int64(len(v.Octet())))
			case sqlexec.TypeCharacter:
				return sqlexec.Int8Value(int64(len(v.Character())))
			}
			return sqlexec.Unsupported()
		},
	})
}
