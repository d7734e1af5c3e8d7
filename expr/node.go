package expr

import (
	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/record"
)

// NodeKind discriminates the closed expression node set. The evaluator
// dispatches with a switch; the set is closed so open extension is not
// modeled.
type NodeKind int

const (
	KindImmediate NodeKind = iota
	KindVariableReference
	KindUnary
	KindBinary
	KindCompare
	KindCast
	KindMatch
	KindConditional
	KindCoalesce
	KindLet
	KindFunctionCall
)

// Node is one scalar expression tree node.
type Node interface {
	NodeKind() NodeKind
}

// Immediate is a literal value.
type Immediate struct {
	Value sqlexec.Value
}

func (Immediate) NodeKind() NodeKind { return KindImmediate }

// VariableReference reads a plan variable from the variable table.
type VariableReference struct {
	Name record.Variable
}

func (VariableReference) NodeKind() NodeKind { return KindVariableReference }

// UnaryOp enumerates the unary operators.
type UnaryOp int

const (
	UnaryPlus UnaryOp = iota
	UnarySignInversion
	UnaryConditionalNot
	UnaryLength
	UnaryIsNull
	UnaryIsTrue
	UnaryIsFalse
	UnaryIsUnknown
)

// Unary applies a unary operator.
type Unary struct {
	Op      UnaryOp
	Operand Node
}

func (Unary) NodeKind() NodeKind { return KindUnary }

// BinaryOp enumerates the binary operators.
type BinaryOp int

const (
	BinaryAdd BinaryOp = iota
	BinarySubtract
	BinaryMultiply
	BinaryDivide
	BinaryRemainder
	BinaryConcat
	BinaryConditionalAnd
	BinaryConditionalOr
)

// Binary applies a binary operator.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

func (Binary) NodeKind() NodeKind { return KindBinary }

// CompareOp enumerates the comparison operators.
type CompareOp int

const (
	CompareEqual CompareOp = iota
	CompareNotEqual
	CompareGreater
	CompareGreaterEqual
	CompareLess
	CompareLessEqual
)

// Compare applies a comparison, yielding boolean or NULL.
type Compare struct {
	Op    CompareOp
	Left  Node
	Right Node
}

func (Compare) NodeKind() NodeKind { return KindCompare }

// Cast converts the operand to the target type under the context policy.
type Cast struct {
	Target  sqlexec.Type
	Operand Node
}

func (Cast) NodeKind() NodeKind { return KindCast }

// MatchOp selects the pattern language of a Match node.
type MatchOp int

const (
	MatchLike MatchOp = iota
	MatchSimilar
)

// Match is LIKE/SIMILAR pattern matching. SIMILAR is reported unsupported;
// an external collaborator may provide it.
type Match struct {
	Op      MatchOp
	Input   Node
	Pattern Node
	Escape  Node
}

func (Match) NodeKind() NodeKind { return KindMatch }

// Alternative is one WHEN/THEN arm of a Conditional.
type Alternative struct {
	Condition Node
	Body      Node
}

// Conditional is SQL CASE: alternatives are visited in order and the body of
// the first true branch is returned after unifying conversion to Result.
type Conditional struct {
	Alternatives []Alternative
	Default      Node
	Result       sqlexec.Type
}

func (Conditional) NodeKind() NodeKind { return KindConditional }

// Coalesce returns the first non-NULL alternative, unifying-converted to
// Result.
type Coalesce struct {
	Alternatives []Node
	Result       sqlexec.Type
}

func (Coalesce) NodeKind() NodeKind { return KindCoalesce }

// LetDeclaration binds one variable inside a Let body.
type LetDeclaration struct {
	Name  record.Variable
	Value Node
}

// Let introduces local bindings visible to the body and to later
// declarations of the same Let.
type Let struct {
	Declarations []LetDeclaration
	Body         Node
}

func (Let) NodeKind() NodeKind { return KindLet }

// FunctionCall invokes a scalar function from the global registry by its
// definition id. Arguments are evaluated before the body runs.
type FunctionCall struct {
	DefinitionID int64
	Arguments    []Node
}

func (FunctionCall) NodeKind() NodeKind { return KindFunctionCall }
