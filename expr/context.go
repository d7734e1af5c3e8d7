// Package expr implements the scalar expression evaluator: a recursive
// interpreter over a closed node set with the engine's type promotion
// lattice, the cast matrix with loss-of-precision policies, and UTF-8 aware
// LIKE matching.
package expr

import (
	"fmt"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/memory"
)

// LossPolicy selects the behavior of a cast that would lose precision.
type LossPolicy int

const (
	LossIgnore   LossPolicy = iota // return the modified value silently
	LossFloor                      // not supported by the cast matrix
	LossCeil                       // not supported by the cast matrix
	LossUnknown                    // return NULL
	LossWarn                       // record a diagnostic, return the modified value
	LossImplicit                   // like LossError; additionally forbids float to integer/decimal
	LossError                      // return a lost_precision error
)

// String names the policy for diagnostics.
func (p LossPolicy) String() string {
	switch p {
	case LossIgnore:
		return "ignore"
	case LossFloor:
		return "floor"
	case LossCeil:
		return "ceil"
	case LossUnknown:
		return "unknown"
	case LossWarn:
		return "warn"
	case LossImplicit:
		return "implicit"
	case LossError:
		return "error"
	}
	return "unknown_policy"
}

// Diagnostic is one enriched error record accumulated during evaluation.
// The value error sentinel carries only a kind; callers read the ordered
// diagnostics from the context after the job for the full story.
type Diagnostic struct {
	Kind      sqlexec.ErrorKind
	Message   string
	Arguments []string
}

// NewArgument renders a value into the diagnostic argument list.
func (d *Diagnostic) NewArgument(v any) *Diagnostic {
	d.Arguments = append(d.Arguments, fmt.Sprintf("%v", v))
	return d
}

// Datastore resolves large object references. Provided references are
// registered on first touch; datastore references resolve back to a path.
type Datastore interface {
	// Register stores a caller-side file and returns its object id.
	Register(path string) (uint64, error)
	// PathByID resolves a registered object id to its file path.
	PathByID(id uint64) (string, error)
}

// Context carries the per-evaluation state: the loss policy, the scratch
// memory resource, feature toggles and the accumulated diagnostics.
// Callers save a resource checkpoint before evaluation and rewind after the
// result has been copied out.
type Context struct {
	Policy   LossPolicy
	Resource *memory.LifoResource

	// feature toggles mirroring the engine configuration
	SupportSmallint bool
	SupportBoolean  bool
	EnableBlobCast  bool

	// Store resolves blob/clob references; nil disables LOB casts.
	Store Datastore

	diagnostics []Diagnostic
}

// NewContext builds a context with the given policy and scratch resource.
func NewContext(policy LossPolicy, resource *memory.LifoResource) *Context {
	return &Context{Policy: policy, Resource: resource}
}

// AddError appends a diagnostic record. Order is preserved.
func (c *Context) AddError(d Diagnostic) {
	c.diagnostics = append(c.diagnostics, d)
}

// Diagnostics returns the accumulated records in insertion order.
func (c *Context) Diagnostics() []Diagnostic {
	return c.diagnostics
}

// ClearDiagnostics drops the accumulated records between statements.
func (c *Context) ClearDiagnostics() {
	c.diagnostics = nil
}
