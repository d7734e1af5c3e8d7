// Package dag models the task graph a compiled plan executes as: process,
// exchange and deliver steps owned by a graph. Ownership is arena+index: the
// graph owns the steps, each step knows its graph position, and ports carry
// step indices only.
package dag

import (
	"github.com/pkg/errors"
)

// StepKind distinguishes the three step flavors.
type StepKind int

const (
	// StepProcess contains a relational operator chain.
	StepProcess StepKind = iota
	// StepExchange implements shuffle, forward or broadcast transfer.
	StepExchange
	// StepDeliver is the terminal sink and the root of graph traversal.
	StepDeliver
)

// String names the kind.
func (k StepKind) String() string {
	switch k {
	case StepProcess:
		return "process"
	case StepExchange:
		return "exchange"
	case StepDeliver:
		return "deliver"
	}
	return "unknown"
}

// StepState tracks the lifecycle:
// created -> activated -> (create_tasks -> run_tasks)* -> deactivated -> destroyed.
type StepState int

const (
	StepCreated StepState = iota
	StepActivated
	StepDeactivated
	StepDestroyed
)

// StepID is a step's index within its owning graph.
type StepID int

// TaskSource produces the runnable units of an activated step. A scan step
// may return one task per partition.
type TaskSource func() (tasks []func() error, err error)

// Body is the behavior a step contributes to the graph. Activate acquires
// storage and reader/writer handles; CreateTasks returns the currently
// runnable tasks; Deactivate releases the handles but leaves the step in
// the graph for diagnostics.
type Body interface {
	Kind() StepKind
	Activate() error
	CreateTasks() ([]func() error, error)
	Deactivate() error
}

// Step is one node of the graph.
type Step struct {
	id      StepID
	graph   *Graph
	body    Body
	state   StepState
	inputs  []StepID // upstream ports
	outputs []StepID // downstream ports
}

// ID returns the graph-assigned id.
func (s *Step) ID() StepID { return s.id }

// Kind returns the body's kind.
func (s *Step) Kind() StepKind { return s.body.Kind() }

// State returns the lifecycle state.
func (s *Step) State() StepState { return s.state }

// Inputs returns the upstream step ids.
func (s *Step) Inputs() []StepID { return s.inputs }

// Outputs returns the downstream step ids.
func (s *Step) Outputs() []StepID { return s.outputs }

// Body returns the step behavior.
func (s *Step) Body() Body { return s.body }

// Graph owns its steps in insertion order; ids are assigned at insertion and
// never reused.
type Graph struct {
	steps []*Step
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Insert adds a step and assigns its id.
func (g *Graph) Insert(body Body) *Step {
	s := &Step{id: StepID(len(g.steps)), graph: g, body: body}
	g.steps = append(g.steps, s)
	return s
}

// Step resolves an id.
func (g *Graph) Step(id StepID) (*Step, error) {
	if int(id) < 0 || int(id) >= len(g.steps) {
		return nil, errors.Errorf("step %d is not in the graph", id)
	}
	return g.steps[id], nil
}

// Size returns the step count.
func (g *Graph) Size() int { return len(g.steps) }

// Connect wires upstream >> downstream. Deliver steps accept inputs only.
func (g *Graph) Connect(upstream, downstream StepID) error {
	up, err := g.Step(upstream)
	if err != nil {
		return err
	}
	down, err := g.Step(downstream)
	if err != nil {
		return err
	}
	if up.Kind() == StepDeliver {
		return errors.New("a deliver step has no outputs")
	}
	up.outputs = append(up.outputs, downstream)
	down.inputs = append(down.inputs, upstream)
	return nil
}

// Activate transitions a created (or deactivated) step to active, acquiring
// its handles.
func (g *Graph) Activate(id StepID) error {
	s, err := g.Step(id)
	if err != nil {
		return err
	}
	switch s.state {
	case StepCreated, StepDeactivated:
	case StepActivated:
		return nil
	default:
		return errors.Errorf("step %d can not activate from state %d", id, s.state)
	}
	if err := s.body.Activate(); err != nil {
		return errors.Wrapf(err, "activating step %d", id)
	}
	s.state = StepActivated
	return nil
}

// CreateTasks returns the runnable units of an activated step.
func (g *Graph) CreateTasks(id StepID) ([]func() error, error) {
	s, err := g.Step(id)
	if err != nil {
		return nil, err
	}
	if s.state != StepActivated {
		return nil, errors.Errorf("step %d is not active", id)
	}
	return s.body.CreateTasks()
}

// Deactivate releases the step's handles. The step stays in the graph for
// diagnostics.
func (g *Graph) Deactivate(id StepID) error {
	s, err := g.Step(id)
	if err != nil {
		return err
	}
	if s.state != StepActivated {
		return nil
	}
	if err := s.body.Deactivate(); err != nil {
		return errors.Wrapf(err, "deactivating step %d", id)
	}
	s.state = StepDeactivated
	return nil
}

// Destroy marks a deactivated step destroyed.
func (g *Graph) Destroy(id StepID) error {
	s, err := g.Step(id)
	if err != nil {
		return err
	}
	if s.state == StepActivated {
		return errors.Errorf("step %d is still active", id)
	}
	s.state = StepDestroyed
	return nil
}

// RunOrder lists the steps upstream-first so every producer runs before its
// consumers. The traversal is rooted at the deliver steps.
func (g *Graph) RunOrder() ([]StepID, error) {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.steps))
	var order []StepID
	var visit func(id StepID) error
	visit = func(id StepID) error {
		switch color[id] {
		case black:
			return nil
		case grey:
			return errors.Errorf("cycle through step %d", id)
		}
		color[id] = grey
		for _, in := range g.steps[id].inputs {
			if err := visit(in); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}
	for _, s := range g.steps {
		if s.Kind() == StepDeliver {
			if err := visit(s.id); err != nil {
				return nil, err
			}
		}
	}
	// steps not reachable from a deliver sink still run, last
	for _, s := range g.steps {
		if color[s.id] == white {
			if err := visit(s.id); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}
