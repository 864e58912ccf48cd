package commissioner

import (
	"context"
)

// Step is one atomic, idempotent action against infrastructure or the
// database cluster. Steps within a group have no ordering guarantee among
// themselves; the queue invokes each step exactly once and relies on the
// executor being safe if the whole operation is resubmitted after a crash.
type Step interface {
	Name() string
	Target() string
	Run(ctx context.Context) error
}

type funcStep struct {
	name   string
	target string
	run    func(ctx context.Context) error
}

// NewStep builds a Step from a function
func NewStep(name, target string, run func(ctx context.Context) error) Step {
	return &funcStep{name: name, target: target, run: run}
}

func (s *funcStep) Name() string   { return s.name }
func (s *funcStep) Target() string { return s.target }

func (s *funcStep) Run(ctx context.Context) error {
	return s.run(ctx)
}

// StepGroup is an ordered stage of work tagged with a phase label.
// Never mutated after being queued.
type StepGroup struct {
	Name  string
	Steps []Step
}
