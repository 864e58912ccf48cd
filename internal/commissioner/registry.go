package commissioner

import (
	"sync"

	"universed/internal/universe"
)

// TaskType identifies an operation the engine knows how to plan
type TaskType string

const (
	TaskCreateUniverse    TaskType = "CreateUniverse"
	TaskAddNodeToUniverse TaskType = "AddNodeToUniverse"
	TaskDestroyUniverse   TaskType = "DestroyUniverse"
	TaskCreateTable       TaskType = "CreateTable"
)

// Planner turns a locked universe and the request parameters into the
// ordered step groups for one operation. Planners run inside the mutation
// lock, so the universe they see is the committed state; plan-time
// precondition failures surface as PreconditionFailed.
type Planner func(d *Deps, u *universe.Universe, p TaskParams) ([]StepGroup, error)

// Registry maps task types to their planners
type Registry struct {
	mu       sync.RWMutex
	planners map[TaskType]Planner
	order    []TaskType
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{planners: make(map[TaskType]Planner)}
}

// Register binds a planner to a task type, replacing any previous binding
func (r *Registry) Register(t TaskType, p Planner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.planners[t]; !exists {
		r.order = append(r.order, t)
	}
	r.planners[t] = p
}

// Get returns the planner for a task type, or UnknownOperation
func (r *Registry) Get(t TaskType) (Planner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.planners[t]
	if !ok {
		return nil, NewUnknownOperation(t)
	}
	return p, nil
}

// Types lists registered task types in registration order
func (r *Registry) Types() []TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TaskType, len(r.order))
	copy(out, r.order)
	return out
}
