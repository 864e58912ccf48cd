package commissioner

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of a tracking record.
// Created -> Running -> {Success | Failure | Aborted}; no transition
// leaves a terminal state.
type TaskState string

const (
	TaskCreated TaskState = "Created"
	TaskRunning TaskState = "Running"
	TaskSuccess TaskState = "Success"
	TaskFailure TaskState = "Failure"
	TaskAborted TaskState = "Aborted"
)

// IsTerminal reports whether the state is final
func (s TaskState) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailure || s == TaskAborted
}

// StepState is the outcome of one step
type StepState string

const (
	StepPending StepState = "Pending"
	StepRunning StepState = "Running"
	StepSuccess StepState = "Success"
	StepFailure StepState = "Failure"
)

// GroupState is the state of one step group
type GroupState string

const (
	GroupPending GroupState = "Pending"
	GroupRunning GroupState = "Running"
	GroupSuccess GroupState = "Success"
	GroupFailure GroupState = "Failure"
	GroupSkipped GroupState = "Skipped"
)

// StepRecord is the durable record of one step's outcome
type StepRecord struct {
	Name      string     `json:"name"`
	Target    string     `json:"target,omitempty"`
	State     StepState  `json:"state"`
	Message   string     `json:"message,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// GroupRecord is the durable record of one step group
type GroupRecord struct {
	Name  string        `json:"name"`
	State GroupState    `json:"state"`
	Steps []*StepRecord `json:"steps"`
}

// TaskStatus is a consistent snapshot of a tracking record, the shape
// persisted in the task store and returned to status pollers.
type TaskStatus struct {
	TaskUUID       uuid.UUID      `json:"task_uuid"`
	Type           TaskType       `json:"type"`
	UniverseUUID   uuid.UUID      `json:"universe_uuid"`
	CustomerUUID   uuid.UUID      `json:"customer_uuid,omitempty"`
	State          TaskState      `json:"state"`
	PercentDone    int            `json:"percent_done"`
	Position       int            `json:"position"`
	Groups         []*GroupRecord `json:"groups"`
	ErrorString    string         `json:"error_string,omitempty"`
	CreateTime     time.Time      `json:"create_time"`
	CompletionTime *time.Time     `json:"completion_time,omitempty"`
}

// TaskInfo is the live tracking record of one operation execution.
// Mutated only by the task runner and the step group queue; readers get
// consistent snapshots.
type TaskInfo struct {
	mu sync.RWMutex

	uuid         uuid.UUID
	taskType     TaskType
	params       TaskParams
	universeUUID uuid.UUID
	customerUUID uuid.UUID
	state        TaskState
	percentDone  int
	position     int
	groups       []*GroupRecord
	errorString  string
	createTime   time.Time
	completion   *time.Time
}

// NewTaskInfo creates a tracking record in state Created
func NewTaskInfo(taskType TaskType, p TaskParams) *TaskInfo {
	return &TaskInfo{
		uuid:         uuid.New(),
		taskType:     taskType,
		params:       p,
		universeUUID: p.UniverseUUID,
		customerUUID: p.CustomerUUID,
		state:        TaskCreated,
		position:     -1,
		createTime:   time.Now(),
	}
}

// UUID returns the tracking identity
func (t *TaskInfo) UUID() uuid.UUID {
	return t.uuid
}

// Type returns the operation type
func (t *TaskInfo) Type() TaskType {
	return t.taskType
}

// Params returns the request parameters
func (t *TaskInfo) Params() TaskParams {
	return t.params
}

// UniverseUUID returns the target universe
func (t *TaskInfo) UniverseUUID() uuid.UUID {
	return t.universeUUID
}

// State returns the current lifecycle state
func (t *TaskInfo) State() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// MarkRunning transitions Created -> Running. Returns false if the record
// is not in state Created.
func (t *TaskInfo) MarkRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskCreated {
		return false
	}
	t.state = TaskRunning
	return true
}

// Succeed transitions to the terminal Success state
func (t *TaskInfo) Succeed() {
	t.complete(TaskSuccess, "")
	t.mu.Lock()
	t.percentDone = 100
	t.mu.Unlock()
}

// Fail transitions to the terminal Failure state with a message
func (t *TaskInfo) Fail(message string) {
	t.complete(TaskFailure, message)
}

// Abort transitions to the terminal Aborted state with a message
func (t *TaskInfo) Abort(message string) {
	t.complete(TaskAborted, message)
}

func (t *TaskInfo) complete(state TaskState, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return
	}
	now := time.Now()
	t.state = state
	t.errorString = message
	t.completion = &now
}

// SetGroups installs the group records built from the plan. Allowed only
// before execution starts; the list is append-only afterwards.
func (t *TaskInfo) SetGroups(groups []*GroupRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groups = groups
}

// BeginGroup marks group gi as running
func (t *TaskInfo) BeginGroup(gi int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groups[gi].State = GroupRunning
}

// FinishGroup records a group outcome and advances the visible position
func (t *TaskInfo) FinishGroup(gi int, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if failed {
		t.groups[gi].State = GroupFailure
	} else {
		t.groups[gi].State = GroupSuccess
	}
	t.position = gi
	if n := len(t.groups); n > 0 {
		t.percentDone = (gi + 1) * 100 / n
	}
}

// SkipRemainingGroups marks groups after gi as skipped
func (t *TaskInfo) SkipRemainingGroups(gi int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := gi + 1; i < len(t.groups); i++ {
		t.groups[i].State = GroupSkipped
	}
}

// BeginStep marks a step as running
func (t *TaskInfo) BeginStep(gi, si int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	step := t.groups[gi].Steps[si]
	step.State = StepRunning
	step.StartTime = &now
}

// FinishStep records a step outcome
func (t *TaskInfo) FinishStep(gi, si int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	step := t.groups[gi].Steps[si]
	step.EndTime = &now
	if err != nil {
		step.State = StepFailure
		step.Message = err.Error()
	} else {
		step.State = StepSuccess
	}
}

// Snapshot returns a deep copy suitable for persistence and status reads
func (t *TaskInfo) Snapshot() *TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := &TaskStatus{
		TaskUUID:     t.uuid,
		Type:         t.taskType,
		UniverseUUID: t.universeUUID,
		CustomerUUID: t.customerUUID,
		State:        t.state,
		PercentDone:  t.percentDone,
		Position:     t.position,
		ErrorString:  t.errorString,
		CreateTime:   t.createTime,
	}
	if t.completion != nil {
		done := *t.completion
		status.CompletionTime = &done
	}

	status.Groups = make([]*GroupRecord, len(t.groups))
	for gi, g := range t.groups {
		groupCopy := &GroupRecord{
			Name:  g.Name,
			State: g.State,
			Steps: make([]*StepRecord, len(g.Steps)),
		}
		for si, s := range g.Steps {
			stepCopy := *s
			groupCopy.Steps[si] = &stepCopy
		}
		status.Groups[gi] = groupCopy
	}
	return status
}
