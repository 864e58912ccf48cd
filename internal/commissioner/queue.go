package commissioner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// QueueState is the state machine of a step group queue
type QueueState string

const (
	QueueEmpty            QueueState = "Empty"
	QueueBuilding         QueueState = "Building"
	QueueExecuting        QueueState = "Executing"
	QueueDrained          QueueState = "Drained"
	QueueAbortedOnFailure QueueState = "AbortedOnFailure"
)

// StepGroupQueue executes an operation's plan: groups strictly in order
// with a hard barrier between them, steps inside a group in parallel. The
// queue never retries a step; executors own their retries. Progress is
// persisted after each group completes so pollers see a monotonically
// advancing position.
type StepGroupQueue struct {
	task         *TaskInfo
	store        TaskStore
	logger       *slog.Logger
	metrics      *Metrics
	broadcaster  *StatusBroadcaster
	groupTimeout time.Duration

	state  QueueState
	groups []StepGroup
}

// NewStepGroupQueue creates an empty queue for a tracking record
func NewStepGroupQueue(task *TaskInfo, store TaskStore, logger *slog.Logger) *StepGroupQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepGroupQueue{
		task:   task,
		store:  store,
		logger: logger.With(slog.String("component", "stepgroupqueue"), slog.String("task_uuid", task.UUID().String())),
		state:  QueueEmpty,
	}
}

// WithMetrics attaches engine metrics
func (q *StepGroupQueue) WithMetrics(m *Metrics) *StepGroupQueue {
	q.metrics = m
	return q
}

// WithBroadcaster attaches a status broadcaster
func (q *StepGroupQueue) WithBroadcaster(b *StatusBroadcaster) *StepGroupQueue {
	q.broadcaster = b
	return q
}

// WithGroupTimeout bounds how long one group may run
func (q *StepGroupQueue) WithGroupTimeout(d time.Duration) *StepGroupQueue {
	q.groupTimeout = d
	return q
}

// State returns the queue state
func (q *StepGroupQueue) State() QueueState {
	return q.state
}

// AddGroup appends a step group to the plan. Groups cannot be added once
// execution has started.
func (q *StepGroupQueue) AddGroup(name string, steps ...Step) error {
	switch q.state {
	case QueueEmpty, QueueBuilding:
	default:
		return fmt.Errorf("cannot add group %q: queue is %s", name, q.state)
	}
	q.state = QueueBuilding
	q.groups = append(q.groups, StepGroup{Name: name, Steps: steps})
	return nil
}

// Run executes all groups in order. The first group with a failing step
// aborts the queue: its remaining steps still report an outcome, but no
// later group ever starts.
func (q *StepGroupQueue) Run(ctx context.Context) error {
	q.state = QueueExecuting

	records := make([]*GroupRecord, len(q.groups))
	for gi, group := range q.groups {
		rec := &GroupRecord{Name: group.Name, State: GroupPending, Steps: make([]*StepRecord, len(group.Steps))}
		for si, step := range group.Steps {
			rec.Steps[si] = &StepRecord{Name: step.Name(), Target: step.Target(), State: StepPending}
		}
		records[gi] = rec
	}
	q.task.SetGroups(records)
	q.persist(ctx)

	for gi, group := range q.groups {
		if err := q.runGroup(ctx, gi, group); err != nil {
			q.task.SkipRemainingGroups(gi)
			q.persist(ctx)
			q.state = QueueAbortedOnFailure
			return NewStepFailed(group.Name, err)
		}
	}

	q.state = QueueDrained
	return nil
}

func (q *StepGroupQueue) runGroup(ctx context.Context, gi int, group StepGroup) error {
	q.logger.InfoContext(ctx, "group_started",
		slog.String("group", group.Name),
		slog.Int("steps", len(group.Steps)))

	groupCtx := ctx
	if q.groupTimeout > 0 {
		var cancel context.CancelFunc
		groupCtx, cancel = context.WithTimeout(ctx, q.groupTimeout)
		defer cancel()
	}

	q.task.BeginGroup(gi)
	started := time.Now()

	// Plain errgroup: every step runs to completion and reports an
	// outcome, a failure does not cancel its siblings.
	var g errgroup.Group
	for si, step := range group.Steps {
		si, step := si, step
		q.task.BeginStep(gi, si)
		g.Go(func() error {
			stepStart := time.Now()
			err := step.Run(groupCtx)
			q.task.FinishStep(gi, si, err)
			if err != nil {
				q.logger.ErrorContext(groupCtx, "step_failed",
					slog.String("group", group.Name),
					slog.String("step", step.Name()),
					slog.String("target", step.Target()),
					slog.String("error", err.Error()))
			}
			q.metrics.RecordStepDuration(groupCtx, group.Name, step.Name(), time.Since(stepStart), err == nil)
			return err
		})
	}
	groupErr := g.Wait()

	q.task.FinishGroup(gi, groupErr != nil)
	q.persist(ctx)
	q.metrics.RecordGroupDuration(ctx, group.Name, time.Since(started), groupErr == nil)
	if q.broadcaster != nil {
		q.broadcaster.TaskProgress(q.task.Snapshot())
	}

	q.logger.InfoContext(ctx, "group_finished",
		slog.String("group", group.Name),
		slog.Duration("duration", time.Since(started)),
		slog.Bool("failed", groupErr != nil))
	return groupErr
}

func (q *StepGroupQueue) persist(ctx context.Context) {
	if q.store == nil {
		return
	}
	if err := q.store.Save(ctx, q.task.Snapshot()); err != nil {
		q.logger.ErrorContext(ctx, "failed to persist task progress",
			slog.String("error", err.Error()))
	}
}
