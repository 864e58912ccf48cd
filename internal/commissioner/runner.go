package commissioner

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"log/slog"

	"universed/internal/universe"
)

// Runner drives one task from Running to a terminal state: acquire the
// universe mutation lock, plan, execute the step group queue, release the
// lock on every path.
type Runner struct {
	registry     *Registry
	deps         *Deps
	tracer       trace.Tracer
	groupTimeout time.Duration
}

// NewRunner creates a runner over a registry and dependency bundle
func NewRunner(registry *Registry, deps *Deps, groupTimeout time.Duration) *Runner {
	return &Runner{
		registry:     registry,
		deps:         deps,
		tracer:       otel.Tracer("universed/commissioner"),
		groupTimeout: groupTimeout,
	}
}

// Execute runs a task to completion. The returned error is the task's
// failure cause; a nil return means the task succeeded.
func (r *Runner) Execute(ctx context.Context, task *TaskInfo) error {
	ctx, span := r.tracer.Start(ctx, "commissioner.execute",
		trace.WithAttributes(
			attribute.String("task.type", string(task.Type())),
			attribute.String("task.uuid", task.UUID().String()),
			attribute.String("universe.uuid", task.UniverseUUID().String())))
	defer span.End()

	logger := r.deps.Log().With(
		slog.String("task_type", string(task.Type())),
		slog.String("task_uuid", task.UUID().String()),
		slog.String("universe_uuid", task.UniverseUUID().String()))

	if !task.MarkRunning() {
		return NewPreconditionFailed("task is not in Created state")
	}
	r.save(ctx, task, logger)
	if b := r.deps.Broadcaster; b != nil {
		b.TaskStarted(task.Snapshot())
	}
	logger.InfoContext(ctx, "task_started")

	err := r.runLocked(ctx, task, logger)

	switch {
	case err == nil:
		task.Succeed()
	case errors.Is(err, context.Canceled):
		task.Abort(err.Error())
	default:
		task.Fail(err.Error())
	}
	r.save(ctx, task, logger)

	status := task.Snapshot()
	r.deps.Metrics.RecordCompleted(ctx, task.Type(), status.State)
	if b := r.deps.Broadcaster; b != nil {
		b.TaskFinished(status)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "task_failed",
			slog.String("state", string(status.State)),
			slog.String("error", err.Error()))
		return err
	}
	span.SetStatus(codes.Ok, "")
	logger.InfoContext(ctx, "task_succeeded",
		slog.Duration("duration", status.CompletionTime.Sub(status.CreateTime)))
	return nil
}

// runLocked wraps the critical section with the mutation lock. The lock
// is released on every path: success commits the next version and clears
// the universe error, failure persists the error string and leaves the
// version untouched.
func (r *Runner) runLocked(ctx context.Context, task *TaskInfo, logger *slog.Logger) error {
	params := task.Params()

	u, handle, err := r.deps.Universes.Lock(ctx, params.UniverseUUID, params.ExpectedVersion, params.Force)
	if err != nil {
		return mapLockError(err)
	}
	logger.InfoContext(ctx, "universe_locked",
		slog.Int64("version", u.Version),
		slog.Int64("next_version", handle.NextVersion))

	runErr := r.runCritical(ctx, task, u)

	errStr := ""
	if runErr != nil {
		errStr = runErr.Error()
	}
	if relErr := r.deps.Universes.Release(ctx, handle, errStr); relErr != nil {
		// The universe may have been deleted by the task itself; that
		// release is a no-op, anything else is worth surfacing.
		if !errors.Is(relErr, universe.ErrNotFound) {
			logger.ErrorContext(ctx, "failed to release universe lock",
				slog.String("error", relErr.Error()))
			if runErr == nil {
				runErr = relErr
			}
		}
	}
	return runErr
}

// runCritical plans and executes inside the lock. Panics from planner or
// step code are converted to an UnexpectedFault here so the caller's
// release logic always observes the real outcome.
func (r *Runner) runCritical(ctx context.Context, task *TaskInfo, u *universe.Universe) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = NewUnexpectedFault(rec)
		}
	}()

	planner, err := r.registry.Get(task.Type())
	if err != nil {
		return err
	}

	groups, err := planner(r.deps, u, task.Params())
	if err != nil {
		return err
	}

	queue := NewStepGroupQueue(task, r.deps.Tasks, r.deps.Log()).
		WithMetrics(r.deps.Metrics).
		WithBroadcaster(r.deps.Broadcaster).
		WithGroupTimeout(r.groupTimeout)
	for _, g := range groups {
		if qErr := queue.AddGroup(g.Name, g.Steps...); qErr != nil {
			return qErr
		}
	}
	return queue.Run(ctx)
}

func (r *Runner) save(ctx context.Context, task *TaskInfo, logger *slog.Logger) {
	if err := r.deps.Tasks.Save(ctx, task.Snapshot()); err != nil {
		logger.ErrorContext(ctx, "failed to persist task state",
			slog.String("error", err.Error()))
	}
}

// mapLockError translates store sentinels into the engine's error codes
func mapLockError(err error) error {
	switch {
	case errors.Is(err, universe.ErrStaleVersion):
		return NewStaleVersion(err)
	case errors.Is(err, universe.ErrAlreadyLocked):
		return NewAlreadyLocked(err)
	case errors.Is(err, universe.ErrNotFound):
		return NewNotFound("universe")
	default:
		return err
	}
}
