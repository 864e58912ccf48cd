package commissioner

import (
	"context"
	"errors"
	"log/slog"

	"universed/internal/universe"
)

// recover runs the startup crash recovery pass. Records still Created or
// Running belong to a previous process that died mid-flight: they are
// aborted, and the universes of Running records are force-unlocked so new
// operations can proceed. Versions of interrupted tasks are never
// committed, so a retry with the pre-crash version still wins.
func (c *Commissioner) recover(ctx context.Context) error {
	for _, state := range []TaskState{TaskCreated, TaskRunning} {
		stale, err := c.deps.Tasks.List(ctx, TaskFilter{State: state})
		if err != nil {
			return err
		}
		for _, status := range stale {
			c.logger.WarnContext(ctx, "aborting interrupted task",
				slog.String("task_uuid", status.TaskUUID.String()),
				slog.String("task_type", string(status.Type)),
				slog.String("prior_state", string(state)))

			status.State = TaskAborted
			status.ErrorString = "aborted by crash recovery"
			now := c.deps.Now()
			status.CompletionTime = &now
			if err := c.deps.Tasks.Save(ctx, status); err != nil {
				return err
			}

			if state != TaskRunning {
				continue
			}
			err := c.deps.Universes.ForceRelease(ctx, status.UniverseUUID, status.ErrorString)
			if err != nil && !errors.Is(err, universe.ErrNotFound) {
				return err
			}
		}
	}
	return nil
}
