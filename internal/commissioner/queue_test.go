package commissioner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
)

func newQueueTask(t *testing.T) *TaskInfo {
	t.Helper()
	task := NewTaskInfo(TaskAddNodeToUniverse, TaskParams{UniverseUUID: uuid.New()})
	require.True(t, task.MarkRunning())
	return task
}

func TestQueueRunsGroupsInOrder(t *testing.T) {
	task := newQueueTask(t)
	store := NewMemTaskStore()
	q := NewStepGroupQueue(task, store, nil)

	var mu sync.Mutex
	var order []string
	step := func(name string) Step {
		return NewStep(name, "", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, q.AddGroup("first", step("a")))
	require.NoError(t, q.AddGroup("second", step("b")))
	require.NoError(t, q.AddGroup("third", step("c")))

	require.NoError(t, q.Run(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, QueueDrained, q.State())

	status := task.Snapshot()
	assert.Equal(t, 100, status.PercentDone)
	for _, g := range status.Groups {
		assert.Equal(t, GroupSuccess, g.State)
	}
}

func TestQueueBarrierStopsLaterGroups(t *testing.T) {
	task := newQueueTask(t)
	q := NewStepGroupQueue(task, NewMemTaskStore(), nil)

	var thirdRan atomic.Bool
	require.NoError(t, q.AddGroup("ok", NewStep("fine", "", func(ctx context.Context) error { return nil })))
	require.NoError(t, q.AddGroup("boom", NewStep("explode", "", func(ctx context.Context) error {
		return errors.New("disk on fire")
	})))
	require.NoError(t, q.AddGroup("never", NewStep("unreached", "", func(ctx context.Context) error {
		thirdRan.Store(true)
		return nil
	})))

	err := q.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeStepFailed, ErrCode(err))
	assert.Equal(t, QueueAbortedOnFailure, q.State())
	assert.False(t, thirdRan.Load(), "group after a failed group must never start")

	status := task.Snapshot()
	assert.Equal(t, GroupSuccess, status.Groups[0].State)
	assert.Equal(t, GroupFailure, status.Groups[1].State)
	assert.Equal(t, GroupSkipped, status.Groups[2].State)
}

func TestQueueSiblingsRunToCompletionOnFailure(t *testing.T) {
	task := newQueueTask(t)
	q := NewStepGroupQueue(task, NewMemTaskStore(), nil)

	var siblingDone atomic.Bool
	require.NoError(t, q.AddGroup("mixed",
		NewStep("fails-fast", "", func(ctx context.Context) error {
			return errors.New("immediate failure")
		}),
		NewStep("slow-sibling", "", func(ctx context.Context) error {
			time.Sleep(50 * time.Millisecond)
			siblingDone.Store(true)
			return nil
		}),
	))

	err := q.Run(context.Background())
	require.Error(t, err)
	assert.True(t, siblingDone.Load(), "a failing step must not preempt its siblings")

	status := task.Snapshot()
	require.Len(t, status.Groups[0].Steps, 2)
	assert.Equal(t, StepFailure, status.Groups[0].Steps[0].State)
	assert.Equal(t, StepSuccess, status.Groups[0].Steps[1].State)
}

func TestQueueStepsRunConcurrently(t *testing.T) {
	task := newQueueTask(t)
	q := NewStepGroupQueue(task, NewMemTaskStore(), nil)

	const n = 8
	barrier := make(chan struct{})
	var arrived atomic.Int32
	steps := make([]Step, n)
	for i := 0; i < n; i++ {
		steps[i] = NewStep("fanout", "", func(ctx context.Context) error {
			if arrived.Add(1) == n {
				close(barrier)
			}
			select {
			case <-barrier:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("steps did not run in parallel")
			}
		})
	}
	require.NoError(t, q.AddGroup("parallel", steps...))
	require.NoError(t, q.Run(context.Background()))
}

func TestQueueRejectsGroupsAfterExecutionStarts(t *testing.T) {
	task := newQueueTask(t)
	q := NewStepGroupQueue(task, NewMemTaskStore(), nil)
	require.NoError(t, q.AddGroup("only", NewStep("noop", "", func(ctx context.Context) error { return nil })))
	require.NoError(t, q.Run(context.Background()))

	err := q.AddGroup("late", NewStep("noop", "", func(ctx context.Context) error { return nil }))
	require.Error(t, err)
}

func TestQueuePersistsProgressPerGroup(t *testing.T) {
	task := newQueueTask(t)
	store := NewMemTaskStore()
	q := NewStepGroupQueue(task, store, nil)

	var positionMidway int
	require.NoError(t, q.AddGroup("g1", NewStep("noop", "", func(ctx context.Context) error { return nil })))
	require.NoError(t, q.AddGroup("g2", NewStep("check", "", func(ctx context.Context) error {
		// The previous group's completion must already be durable.
		persisted, err := store.Get(ctx, task.UUID())
		if err != nil {
			return err
		}
		positionMidway = persisted.Position
		return nil
	})))

	require.NoError(t, q.Run(context.Background()))
	assert.Equal(t, 0, positionMidway)
}
