package commissioner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"universed/internal/universe"
)

func newRunnerFixture(t *testing.T) (*Runner, *Registry, *Deps, *universe.Universe) {
	t.Helper()
	store := universe.NewMemStore()
	u := &universe.Universe{
		UUID:              uuid.New(),
		Name:              "test-universe",
		Version:           5,
		ReplicationFactor: 1,
		Nodes: map[string]*universe.NodeDetails{
			"n1": {NodeName: "n1", State: universe.NodeLive, IsMaster: true, IsTserver: true},
		},
	}
	require.NoError(t, store.Create(context.Background(), u))

	registry := NewRegistry()
	deps := &Deps{
		Universes: store,
		Tasks:     NewMemTaskStore(),
	}
	return NewRunner(registry, deps, time.Minute), registry, deps, u
}

func execute(t *testing.T, r *Runner, registry *Registry, params TaskParams, plan Planner) (*TaskInfo, error) {
	t.Helper()
	registry.Register(TaskCreateTable, plan)
	task := NewTaskInfo(TaskCreateTable, params)
	return task, r.Execute(context.Background(), task)
}

func TestRunnerSuccessCommitsVersionAndUnlocks(t *testing.T) {
	r, registry, deps, u := newRunnerFixture(t)

	task, err := execute(t, r, registry,
		TaskParams{UniverseUUID: u.UUID, ExpectedVersion: 5},
		func(d *Deps, u *universe.Universe, p TaskParams) ([]StepGroup, error) {
			return []StepGroup{{Name: "G", Steps: []Step{
				NewStep("noop", "", func(ctx context.Context) error { return nil }),
			}}}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, TaskSuccess, task.State())

	after, err := deps.Universes.Get(context.Background(), u.UUID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), after.Version, "success must commit the next version")
	assert.False(t, after.UpdateInProgress)
	assert.Empty(t, after.ErrorString)
}

func TestRunnerStepFailureUnlocksWithoutVersionBump(t *testing.T) {
	r, registry, deps, u := newRunnerFixture(t)

	task, err := execute(t, r, registry,
		TaskParams{UniverseUUID: u.UUID, ExpectedVersion: 5},
		func(d *Deps, u *universe.Universe, p TaskParams) ([]StepGroup, error) {
			return []StepGroup{{Name: "G", Steps: []Step{
				NewStep("boom", "", func(ctx context.Context) error {
					return errors.New("infrastructure said no")
				}),
			}}}, nil
		})
	require.Error(t, err)
	assert.Equal(t, CodeStepFailed, ErrCode(err))
	assert.Equal(t, TaskFailure, task.State())

	after, err := deps.Universes.Get(context.Background(), u.UUID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), after.Version, "failure must not advance the version")
	assert.False(t, after.UpdateInProgress, "lock must be released on failure")
	assert.Contains(t, after.ErrorString, "infrastructure said no")
}

func TestRunnerPanicBecomesUnexpectedFaultAndUnlocks(t *testing.T) {
	r, registry, deps, u := newRunnerFixture(t)

	task, err := execute(t, r, registry,
		TaskParams{UniverseUUID: u.UUID, ExpectedVersion: universe.VersionAny},
		func(d *Deps, u *universe.Universe, p TaskParams) ([]StepGroup, error) {
			panic("planner bug")
		})
	require.Error(t, err)
	assert.Equal(t, CodeUnexpectedFault, ErrCode(err))
	assert.Equal(t, TaskFailure, task.State())
	assert.NotContains(t, err.Error(), "planner bug",
		"panic detail must not leak into the user-facing message")

	after, err := deps.Universes.Get(context.Background(), u.UUID)
	require.NoError(t, err)
	assert.False(t, after.UpdateInProgress, "lock must be released after a panic")
	assert.Equal(t, int64(5), after.Version)
}

func TestRunnerStaleVersionFailsBeforeAnyStep(t *testing.T) {
	r, registry, deps, u := newRunnerFixture(t)

	stepRan := false
	task, err := execute(t, r, registry,
		TaskParams{UniverseUUID: u.UUID, ExpectedVersion: 3},
		func(d *Deps, u *universe.Universe, p TaskParams) ([]StepGroup, error) {
			return []StepGroup{{Name: "G", Steps: []Step{
				NewStep("noop", "", func(ctx context.Context) error {
					stepRan = true
					return nil
				}),
			}}}, nil
		})
	require.Error(t, err)
	assert.Equal(t, CodeStaleVersion, ErrCode(err))
	assert.Equal(t, TaskFailure, task.State())
	assert.False(t, stepRan)

	after, err := deps.Universes.Get(context.Background(), u.UUID)
	require.NoError(t, err)
	assert.False(t, after.UpdateInProgress)
}

func TestRunnerAlreadyLockedConflict(t *testing.T) {
	r, registry, deps, u := newRunnerFixture(t)

	// Simulate another in-flight operation.
	_, handle, err := deps.Universes.Lock(context.Background(), u.UUID, universe.VersionAny, false)
	require.NoError(t, err)

	task, err := execute(t, r, registry,
		TaskParams{UniverseUUID: u.UUID, ExpectedVersion: universe.VersionAny},
		func(d *Deps, u *universe.Universe, p TaskParams) ([]StepGroup, error) {
			return nil, nil
		})
	require.Error(t, err)
	assert.Equal(t, CodeAlreadyLocked, ErrCode(err))
	assert.Equal(t, TaskFailure, task.State())

	require.NoError(t, deps.Universes.Release(context.Background(), handle, ""))
}

func TestRunnerPreconditionFailureFromPlanner(t *testing.T) {
	r, registry, deps, u := newRunnerFixture(t)

	task, err := execute(t, r, registry,
		TaskParams{UniverseUUID: u.UUID, ExpectedVersion: universe.VersionAny},
		func(d *Deps, u *universe.Universe, p TaskParams) ([]StepGroup, error) {
			return nil, NewPreconditionFailed("node is in the wrong state")
		})
	require.Error(t, err)
	assert.Equal(t, CodePreconditionFailed, ErrCode(err))
	assert.Equal(t, TaskFailure, task.State())

	after, err := deps.Universes.Get(context.Background(), u.UUID)
	require.NoError(t, err)
	assert.False(t, after.UpdateInProgress)
	assert.Contains(t, after.ErrorString, "node is in the wrong state")
}
