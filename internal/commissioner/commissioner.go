package commissioner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"universed/internal/config"
)

// Commissioner is the operation dispatcher: it admits requests against a
// bounded queue, hands them to a fixed worker pool, and exposes tracking
// records while they run and after they finish.
type Commissioner struct {
	cfg      config.EngineConfig
	registry *Registry
	runner   *Runner
	deps     *Deps
	logger   *slog.Logger

	// slots bounds admitted-but-unfinished tasks; a slot is reserved
	// before the tracking record exists and released when the task
	// reaches a terminal state, so cap(queue) == cap(slots) makes the
	// enqueue below non-blocking.
	slots chan struct{}
	queue chan *TaskInfo

	mu     sync.RWMutex
	active map[uuid.UUID]*TaskInfo

	wg       sync.WaitGroup
	shutdown chan struct{}
	started  bool
}

// New creates a commissioner over a registry and dependency bundle
func New(cfg config.EngineConfig, registry *Registry, deps *Deps) *Commissioner {
	return &Commissioner{
		cfg:      cfg,
		registry: registry,
		runner:   NewRunner(registry, deps, cfg.GroupTimeout),
		deps:     deps,
		logger:   deps.Log().With(slog.String("component", "commissioner")),
		slots:    make(chan struct{}, cfg.QueueDepth),
		queue:    make(chan *TaskInfo, cfg.QueueDepth),
		active:   make(map[uuid.UUID]*TaskInfo),
		shutdown: make(chan struct{}),
	}
}

// Start launches the worker pool and runs the crash recovery pass
func (c *Commissioner) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if err := c.recover(ctx); err != nil {
		return err
	}

	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	c.logger.InfoContext(ctx, "commissioner_started",
		slog.Int("workers", c.cfg.Workers),
		slog.Int("queue_depth", c.cfg.QueueDepth))
	return nil
}

// Stop drains the workers. Queued tasks that have not started are aborted
// so their records do not stay Created forever.
func (c *Commissioner) Stop(ctx context.Context) {
	close(c.shutdown)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.WarnContext(ctx, "commissioner_stop_timed_out")
	}

	for {
		select {
		case task := <-c.queue:
			task.Abort("shutting down")
			c.persist(ctx, task)
			c.release(task)
		default:
			c.logger.InfoContext(ctx, "commissioner_stopped")
			return
		}
	}
}

// Submit admits an operation. On success the tracking record exists in
// state Created and a worker will pick it up; the returned UUID is the
// poll handle. A full queue fails fast with QueueSaturated and creates
// nothing.
func (c *Commissioner) Submit(ctx context.Context, taskType TaskType, params TaskParams) (uuid.UUID, error) {
	if _, err := c.registry.Get(taskType); err != nil {
		return uuid.Nil, err
	}

	select {
	case c.slots <- struct{}{}:
	default:
		return uuid.Nil, NewQueueSaturated(c.cfg.QueueDepth)
	}

	task := NewTaskInfo(taskType, params)
	if err := c.deps.Tasks.Save(ctx, task.Snapshot()); err != nil {
		<-c.slots
		return uuid.Nil, err
	}

	c.mu.Lock()
	c.active[task.UUID()] = task
	c.mu.Unlock()

	c.queue <- task
	c.deps.Metrics.RecordSubmitted(ctx, taskType)
	c.logger.InfoContext(ctx, "task_submitted",
		slog.String("task_type", string(taskType)),
		slog.String("task_uuid", task.UUID().String()),
		slog.String("universe_uuid", params.UniverseUUID.String()))
	return task.UUID(), nil
}

// Status returns the tracking record for a task. Live tasks are answered
// from memory, finished ones from the store.
func (c *Commissioner) Status(ctx context.Context, id uuid.UUID) (*TaskStatus, error) {
	c.mu.RLock()
	task, ok := c.active[id]
	c.mu.RUnlock()
	if ok {
		return task.Snapshot(), nil
	}
	return c.deps.Tasks.Get(ctx, id)
}

// List returns stored tracking records matching a filter
func (c *Commissioner) List(ctx context.Context, filter TaskFilter) ([]*TaskStatus, error) {
	return c.deps.Tasks.List(ctx, filter)
}

func (c *Commissioner) worker(id int) {
	defer c.wg.Done()
	logger := c.logger.With(slog.Int("worker", id))
	for {
		select {
		case <-c.shutdown:
			return
		case task := <-c.queue:
			c.processTask(task, logger)
		}
	}
}

func (c *Commissioner) processTask(task *TaskInfo, logger *slog.Logger) {
	ctx := context.Background()
	defer func() {
		// Backstop only; Execute recovers panics from task code itself.
		if rec := recover(); rec != nil {
			logger.Error("worker recovered from panic",
				slog.String("task_uuid", task.UUID().String()),
				slog.Any("panic", rec))
			task.Fail(NewUnexpectedFault(rec).Error())
			c.persist(ctx, task)
		}
		c.release(task)
	}()

	_ = c.runner.Execute(ctx, task)
}

func (c *Commissioner) release(task *TaskInfo) {
	c.mu.Lock()
	delete(c.active, task.UUID())
	c.mu.Unlock()
	<-c.slots
}

func (c *Commissioner) persist(ctx context.Context, task *TaskInfo) {
	if err := c.deps.Tasks.Save(ctx, task.Snapshot()); err != nil {
		c.logger.ErrorContext(ctx, "failed to persist task state",
			slog.String("task_uuid", task.UUID().String()),
			slog.String("error", err.Error()))
	}
}
