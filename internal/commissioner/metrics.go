package commissioner

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the engine's OpenTelemetry instruments. A nil *Metrics is
// valid and records nothing, so tests and tools can run without a meter.
type Metrics struct {
	tasksSubmitted metric.Int64Counter
	tasksCompleted metric.Int64Counter
	activeTasks    metric.Int64UpDownCounter
	stepDuration   metric.Float64Histogram
	groupDuration  metric.Float64Histogram
}

// NewMetrics registers the engine instruments on a meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.tasksSubmitted, err = meter.Int64Counter("commissioner.tasks.submitted",
		metric.WithDescription("Tasks accepted by the commissioner"))
	if err != nil {
		return nil, err
	}

	m.tasksCompleted, err = meter.Int64Counter("commissioner.tasks.completed",
		metric.WithDescription("Tasks that reached a terminal state"))
	if err != nil {
		return nil, err
	}

	m.activeTasks, err = meter.Int64UpDownCounter("commissioner.tasks.active",
		metric.WithDescription("Tasks currently holding a worker"))
	if err != nil {
		return nil, err
	}

	m.stepDuration, err = meter.Float64Histogram("commissioner.step.duration",
		metric.WithDescription("Step execution time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.groupDuration, err = meter.Float64Histogram("commissioner.group.duration",
		metric.WithDescription("Step group execution time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSubmitted counts a task accepted for execution
func (m *Metrics) RecordSubmitted(ctx context.Context, taskType TaskType) {
	if m == nil {
		return
	}
	m.tasksSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", string(taskType))))
	m.activeTasks.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", string(taskType))))
}

// RecordCompleted counts a task reaching a terminal state
func (m *Metrics) RecordCompleted(ctx context.Context, taskType TaskType, state TaskState) {
	if m == nil {
		return
	}
	m.tasksCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", string(taskType)),
		attribute.String("state", string(state))))
	m.activeTasks.Add(ctx, -1, metric.WithAttributes(attribute.String("task_type", string(taskType))))
}

// RecordStepDuration records one step's wall time
func (m *Metrics) RecordStepDuration(ctx context.Context, group, step string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.stepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("group", group),
		attribute.String("step", step),
		attribute.Bool("success", success)))
}

// RecordGroupDuration records one group's wall time
func (m *Metrics) RecordGroupDuration(ctx context.Context, group string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.groupDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("group", group),
		attribute.Bool("success", success)))
}
