package commissioner

import (
	"errors"
	"fmt"
)

// Code classifies task errors
type Code string

const (
	// Submission-time: rejected before any state is created.
	CodeUnknownOperation Code = "UnknownOperation"
	CodeQueueSaturated   Code = "QueueSaturated"

	// Lock-acquisition-time: surfaced to the caller as a conflict. The
	// engine performs no automatic retry; the caller refetches and
	// retries.
	CodeStaleVersion  Code = "StaleVersion"
	CodeAlreadyLocked Code = "AlreadyLocked"

	// Raised by a planner before any mutating step runs.
	CodePreconditionFailed Code = "PreconditionFailed"

	// A step executor exhausted its own bounded retries.
	CodeStepFailed Code = "StepFailed"

	// Anything not anticipated, caught at the runner boundary.
	CodeUnexpectedFault Code = "UnexpectedFault"

	CodeNotFound Code = "NotFound"
)

// TaskError is the engine's error type. Business failures are ordinary
// values of this type; only genuinely unexpected faults carry a cause
// that is not user-facing.
type TaskError struct {
	Code    Code
	Step    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *TaskError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// NewUnknownOperation reports an unregistered operation type
func NewUnknownOperation(taskType TaskType) *TaskError {
	return &TaskError{
		Code:    CodeUnknownOperation,
		Message: fmt.Sprintf("operation type %q is not registered", taskType),
	}
}

// NewQueueSaturated reports worker pool admission rejection
func NewQueueSaturated(depth int) *TaskError {
	return &TaskError{
		Code:    CodeQueueSaturated,
		Message: fmt.Sprintf("task queue is saturated (%d tasks admitted)", depth),
	}
}

// NewStaleVersion reports an optimistic version conflict
func NewStaleVersion(cause error) *TaskError {
	return &TaskError{
		Code:    CodeStaleVersion,
		Message: "universe was modified since it was read, refetch and retry",
		Cause:   cause,
	}
}

// NewAlreadyLocked reports a concurrent update in progress
func NewAlreadyLocked(cause error) *TaskError {
	return &TaskError{
		Code:    CodeAlreadyLocked,
		Message: "universe has another update in progress",
		Cause:   cause,
	}
}

// NewPreconditionFailed reports a plan-time precondition violation
func NewPreconditionFailed(message string) *TaskError {
	return &TaskError{
		Code:    CodePreconditionFailed,
		Message: message,
	}
}

// NewStepFailed wraps a failing step's error
func NewStepFailed(step string, cause error) *TaskError {
	return &TaskError{
		Code:    CodeStepFailed,
		Step:    step,
		Message: cause.Error(),
		Cause:   cause,
	}
}

// NewUnexpectedFault wraps a recovered panic. The message stays generic;
// the detail is logged at the recovery site, not shown to callers.
func NewUnexpectedFault(rec interface{}) *TaskError {
	return &TaskError{
		Code:    CodeUnexpectedFault,
		Message: "internal error while executing task",
		Cause:   fmt.Errorf("panic: %v", rec),
	}
}

// NewNotFound reports a missing resource
func NewNotFound(resource string) *TaskError {
	return &TaskError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ErrCode extracts the Code from an error, or empty
func ErrCode(err error) Code {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
