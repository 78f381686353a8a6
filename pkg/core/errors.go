package core

import "fmt"

// ExecutionError is an engine error carrying a category and a stable code.
// The predefined values below are templates; derive from them with the
// With* methods rather than mutating them.
type ExecutionError struct {
	Category ErrorCategory
	Code     string // stable identifier, e.g. "route_conflict"
	Message  string
	Details  map[string]interface{}
	Cause    error
}

func (e *ExecutionError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches any ExecutionError with the same non-empty code.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	return ok && e.Code != "" && e.Code == t.Code
}

func (e *ExecutionError) clone() *ExecutionError {
	c := *e
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithMessage returns a copy with msg replacing the message.
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	c := e.clone()
	c.Message = msg
	return c
}

// WithDetails returns a copy whose details are the receiver's merged with
// details. Later keys win.
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	c := e.clone()
	c.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		c.Details[k] = v
	}
	for k, v := range details {
		c.Details[k] = v
	}
	return c
}

func newError(cat ErrorCategory, code, msg string) *ExecutionError {
	return &ExecutionError{Category: cat, Code: code, Message: msg}
}

var (
	ErrDuplicateRoute = newError(ErrCategoryConfig, "duplicate_route", "a route with this path is already registered")
	ErrDuplicateTask  = newError(ErrCategoryConfig, "duplicate_task", "a task with this name is already registered")
	ErrMissingTarget  = newError(ErrCategoryConfig, "missing_target", "matched page has no next/back target")
	ErrInvalidConfig  = newError(ErrCategoryConfig, "invalid_config", "invalid configuration")
	ErrNoTasks        = newError(ErrCategoryConfig, "no_tasks", "no tasks registered")

	ErrCallbackFailed = newError(ErrCategoryCallback, "callback_failed", "callback failed")
	ErrRouteConflict  = newError(ErrCategoryConflict, "route_conflict", "multiple routes matched at the same priority")
	ErrCaptureFailed  = newError(ErrCategoryDevice, "capture_failed", "screen capture failed")

	ErrNoPackage      = newError(ErrCategoryApp, "no_package", "no package name configured")
	ErrAppNotLaunched = newError(ErrCategoryApp, "app_not_launched", "app did not reach the foreground")

	ErrReplayFailed = newError(ErrCategoryReplay, "replay_failed", "errors encountered")
)
