package core

import "time"

// TaskDirective is returned by a BeforeTask hook.
type TaskDirective int

const (
	Continue      TaskDirective = iota // Run the route loop
	SkipRouteLoop                      // Skip the route loop for this round
)

// String returns the string representation of TaskDirective
func (d TaskDirective) String() string {
	switch d {
	case Continue:
		return "continue"
	case SkipRouteLoop:
		return "skip"
	default:
		return "unknown"
	}
}

// TaskHook runs before a task round.
type TaskHook func(t *Task) TaskDirective

// TaskEndHook runs after a task round.
type TaskEndHook func(t *Task)

// TaskConfig is a task as registered. Nil fields take engine defaults.
// BeforeRoute and AfterRoute are older names for BeforeTask and AfterTask;
// the newer name wins when both are set.
type TaskConfig struct {
	Name string

	MaxTaskRunTimes  *int
	MaxTaskDuring    *time.Duration
	MinRoundInterval *time.Duration
	ForceStop        *bool
	FindRouteDelay   *time.Duration

	BeforeTask  TaskHook
	BeforeRoute TaskHook
	AfterTask   TaskEndHook
	AfterRoute  TaskEndHook
}

// Task is a resolved task plus its run state.
type Task struct {
	Name string

	MaxTaskRunTimes  int
	MaxTaskDuring    time.Duration
	MinRoundInterval time.Duration
	ForceStop        bool
	FindRouteDelay   time.Duration

	BeforeTask TaskHook
	AfterTask  TaskEndHook

	StartTime   time.Time
	LastRunTime time.Time
	RunTimes    int
}

// HasRun reports whether the task completed a round before.
func (t *Task) HasRun() bool {
	return !t.LastRunTime.IsZero()
}
