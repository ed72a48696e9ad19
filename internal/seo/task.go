package seo

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownTask is returned when a task name is not part of the closed task set
// or has no registered handler.
var ErrUnknownTask = errors.New("unknown task")

// ErrTaskInFlight is returned when a task is invoked while a previous run of the
// same task is still executing.
var ErrTaskInFlight = errors.New("task already running")

// TaskName identifies one of the recurring jobs managed by the scheduler.
type TaskName string

// The closed set of task names.
const (
	TaskContentUpdate            TaskName = "content-update"
	TaskSearchEngineNotification TaskName = "search-engine-notification"
	TaskPerformanceMonitoring    TaskName = "performance-monitoring"
	TaskTechnicalSEO             TaskName = "technical-seo"
	TaskReporting                TaskName = "reporting"
)

var taskNames = []TaskName{
	TaskContentUpdate,
	TaskSearchEngineNotification,
	TaskPerformanceMonitoring,
	TaskTechnicalSEO,
	TaskReporting,
}

// TaskNames returns every known task name in a stable order.
func TaskNames() []TaskName {
	out := make([]TaskName, len(taskNames))
	copy(out, taskNames)
	return out
}

// Valid reports whether n belongs to the closed task set.
func (n TaskName) Valid() bool {
	for _, known := range taskNames {
		if n == known {
			return true
		}
	}
	return false
}

// ParseTaskName normalizes s and returns the matching TaskName.
func ParseTaskName(s string) (TaskName, error) {
	name := TaskName(strings.ToLower(strings.TrimSpace(s)))
	if !name.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, s)
	}
	return name, nil
}

// Trigger records what started a task run.
type Trigger string

// Trigger values.
const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// TaskStatus is the terminal state of a task run.
type TaskStatus string

// TaskStatus values.
const (
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailure TaskStatus = "failure"
	TaskStatusSkipped TaskStatus = "skipped"
)

// TaskResult describes one execution of a task.
type TaskResult struct {
	ID          string     `json:"id"`
	TaskName    TaskName   `json:"task_name"`
	Trigger     Trigger    `json:"trigger"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	DurationMs  int64      `json:"duration_ms"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	Payload     any        `json:"payload,omitempty"`
}

// TaskSchedule is one automation entry: a task, its cron expression and whether it
// is scheduled at all.
type TaskSchedule struct {
	Name       TaskName `json:"name"`
	Expression string   `json:"schedule"`
	Enabled    bool     `json:"enabled"`
}

// TaskOptions carries caller supplied options for a single task run.
type TaskOptions map[string]any

// Strings returns the string list stored under key. A single string value is
// returned as a one element slice.
func (o TaskOptions) Strings(key string) []string {
	raw, ok := o[key]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Bool returns the boolean stored under key, or def when absent or mistyped.
func (o TaskOptions) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}
