package progress

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/JakeFAU/seo-orchestrator/internal/logging"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Type names the kind of an Event; it is also the "type" field clients switch on.
type Type string

// Event types.
const (
	TypeTaskCompleted Type = "task_completed"
	TypeStatus        Type = "status"
	TypeMetrics       Type = "metrics"
	TypeLogs          Type = "logs"
	TypeAlert         Type = "alert"
)

// Metrics is a periodic runtime snapshot pushed to dashboards.
type Metrics struct {
	UptimeSeconds  float64        `json:"uptime_seconds"`
	Goroutines     int            `json:"goroutines"`
	HeapAllocBytes uint64         `json:"heap_alloc_bytes"`
	RunningTasks   []seo.TaskName `json:"running_tasks"`
	LatestScore    *int           `json:"latest_score,omitempty"`
	VitalsScore    *int           `json:"vitals_score,omitempty"`
	HubEmitted     int64          `json:"hub_emitted"`
	HubDropped     int64          `json:"hub_dropped"`
}

// CollectRuntime fills the process fields of a Metrics snapshot.
func CollectRuntime(started, now time.Time) Metrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return Metrics{
		UptimeSeconds:  now.Sub(started).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		RunningTasks:   []seo.TaskName{},
	}
}

// Event is one message on the hub. Exactly one payload field is set, matching
// Type.
type Event struct {
	Type    Type              `json:"type"`
	TS      time.Time         `json:"timestamp"`
	Result  *seo.TaskResult   `json:"result,omitempty"`
	Health  *seo.HealthReport `json:"health,omitempty"`
	Metrics *Metrics          `json:"metrics,omitempty"`
	Log     *logging.Entry    `json:"log,omitempty"`
	Alert   *seo.Alert        `json:"alert,omitempty"`
}

// TaskCompleted wraps a finished task run.
func TaskCompleted(res seo.TaskResult) Event {
	return Event{Type: TypeTaskCompleted, TS: res.CompletedAt, Result: &res}
}

// Status wraps a health report.
func Status(report seo.HealthReport) Event {
	return Event{Type: TypeStatus, TS: report.CheckedAt, Health: &report}
}

// MetricsSnapshot wraps a metrics snapshot taken at ts.
func MetricsSnapshot(ts time.Time, m Metrics) Event {
	return Event{Type: TypeMetrics, TS: ts, Metrics: &m}
}

// Log wraps a recorded log entry.
func Log(entry logging.Entry) Event {
	return Event{Type: TypeLogs, TS: entry.Time, Log: &entry}
}

// AlertRaised wraps an alert.
func AlertRaised(a seo.Alert) Event {
	return Event{Type: TypeAlert, TS: a.At, Alert: &a}
}

// Validate checks that the payload matching Type is present.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	var ok bool
	switch e.Type {
	case TypeTaskCompleted:
		ok = e.Result != nil
	case TypeStatus:
		ok = e.Health != nil
	case TypeMetrics:
		ok = e.Metrics != nil
	case TypeLogs:
		ok = e.Log != nil
	case TypeAlert:
		ok = e.Alert != nil
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if !ok {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	return nil
}

// Attributes labels the event when it is published to a message bus.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{"event_type": string(e.Type)}
	switch {
	case e.Result != nil:
		attrs["task"] = string(e.Result.TaskName)
		attrs["status"] = string(e.Result.Status)
	case e.Alert != nil:
		attrs["task"] = string(e.Alert.Task)
	case e.Health != nil:
		attrs["status"] = string(e.Health.Overall)
	}
	return attrs
}
