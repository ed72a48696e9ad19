package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// PrometheusSink exports task and audit results via Prometheus.
type PrometheusSink struct {
	taskRuns      *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	overallScore  prometheus.Gauge
	categoryScore *prometheus.GaugeVec
	serviceHealth *prometheus.GaugeVec
	alerts        *prometheus.CounterVec
	events        *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seo_task_runs_total",
			Help: "Completed task runs partitioned by task and status.",
		}, []string{"task", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seo_task_duration_seconds",
			Help:    "Wall time per completed task run.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"task"}),
		overallScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seo_audit_overall_score",
			Help: "Overall score of the most recent technical audit.",
		}),
		categoryScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seo_audit_category_score",
			Help: "Per category score of the most recent technical audit.",
		}, []string{"category"}),
		serviceHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seo_service_health",
			Help: "Service health: 1 healthy, 0.5 degraded, 0 unhealthy.",
		}, []string{"service"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seo_alerts_total",
			Help: "Alerts raised for failed scheduled runs.",
		}, []string{"task"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seo_dashboard_events_total",
			Help: "Dashboard events processed by type.",
		}, []string{"type"}),
	}
	for _, collector := range []prometheus.Collector{
		s.taskRuns,
		s.taskDuration,
		s.overallScore,
		s.categoryScore,
		s.serviceHealth,
		s.alerts,
		s.events,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.events.WithLabelValues(string(evt.Type)).Inc()
		switch evt.Type {
		case progress.TypeTaskCompleted:
			s.observeTask(*evt.Result)
		case progress.TypeStatus:
			for name, health := range evt.Health.Services {
				s.serviceHealth.WithLabelValues(name).Set(healthValue(health.Status))
			}
		case progress.TypeAlert:
			s.alerts.WithLabelValues(string(evt.Alert.Task)).Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) observeTask(res seo.TaskResult) {
	s.taskRuns.WithLabelValues(string(res.TaskName), string(res.Status)).Inc()
	if res.DurationMs > 0 {
		s.taskDuration.WithLabelValues(string(res.TaskName)).Observe(float64(res.DurationMs) / 1000)
	}
	run, ok := auditRun(res.Payload)
	if !ok {
		return
	}
	s.overallScore.Set(float64(run.OverallScore))
	for cat, cr := range run.Categories {
		if cr == nil {
			s.categoryScore.DeleteLabelValues(string(cat))
			continue
		}
		s.categoryScore.WithLabelValues(string(cat)).Set(float64(cr.Score))
	}
}

func auditRun(payload any) (seo.AuditRun, bool) {
	switch v := payload.(type) {
	case seo.AuditRun:
		return v, true
	case *seo.AuditRun:
		if v != nil {
			return *v, true
		}
	}
	return seo.AuditRun{}, false
}

func healthValue(state seo.HealthState) float64 {
	switch state {
	case seo.HealthHealthy:
		return 1
	case seo.HealthDegraded:
		return 0.5
	default:
		return 0
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
