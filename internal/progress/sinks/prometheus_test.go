package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

func TestPrometheusSinkRecordsTaskRuns(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	run := seo.AuditRun{
		ID:           "audit-1",
		OverallScore: 72,
		Categories: map[seo.Category]*seo.CategoryResult{
			seo.CategoryCoreWebVitals: {Score: 64},
			seo.CategorySecurity:      {Score: 80},
			seo.CategoryMobile:        nil,
		},
	}
	batch := []progress.Event{
		progress.TaskCompleted(seo.TaskResult{
			TaskName:    seo.TaskTechnicalSEO,
			Status:      seo.TaskStatusSuccess,
			CompletedAt: now,
			DurationMs:  2500,
			Payload:     run,
		}),
		progress.TaskCompleted(seo.TaskResult{
			TaskName:    seo.TaskContentUpdate,
			Status:      seo.TaskStatusFailure,
			CompletedAt: now,
		}),
		progress.AlertRaised(seo.Alert{Task: seo.TaskContentUpdate, At: now}),
		progress.Status(seo.HealthReport{
			CheckedAt: now,
			Services: map[string]seo.ServiceHealth{
				"technical-seo": {Status: seo.HealthDegraded},
			},
		}),
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.taskRuns.WithLabelValues("technical-seo", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.taskRuns.WithLabelValues("content-update", "failure")))
	require.Equal(t, 72.0, testutil.ToFloat64(sink.overallScore))
	require.Equal(t, 64.0, testutil.ToFloat64(sink.categoryScore.WithLabelValues("core_web_vitals")))
	require.Equal(t, 2, testutil.CollectAndCount(sink.categoryScore, "seo_audit_category_score"))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.alerts.WithLabelValues("content-update")))
	require.Equal(t, 0.5, testutil.ToFloat64(sink.serviceHealth.WithLabelValues("technical-seo")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.events.WithLabelValues("task_completed")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.taskDuration, "seo_task_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
