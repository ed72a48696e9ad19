package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/seo-orchestrator/internal/logging"
	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	now := time.Now()

	batch := []progress.Event{
		progress.TaskCompleted(seo.TaskResult{ID: "ok", TaskName: seo.TaskReporting, Status: seo.TaskStatusSuccess, CompletedAt: now}),
		progress.TaskCompleted(seo.TaskResult{ID: "bad", TaskName: seo.TaskSearchEngineNotification, Status: seo.TaskStatusFailure, CompletedAt: now}),
		progress.AlertRaised(seo.Alert{Task: seo.TaskSearchEngineNotification, Message: "ping failed", At: now}),
		progress.Status(seo.HealthReport{Overall: seo.HealthUnhealthy, CheckedAt: now}),
		progress.Log(logging.Entry{Time: now, Level: "info", Service: "scheduler", Message: "tick"}),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "bad", entries[0].ContextMap()["run_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "ping failed", entries[1].ContextMap()["message"])
	assert.Equal(t, "unhealthy", entries[2].ContextMap()["overall"])
	require.NoError(t, sink.Close(context.Background()))
}
