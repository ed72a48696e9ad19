package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/publisher/memory"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

func TestPublisherSinkForwardsRunsAndStatus(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublisherSink(pub, "events", nil)
	now := time.Now()

	batch := []progress.Event{
		progress.TaskCompleted(seo.TaskResult{ID: "r1", TaskName: seo.TaskReporting, CompletedAt: now}),
		progress.AlertRaised(seo.Alert{Task: seo.TaskReporting, Message: "boom", At: now}),
		progress.MetricsSnapshot(now, progress.Metrics{Goroutines: 3}),
		progress.Status(seo.HealthReport{Overall: seo.HealthHealthy, CheckedAt: now}),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		assert.Equal(t, "events", msg.Topic)
	}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[1].Data, &decoded))
	assert.Equal(t, "status", decoded["type"])
}

func TestPublisherSinkDisabledWithoutTopic(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublisherSink(pub, "", nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		progress.TaskCompleted(seo.TaskResult{ID: "r1", CompletedAt: time.Now()}),
	}))
	assert.Empty(t, pub.Messages())
}

func TestPublisherSinkJoinsErrors(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("unavailable"))
	sink := NewPublisherSink(pub, "events", nil)
	now := time.Now()

	err := sink.Consume(context.Background(), []progress.Event{
		progress.TaskCompleted(seo.TaskResult{ID: "r1", CompletedAt: now}),
		progress.Status(seo.HealthReport{CheckedAt: now}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish task_completed to events")
	assert.Contains(t, err.Error(), "publish status to events")
}
