package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/publisher/memory"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

func sampleAlert() seo.Alert {
	return seo.Alert{
		Task:    seo.TaskContentUpdate,
		Trigger: seo.TriggerScheduled,
		RunID:   "run-7",
		Message: "content-update failed",
		Error:   "sitemap unreachable",
		At:      time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC),
	}
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	require.NoError(t, NewLog(zap.New(core)).Notify(context.Background(), sampleAlert()))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "task alert", entries[0].Message)
	assert.Equal(t, "content-update", entries[0].ContextMap()["task"])
}

func TestPublisherNotifier(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	require.NoError(t, NewPublisher(pub, "alerts").Notify(context.Background(), sampleAlert()))
	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alerts", msgs[0].Topic)
	assert.Contains(t, string(msgs[0].Data), `"run_id":"run-7"`)

	pub.FailWith(errors.New("down"))
	err := NewPublisher(pub, "alerts").Notify(context.Background(), sampleAlert())
	require.ErrorContains(t, err, "publish alert")

	require.NoError(t, NewPublisher(pub, "").Notify(context.Background(), sampleAlert()))
}

func TestEmitterNotifier(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	require.NoError(t, NewEmitter(rec).Notify(context.Background(), sampleAlert()))
	require.Len(t, rec.events, 1)
	assert.Equal(t, progress.TypeAlert, rec.events[0].Type)
	assert.Equal(t, "run-7", rec.events[0].Alert.RunID)
}

func TestMultiAttemptsAll(t *testing.T) {
	t.Parallel()

	var calls int
	failing := NotifierFunc(func(context.Context, seo.Alert) error {
		calls++
		return errors.New("first failed")
	})
	counting := NotifierFunc(func(context.Context, seo.Alert) error {
		calls++
		return nil
	})

	err := Multi{failing, nil, counting}.Notify(context.Background(), sampleAlert())
	require.ErrorContains(t, err, "first failed")
	assert.Equal(t, 2, calls)
}

type recordingEmitter struct {
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.events = append(r.events, evt)
}
