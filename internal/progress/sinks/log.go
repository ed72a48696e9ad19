package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// LogSink mirrors dashboard events into the structured log. Routine traffic
// goes out at debug; failures, alerts and unhealthy reports are raised so they
// show up at the default level. Log events are skipped because they came from
// the logger in the first place.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a LogSink writing to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event with fields describing its payload.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Type == progress.TypeLogs {
			continue
		}
		level, fields := describe(evt)
		if ce := s.logger.Check(level, "dashboard event"); ce != nil {
			ce.Write(append(fields, zap.String("type", string(evt.Type)), zap.Time("ts", evt.TS))...)
		}
	}
	return nil
}

func describe(evt progress.Event) (zapcore.Level, []zap.Field) {
	switch {
	case evt.Result != nil:
		level := zapcore.DebugLevel
		if evt.Result.Status != seo.TaskStatusSuccess {
			level = zapcore.InfoLevel
		}
		return level, []zap.Field{
			zap.String("run_id", evt.Result.ID),
			zap.String("task", string(evt.Result.TaskName)),
			zap.String("status", string(evt.Result.Status)),
			zap.Int64("duration_ms", evt.Result.DurationMs),
		}
	case evt.Health != nil:
		level := zapcore.DebugLevel
		if evt.Health.Overall == seo.HealthUnhealthy {
			level = zapcore.WarnLevel
		}
		return level, []zap.Field{zap.String("overall", string(evt.Health.Overall))}
	case evt.Alert != nil:
		return zapcore.WarnLevel, []zap.Field{
			zap.String("task", string(evt.Alert.Task)),
			zap.String("message", evt.Alert.Message),
		}
	case evt.Metrics != nil:
		return zapcore.DebugLevel, []zap.Field{
			zap.Int("goroutines", evt.Metrics.Goroutines),
			zap.Int("running_tasks", len(evt.Metrics.RunningTasks)),
		}
	default:
		return zapcore.DebugLevel, nil
	}
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}
