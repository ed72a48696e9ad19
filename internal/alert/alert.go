// Package alert delivers failure alerts for scheduled task runs.
package alert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Notifier delivers an alert somewhere a human will see it.
type Notifier interface {
	Notify(ctx context.Context, a seo.Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a seo.Alert) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, a seo.Alert) error {
	return f(ctx, a)
}

// Log writes alerts at error level.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a Log notifier.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Notify implements Notifier.
func (l *Log) Notify(_ context.Context, a seo.Alert) error {
	l.logger.Error("task alert",
		zap.String("task", string(a.Task)),
		zap.String("trigger", string(a.Trigger)),
		zap.String("run_id", a.RunID),
		zap.String("message", a.Message),
		zap.String("error", a.Error),
		zap.Time("at", a.At),
	)
	return nil
}

// Publisher sends alerts to a message topic.
type Publisher struct {
	pub   seo.Publisher
	topic string
}

// NewPublisher returns a notifier publishing to topic.
func NewPublisher(pub seo.Publisher, topic string) *Publisher {
	return &Publisher{pub: pub, topic: topic}
}

// Notify implements Notifier.
func (p *Publisher) Notify(ctx context.Context, a seo.Alert) error {
	if p.pub == nil || p.topic == "" {
		return nil
	}
	if _, err := p.pub.Publish(ctx, p.topic, a); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Emitter forwards alerts to dashboard subscribers.
type Emitter struct {
	emitter progress.Emitter
}

// NewEmitter wraps a progress emitter.
func NewEmitter(e progress.Emitter) *Emitter {
	return &Emitter{emitter: e}
}

// Notify implements Notifier.
func (e *Emitter) Notify(_ context.Context, a seo.Alert) error {
	if e.emitter != nil {
		e.emitter.Emit(progress.AlertRaised(a))
	}
	return nil
}

// Multi fans an alert out to every notifier. All notifiers are attempted.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, a seo.Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
