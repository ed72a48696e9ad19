package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/progress"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// PublisherSink forwards task completions and status reports to a topic.
// Alerts are delivered synchronously by the alert package instead.
type PublisherSink struct {
	pub    seo.Publisher
	topic  string
	logger *zap.Logger
}

// NewPublisherSink wraps pub. An empty topic disables the sink.
func NewPublisherSink(pub seo.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes each eligible event. Failures do not stop the batch; they
// are joined into the returned error.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil || s.topic == "" {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Type != progress.TypeTaskCompleted && evt.Type != progress.TypeStatus {
			continue
		}
		id, err := s.pub.Publish(ctx, s.topic, evt)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s to %s: %w", evt.Type, s.topic, err))
			continue
		}
		s.logger.Debug("event published",
			zap.String("topic", s.topic),
			zap.String("type", string(evt.Type)),
			zap.String("message_id", id),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; the publisher is owned by the caller.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
