package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 4096).
//   - MaxBatchEvents: flush once this many events queue (default 1000).
//   - MaxBatchWait: longest an event waits in a partial batch (default 500ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Stats is a point-in-time view of hub throughput.
type Stats struct {
	Emitted    int64 `json:"emitted"`
	Dropped    int64 `json:"dropped"`
	SinkErrors int64 `json:"sink_errors"`
	Sinks      int   `json:"sinks"`
}

// Hub aggregates Event streams and fans them out to registered sinks. It is
// safe for concurrent use and never blocks callers. Each batch is delivered to
// every sink concurrently, so a slow Pub/Sub sink does not hold back the
// dashboard stream.
type Hub struct {
	cfg    Config
	logger *zap.Logger

	sinkMu sync.RWMutex
	sinks  []Sink

	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}

	emitted    atomic.Int64
	dropped    atomic.Int64
	sinkErrors atomic.Int64
	sinceWarn  atomic.Int64
	dropLog    rate.Sometimes
	closed     atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine and returns a Hub ready for events.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		logger:  logger,
		sinks:   compactSinks(sinks),
		events:  make(chan Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// AddSink registers sink for subsequent batches. Sinks added after Close are
// closed immediately.
func (h *Hub) AddSink(sink Sink) {
	if h == nil || sink == nil {
		return
	}
	if h.closed.Load() {
		_ = sink.Close(context.Background())
		return
	}
	h.sinkMu.Lock()
	h.sinks = append(h.sinks, sink)
	h.sinkMu.Unlock()
}

// Stats reports accepted and dropped events and failed sink deliveries since start.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{
		Emitted:    h.emitted.Load(),
		Dropped:    h.dropped.Load(),
		SinkErrors: h.sinkErrors.Load(),
		Sinks:      len(h.snapshotSinks()),
	}
}

func (h *Hub) snapshotSinks() []Sink {
	h.sinkMu.RLock()
	defer h.sinkMu.RUnlock()
	return append([]Sink(nil), h.sinks...)
}

// Emit enqueues an Event for batching. A full buffer drops the event; drops are
// reported in Stats and in a warning logged at most every few seconds.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		h.emitted.Add(1)
	default:
		h.dropped.Add(1)
		h.sinceWarn.Add(1)
		warn := false
		h.dropLog.Do(func() { warn = true })
		if warn {
			h.logger.Warn("events dropped due to backpressure",
				zap.Int64("dropped", h.sinceWarn.Swap(0)),
				zap.String("type", string(evt.Type)),
			)
		}
	}
}

// Close stops intake, flushes queued events, closes every sink and waits for the
// batching goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub close wait: %w", ctx.Err())
	}
}

// run collects events into batches. A batch is flushed when it is full or
// MaxBatchWait after its first event arrived.
func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	var (
		deadline *time.Timer
		due      <-chan time.Time
	)
	flush := func() {
		if deadline != nil {
			deadline.Stop()
			deadline, due = nil, nil
		}
		if len(batch) > 0 {
			h.flush(batch)
			batch = batch[:0]
		}
	}
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				flush()
			} else if deadline == nil {
				deadline = time.NewTimer(h.cfg.MaxBatchWait)
				due = deadline.C
			}
		case <-due:
			deadline, due = nil, nil
			flush()
		case <-h.stopCh:
			h.drain(batch)
			if deadline != nil {
				deadline.Stop()
			}
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) drain(batch []Event) {
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			return
		}
	}
}

// flush hands a copy of batch to every sink in parallel and waits for all of
// them. Sink failures are logged and counted, never propagated.
func (h *Hub) flush(batch []Event) {
	events := append([]Event(nil), batch...)
	var g errgroup.Group
	for _, sink := range h.snapshotSinks() {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
			defer cancel()
			if err := sink.Consume(ctx, events); err != nil {
				h.sinkErrors.Add(1)
				h.logger.Warn("sink consume failed",
					zap.String("sink", fmt.Sprintf("%T", sink)),
					zap.Int("events", len(events)),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.snapshotSinks() {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("sink close failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
	}
}

func compactSinks(sinks []Sink) []Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
