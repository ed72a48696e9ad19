package logging

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// DefaultService is the service name recorded for entries from unnamed loggers.
const DefaultService = "app"

// Entry is one recorded log line.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Service string         `json:"service"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Recorder is a zapcore.Core that keeps the most recent entries per service in
// bounded ring buffers. The service is the logger name up to its first dot.
type Recorder struct {
	state  *recorderState
	fields []zapcore.Field
	level  zapcore.LevelEnabler
}

type recorderState struct {
	mu        sync.RWMutex
	capacity  int
	buffers   map[string][]Entry
	listeners []func(Entry)
}

// NewRecorder returns a Recorder retaining up to capacity entries per service.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 200
	}
	return &Recorder{
		state: &recorderState{
			capacity: capacity,
			buffers:  make(map[string][]Entry),
		},
		level: zapcore.DebugLevel,
	}
}

// Subscribe registers fn to be called for every recorded entry. fn runs on the
// logging goroutine and must not block or log through the recorded logger.
func (r *Recorder) Subscribe(fn func(Entry)) {
	if fn == nil {
		return
	}
	r.state.mu.Lock()
	r.state.listeners = append(r.state.listeners, fn)
	r.state.mu.Unlock()
}

// Recent returns up to limit entries for service, oldest first. An empty service
// merges every buffer ordered by time.
func (r *Recorder) Recent(service string, limit int) []Entry {
	r.state.mu.RLock()
	var out []Entry
	if service == "" {
		for _, buf := range r.state.buffers {
			out = append(out, buf...)
		}
	} else {
		out = append(out, r.state.buffers[service]...)
	}
	r.state.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Services lists the service names that have recorded entries.
func (r *Recorder) Services() []string {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	names := make([]string, 0, len(r.state.buffers))
	for name := range r.state.buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Recorder) withLevel(level zapcore.LevelEnabler) *Recorder {
	clone := *r
	clone.level = level
	return &clone
}

// Enabled implements zapcore.Core.
func (r *Recorder) Enabled(lvl zapcore.Level) bool {
	return r.level.Enabled(lvl)
}

// With implements zapcore.Core.
func (r *Recorder) With(fields []zapcore.Field) zapcore.Core {
	clone := *r
	clone.fields = make([]zapcore.Field, 0, len(r.fields)+len(fields))
	clone.fields = append(clone.fields, r.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

// Check implements zapcore.Core.
func (r *Recorder) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if r.Enabled(ent.Level) {
		return ce.AddCore(ent, r)
	}
	return ce
}

// Write implements zapcore.Core.
func (r *Recorder) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range r.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	entry := Entry{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Service: serviceName(ent.LoggerName),
		Message: ent.Message,
	}
	if len(enc.Fields) > 0 {
		entry.Fields = enc.Fields
	}

	s := r.state
	s.mu.Lock()
	buf := append(s.buffers[entry.Service], entry)
	if len(buf) > s.capacity {
		buf = append([]Entry(nil), buf[len(buf)-s.capacity:]...)
	}
	s.buffers[entry.Service] = buf
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(entry)
	}
	return nil
}

// Sync implements zapcore.Core.
func (r *Recorder) Sync() error {
	return nil
}

func serviceName(loggerName string) string {
	if loggerName == "" {
		return DefaultService
	}
	if idx := strings.IndexByte(loggerName, '.'); idx > 0 {
		return loggerName[:idx]
	}
	return loggerName
}
