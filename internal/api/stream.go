package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/metrics"
	"github.com/JakeFAU/seo-orchestrator/internal/progress"
)

const (
	defaultClientBuffer = 64
	writeWait           = 10 * time.Second
	pingInterval        = 30 * time.Second
)

var _ progress.Sink = (*Broadcaster)(nil)

// Broadcaster fans hub events out to connected WebSocket clients. It is a
// progress.Sink. New clients first receive the latest status and metrics
// snapshots.
type Broadcaster struct {
	buffer int
	logger *zap.Logger

	mu       sync.Mutex
	clients  map[*client]struct{}
	snapshot map[progress.Type][]byte
	closed   bool
}

type client struct {
	conn   net.Conn
	wmu    sync.Mutex
	send   chan []byte
	done   chan struct{}
	closer sync.Once
}

// NewBroadcaster returns a Broadcaster buffering up to buffer messages per client.
func NewBroadcaster(buffer int, logger *zap.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		buffer:   buffer,
		logger:   logger,
		clients:  make(map[*client]struct{}),
		snapshot: make(map[progress.Type][]byte),
	}
}

// Count returns the number of connected clients.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Consume implements progress.Sink. Clients whose buffer is full are
// disconnected.
func (b *Broadcaster) Consume(_ context.Context, events []progress.Event) error {
	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			b.logger.Warn("encode dashboard event failed", zap.String("type", string(evt.Type)), zap.Error(err))
			continue
		}
		b.broadcast(evt.Type, data)
	}
	return nil
}

func (b *Broadcaster) broadcast(t progress.Type, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if t == progress.TypeStatus || t == progress.TypeMetrics {
		b.snapshot[t] = data
	}
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			b.logger.Warn("dashboard client too slow, disconnecting")
			b.removeLocked(c)
		}
	}
}

// Close implements progress.Sink and disconnects every client.
func (b *Broadcaster) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		b.removeLocked(c)
	}
	return nil
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		b.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, b.buffer),
		done: make(chan struct{}),
	}
	if !b.add(c) {
		_ = conn.Close()
		return
	}
	b.logger.Debug("dashboard client connected", zap.String("remote", r.RemoteAddr))

	go b.writeLoop(c)
	b.readLoop(c)

	b.mu.Lock()
	b.removeLocked(c)
	b.mu.Unlock()
	b.logger.Debug("dashboard client disconnected", zap.String("remote", r.RemoteAddr))
}

func (b *Broadcaster) add(c *client) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	for _, t := range []progress.Type{progress.TypeStatus, progress.TypeMetrics} {
		if data, ok := b.snapshot[t]; ok {
			select {
			case c.send <- data:
			default:
			}
		}
	}
	b.clients[c] = struct{}{}
	metrics.SetDashboardClients(len(b.clients))
	return true
}

func (b *Broadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	c.close()
	metrics.SetDashboardClients(len(b.clients))
}

func (b *Broadcaster) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.write(ws.OpText, data); err != nil {
				b.logger.Debug("dashboard write failed", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.write(ws.OpPing, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop drains client frames so control frames are answered; it returns
// once the connection fails or is closed.
func (b *Broadcaster) readLoop(c *client) {
	rw := struct {
		io.Reader
		io.Writer
	}{c.conn, lockedWriter{c}}
	for {
		if _, _, err := wsutil.ReadClientData(rw); err != nil {
			return
		}
	}
}

func (c *client) write(op ws.OpCode, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsutil.WriteServerMessage(c.conn, op, data)
}

func (c *client) close() {
	c.closer.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

type lockedWriter struct {
	c *client
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
}
