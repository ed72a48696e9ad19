// Package memory keeps published events in process. The server falls back to it
// when no Pub/Sub project is configured, and tests use it to inspect payloads.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("memory publisher closed")

// PublishedMessage is one accepted publish.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
	Data    []byte
}

// Publisher records what would have been sent to Pub/Sub.
type Publisher struct {
	mu      sync.Mutex
	log     []PublishedMessage
	seq     int
	failure error
	closed  bool
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes later publishes fail with err until it is called with nil.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.failure = err
	p.mu.Unlock()
}

// Publish JSON-encodes payload and appends it to the topic log. The returned
// ID mimics a server-assigned message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return "", ErrClosed
	case p.failure != nil:
		return "", p.failure
	}
	p.seq++
	id := "memory-" + strconv.Itoa(p.seq)
	p.log = append(p.log, PublishedMessage{ID: id, Topic: topic, Payload: payload, Data: data})
	return id, nil
}

// Messages returns a copy of everything published so far, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	return p.Topic("")
}

// Topic returns the messages sent to topic; an empty topic matches all.
func (p *Publisher) Topic(topic string) []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedMessage, 0, len(p.log))
	for _, msg := range p.log {
		if topic == "" || msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// Close stops further publishes. Recorded messages stay readable.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
