// Package ratelimit throttles outbound audit probes with one token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/seo-orchestrator/internal/metrics"
)

const (
	defaultFloorRPS = 0.2
	unknownHost     = "unknown"
	// waits shorter than this are not recorded as delay samples.
	observeThreshold = time.Millisecond
)

// Config sets the starting bucket for every host.
//   - DefaultRPS: sustained requests per second; non-positive disables limiting.
//   - DefaultBurst: bucket size (default 1).
//   - FloorRPS: lowest rate Penalize can reach (default 0.2).
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	FloorRPS     float64
}

// Limiter hands out per-host tokens. The zero value is not usable; call New.
type Limiter struct {
	rate  rate.Limit
	burst int
	floor rate.Limit

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// New returns a Limiter for cfg.
func New(cfg Config) *Limiter {
	l := &Limiter{
		rate:  rate.Inf,
		burst: max(cfg.DefaultBurst, 1),
		floor: rate.Limit(defaultFloorRPS),
		hosts: make(map[string]*rate.Limiter),
	}
	if cfg.DefaultRPS > 0 {
		l.rate = rate.Limit(cfg.DefaultRPS)
	}
	if cfg.FloorRPS > 0 {
		l.floor = rate.Limit(cfg.FloorRPS)
	}
	return l
}

// Wait blocks until rawURL's host has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostKey(rawURL)
	started := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if waited := time.Since(started); waited > observeThreshold {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Penalize halves the rate for rawURL's host, never going below the floor.
// Unlimited hosts are left alone.
func (l *Limiter) Penalize(rawURL string) {
	b := l.bucket(hostKey(rawURL))
	current := b.Limit()
	if current == rate.Inf {
		return
	}
	b.SetLimit(max(current/2, l.floor))
}

// snapshot lists the current rate of every host seen so far.
func (l *Limiter) snapshot() map[string]rate.Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]rate.Limit, len(l.hosts))
	for host, b := range l.hosts {
		out[host] = b.Limit()
	}
	return out
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.hosts[host] = b
	}
	return b
}

// hostKey folds case so https://Clinic.example and https://clinic.example share
// a bucket. Ports stay part of the key.
func hostKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return unknownHost
	}
	return strings.ToLower(u.Host)
}
