package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/JakeFAU/seo-orchestrator/internal/metrics"
)

const (
	robotsMaxTries        = 4
	robotsInitialInterval = 250 * time.Millisecond
	robotsMaxInterval     = time.Second
	allowAllRobots        = "User-agent: *\nAllow: /"
)

// robotsAwareTransport retries robots.txt fetches that time out and, when they
// keep failing, answers with an allow-all document so a flaky robots endpoint
// never blocks the structure crawl. Every other request passes straight through.
type robotsAwareTransport struct {
	base http.RoundTripper
	// initial overrides the first retry delay.
	initial time.Duration
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("page roundtrip: %w", err)
		}
		return resp, nil
	}

	resp, err := backoff.Retry(req.Context(), func() (*http.Response, error) {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err != nil && !isTransientTLSError(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	},
		backoff.WithBackOff(t.policy()),
		backoff.WithMaxTries(robotsMaxTries),
	)
	switch {
	case err == nil:
		return resp, nil
	case req.Context().Err() != nil:
		return nil, fmt.Errorf("robots roundtrip: %w", req.Context().Err())
	case isTransientTLSError(err):
		metrics.ObserveRobotsTLSHandshakeTimeout()
		return allowAllResponse(req), nil
	default:
		return nil, fmt.Errorf("robots roundtrip: %w", err)
	}
}

func (t *robotsAwareTransport) policy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = robotsInitialInterval
	if t.initial > 0 {
		policy.InitialInterval = t.initial
	}
	policy.MaxInterval = robotsMaxInterval
	return policy
}

func isRobotsTxtRequest(req *http.Request) bool {
	return req.URL != nil && strings.EqualFold(req.URL.Path, "/robots.txt")
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
