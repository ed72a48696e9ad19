// Package browser owns the headless Chrome instance used for page measurements.
// One Browser is opened when the audit service starts and closed exactly once;
// every measurement runs in its own tab that is closed on every path.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/metrics"
)

// ErrClosed is returned by operations on a closed Browser.
var ErrClosed = errors.New("browser closed")

// Config controls the owned browser.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ExecPath          string
	// Settle is how long a page is left idle after load before it is measured.
	Settle time.Duration
}

// Browser is a long lived chromedp browser handing out scoped tabs.
type Browser struct {
	cfg           Config
	logger        *zap.Logger
	sem           chan struct{}
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
	closed        atomic.Bool
}

// Open launches Chrome and blocks until the browser answers.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	cfg = withDefaults(cfg)
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	warmupCtx, cancelWarmup := context.WithTimeout(browserCtx, cfg.NavigationTimeout)
	defer cancelWarmup()
	stop := forwardCancel(ctx, cancelWarmup)
	defer stop()
	if err := chromedp.Run(warmupCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Browser{
		cfg:           cfg,
		logger:        logger,
		sem:           newSemaphore(cfg.MaxParallel),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = time.Second
	}
	return cfg
}

func newSemaphore(n int) chan struct{} {
	if n <= 0 {
		return nil
	}
	return make(chan struct{}, n)
}

// Close shuts the browser down. It is safe to call more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.browserCancel()
		b.allocCancel()
	})
	return nil
}

// Ping reports whether the browser process is still usable.
func (b *Browser) Ping(_ context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := b.browserCtx.Err(); err != nil {
		return fmt.Errorf("browser context: %w", err)
	}
	return nil
}

// WithPage opens a tab, runs fn against it and closes the tab whatever fn
// returns. The tab context expires after the navigation timeout or when ctx is
// done, whichever comes first.
func (b *Browser) WithPage(ctx context.Context, fn func(tabCtx context.Context) error) error {
	if b.closed.Load() {
		return ErrClosed
	}
	release, err := b.acquireSlot(ctx)
	if err != nil {
		return err
	}
	defer release()

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	metrics.IncBrowserTabs()
	defer metrics.DecBrowserTabs()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	return fn(taskCtx)
}

func (b *Browser) acquireSlot(ctx context.Context) (func(), error) {
	if b.sem == nil {
		return func() {}, nil
	}
	select {
	case b.sem <- struct{}{}:
		return func() { <-b.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire browser tab: %w", ctx.Err())
	}
}

func (b *Browser) prepareTab() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// documentStatus records the status of the main document response of a tab.
type documentStatus struct {
	mu     sync.Mutex
	status int
	url    string
}

func listenDocument(tabCtx context.Context) *documentStatus {
	doc := &documentStatus{}
	chromedp.ListenTarget(tabCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
			return
		}
		doc.mu.Lock()
		defer doc.mu.Unlock()
		if doc.status == 0 {
			doc.status = int(resp.Response.Status)
			doc.url = resp.Response.URL
		}
	})
	return doc
}

func (d *documentStatus) check(rawURL string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status >= http.StatusBadRequest {
		return fmt.Errorf("page %s answered %d", rawURL, d.status)
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
