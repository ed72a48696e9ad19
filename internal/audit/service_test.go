package audit

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

type stubAuditor struct {
	category seo.Category
	score    int
	err      error
	panics   bool
	calls    atomic.Int32
	block    chan struct{}
}

func (s *stubAuditor) Category() seo.Category { return s.category }

func (s *stubAuditor) Audit(ctx context.Context) (*seo.CategoryResult, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.panics {
		panic("chromedp exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &seo.CategoryResult{Score: s.score}, nil
}

type fakeHistory struct {
	mu   sync.Mutex
	runs []seo.AuditRun
	err  error
}

func (f *fakeHistory) Append(_ context.Context, run seo.AuditRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeHistory) List(context.Context, int) ([]seo.AuditRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]seo.AuditRun(nil), f.runs...), f.err
}

func (f *fakeHistory) Latest(context.Context) (seo.AuditRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return seo.AuditRun{}, f.err
	}
	if len(f.runs) == 0 {
		return seo.AuditRun{}, seo.ErrNoHistory
	}
	return f.runs[len(f.runs)-1], nil
}

type fakeArchive struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeArchive) PutObject(_ context.Context, p string, _ string, data io.Reader) (string, error) {
	if _, err := io.ReadAll(data); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, p)
	return "mem://" + p, nil
}

type fakeIDs struct{ err error }

func (f fakeIDs) NewID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

type fakeBrowser struct {
	pingErr error
	closed  bool
}

func (f *fakeBrowser) Ping(context.Context) error { return f.pingErr }
func (f *fakeBrowser) Close() error {
	f.closed = true
	return nil
}

func allAuditors(scores map[seo.Category]int) []Auditor {
	var out []Auditor
	for c, score := range scores {
		out = append(out, &stubAuditor{category: c, score: score})
	}
	return out
}

func newTestService(auditors []Auditor, history seo.HistoryStore, cfg Config) *Service {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	return New(auditors, history, nil, nil, fakeIDs{}, clock, cfg, nil)
}

func TestPerformAuditExcludesDisabledFromMean(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	svc := newTestService(allAuditors(map[seo.Category]int{
		seo.CategoryCoreWebVitals: 90,
		seo.CategoryBrokenLinks:   70,
		seo.CategoryImages:        40,
		seo.CategorySecurity:      10,
	}), history, Config{Enabled: map[seo.Category]bool{seo.CategorySecurity: false}})

	run, err := svc.PerformAudit(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, "run-1", run.ID)
	require.Equal(t, 67, run.OverallScore)
	require.Equal(t, seo.Summary{Passed: 1, Warning: 1, Critical: 1, Disabled: 3}, run.Summary)
	require.Nil(t, run.Categories[seo.CategorySecurity])
	require.Contains(t, run.Categories, seo.CategoryMobile)
	require.Len(t, history.runs, 1)
}

func TestPerformAuditIsolatesFailingCategories(t *testing.T) {
	t.Parallel()

	auditors := []Auditor{
		&stubAuditor{category: seo.CategoryCoreWebVitals, panics: true},
		&stubAuditor{category: seo.CategoryBrokenLinks, err: errors.New("sitemap and links unreachable")},
		&stubAuditor{category: seo.CategorySecurity, score: 250},
	}
	svc := newTestService(auditors, &fakeHistory{}, Config{Parallelism: 3})

	run, err := svc.PerformAudit(context.Background(), Options{})
	require.NoError(t, err)

	vitals := run.Categories[seo.CategoryCoreWebVitals]
	require.Equal(t, 0, vitals.Score)
	require.Equal(t, seo.IssueCategoryError, vitals.Issues[0].Type)
	require.Contains(t, vitals.Error, "panicked")

	require.True(t, run.Categories[seo.CategoryBrokenLinks].Failed())
	require.Equal(t, 100, run.Categories[seo.CategorySecurity].Score)
	require.Equal(t, 33, run.OverallScore)

	var titles []string
	for _, r := range run.Recommendations {
		titles = append(titles, r.Title)
	}
	require.Contains(t, titles, "Investigate failed audit category")
}

func TestPerformAuditRestrictsCategories(t *testing.T) {
	t.Parallel()

	vitals := &stubAuditor{category: seo.CategoryCoreWebVitals, score: 80}
	links := &stubAuditor{category: seo.CategoryBrokenLinks, score: 60}
	svc := newTestService([]Auditor{vitals, links}, &fakeHistory{}, Config{})

	run, err := svc.PerformAudit(context.Background(), Options{Categories: []seo.Category{seo.CategoryBrokenLinks}})
	require.NoError(t, err)
	require.Zero(t, vitals.calls.Load())
	require.Equal(t, int32(1), links.calls.Load())
	require.Equal(t, 60, run.OverallScore)
	require.Equal(t, 5, run.Summary.Disabled)
}

func TestPerformAuditDeadlineBoundsSlowAuditors(t *testing.T) {
	t.Parallel()

	slow := &stubAuditor{category: seo.CategoryCoreWebVitals, block: make(chan struct{})}
	fast := &stubAuditor{category: seo.CategorySecurity, score: 100}
	svc := newTestService([]Auditor{slow, fast}, &fakeHistory{}, Config{MaxDuration: 20 * time.Millisecond})

	run, err := svc.PerformAudit(context.Background(), Options{})
	require.NoError(t, err)
	require.True(t, run.Categories[seo.CategoryCoreWebVitals].Failed())
	require.Equal(t, 100, run.Categories[seo.CategorySecurity].Score)
}

func TestPerformAuditPersistenceFailure(t *testing.T) {
	t.Parallel()

	svc := newTestService(allAuditors(map[seo.Category]int{seo.CategorySecurity: 100}),
		&fakeHistory{err: errors.New("disk full")}, Config{})
	run, err := svc.PerformAudit(context.Background(), Options{})
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 100, run.OverallScore)
}

func TestPerformAuditIDFailure(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	svc := New(nil, &fakeHistory{}, nil, nil, fakeIDs{err: errors.New("entropy")}, clock, Config{}, nil)
	_, err := svc.PerformAudit(context.Background(), Options{})
	require.Error(t, err)
}

func TestPerformAuditArchivesRun(t *testing.T) {
	t.Parallel()

	archive := &fakeArchive{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	svc := New(allAuditors(map[seo.Category]int{seo.CategorySecurity: 100}), &fakeHistory{}, archive, nil,
		fakeIDs{}, clock, Config{}, nil)

	_, err := svc.PerformAudit(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"audits/2026/03/run-1.json"}, archive.paths)
}

func TestServiceHealthAndClose(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	browser := &fakeBrowser{}
	svc := New(nil, &fakeHistory{}, nil, browser, fakeIDs{}, clock, Config{}, nil)
	require.Equal(t, ServiceName, svc.Name())

	health, err := svc.HealthCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, seo.HealthHealthy, health.Status)

	browser.pingErr = errors.New("browser is closed")
	health, err = svc.HealthCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, seo.HealthDegraded, health.Status)

	broken := New(nil, &fakeHistory{err: errors.New("connection refused")}, nil, browser, fakeIDs{}, clock, Config{}, nil)
	health, err = broken.HealthCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, seo.HealthUnhealthy, health.Status)

	require.NoError(t, svc.Close(context.Background()))
	require.True(t, browser.closed)
}

func TestPerformAuditSkipPersist(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	svc := newTestService(allAuditors(map[seo.Category]int{seo.CategoryCoreWebVitals: 75}), history, Config{})
	run, err := svc.PerformAudit(context.Background(), Options{
		Categories:  []seo.Category{seo.CategoryCoreWebVitals},
		SkipPersist: true,
	})
	require.NoError(t, err)
	require.Equal(t, 75, run.OverallScore)
	require.Empty(t, history.runs)
}
