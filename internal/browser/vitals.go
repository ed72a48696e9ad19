package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/seo-orchestrator/internal/metrics"
)

// Vitals are the performance timings of one page load. FIDMs is approximated by
// total blocking time since no real input happens in a headless session.
type Vitals struct {
	URL    string  `json:"url"`
	LCPMs  float64 `json:"lcp_ms"`
	FIDMs  float64 `json:"fid_ms"`
	CLS    float64 `json:"cls"`
	LoadMs float64 `json:"load_ms"`
}

const vitalsObserverScript = `(() => {
  const v = window.__seoVitals = {lcp: 0, cls: 0, tbt: 0};
  const observe = (type, fn) => {
    try { new PerformanceObserver(list => list.getEntries().forEach(fn)).observe({type, buffered: true}); } catch (e) {}
  };
  observe('largest-contentful-paint', e => { v.lcp = Math.max(v.lcp, e.renderTime || e.loadTime || e.startTime); });
  observe('layout-shift', e => { if (!e.hadRecentInput) v.cls += e.value; });
  observe('longtask', e => { v.tbt += Math.max(0, e.duration - 50); });
})();`

const vitalsCollectScript = `(() => {
  const v = window.__seoVitals || {lcp: 0, cls: 0, tbt: 0};
  const nav = performance.getEntriesByType('navigation')[0];
  const load = nav ? (nav.loadEventEnd || nav.domContentLoadedEventEnd || nav.duration) : 0;
  return {lcp: v.lcp, cls: v.cls, tbt: v.tbt, load: load};
})()`

type vitalsSample struct {
	LCP  float64 `json:"lcp"`
	CLS  float64 `json:"cls"`
	TBT  float64 `json:"tbt"`
	Load float64 `json:"load"`
}

func (s vitalsSample) toVitals(rawURL string) Vitals {
	return Vitals{
		URL:    rawURL,
		LCPMs:  s.LCP,
		FIDMs:  s.TBT,
		CLS:    s.CLS,
		LoadMs: s.Load,
	}
}

// MeasureVitals loads rawURL in a fresh tab and reads its web vitals.
func (b *Browser) MeasureVitals(ctx context.Context, rawURL string) (Vitals, error) {
	var sample vitalsSample
	err := b.WithPage(ctx, func(tabCtx context.Context) error {
		doc := listenDocument(tabCtx)
		err := chromedp.Run(tabCtx,
			b.prepareTab(),
			chromedp.ActionFunc(func(ctx context.Context) error {
				if _, err := page.AddScriptToEvaluateOnNewDocument(vitalsObserverScript).Do(ctx); err != nil {
					return fmt.Errorf("install vitals observers: %w", err)
				}
				return nil
			}),
			chromedp.Navigate(rawURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(b.cfg.Settle),
			chromedp.Evaluate(vitalsCollectScript, &sample),
		)
		if err != nil {
			return fmt.Errorf("chromedp run: %w", err)
		}
		return doc.check(rawURL)
	})
	metrics.ObservePageMeasurement("vitals", err)
	if err != nil {
		return Vitals{}, fmt.Errorf("measure vitals %s: %w", rawURL, err)
	}
	return sample.toVitals(rawURL), nil
}
