package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/seo-orchestrator/internal/metrics"
)

// Viewport is an emulated device screen.
type Viewport struct {
	Width  int64
	Height int64
	Mobile bool
}

// MobileViewport is the reference phone screen used by the mobile audit.
var MobileViewport = Viewport{Width: 375, Height: 667, Mobile: true}

// Layout describes how a page renders inside a viewport.
type Layout struct {
	URL              string `json:"url"`
	ViewportWidth    int    `json:"viewport_width"`
	ScrollWidth      int    `json:"scroll_width"`
	TinyTextCount    int    `json:"tiny_text"`
	SmallTargetCount int    `json:"small_targets"`
}

// HorizontalOverflow reports whether the page is wider than the viewport.
func (l Layout) HorizontalOverflow() bool {
	return l.ViewportWidth > 0 && l.ScrollWidth > l.ViewportWidth
}

// MinFontPx and MinTargetPx are the legibility and tap-target thresholds.
const (
	MinFontPx   = 12
	MinTargetPx = 44
)

var layoutScript = fmt.Sprintf(`(() => {
  const doc = document.documentElement;
  const root = document.body || doc;
  let tiny = 0, small = 0;
  const seen = new Set();
  const walker = document.createTreeWalker(root, NodeFilter.SHOW_TEXT);
  while (walker.nextNode()) {
    const node = walker.currentNode;
    const el = node.parentElement;
    if (!el || seen.has(el) || !node.textContent.trim()) continue;
    seen.add(el);
    const st = getComputedStyle(el);
    if (st.display === 'none' || st.visibility === 'hidden') continue;
    if (parseFloat(st.fontSize) < %d) tiny++;
  }
  for (const el of document.querySelectorAll('a, button, input, select, textarea, [role="button"]')) {
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) continue;
    if (r.width < %d || r.height < %d) small++;
  }
  return {viewport_width: window.innerWidth, scroll_width: doc.scrollWidth, tiny_text: tiny, small_targets: small};
})()`, MinFontPx, MinTargetPx, MinTargetPx)

// InspectLayout loads rawURL under the emulated viewport and measures overflow,
// text legibility and tap target sizes.
func (b *Browser) InspectLayout(ctx context.Context, rawURL string, vp Viewport) (Layout, error) {
	var layout Layout
	err := b.WithPage(ctx, func(tabCtx context.Context) error {
		doc := listenDocument(tabCtx)
		opts := []chromedp.EmulateViewportOption{chromedp.EmulatePortrait}
		if vp.Mobile {
			opts = append(opts, chromedp.EmulateMobile, chromedp.EmulateTouch, chromedp.EmulateScale(2))
		}
		err := chromedp.Run(tabCtx,
			b.prepareTab(),
			chromedp.EmulateViewport(vp.Width, vp.Height, opts...),
			chromedp.Navigate(rawURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(b.cfg.Settle/2),
			chromedp.Evaluate(layoutScript, &layout),
		)
		if err != nil {
			return fmt.Errorf("chromedp run: %w", err)
		}
		return doc.check(rawURL)
	})
	metrics.ObservePageMeasurement("layout", err)
	if err != nil {
		return Layout{}, fmt.Errorf("inspect layout %s: %w", rawURL, err)
	}
	layout.URL = rawURL
	return layout, nil
}
