package mobile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-orchestrator/internal/browser"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

type fakeInspector map[string]browser.Layout

func (f fakeInspector) InspectLayout(_ context.Context, url string, vp browser.Viewport) (browser.Layout, error) {
	l, ok := f[url]
	if !ok {
		return browser.Layout{}, errors.New("navigation timeout")
	}
	l.ViewportWidth = int(vp.Width)
	return l, nil
}

func TestAuditOverflowOnlyScores70(t *testing.T) {
	t.Parallel()

	a := New(fakeInspector{
		"https://eyecare.example/": {ScrollWidth: 480},
	}, []string{"https://eyecare.example/"}, nil)

	res, err := a.Audit(context.Background())
	require.NoError(t, err)
	require.Equal(t, seo.CategoryMobile, a.Category())
	require.Equal(t, 70, res.Score)
	require.Len(t, res.Issues, 1)
	require.Equal(t, "horizontal_overflow", res.Issues[0].Type)
	require.Equal(t, browser.MobileViewport, res.Details.(Details).Viewport)
}

func TestAuditAveragesRenderedPages(t *testing.T) {
	t.Parallel()

	a := New(fakeInspector{
		"https://eyecare.example/":         {ScrollWidth: 375},
		"https://eyecare.example/services": {ScrollWidth: 375, TinyTextCount: 3, SmallTargetCount: 2},
	}, []string{"https://eyecare.example/", "https://eyecare.example/services", "https://eyecare.example/broken"}, nil)

	res, err := a.Audit(context.Background())
	require.NoError(t, err)
	// (100 + 70) / 2
	require.Equal(t, 85, res.Score)
	require.Equal(t, "page_error", res.Issues[len(res.Issues)-1].Type)
}

func TestAuditAllPagesFail(t *testing.T) {
	t.Parallel()

	_, err := New(fakeInspector{}, []string{"https://eyecare.example/"}, nil).Audit(context.Background())
	require.Error(t, err)

	_, err = New(fakeInspector{}, nil, nil).Audit(context.Background())
	require.Error(t, err)
}

func TestScorePage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layout browser.Layout
		want   int
	}{
		{"clean", browser.Layout{ViewportWidth: 375, ScrollWidth: 375}, 100},
		{"targets capped", browser.Layout{ViewportWidth: 375, ScrollWidth: 375, SmallTargetCount: 12}, 75},
		{"everything wrong", browser.Layout{ViewportWidth: 375, ScrollWidth: 900, TinyTextCount: 40, SmallTargetCount: 9}, 25},
		{"unknown viewport", browser.Layout{ScrollWidth: 900}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, _ := ScorePage(tt.layout)
			require.Equal(t, tt.want, got)
		})
	}
}
