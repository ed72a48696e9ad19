package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVitalsSampleConversion(t *testing.T) {
	t.Parallel()

	v := vitalsSample{LCP: 2100, CLS: 0.04, TBT: 120, Load: 2800}.toVitals("https://eyecare.example/")
	require.Equal(t, "https://eyecare.example/", v.URL)
	require.InDelta(t, 2100, v.LCPMs, 0.001)
	require.InDelta(t, 120, v.FIDMs, 0.001)
	require.InDelta(t, 0.04, v.CLS, 0.0001)
	require.InDelta(t, 2800, v.LoadMs, 0.001)
}

func TestLayoutOverflow(t *testing.T) {
	t.Parallel()

	require.True(t, Layout{ViewportWidth: 375, ScrollWidth: 420}.HorizontalOverflow())
	require.False(t, Layout{ViewportWidth: 375, ScrollWidth: 375}.HorizontalOverflow())
	require.False(t, Layout{}.HorizontalOverflow())
	require.Contains(t, layoutScript, "< 12")
	require.Contains(t, layoutScript, "< 44")
}

func TestUnavailable(t *testing.T) {
	t.Parallel()

	launch := errors.New("chrome not found")
	u := Unavailable{Err: launch}
	_, err := u.MeasureVitals(context.Background(), "https://eyecare.example/")
	require.ErrorIs(t, err, launch)
	_, err = u.InspectLayout(context.Background(), "https://eyecare.example/", MobileViewport)
	require.ErrorIs(t, err, launch)
	require.ErrorIs(t, u.Ping(context.Background()), launch)
	require.NoError(t, u.Close())
	require.Error(t, Unavailable{}.Ping(context.Background()))
}
