package browser

import (
	"context"
	"fmt"
)

// Unavailable stands in for a browser that could not be started. Every
// measurement fails with the launch error so the affected categories report it.
type Unavailable struct {
	Err error
}

// MeasureVitals implements the vitals meter.
func (u Unavailable) MeasureVitals(context.Context, string) (Vitals, error) {
	return Vitals{}, u.err()
}

// InspectLayout implements the layout inspector.
func (u Unavailable) InspectLayout(context.Context, string, Viewport) (Layout, error) {
	return Layout{}, u.err()
}

// Ping reports the launch error.
func (u Unavailable) Ping(context.Context) error {
	return u.err()
}

// Close is a no-op.
func (u Unavailable) Close() error {
	return nil
}

func (u Unavailable) err() error {
	if u.Err == nil {
		return fmt.Errorf("browser unavailable")
	}
	return fmt.Errorf("browser unavailable: %w", u.Err)
}
