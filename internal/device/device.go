// Package device abstracts device capabilities the emergency flow depends
// on: geolocation and haptic feedback. Both degrade gracefully: a denied
// permission or missing hardware must never block an activation.
package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourlook/safeline/internal/domain"
)

// Pattern is a haptic vibration pattern: alternating vibrate/pause
// durations in milliseconds, matching the common vibration API shape.
type Pattern []int

// Haptic patterns used by the emergency flow.
var (
	// ActivationPattern confirms a successful emergency activation.
	ActivationPattern = Pattern{200, 100, 200}
	// AlertPattern draws a responder's attention to a new incident.
	AlertPattern = Pattern{500, 200, 500, 200, 500}
)

// Locator provides the device's current location.
type Locator interface {
	CurrentLocation(ctx context.Context) (domain.Location, error)
}

// Haptics triggers device vibration. Implementations must be best-effort
// and silently skip when unsupported.
type Haptics interface {
	Vibrate(pattern Pattern)
}

// StaticLocator always returns a fixed location. Used as the configured
// fallback when real geolocation is unavailable or denied.
type StaticLocator struct {
	Location domain.Location
}

// CurrentLocation returns the fixed location.
func (l StaticLocator) CurrentLocation(_ context.Context) (domain.Location, error) {
	return l.Location, nil
}

// FallbackLocator wraps a primary locator and substitutes a fallback
// location on error or timeout. CurrentLocation never returns an error:
// permission denial must not block activation.
type FallbackLocator struct {
	Primary  Locator
	Fallback domain.Location
	Timeout  time.Duration
}

// CurrentLocation resolves the primary locator within the timeout, or
// returns the fallback.
func (l FallbackLocator) CurrentLocation(ctx context.Context) (domain.Location, error) {
	if l.Primary == nil {
		return l.Fallback, nil
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		loc domain.Location
		err error
	}
	ch := make(chan result, 1)
	go func() {
		loc, err := l.Primary.CurrentLocation(ctx)
		ch <- result{loc, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			slog.Debug("geolocation unavailable, using fallback", "error", res.err)
			return l.Fallback, nil
		}
		return res.loc, nil
	case <-ctx.Done():
		slog.Debug("geolocation timed out, using fallback")
		return l.Fallback, nil
	}
}

// NoopHaptics is used when the device has no vibration support.
type NoopHaptics struct{}

// Vibrate does nothing.
func (NoopHaptics) Vibrate(_ Pattern) {}

// HapticsFunc adapts a function to the Haptics interface.
type HapticsFunc func(pattern Pattern)

// Vibrate calls the wrapped function.
func (f HapticsFunc) Vibrate(pattern Pattern) { f(pattern) }
