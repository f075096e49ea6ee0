// Package gesture implements the hidden emergency activation gesture: a
// sustained press that converts into an activation event when held for the
// full hold duration, and cancels silently on early release.
package gesture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yourlook/safeline/internal/device"
	"github.com/yourlook/safeline/internal/domain"
)

// Default gesture timing. The progress tick only drives the visual ring;
// activation is gated solely by the hold countdown.
const (
	DefaultHoldDuration = 2 * time.Second
	DefaultProgressTick = 100 * time.Millisecond
)

// Config holds detector configuration.
type Config struct {
	// Enabled gates the gesture for the current surface. A disabled
	// detector ignores all press events.
	Enabled bool
	// HoldDuration is how long the press must be sustained.
	HoldDuration time.Duration
	// ProgressTick is the interval between cosmetic progress updates.
	ProgressTick time.Duration
}

// ActivateFunc receives the location captured at the moment of activation.
type ActivateFunc func(location domain.Location)

// ProgressFunc receives the cosmetic progress percentage (0-100).
type ProgressFunc func(percent int)

// Detector watches a sustained press and fires exactly one activation per
// successful hold. All press-end equivalents (release, pointer leave)
// cancel unconditionally and immediately.
type Detector struct {
	config     Config
	locator    device.Locator
	haptics    device.Haptics
	onActivate ActivateFunc
	onProgress ProgressFunc

	mu       sync.Mutex
	pressed  bool
	timer    *time.Timer
	stopTick chan struct{}
}

// NewDetector creates a detector. onProgress may be nil.
func NewDetector(config Config, locator device.Locator, haptics device.Haptics, onActivate ActivateFunc, onProgress ProgressFunc) *Detector {
	if config.HoldDuration <= 0 {
		config.HoldDuration = DefaultHoldDuration
	}
	if config.ProgressTick <= 0 {
		config.ProgressTick = DefaultProgressTick
	}
	if haptics == nil {
		haptics = device.NoopHaptics{}
	}
	return &Detector{
		config:     config,
		locator:    locator,
		haptics:    haptics,
		onActivate: onActivate,
		onProgress: onProgress,
	}
}

// PressStart begins the hold countdown. Any countdown already running for
// this detector is cleared first, so no two countdowns run concurrently.
func (d *Detector) PressStart() {
	if !d.config.Enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetLocked()
	d.pressed = true
	d.startProgressLocked()
	d.timer = time.AfterFunc(d.config.HoldDuration, d.fire)
}

// PressEnd cancels the countdown. Cancellation is unconditional and
// immediate; releasing before the hold expires is the dominant path.
func (d *Detector) PressEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

// PointerLeave is treated identically to a press release.
func (d *Detector) PointerLeave() {
	d.PressEnd()
}

// Pressed reports whether a press is currently being held.
func (d *Detector) Pressed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pressed
}

// Close clears any pending timers. Call on unmount.
func (d *Detector) Close() {
	d.PressEnd()
}

// fire runs when the countdown expires while still pressed. It resets the
// detector before invoking the callback so one continuous press can never
// fire twice.
func (d *Detector) fire() {
	d.mu.Lock()
	if !d.pressed {
		// Released in the window between timer expiry and lock acquisition.
		d.mu.Unlock()
		return
	}
	d.resetLocked()
	cb := d.onActivate
	d.mu.Unlock()

	location := d.captureLocation()
	d.haptics.Vibrate(device.ActivationPattern)

	if cb != nil {
		cb(location)
	}
}

// captureLocation resolves the device location. Locators on the activation
// path never fail (see device.FallbackLocator); a nil locator yields a
// zero location rather than blocking activation.
func (d *Detector) captureLocation() domain.Location {
	if d.locator == nil {
		return domain.Location{}
	}
	loc, err := d.locator.CurrentLocation(context.Background())
	if err != nil {
		slog.Warn("location capture failed on activation", "error", err)
		return domain.Location{}
	}
	return loc
}

// startProgressLocked launches the cosmetic progress ticker. Caller holds
// the mutex.
func (d *Detector) startProgressLocked() {
	if d.onProgress == nil {
		return
	}

	stop := make(chan struct{})
	d.stopTick = stop

	go func() {
		ticker := time.NewTicker(d.config.ProgressTick)
		defer ticker.Stop()

		progress := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if progress < 100 {
					progress += 5
					if progress > 100 {
						progress = 100
					}
					d.onProgress(progress)
				}
			}
		}
	}()
}

// resetLocked clears the countdown and progress ticker. Caller holds the
// mutex.
func (d *Detector) resetLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.stopTick != nil {
		close(d.stopTick)
		d.stopTick = nil
	}
	d.pressed = false
}
