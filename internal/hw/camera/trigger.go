package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/gpio"
)

// RemoteTrigger drives a camera through its 3-pin wired remote connector:
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// Shoot sequence:
// 1. FOCUS to LOW (activates autofocus)
// 2. Wait for autofocus to complete
// 3. SHUTTER to LOW (triggers the shot)
// 4. Hold for a moment
// 5. Set SHUTTER and FOCUS back to HIGH
//
// Only one sequence runs at a time.
type RemoteTrigger struct {
	mu           sync.Mutex
	gpio         gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration // time for autofocus
	shutterDelay time.Duration // shutter hold time
}

// NewRemoteTrigger configures both lines as outputs, idle HIGH.
func NewRemoteTrigger(g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration) (*RemoteTrigger, error) {
	for _, pin := range []int{focusPin, shutterPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
		if err := g.WritePin(pin, gpio.High); err != nil {
			return nil, fmt.Errorf("idle pin %d: %w", pin, err)
		}
	}
	return &RemoteTrigger{
		gpio:         g,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
	}, nil
}

// Shoot runs the full focus + shutter sequence. Canceling ctx during a wait
// releases both lines and returns ctx.Err().
func (r *RemoteTrigger) Shoot(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	debug.Live("Remote trigger: shot (focus=%d, shutter=%d)", r.focusPin, r.shutterPin)

	debug.Verbose("Remote trigger: activating FOCUS (pin %d -> LOW)", r.focusPin)
	if err := r.gpio.WritePin(r.focusPin, gpio.Low); err != nil {
		return err
	}
	if err := sleepCtx(ctx, r.focusDelay); err != nil {
		r.releaseAll()
		return err
	}

	debug.Verbose("Remote trigger: activating SHUTTER (pin %d -> LOW)", r.shutterPin)
	if err := r.gpio.WritePin(r.shutterPin, gpio.Low); err != nil {
		// Release FOCUS on error
		_ = r.gpio.WritePin(r.focusPin, gpio.High)
		return err
	}
	if err := sleepCtx(ctx, r.shutterDelay); err != nil {
		r.releaseAll()
		return err
	}

	debug.Verbose("Remote trigger: releasing SHUTTER then FOCUS")
	if err := r.gpio.WritePin(r.shutterPin, gpio.High); err != nil {
		return err
	}
	if err := r.gpio.WritePin(r.focusPin, gpio.High); err != nil {
		return err
	}

	debug.Trace("Remote trigger: shot complete")
	return nil
}

// HalfPress holds FOCUS for the autofocus delay without firing the shutter.
func (r *RemoteTrigger) HalfPress(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	debug.Verbose("Remote trigger: half-press FOCUS (pin %d)", r.focusPin)
	if err := r.gpio.WritePin(r.focusPin, gpio.Low); err != nil {
		return err
	}
	err := sleepCtx(ctx, r.focusDelay)
	if werr := r.gpio.WritePin(r.focusPin, gpio.High); werr != nil && err == nil {
		err = werr
	}
	return err
}

// Release drives both lines back to idle.
func (r *RemoteTrigger) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseAll()
}

func (r *RemoteTrigger) releaseAll() {
	_ = r.gpio.WritePin(r.shutterPin, gpio.High)
	_ = r.gpio.WritePin(r.focusPin, gpio.High)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
