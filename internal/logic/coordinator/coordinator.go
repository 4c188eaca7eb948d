// Package coordinator is the capture façade. It receives user intents and
// device callbacks, and drives the device controller, the session
// orchestrator, the preview geometry and the self-timer from one control
// goroutine (Run). Every exported method other than Run only posts a message.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/capture"
	"github.com/cjeanneret/camctl/internal/logic/countdown"
	"github.com/cjeanneret/camctl/internal/logic/device"
	"github.com/cjeanneret/camctl/internal/logic/devicelock"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
	"github.com/cjeanneret/camctl/internal/metrics"
)

// ErrNotRunning is returned by Snapshot when the control loop has stopped.
var ErrNotRunning = errors.New("coordinator: control loop not running")

// Options wires a Coordinator. Nil collaborators and listeners fall back to
// no-op implementations; a nil Manager makes every open fail as unavailable.
type Options struct {
	Manager camera.Manager
	Store   capture.Store

	Settings    Settings
	Display     Display
	Orientation Orientation
	Heading     Heading
	Locations   Locations
	Sounds      Sounds

	Preview   PreviewListener
	Ready     ReadyListener
	Focus     FocusListener
	Errors    ErrorListener
	Countdown CountdownListener
	Sessions  capture.Listener

	// Lock guards device open/close; a fresh one is created when nil.
	Lock        *devicelock.Lock
	LockTimeout time.Duration
	// CountdownInterval is the length of one countdown second.
	CountdownInterval time.Duration
	// Fatal defaults to panicking.
	Fatal FatalHandler
	Now   func() time.Time
}

// Coordinator routes intents and device events. Construct with New, then Run.
type Coordinator struct {
	opts Options
	box  *mailbox
	done chan struct{}
	log  zerolog.Logger

	// owned by the control goroutine
	ctx       context.Context
	ctrl      *device.Controller
	orch      *capture.Orchestrator
	timer     *countdown.Countdown
	engine    *geometry.Engine
	paused    bool
	surface   *camera.Surface
	view      geometry.View
	transform geometry.Transform
	facing    camera.Facing
	hdr       bool
	zoom      float64
	wantZoom  float64
	maxZoom   float64
	shutter   bool
	focus     focusScan
	lastErr   error
}

// New creates a paused coordinator.
func New(opts Options) *Coordinator {
	if opts.Settings == nil {
		opts.Settings = nopSettings{}
	}
	if opts.Display == nil {
		opts.Display = nopDisplay{}
	}
	if opts.Orientation == nil {
		opts.Orientation = nopOrientation{}
	}
	if opts.Heading == nil {
		opts.Heading = nopHeading{}
	}
	if opts.Locations == nil {
		opts.Locations = nopLocations{}
	}
	if opts.Sounds == nil {
		opts.Sounds = nopSounds{}
	}
	if opts.Fatal == nil {
		opts.Fatal = func(err error) { panic(err) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Coordinator{
		opts:     opts,
		box:      newMailbox(),
		done:     make(chan struct{}),
		log:      debug.Component("coordinator"),
		ctx:      context.Background(),
		engine:   geometry.NewEngine(),
		paused:   true,
		facing:   opts.Settings.Facing(),
		hdr:      opts.Settings.HDR(),
		zoom:     1,
		wantZoom: 1,
		maxZoom:  1,
	}
	c.ctrl = device.NewController(device.Config{
		Manager:     opts.Manager,
		Lock:        opts.Lock,
		LockTimeout: opts.LockTimeout,
		Post:        func(ev device.Event) { c.box.post(ev) },
		Hooks:       deviceHooks{c},
	})
	c.orch = capture.NewOrchestrator(opts.Store, func(ev capture.Event) { c.box.post(ev) }, opts.Sessions)
	c.timer = countdown.New(opts.CountdownInterval, func(ev countdown.Event) { c.box.post(ev) })
	c.transform = c.engine.Current()
	return c
}

// Run is the control loop. It returns when ctx ends, after canceling any
// countdown and closing the device.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	c.log.Info().Msg("control loop started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-c.box.signal:
		}
		for _, m := range c.box.take() {
			c.dispatch(m)
		}
	}
}

func (c *Coordinator) shutdown() {
	c.cancelCountdown()
	c.ctrl.Close()
	c.timer.Wait()
	// late driver callbacks may still be queued; they are stale by now
	c.box.take()
	c.log.Info().Msg("control loop stopped")
}

// intents posted from any goroutine
type (
	surfaceAvailable struct {
		surface camera.Surface
		width   int
		height  int
	}
	surfaceSizeChanged struct{ width, height int }
	surfaceDestroyed   struct{}
	shutterPressed     struct{ remote bool }
	cancelCountdown    struct{}
	focusTap           struct{ x, y float64 }
	switchCamera       struct{ facing camera.Facing }
	setHDR             struct{ on bool }
	setZoom            struct{ ratio float64 }
	displayChanged     struct{}
	pause              struct{}
	resume             struct{}
	snapshotRequest    struct{ reply chan State }
)

// SurfaceAvailable announces the preview surface and its size.
func (c *Coordinator) SurfaceAvailable(s camera.Surface, width, height int) {
	c.box.post(surfaceAvailable{surface: s, width: width, height: height})
}

// SurfaceSizeChanged reports a new preview surface size.
func (c *Coordinator) SurfaceSizeChanged(width, height int) {
	c.box.post(surfaceSizeChanged{width: width, height: height})
}

// SurfaceDestroyed closes the device.
func (c *Coordinator) SurfaceDestroyed() { c.box.post(surfaceDestroyed{}) }

// ShutterPressed captures now, or after the configured countdown.
func (c *Coordinator) ShutterPressed() { c.box.post(shutterPressed{}) }

// RemoteShutter captures immediately, skipping the countdown.
func (c *Coordinator) RemoteShutter() { c.box.post(shutterPressed{remote: true}) }

// CancelCountdown stops a running self-timer.
func (c *Coordinator) CancelCountdown() { c.box.post(cancelCountdown{}) }

// FocusTap starts an active focus scan at view coordinates.
func (c *Coordinator) FocusTap(x, y float64) { c.box.post(focusTap{x: x, y: y}) }

// SwitchCamera reopens on the given facing.
func (c *Coordinator) SwitchCamera(f camera.Facing) { c.box.post(switchCamera{facing: f}) }

// SetHDR reopens the device with HDR on or off.
func (c *Coordinator) SetHDR(on bool) { c.box.post(setHDR{on: on}) }

// SetZoom sets the zoom ratio; it is clamped to [1, max zoom]. The requested
// ratio is kept and clamped again each time a preview starts.
func (c *Coordinator) SetZoom(ratio float64) { c.box.post(setZoom{ratio: ratio}) }

// DisplayChanged re-reads the display rotation.
func (c *Coordinator) DisplayChanged() { c.box.post(displayChanged{}) }

// Pause tears down the device and the sensors.
func (c *Coordinator) Pause() { c.box.post(pause{}) }

// Resume restarts the sensors and reopens the device if a surface exists.
func (c *Coordinator) Resume() { c.box.post(resume{}) }

// Snapshot returns the current state as seen by the control goroutine.
func (c *Coordinator) Snapshot(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	select {
	case <-c.done:
		return State{}, ErrNotRunning
	default:
	}
	c.box.post(snapshotRequest{reply: reply})
	select {
	case s := <-reply:
		return s, nil
	case <-c.done:
		return State{}, ErrNotRunning
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (c *Coordinator) dispatch(m any) {
	switch m := m.(type) {
	case device.Event:
		c.ctrl.Handle(m)
	case capture.Event:
		c.orch.Handle(m)
	case countdown.Event:
		c.onCountdown(m)

	case surfaceAvailable:
		c.surface = &m.surface
		c.view = geometry.View{Width: m.width, Height: m.height, RotationDeg: c.opts.Display.Rotation()}
		c.updateTransform(true)
		c.openDevice()
	case surfaceSizeChanged:
		c.view.Width, c.view.Height = m.width, m.height
		c.updateTransform(false)
	case surfaceDestroyed:
		c.surface = nil
		c.cancelCountdown()
		c.closeDevice()
	case displayChanged:
		c.view.RotationDeg = c.opts.Display.Rotation()
		c.updateTransform(false)

	case shutterPressed:
		c.onShutter(m.remote)
	case cancelCountdown:
		c.cancelCountdown()
	case focusTap:
		c.onFocusTap(m.x, m.y)
	case switchCamera:
		c.onSwitchCamera(m.facing)
	case setHDR:
		c.onSetHDR(m.on)
	case setZoom:
		c.applyZoom(m.ratio)

	case pause:
		c.onPause()
	case resume:
		c.onResume()
	case snapshotRequest:
		m.reply <- c.state()

	default:
		c.log.Warn().Str(debug.FieldEvent, fmt.Sprintf("%T", m)).Msg("unknown message")
	}
}

func (c *Coordinator) openDevice() {
	if c.paused || c.surface == nil {
		return
	}
	req := device.Request{
		Facing:      c.facing,
		HDR:         c.hdr,
		PictureSize: c.opts.Settings.PictureSize(c.facing),
		Surface:     *c.surface,
	}
	err := c.ctrl.Open(c.ctx, req)
	switch {
	case err == nil:
	case device.IsFatal(err):
		c.log.Error().Err(err).Msg("device lock never released")
		c.opts.Fatal(err)
	case errors.Is(err, device.ErrNotClosed):
		debug.Verbose("coordinator: open skipped, device %s", c.ctrl.State())
	default:
		c.reportError(err)
	}
}

func (c *Coordinator) closeDevice() {
	c.ctrl.Close()
	c.setShutter(false)
	c.setFocusIndicator(FocusIndicator{Mode: FocusNone})
}

func (c *Coordinator) updateTransform(forced bool) {
	in := geometry.Input{
		Buffer:          c.ctrl.Buffer(),
		View:            c.view,
		NaturalPortrait: c.opts.Display.NaturalPortrait(),
	}
	tr, res := c.engine.Compute(in, forced)
	metrics.PreviewTransformTotal.WithLabelValues(res.String()).Inc()
	if res != geometry.Applied {
		return
	}
	c.transform = tr
	if c.opts.Preview != nil {
		c.opts.Preview.TransformChanged(tr)
	}
}

func (c *Coordinator) onShutter(remote bool) {
	if c.paused || c.ctrl.Device() == nil {
		debug.Live("coordinator: shutter ignored (paused=%v device=%s)", c.paused, c.ctrl.State())
		return
	}
	if c.timer.Active() {
		debug.Live("coordinator: shutter ignored, countdown running")
		return
	}
	if !remote {
		if secs := c.opts.Settings.CountdownSeconds(); c.timer.Start(secs) {
			return
		}
	}
	c.takePicture()
}

func (c *Coordinator) onCountdown(ev countdown.Event) {
	if !c.timer.Accept(ev) {
		return
	}
	switch e := ev.(type) {
	case countdown.Tick:
		if cue := countdown.CueFor(e.Remaining); cue != countdown.NoCue {
			c.opts.Sounds.Play(cue)
		}
		c.notifyCountdown(e.Remaining, true)
	case countdown.Finished:
		c.notifyCountdown(0, false)
		c.takePicture()
	}
}

func (c *Coordinator) cancelCountdown() {
	if c.timer.Cancel() {
		c.notifyCountdown(0, false)
	}
}

func (c *Coordinator) notifyCountdown(remaining int, active bool) {
	if c.opts.Countdown != nil {
		c.opts.Countdown.CountdownChanged(remaining, active)
	}
}

// takePicture is the deferred capture; the device may have gone away since
// the shutter press.
func (c *Coordinator) takePicture() {
	dev := c.ctrl.Device()
	if dev == nil {
		debug.Live("coordinator: capture dropped, no device")
		return
	}
	area := c.transform.PreviewArea
	preview := geometry.Size{Width: int(math.Round(area.Width)), Height: int(math.Round(area.Height))}
	s, err := c.orch.CreateSession(c.opts.Now(), c.opts.Locations.Current(), preview)
	if err != nil {
		// a session failure leaves the device and the shutter alone
		c.log.Error().Err(err).Msg("capture session not created")
		return
	}
	params := camera.Parameters{
		Orientation: c.opts.Orientation.DeviceOrientation(),
		Zoom:        c.zoom,
		Flash:       c.ctrl.Characteristics().FlashSupported && c.facing == camera.Back,
	}
	params.Heading, params.HasHeading = c.opts.Heading.Current()
	c.orch.Submit(s, dev, params)
}

func (c *Coordinator) onFocusTap(x, y float64) {
	dev := c.ctrl.Device()
	if dev == nil {
		return
	}
	nx, ny, ok := geometry.NormalizeTap(c.transform.PreviewArea, c.view.RotationDeg, x, y)
	if !ok {
		return
	}
	debug.Verbose("coordinator: focus tap (%.0f, %.0f) -> (%.3f, %.3f)", x, y, nx, ny)
	c.setFocusIndicator(FocusIndicator{Mode: FocusActive, X: x, Y: y})
	dev.TriggerFocusAt(nx, ny)
}

func (c *Coordinator) onSwitchCamera(f camera.Facing) {
	if c.paused || f == c.facing {
		return
	}
	c.cancelCountdown()
	c.facing = f
	c.opts.Settings.SetFacing(f)
	c.log.Info().Str(debug.FieldFacing, f.String()).Msg("switching camera")
	c.closeDevice()
	c.openDevice()
}

func (c *Coordinator) onSetHDR(on bool) {
	if c.paused || on == c.hdr {
		return
	}
	c.cancelCountdown()
	c.hdr = on
	c.opts.Settings.SetHDR(on)
	c.closeDevice()
	c.openDevice()
}

func (c *Coordinator) applyZoom(ratio float64) {
	if math.IsNaN(ratio) {
		return
	}
	c.wantZoom = math.Max(1, ratio)
	ratio = math.Min(c.wantZoom, c.maxZoom)
	if ratio == c.zoom {
		return
	}
	c.zoom = ratio
	if dev := c.ctrl.Device(); dev != nil {
		dev.SetZoom(ratio)
	}
}

func (c *Coordinator) onPause() {
	if c.paused {
		return
	}
	c.paused = true
	c.cancelCountdown()
	c.closeDevice()
	c.opts.Heading.Deactivate()
	c.opts.Sounds.Unload()
	c.log.Info().Msg("paused")
}

func (c *Coordinator) onResume() {
	if !c.paused {
		return
	}
	c.paused = false
	c.facing = c.opts.Settings.Facing()
	c.hdr = c.opts.Settings.HDR()
	c.opts.Heading.Activate()
	c.opts.Sounds.Load()
	c.log.Info().Bool("surface", c.surface != nil).Msg("resumed")
	// no new surface callback will come for an existing surface
	if c.surface != nil {
		c.openDevice()
	}
}

func (c *Coordinator) reportError(err error) {
	c.lastErr = err
	c.setShutter(false)
	c.log.Error().Err(err).Msg("device error")
	if c.opts.Errors != nil {
		c.opts.Errors.DeviceError(err)
	}
}

func (c *Coordinator) setShutter(enabled bool) {
	if enabled == c.shutter {
		return
	}
	c.shutter = enabled
	if c.opts.Ready != nil {
		c.opts.Ready.ShutterEnabled(enabled)
	}
}

func (c *Coordinator) setFocusIndicator(ind FocusIndicator) {
	if c.opts.Focus != nil {
		c.opts.Focus.FocusIndicator(ind)
	}
}
