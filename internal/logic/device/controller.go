// Package device sequences the physical camera through
// open -> preview -> ready -> close. The Controller is owned by a single
// control goroutine; driver callbacks reach it only as Events passed to Handle.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/devicelock"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
	"github.com/cjeanneret/camctl/internal/metrics"
)

// DefaultLockTimeout bounds the wait for the lock when opening.
const DefaultLockTimeout = 2500 * time.Millisecond

// Request describes the device to open.
type Request struct {
	Facing      camera.Facing
	HDR         bool
	PictureSize geometry.Size
	Surface     camera.Surface
}

// Hooks receive controller notifications on the control goroutine.
type Hooks interface {
	// Opened: buffer geometry is known.
	Opened(buffer geometry.Size)
	// PreviewStarted fires exactly once per successful open.
	PreviewStarted(dev camera.Device)
	// ForceTransform: the first frame after preview start arrived.
	ForceTransform()
	FocusChanged(state camera.FocusState, frame int64)
	ReadyChanged(ready bool)
	// Failed reports a recoverable failure; the controller is Closed again.
	Failed(err error)
	Closed()
}

// NopHooks ignores every notification. Embed it to implement a subset.
type NopHooks struct{}

func (NopHooks) Opened(geometry.Size)                  {}
func (NopHooks) PreviewStarted(camera.Device)          {}
func (NopHooks) ForceTransform()                       {}
func (NopHooks) FocusChanged(camera.FocusState, int64) {}
func (NopHooks) ReadyChanged(bool)                     {}
func (NopHooks) Failed(error)                          {}
func (NopHooks) Closed()                               {}

// Config wires a Controller.
type Config struct {
	// Manager may be nil: Open then fails with ErrDeviceUnavailable.
	Manager     camera.Manager
	Lock        *devicelock.Lock
	LockTimeout time.Duration
	// Post hands an event to the control goroutine. It must not block.
	Post  func(Event)
	Hooks Hooks
}

// Controller owns the device handle and its buffer geometry.
type Controller struct {
	mgr     camera.Manager
	lock    *devicelock.Lock
	timeout time.Duration
	post    func(Event)
	hooks   Hooks
	log     zerolog.Logger

	state     State
	lifecycle Lifecycle
	handle    camera.Device
	buffer    geometry.Size
	chars     camera.Characteristics
	facing    camera.Facing
	attempt   *attempt
	started   bool
	nextID    uint64
}

// NewController creates a Closed controller.
func NewController(cfg Config) *Controller {
	if cfg.Lock == nil {
		cfg.Lock = devicelock.New()
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Hooks == nil {
		cfg.Hooks = NopHooks{}
	}
	if cfg.Post == nil {
		cfg.Post = func(Event) {}
	}
	metrics.DeviceState.Set(float64(Closed))
	return &Controller{
		mgr:     cfg.Manager,
		lock:    cfg.Lock,
		timeout: cfg.LockTimeout,
		post:    cfg.Post,
		hooks:   cfg.Hooks,
		log:     debug.Component("device"),
	}
}

func (c *Controller) State() State                            { return c.state }
func (c *Controller) Lifecycle() Lifecycle                    { return c.lifecycle }
func (c *Controller) Buffer() geometry.Size                   { return c.buffer }
func (c *Controller) Characteristics() camera.Characteristics { return c.chars }

// Device returns the open device once preview is ready, nil otherwise.
func (c *Controller) Device() camera.Device {
	if c.state != ReadyForCapture {
		return nil
	}
	return c.handle
}

// Facing returns the facing of the last open request.
func (c *Controller) Facing() camera.Facing { return c.facing }

// Open starts opening a device. It blocks only on the device lock; the rest
// completes through events. HDR is honored on the back camera only.
func (c *Controller) Open(ctx context.Context, req Request) error {
	if c.state != Closed {
		return fmt.Errorf("%w (state %s)", ErrNotClosed, c.state)
	}

	start := time.Now()
	hold, err := c.lock.Acquire(ctx, c.timeout)
	metrics.DeviceLockWaitSeconds.WithLabelValues("open").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, devicelock.ErrTimeout) {
			metrics.DeviceOpenTotal.WithLabelValues("lock_timeout").Inc()
			return fmt.Errorf("%w: %w", ErrLockTimeout, err)
		}
		return err
	}

	if c.mgr == nil {
		hold.Release()
		metrics.DeviceOpenTotal.WithLabelValues("unavailable").Inc()
		return ErrDeviceUnavailable
	}
	chars, err := c.mgr.Characteristics(req.Facing)
	if err != nil {
		hold.Release()
		metrics.DeviceOpenTotal.WithLabelValues("access_error").Inc()
		return fmt.Errorf("%w: %w", ErrDeviceAccess, err)
	}

	c.nextID++
	a := &attempt{
		id:   c.nextID,
		req:  req,
		hdr:  req.HDR && req.Facing == camera.Back,
		hold: hold,
		post: c.post,
	}
	c.attempt = a
	c.chars = chars
	c.facing = req.Facing
	c.started = false
	c.setState(Opening)
	c.log.Info().
		Uint64(debug.FieldAttempt, a.id).
		Str(debug.FieldFacing, req.Facing.String()).
		Bool("hdr", a.hdr).
		Str("picture", req.PictureSize.String()).
		Msg("opening device")

	c.mgr.Open(req.Facing, a.hdr, req.PictureSize, a)
	return nil
}

// Close waits for the lock without bound, closes whatever device exists
// (adopted or still in flight) and always releases. Safe when already closed.
func (c *Controller) Close() {
	prev := c.state
	if prev != Closed {
		c.setState(Closing)
	}

	start := time.Now()
	hold, err := c.lock.Acquire(context.Background(), 0)
	metrics.DeviceLockWaitSeconds.WithLabelValues("close").Observe(time.Since(start).Seconds())
	if err != nil {
		// unreachable with a background context
		c.log.Error().Err(err).Msg("close: lock acquire")
		return
	}
	defer hold.Release()

	dev := c.handle
	if dev == nil && c.attempt != nil {
		dev = c.attempt.device()
	}
	if dev != nil {
		dev.SetListener(nil)
		dev.Close()
		metrics.DeviceCloseTotal.WithLabelValues("closed").Inc()
	} else {
		metrics.DeviceCloseTotal.WithLabelValues("noop").Inc()
	}

	c.clear()
	if prev != Closed {
		c.hooks.Closed()
	}
}

// Handle applies a device event. Events from superseded attempts are dropped.
func (c *Controller) Handle(ev Event) {
	if c.attempt == nil || ev.AttemptID() != c.attempt.id {
		debug.Trace("device: dropping stale %T from attempt %d", ev, ev.AttemptID())
		return
	}

	switch e := ev.(type) {
	case Opened:
		if c.state != Opening {
			return
		}
		c.handle = e.Device
		c.buffer = e.Buffer
		c.setLifecycle(AwaitingFirstFrame)
		c.setState(PreviewStarting)
		c.hooks.Opened(e.Buffer)

	case PreviewReady:
		if c.state != PreviewStarting || c.handle == nil {
			return
		}
		if c.lifecycle == AwaitingFirstFrame {
			c.setLifecycle(PendingTransformUpdate)
		}
		c.handle.SetListener(listener{id: e.Attempt, post: c.post})
		c.setState(ReadyForCapture)
		metrics.DeviceOpenTotal.WithLabelValues("ready").Inc()
		if !c.started {
			c.started = true
			c.hooks.PreviewStarted(c.handle)
		}

	case PreviewFailed:
		metrics.DeviceOpenTotal.WithLabelValues("preview_failed").Inc()
		if c.handle != nil {
			c.handle.Close()
		}
		c.clear()
		c.hooks.Failed(fmt.Errorf("%w: %w", ErrPreviewSetup, e.Err))

	case OpenFailed:
		metrics.DeviceOpenTotal.WithLabelValues("open_failed").Inc()
		c.clear()
		c.hooks.Failed(fmt.Errorf("%w: %w", ErrOpenFailed, e.Err))

	case DeviceClosed:
		if c.handle != nil {
			c.handle.SetListener(nil)
			c.handle.Close()
		}
		c.clear()
		c.hooks.Failed(ErrDisconnected)

	case FocusChanged:
		if c.state == ReadyForCapture {
			c.hooks.FocusChanged(e.State, e.Frame)
		}

	case ReadyChanged:
		if c.state == ReadyForCapture {
			c.hooks.ReadyChanged(e.Ready)
		}

	case FrameAvailable:
		if c.state == ReadyForCapture && c.lifecycle == PendingTransformUpdate {
			c.setLifecycle(Idle)
			c.hooks.ForceTransform()
		}
	}
}

func (c *Controller) clear() {
	c.handle = nil
	c.buffer = geometry.Size{}
	c.attempt = nil
	c.setLifecycle(Idle)
	c.setState(Closed)
}

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	debug.Transition("device", c.state, s)
	c.state = s
	metrics.DeviceState.Set(float64(s))
}

func (c *Controller) setLifecycle(l Lifecycle) {
	if l == c.lifecycle {
		return
	}
	debug.Transition("preview_lifecycle", c.lifecycle, l)
	c.lifecycle = l
}
