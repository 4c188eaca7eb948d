package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// ErrSimulated marks failures injected through Faults.
var ErrSimulated = errors.New("simulated device fault")

// Faults selects which simulated operations fail.
type Faults struct {
	Characteristics bool `yaml:"characteristics"`
	Open            bool `yaml:"open"`
	Preview         bool `yaml:"preview"`
	Capture         bool `yaml:"capture"`
}

// SimConfig tunes the simulated device.
type SimConfig struct {
	// Latency delays every asynchronous callback (open, preview start, capture).
	Latency time.Duration
	// FrameInterval is the preview frame period; zero disables the frame stream.
	FrameInterval time.Duration
	// FocusFrames is how many frames a focus scan lasts.
	FocusFrames  int
	MaxZoom      float64
	PreviewSizes []geometry.Size
	Faults       Faults
}

// SimManager is a goroutine-driven stand-in for a real camera stack.
type SimManager struct {
	cfg SimConfig
	wg  sync.WaitGroup

	mu      sync.Mutex
	faults  Faults
	current *SimDevice
	opens   int
}

// NewSimManager creates a simulated manager with both facings available.
func NewSimManager(cfg SimConfig) *SimManager {
	if cfg.MaxZoom < 1 {
		cfg.MaxZoom = 1
	}
	if cfg.FocusFrames <= 0 {
		cfg.FocusFrames = 3
	}
	return &SimManager{cfg: cfg, faults: cfg.Faults}
}

// SetFaults replaces the injected faults; it applies to subsequent operations.
func (m *SimManager) SetFaults(f Faults) {
	m.mu.Lock()
	m.faults = f
	m.mu.Unlock()
}

func (m *SimManager) currentFaults() Faults {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.faults
}

// Opens reports how many devices have been handed out.
func (m *SimManager) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Current returns the open device, if any.
func (m *SimManager) Current() (*SimDevice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

func (m *SimManager) Characteristics(f Facing) (Characteristics, error) {
	if m.currentFaults().Characteristics {
		return Characteristics{}, fmt.Errorf("%s camera characteristics: %w", f, ErrSimulated)
	}
	c := Characteristics{FlashSupported: f == Back, SensorOrientation: 90, MaxZoom: m.cfg.MaxZoom}
	if f == Front {
		c.SensorOrientation = 270
	}
	return c, nil
}

func (m *SimManager) Open(f Facing, hdr bool, picture geometry.Size, cb OpenCallbacks) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if m.cfg.Latency > 0 {
			time.Sleep(m.cfg.Latency)
		}
		if m.currentFaults().Open {
			cb.Failed(fmt.Errorf("open %s camera: %w", f, ErrSimulated))
			return
		}
		dev := &SimDevice{
			mgr:     m,
			cb:      cb,
			facing:  f,
			hdr:     hdr,
			picture: picture,
			zoom:    1,
			stop:    make(chan struct{}),
		}
		m.mu.Lock()
		m.current = dev
		m.opens++
		m.mu.Unlock()
		debug.Trace("sim camera: opened %s (hdr=%v picture=%s)", f, hdr, picture)
		cb.Opened(dev)
	}()
}

// Disconnect simulates the open device going away: it is closed and its
// OpenCallbacks.Closed fires.
func (m *SimManager) Disconnect() {
	m.mu.Lock()
	dev := m.current
	m.mu.Unlock()
	if dev == nil {
		return
	}
	dev.Close()
	dev.cb.Closed()
}

// Wait blocks until pending open callbacks have been delivered.
func (m *SimManager) Wait() {
	m.wg.Wait()
}

// SimDevice is a device opened by SimManager.
type SimDevice struct {
	mgr     *SimManager
	cb      OpenCallbacks
	facing  Facing
	hdr     bool
	picture geometry.Size

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	frame atomic.Int64

	mu          sync.Mutex
	listener    Listener
	zoom        float64
	preview     geometry.Size
	focusMode   FocusState
	focusUntil  int64
	focusActive bool
}

// Facing returns the camera this device was opened on.
func (d *SimDevice) Facing() Facing { return d.facing }

func (d *SimDevice) StartPreview(surface Surface, ready func(error)) {
	d.spawn(func() {
		if !d.wait(d.mgr.cfg.Latency) {
			ready(ErrClosed)
			return
		}
		if d.mgr.currentFaults().Preview {
			ready(fmt.Errorf("preview on %q: %w", surface.Name, ErrSimulated))
			return
		}
		if d.mgr.cfg.FrameInterval > 0 {
			d.startScan(PassiveScan)
			d.spawn(d.frames)
		}
		ready(nil)
	})
}

func (d *SimDevice) frames() {
	t := time.NewTicker(d.mgr.cfg.FrameInterval)
	defer t.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-t.C:
		}
		n := d.frame.Add(1)
		l := d.currentListener()
		if l == nil {
			continue
		}
		l.FrameAvailable()

		d.mu.Lock()
		var settled FocusState
		fire := d.focusActive && n >= d.focusUntil
		if fire {
			d.focusActive = false
			settled = PassiveFocused
			if d.focusMode == ActiveScan {
				settled = ActiveFocused
			}
		}
		d.mu.Unlock()
		if fire {
			l.FocusStateChanged(settled, n)
		}
	}
}

func (d *SimDevice) startScan(mode FocusState) {
	d.mu.Lock()
	d.focusMode = mode
	d.focusActive = true
	d.focusUntil = d.frame.Load() + int64(d.mgr.cfg.FocusFrames)
	l := d.listener
	d.mu.Unlock()
	if l != nil {
		l.FocusStateChanged(mode, d.frame.Load())
	}
}

func (d *SimDevice) TakePicture(params Parameters, cb PictureCallbacks) {
	d.spawn(func() {
		cb.QuickExpose()
		half := d.mgr.cfg.Latency / 2
		if !d.wait(half) {
			cb.Failed(ErrClosed)
			return
		}
		cb.Progress(50)
		if !d.wait(half) {
			cb.Failed(ErrClosed)
			return
		}
		if d.mgr.currentFaults().Capture {
			cb.Failed(fmt.Errorf("capture %s: %w", params.Title, ErrSimulated))
			return
		}
		data, err := syntheticJPEG(d.pictureSize(), d.frame.Load())
		if err != nil {
			cb.Failed(fmt.Errorf("encode %s: %w", params.Title, err))
			return
		}
		cb.Progress(100)
		cb.Saved(data)
	})
}

func (d *SimDevice) pictureSize() geometry.Size {
	if !d.picture.IsZero() {
		return d.picture
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.preview
}

func (d *SimDevice) TriggerFocusAt(nx, ny float64) {
	debug.Trace("sim camera: focus at (%.3f, %.3f)", nx, ny)
	if d.mgr.cfg.FrameInterval > 0 {
		d.startScan(ActiveScan)
		return
	}
	// no frame stream to settle on, report the scan result right away
	d.spawn(func() {
		if l := d.currentListener(); l != nil {
			l.FocusStateChanged(ActiveScan, d.frame.Load())
			l.FocusStateChanged(ActiveFocused, d.frame.Load())
		}
	})
}

func (d *SimDevice) SetZoom(ratio float64) {
	d.mu.Lock()
	d.zoom = ratio
	d.mu.Unlock()
}

// Zoom returns the last ratio pushed with SetZoom.
func (d *SimDevice) Zoom() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zoom
}

func (d *SimDevice) MaxZoom() float64 {
	return d.mgr.cfg.MaxZoom
}

func (d *SimDevice) PickPreviewSize(picture geometry.Size) geometry.Size {
	s := PickPreviewSize(picture, d.mgr.cfg.PreviewSizes)
	d.mu.Lock()
	d.preview = s
	d.mu.Unlock()
	return s
}

func (d *SimDevice) SetListener(l Listener) {
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()
}

func (d *SimDevice) currentListener() Listener {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listener
}

func (d *SimDevice) Close() {
	d.once.Do(func() {
		close(d.stop)
		d.wg.Wait()
		d.mgr.mu.Lock()
		if d.mgr.current == d {
			d.mgr.current = nil
		}
		d.mgr.mu.Unlock()
		debug.Trace("sim camera: closed %s", d.facing)
	})
}

// wait sleeps for dur and reports false if the device was closed meanwhile.
func (d *SimDevice) wait(dur time.Duration) bool {
	if dur <= 0 {
		select {
		case <-d.stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-d.stop:
		return false
	case <-t.C:
		return true
	}
}

func (d *SimDevice) spawn(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

const thumbWidth = 320

// syntheticJPEG renders a small gradient with the picture's aspect ratio.
func syntheticJPEG(size geometry.Size, frame int64) ([]byte, error) {
	w, h := thumbWidth, thumbWidth*9/16
	if !size.IsZero() {
		h = thumbWidth * size.Height / size.Width
		if h < 1 {
			h = 1
		}
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shift := uint8(frame % 256)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*255/w) + shift,
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
