package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// GPIOManager exposes a camera wired to a RemoteTrigger as a back-facing
// device. There is no frame stream: preview is ready immediately and the
// picture stays on the camera's own card.
type GPIOManager struct {
	trigger *RemoteTrigger
	preview geometry.Size
	wg      sync.WaitGroup
}

// NewGPIOManager creates a manager; preview is the buffer size reported to the
// geometry engine (zero picks from DefaultPreviewSizes).
func NewGPIOManager(t *RemoteTrigger, preview geometry.Size) *GPIOManager {
	return &GPIOManager{trigger: t, preview: preview}
}

func (m *GPIOManager) Characteristics(f Facing) (Characteristics, error) {
	if f != Back {
		return Characteristics{}, fmt.Errorf("%s camera: %w", f, ErrUnavailable)
	}
	return Characteristics{FlashSupported: true, MaxZoom: 1}, nil
}

func (m *GPIOManager) Open(f Facing, hdr bool, picture geometry.Size, cb OpenCallbacks) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if f != Back {
			cb.Failed(fmt.Errorf("%s camera: %w", f, ErrUnavailable))
			return
		}
		debug.Trace("gpio camera: opened (hdr=%v picture=%s)", hdr, picture)
		cb.Opened(newRemoteDevice(m.trigger, m.preview))
	}()
}

// Wait blocks until pending open callbacks have been delivered.
func (m *GPIOManager) Wait() {
	m.wg.Wait()
}

type remoteDevice struct {
	trigger *RemoteTrigger
	preview geometry.Size

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu       sync.Mutex
	listener Listener
	frame    atomic.Int64
}

func newRemoteDevice(t *RemoteTrigger, preview geometry.Size) *remoteDevice {
	ctx, cancel := context.WithCancel(context.Background())
	return &remoteDevice{trigger: t, preview: preview, ctx: ctx, cancel: cancel}
}

func (d *remoteDevice) StartPreview(surface Surface, ready func(error)) {
	d.spawn(func() {
		debug.Trace("gpio camera: preview on %q", surface.Name)
		ready(nil)
	})
}

func (d *remoteDevice) TakePicture(params Parameters, cb PictureCallbacks) {
	d.spawn(func() {
		cb.QuickExpose()
		if err := d.trigger.Shoot(d.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				err = ErrClosed
			}
			cb.Failed(fmt.Errorf("remote trigger %s: %w", params.Title, err))
			return
		}
		cb.Progress(100)
		cb.Saved(nil)
	})
}

func (d *remoteDevice) TriggerFocusAt(nx, ny float64) {
	d.spawn(func() {
		debug.Verbose("gpio camera: focus at (%.3f, %.3f)", nx, ny)
		d.notifyFocus(ActiveScan)
		if err := d.trigger.HalfPress(d.ctx); err != nil {
			d.notifyFocus(ActiveUnfocused)
			return
		}
		d.notifyFocus(ActiveFocused)
	})
}

func (d *remoteDevice) notifyFocus(s FocusState) {
	frame := d.frame.Add(1)
	d.mu.Lock()
	l := d.listener
	d.mu.Unlock()
	if l != nil {
		l.FocusStateChanged(s, frame)
	}
}

func (d *remoteDevice) SetZoom(float64) {}

func (d *remoteDevice) MaxZoom() float64 { return 1 }

func (d *remoteDevice) PickPreviewSize(picture geometry.Size) geometry.Size {
	if !d.preview.IsZero() {
		return d.preview
	}
	return PickPreviewSize(picture, nil)
}

func (d *remoteDevice) SetListener(l Listener) {
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()
}

func (d *remoteDevice) Close() {
	d.once.Do(func() {
		d.cancel()
		d.wg.Wait()
		d.trigger.Release()
		debug.Trace("gpio camera: closed")
	})
}

func (d *remoteDevice) spawn(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}
