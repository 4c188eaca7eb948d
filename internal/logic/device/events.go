package device

import (
	"sync"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/devicelock"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// Event is a device callback result marshalled onto the control goroutine.
// Every event carries the id of the open attempt that produced it.
type Event interface {
	AttemptID() uint64
}

// Opened: the manager handed out a device and preview setup was requested.
type Opened struct {
	Attempt uint64
	Device  camera.Device
	Buffer  geometry.Size
}

// PreviewReady: preview is streaming.
type PreviewReady struct{ Attempt uint64 }

// PreviewFailed: preview setup failed.
type PreviewFailed struct {
	Attempt uint64
	Err     error
}

// OpenFailed: the manager could not open the device.
type OpenFailed struct {
	Attempt uint64
	Err     error
}

// DeviceClosed: the device went away underneath us.
type DeviceClosed struct{ Attempt uint64 }

// FocusChanged is forwarded from the device listener.
type FocusChanged struct {
	Attempt uint64
	State   camera.FocusState
	Frame   int64
}

// ReadyChanged is forwarded from the device listener.
type ReadyChanged struct {
	Attempt uint64
	Ready   bool
}

// FrameAvailable is forwarded from the device listener.
type FrameAvailable struct{ Attempt uint64 }

func (e Opened) AttemptID() uint64         { return e.Attempt }
func (e PreviewReady) AttemptID() uint64   { return e.Attempt }
func (e PreviewFailed) AttemptID() uint64  { return e.Attempt }
func (e OpenFailed) AttemptID() uint64     { return e.Attempt }
func (e DeviceClosed) AttemptID() uint64   { return e.Attempt }
func (e FocusChanged) AttemptID() uint64   { return e.Attempt }
func (e ReadyChanged) AttemptID() uint64   { return e.Attempt }
func (e FrameAvailable) AttemptID() uint64 { return e.Attempt }

// attempt is one open request. Its callbacks run on driver goroutines and
// only touch the immutable request, the lock hold and the guarded device.
type attempt struct {
	id   uint64
	req  Request
	hdr  bool
	hold *devicelock.Hold
	post func(Event)

	mu  sync.Mutex
	dev camera.Device
}

func (a *attempt) device() camera.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dev
}

func (a *attempt) Opened(dev camera.Device) {
	a.mu.Lock()
	a.dev = dev
	a.mu.Unlock()

	buffer := dev.PickPreviewSize(a.req.PictureSize)
	debug.Trace("device: attempt %d opened, buffer %s", a.id, buffer)
	a.post(Opened{Attempt: a.id, Device: dev, Buffer: buffer})
	dev.StartPreview(a.req.Surface, a.previewDone)
}

// previewDone releases the hold before posting so a control goroutine
// blocked in Close is never waiting on its own queue.
func (a *attempt) previewDone(err error) {
	a.hold.Release()
	if err != nil {
		a.post(PreviewFailed{Attempt: a.id, Err: err})
		return
	}
	a.post(PreviewReady{Attempt: a.id})
}

func (a *attempt) Failed(err error) {
	a.hold.Release()
	a.post(OpenFailed{Attempt: a.id, Err: err})
}

func (a *attempt) Closed() {
	a.hold.Release()
	a.post(DeviceClosed{Attempt: a.id})
}

// listener forwards device notifications tagged with the attempt id.
type listener struct {
	id   uint64
	post func(Event)
}

func (l listener) FocusStateChanged(s camera.FocusState, frame int64) {
	l.post(FocusChanged{Attempt: l.id, State: s, Frame: frame})
}

func (l listener) ReadyStateChanged(ready bool) {
	l.post(ReadyChanged{Attempt: l.id, Ready: ready})
}

func (l listener) FrameAvailable() {
	l.post(FrameAvailable{Attempt: l.id})
}
