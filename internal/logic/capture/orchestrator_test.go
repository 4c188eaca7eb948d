package capture

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

type fakeMedia struct {
	mu          sync.Mutex
	placeholder geometry.Size
	finalized   []byte
	failures    []string
	finalizeErr error
	failErr     error
}

func (m *fakeMedia) StartEmpty(size geometry.Size) error {
	m.placeholder = size
	return nil
}

func (m *fakeMedia) Finalize(data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizeErr != nil {
		return "", m.finalizeErr
	}
	m.finalized = data
	return "file:///sessions/" + string(data), nil
}

func (m *fakeMedia) Fail(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, reason)
	return m.failErr
}

type fakeStore struct {
	media      []*fakeMedia
	titles     []string
	newErr     error
	dirErr     error
	mediaSetup func(*fakeMedia)
}

func (s *fakeStore) NewSession(title string, _ time.Time, _ *camera.Location) (Media, error) {
	if s.newErr != nil {
		return nil, s.newErr
	}
	for _, taken := range s.titles {
		if taken == title {
			return nil, fmt.Errorf("%w: %s", ErrTitleTaken, title)
		}
	}
	m := &fakeMedia{}
	if s.mediaSetup != nil {
		s.mediaSetup(m)
	}
	s.media = append(s.media, m)
	s.titles = append(s.titles, title)
	return m, nil
}

func (s *fakeStore) SessionDirectory(name string) (string, error) {
	if s.dirErr != nil {
		return "", s.dirErr
	}
	return "/sessions/" + name, nil
}

// pictureDevice keeps the picture callbacks for the test to drive.
type pictureDevice struct {
	params []camera.Parameters
	cbs    []camera.PictureCallbacks
}

func (d *pictureDevice) StartPreview(camera.Surface, func(error)) {}
func (d *pictureDevice) TakePicture(p camera.Parameters, cb camera.PictureCallbacks) {
	d.params = append(d.params, p)
	d.cbs = append(d.cbs, cb)
}
func (d *pictureDevice) SetZoom(float64)                 {}
func (d *pictureDevice) MaxZoom() float64                { return 1 }
func (d *pictureDevice) TriggerFocusAt(float64, float64) {}
func (d *pictureDevice) SetListener(camera.Listener)     {}
func (d *pictureDevice) Close()                          {}
func (d *pictureDevice) PickPreviewSize(s geometry.Size) geometry.Size {
	return s
}

type snapshotRecorder struct {
	snaps []Snapshot
}

func (r *snapshotRecorder) SessionUpdated(s Snapshot) { r.snaps = append(r.snaps, s) }

func (r *snapshotRecorder) statuses() []string {
	var out []string
	for _, s := range r.snaps {
		out = append(out, s.Status)
	}
	return out
}

type fixture struct {
	orch   *Orchestrator
	store  *fakeStore
	events []Event
	rec    *snapshotRecorder
}

func newFixture() *fixture {
	f := &fixture{store: &fakeStore{}, rec: &snapshotRecorder{}}
	f.orch = NewOrchestrator(f.store, func(ev Event) { f.events = append(f.events, ev) }, f.rec)
	return f
}

func (f *fixture) drain() {
	for len(f.events) > 0 {
		ev := f.events[0]
		f.events = f.events[1:]
		f.orch.Handle(ev)
	}
}

var shotTime = time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC)

func TestTitle(t *testing.T) {
	assert.Equal(t, "IMG_20260314_150926_535", Title(shotTime))
}

func TestCreateSession_StartsEmpty(t *testing.T) {
	f := newFixture()
	loc := &camera.Location{Latitude: 46.2, Longitude: 6.1}
	preview := geometry.Size{Width: 1080, Height: 608}

	s, err := f.orch.CreateSession(shotTime, loc, preview)
	require.NoError(t, err)

	assert.Equal(t, Started, s.Status())
	assert.Equal(t, "IMG_20260314_150926_535", s.Title)
	assert.NotEqual(t, [16]byte{}, [16]byte(s.ID))
	require.Len(t, f.store.media, 1)
	assert.Equal(t, preview, f.store.media[0].placeholder, "placeholder exists before pixel data")
	assert.Equal(t, 1, f.orch.Active())
	assert.Equal(t, []string{"started"}, f.rec.statuses())
	require.NotNil(t, f.rec.snaps[0].Location)
	assert.Equal(t, 46.2, f.rec.snaps[0].Location.Latitude)
}

func TestCreateSession_StoreFailure(t *testing.T) {
	f := newFixture()
	f.store.newErr = errors.New("disk full")

	s, err := f.orch.CreateSession(shotTime, nil, geometry.Size{})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrSessionStore)
	assert.Zero(t, f.orch.Active())
}

func TestCreateSession_SameMillisecondGetsSuffix(t *testing.T) {
	f := newFixture()

	var titles []string
	for i := 0; i < 3; i++ {
		s, err := f.orch.CreateSession(shotTime, nil, geometry.Size{})
		require.NoError(t, err)
		titles = append(titles, s.Title)
	}

	assert.Equal(t, []string{
		"IMG_20260314_150926_535",
		"IMG_20260314_150926_535_1",
		"IMG_20260314_150926_535_2",
	}, titles)
	assert.Equal(t, 3, f.orch.Active())
}

func TestCreateSession_TitleAttemptsExhausted(t *testing.T) {
	f := newFixture()
	f.store.titles = append(f.store.titles, Title(shotTime))
	for n := 1; n < maxTitleAttempts; n++ {
		f.store.titles = append(f.store.titles, fmt.Sprintf("%s_%d", Title(shotTime), n))
	}

	s, err := f.orch.CreateSession(shotTime, nil, geometry.Size{})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrSessionStore)
	assert.ErrorIs(t, err, ErrTitleTaken)
	assert.Zero(t, f.orch.Active())
}

func TestSubmit_SavedOnce(t *testing.T) {
	f := newFixture()
	dev := &pictureDevice{}
	s, err := f.orch.CreateSession(shotTime, nil, geometry.Size{Width: 100, Height: 50})
	require.NoError(t, err)

	f.orch.Submit(s, dev, camera.Parameters{Zoom: 2, Orientation: 90})
	require.Len(t, dev.cbs, 1)
	assert.Equal(t, s.Title, dev.params[0].Title)
	assert.Equal(t, "/sessions/cache", dev.params[0].CacheDir)
	assert.Equal(t, 2.0, dev.params[0].Zoom)

	cb := dev.cbs[0]
	cb.QuickExpose()
	cb.Progress(50)
	cb.Saved([]byte("jpeg"))
	f.drain()

	assert.Equal(t, Saved, s.Status())
	assert.Equal(t, "file:///sessions/jpeg", s.URI())
	assert.Equal(t, []byte("jpeg"), f.store.media[0].finalized)
	assert.Zero(t, f.orch.Active())

	last := f.rec.snaps[len(f.rec.snaps)-1]
	assert.True(t, last.Exposed)
	assert.Equal(t, 100.0, last.Progress)
	assert.Equal(t, []string{"started", "started", "started", "saved"}, f.rec.statuses())
}

func TestSubmit_DeviceFailure(t *testing.T) {
	f := newFixture()
	dev := &pictureDevice{}
	s, _ := f.orch.CreateSession(shotTime, nil, geometry.Size{})
	f.orch.Submit(s, dev, camera.Parameters{})

	dev.cbs[0].Failed(errors.New("shutter jammed"))
	f.drain()

	assert.Equal(t, Failed, s.Status())
	assert.ErrorIs(t, s.Err(), ErrCaptureFailed)
	assert.Equal(t, []string{"shutter jammed"}, f.store.media[0].failures)
	assert.Equal(t, "failed", f.rec.snaps[len(f.rec.snaps)-1].Status)
}

func TestSubmit_FailMarkerErrorIsLogged(t *testing.T) {
	f := newFixture()
	var buf bytes.Buffer
	f.orch.log = zerolog.New(&buf)
	f.store.mediaSetup = func(m *fakeMedia) { m.failErr = errors.New("manifest locked") }
	dev := &pictureDevice{}
	devFail, _ := f.orch.CreateSession(shotTime, nil, geometry.Size{})
	noDev, _ := f.orch.CreateSession(shotTime.Add(time.Second), nil, geometry.Size{})
	f.orch.Submit(devFail, dev, camera.Parameters{})

	dev.cbs[0].Failed(errors.New("shutter jammed"))
	f.drain()
	f.orch.Submit(noDev, nil, camera.Parameters{})

	assert.Equal(t, Failed, devFail.Status())
	assert.ErrorIs(t, devFail.Err(), ErrCaptureFailed)
	assert.Equal(t, Failed, noDev.Status())
	assert.ErrorIs(t, noDev.Err(), ErrNoDevice)
	assert.Equal(t, 2, strings.Count(buf.String(), "cannot mark session failed"))
	assert.Contains(t, buf.String(), "manifest locked")
	assert.Contains(t, buf.String(), devFail.ID.String())
	assert.Contains(t, buf.String(), noDev.ID.String())
}

func TestSubmit_FinalizeFailure(t *testing.T) {
	f := newFixture()
	f.store.mediaSetup = func(m *fakeMedia) { m.finalizeErr = errors.New("read-only") }
	dev := &pictureDevice{}
	s, _ := f.orch.CreateSession(shotTime, nil, geometry.Size{})
	f.orch.Submit(s, dev, camera.Parameters{})

	dev.cbs[0].Saved([]byte("x"))
	f.drain()

	assert.Equal(t, Failed, s.Status())
	assert.ErrorIs(t, s.Err(), ErrSessionStore)
}

func TestSubmit_ExactlyOneTerminalTransition(t *testing.T) {
	f := newFixture()
	dev := &pictureDevice{}
	s, _ := f.orch.CreateSession(shotTime, nil, geometry.Size{})
	f.orch.Submit(s, dev, camera.Parameters{})

	cb := dev.cbs[0]
	cb.Saved([]byte("a"))
	cb.Failed(errors.New("late failure"))
	cb.Saved([]byte("b"))
	f.drain()

	// a Completed posted by another path is dropped by the session itself
	f.orch.Handle(Completed{Session: s, Err: errors.New("duplicate")})
	f.orch.Handle(Progress{Session: s, Percent: 10})

	assert.Equal(t, Saved, s.Status())
	assert.Nil(t, s.Err())
	assert.Empty(t, f.store.media[0].failures)
	assert.Equal(t, []byte("a"), f.store.media[0].finalized)

	terminal := 0
	for _, st := range f.rec.statuses() {
		if st == "saved" || st == "failed" {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestSubmit_NoDeviceFailsImmediately(t *testing.T) {
	f := newFixture()
	s, _ := f.orch.CreateSession(shotTime, nil, geometry.Size{})

	f.orch.Submit(s, nil, camera.Parameters{})

	assert.Equal(t, Failed, s.Status())
	assert.ErrorIs(t, s.Err(), ErrNoDevice)
	assert.Len(t, f.store.media[0].failures, 1)
}

func TestSubmit_CacheDirectoryFailure(t *testing.T) {
	f := newFixture()
	f.store.dirErr = errors.New("permission denied")
	dev := &pictureDevice{}
	s, _ := f.orch.CreateSession(shotTime, nil, geometry.Size{})

	f.orch.Submit(s, dev, camera.Parameters{})

	assert.Empty(t, dev.cbs, "the device is never asked")
	assert.Equal(t, Failed, s.Status())
	assert.ErrorIs(t, s.Err(), ErrSessionStore)
	assert.True(t, strings.Contains(s.Err().Error(), "permission denied"))
}

func TestSessionsAreIndependent(t *testing.T) {
	f := newFixture()
	dev := &pictureDevice{}
	a, _ := f.orch.CreateSession(shotTime, nil, geometry.Size{})
	b, _ := f.orch.CreateSession(shotTime.Add(time.Second), nil, geometry.Size{})
	f.orch.Submit(a, dev, camera.Parameters{})
	f.orch.Submit(b, dev, camera.Parameters{})

	dev.cbs[1].Failed(errors.New("boom"))
	dev.cbs[0].Saved([]byte("ok"))
	f.drain()

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, Saved, a.Status())
	assert.Equal(t, Failed, b.Status())
	assert.Zero(t, f.orch.Active())
}
