// Package capture turns shutter actions into capture sessions: a placeholder
// is created before any pixels exist, the picture is requested from the
// device, and the session ends exactly once as Saved or Failed.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
	"github.com/cjeanneret/camctl/internal/metrics"
)

var (
	// ErrSessionStore wraps failures of the session store.
	ErrSessionStore = errors.New("capture: session store")
	// ErrCaptureFailed wraps device-reported capture failures.
	ErrCaptureFailed = errors.New("capture: device reported failure")
	// ErrNoDevice is reported when a capture is submitted without a ready device.
	ErrNoDevice = errors.New("capture: no device ready")
	// ErrTitleTaken is returned by a Store when a session title already exists.
	ErrTitleTaken = errors.New("capture: title already taken")
)

// maxTitleAttempts bounds the numbered suffixes tried when titles collide.
const maxTitleAttempts = 100

// CacheDirName is the session-store directory handed to the device for
// intermediate files.
const CacheDirName = "cache"

// Media is the store-side artifact of one session.
type Media interface {
	// StartEmpty writes the placeholder shown while the capture is in progress.
	StartEmpty(preview geometry.Size) error
	// Finalize writes the captured data and returns the media URI.
	Finalize(data []byte) (string, error)
	Fail(reason string) error
}

// Store creates session media.
type Store interface {
	NewSession(title string, t time.Time, loc *camera.Location) (Media, error)
	SessionDirectory(name string) (string, error)
}

// Listener is told about every session change.
type Listener interface {
	SessionUpdated(s Snapshot)
}

// Event is a picture callback marshalled onto the control goroutine.
type Event interface {
	session() *Session
}

// Exposed: the sensor finished exposing.
type Exposed struct{ Session *Session }

// Progress reports capture progress in percent.
type Progress struct {
	Session *Session
	Percent float64
}

// Completed is the single terminal report for a session. URI is set on
// success, Err on failure.
type Completed struct {
	Session *Session
	URI     string
	Err     error
}

func (e Exposed) session() *Session   { return e.Session }
func (e Progress) session() *Session  { return e.Session }
func (e Completed) session() *Session { return e.Session }

// Orchestrator creates and completes sessions. All methods except the
// picture callbacks run on the control goroutine.
type Orchestrator struct {
	store    Store
	post     func(Event)
	listener Listener
	log      zerolog.Logger

	active map[uuid.UUID]*Session
}

// NewOrchestrator creates an orchestrator. post must not block.
func NewOrchestrator(store Store, post func(Event), l Listener) *Orchestrator {
	return &Orchestrator{
		store:    store,
		post:     post,
		listener: l,
		log:      debug.Component("capture"),
		active:   make(map[uuid.UUID]*Session),
	}
}

// Active returns the sessions that have not ended yet.
func (o *Orchestrator) Active() int {
	return len(o.active)
}

// CreateSession creates a started-empty session with its placeholder. When
// the timestamp title is taken (two shots in the same millisecond) a numbered
// suffix is appended.
func (o *Orchestrator) CreateSession(t time.Time, loc *camera.Location, preview geometry.Size) (*Session, error) {
	base := Title(t)
	title := base
	media, err := o.store.NewSession(title, t, loc)
	for n := 1; errors.Is(err, ErrTitleTaken) && n < maxTitleAttempts; n++ {
		title = fmt.Sprintf("%s_%d", base, n)
		media, err = o.store.NewSession(title, t, loc)
	}
	if err != nil {
		metrics.CaptureSessionsTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("%w: new session %s: %w", ErrSessionStore, title, err)
	}
	if err := media.StartEmpty(preview); err != nil {
		metrics.CaptureSessionsTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("%w: placeholder %s: %w", ErrSessionStore, title, err)
	}

	s := &Session{
		ID:          uuid.New(),
		Title:       title,
		Created:     t,
		Location:    loc,
		PreviewSize: preview,
		media:       media,
	}
	o.active[s.ID] = s
	metrics.CaptureSessionsTotal.WithLabelValues("started").Inc()
	o.log.Info().Str(debug.FieldSessionID, s.ID.String()).Str("title", title).Msg("session started")
	o.notify(s)
	return s, nil
}

// Submit asks dev to take the picture for s. It does not wait: the outcome
// arrives as events. A nil device or an unusable cache directory fails the
// session right away.
func (o *Orchestrator) Submit(s *Session, dev camera.Device, params camera.Parameters) {
	if dev == nil {
		o.failEarly(s, ErrNoDevice)
		return
	}
	dir, err := o.store.SessionDirectory(CacheDirName)
	if err != nil {
		o.failEarly(s, fmt.Errorf("%w: cache directory: %w", ErrSessionStore, err))
		return
	}
	params.Title = s.Title
	params.CacheDir = dir
	params.Location = s.Location

	debug.Live("capture: submitting %s (zoom=%.2f orientation=%d)", s.Title, params.Zoom, params.Orientation)
	dev.TakePicture(params, &pictureCallbacks{session: s, post: o.post, log: o.log})
}

// Handle applies a picture event.
func (o *Orchestrator) Handle(ev Event) {
	s := ev.session()
	if s == nil {
		return
	}
	switch e := ev.(type) {
	case Exposed:
		if s.status.Terminal() {
			return
		}
		s.exposed = true
		o.notify(s)
	case Progress:
		if s.status.Terminal() {
			return
		}
		s.progress = e.Percent
		o.notify(s)
	case Completed:
		o.complete(s, e.URI, e.Err)
	}
}

func (o *Orchestrator) complete(s *Session, uri string, err error) {
	if !s.finish(uri, err) {
		o.log.Warn().Str(debug.FieldSessionID, s.ID.String()).Msg("dropping second terminal report")
		return
	}
	delete(o.active, s.ID)
	if err != nil {
		metrics.CaptureSessionsTotal.WithLabelValues("failed").Inc()
		o.log.Error().Err(err).Str(debug.FieldSessionID, s.ID.String()).Msg("session failed")
	} else {
		metrics.CaptureSessionsTotal.WithLabelValues("saved").Inc()
		o.log.Info().Str(debug.FieldSessionID, s.ID.String()).Str("uri", uri).Msg("session saved")
	}
	o.notify(s)
}

// failEarly ends a session that never reached the device.
func (o *Orchestrator) failEarly(s *Session, err error) {
	if !s.status.Terminal() {
		if ferr := s.media.Fail(err.Error()); ferr != nil {
			o.log.Error().Err(ferr).Str(debug.FieldSessionID, s.ID.String()).Msg("cannot mark session failed")
		}
	}
	o.complete(s, "", err)
}

func (o *Orchestrator) notify(s *Session) {
	if o.listener != nil {
		o.listener.SessionUpdated(s.Snapshot())
	}
}

// pictureCallbacks run on the driver goroutine. They write media through the
// store and post the outcome; only the first terminal report counts.
type pictureCallbacks struct {
	session *Session
	post    func(Event)
	log     zerolog.Logger
	done    sync.Once
}

func (p *pictureCallbacks) QuickExpose() {
	p.post(Exposed{Session: p.session})
}

func (p *pictureCallbacks) Progress(percent float64) {
	p.post(Progress{Session: p.session, Percent: percent})
}

func (p *pictureCallbacks) Saved(data []byte) {
	p.done.Do(func() {
		uri, err := p.session.media.Finalize(data)
		if err != nil {
			err = fmt.Errorf("%w: finalize %s: %w", ErrSessionStore, p.session.Title, err)
		}
		p.post(Completed{Session: p.session, URI: uri, Err: err})
	})
}

func (p *pictureCallbacks) Failed(err error) {
	p.done.Do(func() {
		if ferr := p.session.media.Fail(err.Error()); ferr != nil {
			p.log.Error().Err(ferr).Str(debug.FieldSessionID, p.session.ID.String()).Msg("cannot mark session failed")
		}
		p.post(Completed{Session: p.session, Err: fmt.Errorf("%w: %w", ErrCaptureFailed, err)})
	})
}
