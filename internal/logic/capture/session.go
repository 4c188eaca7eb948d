package capture

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// Status is the session state. Saved and Failed are terminal.
type Status int

const (
	Started Status = iota
	Saved
	Failed
)

func (s Status) String() string {
	switch s {
	case Started:
		return "started"
	case Saved:
		return "saved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == Saved || s == Failed
}

// Session is one shutter action and its output artifact. It is owned by the
// control goroutine; driver goroutines only read its immutable fields.
type Session struct {
	ID          uuid.UUID
	Title       string
	Created     time.Time
	Location    *camera.Location
	PreviewSize geometry.Size

	media    Media
	status   Status
	exposed  bool
	progress float64
	uri      string
	err      error
}

// Status returns the current status.
func (s *Session) Status() Status { return s.status }

// Err returns the failure reason of a Failed session.
func (s *Session) Err() error { return s.err }

// URI returns where a Saved session's media was written.
func (s *Session) URI() string { return s.uri }

// finish applies the terminal transition. It reports false if the session
// already ended.
func (s *Session) finish(uri string, err error) bool {
	if s.status.Terminal() {
		return false
	}
	if err != nil {
		s.status = Failed
		s.err = err
		return true
	}
	s.status = Saved
	s.uri = uri
	s.progress = 100
	return true
}

// Snapshot is a copy of a session for listeners and the web surface.
type Snapshot struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Created     time.Time        `json:"created"`
	Status      string           `json:"status"`
	Exposed     bool             `json:"exposed"`
	Progress    float64          `json:"progress"`
	URI         string           `json:"uri,omitempty"`
	Error       string           `json:"error,omitempty"`
	PreviewSize geometry.Size    `json:"preview_size"`
	Location    *camera.Location `json:"location,omitempty"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:          s.ID.String(),
		Title:       s.Title,
		Created:     s.Created,
		Status:      s.status.String(),
		Exposed:     s.exposed,
		Progress:    s.progress,
		URI:         s.uri,
		PreviewSize: s.PreviewSize,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if s.Location != nil {
		loc := *s.Location
		snap.Location = &loc
	}
	return snap
}

// Title builds the media title for a capture taken at t.
func Title(t time.Time) string {
	return fmt.Sprintf("IMG_%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}
