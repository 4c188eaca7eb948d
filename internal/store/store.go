// Package store keeps capture sessions on disk. Each session is a YAML
// manifest (<title>.yaml) written before the capture starts, plus the picture
// (<title>.jpg) once the device delivers it. Every write is atomic.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/capture"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// Manifest statuses.
const (
	StatusPending = "pending"
	StatusSaved   = "saved"
	StatusFailed  = "failed"
)

// ErrInvalidName rejects titles and directory names that are not a single
// path element.
var ErrInvalidName = errors.New("store: invalid name")

// Manifest describes one session on disk.
type Manifest struct {
	Title       string           `yaml:"title"`
	Status      string           `yaml:"status"`
	Created     time.Time        `yaml:"created"`
	Updated     time.Time        `yaml:"updated"`
	PreviewSize geometry.Size    `yaml:"preview_size"`
	Location    *camera.Location `yaml:"location,omitempty"`
	Media       string           `yaml:"media,omitempty"`
	Bytes       int              `yaml:"bytes,omitempty"`
	Reason      string           `yaml:"reason,omitempty"`
}

// FileStore creates sessions under a root directory.
type FileStore struct {
	root string
	now  func() time.Time
	log  zerolog.Logger
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	return &FileStore{root: root, now: time.Now, log: debug.Component("store")}, nil
}

// Root returns the session root directory.
func (s *FileStore) Root() string { return s.root }

// SessionDirectory returns root/name, creating it.
func (s *FileStore) SessionDirectory(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session directory %s: %w", name, err)
	}
	return dir, nil
}

// NewSession reserves title. It fails with capture.ErrTitleTaken if a session
// with that title exists.
func (s *FileStore) NewSession(title string, t time.Time, loc *camera.Location) (capture.Media, error) {
	if err := validName(title); err != nil {
		return nil, err
	}
	m := &media{
		store: s,
		manifest: Manifest{
			Title:    title,
			Status:   StatusPending,
			Created:  t,
			Updated:  t,
			Location: loc,
		},
	}
	if _, err := os.Stat(m.manifestPath()); err == nil {
		return nil, fmt.Errorf("%w: %s", capture.ErrTitleTaken, title)
	}
	return m, nil
}

// Load reads the manifest of title.
func (s *FileStore) Load(title string) (Manifest, error) {
	if err := validName(title); err != nil {
		return Manifest{}, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, title+".yaml"))
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", title, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", title, err)
	}
	return m, nil
}

// List returns the manifests under root, oldest first by title.
func (s *FileStore) List() ([]Manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []Manifest
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".yaml" {
			continue
		}
		m, err := s.Load(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("skipping unreadable manifest")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// media is the on-disk side of one session. StartEmpty runs on the control
// goroutine; Finalize and Fail run on a driver goroutine.
type media struct {
	store *FileStore

	mu       sync.Mutex
	manifest Manifest
}

func (m *media) manifestPath() string {
	return filepath.Join(m.store.root, m.manifest.Title+".yaml")
}

func (m *media) mediaPath() string {
	return filepath.Join(m.store.root, m.manifest.Title+".jpg")
}

// StartEmpty writes the pending manifest.
func (m *media) StartEmpty(preview geometry.Size) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifest.PreviewSize = preview
	return m.writeManifest()
}

// Finalize writes the picture, when there is one, then marks the session saved.
func (m *media) Finalize(data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := m.manifestPath()
	if len(data) > 0 {
		if err := renameio.WriteFile(m.mediaPath(), data, 0o644); err != nil {
			return "", fmt.Errorf("write media %s: %w", m.manifest.Title, err)
		}
		m.manifest.Media = filepath.Base(m.mediaPath())
		m.manifest.Bytes = len(data)
		uri = m.mediaPath()
	}
	m.manifest.Status = StatusSaved
	if err := m.writeManifest(); err != nil {
		return "", err
	}
	m.store.log.Info().Str("title", m.manifest.Title).Int("bytes", len(data)).Msg("session saved")
	return "file://" + uri, nil
}

// Fail marks the session failed with reason.
func (m *media) Fail(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifest.Status = StatusFailed
	m.manifest.Reason = reason
	return m.writeManifest()
}

func (m *media) writeManifest() error {
	m.manifest.Updated = m.store.now()
	data, err := yaml.Marshal(&m.manifest)
	if err != nil {
		return fmt.Errorf("encode manifest %s: %w", m.manifest.Title, err)
	}

	pending, err := renameio.NewPendingFile(m.manifestPath(), renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending manifest %s: %w", m.manifest.Title, err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			debug.Trace("store: cleanup %s: %v", m.manifest.Title, err)
		}
	}()
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write manifest %s: %w", m.manifest.Title, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace manifest %s: %w", m.manifest.Title, err)
	}
	debug.Trace("store: %s -> %s", m.manifest.Title, m.manifest.Status)
	return nil
}
