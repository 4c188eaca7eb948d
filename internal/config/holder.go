package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 300 * time.Millisecond

// Holder keeps the current configuration and reloads it when the file
// changes. It also serves as the coordinator's settings source: HDR and
// facing changes made at runtime are kept in memory and survive reloads.
type Holder struct {
	path     string
	debounce time.Duration
	log      zerolog.Logger

	mu      sync.RWMutex
	current Config
	hdr     *bool
	facing  *camera.Facing

	listenersMu sync.Mutex
	listeners   []func(Config)
}

// NewHolder wraps an already loaded configuration read from path.
func NewHolder(path string, initial *Config) *Holder {
	return &Holder{
		path:     path,
		debounce: DefaultDebounce,
		log:      debug.Component("config"),
		current:  *initial,
	}
}

// Get returns a copy of the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to be called with every successfully reloaded config.
func (h *Holder) OnReload(fn func(Config)) {
	h.listenersMu.Lock()
	h.listeners = append(h.listeners, fn)
	h.listenersMu.Unlock()
}

// Reload re-reads the file. On any error the current configuration is kept.
func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		h.log.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping current")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = *cfg
	h.mu.Unlock()

	if old.Capture.CountdownSeconds != cfg.Capture.CountdownSeconds {
		h.log.Info().
			Int("old", old.Capture.CountdownSeconds).
			Int("new", cfg.Capture.CountdownSeconds).
			Msg("countdown changed")
	}
	if old.Defaults.DebugLevel != cfg.Defaults.DebugLevel {
		debug.Init(cfg.Defaults.DebugLevel)
	}
	h.log.Info().Str("path", h.path).Msg("configuration reloaded")

	h.listenersMu.Lock()
	listeners := append(([]func(Config))(nil), h.listeners...)
	h.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(*cfg)
	}
	return nil
}

// Watch reloads the configuration on file changes until ctx ends. The
// directory is watched rather than the file so that editors replacing the
// file by rename are seen.
func (h *Holder) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(h.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch config directory %s: %w", dir, err)
	}
	h.log.Info().Str("path", h.path).Msg("watching config file")

	target := filepath.Clean(h.path)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debug.Trace("config: %s %s", ev.Op, ev.Name)
				timer.Reset(h.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			h.log.Error().Err(err).Msg("config watcher error")
		case <-timer.C:
			_ = h.Reload()
		}
	}
}

func (h *Holder) CountdownSeconds() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Capture.CountdownSeconds
}

func (h *Holder) HDR() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.hdr != nil {
		return *h.hdr
	}
	return h.current.Device.HDR
}

func (h *Holder) SetHDR(on bool) {
	h.mu.Lock()
	h.hdr = &on
	h.mu.Unlock()
}

func (h *Holder) Facing() camera.Facing {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.facing != nil {
		return *h.facing
	}
	return h.current.Facing()
}

func (h *Holder) SetFacing(f camera.Facing) {
	h.mu.Lock()
	h.facing = &f
	h.mu.Unlock()
}

func (h *Holder) PictureSize(f camera.Facing) geometry.Size {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.PictureSize(f)
}

// Rotation and NaturalPortrait make the display section usable as the
// coordinator's display collaborator.
func (h *Holder) Rotation() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Display.Rotation
}

func (h *Holder) NaturalPortrait() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Display.NaturalPortrait
}

// DeviceOrientation reports the configured device orientation.
func (h *Holder) DeviceOrientation() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Display.Orientation
}
