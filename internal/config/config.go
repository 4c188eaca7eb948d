package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// MaxConfigFileBytes bounds the config file size read by Load.
const MaxConfigFileBytes = 1 << 20

// Device types accepted in device.type.
const (
	DeviceSim  = "sim"
	DeviceGPIO = "gpio"
)

// SimConfig tunes the simulated camera stack.
type SimConfig struct {
	LatencyMs       int           `yaml:"latency_ms"`        // delay of every asynchronous callback
	FrameIntervalMs int           `yaml:"frame_interval_ms"` // preview frame period, 0 = no frame stream
	FocusFrames     int           `yaml:"focus_frames"`      // frames per autofocus scan
	Faults          camera.Faults `yaml:"faults"`
}

// GPIOConfig describes the wired remote trigger.
type GPIOConfig struct {
	FocusPin       int  `yaml:"focus_pin"`        // GPIO pin for FOCUS line
	ShutterPin     int  `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line
	FocusDelayMs   int  `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int  `yaml:"shutter_delay_ms"` // shutter hold time (ms)
	MockGPIO       bool `yaml:"mock_gpio"`        // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	// Note: GND is physically connected to Raspberry Pi ground
}

// DeviceConfig selects and tunes the capture device.
type DeviceConfig struct {
	Type          string        `yaml:"type"`   // "sim" or "gpio"
	Facing        string        `yaml:"facing"` // "back" or "front"
	HDR           bool          `yaml:"hdr"`
	BackPicture   geometry.Size `yaml:"back_picture"`
	FrontPicture  geometry.Size `yaml:"front_picture"`
	MaxZoom       float64       `yaml:"max_zoom"`
	LockTimeoutMs int           `yaml:"lock_timeout_ms"`
	Sim           SimConfig     `yaml:"sim"`
	GPIO          GPIOConfig    `yaml:"gpio"`
}

// DisplayConfig describes the preview surface.
type DisplayConfig struct {
	Width           int  `yaml:"width"`
	Height          int  `yaml:"height"`
	Rotation        int  `yaml:"rotation"`         // 0, 90, 180 or 270
	NaturalPortrait bool `yaml:"natural_portrait"` // device's natural orientation
	Orientation     int  `yaml:"orientation"`      // device orientation stamped on captures
}

// CaptureConfig holds self-timer and session storage settings.
type CaptureConfig struct {
	CountdownSeconds int    `yaml:"countdown_seconds"` // 0 = capture immediately
	CountdownTickMs  int    `yaml:"countdown_tick_ms"`
	SessionDir       string `yaml:"session_dir"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// WebConfig configures the remote control surface.
type WebConfig struct {
	Port int `yaml:"port"` // 0 = disabled unless -web is given
}

// Config aggregates all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Display  DisplayConfig  `yaml:"display"`
	Capture  CaptureConfig  `yaml:"capture"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Web      WebConfig      `yaml:"web"`
}

// ValidateConfigPath accepts only .yaml files directly inside a configs/
// directory, after cleaning the path.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q escapes its directory", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks ranges and fills in defaults.
func (c *Config) validate() error {
	switch c.Device.Type {
	case DeviceSim, DeviceGPIO:
	case "":
		return fmt.Errorf("device.type is required")
	default:
		return fmt.Errorf("unsupported device.type: %s", c.Device.Type)
	}
	if c.Device.Facing == "" {
		c.Device.Facing = camera.Back.String()
	}
	if _, err := camera.ParseFacing(c.Device.Facing); err != nil {
		return fmt.Errorf("device.facing: %w", err)
	}
	if s := c.Device.BackPicture; s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("device.back_picture must not be negative, got %s", s)
	}
	if s := c.Device.FrontPicture; s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("device.front_picture must not be negative, got %s", s)
	}
	if c.Device.MaxZoom == 0 {
		c.Device.MaxZoom = 1
	}
	if c.Device.MaxZoom < 1 || c.Device.MaxZoom > 100 {
		return fmt.Errorf("device.max_zoom must be between 1 and 100, got %.2f", c.Device.MaxZoom)
	}
	if c.Device.LockTimeoutMs <= 0 {
		c.Device.LockTimeoutMs = 2500 // bounded open wait
	}

	sim := &c.Device.Sim
	if sim.LatencyMs < 0 || sim.FrameIntervalMs < 0 {
		return fmt.Errorf("device.sim latencies must not be negative")
	}
	if sim.LatencyMs == 0 {
		sim.LatencyMs = 30
	}
	if sim.FrameIntervalMs == 0 {
		sim.FrameIntervalMs = 33 // ~30 fps
	}
	if sim.FocusFrames <= 0 {
		sim.FocusFrames = 5
	}

	g := &c.Device.GPIO
	if c.Device.Type == DeviceGPIO && (g.FocusPin <= 0 || g.ShutterPin <= 0) {
		return fmt.Errorf("device.gpio focus_pin and shutter_pin are required for gpio devices")
	}
	if g.FocusDelayMs <= 0 {
		g.FocusDelayMs = 500 // 500ms for autofocus
	}
	if g.ShutterDelayMs <= 0 {
		g.ShutterDelayMs = 200 // 200ms shutter hold
	}

	if c.Display.Width <= 0 {
		c.Display.Width = 1080
	}
	if c.Display.Height <= 0 {
		c.Display.Height = 1920
	}
	switch c.Display.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("display.rotation must be 0, 90, 180 or 270, got %d", c.Display.Rotation)
	}
	if c.Display.Orientation < 0 || c.Display.Orientation >= 360 {
		return fmt.Errorf("display.orientation must be in [0, 360), got %d", c.Display.Orientation)
	}

	if c.Capture.CountdownSeconds < 0 || c.Capture.CountdownSeconds > 60 {
		return fmt.Errorf("capture.countdown_seconds must be between 0 and 60, got %d", c.Capture.CountdownSeconds)
	}
	if c.Capture.CountdownTickMs <= 0 {
		c.Capture.CountdownTickMs = 1000
	}
	if c.Capture.SessionDir == "" {
		c.Capture.SessionDir = "sessions"
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port must be 0-65535, got %d", c.Web.Port)
	}
	return nil
}

// Facing returns the configured camera facing (back when unset).
func (c *Config) Facing() camera.Facing {
	f, err := camera.ParseFacing(c.Device.Facing)
	if err != nil {
		return camera.Back
	}
	return f
}

// PictureSize returns the requested picture size for a facing; zero means
// the device default.
func (c *Config) PictureSize(f camera.Facing) geometry.Size {
	if f == camera.Front {
		return c.Device.FrontPicture
	}
	return c.Device.BackPicture
}

// LockTimeout returns the bound on the device lock wait when opening.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Device.LockTimeoutMs) * time.Millisecond
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Device.GPIO.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Device.GPIO.ShutterDelayMs) * time.Millisecond
}

// CountdownTick returns the length of one countdown second.
func (c *Config) CountdownTick() time.Duration {
	return time.Duration(c.Capture.CountdownTickMs) * time.Millisecond
}

// SimLatency returns the simulated callback latency.
func (c *Config) SimLatency() time.Duration {
	return time.Duration(c.Device.Sim.LatencyMs) * time.Millisecond
}

// SimFrameInterval returns the simulated preview frame period.
func (c *Config) SimFrameInterval() time.Duration {
	return time.Duration(c.Device.Sim.FrameIntervalMs) * time.Millisecond
}
