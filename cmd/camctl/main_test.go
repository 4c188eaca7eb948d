package main

import (
	"testing"

	"github.com/cjeanneret/camctl/internal/config"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/web"
)

// ---------- validateCLIOverrides ----------

func TestValidateCLIOverrides_Unset(t *testing.T) {
	if err := validateCLIOverrides(overrides{Countdown: -1}); err != nil {
		t.Errorf("unset overrides should be valid (use config), got: %v", err)
	}
}

func TestValidateCLIOverrides_Valid(t *testing.T) {
	cases := []struct {
		name string
		ov   overrides
	}{
		{"sim", overrides{Device: "sim", Countdown: -1}},
		{"gpio", overrides{Device: "gpio", Countdown: -1}},
		{"front", overrides{Facing: "front", Countdown: -1}},
		{"back upper case", overrides{Facing: "BACK", Countdown: -1}},
		{"countdown zero", overrides{Countdown: 0}},
		{"countdown max", overrides{Countdown: 60}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.ov); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateCLIOverrides_Invalid(t *testing.T) {
	cases := []struct {
		name string
		ov   overrides
	}{
		{"unknown device", overrides{Device: "usb", Countdown: -1}},
		{"unknown facing", overrides{Facing: "side", Countdown: -1}},
		{"countdown too large", overrides{Countdown: 61}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.ov); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- applyOverrides ----------

func newTestConfig() *config.Config {
	return &config.Config{
		Device: config.DeviceConfig{
			Type:    config.DeviceSim,
			Facing:  "back",
			MaxZoom: 4,
			Sim:     config.SimConfig{LatencyMs: 1, FrameIntervalMs: 5, FocusFrames: 2},
			GPIO: config.GPIOConfig{
				FocusPin: 17, ShutterPin: 27,
				FocusDelayMs: 1, ShutterDelayMs: 1,
				MockGPIO: true,
			},
		},
		Display: config.DisplayConfig{Width: 1080, Height: 1920},
		Capture: config.CaptureConfig{CountdownSeconds: 3, CountdownTickMs: 1000, SessionDir: "sessions"},
	}
}

func TestApplyOverrides_Set(t *testing.T) {
	cfg := newTestConfig()
	applyOverrides(cfg, overrides{Device: "gpio", Facing: "front", Countdown: 10})

	if cfg.Device.Type != "gpio" {
		t.Errorf("Device.Type = %q, want gpio", cfg.Device.Type)
	}
	if cfg.Device.Facing != "front" {
		t.Errorf("Device.Facing = %q, want front", cfg.Device.Facing)
	}
	if cfg.Capture.CountdownSeconds != 10 {
		t.Errorf("CountdownSeconds = %d, want 10", cfg.Capture.CountdownSeconds)
	}
}

func TestApplyOverrides_UnsetLeavesUnchanged(t *testing.T) {
	cfg := newTestConfig()
	applyOverrides(cfg, overrides{Countdown: -1})

	if cfg.Device.Type != config.DeviceSim {
		t.Errorf("Device.Type changed to %q", cfg.Device.Type)
	}
	if cfg.Device.Facing != "back" {
		t.Errorf("Device.Facing changed to %q", cfg.Device.Facing)
	}
	if cfg.Capture.CountdownSeconds != 3 {
		t.Errorf("CountdownSeconds changed to %d", cfg.Capture.CountdownSeconds)
	}
}

func TestApplyOverrides_ZeroCountdownDisablesTimer(t *testing.T) {
	cfg := newTestConfig()
	applyOverrides(cfg, overrides{Countdown: 0})
	if cfg.Capture.CountdownSeconds != 0 {
		t.Errorf("CountdownSeconds = %d, want 0", cfg.Capture.CountdownSeconds)
	}
}

// ---------- newManagerFromConfig ----------

func TestNewManagerFromConfig_Sim(t *testing.T) {
	mgr, closeFn, err := newManagerFromConfig(newTestConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if _, ok := mgr.(*camera.SimManager); !ok {
		t.Errorf("manager = %T, want *camera.SimManager", mgr)
	}
	if _, err := mgr.Characteristics(camera.Front); err != nil {
		t.Errorf("sim front camera unavailable: %v", err)
	}
}

func TestNewManagerFromConfig_MockGPIO(t *testing.T) {
	cfg := newTestConfig()
	cfg.Device.Type = config.DeviceGPIO

	mgr, closeFn, err := newManagerFromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if _, ok := mgr.(*camera.GPIOManager); !ok {
		t.Errorf("manager = %T, want *camera.GPIOManager", mgr)
	}
	if _, err := mgr.Characteristics(camera.Front); err == nil {
		t.Error("remote trigger has no front camera, expected error")
	}
}

func TestNewManagerFromConfig_GPIOWithoutPins(t *testing.T) {
	cfg := newTestConfig()
	cfg.Device.Type = config.DeviceGPIO
	cfg.Device.GPIO.ShutterPin = 0

	if _, _, err := newManagerFromConfig(cfg); err == nil {
		t.Error("expected error for missing shutter pin")
	}
}

func TestNewManagerFromConfig_Unsupported(t *testing.T) {
	cfg := newTestConfig()
	cfg.Device.Type = "usb"
	if _, _, err := newManagerFromConfig(cfg); err == nil {
		t.Error("expected error for unsupported device type")
	}
}

// ---------- coordinatorOptions ----------

func TestCoordinatorOptions_WithoutWeb(t *testing.T) {
	cfg := newTestConfig()
	holder := config.NewHolder("configs/default.yaml", cfg)
	opts := coordinatorOptions(cfg, holder, camera.NewSimManager(camera.SimConfig{}), nil, nil)

	if opts.Settings == nil || opts.Display == nil || opts.Orientation == nil {
		t.Error("config holder should back settings, display and orientation")
	}
	if opts.Preview != nil || opts.Sessions != nil {
		t.Error("listeners should stay unset without a web surface")
	}
	if opts.CountdownInterval != cfg.CountdownTick() {
		t.Errorf("CountdownInterval = %v, want %v", opts.CountdownInterval, cfg.CountdownTick())
	}
	if opts.Fatal == nil {
		t.Error("Fatal handler should be set")
	}
}

func TestCoordinatorOptions_WithWeb(t *testing.T) {
	cfg := newTestConfig()
	holder := config.NewHolder("configs/default.yaml", cfg)
	opts := coordinatorOptions(cfg, holder, camera.NewSimManager(camera.SimConfig{}), nil, web.NewStatusBroadcaster())

	for name, l := range map[string]any{
		"preview":   opts.Preview,
		"ready":     opts.Ready,
		"focus":     opts.Focus,
		"errors":    opts.Errors,
		"countdown": opts.Countdown,
		"sessions":  opts.Sessions,
	} {
		if _, ok := l.(*web.Notifier); !ok {
			t.Errorf("%s listener = %T, want *web.Notifier", name, l)
		}
	}
}
