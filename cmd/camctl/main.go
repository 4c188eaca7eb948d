package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/camctl/internal/config"
	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/hw/gpio"
	"github.com/cjeanneret/camctl/internal/logic/countdown"
	"github.com/cjeanneret/camctl/internal/logic/coordinator"
	"github.com/cjeanneret/camctl/internal/store"
	"github.com/cjeanneret/camctl/internal/web"
)

// overrides are CLI values applied on top of the config file.
type overrides struct {
	Device    string
	Facing    string
	Countdown int // negative = use config
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	deviceType := flag.String("device", "", "override device type (sim or gpio)")
	facing := flag.String("facing", "", "override initial camera facing (back or front)")
	countdownSec := flag.Int("countdown", -1, "override self-timer seconds (0-60)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	ov := overrides{Device: *deviceType, Facing: *facing, Countdown: *countdownSec}
	if err := validateCLIOverrides(ov); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, ov)

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Device type", cfg.Device.Type)
	debug.PrintStruct("Display", cfg.Display)

	mgr, closeMgr, err := newManagerFromConfig(cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	defer closeMgr()

	sessions, err := store.NewFileStore(cfg.Capture.SessionDir)
	if err != nil {
		log.Fatalf("init session store failed: %v", err)
	}
	debug.Value("Session dir", sessions.Root())

	holder := config.NewHolder(*cfgPath, cfg)

	port := webPort.port()
	if port == 0 {
		port = cfg.Web.Port
	}
	var broadcaster *web.StatusBroadcaster
	if port > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	coord := coordinator.New(coordinatorOptions(cfg, holder, mgr, sessions, broadcaster))
	holder.OnReload(func(config.Config) { coord.DisplayChanged() })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return holder.Watch(gctx) })
	if broadcaster != nil {
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, coord)
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	debug.Section("Starting preview")
	coord.Resume()
	coord.SurfaceAvailable(camera.Surface{Name: "preview"}, cfg.Display.Width, cfg.Display.Height)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("camctl: %v", err)
	}
	debug.Section("Shutdown complete")
}

// coordinatorOptions wires the config holder and the optional web surface
// into the coordinator.
func coordinatorOptions(
	cfg *config.Config,
	holder *config.Holder,
	mgr camera.Manager,
	sessions *store.FileStore,
	broadcaster *web.StatusBroadcaster,
) coordinator.Options {
	opts := coordinator.Options{
		Manager:           mgr,
		Store:             sessions,
		Settings:          holder,
		Display:           holder,
		Orientation:       holder,
		Sounds:            logSounds{},
		LockTimeout:       cfg.LockTimeout(),
		CountdownInterval: cfg.CountdownTick(),
		Fatal: func(err error) {
			debug.Error(err)
			log.Fatalf("camera lock: %v", err)
		},
	}
	if broadcaster != nil {
		n := web.NewNotifier(broadcaster)
		opts.Preview = n
		opts.Ready = n
		opts.Focus = n
		opts.Errors = n
		opts.Countdown = n
		opts.Sessions = n
	}
	return opts
}

// logSounds stands in for a speaker: countdown cues go to the log.
type logSounds struct{}

func (logSounds) Load()   { debug.Verbose("sounds: loaded") }
func (logSounds) Unload() { debug.Verbose("sounds: unloaded") }

func (logSounds) Play(cue countdown.Cue) {
	switch cue {
	case countdown.IncrementCue:
		debug.Live("beep")
	case countdown.FinalSecondCue:
		debug.Live("BEEP")
	}
}

// validateCLIOverrides checks that set CLI overrides are within valid ranges.
// Empty strings and negative countdowns are ignored (they mean "use config").
func validateCLIOverrides(ov overrides) error {
	switch ov.Device {
	case "", config.DeviceSim, config.DeviceGPIO:
	default:
		return fmt.Errorf("device must be %s or %s, got %q", config.DeviceSim, config.DeviceGPIO, ov.Device)
	}
	if ov.Facing != "" {
		if _, err := camera.ParseFacing(ov.Facing); err != nil {
			return err
		}
	}
	if ov.Countdown > 60 {
		return fmt.Errorf("countdown must be between 0 and 60, got %d", ov.Countdown)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only set override values are applied.
func applyOverrides(cfg *config.Config, ov overrides) {
	if ov.Device != "" {
		cfg.Device.Type = ov.Device
	}
	if ov.Facing != "" {
		cfg.Device.Facing = ov.Facing
	}
	if ov.Countdown >= 0 {
		cfg.Capture.CountdownSeconds = ov.Countdown
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// managedCamera is a camera.Manager whose pending callbacks can be awaited.
type managedCamera interface {
	camera.Manager
	Wait()
}

// newManagerFromConfig selects a camera implementation based on configuration.
// The returned func waits for device goroutines and releases the GPIO driver.
func newManagerFromConfig(cfg *config.Config) (managedCamera, func(), error) {
	switch cfg.Device.Type {
	case config.DeviceSim:
		sim := cfg.Device.Sim
		m := camera.NewSimManager(camera.SimConfig{
			Latency:       cfg.SimLatency(),
			FrameInterval: cfg.SimFrameInterval(),
			FocusFrames:   sim.FocusFrames,
			MaxZoom:       cfg.Device.MaxZoom,
			Faults:        sim.Faults,
		})
		debug.PrintStruct("Simulated camera", sim)
		return m, m.Wait, nil

	case config.DeviceGPIO:
		gc := cfg.Device.GPIO
		if gc.FocusPin <= 0 || gc.ShutterPin <= 0 {
			return nil, nil, errors.New("gpio device requires device.gpio.focus_pin and device.gpio.shutter_pin")
		}
		debug.Value("Mock GPIO", gc.MockGPIO)
		driver, err := gpio.NewDriver(gc.MockGPIO)
		if err != nil {
			return nil, nil, fmt.Errorf("init GPIO: %w", err)
		}
		trigger, err := camera.NewRemoteTrigger(driver, gc.FocusPin, gc.ShutterPin, cfg.FocusDelay(), cfg.ShutterDelay())
		if err != nil {
			driver.Close()
			return nil, nil, fmt.Errorf("init remote trigger: %w", err)
		}
		debug.Value("Focus pin", gc.FocusPin)
		debug.Value("Shutter pin", gc.ShutterPin)
		preview := camera.PickPreviewSize(cfg.PictureSize(camera.Back), camera.DefaultPreviewSizes)
		m := camera.NewGPIOManager(trigger, preview)
		closeFn := func() {
			m.Wait()
			if err := driver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}
		return m, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unsupported device type: %s", cfg.Device.Type)
	}
}
