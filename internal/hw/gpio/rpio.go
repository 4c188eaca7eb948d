package gpio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/camctl/internal/debug"
)

// RPiDriver drives the Raspberry Pi header through go-rpio. Pins are
// configured on first use when SetupPin was not called.
type RPiDriver struct {
	log zerolog.Logger

	mu    sync.Mutex
	pins  map[int]rpio.Pin
	modes map[int]PinMode
}

// NewRPiRealDriver maps GPIO memory. It needs /dev/gpiomem or root.
func NewRPiRealDriver() (*RPiDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO memory: %w (is this a Raspberry Pi?)", err)
	}
	r := &RPiDriver{
		log:   debug.Component("gpio"),
		pins:  make(map[int]rpio.Pin),
		modes: make(map[int]PinMode),
	}
	r.log.Info().Msg("real GPIO driver ready (go-rpio)")
	return r, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode.String())
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.pinFor(pin, mode, true)
	return err
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level.String())
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.pinFor(pin, Output, false)
	if err != nil {
		return err
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.pinFor(pin, Input, false)
	if err != nil {
		return Low, err
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// Close releases every output line (HIGH is the trigger's idle level), floats
// all pins as inputs and unmaps GPIO memory.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nums := make([]int, 0, len(r.pins))
	for pin := range r.pins {
		nums = append(nums, pin)
	}
	sort.Ints(nums)
	for _, pin := range nums {
		p := r.pins[pin]
		if r.modes[pin] == Output {
			p.High()
		}
		p.Input()
		r.log.Debug().Int("pin", pin).Msg("pin released")
	}
	r.pins = make(map[int]rpio.Pin)
	r.modes = make(map[int]PinMode)
	return rpio.Close()
}

// pinFor returns the configured pin, setting it up in mode when it is new or
// when force is set. Callers hold r.mu.
func (r *RPiDriver) pinFor(pin int, mode PinMode, force bool) (rpio.Pin, error) {
	if p, ok := r.pins[pin]; ok && !force {
		return p, nil
	}
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return p, fmt.Errorf("pin %d: unknown mode %d", pin, mode)
	}
	r.pins[pin] = p
	r.modes[pin] = mode
	return p, nil
}
