// Package countdown implements the self-timer that defers a capture.
//
// The ticking goroutine only posts events; the owner applies them on its own
// goroutine through Accept. Cancel bumps the generation, so anything already
// posted by a canceled run is rejected there.
package countdown

import (
	"sync"
	"time"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/metrics"
)

// Event is posted by a running countdown.
type Event interface {
	generation() uint64
}

// Tick reports the seconds left; it is posted once per second, starting at the
// full duration.
type Tick struct {
	Gen       uint64
	Remaining int
}

// Finished means the countdown reached zero and the capture should fire.
type Finished struct{ Gen uint64 }

func (t Tick) generation() uint64     { return t.Gen }
func (f Finished) generation() uint64 { return f.Gen }

// Cue is a sound played while counting down.
type Cue int

const (
	NoCue Cue = iota
	// IncrementCue plays at 3 and 2 seconds left.
	IncrementCue
	// FinalSecondCue plays at 1 second left.
	FinalSecondCue
)

// CueFor returns the sound for the given remaining seconds.
func CueFor(remaining int) Cue {
	switch remaining {
	case 3, 2:
		return IncrementCue
	case 1:
		return FinalSecondCue
	default:
		return NoCue
	}
}

// Countdown is owned by one goroutine; only the ticker runs elsewhere.
type Countdown struct {
	interval time.Duration
	post     func(Event)

	gen       uint64
	active    bool
	remaining int
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New creates an idle countdown. interval is the length of one "second"
// (tests shorten it). post must not block.
func New(interval time.Duration, post func(Event)) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{interval: interval, post: post}
}

// Active reports whether a countdown is running.
func (c *Countdown) Active() bool { return c.active }

// Remaining returns the last accepted remaining seconds.
func (c *Countdown) Remaining() int { return c.remaining }

// Start begins a countdown of seconds, replacing any running one. It returns
// false and does nothing when seconds <= 0.
func (c *Countdown) Start(seconds int) bool {
	if seconds <= 0 {
		return false
	}
	c.Cancel()

	c.gen++
	c.active = true
	c.remaining = seconds
	c.stop = make(chan struct{})
	debug.Live("countdown: start %ds (gen %d)", seconds, c.gen)

	gen, stop := c.gen, c.stop
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(gen, seconds, stop)
	}()
	return true
}

func (c *Countdown) run(gen uint64, seconds int, stop <-chan struct{}) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for remaining := seconds; remaining > 0; remaining-- {
		c.post(Tick{Gen: gen, Remaining: remaining})
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
	c.post(Finished{Gen: gen})
}

// Cancel stops a running countdown. It reports whether one was running.
func (c *Countdown) Cancel() bool {
	if !c.active {
		return false
	}
	c.active = false
	c.gen++
	close(c.stop)
	metrics.CountdownTotal.WithLabelValues("canceled").Inc()
	debug.Live("countdown: canceled")
	return true
}

// Accept validates an event from the ticker. Stale events (from a canceled or
// replaced run) return false. An accepted Finished ends the countdown.
func (c *Countdown) Accept(ev Event) bool {
	if !c.active || ev.generation() != c.gen {
		return false
	}
	switch e := ev.(type) {
	case Tick:
		c.remaining = e.Remaining
	case Finished:
		c.active = false
		c.remaining = 0
		metrics.CountdownTotal.WithLabelValues("finished").Inc()
	}
	return true
}

// Wait blocks until ticker goroutines have exited. Call it after Cancel.
func (c *Countdown) Wait() {
	c.wg.Wait()
}
