// Package blink drives an LED at a rate derived from a live temperature reading.
//
// A Controller owns one output pin and at most one background worker. The
// worker drives the pin HIGH, idles, drives it LOW, idles, and repeats, with
// the idle time recomputed from the current temperature on every cycle.
// Temperature updates may arrive from any goroutine while the worker runs.
//
// Call order: Setup, ConfigureRange, then SetTemperature as readings arrive.
// Start and Stop may be called at any time after Setup. Stop only requests
// termination; the worker exits at the end of its current cycle, which the
// returned channel (or Running) reports.
package blink

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/heatpump-blink/internal/gpio"
)

var (
	// ErrNotInitialized is returned by operations called before Setup.
	ErrNotInitialized = errors.New("blink: controller not set up")

	// ErrDegenerateRange is returned by ConfigureRange when TempMin == TempMax.
	ErrDegenerateRange = errors.New("blink: temperature range has zero width")
)

// Stats is a point-in-time view of the controller.
type Stats struct {
	Running     bool
	Pin         int
	Temperature int
	Delay       time.Duration
	Cycles      uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithSleep replaces the idle primitive used between pin writes.
// It must block for roughly d and must not be interrupted.
func WithSleep(sleep func(d time.Duration)) Option {
	return func(c *Controller) {
		c.sleep = sleep
	}
}

// Controller is the blink state machine. Create one with New.
type Controller struct {
	out   gpio.Writer
	sleep func(time.Duration)

	// mu guards temperature and rng. rng is read when clamping a new
	// temperature, so both live under the same lock.
	mu          sync.Mutex
	temperature int
	rng         Range

	// pin is written by SetPin and read by the worker once per half-cycle
	// with no further coordination.
	pin atomic.Int64

	initialized   atomic.Bool
	running       atomic.Bool
	stopRequested atomic.Bool
	cycles        atomic.Uint64

	// startMu serialises Start, Stop and worker exit so the done channel
	// handed out by Stop always belongs to the current worker.
	startMu sync.Mutex
	done    chan struct{}
}

// New creates a Controller writing to out. The controller does nothing until
// Setup is called.
func New(out gpio.Writer, opts ...Option) *Controller {
	c := &Controller{
		out:   out,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Setup configures pin as a digital output and marks the controller ready.
// A failed pin configuration leaves the controller uninitialized.
func (c *Controller) Setup(pin int) error {
	if err := c.out.Configure(pin); err != nil {
		return err
	}
	c.pin.Store(int64(pin))
	c.stopRequested.Store(false)
	c.initialized.Store(true)
	return nil
}

// ConfigureRange stores the bounds used by the delay formula. The ordering of
// DelayMin and DelayMax is not checked. A zero-width temperature range is
// rejected and the previous range is kept. The stored temperature is clamped
// into the new range.
func (c *Controller) ConfigureRange(r Range) error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	if r.TempMin == r.TempMax {
		return ErrDegenerateRange
	}

	c.mu.Lock()
	c.rng = r
	c.temperature = r.Clamp(c.temperature)
	c.mu.Unlock()
	return nil
}

// Range returns the configured bounds.
func (c *Controller) Range() Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng
}

// SetPin moves blinking to a different output pin. A running worker picks up
// the new pin on its next write; the old pin keeps whatever level it had.
func (c *Controller) SetPin(pin int) error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	if err := c.out.Configure(pin); err != nil {
		return err
	}
	c.pin.Store(int64(pin))
	return nil
}

// Pin returns the active output pin.
func (c *Controller) Pin() int {
	return int(c.pin.Load())
}

// SetTemperature clamps v into the configured temperature range and stores it.
// Out-of-range values are not an error. Ignored before Setup.
func (c *Controller) SetTemperature(v int) {
	if !c.initialized.Load() {
		return
	}
	c.mu.Lock()
	c.temperature = c.rng.Clamp(v)
	c.mu.Unlock()
}

// Temperature returns the stored (clamped) temperature.
func (c *Controller) Temperature() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.temperature
}

// Delay returns the half-period the worker would use right now.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	temp, rng := c.temperature, c.rng
	c.mu.Unlock()
	return millis(CalculateDelay(temp, rng))
}

// Start launches the worker and returns without waiting for its first cycle.
// It returns ErrNotInitialized before Setup and is a no-op while a worker is
// already running.
func (c *Controller) Start() error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	if !c.running.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan struct{})
	c.done = done
	go c.run(done)
	return nil
}

// Stop asks the worker to exit after its current cycle and returns a channel
// that is closed once it has. It never blocks. When no worker is running the
// returned channel is already closed.
func (c *Controller) Stop() <-chan struct{} {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if !c.running.Load() {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	c.stopRequested.Store(true)
	return c.done
}

// Running reports whether a worker is active.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Stats returns a snapshot for status reporting.
func (c *Controller) Stats() Stats {
	return Stats{
		Running:     c.Running(),
		Pin:         c.Pin(),
		Temperature: c.Temperature(),
		Delay:       c.Delay(),
		Cycles:      c.cycles.Load(),
	}
}

func (c *Controller) run(done chan struct{}) {
	log.Printf("blink: worker started on pin %d", c.Pin())

	for !c.stopRequested.Load() {
		d := c.Delay()
		c.write(true)
		c.sleep(d)
		c.write(false)
		c.sleep(d)
		c.cycles.Add(1)
	}

	// Held so a concurrent Stop cannot set a request after it has been
	// cleared here, which would leak into the next Start.
	c.startMu.Lock()
	c.stopRequested.Store(false)
	c.running.Store(false)
	close(done)
	c.startMu.Unlock()
	log.Printf("blink: worker stopped")
}

func (c *Controller) write(high bool) {
	pin := c.Pin()
	if err := c.out.Set(pin, high); err != nil {
		log.Printf("blink: set pin %d: %v", pin, err)
	}
}
