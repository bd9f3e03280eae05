// Package heatpump simulates the heat pump device that hosts the blink LED.
//
// Requests arrive from MQTT handlers on arbitrary goroutines; the room
// temperature drifts toward the target on the run loop's tick. Setting a new
// target temperature feeds the blink controller, and switching the device on
// or off starts or stops blinking.
package heatpump

import (
	"log"
	"sync"
	"time"
)

// DriftInterval is the minimum time between one-degree room temperature steps.
const DriftInterval = 2 * time.Second

// Blinker is the part of the blink controller the device drives.
type Blinker interface {
	SetTemperature(v int)
	Start() error
	Stop() <-chan struct{}
}

// Info is the static device description returned by get_info.
type Info struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Icon string `json:"icon"`
}

// Power states.
const (
	StateOff uint8 = 0
	StateOn  uint8 = 1
)

// Snapshot is a point-in-time copy of the device state.
type Snapshot struct {
	Info              Info
	State             uint8
	Mode              uint32
	RoomTemperature   int32
	TargetTemperature int32
}

// On reports whether the device is switched on.
func (s Snapshot) On() bool {
	return s.State != StateOff
}

// Device holds the heat pump state behind a mutex.
type Device struct {
	blinker Blinker

	mu        sync.Mutex
	snap      Snapshot
	lastDrift time.Time

	// ledMu serialises Start and Stop on the blinker. stopping is the done
	// channel of the last Stop; the blinker is not started again until it
	// is closed.
	ledMu    sync.Mutex
	stopping <-chan struct{}
}

// NewDevice creates a switched-off device. now seeds the drift timer.
func NewDevice(info Info, blinker Blinker, now time.Time) *Device {
	return &Device{
		blinker:   blinker,
		snap:      Snapshot{Info: info},
		lastDrift: now,
	}
}

// Snapshot returns the current device state.
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

// Tick moves the room temperature one degree toward the target if more than
// DriftInterval has passed since the last step. It returns an event when the
// room temperature changed.
func (d *Device) Tick(now time.Time) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.lastDrift) <= DriftInterval {
		return nil
	}
	d.lastDrift = now

	switch {
	case d.snap.RoomTemperature < d.snap.TargetTemperature:
		d.snap.RoomTemperature++
	case d.snap.RoomTemperature > d.snap.TargetTemperature:
		d.snap.RoomTemperature--
	default:
		return nil
	}
	return &Event{Timestamp: now, Type: EventRoomTemperature, Device: d.snap}
}

// setState switches the device and the LED. The blinker is called without
// holding d.mu; ledMu is taken first so the stored state and the blinker
// calls stay in the same order.
func (d *Device) setState(state uint8) Snapshot {
	d.ledMu.Lock()
	defer d.ledMu.Unlock()

	d.mu.Lock()
	d.snap.State = state
	snap := d.snap
	d.mu.Unlock()

	if state == StateOff {
		d.stopping = d.blinker.Stop()
		return snap
	}

	if d.stopping != nil {
		select {
		case <-d.stopping:
			d.stopping = nil
		default:
			// The previous worker is still finishing its cycle; Start would
			// be a no-op now and leave the LED dark once it exits.
			go d.startAfter(d.stopping)
			return snap
		}
	}
	d.startBlinker()
	return snap
}

// startAfter waits for the worker behind done to exit, then starts blinking
// if the device is still on and no newer Stop has superseded done.
func (d *Device) startAfter(done <-chan struct{}) {
	<-done

	d.ledMu.Lock()
	defer d.ledMu.Unlock()
	if d.stopping != done {
		return
	}
	d.stopping = nil
	if d.Snapshot().On() {
		d.startBlinker()
	}
}

// startBlinker must be called with d.ledMu held.
func (d *Device) startBlinker() {
	if err := d.blinker.Start(); err != nil {
		log.Printf("heatpump: start blinking: %v", err)
	}
}

func (d *Device) setTargetTemperature(v int32) Snapshot {
	d.mu.Lock()
	d.snap.TargetTemperature = v
	snap := d.snap
	d.mu.Unlock()

	d.blinker.SetTemperature(int(v))
	return snap
}

func (d *Device) setMode(mode uint32) Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.Mode = mode
	return d.snap
}
