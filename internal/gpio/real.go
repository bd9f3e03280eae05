//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives GPIO on actual hardware using the Linux GPIO character device.
type RealWriter struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// NewRealWriter opens the named GPIO chip (e.g. "gpiochip0").
func NewRealWriter(chipName string) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealWriter{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// Configure requests the pin as an output driven LOW.
func (w *RealWriter) Configure(pin int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.line(pin)
	return err
}

// line returns the requested line for pin, requesting it if needed.
// Caller must hold w.mu.
func (w *RealWriter) line(pin int) (*gpiocdev.Line, error) {
	if l, ok := w.lines[pin]; ok {
		return l, nil
	}
	l, err := w.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	w.lines[pin] = l
	return l, nil
}

// Set drives the pin HIGH or LOW, requesting it first if it was never configured.
func (w *RealWriter) Set(pin int, high bool) error {
	w.mu.Lock()
	l, err := w.line(pin)
	w.mu.Unlock()
	if err != nil {
		return err
	}

	v := 0
	if high {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// Close releases GPIO resources.
// Lines are returned to input with pull-down (matching Pi boot defaults) before
// closing so the LED is not left lit across a reboot.
func (w *RealWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for pin, l := range w.lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
		delete(w.lines, pin)
	}
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
