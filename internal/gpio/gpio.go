// Package gpio provides digital output control with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Writer drives digital output lines.
type Writer interface {
	// Configure requests the pin as a digital output, initially LOW.
	// Configuring an already configured pin is a no-op.
	Configure(pin int) error

	// Set drives the pin HIGH (true) or LOW (false).
	Set(pin int, high bool) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// DefaultPinLED is the BCM pin of the status LED.
const DefaultPinLED = 17
