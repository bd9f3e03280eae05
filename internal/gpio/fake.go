package gpio

import "sync"

// Transition is a single recorded pin write.
type Transition struct {
	Pin  int
	High bool
}

// FakeWriter is a test double that records pin writes.
// Safe for concurrent use: the blink worker writes from its own goroutine
// while tests inspect the recording.
type FakeWriter struct {
	mu sync.Mutex

	configured  map[int]bool
	transitions []Transition
	closed      bool

	// ConfigureError, if set, is returned by Configure.
	ConfigureError error

	// SetError, if set, is returned by Set (the write is still recorded).
	SetError error
}

// NewFakeWriter creates an empty FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{configured: make(map[int]bool)}
}

// Configure records the pin as configured.
func (f *FakeWriter) Configure(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.configured[pin] = true
	return nil
}

// Set records the write.
func (f *FakeWriter) Set(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, Transition{Pin: pin, High: high})
	return f.SetError
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Configured reports whether Configure succeeded for pin.
func (f *FakeWriter) Configured(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured[pin]
}

// Transitions returns a copy of all recorded writes, oldest first.
func (f *FakeWriter) Transitions() []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Transition, len(f.transitions))
	copy(out, f.transitions)
	return out
}

// Last returns the most recent write and whether there was one.
func (f *FakeWriter) Last() (Transition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transitions) == 0 {
		return Transition{}, false
	}
	return f.transitions[len(f.transitions)-1], true
}

// Closed reports whether Close was called.
func (f *FakeWriter) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded state and injected errors.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = make(map[int]bool)
	f.transitions = nil
	f.closed = false
	f.ConfigureError = nil
	f.SetError = nil
}
