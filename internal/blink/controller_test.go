package blink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/heatpump-blink/internal/gpio"
)

// stepSleeper hands each idle call to the test and blocks the worker until
// the test releases it, so the blink cycle can be walked one write at a time.
type stepSleeper struct {
	calls   chan time.Duration
	release chan struct{}
}

func newStepSleeper() *stepSleeper {
	return &stepSleeper{
		calls:   make(chan time.Duration),
		release: make(chan struct{}),
	}
}

func (s *stepSleeper) sleep(d time.Duration) {
	s.calls <- d
	<-s.release
}

// next waits for the worker to enter its next idle and returns the duration.
func (s *stepSleeper) next(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-s.calls:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not reach its next idle")
		return 0
	}
}

func (s *stepSleeper) step() {
	s.release <- struct{}{}
}

// assertNoIdle checks that no worker is waiting to idle.
func (s *stepSleeper) assertNoIdle(t *testing.T) {
	t.Helper()
	select {
	case d := <-s.calls:
		t.Fatalf("unexpected idle call for %v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func newReadyController(t *testing.T, out *gpio.FakeWriter, opts ...Option) *Controller {
	t.Helper()
	c := New(out, opts...)
	require.NoError(t, c.Setup(17))
	require.NoError(t, c.ConfigureRange(heatRange))
	return c
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestSetupConfiguresPin(t *testing.T) {
	out := gpio.NewFakeWriter()
	c := New(out)

	require.NoError(t, c.Setup(17))
	assert.True(t, out.Configured(17))
	assert.Equal(t, 17, c.Pin())
	assert.False(t, c.Running())
}

func TestSetupFailureLeavesControllerUninitialized(t *testing.T) {
	out := gpio.NewFakeWriter()
	out.ConfigureError = errors.New("line busy")
	c := New(out)

	require.Error(t, c.Setup(17))
	assert.ErrorIs(t, c.Start(), ErrNotInitialized)
}

func TestOperationsBeforeSetup(t *testing.T) {
	out := gpio.NewFakeWriter()
	c := New(out)

	assert.ErrorIs(t, c.Start(), ErrNotInitialized)
	assert.ErrorIs(t, c.ConfigureRange(heatRange), ErrNotInitialized)
	assert.ErrorIs(t, c.SetPin(4), ErrNotInitialized)

	c.SetTemperature(25)
	assert.Equal(t, 0, c.Temperature(), "SetTemperature before Setup should be ignored")
	assert.False(t, c.Running())

	select {
	case <-c.Stop():
	default:
		t.Error("Stop before Setup should return a closed channel")
	}
	assert.Empty(t, out.Transitions())
}

func TestConfigureRangeRejectsZeroWidth(t *testing.T) {
	c := newReadyController(t, gpio.NewFakeWriter())

	err := c.ConfigureRange(Range{DelayMin: 10, DelayMax: 20, TempMin: 5, TempMax: 5})
	assert.ErrorIs(t, err, ErrDegenerateRange)
	assert.Equal(t, heatRange, c.Range(), "rejected range should not replace the old one")
}

func TestConfigureRangeAcceptsReversedDelays(t *testing.T) {
	c := newReadyController(t, gpio.NewFakeWriter())

	r := Range{DelayMin: 500, DelayMax: 50, TempMin: 0, TempMax: 40}
	require.NoError(t, c.ConfigureRange(r))
	c.SetTemperature(40)
	assert.Equal(t, 500*time.Millisecond, c.Delay())
}

func TestConfigureRangeReclampsTemperature(t *testing.T) {
	c := newReadyController(t, gpio.NewFakeWriter())
	c.SetTemperature(35)

	require.NoError(t, c.ConfigureRange(Range{DelayMin: 50, DelayMax: 500, TempMin: 0, TempMax: 30}))
	assert.Equal(t, 30, c.Temperature())
}

func TestSetTemperatureClamps(t *testing.T) {
	c := newReadyController(t, gpio.NewFakeWriter())

	for _, tt := range []struct{ in, want int }{
		{100, 40}, {41, 40}, {-1, 0}, {-273, 0}, {0, 0}, {40, 40}, {21, 21},
	} {
		c.SetTemperature(tt.in)
		assert.Equal(t, tt.want, c.Temperature(), "SetTemperature(%d)", tt.in)
	}
}

func TestDelayScenarios(t *testing.T) {
	c := newReadyController(t, gpio.NewFakeWriter())

	c.SetTemperature(20)
	assert.Equal(t, 275*time.Millisecond, c.Delay())

	c.SetTemperature(40)
	assert.Equal(t, 50*time.Millisecond, c.Delay())

	c.SetTemperature(0)
	assert.Equal(t, 500*time.Millisecond, c.Delay())

	c.SetTemperature(100)
	assert.Equal(t, 40, c.Temperature())
	assert.Equal(t, 50*time.Millisecond, c.Delay())
}

func TestWorkerBlinkCycle(t *testing.T) {
	out := gpio.NewFakeWriter()
	sl := newStepSleeper()
	c := newReadyController(t, out, WithSleep(sl.sleep))
	c.SetTemperature(20)

	require.NoError(t, c.Start())
	assert.True(t, c.Running())

	// On phase.
	assert.Equal(t, 275*time.Millisecond, sl.next(t))
	last, _ := out.Last()
	assert.Equal(t, gpio.Transition{Pin: 17, High: true}, last)

	// Off phase.
	sl.step()
	assert.Equal(t, 275*time.Millisecond, sl.next(t))
	last, _ = out.Last()
	assert.Equal(t, gpio.Transition{Pin: 17, High: false}, last)

	// A new reading lands mid-cycle and is used from the next cycle on.
	c.SetTemperature(40)
	sl.step()
	assert.Equal(t, 50*time.Millisecond, sl.next(t))
	assert.Equal(t, uint64(1), c.Stats().Cycles)

	done := c.Stop()
	sl.step()
	sl.next(t)
	sl.step()
	waitDone(t, done)

	assert.False(t, c.Running())
	assert.Equal(t, []gpio.Transition{
		{Pin: 17, High: true}, {Pin: 17, High: false},
		{Pin: 17, High: true}, {Pin: 17, High: false},
	}, out.Transitions())
}

func TestStopFinishesCurrentCycle(t *testing.T) {
	out := gpio.NewFakeWriter()
	sl := newStepSleeper()
	c := newReadyController(t, out, WithSleep(sl.sleep))

	require.NoError(t, c.Start())
	sl.next(t)

	done := c.Stop()
	assert.True(t, c.Running(), "Stop must not interrupt an idle in progress")
	select {
	case <-done:
		t.Fatal("done closed before the cycle finished")
	default:
	}

	sl.step()
	sl.next(t)
	assert.True(t, c.Running())
	sl.step()

	waitDone(t, done)
	assert.False(t, c.Running())
	sl.assertNoIdle(t)

	last, _ := out.Last()
	assert.False(t, last.High, "LED should be left off after stopping")
}

func TestStopWithinTwoDelayPeriods(t *testing.T) {
	c := newReadyController(t, gpio.NewFakeWriter())
	require.NoError(t, c.ConfigureRange(Range{DelayMin: 1, DelayMax: 5, TempMin: 0, TempMax: 40}))
	c.SetTemperature(0)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return c.Stats().Cycles > 0 }, time.Second, time.Millisecond)

	start := time.Now()
	c.Stop()
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, time.Millisecond)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestStartTwiceRunsOneWorker(t *testing.T) {
	out := gpio.NewFakeWriter()
	sl := newStepSleeper()
	c := newReadyController(t, out, WithSleep(sl.sleep))

	require.NoError(t, c.Start())
	require.NoError(t, c.Start())
	sl.next(t)
	sl.assertNoIdle(t)
	assert.Len(t, out.Transitions(), 1)

	done := c.Stop()
	sl.step()
	sl.next(t)
	sl.step()
	waitDone(t, done)
}

func TestConcurrentStartRunsOneWorker(t *testing.T) {
	sl := newStepSleeper()
	c := newReadyController(t, gpio.NewFakeWriter(), WithSleep(sl.sleep))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Start())
		}()
	}
	wg.Wait()

	sl.next(t)
	sl.assertNoIdle(t)

	done := c.Stop()
	sl.step()
	sl.next(t)
	sl.step()
	waitDone(t, done)
}

func TestStopImmediatelyAfterStart(t *testing.T) {
	sl := newStepSleeper()
	c := newReadyController(t, gpio.NewFakeWriter(), WithSleep(sl.sleep))

	require.NoError(t, c.Start())
	done := c.Stop()

	// The worker either exits before its first cycle or finishes exactly one.
	select {
	case <-done:
	case <-sl.calls:
		sl.step()
		sl.next(t)
		sl.step()
		waitDone(t, done)
	case <-time.After(2 * time.Second):
		t.Fatal("worker neither stopped nor started")
	}
	assert.False(t, c.Running())
}

func TestStopWhenIdleReturnsClosedChannel(t *testing.T) {
	c := newReadyController(t, gpio.NewFakeWriter())

	select {
	case <-c.Stop():
	default:
		t.Error("expected closed channel when not running")
	}
	assert.False(t, c.Running())
}

func TestRestartAfterStop(t *testing.T) {
	out := gpio.NewFakeWriter()
	sl := newStepSleeper()
	c := newReadyController(t, out, WithSleep(sl.sleep))

	for round := 0; round < 3; round++ {
		require.NoError(t, c.Start())
		sl.next(t)
		done := c.Stop()
		sl.step()
		sl.next(t)
		sl.step()
		waitDone(t, done)
		require.False(t, c.Running(), "round %d", round)
	}
	assert.Len(t, out.Transitions(), 6)
	assert.Equal(t, uint64(3), c.Stats().Cycles)
}

func TestSetPinWhileRunning(t *testing.T) {
	out := gpio.NewFakeWriter()
	sl := newStepSleeper()
	c := newReadyController(t, out, WithSleep(sl.sleep))

	require.NoError(t, c.Start())
	sl.next(t)

	require.NoError(t, c.SetPin(22))
	assert.True(t, out.Configured(22))
	assert.Equal(t, 22, c.Pin())

	sl.step()
	sl.next(t)
	last, _ := out.Last()
	assert.Equal(t, gpio.Transition{Pin: 22, High: false}, last)

	done := c.Stop()
	sl.step()
	waitDone(t, done)
}

func TestWriteErrorsDoNotStopWorker(t *testing.T) {
	out := gpio.NewFakeWriter()
	sl := newStepSleeper()
	c := newReadyController(t, out, WithSleep(sl.sleep))
	out.SetError = errors.New("line gone")

	require.NoError(t, c.Start())
	sl.next(t)
	sl.step()
	sl.next(t)
	sl.step()
	sl.next(t)
	assert.True(t, c.Running())
	assert.Equal(t, uint64(1), c.Stats().Cycles)

	done := c.Stop()
	sl.step()
	sl.next(t)
	sl.step()
	waitDone(t, done)
}

func TestConcurrentSetTemperature(t *testing.T) {
	c := newReadyController(t, gpio.NewFakeWriter())
	require.NoError(t, c.ConfigureRange(Range{DelayMin: 1, DelayMax: 2, TempMin: 0, TempMax: 40}))
	require.NoError(t, c.Start())

	written := []int{3, 11, 19, 27, 35}
	var wg sync.WaitGroup
	for _, v := range written {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.SetTemperature(v)
				got := c.Temperature()
				assert.Contains(t, written, got)
			}
		}(v)
	}
	wg.Wait()

	assert.Contains(t, written, c.Temperature())
	waitDone(t, c.Stop())
}

func TestStatsSnapshot(t *testing.T) {
	c := newReadyController(t, gpio.NewFakeWriter())
	c.SetTemperature(20)

	s := c.Stats()
	assert.Equal(t, Stats{
		Running:     false,
		Pin:         17,
		Temperature: 20,
		Delay:       275 * time.Millisecond,
		Cycles:      0,
	}, s)
}
