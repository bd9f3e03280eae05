package main

import "time"

// heartbeat decides when the periodic HEARTBEAT system event is due.
// Not safe for concurrent use; only the run loop touches it.
type heartbeat struct {
	interval  time.Duration
	startTime time.Time
	last      time.Time
}

func newHeartbeat(interval time.Duration, start time.Time) *heartbeat {
	return &heartbeat{interval: interval, startTime: start, last: start}
}

// due reports whether the interval has elapsed since the last heartbeat (or
// startup) and, if so, records now as the last heartbeat. A non-positive
// interval disables heartbeats.
func (h *heartbeat) due(now time.Time) bool {
	if h.interval <= 0 {
		return false
	}
	if now.Sub(h.last) < h.interval {
		return false
	}
	h.last = now
	return true
}

// uptime returns the time elapsed since startup.
func (h *heartbeat) uptime(now time.Time) time.Duration {
	return now.Sub(h.startTime)
}
