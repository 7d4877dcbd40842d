package bounded

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped the
	// timer before it fired.
	Stop() bool
}

// Timers schedules callbacks. Implementations must run f at most once.
type Timers interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemTimers struct{}

// SystemTimers returns Timers backed by time.AfterFunc.
func SystemTimers() Timers {
	return systemTimers{}
}

func (systemTimers) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
