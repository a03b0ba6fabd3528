package simulated

import "time"

// Timer is a single-shot handle returned by Clock.AfterFunc.
type Timer interface {
	// Stop reports whether the call prevented the timer from firing.
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock schedules callbacks with time.AfterFunc.
var SystemClock Clock = systemClock{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
