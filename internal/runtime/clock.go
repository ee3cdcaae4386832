package runtime

import "time"

// Timer is a handle on a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already started or the timer was already stopped.
	Stop() bool
}

// Clock abstracts time so that deferral and polling logic can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
