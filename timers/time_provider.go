package timers

import "time"

// Stopper cancels a scheduled callback. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// TimeProvider is the native timer primitive the registry sits on. Tests
// inject a fake to control both the clock and native firing.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc runs f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Stopper
}

// RealTimeProvider implements TimeProvider with the standard library.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f with time.AfterFunc.
func (RealTimeProvider) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}
