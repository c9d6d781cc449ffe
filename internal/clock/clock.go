// ABOUTME: Injectable monotonic-time source for timeouts, heartbeats, and decay.
// ABOUTME: Real wraps time.Now; Fake is manually advanced for deterministic tests.
package clock

import "time"

// Clock returns the current time as monotonic milliseconds since epoch,
// matching spec.md §3: "Timestamps are monotonic milliseconds since
// epoch."
type Clock interface {
	NowMillis() int64
}

// Real wraps time.Now for production use.
type Real struct{}

// NowMillis returns the current wall-clock time in milliseconds.
func (Real) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Fake is a manually advanced clock for deterministic tests.
type Fake struct {
	millis int64
}

// NewFake creates a Fake clock starting at the given millisecond value.
func NewFake(startMillis int64) *Fake {
	return &Fake{millis: startMillis}
}

// NowMillis returns the fake clock's current value.
func (f *Fake) NowMillis() int64 {
	return f.millis
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.millis += d.Milliseconds()
}

// Set pins the fake clock to an absolute millisecond value.
func (f *Fake) Set(millis int64) {
	f.millis = millis
}
