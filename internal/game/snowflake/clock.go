package snowflake

import "time"

// Clock supplies wall-clock milliseconds to a Generator.
type Clock interface {
	// NowMillis returns the current time as milliseconds since the Unix epoch.
	NowMillis() int64
}

// systemClock implements Clock using time.Now.
type systemClock struct{}

// SystemClock returns a Clock backed by the process wall clock.
func SystemClock() Clock {
	return systemClock{}
}

// NowMillis returns time.Now in Unix milliseconds.
func (systemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ClockFunc adapts a plain function into a Clock.
type ClockFunc func() int64

// NowMillis calls f.
func (f ClockFunc) NowMillis() int64 { return f() }
