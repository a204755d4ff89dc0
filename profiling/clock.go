package profiling

import "time"

// A Clock tells the current time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}

// WallClock returns the clock backed by time.Now.
func WallClock() Clock {
	return wallClock{}
}
