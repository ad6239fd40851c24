package engine

import "time"

// Clock abstracts time so the debounce window can be driven by tests
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// Timer is the subset of *time.Timer the engine uses
type Timer interface {
	Stop() bool
}

type realClock struct{}

// SystemClock is the wall clock
var SystemClock Clock = realClock{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) Now() time.Time {
	return time.Now()
}
