package scheduler

import (
	"time"
)

// Timer is a cancellable scheduled task.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall-clock reads and timer scheduling so tests can
// advance virtual time instead of sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
