package upload

import "time"

// Clock supplies the current time for last-activity stamps.
type Clock interface {
	Now() time.Time
}

// Timer is a pending delayed call.
type Timer interface {
	Stop() bool
}

// Scheduler arms delayed calls. The production one wraps time.AfterFunc;
// tests drive a manual one.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
