package realtime

import "time"

type timer interface {
	Stop() bool
}

type clock interface {
	AfterFunc(delay time.Duration, fn func()) timer
}

type systemClock struct{}

func (systemClock) AfterFunc(delay time.Duration, fn func()) timer {
	return time.AfterFunc(delay, fn)
}
