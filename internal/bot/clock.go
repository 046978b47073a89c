package bot

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always reports the same instant.
type FixedClock struct {
	FixedNow time.Time
}

func (c FixedClock) Now() time.Time {
	return c.FixedNow
}
