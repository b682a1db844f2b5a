package core

import (
	"time"
)

// Clock is the engine's only source of time. Order ages, funding accrual and
// event timestamps all flow from it, so tests can drive the engine through
// hours of market time deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
