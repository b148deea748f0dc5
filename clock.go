package bridge

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Clock abstracts time access so last_gateway_learn and DHCP lease timers
// are deterministically testable without sleeping real time.
type Clock interface {
	Now() time.Time
}

type realClock struct {
	c clock.Clock
}

func (r realClock) Now() time.Time { return r.c.Now() }

// NewClock returns a Clock backed by the real wall clock.
func NewClock() Clock { return realClock{c: clock.New()} }

// NewMockClock returns a Clock suitable for tests, along with the underlying
// *clock.Mock so callers can Add/Set to advance it.
func NewMockClock() (Clock, *clock.Mock) {
	m := clock.NewMock()
	return realClock{c: m}, m
}
