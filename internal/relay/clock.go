package relay

import "time"

// Clock abstracts wall-clock time so tests can drive the poll loop with a
// simulated clock. The wait returned by After is the session's only
// suspension point.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewRealClock returns a Clock backed by the system clock
func NewRealClock() Clock { return realClock{} }
