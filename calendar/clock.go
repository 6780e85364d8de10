package calendar

import "time"

// Clock provides the current instant. Engine code depends on this interface,
// never on time.Now(), so tests can pin "now" to a fixed instant.
type Clock interface {
	Now() time.Time
}

// Real returns the system time. Use only at application entry points.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed always returns T.
type Fixed struct {
	T time.Time
}

func (c Fixed) Now() time.Time { return c.T }

// Func adapts a function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }
