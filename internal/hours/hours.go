// Package hours evaluates local time-of-day windows for the operating timezone.
// Every check takes the current instant explicitly; nothing is cached.
package hours

import (
	"fmt"
	"time"
)

// LateOrderEnd closes the late-order window that opens at the configured cutoff.
const LateOrderEnd = Clock(6 * 60)

// Clock is a local time of day in minutes since midnight.
type Clock int

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func At(t time.Time) Clock { return Clock(t.Hour()*60 + t.Minute()) }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// Window is the half-open range [Start, End). It wraps past midnight when
// End < Start, and is empty when they are equal.
type Window struct {
	Start Clock
	End   Clock
}

func (w Window) Contains(c Clock) bool {
	switch {
	case w.Start == w.End:
		return false
	case w.Start < w.End:
		return c >= w.Start && c < w.End
	default:
		return c >= w.Start || c < w.End
	}
}

type Gate struct {
	Loc        *time.Location
	AfterHours Window
	LateOrder  Window
}

func NewGate(loc *time.Location, disableAt, workStart, lateCutoff Clock) Gate {
	if loc == nil {
		loc = time.UTC
	}
	return Gate{
		Loc:        loc,
		AfterHours: Window{Start: disableAt, End: workStart},
		LateOrder:  Window{Start: lateCutoff, End: LateOrderEnd},
	}
}

// IsAfterHours reports whether free extensions and rebowls are disabled at now.
func (g Gate) IsAfterHours(now time.Time) bool {
	return g.AfterHours.Contains(At(now.In(g.Loc)))
}

func (g Gate) IsLateOrder(now time.Time) bool {
	return g.LateOrder.Contains(At(now.In(g.Loc)))
}
