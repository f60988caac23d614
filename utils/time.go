// Package utils provides utility functions for the application.
package utils

import (
	"fmt"
	"time"
	_ "time/tzdata" // embedded zone database
)

// DefaultTimezone is the civil timezone pickup locations operate in.
const DefaultTimezone = "Europe/Stockholm"

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// TimeProvider does date arithmetic in a fixed civil timezone. Day
// boundaries are computed on the wall clock of that location, so a parcel at
// 23:30 local time stays on its local calendar day even when UTC has already
// rolled over, and DST days are 23 or 25 hours long.
type TimeProvider struct {
	loc *time.Location
	now func() time.Time
}

// NewTimeProvider loads the named IANA location.
func NewTimeProvider(timezone string) (*TimeProvider, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &TimeProvider{loc: loc, now: time.Now}, nil
}

// NewTimeProviderWithClock is used by tests to pin "now".
func NewTimeProviderWithClock(loc *time.Location, now func() time.Time) *TimeProvider {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &TimeProvider{loc: loc, now: now}
}

func (p *TimeProvider) Location() *time.Location {
	return p.loc
}

// Now returns the current instant expressed in the provider's location.
func (p *TimeProvider) Now() time.Time {
	return p.now().In(p.loc)
}

// StartOfDay returns local midnight of the civil day containing t.
func (p *TimeProvider) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(p.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.loc)
}

// EndOfDay returns the last representable instant of the civil day containing t.
func (p *TimeProvider) EndOfDay(t time.Time) time.Time {
	return p.nextDay(t).Add(-time.Nanosecond)
}

// DayBounds returns [start, end) of the civil day containing t.
func (p *TimeProvider) DayBounds(t time.Time) (time.Time, time.Time) {
	return p.StartOfDay(t), p.nextDay(t)
}

// SameDay reports whether a and b fall on the same civil date.
func (p *TimeProvider) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(p.loc).Date()
	by, bm, bd := b.In(p.loc).Date()
	return ay == by && am == bm && ad == bd
}

// CompareTimeOfDay compares the local wall-clock times of a and b ignoring
// their dates. It returns -1, 0 or 1.
func (p *TimeProvider) CompareTimeOfDay(a, b time.Time) int {
	sa := secondsIntoDay(a.In(p.loc))
	sb := secondsIntoDay(b.In(p.loc))
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// FormatDate renders the civil date of t as YYYY-MM-DD.
func (p *TimeProvider) FormatDate(t time.Time) string {
	return t.In(p.loc).Format("2006-01-02")
}

// FormatClock renders the local wall-clock time of t as HH:MM.
func (p *TimeProvider) FormatClock(t time.Time) string {
	return t.In(p.loc).Format("15:04")
}

func (p *TimeProvider) nextDay(t time.Time) time.Time {
	y, m, d := t.In(p.loc).Date()
	// time.Date normalises d+1 across month and year ends
	return time.Date(y, m, d+1, 0, 0, 0, 0, p.loc)
}

func secondsIntoDay(t time.Time) int {
	h, m, s := t.Clock()
	return h*3600 + m*60 + s
}
