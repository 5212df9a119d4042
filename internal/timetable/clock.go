package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Clock is a scheduled wall-clock time in minutes since midnight. GTFS-style
// times past midnight ("25:10") are accepted and kept as written.
type Clock int

// ParseClock parses "HH:MM" (an optional ":SS" suffix is ignored)
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 47 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On places the clock on now's calendar date in now's location. A result
// earlier than now-grace is moved to the next day, so an 00:10 service seen
// at 23:50 is tomorrow's.
func (c Clock) On(now time.Time, grace time.Duration) time.Time {
	y, mo, d := now.Date()
	mins := int(c) % minutesPerDay
	t := time.Date(y, mo, d, mins/60, mins%60, 0, 0, now.Location())
	if t.Before(now.Add(-grace)) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// ClockOf returns the wall-clock time of t
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}
