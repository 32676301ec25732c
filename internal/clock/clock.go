// Package clock holds the calendar math for anniversary scheduling:
// converting a calendar date plus an IANA timezone into the absolute
// instant a message should fire, and counting whole years of service.
package clock

import (
	"fmt"
	"time"
)

// TargetInstant returns the instant corresponding to date's calendar day
// at hour:00 local wall-clock time in the given IANA timezone, honoring
// that zone's DST rules for the date.
//
// An unknown zone is returned as an error, never silently treated as UTC;
// zone names are validated at the API boundary before they reach here.
func TargetInstant(date time.Time, timezone string, hour int) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load location %q: %w", timezone, err)
	}

	// The calendar day is taken in the target zone, so an instant near a
	// day boundary resolves to the employee's local date.
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, hour, 0, 0, 0, loc), nil
}

// YearsOfService returns the number of whole years between start and ref,
// floor semantics: the anniversary day itself completes a year, the day
// before does not.
func YearsOfService(start, ref time.Time) int {
	years := ref.Year() - start.Year()

	// Not yet reached this year's anniversary day.
	if ref.Month() < start.Month() ||
		(ref.Month() == start.Month() && ref.Day() < start.Day()) {
		years--
	}

	if years < 0 {
		return 0
	}

	return years
}

// MonthDay returns t's month and day in UTC. The daily scan keys on the
// UTC calendar day.
func MonthDay(t time.Time) (time.Month, int) {
	utc := t.UTC()
	return utc.Month(), utc.Day()
}

// DelayUntil returns how long to wait from now until target, clamped at
// zero for instants already in the past.
func DelayUntil(target, now time.Time) time.Duration {
	d := target.Sub(now)
	if d < 0 {
		return 0
	}

	return d
}
