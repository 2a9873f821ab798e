package schedule

import "time"

const minutesPerDay = 24 * 60

// offsetClock applies a signed offset to a time of day and normalizes the
// result into a valid hour/minute pair plus a day shift. A negative minute
// (start 00:05, early window 10) rolls back to the previous day at 23:55;
// an overflow past midnight rolls forward.
func offsetClock(hour, minute int, offset time.Duration) (dayShift, h, m int) {
	total := hour*60 + minute + int(offset/time.Minute)
	dayShift = total / minutesPerDay
	rem := total % minutesPerDay
	if rem < 0 {
		rem += minutesPerDay
		dayShift--
	}
	return dayShift, rem / 60, rem % 60
}

// nextWeeklyFire returns the first instant strictly after now at which a
// weekly phase fires: the configured time of day shifted by offset, on any
// of the configured weekdays (shifted across midnight when the offset rolls
// the clock over). Zero time if no weekdays are configured.
func nextWeeklyFire(now time.Time, weekdays []time.Weekday, hour, minute int, offset time.Duration) time.Time {
	if len(weekdays) == 0 {
		return time.Time{}
	}

	dayShift, h, m := offsetClock(hour, minute, offset)

	var best time.Time
	for _, wd := range weekdays {
		target := time.Weekday((int(wd) + dayShift%7 + 7) % 7)
		candidate := nextWeekdayAt(now, target, h, m)
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	return best
}

// nextWeekdayAt finds the first instant strictly after now that falls on
// the given weekday at h:m.
func nextWeekdayAt(now time.Time, wd time.Weekday, h, m int) time.Time {
	y, mo, d := now.Date()
	candidate := time.Date(y, mo, d, h, m, 0, 0, now.Location())
	daysAhead := (int(wd) - int(now.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, daysAhead)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
