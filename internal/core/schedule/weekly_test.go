package schedule

import (
	"testing"
	"time"
)

func TestOffsetClockNormalization(t *testing.T) {
	cases := map[string]struct {
		hour, minute int
		offset       time.Duration
		dayShift     int
		h, m         int
	}{
		"no offset":              {9, 30, 0, 0, 9, 30},
		"within hour":            {9, 30, -10 * time.Minute, 0, 9, 20},
		"rolls hour back":        {9, 5, -10 * time.Minute, 0, 8, 55},
		"rolls day back":         {0, 5, -10 * time.Minute, -1, 23, 55},
		"rolls day forward":      {23, 50, 20 * time.Minute, 1, 0, 10},
		"multi-hour forward":     {22, 0, 3 * time.Hour, 1, 1, 0},
		"exact midnight forward": {23, 0, time.Hour, 1, 0, 0},
	}
	for name, tc := range cases {
		dayShift, h, m := offsetClock(tc.hour, tc.minute, tc.offset)
		if dayShift != tc.dayShift || h != tc.h || m != tc.m {
			t.Fatalf("%s: expected (%d, %02d:%02d) got (%d, %02d:%02d)",
				name, tc.dayShift, tc.h, tc.m, dayShift, h, m)
		}
	}
}

func TestNextWeeklyFire(t *testing.T) {
	// 2026-03-02 is a Monday.
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	fire := nextWeeklyFire(now, []time.Weekday{time.Monday}, 9, 0, 0)
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !fire.Equal(want) {
		t.Fatalf("same-day fire: expected %v got %v", want, fire)
	}

	// Already past today's time: next week.
	fire = nextWeeklyFire(now, []time.Weekday{time.Monday}, 7, 0, 0)
	want = time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	if !fire.Equal(want) {
		t.Fatalf("next-week fire: expected %v got %v", want, fire)
	}

	// Earliest of several weekdays wins.
	fire = nextWeeklyFire(now, []time.Weekday{time.Friday, time.Wednesday}, 9, 0, 0)
	want = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if !fire.Equal(want) {
		t.Fatalf("multiple weekdays: expected %v got %v", want, fire)
	}

	if fire := nextWeeklyFire(now, nil, 9, 0, 0); !fire.IsZero() {
		t.Fatalf("no weekdays should yield zero time, got %v", fire)
	}
}

func TestNextWeeklyFireNegativeOffsetCrossesMidnight(t *testing.T) {
	// Session starts Mondays 00:05 with a 10 minute early window: the
	// early fire lands on Sunday 23:55.
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) // Sunday noon

	fire := nextWeeklyFire(now, []time.Weekday{time.Monday}, 0, 5, -10*time.Minute)
	want := time.Date(2026, 3, 1, 23, 55, 0, 0, time.UTC)
	if !fire.Equal(want) {
		t.Fatalf("expected Sunday 23:55 got %v", fire)
	}

	// The occurrence start recovered from the fire instant is Monday 00:05.
	start := fire.Add(10 * time.Minute)
	if start.Weekday() != time.Monday || start.Hour() != 0 || start.Minute() != 5 {
		t.Fatalf("recovered start should be Monday 00:05, got %v", start)
	}
}

func TestNextWeeklyFirePositiveOffsetCrossesMidnight(t *testing.T) {
	// Duration+late pushes the sweep past midnight into Tuesday.
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) // Monday noon

	fire := nextWeeklyFire(now, []time.Weekday{time.Monday}, 23, 30, time.Hour)
	want := time.Date(2026, 3, 3, 0, 30, 0, 0, time.UTC)
	if !fire.Equal(want) {
		t.Fatalf("expected Tuesday 00:30 got %v", fire)
	}
}
