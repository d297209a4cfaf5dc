package marketclock

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, layout, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation(layout, value, Eastern)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func TestCalendar_Read(t *testing.T) {
	cal := NewCalendarFromHolidays(map[string]string{
		"2026-01-01": "New Year's Day",
	})

	cases := []struct {
		name       string
		at         string
		wantStatus Status
		wantWindow Window
	}{
		{"saturday", "2026-01-03 11:00", StatusClosedWeekend, WindowMarketClosed},
		{"holiday", "2026-01-01 11:00", StatusClosedHoliday, WindowMarketClosed},
		{"before open", "2026-01-05 09:00", StatusClosedBefore, WindowMarketClosed},
		{"after close", "2026-01-05 16:30", StatusClosedAfter, WindowMarketClosed},
		{"just after open", "2026-01-05 09:35", StatusOpen, WindowAvoidOpening},
		{"end of opening window", "2026-01-05 09:59", StatusOpen, WindowAvoidOpening},
		{"core hours", "2026-01-05 11:30", StatusOpen, WindowOptimal},
		{"acceptable afternoon", "2026-01-05 15:05", StatusOpen, WindowAcceptable},
		{"closing window", "2026-01-05 15:50", StatusOpen, WindowAvoidClosing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := mustTime(t, "2006-01-02 15:04", tc.at)
			reading := cal.Read(now)
			if reading.Status != tc.wantStatus {
				t.Errorf("status = %s, want %s", reading.Status, tc.wantStatus)
			}
			if reading.Window != tc.wantWindow {
				t.Errorf("window = %s, want %s", reading.Window, tc.wantWindow)
			}
		})
	}
}

func TestReading_Blocked(t *testing.T) {
	cases := []struct {
		reading Reading
		want    bool
	}{
		{Reading{Status: StatusOpen, Window: WindowOptimal}, false},
		{Reading{Status: StatusOpen, Window: WindowAcceptable}, false},
		{Reading{Status: StatusOpen, Window: WindowAvoidOpening}, true},
		{Reading{Status: StatusOpen, Window: WindowAvoidClosing}, true},
		{Reading{Status: StatusClosedWeekend, Window: WindowMarketClosed}, true},
	}

	for _, tc := range cases {
		if got := tc.reading.Blocked(); got != tc.want {
			t.Errorf("Blocked() for %+v = %v, want %v", tc.reading, got, tc.want)
		}
	}
}

func TestCalendar_IsTradingDay(t *testing.T) {
	cal := NewCalendarFromHolidays(map[string]string{
		"2026-01-01": "New Year's Day",
	})

	if cal.IsTradingDay(mustTime(t, "2006-01-02", "2026-01-01")) {
		t.Error("holiday reported as trading day")
	}
	if cal.IsTradingDay(mustTime(t, "2006-01-02", "2026-01-03")) {
		t.Error("Saturday reported as trading day")
	}
	if !cal.IsTradingDay(mustTime(t, "2006-01-02", "2026-01-05")) {
		t.Error("ordinary Monday reported as non-trading day")
	}
}

func TestCalendar_TimeUntilNextSession(t *testing.T) {
	cal := NewCalendarFromHolidays(map[string]string{
		"2026-01-01": "New Year's Day",
	})

	// Friday evening, market closed for the day: next session is Monday open.
	friday := mustTime(t, "2006-01-02 15:04", "2026-01-02 18:00")
	until := cal.TimeUntilNextSession(friday)
	if until <= 0 {
		t.Fatalf("expected positive wait, got %v", until)
	}
	nextOpen := friday.Add(until)
	if nextOpen.Weekday() != time.Monday {
		t.Errorf("next session lands on %s, want Monday", nextOpen.Weekday())
	}

	// Already open: should return 0.
	duringSession := mustTime(t, "2006-01-02 15:04", "2026-01-05 11:00")
	if got := cal.TimeUntilNextSession(duringSession); got != 0 {
		t.Errorf("TimeUntilNextSession during open session = %v, want 0", got)
	}
}
