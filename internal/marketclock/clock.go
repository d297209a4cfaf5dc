// Package marketclock reports NYSE/NASDAQ trading-session state: whether
// the market is open and how favorable the current moment is for entries.
package marketclock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Eastern is the exchange timezone (NYSE/NASDAQ trade on US Eastern time).
var Eastern *time.Location

func init() {
	var err error
	Eastern, err = time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("marketclock: failed to load America/New_York timezone: %v", err))
	}
}

// Regular session hours, Eastern time.
const (
	OpenHour  = 9
	OpenMin   = 30
	CloseHour = 16
	CloseMin  = 0

	openingWindowMinutes = 30 // first 30 min after open: AVOID_OPENING
	closingWindowMinutes = 15 // last 15 min before close: AVOID_CLOSING
	optimalStartHour     = 10 // 10:00-15:00: OPTIMAL
	optimalEndHour       = 15
)

// Status is the market's current session state.
type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusClosedWeekend   Status = "CLOSED_WEEKEND"
	StatusClosedHoliday   Status = "CLOSED_HOLIDAY"
	StatusClosedBefore    Status = "CLOSED_BEFORE"
	StatusClosedAfter     Status = "CLOSED_AFTER"
)

// Window rates how favorable the current moment is for opening new
// positions, independent of whether the market is simply open.
type Window string

const (
	WindowOptimal      Window = "OPTIMAL"
	WindowAcceptable   Window = "ACCEPTABLE"
	WindowAvoidOpening Window = "AVOID_OPENING"
	WindowAvoidClosing Window = "AVOID_CLOSING"
	WindowMarketClosed Window = "MARKET_CLOSED"
)

// Reading is the clock's answer for a single point in time.
type Reading struct {
	Status Status
	Window Window
	Reason string
}

// Blocked reports whether the orchestrator should skip new entries this
// tick: any status other than OPEN, or either avoid-window.
func (r Reading) Blocked() bool {
	return r.Status != StatusOpen || r.Window == WindowAvoidOpening || r.Window == WindowAvoidClosing
}

// Calendar answers trading-day and session-window questions for the
// exchange calendar, holiday list injected at construction.
type Calendar struct {
	holidays map[string]string // YYYY-MM-DD -> reason
}

// HolidayEntry is one entry in the holiday JSON file.
type HolidayEntry struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Reason string `json:"reason"`
}

// NewCalendar loads a Calendar from a JSON array of HolidayEntry.
func NewCalendar(holidayFilePath string) (*Calendar, error) {
	data, err := os.ReadFile(holidayFilePath)
	if err != nil {
		return nil, fmt.Errorf("marketclock: read holidays file: %w", err)
	}

	var entries []HolidayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("marketclock: parse holidays: %w", err)
	}

	holidays := make(map[string]string, len(entries))
	for _, e := range entries {
		holidays[e.Date] = e.Reason
	}
	return &Calendar{holidays: holidays}, nil
}

// NewCalendarFromHolidays builds a Calendar directly from a holiday map,
// useful for tests and for a baked-in default NYSE holiday set.
func NewCalendarFromHolidays(holidays map[string]string) *Calendar {
	return &Calendar{holidays: holidays}
}

// IsTradingDay reports whether date is a weekday that isn't a holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(Eastern)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	_, isHoliday := c.holidays[d.Format("2006-01-02")]
	return !isHoliday
}

// HolidayReason returns the reason date is a holiday, or "" if it isn't.
func (c *Calendar) HolidayReason(date time.Time) string {
	return c.holidays[date.In(Eastern).Format("2006-01-02")]
}

// Read evaluates the market's status and entry window at now.
func (c *Calendar) Read(now time.Time) Reading {
	t := now.In(Eastern)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return Reading{Status: StatusClosedWeekend, Window: WindowMarketClosed, Reason: "weekend"}
	}
	if reason := c.HolidayReason(t); reason != "" {
		return Reading{Status: StatusClosedHoliday, Window: WindowMarketClosed, Reason: reason}
	}

	minutesNow := t.Hour()*60 + t.Minute()
	openMinutes := OpenHour*60 + OpenMin
	closeMinutes := CloseHour*60 + CloseMin

	if minutesNow < openMinutes {
		return Reading{Status: StatusClosedBefore, Window: WindowMarketClosed, Reason: "before regular session"}
	}
	if minutesNow >= closeMinutes {
		return Reading{Status: StatusClosedAfter, Window: WindowMarketClosed, Reason: "after regular session"}
	}

	if minutesNow < openMinutes+openingWindowMinutes {
		return Reading{Status: StatusOpen, Window: WindowAvoidOpening, Reason: "within 30 minutes of the open"}
	}
	if minutesNow >= closeMinutes-closingWindowMinutes {
		return Reading{Status: StatusOpen, Window: WindowAvoidClosing, Reason: "within 15 minutes of the close"}
	}
	if t.Hour() >= optimalStartHour && t.Hour() < optimalEndHour {
		return Reading{Status: StatusOpen, Window: WindowOptimal, Reason: "core session hours"}
	}
	return Reading{Status: StatusOpen, Window: WindowAcceptable, Reason: "regular session, outside core hours"}
}

// TimeUntilNextSession returns the duration until the next market open,
// or 0 if the market is open right now.
func (c *Calendar) TimeUntilNextSession(now time.Time) time.Duration {
	t := now.In(Eastern)
	if c.Read(t).Status == StatusOpen {
		return 0
	}

	candidate := t
	for i := 0; i < 10; i++ {
		if i == 0 && c.IsTradingDay(candidate) {
			todayOpen := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), OpenHour, OpenMin, 0, 0, Eastern)
			if t.Before(todayOpen) {
				return todayOpen.Sub(t)
			}
		}
		candidate = candidate.AddDate(0, 0, 1)
		if c.IsTradingDay(candidate) {
			nextOpen := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), OpenHour, OpenMin, 0, 0, Eastern)
			return nextOpen.Sub(t)
		}
	}
	return 24 * time.Hour
}
