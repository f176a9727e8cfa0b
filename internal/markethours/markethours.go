// Package markethours reports the US equity session. Crypto trades around
// the clock and is always open.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // ET must resolve on hosts without a zoneinfo database
)

// ET is the exchange time zone.
var ET = mustLoad("America/New_York")

// Regular session hours in ET.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// IsMarketOpen reports whether t falls within the regular session
// (9:30 to 16:00 ET, Mon-Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	et := t.In(ET)
	if !IsTradingDay(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday reports whether t is Mon-Fri in ET.
func IsWeekday(t time.Time) bool {
	wd := t.In(ET).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay reports whether t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	return IsWeekday(t) && !IsHoliday(t)
}

// NextOpen returns the next session open. Before today's open on a trading
// day it returns today's open.
func NextOpen(t time.Time) time.Time {
	et := t.In(ET)
	todayOpen := time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, ET)
	if et.Before(todayOpen) && IsTradingDay(et) {
		return todayOpen
	}
	for d := 1; d <= 10; d++ {
		day := time.Date(et.Year(), et.Month(), et.Day()+d, OpenHour, OpenMinute, 0, 0, ET)
		if IsTradingDay(day) {
			return day
		}
	}
	return time.Date(et.Year(), et.Month(), et.Day()+1, OpenHour, OpenMinute, 0, 0, ET)
}

// TodayClose returns today's session close.
func TodayClose(t time.Time) time.Time {
	et := t.In(ET)
	return time.Date(et.Year(), et.Month(), et.Day(), CloseHour, CloseMinute, 0, 0, ET)
}

// Status is a snapshot of the session state.
type Status struct {
	Open     bool      `json:"open"`
	NextOpen time.Time `json:"next_open"`
	Message  string    `json:"message"`
}

// StatusAt describes the session at t.
func StatusAt(t time.Time) Status {
	if IsMarketOpen(t) {
		return Status{
			Open:     true,
			NextOpen: NextOpen(t),
			Message:  "Market open, closes in " + fmtDur(TodayClose(t).Sub(t)),
		}
	}
	next := NextOpen(t)
	et := next.In(ET)
	return Status{
		NextOpen: next,
		Message: fmt.Sprintf("Market closed, opens %s %s ET (%s)",
			et.Weekday().String()[:3], et.Format("15:04"), fmtDur(next.Sub(t))),
	}
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
