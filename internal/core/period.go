package core

import (
	"fmt"
	"time"
)

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// Period is a reporting bucket size. Each period carries its own lookback
// window so reports stay bounded regardless of history size.
type Period string

func (p Period) Valid() bool {
	switch p {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Key derives the bucket key for a point in time: YYYY-MM-DD for daily,
// ISO year-week for weekly, YYYY-MM for monthly and YYYY for yearly.
// Keys sort ascending lexicographically within one period.
func (p Period) Key(t time.Time) string {
	switch p {
	case Daily:
		return t.Format("2006-01-02")
	case Weekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Monthly:
		return t.Format("2006-01")
	case Yearly:
		return t.Format("2006")
	}
	return ""
}

// LookbackStart returns the oldest instant included in a report ending at
// now: 30 days, 12 weeks, 12 months or 5 years back.
func (p Period) LookbackStart(now time.Time) time.Time {
	switch p {
	case Daily:
		return now.AddDate(0, 0, -30)
	case Weekly:
		return now.AddDate(0, 0, -12*7)
	case Monthly:
		return now.AddDate(0, -12, 0)
	case Yearly:
		return now.AddDate(-5, 0, 0)
	}
	return now
}
