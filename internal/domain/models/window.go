package models

import "time"

// DayWindow is the half-open interval [Start, End) covering one local
// calendar day.
type DayWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDayWindow returns the window of the local day containing now. End is
// the next local midnight, so DST days are 23 or 25 hours long.
func NewDayWindow(now time.Time, loc *time.Location) DayWindow {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return DayWindow{
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}
}

// Contains reports whether t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Day returns the window's calendar date formatted as YYYY-MM-DD.
func (w DayWindow) Day() string {
	return w.Start.Format("2006-01-02")
}
