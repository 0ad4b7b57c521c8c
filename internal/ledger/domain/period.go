package domain

import "time"

// PeriodOf renders the calendar-month identifier used to key monthly resets.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
