// Package calendar provides civil-date arithmetic in the organization
// timezone. Instants are time.Time; civil dates are Date values so that
// overnight shifts and DST transitions cannot corrupt day-level logic.
package calendar

import (
	"fmt"
	"time"
)

// Date is a civil date without a time-of-day component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of an instant in the given location.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}, nil
}

// MustDate parses a YYYY-MM-DD string and panics on error. For fixtures
// and configuration defaults only.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Time returns midnight of the date in the given location.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At returns the instant at the given time-of-day on this date.
func (d Date) At(hour, minute int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, loc)
}

// AddDays returns the date n days later (or earlier if n is negative).
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	y, m, day := t.Date()
	return Date{Year: y, Month: m, Day: day}
}

// Weekday returns the day of week.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// ISOWeek returns the ISO 8601 year and week number.
func (d Date) ISOWeek() (year, week int) {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).ISOWeek()
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// Equal reports whether two dates are the same.
func (d Date) Equal(other Date) bool {
	return d == other
}

// DaysUntil returns the number of days from d to other (negative if other
// is earlier).
func (d Date) DaysUntil(other Date) int {
	a := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(other.Year, other.Month, other.Day, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// MondayOfWeek returns the Monday of the ISO week containing d.
func (d Date) MondayOfWeek() Date {
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7 // Sunday
	}
	return d.AddDays(1 - wd)
}

// DatesBetween returns every date in [start, end] inclusive.
func DatesBetween(start, end Date) []Date {
	if end.Before(start) {
		return nil
	}
	var out []Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Calendar answers weekend, holiday, and workday questions for the
// organization timezone.
type Calendar struct {
	loc      *time.Location
	holidays map[Date]bool
}

// New builds a Calendar for the named timezone with the given holiday
// dates (YYYY-MM-DD). An empty holiday set is valid.
func New(timezone string, holidays []string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	hs := make(map[Date]bool, len(holidays))
	for _, h := range holidays {
		d, err := ParseDate(h)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday entry: %w", err)
		}
		hs[d] = true
	}

	return &Calendar{loc: loc, holidays: hs}, nil
}

// Location returns the organization timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsWeekend reports whether the date falls on Saturday or Sunday.
func (c *Calendar) IsWeekend(d Date) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsHoliday reports whether the date is in the configured holiday set.
func (c *Calendar) IsHoliday(d Date) bool {
	return c.holidays[d]
}

// IsWorkday reports whether the date is a weekday that is not a holiday.
func (c *Calendar) IsWorkday(d Date) bool {
	return !c.IsWeekend(d) && !c.IsHoliday(d)
}

// WorkdaysBetween counts workdays in [start, end] inclusive.
func (c *Calendar) WorkdaysBetween(start, end Date) int {
	n := 0
	for _, d := range DatesBetween(start, end) {
		if c.IsWorkday(d) {
			n++
		}
	}
	return n
}
