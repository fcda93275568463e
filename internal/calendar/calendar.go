// Package calendar converts between Gregorian dates and the exchange's era
// (Minguo) date strings, and enumerates trading weekdays.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EraOffset is the difference between a Gregorian year and its era year.
const EraOffset = 1911

// DayLayout is the canonical text form of a trade date.
const DayLayout = "2006-01-02"

// ErrParse is wrapped by every ParseError.
var ErrParse = errors.New("calendar: parse error")

// ParseError reports a malformed era date string.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse era date %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// Day returns the calendar date y-m-d as a midnight UTC time.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock and location of t, keeping its wall-clock date.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Day(y, m, d)
}

// Today returns the current date in loc.
func Today(loc *time.Location) time.Time {
	return Truncate(time.Now().In(loc))
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDay renders d as YYYY-MM-DD.
func FormatDay(d time.Time) string {
	return d.Format(DayLayout)
}

// ToEraDate formats d as "YYY/MM/DD" with the era year unpadded.
// 2025-09-02 becomes "114/09/02".
func ToEraDate(d time.Time) string {
	y, m, day := d.Date()
	return fmt.Sprintf("%d/%02d/%02d", y-EraOffset, int(m), day)
}

// FromEraDate parses "YYY/MM/DD" back into a Gregorian date.
func FromEraDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, &ParseError{Input: s, Reason: fmt.Sprintf("want 3 fields, got %d", len(parts))}
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, &ParseError{Input: s, Reason: fmt.Sprintf("field %d is not numeric", i+1)}
		}
		nums[i] = n
	}
	year, month, day := nums[0]+EraOffset, nums[1], nums[2]
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, &ParseError{Input: s, Reason: "month or day out of range"}
	}
	d := Day(year, time.Month(month), day)
	if d.Day() != day {
		// time.Date normalises 02/30 into March
		return time.Time{}, &ParseError{Input: s, Reason: "no such day in month"}
	}
	return d, nil
}

// IsBusinessDay reports whether d falls on Monday through Friday.
func IsBusinessDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDays lists every weekday in [start, end], ascending.
// It returns nil when end is before start.
func BusinessDays(start, end time.Time) []time.Time {
	start, end = Truncate(start), Truncate(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d time.Time) Month {
	return Month{Year: d.Year(), Month: d.Month()}
}

// Before orders months chronologically.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}
