// Package cdbtime provides pure bucket arithmetic on unix second counts.
//
// Every function here is closed-form over int64 seconds; none of the hot
// paths allocate or call into the time package except at bucket edges where
// a calendar split is unavoidable (day/week/month). The reverse key
// functions produce the lexicographically decreasing row-key fragments the
// storage layer builds its reverse-chronological scans on.
package cdbtime

import (
	"fmt"
	"time"
)

const (
	// Second counts for the fixed-width spans.
	Minute = 60
	Hour   = 60 * Minute
	Day    = 24 * Hour
	Week   = 7 * Day
	TenMin = 10 * Minute
)

// HourLeft returns ts with minutes and seconds zeroed.
func HourLeft(ts int64) int64 {
	return ts - mod(ts, Hour)
}

// HourRight returns the last second of the hour containing ts.
func HourRight(ts int64) int64 {
	return HourLeft(ts) + Hour - 1
}

// TenMinLeft returns ts aligned down to a 10 minute boundary.
func TenMinLeft(ts int64) int64 {
	return ts - mod(ts, TenMin)
}

// TenMinRight returns the last second of the 10 minute slot containing ts.
func TenMinRight(ts int64) int64 {
	return TenMinLeft(ts) + TenMin - 1
}

// DayLeft returns ts with hours, minutes and seconds zeroed (UTC).
func DayLeft(ts int64) int64 {
	return ts - mod(ts, Day)
}

// DayRight returns the last second of the UTC day containing ts.
func DayRight(ts int64) int64 {
	return DayLeft(ts) + Day - 1
}

// WeekLeft returns the first second of the Monday-based week containing ts.
func WeekLeft(ts int64) int64 {
	d := DayLeft(ts)
	// Unix epoch was a Thursday; weekday index with Monday == 0.
	wd := mod(d/Day+3, 7)
	return d - wd*Day
}

// WeekRight returns the last second of the week containing ts.
func WeekRight(ts int64) int64 {
	return WeekLeft(ts) + Week - 1
}

// MonthLeft returns the first second of the UTC month containing ts.
func MonthLeft(ts int64) int64 {
	t := time.Unix(ts, 0).UTC()
	return DayLeft(ts) - int64(t.Day()-1)*Day
}

// MonthRight returns the last second of the UTC month containing ts.
func MonthRight(ts int64) int64 {
	left := MonthLeft(ts)
	t := time.Unix(left, 0).UTC()
	return left + int64(daysInMonth(t.Year(), t.Month()))*Day - 1
}

func daysInMonth(year int, month time.Month) int {
	days := [...]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	d := days[month-1]
	if month == time.February && isLeap(year) {
		d = 29
	}
	return d
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// IterDays returns the left edges of all UTC days overlapping [from, to].
func IterDays(from, to int64) []int64 {
	if from > to {
		return nil
	}
	var out []int64
	// Step by 25h so the iteration stays stable across irregular inputs.
	for cur := DayLeft(from); cur <= to; cur = DayLeft(cur + 25*Hour) {
		out = append(out, cur)
	}
	return out
}

// IterMonths returns the left edges of all UTC months overlapping [from, to].
func IterMonths(from, to int64) []int64 {
	if from > to {
		return nil
	}
	var out []int64
	for cur := MonthLeft(from); cur <= to; cur = MonthLeft(cur + 32*Day) {
		out = append(out, cur)
	}
	return out
}

// ReverseDayKey maps ts to an 8 char string that sorts in reverse
// chronological day order: 2020-01-02 -> "29804948".
func ReverseDayKey(ts int64) string {
	t := time.Unix(ts, 0).UTC()
	return fmt.Sprintf("%04d%02d%02d", 5000-t.Year(), 50-int(t.Month()), 50-t.Day())
}

// ReverseMonthKey maps ts to a 6 char string sorting in reverse month order.
func ReverseMonthKey(ts int64) string {
	t := time.Unix(ts, 0).UTC()
	return fmt.Sprintf("%04d%02d", 5000-t.Year(), 50-int(t.Month()))
}

// DayFromReverseKey inverts ReverseDayKey back to "YYYYMMDD".
func DayFromReverseKey(key string) (string, error) {
	if len(key) != 8 {
		return "", fmt.Errorf("reverse day key %q: want 8 chars", key)
	}
	var y, m, d int
	if _, err := fmt.Sscanf(key, "%4d%2d%2d", &y, &m, &d); err != nil {
		return "", fmt.Errorf("reverse day key %q: %w", key, err)
	}
	return fmt.Sprintf("%04d%02d%02d", 5000-y, 50-m, 50-d), nil
}

// HourKey returns the two digit UTC hour of ts, used as activity cell prefix.
func HourKey(ts int64) string {
	t := time.Unix(ts, 0).UTC()
	return fmt.Sprintf("%02d", t.Hour())
}

// mod is a floored modulo so pre-1970 timestamps bucket correctly.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
