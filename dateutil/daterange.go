// Package dateutil implements the pure date-math functions the transformer
// needs: the intelligent-date calculator (spec §4.5, §9 "Date math") and
// the start/end/eod datetime coercions used alongside it.
package dateutil

import (
	"fmt"
	"strings"
	"time"
)

// CalcDateRange is the single source of truth for intelligent dates
// (spec §9): a pure function (offset, unit, today) -> (start, end).
//
// offset is one of prior/previous/last (-1), current/this (0), next (+1).
// unit is one of year, ytd, qtr, month, mtd, day.
func CalcDateRange(offset, unit string, today time.Time) (start, end time.Time, err error) {
	delta, err := offsetDelta(offset)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	switch strings.ToLower(unit) {
	case "year":
		y := today.Year() + delta
		return dateOf(y, 1, 1), dateOf(y, 12, 31), nil

	case "ytd":
		y := today.Year() + delta
		d := clampDay(y, int(today.Month()), today.Day())
		return dateOf(y, 1, 1), dateOf(y, int(today.Month()), d), nil

	case "qtr":
		qIdx := today.Year()*4 + (int(today.Month())-1)/3 + delta
		y := qIdx / 4
		q := qIdx % 4
		if q < 0 {
			q += 4
			y--
		}
		startMonth := q*3 + 1
		start := dateOf(y, startMonth, 1)
		endMonth := startMonth + 2
		return start, dateOf(y, endMonth, daysInMonth(y, endMonth)), nil

	case "month":
		m := monthOf(today.Year(), int(today.Month())+delta)
		return dateOf(m.y, m.m, 1), dateOf(m.y, m.m, daysInMonth(m.y, m.m)), nil

	case "mtd":
		m := monthOf(today.Year(), int(today.Month())+delta)
		d := clampDay(m.y, m.m, today.Day())
		return dateOf(m.y, m.m, 1), dateOf(m.y, m.m, d), nil

	case "day":
		d := today.AddDate(0, 0, delta)
		d = dateOf(d.Year(), int(d.Month()), d.Day())
		return d, d, nil

	default:
		return time.Time{}, time.Time{}, fmt.Errorf("calc_date_range: unknown unit %q", unit)
	}
}

func offsetDelta(offset string) (int, error) {
	switch strings.ToLower(offset) {
	case "prior", "previous", "last":
		return -1, nil
	case "current", "this":
		return 0, nil
	case "next":
		return 1, nil
	default:
		return 0, fmt.Errorf("calc_date_range: unknown offset %q", offset)
	}
}

type yearMonth struct{ y, m int }

func monthOf(year, month int) yearMonth {
	for month < 1 {
		month += 12
		year--
	}
	for month > 12 {
		month -= 12
		year++
	}
	return yearMonth{year, month}
}

func daysInMonth(year, month int) int {
	mo := monthOf(year, month)
	firstOfNext := dateOf(mo.y, mo.m, 1).AddDate(0, 1, 0)
	lastOfThis := firstOfNext.AddDate(0, 0, -1)
	return lastOfThis.Day()
}

func clampDay(year, month, day int) int {
	mo := monthOf(year, month)
	max := daysInMonth(mo.y, mo.m)
	if day > max {
		return max
	}
	if day < 1 {
		return 1
	}
	return day
}

func dateOf(year, month, day int) time.Time {
	mo := monthOf(year, month)
	return time.Date(mo.y, time.Month(mo.m), day, 0, 0, 0, 0, time.UTC)
}
