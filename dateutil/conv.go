package dateutil

import "time"

// ConvertToStartDatetime turns a date into the first moment of that day.
// Values that are already a datetime, or anything else, pass through
// unchanged.
func ConvertToStartDatetime(v interface{}) interface{} {
	switch t := v.(type) {
	case DateOnly:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return v
	}
}

// ConvertToEndDatetime turns a date or datetime into the last moment of
// that calendar day (23:59:59.999999).
func ConvertToEndDatetime(v interface{}) interface{} {
	switch t := v.(type) {
	case DateOnly:
		return endOfDay(time.Time(t))
	case time.Time:
		return endOfDay(t)
	default:
		return v
	}
}

// ConvertToEODDatetime mirrors Python's convert_to_eod_datetime: only
// datetimes that sit at the first moment of their day are pushed to the
// end of that day. A datetime already carrying a time-of-day is left
// alone (spec §4.5 "End-of-day coercion").
func ConvertToEODDatetime(v interface{}) interface{} {
	switch t := v.(type) {
	case DateOnly:
		return endOfDay(time.Time(t))
	case time.Time:
		if isMidnight(t) {
			return endOfDay(t)
		}
		return t
	default:
		return v
	}
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999000, t.Location())
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// DateOnly distinguishes a date-typed value from a full datetime. Both are
// represented with time.Time under the hood (Go has no bare date type),
// but the wrapper lets the conversions above dispatch the way the Python
// implementation dispatches on date vs datetime.
type DateOnly time.Time

func (d DateOnly) Year() int          { return time.Time(d).Year() }
func (d DateOnly) Month() time.Month  { return time.Time(d).Month() }
func (d DateOnly) Day() int           { return time.Time(d).Day() }
func (d DateOnly) Time() time.Time    { return time.Time(d) }
func (d DateOnly) String() string     { return time.Time(d).Format("2006-01-02") }
