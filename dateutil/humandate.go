package dateutil

import (
	"fmt"
	"strings"
	"time"
)

// layouts are tried in order against the literal text of a date("...")/
// datetime("...") intrinsic (spec §4.5). The original implementation
// leans on a third-party natural-language date parser, but no such
// library appears anywhere in the retrieval pack's dependency surface;
// this module instead accepts the common, unambiguous machine formats a
// BI formula is realistically going to contain, which keeps the parser
// on the standard library with no loss of determinism (see DESIGN.md).
var layouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate parses s as a date, spec §4.5 date("..."). Returns an error
// wrapped by the caller into a GrammarError.
func ParseDate(s string) (DateOnly, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "today") {
		now := time.Now().UTC()
		return DateOnly(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)), nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOnly(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)), nil
		}
	}
	return DateOnly{}, fmt.Errorf("can't convert %q to a date", s)
}

// ParseDatetime parses s as a datetime, spec §4.5 datetime("...").
func ParseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "now") {
		return time.Now().UTC(), nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("can't convert %q to a datetime", s)
}
