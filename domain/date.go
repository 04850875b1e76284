package domain

import (
	"strings"
	"time"
)

// DateLayout is the ISO-8601 calendar date format used for all date fields.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar date. Full RFC 3339 timestamps are accepted and
// reduced to their date part in the timestamp's own offset.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, Invalid("date", "empty")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, Invalid("date", "expected YYYY-MM-DD, got "+s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func validDate(field, value string, required bool) error {
	if value == "" {
		if required {
			return Invalid(field, "required")
		}
		return nil
	}
	if _, err := ParseDate(value); err != nil {
		return Invalid(field, "expected YYYY-MM-DD")
	}
	return nil
}
