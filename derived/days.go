package derived

import (
	"time"

	"bizdesk/domain"
)

// DaysUntil counts calendar days from today to target. Each instant is
// reduced to its date in its own location before subtracting, so the time of
// day never shifts the result. A target in the past yields a negative count.
// Both dates are UTC midnights, so whole seconds divide evenly into days and
// the count holds beyond the range of time.Duration.
func DaysUntil(target, today time.Time) int {
	return int((civil(target).Unix() - civil(today).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// DaysUntilISO parses target as YYYY-MM-DD (or the date part of an RFC 3339
// timestamp) and counts days to it from today.
func DaysUntilISO(target string, today time.Time) (int, error) {
	t, err := domain.ParseDate(target)
	if err != nil {
		return 0, err
	}
	return DaysUntil(t, today), nil
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
