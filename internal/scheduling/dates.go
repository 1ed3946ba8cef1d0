package scheduling

import (
	"errors"
	"time"
)

// Frequency represents supported audit generation intervals.
type Frequency string

const (
	// FrequencyDaily generates one candidate date per day.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly generates candidate dates seven days apart.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly generates candidate dates one calendar month apart.
	FrequencyMonthly Frequency = "monthly"
)

// ErrInvalidFrequency indicates the requested frequency is not supported.
var ErrInvalidFrequency = errors.New("scheduling: invalid frequency")

// ParseFrequency converts a wire value into a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	switch Frequency(value) {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return Frequency(value), nil
	}
	return "", ErrInvalidFrequency
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two instants fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Dates produces the ordered candidate audit dates between start and end.
//
// The start is normalized to midnight and the end is inclusive through the
// end of its day. A start after the end yields an empty sequence. Monthly
// stepping uses calendar month arithmetic; when the start day-of-month does
// not exist in a later month the date normalizes per time.AddDate overflow
// (Jan 31 + 1 month = Mar 2/3). That normalization is intentional.
func Dates(start, end time.Time, freq Frequency) ([]time.Time, error) {
	first := StartOfDay(start)
	last := StartOfDay(end)
	if first.After(last) {
		return nil, nil
	}

	var step func(time.Time) time.Time
	switch freq {
	case FrequencyDaily:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case FrequencyWeekly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	case FrequencyMonthly:
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	default:
		return nil, ErrInvalidFrequency
	}

	dates := make([]time.Time, 0)
	for current := first; !current.After(last); current = step(current) {
		dates = append(dates, current)
	}
	return dates, nil
}
