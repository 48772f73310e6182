package domain

import (
	"fmt"
	"time"
)

// Month identifies one monthly trip file.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth validates the month number and returns the Month.
func NewMonth(year, month int) (Month, error) {
	if month < 1 || month > 12 {
		return Month{}, fmt.Errorf("invalid month %d for year %d", month, year)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

// Start is the first instant of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following month. December rolls over to
// January of the next year.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Contains reports whether t falls in [Start, End).
func (m Month) Contains(t time.Time) bool {
	return !t.Before(m.Start()) && t.Before(m.End())
}

// String renders the month as YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// MonthsOfYear expands month numbers into Months. An empty list means all twelve.
// A month listed twice is an error: loading it twice would double its counts.
func MonthsOfYear(year int, months []int) ([]Month, error) {
	if len(months) == 0 {
		months = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	}
	out := make([]Month, 0, len(months))
	seen := make(map[int]bool, len(months))
	for _, n := range months {
		m, err := NewMonth(year, n)
		if err != nil {
			return nil, err
		}
		if seen[n] {
			return nil, fmt.Errorf("month %s requested more than once", m)
		}
		seen[n] = true
		out = append(out, m)
	}
	return out, nil
}

// FilterToMonth returns the events whose pickup time lies within the month.
// The input slice is not modified.
func FilterToMonth(events []RawEvent, m Month) []RawEvent {
	start, end := m.Start(), m.End()
	out := make([]RawEvent, 0, len(events))
	for _, e := range events {
		if e.PickupDatetime.Before(start) || !e.PickupDatetime.Before(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}
