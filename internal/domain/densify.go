package domain

import (
	"fmt"
	"sort"
	"time"
)

// Densify expands sparse hourly counts into a complete grid: one row for every
// location present in the input and every hour between the global minimum and
// maximum pickup hour, inclusive. Hours without observations get a zero count.
//
// Output is ordered by location, then hour. An empty input returns
// ErrEmptyInput; a duplicate (location, hour) pair or an hour not on an hour
// boundary returns an error wrapping ErrInvalidAggregate.
func Densify(counts []AggregatedCount) ([]DenseCount, error) {
	if len(counts) == 0 {
		return nil, ErrEmptyInput
	}

	// Group once: location -> (hour -> count), tracking the shared time axis.
	byLocation := make(map[int64]map[int64]int)
	minHour, maxHour := counts[0].PickupHour.UTC(), counts[0].PickupHour.UTC()
	for _, c := range counts {
		hour := c.PickupHour.UTC()
		if !hour.Truncate(time.Hour).Equal(hour) {
			return nil, fmt.Errorf("%w: location %d hour %s is not truncated to the hour",
				ErrInvalidAggregate, c.PickupLocationID, hour.Format(time.RFC3339Nano))
		}

		hours, ok := byLocation[c.PickupLocationID]
		if !ok {
			hours = make(map[int64]int)
			byLocation[c.PickupLocationID] = hours
		}
		if _, dup := hours[hour.Unix()]; dup {
			return nil, fmt.Errorf("%w: duplicate row for location %d at %s",
				ErrInvalidAggregate, c.PickupLocationID, hour.Format(time.RFC3339))
		}
		hours[hour.Unix()] = c.RideCount

		if hour.Before(minHour) {
			minHour = hour
		}
		if hour.After(maxHour) {
			maxHour = hour
		}
	}

	locations := make([]int64, 0, len(byLocation))
	for id := range byLocation {
		locations = append(locations, id)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i] < locations[j] })

	numHours := HourSpan(minHour, maxHour)
	out := make([]DenseCount, 0, len(locations)*numHours)
	for _, id := range locations {
		hours := byLocation[id]
		for h := minHour; !h.After(maxHour); h = h.Add(time.Hour) {
			out = append(out, DenseCount{
				PickupHour:       h,
				RideCount:        hours[h.Unix()],
				PickupLocationID: id,
			})
		}
	}
	return out, nil
}

// HourSpan is the number of hourly steps in [from, to], inclusive of both ends.
// It returns 0 when to is before from.
func HourSpan(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from)/time.Hour) + 1
}
