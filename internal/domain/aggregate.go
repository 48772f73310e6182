package domain

import (
	"sort"
	"time"
)

type hourKey struct {
	location int64
	hour     int64 // unix seconds of the truncated hour
}

// AggregateHourly counts pickups per (location, hour). The result is ordered
// by location, then hour.
func AggregateHourly(events []RawEvent) []AggregatedCount {
	counts := make(map[hourKey]int)
	for _, e := range events {
		k := hourKey{
			location: e.PickupLocationID,
			hour:     e.PickupDatetime.UTC().Truncate(time.Hour).Unix(),
		}
		counts[k]++
	}

	out := make([]AggregatedCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, AggregatedCount{
			PickupLocationID: k.location,
			PickupHour:       time.Unix(k.hour, 0).UTC(),
			RideCount:        n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PickupLocationID != out[j].PickupLocationID {
			return out[i].PickupLocationID < out[j].PickupLocationID
		}
		return out[i].PickupHour.Before(out[j].PickupHour)
	})
	return out
}
