package domain

import (
	"fmt"
	"time"
)

// RawEvent is a single pickup in the canonical two-column schema
// (pickup_datetime, pickup_location_id).
type RawEvent struct {
	PickupDatetime   time.Time
	PickupLocationID int64
}

// AggregatedCount is the number of pickups observed at a location during one hour.
// Only (location, hour) pairs with at least one pickup are represented.
type AggregatedCount struct {
	PickupLocationID int64
	PickupHour       time.Time
	RideCount        int
}

// DenseCount is one cell of the dense grid. Field order follows the output
// column order: pickup_hour, ride_count, pickup_location_id.
type DenseCount struct {
	PickupHour       time.Time `json:"pickup_hour"`
	RideCount        int       `json:"ride_count"`
	PickupLocationID int64     `json:"pickup_location_id"`
}

// Batch is the dense grid produced by one run, with the months it covers.
type Batch struct {
	Months []Month
	Rows   []DenseCount
}

// Name identifies the batch by its first and last month, e.g.
// "rides_hourly_2023-01_2023-03". Months are expected in ascending order.
func (b Batch) Name() string {
	if len(b.Months) == 0 {
		return "rides_hourly_empty"
	}
	return fmt.Sprintf("rides_hourly_%s_%s", b.Months[0], b.Months[len(b.Months)-1])
}
