// Command genmock synthesizes a raw monthly trip file in the TLC parquet layout
// so the ETL can run end to end without network access. It writes straight
// into the raw cache slot, where the fetcher treats it as a cache hit, and
// runs the actual domain package over the same events to print the dense grid
// the pipeline is expected to produce.
//
// Usage:
//
//	go run ./cmd/genmock -root . -year 2023 -month 2 -locations 20 -rides 5000
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"time"

	parquetadapter "github.com/couchcryptid/rides-hourly-etl/internal/adapter/parquet"
	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	"github.com/couchcryptid/rides-hourly-etl/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

type options struct {
	root      string
	year      int
	month     int
	locations int
	rides     int
	strays    int
	seed      uint64
	cols      parquetadapter.SourceColumns
}

func run() error {
	var opts options
	flag.StringVar(&opts.root, "root", ".", "data root; the file is written to <root>/raw")
	flag.IntVar(&opts.year, "year", 2023, "year of the synthesized month")
	flag.IntVar(&opts.month, "month", 1, "month number (1-12)")
	flag.IntVar(&opts.locations, "locations", 10, "number of distinct pickup locations")
	flag.IntVar(&opts.rides, "rides", 1000, "number of in-month rides")
	flag.IntVar(&opts.strays, "strays", 5, "number of rides timestamped outside the month")
	flag.Uint64Var(&opts.seed, "seed", 42, "random seed")
	flag.StringVar(&opts.cols.PickupDatetime, "time-column", parquetadapter.YellowTaxiColumns.PickupDatetime, "pickup time column name")
	flag.StringVar(&opts.cols.PickupLocationID, "location-column", parquetadapter.YellowTaxiColumns.PickupLocationID, "pickup location column name")
	flag.Parse()

	m, err := domain.NewMonth(opts.year, opts.month)
	if err != nil {
		return err
	}
	if opts.locations < 1 || opts.rides < 0 || opts.strays < 0 {
		return fmt.Errorf("locations must be positive; rides and strays non-negative")
	}

	layout, err := storage.Init(opts.root)
	if err != nil {
		return err
	}

	events := synthesize(m, opts)
	data, err := parquetadapter.EncodeRawEvents(events, opts.cols)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	path := layout.RawPath(m)
	n, err := storage.WriteFileAtomic(path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("wrote %s (%d events, %d bytes)", path, len(events), n)

	return printStats(m, events)
}

// synthesize draws rides uniformly over the month and the location range,
// then appends strays from the neighbouring months the way real TLC files
// carry a few mis-dated trips.
func synthesize(m domain.Month, opts options) []domain.RawEvent {
	rng := rand.New(rand.NewPCG(opts.seed, uint64(m.Start().Unix())))
	span := m.End().Sub(m.Start())

	events := make([]domain.RawEvent, 0, opts.rides+opts.strays)
	for range opts.rides {
		offset := time.Duration(rng.Int64N(int64(span)))
		events = append(events, domain.RawEvent{
			PickupDatetime:   m.Start().Add(offset).Truncate(time.Second),
			PickupLocationID: int64(rng.IntN(opts.locations) + 1),
		})
	}
	for i := range opts.strays {
		var at time.Time
		if i%2 == 0 {
			at = m.Start().Add(-time.Duration(rng.Int64N(int64(24*time.Hour))) - time.Second)
		} else {
			at = m.End().Add(time.Duration(rng.Int64N(int64(24 * time.Hour))))
		}
		events = append(events, domain.RawEvent{
			PickupDatetime:   at.Truncate(time.Second),
			PickupLocationID: int64(rng.IntN(opts.locations) + 1),
		})
	}

	rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
	return events
}

type locationTotal struct {
	id    int64
	rides int
}

func printStats(m domain.Month, events []domain.RawEvent) error {
	inWindow := domain.FilterToMonth(events, m)
	aggregated := domain.AggregateHourly(inWindow)

	fmt.Println("\n=== Expected pipeline output ===")
	fmt.Printf("Month: %s\n", m)
	fmt.Printf("Events: %d (in window %d, strays %d)\n", len(events), len(inWindow), len(events)-len(inWindow))
	fmt.Printf("Aggregated rows: %d\n", len(aggregated))

	if len(aggregated) == 0 {
		fmt.Println("Dense rows: 0 (no events in window)")
		return nil
	}

	dense, err := domain.Densify(aggregated)
	if err != nil {
		return fmt.Errorf("densify: %w", err)
	}

	totals := map[int64]int{}
	for _, a := range aggregated {
		totals[a.PickupLocationID] += a.RideCount
	}
	locs := make([]locationTotal, 0, len(totals))
	for id, n := range totals {
		locs = append(locs, locationTotal{id, n})
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].id < locs[j].id })

	first, last := dense[0].PickupHour, dense[len(dense)-1].PickupHour
	fmt.Printf("Hours: %d (%s to %s)\n", domain.HourSpan(first, last), first.Format(time.RFC3339), last.Format(time.RFC3339))
	fmt.Printf("Dense rows: %d (zero-filled %d)\n", len(dense), len(dense)-len(aggregated))
	fmt.Printf("Locations (%d):", len(locs))
	for _, l := range locs {
		fmt.Printf(" %d=%d", l.id, l.rides)
	}
	fmt.Println()
	return nil
}
