// Command validate checks a processed dense grid file for integrity: column
// order, one row per (location, hour) over the whole span, the row count law,
// and non-negative counts. Given the raw month files the grid was built from,
// it also checks that ride counts were preserved.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -dense processed/rides_hourly_2023-01_2023-03.parquet \
//	  -raw raw/rides_2023-01.parquet,raw/rides_2023-02.parquet,raw/rides_2023-03.parquet
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	parquetadapter "github.com/couchcryptid/rides-hourly-etl/internal/adapter/parquet"
	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxErrors caps the detail kept per phase; a broken grid can fail every row.
const maxErrors = 20

func (p *phase) full() bool { return len(p.errors) >= maxErrors }

func main() {
	densePath := flag.String("dense", "", "path to a processed dense parquet file")
	rawPaths := flag.String("raw", "", "comma-separated raw month files the grid was built from (optional)")
	timeCol := flag.String("time-column", parquetadapter.YellowTaxiColumns.PickupDatetime, "pickup time column in raw files")
	locCol := flag.String("location-column", parquetadapter.YellowTaxiColumns.PickupLocationID, "pickup location column in raw files")
	flag.Parse()

	if *densePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cols := parquetadapter.SourceColumns{PickupDatetime: *timeCol, PickupLocationID: *locCol}
	if code := run(*densePath, splitList(*rawPaths), cols); code != 0 {
		os.Exit(code)
	}
}

func run(densePath string, rawPaths []string, cols parquetadapter.SourceColumns) int {
	fmt.Println("=== Dense Grid Integrity Validation ===")
	fmt.Println()

	rows, err := parquetadapter.ReadDenseCounts(densePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load dense grid: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateOrdering(rows),
		validateCompleteness(rows),
		validateCounts(rows),
	}

	if len(rawPaths) > 0 {
		events, err := loadRaw(rawPaths, cols)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load raw files: %v\n", err)
			return 1
		}
		phases = append(phases, validatePreservation(rows, domain.AggregateHourly(events)))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d dense, %d locations, %d hours\n", len(rows), len(locationsOf(rows)), hoursOf(rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

var rawMonthPattern = regexp.MustCompile(`_(\d{4})-(\d{2})\.parquet$`)

// loadRaw reads raw month files and keeps only each file's own month, the
// same window the loader applies.
func loadRaw(paths []string, cols parquetadapter.SourceColumns) ([]domain.RawEvent, error) {
	var all []domain.RawEvent
	for _, path := range paths {
		m, err := monthFromPath(path)
		if err != nil {
			return nil, err
		}
		events, err := parquetadapter.ReadEvents(path, cols)
		if err != nil {
			return nil, err
		}
		all = append(all, domain.FilterToMonth(events, m)...)
	}
	return all, nil
}

func monthFromPath(path string) (domain.Month, error) {
	match := rawMonthPattern.FindStringSubmatch(filepath.Base(path))
	if match == nil {
		return domain.Month{}, fmt.Errorf("%s: file name does not end in _YYYY-MM.parquet", path)
	}
	year, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	return domain.NewMonth(year, month)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ── Validation phases ──

func validateOrdering(rows []domain.DenseCount) *phase {
	p := &phase{name: "Ordering (location, hour)"}
	for i := 1; i < len(rows) && !p.full(); i++ {
		prev, cur := rows[i-1], rows[i]
		if cur.PickupLocationID < prev.PickupLocationID ||
			(cur.PickupLocationID == prev.PickupLocationID && !cur.PickupHour.After(prev.PickupHour)) {
			p.errorf("row %d (location %d, %s) follows (location %d, %s)",
				i, cur.PickupLocationID, cur.PickupHour.Format(time.RFC3339),
				prev.PickupLocationID, prev.PickupHour.Format(time.RFC3339))
		}
	}
	return p
}

func validateCompleteness(rows []domain.DenseCount) *phase {
	p := &phase{name: "Completeness and row count law"}
	if len(rows) == 0 {
		p.errorf("grid is empty")
		return p
	}

	minHour, maxHour := rows[0].PickupHour, rows[0].PickupHour
	seen := make(map[int64]map[int64]bool)
	for _, r := range rows {
		if !r.PickupHour.Equal(r.PickupHour.Truncate(time.Hour)) && !p.full() {
			p.errorf("location %d: %s is not on the hour", r.PickupLocationID, r.PickupHour.Format(time.RFC3339))
		}
		if r.PickupHour.Before(minHour) {
			minHour = r.PickupHour
		}
		if r.PickupHour.After(maxHour) {
			maxHour = r.PickupHour
		}
		hours, ok := seen[r.PickupLocationID]
		if !ok {
			hours = make(map[int64]bool)
			seen[r.PickupLocationID] = hours
		}
		key := r.PickupHour.Unix()
		if hours[key] && !p.full() {
			p.errorf("duplicate row for location %d at %s", r.PickupLocationID, r.PickupHour.Format(time.RFC3339))
		}
		hours[key] = true
	}

	span := domain.HourSpan(minHour, maxHour)
	if want := len(seen) * span; len(rows) != want {
		p.errorf("row count %d, want %d locations x %d hours = %d", len(rows), len(seen), span, want)
	}
	for id, hours := range seen {
		if p.full() {
			break
		}
		if len(hours) != span {
			p.errorf("location %d covers %d of %d hours", id, len(hours), span)
		}
	}
	return p
}

func validateCounts(rows []domain.DenseCount) *phase {
	p := &phase{name: "Non-negative ride counts"}
	for _, r := range rows {
		if p.full() {
			break
		}
		if r.RideCount < 0 {
			p.errorf("location %d at %s: ride_count %d", r.PickupLocationID, r.PickupHour.Format(time.RFC3339), r.RideCount)
		}
	}
	return p
}

// validatePreservation checks every observed (location, hour) keeps its count
// and every other grid cell is zero.
func validatePreservation(rows []domain.DenseCount, observed []domain.AggregatedCount) *phase {
	p := &phase{name: "Ride counts preserved from raw files"}

	type cell struct {
		loc  int64
		hour int64
	}
	want := make(map[cell]int, len(observed))
	for _, a := range observed {
		want[cell{a.PickupLocationID, a.PickupHour.Unix()}] = a.RideCount
	}

	var rawTotal, denseTotal int
	for _, a := range observed {
		rawTotal += a.RideCount
	}
	for _, r := range rows {
		denseTotal += r.RideCount
		expected := want[cell{r.PickupLocationID, r.PickupHour.Unix()}]
		if r.RideCount != expected && !p.full() {
			p.errorf("location %d at %s: ride_count %d, want %d",
				r.PickupLocationID, r.PickupHour.Format(time.RFC3339), r.RideCount, expected)
		}
	}
	if rawTotal != denseTotal {
		p.errorf("total rides %d in grid, %d in raw files", denseTotal, rawTotal)
	}
	return p
}

// ── Helpers ──

func locationsOf(rows []domain.DenseCount) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, r := range rows {
		out[r.PickupLocationID] = struct{}{}
	}
	return out
}

func hoursOf(rows []domain.DenseCount) int {
	if len(rows) == 0 {
		return 0
	}
	minHour, maxHour := rows[0].PickupHour, rows[0].PickupHour
	for _, r := range rows {
		if r.PickupHour.Before(minHour) {
			minHour = r.PickupHour
		}
		if r.PickupHour.After(maxHour) {
			maxHour = r.PickupHour
		}
	}
	return domain.HourSpan(minHour, maxHour)
}
