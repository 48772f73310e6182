// Package parquet reads raw TLC trip files and writes dense hourly counts
// using the Apache Arrow parquet implementation.
package parquet

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/schema"

	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
)

// batchSize is the number of values decoded per ReadBatch call.
const batchSize = 8192

// SourceColumns names the source columns mapped onto the canonical schema.
type SourceColumns struct {
	PickupDatetime   string
	PickupLocationID string
}

// YellowTaxiColumns is the column naming of the yellow taxi trip files.
var YellowTaxiColumns = SourceColumns{
	PickupDatetime:   "tpep_pickup_datetime",
	PickupLocationID: "PULocationID",
}

// ReadEvents decodes the pickup time and location columns of a trip file into
// canonical RawEvents. Rows with a null in either column are skipped. Every
// other column in the file is ignored.
func ReadEvents(path string, cols SourceColumns) ([]domain.RawEvent, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer pf.Close()

	sc := pf.MetaData().Schema
	timeIdx, err := columnIndex(sc, cols.PickupDatetime)
	if err != nil {
		return nil, err
	}
	locIdx, err := columnIndex(sc, cols.PickupLocationID)
	if err != nil {
		return nil, err
	}
	toTime, err := timestampDecoder(sc.Column(timeIdx))
	if err != nil {
		return nil, err
	}

	events := make([]domain.RawEvent, 0, pf.NumRows())
	for rg := 0; rg < pf.NumRowGroups(); rg++ {
		rgr := pf.RowGroup(rg)

		times, err := readInt64Column(rgr, timeIdx, sc.Column(timeIdx))
		if err != nil {
			return nil, fmt.Errorf("row group %d column %s: %w", rg, cols.PickupDatetime, err)
		}
		locs, err := readInt64Column(rgr, locIdx, sc.Column(locIdx))
		if err != nil {
			return nil, fmt.Errorf("row group %d column %s: %w", rg, cols.PickupLocationID, err)
		}
		if len(times) != len(locs) {
			return nil, fmt.Errorf("row group %d: column lengths differ (%d vs %d)", rg, len(times), len(locs))
		}

		for i := range times {
			if !times[i].valid || !locs[i].valid {
				continue
			}
			events = append(events, domain.RawEvent{
				PickupDatetime:   toTime(times[i].value),
				PickupLocationID: locs[i].value,
			})
		}
	}
	return events, nil
}

// ReadDenseCounts decodes a file written by EncodeDenseCounts.
func ReadDenseCounts(path string) ([]domain.DenseCount, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer pf.Close()

	sc := pf.MetaData().Schema
	idx := make([]int, len(denseColumns))
	for i, name := range denseColumns {
		if idx[i], err = columnIndex(sc, name); err != nil {
			return nil, err
		}
	}
	toTime, err := timestampDecoder(sc.Column(idx[0]))
	if err != nil {
		return nil, err
	}

	rows := make([]domain.DenseCount, 0, pf.NumRows())
	for rg := 0; rg < pf.NumRowGroups(); rg++ {
		rgr := pf.RowGroup(rg)
		cols := make([][]cell, len(idx))
		for i, ci := range idx {
			if cols[i], err = readInt64Column(rgr, ci, sc.Column(ci)); err != nil {
				return nil, fmt.Errorf("row group %d column %s: %w", rg, denseColumns[i], err)
			}
		}
		for r := range cols[0] {
			if !cols[0][r].valid || !cols[1][r].valid || !cols[2][r].valid {
				return nil, fmt.Errorf("row group %d row %d: unexpected null", rg, r)
			}
			rows = append(rows, domain.DenseCount{
				PickupHour:       toTime(cols[0][r].value),
				RideCount:        int(cols[1][r].value),
				PickupLocationID: cols[2][r].value,
			})
		}
	}
	return rows, nil
}

func columnIndex(sc *schema.Schema, name string) (int, error) {
	idx := sc.ColumnIndexByName(name)
	if idx < 0 {
		return -1, fmt.Errorf("column %q not found", name)
	}
	return idx, nil
}

// timestampDecoder converts the stored INT64 of a timestamp column to a UTC
// time. Files without a logical type annotation are assumed to be microseconds.
func timestampDecoder(col *schema.Column) (func(int64) time.Time, error) {
	if col.PhysicalType() != schemaInt64 {
		return nil, fmt.Errorf("column %q: unsupported timestamp physical type %s", col.Name(), col.PhysicalType())
	}

	unit := schema.TimeUnitMicros
	if ts, ok := col.LogicalType().(*schema.TimestampLogicalType); ok {
		unit = ts.TimeUnit()
	}

	switch unit {
	case schema.TimeUnitMillis:
		return func(v int64) time.Time { return time.UnixMilli(v).UTC() }, nil
	case schema.TimeUnitNanos:
		return func(v int64) time.Time { return time.Unix(0, v).UTC() }, nil
	default:
		return func(v int64) time.Time { return time.UnixMicro(v).UTC() }, nil
	}
}
