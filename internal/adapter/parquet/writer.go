package parquet

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
)

// denseColumns is the output column order of the dense grid.
var denseColumns = []string{"pickup_hour", "ride_count", "pickup_location_id"}

var denseSchema = arrow.NewSchema([]arrow.Field{
	{Name: denseColumns[0], Type: &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}},
	{Name: denseColumns[1], Type: arrow.PrimitiveTypes.Int64},
	{Name: denseColumns[2], Type: arrow.PrimitiveTypes.Int64},
}, nil)

// EncodeDenseCounts serializes the dense grid as a snappy-compressed parquet
// file with columns pickup_hour, ride_count, pickup_location_id.
func EncodeDenseCounts(rows []domain.DenseCount) ([]byte, error) {
	b := array.NewRecordBuilder(memory.DefaultAllocator, denseSchema)
	defer b.Release()

	hours := b.Field(0).(*array.TimestampBuilder)
	counts := b.Field(1).(*array.Int64Builder)
	locs := b.Field(2).(*array.Int64Builder)
	for _, r := range rows {
		hours.Append(arrow.Timestamp(r.PickupHour.UnixMicro()))
		counts.Append(int64(r.RideCount))
		locs.Append(r.PickupLocationID)
	}

	rec := b.NewRecord()
	defer rec.Release()
	return encode(denseSchema, rec)
}

// EncodeRawEvents serializes events in the layout of a TLC trip file: a naive
// microsecond timestamp column and an int64 location column, named by cols.
func EncodeRawEvents(events []domain.RawEvent, cols SourceColumns) ([]byte, error) {
	sc := arrow.NewSchema([]arrow.Field{
		{Name: cols.PickupDatetime, Type: &arrow.TimestampType{Unit: arrow.Microsecond}, Nullable: true},
		{Name: cols.PickupLocationID, Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, sc)
	defer b.Release()

	times := b.Field(0).(*array.TimestampBuilder)
	locs := b.Field(1).(*array.Int64Builder)
	for _, e := range events {
		times.Append(arrow.Timestamp(e.PickupDatetime.UnixMicro()))
		locs.Append(e.PickupLocationID)
	}

	rec := b.NewRecord()
	defer rec.Release()
	return encode(sc, rec)
}

func encode(sc *arrow.Schema, rec arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))

	w, err := pqarrow.NewFileWriter(sc, &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, fmt.Errorf("write parquet record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
