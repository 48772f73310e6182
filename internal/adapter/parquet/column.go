package parquet

import (
	"fmt"

	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/schema"
)

const schemaInt64 = parquet.Types.Int64

// cell is one decoded value with its null flag.
type cell struct {
	value int64
	valid bool
}

// readInt64Column decodes an INT32 or INT64 column chunk into one cell per row.
func readInt64Column(rg *file.RowGroupReader, idx int, desc *schema.Column) ([]cell, error) {
	col, err := rg.Column(idx)
	if err != nil {
		return nil, err
	}

	maxDef := desc.MaxDefinitionLevel()
	out := make([]cell, 0, rg.NumRows())
	defs := make([]int16, batchSize)

	switch r := col.(type) {
	case *file.Int64ColumnChunkReader:
		values := make([]int64, batchSize)
		for r.HasNext() {
			total, n, err := r.ReadBatch(batchSize, values, defs, nil)
			if err != nil {
				return nil, err
			}
			if total == 0 {
				break
			}
			out = scatter(out, total, values[:n], defs, maxDef, func(v int64) int64 { return v })
		}
	case *file.Int32ColumnChunkReader:
		values := make([]int32, batchSize)
		for r.HasNext() {
			total, n, err := r.ReadBatch(batchSize, values, defs, nil)
			if err != nil {
				return nil, err
			}
			if total == 0 {
				break
			}
			out = scatter(out, total, values[:n], defs, maxDef, func(v int32) int64 { return int64(v) })
		}
	default:
		return nil, fmt.Errorf("unsupported physical type %s", desc.PhysicalType())
	}
	return out, nil
}

// scatter expands densely packed values back onto their rows using the
// definition levels. Values are only present for rows whose level equals maxDef.
func scatter[T any](out []cell, total int64, values []T, defs []int16, maxDef int16, conv func(T) int64) []cell {
	if maxDef == 0 {
		for _, v := range values {
			out = append(out, cell{value: conv(v), valid: true})
		}
		return out
	}

	vi := 0
	for i := int64(0); i < total; i++ {
		if defs[i] == maxDef {
			out = append(out, cell{value: conv(values[vi]), valid: true})
			vi++
			continue
		}
		out = append(out, cell{})
	}
	return out
}
