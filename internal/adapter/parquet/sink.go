package parquet

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	"github.com/couchcryptid/rides-hourly-etl/internal/storage"
)

// FileSink writes each batch as a parquet file into the processed directory.
// It implements pipeline.Sink.
type FileSink struct {
	layout storage.Layout
	logger *slog.Logger
}

// NewFileSink creates a sink writing into layout.Processed.
func NewFileSink(layout storage.Layout, logger *slog.Logger) *FileSink {
	return &FileSink{layout: layout, logger: logger}
}

// Store encodes the batch and replaces any previous output of the same name.
func (s *FileSink) Store(_ context.Context, batch domain.Batch) error {
	data, err := EncodeDenseCounts(batch.Rows)
	if err != nil {
		return err
	}

	path := s.Path(batch)
	if _, err := storage.WriteFileAtomic(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store dense counts: %w", err)
	}
	s.logger.Info("dense counts written", "path", path, "rows", len(batch.Rows), "bytes", len(data))
	return nil
}

// Path is the output location of a batch.
func (s *FileSink) Path(batch domain.Batch) string {
	return s.layout.ProcessedPath(batch.Name() + ".parquet")
}
