package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	"github.com/couchcryptid/rides-hourly-etl/internal/observability"
)

// Source resolves a month to a local file holding its raw trip records.
type Source interface {
	Fetch(ctx context.Context, m domain.Month) (string, error)
}

// EventReader decodes a local trip file into canonical pickup events.
type EventReader interface {
	ReadEvents(path string) ([]domain.RawEvent, error)
}

// EventReaderFunc adapts a function to EventReader.
type EventReaderFunc func(path string) ([]domain.RawEvent, error)

func (f EventReaderFunc) ReadEvents(path string) ([]domain.RawEvent, error) { return f(path) }

// MonthFailure records why a month was skipped.
type MonthFailure struct {
	Month domain.Month
	Err   error
}

// LoadResult is the best-effort union of all months that loaded, plus a
// report of the ones that did not.
type LoadResult struct {
	Events    []domain.RawEvent
	Succeeded []domain.Month
	Failed    []MonthFailure
	Dropped   int // events outside their file's month
}

// Loader fetches, decodes, and window-filters monthly trip files.
type Loader struct {
	source  Source
	reader  EventReader
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLoader creates a Loader over the given source and decoder.
func NewLoader(source Source, reader EventReader, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{source: source, reader: reader, logger: logger, metrics: metrics}
}

// Load processes the requested months of a year; no months means all twelve.
// A month that cannot be fetched or decoded is skipped and recorded in
// LoadResult.Failed rather than aborting the run. Only invalid month numbers
// and context cancellation return an error.
func (l *Loader) Load(ctx context.Context, year int, months []int) (LoadResult, error) {
	targets, err := domain.MonthsOfYear(year, months)
	if err != nil {
		return LoadResult{}, err
	}

	var res LoadResult
	for _, m := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		events, dropped, err := l.loadMonth(ctx, m)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			l.logger.Warn("month skipped", "month", m.String(), "error", err)
			l.metrics.MonthsFailed.Inc()
			res.Failed = append(res.Failed, MonthFailure{Month: m, Err: err})
			continue
		}

		l.logger.Info("month loaded", "month", m.String(), "events", len(events), "dropped", dropped)
		l.metrics.EventsLoaded.Add(float64(len(events)))
		l.metrics.EventsOutOfWindow.Add(float64(dropped))
		res.Events = append(res.Events, events...)
		res.Succeeded = append(res.Succeeded, m)
		res.Dropped += dropped
	}
	return res, nil
}

func (l *Loader) loadMonth(ctx context.Context, m domain.Month) ([]domain.RawEvent, int, error) {
	path, err := l.source.Fetch(ctx, m)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", m, err)
	}

	raw, err := l.reader.ReadEvents(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", m, err)
	}

	events := domain.FilterToMonth(raw, m)
	return events, len(raw) - len(events), nil
}
