package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	"github.com/couchcryptid/rides-hourly-etl/internal/observability"
)

// Sink persists or publishes a dense batch.
type Sink interface {
	Store(ctx context.Context, batch domain.Batch) error
}

// Request selects the months of one run. Empty Months means the whole year.
type Request struct {
	Year   int
	Months []int
}

// Report summarizes a run.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Succeeded []domain.Month
	Failed    []MonthFailure

	RawEvents      int
	DroppedEvents  int
	AggregatedRows int
	DenseRows      int
	ZeroFilledRows int
}

// Pipeline orchestrates the load-aggregate-densify-store run.
type Pipeline struct {
	loader     *Loader
	sinks      []Sink
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
	maxRetries int

	mu   sync.Mutex
	last *Report
}

// New creates a Pipeline writing each run's dense grid to every sink.
func New(loader *Loader, sinks []Sink, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		loader:     loader,
		sinks:      sinks,
		logger:     logger,
		metrics:    metrics,
		maxRetries: 3,
	}
}

// CheckReadiness returns nil once a run has completed successfully,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastReport returns the report of the most recent run, successful or not.
func (p *Pipeline) LastReport() (Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Report{}, false
	}
	return *p.last, true
}

func (p *Pipeline) setLast(r Report) {
	p.mu.Lock()
	p.last = &r
	p.mu.Unlock()
}

// Run executes one complete run. Months that fail to load are skipped and
// listed in the report; if no month yields any events the run fails with
// domain.ErrEmptyInput.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	report := Report{StartedAt: domain.Now()}
	p.logger.Info("run started", "year", req.Year, "months", req.Months)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	err := p.run(ctx, req, &report)
	report.FinishedAt = domain.Now()
	p.setLast(report)
	p.metrics.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		p.logger.Error("run failed", "year", req.Year, "failed_months", len(report.Failed), "error", err)
		return report, err
	}

	p.metrics.Runs.WithLabelValues("success").Inc()
	p.metrics.LastSuccess.Set(float64(report.FinishedAt.Unix()))
	p.ready.Store(true)
	p.logger.Info("run complete",
		"year", req.Year,
		"succeeded_months", len(report.Succeeded),
		"failed_months", len(report.Failed),
		"dense_rows", report.DenseRows,
		"zero_filled_rows", report.ZeroFilledRows,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, report *Report) error {
	loaded, err := p.loader.Load(ctx, req.Year, req.Months)
	report.Succeeded = loaded.Succeeded
	report.Failed = loaded.Failed
	report.RawEvents = len(loaded.Events)
	report.DroppedEvents = loaded.Dropped
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	aggregated := domain.AggregateHourly(loaded.Events)
	report.AggregatedRows = len(aggregated)

	dense, err := domain.Densify(aggregated)
	if err != nil {
		return fmt.Errorf("densify: %w", err)
	}
	report.DenseRows = len(dense)
	report.ZeroFilledRows = len(dense) - len(aggregated)
	p.metrics.DenseRows.Add(float64(report.DenseRows))
	p.metrics.ZeroFilledRows.Add(float64(report.ZeroFilledRows))

	months := append([]domain.Month(nil), loaded.Succeeded...)
	sort.Slice(months, func(i, j int) bool { return months[i].Start().Before(months[j].Start()) })
	batch := domain.Batch{Months: months, Rows: dense}

	for _, s := range p.sinks {
		if err := p.storeWithRetry(ctx, s, batch); err != nil {
			return fmt.Errorf("store %s: %w", batch.Name(), err)
		}
	}
	return nil
}

// storeWithRetry retries a failing sink with exponential backoff: start at
// 200ms, double each retry, cap at 5s.
func (p *Pipeline) storeWithRetry(ctx context.Context, s Sink, batch domain.Batch) error {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err = s.Store(ctx, batch); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		p.logger.Warn("store failed", "sink", fmt.Sprintf("%T", s), "attempt", attempt+1, "error", err)
		if attempt == p.maxRetries || !sleepWithContext(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	return err
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
