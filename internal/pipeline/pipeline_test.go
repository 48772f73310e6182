package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	"github.com/couchcryptid/rides-hourly-etl/internal/observability"
	"github.com/couchcryptid/rides-hourly-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// mockSource serves one fake path per month, failing months listed in fail.
type mockSource struct {
	fail    map[time.Month]error
	fetched []domain.Month
}

func (m *mockSource) Fetch(_ context.Context, month domain.Month) (string, error) {
	m.fetched = append(m.fetched, month)
	if err, ok := m.fail[month.Month]; ok {
		return "", err
	}
	return fmt.Sprintf("/cache/rides_%s.parquet", month), nil
}

// mockReader returns canned events per path.
type mockReader struct {
	events map[string][]domain.RawEvent
	err    map[string]error
}

func (m *mockReader) ReadEvents(path string) ([]domain.RawEvent, error) {
	if err := m.err[path]; err != nil {
		return nil, err
	}
	return m.events[path], nil
}

type recordingSink struct {
	batches []domain.Batch
	err     error
}

func (s *recordingSink) Store(_ context.Context, batch domain.Batch) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2023, month, day, hour, minute, 0, 0, time.UTC)
}

func pathFor(month time.Month) string {
	return fmt.Sprintf("/cache/rides_%s.parquet", domain.Month{Year: 2023, Month: month})
}

// threeMonths serves January to March 2023 with one stray event per file.
func threeMonths() *mockReader {
	return &mockReader{events: map[string][]domain.RawEvent{
		pathFor(time.January): {
			{PickupDatetime: at(time.January, 31, 23, 10), PickupLocationID: 1},
			{PickupDatetime: time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC), PickupLocationID: 1},
		},
		pathFor(time.February): {
			{PickupDatetime: at(time.February, 1, 0, 5), PickupLocationID: 2},
			{PickupDatetime: at(time.March, 1, 0, 0), PickupLocationID: 2},
		},
		pathFor(time.March): {
			{PickupDatetime: at(time.March, 1, 1, 30), PickupLocationID: 1},
			{PickupDatetime: at(time.March, 1, 1, 45), PickupLocationID: 1},
		},
	}}
}

// --- Loader tests ---

func TestLoader_AllMonthsByDefault(t *testing.T) {
	src := &mockSource{}
	l := pipeline.NewLoader(src, &mockReader{}, discardLogger(), newTestMetrics())

	res, err := l.Load(context.Background(), 2023, nil)
	require.NoError(t, err)

	require.Len(t, src.fetched, 12)
	assert.Equal(t, time.January, src.fetched[0].Month)
	assert.Equal(t, time.December, src.fetched[11].Month)
	assert.Len(t, res.Succeeded, 12)
	assert.Empty(t, res.Events)
}

func TestLoader_SkipsFailedMonth(t *testing.T) {
	retrievalErr := &domain.RetrievalError{URL: "https://example.test/yellow_tripdata_2023-02.parquet", StatusCode: 404}
	src := &mockSource{fail: map[time.Month]error{time.February: retrievalErr}}
	metrics := newTestMetrics()
	l := pipeline.NewLoader(src, threeMonths(), discardLogger(), metrics)

	res, err := l.Load(context.Background(), 2023, []int{1, 2, 3})
	require.NoError(t, err)

	want := []domain.RawEvent{
		{PickupDatetime: at(time.January, 31, 23, 10), PickupLocationID: 1},
		{PickupDatetime: at(time.March, 1, 1, 30), PickupLocationID: 1},
		{PickupDatetime: at(time.March, 1, 1, 45), PickupLocationID: 1},
	}
	if diff := cmp.Diff(want, res.Events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []domain.Month{{Year: 2023, Month: time.January}, {Year: 2023, Month: time.March}}, res.Succeeded)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, domain.Month{Year: 2023, Month: time.February}, res.Failed[0].Month)
	var got *domain.RetrievalError
	require.ErrorAs(t, res.Failed[0].Err, &got)
	assert.Equal(t, retrievalErr.URL, got.URL)

	assert.Equal(t, 1, res.Dropped, "the 2009 stray in January is dropped")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MonthsFailed), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.EventsLoaded), 0)
}

func TestLoader_ReadFailureIsSkipped(t *testing.T) {
	reader := threeMonths()
	reader.err = map[string]error{pathFor(time.March): errors.New("parquet: invalid magic")}
	l := pipeline.NewLoader(&mockSource{}, reader, discardLogger(), newTestMetrics())

	res, err := l.Load(context.Background(), 2023, []int{1, 3})
	require.NoError(t, err)

	assert.Len(t, res.Events, 1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, time.March, res.Failed[0].Month.Month)
	assert.Contains(t, res.Failed[0].Err.Error(), "invalid magic")
}

func TestLoader_InvalidMonth(t *testing.T) {
	src := &mockSource{}
	l := pipeline.NewLoader(src, &mockReader{}, discardLogger(), newTestMetrics())

	_, err := l.Load(context.Background(), 2023, []int{1, 13})
	require.Error(t, err)
	assert.Empty(t, src.fetched, "nothing is fetched when the request is invalid")
}

func TestLoader_DuplicateMonthRejected(t *testing.T) {
	src := &mockSource{}
	l := pipeline.NewLoader(src, threeMonths(), discardLogger(), newTestMetrics())

	_, err := l.Load(context.Background(), 2023, []int{2, 2})
	require.Error(t, err)
	assert.Empty(t, src.fetched, "a repeated month is never loaded twice")
}

func TestLoader_ContextCancellation(t *testing.T) {
	l := pipeline.NewLoader(&mockSource{}, threeMonths(), discardLogger(), newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, 2023, []int{1, 2, 3})
	require.ErrorIs(t, err, context.Canceled)
}

// --- Pipeline tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	sink := &recordingSink{}
	metrics := newTestMetrics()
	l := pipeline.NewLoader(&mockSource{}, threeMonths(), discardLogger(), metrics)
	p := pipeline.New(l, []pipeline.Sink{sink}, discardLogger(), metrics)

	require.Error(t, p.CheckReadiness(context.Background()))

	report, err := p.Run(context.Background(), pipeline.Request{Year: 2023, Months: []int{3, 1, 2}})
	require.NoError(t, err)

	// Hours span Jan 31 23:00 to Mar 1 01:00 (675 hours) for locations 1 and 2.
	hours := domain.HourSpan(at(time.January, 31, 23, 0), at(time.March, 1, 1, 0))
	require.Equal(t, 675, hours)
	assert.Equal(t, 2*hours, report.DenseRows)
	assert.Equal(t, 3, report.AggregatedRows)
	assert.Equal(t, 2*hours-3, report.ZeroFilledRows)
	assert.Equal(t, 4, report.RawEvents)
	assert.Equal(t, 2, report.DroppedEvents)
	assert.Empty(t, report.Failed)
	assert.Equal(t, fakeClock.Now(), report.StartedAt)

	require.Len(t, sink.batches, 1)
	batch := sink.batches[0]
	assert.Equal(t, "rides_hourly_2023-01_2023-03", batch.Name(), "months are sorted in the batch")
	assert.Len(t, batch.Rows, 2*hours)
	assert.Equal(t, domain.DenseCount{PickupHour: at(time.January, 31, 23, 0), RideCount: 1, PickupLocationID: 1}, batch.Rows[0])
	assert.Equal(t, domain.DenseCount{PickupHour: at(time.March, 1, 1, 0), RideCount: 2, PickupLocationID: 1}, batch.Rows[hours-1])

	require.NoError(t, p.CheckReadiness(context.Background()))
	last, ok := p.LastReport()
	require.True(t, ok)
	assert.Equal(t, report, last)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Runs.WithLabelValues("success")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_PartialFailure(t *testing.T) {
	src := &mockSource{fail: map[time.Month]error{time.February: &domain.RetrievalError{URL: "u", StatusCode: 403}}}
	sink := &recordingSink{}
	l := pipeline.NewLoader(src, threeMonths(), discardLogger(), newTestMetrics())
	p := pipeline.New(l, []pipeline.Sink{sink}, discardLogger(), newTestMetrics())

	report, err := p.Run(context.Background(), pipeline.Request{Year: 2023, Months: []int{1, 2, 3}})
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, time.February, report.Failed[0].Month.Month)
	assert.Len(t, report.Succeeded, 2)
	require.Len(t, sink.batches, 1)
	assert.Equal(t, []domain.Month{{Year: 2023, Month: time.January}, {Year: 2023, Month: time.March}}, sink.batches[0].Months)
}

func TestPipeline_Run_FailedMonthLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	src := &mockSource{fail: map[time.Month]error{time.February: &domain.RetrievalError{URL: "u", StatusCode: 404}}}
	l := pipeline.NewLoader(src, threeMonths(), logger, newTestMetrics())
	p := pipeline.New(l, []pipeline.Sink{&recordingSink{}}, logger, newTestMetrics())

	_, err := p.Run(context.Background(), pipeline.Request{Year: 2023, Months: []int{1, 2, 3}})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(buf.String(), "level=WARN"), buf.String())
	assert.Equal(t, 1, strings.Count(buf.String(), "month=2023-02 error="), buf.String())
}

func TestPipeline_Run_AllMonthsFail(t *testing.T) {
	src := &mockSource{fail: map[time.Month]error{
		time.January: &domain.RetrievalError{URL: "u1", StatusCode: 404},
		time.March:   &domain.RetrievalError{URL: "u3", StatusCode: 404},
	}}
	sink := &recordingSink{}
	metrics := newTestMetrics()
	l := pipeline.NewLoader(src, threeMonths(), discardLogger(), metrics)
	p := pipeline.New(l, []pipeline.Sink{sink}, discardLogger(), metrics)

	_, ok := p.LastReport()
	require.False(t, ok)

	report, err := p.Run(context.Background(), pipeline.Request{Year: 2023, Months: []int{1, 3}})
	require.ErrorIs(t, err, domain.ErrEmptyInput)

	last, ok := p.LastReport()
	require.True(t, ok)
	assert.Len(t, last.Failed, 2)

	assert.Len(t, report.Failed, 2)
	assert.Empty(t, sink.batches, "nothing is stored when densify fails")
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Runs.WithLabelValues("error")), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	sink := &recordingSink{}
	l := pipeline.NewLoader(&mockSource{}, threeMonths(), discardLogger(), newTestMetrics())
	p := pipeline.New(l, []pipeline.Sink{sink}, discardLogger(), newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, pipeline.Request{Year: 2023})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.batches)
}

func TestPipeline_Run_SinkErrorFailsRun(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	l := pipeline.NewLoader(&mockSource{}, threeMonths(), discardLogger(), newTestMetrics())
	p := pipeline.New(l, []pipeline.Sink{sink}, discardLogger(), newTestMetrics())

	// Cancel during the first backoff so the test does not wait out every retry.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Run(ctx, pipeline.Request{Year: 2023, Months: []int{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Error(t, p.CheckReadiness(context.Background()))
}
