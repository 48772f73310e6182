package tlc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	"github.com/couchcryptid/rides-hourly-etl/internal/observability"
	"github.com/couchcryptid/rides-hourly-etl/internal/storage"
)

// Downloader fetches the raw bytes of a month's file.
type Downloader interface {
	Download(ctx context.Context, m domain.Month) (io.ReadCloser, error)
}

// CachedSource resolves a month to a local file, downloading it into the raw
// cache directory on a miss.
type CachedSource struct {
	inner   Downloader
	layout  storage.Layout
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures a CachedSource.
type Option func(*CachedSource)

// WithClock sets the clock used to time downloads.
func WithClock(clock clockwork.Clock) Option {
	return func(c *CachedSource) { c.clock = clock }
}

// NewCachedSource creates a disk cache decorator around a downloader.
func NewCachedSource(inner Downloader, layout storage.Layout, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *CachedSource {
	c := &CachedSource{
		inner:   inner,
		layout:  layout,
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the cached path for m. A cache hit never touches the network.
// On a miss the response body is persisted verbatim before the path is
// returned; a failed download leaves nothing in the cache and its error is
// returned unchanged.
func (c *CachedSource) Fetch(ctx context.Context, m domain.Month) (string, error) {
	path := c.layout.RawPath(m)

	if _, err := os.Stat(path); err == nil {
		c.metrics.MonthFetches.WithLabelValues("hit").Inc()
		c.logger.Info("month already cached", "month", m.String(), "path", path)
		return path, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		c.metrics.MonthFetches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("stat cache file: %w", err)
	}

	start := c.clock.Now()
	body, err := c.inner.Download(ctx, m)
	if err != nil {
		c.metrics.MonthFetches.WithLabelValues("error").Inc()
		return "", err
	}
	defer body.Close()

	n, err := storage.WriteFileAtomic(path, body)
	if err != nil {
		c.metrics.MonthFetches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("cache month %s: %w", m, err)
	}

	elapsed := c.clock.Since(start)
	c.metrics.MonthFetches.WithLabelValues("miss").Inc()
	c.metrics.DownloadBytes.Add(float64(n))
	c.metrics.DownloadDuration.Observe(elapsed.Seconds())
	c.logger.Info("month downloaded", "month", m.String(), "bytes", n, "duration", elapsed)
	return path, nil
}
