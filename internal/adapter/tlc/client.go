package tlc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	"github.com/couchcryptid/rides-hourly-etl/internal/observability"
)

// DefaultBaseURL is the public TLC trip record archive.
const DefaultBaseURL = "https://d37ci6vzurychx.cloudfront.net/trip-data"

// Client downloads monthly trip files from the TLC archive.
type Client struct {
	baseURL    string
	dataset    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an archive client for one dataset, e.g. "yellow_tripdata".
// A zero timeout means the request is bounded only by the caller's context.
func NewClient(baseURL, dataset string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		dataset: dataset,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// URL is the archive location of a month's file:
// <base>/<dataset>_YYYY-MM.parquet.
func (c *Client) URL(m domain.Month) string {
	return fmt.Sprintf("%s/%s_%s.parquet", c.baseURL, c.dataset, m.String())
}

// Download issues a single GET for the month's file. Any status other than
// 200 is a *domain.RetrievalError carrying the URL. The caller must close the
// returned body.
func (c *Client) Download(ctx context.Context, m domain.Month) (io.ReadCloser, error) {
	u := c.URL(m)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.logger.Debug("downloading month", "month", m.String(), "url", u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.RetrievalError{URL: u, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &domain.RetrievalError{URL: u, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
