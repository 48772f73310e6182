package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/rides-hourly-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunReporter exposes the pipeline's latest run summary.
type RunReporter interface {
	sharedobs.ReadinessChecker
	LastReport() (pipeline.Report, bool)
}

// Server exposes health, readiness, run status, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /runs/last, and /metrics routes.
func NewServer(addr string, runs RunReporter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(runs))
	mux.HandleFunc("GET /runs/last", handleLastRun(runs))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type monthFailure struct {
	Month string `json:"month"`
	Error string `json:"error"`
}

type runResponse struct {
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Succeeded      []string       `json:"succeeded_months"`
	Failed         []monthFailure `json:"failed_months"`
	RawEvents      int            `json:"raw_events"`
	DroppedEvents  int            `json:"dropped_events"`
	AggregatedRows int            `json:"aggregated_rows"`
	DenseRows      int            `json:"dense_rows"`
	ZeroFilledRows int            `json:"zero_filled_rows"`
}

func toRunResponse(r pipeline.Report) runResponse {
	resp := runResponse{
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Succeeded:      make([]string, 0, len(r.Succeeded)),
		Failed:         make([]monthFailure, 0, len(r.Failed)),
		RawEvents:      r.RawEvents,
		DroppedEvents:  r.DroppedEvents,
		AggregatedRows: r.AggregatedRows,
		DenseRows:      r.DenseRows,
		ZeroFilledRows: r.ZeroFilledRows,
	}
	for _, m := range r.Succeeded {
		resp.Succeeded = append(resp.Succeeded, m.String())
	}
	for _, f := range r.Failed {
		resp.Failed = append(resp.Failed, monthFailure{Month: f.Month.String(), Error: f.Err.Error()})
	}
	return resp
}

func handleLastRun(runs RunReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report, ok := runs.LastReport()
		if !ok {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"status": "no run yet"})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, toRunResponse(report))
	}
}
