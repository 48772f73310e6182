package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/rides-hourly-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/rides-hourly-etl/internal/adapter/kafka"
	parquetadapter "github.com/couchcryptid/rides-hourly-etl/internal/adapter/parquet"
	s3adapter "github.com/couchcryptid/rides-hourly-etl/internal/adapter/s3"
	"github.com/couchcryptid/rides-hourly-etl/internal/adapter/tlc"
	"github.com/couchcryptid/rides-hourly-etl/internal/config"
	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	"github.com/couchcryptid/rides-hourly-etl/internal/observability"
	"github.com/couchcryptid/rides-hourly-etl/internal/pipeline"
	"github.com/couchcryptid/rides-hourly-etl/internal/storage"
	"github.com/go-co-op/gocron"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	layout, err := storage.Init(cfg.DataRoot)
	if err != nil {
		logger.Error("failed to initialize data directories", "error", err)
		os.Exit(1)
	}
	logger.Info("data directories ready", "raw", layout.Raw, "processed", layout.Processed)

	client := tlc.NewClient(cfg.SourceBaseURL, cfg.SourceDataset, cfg.SourceTimeout, metrics, logger)
	source := tlc.NewCachedSource(client, layout, metrics, logger)

	cols := parquetadapter.SourceColumns{
		PickupDatetime:   cfg.SourceTimeColumn,
		PickupLocationID: cfg.SourceLocationColumn,
	}
	reader := pipeline.EventReaderFunc(func(path string) ([]domain.RawEvent, error) {
		return parquetadapter.ReadEvents(path, cols)
	})
	loader := pipeline.NewLoader(source, reader, logger, metrics)

	// The processed directory always receives the grid; Kafka and S3 are opt-in.
	sinks := []pipeline.Sink{parquetadapter.NewFileSink(layout, logger)}

	var kafkaWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		kafkaWriter = kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, kafkaWriter)
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	}

	if cfg.S3Enabled() {
		uploader, err := s3adapter.NewUploader(cfg, logger)
		if err != nil {
			logger.Error("failed to create s3 sink", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, uploader)
		logger.Info("s3 sink enabled", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	}

	p := pipeline.New(loader, sinks, logger, metrics)
	req := pipeline.Request{Year: cfg.RidesYear, Months: cfg.RidesMonths}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	exitCode := 0
	if cfg.ScheduleInterval > 0 {
		scheduler, err := startScheduler(ctx, p, req, cfg.ScheduleInterval, logger)
		if err != nil {
			logger.Error("failed to schedule pipeline", "error", err)
			exitCode = 1
			stop()
		} else {
			<-ctx.Done()
			scheduler.Stop()
		}
	} else if _, err := p.Run(ctx, req); err != nil {
		exitCode = 1
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}

// startScheduler runs the pipeline immediately and then every interval.
// A run still in progress when the next tick fires causes that tick to be skipped.
func startScheduler(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request, interval time.Duration, logger *slog.Logger) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Every(interval).Do(func() {
		if ctx.Err() != nil {
			return
		}
		// Failures are already logged and counted by the pipeline.
		_, _ = p.Run(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	scheduler.StartAsync()
	logger.Info("pipeline scheduled", "interval", interval)
	return scheduler, nil
}
