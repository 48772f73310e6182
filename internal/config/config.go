package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataRoot string `validate:"required"`

	// Remote archive and source file layout.
	SourceBaseURL        string        `validate:"required,url"`
	SourceDataset        string        `validate:"required"`
	SourceTimeout        time.Duration `validate:"gte=0"`
	SourceTimeColumn     string        `validate:"required"`
	SourceLocationColumn string        `validate:"required"`

	// Which months to process. Empty RidesMonths means the whole year.
	RidesYear        int           `validate:"gte=2009,lte=2100"`
	RidesMonths      []int         `validate:"dive,gte=1,lte=12"`
	ScheduleInterval time.Duration `validate:"gte=0"`

	HTTPAddr        string
	LogLevel        string `validate:"oneof=debug info warn warning error"`
	LogFormat       string `validate:"oneof=json text"`
	ShutdownTimeout time.Duration

	// Kafka sink.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// S3 sink, enabled when S3Endpoint is set.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Prefix    string
	S3UseSSL    bool
}

// S3Enabled reports whether the object storage sink is configured.
func (c *Config) S3Enabled() bool { return c.S3Endpoint != "" }

// Load reads configuration from an optional .env file and environment
// variables, applying defaults where unset.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	sourceTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("SOURCE_TIMEOUT", "5m"))
	if err != nil || sourceTimeout < 0 {
		return nil, errors.New("invalid SOURCE_TIMEOUT")
	}

	scheduleInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("SCHEDULE_INTERVAL", "0s"))
	if err != nil || scheduleInterval < 0 {
		return nil, errors.New("invalid SCHEDULE_INTERVAL")
	}

	year, err := parseYear()
	if err != nil {
		return nil, err
	}

	months, err := parseMonths(os.Getenv("RIDES_MONTHS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataRoot:             sharedcfg.EnvOrDefault("DATA_ROOT", "."),
		SourceBaseURL:        sharedcfg.EnvOrDefault("SOURCE_BASE_URL", "https://d37ci6vzurychx.cloudfront.net/trip-data"),
		SourceDataset:        sharedcfg.EnvOrDefault("SOURCE_DATASET", "yellow_tripdata"),
		SourceTimeout:        sourceTimeout,
		SourceTimeColumn:     sharedcfg.EnvOrDefault("SOURCE_TIME_COLUMN", "tpep_pickup_datetime"),
		SourceLocationColumn: sharedcfg.EnvOrDefault("SOURCE_LOCATION_COLUMN", "PULocationID"),
		RidesYear:            year,
		RidesMonths:          months,
		ScheduleInterval:     scheduleInterval,
		HTTPAddr:             sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout:      shutdownTimeout,

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "rides-hourly"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Prefix:    os.Getenv("S3_PREFIX"),
		S3UseSSL:    os.Getenv("S3_USE_SSL") == "true",
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if cfg.S3Enabled() && cfg.S3Bucket == "" {
		return nil, errors.New("S3_ENDPOINT is set but S3_BUCKET is not")
	}

	return cfg, nil
}

// parseYear defaults to the previous calendar year, the most recent one the
// archive publishes in full.
func parseYear() (int, error) {
	s := os.Getenv("RIDES_YEAR")
	if s == "" {
		return time.Now().UTC().Year() - 1, nil
	}
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid RIDES_YEAR")
	}
	return year, nil
}

// parseMonths reads a comma-separated list such as "1,2,3".
func parseMonths(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var months []int
	seen := map[int]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 12 {
			return nil, fmt.Errorf("invalid RIDES_MONTHS entry %q", part)
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate RIDES_MONTHS entry %d", n)
		}
		seen[n] = true
		months = append(months, n)
	}
	return months, nil
}
