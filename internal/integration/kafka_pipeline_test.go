//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/rides-hourly-etl/internal/adapter/kafka"
	parquetadapter "github.com/couchcryptid/rides-hourly-etl/internal/adapter/parquet"
	"github.com/couchcryptid/rides-hourly-etl/internal/adapter/tlc"
	"github.com/couchcryptid/rides-hourly-etl/internal/config"
	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	"github.com/couchcryptid/rides-hourly-etl/internal/observability"
	"github.com/couchcryptid/rides-hourly-etl/internal/pipeline"
	"github.com/couchcryptid/rides-hourly-etl/internal/storage"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testSinkTopic = "test-rides-hourly"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("rides-hourly-test"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// tripArchive serves TLC-layout monthly files by name; any other path is a 404.
func tripArchive(t *testing.T, files map[string][]domain.RawEvent) *httptest.Server {
	t.Helper()
	encoded := make(map[string][]byte, len(files))
	for name, events := range files {
		data, err := parquetadapter.EncodeRawEvents(events, parquetadapter.YellowTaxiColumns)
		require.NoError(t, err)
		encoded[name] = data
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := encoded[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2023, month, day, hour, minute, 0, 0, time.UTC)
}

// TestPipelineEndToEnd runs archive -> cache -> loader -> densify -> parquet
// and Kafka sinks, with February missing from the archive.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	archive := tripArchive(t, map[string][]domain.RawEvent{
		"yellow_tripdata_2023-01.parquet": {
			{PickupDatetime: at(time.January, 31, 22, 15), PickupLocationID: 132},
			{PickupDatetime: at(time.January, 31, 22, 40), PickupLocationID: 132},
			{PickupDatetime: time.Date(2022, time.December, 31, 23, 59, 0, 0, time.UTC), PickupLocationID: 132},
		},
		"yellow_tripdata_2023-03.parquet": {
			{PickupDatetime: at(time.March, 1, 0, 5), PickupLocationID: 236},
		},
	})

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	layout, err := storage.Init(t.TempDir())
	require.NoError(t, err)

	metrics := observability.NewMetricsForTesting()
	client := tlc.NewClient(archive.URL, "yellow_tripdata", 30*time.Second, metrics, discardLogger())
	source := tlc.NewCachedSource(client, layout, metrics, discardLogger())
	reader := pipeline.EventReaderFunc(func(path string) ([]domain.RawEvent, error) {
		return parquetadapter.ReadEvents(path, parquetadapter.YellowTaxiColumns)
	})
	loader := pipeline.NewLoader(source, reader, discardLogger(), metrics)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	fileSink := parquetadapter.NewFileSink(layout, discardLogger())

	p := pipeline.New(loader, []pipeline.Sink{fileSink, writer}, discardLogger(), metrics)

	report, err := p.Run(ctx, pipeline.Request{Year: 2023, Months: []int{1, 2, 3}})
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, time.February, report.Failed[0].Month.Month)
	assert.Equal(t, 1, report.DroppedEvents)

	// Jan 31 22:00 through Mar 1 00:00 for two locations.
	hours := domain.HourSpan(at(time.January, 31, 22, 0), at(time.March, 1, 0, 0))
	require.Equal(t, 2*hours, report.DenseRows)

	// The processed file holds the same grid.
	batch := domain.Batch{Months: report.Succeeded}
	stored, err := parquetadapter.ReadDenseCounts(fileSink.Path(batch))
	require.NoError(t, err)
	require.Len(t, stored, report.DenseRows)
	assert.Equal(t, domain.DenseCount{PickupHour: at(time.January, 31, 22, 0), RideCount: 2, PickupLocationID: 132}, stored[0])

	// Every dense row is published, keyed by location.
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	total := 0
	perLocation := map[string]int{}
	for range report.DenseRows {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from sink topic")

		var row domain.DenseCount
		require.NoError(t, json.Unmarshal(msg.Value, &row))
		assert.Equal(t, strconv.FormatInt(row.PickupLocationID, 10), string(msg.Key))
		total += row.RideCount
		perLocation[string(msg.Key)]++
	}
	assert.Equal(t, 3, total, "ride counts survive publication")
	assert.Equal(t, map[string]int{"132": hours, "236": hours}, perLocation)

	// A second run is served from the cache.
	_, err = p.Run(ctx, pipeline.Request{Year: 2023, Months: []int{1, 3}})
	require.NoError(t, err)
}
