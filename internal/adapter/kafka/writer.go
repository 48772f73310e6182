package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/rides-hourly-etl/internal/config"
	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// chunkSize bounds the number of messages handed to one WriteMessages call.
const chunkSize = 5000

// Writer produces dense hourly counts to a Kafka topic.
// It implements pipeline.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Store publishes one message per dense row, keyed by pickup location so all
// hours of a location land on the same partition in order.
func (w *Writer) Store(ctx context.Context, batch domain.Batch) error {
	processedAt := domain.Now()
	msgs := make([]kafkago.Message, 0, min(chunkSize, len(batch.Rows)))
	for i := range batch.Rows {
		msg, err := serializeToMessage(batch.Rows[i], processedAt)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)

		if len(msgs) == chunkSize {
			if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
				return fmt.Errorf("publish dense counts: %w", err)
			}
			msgs = msgs[:0]
		}
	}
	if len(msgs) > 0 {
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish dense counts: %w", err)
		}
	}

	w.logger.Info("dense counts published", "topic", w.writer.Topic, "rows", len(batch.Rows), "batch", batch.Name())
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a DenseCount into a Kafka message.
func serializeToMessage(row domain.DenseCount, processedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize dense count: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(row.PickupLocationID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "pickup_hour", Value: []byte(row.PickupHour.Format(time.RFC3339))},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}
