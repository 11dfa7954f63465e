package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/marinerlabs/gridseed/internal/config"
	"github.com/marinerlabs/gridseed/internal/ingest"
)

// Writer publishes seed announcements to a Kafka topic.
// It implements ingest.Announcer.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured announcement topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSeedTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Announce serializes and publishes the announcements in a single
// WriteMessages call so one export pass is one produce round trip.
func (w *Writer) Announce(ctx context.Context, anns []ingest.Announcement) error {
	if len(anns) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(anns))
	for i := range anns {
		msg, err := serializeToMessage(anns[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an announcement into a Kafka message.
// Keyed by seed ID so all formats of one seed land on one partition.
func serializeToMessage(ann ingest.Announcement) (kafkago.Message, error) {
	data, err := json.Marshal(ann)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize announcement: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ann.SeedID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "format", Value: []byte(ann.Format)},
			{Key: "model_run", Value: []byte(ann.ModelRun.Format(time.RFC3339))},
		},
	}, nil
}
