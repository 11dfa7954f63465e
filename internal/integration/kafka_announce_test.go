//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/marinerlabs/gridseed/internal/adapter/kafka"
	"github.com/marinerlabs/gridseed/internal/cache"
	"github.com/marinerlabs/gridseed/internal/codec"
	"github.com/marinerlabs/gridseed/internal/config"
	"github.com/marinerlabs/gridseed/internal/geo"
	"github.com/marinerlabs/gridseed/internal/ingest"
	"github.com/marinerlabs/gridseed/internal/provider"
	"github.com/marinerlabs/gridseed/internal/slicer"
)

const testSeedTopic = "test-seed-announcements"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-node Kafka via testcontainers and
// returns the broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("gridseed-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestAnnounceRoundTrip wires the full export path (slice, encode,
// announce) against real Kafka and verifies the announcements arrive
// intact.
func TestAnnounceRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSeedTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSeedTopic: testSeedTopic,
	}

	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	store, err := cache.NewStore(t.TempDir(), discardLogger())
	require.NoError(t, err)

	orchestrator, err := slicer.New(slicer.Options{
		Provider: provider.NewMock(provider.DefaultSeed),
		Cache:    store,
		Clock:    clockwork.NewFakeClockAt(time.Date(2026, 8, 25, 18, 30, 0, 0, time.UTC)),
		Logger:   discardLogger(),
	})
	require.NoError(t, err)

	region, err := geo.NewRegion(20, 22, -140, -138)
	require.NoError(t, err)

	job, err := ingest.New(ingest.Options{
		Orchestrator:  orchestrator,
		Announcer:     writer,
		OutputDir:     t.TempDir(),
		Level:         codec.LevelFast,
		Regions:       []geo.Region{region},
		ForecastHours: 12,
		TimeStepHours: 3,
		Variables:     []string{"u10", "v10", "swh"},
		Logger:        discardLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, job.RunOnce(ctx))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSeedTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	formats := map[string]ingest.Announcement{}
	for len(formats) < 2 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read announcement")

		var ann ingest.Announcement
		require.NoError(t, json.Unmarshal(msg.Value, &ann))
		formats[ann.Format] = ann

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, ann.Format, headers["format"])
		assert.Equal(t, ann.ModelRun.Format(time.RFC3339), headers["model_run"])
		assert.Equal(t, ann.SeedID, string(msg.Key))
	}

	require.Contains(t, formats, codec.FormatBinary)
	require.Contains(t, formats, codec.FormatColumnar)

	wantRun := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for _, ann := range formats {
		assert.Equal(t, "mock_hres", ann.ModelSource)
		assert.True(t, wantRun.Equal(ann.ModelRun))
		assert.Positive(t, ann.OutputBytes)
		assert.Positive(t, ann.Ratio)
		assert.Contains(t, ann.Costs, "iridium_certus_100")
	}

	// Same seed in both formats, the binary export smaller on the wire.
	assert.Equal(t, formats[codec.FormatBinary].SeedID, formats[codec.FormatColumnar].SeedID)
	assert.Less(t, formats[codec.FormatBinary].OutputBytes, formats[codec.FormatColumnar].OutputBytes)
}
