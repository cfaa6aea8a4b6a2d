package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// createKafkaTopic creates a Kafka topic for testing.
func createKafkaTopic(t *testing.T, ctx context.Context, brokers string, topicName string) {
	adminClient, err := kgo.NewClient(
		kgo.SeedBrokers(brokers),
	)
	require.NoError(t, err)
	defer adminClient.Close()

	createTopicsReq := kmsg.NewCreateTopicsRequest()
	createTopicsReq.Topics = []kmsg.CreateTopicsRequestTopic{
		{
			Topic:             topicName,
			NumPartitions:     1,
			ReplicationFactor: 1,
		},
	}
	_, err = adminClient.Request(ctx, &createTopicsReq)
	require.NoError(t, err)

	// Wait for topic to be ready
	time.Sleep(1 * time.Second)
}

// TestBroadcast_Redpanda replicates a document between two replicas through
// a real Redpanda instance.
func TestBroadcast_Redpanda(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "test",
		Level: hclog.Debug,
	})

	redpandaContainer, err := redpanda.Run(ctx,
		"docker.redpanda.com/redpandadata/redpanda:latest",
	)
	require.NoError(t, err)
	defer func() {
		_ = redpandaContainer.Terminate(context.Background())
	}()

	brokers, err := redpandaContainer.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	topic := "test.collab-updates"
	createKafkaTopic(t, ctx, brokers, topic)

	producer, err := NewProducerClient([]string{brokers})
	require.NoError(t, err)
	defer producer.Close()

	plugin, err := NewPlugin(Config{
		Producer: producer,
		Topic:    topic,
		Source:   "replica-a",
		Logger:   logger,
	})
	require.NoError(t, err)
	a := newDoc(t, 1, "doc-1", plugin)

	b := newDoc(t, 2, "doc-1")
	sub, err := NewSubscriber(SubscriberConfig{
		Brokers:          []string{brokers},
		Topic:            topic,
		Source:           "replica-b",
		ConsumeFromStart: true,
		Logger:           logger,
	})
	require.NoError(t, err)
	sub.Track(b)

	done := make(chan error, 1)
	go func() {
		done <- sub.Start(ctx)
	}()
	defer func() {
		sub.Stop()
		<-done
	}()

	require.NoError(t, a.Insert("title", "replicated"))
	_, err = a.InsertJSONWithPath(nil, "blocks", map[string]any{
		"b1": map[string]any{"text": "hello"},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(a.ToJSON(), b.ToJSON())
	}, 30*time.Second, 200*time.Millisecond)
}
