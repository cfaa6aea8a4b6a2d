// Package broadcast propagates document updates between replicas through a
// Kafka (Redpanda) topic.
//
// A Plugin publishes every local update of a document as one record keyed by
// the document id, so all updates of a document land on one partition in
// commit order. A Subscriber consumes the topic and applies records from
// other replicas to the matching local documents.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

// Record headers.
const (
	HeaderSource   = "source"
	HeaderUpdateID = "update_id"
)

// Producer publishes records. *kgo.Client implements it.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Config holds configuration for a broadcast Plugin.
type Config struct {
	Producer Producer
	Topic    string

	// Source identifies this replica in published records. Subscribers skip
	// records carrying their own source. Defaults to a random id.
	Source string

	// Timeout bounds publishing one update, retries included (default: 10s).
	Timeout time.Duration

	// MaxRetries is the number of retries after a failed publish (default: 3).
	MaxRetries uint64

	// RetryInterval is the wait before the first retry. Later waits grow
	// exponentially (default: 500ms).
	RetryInterval time.Duration

	Logger hclog.Logger
}

// Plugin publishes local document updates.
type Plugin struct {
	producer   Producer
	topic      string
	source     string
	timeout    time.Duration
	maxRetries uint64
	retryWait  time.Duration
	logger     hclog.Logger
}

var _ collab.Plugin = (*Plugin)(nil)

// NewPlugin creates a broadcast plugin.
func NewPlugin(cfg Config) (*Plugin, error) {
	if cfg.Producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	// Set defaults
	if cfg.Source == "" {
		cfg.Source = uuid.NewString()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = backoff.DefaultInitialInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Plugin{
		producer:   cfg.Producer,
		topic:      cfg.Topic,
		source:     cfg.Source,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryInterval,
		logger:     cfg.Logger.Named("broadcast").With("topic", cfg.Topic),
	}, nil
}

// Source returns the replica id stamped on published records.
func (p *Plugin) Source() string {
	return p.source
}

// DidInit does nothing. Initial state is not broadcast.
func (p *Plugin) DidInit(string, *replica.TxnMut) error {
	return nil
}

// DidReceiveUpdate publishes update unless it came from another replica.
func (p *Plugin) DidReceiveUpdate(cid string, txn *replica.TxnMut, update []byte) error {
	if txn.Origin() == collab.OriginRemote {
		return nil
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(cid),
		Value: update,
		Headers: []kgo.RecordHeader{
			{Key: HeaderSource, Value: []byte(p.source)},
			{Key: HeaderUpdateID, Value: []byte(uuid.NewString())},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	attempt := 0
	publish := func() error {
		attempt++
		return p.producer.ProduceSync(ctx, record).FirstErr()
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = p.retryWait
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, p.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("failed to publish update, retrying",
			"cid", cid,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}
	if err := backoff.RetryNotify(publish, policy, notify); err != nil {
		return fmt.Errorf("failed to publish update for %s: %w", cid, err)
	}

	p.logger.Debug("published update",
		"cid", cid,
		"bytes", len(update),
		"attempts", attempt,
	)
	return nil
}

// NewProducerClient returns a Kafka client configured for publishing
// document updates.
func NewProducerClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),

		// Producer durability settings
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		kgo.RetryBackoffFn(func(tries int) time.Duration {
			wait := time.Duration(tries) * 100 * time.Millisecond
			if wait > 5*time.Second {
				wait = 5 * time.Second
			}
			return wait
		}),
		kgo.RequestRetries(10),

		kgo.ProducerLinger(5*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1<<20), // 1MB
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return client, nil
}
