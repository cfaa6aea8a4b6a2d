package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hashicorp-forge/collab/pkg/collab"
)

// SubscriberConfig holds configuration for a Subscriber.
type SubscriberConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string

	// Source is this replica's id. Records it published are skipped.
	Source string

	// ConsumeFromStart reads the topic from the beginning for a new group.
	ConsumeFromStart bool

	// DeadLetter receives updates that fail to apply. Optional.
	DeadLetter *DeadLetter

	Logger hclog.Logger
}

// Subscriber applies updates published by other replicas to local
// documents.
type Subscriber struct {
	client     *kgo.Client
	source     string
	deadLetter *DeadLetter
	logger     hclog.Logger

	mu   sync.RWMutex
	docs map[string]*collab.Collab

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSubscriber creates a subscriber. Documents receive updates once
// registered with Track.
func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.Source == "" {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.ConsumerGroup == "" {
		// Every replica must see every update.
		cfg.ConsumerGroup = "collab-" + cfg.Source
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	offset := kgo.NewOffset().AtEnd()
	if cfg.ConsumeFromStart {
		offset = kgo.NewOffset().AtStart()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(offset),
		kgo.SessionTimeout(10*time.Second),
		kgo.RebalanceTimeout(30*time.Second),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	s := newSubscriber(cfg.Source, cfg.Logger)
	s.client = client
	s.deadLetter = cfg.DeadLetter
	return s, nil
}

func newSubscriber(source string, logger hclog.Logger) *Subscriber {
	return &Subscriber{
		source: source,
		logger: logger.Named("broadcast-subscriber"),
		docs:   make(map[string]*collab.Collab),
		stopCh: make(chan struct{}),
	}
}

// Track routes updates for c's document id to c.
func (s *Subscriber) Track(c *collab.Collab) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[c.CID()] = c
}

// Untrack stops routing updates for cid.
func (s *Subscriber) Untrack(cid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, cid)
}

// Start consumes the topic until ctx is cancelled or Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info("starting broadcast subscriber", "source", s.source)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("broadcast subscriber stopped by context")
			return ctx.Err()

		case <-s.stopCh:
			s.logger.Info("broadcast subscriber stopped")
			return nil

		default:
			fetches := s.client.PollFetches(ctx)
			if fetches.IsClientClosed() {
				return nil
			}
			if errs := fetches.Errors(); len(errs) > 0 {
				for _, err := range errs {
					s.logger.Error("kafka fetch error", "error", err.Err)
				}
				continue
			}

			fetches.EachRecord(func(record *kgo.Record) {
				s.process(ctx, record)
				if err := s.client.CommitRecords(ctx, record); err != nil {
					s.logger.Warn("failed to commit Kafka offset",
						"partition", record.Partition,
						"offset", record.Offset,
						"error", err,
					)
				}
			})
		}
	}
}

// process applies record, sending it to the dead letter topic if that
// fails. The record is committed either way.
func (s *Subscriber) process(ctx context.Context, record *kgo.Record) {
	err := s.handle(record)
	if err == nil {
		return
	}

	s.logger.Error("failed to apply update",
		"cid", string(record.Key),
		"partition", record.Partition,
		"offset", record.Offset,
		"error", err,
	)
	if s.deadLetter == nil {
		return
	}
	if dlErr := s.deadLetter.Publish(ctx, record, err); dlErr != nil {
		s.logger.Error("failed to dead letter update",
			"cid", string(record.Key),
			"error", dlErr,
		)
	}
}

// Stop ends Start and closes the client.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.client != nil {
			s.client.Close()
		}
	})
}

// handle applies one record to its document. Records from this replica and
// for untracked documents are skipped. A plugin failure does not undo the
// update, so the record counts as applied.
func (s *Subscriber) handle(record *kgo.Record) error {
	if headerValue(record, HeaderSource) == s.source {
		return nil
	}

	cid := string(record.Key)
	s.mu.RLock()
	c, ok := s.docs[cid]
	s.mu.RUnlock()
	if !ok {
		s.logger.Trace("skipping update for untracked document", "cid", cid)
		return nil
	}

	if err := c.ApplyUpdate(record.Value); err != nil {
		var pluginErr *collab.PluginError
		if !errors.As(err, &pluginErr) {
			return err
		}
		s.logger.Warn("remote update applied but plugins failed",
			"cid", cid,
			"update_id", headerValue(record, HeaderUpdateID),
			"hook", pluginErr.Hook,
			"error", pluginErr.Errs,
		)
		return nil
	}
	s.logger.Debug("applied remote update",
		"cid", cid,
		"update_id", headerValue(record, HeaderUpdateID),
	)
	return nil
}

func headerValue(record *kgo.Record, key string) string {
	for _, h := range record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
