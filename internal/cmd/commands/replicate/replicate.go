package replicate

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/hashicorp-forge/collab/internal/cmd/base"
	"github.com/hashicorp-forge/collab/internal/config"
	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/collab/plugins/broadcast"
	"github.com/hashicorp-forge/collab/pkg/collab/plugins/disk"
	"github.com/hashicorp-forge/collab/pkg/persistence"
)

type Command struct {
	*base.Command

	flagConfig    string
	flagFromStart bool
}

func (c *Command) Synopsis() string {
	return "Keep persisted documents in sync with other replicas"
}

func (c *Command) Help() string {
	return `Usage: collab replicate [options] [cid...]

  This command opens documents from the store and keeps them in sync with
  other replicas through Kafka. Remote updates are appended to the local
  logs. Without arguments every stored document is replicated.

  Each run joins as a new replica. Set kafka.consumer_group in the config
  to resume from the last committed offset after a restart.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("replicate", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to collab config file",
	)
	f.BoolVar(
		&c.flagFromStart, "from-start", false,
		"Read the update topic from the beginning when the consumer group is new.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	logger, ui := c.Log, c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		ui.Error(fmt.Sprintf("error parsing config file: %v", err))
		return 1
	}

	store, closeStore, err := c.OpenStore(cfg)
	if err != nil {
		ui.Error(fmt.Sprintf("error opening document store: %v", err))
		return 1
	}
	defer closeStore()

	cids := flags.Args()
	if len(cids) == 0 {
		docs, err := store.ListDocs()
		if err != nil {
			ui.Error(fmt.Sprintf("error listing documents: %v", err))
			return 1
		}
		for _, d := range docs {
			cids = append(cids, d.CID)
		}
	}
	if len(cids) == 0 {
		ui.Warn("No documents to replicate")
		return 0
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cfg, store, cids, c.flagFromStart, c.Command); err != nil {
		ui.Error(fmt.Sprintf("replication failed: %v", err))
		return 1
	}

	ui.Info("Replication stopped")
	return 0
}

func run(
	ctx context.Context,
	cfg *config.Config,
	store persistence.DocStore,
	cids []string,
	fromStart bool,
	c *base.Command,
) error {
	logger := c.Log
	source := newSource()

	producer, err := broadcast.NewProducerClient(cfg.Brokers())
	if err != nil {
		return err
	}
	defer producer.Close()

	broadcaster, err := broadcast.NewPlugin(broadcast.Config{
		Producer: producer,
		Topic:    cfg.Topic(),
		Source:   source,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var deadLetter *broadcast.DeadLetter
	if topic := cfg.DeadLetterTopic(); topic != "" {
		if deadLetter, err = broadcast.NewDeadLetter(producer, topic); err != nil {
			return err
		}
	}

	subscriber, err := broadcast.NewSubscriber(broadcast.SubscriberConfig{
		Brokers:          cfg.Brokers(),
		Topic:            cfg.Topic(),
		ConsumerGroup:    cfg.ConsumerGroup(),
		Source:           source,
		ConsumeFromStart: fromStart,
		DeadLetter:       deadLetter,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	defer subscriber.Stop()

	persist := disk.NewPlugin(store, logger, disk.WithFlushEvery(cfg.FlushEvery))
	docs := make([]*collab.Collab, 0, len(cids))
	defer func() {
		for _, doc := range docs {
			doc.Close()
		}
	}()
	for _, cid := range cids {
		doc := collab.NewBuilder(cfg.ClientID, cid).
			WithLogger(logger).
			WithPlugins(persist, broadcaster).
			Build()
		docs = append(docs, doc)

		if err := doc.Initialize(); err != nil {
			return fmt.Errorf("failed to open document %s: %w", cid, err)
		}
		subscriber.Track(doc)
	}

	c.UI.Info(fmt.Sprintf("Replicating %d documents on %s as %s", len(cids), cfg.Topic(), source))

	err = subscriber.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newSource returns a replica id for one run. Records are filtered by
// source, so two runs must never share one even with the same client id.
func newSource() string {
	return "replica-" + uuid.NewString()
}
