package operator

import (
	"flag"
	"fmt"

	"github.com/hashicorp-forge/collab/internal/cmd/base"
	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/collab/plugins/disk"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

type CompactCommand struct {
	*base.Command

	flagConfig string
}

func (c *CompactCommand) Synopsis() string {
	return "Replace the update log of a document with one snapshot"
}

func (c *CompactCommand) Help() string {
	return `Usage: collab operator compact [options] <cid>

  This command replays the log of a document and replaces it with a
  single update holding the document's state.` +
		c.Flags().Help()
}

func (c *CompactCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("compact", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to collab config file",
	)

	return f
}

func (c *CompactCommand) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() != 1 {
		ui.Error("exactly one document id is required")
		return 1
	}
	cid := flags.Arg(0)

	cfg, store, closeFn, ok := openStore(c.Command, c.flagConfig)
	if !ok {
		return 1
	}
	defer closeFn()

	before, err := store.GetUpdates(cid)
	if err != nil {
		ui.Error(fmt.Sprintf("error reading document: %v", err))
		return 1
	}

	doc := collab.NewBuilder(cfg.ClientID, cid).
		WithLogger(c.Log).
		WithPlugin(disk.NewPlugin(store, c.Log)).
		Build()
	defer doc.Close()
	if err := doc.Initialize(); err != nil {
		ui.Error(fmt.Sprintf("error loading document: %v", err))
		return 1
	}

	err = doc.WithTransact(func(txn *replica.Txn) error {
		return store.Flush(cid, txn)
	})
	if err != nil {
		ui.Error(fmt.Sprintf("error compacting document: %v", err))
		return 1
	}

	ui.Info(fmt.Sprintf("Compacted %q from %d updates", cid, len(before)))
	return 0
}
