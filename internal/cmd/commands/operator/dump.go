package operator

import (
	"flag"
	"fmt"

	"github.com/hashicorp-forge/collab/internal/cmd/base"
	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/collab/plugins/disk"
)

type DumpCommand struct {
	*base.Command

	flagConfig string
	flagFormat string
}

func (c *DumpCommand) Synopsis() string {
	return "Print the content of a persisted document"
}

func (c *DumpCommand) Help() string {
	return `Usage: collab operator dump [options] <cid>

  This command replays the stored log of a document and prints its
  attributes.` +
		c.Flags().Help()
}

func (c *DumpCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("dump", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to collab config file",
	)
	f.StringVar(
		&c.flagFormat, "format", "json", "Output format (json, yaml)",
	)

	return f
}

func (c *DumpCommand) Run(args []string) int {
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

	// Initializing the disk plugin creates missing documents.
	if !store.IsExist(cid) {
		ui.Error(fmt.Sprintf("document %q not found", cid))
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

	out, err := render(doc.ToJSON(), c.flagFormat)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	ui.Output(out)
	return 0
}
