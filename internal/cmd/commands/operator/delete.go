package operator

import (
	"errors"
	"flag"
	"fmt"

	"github.com/hashicorp-forge/collab/internal/cmd/base"
	"github.com/hashicorp-forge/collab/pkg/persistence"
)

type DeleteCommand struct {
	*base.Command

	flagConfig string
}

func (c *DeleteCommand) Synopsis() string {
	return "Delete persisted documents"
}

func (c *DeleteCommand) Help() string {
	return `Usage: collab operator delete [options] <cid>...

  This command removes documents and their update logs from the store.` +
		c.Flags().Help()
}

func (c *DeleteCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("delete", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to collab config file",
	)

	return f
}

func (c *DeleteCommand) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() == 0 {
		ui.Error("at least one document id is required")
		return 1
	}

	_, store, closeFn, ok := openStore(c.Command, c.flagConfig)
	if !ok {
		return 1
	}
	defer closeFn()

	failed := 0
	for _, cid := range flags.Args() {
		err := store.DeleteDoc(cid)
		switch {
		case errors.Is(err, persistence.ErrDocNotFound):
			ui.Warn(fmt.Sprintf("document %q not found", cid))
		case err != nil:
			ui.Error(fmt.Sprintf("error deleting document %q: %v", cid, err))
			failed++
		default:
			ui.Info(fmt.Sprintf("Deleted document %q", cid))
		}
	}

	if failed > 0 {
		return 1
	}
	return 0
}
