package operator

import (
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hashicorp-forge/collab/internal/cmd/base"
)

type ListCommand struct {
	*base.Command

	flagConfig string
	flagFormat string
}

func (c *ListCommand) Synopsis() string {
	return "List persisted documents"
}

func (c *ListCommand) Help() string {
	return `Usage: collab operator list

  This command lists every document in the store with the number of
  updates in its log.` +
		c.Flags().Help()
}

func (c *ListCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("list", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to collab config file",
	)
	f.StringVar(
		&c.flagFormat, "format", "table", "Output format (table, json, yaml)",
	)

	return f
}

func (c *ListCommand) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	_, store, closeFn, ok := openStore(c.Command, c.flagConfig)
	if !ok {
		return 1
	}
	defer closeFn()

	docs, err := store.ListDocs()
	if err != nil {
		ui.Error(fmt.Sprintf("error listing documents: %v", err))
		return 1
	}

	if c.flagFormat != "table" {
		out, err := render(docs, c.flagFormat)
		if err != nil {
			ui.Error(err.Error())
			return 1
		}
		ui.Output(out)
		return 0
	}

	if len(docs) == 0 {
		ui.Info("No documents found")
		return 0
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CID\tUPDATES\tUPDATED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%d\t%s\n", d.CID, d.Updates, d.UpdatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
	ui.Output(strings.TrimRight(b.String(), "\n"))
	return 0
}
